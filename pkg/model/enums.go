package model

import (
	"fmt"
	"strings"
)

// normalizeEnumToken lowercases a raw value and strips separators so the
// parsers accept the spelling variants seen in provider CSV exports
// ("Hyper-V", "hyperv", "in-stock", "In stock", ...).
func normalizeEnumToken(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.NewReplacer("-", "", "_", "", " ", "").Replace(s)
	return s
}

// Currency is the pricing currency of an offering.
type Currency string

const (
	CurrencyEUR  Currency = "EUR"
	CurrencyUSD  Currency = "USD"
	CurrencyUSDT Currency = "USDT"
	CurrencyBTC  Currency = "BTC"
	CurrencyETH  Currency = "ETH"
)

// ParseCurrency parses a currency code, case-insensitively.
func ParseCurrency(s string) (Currency, error) {
	switch normalizeEnumToken(s) {
	case "eur":
		return CurrencyEUR, nil
	case "usd":
		return CurrencyUSD, nil
	case "usdt":
		return CurrencyUSDT, nil
	case "btc":
		return CurrencyBTC, nil
	case "eth":
		return CurrencyETH, nil
	default:
		return "", fmt.Errorf("%w: unknown currency %q", ErrValidation, s)
	}
}

func (c Currency) IsValid() bool {
	switch c {
	case CurrencyEUR, CurrencyUSD, CurrencyUSDT, CurrencyBTC, CurrencyETH:
		return true
	}
	return false
}

func (c Currency) String() string { return string(c) }

// Visibility controls whether an offering appears in public search results.
type Visibility string

const (
	VisibilityVisible   Visibility = "Visible"
	VisibilityInvisible Visibility = "Invisible"
)

func ParseVisibility(s string) (Visibility, error) {
	switch normalizeEnumToken(s) {
	case "visible":
		return VisibilityVisible, nil
	case "invisible", "hidden":
		return VisibilityInvisible, nil
	default:
		return "", fmt.Errorf("%w: unknown visibility %q", ErrValidation, s)
	}
}

func (v Visibility) IsValid() bool {
	return v == VisibilityVisible || v == VisibilityInvisible
}

func (v Visibility) String() string { return string(v) }

// ProductType is the broad category of a compute offering.
type ProductType string

const (
	ProductVPS       ProductType = "VPS"
	ProductDedicated ProductType = "Dedicated"
	ProductCloud     ProductType = "Cloud"
	ProductManaged   ProductType = "Managed"
)

func ParseProductType(s string) (ProductType, error) {
	switch normalizeEnumToken(s) {
	case "vps", "virtualprivateserver":
		return ProductVPS, nil
	case "dedicated", "dedicatedserver":
		return ProductDedicated, nil
	case "cloud", "cloudserver":
		return ProductCloud, nil
	case "managed", "managedserver":
		return ProductManaged, nil
	default:
		return "", fmt.Errorf("%w: unknown product type %q", ErrValidation, s)
	}
}

func (p ProductType) IsValid() bool {
	switch p {
	case ProductVPS, ProductDedicated, ProductCloud, ProductManaged:
		return true
	}
	return false
}

func (p ProductType) String() string { return string(p) }

// VirtualizationType is the hypervisor technology of an offering.
// Bare-metal offerings use VirtNone; an empty input parses as VirtNone.
type VirtualizationType string

const (
	VirtKVM    VirtualizationType = "KVM"
	VirtVMware VirtualizationType = "VMware"
	VirtXen    VirtualizationType = "Xen"
	VirtHyperV VirtualizationType = "Hyper-V"
	VirtNone   VirtualizationType = "None"
)

func ParseVirtualizationType(s string) (VirtualizationType, error) {
	switch normalizeEnumToken(s) {
	case "", "none", "baremetal":
		return VirtNone, nil
	case "kvm":
		return VirtKVM, nil
	case "vmware":
		return VirtVMware, nil
	case "xen":
		return VirtXen, nil
	case "hyperv":
		return VirtHyperV, nil
	default:
		return "", fmt.Errorf("%w: unknown virtualization type %q", ErrValidation, s)
	}
}

func (v VirtualizationType) IsValid() bool {
	switch v {
	case VirtKVM, VirtVMware, VirtXen, VirtHyperV, VirtNone:
		return true
	}
	return false
}

func (v VirtualizationType) String() string { return string(v) }

// BillingInterval is the cadence the monthly-normalized price is billed at.
type BillingInterval string

const (
	BillingHourly  BillingInterval = "Hourly"
	BillingDaily   BillingInterval = "Daily"
	BillingMonthly BillingInterval = "Monthly"
	BillingYearly  BillingInterval = "Yearly"
)

func ParseBillingInterval(s string) (BillingInterval, error) {
	switch normalizeEnumToken(s) {
	case "hourly", "hour":
		return BillingHourly, nil
	case "daily", "day":
		return BillingDaily, nil
	case "monthly", "month":
		return BillingMonthly, nil
	case "yearly", "year", "annual", "annually":
		return BillingYearly, nil
	default:
		return "", fmt.Errorf("%w: unknown billing interval %q", ErrValidation, s)
	}
}

func (b BillingInterval) IsValid() bool {
	switch b {
	case BillingHourly, BillingDaily, BillingMonthly, BillingYearly:
		return true
	}
	return false
}

func (b BillingInterval) String() string { return string(b) }

// StockStatus is the availability state of an offering.
type StockStatus string

const (
	StockInStock    StockStatus = "In stock"
	StockOutOfStock StockStatus = "Out of stock"
	StockLimited    StockStatus = "Limited"
)

func ParseStockStatus(s string) (StockStatus, error) {
	switch normalizeEnumToken(s) {
	case "instock", "available", "yes":
		return StockInStock, nil
	case "outofstock", "unavailable", "no":
		return StockOutOfStock, nil
	case "limited", "low":
		return StockLimited, nil
	default:
		return "", fmt.Errorf("%w: unknown stock status %q", ErrValidation, s)
	}
}

func (s StockStatus) IsValid() bool {
	switch s {
	case StockInStock, StockOutOfStock, StockLimited:
		return true
	}
	return false
}

func (s StockStatus) String() string { return string(s) }

// ErrorCorrection describes the memory error-correction capability.
// The zero value means the provider did not state it.
type ErrorCorrection string

const (
	ECCPlain      ErrorCorrection = "ECC"
	ECCRegistered ErrorCorrection = "ECC Registered"
	ECCNone       ErrorCorrection = "non-ECC"
)

func ParseErrorCorrection(s string) (ErrorCorrection, error) {
	switch normalizeEnumToken(s) {
	case "ecc":
		return ECCPlain, nil
	case "eccregistered", "eccreg", "registered":
		return ECCRegistered, nil
	case "nonecc", "noecc":
		return ECCNone, nil
	default:
		return "", fmt.Errorf("%w: unknown memory error correction %q", ErrValidation, s)
	}
}

func (e ErrorCorrection) IsValid() bool {
	switch e {
	case ECCPlain, ECCRegistered, ECCNone:
		return true
	}
	return false
}

func (e ErrorCorrection) String() string { return string(e) }

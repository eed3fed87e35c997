package model

import (
	"fmt"
	"math"
	"reflect"
	"strconv"
	"strings"
)

// LatLng is a datacenter coordinate pair in decimal degrees.
type LatLng struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Validate checks the coordinate ranges.
func (c LatLng) Validate() error {
	if c.Lat < -90 || c.Lat > 90 {
		return fmt.Errorf("%w: latitude %v out of range", ErrValidation, c.Lat)
	}
	if c.Lng < -180 || c.Lng > 180 {
		return fmt.Errorf("%w: longitude %v out of range", ErrValidation, c.Lng)
	}
	return nil
}

// Offering is one compute listing as published by a provider.
//
// Pointer fields and nil slices mean the provider did not state the value;
// that is a different state from an empty string. Key stays stable across
// updates to the same logical offering and is unique only within one
// provider's namespace.
type Offering struct {
	OfferName   string      `json:"offer_name"`
	Description string      `json:"description"`
	Key         OfferingKey `json:"unique_internal_identifier"`

	ProductPageURL string `json:"product_page_url,omitempty"`

	Currency     Currency `json:"currency"`
	MonthlyPrice float64  `json:"monthly_price"`
	SetupFee     float64  `json:"setup_fee"`

	Visibility      Visibility         `json:"visibility"`
	ProductType     ProductType        `json:"product_type"`
	Virtualization  VirtualizationType `json:"virtualization_type"`
	BillingInterval BillingInterval    `json:"billing_interval"`
	Stock           StockStatus        `json:"stock"`

	ProcessorBrand  *string `json:"processor_brand,omitempty"`
	ProcessorAmount *uint32 `json:"processor_amount,omitempty"`
	ProcessorCores  *uint32 `json:"processor_cores,omitempty"`
	ProcessorSpeed  *string `json:"processor_speed,omitempty"`
	ProcessorName   *string `json:"processor_name,omitempty"`

	// MemoryErrorCorrection's zero value means the provider did not state it.
	MemoryErrorCorrection ErrorCorrection `json:"memory_error_correction,omitempty"`
	MemoryType            *string         `json:"memory_type,omitempty"`
	MemoryAmount          *string         `json:"memory_amount,omitempty"`

	HDDAmount        uint32  `json:"hdd_amount,omitempty"`
	TotalHDDCapacity *string `json:"total_hdd_capacity,omitempty"`
	SSDAmount        uint32  `json:"ssd_amount,omitempty"`
	TotalSSDCapacity *string `json:"total_ssd_capacity,omitempty"`

	Unmetered   []string `json:"unmetered,omitempty"`
	UplinkSpeed *string  `json:"uplink_speed,omitempty"`
	Traffic     *uint32  `json:"traffic,omitempty"`

	DatacenterCountry string  `json:"datacenter_country"`
	DatacenterCity    string  `json:"datacenter_city"`
	Coordinates       *LatLng `json:"datacenter_coordinates,omitempty"`

	Features         []string `json:"features,omitempty"`
	OperatingSystems []string `json:"operating_systems,omitempty"`
	ControlPanel     *string  `json:"control_panel,omitempty"`
	GPUName          *string  `json:"gpu_name,omitempty"`
	PaymentMethods   []string `json:"payment_methods,omitempty"`
}

// Validate checks the record's field constraints. It does not look at
// identity beyond the offering key; pubkey validation is the caller's job.
func (o *Offering) Validate() error {
	if o.Key == "" {
		return fmt.Errorf("%w: offering key is empty", ErrValidation)
	}
	if !o.Currency.IsValid() {
		return fmt.Errorf("%w: currency %q", ErrValidation, o.Currency)
	}
	if o.MonthlyPrice < 0 || math.IsNaN(o.MonthlyPrice) || math.IsInf(o.MonthlyPrice, 0) {
		return fmt.Errorf("%w: monthly price %v", ErrValidation, o.MonthlyPrice)
	}
	if o.SetupFee < 0 || math.IsNaN(o.SetupFee) || math.IsInf(o.SetupFee, 0) {
		return fmt.Errorf("%w: setup fee %v", ErrValidation, o.SetupFee)
	}
	if !o.Visibility.IsValid() {
		return fmt.Errorf("%w: visibility %q", ErrValidation, o.Visibility)
	}
	if !o.ProductType.IsValid() {
		return fmt.Errorf("%w: product type %q", ErrValidation, o.ProductType)
	}
	if !o.Virtualization.IsValid() {
		return fmt.Errorf("%w: virtualization type %q", ErrValidation, o.Virtualization)
	}
	if !o.BillingInterval.IsValid() {
		return fmt.Errorf("%w: billing interval %q", ErrValidation, o.BillingInterval)
	}
	if !o.Stock.IsValid() {
		return fmt.Errorf("%w: stock status %q", ErrValidation, o.Stock)
	}
	if o.MemoryErrorCorrection != "" && !o.MemoryErrorCorrection.IsValid() {
		return fmt.Errorf("%w: memory error correction %q", ErrValidation, o.MemoryErrorCorrection)
	}
	if o.DatacenterCountry == "" {
		return fmt.Errorf("%w: datacenter country is empty", ErrValidation)
	}
	if o.Coordinates != nil {
		if err := o.Coordinates.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// Equal reports whether two records carry the same published content.
// Optional fields compare by pointed-to value; nil and empty slices are
// distinct states.
func (o *Offering) Equal(other *Offering) bool {
	if o == nil || other == nil {
		return o == other
	}
	return reflect.DeepEqual(o, other)
}

// Clone returns a deep copy. Stored records are treated as immutable, so
// ingestion clones its input and mutating callers clone before editing.
func (o *Offering) Clone() *Offering {
	if o == nil {
		return nil
	}
	cp := *o
	cp.ProcessorBrand = clonePtr(o.ProcessorBrand)
	cp.ProcessorAmount = clonePtr(o.ProcessorAmount)
	cp.ProcessorCores = clonePtr(o.ProcessorCores)
	cp.ProcessorSpeed = clonePtr(o.ProcessorSpeed)
	cp.ProcessorName = clonePtr(o.ProcessorName)
	cp.MemoryType = clonePtr(o.MemoryType)
	cp.MemoryAmount = clonePtr(o.MemoryAmount)
	cp.TotalHDDCapacity = clonePtr(o.TotalHDDCapacity)
	cp.TotalSSDCapacity = clonePtr(o.TotalSSDCapacity)
	cp.UplinkSpeed = clonePtr(o.UplinkSpeed)
	cp.Traffic = clonePtr(o.Traffic)
	cp.Coordinates = clonePtr(o.Coordinates)
	cp.ControlPanel = clonePtr(o.ControlPanel)
	cp.GPUName = clonePtr(o.GPUName)
	cp.Unmetered = cloneSlice(o.Unmetered)
	cp.Features = cloneSlice(o.Features)
	cp.OperatingSystems = cloneSlice(o.OperatingSystems)
	cp.PaymentMethods = cloneSlice(o.PaymentMethods)
	return &cp
}

// HasGPU reports whether the offering names a GPU.
func (o *Offering) HasGPU() bool {
	return o.GPUName != nil && strings.TrimSpace(*o.GPUName) != ""
}

// MemoryGB parses the free-form memory amount ("64 GB", "2TB") into
// gigabytes. The second return is false when the amount is absent or
// unparseable.
func (o *Offering) MemoryGB() (float64, bool) {
	if o.MemoryAmount == nil {
		return 0, false
	}
	return parseCapacityGB(*o.MemoryAmount)
}

// TotalStorageGB sums the stated HDD and SSD capacities in gigabytes.
// The second return is false when neither capacity is stated.
func (o *Offering) TotalStorageGB() (float64, bool) {
	var total float64
	var any bool
	if o.TotalHDDCapacity != nil {
		if gb, ok := parseCapacityGB(*o.TotalHDDCapacity); ok {
			total += gb
			any = true
		}
	}
	if o.TotalSSDCapacity != nil {
		if gb, ok := parseCapacityGB(*o.TotalSSDCapacity); ok {
			total += gb
			any = true
		}
	}
	return total, any
}

// SearchableText returns the descriptive field values that feed the
// keyword index, in schema order.
func (o *Offering) SearchableText() []string {
	fields := []string{
		o.OfferName,
		o.Description,
		o.DatacenterCountry,
		o.DatacenterCity,
	}
	if o.ProcessorBrand != nil {
		fields = append(fields, *o.ProcessorBrand)
	}
	if o.GPUName != nil {
		fields = append(fields, *o.GPUName)
	}
	fields = append(fields, o.Features...)
	fields = append(fields, o.OperatingSystems...)
	return fields
}

// parseCapacityGB converts capacity strings like "64 GB", "2 TB" or
// "512MB" to gigabytes. A bare number is taken as gigabytes.
func parseCapacityGB(s string) (float64, bool) {
	s = strings.TrimSpace(strings.ToLower(s))
	if s == "" {
		return 0, false
	}
	mult := 1.0
	switch {
	case strings.HasSuffix(s, "tb"):
		mult = 1024
		s = strings.TrimSuffix(s, "tb")
	case strings.HasSuffix(s, "gb"):
		s = strings.TrimSuffix(s, "gb")
	case strings.HasSuffix(s, "mb"):
		mult = 1.0 / 1024
		s = strings.TrimSuffix(s, "mb")
	case strings.HasSuffix(s, "t"):
		mult = 1024
		s = strings.TrimSuffix(s, "t")
	case strings.HasSuffix(s, "g"):
		s = strings.TrimSuffix(s, "g")
	case strings.HasSuffix(s, "m"):
		mult = 1.0 / 1024
		s = strings.TrimSuffix(s, "m")
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || v < 0 {
		return 0, false
	}
	return v * mult, true
}

// Ptr returns a pointer to v. Convenience for filling optional fields.
func Ptr[T any](v T) *T { return &v }

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func cloneSlice[T any](s []T) []T {
	if s == nil {
		return nil
	}
	out := make([]T, len(s))
	copy(out, s)
	return out
}

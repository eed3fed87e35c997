package model

import (
	"fmt"
	"math"
	"strings"
)

// FilterKind names a structured predicate kind.
type FilterKind string

const (
	KindPriceRange     FilterKind = "price_range"
	KindCountry        FilterKind = "country"
	KindCity           FilterKind = "city"
	KindProductType    FilterKind = "product_type"
	KindStock          FilterKind = "stock"
	KindCurrency       FilterKind = "currency"
	KindVirtualization FilterKind = "virtualization"
	KindGPU            FilterKind = "gpu"
	KindMinCores       FilterKind = "min_cores"
	KindMinMemory      FilterKind = "min_memory"
	KindMinStorage     FilterKind = "min_storage"
)

// OfferingFilter is one structured predicate over an offering. The set of
// implementations is closed so the planner can match exhaustively; new
// predicate kinds are added here, not by callers.
type OfferingFilter interface {
	// Kind identifies the predicate kind.
	Kind() FilterKind
	// Matches evaluates the predicate against one record.
	Matches(o *Offering) bool
	// Validate checks the filter operands.
	Validate() error

	sealed()
}

// Filters is a conjunction of predicates: a record matches when every
// element matches. Several filters of the same kind also intersect.
type Filters []OfferingFilter

// Validate checks every element.
func (fs Filters) Validate() error {
	for _, f := range fs {
		if err := f.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// Match reports whether o satisfies all filters.
func (fs Filters) Match(o *Offering) bool {
	for _, f := range fs {
		if !f.Matches(o) {
			return false
		}
	}
	return true
}

// PriceRangeFilter matches offerings priced within [Min, Max] in the given
// currency. Offerings priced in another currency never match; there is no
// cross-currency conversion.
type PriceRangeFilter struct {
	Currency Currency
	Min      float64
	Max      float64
}

func (f PriceRangeFilter) Kind() FilterKind { return KindPriceRange }

func (f PriceRangeFilter) Matches(o *Offering) bool {
	return o.Currency == f.Currency && o.MonthlyPrice >= f.Min && o.MonthlyPrice <= f.Max
}

func (f PriceRangeFilter) Validate() error {
	if !f.Currency.IsValid() {
		return fmt.Errorf("%w: price range currency %q", ErrInvalidQuery, f.Currency)
	}
	if math.IsNaN(f.Min) || math.IsNaN(f.Max) {
		return fmt.Errorf("%w: price range bound is NaN", ErrInvalidQuery)
	}
	if f.Min < 0 {
		return fmt.Errorf("%w: price range min %v is negative", ErrInvalidQuery, f.Min)
	}
	if f.Min > f.Max {
		return fmt.Errorf("%w: price range min %v above max %v", ErrInvalidQuery, f.Min, f.Max)
	}
	return nil
}

func (PriceRangeFilter) sealed() {}

// CountryFilter matches the datacenter country exactly, ignoring case.
type CountryFilter struct {
	Country string
}

func (f CountryFilter) Kind() FilterKind { return KindCountry }

func (f CountryFilter) Matches(o *Offering) bool {
	return strings.EqualFold(o.DatacenterCountry, f.Country)
}

func (f CountryFilter) Validate() error {
	if strings.TrimSpace(f.Country) == "" {
		return fmt.Errorf("%w: country filter is empty", ErrInvalidQuery)
	}
	return nil
}

func (CountryFilter) sealed() {}

// CityFilter matches when the datacenter city contains the given
// substring, ignoring case.
type CityFilter struct {
	City string
}

func (f CityFilter) Kind() FilterKind { return KindCity }

func (f CityFilter) Matches(o *Offering) bool {
	return strings.Contains(strings.ToLower(o.DatacenterCity), strings.ToLower(f.City))
}

func (f CityFilter) Validate() error {
	if strings.TrimSpace(f.City) == "" {
		return fmt.Errorf("%w: city filter is empty", ErrInvalidQuery)
	}
	return nil
}

func (CityFilter) sealed() {}

// ProductTypeFilter matches the product category exactly.
type ProductTypeFilter struct {
	Type ProductType
}

func (f ProductTypeFilter) Kind() FilterKind { return KindProductType }

func (f ProductTypeFilter) Matches(o *Offering) bool {
	return o.ProductType == f.Type
}

func (f ProductTypeFilter) Validate() error {
	if !f.Type.IsValid() {
		return fmt.Errorf("%w: product type filter %q", ErrInvalidQuery, f.Type)
	}
	return nil
}

func (ProductTypeFilter) sealed() {}

// StockFilter matches the availability state exactly.
type StockFilter struct {
	Status StockStatus
}

func (f StockFilter) Kind() FilterKind { return KindStock }

func (f StockFilter) Matches(o *Offering) bool {
	return o.Stock == f.Status
}

func (f StockFilter) Validate() error {
	if !f.Status.IsValid() {
		return fmt.Errorf("%w: stock filter %q", ErrInvalidQuery, f.Status)
	}
	return nil
}

func (StockFilter) sealed() {}

// CurrencyFilter matches the pricing currency exactly.
type CurrencyFilter struct {
	Currency Currency
}

func (f CurrencyFilter) Kind() FilterKind { return KindCurrency }

func (f CurrencyFilter) Matches(o *Offering) bool {
	return o.Currency == f.Currency
}

func (f CurrencyFilter) Validate() error {
	if !f.Currency.IsValid() {
		return fmt.Errorf("%w: currency filter %q", ErrInvalidQuery, f.Currency)
	}
	return nil
}

func (CurrencyFilter) sealed() {}

// VirtualizationFilter matches the hypervisor technology exactly.
type VirtualizationFilter struct {
	Type VirtualizationType
}

func (f VirtualizationFilter) Kind() FilterKind { return KindVirtualization }

func (f VirtualizationFilter) Matches(o *Offering) bool {
	return o.Virtualization == f.Type
}

func (f VirtualizationFilter) Validate() error {
	if !f.Type.IsValid() {
		return fmt.Errorf("%w: virtualization filter %q", ErrInvalidQuery, f.Type)
	}
	return nil
}

func (VirtualizationFilter) sealed() {}

// GPUFilter matches on GPU presence or absence.
type GPUFilter struct {
	Present bool
}

func (f GPUFilter) Kind() FilterKind { return KindGPU }

func (f GPUFilter) Matches(o *Offering) bool {
	return o.HasGPU() == f.Present
}

func (GPUFilter) Validate() error { return nil }

func (GPUFilter) sealed() {}

// MinCoresFilter matches offerings that state at least Cores processor
// cores. Records without a stated core count never match.
type MinCoresFilter struct {
	Cores uint32
}

func (f MinCoresFilter) Kind() FilterKind { return KindMinCores }

func (f MinCoresFilter) Matches(o *Offering) bool {
	return o.ProcessorCores != nil && *o.ProcessorCores >= f.Cores
}

func (MinCoresFilter) Validate() error { return nil }

func (MinCoresFilter) sealed() {}

// MinMemoryFilter matches offerings stating at least GB gigabytes of
// memory. Records with absent or unparseable memory amounts never match.
type MinMemoryFilter struct {
	GB uint32
}

func (f MinMemoryFilter) Kind() FilterKind { return KindMinMemory }

func (f MinMemoryFilter) Matches(o *Offering) bool {
	gb, ok := o.MemoryGB()
	return ok && gb >= float64(f.GB)
}

func (MinMemoryFilter) Validate() error { return nil }

func (MinMemoryFilter) sealed() {}

// MinStorageFilter matches offerings whose combined HDD and SSD capacity
// is at least GB gigabytes. Records stating no capacity never match.
type MinStorageFilter struct {
	GB uint32
}

func (f MinStorageFilter) Kind() FilterKind { return KindMinStorage }

func (f MinStorageFilter) Matches(o *Offering) bool {
	gb, ok := o.TotalStorageGB()
	return ok && gb >= float64(f.GB)
}

func (MinStorageFilter) Validate() error { return nil }

func (MinStorageFilter) sealed() {}

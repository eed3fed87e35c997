package registry

import (
	"strings"

	"github.com/google/btree"

	"offerdex/pkg/model"
)

// priceItem is one btree entry of the price index.
type priceItem struct {
	currency model.Currency
	price    float64
	id       model.OfferingID
}

// priceLess orders items by currency, then price, then identity for
// deterministic iteration when prices collide.
func priceLess(a, b priceItem) bool {
	if a.currency != b.currency {
		return a.currency < b.currency
	}
	if a.price != b.price {
		return a.price < b.price
	}
	return a.id.Compare(b.id) < 0
}

// filterIndex holds the secondary structures behind the structured
// predicates: exact-match buckets for the categorical fields, a presence
// set for GPUs and a btree over (currency, price) for range scans.
//
// The index carries no lock of its own. The registry serializes access.
type filterIndex struct {
	byCountry     map[string]idSet
	byProductType map[model.ProductType]idSet
	byStock       map[model.StockStatus]idSet
	byCurrency    map[model.Currency]idSet
	byVirt        map[model.VirtualizationType]idSet
	withGPU       idSet
	prices        *btree.BTreeG[priceItem]
}

func newFilterIndex() *filterIndex {
	return &filterIndex{
		byCountry:     make(map[string]idSet),
		byProductType: make(map[model.ProductType]idSet),
		byStock:       make(map[model.StockStatus]idSet),
		byCurrency:    make(map[model.Currency]idSet),
		byVirt:        make(map[model.VirtualizationType]idSet),
		withGPU:       make(idSet),
		prices:        btree.NewG[priceItem](32, priceLess),
	}
}

func bucketAdd[K comparable](buckets map[K]idSet, key K, id model.OfferingID) {
	set, ok := buckets[key]
	if !ok {
		set = make(idSet)
		buckets[key] = set
	}
	set[id] = struct{}{}
}

func bucketRemove[K comparable](buckets map[K]idSet, key K, id model.OfferingID) {
	set, ok := buckets[key]
	if !ok {
		return
	}
	delete(set, id)
	if len(set) == 0 {
		delete(buckets, key)
	}
}

// countryBucket normalizes the country for case-insensitive matching.
func countryBucket(country string) string {
	return strings.ToLower(strings.TrimSpace(country))
}

// Insert adds id's field values to every bucket. The caller must not have
// indexed id already; updates go through Remove with the prior record.
func (fi *filterIndex) Insert(id model.OfferingID, o *model.Offering) {
	bucketAdd(fi.byCountry, countryBucket(o.DatacenterCountry), id)
	bucketAdd(fi.byProductType, o.ProductType, id)
	bucketAdd(fi.byStock, o.Stock, id)
	bucketAdd(fi.byCurrency, o.Currency, id)
	bucketAdd(fi.byVirt, o.Virtualization, id)
	if o.HasGPU() {
		fi.withGPU[id] = struct{}{}
	}
	fi.prices.ReplaceOrInsert(priceItem{currency: o.Currency, price: o.MonthlyPrice, id: id})
}

// Remove drops id from every bucket, using the previously indexed record
// to locate its entries.
func (fi *filterIndex) Remove(id model.OfferingID, o *model.Offering) {
	bucketRemove(fi.byCountry, countryBucket(o.DatacenterCountry), id)
	bucketRemove(fi.byProductType, o.ProductType, id)
	bucketRemove(fi.byStock, o.Stock, id)
	bucketRemove(fi.byCurrency, o.Currency, id)
	bucketRemove(fi.byVirt, o.Virtualization, id)
	delete(fi.withGPU, id)
	fi.prices.Delete(priceItem{currency: o.Currency, price: o.MonthlyPrice, id: id})
}

// Country returns the bucket for a country filter, nil when empty.
func (fi *filterIndex) Country(country string) idSet {
	return fi.byCountry[countryBucket(country)]
}

// ProductType returns the bucket for a product type.
func (fi *filterIndex) ProductType(pt model.ProductType) idSet {
	return fi.byProductType[pt]
}

// Stock returns the bucket for a stock status.
func (fi *filterIndex) Stock(s model.StockStatus) idSet {
	return fi.byStock[s]
}

// Currency returns the bucket for a pricing currency.
func (fi *filterIndex) Currency(c model.Currency) idSet {
	return fi.byCurrency[c]
}

// Virtualization returns the bucket for a hypervisor technology.
func (fi *filterIndex) Virtualization(v model.VirtualizationType) idSet {
	return fi.byVirt[v]
}

// WithGPU returns the set of offerings naming a GPU.
func (fi *filterIndex) WithGPU() idSet {
	return fi.withGPU
}

// PriceRange collects the identities priced within [min, max] in the
// given currency via an ordered scan of the price tree.
func (fi *filterIndex) PriceRange(currency model.Currency, min, max float64) idSet {
	result := make(idSet)
	pivot := priceItem{currency: currency, price: min}
	fi.prices.AscendGreaterOrEqual(pivot, func(item priceItem) bool {
		if item.currency != currency || item.price > max {
			return false
		}
		result[item.id] = struct{}{}
		return true
	})
	return result
}

// PriceRangeCount counts the identities a PriceRange scan would return.
func (fi *filterIndex) PriceRangeCount(currency model.Currency, min, max float64) int {
	n := 0
	pivot := priceItem{currency: currency, price: min}
	fi.prices.AscendGreaterOrEqual(pivot, func(item priceItem) bool {
		if item.currency != currency || item.price > max {
			return false
		}
		n++
		return true
	})
	return n
}

// Clear empties every bucket.
func (fi *filterIndex) Clear() {
	fi.byCountry = make(map[string]idSet)
	fi.byProductType = make(map[model.ProductType]idSet)
	fi.byStock = make(map[model.StockStatus]idSet)
	fi.byCurrency = make(map[model.Currency]idSet)
	fi.byVirt = make(map[model.VirtualizationType]idSet)
	fi.withGPU = make(idSet)
	fi.prices.Clear(false)
}

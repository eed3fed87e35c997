// Package generator produces synthetic provider identities and catalogs
// for load runs.
package generator

import (
	"bytes"
	"crypto/ed25519"
	"fmt"
	"math/rand"
	"net/url"
	"strconv"
	"sync/atomic"
	"time"

	"offerdex/internal/identity"
	"offerdex/internal/ledger"
	"offerdex/internal/registry"
	"offerdex/pkg/model"
)

type region struct {
	country string
	city    string
}

var (
	nameAdjectives = []string{"Budget", "Starter", "Performance", "Premium", "Enterprise", "Compact", "Storage"}
	nameNouns      = []string{"VPS", "Cloud Server", "Dedicated Server", "Instance"}
	regions        = []region{
		{"DE", "Frankfurt"},
		{"NL", "Amsterdam"},
		{"FI", "Helsinki"},
		{"FR", "Paris"},
		{"US", "Dallas"},
		{"SG", "Singapore"},
	}
	processorNames = []string{"AMD EPYC 7443P", "AMD Ryzen 9 5950X", "Intel Xeon E-2388G", "Intel Xeon Gold 6326"}
	gpuNames       = []string{"NVIDIA RTX 4000", "NVIDIA A100", "NVIDIA L40S"}
	featurePool    = []string{"DDoS protection", "IPv6", "Snapshots", "Private networking", "Backups"}
	osPool         = []string{"Debian 12", "Ubuntu 24.04", "Rocky Linux 9", "FreeBSD 14"}
	currencies     = []model.Currency{model.CurrencyEUR, model.CurrencyUSD}
	productTypes   = []model.ProductType{model.ProductVPS, model.ProductVPS, model.ProductDedicated, model.ProductCloud}
	stockStates    = []model.StockStatus{model.StockInStock, model.StockInStock, model.StockInStock, model.StockLimited}
)

// CatalogGenerator builds randomized catalogs with stable offering keys,
// so repeated publishes for the same provider update offerings instead
// of replacing them wholesale.
type CatalogGenerator struct {
	keyPrefix string
	size      int
}

// NewCatalogGenerator creates a generator producing catalogs of size
// offerings keyed keyPrefix-001 through keyPrefix-NNN.
func NewCatalogGenerator(keyPrefix string, size int) (*CatalogGenerator, error) {
	if size <= 0 {
		return nil, fmt.Errorf("catalog size must be positive")
	}
	return &CatalogGenerator{keyPrefix: keyPrefix, size: size}, nil
}

// Offering builds one randomized offering under the given key.
func (g *CatalogGenerator) Offering(key model.OfferingKey) *model.Offering {
	reg := regions[rand.Intn(len(regions))]
	product := productTypes[rand.Intn(len(productTypes))]
	cores := uint32(2 << rand.Intn(5))

	o := &model.Offering{
		OfferName:         fmt.Sprintf("%s %s %d", nameAdjectives[rand.Intn(len(nameAdjectives))], nameNouns[rand.Intn(len(nameNouns))], cores),
		Description:       fmt.Sprintf("%d core instance in %s with NVMe storage", cores, reg.city),
		Key:               key,
		Currency:          currencies[rand.Intn(len(currencies))],
		MonthlyPrice:      float64(rand.Intn(19000)+99) / 100,
		Visibility:        model.VisibilityVisible,
		ProductType:       product,
		Virtualization:    model.VirtKVM,
		BillingInterval:   model.BillingMonthly,
		Stock:             stockStates[rand.Intn(len(stockStates))],
		ProcessorCores:    model.Ptr(cores),
		ProcessorName:     model.Ptr(processorNames[rand.Intn(len(processorNames))]),
		MemoryAmount:      model.Ptr(fmt.Sprintf("%d GB", cores*4)),
		SSDAmount:         1,
		TotalSSDCapacity:  model.Ptr(fmt.Sprintf("%d GB", cores*40)),
		DatacenterCountry: reg.country,
		DatacenterCity:    reg.city,
		Features:          []string{featurePool[rand.Intn(len(featurePool))]},
		OperatingSystems:  []string{osPool[rand.Intn(len(osPool))]},
	}
	if product == model.ProductDedicated {
		o.Virtualization = model.VirtNone
	}
	if rand.Intn(5) == 0 {
		o.GPUName = model.Ptr(gpuNames[rand.Intn(len(gpuNames))])
	}
	return o
}

// Catalog builds a full catalog. Keys are the same on every call; the
// field values are rolled fresh.
func (g *CatalogGenerator) Catalog() []*model.Offering {
	offerings := make([]*model.Offering, g.size)
	for i := range offerings {
		offerings[i] = g.Offering(fmt.Sprintf("%s%03d", g.keyPrefix, i+1))
	}
	return offerings
}

// CatalogCSV builds a catalog and renders it to the CSV wire form used
// in ledger record payloads. The second return lists the catalog's keys.
func (g *CatalogGenerator) CatalogCSV() ([]byte, []model.OfferingKey, error) {
	offerings := g.Catalog()
	var buf bytes.Buffer
	if err := registry.WriteCatalogCSV(&buf, offerings); err != nil {
		return nil, nil, fmt.Errorf("rendering catalog CSV: %w", err)
	}
	keys := make([]model.OfferingKey, len(offerings))
	for i, o := range offerings {
		keys[i] = o.Key
	}
	return buf.Bytes(), keys, nil
}

// Query builds a randomized search query that matches the kind of data
// this generator publishes.
func (g *CatalogGenerator) Query() url.Values {
	params := url.Values{}
	switch rand.Intn(5) {
	case 0:
		reg := regions[rand.Intn(len(regions))]
		params.Set("country", reg.country)
	case 1:
		params.Set("product_type", string(productTypes[rand.Intn(len(productTypes))]))
	case 2:
		params.Set("q", nameAdjectives[rand.Intn(len(nameAdjectives))])
	case 3:
		params.Set("currency", string(currencies[rand.Intn(len(currencies))]))
		params.Set("price_max", strconv.Itoa(rand.Intn(150)+20))
	case 4:
		params.Set("min_cores", strconv.Itoa(2<<rand.Intn(4)))
	}
	if rand.Intn(3) == 0 {
		params.Set("stock", string(model.StockInStock))
	}
	params.Set("limit", "25")
	return params
}

// Provider is one generated identity with its signing key and a
// monotonic record sequence.
type Provider struct {
	Pubkey model.ProviderPubkey

	priv ed25519.PrivateKey
	seq  atomic.Uint64
}

// SignedRecord wraps the payload in a signed ledger record with the
// next sequence number.
func (p *Provider) SignedRecord(payload []byte) (ledger.Record, error) {
	rec := ledger.NewRecord(p.Pubkey, payload)
	rec.Seq = p.seq.Add(1)
	if err := rec.Sign(p.priv); err != nil {
		return ledger.Record{}, fmt.Errorf("signing record: %w", err)
	}
	return rec, nil
}

// ProviderPool is a fixed set of generated provider identities.
type ProviderPool struct {
	providers []*Provider
}

// NewProviderPool generates n fresh keypairs. Sequence counters start
// at the current clock so records outrank anything a previous run with
// the default clock seeding left on the node.
func NewProviderPool(n int) (*ProviderPool, error) {
	if n <= 0 {
		return nil, fmt.Errorf("provider pool size must be positive")
	}
	providers := make([]*Provider, n)
	base := uint64(time.Now().UnixNano())
	for i := range providers {
		pubkey, priv, err := identity.GenerateKeyPair()
		if err != nil {
			return nil, fmt.Errorf("generating provider %d: %w", i, err)
		}
		p := &Provider{Pubkey: pubkey, priv: priv}
		p.seq.Store(base)
		providers[i] = p
	}
	return &ProviderPool{providers: providers}, nil
}

// Random returns a uniformly picked provider.
func (p *ProviderPool) Random() *Provider {
	return p.providers[rand.Intn(len(p.providers))]
}

// All returns every provider in the pool.
func (p *ProviderPool) All() []*Provider {
	return p.providers
}

// Size returns the pool size.
func (p *ProviderPool) Size() int {
	return len(p.providers)
}

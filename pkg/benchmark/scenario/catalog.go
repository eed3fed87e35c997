// Package scenario turns a load test configuration into a stream of
// executable operations.
package scenario

import (
	"context"
	"fmt"
	"math/rand"
	"sync"

	"offerdex/internal/ledger"
	"offerdex/pkg/benchmark/generator"
	"offerdex/pkg/benchmark/types"
	"offerdex/pkg/model"
)

// CatalogScenario drives a weighted mix of catalog reads and signed
// writes from a pool of generated provider identities.
type CatalogScenario struct {
	config      *types.Config
	gen         *generator.CatalogGenerator
	pool        *generator.ProviderPool
	totalWeight int

	// live tracks which keys each provider currently has published.
	// Registration happens when an operation is issued, not when it
	// lands, so a read racing a fresh publish can briefly miss.
	mu    sync.Mutex
	live  map[model.ProviderPubkey][]model.OfferingKey
	total int
}

// NewCatalogScenario creates the scenario, including the provider
// identity pool it publishes as.
func NewCatalogScenario(cfg *types.Config) (*CatalogScenario, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}

	gen, err := generator.NewCatalogGenerator(cfg.Data.KeyPrefix, cfg.Data.CatalogSize)
	if err != nil {
		return nil, fmt.Errorf("creating catalog generator: %w", err)
	}

	pool, err := generator.NewProviderPool(cfg.Data.Providers)
	if err != nil {
		return nil, fmt.Errorf("creating provider pool: %w", err)
	}

	totalWeight := 0
	for _, op := range cfg.Scenario.Operations {
		totalWeight += op.Weight
	}
	if totalWeight <= 0 {
		return nil, fmt.Errorf("total operation weight must be positive")
	}

	return &CatalogScenario{
		config:      cfg,
		gen:         gen,
		pool:        pool,
		totalWeight: totalWeight,
		live:        make(map[model.ProviderPubkey][]model.OfferingKey),
	}, nil
}

// Name returns the scenario identifier.
func (s *CatalogScenario) Name() string {
	return "catalog"
}

// Setup publishes the configured number of seed catalogs so read-heavy
// mixes start against populated state.
func (s *CatalogScenario) Setup(ctx context.Context, env *types.TestEnv) error {
	providers := s.pool.All()
	for i := 0; i < s.config.Data.Seed; i++ {
		provider := providers[i%len(providers)]
		rec, keys, err := s.signedCatalog(provider)
		if err != nil {
			return fmt.Errorf("building seed catalog %d: %w", i, err)
		}
		if _, err := env.Client.PublishCatalog(ctx, rec); err != nil {
			return fmt.Errorf("publishing seed catalog %d: %w", i, err)
		}
		s.registerKeys(provider.Pubkey, keys)
	}
	return nil
}

// NextOperation returns the next weighted operation. Reads that need
// published data fall back to a publish while nothing is live yet.
func (s *CatalogScenario) NextOperation() (types.Operation, error) {
	switch s.pickOperation() {
	case types.OpSearch:
		return NewSearchOperation(s.gen.Query()), nil

	case types.OpGet:
		if provider, key, ok := s.randomLive(); ok {
			return NewGetOperation(provider, key), nil
		}
		return s.publishOperation()

	case types.OpList:
		return NewListOperation(s.pool.Random().Pubkey), nil

	case types.OpPublish:
		return s.publishOperation()

	case types.OpWithdraw:
		if provider, key, ok := s.takeLive(); ok {
			return NewWithdrawOperation(provider, key), nil
		}
		return s.publishOperation()
	}

	return nil, fmt.Errorf("no operation selectable")
}

// Teardown withdraws every pool provider's catalog unless the
// configuration keeps the data around for inspection.
func (s *CatalogScenario) Teardown(ctx context.Context, env *types.TestEnv) error {
	if s.config.Data.KeepData {
		return nil
	}
	for _, provider := range s.pool.All() {
		// An unreachable node just keeps its test data.
		_, _ = env.Client.WithdrawProvider(ctx, provider.Pubkey)
	}

	s.mu.Lock()
	s.live = make(map[model.ProviderPubkey][]model.OfferingKey)
	s.total = 0
	s.mu.Unlock()
	return nil
}

// pickOperation selects an operation type by configured weight.
func (s *CatalogScenario) pickOperation() string {
	r := rand.Intn(s.totalWeight)
	cumulative := 0
	for _, op := range s.config.Scenario.Operations {
		cumulative += op.Weight
		if r < cumulative {
			return op.Type
		}
	}
	return types.OpSearch
}

// publishOperation signs a fresh catalog for a random pool provider.
func (s *CatalogScenario) publishOperation() (types.Operation, error) {
	provider := s.pool.Random()
	rec, keys, err := s.signedCatalog(provider)
	if err != nil {
		return nil, err
	}
	s.registerKeys(provider.Pubkey, keys)
	return NewPublishOperation(rec), nil
}

func (s *CatalogScenario) signedCatalog(provider *generator.Provider) (ledger.Record, []model.OfferingKey, error) {
	payload, keys, err := s.gen.CatalogCSV()
	if err != nil {
		return ledger.Record{}, nil, err
	}
	rec, err := provider.SignedRecord(payload)
	if err != nil {
		return ledger.Record{}, nil, err
	}
	return rec, keys, nil
}

// registerKeys replaces the provider's live key set. Publishes carry
// the full catalog, so the old set is gone either way.
func (s *CatalogScenario) registerKeys(provider model.ProviderPubkey, keys []model.OfferingKey) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.total += len(keys) - len(s.live[provider])
	s.live[provider] = keys
}

// randomLive picks a uniformly random live (provider, key) pair.
func (s *CatalogScenario) randomLive() (model.ProviderPubkey, model.OfferingKey, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.total == 0 {
		return model.ProviderPubkey{}, "", false
	}
	r := rand.Intn(s.total)
	for provider, keys := range s.live {
		if r < len(keys) {
			return provider, keys[r], true
		}
		r -= len(keys)
	}
	return model.ProviderPubkey{}, "", false
}

// takeLive removes and returns a random live pair, so a withdraw is
// only issued once per key.
func (s *CatalogScenario) takeLive() (model.ProviderPubkey, model.OfferingKey, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.total == 0 {
		return model.ProviderPubkey{}, "", false
	}
	r := rand.Intn(s.total)
	for provider, keys := range s.live {
		if r < len(keys) {
			key := keys[r]
			keys[r] = keys[len(keys)-1]
			s.live[provider] = keys[:len(keys)-1]
			s.total--
			return provider, key, true
		}
		r -= len(keys)
	}
	return model.ProviderPubkey{}, "", false
}

// LiveKeys reports how many published keys the scenario is tracking.
func (s *CatalogScenario) LiveKeys() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.total
}

package runner

import (
	"context"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"offerdex/internal/ledger"
	"offerdex/pkg/benchmark/types"
	"offerdex/pkg/model"
)

// mockOperation sleeps for its delay and reports success.
type mockOperation struct {
	opType string
	delay  time.Duration
}

func (o *mockOperation) Type() string { return o.opType }

func (o *mockOperation) Execute(ctx context.Context, c types.Client) (*types.OperationResult, error) {
	start := time.Now()
	if o.delay > 0 {
		select {
		case <-ctx.Done():
		case <-time.After(o.delay):
		}
	}
	return &types.OperationResult{
		OperationType: o.opType,
		StartTime:     start,
		Duration:      time.Since(start),
		Success:       true,
		StatusCode:    200,
	}, nil
}

// mockScenario hands out mock operations and tracks lifecycle calls.
type mockScenario struct {
	opDelay  time.Duration
	noWork   bool
	setupErr error

	setup    atomic.Bool
	teardown atomic.Bool
	issued   atomic.Int64
}

func (s *mockScenario) Name() string { return "mock" }

func (s *mockScenario) Setup(ctx context.Context, env *types.TestEnv) error {
	s.setup.Store(true)
	return s.setupErr
}

func (s *mockScenario) NextOperation() (types.Operation, error) {
	if s.noWork {
		return nil, nil
	}
	s.issued.Add(1)
	return &mockOperation{opType: types.OpSearch, delay: s.opDelay}, nil
}

func (s *mockScenario) Teardown(ctx context.Context, env *types.TestEnv) error {
	s.teardown.Store(true)
	return nil
}

// mockCollector counts records and resets.
type mockCollector struct {
	records atomic.Int64
	resets  atomic.Int64
}

func (c *mockCollector) RecordOperation(result *types.OperationResult) {
	if result != nil {
		c.records.Add(1)
	}
}

func (c *mockCollector) Metrics() *types.AggregatedMetrics {
	return &types.AggregatedMetrics{TotalOperations: c.records.Load()}
}

func (c *mockCollector) OperationMetrics() map[string]*types.AggregatedMetrics {
	return map[string]*types.AggregatedMetrics{}
}

func (c *mockCollector) Reset() {
	c.resets.Add(1)
	c.records.Store(0)
}

// mockClient tracks Close without any network.
type mockClient struct {
	closed atomic.Bool
}

func (c *mockClient) Search(ctx context.Context, params url.Values) (*model.PagedResult, error) {
	return &model.PagedResult{}, nil
}

func (c *mockClient) GetOffering(ctx context.Context, provider model.ProviderPubkey, key model.OfferingKey) (*model.Offering, error) {
	return &model.Offering{Key: key}, nil
}

func (c *mockClient) ListProvider(ctx context.Context, provider model.ProviderPubkey) (int, error) {
	return 0, nil
}

func (c *mockClient) PublishCatalog(ctx context.Context, rec ledger.Record) (int, error) {
	return 0, nil
}

func (c *mockClient) WithdrawOffering(ctx context.Context, provider model.ProviderPubkey, key model.OfferingKey) error {
	return nil
}

func (c *mockClient) WithdrawProvider(ctx context.Context, provider model.ProviderPubkey) (int, error) {
	return 0, nil
}

func (c *mockClient) Close() error {
	c.closed.Store(true)
	return nil
}

func runConfig(duration, warmup time.Duration, workers int) *types.Config {
	return &types.Config{
		Name:     "unit",
		Target:   "http://localhost:8080",
		Duration: model.Duration(duration),
		Warmup:   model.Duration(warmup),
		Workers:  workers,
	}
}

func newTestRunner(t *testing.T, scenario types.Scenario, collector types.MetricsCollector, cfg *types.Config) *Runner {
	t.Helper()
	r := New()
	r.SetScenario(scenario)
	r.SetMetricsCollector(collector)
	require.NoError(t, r.Initialize(context.Background(), cfg))
	t.Cleanup(func() { _ = r.Cleanup(context.Background()) })
	return r
}

func TestNew(t *testing.T) {
	assert.NotNil(t, New())
}

func TestInitialize(t *testing.T) {
	cfg := runConfig(time.Second, 0, 1)

	r := New()
	err := r.Initialize(context.Background(), cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no scenario attached")

	r.SetScenario(&mockScenario{})
	err = r.Initialize(context.Background(), cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no metrics collector attached")

	r.SetMetricsCollector(&mockCollector{})
	err = r.Initialize(context.Background(), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config cannot be nil")

	err = r.Initialize(context.Background(), &types.Config{Name: "bad"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "creating HTTP client")

	require.NoError(t, r.Initialize(context.Background(), cfg))
}

func TestRunNotInitialized(t *testing.T) {
	r := New()
	_, err := r.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not initialized")
}

func TestRun(t *testing.T) {
	scenario := &mockScenario{opDelay: time.Millisecond}
	collector := &mockCollector{}
	r := newTestRunner(t, scenario, collector, runConfig(100*time.Millisecond, 0, 2))

	result, err := r.Run(context.Background())
	require.NoError(t, err)
	require.NotNil(t, result)

	assert.NotEmpty(t, result.RunID)
	assert.Equal(t, "unit", result.Name)
	assert.Equal(t, "http://localhost:8080", result.Target)
	assert.True(t, scenario.setup.Load())
	assert.True(t, scenario.teardown.Load())
	assert.Positive(t, collector.records.Load())
	assert.Positive(t, result.Duration)
	assert.Len(t, r.Workers(), 2)

	var completed int64
	for _, w := range r.Workers() {
		completed += w.Completed()
	}
	assert.Positive(t, completed)
}

func TestRunSetupFails(t *testing.T) {
	scenario := &mockScenario{setupErr: assert.AnError}
	r := newTestRunner(t, scenario, &mockCollector{}, runConfig(50*time.Millisecond, 0, 1))

	_, err := r.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "scenario setup failed")
}

func TestRunWarmupResetsMetrics(t *testing.T) {
	collector := &mockCollector{}
	scenario := &mockScenario{opDelay: time.Millisecond}
	r := newTestRunner(t, scenario, collector, runConfig(50*time.Millisecond, 30*time.Millisecond, 2))

	result, err := r.Run(context.Background())
	require.NoError(t, err)
	require.NotNil(t, result)

	assert.Equal(t, int64(1), collector.resets.Load())
	// The measured window excludes warmup.
	assert.Less(t, result.Duration, 0.08)
}

func TestRunContextCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	r := newTestRunner(t, &mockScenario{}, &mockCollector{}, runConfig(time.Minute, 0, 1))

	result, err := r.Run(ctx)
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.Less(t, result.Duration, 1.0)
}

func TestCleanup(t *testing.T) {
	r := New()
	r.SetScenario(&mockScenario{})
	r.SetMetricsCollector(&mockCollector{})
	require.NoError(t, r.Initialize(context.Background(), runConfig(time.Second, 0, 1)))

	mc := &mockClient{}
	r.client = mc

	require.NoError(t, r.Cleanup(context.Background()))
	assert.True(t, mc.closed.Load())
	assert.Nil(t, r.client)
	assert.Nil(t, r.config)
	assert.Nil(t, r.Workers())
}

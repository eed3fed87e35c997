// Package runner executes load test runs against a node.
package runner

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"offerdex/pkg/benchmark/client"
	"offerdex/pkg/benchmark/types"
)

// Runner owns one run: it fans the scenario out over a worker pool,
// discards the warmup window and assembles the result.
type Runner struct {
	mu       sync.RWMutex
	config   *types.Config
	client   types.Client
	scenario types.Scenario
	metrics  types.MetricsCollector
	workers  []*Worker
}

// New creates an empty runner. Scenario and collector are attached
// before Initialize.
func New() *Runner {
	return &Runner{}
}

// SetScenario attaches the scenario to run.
func (r *Runner) SetScenario(scenario types.Scenario) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.scenario = scenario
}

// SetMetricsCollector attaches the metrics collector.
func (r *Runner) SetMetricsCollector(collector types.MetricsCollector) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.metrics = collector
}

// Initialize validates the wiring and connects the client.
func (r *Runner) Initialize(ctx context.Context, cfg *types.Config) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if cfg == nil {
		return fmt.Errorf("config cannot be nil")
	}
	if r.scenario == nil {
		return fmt.Errorf("no scenario attached")
	}
	if r.metrics == nil {
		return fmt.Errorf("no metrics collector attached")
	}

	httpClient, err := client.NewHTTPClient(cfg.Target, cfg.Token)
	if err != nil {
		return fmt.Errorf("creating HTTP client: %w", err)
	}

	r.config = cfg
	r.client = httpClient
	return nil
}

// Run executes the scenario for warmup plus duration and returns the
// aggregated result. It blocks until every worker has drained.
func (r *Runner) Run(ctx context.Context) (*types.Result, error) {
	r.mu.RLock()
	cfg := r.config
	cli := r.client
	scenario := r.scenario
	metrics := r.metrics
	r.mu.RUnlock()

	if cfg == nil {
		return nil, fmt.Errorf("runner not initialized")
	}

	env := &types.TestEnv{
		Client:  cli,
		Config:  cfg,
		BaseURL: cfg.Target,
		Token:   cfg.Token,
	}

	if err := scenario.Setup(ctx, env); err != nil {
		return nil, fmt.Errorf("scenario setup failed: %w", err)
	}

	warmup := cfg.Warmup.Std()
	runCtx, cancel := context.WithTimeout(ctx, warmup+cfg.Duration.Std())
	defer cancel()

	workers := make([]*Worker, cfg.Workers)
	var wg sync.WaitGroup
	for i := range workers {
		workers[i] = NewWorker(i, cli, scenario, metrics)
		wg.Add(1)
		go func(w *Worker) {
			defer wg.Done()
			w.Run(runCtx)
		}(workers[i])
	}
	r.mu.Lock()
	r.workers = workers
	r.mu.Unlock()

	startTime := time.Now()
	if warmup > 0 {
		select {
		case <-time.After(warmup):
			// The measured window starts now; warmup traffic is gone.
			metrics.Reset()
			startTime = time.Now()
		case <-runCtx.Done():
		}
	}

	wg.Wait()
	endTime := time.Now()

	// Teardown runs on the parent context; the run context has expired
	// by now. It is best-effort, the measured numbers matter more than
	// cleanup.
	_ = scenario.Teardown(ctx, env)

	result := &types.Result{
		RunID:      uuid.NewString(),
		Name:       cfg.Name,
		Target:     cfg.Target,
		StartTime:  startTime,
		EndTime:    endTime,
		Duration:   endTime.Sub(startTime).Seconds(),
		Config:     cfg,
		Summary:    metrics.Metrics(),
		Operations: metrics.OperationMetrics(),
	}
	return result, nil
}

// Cleanup releases the client and detaches the run state.
func (r *Runner) Cleanup(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var err error
	if r.client != nil {
		err = r.client.Close()
	}

	r.config = nil
	r.client = nil
	r.scenario = nil
	r.metrics = nil
	r.workers = nil
	return err
}

// Workers returns the pool from the most recent run.
func (r *Runner) Workers() []*Worker {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.workers
}

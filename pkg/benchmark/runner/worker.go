package runner

import (
	"context"
	"time"

	"offerdex/pkg/benchmark/types"
)

// Worker pulls operations from the scenario and executes them until its
// context is canceled.
type Worker struct {
	id       int
	client   types.Client
	scenario types.Scenario
	metrics  types.MetricsCollector

	completed int64
}

// NewWorker creates a worker bound to the run's client, scenario and
// collector.
func NewWorker(id int, client types.Client, scenario types.Scenario, metrics types.MetricsCollector) *Worker {
	return &Worker{
		id:       id,
		client:   client,
		scenario: scenario,
		metrics:  metrics,
	}
}

// Run executes operations back to back until ctx is done.
func (w *Worker) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		op, err := w.scenario.NextOperation()
		if err != nil || op == nil {
			// A scenario that cannot produce work right now gets a
			// beat before the next attempt instead of a hot loop.
			select {
			case <-ctx.Done():
				return
			case <-time.After(100 * time.Millisecond):
			}
			continue
		}

		result, _ := op.Execute(ctx, w.client)
		if ctx.Err() != nil {
			// Cut off mid-flight by shutdown; not a real failure.
			return
		}
		if result != nil {
			w.metrics.RecordOperation(result)
			w.completed++
		}
	}
}

// ID returns the worker identifier.
func (w *Worker) ID() int {
	return w.id
}

// Completed returns how many operations the worker recorded. Only
// meaningful after Run returned.
func (w *Worker) Completed() int64 {
	return w.completed
}

// Package types defines the shared types and interfaces of the offerdex
// load generator.
package types

import (
	"context"
	"net/url"
	"time"

	"offerdex/internal/ledger"
	"offerdex/pkg/model"
)

// Operation names used in scenario configs and as metrics keys.
const (
	OpSearch   = "search"
	OpGet      = "get"
	OpList     = "list"
	OpPublish  = "publish"
	OpWithdraw = "withdraw"
)

// Config holds the complete load test configuration.
type Config struct {
	Name   string `json:"name" yaml:"name"`
	Target string `json:"target" yaml:"target"`

	// Duration is the measured part of the run. Warmup runs first and
	// whatever it records is discarded, so the total wall time is
	// Warmup + Duration.
	Duration model.Duration `json:"duration" yaml:"duration"`
	Warmup   model.Duration `json:"warmup" yaml:"warmup"`
	Workers  int            `json:"workers" yaml:"workers"`

	// Token is an operator bearer token for nodes that protect their
	// mutating routes. Reads work without one.
	Token string `json:"-" yaml:"token"`

	Scenario ScenarioConfig `json:"scenario" yaml:"scenario"`
	Data     DataConfig     `json:"data" yaml:"data"`
	Metrics  MetricsConfig  `json:"metrics" yaml:"metrics"`
	Output   OutputConfig   `json:"output" yaml:"output"`
}

// ScenarioConfig selects the traffic shape.
type ScenarioConfig struct {
	Type       string            `json:"type" yaml:"type"`
	Operations []OperationConfig `json:"operations" yaml:"operations"`
}

// OperationConfig weights one operation type within the mix.
type OperationConfig struct {
	Type   string `json:"type" yaml:"type"`
	Weight int    `json:"weight" yaml:"weight"`
}

// DataConfig shapes the generated provider identities and catalogs.
type DataConfig struct {
	// Providers is the size of the generated identity pool. Every
	// publish signs as one of these providers.
	Providers int `json:"providers" yaml:"providers"`

	// CatalogSize is the number of offerings per published catalog.
	CatalogSize int `json:"catalogSize" yaml:"catalog_size"`

	// KeyPrefix namespaces the generated offering keys so test data is
	// recognizable in a shared node.
	KeyPrefix string `json:"keyPrefix" yaml:"key_prefix"`

	// Seed is the number of catalogs published before the measured run
	// starts, so read-heavy mixes have something to read.
	Seed int `json:"seed" yaml:"seed"`

	// KeepData skips the teardown withdraw of the generated providers.
	KeepData bool `json:"keepData" yaml:"keep_data"`
}

// MetricsConfig holds metrics collection configuration.
type MetricsConfig struct {
	Interval model.Duration `json:"interval" yaml:"interval"`
}

// OutputConfig holds result output configuration.
type OutputConfig struct {
	// File receives the full result as JSON when set.
	File string `json:"file" yaml:"file"`

	// JSON prints the result as JSON instead of the console summary.
	JSON bool `json:"json" yaml:"json"`
}

// Result holds the complete load test result.
type Result struct {
	RunID     string    `json:"run_id"`
	Name      string    `json:"name"`
	Target    string    `json:"target"`
	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"`
	Duration  float64   `json:"duration_seconds"`

	Config *Config `json:"config"`

	Summary *AggregatedMetrics `json:"summary"`

	// Operations breaks the summary down per operation type.
	Operations map[string]*AggregatedMetrics `json:"operations"`
}

// OperationResult is the outcome of a single executed operation.
type OperationResult struct {
	OperationType string
	StartTime     time.Time
	Duration      time.Duration
	Success       bool
	Error         error
	StatusCode    int
}

// AggregatedMetrics holds aggregated statistics over many operations.
type AggregatedMetrics struct {
	TotalOperations int64   `json:"total_operations"`
	TotalErrors     int64   `json:"total_errors"`
	SuccessRate     float64 `json:"success_rate"`

	// Throughput is in operations per second.
	Throughput float64 `json:"throughput"`

	Latency LatencyStats `json:"latency"`

	ErrorsByType map[string]int64 `json:"errors_by_type,omitempty"`
}

// LatencyStats holds latency statistics in milliseconds. An in-memory
// registry answers well under a millisecond, so these are fractional.
type LatencyStats struct {
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
	Mean   float64 `json:"mean"`
	Median float64 `json:"median"`
	P90    float64 `json:"p90"`
	P95    float64 `json:"p95"`
	P99    float64 `json:"p99"`
}

// TestEnv gives scenarios access to the target node during setup and
// teardown.
type TestEnv struct {
	Client  Client
	Config  *Config
	BaseURL string
	Token   string
}

// Scenario produces the operation stream for a run.
type Scenario interface {
	// Name returns the scenario identifier.
	Name() string

	// Setup prepares scenario prerequisites, e.g. seed catalogs.
	Setup(ctx context.Context, env *TestEnv) error

	// NextOperation returns the next operation to execute. It is called
	// concurrently from every worker.
	NextOperation() (Operation, error)

	// Teardown cleans up whatever the scenario published.
	Teardown(ctx context.Context, env *TestEnv) error
}

// Operation is a single executable unit of load.
type Operation interface {
	// Type returns the operation name, one of the Op constants.
	Type() string

	// Execute performs the operation. The returned result is non-nil
	// whenever the operation ran, including failures.
	Execute(ctx context.Context, client Client) (*OperationResult, error)
}

// Client abstracts the node API the load generator drives.
type Client interface {
	Search(ctx context.Context, params url.Values) (*model.PagedResult, error)
	GetOffering(ctx context.Context, provider model.ProviderPubkey, key model.OfferingKey) (*model.Offering, error)
	ListProvider(ctx context.Context, provider model.ProviderPubkey) (int, error)
	PublishCatalog(ctx context.Context, rec ledger.Record) (int, error)
	WithdrawOffering(ctx context.Context, provider model.ProviderPubkey, key model.OfferingKey) error
	WithdrawProvider(ctx context.Context, provider model.ProviderPubkey) (int, error)

	// Close releases client resources.
	Close() error
}

// MetricsCollector aggregates operation results during a run.
type MetricsCollector interface {
	// RecordOperation folds one result into the aggregates.
	RecordOperation(result *OperationResult)

	// Metrics returns the current aggregates.
	Metrics() *AggregatedMetrics

	// OperationMetrics returns the aggregates broken down per
	// operation type.
	OperationMetrics() map[string]*AggregatedMetrics

	// Reset discards everything recorded so far.
	Reset()
}

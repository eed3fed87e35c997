// Package config loads and validates load test configurations.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"offerdex/pkg/benchmark/types"
	"offerdex/pkg/model"
)

// ScenarioCatalog is the only scenario type currently implemented: a
// weighted mix of catalog reads and signed writes.
const ScenarioCatalog = "catalog"

// Default returns a ready-to-run configuration against a local node.
func Default() *types.Config {
	cfg := &types.Config{Name: "adhoc"}
	applyDefaults(cfg)
	return cfg
}

// Load reads a YAML configuration file, fills in defaults and
// validates the result.
func Load(path string) (*types.Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	var cfg types.Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

func applyDefaults(cfg *types.Config) {
	if cfg.Target == "" {
		cfg.Target = "http://localhost:8080"
	}
	if cfg.Duration == 0 {
		cfg.Duration = model.Duration(time.Minute)
	}
	if cfg.Workers == 0 {
		cfg.Workers = 8
	}

	if cfg.Scenario.Type == "" {
		cfg.Scenario.Type = ScenarioCatalog
	}
	if len(cfg.Scenario.Operations) == 0 {
		// Read-heavy mix with enough write churn to keep the catalogs
		// moving.
		cfg.Scenario.Operations = []types.OperationConfig{
			{Type: types.OpSearch, Weight: 60},
			{Type: types.OpGet, Weight: 20},
			{Type: types.OpList, Weight: 5},
			{Type: types.OpPublish, Weight: 10},
			{Type: types.OpWithdraw, Weight: 5},
		}
	}

	if cfg.Data.Providers == 0 {
		cfg.Data.Providers = 5
	}
	if cfg.Data.CatalogSize == 0 {
		cfg.Data.CatalogSize = 20
	}
	if cfg.Data.KeyPrefix == "" {
		cfg.Data.KeyPrefix = "bench-"
	}

	if cfg.Metrics.Interval == 0 {
		cfg.Metrics.Interval = model.Duration(5 * time.Second)
	}
}

var validOperations = map[string]bool{
	types.OpSearch:   true,
	types.OpGet:      true,
	types.OpList:     true,
	types.OpPublish:  true,
	types.OpWithdraw: true,
}

// Validate checks the configuration for values a run cannot work with.
func Validate(cfg *types.Config) error {
	if cfg.Name == "" {
		return fmt.Errorf("name is required")
	}
	if cfg.Target == "" {
		return fmt.Errorf("target URL is required")
	}
	if cfg.Duration <= 0 {
		return fmt.Errorf("duration must be positive")
	}
	if cfg.Warmup < 0 {
		return fmt.Errorf("warmup must not be negative")
	}
	if cfg.Workers <= 0 {
		return fmt.Errorf("workers must be positive")
	}
	if cfg.Workers > 1000 {
		return fmt.Errorf("workers must not exceed 1000")
	}

	if cfg.Scenario.Type != ScenarioCatalog {
		return fmt.Errorf("unknown scenario type %q", cfg.Scenario.Type)
	}
	if len(cfg.Scenario.Operations) == 0 {
		return fmt.Errorf("at least one operation is required")
	}

	totalWeight := 0
	for i, op := range cfg.Scenario.Operations {
		if !validOperations[op.Type] {
			return fmt.Errorf("operation[%d]: unknown type %q", i, op.Type)
		}
		if op.Weight < 0 {
			return fmt.Errorf("operation[%d]: weight must not be negative", i)
		}
		totalWeight += op.Weight
	}
	if totalWeight == 0 {
		return fmt.Errorf("total operation weight must be positive")
	}

	if cfg.Data.Providers <= 0 {
		return fmt.Errorf("data.providers must be positive")
	}
	if cfg.Data.CatalogSize <= 0 {
		return fmt.Errorf("data.catalog_size must be positive")
	}
	if cfg.Data.Seed < 0 {
		return fmt.Errorf("data.seed must not be negative")
	}

	return nil
}

// Package main is the load generator CLI for an offerdex node.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"offerdex/pkg/benchmark/config"
	"offerdex/pkg/benchmark/metrics"
	"offerdex/pkg/benchmark/reporter"
	"offerdex/pkg/benchmark/runner"
	"offerdex/pkg/benchmark/scenario"
	"offerdex/pkg/benchmark/types"
	"offerdex/pkg/model"
)

// Version is overridden at build time.
var Version = "dev"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	command := os.Args[1]

	switch command {
	case "run":
		if err := runLoadTest(os.Args[2:]); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	case "version":
		fmt.Printf("offerdex-bench version %s\n", Version)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
}

func runLoadTest(args []string) error {
	configFile := ""
	target := ""
	duration := ""
	workers := 0
	token := ""
	jsonOut := false
	noColor := false

	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "-c", "--config":
			if i+1 >= len(args) {
				return fmt.Errorf("missing value for %s", args[i])
			}
			configFile = args[i+1]
			i++
		case "-t", "--target":
			if i+1 >= len(args) {
				return fmt.Errorf("missing value for %s", args[i])
			}
			target = args[i+1]
			i++
		case "-d", "--duration":
			if i+1 >= len(args) {
				return fmt.Errorf("missing value for %s", args[i])
			}
			duration = args[i+1]
			i++
		case "-w", "--workers":
			if i+1 >= len(args) {
				return fmt.Errorf("missing value for %s", args[i])
			}
			if _, err := fmt.Sscanf(args[i+1], "%d", &workers); err != nil {
				return fmt.Errorf("invalid worker count %q", args[i+1])
			}
			i++
		case "--token":
			if i+1 >= len(args) {
				return fmt.Errorf("missing value for %s", args[i])
			}
			token = args[i+1]
			i++
		case "--json":
			jsonOut = true
		case "--no-color":
			noColor = true
		case "-h", "--help":
			printRunUsage()
			return nil
		default:
			return fmt.Errorf("unknown flag: %s", args[i])
		}
	}

	var cfg *types.Config
	var err error
	if configFile != "" {
		cfg, err = config.Load(configFile)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
	} else {
		cfg = config.Default()
	}

	// Flags beat the environment, the environment beats the file.
	if target == "" {
		target = os.Getenv("OFFERDEX_ADDR")
	}
	if target != "" {
		cfg.Target = target
	}
	if token == "" {
		token = os.Getenv("OFFERDEX_TOKEN")
	}
	if token != "" {
		cfg.Token = token
	}
	if duration != "" {
		d, err := time.ParseDuration(duration)
		if err != nil {
			return fmt.Errorf("invalid duration: %w", err)
		}
		cfg.Duration = model.Duration(d)
	}
	if workers > 0 {
		cfg.Workers = workers
	}
	if jsonOut {
		cfg.Output.JSON = true
	}

	if err := config.Validate(cfg); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	benchScenario, err := scenario.NewCatalogScenario(cfg)
	if err != nil {
		return fmt.Errorf("creating scenario: %w", err)
	}

	collector := metrics.NewCollector()

	r := runner.New()
	r.SetScenario(benchScenario)
	r.SetMetricsCollector(collector)

	ctx := context.Background()
	if err := r.Initialize(ctx, cfg); err != nil {
		return fmt.Errorf("initializing runner: %w", err)
	}
	defer func() { _ = r.Cleanup(ctx) }()

	rep := reporter.NewConsoleReporter(os.Stdout, !noColor && !cfg.Output.JSON)

	if !cfg.Output.JSON {
		fmt.Printf("Target:   %s\n", cfg.Target)
		fmt.Printf("Duration: %s", cfg.Duration)
		if cfg.Warmup > 0 {
			fmt.Printf(" (after %s warmup)", cfg.Warmup)
		}
		fmt.Println()
		fmt.Printf("Workers:  %d\n", cfg.Workers)
		fmt.Printf("Scenario: %s\n", cfg.Scenario.Type)
		fmt.Println()
	}

	runCtx, cancel := context.WithTimeout(ctx, cfg.Warmup.Std()+cfg.Duration.Std()+30*time.Second)
	defer cancel()

	progressTicker := time.NewTicker(time.Second)
	defer progressTicker.Stop()

	startTime := time.Now()

	resultChan := make(chan *types.Result, 1)
	errChan := make(chan error, 1)

	go func() {
		result, err := r.Run(runCtx)
		if err != nil {
			errChan <- err
			return
		}
		resultChan <- result
	}()

	for {
		select {
		case result := <-resultChan:
			if cfg.Output.JSON {
				return rep.ReportJSON(result)
			}
			rep.ReportProgress(time.Since(startTime), collector.Metrics())
			fmt.Println()
			if err := rep.ReportSummary(result); err != nil {
				return fmt.Errorf("reporting summary: %w", err)
			}
			if cfg.Output.File != "" {
				if err := writeResultFile(cfg.Output.File, result); err != nil {
					return err
				}
				fmt.Printf("Result written to %s\n", cfg.Output.File)
			}
			return nil

		case err := <-errChan:
			return err

		case <-progressTicker.C:
			if !cfg.Output.JSON {
				rep.ReportProgress(time.Since(startTime), collector.Metrics())
			}

		case <-runCtx.Done():
			return fmt.Errorf("load test timed out")
		}
	}
}

func writeResultFile(path string, result *types.Result) error {
	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding result: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing result file: %w", err)
	}
	return nil
}

func printUsage() {
	fmt.Println("offerdex load generator")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  offerdex-bench <command> [flags]")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  run       Run a load test against a node")
	fmt.Println("  version   Show version information")
	fmt.Println("  help      Show this help message")
	fmt.Println()
	fmt.Println("Run 'offerdex-bench run --help' for the run flags.")
}

func printRunUsage() {
	fmt.Println("Run a load test")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  offerdex-bench run [flags]")
	fmt.Println()
	fmt.Println("Flags:")
	fmt.Println("  -c, --config <file>     Configuration file (YAML)")
	fmt.Println("  -t, --target <url>      Target node URL ($OFFERDEX_ADDR)")
	fmt.Println("  -d, --duration <time>   Measured duration (e.g. 30s, 5m)")
	fmt.Println("  -w, --workers <n>       Number of concurrent workers")
	fmt.Println("      --token <token>     Operator bearer token ($OFFERDEX_TOKEN)")
	fmt.Println("      --json              Print the result as JSON")
	fmt.Println("      --no-color          Disable colored output")
	fmt.Println("  -h, --help              Show this help message")
	fmt.Println()
	fmt.Println("Examples:")
	fmt.Println("  offerdex-bench run --target http://localhost:8080 --duration 30s --workers 16")
	fmt.Println("  offerdex-bench run --config bench.yml --json")
	fmt.Println()
	fmt.Println("Nodes with auth enabled need a token; mint one with 'offerdex-search token'.")
}

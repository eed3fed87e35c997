// Package reporter formats load test progress and results for the
// terminal.
package reporter

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"offerdex/pkg/benchmark/types"
)

// ConsoleReporter writes progress lines and the final summary.
type ConsoleReporter struct {
	writer io.Writer
	colors bool
}

// NewConsoleReporter creates a reporter. Colors are ANSI escapes; turn
// them off for piped output.
func NewConsoleReporter(writer io.Writer, colors bool) *ConsoleReporter {
	return &ConsoleReporter{
		writer: writer,
		colors: colors,
	}
}

// ReportProgress rewrites the in-place progress line.
func (r *ConsoleReporter) ReportProgress(elapsed time.Duration, metrics *types.AggregatedMetrics) {
	if metrics == nil {
		return
	}

	fmt.Fprintf(r.writer, "\r[%s] ops: %d | success: %.1f%% | %.0f ops/s | p99: %.2fms",
		r.formatDuration(elapsed),
		metrics.TotalOperations,
		metrics.SuccessRate,
		metrics.Throughput,
		metrics.Latency.P99,
	)
}

// ReportSummary writes the final result breakdown.
func (r *ConsoleReporter) ReportSummary(result *types.Result) error {
	if result == nil {
		return fmt.Errorf("result cannot be nil")
	}

	fmt.Fprintln(r.writer)
	r.printHeader("Load Test Results")
	fmt.Fprintln(r.writer)

	r.printSection("Run")
	fmt.Fprintf(r.writer, "  Name:      %s\n", result.Name)
	fmt.Fprintf(r.writer, "  Run ID:    %s\n", result.RunID)
	fmt.Fprintf(r.writer, "  Target:    %s\n", result.Target)
	fmt.Fprintf(r.writer, "  Duration:  %s\n", r.formatDuration(time.Duration(result.Duration*float64(time.Second))))
	fmt.Fprintf(r.writer, "  Started:   %s\n", result.StartTime.Format("2006-01-02 15:04:05"))
	fmt.Fprintf(r.writer, "  Finished:  %s\n", result.EndTime.Format("2006-01-02 15:04:05"))
	fmt.Fprintln(r.writer)

	if result.Summary != nil {
		r.printSection("Overall")
		r.printMetrics(result.Summary)
		fmt.Fprintln(r.writer)
	}

	if len(result.Operations) > 0 {
		r.printSection("Per Operation")
		for _, opType := range sortedKeys(result.Operations) {
			fmt.Fprintf(r.writer, "  %s:\n", r.colorize(strings.ToUpper(opType), colorCyan))
			r.printOperationMetrics(result.Operations[opType])
			fmt.Fprintln(r.writer)
		}
	}

	if result.Summary != nil && result.Summary.TotalErrors > 0 {
		r.printSection("Errors")
		fmt.Fprintf(r.writer, "  Total: %s\n", r.colorize(fmt.Sprintf("%d", result.Summary.TotalErrors), colorRed))
		if len(result.Summary.ErrorsByType) > 0 {
			for _, errType := range sortedKeys(result.Summary.ErrorsByType) {
				fmt.Fprintf(r.writer, "    - %s: %d\n", errType, result.Summary.ErrorsByType[errType])
			}
		}
		fmt.Fprintln(r.writer)
	}

	r.printFooter()
	return nil
}

// ReportJSON writes the result as indented JSON.
func (r *ConsoleReporter) ReportJSON(result *types.Result) error {
	if result == nil {
		return fmt.Errorf("result cannot be nil")
	}

	encoder := json.NewEncoder(r.writer)
	encoder.SetIndent("", "  ")
	return encoder.Encode(result)
}

func (r *ConsoleReporter) printMetrics(metrics *types.AggregatedMetrics) {
	fmt.Fprintf(r.writer, "  Operations:  %s\n", r.formatNumber(metrics.TotalOperations))
	fmt.Fprintf(r.writer, "  Success:     %s\n", r.formatPercentage(metrics.SuccessRate))
	fmt.Fprintf(r.writer, "  Throughput:  %s\n", r.formatThroughput(metrics.Throughput))
	fmt.Fprintln(r.writer)

	fmt.Fprintf(r.writer, "  Latency:\n")
	fmt.Fprintf(r.writer, "    Min:     %s\n", r.formatLatency(metrics.Latency.Min))
	fmt.Fprintf(r.writer, "    Median:  %s\n", r.formatLatency(metrics.Latency.Median))
	fmt.Fprintf(r.writer, "    Mean:    %s\n", r.formatLatency(metrics.Latency.Mean))
	fmt.Fprintf(r.writer, "    P90:     %s\n", r.formatLatency(metrics.Latency.P90))
	fmt.Fprintf(r.writer, "    P95:     %s\n", r.formatLatency(metrics.Latency.P95))
	fmt.Fprintf(r.writer, "    P99:     %s\n", r.formatLatency(metrics.Latency.P99))
	fmt.Fprintf(r.writer, "    Max:     %s\n", r.formatLatency(metrics.Latency.Max))
}

func (r *ConsoleReporter) printOperationMetrics(metrics *types.AggregatedMetrics) {
	fmt.Fprintf(r.writer, "    Operations: %d | Success: %.1f%% | Throughput: %.2f ops/s\n",
		metrics.TotalOperations,
		metrics.SuccessRate,
		metrics.Throughput,
	)
	fmt.Fprintf(r.writer, "    Latency: Min=%.2fms | Median=%.2fms | P99=%.2fms | Max=%.2fms\n",
		metrics.Latency.Min,
		metrics.Latency.Median,
		metrics.Latency.P99,
		metrics.Latency.Max,
	)
}

func (r *ConsoleReporter) printHeader(title string) {
	line := strings.Repeat("=", 70)
	fmt.Fprintln(r.writer, r.colorize(line, colorBold))
	fmt.Fprintf(r.writer, "%s\n", r.colorize(centerString(title, 70), colorBold))
	fmt.Fprintln(r.writer, r.colorize(line, colorBold))
}

func (r *ConsoleReporter) printSection(title string) {
	fmt.Fprintf(r.writer, "%s\n", r.colorize(title, colorBold))
}

func (r *ConsoleReporter) printFooter() {
	line := strings.Repeat("=", 70)
	fmt.Fprintln(r.writer, r.colorize(line, colorBold))
}

func (r *ConsoleReporter) formatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	return fmt.Sprintf("%.1fs", d.Seconds())
}

func (r *ConsoleReporter) formatNumber(n int64) string {
	return r.colorize(fmt.Sprintf("%d", n), colorGreen)
}

func (r *ConsoleReporter) formatPercentage(p float64) string {
	color := colorGreen
	if p < 95.0 {
		color = colorYellow
	}
	if p < 90.0 {
		color = colorRed
	}
	return r.colorize(fmt.Sprintf("%.2f%%", p), color)
}

func (r *ConsoleReporter) formatThroughput(t float64) string {
	return r.colorize(fmt.Sprintf("%.2f ops/s", t), colorGreen)
}

func (r *ConsoleReporter) formatLatency(ms float64) string {
	return fmt.Sprintf("%.2fms", ms)
}

const (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorCyan   = "\033[36m"
	colorBold   = "\033[1m"
)

func (r *ConsoleReporter) colorize(text, color string) string {
	if !r.colors {
		return text
	}
	return color + text + colorReset
}

func centerString(s string, width int) string {
	if len(s) >= width {
		return s
	}
	padding := (width - len(s)) / 2
	return strings.Repeat(" ", padding) + s
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

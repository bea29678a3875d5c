package reporter

import (
	"context"
	"fmt"
	"io"
	"os"

	"ciq/pipeline-engine/pkg/types"
)

// ConsoleReporterType identifies the console reporter.
const ConsoleReporterType = "console"

// ConsoleReporter prints run summaries in a human-readable form.
type ConsoleReporter struct {
	out     io.Writer
	verbose bool
}

// NewConsoleReporter creates a console reporter writing to stdout.
func NewConsoleReporter() *ConsoleReporter {
	return &ConsoleReporter{out: os.Stdout}
}

// Name returns the reporter type name.
func (r *ConsoleReporter) Name() string {
	return ConsoleReporterType
}

// Init applies the reporter config. Recognized keys: verbose.
func (r *ConsoleReporter) Init(_ context.Context, config map[string]any) error {
	if v, ok := config["verbose"].(bool); ok {
		r.verbose = v
	}
	return nil
}

// SetOutput redirects the reporter, used by tests.
func (r *ConsoleReporter) SetOutput(w io.Writer) {
	r.out = w
}

// Report prints the run summary.
func (r *ConsoleReporter) Report(_ context.Context, summary *types.RunSummary) error {
	run := summary.Run

	fmt.Fprintf(r.out, "\n=== %s: %s (%s) ===\n", run.Pipeline, run.Status, run.Duration().Round(1e6))
	fmt.Fprintf(r.out, "run %s, event %s, group %s\n", run.ID, run.Event.Kind, run.Group)
	fmt.Fprintf(r.out, "jobs: %d total, %d passed, %d failed, %d cancelled, %d skipped\n",
		summary.Total, summary.Passed, summary.Failed, summary.Canceled, summary.Skipped)
	if summary.StepAvg > 0 {
		fmt.Fprintf(r.out, "steps: avg %s, p95 %s, p99 %s\n", summary.StepAvg, summary.StepP95, summary.StepP99)
	}

	for _, jr := range run.Jobs {
		label := jr.Job
		if jr.Leg != "" {
			label += " [" + jr.Leg + "]"
		}
		fmt.Fprintf(r.out, "  %-10s %s (%s)\n", jr.Status, label, jr.Duration().Round(1e6))
		if jr.Error != "" {
			fmt.Fprintf(r.out, "             %s\n", jr.Error)
		}
		if !r.verbose {
			continue
		}
		for _, step := range jr.Steps {
			fmt.Fprintf(r.out, "    %-10s %s\n", step.Status, step.Name)
		}
	}
	return nil
}

// Flush is a no-op for the console reporter.
func (r *ConsoleReporter) Flush(context.Context) error {
	return nil
}

// Close is a no-op for the console reporter.
func (r *ConsoleReporter) Close(context.Context) error {
	return nil
}

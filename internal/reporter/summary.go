package reporter

import (
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"

	"ciq/pipeline-engine/pkg/types"
)

// Step durations are recorded in milliseconds; anything longer than an
// hour saturates at the histogram ceiling.
const (
	histogramMinMs   = 1
	histogramMaxMs   = int64(time.Hour / time.Millisecond)
	histogramSigFigs = 3
)

// Summarize aggregates a finished run into the reporter payload,
// including step-duration percentiles across all jobs.
func Summarize(run *types.PipelineRun) *types.RunSummary {
	summary := &types.RunSummary{Run: run}

	hist := hdrhistogram.New(histogramMinMs, histogramMaxMs, histogramSigFigs)

	for _, jr := range run.Jobs {
		summary.Total++
		switch jr.Status {
		case types.StatusSucceeded:
			summary.Passed++
		case types.StatusFailed:
			summary.Failed++
		case types.StatusCancelled:
			summary.Canceled++
		case types.StatusSkipped:
			summary.Skipped++
		}

		for _, step := range jr.Steps {
			if step.Status == types.StatusSkipped {
				continue
			}
			ms := step.Duration.Milliseconds()
			if ms < histogramMinMs {
				ms = histogramMinMs
			}
			if ms > histogramMaxMs {
				ms = histogramMaxMs
			}
			_ = hist.RecordValue(ms)
		}
	}

	if hist.TotalCount() > 0 {
		summary.StepAvg = time.Duration(hist.Mean()) * time.Millisecond
		summary.StepP95 = time.Duration(hist.ValueAtQuantile(95)) * time.Millisecond
		summary.StepP99 = time.Duration(hist.ValueAtQuantile(99)) * time.Millisecond
	}

	return summary
}

package types

import "time"

// RunStatus is the lifecycle state of a run, job, or step.
type RunStatus string

const (
	StatusPending   RunStatus = "pending"
	StatusRunning   RunStatus = "running"
	StatusSucceeded RunStatus = "succeeded"
	StatusFailed    RunStatus = "failed"
	StatusCancelled RunStatus = "cancelled"
	StatusSkipped   RunStatus = "skipped"
)

// Terminal reports whether the status is final.
func (s RunStatus) Terminal() bool {
	switch s {
	case StatusSucceeded, StatusFailed, StatusCancelled, StatusSkipped:
		return true
	}
	return false
}

// PipelineRun is one execution of a pipeline for one event.
type PipelineRun struct {
	ID       string `json:"id"`
	Pipeline string `json:"pipeline"`
	// Group is the resolved concurrency group key.
	Group  string    `json:"group"`
	Event  *Event    `json:"event"`
	Status RunStatus `json:"status"`

	CreatedAt  time.Time `json:"created_at"`
	StartedAt  time.Time `json:"started_at,omitempty"`
	FinishedAt time.Time `json:"finished_at,omitempty"`

	Jobs []*JobRun `json:"jobs"`
}

// Duration returns the wall-clock run time, zero until finished.
func (r *PipelineRun) Duration() time.Duration {
	if r.StartedAt.IsZero() || r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// JobRun is one matrix leg of a job within a pipeline run.
type JobRun struct {
	ID  string `json:"id"`
	Job string `json:"job"`
	// Leg is the human-readable matrix leg name, empty for
	// non-matrix jobs.
	Leg string `json:"leg,omitempty"`
	// Matrix holds the axis values assigned to this leg.
	Matrix map[string]any `json:"matrix,omitempty"`

	Status RunStatus `json:"status"`
	Error  string    `json:"error,omitempty"`

	StartedAt  time.Time `json:"started_at,omitempty"`
	FinishedAt time.Time `json:"finished_at,omitempty"`

	Steps []*StepResult `json:"steps,omitempty"`
}

// Duration returns the wall-clock job time, zero until finished.
func (j *JobRun) Duration() time.Duration {
	if j.StartedAt.IsZero() || j.FinishedAt.IsZero() {
		return 0
	}
	return j.FinishedAt.Sub(j.StartedAt)
}

// StepResult records the outcome of a single step.
type StepResult struct {
	StepID string    `json:"step_id,omitempty"`
	Name   string    `json:"name"`
	Status RunStatus `json:"status"`

	ExitCode int    `json:"exit_code"`
	Output   string `json:"output,omitempty"`
	// Outputs holds key=value pairs the step published for later steps.
	Outputs map[string]string `json:"outputs,omitempty"`
	Error   string            `json:"error,omitempty"`

	StartedAt  time.Time     `json:"started_at"`
	FinishedAt time.Time     `json:"finished_at"`
	Duration   time.Duration `json:"duration"`
}

// RunSummary is the aggregate view of a finished run used by reporters.
type RunSummary struct {
	Run      *PipelineRun `json:"run"`
	Total    int          `json:"total_jobs"`
	Passed   int          `json:"passed_jobs"`
	Failed   int          `json:"failed_jobs"`
	Canceled int          `json:"cancelled_jobs"`
	Skipped  int          `json:"skipped_jobs"`

	// Step duration percentiles across all jobs.
	StepAvg time.Duration `json:"step_avg"`
	StepP95 time.Duration `json:"step_p95"`
	StepP99 time.Duration `json:"step_p99"`
}

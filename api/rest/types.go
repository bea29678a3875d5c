package rest

import "ciq/pipeline-engine/pkg/types"

// ErrorResponse is the uniform error body.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// HealthResponse is the health check body.
type HealthResponse struct {
	Status    string `json:"status"`
	Pipelines int    `json:"pipelines"`
	Timestamp string `json:"timestamp"`
}

// EventRequest delivers a webhook event to the engine.
type EventRequest struct {
	// Kind is the event kind: push or pull_request.
	Kind string `json:"kind"`
	// Payload is the raw webhook payload.
	Payload map[string]any `json:"payload"`
}

// EventResponse lists the runs an event started.
type EventResponse struct {
	EventID string    `json:"event_id"`
	Started []RunInfo `json:"started"`
}

// DispatchRequest manually triggers a pipeline.
type DispatchRequest struct {
	// Ref is the git ref the run targets; defaults to the main branch.
	Ref string `json:"ref,omitempty"`
	// Inputs are the dispatch inputs.
	Inputs map[string]string `json:"inputs,omitempty"`
}

// RunInfo is the compact run representation used in listings.
type RunInfo struct {
	ID        string          `json:"id"`
	Pipeline  string          `json:"pipeline"`
	Group     string          `json:"group"`
	Status    types.RunStatus `json:"status"`
	Event     string          `json:"event"`
	CreatedAt string          `json:"created_at"`
}

// PipelineInfo summarizes a registered pipeline.
type PipelineInfo struct {
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	Jobs        []string `json:"jobs"`
	Schedules   []string `json:"schedules,omitempty"`
	Dispatch    bool     `json:"dispatch"`
}

// runInfo converts a run to its listing form.
func runInfo(run *types.PipelineRun) RunInfo {
	return RunInfo{
		ID:        run.ID,
		Pipeline:  run.Pipeline,
		Group:     run.Group,
		Status:    run.Status,
		Event:     string(run.Event.Kind),
		CreatedAt: run.CreatedAt.Format("2006-01-02T15:04:05Z07:00"),
	}
}

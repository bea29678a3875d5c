package types

import (
	"strings"
	"time"
)

// EventKind identifies the source of a triggering event.
type EventKind string

const (
	// EventPush is a branch push.
	EventPush EventKind = "push"
	// EventPullRequest is a pull-request lifecycle event.
	EventPullRequest EventKind = "pull_request"
	// EventSchedule is a cron-fired event.
	EventSchedule EventKind = "schedule"
	// EventDispatch is a manual dispatch request.
	EventDispatch EventKind = "dispatch"
)

// Event is a normalized triggering event as seen by the engine.
type Event struct {
	// ID is the delivery identifier assigned on ingest.
	ID   string    `json:"id"`
	Kind EventKind `json:"kind"`

	// Ref is the full git ref, e.g. "refs/heads/main".
	Ref string `json:"ref,omitempty"`
	// Action is the pull-request action (opened, synchronize, ...).
	Action string `json:"action,omitempty"`
	// ChangedPaths lists the files touched by the push or pull request.
	ChangedPaths []string `json:"changed_paths,omitempty"`
	// Inputs carries manual dispatch inputs after defaulting.
	Inputs map[string]string `json:"inputs,omitempty"`

	// Payload is the raw decoded webhook payload, if any.
	Payload map[string]any `json:"payload,omitempty"`

	ReceivedAt time.Time `json:"received_at"`
}

// Branch returns the short branch name derived from Ref.
func (e *Event) Branch() string {
	if b, ok := strings.CutPrefix(e.Ref, "refs/heads/"); ok {
		return b
	}
	return e.Ref
}

// Context builds the expression-evaluation context for the event,
// reachable as "event.*" in pipeline expressions.
func (e *Event) Context() map[string]any {
	ctx := map[string]any{
		"id":     e.ID,
		"kind":   string(e.Kind),
		"ref":    e.Ref,
		"branch": e.Branch(),
		"action": e.Action,
	}
	if len(e.Inputs) > 0 {
		inputs := make(map[string]any, len(e.Inputs))
		for k, v := range e.Inputs {
			inputs[k] = v
		}
		ctx["inputs"] = inputs
	}
	if e.Payload != nil {
		ctx["payload"] = e.Payload
	}
	return ctx
}

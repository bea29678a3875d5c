// Package event normalizes webhook payloads and synthetic triggers
// into types.Event values.
package event

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/ohler55/ojg/jp"
	"github.com/ohler55/ojg/oj"

	"ciq/pipeline-engine/pkg/types"
)

// Payload paths extracted from webhook bodies.
var (
	pathRef       = jp.MustParseString("$.ref")
	pathPRAction  = jp.MustParseString("$.action")
	pathPRBaseRef = jp.MustParseString("$.pull_request.base.ref")
	pathAdded     = jp.MustParseString("$.commits[*].added[*]")
	pathModified  = jp.MustParseString("$.commits[*].modified[*]")
	pathRemoved   = jp.MustParseString("$.commits[*].removed[*]")
	pathChanged   = jp.MustParseString("$.changed_paths[*]")
)

// FromWebhook decodes a webhook body of the given kind into an Event.
func FromWebhook(kind types.EventKind, body []byte) (*types.Event, error) {
	parsed, err := oj.Parse(body)
	if err != nil {
		return nil, fmt.Errorf("invalid webhook payload: %w", err)
	}
	payload, ok := parsed.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("webhook payload must be a JSON object, got %T", parsed)
	}

	evt := &types.Event{
		ID:         uuid.NewString(),
		Kind:       kind,
		Payload:    payload,
		ReceivedAt: time.Now().UTC(),
	}

	switch kind {
	case types.EventPush:
		evt.Ref = firstString(pathRef, payload)
		evt.ChangedPaths = dedupe(append(append(
			stringsAt(pathAdded, payload),
			stringsAt(pathModified, payload)...),
			stringsAt(pathRemoved, payload)...))
		if evt.Ref == "" {
			return nil, fmt.Errorf("push payload missing ref")
		}

	case types.EventPullRequest:
		evt.Action = firstString(pathPRAction, payload)
		evt.Ref = firstString(pathPRBaseRef, payload)
		evt.ChangedPaths = dedupe(stringsAt(pathChanged, payload))
		if evt.Ref == "" {
			return nil, fmt.Errorf("pull_request payload missing base ref")
		}

	default:
		return nil, fmt.Errorf("unsupported webhook event kind: %s", kind)
	}

	return evt, nil
}

// DefaultBranchRef is the ref synthetic schedule events run against.
const DefaultBranchRef = "refs/heads/main"

// NewScheduleEvent creates a synthetic event for a cron fire.
// Scheduled runs always target the default branch.
func NewScheduleEvent(firedAt time.Time) *types.Event {
	return &types.Event{
		ID:         uuid.NewString(),
		Kind:       types.EventSchedule,
		Ref:        DefaultBranchRef,
		ReceivedAt: firedAt.UTC(),
	}
}

// NewDispatchEvent creates a synthetic event for a manual dispatch.
func NewDispatchEvent(ref string, inputs map[string]string) *types.Event {
	return &types.Event{
		ID:         uuid.NewString(),
		Kind:       types.EventDispatch,
		Ref:        ref,
		Inputs:     inputs,
		ReceivedAt: time.Now().UTC(),
	}
}

// firstString returns the first string result of the path expression.
func firstString(path jp.Expr, payload any) string {
	for _, v := range path.Get(payload) {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

// stringsAt returns all string results of the path expression.
func stringsAt(path jp.Expr, payload any) []string {
	var out []string
	for _, v := range path.Get(payload) {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

// dedupe removes duplicates while preserving order.
func dedupe(in []string) []string {
	if len(in) < 2 {
		return in
	}
	seen := make(map[string]bool, len(in))
	out := in[:0]
	for _, s := range in {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}

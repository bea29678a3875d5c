// Package trigger decides whether an event fires a pipeline and
// computes cron schedule fire times.
package trigger

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"ciq/pipeline-engine/pkg/types"
)

// Decision explains a trigger evaluation outcome.
type Decision struct {
	Fire   bool
	Reason string
}

// Matcher evaluates events against pipeline trigger declarations.
type Matcher struct {
	cronParser cron.Parser
}

// NewMatcher creates a new Matcher.
func NewMatcher() *Matcher {
	return &Matcher{
		cronParser: cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow),
	}
}

// Match decides whether the event fires the pipeline.
func (m *Matcher) Match(pipeline *types.Pipeline, event *types.Event) Decision {
	switch event.Kind {
	case types.EventPush:
		return m.matchPush(pipeline.On.Push, event)
	case types.EventPullRequest:
		return m.matchPullRequest(pipeline.On.PullRequest, event)
	case types.EventSchedule:
		if len(pipeline.On.Schedule) == 0 {
			return Decision{Fire: false, Reason: "no schedule trigger declared"}
		}
		return Decision{Fire: true, Reason: "schedule"}
	case types.EventDispatch:
		if pipeline.On.Dispatch == nil {
			return Decision{Fire: false, Reason: "no dispatch trigger declared"}
		}
		return Decision{Fire: true, Reason: "manual dispatch"}
	default:
		return Decision{Fire: false, Reason: fmt.Sprintf("unknown event kind: %s", event.Kind)}
	}
}

// matchPush evaluates a push event against the push trigger filters.
func (m *Matcher) matchPush(t *types.PushTrigger, event *types.Event) Decision {
	if t == nil {
		return Decision{Fire: false, Reason: "no push trigger declared"}
	}

	branch := event.Branch()
	if len(t.Branches) > 0 && !anyGlobMatch(t.Branches, branch) {
		return Decision{Fire: false, Reason: fmt.Sprintf("branch %q not in push branches filter", branch)}
	}
	if anyGlobMatch(t.BranchesIgnore, branch) {
		return Decision{Fire: false, Reason: fmt.Sprintf("branch %q matched branches_ignore", branch)}
	}

	return m.matchPaths(t.Paths, t.PathsIgnore, event.ChangedPaths)
}

// matchPullRequest evaluates a pull-request event against its filters.
func (m *Matcher) matchPullRequest(t *types.PullRequest, event *types.Event) Decision {
	if t == nil {
		return Decision{Fire: false, Reason: "no pull_request trigger declared"}
	}

	if len(t.Types) > 0 && event.Action != "" {
		matched := false
		for _, action := range t.Types {
			if action == event.Action {
				matched = true
				break
			}
		}
		if !matched {
			return Decision{Fire: false, Reason: fmt.Sprintf("action %q not in types filter", event.Action)}
		}
	}

	branch := event.Branch()
	if len(t.Branches) > 0 && !anyGlobMatch(t.Branches, branch) {
		return Decision{Fire: false, Reason: fmt.Sprintf("target branch %q not in branches filter", branch)}
	}
	if anyGlobMatch(t.BranchesIgnore, branch) {
		return Decision{Fire: false, Reason: fmt.Sprintf("target branch %q matched branches_ignore", branch)}
	}

	return m.matchPaths(t.Paths, t.PathsIgnore, event.ChangedPaths)
}

// matchPaths applies path filter semantics to the event change set:
// with a paths allow-list, at least one changed file must match it;
// with a paths_ignore deny-list, at least one changed file must fall
// outside it. An empty change set passes both filters.
func (m *Matcher) matchPaths(paths, pathsIgnore, changed []string) Decision {
	if len(changed) == 0 || (len(paths) == 0 && len(pathsIgnore) == 0) {
		return Decision{Fire: true, Reason: "matched"}
	}

	if len(paths) > 0 {
		for _, file := range changed {
			if anyGlobMatch(paths, file) {
				return Decision{Fire: true, Reason: fmt.Sprintf("path %q matched paths filter", file)}
			}
		}
		return Decision{Fire: false, Reason: "no changed path matched paths filter"}
	}

	for _, file := range changed {
		if !anyGlobMatch(pathsIgnore, file) {
			return Decision{Fire: true, Reason: fmt.Sprintf("path %q outside paths_ignore", file)}
		}
	}
	return Decision{Fire: false, Reason: "all changed paths matched paths_ignore"}
}

// NextFire returns the earliest upcoming fire time among the
// pipeline's schedules, strictly after the given time.
func (m *Matcher) NextFire(schedules []types.Schedule, after time.Time) (time.Time, error) {
	var next time.Time
	for _, sched := range schedules {
		spec, err := m.cronParser.Parse(sched.Cron)
		if err != nil {
			return time.Time{}, fmt.Errorf("invalid cron expression %q: %w", sched.Cron, err)
		}
		t := spec.Next(after)
		if next.IsZero() || t.Before(next) {
			next = t
		}
	}
	if next.IsZero() {
		return time.Time{}, fmt.Errorf("no schedules declared")
	}
	return next, nil
}

// ResolveInputs applies dispatch input defaults and checks required
// inputs, returning the effective input set.
func ResolveInputs(t *types.DispatchTrigger, provided map[string]string) (map[string]string, error) {
	resolved := make(map[string]string)
	if t == nil {
		for k, v := range provided {
			resolved[k] = v
		}
		return resolved, nil
	}

	for name, decl := range t.Inputs {
		if v, ok := provided[name]; ok {
			resolved[name] = v
			continue
		}
		if decl.Required && decl.Default == "" {
			return nil, fmt.Errorf("required dispatch input %q not provided", name)
		}
		if decl.Default != "" {
			resolved[name] = decl.Default
		}
	}

	for name := range provided {
		if _, declared := t.Inputs[name]; !declared {
			return nil, fmt.Errorf("undeclared dispatch input %q", name)
		}
	}

	return resolved, nil
}

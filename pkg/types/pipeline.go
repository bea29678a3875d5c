// Package types defines the core data structures for the CI pipeline engine.
package types

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// Pipeline represents a parsed pipeline definition.
type Pipeline struct {
	Name        string            `yaml:"name" json:"name"`
	Description string            `yaml:"description,omitempty" json:"description,omitempty"`
	On          Triggers          `yaml:"on" json:"on"`
	Env         map[string]string `yaml:"env,omitempty" json:"env,omitempty"`
	Concurrency *Concurrency      `yaml:"concurrency,omitempty" json:"concurrency,omitempty"`
	Defaults    Defaults          `yaml:"defaults,omitempty" json:"defaults,omitempty"`
	Jobs        map[string]*Job   `yaml:"jobs" json:"jobs"`
	Reporters   []ReporterConfig  `yaml:"reporters,omitempty" json:"reporters,omitempty"`
}

// Defaults holds pipeline-wide step defaults.
type Defaults struct {
	Shell      string `yaml:"shell,omitempty" json:"shell,omitempty"`
	WorkingDir string `yaml:"working_dir,omitempty" json:"working_dir,omitempty"`
}

// Triggers declares which events fire the pipeline.
type Triggers struct {
	Push        *PushTrigger     `yaml:"push,omitempty" json:"push,omitempty"`
	PullRequest *PullRequest     `yaml:"pull_request,omitempty" json:"pull_request,omitempty"`
	Schedule    []Schedule       `yaml:"schedule,omitempty" json:"schedule,omitempty"`
	Dispatch    *DispatchTrigger `yaml:"dispatch,omitempty" json:"dispatch,omitempty"`
}

// UnmarshalYAML accepts the three trigger forms a pipeline may use:
// a single event name, a list of event names, or the full mapping form.
func (t *Triggers) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		var name string
		if err := node.Decode(&name); err != nil {
			return err
		}
		return t.enable(name)

	case yaml.SequenceNode:
		var names []string
		if err := node.Decode(&names); err != nil {
			return err
		}
		for _, name := range names {
			if err := t.enable(name); err != nil {
				return err
			}
		}
		return nil

	case yaml.MappingNode:
		type plain Triggers
		return node.Decode((*plain)(t))

	default:
		return fmt.Errorf("invalid trigger declaration (line %d)", node.Line)
	}
}

// enable turns on a trigger by event name with no filters.
func (t *Triggers) enable(name string) error {
	switch name {
	case "push":
		t.Push = &PushTrigger{}
	case "pull_request":
		t.PullRequest = &PullRequest{}
	case "dispatch":
		t.Dispatch = &DispatchTrigger{}
	default:
		return fmt.Errorf("unknown trigger event: %s", name)
	}
	return nil
}

// Empty reports whether no trigger is declared.
func (t *Triggers) Empty() bool {
	return t.Push == nil && t.PullRequest == nil && len(t.Schedule) == 0 && t.Dispatch == nil
}

// PushTrigger fires on branch pushes.
type PushTrigger struct {
	Branches       []string `yaml:"branches,omitempty" json:"branches,omitempty"`
	BranchesIgnore []string `yaml:"branches_ignore,omitempty" json:"branches_ignore,omitempty"`
	Paths          []string `yaml:"paths,omitempty" json:"paths,omitempty"`
	PathsIgnore    []string `yaml:"paths_ignore,omitempty" json:"paths_ignore,omitempty"`
	Tags           []string `yaml:"tags,omitempty" json:"tags,omitempty"`
}

// PullRequest fires on pull-request lifecycle events.
type PullRequest struct {
	Types          []string `yaml:"types,omitempty" json:"types,omitempty"`
	Branches       []string `yaml:"branches,omitempty" json:"branches,omitempty"`
	BranchesIgnore []string `yaml:"branches_ignore,omitempty" json:"branches_ignore,omitempty"`
	Paths          []string `yaml:"paths,omitempty" json:"paths,omitempty"`
	PathsIgnore    []string `yaml:"paths_ignore,omitempty" json:"paths_ignore,omitempty"`
}

// Schedule fires on a cron expression (standard 5-field form, UTC).
type Schedule struct {
	Cron string `yaml:"cron" json:"cron"`
}

// DispatchTrigger fires on a manual dispatch request.
type DispatchTrigger struct {
	Inputs map[string]DispatchInput `yaml:"inputs,omitempty" json:"inputs,omitempty"`
}

// DispatchInput declares one manual dispatch input.
type DispatchInput struct {
	Description string `yaml:"description,omitempty" json:"description,omitempty"`
	Required    bool   `yaml:"required,omitempty" json:"required,omitempty"`
	Default     string `yaml:"default,omitempty" json:"default,omitempty"`
}

// Concurrency declares the run concurrency policy for a pipeline.
type Concurrency struct {
	// Group is an expression evaluated against the triggering event.
	// Runs sharing a group key never execute at the same time.
	Group string `yaml:"group" json:"group"`
	// CancelInProgress cancels in-flight runs of the same group when a
	// new run arrives, instead of queueing behind them.
	CancelInProgress bool `yaml:"cancel_in_progress,omitempty" json:"cancel_in_progress,omitempty"`
}

// UnmarshalYAML accepts either a bare group string or the mapping form.
func (c *Concurrency) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		return node.Decode(&c.Group)
	}
	type plain Concurrency
	return node.Decode((*plain)(c))
}

// Job is one unit of the pipeline, fanned out per matrix leg.
type Job struct {
	Name           string            `yaml:"name,omitempty" json:"name,omitempty"`
	If             string            `yaml:"if,omitempty" json:"if,omitempty"`
	Env            map[string]string `yaml:"env,omitempty" json:"env,omitempty"`
	Secrets        []string          `yaml:"secrets,omitempty" json:"secrets,omitempty"`
	TimeoutMinutes int               `yaml:"timeout_minutes,omitempty" json:"timeout_minutes,omitempty"`
	Strategy       *Strategy         `yaml:"strategy,omitempty" json:"strategy,omitempty"`
	Steps          []Step            `yaml:"steps" json:"steps"`
}

// DefaultJobTimeoutMinutes applies when a job declares no timeout.
const DefaultJobTimeoutMinutes = 60

// Timeout returns the effective job timeout in minutes.
func (j *Job) Timeout() int {
	if j.TimeoutMinutes > 0 {
		return j.TimeoutMinutes
	}
	return DefaultJobTimeoutMinutes
}

// Strategy controls matrix fan-out for a job.
type Strategy struct {
	Matrix      *Matrix `yaml:"matrix,omitempty" json:"matrix,omitempty"`
	FailFast    *bool   `yaml:"fail_fast,omitempty" json:"fail_fast,omitempty"`
	MaxParallel int     `yaml:"max_parallel,omitempty" json:"max_parallel,omitempty"`
}

// FailFastEnabled reports the effective fail-fast setting (default true).
func (s *Strategy) FailFastEnabled() bool {
	if s == nil || s.FailFast == nil {
		return true
	}
	return *s.FailFast
}

// Matrix declares the axes of a job matrix plus include/exclude rules.
type Matrix struct {
	// Axes maps axis name to its declared values, in declaration order.
	Axes map[string][]any `yaml:"-" json:"axes,omitempty"`
	// AxisOrder preserves the declaration order of axis names.
	AxisOrder []string         `yaml:"-" json:"-"`
	Include   []map[string]any `yaml:"-" json:"include,omitempty"`
	Exclude   []map[string]any `yaml:"-" json:"exclude,omitempty"`
}

// UnmarshalYAML splits the matrix mapping into axes and the reserved
// include/exclude keys.
func (m *Matrix) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("matrix must be a mapping (line %d)", node.Line)
	}
	m.Axes = make(map[string][]any)

	for i := 0; i < len(node.Content)-1; i += 2 {
		key := node.Content[i].Value
		val := node.Content[i+1]

		switch key {
		case "include":
			if err := val.Decode(&m.Include); err != nil {
				return fmt.Errorf("matrix include: %w", err)
			}
		case "exclude":
			if err := val.Decode(&m.Exclude); err != nil {
				return fmt.Errorf("matrix exclude: %w", err)
			}
		default:
			var values []any
			if err := val.Decode(&values); err != nil {
				return fmt.Errorf("matrix axis %q must be a list: %w", key, err)
			}
			m.Axes[key] = values
			m.AxisOrder = append(m.AxisOrder, key)
		}
	}
	return nil
}

// Step represents a single command within a job.
type Step struct {
	ID              string            `yaml:"id,omitempty" json:"id,omitempty"`
	Name            string            `yaml:"name,omitempty" json:"name,omitempty"`
	If              string            `yaml:"if,omitempty" json:"if,omitempty"`
	Run             string            `yaml:"run,omitempty" json:"run,omitempty"`
	Script          string            `yaml:"script,omitempty" json:"script,omitempty"`
	Shell           string            `yaml:"shell,omitempty" json:"shell,omitempty"`
	WorkingDir      string            `yaml:"working_dir,omitempty" json:"working_dir,omitempty"`
	Env             map[string]string `yaml:"env,omitempty" json:"env,omitempty"`
	TimeoutMinutes  int               `yaml:"timeout_minutes,omitempty" json:"timeout_minutes,omitempty"`
	ContinueOnError bool              `yaml:"continue_on_error,omitempty" json:"continue_on_error,omitempty"`
}

// Label returns the display name of the step.
func (s *Step) Label() string {
	if s.Name != "" {
		return s.Name
	}
	if s.ID != "" {
		return s.ID
	}
	return firstLine(s.Run + s.Script)
}

func firstLine(s string) string {
	for i := 0; i < len(s); i++ {
		if s[i] == '\n' {
			return s[:i]
		}
	}
	return s
}

// ReporterConfig selects and configures a result reporter.
type ReporterConfig struct {
	Type    string         `yaml:"type" json:"type"`
	Enabled *bool          `yaml:"enabled,omitempty" json:"enabled,omitempty"`
	Config  map[string]any `yaml:"config,omitempty" json:"config,omitempty"`
}

// IsEnabled reports whether the reporter should be created (default true).
func (r *ReporterConfig) IsEnabled() bool {
	return r.Enabled == nil || *r.Enabled
}

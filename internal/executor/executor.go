// Package executor runs individual pipeline steps.
package executor

import (
	"context"
	"fmt"
	"sync"

	"ciq/pipeline-engine/pkg/types"
)

// Environment is the prepared execution environment for one step.
type Environment struct {
	// Env is the fully merged environment for the step.
	Env map[string]string
	// WorkingDir is the directory the step runs in.
	WorkingDir string
	// Shell overrides the default shell for run steps.
	Shell string
	// Outputs holds outputs published by earlier steps in the job,
	// keyed by step ID.
	Outputs map[string]map[string]string
}

// Result is the raw outcome of executing a step command.
type Result struct {
	ExitCode int
	Output   string
	// Outputs are the name=value pairs the step published.
	Outputs map[string]string
}

// Executor executes one kind of step.
type Executor interface {
	// Type returns the step kind this executor handles.
	Type() string

	// Execute runs the step. A non-zero exit is reported through the
	// Result, not the error; errors mean the step could not run.
	Execute(ctx context.Context, step *types.Step, env *Environment) (*Result, error)
}

// StepError wraps a failure to execute a step.
type StepError struct {
	Step    string
	Message string
	Cause   error
}

// Error implements the error interface.
func (e *StepError) Error() string {
	return fmt.Sprintf("step %q: %s: %v", e.Step, e.Message, e.Cause)
}

// Unwrap returns the underlying error.
func (e *StepError) Unwrap() error {
	return e.Cause
}

// NewStepError creates a new StepError.
func NewStepError(step, message string, cause error) *StepError {
	return &StepError{Step: step, Message: message, Cause: cause}
}

// Registry maps step kinds to executors.
type Registry struct {
	mu        sync.RWMutex
	executors map[string]Executor
}

// NewRegistry creates an empty executor registry.
func NewRegistry() *Registry {
	return &Registry{executors: make(map[string]Executor)}
}

// Register adds an executor for its step kind.
func (r *Registry) Register(exec Executor) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.executors[exec.Type()]; exists {
		return fmt.Errorf("executor already registered: %s", exec.Type())
	}
	r.executors[exec.Type()] = exec
	return nil
}

// Get returns the executor for a step kind.
func (r *Registry) Get(kind string) (Executor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	exec, ok := r.executors[kind]
	if !ok {
		return nil, fmt.Errorf("no executor registered for step kind: %s", kind)
	}
	return exec, nil
}

// ForStep selects the executor matching the step's declared command.
func (r *Registry) ForStep(step *types.Step) (Executor, error) {
	if step.Script != "" {
		return r.Get("script")
	}
	return r.Get("run")
}

// DefaultRegistry carries the built-in executors.
var DefaultRegistry = NewRegistry()

func init() {
	_ = DefaultRegistry.Register(NewRunExecutor())
	_ = DefaultRegistry.Register(NewScriptExecutor())
}

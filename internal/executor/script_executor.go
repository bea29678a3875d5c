package executor

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/dop251/goja"

	"ciq/pipeline-engine/pkg/types"
)

// ScriptExecutorType identifies JavaScript steps.
const ScriptExecutorType = "script"

// ScriptExecutor executes script steps in an embedded JavaScript
// runtime. Scripts see the step environment as `env`, publish values
// through `outputs`, and read earlier steps' outputs via `steps`.
type ScriptExecutor struct{}

// NewScriptExecutor creates a new ScriptExecutor.
func NewScriptExecutor() *ScriptExecutor {
	return &ScriptExecutor{}
}

// Type returns the step kind this executor handles.
func (e *ScriptExecutor) Type() string {
	return ScriptExecutorType
}

// Execute runs the step script. Script exceptions surface as a failed
// Result (exit code 1); only runtime setup failures return an error.
func (e *ScriptExecutor) Execute(ctx context.Context, step *types.Step, env *Environment) (*Result, error) {
	vm := goja.New()

	var console strings.Builder
	logFn := func(call goja.FunctionCall) goja.Value {
		parts := make([]string, len(call.Arguments))
		for i, arg := range call.Arguments {
			parts[i] = arg.String()
		}
		console.WriteString(strings.Join(parts, " "))
		console.WriteByte('\n')
		return goja.Undefined()
	}

	outputs := make(map[string]string)
	setup := map[string]any{
		"env":     env.Env,
		"steps":   env.Outputs,
		"console": map[string]any{"log": logFn, "error": logFn},
		"setOutput": func(name, value string) {
			outputs[name] = value
		},
	}
	for name, val := range setup {
		if err := vm.Set(name, val); err != nil {
			return nil, NewStepError(step.Label(), "failed to set up script runtime", err)
		}
	}

	// Cancellation interrupts the running script.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			vm.Interrupt(ctx.Err())
		case <-done:
		}
	}()

	_, runErr := vm.RunString(step.Script)

	result := &Result{Output: console.String()}
	if len(outputs) > 0 {
		result.Outputs = outputs
	}

	if runErr != nil {
		var interrupted *goja.InterruptedError
		if errors.As(runErr, &interrupted) {
			result.ExitCode = -1
			return result, ctx.Err()
		}
		result.ExitCode = 1
		result.Output += fmt.Sprintf("script error: %v\n", runErr)
		return result, nil
	}

	return result, nil
}

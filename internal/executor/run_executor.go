package executor

import (
	"bytes"
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"

	"ciq/pipeline-engine/pkg/types"
)

// RunExecutorType identifies shell command steps.
const RunExecutorType = "run"

// outputsFileEnv names the env var pointing steps at their outputs file.
const outputsFileEnv = "STEP_OUTPUTS"

// RunExecutor executes run steps through a shell.
type RunExecutor struct {
	shell     string
	shellArgs []string
}

// NewRunExecutor creates a run executor with the platform default shell.
func NewRunExecutor() *RunExecutor {
	if runtime.GOOS == "windows" {
		return &RunExecutor{shell: "cmd", shellArgs: []string{"/C"}}
	}
	return &RunExecutor{shell: "/bin/sh", shellArgs: []string{"-c"}}
}

// Type returns the step kind this executor handles.
func (e *RunExecutor) Type() string {
	return RunExecutorType
}

// Execute runs the step command through the shell. The command's exit
// code lands in the Result; only setup failures return an error.
func (e *RunExecutor) Execute(ctx context.Context, step *types.Step, env *Environment) (*Result, error) {
	shell := e.shell
	args := e.shellArgs
	if override := pickShell(step, env); override != "" {
		shell = override
		args = []string{"-c"}
	}

	outputsPath, err := newOutputsFile()
	if err != nil {
		return nil, NewStepError(step.Label(), "failed to create outputs file", err)
	}
	defer os.Remove(outputsPath)

	cmd := exec.CommandContext(ctx, shell, append(args, step.Run)...)
	cmd.Dir = env.WorkingDir
	cmd.Env = flattenEnv(env.Env, outputsPath)

	var buf bytes.Buffer
	cmd.Stdout = &buf
	cmd.Stderr = &buf

	runErr := cmd.Run()

	result := &Result{Output: buf.String()}
	result.Outputs, err = readOutputsFile(outputsPath)
	if err != nil {
		return nil, NewStepError(step.Label(), "failed to read step outputs", err)
	}

	if runErr != nil {
		var exitErr *exec.ExitError
		if errors.As(runErr, &exitErr) {
			result.ExitCode = exitErr.ExitCode()
			return result, nil
		}
		if ctx.Err() != nil {
			result.ExitCode = -1
			return result, ctx.Err()
		}
		return nil, NewStepError(step.Label(), "failed to start command", runErr)
	}

	return result, nil
}

// pickShell resolves the shell override for a step.
func pickShell(step *types.Step, env *Environment) string {
	if step.Shell != "" {
		return step.Shell
	}
	return env.Shell
}

// newOutputsFile creates the empty temp file a step writes outputs to.
func newOutputsFile() (string, error) {
	f, err := os.CreateTemp("", "step-outputs-*")
	if err != nil {
		return "", err
	}
	path := f.Name()
	return path, f.Close()
}

// readOutputsFile parses name=value lines from the outputs file.
func readOutputsFile(path string) (map[string]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, nil
	}

	outputs := make(map[string]string)
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		name, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		outputs[strings.TrimSpace(name)] = strings.TrimSpace(value)
	}
	if len(outputs) == 0 {
		return nil, nil
	}
	return outputs, nil
}

// flattenEnv renders the env map as KEY=VALUE pairs plus the outputs
// file location, on top of a minimal inherited PATH.
func flattenEnv(env map[string]string, outputsPath string) []string {
	out := make([]string, 0, len(env)+2)
	if _, ok := env["PATH"]; !ok {
		out = append(out, "PATH="+os.Getenv("PATH"))
	}
	for k, v := range env {
		out = append(out, k+"="+v)
	}
	out = append(out, outputsFileEnv+"="+filepath.ToSlash(outputsPath))
	return out
}

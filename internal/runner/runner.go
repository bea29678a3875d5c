// Package runner executes a single job run: step sequencing,
// condition evaluation, environment merging and timeouts.
package runner

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"ciq/pipeline-engine/internal/executor"
	"ciq/pipeline-engine/internal/expression"
	"ciq/pipeline-engine/internal/matrix"
	"ciq/pipeline-engine/internal/secrets"
	"ciq/pipeline-engine/pkg/logger"
	"ciq/pipeline-engine/pkg/types"
)

// JobRequest describes one job leg to execute.
type JobRequest struct {
	Pipeline *types.Pipeline
	JobName  string
	Job      *types.Job
	Leg      matrix.Leg
	Event    *types.Event
	// Secrets are the values granted to this job.
	Secrets map[string]string
}

// Runner executes job requests.
type Runner struct {
	registry *executor.Registry
}

// New creates a Runner backed by the given executor registry.
// A nil registry uses the built-in executors.
func New(registry *executor.Registry) *Runner {
	if registry == nil {
		registry = executor.DefaultRegistry
	}
	return &Runner{registry: registry}
}

// RunJob executes all steps of one job leg and returns the JobRun.
// The returned JobRun always has a terminal status.
func (r *Runner) RunJob(ctx context.Context, req *JobRequest) *types.JobRun {
	jobRun := &types.JobRun{
		ID:        uuid.NewString(),
		Job:       req.JobName,
		Leg:       req.Leg.Name(),
		Matrix:    req.Leg.Values,
		Status:    types.StatusRunning,
		StartedAt: time.Now().UTC(),
	}

	exprCtx := r.buildContext(req)

	// Job-level condition.
	if req.Job.If != "" {
		fire, err := expression.EvaluateCondition(req.Job.If, exprCtx)
		if err != nil {
			return finish(jobRun, types.StatusFailed, fmt.Sprintf("job condition: %v", err))
		}
		if !fire {
			return finish(jobRun, types.StatusSkipped, "")
		}
	}

	timeout := time.Duration(req.Job.Timeout()) * time.Minute
	jobCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	masker := secrets.NewMasker(valuesOf(req.Secrets))
	stepOutputs := make(map[string]map[string]string)

	failed := false
	for i := range req.Job.Steps {
		step := &req.Job.Steps[i]

		exprCtx.Failed = failed
		exprCtx.Cancelled = jobCtx.Err() != nil || ctx.Err() != nil

		result := r.runStep(jobCtx, req, step, exprCtx, stepOutputs, masker)
		jobRun.Steps = append(jobRun.Steps, result)

		if result.Status == types.StatusFailed && !step.ContinueOnError {
			failed = true
		}
		if step.ID != "" && len(result.Outputs) > 0 {
			stepOutputs[step.ID] = result.Outputs
			exprCtx.Set("steps", step.ID, toAnyMap(result.Outputs))
		}
	}

	switch {
	case ctx.Err() != nil:
		return finish(jobRun, types.StatusCancelled, "")
	case jobCtx.Err() != nil:
		return finish(jobRun, types.StatusFailed, fmt.Sprintf("job exceeded %s timeout", timeout))
	case failed:
		return finish(jobRun, types.StatusFailed, "")
	default:
		return finish(jobRun, types.StatusSucceeded, "")
	}
}

// runStep evaluates the step condition and executes the command.
func (r *Runner) runStep(
	ctx context.Context,
	req *JobRequest,
	step *types.Step,
	exprCtx *expression.Context,
	stepOutputs map[string]map[string]string,
	masker *secrets.Masker,
) *types.StepResult {
	result := &types.StepResult{
		StepID:    step.ID,
		Name:      step.Label(),
		StartedAt: time.Now().UTC(),
	}

	fire, err := expression.EvaluateCondition(step.If, exprCtx)
	if err != nil {
		return sealStep(result, types.StatusFailed, fmt.Sprintf("step condition: %v", err))
	}
	if !fire {
		return sealStep(result, types.StatusSkipped, "")
	}

	prepared, err := r.prepareStep(req, step, exprCtx)
	if err != nil {
		return sealStep(result, types.StatusFailed, err.Error())
	}

	exec, err := r.registry.ForStep(prepared)
	if err != nil {
		return sealStep(result, types.StatusFailed, err.Error())
	}

	stepCtx := ctx
	if prepared.TimeoutMinutes > 0 {
		var cancel context.CancelFunc
		stepCtx, cancel = context.WithTimeout(ctx, time.Duration(prepared.TimeoutMinutes)*time.Minute)
		defer cancel()
	}

	env := &executor.Environment{
		Env:        r.stepEnv(req, prepared, exprCtx),
		WorkingDir: workingDir(req.Pipeline, prepared),
		Shell:      shellFor(req.Pipeline, prepared),
		Outputs:    stepOutputs,
	}

	logger.Debug("executing step",
		zap.String("pipeline", req.Pipeline.Name),
		zap.String("job", req.JobName),
		zap.String("leg", req.Leg.Name()),
		zap.String("step", prepared.Label()),
	)

	execResult, execErr := exec.Execute(stepCtx, prepared, env)
	if execResult != nil {
		result.ExitCode = execResult.ExitCode
		result.Output = masker.Mask(execResult.Output)
		result.Outputs = execResult.Outputs
	}

	switch {
	case execErr != nil && errors.Is(execErr, context.Canceled):
		return sealStep(result, types.StatusCancelled, "")
	case execErr != nil && errors.Is(execErr, context.DeadlineExceeded):
		return sealStep(result, types.StatusFailed, "step timed out")
	case execErr != nil:
		return sealStep(result, types.StatusFailed, masker.Mask(execErr.Error()))
	case result.ExitCode != 0:
		return sealStep(result, types.StatusFailed, fmt.Sprintf("exit code %d", result.ExitCode))
	default:
		return sealStep(result, types.StatusSucceeded, "")
	}
}

// prepareStep interpolates expressions in the step's fields.
func (r *Runner) prepareStep(req *JobRequest, step *types.Step, exprCtx *expression.Context) (*types.Step, error) {
	prepared := *step

	var err error
	if prepared.Run, err = expression.Interpolate(step.Run, exprCtx); err != nil {
		return nil, fmt.Errorf("interpolating run: %w", err)
	}
	if prepared.Script, err = expression.Interpolate(step.Script, exprCtx); err != nil {
		return nil, fmt.Errorf("interpolating script: %w", err)
	}
	if len(step.Env) > 0 {
		prepared.Env = make(map[string]string, len(step.Env))
		for k, v := range step.Env {
			if prepared.Env[k], err = expression.Interpolate(v, exprCtx); err != nil {
				return nil, fmt.Errorf("interpolating env %s: %w", k, err)
			}
		}
	}
	return &prepared, nil
}

// stepEnv merges the environment layers for a step. Later layers win:
// pipeline env, job env, matrix values, secrets, step env.
func (r *Runner) stepEnv(req *JobRequest, step *types.Step, exprCtx *expression.Context) map[string]string {
	env := make(map[string]string)
	for k, v := range req.Pipeline.Env {
		env[k] = v
	}
	for k, v := range req.Job.Env {
		env[k] = v
	}
	for _, axis := range req.Leg.Order {
		env["MATRIX_"+strings.ToUpper(strings.ReplaceAll(axis, "-", "_"))] = renderValue(req.Leg.Values[axis])
	}
	for k, v := range req.Secrets {
		env[k] = v
	}
	for k, v := range step.Env {
		env[k] = v
	}

	// Interpolate merged values once step env has been layered in.
	for k, v := range env {
		if expression.HasExpression(v) {
			if resolved, err := expression.Interpolate(v, exprCtx); err == nil {
				env[k] = resolved
			}
		}
	}
	return env
}

// buildContext assembles the expression scopes for a job request.
func (r *Runner) buildContext(req *JobRequest) *expression.Context {
	envScope := make(map[string]any)
	for k, v := range req.Pipeline.Env {
		envScope[k] = v
	}
	for k, v := range req.Job.Env {
		envScope[k] = v
	}

	secretsScope := make(map[string]any, len(req.Secrets))
	for k, v := range req.Secrets {
		secretsScope[k] = v
	}

	matrixScope := make(map[string]any, len(req.Leg.Values))
	for k, v := range req.Leg.Values {
		matrixScope[k] = v
	}

	return expression.NewContext().
		WithScope("event", req.Event.Context()).
		WithScope("env", envScope).
		WithScope("secrets", secretsScope).
		WithScope("matrix", matrixScope).
		WithScope("pipeline", map[string]any{"name": req.Pipeline.Name}).
		WithScope("job", map[string]any{"name": req.JobName, "leg": req.Leg.Name()}).
		WithScope("steps", map[string]any{})
}

func workingDir(pipeline *types.Pipeline, step *types.Step) string {
	if step.WorkingDir != "" {
		return step.WorkingDir
	}
	return pipeline.Defaults.WorkingDir
}

func shellFor(pipeline *types.Pipeline, step *types.Step) string {
	if step.Shell != "" {
		return step.Shell
	}
	return pipeline.Defaults.Shell
}

func finish(jobRun *types.JobRun, status types.RunStatus, errMsg string) *types.JobRun {
	jobRun.Status = status
	jobRun.Error = errMsg
	jobRun.FinishedAt = time.Now().UTC()
	return jobRun
}

func sealStep(result *types.StepResult, status types.RunStatus, errMsg string) *types.StepResult {
	result.Status = status
	result.Error = errMsg
	result.FinishedAt = time.Now().UTC()
	result.Duration = result.FinishedAt.Sub(result.StartedAt)
	return result
}

func valuesOf(m map[string]string) []string {
	out := make([]string, 0, len(m))
	for _, v := range m {
		out = append(out, v)
	}
	return out
}

func toAnyMap(m map[string]string) any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func renderValue(v any) string {
	switch val := v.(type) {
	case string:
		return val
	default:
		return fmt.Sprintf("%v", v)
	}
}

// Package scheduler turns matched events into pipeline runs and owns
// the run lifecycle: concurrency groups, matrix fan-out and cancellation.
package scheduler

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"ciq/pipeline-engine/internal/expression"
	"ciq/pipeline-engine/internal/matrix"
	"ciq/pipeline-engine/internal/runner"
	"ciq/pipeline-engine/internal/secrets"
	"ciq/pipeline-engine/internal/trigger"
	"ciq/pipeline-engine/pkg/logger"
	"ciq/pipeline-engine/pkg/types"
)

// Notifier receives every run once it reaches a terminal status.
type Notifier interface {
	RunFinished(ctx context.Context, run *types.PipelineRun)
}

// Config controls scheduler-wide limits.
type Config struct {
	// MaxConcurrentRuns caps runs executing at once across all
	// pipelines. Zero means the default.
	MaxConcurrentRuns int
}

// DefaultMaxConcurrentRuns applies when the config leaves the cap unset.
const DefaultMaxConcurrentRuns = 16

// Scheduler owns registered pipelines and their runs.
type Scheduler struct {
	mu        sync.RWMutex
	pipelines map[string]*types.Pipeline
	runs      map[string]*runState
	order     []string

	groupMu sync.Mutex
	groups  map[string]*sync.Mutex

	matcher  *trigger.Matcher
	runner   *runner.Runner
	store    *secrets.Store
	notifier Notifier

	slots chan struct{}
	wg    sync.WaitGroup
}

// runState pairs a run with its cancel function. mu guards every
// mutation of the run after it is published; readers get snapshots.
type runState struct {
	mu     sync.Mutex
	run    *types.PipelineRun
	cancel context.CancelFunc
}

func (st *runState) update(fn func(run *types.PipelineRun)) {
	st.mu.Lock()
	defer st.mu.Unlock()
	fn(st.run)
}

func (st *runState) status() types.RunStatus {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.run.Status
}

// snapshot copies the mutable parts of the run. Job runs are only
// appended once terminal and events are immutable after Start, so
// sharing those pointers is safe.
func (st *runState) snapshot() *types.PipelineRun {
	st.mu.Lock()
	defer st.mu.Unlock()
	clone := *st.run
	clone.Jobs = append([]*types.JobRun(nil), st.run.Jobs...)
	return &clone
}

// New creates a Scheduler. A nil store means no secrets are available.
func New(cfg Config, r *runner.Runner, store *secrets.Store) *Scheduler {
	max := cfg.MaxConcurrentRuns
	if max <= 0 {
		max = DefaultMaxConcurrentRuns
	}
	if store == nil {
		store = secrets.NewStore()
	}
	if r == nil {
		r = runner.New(nil)
	}
	return &Scheduler{
		pipelines: make(map[string]*types.Pipeline),
		runs:      make(map[string]*runState),
		groups:    make(map[string]*sync.Mutex),
		matcher:   trigger.NewMatcher(),
		runner:    r,
		store:     store,
		slots:     make(chan struct{}, max),
	}
}

// SetNotifier registers the sink for finished runs.
func (s *Scheduler) SetNotifier(n Notifier) {
	s.notifier = n
}

// RegisterPipeline adds or replaces a pipeline definition.
func (s *Scheduler) RegisterPipeline(p *types.Pipeline) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pipelines[p.Name] = p
}

// Pipeline returns a registered pipeline by name.
func (s *Scheduler) Pipeline(name string) (*types.Pipeline, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.pipelines[name]
	return p, ok
}

// Pipelines returns the registered pipelines sorted by name.
func (s *Scheduler) Pipelines() []*types.Pipeline {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*types.Pipeline, 0, len(s.pipelines))
	for _, p := range s.pipelines {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// HandleEvent matches the event against every registered pipeline and
// starts a run for each one that fires.
func (s *Scheduler) HandleEvent(ctx context.Context, event *types.Event) []*types.PipelineRun {
	var started []*types.PipelineRun
	for _, p := range s.Pipelines() {
		decision := s.matcher.Match(p, event)
		if !decision.Fire {
			logger.Debug("event did not fire pipeline",
				zap.String("pipeline", p.Name),
				zap.String("event", string(event.Kind)),
				zap.String("reason", decision.Reason),
			)
			continue
		}
		started = append(started, s.Start(ctx, p, event))
	}
	return started
}

// Dispatch manually triggers one pipeline, resolving dispatch inputs.
func (s *Scheduler) Dispatch(ctx context.Context, name string, event *types.Event) (*types.PipelineRun, error) {
	p, ok := s.Pipeline(name)
	if !ok {
		return nil, fmt.Errorf("pipeline %q not registered", name)
	}
	if p.On.Dispatch == nil {
		return nil, fmt.Errorf("pipeline %q does not accept manual dispatch", name)
	}

	inputs, err := trigger.ResolveInputs(p.On.Dispatch, event.Inputs)
	if err != nil {
		return nil, err
	}
	event.Inputs = inputs

	return s.Start(ctx, p, event), nil
}

// Start creates a run for the pipeline and executes it asynchronously.
func (s *Scheduler) Start(ctx context.Context, p *types.Pipeline, event *types.Event) *types.PipelineRun {
	run := &types.PipelineRun{
		ID:        uuid.NewString(),
		Pipeline:  p.Name,
		Event:     event,
		Status:    types.StatusPending,
		CreatedAt: time.Now().UTC(),
	}
	run.Group = s.groupKey(p, event, run.ID)

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))

	state := &runState{run: run, cancel: cancel}
	s.mu.Lock()
	s.runs[run.ID] = state
	s.order = append(s.order, run.ID)
	s.mu.Unlock()

	if p.Concurrency != nil && p.Concurrency.CancelInProgress {
		s.cancelGroup(run.Group, run.ID)
	}

	s.wg.Add(1)
	go s.execute(runCtx, cancel, p, state)

	logger.Info("run created",
		zap.String("run_id", run.ID),
		zap.String("pipeline", p.Name),
		zap.String("group", run.Group),
		zap.String("event", string(event.Kind)),
	)
	return state.snapshot()
}

// Get returns a snapshot of a run by ID.
func (s *Scheduler) Get(id string) (*types.PipelineRun, bool) {
	s.mu.RLock()
	state, ok := s.runs[id]
	s.mu.RUnlock()
	if !ok {
		return nil, false
	}
	return state.snapshot(), true
}

// List returns snapshots of all runs, newest first.
func (s *Scheduler) List() []*types.PipelineRun {
	s.mu.RLock()
	states := make([]*runState, 0, len(s.order))
	for i := len(s.order) - 1; i >= 0; i-- {
		states = append(states, s.runs[s.order[i]])
	}
	s.mu.RUnlock()

	out := make([]*types.PipelineRun, 0, len(states))
	for _, state := range states {
		out = append(out, state.snapshot())
	}
	return out
}

// Cancel requests cancellation of a run. Cancelling a terminal run is
// a no-op and reports false.
func (s *Scheduler) Cancel(id string) bool {
	s.mu.RLock()
	state, ok := s.runs[id]
	s.mu.RUnlock()
	if !ok || state.status().Terminal() {
		return false
	}
	state.cancel()
	return true
}

// Stop waits for in-flight runs to finish or the context to expire.
func (s *Scheduler) Stop(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// execute drives one run to a terminal status.
func (s *Scheduler) execute(ctx context.Context, cancel context.CancelFunc, p *types.Pipeline, state *runState) {
	defer s.wg.Done()
	defer cancel()

	run := state.run

	// Runs sharing a group key execute one at a time, oldest first.
	lock := s.groupLock(run.Group)
	lock.Lock()
	defer lock.Unlock()

	select {
	case s.slots <- struct{}{}:
		defer func() { <-s.slots }()
	case <-ctx.Done():
		s.finishRun(ctx, state, types.StatusCancelled)
		return
	}

	if ctx.Err() != nil {
		s.finishRun(ctx, state, types.StatusCancelled)
		return
	}

	state.update(func(run *types.PipelineRun) {
		run.Status = types.StatusRunning
		run.StartedAt = time.Now().UTC()
	})

	jobNames := make([]string, 0, len(p.Jobs))
	for name := range p.Jobs {
		jobNames = append(jobNames, name)
	}
	sort.Strings(jobNames)

	var jobsWG sync.WaitGroup
	for _, name := range jobNames {
		jobsWG.Add(1)
		go func(name string, job *types.Job) {
			defer jobsWG.Done()
			results := s.executeJob(ctx, p, name, job, run.Event)
			state.update(func(run *types.PipelineRun) {
				run.Jobs = append(run.Jobs, results...)
			})
		}(name, p.Jobs[name])
	}
	jobsWG.Wait()

	status := types.StatusSucceeded
	state.update(func(run *types.PipelineRun) {
		sort.Slice(run.Jobs, func(i, j int) bool {
			if run.Jobs[i].Job != run.Jobs[j].Job {
				return run.Jobs[i].Job < run.Jobs[j].Job
			}
			return run.Jobs[i].Leg < run.Jobs[j].Leg
		})
		for _, jr := range run.Jobs {
			if jr.Status == types.StatusFailed {
				status = types.StatusFailed
				break
			}
		}
	})
	if ctx.Err() != nil {
		status = types.StatusCancelled
	}
	s.finishRun(ctx, state, status)
}

// executeJob fans a job out across its matrix legs.
func (s *Scheduler) executeJob(ctx context.Context, p *types.Pipeline, name string, job *types.Job, event *types.Event) []*types.JobRun {
	var m *types.Matrix
	maxParallel := 0
	if job.Strategy != nil {
		m = job.Strategy.Matrix
		maxParallel = job.Strategy.MaxParallel
	}

	legs, err := matrix.Expand(m)
	if err != nil {
		return []*types.JobRun{failedJobRun(name, err)}
	}
	if maxParallel <= 0 || maxParallel > len(legs) {
		maxParallel = len(legs)
	}

	granted, err := s.store.Subset(job.Secrets)
	if err != nil {
		return []*types.JobRun{failedJobRun(name, err)}
	}

	// Fail-fast cancels sibling legs of this job only.
	jobCtx, cancelLegs := context.WithCancel(ctx)
	defer cancelLegs()

	results := make([]*types.JobRun, len(legs))
	sem := make(chan struct{}, maxParallel)
	var wg sync.WaitGroup

	for i, leg := range legs {
		wg.Add(1)
		go func(i int, leg matrix.Leg) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			results[i] = s.runner.RunJob(jobCtx, &runner.JobRequest{
				Pipeline: p,
				JobName:  name,
				Job:      job,
				Leg:      leg,
				Event:    event,
				Secrets:  granted,
			})

			if results[i].Status == types.StatusFailed && job.Strategy.FailFastEnabled() {
				cancelLegs()
			}
		}(i, leg)
	}
	wg.Wait()

	return results
}

// groupKey resolves the concurrency group for a run. With no
// concurrency block, each run gets its own group and never queues.
func (s *Scheduler) groupKey(p *types.Pipeline, event *types.Event, runID string) string {
	if p.Concurrency == nil || p.Concurrency.Group == "" {
		return p.Name + "-" + runID
	}

	ctx := expression.NewContext().
		WithScope("event", event.Context()).
		WithScope("pipeline", map[string]any{"name": p.Name})

	key, err := expression.Interpolate(p.Concurrency.Group, ctx)
	if err != nil || key == "" {
		logger.Warn("failed to resolve concurrency group, using fallback",
			zap.String("pipeline", p.Name),
			zap.Error(err),
		)
		return p.Name + "-" + event.Branch()
	}
	return key
}

// cancelGroup cancels every non-terminal run in the group except the
// one identified by keepID.
func (s *Scheduler) cancelGroup(group, keepID string) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for id, state := range s.runs {
		// Group is fixed before the state is published; Status is not.
		if id == keepID || state.run.Group != group || state.status().Terminal() {
			continue
		}
		logger.Info("cancelling superseded run",
			zap.String("run_id", id),
			zap.String("group", group),
		)
		state.cancel()
	}
}

func (s *Scheduler) groupLock(key string) *sync.Mutex {
	s.groupMu.Lock()
	defer s.groupMu.Unlock()
	lock, ok := s.groups[key]
	if !ok {
		lock = &sync.Mutex{}
		s.groups[key] = lock
	}
	return lock
}

func (s *Scheduler) finishRun(ctx context.Context, state *runState, status types.RunStatus) {
	state.update(func(run *types.PipelineRun) {
		run.Status = status
		run.FinishedAt = time.Now().UTC()
	})
	run := state.snapshot()
	logger.Info("run finished",
		zap.String("run_id", run.ID),
		zap.String("pipeline", run.Pipeline),
		zap.String("status", string(status)),
		zap.Duration("duration", run.Duration()),
	)
	if s.notifier != nil {
		s.notifier.RunFinished(context.WithoutCancel(ctx), run)
	}
}

func failedJobRun(name string, err error) *types.JobRun {
	now := time.Now().UTC()
	return &types.JobRun{
		ID:         uuid.NewString(),
		Job:        name,
		Status:     types.StatusFailed,
		Error:      err.Error(),
		StartedAt:  now,
		FinishedAt: now,
	}
}

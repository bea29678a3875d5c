package reporter

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"ciq/pipeline-engine/pkg/logger"
	"ciq/pipeline-engine/pkg/types"
)

// ConfigLookup resolves the reporter configuration for a pipeline by
// name. The second result is false when the pipeline is unknown.
type ConfigLookup func(pipeline string) ([]types.ReporterConfig, bool)

// Dispatcher routes each finished run to the reporters its own
// pipeline configures, building one Manager per pipeline lazily and
// caching it. It satisfies the scheduler's Notifier interface, for
// server mode where many pipelines with different reporter blocks
// share one scheduler.
type Dispatcher struct {
	mu       sync.Mutex
	registry *Registry
	lookup   ConfigLookup
	managers map[string]*Manager
}

// NewDispatcher creates a Dispatcher. A nil registry means the
// default registry.
func NewDispatcher(registry *Registry, lookup ConfigLookup) *Dispatcher {
	if registry == nil {
		registry = DefaultRegistry
	}
	return &Dispatcher{
		registry: registry,
		lookup:   lookup,
		managers: make(map[string]*Manager),
	}
}

// RunFinished reports the run through its pipeline's reporters. An
// unknown pipeline or a reporter that fails to initialize is logged
// and the run falls back to a bare console manager.
func (d *Dispatcher) RunFinished(ctx context.Context, run *types.PipelineRun) {
	m, err := d.managerFor(ctx, run.Pipeline)
	if err != nil {
		logger.Error("building reporters for pipeline",
			zap.String("pipeline", run.Pipeline),
			zap.String("run_id", run.ID),
			zap.Error(err),
		)
		return
	}
	m.RunFinished(ctx, run)
}

// Close flushes and closes every manager built so far.
func (d *Dispatcher) Close(ctx context.Context) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, m := range d.managers {
		m.Close(ctx)
	}
	d.managers = make(map[string]*Manager)
}

func (d *Dispatcher) managerFor(ctx context.Context, pipeline string) (*Manager, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if m, ok := d.managers[pipeline]; ok {
		return m, nil
	}

	var configs []types.ReporterConfig
	if d.lookup != nil {
		configs, _ = d.lookup(pipeline)
	}
	m, err := NewManager(ctx, d.registry, configs)
	if err != nil {
		return nil, err
	}
	d.managers[pipeline] = m
	return m, nil
}

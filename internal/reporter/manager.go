package reporter

import (
	"context"

	"go.uber.org/zap"

	"ciq/pipeline-engine/pkg/logger"
	"ciq/pipeline-engine/pkg/types"
)

// Manager fans finished runs out to a pipeline's configured reporters.
// It satisfies the scheduler's Notifier interface.
type Manager struct {
	reporters []Reporter
}

// NewManager builds reporters from the pipeline's reporter config.
// With no config it falls back to a console reporter. Disabled entries
// are skipped.
func NewManager(ctx context.Context, registry *Registry, configs []types.ReporterConfig) (*Manager, error) {
	if registry == nil {
		registry = DefaultRegistry
	}

	m := &Manager{}
	for i := range configs {
		cfg := &configs[i]
		if !cfg.IsEnabled() {
			continue
		}
		rep, err := registry.Create(ctx, cfg.Type, cfg.Config)
		if err != nil {
			m.close(ctx)
			return nil, err
		}
		m.reporters = append(m.reporters, rep)
	}

	if len(m.reporters) == 0 {
		rep, err := registry.Create(ctx, ConsoleReporterType, nil)
		if err != nil {
			return nil, err
		}
		m.reporters = append(m.reporters, rep)
	}
	return m, nil
}

// RunFinished summarizes the run and reports it to every sink. A
// failing reporter is logged and does not block the others.
func (m *Manager) RunFinished(ctx context.Context, run *types.PipelineRun) {
	summary := Summarize(run)
	for _, rep := range m.reporters {
		if err := rep.Report(ctx, summary); err != nil {
			logger.Error("reporter failed",
				zap.String("reporter", rep.Name()),
				zap.String("run_id", run.ID),
				zap.Error(err),
			)
		}
	}
}

// Flush flushes every reporter.
func (m *Manager) Flush(ctx context.Context) {
	for _, rep := range m.reporters {
		if err := rep.Flush(ctx); err != nil {
			logger.Warn("reporter flush failed", zap.String("reporter", rep.Name()), zap.Error(err))
		}
	}
}

// Close flushes and closes every reporter.
func (m *Manager) Close(ctx context.Context) {
	m.Flush(ctx)
	m.close(ctx)
}

func (m *Manager) close(ctx context.Context) {
	for _, rep := range m.reporters {
		if err := rep.Close(ctx); err != nil {
			logger.Warn("reporter close failed", zap.String("reporter", rep.Name()), zap.Error(err))
		}
	}
	m.reporters = nil
}

// Package reporter publishes finished-run results to configured sinks.
package reporter

import (
	"context"
	"fmt"
	"sync"

	"ciq/pipeline-engine/pkg/types"
)

// Reporter is one result sink.
type Reporter interface {
	// Name returns the reporter type name.
	Name() string

	// Init configures the reporter before first use.
	Init(ctx context.Context, config map[string]any) error

	// Report publishes one run summary.
	Report(ctx context.Context, summary *types.RunSummary) error

	// Flush forces out any buffered reports.
	Flush(ctx context.Context) error

	// Close releases the reporter's resources.
	Close(ctx context.Context) error
}

// Factory creates an uninitialized reporter of one type.
type Factory func() Reporter

// Registry maps reporter type names to factories.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry creates an empty reporter registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// Register adds a factory for a reporter type.
func (r *Registry) Register(name string, factory Factory) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.factories[name]; exists {
		return fmt.Errorf("reporter type already registered: %s", name)
	}
	r.factories[name] = factory
	return nil
}

// Create builds and initializes a reporter of the given type.
func (r *Registry) Create(ctx context.Context, name string, config map[string]any) (Reporter, error) {
	r.mu.RLock()
	factory, ok := r.factories[name]
	r.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("unknown reporter type: %s", name)
	}

	rep := factory()
	if err := rep.Init(ctx, config); err != nil {
		return nil, fmt.Errorf("initializing %s reporter: %w", name, err)
	}
	return rep, nil
}

// Types returns the registered reporter type names.
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.factories))
	for name := range r.factories {
		out = append(out, name)
	}
	return out
}

// DefaultRegistry carries the built-in reporter types.
var DefaultRegistry = NewRegistry()

func init() {
	_ = DefaultRegistry.Register(ConsoleReporterType, func() Reporter { return NewConsoleReporter() })
	_ = DefaultRegistry.Register(JSONReporterType, func() Reporter { return NewJSONReporter() })
	_ = DefaultRegistry.Register(WebhookReporterType, func() Reporter { return NewWebhookReporter() })
}

// configString reads an optional string key from a reporter config.
func configString(config map[string]any, key, fallback string) string {
	if v, ok := config[key].(string); ok && v != "" {
		return v
	}
	return fallback
}

// configInt reads an optional integer key from a reporter config.
// YAML decodes numbers as int; JSON as float64.
func configInt(config map[string]any, key string, fallback int) int {
	switch v := config[key].(type) {
	case int:
		return v
	case float64:
		return int(v)
	}
	return fallback
}

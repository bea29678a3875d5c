package reporter

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"ciq/pipeline-engine/pkg/types"
)

// JSONReporterType identifies the JSON lines file reporter.
const JSONReporterType = "json"

// JSONReporter appends one JSON document per finished run to a file.
type JSONReporter struct {
	mu   sync.Mutex
	file *os.File
	enc  *json.Encoder
}

// NewJSONReporter creates an unconfigured JSON reporter.
func NewJSONReporter() *JSONReporter {
	return &JSONReporter{}
}

// Name returns the reporter type name.
func (r *JSONReporter) Name() string {
	return JSONReporterType
}

// Init opens the output file. Required config key: path.
func (r *JSONReporter) Init(_ context.Context, config map[string]any) error {
	path := configString(config, "path", "")
	if path == "" {
		return fmt.Errorf("json reporter requires a path")
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("opening report file: %w", err)
	}
	r.file = f
	r.enc = json.NewEncoder(f)
	return nil
}

// Report appends the summary as one JSON line.
func (r *JSONReporter) Report(_ context.Context, summary *types.RunSummary) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.enc == nil {
		return fmt.Errorf("json reporter not initialized")
	}
	return r.enc.Encode(summary)
}

// Flush syncs the report file to disk.
func (r *JSONReporter) Flush(context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.file == nil {
		return nil
	}
	return r.file.Sync()
}

// Close closes the report file.
func (r *JSONReporter) Close(context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.file == nil {
		return nil
	}
	err := r.file.Close()
	r.file = nil
	r.enc = nil
	return err
}

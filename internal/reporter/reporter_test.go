package reporter

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ciq/pipeline-engine/pkg/types"
)

func sampleRun() *types.PipelineRun {
	now := time.Now().UTC()
	return &types.PipelineRun{
		ID:         "run-1",
		Pipeline:   "integration",
		Group:      "integration-main",
		Event:      &types.Event{Kind: types.EventPush, Ref: "refs/heads/main"},
		Status:     types.StatusFailed,
		StartedAt:  now.Add(-time.Minute),
		FinishedAt: now,
		Jobs: []*types.JobRun{
			{
				Job: "test", Leg: "dep=pinned, python=3.11", Status: types.StatusSucceeded,
				Steps: []*types.StepResult{
					{Name: "pytest", Status: types.StatusSucceeded, Duration: 2 * time.Second},
				},
			},
			{
				Job: "test", Leg: "dep=latest, python=3.12", Status: types.StatusFailed,
				Error: "exit code 1",
				Steps: []*types.StepResult{
					{Name: "pytest", Status: types.StatusFailed, Duration: 8 * time.Second},
					{Name: "cleanup", Status: types.StatusSkipped},
				},
			},
		},
	}
}

func TestSummarizeCountsAndPercentiles(t *testing.T) {
	summary := Summarize(sampleRun())

	assert.Equal(t, 2, summary.Total)
	assert.Equal(t, 1, summary.Passed)
	assert.Equal(t, 1, summary.Failed)
	assert.Equal(t, 0, summary.Skipped)

	// Skipped steps are not recorded; two samples at 2s and 8s.
	assert.InDelta(t, float64(5*time.Second), float64(summary.StepAvg), float64(100*time.Millisecond))
	assert.InDelta(t, float64(8*time.Second), float64(summary.StepP99), float64(100*time.Millisecond))
}

func TestSummarizeEmptyRun(t *testing.T) {
	summary := Summarize(&types.PipelineRun{Status: types.StatusSucceeded})
	assert.Zero(t, summary.Total)
	assert.Zero(t, summary.StepAvg)
}

func TestConsoleReporter(t *testing.T) {
	rep := NewConsoleReporter()
	require.NoError(t, rep.Init(context.Background(), map[string]any{"verbose": true}))

	var buf bytes.Buffer
	rep.SetOutput(&buf)

	require.NoError(t, rep.Report(context.Background(), Summarize(sampleRun())))

	out := buf.String()
	assert.Contains(t, out, "integration: failed")
	assert.Contains(t, out, "dep=latest, python=3.12")
	assert.Contains(t, out, "exit code 1")
	assert.Contains(t, out, "pytest")
}

func TestJSONReporterAppendsLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "runs.jsonl")

	rep := NewJSONReporter()
	require.NoError(t, rep.Init(context.Background(), map[string]any{"path": path}))

	require.NoError(t, rep.Report(context.Background(), Summarize(sampleRun())))
	require.NoError(t, rep.Report(context.Background(), Summarize(sampleRun())))
	require.NoError(t, rep.Close(context.Background()))

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	lines := 0
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 1024*1024), 1024*1024)
	for scanner.Scan() {
		var summary types.RunSummary
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &summary))
		assert.Equal(t, "run-1", summary.Run.ID)
		lines++
	}
	assert.Equal(t, 2, lines)
}

func TestJSONReporterRequiresPath(t *testing.T) {
	rep := NewJSONReporter()
	assert.Error(t, rep.Init(context.Background(), nil))
}

func TestWebhookReporterDelivers(t *testing.T) {
	var got atomic.Value
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var summary types.RunSummary
		require.NoError(t, json.NewDecoder(r.Body).Decode(&summary))
		got.Store(summary.Run.ID)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.Equal(t, "token", r.Header.Get("X-Auth"))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	rep := NewWebhookReporter()
	require.NoError(t, rep.Init(context.Background(), map[string]any{
		"url":     server.URL,
		"headers": map[string]any{"X-Auth": "token"},
	}))

	require.NoError(t, rep.Report(context.Background(), Summarize(sampleRun())))
	assert.Equal(t, "run-1", got.Load())
}

func TestWebhookReporterRetriesThenFails(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	rep := NewWebhookReporter()
	require.NoError(t, rep.Init(context.Background(), map[string]any{
		"url":     server.URL,
		"retries": 2,
	}))

	err := rep.Report(context.Background(), Summarize(sampleRun()))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "after 3 attempts")
	assert.Equal(t, int32(3), hits.Load())
}

func TestWebhookReporterRequiresURL(t *testing.T) {
	assert.Error(t, NewWebhookReporter().Init(context.Background(), nil))
}

func TestRegistryUnknownType(t *testing.T) {
	_, err := DefaultRegistry.Create(context.Background(), "influxdb", nil)
	assert.ErrorContains(t, err, "unknown reporter type")
}

func TestManagerDefaultsToConsole(t *testing.T) {
	m, err := NewManager(context.Background(), nil, nil)
	require.NoError(t, err)
	require.Len(t, m.reporters, 1)
	assert.Equal(t, ConsoleReporterType, m.reporters[0].Name())
}

func TestDispatcherUsesPipelineReporters(t *testing.T) {
	path := filepath.Join(t.TempDir(), "runs.jsonl")
	configs := map[string][]types.ReporterConfig{
		"integration": {{Type: JSONReporterType, Config: map[string]any{"path": path}}},
	}

	d := NewDispatcher(nil, func(name string) ([]types.ReporterConfig, bool) {
		cfg, ok := configs[name]
		return cfg, ok
	})
	defer d.Close(context.Background())

	// sampleRun belongs to "integration", which configures the JSON
	// reporter; a second pipeline without a reporters block falls back
	// to console.
	d.RunFinished(context.Background(), sampleRun())

	other := sampleRun()
	other.Pipeline = "unconfigured"
	d.RunFinished(context.Background(), other)

	d.Close(context.Background())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var summary types.RunSummary
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(data), &summary))
	assert.Equal(t, "run-1", summary.Run.ID)
	assert.Equal(t, "integration", summary.Run.Pipeline)
}

func TestDispatcherCachesManagers(t *testing.T) {
	lookups := 0
	d := NewDispatcher(nil, func(name string) ([]types.ReporterConfig, bool) {
		lookups++
		return nil, true
	})
	defer d.Close(context.Background())

	d.RunFinished(context.Background(), sampleRun())
	d.RunFinished(context.Background(), sampleRun())

	assert.Equal(t, 1, lookups)
	assert.Len(t, d.managers, 1)
}

func TestManagerSkipsDisabledReporters(t *testing.T) {
	disabled := false
	path := filepath.Join(t.TempDir(), "runs.jsonl")

	m, err := NewManager(context.Background(), nil, []types.ReporterConfig{
		{Type: JSONReporterType, Config: map[string]any{"path": path}},
		{Type: WebhookReporterType, Enabled: &disabled},
	})
	require.NoError(t, err)
	require.Len(t, m.reporters, 1)
	assert.Equal(t, JSONReporterType, m.reporters[0].Name())
	m.Close(context.Background())
}

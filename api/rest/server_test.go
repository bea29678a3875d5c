package rest

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ciq/pipeline-engine/internal/scheduler"
	"ciq/pipeline-engine/pkg/types"
)

func testPipeline() *types.Pipeline {
	return &types.Pipeline{
		Name: "integration",
		On: types.Triggers{
			Push: &types.PushTrigger{Branches: []string{"main"}},
			Dispatch: &types.DispatchTrigger{
				Inputs: map[string]types.DispatchInput{
					"level": {Default: "info"},
				},
			},
			Schedule: []types.Schedule{{Cron: "30 5 * * *"}},
		},
		Jobs: map[string]*types.Job{
			"test": {Steps: []types.Step{{Script: `console.log("ok")`}}},
		},
	}
}

func newTestServer(t *testing.T) (*Server, *scheduler.Scheduler) {
	t.Helper()
	sched := scheduler.New(scheduler.Config{}, nil, nil)
	sched.RegisterPipeline(testPipeline())
	return NewServer(sched, nil), sched
}

func doJSON(t *testing.T, s *Server, method, path string, body any) *http.Response {
	t.Helper()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := s.App().Test(req, 15000)
	require.NoError(t, err)
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var out T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func waitTerminal(t *testing.T, sched *scheduler.Scheduler, id string) *types.PipelineRun {
	t.Helper()
	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		run, ok := sched.Get(id)
		require.True(t, ok)
		if run.Status.Terminal() {
			return run
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("run %s never finished", id)
	return nil
}

func TestHealthz(t *testing.T) {
	s, _ := newTestServer(t)

	resp := doJSON(t, s, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	health := decode[HealthResponse](t, resp)
	assert.Equal(t, "healthy", health.Status)
	assert.Equal(t, 1, health.Pipelines)
}

func TestReceivePushEventStartsRun(t *testing.T) {
	s, sched := newTestServer(t)

	resp := doJSON(t, s, http.MethodPost, "/api/v1/events", EventRequest{
		Kind: "push",
		Payload: map[string]any{
			"ref": "refs/heads/main",
			"commits": []any{
				map[string]any{"modified": []any{"engine/core.py"}},
			},
		},
	})
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)

	body := decode[EventResponse](t, resp)
	require.Len(t, body.Started, 1)
	assert.Equal(t, "integration", body.Started[0].Pipeline)

	run := waitTerminal(t, sched, body.Started[0].ID)
	assert.Equal(t, types.StatusSucceeded, run.Status)
}

func TestReceiveEventNonMatchingBranch(t *testing.T) {
	s, _ := newTestServer(t)

	resp := doJSON(t, s, http.MethodPost, "/api/v1/events", EventRequest{
		Kind:    "push",
		Payload: map[string]any{"ref": "refs/heads/feature"},
	})
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
	assert.Empty(t, decode[EventResponse](t, resp).Started)
}

func TestReceiveEventRejectsBadKind(t *testing.T) {
	s, _ := newTestServer(t)

	resp := doJSON(t, s, http.MethodPost, "/api/v1/events", EventRequest{
		Kind:    "schedule",
		Payload: map[string]any{},
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "invalid_request", decode[ErrorResponse](t, resp).Error)
}

func TestListPipelines(t *testing.T) {
	s, _ := newTestServer(t)

	resp := doJSON(t, s, http.MethodGet, "/api/v1/pipelines", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	pipelines := decode[[]PipelineInfo](t, resp)
	require.Len(t, pipelines, 1)
	assert.Equal(t, "integration", pipelines[0].Name)
	assert.Equal(t, []string{"test"}, pipelines[0].Jobs)
	assert.Equal(t, []string{"30 5 * * *"}, pipelines[0].Schedules)
	assert.True(t, pipelines[0].Dispatch)
}

func TestDispatchPipeline(t *testing.T) {
	s, sched := newTestServer(t)

	resp := doJSON(t, s, http.MethodPost, "/api/v1/pipelines/integration/dispatch", DispatchRequest{})
	assert.Equal(t, http.StatusCreated, resp.StatusCode)

	info := decode[RunInfo](t, resp)
	assert.Equal(t, "dispatch", info.Event)

	run := waitTerminal(t, sched, info.ID)
	assert.Equal(t, "info", run.Event.Inputs["level"])
}

func TestDispatchUnknownPipeline(t *testing.T) {
	s, _ := newTestServer(t)

	resp := doJSON(t, s, http.MethodPost, "/api/v1/pipelines/nope/dispatch", DispatchRequest{})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestDispatchUndeclaredInput(t *testing.T) {
	s, _ := newTestServer(t)

	resp := doJSON(t, s, http.MethodPost, "/api/v1/pipelines/integration/dispatch", DispatchRequest{
		Inputs: map[string]string{"bogus": "x"},
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, decode[ErrorResponse](t, resp).Message, "undeclared")
}

func TestRunLifecycleEndpoints(t *testing.T) {
	s, sched := newTestServer(t)

	resp := doJSON(t, s, http.MethodPost, "/api/v1/pipelines/integration/dispatch", DispatchRequest{})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	created := decode[RunInfo](t, resp)
	waitTerminal(t, sched, created.ID)

	resp = doJSON(t, s, http.MethodGet, "/api/v1/runs", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	runs := decode[[]RunInfo](t, resp)
	require.Len(t, runs, 1)

	resp = doJSON(t, s, http.MethodGet, "/api/v1/runs?pipeline=other", nil)
	assert.Empty(t, decode[[]RunInfo](t, resp))

	resp = doJSON(t, s, http.MethodGet, "/api/v1/runs/"+created.ID, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	full := decode[types.PipelineRun](t, resp)
	require.Len(t, full.Jobs, 1)
	assert.Contains(t, full.Jobs[0].Steps[0].Output, "ok")

	resp = doJSON(t, s, http.MethodGet, "/api/v1/runs/missing", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	// Cancelling a finished run conflicts.
	resp = doJSON(t, s, http.MethodPost, "/api/v1/runs/"+created.ID+"/cancel", nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp = doJSON(t, s, http.MethodPost, "/api/v1/runs/missing/cancel", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

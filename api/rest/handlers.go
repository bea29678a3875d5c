package rest

import (
	"sort"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/ohler55/ojg/oj"

	"ciq/pipeline-engine/internal/event"
	"ciq/pipeline-engine/pkg/types"
)

// healthCheck handles GET /healthz.
func (s *Server) healthCheck(c *fiber.Ctx) error {
	return c.JSON(HealthResponse{
		Status:    "healthy",
		Pipelines: len(s.sched.Pipelines()),
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

// receiveEvent handles POST /api/v1/events. The body carries the
// event kind plus the raw webhook payload; every registered pipeline
// whose triggers match gets a run.
func (s *Server) receiveEvent(c *fiber.Ctx) error {
	var req EventRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "failed to parse request body: "+err.Error())
	}

	kind := types.EventKind(req.Kind)
	switch kind {
	case types.EventPush, types.EventPullRequest:
	default:
		return badRequest(c, "kind must be push or pull_request")
	}

	payload, err := oj.Marshal(req.Payload)
	if err != nil {
		return badRequest(c, "invalid payload: "+err.Error())
	}

	evt, err := event.FromWebhook(kind, payload)
	if err != nil {
		return badRequest(c, err.Error())
	}

	started := s.sched.HandleEvent(c.Context(), evt)

	resp := EventResponse{EventID: evt.ID, Started: make([]RunInfo, 0, len(started))}
	for _, run := range started {
		resp.Started = append(resp.Started, runInfo(run))
	}
	return c.Status(fiber.StatusAccepted).JSON(resp)
}

// listPipelines handles GET /api/v1/pipelines.
func (s *Server) listPipelines(c *fiber.Ctx) error {
	pipelines := s.sched.Pipelines()
	out := make([]PipelineInfo, 0, len(pipelines))
	for _, p := range pipelines {
		info := PipelineInfo{
			Name:        p.Name,
			Description: p.Description,
			Dispatch:    p.On.Dispatch != nil,
		}
		for name := range p.Jobs {
			info.Jobs = append(info.Jobs, name)
		}
		sort.Strings(info.Jobs)
		for _, sched := range p.On.Schedule {
			info.Schedules = append(info.Schedules, sched.Cron)
		}
		out = append(out, info)
	}
	return c.JSON(out)
}

// dispatchPipeline handles POST /api/v1/pipelines/:name/dispatch.
func (s *Server) dispatchPipeline(c *fiber.Ctx) error {
	var req DispatchRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return badRequest(c, "failed to parse request body: "+err.Error())
		}
	}

	ref := req.Ref
	if ref == "" {
		ref = event.DefaultBranchRef
	}

	run, err := s.sched.Dispatch(c.Context(), c.Params("name"), event.NewDispatchEvent(ref, req.Inputs))
	if err != nil {
		return badRequest(c, err.Error())
	}
	return c.Status(fiber.StatusCreated).JSON(runInfo(run))
}

// listRuns handles GET /api/v1/runs with optional pipeline and status
// query filters.
func (s *Server) listRuns(c *fiber.Ctx) error {
	pipeline := c.Query("pipeline")
	status := c.Query("status")

	out := make([]RunInfo, 0)
	for _, run := range s.sched.List() {
		if pipeline != "" && run.Pipeline != pipeline {
			continue
		}
		if status != "" && string(run.Status) != status {
			continue
		}
		out = append(out, runInfo(run))
	}
	return c.JSON(out)
}

// getRun handles GET /api/v1/runs/:id, returning the full run with
// jobs and steps.
func (s *Server) getRun(c *fiber.Ctx) error {
	run, ok := s.sched.Get(c.Params("id"))
	if !ok {
		return notFound(c, "run not found")
	}
	return c.JSON(run)
}

// cancelRun handles POST /api/v1/runs/:id/cancel.
func (s *Server) cancelRun(c *fiber.Ctx) error {
	id := c.Params("id")
	if _, ok := s.sched.Get(id); !ok {
		return notFound(c, "run not found")
	}
	if !s.sched.Cancel(id) {
		return c.Status(fiber.StatusConflict).JSON(ErrorResponse{
			Error:   "already_finished",
			Message: "run already reached a terminal status",
		})
	}
	return c.SendStatus(fiber.StatusAccepted)
}

func badRequest(c *fiber.Ctx, message string) error {
	return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{
		Error:   "invalid_request",
		Message: message,
	})
}

func notFound(c *fiber.Ctx, message string) error {
	return c.Status(fiber.StatusNotFound).JSON(ErrorResponse{
		Error:   "not_found",
		Message: message,
	})
}

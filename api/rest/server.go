// Package rest exposes the pipeline engine over HTTP.
package rest

import (
	"context"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	fiberrecover "github.com/gofiber/fiber/v2/middleware/recover"

	"ciq/pipeline-engine/internal/scheduler"
)

// Config holds the API server settings.
type Config struct {
	// Address is the listen address, e.g. ":8080".
	Address string

	ReadTimeout  time.Duration
	WriteTimeout time.Duration

	// BodyLimit caps request bodies, in bytes. Zero keeps the default.
	BodyLimit int
}

// DefaultConfig returns a default server configuration.
func DefaultConfig() *Config {
	return &Config{
		Address:      ":8080",
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
}

// Server is the REST API server over a scheduler.
type Server struct {
	app    *fiber.App
	sched  *scheduler.Scheduler
	config *Config
}

// NewServer creates the API server and registers its routes.
func NewServer(sched *scheduler.Scheduler, config *Config) *Server {
	if config == nil {
		config = DefaultConfig()
	}

	fiberCfg := fiber.Config{
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
		ErrorHandler: errorHandler,
		AppName:      "Pipeline Engine API",
	}
	if config.BodyLimit > 0 {
		fiberCfg.BodyLimit = config.BodyLimit
	}

	s := &Server{
		app:    fiber.New(fiberCfg),
		sched:  sched,
		config: config,
	}
	s.setupMiddleware()
	s.setupRoutes()
	return s
}

func (s *Server) setupMiddleware() {
	s.app.Use(fiberrecover.New(fiberrecover.Config{EnableStackTrace: true}))
	s.app.Use(fiberlogger.New(fiberlogger.Config{
		Format:     "${time} | ${status} | ${latency} | ${method} ${path}\n",
		TimeFormat: "2006-01-02 15:04:05",
	}))
}

func (s *Server) setupRoutes() {
	s.app.Get("/healthz", s.healthCheck)

	api := s.app.Group("/api/v1")
	api.Get("/healthz", s.healthCheck)

	api.Post("/events", s.receiveEvent)

	api.Get("/pipelines", s.listPipelines)
	api.Post("/pipelines/:name/dispatch", s.dispatchPipeline)

	api.Get("/runs", s.listRuns)
	api.Get("/runs/:id", s.getRun)
	api.Post("/runs/:id/cancel", s.cancelRun)
}

// Start listens until the listener fails or Shutdown is called.
func (s *Server) Start() error {
	return s.app.Listen(s.config.Address)
}

// StartWithContext listens until the context is cancelled.
func (s *Server) StartWithContext(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- s.app.Listen(s.config.Address)
	}()

	select {
	case <-ctx.Done():
		return s.Shutdown()
	case err := <-errCh:
		return err
	}
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown() error {
	return s.app.Shutdown()
}

// App returns the underlying Fiber app, used by tests.
func (s *Server) App() *fiber.App {
	return s.app
}

func errorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	message := "Internal Server Error"
	if e, ok := err.(*fiber.Error); ok {
		code = e.Code
		message = e.Message
	}
	return c.Status(code).JSON(ErrorResponse{
		Error:   fmt.Sprintf("error_%d", code),
		Message: message,
	})
}

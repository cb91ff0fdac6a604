// Package server implements the thin HTTP surface: a handful of JSON
// endpoints in front of the Engine Manager and Inference Worker, grounded
// on the teacher's internal/app/handlers package and its RouteRegistry-driven
// mux wiring.
package server

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/fenwick-ai/inferno/internal/config"
	"github.com/fenwick-ai/inferno/internal/core/constants"
	"github.com/fenwick-ai/inferno/internal/core/ports"
	"github.com/fenwick-ai/inferno/internal/logger"
	"github.com/fenwick-ai/inferno/internal/router"
)

// Server owns the HTTP listener and wires the Engine Manager, Inference
// Worker and Health Monitor behind a small JSON API.
type Server struct {
	httpServer *http.Server
	routes     *router.RouteRegistry
	manager    ports.EngineManager
	worker     ports.InferenceWorker
	monitor    ports.HealthMonitor
	logger     *logger.StyledLogger
}

func New(cfg config.ServerConfig, manager ports.EngineManager, worker ports.InferenceWorker, monitor ports.HealthMonitor, log *logger.StyledLogger) *Server {
	s := &Server{
		routes:  router.NewRouteRegistry(*log),
		manager: manager,
		worker:  worker,
		monitor: monitor,
		logger:  log,
	}

	mux := http.NewServeMux()
	s.registerRoutes()
	s.routes.WireUp(mux)

	s.httpServer = &http.Server{
		Addr:         cfg.Host + ":" + strconv.Itoa(cfg.Port),
		Handler:      mux,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	return s
}

func (s *Server) registerRoutes() {
	s.routes.RegisterWithMethod("POST "+constants.PathV1ChatCompletions, s.handleGenerate, "run a synchronous chat completion", "POST")
	s.routes.RegisterWithMethod("POST "+constants.PathV1Embeddings, s.handleEmbed, "run a synchronous embedding", "POST")
	s.routes.RegisterWithMethod("POST "+constants.PathV1Jobs, s.handleSubmitJob, "submit an async inference job", "POST")
	s.routes.RegisterWithMethod("GET "+constants.PathV1Jobs, s.handleListJobs, "list known jobs", "GET")
	s.routes.RegisterWithMethod("GET "+constants.PathV1Jobs+"/{id}", s.handleGetJob, "get a job's status", "GET")
	s.routes.RegisterWithMethod("DELETE "+constants.PathV1Jobs+"/{id}", s.handleCancelJob, "cancel a pending or running job", "DELETE")
	s.routes.RegisterWithMethod("GET "+constants.DefaultHealthCheckEndpoint, s.handleHealth, "report degraded-mode status", "GET")
}

func (s *Server) Start(ctx context.Context) error {
	s.logger.Info("starting HTTP surface", "addr", s.httpServer.Addr)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("HTTP server error", "error", err)
		}
	}()
	return nil
}

func (s *Server) Stop(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// requestTimeout bounds a synchronous dispatch so a hung engine can't pin
// an HTTP handler goroutine indefinitely.
const requestTimeout = 2 * time.Minute

func withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, requestTimeout)
}

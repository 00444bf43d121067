// Package core provides the HTTP chassis for the Daiyet dispatch service.
// It creates a chi router served by the local HTTP entrypoint and enforces
// the cross-cutting concerns (panic recovery, request correlation, logging,
// shared-secret authentication) before requests reach the dispatcher. Lambda
// deployments trigger the dispatcher directly and bypass this surface.
package core

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/michaelasereoo/daiyet-app-sub003/internal/config"
	"github.com/michaelasereoo/daiyet-app-sub003/internal/types"
)

// CycleRunner triggers one dispatch pass over the due queues.
// *scheduler.Dispatcher satisfies it.
type CycleRunner interface {
	RunCycle(ctx context.Context) (*types.CycleReport, error)
}

// MetricsCollector records telemetry for completed dispatch cycles.
type MetricsCollector interface {
	RecordCycle(ctx context.Context, report *types.CycleReport, duration time.Duration)
}

// Server encapsulates all dependencies of the dispatch HTTP surface, allowing
// for easy injection during testing and distinct configuration for different
// environments.
type Server struct {
	Config       *config.Config
	Dispatcher   CycleRunner
	Logger       *slog.Logger
	Metrics      MetricsCollector
	HealthProbes []HealthProbe

	router *chi.Mux
}

// NewServer validates the critical dependencies and prepares the server for
// route mounting. The caller mounts routes via MountRoutes after construction;
// the separation lets tests customize route registration.
func NewServer(cfg *config.Config, dispatcher CycleRunner, logger *slog.Logger) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config must not be nil")
	}
	if dispatcher == nil {
		return nil, fmt.Errorf("dispatcher must not be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger must not be nil")
	}

	return &Server{
		Config:     cfg,
		Dispatcher: dispatcher,
		Logger:     logger,
		router:     chi.NewRouter(),
	}, nil
}

// Handler returns the http.Handler interface for the router.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Router returns the underlying chi.Mux for route registration and tests.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Package server implements the HTTP transport layer for the mediagate gateway.
package server

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	gateway "github.com/mediagate/mediagate/internal"
	"github.com/mediagate/mediagate/internal/telemetry"
)

// ReadyChecker reports whether the system is ready to serve traffic.
type ReadyChecker func(ctx context.Context) error

// MediaLookup resolves one title by id.
type MediaLookup interface {
	Lookup(ctx context.Context, req *gateway.MediaRequest) (*gateway.Media, error)
}

// RelationSearch finds titles related to a name.
type RelationSearch interface {
	Search(ctx context.Context, req *gateway.RelationRequest) (*gateway.RelationList, error)
}

// Deps holds all dependencies for the HTTP server.
type Deps struct {
	Media          MediaLookup
	Relations      RelationSearch
	ReadyCheck     ReadyChecker       // nil = always ready (for tests)
	Metrics        *telemetry.Metrics // nil = no request metrics
	MetricsHandler http.Handler       // nil = /metrics not mounted on this router
}

// New creates an http.Handler with all routes and middleware wired.
func New(deps Deps) http.Handler {
	s := &server{deps: deps}

	r := chi.NewRouter()

	// Global middleware
	r.Use(s.recovery)
	r.Use(s.requestID)
	r.Use(s.tracing)
	r.Use(s.logging)
	if deps.Metrics != nil {
		r.Use(metricsMiddleware(deps.Metrics))
	}

	// System endpoints
	r.Get("/healthz", s.handleHealthz)
	r.Get("/readyz", s.handleReadyz)
	if deps.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", deps.MetricsHandler)
	}

	// Client-facing API
	r.Post("/media", s.handleMedia)
	r.Post("/relations", s.handleRelations)

	return r
}

type server struct {
	deps Deps
}

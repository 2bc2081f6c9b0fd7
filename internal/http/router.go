// Package httpapi composes the HTTP surface: request metadata middleware
// shared by every handler group, the domain handlers themselves, and the
// operational endpoints.
package httpapi

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"marginalia/internal/platform/middleware"
	"marginalia/pkg/platform/httputil"
)

// Registrar mounts a group of routes on the router. Every domain handler
// implements it.
type Registrar interface {
	Register(r chi.Router)
}

// HealthCheck probes one dependency for the health endpoint.
type HealthCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

// Deps is everything the router serves.
type Deps struct {
	Handlers []Registrar
	Health   []HealthCheck
}

// NewRouter assembles the full HTTP surface. Client metadata, the request
// timestamp, and the annotator identity are bound to the context up front so
// handler groups and services agree on them.
func NewRouter(deps Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.ClientMetadata)
	r.Use(middleware.RequestTime)
	r.Use(middleware.Annotator)

	for _, h := range deps.Handlers {
		h.Register(r)
	}

	r.Get("/healthz", handleHealth(deps.Health))
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())
	return r
}

// handleHealth reports overall liveness plus per-dependency results. Any
// failing check degrades the response to 503 so load balancers rotate the
// instance out.
func handleHealth(checks []HealthCheck) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		status := http.StatusOK
		results := make(map[string]string, len(checks))
		for _, hc := range checks {
			if err := hc.Check(ctx); err != nil {
				results[hc.Name] = err.Error()
				status = http.StatusServiceUnavailable
				continue
			}
			results[hc.Name] = "ok"
		}

		body := map[string]any{"status": "ok"}
		if status != http.StatusOK {
			body["status"] = "degraded"
		}
		if len(results) > 0 {
			body["checks"] = results
		}
		httputil.WriteJSON(w, status, body)
	}
}

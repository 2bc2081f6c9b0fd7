// Package handler exposes rendered document views over HTTP.
package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"marginalia/internal/platform/metrics"
	"marginalia/internal/platform/middleware"
	"marginalia/internal/render"
	id "marginalia/pkg/domain"
	dErrors "marginalia/pkg/domain-errors"
	"marginalia/pkg/platform/httputil"
)

// Service is the rendering operation the handler fronts.
type Service interface {
	Render(ctx context.Context, docID id.DocumentID, view render.View) (*render.Result, error)
}

// Handler serves the render endpoint.
type Handler struct {
	logger  *slog.Logger
	render  Service
	metrics *metrics.Metrics
}

// New creates the render Handler.
func New(render Service, logger *slog.Logger, metrics *metrics.Metrics) *Handler {
	return &Handler{
		logger:  logger,
		render:  render,
		metrics: metrics,
	}
}

// Register registers the render routes on the router.
func (h *Handler) Register(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(middleware.Recovery(h.logger))
		r.Use(middleware.RequestID)
		r.Use(middleware.Logger(h.logger))
		r.Use(middleware.Timeout(30 * time.Second))
		r.Use(middleware.ContentTypeJSON)
		r.Use(middleware.Latency(h.metrics))
		r.Get("/documents/{docID}/render", h.handleRender)
	})
}

func (h *Handler) handleRender(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	docID, err := id.ParseDocumentID(chi.URLParam(r, "docID"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeValidation, "invalid document id"))
		return
	}

	view, err := render.ParseView(r.URL.Query().Get("view"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	result, err := h.render.Render(ctx, docID, view)
	if err != nil {
		if dErrors.HasCode(err, dErrors.CodeInternal) {
			h.logger.ErrorContext(ctx, "render failed",
				"request_id", middleware.GetRequestID(ctx),
				"document_id", docID.String(),
				"view", string(view),
				"error", err.Error(),
			)
		}
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, result)
}

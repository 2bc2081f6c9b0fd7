// Package handler exposes the document library over HTTP.
package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"marginalia/internal/document/models"
	"marginalia/internal/document/service"
	"marginalia/internal/platform/metrics"
	"marginalia/internal/platform/middleware"
	id "marginalia/pkg/domain"
	dErrors "marginalia/pkg/domain-errors"
	"marginalia/pkg/platform/httputil"
)

// Service defines the document operations the handler fronts.
type Service interface {
	Register(ctx context.Context, req service.RegisterRequest) (*models.Document, error)
	Get(ctx context.Context, docID id.DocumentID) (*models.Document, error)
}

// Handler handles document endpoints.
type Handler struct {
	logger    *slog.Logger
	documents Service
	metrics   *metrics.Metrics
}

// New creates a new document Handler.
func New(documents Service, logger *slog.Logger, metrics *metrics.Metrics) *Handler {
	return &Handler{
		logger:    logger,
		documents: documents,
		metrics:   metrics,
	}
}

// Register registers the document routes with the chi router.
func (h *Handler) Register(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(middleware.Recovery(h.logger))
		r.Use(middleware.RequestID)
		r.Use(middleware.Logger(h.logger))
		r.Use(middleware.Timeout(30 * time.Second))
		r.Use(middleware.ContentTypeJSON)
		r.Use(middleware.Latency(h.metrics))
		r.Post("/documents", h.handleRegister)
		r.Get("/documents/{docID}", h.handleGet)
	})
}

// documentView is the outbound JSON shape of a document.
type documentView struct {
	ID       string `json:"id"`
	Resource string `json:"resource"`
	Title    string `json:"title,omitempty"`
	Content  string `json:"content"`
	Digest   string `json:"digest"`
	Created  string `json:"created"`
}

func toDocumentView(doc *models.Document) documentView {
	return documentView{
		ID:       doc.ID.String(),
		Resource: doc.Resource,
		Title:    doc.Title,
		Content:  doc.Content,
		Digest:   doc.Digest,
		Created:  doc.Created.UTC().Format(time.RFC3339),
	}
}

// handleRegister adds a document to the library. Re-registering identical
// content returns the stored document; changed content conflicts because
// annotation offsets depend on the original bytes.
func (h *Handler) handleRegister(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestID(ctx)

	var req service.RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.WarnContext(ctx, "invalid document registration request",
			"request_id", requestID,
			"error", err.Error(),
		)
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}

	doc, err := h.documents.Register(ctx, req)
	if err != nil {
		if dErrors.HasCode(err, dErrors.CodeInternal) {
			h.logger.ErrorContext(ctx, "document registration failed",
				"request_id", requestID,
				"error", err.Error(),
			)
		}
		httputil.WriteError(w, err)
		return
	}

	w.Header().Set("Location", "/documents/"+doc.ID.String())
	httputil.WriteJSON(w, http.StatusCreated, toDocumentView(doc))
}

// handleGet returns a document by id. The content digest doubles as a strong
// ETag so immutable documents revalidate for free.
func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	docID, err := id.ParseDocumentID(chi.URLParam(r, "docID"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeValidation, "invalid document id"))
		return
	}

	doc, err := h.documents.Get(ctx, docID)
	if err != nil {
		if dErrors.HasCode(err, dErrors.CodeInternal) {
			h.logger.ErrorContext(ctx, "document fetch failed",
				"request_id", middleware.GetRequestID(ctx),
				"error", err.Error(),
			)
		}
		httputil.WriteError(w, err)
		return
	}

	etag := `"` + doc.Digest + `"`
	w.Header().Set("ETag", etag)
	if r.Header.Get("If-None-Match") == etag {
		w.WriteHeader(http.StatusNotModified)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toDocumentView(doc))
}

// Package handler exposes the annotation lifecycle over HTTP: selection
// dispatch, pending selection completion, click routing and the mutation
// endpoints. Every mutation responds with the refetched annotation set of
// the resource so clients replace state instead of merging.
package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"marginalia/internal/annotation/models"
	"marginalia/internal/annotation/service"
	"marginalia/internal/platform/metrics"
	"marginalia/internal/platform/middleware"
	id "marginalia/pkg/domain"
	dErrors "marginalia/pkg/domain-errors"
	"marginalia/pkg/platform/httputil"
)

// Service defines the annotation operations the handler fronts.
type Service interface {
	Select(ctx context.Context, docID id.DocumentID, req models.SelectionRequest) (*service.SelectionOutcome, error)
	CompleteSelection(ctx context.Context, token id.SelectionToken, req models.CompleteSelectionRequest) (*service.MutationResult, error)
	DiscardSelection(ctx context.Context, token id.SelectionToken) error
	ListForDocument(ctx context.Context, docID id.DocumentID) ([]service.ListedAnnotation, error)
	Delete(ctx context.Context, annID id.AnnotationID) (*service.MutationResult, error)
	Convert(ctx context.Context, annID id.AnnotationID) (*service.MutationResult, error)
	Resolve(ctx context.Context, annID id.AnnotationID, req models.ResolveRequest) (*service.MutationResult, error)
	Unlink(ctx context.Context, annID id.AnnotationID) (*service.MutationResult, error)
	Click(ctx context.Context, annID id.AnnotationID, action models.ClickAction) (*service.ClickResult, error)
}

// Handler handles annotation endpoints.
type Handler struct {
	logger      *slog.Logger
	annotations Service
	metrics     *metrics.Metrics
}

// New creates a new annotation Handler.
func New(annotations Service, logger *slog.Logger, metrics *metrics.Metrics) *Handler {
	return &Handler{
		logger:      logger,
		annotations: annotations,
		metrics:     metrics,
	}
}

// Register registers the annotation routes with the chi router.
func (h *Handler) Register(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(middleware.Recovery(h.logger))
		r.Use(middleware.RequestID)
		r.Use(middleware.Logger(h.logger))
		r.Use(middleware.Timeout(30 * time.Second))
		r.Use(middleware.ContentTypeJSON)
		r.Use(middleware.Latency(h.metrics))
		r.Get("/documents/{docID}/annotations", h.handleList)
		r.Post("/documents/{docID}/selections", h.handleSelect)
		r.Post("/selections/{token}/complete", h.handleComplete)
		r.Delete("/selections/{token}", h.handleDiscard)
		r.Get("/annotations/{annID}", h.handleClick)
		r.Get("/annotations/{annID}/jsonld", h.handleJSONLD)
		r.Get("/annotations/{annID}/follow", h.handleFollow)
		r.Delete("/annotations/{annID}", h.handleDelete)
		r.Post("/annotations/{annID}/convert", h.handleConvert)
		r.Post("/annotations/{annID}/resolve", h.handleResolve)
		r.Post("/annotations/{annID}/unlink", h.handleUnlink)
	})
}

// listedAnnotationView is the wire shape of one annotation plus its
// transient display state.
type listedAnnotationView struct {
	models.WireView
	New bool `json:"new,omitempty"`
}

func toListedViews(items []service.ListedAnnotation) []listedAnnotationView {
	views := make([]listedAnnotationView, 0, len(items))
	for _, item := range items {
		views = append(views, listedAnnotationView{
			WireView: models.ToWire(item.Annotation),
			New:      item.New,
		})
	}
	return views
}

// annotationsResponse carries the full annotation set of a resource.
type annotationsResponse struct {
	Annotations []listedAnnotationView `json:"annotations"`
}

// mutationResponse reports a settled mutation. Annotation is absent for
// deletions; Annotations is always the refetched set.
type mutationResponse struct {
	Annotation  *models.WireView       `json:"annotation,omitempty"`
	Annotations []listedAnnotationView `json:"annotations"`
}

func toMutationResponse(res *service.MutationResult) mutationResponse {
	out := mutationResponse{Annotations: toListedViews(res.Annotations)}
	if res.Annotation != nil {
		v := models.ToWire(res.Annotation)
		out.Annotation = &v
	}
	return out
}

// pendingSelectionResponse is the deferred half of selection dispatch: the
// token a completion or discard later consumes.
type pendingSelectionResponse struct {
	Token      string `json:"token"`
	Motivation string `json:"motivation"`
	ExpiresAt  string `json:"expiresAt"`
}

type clickResponse struct {
	Action     models.ClickAction `json:"action"`
	Annotation models.WireView    `json:"annotation"`
	Panel      bool               `json:"panel,omitempty"`
}

type followResponse struct {
	Source string `json:"source"`
}

// serveError maps a service error onto the response, logging internal
// failures on the way out.
func (h *Handler) serveError(ctx context.Context, w http.ResponseWriter, op string, err error) {
	if dErrors.HasCode(err, dErrors.CodeInternal) {
		h.logger.ErrorContext(ctx, op+" failed",
			"request_id", middleware.GetRequestID(ctx),
			"error", err.Error(),
		)
	}
	httputil.WriteError(w, err)
}

func parseDocID(r *http.Request) (id.DocumentID, error) {
	docID, err := id.ParseDocumentID(chi.URLParam(r, "docID"))
	if err != nil {
		return id.DocumentID{}, dErrors.New(dErrors.CodeValidation, "invalid document id")
	}
	return docID, nil
}

func parseAnnID(r *http.Request) (id.AnnotationID, error) {
	annID, err := id.ParseAnnotationID(chi.URLParam(r, "annID"))
	if err != nil {
		return id.AnnotationID{}, dErrors.New(dErrors.CodeValidation, "invalid annotation id")
	}
	return annID, nil
}

func parseToken(r *http.Request) (id.SelectionToken, error) {
	token, err := id.ParseSelectionToken(chi.URLParam(r, "token"))
	if err != nil {
		return id.SelectionToken{}, dErrors.New(dErrors.CodeValidation, "invalid selection token")
	}
	return token, nil
}

// handleList returns the annotation set of a document, new-mark flags
// included.
func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	docID, err := parseDocID(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	views, err := h.annotations.ListForDocument(ctx, docID)
	if err != nil {
		h.serveError(ctx, w, "annotation list", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, annotationsResponse{Annotations: toListedViews(views)})
}

// handleSelect dispatches a text selection. Immediate motivations answer
// 201 with the created annotation; deferred ones answer 202 with the
// pending selection token.
func (h *Handler) handleSelect(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestID(ctx)

	docID, err := parseDocID(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	var req models.SelectionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.WarnContext(ctx, "invalid selection request",
			"request_id", requestID,
			"error", err.Error(),
		)
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}

	outcome, err := h.annotations.Select(ctx, docID, req)
	if err != nil {
		h.serveError(ctx, w, "selection dispatch", err)
		return
	}

	if outcome.Deferred() {
		httputil.WriteJSON(w, http.StatusAccepted, pendingSelectionResponse{
			Token:      outcome.Token.String(),
			Motivation: outcome.Motivation.String(),
			ExpiresAt:  outcome.ExpiresAt.UTC().Format(time.RFC3339),
		})
		return
	}

	v := models.ToWire(outcome.Annotation)
	httputil.WriteJSON(w, http.StatusCreated, mutationResponse{
		Annotation:  &v,
		Annotations: toListedViews(outcome.Annotations),
	})
}

// handleComplete settles a pending selection into an annotation.
func (h *Handler) handleComplete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	token, err := parseToken(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	var req models.CompleteSelectionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.WarnContext(ctx, "invalid completion request",
			"request_id", middleware.GetRequestID(ctx),
			"error", err.Error(),
		)
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}

	res, err := h.annotations.CompleteSelection(ctx, token, req)
	if err != nil {
		h.serveError(ctx, w, "selection completion", err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, toMutationResponse(res))
}

// handleDiscard abandons a pending selection and frees its span.
func (h *Handler) handleDiscard(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	token, err := parseToken(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	if err := h.annotations.DiscardSelection(ctx, token); err != nil {
		h.serveError(ctx, w, "selection discard", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleClick routes a click on an annotation. The default action is the
// detail view; deleting fetches the annotation for a confirmation step.
// Follow and jsonld have dedicated endpoints.
func (h *Handler) handleClick(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	annID, err := parseAnnID(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	action := models.ClickDetail
	if s := r.URL.Query().Get("action"); s != "" {
		action, err = models.ParseClickAction(s)
		if err != nil {
			httputil.WriteError(w, err)
			return
		}
	}
	switch action {
	case models.ClickJSONLD, models.ClickFollow:
		httputil.WriteError(w, dErrors.Newf(dErrors.CodeValidation, "action %s has a dedicated endpoint", action))
		return
	}

	res, err := h.annotations.Click(ctx, annID, action)
	if err != nil {
		h.serveError(ctx, w, "annotation click", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, clickResponse{
		Action:     res.Action,
		Annotation: models.ToWire(res.Annotation),
		Panel:      res.Panel,
	})
}

// handleJSONLD returns the annotation as Web-Annotation JSON-LD.
func (h *Handler) handleJSONLD(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	annID, err := parseAnnID(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	res, err := h.annotations.Click(ctx, annID, models.ClickJSONLD)
	if err != nil {
		h.serveError(ctx, w, "annotation inspect", err)
		return
	}

	payload, err := models.EncodeAnnotation(res.Annotation)
	if err != nil {
		h.serveError(ctx, w, "annotation encoding", dErrors.Wrap(err, dErrors.CodeInternal, "failed to encode annotation"))
		return
	}
	w.Header().Set("Content-Type", "application/ld+json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(payload)
}

// handleFollow navigates a resolved reference to its target source.
func (h *Handler) handleFollow(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	annID, err := parseAnnID(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	res, err := h.annotations.Click(ctx, annID, models.ClickFollow)
	if err != nil {
		h.serveError(ctx, w, "reference follow", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, followResponse{Source: res.Source})
}

// handleDelete removes an annotation permanently.
func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	annID, err := parseAnnID(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	res, err := h.annotations.Delete(ctx, annID)
	if err != nil {
		h.serveError(ctx, w, "annotation delete", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toMutationResponse(res))
}

// handleConvert flips an annotation between highlight and reference.
func (h *Handler) handleConvert(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	annID, err := parseAnnID(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	res, err := h.annotations.Convert(ctx, annID)
	if err != nil {
		h.serveError(ctx, w, "annotation convert", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toMutationResponse(res))
}

// handleResolve links a reference stub to a resource.
func (h *Handler) handleResolve(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	annID, err := parseAnnID(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	var req models.ResolveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.WarnContext(ctx, "invalid resolve request",
			"request_id", middleware.GetRequestID(ctx),
			"error", err.Error(),
		)
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}

	res, err := h.annotations.Resolve(ctx, annID, req)
	if err != nil {
		h.serveError(ctx, w, "reference resolve", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toMutationResponse(res))
}

// handleUnlink reverts a resolved reference to a stub.
func (h *Handler) handleUnlink(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	annID, err := parseAnnID(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	res, err := h.annotations.Unlink(ctx, annID)
	if err != nil {
		h.serveError(ctx, w, "reference unlink", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toMutationResponse(res))
}

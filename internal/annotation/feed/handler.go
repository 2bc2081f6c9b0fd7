package feed

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"marginalia/internal/platform/middleware"
	id "marginalia/pkg/domain"
	dErrors "marginalia/pkg/domain-errors"
	"marginalia/pkg/platform/httputil"
)

// Documents resolves a document id to its resource identifier.
type Documents interface {
	Resolve(ctx context.Context, docID id.DocumentID) (string, error)
}

// Handler upgrades feed subscriptions to WebSocket connections.
type Handler struct {
	logger    *slog.Logger
	hub       *Hub
	documents Documents
	upgrader  websocket.Upgrader
}

// NewHandler creates the change-feed handler over a running hub.
func NewHandler(hub *Hub, documents Documents, logger *slog.Logger) *Handler {
	return &Handler{
		logger:    logger,
		hub:       hub,
		documents: documents,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// The feed is read-only and carries no credentials, so any
			// origin may subscribe.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

// Register mounts the feed routes. The subscription endpoint holds its
// connection open, so the chain deliberately omits the request timeout the
// JSON handlers use.
func (h *Handler) Register(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(middleware.Recovery(h.logger))
		r.Use(middleware.RequestID)
		r.Use(middleware.Logger(h.logger))
		r.Get("/documents/{docID}/events", h.handleSubscribe)
	})
}

func (h *Handler) handleSubscribe(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	docID, err := id.ParseDocumentID(chi.URLParam(r, "docID"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeValidation, "invalid document id"))
		return
	}

	resource, err := h.documents.Resolve(ctx, docID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote an HTTP error to the peer.
		h.logger.WarnContext(ctx, "feed upgrade failed",
			"request_id", middleware.GetRequestID(ctx),
			"document_id", docID.String(),
			"error", err.Error(),
		)
		return
	}

	client := newClient(h.hub, conn, resource)
	select {
	case h.hub.register <- client:
	case <-h.hub.done:
		conn.Close()
		return
	}

	go client.writePump()
	go client.readPump()
}

// Package service implements the document library: registration of immutable
// texts and the lookups every annotation operation starts from.
package service

import (
	"context"
	"errors"
	"log/slog"

	"marginalia/internal/document/models"
	"marginalia/internal/document/store"
	"marginalia/internal/platform/metrics"
	"marginalia/internal/platform/middleware"
	id "marginalia/pkg/domain"
	dErrors "marginalia/pkg/domain-errors"
	audit "marginalia/pkg/platform/audit"
	"marginalia/pkg/requestcontext"
)

// DocumentStore is the persistence this service consumes.
type DocumentStore interface {
	Put(ctx context.Context, doc *models.Document) error
	Get(ctx context.Context, docID id.DocumentID) (*models.Document, error)
	GetByResource(ctx context.Context, resource string) (*models.Document, error)
	Resolve(ctx context.Context, docID id.DocumentID) (string, error)
}

type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

// Service manages the document library.
type Service struct {
	documents DocumentStore
	logger    *slog.Logger
	audit     AuditPublisher
	metrics   *metrics.Metrics
}

type Option func(s *Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithAuditPublisher(publisher AuditPublisher) Option {
	return func(s *Service) {
		s.audit = publisher
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// New constructs a Service.
func New(documents DocumentStore, opts ...Option) *Service {
	s := &Service{documents: documents}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RegisterRequest is the inbound shape of a document registration.
type RegisterRequest struct {
	Resource string `json:"resource"`
	Title    string `json:"title,omitempty"`
	Content  string `json:"content"`
}

// Register adds a document to the library. Registration is idempotent on
// identical content: re-registering a resource with the same bytes returns
// the stored document, while different bytes are rejected because documents
// are immutable and annotation offsets depend on them.
func (s *Service) Register(ctx context.Context, req RegisterRequest) (*models.Document, error) {
	doc, err := models.NewDocument(id.NewDocumentID(), req.Resource, req.Title, req.Content, requestcontext.Now(ctx).UTC())
	if err != nil {
		return nil, err
	}

	existing, err := s.documents.GetByResource(ctx, doc.Resource)
	switch {
	case err == nil:
		if existing.Digest == doc.Digest {
			return existing, nil
		}
		return nil, dErrors.Newf(dErrors.CodeConflict, "resource %s is already registered with different content", doc.Resource)
	case errors.Is(err, store.ErrNotFound):
		// First registration.
	default:
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to check resource")
	}

	if err := s.documents.Put(ctx, doc); err != nil {
		// A concurrent registration can win the race between the check and
		// the insert; surface that as the same conflict.
		if dErrors.HasCode(err, dErrors.CodeConflict) {
			return nil, err
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to register document")
	}

	s.logAudit(ctx, string(audit.EventDocumentRegistered), doc.Resource,
		"document_id", doc.ID.String(),
		"digest", doc.Digest,
	)
	s.metrics.IncrementDocuments()
	return doc, nil
}

// Get returns a document by id.
func (s *Service) Get(ctx context.Context, docID id.DocumentID) (*models.Document, error) {
	doc, err := s.documents.Get(ctx, docID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "document not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load document")
	}
	return doc, nil
}

// GetByResource returns a document by its resource URI.
func (s *Service) GetByResource(ctx context.Context, resource string) (*models.Document, error) {
	doc, err := s.documents.GetByResource(ctx, resource)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "document not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load document")
	}
	return doc, nil
}

// Resolve maps a document id to its resource URI without loading content.
// The annotation routes call this on every request, so it stays a point
// lookup.
func (s *Service) Resolve(ctx context.Context, docID id.DocumentID) (string, error) {
	resource, err := s.documents.Resolve(ctx, docID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return "", dErrors.New(dErrors.CodeNotFound, "document not found")
		}
		return "", dErrors.Wrap(err, dErrors.CodeInternal, "failed to resolve document")
	}
	return resource, nil
}

func (s *Service) logAudit(ctx context.Context, event, resource string, attributes ...any) {
	if requestID := middleware.GetRequestID(ctx); requestID != "" {
		attributes = append(attributes, "request_id", requestID)
	}
	args := append(attributes, "event", event, "resource", resource, "log_type", "audit")
	if s.logger != nil {
		s.logger.InfoContext(ctx, event, args...)
	}
	if s.audit == nil {
		return
	}
	_ = s.audit.Emit(ctx, audit.Event{
		Resource:  resource,
		Action:    event,
		Actor:     requestcontext.Actor(ctx),
		RequestID: middleware.GetRequestID(ctx),
		Provenance: audit.ParseProvenance(
			middleware.GetClientIP(ctx),
			middleware.GetUserAgent(ctx),
		),
	})
}

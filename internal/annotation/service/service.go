// Package service implements the annotation lifecycle: selection dispatch,
// creation, conversions, deletion, and the transient display state around
// them. All mutations settle with a full refetch of the resource's
// annotations; nothing is merged optimistically.
package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"marginalia/internal/annotation/feed"
	"marginalia/internal/annotation/models"
	"marginalia/internal/annotation/store"
	docmodels "marginalia/internal/document/models"
	"marginalia/internal/platform/metrics"
	"marginalia/internal/platform/middleware"
	"marginalia/pkg/attrs"
	id "marginalia/pkg/domain"
	dErrors "marginalia/pkg/domain-errors"
	audit "marginalia/pkg/platform/audit"
	"marginalia/pkg/requestcontext"
)

//go:generate mockgen -source=service.go -destination=mocks/mocks.go -package=mocks

// Store is the annotation persistence contract this service consumes.
type Store interface {
	Create(ctx context.Context, resource string, motivation models.Motivation, target models.Target, body models.Body, creator string) (*models.Annotation, error)
	UpdateBody(ctx context.Context, annID id.AnnotationID, body models.Body) (*models.Annotation, error)
	Delete(ctx context.Context, annID id.AnnotationID) error
	Get(ctx context.Context, annID id.AnnotationID) (*models.Annotation, error)
	List(ctx context.Context, resource string) ([]*models.Annotation, error)
}

// Documents is the slice of the document library the lifecycle needs:
// resource resolution for every operation, source text for pinning
// selections.
type Documents interface {
	Get(ctx context.Context, docID id.DocumentID) (*docmodels.Document, error)
	Resolve(ctx context.Context, docID id.DocumentID) (string, error)
}

// AuditPublisher records lifecycle events for the audit trail.
type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

// Notifier fans annotation change events out to feed subscribers.
type Notifier interface {
	Notify(ctx context.Context, event feed.Event)
}

const (
	defaultNewMarkTTL   = 6 * time.Second
	defaultSelectionTTL = 5 * time.Minute
)

// Service orchestrates the annotation lifecycle over a store, the document
// library, and the optional audit, metrics, and feed collaborators.
type Service struct {
	store     Store
	tx        StoreTx
	documents Documents
	logger    *slog.Logger
	audit     AuditPublisher
	notifier  Notifier
	metrics   *metrics.Metrics

	newMarkTTL   time.Duration
	selectionTTL time.Duration
	now          func() time.Time

	marks   *markSet
	pending *selectionRegistry
}

type Option func(s *Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func WithAuditPublisher(publisher AuditPublisher) Option {
	return func(s *Service) {
		s.audit = publisher
	}
}

func WithNotifier(notifier Notifier) Option {
	return func(s *Service) {
		s.notifier = notifier
	}
}

// WithStoreTx supplies the transactional boundary for multi-step mutations.
// Without it, a sharded in-process lock over the given store is used.
func WithStoreTx(tx StoreTx) Option {
	return func(s *Service) {
		s.tx = tx
	}
}

// WithNewMarkTTL sets the decay window for "new annotation" styling marks.
func WithNewMarkTTL(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.newMarkTTL = d
		}
	}
}

// WithSelectionTTL bounds how long a pending selection may sit unfinished.
func WithSelectionTTL(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.selectionTTL = d
		}
	}
}

// WithClock injects the clock that drives mark decay and selection expiry.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// New constructs a Service. Store round-trips are wrapped in OpenTelemetry
// spans.
func New(st Store, documents Documents, opts ...Option) *Service {
	s := &Service{
		store:        st,
		documents:    documents,
		newMarkTTL:   defaultNewMarkTTL,
		selectionTTL: defaultSelectionTTL,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.tx == nil {
		s.tx = newShardedTx(st)
	}
	s.store = traceStore(s.store)
	s.marks = newMarkSet(s.newMarkTTL, s.now)
	s.pending = newSelectionRegistry(s.selectionTTL, s.now)
	return s
}

// ListedAnnotation pairs an annotation with its transient display state.
type ListedAnnotation struct {
	*models.Annotation
	New bool
}

// ListForDocument returns the full annotation set of a document in creation
// order, new-mark flags included. This is the refetch every mutation settles
// with.
func (s *Service) ListForDocument(ctx context.Context, docID id.DocumentID) ([]ListedAnnotation, error) {
	resource, err := s.documents.Resolve(ctx, docID)
	if err != nil {
		return nil, err
	}
	return s.listViews(ctx, resource)
}

// ListForResource returns the full annotation set of a resource URI.
func (s *Service) ListForResource(ctx context.Context, resource string) ([]ListedAnnotation, error) {
	return s.listViews(ctx, resource)
}

func (s *Service) listViews(ctx context.Context, resource string) ([]ListedAnnotation, error) {
	anns, err := s.store.List(ctx, resource)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list annotations")
	}
	views := make([]ListedAnnotation, 0, len(anns))
	for _, a := range anns {
		views = append(views, ListedAnnotation{Annotation: a, New: s.marks.IsNew(a.ID)})
	}
	return views, nil
}

// Get returns one annotation.
func (s *Service) Get(ctx context.Context, annID id.AnnotationID) (*models.Annotation, error) {
	a, err := s.store.Get(ctx, annID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "annotation not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load annotation")
	}
	return a, nil
}

// PendingCount reports how many selections are awaiting completion.
func (s *Service) PendingCount() int {
	return s.pending.len()
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
		Resource:   resource,
		Annotation: attrs.ExtractString(attributes, "annotation_id"),
		Action:     event,
		Motivation: attrs.ExtractString(attributes, "motivation"),
		Actor:      requestcontext.Actor(ctx),
		Reason:     attrs.ExtractString(attributes, "reason"),
		RequestID:  middleware.GetRequestID(ctx),
		Provenance: audit.ParseProvenance(
			middleware.GetClientIP(ctx),
			middleware.GetUserAgent(ctx),
		),
	})
}

func (s *Service) notify(ctx context.Context, eventType feed.EventType, resource string, a *models.Annotation) {
	if s.notifier == nil {
		return
	}
	s.notifier.Notify(ctx, feed.Event{
		Type:         eventType,
		Resource:     resource,
		AnnotationID: a.ID.String(),
		Motivation:   a.Motivation.String(),
	})
}

func (s *Service) auditExpired(ctx context.Context, expired []*PendingSelection) {
	for _, p := range expired {
		s.logAudit(ctx, string(audit.EventSelectionExpired), p.Resource,
			"selection_token", p.Token.String(),
			"motivation", p.Motivation.String(),
		)
	}
}

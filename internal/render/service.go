package render

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"marginalia/internal/annotation/models"
	"marginalia/internal/annotation/segmenter"
	docmodels "marginalia/internal/document/models"
	"marginalia/internal/platform/metrics"
	"marginalia/internal/platform/middleware"
	"marginalia/internal/render/cache"
	"marginalia/internal/render/markdown"
	id "marginalia/pkg/domain"
	dErrors "marginalia/pkg/domain-errors"
	audit "marginalia/pkg/platform/audit"
	"marginalia/pkg/requestcontext"
)

var tracer = otel.Tracer("marginalia.render")

// defaultCacheTTL bounds how long a rendered view may be served without
// recomputation.
const defaultCacheTTL = 10 * time.Minute

// View selects which rendering of a document to produce.
type View string

const (
	// ViewSource renders the raw text with annotated spans marked.
	ViewSource View = "source"
	// ViewMarkdown renders the document as markdown with annotations
	// mapped through the formatting.
	ViewMarkdown View = "markdown"
)

// ParseView validates a client-supplied view name. Empty defaults to source.
func ParseView(s string) (View, error) {
	switch View(s) {
	case "", ViewSource:
		return ViewSource, nil
	case ViewMarkdown:
		return ViewMarkdown, nil
	default:
		return "", dErrors.Newf(dErrors.CodeValidation, "unknown view %q", s)
	}
}

// Documents is the document lookup the renderer depends on.
type Documents interface {
	Get(ctx context.Context, docID id.DocumentID) (*docmodels.Document, error)
	Resolve(ctx context.Context, docID id.DocumentID) (string, error)
}

// Annotations lists the stored annotations for a resource.
type Annotations interface {
	List(ctx context.Context, resource string) ([]*models.Annotation, error)
}

// AuditPublisher records render serves.
type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

// DroppedAnnotation reports one annotation excluded from a view.
type DroppedAnnotation struct {
	AnnotationID string `json:"annotationId"`
	Reason       string `json:"reason"`
}

// Result is one rendered view plus everything the client needs to reason
// about it: exclusions, mapping warnings, and the cache identity the view was
// derived under.
type Result struct {
	DocumentID  string              `json:"documentId"`
	Resource    string              `json:"resource"`
	View        View                `json:"view"`
	HTML        string              `json:"html"`
	Warnings    []markdown.Warning  `json:"warnings,omitempty"`
	Dropped     []DroppedAnnotation `json:"dropped,omitempty"`
	Digest      string              `json:"digest"`
	Fingerprint string              `json:"fingerprint"`
	Cached      bool                `json:"cached"`
}

// Service renders annotated views of documents.
type Service struct {
	documents   Documents
	annotations Annotations
	mapper      *markdown.Mapper
	cache       cache.Cache
	cacheTTL    time.Duration
	logger      *slog.Logger
	metrics     *metrics.Metrics
	audit       AuditPublisher

	group singleflight.Group
}

// Option configures optional dependencies of the render Service.
type Option func(*Service)

// WithCache replaces the default in-memory render cache.
func WithCache(c cache.Cache) Option {
	return func(s *Service) {
		if c != nil {
			s.cache = c
		}
	}
}

// WithCacheTTL overrides how long rendered views stay cached.
func WithCacheTTL(ttl time.Duration) Option {
	return func(s *Service) {
		if ttl > 0 {
			s.cacheTTL = ttl
		}
	}
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

// WithMetrics sets the metrics recorder.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithAuditPublisher sets the audit sink for render serves.
func WithAuditPublisher(p AuditPublisher) Option {
	return func(s *Service) {
		s.audit = p
	}
}

// New constructs the render Service.
func New(documents Documents, annotations Annotations, opts ...Option) *Service {
	s := &Service{
		documents:   documents,
		annotations: annotations,
		mapper:      markdown.NewMapper(),
		cacheTTL:    defaultCacheTTL,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.cache == nil {
		s.cache = cache.NewMemory()
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	return s
}

// Render produces the requested view of a document. Document and annotation
// fetches run concurrently; identical concurrent recomputes are shared; the
// result is cached under the content digest and annotation fingerprint, so a
// stale entry cannot outlive a change to either.
func (s *Service) Render(ctx context.Context, docID id.DocumentID, view View) (*Result, error) {
	ctx, span := tracer.Start(ctx, "render.serve", trace.WithAttributes(
		attribute.String("render.document_id", docID.String()),
		attribute.String("render.view", string(view)),
	))
	defer span.End()

	doc, anns, err := s.fetch(ctx, docID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	plan := segmenter.Compute(doc.Content, anns)
	key := cacheKey(doc.Digest, plan.Fingerprint(), view)

	if result, ok := s.lookup(ctx, key); ok {
		s.metrics.ObserveRenderCache("hit")
		s.logAudit(ctx, string(audit.EventRenderServed), doc.Resource,
			"view", string(view),
			"cache", "hit",
		)
		span.SetStatus(codes.Ok, "")
		return result, nil
	}
	s.metrics.ObserveRenderCache("miss")

	v, err, _ := s.group.Do(key, func() (any, error) {
		return s.compute(ctx, doc, anns, plan, view)
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	result := v.(*Result)
	s.logAudit(ctx, string(audit.EventRenderServed), doc.Resource,
		"view", string(view),
		"cache", "miss",
	)
	span.SetStatus(codes.Ok, "")
	return result, nil
}

// fetch loads the document and its annotations concurrently.
func (s *Service) fetch(ctx context.Context, docID id.DocumentID) (*docmodels.Document, []*models.Annotation, error) {
	var (
		doc  *docmodels.Document
		anns []*models.Annotation
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		doc, err = s.documents.Get(gctx, docID)
		return err
	})
	g.Go(func() error {
		resource, err := s.documents.Resolve(gctx, docID)
		if err != nil {
			return err
		}
		anns, err = s.annotations.List(gctx, resource)
		if err != nil && dErrors.CodeOf(err) == dErrors.CodeInternal {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to list annotations")
		}
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	return doc, anns, nil
}

// lookup decodes a cached result. A corrupt entry is treated as a miss.
func (s *Service) lookup(ctx context.Context, key string) (*Result, bool) {
	payload, ok, err := s.cache.Get(ctx, key)
	if err != nil {
		s.logger.WarnContext(ctx, "render cache lookup failed", "error", err.Error())
		return nil, false
	}
	if !ok {
		return nil, false
	}

	var result Result
	if err := json.Unmarshal(payload, &result); err != nil {
		s.logger.WarnContext(ctx, "render cache entry corrupt", "error", err.Error())
		return nil, false
	}
	result.Cached = true
	return &result, true
}

// compute renders the view, records its metrics, and caches it.
func (s *Service) compute(ctx context.Context, doc *docmodels.Document, anns []*models.Annotation, plan segmenter.Plan, view View) (*Result, error) {
	result := &Result{
		DocumentID:  doc.ID.String(),
		Resource:    doc.Resource,
		View:        view,
		Digest:      doc.Digest,
		Fingerprint: plan.Fingerprint(),
	}

	switch view {
	case ViewMarkdown:
		mapped, err := s.mapper.Render(doc.Content, anns)
		if err != nil {
			return nil, err
		}
		result.HTML = mapped.HTML
		result.Warnings = mapped.Warnings
		result.Dropped = droppedRecords(mapped.Dropped)
	default:
		result.HTML = RenderSource(doc.Content, plan.Segments)
		result.Dropped = droppedRecords(plan.Dropped)
	}

	s.metrics.AddSegments(len(plan.Segments))
	s.metrics.AddRenderWarnings(len(result.Warnings))
	for reason, n := range dropCounts(result.Dropped) {
		s.metrics.IncrementDropped(reason, n)
	}
	for _, w := range result.Warnings {
		s.logger.WarnContext(ctx, "annotation could not be placed exactly",
			"annotation_id", w.AnnotationID,
			"reason", string(w.Reason),
			"resource", doc.Resource,
		)
	}

	payload, err := json.Marshal(result)
	if err == nil {
		// The first caller may be gone by the time a shared compute
		// finishes; the cache write still goes through.
		if err := s.cache.Set(context.WithoutCancel(ctx), cacheKey(doc.Digest, result.Fingerprint, view), payload, s.cacheTTL); err != nil {
			s.logger.WarnContext(ctx, "render cache store failed", "error", err.Error())
		}
	}

	return result, nil
}

func cacheKey(digest, fingerprint string, view View) string {
	return "render:" + digest + ":" + fingerprint + ":" + string(view)
}

func droppedRecords(dropped []segmenter.Dropped) []DroppedAnnotation {
	if len(dropped) == 0 {
		return nil
	}
	records := make([]DroppedAnnotation, 0, len(dropped))
	for _, d := range dropped {
		records = append(records, DroppedAnnotation{
			AnnotationID: d.Annotation.ID.String(),
			Reason:       string(d.Reason),
		})
	}
	return records
}

func dropCounts(dropped []DroppedAnnotation) map[string]int {
	if len(dropped) == 0 {
		return nil
	}
	counts := make(map[string]int, 2)
	for _, d := range dropped {
		counts[d.Reason]++
	}
	return counts
}

func (s *Service) logAudit(ctx context.Context, event, resource string, attributes ...any) {
	if requestID := middleware.GetRequestID(ctx); requestID != "" {
		attributes = append(attributes, "request_id", requestID)
	}
	args := append(attributes, "event", event, "resource", resource, "log_type", "audit")
	s.logger.InfoContext(ctx, event, args...)
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

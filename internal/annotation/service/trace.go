package service

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"marginalia/internal/annotation/models"
	id "marginalia/pkg/domain"
)

var tracer = otel.Tracer("marginalia.annotation")

// tracedStore wraps a Store so every round-trip carries an OpenTelemetry
// span. Wrapping is idempotent; transaction-scoped stores get wrapped again
// inside RunInTx closures.
type tracedStore struct {
	inner Store
}

func traceStore(s Store) Store {
	if _, ok := s.(tracedStore); ok {
		return s
	}
	return tracedStore{inner: s}
}

func (t tracedStore) Create(ctx context.Context, resource string, motivation models.Motivation, target models.Target, body models.Body, creator string) (*models.Annotation, error) {
	ctx, span := tracer.Start(ctx, "annotation.store.create",
		trace.WithAttributes(
			attribute.String("annotation.resource", resource),
			attribute.String("annotation.motivation", string(motivation)),
		),
	)
	defer span.End()
	a, err := t.inner.Create(ctx, resource, motivation, target, body, creator)
	endSpan(span, err)
	return a, err
}

func (t tracedStore) UpdateBody(ctx context.Context, annID id.AnnotationID, body models.Body) (*models.Annotation, error) {
	ctx, span := tracer.Start(ctx, "annotation.store.update_body",
		trace.WithAttributes(attribute.String("annotation.id", annID.String())),
	)
	defer span.End()
	a, err := t.inner.UpdateBody(ctx, annID, body)
	endSpan(span, err)
	return a, err
}

func (t tracedStore) Delete(ctx context.Context, annID id.AnnotationID) error {
	ctx, span := tracer.Start(ctx, "annotation.store.delete",
		trace.WithAttributes(attribute.String("annotation.id", annID.String())),
	)
	defer span.End()
	err := t.inner.Delete(ctx, annID)
	endSpan(span, err)
	return err
}

func (t tracedStore) Get(ctx context.Context, annID id.AnnotationID) (*models.Annotation, error) {
	ctx, span := tracer.Start(ctx, "annotation.store.get",
		trace.WithAttributes(attribute.String("annotation.id", annID.String())),
	)
	defer span.End()
	a, err := t.inner.Get(ctx, annID)
	endSpan(span, err)
	return a, err
}

func (t tracedStore) List(ctx context.Context, resource string) ([]*models.Annotation, error) {
	ctx, span := tracer.Start(ctx, "annotation.store.list",
		trace.WithAttributes(attribute.String("annotation.resource", resource)),
	)
	defer span.End()
	anns, err := t.inner.List(ctx, resource)
	endSpan(span, err)
	return anns, err
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return
	}
	span.SetStatus(codes.Ok, "")
}

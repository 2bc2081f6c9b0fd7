// Package store persists annotations. The Store interface is the annotation
// store contract the lifecycle consumes; implementations assign identity and
// creation time so callers observe ids only after a confirmed write.
package store

import (
	"context"

	"marginalia/internal/annotation/models"
	id "marginalia/pkg/domain"
	"marginalia/pkg/platform/sentinel"
)

// ErrNotFound is returned for lookups of absent annotations.
var ErrNotFound = sentinel.ErrNotFound

// Store is the persistence contract for annotations.
//
// Create assigns a fresh id and creation timestamp and returns the stored
// annotation. UpdateBody patches only the body, leaving the target selector
// bytes and the id untouched, and returns the updated annotation. Delete is
// idempotent on the caller side but reports ErrNotFound so the lifecycle can
// distinguish races. List returns annotations for a resource in creation
// order.
type Store interface {
	Create(ctx context.Context, resource string, motivation models.Motivation, target models.Target, body models.Body, creator string) (*models.Annotation, error)
	UpdateBody(ctx context.Context, annID id.AnnotationID, body models.Body) (*models.Annotation, error)
	Delete(ctx context.Context, annID id.AnnotationID) error
	Get(ctx context.Context, annID id.AnnotationID) (*models.Annotation, error)
	List(ctx context.Context, resource string) ([]*models.Annotation, error)
}

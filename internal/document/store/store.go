// Package store persists the document library. Documents are write-once:
// Put registers, reads serve everything else, and nothing ever updates
// content in place.
package store

import (
	"context"

	"marginalia/internal/document/models"
	id "marginalia/pkg/domain"
	"marginalia/pkg/platform/sentinel"
)

// ErrNotFound is returned for lookups of absent documents.
var ErrNotFound = sentinel.ErrNotFound

// Store is the persistence contract for documents.
//
// Put stores a fully constructed document; the service layer owns identity
// and digest assignment. Resolve is the cheap docID to resource-URI lookup
// the annotation routes take instead of loading full content.
type Store interface {
	Put(ctx context.Context, doc *models.Document) error
	Get(ctx context.Context, docID id.DocumentID) (*models.Document, error)
	GetByResource(ctx context.Context, resource string) (*models.Document, error)
	Resolve(ctx context.Context, docID id.DocumentID) (string, error)
}

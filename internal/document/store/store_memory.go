package store

import (
	"context"
	"sync"

	"marginalia/internal/document/models"
	id "marginalia/pkg/domain"
	dErrors "marginalia/pkg/domain-errors"
)

// MemoryStore is the in-memory Store used by development and tests.
// Returned documents are copies; content strings are immutable anyway.
type MemoryStore struct {
	mu         sync.RWMutex
	byID       map[id.DocumentID]*models.Document
	byResource map[string]id.DocumentID
}

// NewMemory creates an empty in-memory document store.
func NewMemory() *MemoryStore {
	return &MemoryStore{
		byID:       make(map[id.DocumentID]*models.Document),
		byResource: make(map[string]id.DocumentID),
	}
}

func (s *MemoryStore) Put(ctx context.Context, doc *models.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.byResource[doc.Resource]; ok && existing != doc.ID {
		return dErrors.Newf(dErrors.CodeConflict, "resource %s is already registered", doc.Resource)
	}
	stored := *doc
	stored.Created = stored.Created.UTC()
	s.byID[doc.ID] = &stored
	s.byResource[doc.Resource] = doc.ID
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, docID id.DocumentID) (*models.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	doc, ok := s.byID[docID]
	if !ok {
		return nil, ErrNotFound
	}
	c := *doc
	return &c, nil
}

func (s *MemoryStore) GetByResource(ctx context.Context, resource string) (*models.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	docID, ok := s.byResource[resource]
	if !ok {
		return nil, ErrNotFound
	}
	c := *s.byID[docID]
	return &c, nil
}

func (s *MemoryStore) Resolve(ctx context.Context, docID id.DocumentID) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	doc, ok := s.byID[docID]
	if !ok {
		return "", ErrNotFound
	}
	return doc.Resource, nil
}

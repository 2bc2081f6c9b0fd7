package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"marginalia/internal/annotation/models"
	id "marginalia/pkg/domain"
	dErrors "marginalia/pkg/domain-errors"
)

// MemoryStore is the in-memory Store used by development and tests. Returned
// annotations are copies; callers can mutate them freely without corrupting
// stored state. List order is insertion order, matching the creation-order
// contract even when timestamps collide under a fake clock.
type MemoryStore struct {
	mu       sync.RWMutex
	byID     map[id.AnnotationID]*models.Annotation
	seqs     map[id.AnnotationID]uint64
	sequence uint64

	// now is injectable for deterministic tests.
	now func() time.Time
}

// NewMemory creates an empty in-memory annotation store.
func NewMemory() *MemoryStore {
	return &MemoryStore{
		byID: make(map[id.AnnotationID]*models.Annotation),
		seqs: make(map[id.AnnotationID]uint64),
		now:  time.Now,
	}
}

// WithClock overrides the store's time source. Test hook.
func (s *MemoryStore) WithClock(now func() time.Time) *MemoryStore {
	s.now = now
	return s
}

func (s *MemoryStore) Create(ctx context.Context, resource string, motivation models.Motivation, target models.Target, body models.Body, creator string) (*models.Annotation, error) {
	if target.Source == "" {
		target.Source = resource
	}
	a, err := models.NewAnnotation(id.NewAnnotationID(), motivation, target, body, creator, s.now())
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.sequence++
	stored := *a
	stored.Created = stored.Created.UTC()
	s.byID[a.ID] = &stored
	s.seqs[a.ID] = s.sequence
	return copyAnnotation(&stored), nil
}

func (s *MemoryStore) UpdateBody(ctx context.Context, annID id.AnnotationID, body models.Body) (*models.Annotation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.byID[annID]
	if !ok {
		return nil, ErrNotFound
	}
	updated := *a
	updated.Body = body
	if err := validateShape(&updated); err != nil {
		return nil, err
	}
	s.byID[annID] = &updated
	return copyAnnotation(&updated), nil
}

func (s *MemoryStore) Delete(ctx context.Context, annID id.AnnotationID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byID[annID]; !ok {
		return ErrNotFound
	}
	delete(s.byID, annID)
	delete(s.seqs, annID)
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, annID id.AnnotationID) (*models.Annotation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.byID[annID]
	if !ok {
		return nil, ErrNotFound
	}
	return copyAnnotation(a), nil
}

func (s *MemoryStore) List(ctx context.Context, resource string) ([]*models.Annotation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*models.Annotation, 0)
	for _, a := range s.byID {
		if a.Target.Source == resource {
			out = append(out, copyAnnotation(a))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return s.seqs[out[i].ID] < s.seqs[out[j].ID]
	})
	return out, nil
}

// validateShape re-checks the motivation/body invariant after a patch.
func validateShape(a *models.Annotation) error {
	if a.Motivation == models.MotivationHighlighting && !a.Body.IsEmpty() {
		return dErrors.New(dErrors.CodeInvariantViolation, "highlight body must be empty")
	}
	return nil
}

func copyAnnotation(a *models.Annotation) *models.Annotation {
	c := *a
	if a.Body.EntityTypes != nil {
		c.Body.EntityTypes = append([]string(nil), a.Body.EntityTypes...)
	}
	return &c
}

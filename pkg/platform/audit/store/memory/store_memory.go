package memory

import (
	"context"
	"sync"

	audit "marginalia/pkg/platform/audit"
)

// InMemoryStore keeps audit events grouped by document resource. It is the
// development and test sink; production routes through Kafka.
type InMemoryStore struct {
	mu     sync.RWMutex
	events map[string][]audit.Event
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{events: make(map[string][]audit.Event)}
}

func (s *InMemoryStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = make(map[string][]audit.Event)
}

func (s *InMemoryStore) Append(_ context.Context, event audit.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events[event.Resource] = append(s.events[event.Resource], event)
	return nil
}

func (s *InMemoryStore) ListByResource(_ context.Context, resource string) ([]audit.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]audit.Event{}, s.events[resource]...), nil
}

// ListAll returns all audit events across all resources.
func (s *InMemoryStore) ListAll(_ context.Context) ([]audit.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var allEvents []audit.Event
	for _, resourceEvents := range s.events {
		allEvents = append(allEvents, resourceEvents...)
	}

	return allEvents, nil
}

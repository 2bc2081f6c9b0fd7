package service

import (
	"sync"
	"time"

	id "marginalia/pkg/domain"
)

// markSet tracks which annotations still count as "new" for client styling.
// An id enters only after its create is confirmed, decays after a fixed TTL,
// and Clear drops it early. Expiry is lazy, checked on read, so the set runs
// without a timer goroutine and tests drive it with a fake clock.
type markSet struct {
	mu    sync.Mutex
	ttl   time.Duration
	now   func() time.Time
	marks map[id.AnnotationID]time.Time
}

func newMarkSet(ttl time.Duration, now func() time.Time) *markSet {
	if now == nil {
		now = time.Now
	}
	return &markSet{
		ttl:   ttl,
		now:   now,
		marks: make(map[id.AnnotationID]time.Time),
	}
}

// Mark records a freshly created annotation.
func (m *markSet) Mark(annID id.AnnotationID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.marks[annID] = m.now().Add(m.ttl)
}

// Clear drops a mark before its decay, if present.
func (m *markSet) Clear(annID id.AnnotationID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.marks, annID)
}

// IsNew reports whether the annotation is inside its decay window.
func (m *markSet) IsNew(annID id.AnnotationID) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	expiry, ok := m.marks[annID]
	if !ok {
		return false
	}
	if m.now().After(expiry) {
		delete(m.marks, annID)
		return false
	}
	return true
}

// Len reports how many unexpired marks remain.
func (m *markSet) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	for annID, expiry := range m.marks {
		if now.After(expiry) {
			delete(m.marks, annID)
		}
	}
	return len(m.marks)
}

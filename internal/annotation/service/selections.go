package service

import (
	"sync"
	"time"

	"marginalia/internal/annotation/models"
	id "marginalia/pkg/domain"
	dErrors "marginalia/pkg/domain-errors"
)

// PendingSelection is a selection waiting for its second step: comment text,
// or entity-type disambiguation for a reference. While pending it holds its
// span, so overlapping creates on the same resource are rejected until it
// settles or expires.
type PendingSelection struct {
	Token      id.SelectionToken
	Resource   string
	Motivation models.Motivation
	Target     models.Target
	Creator    string
	Created    time.Time
	ExpiresAt  time.Time
}

// selectionRegistry holds pending selections with the same lazy-expiry clock
// discipline as markSet. Every operation sweeps first and returns whatever
// expired so the caller can account for it.
type selectionRegistry struct {
	mu      sync.Mutex
	ttl     time.Duration
	now     func() time.Time
	pending map[id.SelectionToken]*PendingSelection
}

func newSelectionRegistry(ttl time.Duration, now func() time.Time) *selectionRegistry {
	if now == nil {
		now = time.Now
	}
	return &selectionRegistry{
		ttl:     ttl,
		now:     now,
		pending: make(map[id.SelectionToken]*PendingSelection),
	}
}

// register admits a pending selection unless its span overlaps one already
// pending on the same resource.
func (r *selectionRegistry) register(resource string, motivation models.Motivation, target models.Target, creator string) (*PendingSelection, []*PendingSelection, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.now()
	expired := r.sweepLocked(now)
	for _, p := range r.pending {
		if p.Resource == resource && overlaps(p.Target, target) {
			return nil, expired, dErrors.New(dErrors.CodeConflict, "an overlapping selection is already pending")
		}
	}
	p := &PendingSelection{
		Token:      id.NewSelectionToken(),
		Resource:   resource,
		Motivation: motivation,
		Target:     target,
		Creator:    creator,
		Created:    now,
		ExpiresAt:  now.Add(r.ttl),
	}
	r.pending[p.Token] = p
	return p, expired, nil
}

// blocked reports whether a span overlaps any selection pending on the
// resource. Immediate creates check this before touching the store.
func (r *selectionRegistry) blocked(resource string, target models.Target) (bool, []*PendingSelection) {
	r.mu.Lock()
	defer r.mu.Unlock()
	expired := r.sweepLocked(r.now())
	for _, p := range r.pending {
		if p.Resource == resource && overlaps(p.Target, target) {
			return true, expired
		}
	}
	return false, expired
}

// get returns the pending selection for a token, leaving it registered. The
// span stays held until the completion settles or the caller removes it.
func (r *selectionRegistry) get(token id.SelectionToken) (*PendingSelection, []*PendingSelection, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	expired := r.sweepLocked(r.now())
	p, ok := r.pending[token]
	return p, expired, ok
}

// remove releases a pending selection's span.
func (r *selectionRegistry) remove(token id.SelectionToken) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.pending, token)
}

// len reports how many unexpired selections are pending.
func (r *selectionRegistry) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sweepLocked(r.now())
	return len(r.pending)
}

func (r *selectionRegistry) sweepLocked(now time.Time) []*PendingSelection {
	var expired []*PendingSelection
	for token, p := range r.pending {
		if now.After(p.ExpiresAt) {
			expired = append(expired, p)
			delete(r.pending, token)
		}
	}
	return expired
}

// overlaps reports whether two half-open spans intersect.
func overlaps(a, b models.Target) bool {
	return a.Start < b.End && b.Start < a.End
}

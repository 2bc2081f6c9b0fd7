// Package publisher delivers audit events to a store, synchronously by
// default or through a buffered background worker.
package publisher

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	audit "marginalia/pkg/platform/audit"
)

// appendTimeout bounds one background store write so a stuck sink cannot
// wedge the drain loop forever.
const appendTimeout = 5 * time.Second

// Store is the sink contract the publisher writes to.
type Store interface {
	Append(ctx context.Context, event audit.Event) error
	ListByResource(ctx context.Context, resource string) ([]audit.Event, error)
}

// Publisher emits audit events. In sync mode Emit writes through to the
// store and reports its error. In async mode (WithAsyncBuffer) Emit enqueues
// and returns immediately; a full buffer drops the event rather than slowing
// the request path, because audit must never block annotation mutations.
type Publisher struct {
	store   Store
	logger  *slog.Logger
	sampler *Sampler

	inbox     chan audit.Event
	wg        sync.WaitGroup
	closeOnce sync.Once
}

type Option func(p *Publisher)

// WithAsyncBuffer switches the publisher to async mode with the given
// buffer capacity.
func WithAsyncBuffer(size int) Option {
	return func(p *Publisher) {
		if size > 0 {
			p.inbox = make(chan audit.Event, size)
		}
	}
}

// WithLogger sets the logger for background append failures.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Publisher) {
		p.logger = logger
	}
}

// WithSampler drops a configurable fraction of events before they reach the
// store. Mutation events should never be sampled; see Sampler.
func WithSampler(s *Sampler) Option {
	return func(p *Publisher) {
		p.sampler = s
	}
}

// NewPublisher constructs a publisher over the store.
func NewPublisher(store Store, opts ...Option) *Publisher {
	p := &Publisher{store: store}
	for _, opt := range opts {
		opt(p)
	}
	if p.logger == nil {
		p.logger = slog.Default()
	}
	if p.inbox != nil {
		p.wg.Add(1)
		go p.run()
	}
	return p
}

// Emit records one audit event. A zero timestamp is stamped with the current
// time; a missing category is derived from the action.
func (p *Publisher) Emit(ctx context.Context, event audit.Event) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	if event.Category == "" {
		event.Category = audit.AuditEvent(event.Action).Category()
	}
	if p.sampler != nil && !p.sampler.Keep(event) {
		return nil
	}

	if p.inbox == nil {
		return p.store.Append(ctx, event)
	}

	select {
	case p.inbox <- event:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	default:
		return errors.New("audit buffer full")
	}
}

// List returns the recorded events for a document resource.
func (p *Publisher) List(ctx context.Context, resource string) ([]audit.Event, error) {
	return p.store.ListByResource(ctx, resource)
}

// Close stops the background worker after draining buffered events.
// Safe to call multiple times. Emit must not be called after Close.
func (p *Publisher) Close() {
	p.closeOnce.Do(func() {
		if p.inbox != nil {
			close(p.inbox)
			p.wg.Wait()
		}
	})
}

func (p *Publisher) run() {
	defer p.wg.Done()
	for event := range p.inbox {
		ctx, cancel := context.WithTimeout(context.Background(), appendTimeout)
		if err := p.store.Append(ctx, event); err != nil {
			p.logger.Error("audit append failed",
				"action", event.Action,
				"resource", event.Resource,
				"error", err,
			)
		}
		cancel()
	}
}

package feed

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync/atomic"
	"time"

	"marginalia/internal/platform/metrics"
)

const broadcastBuffer = 256

// Hub fans annotation events out to WebSocket subscribers. Subscriptions are
// scoped to one document resource: a client only receives events for the
// document it watches. All subscriber state is owned by the Run goroutine;
// everything else talks to it through channels.
type Hub struct {
	logger  *slog.Logger
	metrics *metrics.Metrics
	now     func() time.Time

	register   chan *Client
	unregister chan *Client
	broadcast  chan Event
	done       chan struct{}

	// clients is keyed by resource, touched only inside Run. count shadows
	// the table size for callers outside the Run goroutine.
	clients map[string]map[*Client]struct{}
	count   atomic.Int64
}

// HubOption configures optional dependencies of a Hub.
type HubOption func(h *Hub)

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) HubOption {
	return func(h *Hub) {
		h.logger = logger
	}
}

// WithMetrics sets the metrics recorder.
func WithMetrics(m *metrics.Metrics) HubOption {
	return func(h *Hub) {
		h.metrics = m
	}
}

// WithClock overrides the time source for event timestamps.
func WithClock(now func() time.Time) HubOption {
	return func(h *Hub) {
		h.now = now
	}
}

// NewHub constructs a hub. Call Run before subscribing clients.
func NewHub(opts ...HubOption) *Hub {
	h := &Hub{
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan Event, broadcastBuffer),
		done:       make(chan struct{}),
		clients:    make(map[string]map[*Client]struct{}),
	}
	for _, opt := range opts {
		opt(h)
	}
	if h.logger == nil {
		h.logger = slog.Default()
	}
	if h.now == nil {
		h.now = time.Now
	}
	return h
}

// Subscribers reports how many clients are currently connected.
func (h *Hub) Subscribers() int {
	return int(h.count.Load())
}

// Run owns the subscriber table until ctx is cancelled, then closes every
// client send channel so the write pumps shut the connections down. Call it
// once, on its own goroutine.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			for _, set := range h.clients {
				for c := range set {
					close(c.send)
				}
			}
			h.clients = make(map[string]map[*Client]struct{})
			h.count.Store(0)
			h.metrics.SetFeedSubscribers(0)
			close(h.done)
			return

		case c := <-h.register:
			set, ok := h.clients[c.resource]
			if !ok {
				set = make(map[*Client]struct{})
				h.clients[c.resource] = set
			}
			set[c] = struct{}{}
			n := int(h.count.Add(1))
			h.metrics.SetFeedSubscribers(n)
			h.logger.Debug("feed subscriber joined", "resource", c.resource, "subscribers", n)

		case c := <-h.unregister:
			if set, ok := h.clients[c.resource]; ok {
				if _, member := set[c]; member {
					delete(set, c)
					close(c.send)
					h.count.Add(-1)
					if len(set) == 0 {
						delete(h.clients, c.resource)
					}
				}
			}
			n := int(h.count.Load())
			h.metrics.SetFeedSubscribers(n)
			h.logger.Debug("feed subscriber left", "resource", c.resource, "subscribers", n)

		case e := <-h.broadcast:
			h.deliver(e)
		}
	}
}

// Notify implements the annotation service's notifier contract. A zero At is
// stamped here so service code never handles wall clocks for the feed. The
// send never blocks: when the hub is saturated the event is dropped and
// subscribers catch up on their next refetch.
func (h *Hub) Notify(_ context.Context, e Event) {
	if e.At.IsZero() {
		e.At = h.now().UTC()
	}
	select {
	case h.broadcast <- e:
	default:
		h.logger.Warn("feed broadcast buffer full, dropping event",
			"type", string(e.Type),
			"resource", e.Resource,
		)
		h.metrics.IncrementFeedDropped()
	}
}

func (h *Hub) deliver(e Event) {
	set, ok := h.clients[e.Resource]
	if !ok {
		return
	}
	payload, err := json.Marshal(e)
	if err != nil {
		h.logger.Error("failed to marshal feed event", "type", string(e.Type), "error", err)
		return
	}
	h.metrics.IncrementFeedEvent(string(e.Type))
	for c := range set {
		select {
		case c.send <- payload:
		default:
			// A reader that cannot keep up is cut loose rather than
			// letting its backlog grow without bound.
			delete(set, c)
			close(c.send)
			h.count.Add(-1)
			if len(set) == 0 {
				delete(h.clients, e.Resource)
			}
		}
	}
	h.metrics.SetFeedSubscribers(int(h.count.Load()))
}

// Package kafka publishes audit events to a Kafka topic. franz-go already
// batches and retries; this layer adds event encoding, topic bootstrap, and
// a circuit breaker that mirrors events into the log while the broker is
// unhealthy so the trail survives outages.
package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kerr"
	"github.com/twmb/franz-go/pkg/kgo"

	audit "marginalia/pkg/platform/audit"
	"marginalia/pkg/platform/circuit"
)

const closeTimeout = 5 * time.Second

// Publisher emits audit events to Kafka, keyed by document resource so one
// document's trail stays ordered within a partition.
type Publisher struct {
	client  *kgo.Client
	topic   string
	breaker *circuit.Breaker
	logger  *slog.Logger
	metrics *Metrics
}

type Option func(p *Publisher)

// WithLogger sets the logger for produce failures and the fallback trail.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Publisher) {
		p.logger = logger
	}
}

// WithMetrics enables produce/fallback counters.
func WithMetrics(m *Metrics) Option {
	return func(p *Publisher) {
		p.metrics = m
	}
}

// NewPublisher connects a producer to the brokers. The client buffers a
// bounded number of records; when the bound is hit the produce callback
// fires with an error instead of blocking the caller.
func NewPublisher(brokers []string, topic string, opts ...Option) (*Publisher, error) {
	if len(brokers) == 0 {
		return nil, errors.New("kafka audit publisher needs at least one broker")
	}
	if topic == "" {
		return nil, errors.New("kafka audit publisher needs a topic")
	}

	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.DefaultProduceTopic(topic),
		kgo.ProducerLinger(50*time.Millisecond),
		kgo.MaxBufferedRecords(4096),
	)
	if err != nil {
		return nil, fmt.Errorf("connect kafka audit publisher: %w", err)
	}

	p := &Publisher{
		client:  client,
		topic:   topic,
		breaker: circuit.New("audit-kafka", circuit.WithSuccessThreshold(2)),
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// EnsureTopic creates the audit topic when it does not exist yet.
func (p *Publisher) EnsureTopic(ctx context.Context, partitions int32, replicas int16) error {
	adm := kadm.NewClient(p.client)
	resp, err := adm.CreateTopic(ctx, partitions, replicas, nil, p.topic)
	if err != nil {
		return fmt.Errorf("create audit topic %s: %w", p.topic, err)
	}
	if resp.Err != nil && !errors.Is(resp.Err, kerr.TopicAlreadyExists) {
		return fmt.Errorf("create audit topic %s: %w", p.topic, resp.Err)
	}
	return nil
}

// wireEvent is the JSON shape produced onto the topic.
type wireEvent struct {
	Category   string           `json:"category"`
	Timestamp  time.Time        `json:"timestamp"`
	Resource   string           `json:"resource"`
	Annotation string           `json:"annotation,omitempty"`
	Action     string           `json:"action"`
	Motivation string           `json:"motivation,omitempty"`
	Actor      string           `json:"actor,omitempty"`
	Reason     string           `json:"reason,omitempty"`
	RequestID  string           `json:"request_id,omitempty"`
	Provenance audit.Provenance `json:"provenance"`
}

// Emit produces one audit event. Delivery is asynchronous; Emit never blocks
// on the broker. Every event is attempted regardless of breaker state, since
// produce successes are what close the circuit again; while the circuit is
// open the event is additionally written to the log, trading duplicates for
// a trail that survives the outage.
func (p *Publisher) Emit(ctx context.Context, event audit.Event) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	if event.Category == "" {
		event.Category = audit.AuditEvent(event.Action).Category()
	}

	value, err := json.Marshal(wireEvent{
		Category:   string(event.Category),
		Timestamp:  event.Timestamp,
		Resource:   event.Resource,
		Annotation: event.Annotation,
		Action:     event.Action,
		Motivation: event.Motivation,
		Actor:      event.Actor,
		Reason:     event.Reason,
		RequestID:  event.RequestID,
		Provenance: event.Provenance,
	})
	if err != nil {
		return fmt.Errorf("encode audit event: %w", err)
	}

	if p.breaker.IsOpen() {
		p.fallback(event)
	}

	record := &kgo.Record{Topic: p.topic, Key: []byte(event.Resource), Value: value}
	p.client.Produce(ctx, record, func(_ *kgo.Record, err error) {
		if err != nil {
			p.metrics.IncFailed()
			_, change := p.breaker.RecordFailure()
			if change.Opened {
				p.logger.Error("audit kafka circuit opened", "topic", p.topic, "error", err)
				p.metrics.SetBreakerOpen(true)
			} else {
				p.logger.Error("audit kafka produce failed", "topic", p.topic, "action", event.Action, "error", err)
			}
			return
		}
		p.metrics.IncProduced()
		if _, change := p.breaker.RecordSuccess(); change.Closed {
			p.logger.Info("audit kafka circuit closed", "topic", p.topic)
			p.metrics.SetBreakerOpen(false)
		}
	})
	return nil
}

// fallback writes the event to the log so the trail has a copy while Kafka
// is unreachable.
func (p *Publisher) fallback(event audit.Event) {
	p.metrics.IncFallback()
	p.logger.Warn("audit event diverted to log",
		"category", event.Category,
		"resource", event.Resource,
		"annotation", event.Annotation,
		"action", event.Action,
		"actor", event.Actor,
		"request_id", event.RequestID,
	)
}

// Close flushes buffered records and releases the client.
func (p *Publisher) Close() {
	ctx, cancel := context.WithTimeout(context.Background(), closeTimeout)
	defer cancel()
	if err := p.client.Flush(ctx); err != nil {
		p.logger.Error("audit kafka flush on close failed", "error", err)
	}
	p.client.Close()
}

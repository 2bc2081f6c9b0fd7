// Package metrics holds all Prometheus metrics for the application.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	AnnotationsCreated   *prometheus.CounterVec
	AnnotationsDeleted   prometheus.Counter
	AnnotationsConverted *prometheus.CounterVec

	SegmentsEmitted    prometheus.Counter
	AnnotationsDropped *prometheus.CounterVec

	DocumentsRegistered prometheus.Counter

	RenderWarnings prometheus.Counter
	RenderCache    *prometheus.CounterVec

	RequestLatency *prometheus.HistogramVec

	FeedSubscribers prometheus.Gauge
	FeedEvents      *prometheus.CounterVec
	FeedDropped     prometheus.Counter
}

// New creates and registers all Prometheus metrics.
func New() *Metrics {
	return &Metrics{
		AnnotationsCreated: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "marginalia_annotations_created_total",
			Help: "Total annotations created, by motivation",
		}, []string{"motivation"}),
		AnnotationsDeleted: promauto.NewCounter(prometheus.CounterOpts{
			Name: "marginalia_annotations_deleted_total",
			Help: "Total annotations deleted",
		}),
		AnnotationsConverted: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "marginalia_annotations_converted_total",
			Help: "Total annotation conversions, by transition",
		}, []string{"transition"}),
		SegmentsEmitted: promauto.NewCounter(prometheus.CounterOpts{
			Name: "marginalia_segments_emitted_total",
			Help: "Total segments produced by the segmenter",
		}),
		AnnotationsDropped: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "marginalia_annotations_dropped_total",
			Help: "Annotations excluded from rendering, by reason",
		}, []string{"reason"}),
		DocumentsRegistered: promauto.NewCounter(prometheus.CounterOpts{
			Name: "marginalia_documents_registered_total",
			Help: "Total documents registered in the library",
		}),
		RenderWarnings: promauto.NewCounter(prometheus.CounterOpts{
			Name: "marginalia_render_warnings_total",
			Help: "Non-fatal warnings recorded while mapping annotations onto rendered output",
		}),
		RenderCache: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "marginalia_render_cache_total",
			Help: "Render cache lookups, by outcome",
		}, []string{"outcome"}),
		RequestLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "marginalia_request_duration_seconds",
			Help:    "HTTP request latency by route and status",
			Buckets: prometheus.DefBuckets,
		}, []string{"route", "status"}),
		FeedSubscribers: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "marginalia_feed_subscribers",
			Help: "Currently connected change-feed subscribers",
		}),
		FeedEvents: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "marginalia_feed_events_total",
			Help: "Change-feed events broadcast, by type",
		}, []string{"type"}),
		FeedDropped: promauto.NewCounter(prometheus.CounterOpts{
			Name: "marginalia_feed_dropped_total",
			Help: "Change-feed events dropped because the broadcast buffer was full",
		}),
	}
}

// ObserveRequest records one HTTP request observation.
func (m *Metrics) ObserveRequest(route, status string, d time.Duration) {
	if m == nil {
		return
	}
	m.RequestLatency.WithLabelValues(route, status).Observe(d.Seconds())
}

// IncrementCreated bumps the creation counter for a motivation.
func (m *Metrics) IncrementCreated(motivation string) {
	if m == nil {
		return
	}
	m.AnnotationsCreated.WithLabelValues(motivation).Inc()
}

// IncrementDropped bumps the segmenter drop counter for a reason.
func (m *Metrics) IncrementDropped(reason string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.AnnotationsDropped.WithLabelValues(reason).Add(float64(n))
}

// IncrementDeleted bumps the deletion counter.
func (m *Metrics) IncrementDeleted() {
	if m == nil {
		return
	}
	m.AnnotationsDeleted.Inc()
}

// IncrementConverted bumps the conversion counter for a transition such as
// "highlight_to_reference_stub" or "reference_stub_to_reference_resolved".
func (m *Metrics) IncrementConverted(transition string) {
	if m == nil {
		return
	}
	m.AnnotationsConverted.WithLabelValues(transition).Inc()
}

// IncrementDocuments bumps the document registration counter.
func (m *Metrics) IncrementDocuments() {
	if m == nil {
		return
	}
	m.DocumentsRegistered.Inc()
}

// AddSegments records segments produced by one segmentation pass.
func (m *Metrics) AddSegments(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.SegmentsEmitted.Add(float64(n))
}

// AddRenderWarnings records non-fatal warnings from one render.
func (m *Metrics) AddRenderWarnings(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.RenderWarnings.Add(float64(n))
}

// ObserveRenderCache records one cache lookup outcome ("hit" or "miss").
func (m *Metrics) ObserveRenderCache(outcome string) {
	if m == nil {
		return
	}
	m.RenderCache.WithLabelValues(outcome).Inc()
}

// SetFeedSubscribers records the current subscriber count.
func (m *Metrics) SetFeedSubscribers(n int) {
	if m == nil {
		return
	}
	m.FeedSubscribers.Set(float64(n))
}

// IncrementFeedEvent bumps the broadcast counter for one event type.
func (m *Metrics) IncrementFeedEvent(eventType string) {
	if m == nil {
		return
	}
	m.FeedEvents.WithLabelValues(eventType).Inc()
}

// IncrementFeedDropped counts an event discarded under broadcast backpressure.
func (m *Metrics) IncrementFeedDropped() {
	if m == nil {
		return
	}
	m.FeedDropped.Inc()
}

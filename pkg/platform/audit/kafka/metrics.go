package kafka

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds Prometheus metrics for the Kafka audit publisher.
type Metrics struct {
	Produced     prometheus.Counter
	Failed       prometheus.Counter
	Fallback     prometheus.Counter
	BreakerState prometheus.Gauge
}

// NewMetrics creates and registers the Kafka audit publisher metrics.
func NewMetrics() *Metrics {
	return &Metrics{
		Produced: promauto.NewCounter(prometheus.CounterOpts{
			Name: "marginalia_audit_kafka_produced_total",
			Help: "Audit events successfully produced to Kafka",
		}),
		Failed: promauto.NewCounter(prometheus.CounterOpts{
			Name: "marginalia_audit_kafka_failed_total",
			Help: "Audit event produce failures",
		}),
		Fallback: promauto.NewCounter(prometheus.CounterOpts{
			Name: "marginalia_audit_kafka_fallback_total",
			Help: "Audit events diverted to the log while the circuit was open",
		}),
		BreakerState: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "marginalia_audit_kafka_breaker_state",
			Help: "Audit publisher circuit state (0=closed/healthy, 1=open/unhealthy)",
		}),
	}
}

// IncProduced increments the produced counter.
func (m *Metrics) IncProduced() {
	if m == nil {
		return
	}
	m.Produced.Inc()
}

// IncFailed increments the produce failure counter.
func (m *Metrics) IncFailed() {
	if m == nil {
		return
	}
	m.Failed.Inc()
}

// IncFallback increments the log-fallback counter.
func (m *Metrics) IncFallback() {
	if m == nil {
		return
	}
	m.Fallback.Inc()
}

// SetBreakerOpen records the circuit state.
func (m *Metrics) SetBreakerOpen(open bool) {
	if m == nil {
		return
	}
	if open {
		m.BreakerState.Set(1)
	} else {
		m.BreakerState.Set(0)
	}
}

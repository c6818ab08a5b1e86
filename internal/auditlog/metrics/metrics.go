package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Sink labels.
const (
	SinkStore  = "store"
	SinkMirror = "mirror"
	SinkStream = "stream"
)

// Metrics holds Prometheus metrics for the audit logging pipeline.
type Metrics struct {
	EventsReceived    *prometheus.CounterVec
	EventsSkipped     *prometheus.CounterVec
	EventsDropped     *prometheus.CounterVec
	RecordsBuilt      *prometheus.CounterVec
	SinkWrites        *prometheus.CounterVec
	SinkFailures      *prometheus.CounterVec
	StoreWriteSeconds prometheus.Histogram
	ActorLookups      *prometheus.CounterVec
}

// New creates the pipeline metrics on reg. A nil reg uses the default registerer.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)
	return &Metrics{
		EventsReceived: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "sentrybot_events_received_total",
			Help: "Total number of platform events received per intake kind",
		}, []string{"kind"}),
		EventsSkipped: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "sentrybot_events_skipped_total",
			Help: "Total number of events skipped by policy or the bot-author filter",
		}, []string{"kind", "reason"}),
		EventsDropped: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "sentrybot_events_dropped_total",
			Help: "Total number of events dropped because their payload could not be normalized",
		}, []string{"kind"}),
		RecordsBuilt: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "sentrybot_records_built_total",
			Help: "Total number of audit records built per event type",
		}, []string{"event_type"}),
		SinkWrites: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "sentrybot_sink_writes_total",
			Help: "Total number of successful sink writes",
		}, []string{"sink"}),
		SinkFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "sentrybot_sink_failures_total",
			Help: "Total number of failed sink writes",
		}, []string{"sink"}),
		StoreWriteSeconds: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "sentrybot_store_write_duration_seconds",
			Help:    "Latency of audit record store transactions",
			Buckets: prometheus.DefBuckets,
		}),
		ActorLookups: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "sentrybot_actor_lookups_total",
			Help: "Audit trail actor lookups by result",
		}, []string{"result"}),
	}
}

// IncReceived increments the received counter for an intake kind.
func (m *Metrics) IncReceived(kind string) {
	m.EventsReceived.WithLabelValues(kind).Inc()
}

// IncSkipped increments the skipped counter.
func (m *Metrics) IncSkipped(kind, reason string) {
	m.EventsSkipped.WithLabelValues(kind, reason).Inc()
}

// IncDropped increments the dropped counter.
func (m *Metrics) IncDropped(kind string) {
	m.EventsDropped.WithLabelValues(kind).Inc()
}

// IncRecordsBuilt increments the built counter for an event type.
func (m *Metrics) IncRecordsBuilt(eventType string) {
	m.RecordsBuilt.WithLabelValues(eventType).Inc()
}

// IncSinkWrite increments the success counter of a sink.
func (m *Metrics) IncSinkWrite(sink string) {
	m.SinkWrites.WithLabelValues(sink).Inc()
}

// IncSinkFailure increments the failure counter of a sink.
func (m *Metrics) IncSinkFailure(sink string) {
	m.SinkFailures.WithLabelValues(sink).Inc()
}

// ObserveStoreWrite records a store transaction latency.
func (m *Metrics) ObserveStoreWrite(seconds float64) {
	m.StoreWriteSeconds.Observe(seconds)
}

// ObserveActorLookup counts an actor lookup outcome.
func (m *Metrics) ObserveActorLookup(result string) {
	m.ActorLookups.WithLabelValues(result).Inc()
}

package observability

import (
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

type eventMetrics struct {
	emitted *prometheus.CounterVec
}

var (
	eventMetricsOnce sync.Once
	eventRegistry    *eventMetrics
)

// Events returns the metrics registry tracking committed events.
func Events() *eventMetrics {
	eventMetricsOnce.Do(func() {
		eventRegistry = &eventMetrics{
			emitted: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "feeshare",
				Subsystem: "events",
				Name:      "emitted_total",
				Help:      "Count of committed events segmented by type.",
			}, []string{"type"}),
		}
		prometheus.MustRegister(eventRegistry.emitted)
	})
	return eventRegistry
}

// RecordEvent increments the counter for the supplied event type.
func (m *eventMetrics) RecordEvent(eventType string) {
	if m == nil {
		return
	}
	normalized := strings.TrimSpace(eventType)
	if normalized == "" {
		normalized = "unknown"
	}
	m.emitted.WithLabelValues(normalized).Inc()
}

type journalMetrics struct {
	appendFailures *prometheus.CounterVec
	dropped        prometheus.Counter
	resyncs        prometheus.Counter
}

var (
	journalMetricsOnce sync.Once
	journalRegistry    *journalMetrics
)

// Journal returns the metrics registry tracking event journal health.
func Journal() *journalMetrics {
	journalMetricsOnce.Do(func() {
		journalRegistry = &journalMetrics{
			appendFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "feeshare",
				Subsystem: "journal",
				Name:      "append_failures_total",
				Help:      "Committed events the journal failed to persist, by type. Non-zero means replay is incomplete.",
			}, []string{"type"}),
			dropped: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "feeshare",
				Subsystem: "journal",
				Name:      "dropped_deliveries_total",
				Help:      "Live deliveries skipped because a subscriber buffer was full.",
			}),
			resyncs: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "feeshare",
				Subsystem: "journal",
				Name:      "stream_resyncs_total",
				Help:      "Times a lagging event stream re-read missed entries from the store.",
			}),
		}
		prometheus.MustRegister(journalRegistry.appendFailures, journalRegistry.dropped, journalRegistry.resyncs)
	})
	return journalRegistry
}

// RecordAppendFailure counts an event that was committed but not persisted.
func (m *journalMetrics) RecordAppendFailure(eventType string) {
	if m == nil {
		return
	}
	normalized := strings.TrimSpace(eventType)
	if normalized == "" {
		normalized = "unknown"
	}
	m.appendFailures.WithLabelValues(normalized).Inc()
}

// RecordDroppedDelivery counts a live entry skipped for a slow subscriber.
func (m *journalMetrics) RecordDroppedDelivery() {
	if m == nil {
		return
	}
	m.dropped.Inc()
}

// RecordStreamResync counts a stream recovering dropped entries.
func (m *journalMetrics) RecordStreamResync() {
	if m == nil {
		return
	}
	m.resyncs.Inc()
}

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus instruments for a monitored session.
type Metrics struct {
	Cycles               prometheus.Counter
	CycleDuration        prometheus.Histogram
	SnapshotSize         prometheus.Gauge
	PresentAttendees     prometheus.Gauge
	Events               *prometheus.CounterVec
	CollectorUnavailable prometheus.Counter
	ScanTruncated        prometheus.Counter
	UnresolvableObserved prometheus.Counter
	SinkErrors           *prometheus.CounterVec
	SinkDropped          *prometheus.CounterVec
}

// New creates and registers all metrics on reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Cycles: f.NewCounter(prometheus.CounterOpts{
			Name: "rollcall_cycles_total",
			Help: "Total number of completed poll cycles",
		}),
		CycleDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "rollcall_cycle_duration_seconds",
			Help:    "Wall time of a poll cycle including the roster scan",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 4, 8, 15},
		}),
		SnapshotSize: f.NewGauge(prometheus.GaugeOpts{
			Name: "rollcall_snapshot_size",
			Help: "Deduplicated observations captured in the last cycle",
		}),
		PresentAttendees: f.NewGauge(prometheus.GaugeOpts{
			Name: "rollcall_present_attendees",
			Help: "Identities currently considered present",
		}),
		Events: f.NewCounterVec(prometheus.CounterOpts{
			Name: "rollcall_events_total",
			Help: "Presence events emitted, by type",
		}, []string{"type"}),
		CollectorUnavailable: f.NewCounter(prometheus.CounterOpts{
			Name: "rollcall_collector_unavailable_total",
			Help: "Cycles where the roster container could not be located",
		}),
		ScanTruncated: f.NewCounter(prometheus.CounterOpts{
			Name: "rollcall_scan_truncated_total",
			Help: "Cycles whose roster scan ended before full coverage",
		}),
		UnresolvableObserved: f.NewCounter(prometheus.CounterOpts{
			Name: "rollcall_unresolvable_observations_total",
			Help: "Observations dropped because no identity could be derived",
		}),
		SinkErrors: f.NewCounterVec(prometheus.CounterOpts{
			Name: "rollcall_sink_errors_total",
			Help: "Failed event writes, by sink",
		}, []string{"sink"}),
		SinkDropped: f.NewCounterVec(prometheus.CounterOpts{
			Name: "rollcall_sink_dropped_total",
			Help: "Events dropped because a sink buffer was full, by sink",
		}, []string{"sink"}),
	}
}

// ObserveEvent counts one emitted event.
func (m *Metrics) ObserveEvent(eventType string) {
	m.Events.WithLabelValues(eventType).Inc()
}

// IncSinkError counts a failed write on the named sink.
func (m *Metrics) IncSinkError(sink string) {
	m.SinkErrors.WithLabelValues(sink).Inc()
}

// IncSinkDropped counts an event dropped by the named sink's buffer.
func (m *Metrics) IncSinkDropped(sink string) {
	m.SinkDropped.WithLabelValues(sink).Inc()
}

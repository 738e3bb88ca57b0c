// Package metrics exposes listen-pipeline counters.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	ViewChanges = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "listen_view_changes_total",
		Help: "The total number of document changes computed by views",
	}, []string{"type"})

	EventsRaised = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "listen_events_raised_total",
		Help: "The total number of events raised to listeners",
	}, []string{"kind"})

	SnapshotsSuppressed = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "listen_snapshots_suppressed_total",
		Help: "The total number of snapshots a listener decided not to raise",
	}, []string{"reason"})

	DeliveriesDropped = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "listen_deliveries_dropped_total",
		Help: "The total number of queued deliveries dropped because the listener was muted",
	})

	ActiveListeners = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "listen_active_listeners",
		Help: "The current number of registered query listeners",
	})
)

func init() {
	prometheus.MustRegister(ViewChanges)
	prometheus.MustRegister(EventsRaised)
	prometheus.MustRegister(SnapshotsSuppressed)
	prometheus.MustRegister(DeliveriesDropped)
	prometheus.MustRegister(ActiveListeners)
}

// Event kinds.
const (
	KindInitial = "initial"
	KindUpdate  = "update"
	KindError   = "error"
)

// Suppression reasons.
const (
	ReasonWaitForSync = "wait_for_sync"
	ReasonNoChanges   = "no_changes"
)

// Metrics is the telemetry surface of the listen pipeline.
type Metrics interface {
	IncViewChange(changeType string)
	IncEventRaised(kind string)
	IncSnapshotSuppressed(reason string)
	IncDeliveryDropped()
	AddActiveListeners(delta int)
}

// Prometheus records to the package-level collectors.
type Prometheus struct{}

func (Prometheus) IncViewChange(changeType string) {
	ViewChanges.WithLabelValues(changeType).Inc()
}

func (Prometheus) IncEventRaised(kind string) {
	EventsRaised.WithLabelValues(kind).Inc()
}

func (Prometheus) IncSnapshotSuppressed(reason string) {
	SnapshotsSuppressed.WithLabelValues(reason).Inc()
}

func (Prometheus) IncDeliveryDropped() {
	DeliveriesDropped.Inc()
}

func (Prometheus) AddActiveListeners(delta int) {
	ActiveListeners.Add(float64(delta))
}

// NoopMetrics is a no-op implementation of Metrics.
type NoopMetrics struct{}

func (m *NoopMetrics) IncViewChange(changeType string)     {}
func (m *NoopMetrics) IncEventRaised(kind string)          {}
func (m *NoopMetrics) IncSnapshotSuppressed(reason string) {}
func (m *NoopMetrics) IncDeliveryDropped()                 {}
func (m *NoopMetrics) AddActiveListeners(delta int)        {}

// Package metrics exposes Prometheus instrumentation for the booking dialogue.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "bookingpipe"

// Turn outcomes.
const (
	OutcomeReplied = "replied"
	OutcomeSilent  = "silent"
	OutcomeBooked  = "booked"
	OutcomeError   = "error"
)

// Metrics holds the counters and histograms for conversation turns.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	turnsTotal          *prometheus.CounterVec
	turnLatency         *prometheus.HistogramVec
	bookingsTotal       *prometheus.CounterVec
	persistenceFailures prometheus.Counter
	notifyFailures      prometheus.Counter
	deliveryFailures    prometheus.Counter
	duplicatesTotal     prometheus.Counter
}

// New creates the metrics and registers them with reg (the default registerer when nil).
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		turnsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "dialogue",
			Name:      "turns_total",
			Help:      "Conversation turns processed, by step at arrival and outcome",
		}, []string{"step", "outcome"}),
		turnLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "dialogue",
			Name:      "turn_latency_seconds",
			Help:      "Latency of conversation turn processing, excluding reply delivery",
			Buckets:   prometheus.DefBuckets,
		}, []string{"step"}),
		bookingsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "bookings",
			Name:      "appended_total",
			Help:      "Bookings appended to the record sink, by service",
		}, []string{"service"}),
		persistenceFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "bookings",
			Name:      "persistence_failures_total",
			Help:      "Booking appends rejected by the record sink",
		}),
		notifyFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "bookings",
			Name:      "notify_failures_total",
			Help:      "Admin notifications that failed to send",
		}),
		deliveryFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "messaging",
			Name:      "delivery_failures_total",
			Help:      "Replies the gateway failed to deliver",
		}),
		duplicatesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "messaging",
			Name:      "duplicate_messages_total",
			Help:      "Inbound messages dropped as redeliveries",
		}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.turnsTotal, m.turnLatency, m.bookingsTotal,
		m.persistenceFailures, m.notifyFailures, m.deliveryFailures, m.duplicatesTotal)
	return m
}

func (m *Metrics) ObserveTurn(step, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.turnsTotal.WithLabelValues(step, outcome).Inc()
	m.turnLatency.WithLabelValues(step).Observe(elapsed.Seconds())
}

func (m *Metrics) BookingAppended(service string) {
	if m == nil {
		return
	}
	m.bookingsTotal.WithLabelValues(service).Inc()
}

func (m *Metrics) PersistenceFailed() {
	if m == nil {
		return
	}
	m.persistenceFailures.Inc()
}

func (m *Metrics) NotifyFailed() {
	if m == nil {
		return
	}
	m.notifyFailures.Inc()
}

func (m *Metrics) DeliveryFailed() {
	if m == nil {
		return
	}
	m.deliveryFailures.Inc()
}

func (m *Metrics) DuplicateDropped() {
	if m == nil {
		return
	}
	m.duplicatesTotal.Inc()
}

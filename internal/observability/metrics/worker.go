package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kirillkom/claim-intake/internal/core/domain"
)

// Journal write outcomes. Rejected events are malformed and never retried.
const (
	JournalRecorded = "recorded"
	JournalRejected = "rejected"
	JournalFailed   = "failed"
)

// WorkerMetrics instruments the claim journal worker.
type WorkerMetrics struct {
	service  string
	registry *prometheus.Registry

	eventsTotal   *prometheus.CounterVec
	writeDuration *prometheus.HistogramVec
	inFlight      prometheus.Gauge
	eventLag      *prometheus.HistogramVec
}

func NewWorkerMetrics(service string) *WorkerMetrics {
	registry := prometheus.NewRegistry()

	eventsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "claims",
			Subsystem: "journal",
			Name:      "events_total",
			Help:      "Intake events handled by the journal, by event type and outcome.",
		},
		[]string{"service", "event", "outcome"},
	)
	writeDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "claims",
			Subsystem: "journal",
			Name:      "write_duration_seconds",
			Help:      "Claim record merge and upsert duration by event type.",
			Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
		[]string{"service", "event"},
	)
	inFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace:   "claims",
			Subsystem:   "journal",
			Name:        "writes_in_flight",
			Help:        "Journal writes currently in progress.",
			ConstLabels: prometheus.Labels{"service": service},
		},
	)
	eventLag := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "claims",
			Subsystem: "journal",
			Name:      "event_lag_seconds",
			Help:      "Delay between a claim milestone and the start of its journal write.",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300, 600},
		},
		[]string{"service", "event"},
	)

	registry.MustRegister(eventsTotal, writeDuration, inFlight, eventLag)

	return &WorkerMetrics{
		service:       service,
		registry:      registry,
		eventsTotal:   eventsTotal,
		writeDuration: writeDuration,
		inFlight:      inFlight,
		eventLag:      eventLag,
	}
}

func (m *WorkerMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// TrackEvent starts measuring the journal write of event at now. The
// returned func must be called with the write's result.
func (m *WorkerMetrics) TrackEvent(event domain.IntakeEvent, now time.Time) func(error) {
	eventType := string(event.Type)
	if eventType == "" {
		eventType = "unknown"
	}
	if !event.OccurredAt.IsZero() {
		if lag := now.Sub(event.OccurredAt); lag >= 0 {
			m.eventLag.WithLabelValues(m.service, eventType).Observe(lag.Seconds())
		}
	}
	m.inFlight.Inc()

	return func(err error) {
		m.inFlight.Dec()
		m.eventsTotal.WithLabelValues(m.service, eventType, JournalOutcome(err)).Inc()
		m.writeDuration.WithLabelValues(m.service, eventType).Observe(time.Since(now).Seconds())
	}
}

func JournalOutcome(err error) string {
	switch {
	case err == nil:
		return JournalRecorded
	case domain.IsKind(err, domain.ErrInvalidInput):
		return JournalRejected
	default:
		return JournalFailed
	}
}

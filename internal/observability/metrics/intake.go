package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// IntakeMetrics records the claim-intake lifecycle of one process.
type IntakeMetrics struct {
	service string

	submissionsTotal    *prometheus.CounterVec
	descriptionDuration *prometheus.HistogramVec
	fragmentsTotal      *prometheus.CounterVec
	fragmentBytesTotal  *prometheus.CounterVec
	triageTotal         *prometheus.CounterVec
	triageDuration      *prometheus.HistogramVec
	notificationsTotal  *prometheus.CounterVec
	staleDiscardsTotal  *prometheus.CounterVec
	breakerTransitions  *prometheus.CounterVec
}

func NewIntakeMetrics(service string, registerer prometheus.Registerer) *IntakeMetrics {
	submissionsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "claims",
			Subsystem: "intake",
			Name:      "submissions_total",
			Help:      "Total claim submissions by outcome.",
		},
		[]string{"service", "outcome"},
	)
	descriptionDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "claims",
			Subsystem: "intake",
			Name:      "description_duration_seconds",
			Help:      "Time from submission to the end of the description stream.",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 20, 30, 60, 120},
		},
		[]string{"service", "outcome"},
	)
	fragmentsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "claims",
			Subsystem: "intake",
			Name:      "stream_fragments_total",
			Help:      "Decoded description fragments applied to the intake.",
		},
		[]string{"service"},
	)
	fragmentBytesTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "claims",
			Subsystem: "intake",
			Name:      "stream_bytes_total",
			Help:      "Decoded description bytes applied to the intake.",
		},
		[]string{"service"},
	)
	triageTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "claims",
			Subsystem: "triage",
			Name:      "runs_total",
			Help:      "Total triage invocations by outcome.",
		},
		[]string{"service", "outcome"},
	)
	triageDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "claims",
			Subsystem: "triage",
			Name:      "duration_seconds",
			Help:      "Triage invocation duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "outcome"},
	)
	notificationsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "claims",
			Subsystem: "intake",
			Name:      "notifications_revealed_total",
			Help:      "Revealed notifications by identifier.",
		},
		[]string{"service", "notification"},
	)
	staleDiscardsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "claims",
			Subsystem: "intake",
			Name:      "stale_discards_total",
			Help:      "Results discarded because a newer submission superseded them.",
		},
		[]string{"service", "stage"},
	)
	breakerTransitions := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "claims",
			Subsystem: "backend",
			Name:      "breaker_transitions_total",
			Help:      "Circuit breaker state transitions by operation.",
		},
		[]string{"service", "operation", "from", "to"},
	)

	registerer.MustRegister(
		submissionsTotal,
		descriptionDuration,
		fragmentsTotal,
		fragmentBytesTotal,
		triageTotal,
		triageDuration,
		notificationsTotal,
		staleDiscardsTotal,
		breakerTransitions,
	)

	return &IntakeMetrics{
		service:             service,
		submissionsTotal:    submissionsTotal,
		descriptionDuration: descriptionDuration,
		fragmentsTotal:      fragmentsTotal,
		fragmentBytesTotal:  fragmentBytesTotal,
		triageTotal:         triageTotal,
		triageDuration:      triageDuration,
		notificationsTotal:  notificationsTotal,
		staleDiscardsTotal:  staleDiscardsTotal,
		breakerTransitions:  breakerTransitions,
	}
}

func (m *IntakeMetrics) ObserveSubmission(outcome string, duration time.Duration) {
	m.submissionsTotal.WithLabelValues(m.service, outcome).Inc()
	if duration > 0 {
		m.descriptionDuration.WithLabelValues(m.service, outcome).Observe(duration.Seconds())
	}
}

func (m *IntakeMetrics) ObserveFragment(bytes int) {
	m.fragmentsTotal.WithLabelValues(m.service).Inc()
	m.fragmentBytesTotal.WithLabelValues(m.service).Add(float64(bytes))
}

func (m *IntakeMetrics) ObserveTriage(outcome string, duration time.Duration) {
	m.triageTotal.WithLabelValues(m.service, outcome).Inc()
	m.triageDuration.WithLabelValues(m.service, outcome).Observe(duration.Seconds())
}

func (m *IntakeMetrics) ObserveNotification(id string) {
	m.notificationsTotal.WithLabelValues(m.service, id).Inc()
}

func (m *IntakeMetrics) ObserveStaleDiscard(stage string) {
	m.staleDiscardsTotal.WithLabelValues(m.service, stage).Inc()
}

// ObserveBreakerTransition matches resilience.StateObserver.
func (m *IntakeMetrics) ObserveBreakerTransition(operation, from, to string) {
	m.breakerTransitions.WithLabelValues(m.service, operation, from, to).Inc()
}

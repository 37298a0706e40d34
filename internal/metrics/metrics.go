package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "risehigh"

// Metrics holds the Prometheus collectors of the XP pipeline. A nil *Metrics
// is valid and records nothing.
type Metrics struct {
	ClosingRuns          *prometheus.CounterVec
	SubmissionsProcessed prometheus.Counter
	XPAwarded            *prometheus.CounterVec
	LevelUps             *prometheus.CounterVec
	EmailDispatches      *prometheus.CounterVec
	RequestDuration      *prometheus.HistogramVec
}

// New registers the collectors on reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		ClosingRuns: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "xp",
				Name:      "closing_runs_total",
				Help:      "Pipeline runs by trigger and outcome",
			},
			[]string{"trigger", "outcome"},
		),
		SubmissionsProcessed: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "xp",
				Name:      "submissions_processed_total",
				Help:      "Submissions that were awarded XP",
			},
		),
		XPAwarded: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "xp",
				Name:      "awarded_total",
				Help:      "XP granted, by event type",
			},
			[]string{"event_type"},
		),
		LevelUps: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "xp",
				Name:      "level_ups_total",
				Help:      "Level-ups, by event type",
			},
			[]string{"event_type"},
		),
		EmailDispatches: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "email",
				Name:      "dispatches_total",
				Help:      "Challenge email dispatches by outcome",
			},
			[]string{"outcome"},
		),
		RequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"route", "code"},
		),
	}
}

func (m *Metrics) ObserveRun(trigger, outcome string) {
	if m == nil {
		return
	}
	m.ClosingRuns.WithLabelValues(trigger, outcome).Inc()
}

func (m *Metrics) ObserveSubmission() {
	if m == nil {
		return
	}
	m.SubmissionsProcessed.Inc()
}

// ObserveEvent counts the XP and level-up carried by one event.
func (m *Metrics) ObserveEvent(eventType string, xp int, leveled bool) {
	if m == nil {
		return
	}
	m.XPAwarded.WithLabelValues(eventType).Add(float64(xp))
	if leveled {
		m.LevelUps.WithLabelValues(eventType).Inc()
	}
}

func (m *Metrics) ObserveEmail(outcome string) {
	if m == nil {
		return
	}
	m.EmailDispatches.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ObserveRequest(route string, code int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.RequestDuration.WithLabelValues(route, strconv.Itoa(code)).Observe(elapsed.Seconds())
}

// Handler serves the collectors registered on gatherer.
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	alertsIngested = promauto.NewCounter(prometheus.CounterOpts{
		Name: "opsrelay_alerts_ingested_total",
		Help: "Raw alerts accepted at the ingestion boundary",
	})

	alertsRejected = promauto.NewCounter(prometheus.CounterOpts{
		Name: "opsrelay_alerts_rejected_total",
		Help: "Malformed alerts rejected at the ingestion boundary",
	})

	incidentsCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "opsrelay_incidents_created_total",
		Help: "Incidents created by the correlation engine",
	})

	decisions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "opsrelay_decisions_total",
		Help: "Decisions recorded, by recommended action",
	}, []string{"action"})

	escalations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "opsrelay_escalations_total",
		Help: "Automatic escalations, by trigger reason",
	}, []string{"reason"})

	assignmentQueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "opsrelay_assignment_queue_depth",
		Help: "Incidents currently waiting in the overflow queue",
	})

	correlationSweepDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "opsrelay_correlation_sweep_duration_seconds",
		Help:    "Duration of one correlation pass for a tenant",
		Buckets: prometheus.DefBuckets,
	})
)

// IncAlertsIngested counts one accepted alert
func IncAlertsIngested() { alertsIngested.Inc() }

// IncAlertsRejected counts one rejected alert
func IncAlertsRejected() { alertsRejected.Inc() }

// IncIncidentsCreated counts one new incident
func IncIncidentsCreated() { incidentsCreated.Inc() }

// IncDecision counts one recorded decision by action
func IncDecision(action string) { decisions.WithLabelValues(action).Inc() }

// IncEscalation counts one escalation by trigger reason
func IncEscalation(reason string) { escalations.WithLabelValues(reason).Inc() }

// SetAssignmentQueueDepth reports the current overflow queue size
func SetAssignmentQueueDepth(n int64) { assignmentQueueDepth.Set(float64(n)) }

// ObserveCorrelationSweep records the duration of one correlation pass
func ObserveCorrelationSweep(d time.Duration) {
	correlationSweepDuration.Observe(d.Seconds())
}

// Handler returns the HTTP handler serving the metrics endpoint
func Handler() http.Handler {
	return promhttp.Handler()
}

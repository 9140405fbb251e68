// Package metrics holds the prometheus collectors for decision outcomes.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	// Score decisions by verdict and the heuristic branch that produced them
	ScoreDecisions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "guardian_score_decisions_total",
		Help: "Total number of scored transactions by decision and branch",
	}, []string{"decision", "branch"})

	// Latency of a full scoring call including store round trips
	ScoreLatency = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "guardian_score_latency_seconds",
		Help:    "Latency of transaction scoring",
		Buckets: prometheus.DefBuckets,
	})

	AuthorizeVerdicts = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "guardian_authorize_verdicts_total",
		Help: "Total number of authorization verdicts by decision and reason",
	}, []string{"decision", "reason"})

	DwellChecks = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "guardian_dwell_checks_total",
		Help: "Total number of dwell checks by decision",
	}, []string{"decision"})

	// Places lookups that failed and were answered with an empty list
	PlacesFailures = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "guardian_places_failures_total",
		Help: "Total number of places provider failures by provider",
	}, []string{"provider"})

	NotificationsSent = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "guardian_notifications_total",
		Help: "Total number of notifications delivered by code and outcome",
	}, []string{"code", "outcome"})
)

var registerOnce sync.Once

// Init registers every collector with the default registry. Safe to call
// more than once.
func Init() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			ScoreDecisions,
			ScoreLatency,
			AuthorizeVerdicts,
			DwellChecks,
			PlacesFailures,
			NotificationsSent,
		)
	})
}

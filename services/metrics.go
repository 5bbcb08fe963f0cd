package services

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	approvalsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "subscription_decisions_total",
			Help: "Total number of admin approval decisions",
		},
		[]string{"decision"},
	)
	grantFailuresTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "subscription_grant_failures_total",
			Help: "Total number of failed invite grants or deliveries",
		},
	)
	sweepRunsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "subscription_sweep_runs_total",
			Help: "Total number of expiry sweep ticks",
		},
	)
	sweepRemovedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "subscription_sweep_removed_total",
			Help: "Total number of expired subscriptions removed",
		},
	)
	sweepRevokeFailuresTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "subscription_sweep_revoke_failures_total",
			Help: "Total number of failed channel revocations during sweeps",
		},
	)
)

// InitMetrics registers the subscription metrics. Call this from main.go
func InitMetrics() {
	prometheus.MustRegister(approvalsTotal)
	prometheus.MustRegister(grantFailuresTotal)
	prometheus.MustRegister(sweepRunsTotal)
	prometheus.MustRegister(sweepRemovedTotal)
	prometheus.MustRegister(sweepRevokeFailuresTotal)
}

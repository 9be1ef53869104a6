// Package metrics provides Prometheus metrics for the Holly service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// AssignmentsTotal tracks assignment requests by outcome
	AssignmentsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "holly",
			Subsystem: "assignment",
			Name:      "requests_total",
			Help:      "Total number of assignment requests by outcome",
		},
		[]string{"outcome"},
	)

	// EligibleSetSize tracks the size of the eligible set at draw time
	EligibleSetSize = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "holly",
			Subsystem: "assignment",
			Name:      "eligible_set_size",
			Help:      "Size of the eligible set when a draw is attempted",
			Buckets:   []float64{0, 1, 2, 3, 5, 8, 13, 21, 34},
		},
	)

	// PlayerLoginsTotal tracks player PIN logins by outcome
	PlayerLoginsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "holly",
			Subsystem: "player",
			Name:      "logins_total",
			Help:      "Total number of player PIN logins by outcome",
		},
		[]string{"outcome"},
	)

	// AdminMutationsTotal tracks admin roster mutations by operation and outcome
	AdminMutationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "holly",
			Subsystem: "admin",
			Name:      "mutations_total",
			Help:      "Total number of admin roster mutations by operation and outcome",
		},
		[]string{"operation", "outcome"},
	)

	// RateLimitedTotal tracks requests rejected by the login rate limiter
	RateLimitedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "holly",
			Subsystem: "player",
			Name:      "rate_limited_total",
			Help:      "Total number of requests rejected by the login rate limiter",
		},
	)
)

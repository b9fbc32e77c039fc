package substmodel

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	decompositions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ctmc_decompositions_total",
			Help: "Rate matrix decompositions by model and outcome",
		},
		[]string{"model", "outcome"},
	)

	decompositionSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ctmc_decomposition_seconds",
			Help:    "Time to build and decompose a rate matrix",
			Buckets: prometheus.ExponentialBuckets(1e-6, 4, 10),
		},
		[]string{"model"},
	)

	cacheRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ctmc_cache_requests_total",
			Help: "Decomposition requests by model and cache result",
		},
		[]string{"model", "result"},
	)

	restores = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ctmc_restores_total",
			Help: "Restored snapshots by model",
		},
		[]string{"model"},
	)
)

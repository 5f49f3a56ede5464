package router

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	forwardedQueries = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "manifold",
		Subsystem: "router",
		Name:      "queries_total",
		Help:      "queries forwarded by the router, by action and outcome",
	}, []string{"action", "outcome"})

	queryDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "manifold",
		Subsystem: "router",
		Name:      "query_duration_seconds",
		Help:      "time to forward a query and collect its records",
		Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
	}, []string{"action"})

	planBuilds = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "manifold",
		Subsystem: "router",
		Name:      "plan_builds_total",
		Help:      "plans built on a plan cache miss, by whether the build was shared",
	}, []string{"shared"})

	gatewayErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "manifold",
		Subsystem: "router",
		Name:      "gateway_errors_total",
		Help:      "errors reported by platforms",
	}, []string{"platform"})
)

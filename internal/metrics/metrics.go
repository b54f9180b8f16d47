// Package metrics defines the Prometheus collectors exported by the server.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the calculation and RPC collectors.
type Metrics struct {
	Calculations      *prometheus.CounterVec
	CalculationPasses *prometheus.HistogramVec
	CalculationTime   *prometheus.HistogramVec
	RejectedFunctions *prometheus.CounterVec
	BillRefreshes     prometheus.Counter
	RPCs              *prometheus.CounterVec
	RPCDuration       *prometheus.HistogramVec
}

// New creates the collectors and registers them with reg.
// A nil reg leaves them unregistered, which is convenient in tests.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Calculations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "scopewise",
			Name:      "calculations_total",
			Help:      "Scope calculations by scope type and outcome.",
		}, []string{"scope_type", "outcome"}),
		CalculationPasses: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "scopewise",
			Name:      "calculation_passes",
			Help:      "Totals loop passes per successful calculation.",
			Buckets:   prometheus.LinearBuckets(0, 1, 11),
		}, []string{"scope_type"}),
		CalculationTime: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "scopewise",
			Name:      "calculation_duration_seconds",
			Help:      "Wall time of one scope calculation.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 12),
		}, []string{"scope_type"}),
		RejectedFunctions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "scopewise",
			Name:      "custom_functions_rejected_total",
			Help:      "Custom functions excluded from a calculation session.",
		}, []string{"function"}),
		BillRefreshes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "scopewise",
			Name:      "bill_refreshes_total",
			Help:      "Bill rollups recomputed.",
		}),
		RPCs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "scopewise",
			Name:      "rpc_requests_total",
			Help:      "Connect RPCs by procedure and code.",
		}, []string{"procedure", "code"}),
		RPCDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "scopewise",
			Name:      "rpc_duration_seconds",
			Help:      "Connect RPC latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"procedure"}),
	}
	if reg != nil {
		reg.MustRegister(
			m.Calculations,
			m.CalculationPasses,
			m.CalculationTime,
			m.RejectedFunctions,
			m.BillRefreshes,
			m.RPCs,
			m.RPCDuration,
		)
	}
	return m
}

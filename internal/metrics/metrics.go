// Package metrics exposes Prometheus instruments for the trading loop.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	Iterations = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "typhoon_iterations_total",
			Help: "Total trading loop iterations executed.",
		},
	)

	IterationErrors = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "typhoon_iteration_errors_total",
			Help: "Trading loop iterations abandoned with an error.",
		},
	)

	OrdersSubmitted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "typhoon_orders_submitted_total",
			Help: "Total number of orders submitted (by strategy).",
		},
		[]string{"strategy"},
	)

	RegimeTransitions = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "typhoon_regime_transitions_total",
			Help: "Total market regime flips.",
		},
	)

	RegimeGauge = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "typhoon_regime",
			Help: "Current market regime (0 = ranging, 1 = trending).",
		},
	)

	PositionsOpen = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "typhoon_positions_open",
			Help: "Current number of open positions per strategy.",
		},
		[]string{"strategy"},
	)

	EquityGauge = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "typhoon_equity",
			Help: "Current account equity (paper or live).",
		},
	)
)

func init() {
	prometheus.MustRegister(
		Iterations,
		IterationErrors,
		OrdersSubmitted,
		RegimeTransitions,
		RegimeGauge,
		PositionsOpen,
		EquityGauge,
	)
}

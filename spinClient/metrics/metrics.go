// Package metrics exposes prometheus instrumentation for the relay.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTP Metrics
var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      MetricNameHTTPRequestsTotal,
			Help:      HelpTextHTTPRequestsTotal,
		},
		[]string{LabelMethod, LabelPath, LabelStatus},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      MetricNameHTTPRequestDuration,
			Help:      HelpTextHTTPRequestDuration,
			Buckets:   HTTPLatencyBuckets,
		},
		[]string{LabelMethod, LabelPath},
	)

	HTTPRequestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      MetricNameHTTPRequestsInFlight,
			Help:      HelpTextHTTPRequestsInFlight,
		},
	)
)

// Spin Metrics
var (
	SpinsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      MetricNameSpinsTotal,
			Help:      HelpTextSpinsTotal,
		},
		[]string{LabelNetwork, LabelResult},
	)

	SpinDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      MetricNameSpinDuration,
			Help:      HelpTextSpinDuration,
			Buckets:   SpinLatencyBuckets,
		},
		[]string{LabelNetwork},
	)

	SpinsCorrected = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      MetricNameSpinsCorrected,
			Help:      HelpTextSpinsCorrected,
		},
	)

	SpinsSuperseded = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      MetricNameSpinsSuperseded,
			Help:      HelpTextSpinsSuperseded,
		},
	)

	Confirmations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      MetricNameConfirmationsPath,
			Help:      HelpTextConfirmationsPath,
		},
		[]string{LabelPathKind},
	)
)

// Gas Payment Metrics
var (
	PaymentAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      MetricNamePaymentAttempts,
			Help:      HelpTextPaymentAttempts,
		},
		[]string{LabelStrategy, LabelResult},
	)

	SponsoredEnabled = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      MetricNameSponsoredEnabled,
			Help:      HelpTextSponsoredEnabled,
		},
	)
)

// Session Metrics
var (
	ConnectionHealthFailures = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      MetricNameConnectionHealth,
			Help:      HelpTextConnectionHealth,
		},
	)

	SetupsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      MetricNameSetupsTotal,
			Help:      HelpTextSetupsTotal,
		},
		[]string{LabelNetwork, LabelResult},
	)

	BridgeClients = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      MetricNameBridgeClients,
			Help:      HelpTextBridgeClients,
		},
	)
)

// BoolGauge converts a flag to a gauge value.
func BoolGauge(v bool) float64 {
	if v {
		return 1
	}
	return 0
}

// ResultLabel maps an error to the result label.
func ResultLabel(err error) string {
	if err != nil {
		return ResultFailure
	}
	return ResultSuccess
}

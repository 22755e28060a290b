/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package dispatcher

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/acronis/go-apidispatch/internal/libinfo"
)

const (
	metricsLabelTarget = "target"
	metricsLabelResult = "result"
)

// DefaultWaitDurationBuckets are the histogram buckets (in seconds) for the time callers wait for a token.
var DefaultWaitDurationBuckets = []float64{0.01, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120}

// MetricsCollector collects metrics of how requests are admitted.
// The target is the dispatcher name (see WithName).
type MetricsCollector interface {
	// IncAdmissions counts a finished Dispatch call by its result.
	IncAdmissions(target string, status Status)
	// SetTokens sets the number of tokens available in the bucket.
	SetTokens(target string, tokens int)
	// IncPenalties counts entries into the penalty state.
	IncPenalties(target string)
	// ObserveWait observes how long an admitted caller waited for a token.
	ObserveWait(target string, d time.Duration)
	// SetWaitingCallers sets the number of callers currently waiting for a token.
	SetWaitingCallers(target string, n int)
}

// PrometheusMetricsOpts represents options for PrometheusMetrics.
type PrometheusMetricsOpts struct {
	// Namespace is prepended to all metric names.
	Namespace string
	// WaitDurationBuckets defines buckets of the wait duration histogram.
	// DefaultWaitDurationBuckets is used when empty.
	WaitDurationBuckets []float64
	// ConstLabels is a set of labels applied to all metrics.
	ConstLabels prometheus.Labels
}

// PrometheusMetrics is a MetricsCollector backed by Prometheus collectors.
// One instance may be shared by several dispatchers, they are told apart by the "target" label.
type PrometheusMetrics struct {
	AdmissionsTotal *prometheus.CounterVec
	TokensAvailable *prometheus.GaugeVec
	PenaltiesTotal  *prometheus.CounterVec
	WaitDuration    *prometheus.HistogramVec
	WaitingCallers  *prometheus.GaugeVec
}

var _ MetricsCollector = (*PrometheusMetrics)(nil)

// NewPrometheusMetrics creates a new instance of PrometheusMetrics with default options.
func NewPrometheusMetrics() *PrometheusMetrics {
	return NewPrometheusMetricsWithOpts(PrometheusMetricsOpts{})
}

// NewPrometheusMetricsWithOpts creates a new instance of PrometheusMetrics with the provided options.
func NewPrometheusMetricsWithOpts(opts PrometheusMetricsOpts) *PrometheusMetrics {
	buckets := opts.WaitDurationBuckets
	if len(buckets) == 0 {
		buckets = DefaultWaitDurationBuckets
	}
	constLabels := libinfo.AddPrometheusLibVersionLabel(opts.ConstLabels)

	return &PrometheusMetrics{
		AdmissionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   opts.Namespace,
			Name:        "dispatch_admissions_total",
			Help:        "Number of finished dispatch calls by result.",
			ConstLabels: constLabels,
		}, []string{metricsLabelTarget, metricsLabelResult}),
		TokensAvailable: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace:   opts.Namespace,
			Name:        "dispatch_tokens_available",
			Help:        "Number of tokens available in the bucket.",
			ConstLabels: constLabels,
		}, []string{metricsLabelTarget}),
		PenaltiesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   opts.Namespace,
			Name:        "dispatch_penalties_total",
			Help:        "Number of times the dispatcher entered the penalty state.",
			ConstLabels: constLabels,
		}, []string{metricsLabelTarget}),
		WaitDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:   opts.Namespace,
			Name:        "dispatch_wait_duration_seconds",
			Help:        "Time admitted callers waited for a token.",
			Buckets:     buckets,
			ConstLabels: constLabels,
		}, []string{metricsLabelTarget}),
		WaitingCallers: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace:   opts.Namespace,
			Name:        "dispatch_waiting_callers",
			Help:        "Number of callers currently waiting for a token.",
			ConstLabels: constLabels,
		}, []string{metricsLabelTarget}),
	}
}

// MustRegister does registration of metrics collector in Prometheus and panics if any error occurs.
func (pm *PrometheusMetrics) MustRegister() {
	prometheus.MustRegister(pm.AdmissionsTotal, pm.TokensAvailable, pm.PenaltiesTotal, pm.WaitDuration, pm.WaitingCallers)
}

// Unregister cancels registration of metrics collector in Prometheus.
func (pm *PrometheusMetrics) Unregister() {
	prometheus.Unregister(pm.AdmissionsTotal)
	prometheus.Unregister(pm.TokensAvailable)
	prometheus.Unregister(pm.PenaltiesTotal)
	prometheus.Unregister(pm.WaitDuration)
	prometheus.Unregister(pm.WaitingCallers)
}

// MustRegisterMetrics is an alias of MustRegister that makes PrometheusMetrics a service.MetricsRegisterer.
func (pm *PrometheusMetrics) MustRegisterMetrics() { pm.MustRegister() }

// UnregisterMetrics is an alias of Unregister that makes PrometheusMetrics a service.MetricsRegisterer.
func (pm *PrometheusMetrics) UnregisterMetrics() { pm.Unregister() }

// IncAdmissions implements MetricsCollector.
func (pm *PrometheusMetrics) IncAdmissions(target string, status Status) {
	pm.AdmissionsTotal.WithLabelValues(target, status.String()).Inc()
}

// SetTokens implements MetricsCollector.
func (pm *PrometheusMetrics) SetTokens(target string, tokens int) {
	pm.TokensAvailable.WithLabelValues(target).Set(float64(tokens))
}

// IncPenalties implements MetricsCollector.
func (pm *PrometheusMetrics) IncPenalties(target string) {
	pm.PenaltiesTotal.WithLabelValues(target).Inc()
}

// ObserveWait implements MetricsCollector.
func (pm *PrometheusMetrics) ObserveWait(target string, d time.Duration) {
	pm.WaitDuration.WithLabelValues(target).Observe(d.Seconds())
}

// SetWaitingCallers implements MetricsCollector.
func (pm *PrometheusMetrics) SetWaitingCallers(target string, n int) {
	pm.WaitingCallers.WithLabelValues(target).Set(float64(n))
}

type disabledMetrics struct{}

func (disabledMetrics) IncAdmissions(string, Status)      {}
func (disabledMetrics) SetTokens(string, int)             {}
func (disabledMetrics) IncPenalties(string)               {}
func (disabledMetrics) ObserveWait(string, time.Duration) {}
func (disabledMetrics) SetWaitingCallers(string, int)     {}

var disabledMetricsCollector = disabledMetrics{}

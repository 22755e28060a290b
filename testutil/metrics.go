/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package testutil

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type metricSample struct {
	counter     float64
	gauge       float64
	sampleCount uint64
}

// gatherSingle registers the collector in a private registry and returns its only sample.
// A labeled child (e.g. CounterVec.WithLabelValues(...)) is a valid collector here.
func gatherSingle(t assert.TestingT, c prometheus.Collector) (metricSample, bool) {
	if h, ok := t.(tHelper); ok {
		h.Helper()
	}
	reg := prometheus.NewPedanticRegistry()
	if !assert.NoError(t, reg.Register(c)) {
		return metricSample{}, false
	}
	families, err := reg.Gather()
	if !assert.NoError(t, err) {
		return metricSample{}, false
	}
	if !assert.Len(t, families, 1) || !assert.Len(t, families[0].GetMetric(), 1) {
		return metricSample{}, false
	}
	m := families[0].GetMetric()[0]
	return metricSample{
		counter:     m.GetCounter().GetValue(),
		gauge:       m.GetGauge().GetValue(),
		sampleCount: m.GetHistogram().GetSampleCount(),
	}, true
}

// AssertSamplesCountInHistogram asserts that the histogram contains the specified number of samples.
func AssertSamplesCountInHistogram(t assert.TestingT, hist prometheus.Collector, wantSamplesCount int) bool {
	if h, ok := t.(tHelper); ok {
		h.Helper()
	}
	s, ok := gatherSingle(t, hist)
	if !ok {
		return false
	}
	return assert.Equal(t, wantSamplesCount, int(s.sampleCount))
}

// RequireSamplesCountInHistogram calls AssertSamplesCountInHistogram and fails the test immediately on mismatch.
func RequireSamplesCountInHistogram(t require.TestingT, hist prometheus.Collector, wantSamplesCount int) {
	if h, ok := t.(tHelper); ok {
		h.Helper()
	}
	if !AssertSamplesCountInHistogram(t, hist, wantSamplesCount) {
		t.FailNow()
	}
}

// AssertSamplesCountInCounter asserts that the counter has the specified value.
func AssertSamplesCountInCounter(t assert.TestingT, counter prometheus.Collector, wantCount int) bool {
	if h, ok := t.(tHelper); ok {
		h.Helper()
	}
	s, ok := gatherSingle(t, counter)
	if !ok {
		return false
	}
	return assert.Equal(t, wantCount, int(s.counter))
}

// RequireSamplesCountInCounter calls AssertSamplesCountInCounter and fails the test immediately on mismatch.
func RequireSamplesCountInCounter(t require.TestingT, counter prometheus.Collector, wantCount int) {
	if h, ok := t.(tHelper); ok {
		h.Helper()
	}
	if !AssertSamplesCountInCounter(t, counter, wantCount) {
		t.FailNow()
	}
}

// AssertGaugeValue asserts that the gauge has the specified value.
func AssertGaugeValue(t assert.TestingT, gauge prometheus.Collector, want float64) bool {
	if h, ok := t.(tHelper); ok {
		h.Helper()
	}
	s, ok := gatherSingle(t, gauge)
	if !ok {
		return false
	}
	return assert.Equal(t, want, s.gauge)
}

// RequireGaugeValue calls AssertGaugeValue and fails the test immediately on mismatch.
func RequireGaugeValue(t require.TestingT, gauge prometheus.Collector, want float64) {
	if h, ok := t.(tHelper); ok {
		h.Helper()
	}
	if !AssertGaugeValue(t, gauge, want) {
		t.FailNow()
	}
}

// Package metrics provides metrics collection for the query coordinator.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Namespace prefixes every metric name exported by the coordinator.
const Namespace = "fedquery"

// Metric names recorded by the coordinator, relative to Namespace.
const (
	QuestionsTotal     = "questions_total"
	CacheHitsTotal     = "cache_hits_total"
	CacheMissesTotal   = "cache_misses_total"
	SynthesisTotal     = "synthesis_total"
	BackendErrorsTotal = "backend_errors_total"
	HTTPRequestsTotal  = "http_requests_total"
	HTTPResponsesTotal = "http_responses_total"
	HTTPRequestSeconds = "http_request_duration_seconds"

	// Timer names. Stop records <timer>_duration_seconds.
	QuestionTimer = "question"
	BackendTimer  = "backend"
)

// DurationSuffix is appended to timer names.
const DurationSuffix = "_duration_seconds"

var help = map[string]string{
	QuestionsTotal:                  "Questions answered, by plan kind.",
	CacheHitsTotal:                  "Questions served from the result cache.",
	CacheMissesTotal:                "Questions not found in the result cache.",
	SynthesisTotal:                  "SQL statements synthesized, by backend and synthesis step.",
	BackendErrorsTotal:              "Failed backend executions, by backend and error code.",
	HTTPRequestsTotal:               "Backend API requests, by route and method.",
	HTTPResponsesTotal:              "Backend API responses, by route and status code.",
	HTTPRequestSeconds:              "Backend API request latency.",
	QuestionTimer + DurationSuffix: "End-to-end question latency, by plan kind.",
	BackendTimer + DurationSuffix:  "Statement execution latency, by backend.",
}

// Remote statements may run up to the client timeout, and generative answers
// take seconds, so the latency histograms extend past the default buckets.
var buckets = map[string][]float64{
	QuestionTimer + DurationSuffix: {.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
	BackendTimer + DurationSuffix:  {.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
}

// Help returns the description of a known metric, or a generic one.
func Help(name string) string {
	if h, ok := help[name]; ok {
		return h
	}
	return "fedquery metric " + name + "."
}

// Buckets returns the histogram buckets for name.
func Buckets(name string) []float64 {
	if b, ok := buckets[name]; ok {
		return b
	}
	return prometheus.DefBuckets
}

// Collector defines the interface for collecting metrics.
type Collector interface {
	// IncrementCounter increments a counter metric.
	IncrementCounter(name string, labels ...string)

	// RecordHistogram records a value in a histogram metric.
	RecordHistogram(name string, value float64, labels ...string)

	// RecordGauge records a gauge metric value.
	RecordGauge(name string, value float64, labels ...string)

	// StartTimer starts a timer whose Stop records <name>_duration_seconds.
	StartTimer(name string, labels ...string) Timer
}

// Timer measures one operation.
type Timer interface {
	// Stop returns the elapsed seconds.
	Stop() float64
}

// NoOpCollector discards everything. Used when metrics are disabled.
type NoOpCollector struct{}

// NewNoOpCollector returns a Collector that records nothing.
func NewNoOpCollector() Collector {
	return NoOpCollector{}
}

func (NoOpCollector) IncrementCounter(string, ...string)          {}
func (NoOpCollector) RecordHistogram(string, float64, ...string) {}
func (NoOpCollector) RecordGauge(string, float64, ...string)     {}

// StartTimer returns a timer that only measures.
func (NoOpCollector) StartTimer(string, ...string) Timer {
	return stopwatch(time.Now())
}

type stopwatch time.Time

func (s stopwatch) Stop() float64 {
	return time.Since(time.Time(s)).Seconds()
}

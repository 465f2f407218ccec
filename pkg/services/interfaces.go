// Package services contains the question-answering pipeline: classification,
// SQL synthesis, federation and the coordinator tying them together.
package services

import (
	"context"
	"time"

	"github.com/TFMV/fedquery/pkg/models"
)

// Classifier decides how a question is answered.
type Classifier interface {
	Classify(q models.Question) models.QueryPlan
}

// Synthesizer turns a question into a statement for one backend. It never
// fails; unusable input degrades to a self-describing no-op statement.
type Synthesizer interface {
	Synthesize(ctx context.Context, q models.Question, backend models.BackendID) models.SQLStatement
}

// Federator answers questions spanning both backends.
type Federator interface {
	Resolve(ctx context.Context, q models.Question) (*FederatedResult, error)
}

// ResultCache is the coordinator's view of the query cache.
type ResultCache interface {
	Get(ctx context.Context, fp models.Fingerprint) (*models.Outcome, bool)
	Put(ctx context.Context, fp models.Fingerprint, text string, kind models.PlanKind, outcome *models.Outcome) error
}

// Logger defines logging interface.
type Logger interface {
	Debug(msg string, keysAndValues ...interface{})
	Info(msg string, keysAndValues ...interface{})
	Warn(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

// MetricsCollector defines metrics collection interface.
type MetricsCollector interface {
	IncrementCounter(name string, labels ...string)
	RecordHistogram(name string, value float64, labels ...string)
	RecordGauge(name string, value float64, labels ...string)
	StartTimer(name string, labels ...string) Timer
}

// Timer represents a timing measurement.
type Timer interface {
	Stop() time.Duration
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...interface{}) {}
func (nopLogger) Info(string, ...interface{}) {}
func (nopLogger) Warn(string, ...interface{}) {}
func (nopLogger) Error(string, ...interface{}) {}

type nopMetrics struct{}

func (nopMetrics) IncrementCounter(string, ...string) {}
func (nopMetrics) RecordHistogram(string, float64, ...string) {}
func (nopMetrics) RecordGauge(string, float64, ...string) {}
func (nopMetrics) StartTimer(string, ...string) Timer { return nopTimer{start: time.Now()} }

type nopTimer struct{ start time.Time }

func (t nopTimer) Stop() time.Duration { return time.Since(t.start) }

// NopLogger returns a Logger that discards everything.
func NopLogger() Logger { return nopLogger{} }

// NopMetrics returns a MetricsCollector that records nothing.
func NopMetrics() MetricsCollector { return nopMetrics{} }

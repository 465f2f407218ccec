package app

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/TFMV/fedquery/cmd/fedquery/middleware"
	"github.com/TFMV/fedquery/pkg/infrastructure/metrics"
	"github.com/TFMV/fedquery/pkg/services"
)

// loggerAdapter adapts zerolog to the services Logger interface.
type loggerAdapter struct {
	logger zerolog.Logger
}

func newLoggerAdapter(logger zerolog.Logger, component string) *loggerAdapter {
	return &loggerAdapter{logger: logger.With().Str("component", component).Logger()}
}

func (l *loggerAdapter) Debug(msg string, keysAndValues ...interface{}) {
	l.log(l.logger.Debug(), msg, keysAndValues)
}

func (l *loggerAdapter) Info(msg string, keysAndValues ...interface{}) {
	l.log(l.logger.Info(), msg, keysAndValues)
}

func (l *loggerAdapter) Warn(msg string, keysAndValues ...interface{}) {
	l.log(l.logger.Warn(), msg, keysAndValues)
}

func (l *loggerAdapter) Error(msg string, keysAndValues ...interface{}) {
	l.log(l.logger.Error(), msg, keysAndValues)
}

// log attaches alternating key/value pairs to event. A trailing key without a
// value is dropped.
func (l *loggerAdapter) log(event *zerolog.Event, msg string, keysAndValues []interface{}) {
	if event == nil {
		return
	}
	if n := len(keysAndValues) / 2; n > 0 {
		fields := make(map[string]interface{}, n)
		for i := 0; i+1 < len(keysAndValues); i += 2 {
			fields[fmt.Sprint(keysAndValues[i])] = keysAndValues[i+1]
		}
		event = event.Fields(fields)
	}
	event.Msg(msg)
}

// serviceMetricsAdapter adapts metrics.Collector to the services.MetricsCollector interface.
type serviceMetricsAdapter struct {
	collector metrics.Collector
}

func (m *serviceMetricsAdapter) IncrementCounter(name string, labels ...string) {
	m.collector.IncrementCounter(name, labels...)
}

func (m *serviceMetricsAdapter) RecordHistogram(name string, value float64, labels ...string) {
	m.collector.RecordHistogram(name, value, labels...)
}

func (m *serviceMetricsAdapter) RecordGauge(name string, value float64, labels ...string) {
	m.collector.RecordGauge(name, value, labels...)
}

func (m *serviceMetricsAdapter) StartTimer(name string, labels ...string) services.Timer {
	return &serviceTimerAdapter{timer: m.collector.StartTimer(name, labels...)}
}

// serviceTimerAdapter adapts metrics.Timer to the services.Timer interface.
type serviceTimerAdapter struct {
	timer metrics.Timer
}

func (t *serviceTimerAdapter) Stop() time.Duration {
	return time.Duration(t.timer.Stop() * float64(time.Second))
}

// middlewareMetricsAdapter adapts metrics.Collector to the middleware.MetricsCollector interface.
type middlewareMetricsAdapter struct {
	collector metrics.Collector
}

func (m *middlewareMetricsAdapter) IncrementCounter(name string, labels ...string) {
	m.collector.IncrementCounter(name, labels...)
}

func (m *middlewareMetricsAdapter) RecordHistogram(name string, value float64, labels ...string) {
	m.collector.RecordHistogram(name, value, labels...)
}

func (m *middlewareMetricsAdapter) RecordGauge(name string, value float64, labels ...string) {
	m.collector.RecordGauge(name, value, labels...)
}

func (m *middlewareMetricsAdapter) StartTimer(name string, labels ...string) middleware.Timer {
	return m.collector.StartTimer(name, labels...)
}

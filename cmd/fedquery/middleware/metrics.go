package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/TFMV/fedquery/pkg/infrastructure/metrics"
)

// MetricsCollector defines the interface for collecting metrics.
type MetricsCollector interface {
	IncrementCounter(name string, labels ...string)
	RecordHistogram(name string, value float64, labels ...string)
	RecordGauge(name string, value float64, labels ...string)
	StartTimer(name string, labels ...string) Timer
}

// Timer represents a timing measurement.
type Timer interface {
	Stop() float64
}

// MetricsMiddleware provides metrics collection middleware.
type MetricsMiddleware struct {
	collector MetricsCollector
}

// NewMetricsMiddleware creates a new metrics middleware.
func NewMetricsMiddleware(collector MetricsCollector) *MetricsMiddleware {
	return &MetricsMiddleware{
		collector: collector,
	}
}

// Handler counts requests and responses per route pattern.
func (m *MetricsMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		route := routePattern(r)
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}

		m.collector.IncrementCounter(metrics.HTTPRequestsTotal, "route", route, "method", r.Method)
		m.collector.IncrementCounter(metrics.HTTPResponsesTotal, "route", route, "code", strconv.Itoa(status))
		m.collector.RecordHistogram(metrics.HTTPRequestSeconds, time.Since(start).Seconds(), "route", route)
	})
}

// routePattern returns the matched chi route so path parameters do not
// explode label cardinality.
func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if p := rctx.RoutePattern(); p != "" {
			return p
		}
	}
	return "unmatched"
}

package metrics

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// PrometheusCollector implements Collector using Prometheus. Vectors are
// created lazily on first use; label names are fixed by that first call.
type PrometheusCollector struct {
	registerer prometheus.Registerer

	mu         sync.Mutex
	counters   map[string]*prometheus.CounterVec
	histograms map[string]*prometheus.HistogramVec
	gauges     map[string]*prometheus.GaugeVec
}

// NewPrometheusCollector creates a collector registering into reg. A nil reg
// uses prometheus.DefaultRegisterer.
func NewPrometheusCollector(reg prometheus.Registerer) *PrometheusCollector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	return &PrometheusCollector{
		registerer: reg,
		counters:   make(map[string]*prometheus.CounterVec),
		histograms: make(map[string]*prometheus.HistogramVec),
		gauges:     make(map[string]*prometheus.GaugeVec),
	}
}

// IncrementCounter increments a counter metric.
func (p *PrometheusCollector) IncrementCounter(name string, labels ...string) {
	keys, values := splitLabels(labels)

	p.mu.Lock()
	vec, ok := p.counters[name]
	if !ok {
		vec = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      name,
			Help:      Help(name),
		}, keys)
		p.registerer.MustRegister(vec)
		p.counters[name] = vec
	}
	p.mu.Unlock()

	vec.WithLabelValues(values...).Inc()
}

// RecordHistogram observes value.
func (p *PrometheusCollector) RecordHistogram(name string, value float64, labels ...string) {
	keys, values := splitLabels(labels)

	p.mu.Lock()
	vec, ok := p.histograms[name]
	if !ok {
		vec = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      name,
			Help:      Help(name),
			Buckets:   Buckets(name),
		}, keys)
		p.registerer.MustRegister(vec)
		p.histograms[name] = vec
	}
	p.mu.Unlock()

	vec.WithLabelValues(values...).Observe(value)
}

// RecordGauge sets a gauge.
func (p *PrometheusCollector) RecordGauge(name string, value float64, labels ...string) {
	keys, values := splitLabels(labels)

	p.mu.Lock()
	vec, ok := p.gauges[name]
	if !ok {
		vec = prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      name,
			Help:      Help(name),
		}, keys)
		p.registerer.MustRegister(vec)
		p.gauges[name] = vec
	}
	p.mu.Unlock()

	vec.WithLabelValues(values...).Set(value)
}

// StartTimer starts a timer that observes <name>_duration_seconds on Stop.
func (p *PrometheusCollector) StartTimer(name string, labels ...string) Timer {
	return &histogramTimer{
		record: func(elapsed float64) {
			p.RecordHistogram(name+DurationSuffix, elapsed, labels...)
		},
		start: time.Now(),
	}
}

type histogramTimer struct {
	record func(float64)
	start  time.Time
}

func (t *histogramTimer) Stop() float64 {
	elapsed := time.Since(t.start).Seconds()
	t.record(elapsed)
	return elapsed
}

// splitLabels turns "k1", "v1", "k2", "v2" into key and value slices. A
// trailing key without a value is ignored.
func splitLabels(labels []string) (keys, values []string) {
	n := len(labels) / 2
	keys = make([]string, n)
	values = make([]string, n)
	for i := 0; i < n; i++ {
		keys[i], values[i] = labels[2*i], labels[2*i+1]
	}
	return keys, values
}

// MetricsServer exposes a gatherer on /metrics.
type MetricsServer struct {
	server *http.Server
}

// NewMetricsServer creates a new metrics server. A nil gatherer serves the
// default registry.
func NewMetricsServer(address string, gatherer prometheus.Gatherer) *MetricsServer {
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	return &MetricsServer{
		server: &http.Server{
			Addr:              address,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
	}
}

// Handler returns the /metrics handler.
func (s *MetricsServer) Handler() http.Handler {
	return s.server.Handler
}

// Start serves /metrics until Stop is called.
func (s *MetricsServer) Start() error {
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Stop shuts the metrics server down.
func (s *MetricsServer) Stop(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

// Package app wires the configured backends, cache, generative service and
// question pipeline into a runnable coordinator.
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"

	"github.com/TFMV/fedquery/cmd/fedquery/config"
	"github.com/TFMV/fedquery/pkg/cache"
	"github.com/TFMV/fedquery/pkg/generative"
	"github.com/TFMV/fedquery/pkg/infrastructure/metrics"
	"github.com/TFMV/fedquery/pkg/infrastructure/pool"
	"github.com/TFMV/fedquery/pkg/models"
	"github.com/TFMV/fedquery/pkg/repositories"
	"github.com/TFMV/fedquery/pkg/repositories/local"
	"github.com/TFMV/fedquery/pkg/repositories/remote"
	"github.com/TFMV/fedquery/pkg/services"
)

// App holds the long-lived components of one coordinator process.
type App struct {
	cfg    *config.Config
	logger zerolog.Logger

	collector     metrics.Collector
	metricsServer *metrics.MetricsServer

	pools   []pool.ConnectionPool
	sources repositories.Registry
	cache   *cache.QueryCache

	coordinator *services.Coordinator
}

// New builds an App from a validated configuration. Unreachable remote
// backends do not fail construction; they fail per question.
func New(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*App, error) {
	a := &App{
		cfg:     cfg,
		logger:  logger,
		sources: make(repositories.Registry, 2),
	}

	a.collector, a.metricsServer = newCollector(cfg.Metrics)

	for _, b := range []struct {
		id  models.BackendID
		cfg config.SourceConfig
	}{
		{models.BackendPrimary, cfg.Primary},
		{models.BackendSecondary, cfg.Secondary},
	} {
		src, p, err := OpenSource(b.cfg, b.id, logger)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("failed to open %s backend: %w", b.id, err)
		}
		if p != nil {
			a.pools = append(a.pools, p)
		}
		a.sources[b.id] = src
	}

	qc, err := cache.Open(ctx, &cfg.Cache, logger)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to open cache: %w", err)
	}
	a.cache = qc

	gen := generative.New(ctx, cfg.Generative.GeminiConfig(), logger)
	serviceMetrics := &serviceMetricsAdapter{collector: a.collector}

	synth := services.NewSQLSynthesizer(
		gen,
		services.SynthesizerConfig{
			MaxTokens: cfg.Generative.SQLMaxTokens,
			Timeout:   cfg.Generative.Timeout,
		},
		newLoggerAdapter(logger, "sql_synthesizer"),
		serviceMetrics,
	)

	federator := services.NewFederationEngine(
		synth,
		a.sources,
		newLoggerAdapter(logger, "federation_engine"),
		serviceMetrics,
	)

	a.coordinator = services.NewCoordinator(
		services.CoordinatorDeps{
			Cache:      qc,
			Classifier: services.NewQueryClassifier(),
			Synth:      synth,
			Federator:  federator,
			Generative: gen,
			Sources:    a.sources,
			Logger:     newLoggerAdapter(logger, "coordinator"),
			Metrics:    serviceMetrics,
		},
		services.CoordinatorConfig{
			AnswerMaxTokens:   cfg.Generative.AnswerMaxTokens,
			GenerativeTimeout: cfg.Generative.Timeout,
		},
	)

	return a, nil
}

// newCollector returns a Prometheus collector on a private registry and the
// server exposing it, or a no-op collector when metrics are disabled.
func newCollector(cfg config.MetricsConfig) (metrics.Collector, *metrics.MetricsServer) {
	if !cfg.Enabled {
		return metrics.NewNoOpCollector(), nil
	}
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return metrics.NewPrometheusCollector(reg), metrics.NewMetricsServer(cfg.Address, reg)
}

func startMetrics(server *metrics.MetricsServer, address string, logger zerolog.Logger) {
	if server == nil {
		return
	}
	go func() {
		logger.Info().Str("address", address).Msg("Starting metrics server")
		if err := server.Start(); err != nil {
			logger.Error().Err(err).Msg("Failed to start metrics server")
		}
	}()
}

func stopMetrics(server *metrics.MetricsServer, logger zerolog.Logger) {
	if server == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Stop(ctx); err != nil {
		logger.Error().Err(err).Msg("Error stopping metrics server")
	}
}

// OpenSource builds the client for one backend. The returned pool is nil for
// remote sources.
func OpenSource(cfg config.SourceConfig, backend models.BackendID, logger zerolog.Logger) (repositories.SourceClient, pool.ConnectionPool, error) {
	switch cfg.Kind {
	case config.SourceLocal:
		p, err := pool.New(cfg.Local.PoolConfig(), logger)
		if err != nil {
			return nil, nil, err
		}
		return local.NewSource(p, backend, logger), p, nil
	case config.SourceRemote:
		return remote.NewClient(cfg.Remote.ClientConfig(), backend, logger), nil, nil
	default:
		return nil, nil, fmt.Errorf("unsupported source kind %q", cfg.Kind)
	}
}

// Coordinator returns the question pipeline.
func (a *App) Coordinator() *services.Coordinator {
	return a.coordinator
}

// Cache returns the query cache.
func (a *App) Cache() *cache.QueryCache {
	return a.cache
}

// StartMetrics serves /metrics in the background when metrics are enabled.
func (a *App) StartMetrics() {
	startMetrics(a.metricsServer, a.cfg.Metrics.Address, a.logger)
}

// ClearCache empties the cache. Failures are logged and swallowed.
func (a *App) ClearCache(ctx context.Context) {
	if a.cache == nil {
		return
	}
	if err := a.cache.Clear(ctx); err != nil {
		a.logger.Warn().Err(err).Msg("Failed to clear cache")
	}
}

// Probe checks every backend that supports health checks. The result maps
// each probed backend to its error, nil when healthy.
func (a *App) Probe(ctx context.Context) map[models.BackendID]error {
	results := make(map[models.BackendID]error, len(a.sources))
	for id, src := range a.sources {
		hc, ok := src.(repositories.HealthChecker)
		if !ok {
			continue
		}
		err := hc.Health(ctx)
		if err != nil {
			a.logger.Warn().Err(err).Str("backend", string(id)).Msg("Backend health probe failed")
		} else {
			a.logger.Debug().Str("backend", string(id)).Msg("Backend healthy")
		}
		results[id] = err
	}
	return results
}

// Describe returns a one-line description of where backend's data lives.
func (a *App) Describe(backend models.BackendID) string {
	var sc config.SourceConfig
	switch backend {
	case models.BackendPrimary:
		sc = a.cfg.Primary
	case models.BackendSecondary:
		sc = a.cfg.Secondary
	default:
		return string(backend)
	}
	if sc.Kind == config.SourceRemote {
		return sc.Remote.BaseURL
	}
	return sc.Local.Driver + ":" + sc.Local.DSN
}

// Close releases the cache, pools and metrics server.
func (a *App) Close() error {
	stopMetrics(a.metricsServer, a.logger)

	if a.cache != nil {
		stats := a.cache.Stats()
		a.logger.Info().
			Uint64("hits", stats.Hits).
			Uint64("misses", stats.Misses).
			Uint64("expired", stats.MissesBy[cache.MissExpired]).
			Float64("hit_rate", stats.HitRate()).
			Msg("Cache statistics")
		if err := a.cache.Close(); err != nil {
			a.logger.Error().Err(err).Msg("Error closing cache")
		}
	}

	for _, p := range a.pools {
		if err := p.Close(); err != nil {
			a.logger.Error().Err(err).Msg("Error closing connection pool")
		}
	}
	return nil
}

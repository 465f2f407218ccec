package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/TFMV/fedquery/cmd/fedquery/config"
	"github.com/TFMV/fedquery/cmd/fedquery/middleware"
	"github.com/TFMV/fedquery/pkg/handlers"
	"github.com/TFMV/fedquery/pkg/infrastructure/metrics"
	"github.com/TFMV/fedquery/pkg/infrastructure/pool"
)

// BackendServer exposes a local store over the HTTP query endpoint.
type BackendServer struct {
	cfg    config.APIConfig
	logger zerolog.Logger

	pool          pool.ConnectionPool
	metricsServer *metrics.MetricsServer
	metricsAddr   string
	handler       http.Handler
	server        *http.Server
}

// StoreConfig returns the store served by serve-backend: the api store when
// set, otherwise the primary backend's local store.
func StoreConfig(cfg *config.Config) (config.LocalConfig, error) {
	if cfg.API.Store.DSN != "" {
		return cfg.API.Store, nil
	}
	if cfg.Primary.Kind == config.SourceLocal {
		return cfg.Primary.Local, nil
	}
	return config.LocalConfig{}, fmt.Errorf("no local store configured: set api.store.dsn")
}

// NewBackendServer opens the store and builds the router with request
// recovery, logging, metrics and optional authentication.
func NewBackendServer(cfg *config.Config, logger zerolog.Logger) (*BackendServer, error) {
	store, err := StoreConfig(cfg)
	if err != nil {
		return nil, err
	}

	p, err := pool.New(store.PoolConfig(), logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	collector, metricsServer := newCollector(cfg.Metrics)

	recoverMW := middleware.NewRecoveryMiddleware(logger.With().Str("component", "recovery_middleware").Logger())
	logMW := middleware.NewLoggingMiddleware(logger.With().Str("component", "logging_middleware").Logger())
	metricsMW := middleware.NewMetricsMiddleware(&middlewareMetricsAdapter{collector: collector})

	opts := handlers.RouterOptions{
		Middleware: []func(http.Handler) http.Handler{
			recoverMW.Handler,
			logMW.Handler,
			metricsMW.Handler,
		},
	}
	if cfg.API.Auth.Enabled {
		authMW := middleware.NewAuthMiddleware(cfg.API.Auth, logger.With().Str("component", "auth_middleware").Logger())
		opts.Auth = authMW.Handler
	}

	api := handlers.NewBackendAPI(p, handlers.APIConfig{
		Database:       cfg.API.Database,
		RequestTimeout: cfg.API.RequestTimeout,
	}, logger)

	return &BackendServer{
		cfg:           cfg.API,
		logger:        logger,
		pool:          p,
		metricsServer: metricsServer,
		metricsAddr:   cfg.Metrics.Address,
		handler:       api.Router(opts),
	}, nil
}

// Handler returns the HTTP handler.
func (s *BackendServer) Handler() http.Handler {
	return s.handler
}

// Serve listens on the configured address until ctx is cancelled, then
// shuts down gracefully within the shutdown timeout.
func (s *BackendServer) Serve(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.cfg.Address)
	if err != nil {
		return fmt.Errorf("failed to create listener: %w", err)
	}
	return s.ServeListener(ctx, listener)
}

// ServeListener is Serve on an existing listener.
func (s *BackendServer) ServeListener(ctx context.Context, listener net.Listener) error {
	s.server = &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	startMetrics(s.metricsServer, s.metricsAddr, s.logger)

	serverErrCh := make(chan error, 1)
	go func() {
		s.logger.Info().
			Str("address", listener.Addr().String()).
			Bool("auth", s.cfg.Auth.Enabled).
			Msg("Backend API listening")
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrCh <- fmt.Errorf("server error: %w", err)
		}
		close(serverErrCh)
	}()

	select {
	case err := <-serverErrCh:
		if err != nil {
			return err
		}
		return nil
	case <-ctx.Done():
		s.logger.Info().Msg("Received shutdown signal")
	}

	s.logger.Info().Dur("timeout", s.cfg.ShutdownTimeout).Msg("Starting graceful shutdown")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()
	if err := s.server.Shutdown(shutdownCtx); err != nil {
		s.logger.Error().Err(err).Msg("Error during server shutdown")
	}
	<-serverErrCh

	s.logger.Info().Msg("Server shutdown complete")
	return nil
}

// Close releases the store and the metrics server.
func (s *BackendServer) Close() error {
	stopMetrics(s.metricsServer, s.logger)
	return s.pool.Close()
}

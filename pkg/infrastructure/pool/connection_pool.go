// Package pool provides database/sql connection pooling for the embedded
// stores: the local relational backend and the persisted query cache.
package pool

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	_ "github.com/marcboeker/go-duckdb/v2"
	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"

	"github.com/TFMV/fedquery/pkg/errors"
)

// Supported database/sql driver names.
const (
	DriverSQLite = "sqlite3"
	DriverDuckDB = "duckdb"
)

// Config represents pool configuration.
type Config struct {
	Driver             string        `json:"driver"`
	DSN                string        `json:"dsn"`
	MaxOpenConnections int           `json:"max_open_connections"`
	MaxIdleConnections int           `json:"max_idle_connections"`
	ConnMaxLifetime    time.Duration `json:"conn_max_lifetime"`
	HealthCheckPeriod  time.Duration `json:"health_check_period"`
	ConnectionTimeout  time.Duration `json:"connection_timeout"`
	// BusyTimeout is how long SQLite waits on a locked file before failing.
	BusyTimeout time.Duration `json:"busy_timeout"`
	// Threads limits DuckDB worker threads. Zero keeps the DuckDB default.
	Threads int `json:"threads"`
}

// ConnectionPool manages database connections.
type ConnectionPool interface {
	// Get returns a live database handle.
	Get(ctx context.Context) (*sql.DB, error)
	// Driver returns the database/sql driver name in use.
	Driver() string
	// Health reports the result of the most recent health check.
	Health() Health
	// HealthCheck pings the store and runs a trivial query.
	HealthCheck(ctx context.Context) error
	// Close closes the connection pool.
	Close() error
}

// Health is the outcome of a health check.
type Health struct {
	Healthy   bool      `json:"healthy"`
	CheckedAt time.Time `json:"checked_at"`
	Error     string    `json:"error,omitempty"`
}

type connectionPool struct {
	db     *sql.DB
	config Config
	logger zerolog.Logger

	closed atomic.Bool
	stop   context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.RWMutex
	health Health
}

// New opens a pool and verifies it with an initial health check.
func New(cfg Config, logger zerolog.Logger) (ConnectionPool, error) {
	cfg = withDefaults(cfg)
	logger = logger.With().Str("driver", cfg.Driver).Logger()

	dsn, err := driverDSN(cfg)
	if err != nil {
		return nil, err
	}

	logger.Info().
		Str("dsn", maskDSN(dsn)).
		Int("max_open", cfg.MaxOpenConnections).
		Msg("Opening connection pool")

	db, err := sql.Open(cfg.Driver, dsn)
	if err != nil {
		return nil, errors.Wrapf(err, errors.CodeConnectionFailed, "failed to open %s database", cfg.Driver)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConnections)
	db.SetMaxIdleConns(cfg.MaxIdleConnections)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	p := &connectionPool{db: db, config: cfg, logger: logger}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.ConnectionTimeout)
	defer cancel()
	if err := p.HealthCheck(ctx); err != nil {
		db.Close()
		return nil, err
	}

	bg, stop := context.WithCancel(context.Background())
	p.stop = stop
	if cfg.HealthCheckPeriod > 0 {
		p.wg.Add(1)
		go p.monitor(bg)
	}
	return p, nil
}

// withDefaults fills unset limits. An empty DuckDB DSN opens an in-memory
// database. In-memory SQLite databases exist per connection, so they are
// pinned to a single connection that never expires.
func withDefaults(cfg Config) Config {
	if cfg.Driver == "" {
		cfg.Driver = DriverSQLite
	}
	if cfg.DSN == "" && cfg.Driver == DriverSQLite {
		cfg.DSN = ":memory:"
	}
	if cfg.MaxOpenConnections <= 0 {
		cfg.MaxOpenConnections = 10
	}
	if cfg.MaxIdleConnections <= 0 {
		cfg.MaxIdleConnections = 2
	}
	if cfg.ConnMaxLifetime <= 0 {
		cfg.ConnMaxLifetime = 30 * time.Minute
	}
	if cfg.ConnectionTimeout <= 0 {
		cfg.ConnectionTimeout = 10 * time.Second
	}
	if cfg.BusyTimeout <= 0 {
		cfg.BusyTimeout = 5 * time.Second
	}

	if cfg.Driver == DriverSQLite && strings.Contains(cfg.DSN, ":memory:") {
		cfg.MaxOpenConnections = 1
		cfg.MaxIdleConnections = 1
		cfg.ConnMaxLifetime = 0
	}
	return cfg
}

// driverDSN appends driver options to the configured DSN. Options already
// present in the DSN are kept.
func driverDSN(cfg Config) (string, error) {
	opts := url.Values{}
	switch cfg.Driver {
	case DriverSQLite:
		opts.Set("_busy_timeout", fmt.Sprint(cfg.BusyTimeout.Milliseconds()))
	case DriverDuckDB:
		if cfg.Threads > 0 {
			opts.Set("threads", fmt.Sprint(cfg.Threads))
		}
	default:
		return "", errors.New(errors.CodeValidationFailed,
			fmt.Sprintf("unsupported driver %q (want %s or %s)", cfg.Driver, DriverSQLite, DriverDuckDB))
	}

	base, query, _ := strings.Cut(cfg.DSN, "?")
	existing, err := url.ParseQuery(query)
	if err != nil {
		return "", errors.Wrap(err, errors.CodeValidationFailed, "invalid DSN options")
	}
	for k, v := range existing {
		opts[k] = v
	}
	if len(opts) == 0 {
		return base, nil
	}
	return base + "?" + opts.Encode(), nil
}

// Get returns the database handle after verifying it is reachable.
func (p *connectionPool) Get(ctx context.Context) (*sql.DB, error) {
	if p.closed.Load() {
		return nil, errors.New(errors.CodeUnavailable, "connection pool is closed")
	}
	if err := p.db.PingContext(ctx); err != nil {
		p.logger.Error().Err(err).Msg("Database ping failed")
		return nil, errors.Wrap(err, errors.CodeConnectionFailed, "database connection failed")
	}
	return p.db, nil
}

// Driver returns the driver name.
func (p *connectionPool) Driver() string {
	return p.config.Driver
}

// Health returns the last recorded health check.
func (p *connectionPool) Health() Health {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.health
}

// HealthCheck pings the database and runs a trivial query.
func (p *connectionPool) HealthCheck(ctx context.Context) error {
	if p.closed.Load() {
		return errors.New(errors.CodeUnavailable, "connection pool is closed")
	}

	var one int
	err := p.db.QueryRowContext(ctx, "SELECT 1").Scan(&one)
	if err == nil && one != 1 {
		err = fmt.Errorf("SELECT 1 returned %d", one)
	}
	p.record(err)
	if err != nil {
		return errors.Wrap(err, errors.CodeConnectionFailed, "health check failed")
	}
	return nil
}

// record stores the outcome of a check and logs transitions.
func (p *connectionPool) record(err error) {
	h := Health{Healthy: err == nil, CheckedAt: time.Now()}
	if err != nil {
		h.Error = err.Error()
	}

	p.mu.Lock()
	changed := p.health.CheckedAt.IsZero() || p.health.Healthy != h.Healthy
	p.health = h
	p.mu.Unlock()

	if changed && !h.Healthy {
		p.logger.Warn().Str("error", h.Error).Msg("Connection pool unhealthy")
	} else if changed {
		p.logger.Debug().Msg("Connection pool healthy")
	}
}

func (p *connectionPool) monitor(ctx context.Context) {
	defer p.wg.Done()
	ticker := time.NewTicker(p.config.HealthCheckPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			probeCtx, cancel := context.WithTimeout(ctx, p.config.ConnectionTimeout)
			_ = p.HealthCheck(probeCtx)
			cancel()
		}
	}
}

// Close stops the health monitor and closes the database.
func (p *connectionPool) Close() error {
	if !p.closed.CompareAndSwap(false, true) {
		return nil
	}
	p.stop()
	p.wg.Wait()

	p.logger.Debug().Msg("Closing connection pool")
	if err := p.db.Close(); err != nil {
		return errors.Wrap(err, errors.CodeInternal, "failed to close database")
	}
	return nil
}

// maskDSN redacts credential-like options, such as a MotherDuck token passed
// to DuckDB, before the DSN is logged.
func maskDSN(dsn string) string {
	base, query, ok := strings.Cut(dsn, "?")
	if !ok {
		return dsn
	}
	opts, err := url.ParseQuery(query)
	if err != nil {
		return base + "?*****"
	}
	for k := range opts {
		lk := strings.ToLower(k)
		if strings.Contains(lk, "token") || strings.Contains(lk, "pass") ||
			strings.Contains(lk, "secret") || strings.HasSuffix(lk, "key") {
			opts.Set(k, "*****")
		}
	}
	return base + "?" + opts.Encode()
}

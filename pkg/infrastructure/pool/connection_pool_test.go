package pool

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TFMV/fedquery/pkg/errors"
)

func TestNew(t *testing.T) {
	logger := zerolog.New(zerolog.NewTestWriter(t))

	tests := []struct {
		name     string
		config   Config
		driver   string
		wantCode string
	}{
		{
			name:   "default config",
			config: Config{},
			driver: DriverSQLite,
		},
		{
			name: "sqlite memory with health checks",
			config: Config{
				Driver:            DriverSQLite,
				DSN:               ":memory:",
				HealthCheckPeriod: time.Minute,
				ConnectionTimeout: 5 * time.Second,
			},
			driver: DriverSQLite,
		},
		{
			name:   "sqlite file",
			config: Config{Driver: DriverSQLite, DSN: filepath.Join(t.TempDir(), "student.db")},
			driver: DriverSQLite,
		},
		{
			name:   "duckdb in memory",
			config: Config{Driver: DriverDuckDB},
			driver: DriverDuckDB,
		},
		{
			name:     "unknown driver",
			config:   Config{Driver: "nope", DSN: ":memory:"},
			wantCode: errors.CodeValidationFailed,
		},
		{
			name:     "unreachable sqlite file",
			config:   Config{Driver: DriverSQLite, DSN: filepath.Join(t.TempDir(), "missing", "student.db")},
			wantCode: errors.CodeConnectionFailed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pool, err := New(tt.config, logger)
			if tt.wantCode != "" {
				require.Error(t, err)
				assert.Equal(t, tt.wantCode, errors.GetCode(err))
				return
			}
			require.NoError(t, err)
			defer pool.Close()

			assert.Equal(t, tt.driver, pool.Driver())
			health := pool.Health()
			assert.True(t, health.Healthy)
			assert.False(t, health.CheckedAt.IsZero())
			assert.Empty(t, health.Error)
		})
	}
}

func TestConnectionPool_GetAfterClose(t *testing.T) {
	pool, err := New(Config{}, zerolog.Nop())
	require.NoError(t, err)

	db, err := pool.Get(context.Background())
	require.NoError(t, err)
	require.NotNil(t, db)

	require.NoError(t, pool.Close())
	require.NoError(t, pool.Close())

	_, err = pool.Get(context.Background())
	require.Error(t, err)
	assert.Equal(t, errors.CodeUnavailable, errors.GetCode(err))
	assert.Error(t, pool.HealthCheck(context.Background()))
}

func TestConnectionPool_MonitorStopsOnClose(t *testing.T) {
	pool, err := New(Config{HealthCheckPeriod: 5 * time.Millisecond}, zerolog.Nop())
	require.NoError(t, err)

	first := pool.Health().CheckedAt
	require.Eventually(t, func() bool {
		return pool.Health().CheckedAt.After(first)
	}, 2*time.Second, 5*time.Millisecond)

	done := make(chan struct{})
	go func() {
		pool.Close()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Close did not stop the health monitor")
	}
}

func TestWithDefaults_InMemorySQLiteIsPinned(t *testing.T) {
	cfg := withDefaults(Config{Driver: DriverSQLite, DSN: ":memory:", MaxOpenConnections: 20})

	assert.Equal(t, 1, cfg.MaxOpenConnections)
	assert.Equal(t, time.Duration(0), cfg.ConnMaxLifetime)

	fileCfg := withDefaults(Config{Driver: DriverSQLite, DSN: "students.db"})
	assert.Equal(t, 10, fileCfg.MaxOpenConnections)
	assert.Equal(t, 5*time.Second, fileCfg.BusyTimeout)
}

func TestDriverDSN(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
		want string
	}{
		{"sqlite busy timeout", Config{Driver: DriverSQLite, DSN: "student.db", BusyTimeout: 2 * time.Second}, "student.db?_busy_timeout=2000"},
		{"sqlite keeps explicit option", Config{Driver: DriverSQLite, DSN: "file:student.db?_busy_timeout=100&mode=ro", BusyTimeout: time.Second}, "file:student.db?_busy_timeout=100&mode=ro"},
		{"duckdb threads", Config{Driver: DriverDuckDB, DSN: "courses.duckdb", Threads: 4}, "courses.duckdb?threads=4"},
		{"duckdb plain", Config{Driver: DriverDuckDB, DSN: "courses.duckdb"}, "courses.duckdb"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := driverDSN(tt.cfg)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestMaskDSN(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{":memory:", ":memory:"},
		{"/var/lib/campus/students.db", "/var/lib/campus/students.db"},
		{"students.db?_busy_timeout=5000", "students.db?_busy_timeout=5000"},
		{"file:students.db?_auth_pass=hunter2", "file:students.db?_auth_pass=%2A%2A%2A%2A%2A"},
		{"md:campus?motherduck_token=abc", "md:campus?motherduck_token=%2A%2A%2A%2A%2A"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, maskDSN(tt.in))
		})
	}
}

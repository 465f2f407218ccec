// Package config provides configuration structures for the fedquery CLI.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/TFMV/fedquery/pkg/cache"
	"github.com/TFMV/fedquery/pkg/generative"
	"github.com/TFMV/fedquery/pkg/infrastructure/pool"
	"github.com/TFMV/fedquery/pkg/repositories/remote"
)

// Source kinds accepted by SourceConfig.Kind.
const (
	SourceLocal  = "local"
	SourceRemote = "remote"
)

// Config represents the CLI configuration.
type Config struct {
	LogLevel string `mapstructure:"log_level" yaml:"log_level" json:"log_level"`

	// Primary owns students, enrollment and attendance.
	Primary SourceConfig `mapstructure:"primary" yaml:"primary" json:"primary"`

	// Secondary owns faculty, courses, exams and remedial resources.
	Secondary SourceConfig `mapstructure:"secondary" yaml:"secondary" json:"secondary"`

	Generative GenerativeConfig `mapstructure:"generative" yaml:"generative" json:"generative"`

	Cache cache.Config `mapstructure:"cache" yaml:"cache" json:"cache"`

	Metrics MetricsConfig `mapstructure:"metrics" yaml:"metrics" json:"metrics"`

	// API configures serve-backend.
	API APIConfig `mapstructure:"api" yaml:"api" json:"api"`
}

// SourceConfig selects how a backend is reached.
type SourceConfig struct {
	Kind   string       `mapstructure:"kind" yaml:"kind" json:"kind"` // local, remote
	Local  LocalConfig  `mapstructure:"local" yaml:"local" json:"local"`
	Remote RemoteConfig `mapstructure:"remote" yaml:"remote" json:"remote"`
}

// LocalConfig represents an embedded database reached through database/sql.
type LocalConfig struct {
	Driver             string        `mapstructure:"driver" yaml:"driver" json:"driver"` // sqlite3, duckdb
	DSN                string        `mapstructure:"dsn" yaml:"dsn" json:"dsn"`
	MaxOpenConnections int           `mapstructure:"max_open_connections" yaml:"max_open_connections" json:"max_open_connections"`
	MaxIdleConnections int           `mapstructure:"max_idle_connections" yaml:"max_idle_connections" json:"max_idle_connections"`
	ConnMaxLifetime    time.Duration `mapstructure:"conn_max_lifetime" yaml:"conn_max_lifetime" json:"conn_max_lifetime"`
	HealthCheckPeriod  time.Duration `mapstructure:"health_check_period" yaml:"health_check_period" json:"health_check_period"`
	BusyTimeout        time.Duration `mapstructure:"busy_timeout" yaml:"busy_timeout" json:"busy_timeout"` // sqlite3 only
	Threads            int           `mapstructure:"threads" yaml:"threads" json:"threads"`                // duckdb only
}

// RemoteConfig represents a backend exposed over the HTTP query endpoint.
type RemoteConfig struct {
	BaseURL       string        `mapstructure:"base_url" yaml:"base_url" json:"base_url"`
	Timeout       time.Duration `mapstructure:"timeout" yaml:"timeout" json:"timeout"`
	HealthTimeout time.Duration `mapstructure:"health_timeout" yaml:"health_timeout" json:"health_timeout"`
	Token         string        `mapstructure:"token" yaml:"token" json:"token"`
}

// GenerativeConfig represents the generative service configuration.
type GenerativeConfig struct {
	APIKey          string        `mapstructure:"api_key" yaml:"api_key" json:"-"`
	Model           string        `mapstructure:"model" yaml:"model" json:"model"`
	Temperature     float32       `mapstructure:"temperature" yaml:"temperature" json:"temperature"`
	Timeout         time.Duration `mapstructure:"timeout" yaml:"timeout" json:"timeout"`
	SQLMaxTokens    int           `mapstructure:"sql_max_tokens" yaml:"sql_max_tokens" json:"sql_max_tokens"`
	AnswerMaxTokens int           `mapstructure:"answer_max_tokens" yaml:"answer_max_tokens" json:"answer_max_tokens"`
}

// MetricsConfig represents metrics configuration.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled" json:"enabled"`
	Address string `mapstructure:"address" yaml:"address" json:"address"`
}

// APIConfig represents the backend REST wrapper configuration.
type APIConfig struct {
	Address         string        `mapstructure:"address" yaml:"address" json:"address"`
	Database        string        `mapstructure:"database" yaml:"database" json:"database"`
	Store           LocalConfig   `mapstructure:"store" yaml:"store" json:"store"`
	RequestTimeout  time.Duration `mapstructure:"request_timeout" yaml:"request_timeout" json:"request_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout" json:"shutdown_timeout"`
	Auth            AuthConfig    `mapstructure:"auth" yaml:"auth" json:"auth"`
}

// AuthConfig represents authentication configuration.
type AuthConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled" json:"enabled"`
	Type    string `mapstructure:"type" yaml:"type" json:"type"` // basic, bearer, jwt

	BasicAuth  BasicAuthConfig  `mapstructure:"basic_auth" yaml:"basic_auth" json:"basic_auth"`
	BearerAuth BearerAuthConfig `mapstructure:"bearer_auth" yaml:"bearer_auth" json:"bearer_auth"`
	JWTAuth    JWTAuthConfig    `mapstructure:"jwt_auth" yaml:"jwt_auth" json:"jwt_auth"`
}

// BasicAuthConfig represents basic authentication configuration.
type BasicAuthConfig struct {
	Users map[string]UserInfo `mapstructure:"users" yaml:"users" json:"users"`
}

// UserInfo represents user information.
type UserInfo struct {
	Password string   `mapstructure:"password" yaml:"password" json:"-"`
	Roles    []string `mapstructure:"roles" yaml:"roles" json:"roles"`
}

// BearerAuthConfig represents bearer token authentication configuration.
type BearerAuthConfig struct {
	Tokens map[string]string `mapstructure:"tokens" yaml:"tokens" json:"-"` // token -> username
}

// JWTAuthConfig represents HS256 JWT authentication configuration.
type JWTAuthConfig struct {
	Secret   string `mapstructure:"secret" yaml:"secret" json:"-"`
	Issuer   string `mapstructure:"issuer" yaml:"issuer" json:"issuer"`
	Audience string `mapstructure:"audience" yaml:"audience" json:"audience"`
}

// Validate validates the configuration and fills unset values with defaults.
func (c *Config) Validate() error {
	switch c.LogLevel {
	case "":
		c.LogLevel = "info"
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unsupported log level: %s", c.LogLevel)
	}

	if err := c.Primary.validate("primary"); err != nil {
		return err
	}
	if err := c.Secondary.validate("secondary"); err != nil {
		return err
	}

	if c.Generative.Model == "" {
		c.Generative.Model = generative.DefaultModel
	}
	if c.Generative.Timeout <= 0 {
		c.Generative.Timeout = 30 * time.Second
	}
	if c.Generative.SQLMaxTokens <= 0 {
		c.Generative.SQLMaxTokens = 300
	}
	if c.Generative.AnswerMaxTokens <= 0 {
		c.Generative.AnswerMaxTokens = 300
	}

	switch c.Cache.Backend {
	case "":
		c.Cache.Backend = cache.BackendSQLite
	case cache.BackendSQLite, cache.BackendMemory, cache.BackendRedis:
	default:
		return fmt.Errorf("unsupported cache backend: %s", c.Cache.Backend)
	}
	if c.Cache.Backend == cache.BackendSQLite && c.Cache.Path == "" {
		return fmt.Errorf("cache path is required for the sqlite cache")
	}
	if c.Cache.Backend == cache.BackendRedis && c.Cache.Redis.Addr == "" {
		return fmt.Errorf("cache redis address is required for the redis cache")
	}
	if c.Cache.TTL <= 0 {
		c.Cache.TTL = cache.DefaultTTL
	}

	if c.Metrics.Enabled && c.Metrics.Address == "" {
		c.Metrics.Address = ":9090"
	}

	return c.API.validate()
}

func (s *SourceConfig) validate(name string) error {
	switch s.Kind {
	case SourceLocal:
		if err := s.Local.validate(); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	case SourceRemote:
		if s.Remote.BaseURL == "" {
			return fmt.Errorf("%s: remote base_url is required", name)
		}
		if !strings.HasPrefix(s.Remote.BaseURL, "http://") && !strings.HasPrefix(s.Remote.BaseURL, "https://") {
			return fmt.Errorf("%s: remote base_url must be an http(s) URL", name)
		}
		s.Remote.BaseURL = strings.TrimRight(s.Remote.BaseURL, "/")
		if s.Remote.Timeout <= 0 {
			s.Remote.Timeout = remote.DefaultTimeout
		}
		if s.Remote.HealthTimeout <= 0 {
			s.Remote.HealthTimeout = remote.DefaultHealthTimeout
		}
	default:
		return fmt.Errorf("%s: unsupported source kind: %q", name, s.Kind)
	}
	return nil
}

func (l *LocalConfig) validate() error {
	switch l.Driver {
	case "":
		l.Driver = pool.DriverSQLite
	case pool.DriverSQLite, pool.DriverDuckDB:
	default:
		return fmt.Errorf("unsupported driver: %s", l.Driver)
	}
	if l.DSN == "" {
		return fmt.Errorf("local dsn is required")
	}
	return nil
}

func (a *APIConfig) validate() error {
	if a.Address == "" {
		a.Address = ":5001"
	}
	if a.ShutdownTimeout <= 0 {
		a.ShutdownTimeout = 10 * time.Second
	}
	if a.Store.DSN != "" {
		if err := a.Store.validate(); err != nil {
			return fmt.Errorf("api store: %w", err)
		}
	}

	if a.Auth.Enabled {
		switch a.Auth.Type {
		case "basic":
			if len(a.Auth.BasicAuth.Users) == 0 {
				return fmt.Errorf("basic auth requires users")
			}
		case "bearer":
			if len(a.Auth.BearerAuth.Tokens) == 0 {
				return fmt.Errorf("bearer auth requires tokens")
			}
		case "jwt":
			if a.Auth.JWTAuth.Secret == "" {
				return fmt.Errorf("JWT auth requires secret")
			}
		default:
			return fmt.Errorf("unsupported auth type: %s", a.Auth.Type)
		}
	}
	return nil
}

// PoolConfig converts l into a connection pool configuration.
func (l LocalConfig) PoolConfig() pool.Config {
	return pool.Config{
		Driver:             l.Driver,
		DSN:                l.DSN,
		MaxOpenConnections: l.MaxOpenConnections,
		MaxIdleConnections: l.MaxIdleConnections,
		ConnMaxLifetime:    l.ConnMaxLifetime,
		HealthCheckPeriod:  l.HealthCheckPeriod,
		BusyTimeout:        l.BusyTimeout,
		Threads:            l.Threads,
	}
}

// ClientConfig converts r into a remote client configuration.
func (r RemoteConfig) ClientConfig() remote.Config {
	return remote.Config{
		BaseURL:       r.BaseURL,
		Timeout:       r.Timeout,
		HealthTimeout: r.HealthTimeout,
		Token:         r.Token,
	}
}

// GeminiConfig converts g into a Gemini client configuration.
func (g GenerativeConfig) GeminiConfig() generative.GeminiConfig {
	return generative.GeminiConfig{
		APIKey:      g.APIKey,
		Model:       g.Model,
		Temperature: g.Temperature,
	}
}

// DefaultConfig returns a default configuration: students in a local SQLite
// file, courses behind the HTTP endpoint on localhost:5001.
func DefaultConfig() *Config {
	return &Config{
		LogLevel: "info",
		Primary: SourceConfig{
			Kind: SourceLocal,
			Local: LocalConfig{
				Driver:             pool.DriverSQLite,
				DSN:                "student.db",
				MaxOpenConnections: 10,
				MaxIdleConnections: 2,
				ConnMaxLifetime:    30 * time.Minute,
			},
		},
		Secondary: SourceConfig{
			Kind: SourceRemote,
			Remote: RemoteConfig{
				BaseURL:       "http://localhost:5001",
				Timeout:       remote.DefaultTimeout,
				HealthTimeout: remote.DefaultHealthTimeout,
			},
		},
		Generative: GenerativeConfig{
			Model:           generative.DefaultModel,
			Temperature:     0.1,
			Timeout:         30 * time.Second,
			SQLMaxTokens:    300,
			AnswerMaxTokens: 300,
		},
		Cache: *cache.DefaultConfig(),
		Metrics: MetricsConfig{
			Enabled: false,
			Address: ":9090",
		},
		API: APIConfig{
			Address:         ":5001",
			Database:        "local",
			RequestTimeout:  30 * time.Second,
			ShutdownTimeout: 10 * time.Second,
			Auth: AuthConfig{
				Enabled: false,
				Type:    "jwt",
			},
		},
	}
}

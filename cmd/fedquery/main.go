// Package main provides the entry point for the federated query coordinator.
package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/TFMV/fedquery/cmd/fedquery/config"
)

var (
	// Version information (set by build flags)
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

var rootCmd = &cobra.Command{
	Use:   "fedquery",
	Short: "Federated natural-language query coordinator",
	Long: `Answer natural-language questions over two campus databases.

Questions are classified, turned into SQL by pattern rules or a generative
model, executed against the student store, the course store or both, and
cached by their exact text.

Example:
  fedquery
  fedquery ask "Show all students"
  fedquery serve-backend --config ./courses.yaml`,
	SilenceUsage: true,
	RunE:         runREPL,
}

var replCmd = &cobra.Command{
	Use:   "repl",
	Short: "Start the interactive question loop",
	RunE:  runREPL,
}

var askCmd = &cobra.Command{
	Use:   "ask <question>",
	Short: "Answer a single question and exit",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runAsk,
}

var serveBackendCmd = &cobra.Command{
	Use:   "serve-backend",
	Short: "Expose a local store over the HTTP query endpoint",
	Long: `Serve GET /health and POST /api/query for a local SQLite or DuckDB store,
so that another coordinator can reach it as a remote backend.

Example:
  fedquery serve-backend --api-address :5001 --store-dsn courses.db`,
	RunE: runServeBackend,
}

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Manage the query cache",
}

var cacheClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove every cached answer",
	RunE:  runCacheClear,
}

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Load CSV files into a local store",
	Long: `Recreate the student or course tables from CSV files.

Example:
  fedquery import --dir ./data --schema student
  fedquery import --dir ./data --schema course --store-dsn courses.db`,
	RunE: runImport,
}

func init() {
	rootCmd.AddCommand(replCmd, askCmd, serveBackendCmd, cacheCmd, importCmd)
	cacheCmd.AddCommand(cacheClearCmd)

	flags := rootCmd.PersistentFlags()
	flags.StringP("config", "c", "", "config file path")
	flags.String("log-level", "info", "log level (debug, info, warn, error)")
	flags.String("primary-kind", config.SourceLocal, "primary backend kind (local, remote)")
	flags.String("primary-driver", "sqlite3", "primary local driver (sqlite3, duckdb)")
	flags.String("primary-dsn", "student.db", "primary local database")
	flags.String("primary-url", "", "primary remote base URL")
	flags.String("secondary-kind", config.SourceRemote, "secondary backend kind (local, remote)")
	flags.String("secondary-driver", "sqlite3", "secondary local driver (sqlite3, duckdb)")
	flags.String("secondary-dsn", "", "secondary local database")
	flags.String("secondary-url", "http://localhost:5001", "secondary remote base URL")
	flags.String("cache-backend", "sqlite", "cache backend (sqlite, memory, redis)")
	flags.String("cache-path", "cache.db", "SQLite cache file")
	flags.Duration("cache-ttl", 300*time.Second, "cache entry lifetime")
	flags.Bool("clear-cache", true, "clear the cache when the REPL starts")
	flags.String("redis-addr", "localhost:6379", "redis address for the redis cache")
	flags.String("model", "gemini-2.0-flash-exp", "generative model")
	flags.Bool("metrics", false, "enable Prometheus metrics")
	flags.String("metrics-address", ":9090", "metrics server address")

	serveBackendCmd.Flags().String("api-address", ":5001", "backend API listen address")
	serveBackendCmd.Flags().String("database", "local", "database label reported by /health")
	serveBackendCmd.Flags().Bool("auth", false, "require authentication on /api routes")
	serveBackendCmd.Flags().Duration("shutdown-timeout", 10*time.Second, "graceful shutdown timeout")

	for _, c := range []*cobra.Command{serveBackendCmd, importCmd} {
		c.Flags().String("store-driver", "sqlite3", "store driver (sqlite3, duckdb)")
		c.Flags().String("store-dsn", "", "store database, defaults to the primary local database")
	}

	importCmd.Flags().String("dir", "data", "directory holding the CSV files")
	importCmd.Flags().String("schema", "student", "tables to load (student, course)")

	// Bind flags to viper keys
	bind := map[string]string{
		"config":           "config",
		"log-level":        "log_level",
		"primary-kind":     "primary.kind",
		"primary-driver":   "primary.local.driver",
		"primary-dsn":      "primary.local.dsn",
		"primary-url":      "primary.remote.base_url",
		"secondary-kind":   "secondary.kind",
		"secondary-driver": "secondary.local.driver",
		"secondary-dsn":    "secondary.local.dsn",
		"secondary-url":    "secondary.remote.base_url",
		"cache-backend":    "cache.backend",
		"cache-path":       "cache.path",
		"cache-ttl":        "cache.ttl",
		"clear-cache":      "cache.clear_on_start",
		"redis-addr":       "cache.redis.addr",
		"model":            "generative.model",
		"metrics":          "metrics.enabled",
		"metrics-address":  "metrics.address",
		"api-address":      "api.address",
		"database":         "api.database",
		"auth":             "api.auth.enabled",
		"shutdown-timeout": "api.shutdown_timeout",
	}
	for flag, key := range bind {
		f := flags.Lookup(flag)
		if f == nil {
			f = serveBackendCmd.Flags().Lookup(flag)
		}
		if err := viper.BindPFlag(key, f); err != nil {
			panic(fmt.Errorf("failed to bind flag %s: %w", flag, err))
		}
	}

	viper.SetEnvPrefix("FEDQUERY")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()

	// Credentials have no flags
	for key, envs := range map[string][]string{
		"generative.api_key":       {"FEDQUERY_GENERATIVE_API_KEY", "GEMINI_API_KEY"},
		"primary.remote.token":     {"FEDQUERY_PRIMARY_REMOTE_TOKEN"},
		"secondary.remote.token":   {"FEDQUERY_SECONDARY_REMOTE_TOKEN"},
		"api.auth.jwt_auth.secret": {"FEDQUERY_API_AUTH_JWT_AUTH_SECRET"},
	} {
		if err := viper.BindEnv(append([]string{key}, envs...)...); err != nil {
			panic(fmt.Errorf("failed to bind env %s: %w", key, err))
		}
	}

	// Add version command
	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("fedquery\n")
			fmt.Printf("Version:    %s\n", version)
			fmt.Printf("Commit:     %s\n", commit)
			fmt.Printf("Build Date: %s\n", buildDate)
		},
	})
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, error) {
	// A missing .env file is not an error
	_ = godotenv.Load()

	// Load config file if specified
	if configFile := viper.GetString("config"); configFile != "" {
		viper.SetConfigFile(configFile)
		if err := viper.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	cfg := config.DefaultConfig()
	if err := viper.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to decode configuration: %w", err)
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

func setupLogging(level string, w io.Writer, console bool) zerolog.Logger {
	// Configure zerolog
	zerolog.TimeFieldFormat = time.RFC3339Nano
	zerolog.DurationFieldUnit = time.Millisecond

	// Set log level
	var logLevel zerolog.Level
	switch level {
	case "debug":
		logLevel = zerolog.DebugLevel
		// Enable caller info for debug level
		zerolog.CallerMarshalFunc = func(pc uintptr, file string, line int) string {
			short := file
			for i := len(file) - 1; i > 0; i-- {
				if file[i] == '/' {
					short = file[i+1:]
					break
				}
			}
			return fmt.Sprintf("%s:%d", short, line)
		}
	case "info":
		logLevel = zerolog.InfoLevel
	case "warn":
		logLevel = zerolog.WarnLevel
	case "error":
		logLevel = zerolog.ErrorLevel
	default:
		logLevel = zerolog.InfoLevel
	}

	if console {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.Kitchen}
	}

	logger := zerolog.New(w).
		Level(logLevel).
		With().
		Timestamp().
		Str("service", "fedquery")

	if logLevel == zerolog.DebugLevel {
		logger = logger.Caller()
	}

	return logger.Logger()
}

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"strconv"
	"strings"
	"syscall"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/TFMV/fedquery/cmd/fedquery/app"
	"github.com/TFMV/fedquery/cmd/fedquery/config"
	"github.com/TFMV/fedquery/pkg/cache"
	"github.com/TFMV/fedquery/pkg/infrastructure/pool"
	"github.com/TFMV/fedquery/pkg/models"
	"github.com/TFMV/fedquery/pkg/repositories/local"
)

func signalContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
}

func runREPL(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	logger := setupLogging(cfg.LogLevel, os.Stderr, true)

	ctx, stop := signalContext(cmd)
	defer stop()

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()
	a.StartMetrics()

	if cfg.Cache.ClearOnStart {
		a.ClearCache(ctx)
	}

	locations := map[models.BackendID]string{
		models.BackendPrimary:   a.Describe(models.BackendPrimary),
		models.BackendSecondary: a.Describe(models.BackendSecondary),
	}
	app.NewRenderer(os.Stdout).Banner(locations, a.Probe(ctx))

	return app.NewREPL(a.Coordinator(), os.Stdin, os.Stdout, logger).Run(ctx)
}

func runAsk(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	logger := setupLogging(cfg.LogLevel, os.Stderr, true)

	ctx, stop := signalContext(cmd)
	defer stop()

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	q := models.Question(strings.Join(args, " "))
	outcome, cached := a.Coordinator().Answer(ctx, q)
	app.NewRenderer(os.Stdout).Outcome(outcome, cached)
	return nil
}

func runServeBackend(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if err := applyStoreFlags(cmd, cfg); err != nil {
		return err
	}
	logger := setupLogging(cfg.LogLevel, os.Stdout, false)
	logger.Info().
		Str("version", version).
		Str("commit", commit).
		Str("build_date", buildDate).
		Msg("Starting backend API")

	srv, err := app.NewBackendServer(cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}
	defer srv.Close()

	ctx, stop := signalContext(cmd)
	defer stop()
	return srv.Serve(ctx)
}

func runCacheClear(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	logger := setupLogging(cfg.LogLevel, os.Stderr, true)

	qc, err := cache.Open(cmd.Context(), &cfg.Cache, logger)
	if err != nil {
		return fmt.Errorf("failed to open cache: %w", err)
	}
	defer qc.Close()

	if err := qc.Clear(cmd.Context()); err != nil {
		return fmt.Errorf("failed to clear cache: %w", err)
	}
	pterm.Success.Println("Cache cleared")
	return nil
}

func runImport(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if err := applyStoreFlags(cmd, cfg); err != nil {
		return err
	}
	logger := setupLogging(cfg.LogLevel, os.Stderr, true)

	dir, _ := cmd.Flags().GetString("dir")
	schema, _ := cmd.Flags().GetString("schema")

	var tables []local.TableSpec
	switch schema {
	case "student":
		tables = local.StudentTables
	case "course":
		tables = local.CourseTables
	default:
		return fmt.Errorf("unknown schema %q: want student or course", schema)
	}

	store, err := app.StoreConfig(cfg)
	if err != nil {
		return err
	}
	p, err := pool.New(store.PoolConfig(), logger)
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer p.Close()

	ctx, stop := signalContext(cmd)
	defer stop()

	counts, err := local.NewImporter(p, logger).ImportDir(ctx, dir, tables)
	if err != nil {
		return err
	}

	names := make([]string, 0, len(counts))
	for name := range counts {
		names = append(names, name)
	}
	sort.Strings(names)

	data := pterm.TableData{{"table", "rows"}}
	for _, name := range names {
		data = append(data, []string{name, strconv.Itoa(counts[name])})
	}
	if err := pterm.DefaultTable.WithHasHeader().WithData(data).Render(); err != nil {
		return err
	}
	pterm.Success.Printfln("Imported %d tables into %s", len(counts), store.DSN)
	return nil
}

// applyStoreFlags overrides the api store with --store-dsn/--store-driver.
func applyStoreFlags(cmd *cobra.Command, cfg *config.Config) error {
	dsn, _ := cmd.Flags().GetString("store-dsn")
	if dsn == "" {
		return nil
	}
	driver, _ := cmd.Flags().GetString("store-driver")
	cfg.API.Store.DSN = dsn
	cfg.API.Store.Driver = driver
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

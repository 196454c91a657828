package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	flag "github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"feeshare/config"
	"feeshare/core"
	"feeshare/core/genesis"
	"feeshare/crypto"
	"feeshare/observability/logging"
	telemetry "feeshare/observability/otel"
	"feeshare/services/feeshared/journal"
	"feeshare/services/feeshared/keeper"
	"feeshare/services/feeshared/middleware"
	"feeshare/services/feeshared/server"
	"feeshare/storage"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "feeshared: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfgPath := flag.String("config", "./feeshare.toml", "path to the TOML configuration (written with defaults when missing)")
	envFile := flag.String("env-file", ".env", "optional dotenv file loaded before the configuration")
	console := flag.Bool("console", false, "human readable coloured log output")
	noKeeper := flag.Bool("no-keeper", false, "disable the periodic harvester regardless of configuration")
	exportPath := flag.String("export-journal", "", "write the event journal to a parquet file and exit")
	flag.Parse()

	if path := strings.TrimSpace(*envFile); path != "" {
		if err := godotenv.Load(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("load env file: %w", err)
		}
	}

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		return err
	}

	level, err := logging.ParseLevel(cfg.Logging.Level)
	if err != nil {
		return err
	}
	logger, logCloser := logging.Setup(cfg.Service, cfg.Environment, logging.Options{
		Level:      level,
		File:       cfg.Logging.File,
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
		MaxAgeDays: cfg.Logging.MaxAgeDays,
		Console:    *console,
	})
	defer logCloser.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTelemetry, err := telemetry.Init(ctx, telemetry.Config{
		ServiceName:     cfg.Service,
		Environment:     cfg.Environment,
		Endpoint:        cfg.Telemetry.Endpoint,
		Insecure:        cfg.Telemetry.Insecure,
		Headers:         telemetry.ParseHeaders(os.Getenv("OTEL_EXPORTER_OTLP_HEADERS")),
		Metrics:         cfg.Telemetry.Metrics,
		Traces:          cfg.Telemetry.Traces,
		MetricsInterval: cfg.Telemetry.MetricsInterval.Duration,
		SampleRatio:     cfg.Telemetry.SampleRatio,
		Deployment: telemetry.Deployment{
			StakeToken:     cfg.Staking.StakeToken,
			RewardToken:    cfg.Staking.RewardToken,
			StorageBackend: cfg.Storage.Backend,
			JournalDriver:  cfg.Journal.Driver,
			Pools:          len(cfg.Pools),
			Keeper:         cfg.Keeper.Enabled && !*noKeeper,
		},
	})
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() {
		if err := shutdownTelemetry(context.Background()); err != nil {
			logger.Warn("telemetry shutdown failed", slog.Any("error", err))
		}
	}()

	db, err := openStorage(cfg.Storage)
	if err != nil {
		return err
	}
	spec, err := genesis.FromConfig(cfg)
	if err != nil {
		_ = db.Close()
		return err
	}
	node, err := core.New(db, spec, core.Options{Logger: logger})
	if err != nil {
		_ = db.Close()
		return fmt.Errorf("start node: %w", err)
	}
	defer node.Close()

	journalDB, err := journal.Open(cfg.Journal.Driver, cfg.Journal.DSN)
	if err != nil {
		return err
	}
	logger.Info("journal opened",
		slog.String("driver", cfg.Journal.Driver),
		slog.String("dsn", cfg.Journal.DSN))
	events, err := journal.New(journalDB, logger)
	if err != nil {
		return err
	}
	defer events.Close()
	node.SetEmitter(events)

	if path := strings.TrimSpace(*exportPath); path != "" {
		rows, err := events.ExportParquet(ctx, path, journal.Filter{})
		if err != nil {
			return err
		}
		logger.Info("journal export complete", slog.String("path", path), slog.Int("rows", rows))
		return nil
	}

	secret := os.Getenv(cfg.Server.JWTSecretEnv)
	if !cfg.Server.AuthDisabled && secret == "" {
		return fmt.Errorf("%s must hold the JWT secret unless Server.AuthDisabled is set", cfg.Server.JWTSecretEnv)
	}
	api, err := server.New(server.Config{
		Service: cfg.Service,
		Node:    node,
		Journal: events,
		Auth: middleware.AuthConfig{
			Disabled:   cfg.Server.AuthDisabled,
			HMACSecret: secret,
			Issuer:     cfg.Server.JWTIssuer,
		},
		RateLimit: middleware.RateLimit{
			RatePerSecond: cfg.Server.RateLimitPerSecond,
			Burst:         cfg.Server.RateLimitBurst,
		},
		CORSOrigins: cfg.Server.CORSOrigins,
		Logger:      logger,
	})
	if err != nil {
		return err
	}
	httpServer := &http.Server{
		Addr:         cfg.Server.ListenAddress,
		Handler:      api.Handler(),
		ReadTimeout:  cfg.Server.ReadTimeout.Duration,
		WriteTimeout: cfg.Server.WriteTimeout.Duration,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("http server listening", slog.String("addr", httpServer.Addr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout.Duration)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})
	if cfg.Keeper.Enabled && !*noKeeper {
		k, err := keeper.New(keeper.Config{
			Pipeline: node,
			Caller:   crypto.DeriveAddress(cfg.Keeper.Caller),
			Interval: cfg.Keeper.Interval.Duration,
			Logger:   logger,
		})
		if err != nil {
			return err
		}
		g.Go(func() error { return k.Run(gctx) })
	}

	err = g.Wait()
	logger.Info("feeshared stopped")
	return err
}

func openStorage(cfg config.Storage) (storage.Database, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Backend)) {
	case "memory":
		return storage.NewMemDB(), nil
	case "leveldb":
		db, err := storage.NewLevelDB(cfg.Path)
		if err != nil {
			return nil, fmt.Errorf("open leveldb %s: %w", cfg.Path, err)
		}
		return db, nil
	default:
		return nil, fmt.Errorf("unsupported storage backend %q", cfg.Backend)
	}
}

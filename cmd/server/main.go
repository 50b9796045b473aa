package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/rs/zerolog"

	"github.com/codewars-bot/internal/codewars"
	"github.com/codewars-bot/internal/config"
	"github.com/codewars-bot/internal/handler"
	"github.com/codewars-bot/internal/kafka"
	"github.com/codewars-bot/internal/postgres"
	"github.com/codewars-bot/internal/redis"
	"github.com/codewars-bot/internal/service"
	"github.com/codewars-bot/internal/slack"
	"github.com/codewars-bot/internal/state"
	"github.com/codewars-bot/internal/websocket"
	"github.com/codewars-bot/internal/worker"
	"github.com/codewars-bot/pkg/logx"
)

func main() {
	// Parse command line flags
	configPath := flag.String("config", "config.yaml", "Path to configuration file")
	flag.Parse()

	boot := logx.NewConsole("info")

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		boot.Warn().Err(err).Msg("failed to load config file, using defaults")
		cfg = config.DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		boot.Fatal().Err(err).Msg("invalid configuration")
	}

	logger, logCloser, err := logx.New(logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File:    cfg.Logging.File,
	})
	if err != nil {
		boot.Fatal().Err(err).Msg("failed to set up logging")
	}
	defer logCloser.Close()

	if err := run(cfg, logger); err != nil {
		logger.Error().Err(err).Msg("bot stopped with error")
		logCloser.Close()
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger zerolog.Logger) error {
	loc, err := cfg.Scheduler.Location()
	if err != nil {
		return err
	}

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize PostgreSQL
	var repo *postgres.Repository
	if cfg.Postgres.Enabled {
		logger.Info().Str("host", cfg.Postgres.Host).Str("database", cfg.Postgres.Database).Msg("connecting to PostgreSQL")
		repo, err = postgres.NewRepository(ctx, &cfg.Postgres, logger)
		if err != nil {
			return fmt.Errorf("connecting to postgres: %w", err)
		}
		defer repo.Close()

		if err := repo.RunMigrations(ctx); err != nil {
			return fmt.Errorf("running migrations: %w", err)
		}
	}

	// Bot state
	var store state.Store
	switch cfg.State.Driver {
	case config.StateDriverPostgres:
		store = repo
	case config.StateDriverMemory:
		store = state.NewMemoryStore(nil)
	default:
		fs, err := state.NewFileStore(cfg.State.Path)
		if err != nil {
			return err
		}
		store = fs
	}
	st, err := state.Load(ctx, store, logger)
	if err != nil {
		return fmt.Errorf("loading state: %w", err)
	}

	// Codewars source, optionally behind the Redis cache
	client, err := codewars.NewClient(codewars.Config{
		BaseURL:    cfg.Codewars.BaseURL,
		Timeout:    cfg.Codewars.Timeout,
		RatePerSec: cfg.Codewars.RatePerSec,
		Burst:      cfg.Codewars.Burst,
	}, logger)
	if err != nil {
		return err
	}
	var source service.ProfileSource = client

	var cache *redis.ProfileCache
	if cfg.Redis.Enabled {
		logger.Info().Str("addr", cfg.Redis.Addr).Msg("connecting to Redis")
		cache, err = redis.NewProfileCache(ctx, &cfg.Redis, client, logger)
		if err != nil {
			logger.Warn().Err(err).Msg("failed to connect to Redis, continuing without profile cache")
		} else {
			defer cache.Close()
			source = cache
		}
	}

	var baselines service.BaselineStore = service.NewMemoryBaselines()
	if repo != nil {
		baselines = repo
	}

	webhook := slack.NewWebhook(cfg.Slack.WebhookURL, cfg.Slack.WebhookTimeout, logger)

	// Initialize WebSocket hub
	hub := websocket.NewHub(logger)
	go hub.Run()

	reporter := service.NewReporter(st, source, baselines, webhook, service.ReporterConfig{
		Concurrency:  cfg.Stats.Concurrency,
		FetchTimeout: cfg.Stats.FetchTimeout,
		Location:     loc,
	}, logger)
	reporter.SetHub(hub)

	// Snapshot stream
	var producer *kafka.Producer
	if cfg.Kafka.Enabled {
		logger.Info().Strs("brokers", cfg.Kafka.Brokers).Str("topic", cfg.Kafka.Topic).Msg("initializing Kafka producer")
		producer, err = kafka.NewProducer(&cfg.Kafka, logger)
		if err != nil {
			logger.Warn().Err(err).Msg("failed to create Kafka producer, continuing without Kafka")
		} else {
			reporter.SetPublisher(producer)
		}
	}

	dispatcher := service.NewDispatcher(st, reporter, webhook, service.DispatcherConfig{
		EphemeralLimit: cfg.Slack.EphemeralLimit,
		PostStats:      cfg.Slack.PostStats,
		Location:       loc,
	}, logger)

	scheduler := worker.NewScheduler(st, reporter, worker.SchedulerConfig{
		Location:   loc,
		RunTimeout: cfg.Scheduler.RunTimeout,
	}, logger)
	if err := scheduler.Start(ctx); err != nil {
		return fmt.Errorf("starting scheduler: %w", err)
	}

	var pruner *worker.Pruner
	if repo != nil {
		pruner = worker.NewPruner(repo, worker.PrunerConfig{
			Retention: cfg.Postgres.SnapshotRetention,
			Location:  loc,
		}, logger)
		if err := pruner.Start(); err != nil {
			return fmt.Errorf("starting snapshot pruner: %w", err)
		}
	}

	verifier := slack.NewVerifier(cfg.Slack.SigningSecret, cfg.Slack.Tolerance)
	httpHandler := handler.NewHandler(dispatcher, webhook, verifier, hub, handler.Config{
		MaxBodyBytes: cfg.Server.MaxBodyBytes,
		ReplyTimeout: cfg.Scheduler.RunTimeout,
	}, logger)
	if repo != nil {
		httpHandler.AddCheck("postgres", repo.Ping)
	}
	if cache != nil {
		httpHandler.AddCheck("redis", cache.Ping)
	}

	// Create HTTP server
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      httpHandler.Router(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info().Int("port", cfg.Server.Port).Msg("starting HTTP server")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	if ok, err := daemon.SdNotify(false, daemon.SdNotifyReady); err != nil {
		logger.Warn().Err(err).Msg("failed to notify systemd")
	} else if ok {
		logger.Debug().Msg("systemd notified of readiness")
	}

	// Wait for interrupt signal or a server failure
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	var runErr error
	select {
	case sig := <-quit:
		logger.Info().Stringer("signal", sig).Msg("shutting down")
	case err := <-serverErr:
		runErr = fmt.Errorf("http server: %w", err)
	}

	daemon.SdNotify(false, daemon.SdNotifyStopping)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("failed to shutdown server")
	}
	httpHandler.Wait()

	if err := scheduler.Stop(); err != nil {
		logger.Error().Err(err).Msg("failed to stop scheduler")
	}
	if pruner != nil {
		pruner.Stop()
	}
	hub.Stop()

	if producer != nil {
		if err := producer.Close(); err != nil {
			logger.Error().Err(err).Msg("failed to close Kafka producer")
		}
	}

	logger.Info().Msg("bot stopped")
	return runErr
}

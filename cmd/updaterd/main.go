package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/italolelis/updaterd/internal/cleanup"
	"github.com/italolelis/updaterd/internal/config"
	"github.com/italolelis/updaterd/internal/events"
	"github.com/italolelis/updaterd/internal/gateway/github"
	"github.com/italolelis/updaterd/internal/http/rest"
	"github.com/italolelis/updaterd/internal/logctx"
	"github.com/italolelis/updaterd/internal/notifier"
	"github.com/italolelis/updaterd/internal/restart"
	"github.com/italolelis/updaterd/internal/storage"
	"github.com/italolelis/updaterd/internal/storage/sqlite"
	"github.com/italolelis/updaterd/internal/telemetry"
	"github.com/italolelis/updaterd/internal/update"
	"github.com/italolelis/updaterd/internal/version"
	slogmulti "github.com/samber/slog-multi"
	"golang.org/x/sync/errgroup"
)

const appName = "updaterd"

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		slog.Error("config error", "err", err)
		os.Exit(1)
	}

	logger := newLogger(cfg)
	slog.SetDefault(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	slog.Info("updaterd starting...", "log_level", cfg.LogLevel, "version", version.Current(), "commit", version.Commit)

	if err := run(logctx.WithLogger(ctx, logger), cfg); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("fatal error", "err", err)
		cancel()
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	logger := logctx.LoggerFromContext(ctx)
	currentVersion := version.Current()

	// =========================================================================
	// Start Telemetry
	tel, err := telemetry.New(ctx, telemetry.Config{
		Enabled:        cfg.Telemetry.Enabled,
		ServiceName:    cfg.Telemetry.ServiceName,
		ServiceVersion: currentVersion,
		OTLPEndpoint:   cfg.Telemetry.OTLPEndpoint,
		OTLPInsecure:   cfg.Telemetry.OTLPInsecure,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}

	if h := tel.LogHandler(); h != nil {
		logger = newLogger(cfg, h)
		slog.SetDefault(logger)
		ctx = logctx.WithLogger(ctx, logger)
	}

	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.Web.ShutdownTimeout)
		defer cancel()

		if err := tel.Shutdown(shutdownCtx); err != nil {
			logger.Error("failed to shutdown telemetry", "err", err)
		}
	}()

	// =========================================================================
	// Start Database
	database, err := sqlite.InitDB(ctx, cfg.DBPath)
	if err != nil {
		logger.Error("DB error", "err", err)

		return err
	}
	defer database.Close()

	history := sqlite.NewInstrumentedCheckRepository(database, tel)

	// =========================================================================
	// Start Update Coordinator
	state := update.NewState()
	restoreLastCheck(ctx, history, state)

	gw, err := github.New(github.Config{
		APIURL:         cfg.Github.APIURL,
		Owner:          cfg.Github.Owner,
		Repo:           cfg.Github.Repo,
		Token:          cfg.Github.Token,
		AssetName:      cfg.Github.AssetName,
		ChecksumsAsset: cfg.Github.Checksums,
		InstallPath:    cfg.InstallPath,
		CurrentVersion: currentVersion,
		Telemetry:      tel,
	})
	if err != nil {
		return fmt.Errorf("failed to build release gateway: %w", err)
	}

	// =========================================================================
	// Start Cleanup
	if _, err := cleanup.DeleteStaleArtifacts(ctx, gw.InstallPath(), cfg.Updater.KeepBackupFor, time.Now()); err != nil {
		logger.Warn("failed to clean up install artifacts", "err", err)
	}

	broker := events.NewBroker(0)

	coordinator := update.NewCoordinator(
		state,
		update.StaticGateway(gw),
		buildSink(broker, cfg),
		restart.New(),
		update.Options{
			CurrentVersion:   currentVersion,
			WaitPoll:         cfg.Updater.WaitPoll,
			WaitAttempts:     cfg.Updater.WaitAttempts,
			CheckTimeout:     cfg.Updater.CheckTimeout,
			ProgressInterval: cfg.Updater.ProgressInterval,
			Recorder:         storage.NewRecorder(history, storage.GenerateInstanceID()),
			Telemetry:        tel,
		},
	)

	// =========================================================================
	// Start Scheduler
	if cfg.Updater.Disabled {
		logger.Info("background update checks disabled")
	} else {
		update.NewScheduler(coordinator, cfg.Updater.InitialDelay, cfg.Updater.CheckInterval).Start(ctx)
	}

	// =========================================================================
	// Start API Service
	server := setupServer(ctx, coordinator, history, broker, tel, cfg)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("Initializing API support", "host", cfg.Web.BindAddress)

		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}

		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("start shutdown")

		// Open event streams hold their connections until the broker closes them.
		broker.Close()

		// Give outstanding requests a deadline for completion.
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), cfg.Web.ShutdownTimeout)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("failed to gracefully shutdown the server", "err", err)

			if err = server.Close(); err != nil {
				return fmt.Errorf("could not stop server gracefully: %w", err)
			}
		}

		return nil
	})

	logger.Info("waiting for updates...",
		"current_version", currentVersion,
		"release_source", cfg.Github.Owner+"/"+cfg.Github.Repo,
		"check_interval", cfg.Updater.CheckInterval.String(),
	)

	if err := g.Wait(); err != nil {
		return err
	}

	return ctx.Err()
}

// newLogger writes JSON to stdout and to any extra handlers, tagging records
// with the active trace.
func newLogger(cfg *config.Config, extra ...slog.Handler) *slog.Logger {
	var handler slog.Handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.SlogLevel()})

	if len(extra) > 0 {
		handler = slogmulti.Fanout(append([]slog.Handler{handler}, extra...)...)
	}

	return slog.New(logctx.NewTraceHandler(handler))
}

// restoreLastCheck seeds the last check time from history so it survives restarts.
func restoreLastCheck(ctx context.Context, history storage.CheckReadRepository, state *update.State) {
	logger := logctx.LoggerFromContext(ctx)

	latest, err := history.LatestCheck(ctx)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			logger.Warn("failed to load last check", "err", err)
		}

		return
	}

	state.RestoreLastCheck(latest.CheckedAt)
	logger.Debug("restored last check", "checked_at", latest.CheckedAt.Format(time.RFC3339))
}

func buildSink(broker *events.Broker, cfg *config.Config) update.EventSink {
	sinks := update.MultiSink{update.LogSink{}, broker}

	if cfg.DiscordWebhookURL != "" {
		sinks = append(sinks, notifier.NewSink(notifier.NewDiscordNotifier(cfg.DiscordWebhookURL), appName))
	}

	return sinks
}

// setupServer prepares the handlers and services to create the http rest server.
func setupServer(
	ctx context.Context,
	coordinator *update.Coordinator,
	history storage.CheckReadRepository,
	broker *events.Broker,
	tel *telemetry.Telemetry,
	cfg *config.Config,
) *http.Server {
	uHandler := rest.NewUpdatesHandler(coordinator, history, broker, cfg.Web.Username, cfg.Web.Password)

	r := chi.NewRouter()
	r.Use(telemetry.RequestID)
	r.Use(telemetry.HTTPLogging)
	r.Use(telemetry.NewHTTPMiddleware(tel).Middleware)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	r.Handle("/metrics", tel.Handler())
	r.Mount("/", uHandler.Routes())

	return &http.Server{
		Addr:         cfg.Web.BindAddress,
		ReadTimeout:  cfg.Web.ReadTimeout,
		WriteTimeout: cfg.Web.WriteTimeout,
		IdleTimeout:  cfg.Web.IdleTimeout,
		Handler:      r,
		BaseContext: func(net.Listener) context.Context {
			return ctx
		},
	}
}

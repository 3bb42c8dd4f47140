package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humaecho"
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/oncallops/flare/internal/api/handlers"
	"github.com/oncallops/flare/internal/api/middleware"
	"github.com/oncallops/flare/internal/config"
	"github.com/oncallops/flare/internal/engine"
	"github.com/oncallops/flare/internal/notify"
	"github.com/oncallops/flare/internal/rules"
	"github.com/oncallops/flare/internal/source"
	"github.com/oncallops/flare/internal/store"
	"github.com/oncallops/flare/internal/telemetry"
	"github.com/oncallops/flare/pkg/logger"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the API server and evaluation engine",
	RunE:  runServe,
}

func runServe(_ *cobra.Command, _ []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	log := logger.New(cfg.Logging.Level, cfg.Logging.Format)

	ctx := context.Background()

	// Alert store.
	st, closeStore, err := openStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeStore()

	// Rule registry, optionally seeded from disk.
	registry := rules.NewRegistry()
	if cfg.Rules.Dir != "" {
		loaded, err := rules.LoadDir(cfg.Rules.Dir)
		if err != nil {
			return fmt.Errorf("loading rules: %w", err)
		}
		if err := registry.Replace(loaded); err != nil {
			return fmt.Errorf("registering rules: %w", err)
		}
		log.Info("rules loaded", "dir", cfg.Rules.Dir, "count", registry.Len())
	}

	// Delivery dispatcher.
	var dispatcher notify.Dispatcher
	if cfg.Notifications.Webhook.Enabled {
		dispatcher = notify.NewWebhookDispatcher(
			cfg.Notifications.Webhook.URL,
			notify.WithRateLimit(cfg.Notifications.Webhook.PerSecond, cfg.Notifications.Webhook.Burst),
			notify.WithWebhookLogger(log),
		)
	} else {
		dispatcher = notify.NewNoopDispatcher(log)
	}

	// Evaluation engine.
	eng, err := engine.New(st, registry, dispatcher,
		engine.WithLogger(log),
		engine.WithWorkers(cfg.Engine.Workers),
		engine.WithQueueSize(cfg.Engine.QueueSize),
		engine.WithSuppressionRules(cfg.Suppression),
	)
	if err != nil {
		return fmt.Errorf("creating engine: %w", err)
	}
	defer eng.Close()

	// Pull-model scheduler, only when a snapshot source is configured.
	var sched *engine.Scheduler
	if cfg.Engine.SourceURL != "" {
		opts := []source.HTTPOption{}
		if cfg.Engine.SourceToken != "" {
			opts = append(opts, source.WithHeader("Authorization", "Bearer "+cfg.Engine.SourceToken))
		}
		src := source.NewHTTPSource(cfg.Engine.SourceURL, opts...)

		sched = engine.NewScheduler(eng, src, log)
		if err := sched.Start(cfg.Engine.Schedule); err != nil {
			return fmt.Errorf("starting scheduler: %w", err)
		}
	}

	// Tracing.
	if cfg.Tracing.Enabled {
		shutdown, err := telemetry.InitTracing(ctx, cfg.Tracing.Endpoint, Version)
		if err != nil {
			return fmt.Errorf("initializing tracing: %w", err)
		}
		defer func() {
			flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdown(flushCtx); err != nil {
				log.Warn("trace exporter shutdown failed", "error", err)
			}
		}()
	}

	e := buildServer(cfg, log, st, registry, eng)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	log.Info("starting server", "addr", addr)

	go func() {
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server error", "error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down")

	if sched != nil {
		sched.Stop()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := e.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down server: %w", err)
	}

	log.Info("server stopped")
	return nil
}

// openStore creates the configured store backend and returns it with its
// cleanup function. The Postgres backend is migrated on startup.
func openStore(
	ctx context.Context,
	cfg *config.Config,
	log *slog.Logger,
) (store.Store, func(), error) {
	switch cfg.Database.Driver {
	case "postgres":
		connectCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		defer cancel()

		pg, err := store.NewPostgresStore(connectCtx, cfg.Database.DSN())
		if err != nil {
			return nil, nil, fmt.Errorf("connecting to database: %w", err)
		}
		if err := pg.Migrate(connectCtx); err != nil {
			pg.Close()
			return nil, nil, fmt.Errorf("running migrations: %w", err)
		}
		log.Info("using postgres store", "host", cfg.Database.Host, "db", cfg.Database.Name)
		return pg, pg.Close, nil

	default:
		log.Info("using in-memory store")
		return store.NewMemoryStore(), func() {}, nil
	}
}

// buildServer assembles the Echo instance: middleware, health and metrics
// endpoints, the echo-native rule CRUD, and the Huma-described alert API.
func buildServer(
	cfg *config.Config,
	log *slog.Logger,
	st store.Store,
	registry *rules.Registry,
	eng *engine.Engine,
) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Server.ReadTimeout = cfg.Server.ReadTimeout
	e.Server.WriteTimeout = cfg.Server.WriteTimeout

	e.Use(middleware.RequestLog(log))
	e.Use(middleware.Recovery(log))
	e.Use(middleware.Metrics())

	hh := handlers.NewHealthHandler(st)
	e.GET("/healthz", hh.Healthz)
	e.GET("/readyz", hh.Readyz)
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	rh := handlers.NewRulesHandler(registry)
	e.GET("/api/v1/rules", rh.List)
	e.POST("/api/v1/rules", rh.Create)
	e.GET("/api/v1/rules/:id", rh.Get)
	e.PUT("/api/v1/rules/:id", rh.Update)
	e.DELETE("/api/v1/rules/:id", rh.Delete)

	api := humaecho.New(e, huma.DefaultConfig("flare", Version))
	handlers.RegisterAlertRoutes(api, handlers.NewAlertsHandler(st, eng.Escalator()))
	handlers.RegisterIngestRoutes(api, handlers.NewIngestHandler(eng))

	return e
}

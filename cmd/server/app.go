package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/phrazzld/scribe-api/internal/api"
	"github.com/phrazzld/scribe-api/internal/api/middleware"
	"github.com/phrazzld/scribe-api/internal/config"
	"github.com/phrazzld/scribe-api/internal/credit"
	"github.com/phrazzld/scribe-api/internal/events"
	"github.com/phrazzld/scribe-api/internal/generation"
	"github.com/phrazzld/scribe-api/internal/platform/gemini"
	"github.com/phrazzld/scribe-api/internal/platform/metrics"
	"github.com/phrazzld/scribe-api/internal/platform/openai"
	"github.com/phrazzld/scribe-api/internal/platform/postgres"
	"github.com/phrazzld/scribe-api/internal/service"
	"github.com/phrazzld/scribe-api/internal/service/auth"
	"github.com/phrazzld/scribe-api/internal/task"
	"github.com/phrazzld/scribe-api/internal/writing"
	"golang.org/x/sync/errgroup"
)

// application holds the shared dependencies and owns their shutdown.
type application struct {
	config *config.Config
	logger *slog.Logger
	db     *sql.DB

	metrics    *metrics.Metrics
	publishers []io.Closer

	driver   *writing.Driver
	writing  service.WritingService
	runner   *task.Runner
	watchdog *writing.Watchdog
	router   http.Handler
}

// newApplication wires stores, generation, events, the writing driver and
// the HTTP surface.
func newApplication(ctx context.Context, cfg *config.Config, logger *slog.Logger, db *sql.DB) (*application, error) {
	app := &application{
		config:  cfg,
		logger:  logger,
		db:      db,
		metrics: metrics.New(),
	}

	tx := postgres.NewTransactor(db, logger)
	stores := tx.Stores()

	gen, err := newGenerator(ctx, cfg.LLM, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize LLM generator: %w", err)
	}
	logger.Info("LLM generator initialized",
		slog.String("provider", cfg.LLM.Provider),
		slog.String("model", cfg.LLM.ModelName))

	local := events.NewInMemoryEventEmitter(logger)
	emitter := events.MultiEmitter{local}
	publisher, err := newPublisher(cfg.Events, logger, app.metrics)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize event publisher: %w", err)
	}
	if publisher != nil {
		emitter = append(emitter, publisher)
		app.publishers = append(app.publishers, publisher)
	}

	ledger := credit.NewLedger(cfg.Writing.DefaultMonthlyQuota, logger)
	app.driver, err = writing.NewDriver(tx, gen, ledger, emitter, app.metrics, writing.ConfigFrom(cfg.Writing), logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create writing driver: %w", err)
	}

	app.writing, err = service.NewWritingService(tx, app.driver, emitter, app.metrics, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create writing service: %w", err)
	}

	app.runner, err = task.NewRunner(app.driver, stores.Projects, stores.Jobs,
		task.RunnerConfigFrom(cfg.Runtime), app.metrics, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create project runner: %w", err)
	}

	app.watchdog, err = writing.NewWatchdog(stores.Projects, app.writing, cfg.Runtime.WatchdogStall, app.metrics, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create watchdog: %w", err)
	}

	// Started and resumed runs are kicked onto the worker pool; every event
	// feeds the watchdog's progress record.
	local.RegisterHandler(task.NewKickEventHandler(app.runner, logger), events.TypeStarted, events.TypeResumed)
	local.RegisterHandler(app.watchdog)

	jwtService, err := auth.NewJWTService(cfg.Auth)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize JWT service: %w", err)
	}

	deps := api.RouterDeps{
		Writing: api.NewWritingHandler(app.writing, logger),
		Auth:    middleware.NewAuthMiddleware(jwtService),
		Logger:  logger,
	}
	if cfg.Metrics.Enabled {
		deps.Metrics = app.metrics.Handler()
		deps.MetricsPath = cfg.Metrics.Path
	}
	app.router = api.NewRouter(deps)

	logger.Info("application initialized")
	return app, nil
}

func newGenerator(ctx context.Context, cfg config.LLMConfig, logger *slog.Logger) (generation.Generator, error) {
	l := logger.With(slog.String("component", "llm_generator"))
	switch cfg.Provider {
	case "openai":
		return openai.NewGenerator(l, cfg)
	case "gemini", "":
		return gemini.NewGeminiGenerator(ctx, l, cfg)
	default:
		return nil, fmt.Errorf("%w: unknown provider %q", generation.ErrInvalidConfig, cfg.Provider)
	}
}

// eventPublisher is an external progress fan-out.
type eventPublisher interface {
	events.EventEmitter
	io.Closer
}

func newPublisher(cfg config.EventsConfig, logger *slog.Logger, m *metrics.Metrics) (eventPublisher, error) {
	switch cfg.Backend {
	case "redis":
		return events.NewRedisPublisher(cfg.RedisURL, cfg.RedisChannelPrefix, logger, m)
	case "rabbitmq":
		return events.NewAMQPPublisher(cfg.AMQPURL, cfg.AMQPExchange, logger, m)
	default:
		return nil, nil
	}
}

// Run serves HTTP and drives the runner and watchdog until ctx is done,
// then shuts the server down within shutdownTimeout.
func (app *application) Run(ctx context.Context, shutdownTimeout time.Duration) error {
	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", app.config.Server.Port),
		Handler:           app.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		app.logger.Info("starting server", slog.Int("port", app.config.Server.Port))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		return app.runner.Run(gctx)
	})

	g.Go(func() error {
		return app.watchdog.Run(gctx, app.config.Runtime.WatchdogInterval)
	})

	g.Go(func() error {
		<-gctx.Done()
		app.logger.Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown failed: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}
	app.logger.Info("server shutdown completed")
	return nil
}

// cleanup releases event publishers. The database is closed by the caller.
func (app *application) cleanup() {
	for _, p := range app.publishers {
		if err := p.Close(); err != nil {
			app.logger.Error("error closing event publisher", slog.String("error", err.Error()))
		}
	}
	app.logger.Info("application shutdown completed")
}

// Package app wires the application together: configuration, logging,
// metrics, services, HTTP router and background loops.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"docpulse/internal/agents"
	"docpulse/internal/archive"
	"docpulse/internal/config"
	"docpulse/internal/infrastructure"
	"docpulse/internal/middleware"
	"docpulse/internal/pipeline"
	"docpulse/internal/prompts"
	"docpulse/internal/services"
	"docpulse/internal/session"
	transport "docpulse/internal/transport/http"
	"docpulse/internal/upload"
	"docpulse/internal/watchdog"
	ws "docpulse/internal/websocket"
)

// Version is stamped at build time.
var Version = "dev"

// Session directories older than this are removed by the sweep loop.
const sessionMaxAge = 24 * time.Hour

const sweepInterval = time.Hour

// Application is the composed service.
type Application struct {
	cfg      *config.Config
	logger   *slog.Logger
	metrics  *infrastructure.Metrics
	registry *prometheus.Registry

	store      *session.Store
	hub        *ws.Hub
	watchdog   *watchdog.Watchdog
	extraction *services.ExtractionService
	health     *services.HealthService
	router     chi.Router
	server     *http.Server

	// closed by the watchdog to request process shutdown
	shutdownRequested chan struct{}
}

// New builds the application from configuration.
func New(cfg *config.Config) (*Application, error) {
	logger, err := infrastructure.InitializeLogger(cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("initialize logger: %w", err)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := infrastructure.NewMetrics(registry)

	app := &Application{
		cfg:               cfg,
		logger:            logger,
		metrics:           metrics,
		registry:          registry,
		shutdownRequested: make(chan struct{}),
	}

	app.store = session.NewStore(cfg.Paths.TempRoot, logger)
	app.hub = ws.NewHub(logger, metrics)

	if cfg.Watchdog.Enabled {
		app.watchdog = watchdog.New(
			cfg.Watchdog.IdleTimeout,
			cfg.Watchdog.CheckInterval,
			app.requestShutdown,
			logger,
		)
	}

	validator := upload.NewValidator(cfg.Upload.MaxSizeMB, cfg.Upload.Extensions, logger)
	factory := agents.NewFactory(cfg.Collaborator, logger)
	packager := archive.NewPackager(logger, metrics)

	app.extraction = services.NewExtractionService(
		app.store,
		validator,
		collaboratorFactory{factory},
		packager,
		app.hub,
		app.activityRecorder(),
		logger,
		metrics,
	)
	app.health = services.NewHealthService(Version, cfg.Paths.TempRoot, app.hub)

	app.setupRouter()
	app.server = &http.Server{
		Addr:           fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:        app.router,
		ReadTimeout:    cfg.Server.ReadTimeout,
		WriteTimeout:   cfg.Server.WriteTimeout,
		IdleTimeout:    cfg.Server.IdleTimeout,
		MaxHeaderBytes: cfg.Server.MaxHeaderBytes,
	}

	return app, nil
}

// collaboratorFactory adapts agents.Factory to the service interface.
type collaboratorFactory struct {
	factory *agents.Factory
}

func (f collaboratorFactory) ForSession(sess *session.Session) pipeline.Collaborator {
	return f.factory.ForSession(sess)
}

func (a *Application) activityRecorder() services.ActivityRecorder {
	if a.watchdog == nil {
		return nil
	}
	return a.watchdog
}

func (a *Application) requestShutdown() {
	select {
	case <-a.shutdownRequested:
	default:
		close(a.shutdownRequested)
	}
}

// setupRouter assembles the middleware chain and routes. The
// WebSocket route stays outside the response-wrapping middleware.
func (a *Application) setupRouter() {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)

	gallery := prompts.Load(a.cfg.Paths.PromptFile, a.logger)
	wsHandler := transport.NewWSHandler(a.hub, a.cfg.WebSocket, a.cfg.Server.AllowedOrigins, a.logger)
	r.Get("/ws", wsHandler.Serve)

	r.Group(func(r chi.Router) {
		r.Use(middleware.StructuredLogger(a.logger))
		r.Use(middleware.Recoverer(a.logger))
		r.Use(middleware.CORS(middleware.CORSConfig{
			AllowedOrigins: a.cfg.Server.AllowedOrigins,
			AllowedMethods: []string{"GET", "POST", "OPTIONS"},
			AllowedHeaders: []string{"Accept", "Content-Type", "Authorization"},
		}))
		if a.cfg.Server.RateLimit.Enabled {
			limiter := middleware.NewRateLimiter(
				a.cfg.Server.RateLimit.RPS,
				a.cfg.Server.RateLimit.Burst,
				a.logger,
			)
			r.Use(limiter.Handler)
		}
		r.Use(chimiddleware.Timeout(60 * time.Second))

		extraction := transport.NewExtractionHandler(a.extraction, a.cfg.Upload.MaxSizeMB, a.logger)
		promptsHandler := transport.NewPromptsHandler(gallery, a.logger)
		healthHandler := transport.NewHealthHandler(a.health)

		r.Route("/api", func(r chi.Router) {
			r.Mount("/extraction", extraction.Routes())
			r.Mount("/prompts", promptsHandler.Routes())
			r.Get("/health", healthHandler.Check)
		})
	})

	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(
		a.registry, promhttp.HandlerOpts{}))

	a.router = r
}

// Router exposes the assembled router, mainly for tests.
func (a *Application) Router() chi.Router {
	return a.router
}

// Run starts the server and background loops and blocks until ctx is
// cancelled, the watchdog expires, or a component fails.
func (a *Application) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	a.hub.Start()
	if a.watchdog != nil {
		a.watchdog.Start(ctx)
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		a.logger.Info("server listening",
			slog.String("addr", a.server.Addr),
			slog.String("version", Version))
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		a.sweepLoop(ctx)
		return nil
	})

	g.Go(func() error {
		select {
		case <-ctx.Done():
		case <-a.shutdownRequested:
			a.logger.Info("shutdown requested by watchdog")
			cancel()
		}
		return a.shutdown()
	})

	err := g.Wait()
	infrastructure.CloseLogFile()
	return err
}

// sweepLoop periodically removes expired session directories.
func (a *Application) sweepLoop(ctx context.Context) {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.store.Sweep(sessionMaxAge)
		}
	}
}

func (a *Application) shutdown() error {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
	defer cancel()

	a.logger.Info("shutting down")
	if a.watchdog != nil {
		a.watchdog.Stop()
	}
	a.hub.Stop()

	if err := a.server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	return nil
}

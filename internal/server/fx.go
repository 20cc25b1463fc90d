// Package server builds the gateway's dependencies and runs its listeners.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/dxywop/cf-clearance-scraper/internal/admission"
	"github.com/dxywop/cf-clearance-scraper/internal/api"
	"github.com/dxywop/cf-clearance-scraper/internal/browser"
	"github.com/dxywop/cf-clearance-scraper/internal/config"
	"github.com/dxywop/cf-clearance-scraper/internal/dispatcher"
	collyfetcher "github.com/dxywop/cf-clearance-scraper/internal/fetcher/colly"
	"github.com/dxywop/cf-clearance-scraper/internal/handler"
	"github.com/dxywop/cf-clearance-scraper/internal/journal"
	pgjournal "github.com/dxywop/cf-clearance-scraper/internal/journal/postgres"
	"github.com/dxywop/cf-clearance-scraper/internal/logging"
	"github.com/dxywop/cf-clearance-scraper/internal/ratelimit"
	"github.com/dxywop/cf-clearance-scraper/internal/validate"
)

// writeGrace lets a job that hit its deadline still get its 500 envelope out.
const writeGrace = 5 * time.Second

// App contains the application's dependencies.
type App struct {
	cfg        *config.Config
	logger     *zap.Logger
	apiServer  *api.Server
	admin      http.Handler
	accountant *admission.Accountant
	pool       *browser.Pool
	ring       *journal.Ring
	pgJournal  *pgjournal.Store
}

// NewApp creates a new App with the given configuration.
func NewApp(cfg *config.Config, logger *zap.Logger) (*App, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	logger = logging.OrNop(logger)
	logger.Info("creating application",
		zap.Int("port", cfg.Server.Port),
		zap.Int("browser_limit", cfg.Browser.Limit),
		zap.Duration("timeout", cfg.RequestTimeout()),
		zap.Bool("skip_launch", cfg.Browser.SkipLaunch),
		zap.Bool("auth_enabled", cfg.AuthEnabled()),
	)
	return &App{
		cfg:    cfg,
		logger: logger,
	}, nil
}

// Build creates the application's dependencies.
func Build(ctx context.Context, cfg *config.Config) (*App, error) {
	logger, err := logging.New(cfg.Logging.Development, cfg.Logging.Level)
	if err != nil {
		return nil, fmt.Errorf("logger init failed: %w", err)
	}
	zap.ReplaceGlobals(logger)
	return BuildWithLogger(ctx, cfg, logger)
}

// BuildWithLogger is Build with a caller-supplied logger.
func BuildWithLogger(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	app, err := NewApp(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("app init failed: %w", err)
	}

	validator, err := validate.New()
	if err != nil {
		return nil, fmt.Errorf("validator init failed: %w", err)
	}

	recorder, err := setupJournal(ctx, app)
	if err != nil {
		return nil, err
	}

	readiness, handlers := setupHandlers(app)
	app.accountant = admission.New(cfg.Browser.Limit, readiness)
	app.logger.Info("handlers configured", zap.Stringer("modes", handlers))

	dispatch := dispatcher.New(handlers, cfg.RequestTimeout(), app.logger)
	app.apiServer = api.NewServer(validator, app.accountant, dispatch, recorder, *cfg, app.logger)
	app.admin = api.NewAdminHandler(app.accountant, app.ring, app.logger)
	return app, nil
}

func setupJournal(ctx context.Context, app *App) (journal.Recorder, error) {
	app.ring = journal.NewRing(app.cfg.Journal.RingSize)
	if app.cfg.Journal.DSN == "" {
		app.logger.Info("journal kept in memory only", zap.Int("ring_size", app.cfg.Journal.RingSize))
		return app.ring, nil
	}
	store, err := pgjournal.NewStore(ctx, pgjournal.Config{
		DSN:   app.cfg.Journal.DSN,
		Table: app.cfg.Journal.Table,
	})
	if err != nil {
		return nil, fmt.Errorf("journal store init failed: %w", err)
	}
	if err := store.EnsureSchema(ctx); err != nil {
		store.Close()
		return nil, fmt.Errorf("journal schema init failed: %w", err)
	}
	app.pgJournal = store
	app.logger.Info("postgres journal initialized", zap.String("table", app.cfg.Journal.Table))
	return journal.Multi{app.ring, store}, nil
}

func setupHandlers(app *App) (admission.Readiness, dispatcher.Handlers) {
	opts := handler.Options{}
	if app.cfg.RateLimit.RPS > 0 {
		opts.Limiter = ratelimit.New(ratelimit.Config{
			RPS:   app.cfg.RateLimit.RPS,
			Burst: app.cfg.RateLimit.Burst,
		})
		app.logger.Info("rate limiter enabled",
			zap.Float64("rps", app.cfg.RateLimit.RPS),
			zap.Int("burst", app.cfg.RateLimit.Burst),
		)
	}

	if app.cfg.Browser.SkipLaunch {
		app.logger.Warn("browser launch skipped, only source jobs are served over plain HTTP")
		fetcher := collyfetcher.New(collyfetcher.Config{
			UserAgent: app.cfg.Browser.UserAgent,
			Timeout:   app.cfg.RequestTimeout(),
		})
		return admission.AlwaysReady, dispatcher.Handlers{
			Source: handler.NewHTTPSource(fetcher, opts),
		}
	}

	app.pool = browser.New(browser.Config{
		Headless:    app.cfg.Browser.Headless,
		ExecPath:    app.cfg.Browser.ExecPath,
		UserAgent:   app.cfg.Browser.UserAgent,
		LaunchRetry: app.cfg.LaunchRetry(),
	}, app.logger)
	b := handler.FromPool(app.pool)
	return app.pool, dispatcher.Handlers{
		Source:       handler.NewSource(b, opts),
		TurnstileMin: handler.NewTurnstileMin(b, opts),
		TurnstileMax: handler.NewTurnstileMax(b, opts),
		WAFSession:   handler.NewWAFSession(b, opts),
	}
}

// Handler returns the public gateway handler.
func (a *App) Handler() http.Handler {
	return a.apiServer.Handler()
}

// AdminHandler returns the operator handler.
func (a *App) AdminHandler() http.Handler {
	return a.admin
}

// Run starts the application and blocks until the context is canceled.
func (a *App) Run(ctx context.Context) error {
	a.logger.Info("application started")
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if a.pool != nil {
		go func() {
			if err := a.pool.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				a.logger.Error("browser never became ready", zap.Error(err))
			}
		}()
	}

	timeout := a.cfg.RequestTimeout()
	servers := []*http.Server{{
		Addr:              fmt.Sprintf(":%d", a.cfg.Server.Port),
		Handler:           a.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       timeout,
		WriteTimeout:      timeout + writeGrace,
	}}
	if a.cfg.Metrics.Addr != "" {
		servers = append(servers, &http.Server{
			Addr:              a.cfg.Metrics.Addr,
			Handler:           a.AdminHandler(),
			ReadHeaderTimeout: 5 * time.Second,
		})
	}

	for _, srv := range servers {
		go func(srv *http.Server) {
			a.logger.Info("http server started", zap.String("addr", srv.Addr))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				a.logger.Error("http server error", zap.String("addr", srv.Addr), zap.Error(err))
				stop()
			}
		}(srv)
	}

	<-ctx.Done()
	a.logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout+writeGrace)
	defer cancel()

	for _, srv := range servers {
		if err := srv.Shutdown(shutdownCtx); err != nil {
			a.logger.Error("server shutdown error", zap.String("addr", srv.Addr), zap.Error(err))
		}
	}

	return a.Close(shutdownCtx)
}

// Close gracefully shuts down the application.
func (a *App) Close(_ context.Context) error {
	if a.pool != nil {
		a.pool.Close()
	}
	if a.pgJournal != nil {
		a.pgJournal.Close()
	}
	a.logger.Info("shutdown complete")
	if err := a.logger.Sync(); err != nil {
		a.logger.Debug("logger sync failed", zap.Error(err))
	}
	return nil
}

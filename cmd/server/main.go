package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/Termdamp/MatchMixer/internal/adapters/http/api"
	"github.com/Termdamp/MatchMixer/internal/adapters/http/swagger"
	app "github.com/Termdamp/MatchMixer/internal/app"
	"github.com/Termdamp/MatchMixer/internal/config"
	"github.com/Termdamp/MatchMixer/pkg/logger"
	"github.com/Termdamp/MatchMixer/pkg/metrics"
)

// HTTP server timeout constants. Read and write timeouts stay unset since
// websocket streams outlive any single request deadline.
const (
	idleTimeout           = 60 * time.Second
	readHeaderTimeout     = 5 * time.Second
	shutdownTimeout       = 30 * time.Second
	systemMetricsInterval = 10 * time.Second
)

func main() {
	// Root context with cancel on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Load configuration (defaults -> dotenv -> optional file -> env)
	cfg, err := config.Load(ctx)
	if err != nil {
		// Logger isn't configured yet
		os.Stderr.WriteString("failed to load config: " + err.Error() + "\n")
		os.Exit(1)
	}

	if err := logger.Init(logger.WithFormat(cfg.LogFormat)); err != nil {
		os.Stderr.WriteString("failed to initialize logging: " + err.Error() + "\n")
		os.Exit(1)
	}
	log := logger.Get()

	// Apply configured log level (fallback to info on invalid input)
	if err := logger.SetLevelString(cfg.LogLevel); err != nil {
		log.Warn(ctx, "invalid log_level; falling back to info", logger.String("log_level", cfg.LogLevel), logger.Error(err))
		_ = logger.SetLevelString("info")
	}

	if err := configureMetrics(cfg); err != nil {
		log.Error(ctx, "invalid metrics settings", logger.Error(err))
		os.Exit(1)
	}

	if err := run(ctx, cfg, log); err != nil {
		log.Error(ctx, "server exited", logger.Error(err))
		os.Exit(1)
	}
}

// run starts the lobby service and serves HTTP until ctx is cancelled.
func run(ctx context.Context, cfg *config.Config, log logger.Logger) error {
	svc := app.New(
		app.WithConfig(cfg),
		app.WithLogger(log.Named("lobby")),
	)
	if err := svc.Start(ctx); err != nil {
		return err
	}
	defer svc.Stop()

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           newRouter(ctx, svc, cfg, log),
		IdleTimeout:       idleTimeout,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info(gctx, "starting HTTP server", logger.String("addr", cfg.Addr), logger.String("store", cfg.StoreDriver))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		startSystemMetricsUpdater(gctx)
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		log.Info(gctx, "shutting down server...")

		// Graceful shutdown with timeout
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error(shutdownCtx, "server shutdown failed", logger.Error(err))
			return err
		}
		log.Info(shutdownCtx, "server stopped")
		return nil
	})

	return g.Wait()
}

// newRouter mounts the docs and lobby routes.
func newRouter(ctx context.Context, svc *app.Service, cfg *config.Config, log logger.Logger) chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	swagger.Register(ctx, r)
	api.NewServer(svc,
		api.WithLogger(log.Named("http")),
		api.WithWSWriteTimeout(cfg.WSWriteTimeout()),
		api.WithWSPingInterval(cfg.WSPingInterval()),
	).Register(ctx, r)
	return r
}

// configureMetrics applies the configured metric naming before anything records.
func configureMetrics(cfg *config.Config) error {
	labels, err := cfg.ConstLabels()
	if err != nil {
		return err
	}
	metrics.Configure(
		metrics.WithNamespace(cfg.MetricsNamespace),
		metrics.WithSubsystem(cfg.MetricsSubsystem),
		metrics.WithConstLabels(labels),
	)
	return nil
}

// startSystemMetricsUpdater updates system metrics until ctx is done.
func startSystemMetricsUpdater(ctx context.Context) {
	ticker := time.NewTicker(systemMetricsInterval)
	defer ticker.Stop()

	updateSystemMetrics()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			updateSystemMetrics()
		}
	}
}

func updateSystemMetrics() {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	metrics.UpdateSystemMemoryUsage(m.Alloc)
	metrics.UpdateSystemGoroutineCount(runtime.NumGoroutine())
}

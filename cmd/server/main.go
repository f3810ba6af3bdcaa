package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/datamart/webapp/internal/api"
	"github.com/datamart/webapp/internal/config"
	"github.com/datamart/webapp/internal/coordinator"
	dmlog "github.com/datamart/webapp/internal/log"
	"github.com/datamart/webapp/internal/metrics"
	"github.com/datamart/webapp/internal/profiler"
	"github.com/datamart/webapp/internal/storage"
	"github.com/datamart/webapp/internal/upload"
	"github.com/datamart/webapp/internal/web"
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Version info (set during build)
var (
	Version   = "dev"
	BuildTime = "unknown"
)

const shutdownTimeout = 10 * time.Second

func main() {
	configPath := pflag.StringP("config", "c", "datamart.yaml", "Path to the YAML configuration file")
	pflag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	level, err := dmlog.ParseLevel(cfg.Log.Level)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid log level: %v\n", err)
		os.Exit(1)
	}
	log := dmlog.InitLog(level)
	defer func() { _ = log.Sync() }()

	if err := run(cfg, *configPath, log); err != nil {
		log.Fatal("server stopped", zap.Error(err))
	}
}

func run(cfg *config.AppConfig, configPath string, log *zap.Logger) error {
	if err := cfg.EnsureDirectories(); err != nil {
		return fmt.Errorf("creating directories: %w", err)
	}

	store, err := storage.NewLocalStore(cfg.Storage.UploadsDirectory,
		storage.WithPersistence(cfg.Storage.EnablePersistence),
		storage.WithLogger(log))
	if err != nil {
		return fmt.Errorf("initializing storage: %w", err)
	}

	prof, err := profiler.New(profiler.WithTempDir(cfg.Storage.TempDirectory), profiler.WithLogger(log))
	if err != nil {
		return fmt.Errorf("initializing profiler: %w", err)
	}
	defer prof.Close()

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	mt := metrics.New(registry)

	coord := coordinator.New(
		coordinator.WithStorage(store),
		coordinator.WithMetrics(mt),
		coordinator.WithLogger(log))

	stored, err := store.List(0)
	if err != nil {
		return fmt.Errorf("listing stored datasets: %w", err)
	}
	if n := coord.Restore(upload.Source, stored); n > 0 {
		log.Info("restored datasets from storage", zap.Int("count", n))
	}

	fetcher := &http.Client{Timeout: cfg.Processing.FetchTimeout}
	uploadMgr := upload.NewManager(store, prof, coord,
		upload.WithLogger(log),
		upload.WithMetrics(mt),
		upload.WithHTTPClient(fetcher))

	renderer, err := web.NewRenderer()
	if err != nil {
		return fmt.Errorf("loading templates: %w", err)
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Renderer = renderer

	mwCfg := api.MiddlewareConfig{
		Log:          log,
		BodyLimit:    cfg.Server.BodyLimit,
		AllowOrigins: cfg.Server.AllowOrigins,
		XSRFSecure:   cfg.Server.XSRFSecure,
	}
	if cfg.Log.RequestLogging {
		mwCfg.RequestLogger = dmlog.RequestLogger(log, "http")
	}
	api.SetupMiddleware(e, mwCfg)

	api.RegisterRoutes(e, api.NewHandlers(&api.Dependencies{
		Coordinator:    coord,
		Profiler:       prof,
		UploadMgr:      uploadMgr,
		Store:          store,
		HTTPClient:     fetcher,
		Metrics:        mt,
		Gatherer:       registry,
		Log:            log,
		Version:        Version,
		RefreshSeconds: 5,
	}))

	srv := &http.Server{
		Addr:         cfg.GetServerAddr(),
		Handler:      e,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	log.Info("starting datamart server",
		zap.String("version", Version),
		zap.String("buildTime", BuildTime),
		zap.String("config", configPath),
		zap.String("listen", "http://"+cfg.GetServerAddr()),
		zap.String("dataDir", cfg.Storage.DataDirectory))

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGHUP, syscall.SIGTERM, syscall.SIGQUIT)
	defer cancel()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serving http: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		return uploadMgr.RunCleanup(ctx, cfg.Processing.CleanupInterval, cfg.Processing.JobMaxAge)
	})
	g.Go(func() error {
		<-ctx.Done()
		log.Info("shutting down")
		shutdownCtx, done := context.WithTimeout(context.Background(), shutdownTimeout)
		defer done()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutting down http server: %w", err)
		}
		uploadMgr.Wait()
		return nil
	})
	return g.Wait()
}

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

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/okian/podium/internal/adapters/repository"
	app "github.com/okian/podium/internal/app"
	"github.com/okian/podium/internal/config"
	"github.com/okian/podium/pkg/logger"
	"github.com/okian/podium/pkg/metrics"
)

// HTTP server and background loop constants.
const (
	readTimeout           = 10 * time.Second
	writeTimeout          = 10 * time.Second
	idleTimeout           = 60 * time.Second
	readHeaderTimeout     = 5 * time.Second
	shutdownTimeout       = 30 * time.Second
	systemMetricsInterval = 10 * time.Second
	badgerGCDiscardRatio  = 0.5
)

type poolReporter interface {
	ReportPoolStats()
}

type garbageCollector interface {
	RunGC(discardRatio float64) error
}

func main() {
	os.Exit(run())
}

func run() int {
	if err := logger.Init(); err != nil {
		os.Stderr.WriteString("failed to initialize logging: " + err.Error() + "\n")
		return 1
	}
	defer func() { _ = logger.Sync() }()

	// Root context with cancel on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Load configuration (defaults -> optional file -> env)
	cfg, err := config.Load(ctx)
	if err != nil {
		os.Stderr.WriteString("failed to load config: " + err.Error() + "\n")
		return 1
	}

	if err := logger.InitWithFormat(cfg.LogFormat); err != nil {
		os.Stderr.WriteString("failed to initialize logging: " + err.Error() + "\n")
		return 1
	}
	log := logger.Get()
	if err := logger.SetLevelString(cfg.LogLevel); err != nil {
		log.Warn(ctx, "invalid log_level; falling back to info", logger.String("log_level", cfg.LogLevel), logger.Error(err))
		_ = logger.SetLevelString("info")
	}

	metrics.Configure(app.MetricsOptions(cfg)...)
	if cfg.MetricsAddr != "" {
		srv := startMetricsServer(ctx, cfg.MetricsAddr, log)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				log.Error(ctx, "metrics server shutdown failed", logger.Error(err))
			}
		}()
	}

	svc, err := app.NewFromConfig(ctx, cfg, app.WithLogger(log.Named("service")))
	if err != nil {
		log.Error(ctx, "failed to start service", logger.Error(err))
		return 1
	}
	defer func() {
		if err := svc.Close(); err != nil {
			log.Error(ctx, "failed to close service", logger.Error(err))
		}
	}()

	src, closeSource, err := app.SourceFromConfig(cfg)
	if err != nil {
		log.Error(ctx, "failed to open event source", logger.Error(err))
		return 1
	}
	defer func() { _ = closeSource() }()

	loopCtx, cancelLoop := context.WithCancel(ctx)
	defer cancelLoop()
	go startSystemMetricsUpdater(loopCtx, svc.Backend(), log)

	summary, err := svc.Run(ctx, src)
	log.Info(ctx, "run summary",
		logger.String("run_id", summary.RunID.String()),
		logger.Int64("events", summary.Events),
		logger.Int64("users", summary.Users),
		logger.Int("partitions", summary.Partitions),
		logger.Any("outcomes", summary.Outcomes),
		logger.Duration("duration", summary.Duration),
	)
	if err != nil {
		return 1
	}
	return 0
}

func startMetricsServer(ctx context.Context, addr string, log logger.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(metrics.GetRegistry(), promhttp.HandlerOpts{}))

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
		ReadHeaderTimeout: readHeaderTimeout,
	}
	go func() {
		log.Info(ctx, "starting metrics server", logger.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error(ctx, "metrics server failed", logger.Error(err))
		}
	}()
	return srv
}

// startSystemMetricsUpdater refreshes process and storage gauges until ctx ends.
func startSystemMetricsUpdater(ctx context.Context, backend repository.Backend, log logger.Logger) {
	ticker := time.NewTicker(systemMetricsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			updateSystemMetrics(ctx, backend, log)
		}
	}
}

func updateSystemMetrics(ctx context.Context, backend repository.Backend, log logger.Logger) {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	metrics.UpdateSystemMemoryUsage(m.Alloc)
	metrics.UpdateSystemGoroutineCount(runtime.NumGoroutine())

	if r, ok := backend.(poolReporter); ok {
		r.ReportPoolStats()
	}
	if gc, ok := backend.(garbageCollector); ok {
		if err := gc.RunGC(badgerGCDiscardRatio); err != nil {
			log.Debug(ctx, "value log gc skipped", logger.Error(err))
		}
	}
}

package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	service "github.com/okian/stationqc/internal/app"
	"github.com/okian/stationqc/internal/config"
	"github.com/okian/stationqc/internal/synth"
	"github.com/okian/stationqc/pkg/logger"
	"github.com/okian/stationqc/pkg/metrics"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// HTTP server timeout constants.
const (
	readTimeout       = 10 * time.Second
	writeTimeout      = 10 * time.Second
	idleTimeout       = 60 * time.Second
	readHeaderTimeout = 5 * time.Second
	shutdownTimeout   = 30 * time.Second
)

func main() {
	// Root context with cancel on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Load configuration (defaults -> optional file -> env)
	cfg, err := config.Load()
	if err != nil {
		// Use stderr for initialization errors since logger isn't available yet
		os.Stderr.WriteString("failed to load config: " + err.Error() + "\n")
		os.Exit(1)
	}

	if err := logger.Init(logger.WithFormat(cfg.LogFormat)); err != nil {
		os.Stderr.WriteString("failed to initialize logging: " + err.Error() + "\n")
		os.Exit(1)
	}
	// Validated by config.Load.
	_ = logger.SetLevelString(cfg.LogLevel)
	log := logger.Get()

	var srv *http.Server
	if cfg.MetricsAddr != "" {
		srv = newMetricsServer(cfg.MetricsAddr)
		go func() {
			log.Info(ctx, "starting metrics server", logger.String("addr", cfg.MetricsAddr))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error(ctx, "metrics server failed", logger.Error(err))
			}
		}()
	}

	if err := run(ctx, cfg, log); err != nil {
		log.Error(ctx, "qc run failed", logger.Error(err))
		shutdown(log, srv)
		os.Exit(1)
	}

	if srv != nil {
		// Keep serving the run's metrics until asked to stop.
		<-ctx.Done()
		shutdown(log, srv)
	}
}

// run generates the configured synthetic network and assesses it once.
func run(ctx context.Context, cfg *config.Config, log logger.Logger) error {
	suite, err := cfg.Suite()
	if err != nil {
		return err
	}
	metric, err := cfg.SpatialMetric()
	if err != nil {
		return err
	}
	network, err := synth.Generate(cfg.Synth)
	if err != nil {
		return err
	}

	svc, err := service.New(suite,
		service.WithLogger(log),
		service.WithWorkerCount(cfg.WorkerCount),
		service.WithQueueSize(cfg.QueueSize),
		service.WithMetric(metric),
		service.WithTopN(cfg.TopN),
	)
	if err != nil {
		return err
	}

	report, err := svc.Run(ctx, service.Batch{
		Stations:     network.Stations,
		Observations: network.Observations,
	})
	if err != nil {
		return err
	}

	for _, inj := range network.Injected {
		log.Info(ctx, "injected fault",
			logger.Stringer("kind", inj.Kind),
			logger.String("station", inj.StationID),
			logger.String("time", inj.Time.Format(time.RFC3339)),
		)
	}
	for _, e := range report.Worst {
		a := e.Assessment
		log.Info(ctx, "flagged",
			logger.Int("rank", e.Rank),
			logger.String("station", a.Observation.StationID),
			logger.String("time", a.Observation.Time.Format(time.RFC3339)),
			logger.Float64("value", a.Observation.Value),
			logger.Stringer("flag", a.Flag),
			logger.Float64("score", a.Score()),
		)
	}
	return nil
}

func newMetricsServer(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(metrics.GetRegistry(), promhttp.HandlerOpts{}))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	return &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
		ReadHeaderTimeout: readHeaderTimeout,
	}
}

func shutdown(log logger.Logger, srv *http.Server) {
	if srv == nil {
		return
	}
	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error(shutdownCtx, "metrics server shutdown failed", logger.Error(err))
		return
	}
	log.Info(shutdownCtx, "metrics server stopped")
}

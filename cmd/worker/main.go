package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/joshu-sajeev/promptrelay/internal/browser"
	"github.com/joshu-sajeev/promptrelay/internal/client"
	"github.com/joshu-sajeev/promptrelay/internal/config"
	"github.com/joshu-sajeev/promptrelay/internal/logging"
	"github.com/joshu-sajeev/promptrelay/internal/metrics"
	"github.com/joshu-sajeev/promptrelay/internal/pool"
	"github.com/joshu-sajeev/promptrelay/internal/rotation"
	"github.com/joshu-sajeev/promptrelay/internal/session"
	"github.com/joshu-sajeev/promptrelay/internal/worker"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.LoadWorkerConfig(ctx)
	if err != nil {
		logging.New("info", "json").Fatal().Err(err).Msg("failed to load config")
	}
	logger := logging.New(cfg.Log.Level, cfg.Log.Format)

	script, err := browser.LoadScript(cfg.PageScriptPath)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load page script")
	}

	queue := client.New(cfg.ServerURL, cfg.APIKey)
	if err := queue.Health(ctx); err != nil {
		logger.Warn().Err(err).Str("server", cfg.ServerURL).Msg("queue server not reachable yet")
	}

	var opts []session.Option
	if cfg.Rotation.Enabled {
		rotator := rotation.NewRotator(rotation.NewNordVPN(), cfg.Rotation, logger)
		opts = append(opts, session.WithRotator(rotator, cfg.Rotation.TriggerMode))
	}

	baseID := cfg.WorkerID
	if baseID == "" {
		baseID = "worker-" + uuid.NewString()[:8]
	}

	ids := pool.WorkerIDs(baseID, len(cfg.CDPEndpoints))
	match := browser.TargetMatch{
		Index:    cfg.CDPTargetIndex,
		Filter:   cfg.CDPTargetMatch,
		ExactURL: cfg.CDPExactURL,
	}

	workers := make([]*worker.Worker, 0, len(cfg.CDPEndpoints))
	for i, endpoint := range cfg.CDPEndpoints {
		dialer := browser.NewDialer(endpoint, match, script, cfg.CDPTimeout, logger)
		runner := session.NewRunner(dialer, cfg.Session, logger, opts...)
		workers = append(workers, worker.NewWorker(ids[i], queue, runner, cfg.PollInterval, logger))
		logger.Info().Str("worker_id", ids[i]).Str("endpoint", endpoint).Msg("worker configured")
	}

	var metricsSrv *http.Server
	if cfg.MetricsAddr != "" {
		metrics.MustRegister()
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		metricsSrv = &http.Server{Addr: cfg.MetricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error().Err(err).Msg("metrics server error")
			}
		}()
	}

	wp := pool.NewWorkerPool(workers, logger)
	wp.Start(ctx)

	<-ctx.Done()
	logger.Info().Msg("shutdown requested, waiting for in-flight jobs")
	wp.Stop()

	if metricsSrv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = metricsSrv.Shutdown(shutdownCtx)
	}
	logger.Info().Msg("shutdown complete")
}

package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joshu-sajeev/promptrelay/internal/config"
	"github.com/joshu-sajeev/promptrelay/internal/job"
	"github.com/joshu-sajeev/promptrelay/internal/logging"
	"github.com/joshu-sajeev/promptrelay/internal/metrics"
	"github.com/joshu-sajeev/promptrelay/internal/reaper"
	"github.com/joshu-sajeev/promptrelay/internal/storage/redisstore"
	"github.com/joshu-sajeev/promptrelay/internal/storage/relational"
	"github.com/joshu-sajeev/promptrelay/internal/webhook"
	"github.com/joshu-sajeev/promptrelay/middleware"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
)

const shutdownGrace = 15 * time.Second

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.LoadAPIConfig(ctx)
	if err != nil {
		logging.New("info", "json").Fatal().Err(err).Msg("failed to load config")
	}
	logger := logging.New(cfg.Log.Level, cfg.Log.Format)

	store, closeStore, err := openStore(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Str("driver", cfg.StoreDriver).Msg("failed to open job store")
	}
	defer closeStore()

	metrics.MustRegister()

	notifier := webhook.NewNotifier(store, cfg.WebhookTimeout, logger)
	service := job.NewJobService(store, notifier, logger)
	handler := job.NewJobHandler(service)

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(middleware.Stack(logger, middleware.StackConfig{
		RateLimitRPS:   cfg.RateLimitRPS,
		RateLimitBurst: cfg.RateLimitBurst,
		RequestTimeout: cfg.RequestTimeout,
	})...)
	job.RegisterRoutes(r, handler, cfg.APIKey)

	rp := reaper.New(store, cfg.CleanupEvery, time.Duration(cfg.RetentionHours)*time.Hour, logger)
	go func() { _ = rp.Run(ctx) }()

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logger.Info().Str("addr", srv.Addr).Str("driver", cfg.StoreDriver).Msg("queue server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("http server error")
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info().Msg("shutdown requested")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("http shutdown")
	}

	// deliveries started before shutdown get their full retry budget
	drainCtx, cancelDrain := context.WithTimeout(context.Background(), notifier.DrainTimeout())
	defer cancelDrain()
	if err := notifier.Wait(drainCtx); err != nil {
		logger.Warn().Err(err).Msg("webhook deliveries still in flight")
	}
	logger.Info().Msg("shutdown complete")
}

func openStore(ctx context.Context, cfg *config.APIConfig, logger *zerolog.Logger) (job.JobRepoInterface, func(), error) {
	switch cfg.StoreDriver {
	case config.StoreDriverRedis:
		client, err := redisstore.Connect(ctx, redisstore.Config{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			Prefix:   cfg.Redis.Prefix,
		})
		if err != nil {
			return nil, nil, err
		}
		return redisstore.NewJobStore(client, cfg.Redis.Prefix), func() { _ = client.Close() }, nil

	case config.StoreDriverSQLite:
		db, err := relational.OpenSQLite(cfg.SQLitePath, relational.ParseLogLevel("warn"))
		if err != nil {
			return nil, nil, err
		}
		if err := relational.Migrate(db); err != nil {
			return nil, nil, err
		}
		return relational.NewJobRepository(db), closer(db), nil

	default:
		dbCfg, err := relational.LoadConfigFromEnv(ctx)
		if err != nil {
			return nil, nil, err
		}
		db, err := relational.ConnectDB(ctx, dbCfg, logger)
		if err != nil {
			return nil, nil, err
		}
		if cfg.AutoMigrate {
			if err := relational.Migrate(db); err != nil {
				return nil, nil, err
			}
		}
		return relational.NewJobRepository(db), closer(db), nil
	}
}

func closer(db *gorm.DB) func() {
	return func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	}
}

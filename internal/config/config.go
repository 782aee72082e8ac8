package config

import (
	"context"
	"fmt"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/sethvargo/go-envconfig"
)

// APIConfig configures the queue server.
type APIConfig struct {
	Port           string        `env:"API_PORT,default=8000"`
	APIKey         string        `env:"API_KEY"`
	StoreDriver    string        `env:"STORE_DRIVER,default=postgres"`
	SQLitePath     string        `env:"SQLITE_PATH"`
	AutoMigrate    bool          `env:"AUTO_MIGRATE,default=true"`
	Redis          RedisConfig
	RetentionHours int           `env:"RETENTION_HOURS,default=24"`
	CleanupEvery   time.Duration `env:"CLEANUP_INTERVAL,default=1h"`
	RateLimitRPS   float64       `env:"RATE_LIMIT_RPS,default=20"`
	RateLimitBurst int           `env:"RATE_LIMIT_BURST,default=40"`
	RequestTimeout time.Duration `env:"REQUEST_TIMEOUT,default=15s"`
	WebhookTimeout time.Duration `env:"WEBHOOK_TIMEOUT,default=10s"`
	Log            LogConfig
}

type RedisConfig struct {
	Addr     string `env:"REDIS_ADDR"`
	Password string `env:"REDIS_PASSWORD"`
	DB       int    `env:"REDIS_DB,default=0"`
	Prefix   string `env:"REDIS_PREFIX,default=relay"`
}

type LogConfig struct {
	Level  string `env:"LOG_LEVEL,default=info"`
	Format string `env:"LOG_FORMAT,default=json"`
}

// WorkerConfig configures a worker process.
type WorkerConfig struct {
	ServerURL      string        `env:"RELAY_SERVER_URL"`
	APIKey         string        `env:"API_KEY"`
	WorkerID       string        `env:"WORKER_ID"`
	PollInterval   time.Duration `env:"POLL_INTERVAL,default=3s"`
	CDPEndpoints   []string      `env:"CDP_ENDPOINTS,default=http://localhost:9222"`
	CDPTargetMatch string        `env:"CDP_TARGET_FILTER"`
	CDPExactURL    string        `env:"CDP_EXACT_URL"`
	CDPTargetIndex int           `env:"CDP_TARGET_INDEX,default=-1"`
	CDPTimeout     time.Duration `env:"CDP_TIMEOUT,default=30s"`
	PageScriptPath string        `env:"PAGE_SCRIPT_PATH"`
	Session        SessionConfig
	Rotation       RotationConfig
	MetricsAddr    string `env:"METRICS_ADDR"`
	Log            LogConfig
}

type SessionConfig struct {
	TargetURL        string        `env:"TARGET_URL,default=https://chatgpt.com/"`
	ModelParam       string        `env:"MODEL_PARAM,default=model"`
	ModelValueFormat string        `env:"MODEL_VALUE_FORMAT,default=gpt-5-%s"`
	ResultTimeout    time.Duration `env:"RESULT_TIMEOUT,default=5m"`
	ResultPoll       time.Duration `env:"RESULT_POLL_INTERVAL,default=1s"`
	NavigationSettle time.Duration `env:"NAVIGATION_SETTLE,default=3s"`
}

type RotationConfig struct {
	Enabled        bool          `env:"ROTATION_ENABLED,default=false"`
	TriggerMode    string        `env:"ROTATION_TRIGGER_MODE,default=search"`
	Region         string        `env:"ROTATION_REGION"`
	MaxRetries     int           `env:"ROTATION_MAX_RETRIES,default=2"`
	ConnectTimeout time.Duration `env:"ROTATION_CONNECT_TIMEOUT,default=20s"`
	RequireNew     bool          `env:"ROTATION_REQUIRE_NEW,default=true"`
}

// to help with testing
var envProcess = envconfig.Process

func LoadAPIConfig(ctx context.Context) (*APIConfig, error) {
	var cfg APIConfig
	if err := envProcess(ctx, &cfg); err != nil {
		return nil, fmt.Errorf("failed to process env config: %w", err)
	}

	if err := validateAPIConfig(&cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}

func LoadWorkerConfig(ctx context.Context) (*WorkerConfig, error) {
	var cfg WorkerConfig
	if err := envProcess(ctx, &cfg); err != nil {
		return nil, fmt.Errorf("failed to process env config: %w", err)
	}

	if err := validateWorkerConfig(&cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}

func validateAPIConfig(cfg *APIConfig) error {
	var errors []string

	if strings.TrimSpace(cfg.APIKey) == "" {
		errors = append(errors, "API_KEY is required")
	}

	switch cfg.StoreDriver {
	case StoreDriverPostgres:
		// connection settings are validated by the relational package
	case StoreDriverSQLite:
		if strings.TrimSpace(cfg.SQLitePath) == "" {
			errors = append(errors, "SQLITE_PATH is required when STORE_DRIVER=sqlite")
		}
	case StoreDriverRedis:
		if strings.TrimSpace(cfg.Redis.Addr) == "" {
			errors = append(errors, "REDIS_ADDR is required when STORE_DRIVER=redis")
		}
	default:
		errors = append(errors, fmt.Sprintf("STORE_DRIVER must be one of %s, %s, %s",
			StoreDriverPostgres, StoreDriverSQLite, StoreDriverRedis))
	}

	if cfg.RetentionHours < 0 {
		errors = append(errors, "RETENTION_HOURS must be non-negative")
	}
	if cfg.CleanupEvery <= 0 {
		errors = append(errors, "CLEANUP_INTERVAL must be positive")
	}
	if cfg.RateLimitRPS <= 0 || cfg.RateLimitBurst <= 0 {
		errors = append(errors, "RATE_LIMIT_RPS and RATE_LIMIT_BURST must be positive")
	}
	errors = append(errors, validateLog(cfg.Log)...)

	if len(errors) > 0 {
		return fmt.Errorf("%s", strings.Join(errors, "; "))
	}
	return nil
}

func validateWorkerConfig(cfg *WorkerConfig) error {
	var errors []string

	if strings.TrimSpace(cfg.APIKey) == "" {
		errors = append(errors, "API_KEY is required")
	}

	if strings.TrimSpace(cfg.ServerURL) == "" {
		errors = append(errors, "RELAY_SERVER_URL is required")
	} else if u, err := url.Parse(cfg.ServerURL); err != nil || u.Scheme == "" || u.Host == "" {
		errors = append(errors, "RELAY_SERVER_URL must be an absolute URL")
	}

	if strings.TrimSpace(cfg.PageScriptPath) == "" {
		errors = append(errors, "PAGE_SCRIPT_PATH is required")
	}

	if len(cfg.CDPEndpoints) == 0 {
		errors = append(errors, "CDP_ENDPOINTS must list at least one endpoint")
	}

	if cfg.PollInterval <= 0 {
		errors = append(errors, "POLL_INTERVAL must be positive")
	}
	if cfg.Session.ResultTimeout <= 0 || cfg.Session.ResultPoll <= 0 {
		errors = append(errors, "RESULT_TIMEOUT and RESULT_POLL_INTERVAL must be positive")
	}
	if !strings.Contains(cfg.Session.ModelValueFormat, "%s") {
		errors = append(errors, "MODEL_VALUE_FORMAT must contain %s")
	}
	if cfg.Rotation.MaxRetries < 0 {
		errors = append(errors, "ROTATION_MAX_RETRIES must be non-negative")
	}
	errors = append(errors, validateLog(cfg.Log)...)

	if len(errors) > 0 {
		return fmt.Errorf("%s", strings.Join(errors, "; "))
	}
	return nil
}

func validateLog(cfg LogConfig) []string {
	var errors []string
	if !slices.Contains([]string{"trace", "debug", "info", "warn", "error"}, strings.ToLower(cfg.Level)) {
		errors = append(errors, "LOG_LEVEL must be one of trace, debug, info, warn, error")
	}
	if !slices.Contains([]string{"json", "console"}, strings.ToLower(cfg.Format)) {
		errors = append(errors, "LOG_FORMAT must be json or console")
	}
	return errors
}

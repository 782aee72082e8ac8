package relational

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/joshu-sajeev/promptrelay/internal/logging"
	"github.com/sethvargo/go-envconfig"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm/logger"
)

func TestLoadConfigFromEnv(t *testing.T) {
	tests := []struct {
		name          string
		setupEnv      func(context.Context, any) error
		expectError   bool
		errorContains string
		validate      func(*testing.T, *Config)
	}{
		{
			name: "valid configuration",
			setupEnv: func(ctx context.Context, v any) error {
				cfg := v.(*Config)
				cfg.User = "relay"
				cfg.Password = "secret"
				cfg.Host = "localhost"
				cfg.Port = "5432"
				cfg.Database = "relaydb"
				cfg.MaxRetries = 10
				cfg.RetryDelay = 2 * time.Second
				cfg.LogLevelString = "info"
				return nil
			},
			validate: func(t *testing.T, cfg *Config) {
				assert.Equal(t, "relay", cfg.User)
				assert.Equal(t, 10, cfg.MaxRetries)
				assert.Equal(t, logger.Info, cfg.LogLevel)
			},
		},
		{
			name: "env processing fails",
			setupEnv: func(ctx context.Context, v any) error {
				return errors.New("env: POSTGRES_PORT: invalid syntax")
			},
			expectError:   true,
			errorContains: "failed to process env config",
		},
		{
			name: "validation fails",
			setupEnv: func(ctx context.Context, v any) error {
				cfg := v.(*Config)
				cfg.User = "relay"
				cfg.Host = "localhost"
				cfg.Database = "relaydb"
				cfg.Port = "99999"
				cfg.RetryDelay = time.Second
				return nil
			},
			expectError:   true,
			errorContains: "POSTGRES_PORT must be between 1 and 65535",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			originalEnvProcess := envProcess
			defer func() { envProcess = originalEnvProcess }()

			envProcess = func(ctx context.Context, v any, mus ...envconfig.Mutator) error {
				return tt.setupEnv(ctx, v)
			}

			cfg, err := LoadConfigFromEnv(context.Background())

			if tt.expectError {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errorContains)
				return
			}
			require.NoError(t, err)
			tt.validate(t, cfg)
		})
	}
}

func TestValidateConfig(t *testing.T) {
	valid := func() *Config {
		return &Config{
			User:       "user",
			Password:   "pass",
			Host:       "localhost",
			Port:       "5432",
			Database:   "db",
			MaxRetries: 10,
			RetryDelay: 2 * time.Second,
		}
	}

	tests := []struct {
		name          string
		mutate        func(*Config)
		errorContains []string
	}{
		{name: "valid config", mutate: func(*Config) {}},
		{
			name:          "empty user and database",
			mutate:        func(c *Config) { c.User = ""; c.Database = " " },
			errorContains: []string{"POSTGRES_USER is required", "POSTGRES_DB is required"},
		},
		{
			name:          "non numeric port",
			mutate:        func(c *Config) { c.Port = "abc" },
			errorContains: []string{"POSTGRES_PORT must be a valid number"},
		},
		{
			name:          "negative retries and huge delay",
			mutate:        func(c *Config) { c.MaxRetries = -1; c.RetryDelay = time.Hour },
			errorContains: []string{"DB_MAX_RETRIES must be non-negative", "DB_RETRY_DELAY must not exceed 10 minutes"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)

			err := validateConfig(cfg)
			if len(tt.errorContains) == 0 {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			for _, substr := range tt.errorContains {
				assert.Contains(t, err.Error(), substr)
			}
		})
	}
}

func TestSimplifyDBError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected string
	}{
		{
			name:     "password authentication failed",
			err:      errors.New("pq: password authentication failed for user"),
			expected: "invalid database credentials",
		},
		{
			name:     "pg auth error code",
			err:      fmt.Errorf("open: %w", &pgconn.PgError{Code: "28P01", Message: "nope"}),
			expected: "invalid database credentials",
		},
		{
			name:     "pg unknown database",
			err:      &pgconn.PgError{Code: "3D000"},
			expected: "database does not exist",
		},
		{
			name:     "i/o timeout",
			err:      errors.New("dial tcp: i/o timeout"),
			expected: "database connection timed out",
		},
		{
			name:     "connection refused",
			err:      errors.New("connect: connection refused"),
			expected: "cannot reach database server",
		},
		{
			name:     "SASL authentication error",
			err:      errors.New("SASL authentication failed"),
			expected: "authentication error",
		},
		{
			name:     "empty error message",
			err:      errors.New(""),
			expected: "database error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, simplifyDBError(tt.err))
		})
	}
}

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		input    string
		expected logger.LogLevel
	}{
		{"silent", logger.Silent},
		{"ERROR", logger.Error},
		{"warn", logger.Warn},
		{"info", logger.Info},
		{"verbose", logger.Warn},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, ParseLogLevel(tt.input))
		})
	}
}

func TestConfigDSN(t *testing.T) {
	cfg := &Config{
		User:     "myuser",
		Password: "mypassword",
		Host:     "db.example.com",
		Port:     "5432",
		Database: "mydb",
		SSLMode:  "disable",
	}

	assert.Equal(t,
		"host=db.example.com user=myuser password=mypassword dbname=mydb port=5432 sslmode=disable TimeZone=UTC",
		cfg.DSN(),
	)
}

func TestConnectDB_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	cfg := &Config{
		User:       "testuser",
		Password:   "testpass",
		Host:       "127.0.0.1",
		Port:       "1",
		Database:   "testdb",
		SSLMode:    "disable",
		MaxRetries: 3,
		RetryDelay: 100 * time.Millisecond,
		LogLevel:   logger.Silent,
	}

	_, err := ConnectDB(ctx, cfg, logging.Nop())
	assert.Error(t, err)
}

func TestOpenSQLite(t *testing.T) {
	db, err := OpenSQLite(":memory:", logger.Silent)
	require.NoError(t, err)
	require.NoError(t, Migrate(db))

	assert.True(t, db.Migrator().HasTable("jobs"))
	assert.True(t, db.Migrator().HasColumn("jobs", "continuation_url"))
	assert.True(t, db.Migrator().HasColumn("jobs", "webhook_delivered"))
}

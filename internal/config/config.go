// Package config handles application configuration from environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// FuzzyWeights holds the three weights used by the reconciliation fuzzy
// matcher. They must sum to 1.
type FuzzyWeights struct {
	Amount    float64
	Timestamp float64
	Metadata  float64
}

// Config holds all application configuration.
type Config struct {
	// Server settings
	APIHost  string
	APIPort  string
	Env      string // "development", "staging", "production"
	LogLevel string
	LogFormat string

	// Database
	DatabaseURL string

	// Ledger settings
	AllowOverdraft       bool
	MaxTransactionAmount string // decimal string, smallest-unit agnostic

	// Reconciliation settings (env prefix RECON_)
	AmountTolerancePercent    float64
	TimestampToleranceSeconds int
	FuzzyWeights              FuzzyWeights
	MinMatchScore             float64
	SchedulerEnabled          bool
	SchedulerHour             int
	ScheduledSources          []string
	ScheduledFilePathTemplate string // "{date}" is replaced with YYYY-MM-DD
	ScheduledBaseURL          string
	ScheduledAuthToken        string

	// Database pool settings
	DBMaxOpenConns    int
	DBMaxIdleConns    int
	DBConnMaxLifetime time.Duration

	// HTTP client/server timeouts
	HTTPTimeout      time.Duration
	StorageTimeout   time.Duration
	HTTPReadTimeout  time.Duration
	HTTPWriteTimeout time.Duration
	HTTPIdleTimeout  time.Duration

	// Observability
	OTLPEndpoint string // OpenTelemetry collector endpoint, empty = disabled
}

// Defaults mirror original_source/recon_engine/config.py's ReconSettings
// and spec.md §4.2/§4.8.
const (
	DefaultAPIHost  = "0.0.0.0"
	DefaultAPIPort  = "8080"
	DefaultEnv      = "development"
	DefaultLogLevel = "info"
	DefaultLogFormat = "text"

	DefaultMaxTransactionAmount = "1000000"

	DefaultAmountTolerancePercent    = 0.1
	DefaultTimestampToleranceSeconds = 300
	DefaultFuzzyWeightAmount         = 0.4
	DefaultFuzzyWeightTimestamp      = 0.3
	DefaultFuzzyWeightMetadata       = 0.3
	DefaultMinMatchScore             = 0.80
	DefaultSchedulerEnabled          = true
	DefaultSchedulerHour             = 2
	DefaultScheduledSources          = "bank_csv"

	DefaultDBMaxOpenConns    = 20
	DefaultDBMaxIdleConns    = 5
	DefaultDBConnMaxLifetime = 5 * time.Minute

	DefaultHTTPTimeout    = 30 * time.Second
	DefaultStorageTimeout = 60 * time.Second

	DefaultHTTPReadTimeout  = 10 * time.Second
	DefaultHTTPWriteTimeout = 30 * time.Second
	DefaultHTTPIdleTimeout  = 60 * time.Second
)

// Load reads configuration from environment variables. It loads a .env
// file if present (for local development).
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		APIHost:     getEnv("API_HOST", DefaultAPIHost),
		APIPort:     getEnv("API_PORT", DefaultAPIPort),
		Env:         getEnv("ENV", DefaultEnv),
		LogLevel:    getEnv("LOG_LEVEL", DefaultLogLevel),
		LogFormat:   getEnv("LOG_FORMAT", DefaultLogFormat),
		DatabaseURL: getEnv("DATABASE_URL", ""),

		AllowOverdraft:       getEnvBool("ALLOW_OVERDRAFT", false),
		MaxTransactionAmount: getEnv("MAX_TRANSACTION_AMOUNT", DefaultMaxTransactionAmount),

		AmountTolerancePercent:    getEnvFloat("RECON_AMOUNT_TOLERANCE_PERCENT", DefaultAmountTolerancePercent),
		TimestampToleranceSeconds: int(getEnvInt64("RECON_TIMESTAMP_TOLERANCE_SECONDS", DefaultTimestampToleranceSeconds)),
		FuzzyWeights: FuzzyWeights{
			Amount:    getEnvFloat("RECON_FUZZY_WEIGHT_AMOUNT", DefaultFuzzyWeightAmount),
			Timestamp: getEnvFloat("RECON_FUZZY_WEIGHT_TIMESTAMP", DefaultFuzzyWeightTimestamp),
			Metadata:  getEnvFloat("RECON_FUZZY_WEIGHT_METADATA", DefaultFuzzyWeightMetadata),
		},
		MinMatchScore:    getEnvFloat("RECON_MIN_MATCH_SCORE", DefaultMinMatchScore),
		SchedulerEnabled: getEnvBool("RECON_SCHEDULER_ENABLED", DefaultSchedulerEnabled),
		SchedulerHour:    int(getEnvInt64("RECON_SCHEDULER_HOUR", DefaultSchedulerHour)),
		ScheduledSources:          getEnvStringSlice("RECON_SCHEDULED_SOURCES", DefaultScheduledSources),
		ScheduledFilePathTemplate: getEnv("RECON_SCHEDULED_FILE_PATH_TEMPLATE", ""),
		ScheduledBaseURL:          getEnv("RECON_SCHEDULED_BASE_URL", ""),
		ScheduledAuthToken:        getEnv("RECON_SCHEDULED_AUTH_TOKEN", ""),

		DBMaxOpenConns:    int(getEnvInt64("DB_MAX_OPEN_CONNS", DefaultDBMaxOpenConns)),
		DBMaxIdleConns:    int(getEnvInt64("DB_MAX_IDLE_CONNS", DefaultDBMaxIdleConns)),
		DBConnMaxLifetime: getEnvDuration("DB_CONN_MAX_LIFETIME", DefaultDBConnMaxLifetime),

		HTTPTimeout:    getEnvDuration("HTTP_TIMEOUT_SECONDS", DefaultHTTPTimeout),
		StorageTimeout: getEnvDuration("STORAGE_TIMEOUT_SECONDS", DefaultStorageTimeout),

		HTTPReadTimeout:  getEnvDuration("HTTP_READ_TIMEOUT", DefaultHTTPReadTimeout),
		HTTPWriteTimeout: getEnvDuration("HTTP_WRITE_TIMEOUT", DefaultHTTPWriteTimeout),
		HTTPIdleTimeout:  getEnvDuration("HTTP_IDLE_TIMEOUT", DefaultHTTPIdleTimeout),

		OTLPEndpoint: getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that configuration values are internally consistent.
func (c *Config) Validate() error {
	port, err := strconv.Atoi(c.APIPort)
	if err != nil || port < 1 || port > 65535 {
		return fmt.Errorf("API_PORT must be a number between 1 and 65535, got %q", c.APIPort)
	}

	sum := c.FuzzyWeights.Amount + c.FuzzyWeights.Timestamp + c.FuzzyWeights.Metadata
	if sum < 0.999 || sum > 1.001 {
		return fmt.Errorf("RECON_FUZZY_WEIGHT_* must sum to 1, got %v", sum)
	}

	if c.MinMatchScore < 0 || c.MinMatchScore > 1 {
		return fmt.Errorf("RECON_MIN_MATCH_SCORE must be in [0,1], got %v", c.MinMatchScore)
	}

	if c.SchedulerHour < 0 || c.SchedulerHour > 23 {
		return fmt.Errorf("RECON_SCHEDULER_HOUR must be in [0,23], got %d", c.SchedulerHour)
	}

	return nil
}

// IsProduction returns true if running in production mode.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

func getEnv(key, defaultValue string) string {
	return getEnvWith(key, defaultValue, func(s string) (string, bool) { return s, true })
}

func getEnvInt64(key string, defaultValue int64) int64 {
	return getEnvWith(key, defaultValue, func(s string) (int64, bool) {
		i, err := strconv.ParseInt(s, 10, 64)
		return i, err == nil
	})
}

func getEnvFloat(key string, defaultValue float64) float64 {
	return getEnvWith(key, defaultValue, func(s string) (float64, bool) {
		f, err := strconv.ParseFloat(s, 64)
		return f, err == nil
	})
}

func getEnvBool(key string, defaultValue bool) bool {
	return getEnvWith(key, defaultValue, func(s string) (bool, bool) {
		b, err := strconv.ParseBool(s)
		return b, err == nil
	})
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	return getEnvWith(key, defaultValue, func(s string) (time.Duration, bool) {
		if d, err := time.ParseDuration(s); err == nil {
			return d, true
		}
		if secs, err := strconv.Atoi(s); err == nil {
			return time.Duration(secs) * time.Second, true
		}
		return 0, false
	})
}

func getEnvStringSlice(key, defaultValue string) []string {
	raw := getEnv(key, defaultValue)
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func getEnvWith[T any](key string, defaultValue T, parse func(string) (T, bool)) T {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if v, ok := parse(value); ok {
		return v
	}
	return defaultValue
}

// Package config provides application configuration loading.
// This is part of the platform layer and contains no business logic.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// =============================================================================
// Module-Specific Config Interfaces (Principle of Least Privilege)
// =============================================================================

// DatabaseConfig provides database connection settings.
type DatabaseConfig interface {
	GetDatabaseURL() string
}

// JWTConfig provides JWT validation settings for middleware.
type JWTConfig interface {
	GetJWTAccessSecret() string
}

// HTTPConfig provides settings for the HTTP server.
type HTTPConfig interface {
	GetHTTPAddr() string
	GetCORSAllowAll() bool
	GetCORSOrigins() []string
	GetCORSAllowCreds() bool
}

// SchedulerConfig provides Redis/asynq settings for the background worker.
type SchedulerConfig interface {
	GetRedisURL() string
	GetRedisTLSInsecure() bool
	GetAsynqQueueName() string
	GetAsynqConcurrency() int
	GetSyncFanoutCron() string
	GetSyncLockTTL() time.Duration
}

// SyncConfig provides settings for booking platform synchronisation.
type SyncConfig interface {
	GetSyncMonthsBack() int
	GetSyncPriorityMonths() int
	GetSyncPriorityRetryDelay() time.Duration
	GetSyncBackgroundRetryBase() time.Duration
	GetSyncBackgroundRetryMax() time.Duration
}

// AcuityConfig provides settings for the Acuity Scheduling adapter.
type AcuityConfig interface {
	GetAcuityBaseURL() string
	GetAcuityRequestsPerSecond() float64
}

// SquareConfig provides settings for the Square Appointments adapter.
type SquareConfig interface {
	GetSquareBaseURL() string
	GetSquareAPIVersion() string
	GetSquareRequestsPerSecond() float64
}

// NudgeConfig provides settings for outreach candidate selection.
type NudgeConfig interface {
	GetNudgeHolidaysFile() string
	GetNudgeHolidayBufferDays() int
	GetNudgeMinOpenSlots() int
	GetNudgeClientsPerSlot() int
	GetNudgeMaxPerRun() int
}

// ArchiveConfig provides settings for MinIO raw payload archiving.
type ArchiveConfig interface {
	GetMinIOEndpoint() string
	GetMinIOAccessKey() string
	GetMinIOSecretKey() string
	GetMinIOUseSSL() bool
	GetMinioBucketRawPayloads() string
	IsMinIOEnabled() bool
}

// =============================================================================
// Main Config Struct
// =============================================================================

// Config holds all application configuration values.
type Config struct {
	Env                     string
	HTTPAddr                string
	DatabaseURL             string
	MigrationsEnabled       bool
	JWTAccessSecret         string
	CORSAllowAll            bool
	CORSOrigins             []string
	CORSAllowCreds          bool
	RedisURL                string
	RedisTLSInsecure        bool
	AsynqQueueName          string
	AsynqConcurrency        int
	SyncFanoutCron          string
	SyncLockTTL             time.Duration
	SyncMonthsBack          int
	SyncPriorityMonths      int
	SyncPriorityRetryDelay  time.Duration
	SyncBackgroundRetryBase time.Duration
	SyncBackgroundRetryMax  time.Duration
	AcuityBaseURL           string
	AcuityRequestsPerSecond float64
	SquareBaseURL           string
	SquareAPIVersion        string
	SquareRequestsPerSecond float64
	NudgeHolidaysFile       string
	NudgeHolidayBufferDays  int
	NudgeMinOpenSlots       int
	NudgeClientsPerSlot     int
	NudgeMaxPerRun          int
	MinIOEndpoint           string
	MinIOAccessKey          string
	MinIOSecretKey          string
	MinIOUseSSL             bool
	MinioBucketRawPayloads  string
}

// =============================================================================
// Interface Implementations
// =============================================================================

// DatabaseConfig implementation
func (c *Config) GetDatabaseURL() string { return c.DatabaseURL }

// JWTConfig implementation
func (c *Config) GetJWTAccessSecret() string { return c.JWTAccessSecret }

// HTTPConfig implementation
func (c *Config) GetHTTPAddr() string      { return c.HTTPAddr }
func (c *Config) GetCORSAllowAll() bool    { return c.CORSAllowAll }
func (c *Config) GetCORSOrigins() []string { return c.CORSOrigins }
func (c *Config) GetCORSAllowCreds() bool  { return c.CORSAllowCreds }

// SchedulerConfig implementation
func (c *Config) GetRedisURL() string           { return c.RedisURL }
func (c *Config) GetRedisTLSInsecure() bool     { return c.RedisTLSInsecure }
func (c *Config) GetAsynqQueueName() string     { return c.AsynqQueueName }
func (c *Config) GetAsynqConcurrency() int      { return c.AsynqConcurrency }
func (c *Config) GetSyncFanoutCron() string     { return c.SyncFanoutCron }
func (c *Config) GetSyncLockTTL() time.Duration { return c.SyncLockTTL }

// SyncConfig implementation
func (c *Config) GetSyncMonthsBack() int                    { return c.SyncMonthsBack }
func (c *Config) GetSyncPriorityMonths() int                { return c.SyncPriorityMonths }
func (c *Config) GetSyncPriorityRetryDelay() time.Duration  { return c.SyncPriorityRetryDelay }
func (c *Config) GetSyncBackgroundRetryBase() time.Duration { return c.SyncBackgroundRetryBase }
func (c *Config) GetSyncBackgroundRetryMax() time.Duration  { return c.SyncBackgroundRetryMax }

// AcuityConfig implementation
func (c *Config) GetAcuityBaseURL() string            { return c.AcuityBaseURL }
func (c *Config) GetAcuityRequestsPerSecond() float64 { return c.AcuityRequestsPerSecond }

// SquareConfig implementation
func (c *Config) GetSquareBaseURL() string            { return c.SquareBaseURL }
func (c *Config) GetSquareAPIVersion() string         { return c.SquareAPIVersion }
func (c *Config) GetSquareRequestsPerSecond() float64 { return c.SquareRequestsPerSecond }

// NudgeConfig implementation
func (c *Config) GetNudgeHolidaysFile() string   { return c.NudgeHolidaysFile }
func (c *Config) GetNudgeHolidayBufferDays() int { return c.NudgeHolidayBufferDays }
func (c *Config) GetNudgeMinOpenSlots() int      { return c.NudgeMinOpenSlots }
func (c *Config) GetNudgeClientsPerSlot() int    { return c.NudgeClientsPerSlot }
func (c *Config) GetNudgeMaxPerRun() int         { return c.NudgeMaxPerRun }

// ArchiveConfig implementation
func (c *Config) GetMinIOEndpoint() string          { return c.MinIOEndpoint }
func (c *Config) GetMinIOAccessKey() string         { return c.MinIOAccessKey }
func (c *Config) GetMinIOSecretKey() string         { return c.MinIOSecretKey }
func (c *Config) GetMinIOUseSSL() bool              { return c.MinIOUseSSL }
func (c *Config) GetMinioBucketRawPayloads() string { return c.MinioBucketRawPayloads }
func (c *Config) IsMinIOEnabled() bool              { return c.MinIOEndpoint != "" }

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	_ = godotenv.Load()

	corsOrigins := splitCSV(getEnv("CORS_ORIGINS", "http://localhost:4200"))
	corsAllowAll := strings.EqualFold(getEnv("CORS_ALLOW_ALL", "false"), "true")
	if containsWildcard(corsOrigins) {
		corsAllowAll = true
	}

	cfg := &Config{
		Env:                     getEnv("APP_ENV", "development"),
		HTTPAddr:                getEnv("HTTP_ADDR", ":8080"),
		DatabaseURL:             getEnv("DATABASE_URL", ""),
		MigrationsEnabled:       strings.EqualFold(getEnv("MIGRATIONS_ENABLED", "true"), "true"),
		JWTAccessSecret:         getEnv("JWT_ACCESS_SECRET", ""),
		CORSAllowAll:            corsAllowAll,
		CORSOrigins:             corsOrigins,
		CORSAllowCreds:          strings.EqualFold(getEnv("CORS_ALLOW_CREDENTIALS", "true"), "true"),
		RedisURL:                getEnv("REDIS_URL", "redis://localhost:6379/0"),
		RedisTLSInsecure:        strings.EqualFold(getEnv("REDIS_TLS_INSECURE", "false"), "true"),
		AsynqQueueName:          getEnv("ASYNQ_QUEUE", "default"),
		AsynqConcurrency:        mustInt(getEnv("ASYNQ_CONCURRENCY", "4")),
		SyncFanoutCron:          getEnv("SYNC_FANOUT_CRON", "0 */6 * * *"),
		SyncLockTTL:             mustDuration(getEnv("SYNC_LOCK_TTL", "30m")),
		SyncMonthsBack:          mustInt(getEnv("SYNC_MONTHS_BACK", "36")),
		SyncPriorityMonths:      mustInt(getEnv("SYNC_PRIORITY_MONTHS", "12")),
		SyncPriorityRetryDelay:  mustDuration(getEnv("SYNC_PRIORITY_RETRY_DELAY", "2s")),
		SyncBackgroundRetryBase: mustDuration(getEnv("SYNC_BACKGROUND_RETRY_BASE", "1s")),
		SyncBackgroundRetryMax:  mustDuration(getEnv("SYNC_BACKGROUND_RETRY_MAX", "30s")),
		AcuityBaseURL:           getEnv("ACUITY_BASE_URL", "https://acuityscheduling.com/api/v1"),
		AcuityRequestsPerSecond: mustFloat(getEnv("ACUITY_REQUESTS_PER_SECOND", "5")),
		SquareBaseURL:           getEnv("SQUARE_BASE_URL", "https://connect.squareup.com/v2"),
		SquareAPIVersion:        getEnv("SQUARE_API_VERSION", "2024-07-17"),
		SquareRequestsPerSecond: mustFloat(getEnv("SQUARE_REQUESTS_PER_SECOND", "8")),
		NudgeHolidaysFile:       getEnv("NUDGE_HOLIDAYS_FILE", ""),
		NudgeHolidayBufferDays:  mustInt(getEnv("NUDGE_HOLIDAY_BUFFER_DAYS", "7")),
		NudgeMinOpenSlots:       mustInt(getEnv("NUDGE_MIN_OPEN_SLOTS", "3")),
		NudgeClientsPerSlot:     mustInt(getEnv("NUDGE_CLIENTS_PER_SLOT", "3")),
		NudgeMaxPerRun:          mustInt(getEnv("NUDGE_MAX_PER_RUN", "40")),
		MinIOEndpoint:           getEnv("MINIO_ENDPOINT", ""),
		MinIOAccessKey:          getEnv("MINIO_ACCESS_KEY", ""),
		MinIOSecretKey:          getEnv("MINIO_SECRET_KEY", ""),
		MinIOUseSSL:             strings.EqualFold(getEnv("MINIO_USE_SSL", "false"), "true"),
		MinioBucketRawPayloads:  getEnv("MINIO_BUCKET_RAW_PAYLOADS", "booking-raw-payloads"),
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	if cfg.SyncPriorityMonths > cfg.SyncMonthsBack {
		return nil, fmt.Errorf("SYNC_PRIORITY_MONTHS cannot exceed SYNC_MONTHS_BACK")
	}
	if cfg.CORSAllowAll && cfg.CORSAllowCreds {
		return nil, fmt.Errorf("CORS_ALLOW_CREDENTIALS cannot be true when CORS_ALLOW_ALL is true")
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok {
		return val
	}
	return fallback
}

func mustDuration(value string) time.Duration {
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0
	}
	return d
}

func mustInt(value string) int {
	result, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return 0
	}
	return result
}

func mustFloat(value string) float64 {
	result, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return 0
	}
	return result
}

func splitCSV(value string) []string {
	parts := strings.Split(value, ",")
	results := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			results = append(results, trimmed)
		}
	}
	return results
}

func containsWildcard(values []string) bool {
	for _, value := range values {
		if value == "*" {
			return true
		}
	}
	return false
}

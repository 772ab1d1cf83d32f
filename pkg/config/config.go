package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds all application configuration
type Config struct {
	Server       ServerConfig
	Database     DatabaseConfig
	Redis        RedisConfig
	Providers    ProvidersConfig
	Merge        MergeConfig
	Availability AvailabilityConfig
	Scheduler    SchedulerConfig
	OTEL         OTELConfig
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Host string
	Port int
	Env  string
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

// ProvidersConfig holds external calendar provider configuration.
// Base URLs are overridable so tests and staging can point at stubs.
type ProvidersConfig struct {
	GoogleBaseURL     string
	GoogleTokenURL    string
	MicrosoftBaseURL  string
	MicrosoftTokenURL string
	RequestTimeout    time.Duration
}

// MergeConfig bounds the provider fan-out performed by a merge cycle.
type MergeConfig struct {
	FanOutBatchSize int
	InterBatchPause time.Duration
}

// AvailabilityConfig holds slot generation defaults.
type AvailabilityConfig struct {
	SlotStep    time.Duration
	LeadTime    time.Duration
	HorizonDays int
	// BlockPolicy is either "override-disabled" (an availability-block event
	// opens a window even on a template-disabled day) or "widen-enabled-only".
	BlockPolicy string
}

// SchedulerConfig holds drag/resize interaction constants.
type SchedulerConfig struct {
	SnapInterval time.Duration
	MinDuration  time.Duration
}

// OTELConfig holds OpenTelemetry configuration
type OTELConfig struct {
	ServiceName    string
	ServiceVersion string
	Endpoint       string
	Enabled        bool
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Host: getEnv("SERVER_HOST", "0.0.0.0"),
			Port: getEnvAsInt("SERVER_PORT", 8080),
			Env:  getEnv("APP_ENV", "development"),
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnvAsInt("DB_PORT", 5432),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", ""),
			Database: getEnv("DB_NAME", "calendar_engine"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnvAsInt("REDIS_PORT", 6379),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
		},
		Providers: ProvidersConfig{
			GoogleBaseURL:     getEnv("GOOGLE_CALENDAR_BASE_URL", "https://www.googleapis.com/calendar/v3"),
			GoogleTokenURL:    getEnv("GOOGLE_TOKEN_URL", "https://oauth2.googleapis.com/token"),
			MicrosoftBaseURL:  getEnv("MS_GRAPH_BASE_URL", "https://graph.microsoft.com/v1.0"),
			MicrosoftTokenURL: getEnv("MS_TOKEN_URL", "https://login.microsoftonline.com/common/oauth2/v2.0/token"),
			RequestTimeout:    getEnvAsDuration("PROVIDER_REQUEST_TIMEOUT", 10*time.Second),
		},
		Merge: MergeConfig{
			FanOutBatchSize: getEnvAsInt("MERGE_FANOUT_BATCH_SIZE", 3),
			InterBatchPause: getEnvAsDuration("MERGE_INTER_BATCH_PAUSE", 200*time.Millisecond),
		},
		Availability: AvailabilityConfig{
			SlotStep:    getEnvAsDuration("AVAILABILITY_SLOT_STEP", 15*time.Minute),
			LeadTime:    getEnvAsDuration("AVAILABILITY_LEAD_TIME", 15*time.Minute),
			HorizonDays: getEnvAsInt("AVAILABILITY_HORIZON_DAYS", 14),
			BlockPolicy: getEnv("AVAILABILITY_BLOCK_POLICY", "override-disabled"),
		},
		Scheduler: SchedulerConfig{
			SnapInterval: getEnvAsDuration("SCHEDULER_SNAP_INTERVAL", 15*time.Minute),
			MinDuration:  getEnvAsDuration("SCHEDULER_MIN_DURATION", 15*time.Minute),
		},
		OTEL: OTELConfig{
			ServiceName:    getEnv("OTEL_SERVICE_NAME", "calendar-engine"),
			ServiceVersion: getEnv("OTEL_SERVICE_VERSION", "1.0.0"),
			Endpoint:       getEnv("OTEL_ENDPOINT", ""),
			Enabled:        getEnvAsBool("OTEL_ENABLED", false),
		},
	}

	if cfg.Merge.FanOutBatchSize < 1 {
		return nil, fmt.Errorf("MERGE_FANOUT_BATCH_SIZE must be at least 1")
	}
	switch cfg.Availability.BlockPolicy {
	case "override-disabled", "widen-enabled-only":
	default:
		return nil, fmt.Errorf("unknown AVAILABILITY_BLOCK_POLICY %q", cfg.Availability.BlockPolicy)
	}

	return cfg, nil
}

// DatabaseDSN returns the PostgreSQL connection string
func (c *DatabaseConfig) DatabaseDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

// RedisAddr returns the Redis address
func (c *RedisConfig) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

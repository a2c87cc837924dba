package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Store drivers.
const (
	StoreDriverPostgres = "postgres"
	StoreDriverMemory   = "memory"
)

// Config holds all configuration for the application.
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	NewRelic  NewRelicConfig
	Logger    LoggerConfig
	Dispatch  DispatchConfig
	RateLimit RateLimitConfig
	Store     StoreConfig
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	// TrustedProxies are the proxy IPs or CIDRs allowed to name the client
	// in X-Forwarded-For or X-Real-IP.
	TrustedProxies []string
}

// DatabaseConfig holds PostgreSQL configuration.
type DatabaseConfig struct {
	Host        string
	Port        string
	User        string
	Password    string
	DBName      string
	SSLMode     string
	AutoMigrate bool

	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

// RedisConfig holds Redis configuration.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Enabled  bool
}

// NewRelicConfig holds New Relic configuration.
type NewRelicConfig struct {
	AppName    string
	LicenseKey string
	Enabled    bool
}

// LoggerConfig holds logging configuration.
type LoggerConfig struct {
	Level string
}

// DispatchConfig holds batch matching configuration.
type DispatchConfig struct {
	MatchThresholdMeters float64
	// BatchTimes are daily HH:MM times, used when BatchInterval is zero.
	BatchTimes       string
	BatchInterval    time.Duration
	BatchDeadline    time.Duration
	SchedulerEnabled bool
	Timezone         string
}

// RateLimitConfig holds per-client admission control configuration.
type RateLimitConfig struct {
	Capacity int
	Window   time.Duration
	MaxKeys  int
	IdleTTL  time.Duration
}

// StoreConfig selects the persistence backend.
type StoreConfig struct {
	Driver string
}

// Load loads configuration from environment variables. Values in a .env
// file in the working directory are applied first without overriding the
// real environment.
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		Server: ServerConfig{
			Port:            getEnv("SERVER_PORT", "8080"),
			ReadTimeout:     getDurationEnv("SERVER_READ_TIMEOUT", 10*time.Second),
			WriteTimeout:    getDurationEnv("SERVER_WRITE_TIMEOUT", 30*time.Second),
			ShutdownTimeout: getDurationEnv("SERVER_SHUTDOWN_TIMEOUT", 15*time.Second),
			TrustedProxies:  getListEnv("SERVER_TRUSTED_PROXIES"),
		},
		Database: DatabaseConfig{
			Host:        getEnv("DB_HOST", "localhost"),
			Port:        getEnv("DB_PORT", "5432"),
			User:        getEnv("DB_USER", "postgres"),
			Password:    getEnv("DB_PASSWORD", "postgres"),
			DBName:      getEnv("DB_NAME", "cab_dispatch"),
			SSLMode:     getEnv("DB_SSLMODE", "disable"),
			AutoMigrate: getBoolEnv("DB_AUTO_MIGRATE", false),

			MaxOpenConns:    getIntEnv("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    getIntEnv("DB_MAX_IDLE_CONNS", 10),
			ConnMaxLifetime: getDurationEnv("DB_CONN_MAX_LIFETIME", 30*time.Minute),
			ConnMaxIdleTime: getDurationEnv("DB_CONN_MAX_IDLE_TIME", 5*time.Minute),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getIntEnv("REDIS_DB", 0),
			Enabled:  getBoolEnv("REDIS_ENABLED", true),
		},
		NewRelic: NewRelicConfig{
			AppName:    getEnv("NEW_RELIC_APP_NAME", "cab-dispatch"),
			LicenseKey: getEnv("NEW_RELIC_LICENSE_KEY", ""),
			Enabled:    getBoolEnv("NEW_RELIC_ENABLED", false),
		},
		Logger: LoggerConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
		Dispatch: DispatchConfig{
			MatchThresholdMeters: getFloatEnv("DISPATCH_MATCH_THRESHOLD_METERS", 100),
			BatchTimes:           getEnv("DISPATCH_BATCH_TIMES", "08:00,19:00"),
			BatchInterval:        getDurationEnv("DISPATCH_BATCH_INTERVAL", 0),
			BatchDeadline:        getDurationEnv("DISPATCH_BATCH_DEADLINE", 0),
			SchedulerEnabled:     getBoolEnv("DISPATCH_SCHEDULER_ENABLED", true),
			Timezone:             getEnv("DISPATCH_TIMEZONE", "Local"),
		},
		RateLimit: RateLimitConfig{
			Capacity: getIntEnv("RATE_LIMIT_CAPACITY", 10),
			Window:   getDurationEnv("RATE_LIMIT_WINDOW", time.Minute),
			MaxKeys:  getIntEnv("RATE_LIMIT_MAX_KEYS", 10000),
			IdleTTL:  getDurationEnv("RATE_LIMIT_IDLE_TTL", 10*time.Minute),
		},
		Store: StoreConfig{
			Driver: strings.ToLower(getEnv("STORE_DRIVER", StoreDriverPostgres)),
		},
	}
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var errs []error

	for _, proxy := range c.Server.TrustedProxies {
		if net.ParseIP(proxy) == nil {
			if _, _, err := net.ParseCIDR(proxy); err != nil {
				errs = append(errs, fmt.Errorf("SERVER_TRUSTED_PROXIES: %q is not an IP or CIDR", proxy))
			}
		}
	}
	if c.Dispatch.MatchThresholdMeters <= 0 {
		errs = append(errs, fmt.Errorf("DISPATCH_MATCH_THRESHOLD_METERS must be positive, got %v", c.Dispatch.MatchThresholdMeters))
	}
	if c.Dispatch.BatchInterval < 0 {
		errs = append(errs, errors.New("DISPATCH_BATCH_INTERVAL must not be negative"))
	}
	if c.Dispatch.BatchDeadline < 0 {
		errs = append(errs, errors.New("DISPATCH_BATCH_DEADLINE must not be negative"))
	}
	if c.Dispatch.SchedulerEnabled && c.Dispatch.BatchInterval == 0 && strings.TrimSpace(c.Dispatch.BatchTimes) == "" {
		errs = append(errs, errors.New("DISPATCH_BATCH_TIMES or DISPATCH_BATCH_INTERVAL is required when the scheduler is enabled"))
	}
	if _, err := time.LoadLocation(c.Dispatch.Timezone); err != nil {
		errs = append(errs, fmt.Errorf("DISPATCH_TIMEZONE: %w", err))
	}
	if c.RateLimit.Capacity <= 0 {
		errs = append(errs, fmt.Errorf("RATE_LIMIT_CAPACITY must be positive, got %d", c.RateLimit.Capacity))
	}
	if c.RateLimit.Window <= 0 {
		errs = append(errs, fmt.Errorf("RATE_LIMIT_WINDOW must be positive, got %s", c.RateLimit.Window))
	}
	if c.RateLimit.MaxKeys <= 0 {
		errs = append(errs, fmt.Errorf("RATE_LIMIT_MAX_KEYS must be positive, got %d", c.RateLimit.MaxKeys))
	}
	if c.Store.Driver == StoreDriverPostgres && c.Database.MaxIdleConns > c.Database.MaxOpenConns {
		errs = append(errs, fmt.Errorf("DB_MAX_IDLE_CONNS (%d) must not exceed DB_MAX_OPEN_CONNS (%d)", c.Database.MaxIdleConns, c.Database.MaxOpenConns))
	}
	if c.Store.Driver != StoreDriverPostgres && c.Store.Driver != StoreDriverMemory {
		errs = append(errs, fmt.Errorf("STORE_DRIVER must be %q or %q, got %q", StoreDriverPostgres, StoreDriverMemory, c.Store.Driver))
	}
	if c.NewRelic.Enabled && c.NewRelic.LicenseKey == "" {
		errs = append(errs, errors.New("NEW_RELIC_LICENSE_KEY is required when New Relic is enabled"))
	}

	return errors.Join(errs...)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getListEnv splits a comma-separated value, dropping empty items.
func getListEnv(key string) []string {
	var items []string
	for _, item := range strings.Split(os.Getenv(key), ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	return items
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getFloatEnv(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

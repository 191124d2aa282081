package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// Config holds all application configuration
type Config struct {
	Port        string
	MongoDBURI  string
	RedisURL    string // optional; enables the distributed cleanup lock
	Environment string

	AllowedOrigins string

	// Rate limiting (per client address)
	RateLimitMax    int
	RateLimitWindow time.Duration

	// Pattern retention
	MaxPatterns        int
	BootstrapCount     int
	RetentionSweepCron string // empty disables the periodic sweep

	DBQueryTimeout time.Duration
}

// Load loads configuration from environment variables with defaults
func Load() *Config {
	return &Config{
		Port:        getEnv("PORT", "3000"),
		MongoDBURI:  getEnv("MONGODB_URI", "mongodb://localhost:27017/prismx"),
		RedisURL:    getEnv("REDIS_URL", ""),
		Environment: strings.ToLower(getEnv("ENVIRONMENT", "development")),

		AllowedOrigins: getEnv("ALLOWED_ORIGINS", "*"),

		RateLimitMax:    getIntEnv("RATE_LIMIT_MAX", 100),
		RateLimitWindow: getDurationEnv("RATE_LIMIT_WINDOW", 15*time.Minute),

		MaxPatterns:    getIntEnv("PATTERN_MAX_COUNT", 1000),
		BootstrapCount: getIntEnv("PATTERN_BOOTSTRAP_COUNT", 10),
		// LookupEnv so that an explicitly empty value disables the sweep
		RetentionSweepCron: lookupEnv("RETENTION_SWEEP_CRON", "*/15 * * * *"),

		DBQueryTimeout: getDurationEnv("DB_QUERY_TIMEOUT", 10*time.Second),
	}
}

// Validate checks that limits are usable and the sweep schedule parses
func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("PORT must not be empty")
	}
	if c.MongoDBURI == "" {
		return fmt.Errorf("MONGODB_URI must not be empty")
	}
	if c.RateLimitMax <= 0 {
		return fmt.Errorf("RATE_LIMIT_MAX must be positive, got %d", c.RateLimitMax)
	}
	if c.RateLimitWindow <= 0 {
		return fmt.Errorf("RATE_LIMIT_WINDOW must be positive, got %s", c.RateLimitWindow)
	}
	if c.MaxPatterns <= 0 {
		return fmt.Errorf("PATTERN_MAX_COUNT must be positive, got %d", c.MaxPatterns)
	}
	if c.BootstrapCount < 0 {
		return fmt.Errorf("PATTERN_BOOTSTRAP_COUNT must not be negative, got %d", c.BootstrapCount)
	}
	if c.DBQueryTimeout <= 0 {
		return fmt.Errorf("DB_QUERY_TIMEOUT must be positive, got %s", c.DBQueryTimeout)
	}
	if c.RetentionSweepCron != "" {
		parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
		if _, err := parser.Parse(c.RetentionSweepCron); err != nil {
			return fmt.Errorf("invalid RETENTION_SWEEP_CRON %q: %w", c.RetentionSweepCron, err)
		}
	}
	return nil
}

// IsProduction reports whether the service runs with production defaults
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func lookupEnv(key, defaultValue string) string {
	if value, ok := os.LookupEnv(key); ok {
		return strings.TrimSpace(value)
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		parsed, err := strconv.Atoi(value)
		if err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		parsed, err := time.ParseDuration(value)
		if err == nil {
			return parsed
		}
	}
	return defaultValue
}

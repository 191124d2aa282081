package preflight

import (
	"context"
	"fmt"
	"log"
	"time"

	"prismx/internal/config"
	"prismx/internal/database"
)

// CheckResult represents the result of a preflight check
type CheckResult struct {
	Name    string
	Status  string // "pass", "fail", "warning"
	Message string
	Error   error
}

// Pinger is anything with a connectivity probe
type Pinger interface {
	Ping(ctx context.Context) error
}

// PatternDatabase is the slice of the MongoDB wrapper the checks need
type PatternDatabase interface {
	Pinger
	IndexNames(ctx context.Context, collection string) ([]string, error)
}

// Checker performs pre-flight checks before server starts
type Checker struct {
	db      PatternDatabase
	redis   Pinger // nil when Redis is not configured or unreachable
	cfg     *config.Config
	timeout time.Duration
}

// NewChecker creates a new preflight checker. redis may be nil.
func NewChecker(db PatternDatabase, redis Pinger, cfg *config.Config) *Checker {
	return &Checker{
		db:      db,
		redis:   redis,
		cfg:     cfg,
		timeout: 5 * time.Second,
	}
}

// RunAll runs all preflight checks and returns results
func (c *Checker) RunAll(ctx context.Context) []CheckResult {
	log.Println("🔍 Running pre-flight checks...")

	results := []CheckResult{
		c.checkDatabaseConnection(ctx),
		c.checkPatternIndexes(ctx),
		c.checkRedis(ctx),
		c.checkEnvironment(),
	}

	passed := 0
	failed := 0
	warnings := 0

	for _, result := range results {
		switch result.Status {
		case "pass":
			log.Printf("   ✅ %s: %s", result.Name, result.Message)
			passed++
		case "fail":
			log.Printf("   ❌ %s: %s", result.Name, result.Message)
			if result.Error != nil {
				log.Printf("      Error: %v", result.Error)
			}
			failed++
		case "warning":
			log.Printf("   ⚠️  %s: %s", result.Name, result.Message)
			warnings++
		}
	}

	log.Printf("📊 Pre-flight summary: %d passed, %d failed, %d warnings", passed, failed, warnings)

	return results
}

// HasFailures returns true if any check failed
func HasFailures(results []CheckResult) bool {
	for _, result := range results {
		if result.Status == "fail" {
			return true
		}
	}
	return false
}

// checkDatabaseConnection verifies MongoDB connectivity
func (c *Checker) checkDatabaseConnection(ctx context.Context) CheckResult {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	if err := c.db.Ping(ctx); err != nil {
		return CheckResult{
			Name:    "MongoDB Connection",
			Status:  "fail",
			Message: "Cannot connect to MongoDB",
			Error:   err,
		}
	}

	return CheckResult{
		Name:    "MongoDB Connection",
		Status:  "pass",
		Message: "MongoDB connection successful",
	}
}

// checkPatternIndexes verifies every pattern index exists
func (c *Checker) checkPatternIndexes(ctx context.Context) CheckResult {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	names, err := c.db.IndexNames(ctx, database.CollectionPatterns)
	if err != nil {
		return CheckResult{
			Name:    "Pattern Indexes",
			Status:  "fail",
			Message: "Cannot list pattern indexes",
			Error:   err,
		}
	}

	present := make(map[string]bool, len(names))
	for _, name := range names {
		present[name] = true
	}

	required := database.PatternIndexNames()
	for _, name := range required {
		if !present[name] {
			return CheckResult{
				Name:    "Pattern Indexes",
				Status:  "fail",
				Message: fmt.Sprintf("Required index '%s' not found", name),
			}
		}
	}

	return CheckResult{
		Name:    "Pattern Indexes",
		Status:  "pass",
		Message: fmt.Sprintf("All %d required indexes exist", len(required)),
	}
}

// checkRedis reports whether retention cleanup is coordinated across instances
func (c *Checker) checkRedis(ctx context.Context) CheckResult {
	if c.cfg.RedisURL == "" {
		if c.cfg.IsProduction() {
			return CheckResult{
				Name:    "Redis",
				Status:  "warning",
				Message: "REDIS_URL not set; concurrent instances may race during retention cleanup",
			}
		}
		return CheckResult{
			Name:    "Redis",
			Status:  "pass",
			Message: "Not configured (single instance mode)",
		}
	}

	if c.redis == nil {
		return CheckResult{
			Name:    "Redis",
			Status:  "warning",
			Message: "REDIS_URL set but Redis is unavailable; using in-process cleanup lock",
		}
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	if err := c.redis.Ping(ctx); err != nil {
		return CheckResult{
			Name:    "Redis",
			Status:  "warning",
			Message: "Redis ping failed; retention cleanup lock may be unavailable",
			Error:   err,
		}
	}

	return CheckResult{
		Name:    "Redis",
		Status:  "pass",
		Message: "Redis connection successful",
	}
}

// checkEnvironment flags settings that are fine locally but risky in production
func (c *Checker) checkEnvironment() CheckResult {
	if c.cfg.IsProduction() && c.cfg.AllowedOrigins == "*" {
		return CheckResult{
			Name:    "Environment Variables",
			Status:  "warning",
			Message: "ALLOWED_ORIGINS is '*' in production",
		}
	}

	if c.cfg.RetentionSweepCron == "" {
		return CheckResult{
			Name:    "Environment Variables",
			Status:  "warning",
			Message: "RETENTION_SWEEP_CRON is empty; retention relies on post-generation cleanup only",
		}
	}

	return CheckResult{
		Name:    "Environment Variables",
		Status:  "pass",
		Message: "Configuration looks good",
	}
}

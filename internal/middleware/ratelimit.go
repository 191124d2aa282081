package middleware

import (
	"log"
	"time"

	"prismx/internal/config"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"
)

// RateLimitConfig holds rate limiting settings
type RateLimitConfig struct {
	// Per client address, across every rate limited route
	Max        int
	Expiration time.Duration

	// Paths that are never counted (scrapers, probes)
	SkipPaths []string
}

// DefaultRateLimitConfig returns 100 requests per 15 minutes per address
func DefaultRateLimitConfig() *RateLimitConfig {
	return &RateLimitConfig{
		Max:        100,
		Expiration: 15 * time.Minute,
		SkipPaths:  []string{"/metrics"},
	}
}

// LoadRateLimitConfig builds the limiter settings from application config
func LoadRateLimitConfig(cfg *config.Config) *RateLimitConfig {
	rl := DefaultRateLimitConfig()

	if cfg.RateLimitMax > 0 {
		rl.Max = cfg.RateLimitMax
	}
	if cfg.RateLimitWindow > 0 {
		rl.Expiration = cfg.RateLimitWindow
	}

	return rl
}

// GlobalRateLimiter limits every request by client IP
func GlobalRateLimiter(config *RateLimitConfig) fiber.Handler {
	skip := make(map[string]bool, len(config.SkipPaths))
	for _, p := range config.SkipPaths {
		skip[p] = true
	}

	return limiter.New(limiter.Config{
		Max:        config.Max,
		Expiration: config.Expiration,
		Next: func(c *fiber.Ctx) bool {
			return skip[c.Path()]
		},
		KeyGenerator: func(c *fiber.Ctx) string {
			return "global:" + c.IP()
		},
		LimitReached: func(c *fiber.Ctx) error {
			log.Printf("🚫 [RATE-LIMIT] Limit reached for IP: %s on %s", c.IP(), c.Path())
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"success":     false,
				"error":       "Too many requests, please try again later.",
				"retry_after": int(config.Expiration.Seconds()),
			})
		},
		SkipFailedRequests:     false,
		SkipSuccessfulRequests: false,
	})
}

package server

import (
	"log"
	"time"

	"prismx/internal/config"
	"prismx/internal/handlers"
	"prismx/internal/middleware"
	"prismx/internal/services"

	"github.com/ansrivas/fiberprometheus/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/prometheus/client_golang/prometheus"
)

// MetricsPath is where Prometheus scrapes the service
const MetricsPath = "/metrics"

// New assembles the Fiber app: middleware chain first, then routes.
// HTTP metrics are registered with registry, which also serves /metrics.
func New(cfg *config.Config, engine *services.PrivacyEngine, registry *prometheus.Registry) *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:      "PrismX Privacy Engine",
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
		BodyLimit:    1 * 1024 * 1024,
		ErrorHandler: middleware.ErrorHandler,
	})

	// Middleware
	app.Use(recover.New())
	app.Use(logger.New())

	// Prometheus metrics middleware
	prom := fiberprometheus.NewWithRegistry(registry, "prismx", "http", "", nil)
	prom.RegisterAt(app, MetricsPath)
	app.Use(prom.Middleware)

	// Fiber's CORS middleware does not allow AllowCredentials with wildcard origins
	app.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.AllowedOrigins,
		AllowMethods:     "GET,POST,OPTIONS",
		AllowHeaders:     "Origin,Content-Type,Accept",
		AllowCredentials: cfg.AllowedOrigins != "*",
	}))

	rateLimitConfig := middleware.LoadRateLimitConfig(cfg)
	app.Use(middleware.GlobalRateLimiter(rateLimitConfig))
	log.Printf("🛡️  [RATE-LIMIT] %d requests per %s per client address", rateLimitConfig.Max, rateLimitConfig.Expiration)

	// Initialize handlers
	healthHandler := handlers.NewHealthHandler()
	patternHandler := handlers.NewPatternHandler(engine, cfg.RetentionSweepCron)

	app.Get("/health", healthHandler.Handle)

	patterns := app.Group("/patterns")
	patterns.Post("/generate", patternHandler.Generate)
	patterns.Get("/stats", patternHandler.Stats)
	patterns.Get("/", patternHandler.List)
	patterns.Get("/:id", patternHandler.Get)
	patterns.Post("/:id/validate", patternHandler.Validate)
	patterns.Post("/:id/metadata", patternHandler.AddMetadata)

	// Unmatched routes get the same envelope as every other error
	app.Use(func(c *fiber.Ctx) error {
		return fiber.NewError(fiber.StatusNotFound, "Route not found")
	})

	return app
}

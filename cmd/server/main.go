package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"prismx/internal/config"
	"prismx/internal/database"
	"prismx/internal/jobs"
	"prismx/internal/logging"
	"prismx/internal/preflight"
	"prismx/internal/server"
	"prismx/internal/services"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	// Load .env file (ignore error if file doesn't exist)
	if err := godotenv.Load(); err != nil {
		log.Printf("⚠️  No .env file found or error loading it: %v", err)
	} else {
		log.Println("✅ .env file loaded successfully")
	}

	// Initialize structured logging (JSON in production, text in dev)
	logging.Init()

	log.Println("🚀 Starting PrismX Privacy Engine...")

	// Load configuration
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("❌ Invalid configuration: %v", err)
	}
	log.Printf("📋 Configuration loaded (Port: %s, Environment: %s, MaxPatterns: %d)",
		cfg.Port, cfg.Environment, cfg.MaxPatterns)

	// Initialize MongoDB (required - all pattern state lives there)
	log.Println("🔗 Connecting to MongoDB...")
	mongoDB, err := database.NewMongoDB(context.Background(), cfg.MongoDBURI)
	if err != nil {
		log.Fatalf("❌ Failed to connect to MongoDB: %v", err)
	}

	initCtx, cancelInit := context.WithTimeout(context.Background(), 30*time.Second)
	if err := mongoDB.Initialize(initCtx); err != nil {
		cancelInit()
		log.Fatalf("❌ Failed to initialize MongoDB: %v", err)
	}
	cancelInit()

	// Initialize Redis (optional - coordinates retention cleanup across instances)
	var redisService *services.RedisService
	var cleanupLock services.CleanupLock
	if cfg.RedisURL != "" {
		redisService, err = services.NewRedisService(context.Background(), cfg.RedisURL)
		if err != nil {
			log.Printf("⚠️ Failed to connect to Redis: %v (falling back to in-process cleanup lock)", err)
		} else {
			cleanupLock = services.NewRedisCleanupLock(redisService, 0)
			log.Println("🔒 Distributed retention cleanup lock enabled")
		}
	} else {
		log.Println("⚠️ REDIS_URL not set - retention cleanup is only serialised within this process")
	}
	if cleanupLock == nil {
		cleanupLock = services.NewLocalCleanupLock(0)
	}

	// Run pre-flight checks
	var redisPinger preflight.Pinger
	if redisService != nil {
		redisPinger = redisService
	}
	checker := preflight.NewChecker(mongoDB, redisPinger, cfg)
	if results := checker.RunAll(context.Background()); preflight.HasFailures(results) {
		log.Fatal("❌ Pre-flight checks failed, refusing to start")
	}

	// Prometheus registry shared by runtime, pattern and HTTP metrics
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	// Initialize privacy engine (seeds an empty store before returning)
	store := services.NewMongoPatternStore(mongoDB, cfg.DBQueryTimeout)
	engine := services.NewPrivacyEngine(context.Background(), store,
		services.WithMaxPatterns(cfg.MaxPatterns),
		services.WithBootstrapCount(cfg.BootstrapCount),
		services.WithCleanupLock(cleanupLock),
		services.WithMetrics(services.NewMetrics(registry)),
	)
	log.Println("✅ Privacy engine initialized")

	// Background jobs
	jobScheduler, err := jobs.NewJobScheduler()
	if err != nil {
		log.Fatalf("❌ Failed to create job scheduler: %v", err)
	}
	if cfg.RetentionSweepCron != "" {
		sweep := jobs.NewRetentionSweepJob(engine, cfg.RetentionSweepCron)
		if err := jobScheduler.Register("pattern-retention-sweep", sweep); err != nil {
			log.Fatalf("❌ Failed to register retention sweep: %v", err)
		}
	} else {
		log.Println("⚠️ RETENTION_SWEEP_CRON empty - periodic retention sweep disabled")
	}
	jobScheduler.Start()

	app := server.New(cfg, engine, registry)

	log.Printf("✅ Server ready on port %s", cfg.Port)
	log.Printf("📡 Health check: http://localhost:%s/health", cfg.Port)
	log.Printf("📊 Metrics: http://localhost:%s%s", cfg.Port, server.MetricsPath)

	// Handle graceful shutdown
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		log.Println("\n🛑 Shutting down server...")

		// Stop background jobs
		if err := jobScheduler.Stop(); err != nil {
			log.Printf("⚠️ Error stopping job scheduler: %v", err)
		}

		// Shutdown Fiber
		if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
			log.Printf("⚠️ Error shutting down server: %v", err)
		}
	}()

	if err := app.Listen(":" + cfg.Port); err != nil {
		log.Fatalf("❌ Failed to start server: %v", err)
	}

	// Listen returned after Shutdown; release connections last
	if redisService != nil {
		if err := redisService.Close(); err != nil {
			log.Printf("⚠️ Error closing Redis: %v", err)
		}
	}

	closeCtx, cancelClose := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelClose()
	if err := mongoDB.Close(closeCtx); err != nil {
		log.Printf("⚠️ Error disconnecting MongoDB: %v", err)
	}

	log.Println("👋 Server stopped")
}

package main

import (
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/gorm/logger"

	"github.com/pulsewatch/pulsewatch/internal/alerts/adapters"
	"github.com/pulsewatch/pulsewatch/internal/config"
	"github.com/pulsewatch/pulsewatch/internal/database"
	"github.com/pulsewatch/pulsewatch/internal/events"
	"github.com/pulsewatch/pulsewatch/internal/handlers"
	"github.com/pulsewatch/pulsewatch/internal/jobs"
	"github.com/pulsewatch/pulsewatch/internal/lock"
	"github.com/pulsewatch/pulsewatch/internal/metrics"
	"github.com/pulsewatch/pulsewatch/internal/middleware"
	"github.com/pulsewatch/pulsewatch/internal/notify"
	"github.com/pulsewatch/pulsewatch/internal/services"
)

func main() {
	// Load .env file if it exists (ignore error if file doesn't exist)
	if err := godotenv.Load(); err != nil {
		log.Printf("No .env file found or error loading it (this is fine if using environment variables): %v", err)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	log.Printf("Starting Pulsewatch...")

	if cfg.AdminPassword == "" {
		log.Fatalf("ADMIN_PASSWORD is not set")
	}

	passwordHash, err := middleware.HashPassword(cfg.AdminPassword)
	if err != nil {
		log.Fatalf("Failed to hash admin password: %v", err)
	}

	jwtAuthMiddleware := middleware.NewJWTAuthMiddleware(&middleware.JWTAuthConfig{
		Enabled:           true,
		AdminUsername:     cfg.AdminUsername,
		AdminPasswordHash: passwordHash,
		JWTSecret:         cfg.JWTSecret,
		JWTExpiryHours:    cfg.JWTExpiryHours,
		SkipPaths: []string{
			"/health",
			"/metrics",
			"/webhook/*",
			"/auth/login",
		},
	})
	log.Printf("JWT authentication enabled for user: %s", cfg.AdminUsername)

	// Database
	if err := database.Connect(cfg.DatabaseURL, logger.Warn); err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	if err := database.AutoMigrate(); err != nil {
		log.Fatalf("Failed to run database migrations: %v", err)
	}
	if err := database.InitializeDefaults(); err != nil {
		log.Fatalf("Failed to initialize database defaults: %v", err)
	}
	db := database.GetDB()

	// Keyed locking: Redis when configured, in-process otherwise
	var locker lock.KeyedLocker
	if cfg.RedisURL != "" {
		redisLocker, err := lock.NewRedisLocker(cfg.RedisURL)
		if err != nil {
			log.Fatalf("Failed to connect to Redis: %v", err)
		}
		defer redisLocker.Close()
		locker = redisLocker
		log.Printf("Using Redis-backed locking")
	} else {
		locker = lock.NewMemoryLocker()
		log.Printf("Using in-process locking (set REDIS_URL for multi-instance deployments)")
	}

	// Metrics
	pipelineMetrics := metrics.NewDefault()

	// Notification fan-out: log always, Slack when configured, plus the
	// websocket event hub
	hub := events.NewHub()
	notifiers := notify.Multi{notify.LogNotifier{}, hub}
	if cfg.SlackBotToken != "" {
		notifiers = append(notifiers, notify.NewSlackNotifier(cfg.SlackBotToken, cfg.SlackChannel))
		log.Printf("Slack notifications enabled (channel: %s)", cfg.SlackChannel)
	} else {
		log.Printf("Slack notifications disabled (set SLACK_BOT_TOKEN to enable)")
	}

	// Services
	alertService := services.NewAlertService(db, locker)
	maintenanceService := services.NewMaintenanceService(db)
	correlationService := services.NewCorrelationService(db, alertService, maintenanceService, cfg.Policy, notifiers, pipelineMetrics)

	// Escalation scheduler
	escalationJob := jobs.NewEscalationJob(db, notifiers, locker, pipelineMetrics, cfg.EscalationInterval)
	stopJobs := make(chan struct{})
	go escalationJob.Start(stopJobs)

	// The management API operates on the default organization
	var defaultOrg database.Organization
	if err := db.Order("id").First(&defaultOrg).Error; err != nil {
		log.Fatalf("Failed to load default organization: %v", err)
	}

	// Handlers
	webhookHandler := handlers.NewWebhookHandler(db, correlationService, pipelineMetrics, os.Getenv("WEBHOOK_SECRET"))
	webhookHandler.RegisterAdapter(adapters.NewDatadogAdapter())
	webhookHandler.RegisterAdapter(adapters.NewGrafanaAdapter())
	webhookHandler.RegisterAdapter(adapters.NewCloudWatchAdapter())
	webhookHandler.RegisterAdapter(adapters.NewAlertmanagerAdapter())
	webhookHandler.RegisterAdapter(adapters.NewNewRelicAdapter())
	webhookHandler.RegisterAdapter(adapters.NewPagerDutyAdapter())
	webhookHandler.RegisterAdapter(adapters.NewGenericAdapter())
	log.Printf("Alert adapters registered: datadog, grafana, cloudwatch, alertmanager, newrelic, pagerduty, generic")

	httpHandler := handlers.NewHTTPHandler(db)
	apiHandler := handlers.NewAPIHandler(alertService, correlationService, maintenanceService, escalationJob, defaultOrg.ID)
	authHandler := handlers.NewAuthHandler(jwtAuthMiddleware)
	eventsHandler := handlers.NewEventsHandler(hub)

	// Routes
	mux := http.NewServeMux()
	httpHandler.SetupRoutes(mux)
	webhookHandler.SetupRoutes(mux)
	apiHandler.SetupRoutes(mux)
	authHandler.SetupRoutes(mux)
	eventsHandler.SetupRoutes(mux)
	mux.Handle("/metrics", promhttp.Handler())

	// CORS first, then request ids, then JWT authentication
	corsMiddleware := middleware.NewCORSMiddleware()
	handler := corsMiddleware.Wrap(middleware.RequestIDMiddleware(jwtAuthMiddleware.Wrap(mux)))

	httpServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler: handler,
	}

	go func() {
		log.Printf("Starting HTTP server on port %d", cfg.HTTPPort)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("HTTP server error: %v", err)
		}
	}()

	log.Printf("Webhook endpoints: http://localhost:%d/webhook/{source}", cfg.HTTPPort)
	log.Printf("Health check endpoint: http://localhost:%d/health", cfg.HTTPPort)
	log.Printf("API base URL: http://localhost:%d/api", cfg.HTTPPort)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	log.Println("Received shutdown signal, cleaning up...")
	close(stopJobs)
	if err := httpServer.Close(); err != nil {
		log.Printf("Error shutting down HTTP server: %v", err)
	}
	log.Println("Shutdown complete")
}

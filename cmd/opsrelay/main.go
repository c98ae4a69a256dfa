package main

import (
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"gorm.io/gorm/logger"

	"github.com/opsrelay/opsrelay/internal/alerts/adapters"
	"github.com/opsrelay/opsrelay/internal/config"
	"github.com/opsrelay/opsrelay/internal/database"
	"github.com/opsrelay/opsrelay/internal/events"
	"github.com/opsrelay/opsrelay/internal/executor"
	"github.com/opsrelay/opsrelay/internal/handlers"
	"github.com/opsrelay/opsrelay/internal/jobs"
	"github.com/opsrelay/opsrelay/internal/middleware"
	"github.com/opsrelay/opsrelay/internal/notify"
	"github.com/opsrelay/opsrelay/internal/runbooks"
	"github.com/opsrelay/opsrelay/internal/services"
)

func main() {
	// Load .env file if it exists (ignore error if file doesn't exist)
	if err := godotenv.Load(); err != nil {
		log.Printf("No .env file found or error loading it (this is fine if using environment variables): %v", err)
	}

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	log.Printf("Starting OpsRelay alert automation engine...")

	// Initialize JWT authentication middleware
	if cfg.AdminPassword == "" {
		log.Fatalf("ADMIN_PASSWORD is not set")
	}

	// Hash the admin password
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
			"/api/executions/*",
		},
	})
	log.Printf("JWT authentication enabled for user: %s", cfg.AdminUsername)

	// Initialize database connection
	if err := database.Connect(cfg.DatabaseURL, logger.Warn); err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	log.Printf("Database connection established")

	// Run database migrations
	if err := database.AutoMigrate(); err != nil {
		log.Fatalf("Failed to run database migrations: %v", err)
	}

	db := database.GetDB()

	// Load the runbook catalog from disk into the database
	catalog := runbooks.NewCatalogService(db)
	if err := catalog.LoadFromFile(cfg.RunbookCatalogPath); err != nil {
		log.Printf("Warning: Failed to load runbook catalog: %v", err)
	} else {
		log.Printf("Runbook catalog loaded from %s", cfg.RunbookCatalogPath)
	}

	// Websocket hub for dashboard event streaming
	hub := events.NewHub()

	// Notification sink: Slack when configured, log output otherwise
	var notifier notify.Notifier
	if cfg.SlackBotToken != "" {
		notifier = notify.NewSlackNotifier(cfg.SlackBotToken, cfg.SlackChannel)
		log.Printf("Slack notifications enabled on %s", cfg.SlackChannel)
	} else {
		notifier = notify.NewLogNotifier()
		log.Printf("Slack notifications disabled (SLACK_BOT_TOKEN not set), logging instead")
	}

	// Execution connector client
	runner := executor.NewHTTPRunner(cfg.ExecutorEndpoint)
	log.Printf("Execution connector endpoint: %s", cfg.ExecutorEndpoint)

	// Core engine services
	locks := services.NewKeyLocks()
	tenantService := services.NewTenantService(db)
	alertService := services.NewAlertService(db, hub)
	incidentService := services.NewIncidentService(db)
	correlationService := services.NewCorrelationService(db, locks, hub)
	assignmentService := services.NewAssignmentService(db, notifier, hub)
	escalationService := services.NewEscalationService(db, notifier, hub, assignmentService)
	decisionService := services.NewDecisionService(db, locks, runner, assignmentService, escalationService, hub)
	log.Printf("Engine services initialized")

	// Initialize handlers
	alertHandler := handlers.NewAlertHandler(db, tenantService, alertService, correlationService)

	// Register all alert source adapters
	alertHandler.RegisterAdapter(adapters.NewAlertmanagerAdapter())
	alertHandler.RegisterAdapter(adapters.NewZabbixAdapter())
	alertHandler.RegisterAdapter(adapters.NewPagerDutyAdapter())
	alertHandler.RegisterAdapter(adapters.NewGrafanaAdapter())
	alertHandler.RegisterAdapter(adapters.NewDatadogAdapter())
	log.Printf("Alert source adapters registered: alertmanager, zabbix, pagerduty, grafana, datadog")
	httpHandler := handlers.NewHTTPHandler(alertHandler)
	apiHandler := handlers.NewAPIHandler(db, tenantService, incidentService, correlationService, decisionService, assignmentService, catalog, hub)
	authHandler := handlers.NewAuthHandler(jwtAuthMiddleware)

	// Set up HTTP server routes
	mux := http.NewServeMux()
	httpHandler.SetupRoutes(mux)
	apiHandler.SetupRoutes(mux)
	authHandler.SetupRoutes(mux)

	// Wrap all routes with CORS middleware first, then JWT authentication
	corsMiddleware := middleware.NewCORSMiddleware() // Allow all origins
	handler := middleware.RequestIDMiddleware(corsMiddleware.Wrap(jwtAuthMiddleware.Wrap(mux)))

	// Start HTTP server in goroutine
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

	// Start the periodic engine jobs
	stop := make(chan struct{})

	correlationSweep := jobs.NewCorrelationSweep(db, correlationService)
	go correlationSweep.Start(stop)
	log.Printf("Correlation sweep started")

	decisionSweep := jobs.NewDecisionSweep(db, correlationService, decisionService, incidentService)
	go decisionSweep.Start(stop)
	log.Printf("Decision sweep started")

	escalationSweep := jobs.NewEscalationSweep(db, escalationService, time.Duration(cfg.EscalationSweepSeconds)*time.Second)
	go escalationSweep.Start(stop)
	log.Printf("Escalation sweep started (every %ds)", cfg.EscalationSweepSeconds)

	log.Println("Engine is running! Press Ctrl+C to exit.")
	log.Printf("Alert webhook endpoint: http://localhost:%d/webhook/alert/{tenant_uuid}", cfg.HTTPPort)
	log.Printf("Health check endpoint: http://localhost:%d/health", cfg.HTTPPort)
	log.Printf("API base URL: http://localhost:%d/api", cfg.HTTPPort)

	// Wait for shutdown signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	log.Println("Received shutdown signal, cleaning up...")
	close(stop)

	log.Println("Shutting down HTTP server...")
	if err := httpServer.Close(); err != nil {
		log.Printf("Error shutting down HTTP server: %v", err)
	}

	if err := database.Close(); err != nil {
		log.Printf("Error closing database: %v", err)
	}

	log.Println("Shutdown complete")
}

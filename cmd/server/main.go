package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bhhunter/rental-backend/internal/config"
	"github.com/bhhunter/rental-backend/internal/database"
	"github.com/bhhunter/rental-backend/internal/events"
	"github.com/bhhunter/rental-backend/internal/handlers"
	"github.com/bhhunter/rental-backend/internal/middleware"
	"github.com/bhhunter/rental-backend/internal/realtime"
	"github.com/bhhunter/rental-backend/internal/services"
	"github.com/bhhunter/rental-backend/pkg/jwt"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

var (
	version   = "1.0.0"
	buildTime = "unknown"
)

func main() {
	// Initialize logger
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	logger.SetOutput(os.Stdout)

	logger.Info("Starting boarding house rental backend")
	logger.Infof("Version: %s, Build Time: %s", version, buildTime)

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logger.Fatalf("Failed to load configuration: %v", err)
	}

	logLevel, err := logrus.ParseLevel(cfg.Server.LogLevel)
	if err != nil {
		logger.Warn("Invalid log level, using INFO")
		logLevel = logrus.InfoLevel
	}
	logger.SetLevel(logLevel)

	if cfg.Server.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	// Initialize database connection
	logger.Info("Connecting to database...")
	db, err := database.NewConnection(cfg.Database)
	if err != nil {
		logger.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()
	logger.Info("Database connection established")

	repos := database.NewRepositories(db.DB)
	uow := database.NewSQLUnitOfWork(db.DB, logger)
	audits := database.NewPaymentAuditRepository(db.DB, logger)
	bus := events.NewBus(logger)

	// Initialize services
	logger.Info("Initializing services...")
	jwtService := jwt.NewService(cfg.JWT.Secret, cfg.JWT.Issuer, cfg.JWT.AccessTokenExpiry)
	hub := realtime.NewHub(&cfg.Realtime, logger)

	paymongo := services.NewPaymongoService(&cfg.PayMongo, logger)
	paymentService := services.NewPaymentService(repos, uow, paymongo, audits, bus, logger, cfg.PayMongo.DefaultCurrency)
	bookingService := services.NewBookingService(repos, paymentService, bus, logger, cfg.PayMongo.DefaultCurrency)
	verifier := services.NewPaymongoSignatureVerifier(cfg.PayMongo.WebhookSecret)
	webhookService := services.NewWebhookService(repos.Payments, paymentService, verifier, audits, logger)
	receiptService := services.NewReceiptService(paymentService)

	notificationService := services.NewNotificationService(repos.Notifications, hub, logger)
	services.RegisterNotificationListeners(bus, notificationService)
	verificationService := services.NewVerificationService(repos.Verification, bus, logger)
	logger.Info("Notification listeners registered")

	reconciliation := services.NewReconciliationService(&cfg.Reconciliation, repos.Payments, paymongo, paymentService, audits, logger)
	if err := reconciliation.Start(); err != nil {
		logger.Fatalf("Failed to start payment reconciliation: %v", err)
	}

	// Initialize Gin router
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestID())
	router.Use(middleware.RequestLogger(logger))
	router.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.CORS.AllowedOrigins,
		AllowMethods:     cfg.CORS.AllowedMethods,
		AllowHeaders:     cfg.CORS.AllowedHeaders,
		ExposeHeaders:    []string{"Content-Length", "Content-Disposition", "X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	handlers.Router{
		Health:        handlers.NewHealthHandler(db, version),
		Bookings:      handlers.NewBookingHandler(bookingService, logger),
		Payments:      handlers.NewPaymentHandler(paymentService, webhookService, receiptService, reconciliation, logger),
		Notifications: handlers.NewNotificationHandler(notificationService, hub, logger),
		Verification:  handlers.NewVerificationHandler(verificationService, logger),
	}.Register(router, jwtService, logger)

	// No write timeout: notification streams stay open
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	srv.RegisterOnShutdown(hub.Close)

	go func() {
		logger.Infof("Server starting on port %s", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	logger.Info("Stopping payment reconciliation...")
	reconciliation.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Errorf("Server forced to shutdown: %v", err)
	}

	logger.Info("Server exited successfully")
}

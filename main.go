package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/joho/godotenv"

	"registration-gateway/internal/config"
	"registration-gateway/internal/gateway"
	"registration-gateway/internal/handlers"
	"registration-gateway/internal/inventory"
	"registration-gateway/internal/kafka"
	"registration-gateway/internal/logger"
	"registration-gateway/internal/middleware"
	rediswrap "registration-gateway/internal/redis"
	"registration-gateway/internal/sequence"
	"registration-gateway/internal/services"
	"registration-gateway/internal/storage"
)

// Global logger instance
var log *logger.Logger

func main() {
	log = logger.NewLogger()
	defer log.Close()

	// Load environment variables from .env file
	if err := godotenv.Load(); err != nil {
		log.Warn("ENV", "Error loading .env file, using environment variables")
	}

	log.LogProcess("STARTUP", "Registration Gateway starting up...")

	cfg := config.Load()
	log.Info("CONFIG", "Configuration loaded successfully")

	log.LogProcess("DATABASE", "Initializing MySQL database...")
	store, err := storage.NewMySQLStore(cfg.Database, log)
	if err != nil {
		log.Fatal("DATABASE", "Failed to initialize MySQL: "+err.Error())
	}
	defer store.Close()

	log.LogProcess("KAFKA", "Initializing Kafka producer...")
	kafkaProducer, err := kafka.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.MockMode, log)
	if err != nil {
		log.Fatal("KAFKA", "Failed to create Kafka producer: "+err.Error())
	}
	defer kafkaProducer.Close()

	redisClient := redis.NewClient(&redis.Options{
		Addr: cfg.Redis.Addr,
	})
	attemptLocks := rediswrap.NewRedis(redisClient)
	log.LogProcess("SERVICE", "Redis attempt locks initialized")

	// Core components
	pool := inventory.NewPool(store, log)
	allocator := sequence.NewAllocator(store, log)
	gatewayClient := gateway.NewClient(cfg.Gateway, log)

	reservations := services.NewReservationManager(store, pool, cfg.Reservation, log)
	engine := services.NewConfirmationEngine(store, pool, allocator, kafkaProducer, log)
	orchestrator := services.NewPaymentOrchestrator(store, reservations, engine, gatewayClient, attemptLocks, cfg.Reservation.GatewayWindow, log)
	sweeper := services.NewSweeper(store, engine, cfg.Reservation.SweepInterval, log)
	log.LogProcess("SERVICE", "Core services initialized")

	groupHandler := handlers.NewGroupHandler(orchestrator, engine, reservations, cfg.Reservation.UnitPrice)

	rootCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Expiry sweep in background
	go sweeper.Run(rootCtx)

	// Proof events from the upload service
	if !cfg.Kafka.MockMode {
		proofConsumer, err := kafka.NewProofConsumer(cfg.Kafka.Brokers, cfg.Kafka.GroupID)
		if err != nil {
			log.Fatal("KAFKA", "Failed to create proof consumer: "+err.Error())
		}
		defer proofConsumer.Close()

		go func() {
			log.LogKafka("START", "payment-proofs", "Starting proof consumer goroutine")
			if err := proofConsumer.ConsumeProofs(rootCtx, orchestrator.HandleProofEvent); err != nil && err != context.Canceled {
				log.Error("KAFKA", "Consumer error: "+err.Error())
			}
		}()
	}

	router := setupRouter(groupHandler)
	log.LogProcess("ROUTER", "HTTP router configured")

	srv := &http.Server{
		Addr:         cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		log.LogProcess("SERVER", "Starting HTTP server on "+cfg.Server.Port)
		log.Info("STARTUP", "Registration Gateway is ready to accept requests")

		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("SERVER", "Server failed to start: "+err.Error())
		}
	}()

	// Wait for interrupt signal to gracefully shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Warn("SHUTDOWN", "Received shutdown signal, initiating graceful shutdown...")
	cancel()

	ctx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal("SHUTDOWN", "Server forced to shutdown: "+err.Error())
	}

	log.Info("SHUTDOWN", "Registration Gateway shutdown completed successfully")
}

func setupRouter(groupHandler *handlers.GroupHandler) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()

	router.Use(middleware.EnhancedLogger(log))
	router.Use(middleware.Recovery(log))
	router.Use(middleware.CORS())
	router.Use(middleware.RateLimit(log))

	// Health check
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":    "healthy",
			"timestamp": time.Now().UTC(),
			"service":   "registration-gateway",
			"version":   "1.0.0",
		})
	})

	v1 := router.Group("/api/v1")
	{
		groups := v1.Group("/groups")
		{
			groups.POST("", groupHandler.CreateGroup)
			groups.GET("/:id", groupHandler.GetGroup)
			groups.POST("/:id/confirm", groupHandler.ConfirmGroup)
			groups.POST("/:id/reject", groupHandler.RejectGroup)
			groups.POST("/:id/resend-notification", groupHandler.ResendNotification)
			groups.POST("/:id/reconcile", groupHandler.ReconcileGroup)
			groups.DELETE("/:id", groupHandler.DeleteGroup)
			groups.GET("/:id/transactions", groupHandler.ListTransactions)
		}

		v1.GET("/availability", groupHandler.CheckAvailability)
	}

	log.LogProcess("ROUTER", "All routes registered successfully")
	return router
}

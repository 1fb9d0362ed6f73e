package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/joho/godotenv"

	"notary-payments/internal/config"
	"notary-payments/internal/handlers"
	"notary-payments/internal/kafka"
	"notary-payments/internal/logger"
	"notary-payments/internal/metrics"
	"notary-payments/internal/middleware"
	rediswrap "notary-payments/internal/redis"
	"notary-payments/internal/services"
	"notary-payments/internal/storage"
	"notary-payments/internal/telemetry"

	"github.com/gin-gonic/gin"
)

var log *logger.Logger

func main() {
	log = logger.NewLogger()
	defer log.Close()

	if err := godotenv.Load(); err != nil {
		log.Warn("ENV", "No .env file loaded, using environment variables")
	}

	log.LogProcess("STARTUP", "Notary payments service starting up...")

	cfg, err := config.Load()
	if err != nil {
		log.Fatal("CONFIG", "Invalid configuration: "+err.Error())
	}
	log.SetLevel(logger.ParseLevel(cfg.Log.Level))
	log.Info("CONFIG", "Configuration loaded: "+cfg.Razorpay.String())

	shutdownTracer, err := telemetry.InitTracer(context.Background(), cfg.Telemetry)
	if err != nil {
		log.Fatal("TELEMETRY", "Failed to initialize tracing: "+err.Error())
	}

	store := initStore(cfg.Database)
	defer store.Close()

	log.LogProcess("KAFKA", "Initializing Kafka producer...")
	kafkaProducer, err := kafka.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.MockMode, log)
	if err != nil {
		log.Fatal("KAFKA", "Failed to create Kafka producer: "+err.Error())
	}
	defer kafkaProducer.Close()

	healthChecks := map[string]handlers.Pinger{"store": store}

	// Left as a nil interface when dedup is off.
	var receipts services.ReceiptCache
	if cfg.Redis.ReceiptDedup {
		redisClient := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer redisClient.Close()

		cache := rediswrap.NewReceiptCache(redisClient, cfg.Redis.ReceiptTTL)
		pingCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		if err := cache.HealthCheck(pingCtx); err != nil {
			log.Warn("REDIS", "Redis not reachable yet, receipt dedup will degrade: "+err.Error())
		}
		cancel()

		receipts = cache
		healthChecks["redis"] = cache
		log.LogProcess("REDIS", "Receipt dedup enabled on "+cfg.Redis.Addr)
	}

	razorpayService, err := services.NewRazorpayService(cfg.Razorpay, log)
	if err != nil {
		log.Fatal("RAZORPAY", "Failed to initialize gateway client: "+err.Error())
	}
	if !razorpayService.WebhookConfigured() {
		log.Warn("RAZORPAY", "RAZORPAY_WEBHOOK_SECRET not set, webhook deliveries will be rejected")
	}

	paymentService := services.NewPaymentService(razorpayService, store, kafkaProducer, receipts, cfg.Razorpay.KeySecret, log)
	log.LogProcess("SERVICE", "Payment service initialized")

	paymentHandler := handlers.NewPaymentHandler(paymentService, log)
	webhookHandler := handlers.NewWebhookHandler(paymentService, log)
	healthHandler := handlers.NewHealthHandler(cfg.Telemetry.ServiceName, cfg.Telemetry.ServiceVersion, healthChecks)

	consumerCtx, stopConsumer := context.WithCancel(context.Background())
	defer stopConsumer()

	if cfg.Kafka.ConsumerEnabled {
		consumer, err := kafka.NewCapturedPaymentConsumer(cfg.Kafka.Brokers, cfg.Kafka.GroupID, log)
		if err != nil {
			log.Fatal("KAFKA", "Failed to create Kafka consumer: "+err.Error())
		}
		defer consumer.Close()

		go func() {
			log.LogKafka("START", kafka.TopicPaymentCaptured, "Starting Kafka consumer goroutine")
			if err := consumer.Consume(consumerCtx, paymentService.ProcessCapturedEvent); err != nil && !errors.Is(err, context.Canceled) {
				log.Error("KAFKA", "Consumer error: "+err.Error())
			}
		}()
	}

	router := setupRouter(cfg, paymentHandler, webhookHandler, healthHandler)

	srv := &http.Server{
		Addr:         cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		log.LogProcess("SERVER", "Starting HTTP server on port "+cfg.Server.Port)
		log.Info("STARTUP", "Health check available at: http://localhost"+cfg.Server.Port+"/health")
		log.Info("STARTUP", "Payment API available at: http://localhost"+cfg.Server.Port+"/api/payments")

		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("SERVER", "Server failed to start: "+err.Error())
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Warn("SHUTDOWN", "Received shutdown signal, initiating graceful shutdown...")
	stopConsumer()

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error("SHUTDOWN", "Server forced to shutdown: "+err.Error())
	}
	if err := shutdownTracer(ctx); err != nil {
		log.Error("SHUTDOWN", "Failed to flush traces: "+err.Error())
	}

	log.Info("SHUTDOWN", "Notary payments service stopped")
}

func initStore(cfg config.DatabaseConfig) storage.Store {
	if cfg.Backend == "memory" {
		log.Warn("DATABASE", "Using in-memory storage, order records will not survive a restart")
		return storage.NewInMemoryStore()
	}

	log.LogProcess("DATABASE", "Initializing MySQL database...")
	store, err := storage.NewMySQLStore(cfg, log)
	if err != nil {
		log.Fatal("DATABASE", "Failed to initialize MySQL: "+err.Error())
	}
	return store
}

func setupRouter(cfg *config.Config, paymentHandler *handlers.PaymentHandler, webhookHandler *handlers.WebhookHandler, healthHandler *handlers.HealthHandler) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()

	router.Use(middleware.EnhancedLogger(log))
	router.Use(middleware.Recovery(log))
	router.Use(middleware.Tracing(cfg.Telemetry.ServiceName))
	router.Use(middleware.SecurityHeaders(log))
	router.Use(middleware.CORS())
	router.Use(middleware.RateLimit(log, cfg.Server.RateLimitRPS, cfg.Server.RateLimitBurst))

	router.GET("/health", healthHandler.Health)
	router.GET("/metrics", gin.WrapH(metrics.Handler()))

	payments := router.Group("/api/payments")
	{
		payments.POST("/create-order", paymentHandler.CreateOrder)
		payments.POST("/verify", paymentHandler.VerifyPayment)
		payments.POST("/webhook", webhookHandler.HandleWebhook)
		payments.GET("/orders", paymentHandler.ListOrders)
		payments.GET("/orders/:id", paymentHandler.GetOrder)
	}

	log.LogProcess("ROUTER", "All routes registered successfully")
	return router
}

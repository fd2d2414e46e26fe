package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"storefront-orders/config"
	"storefront-orders/internal/api"
	"storefront-orders/internal/broker"
	"storefront-orders/internal/gateway"
	"storefront-orders/internal/redisclient"
	"storefront-orders/internal/service"
	"storefront-orders/internal/store"
	"storefront-orders/internal/util"
	"storefront-orders/internal/worker"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func main() {

	cfg := config.Load()

	if err := util.InitLogger(cfg.Server.Env, cfg.Server.LogLevel); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer util.SyncLogger()

	logger := util.GetLogger()
	logger.Info("Starting storefront orders service", zap.String("env", cfg.Server.Env))

	if cfg.Auth.JWTSecret == "" {
		logger.Fatal("JWT_SECRET must be set")
	}

	tp, err := util.InitTracer("storefront-orders", cfg.Observ.JaegerEndpoint, cfg.Observ.TraceSampleRatio)
	if err != nil {
		logger.Fatal("Failed to initialize tracer", zap.Error(err))
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(ctx); err != nil {
			logger.Warn("Error shutting down tracer", zap.Error(err))
		}
	}()

	db, err := store.NewStore(cfg.Database.URL)
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()
	logger.Info("Database connected")

	if cfg.Database.AutoMigrate {
		if err := db.Migrate(); err != nil {
			logger.Fatal("Failed to run migrations", zap.Error(err))
		}
		logger.Info("Migrations applied")
	}

	redisClient, err := redisclient.NewClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		logger.Fatal("Failed to connect to Redis", zap.Error(err))
	}
	defer redisClient.Close()
	logger.Info("Redis connected")

	producer := broker.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.TopicOrder)
	defer producer.Close()
	logger.Info("Kafka producer initialized", zap.String("topic", cfg.Kafka.TopicOrder))

	eventPublisher := broker.NewEventPublisher(producer)

	gatewayClient := gateway.NewClient(
		cfg.Gateway.BaseURL,
		cfg.Gateway.KeyID,
		cfg.Gateway.KeySecret,
		cfg.Gateway.Currency,
		cfg.Gateway.Timeout,
	)

	ledger := service.NewWalletLedger()
	inventory := service.NewInventoryAdjuster()

	settlement, checkoutGateway := paymentMethods(cfg.Business, ledger, gatewayClient, logger)

	checkout := service.NewCheckoutOrchestrator(service.CheckoutDeps{
		Tx:         db,
		Coupons:    service.NewCouponValidator(),
		Inventory:  inventory,
		Settlement: settlement,
		Pricing: service.Pricing{
			DeliveryCharge: cfg.Business.DeliveryCharge,
			TaxRate:        cfg.Business.TaxRate,
		},
		Session:     redisClient,
		Locker:      redisClient,
		Idempotency: redisClient,
		Publisher:   eventPublisher,
		Gateway:     checkoutGateway,
		Options: service.CheckoutOptions{
			CouponSessionTTL: cfg.Business.CouponSessionTTL,
			LockTTL:          cfg.Business.CheckoutLockTTL,
			IdempotencyTTL:   cfg.Business.IdempotencyTTL,
		},
	})
	lifecycle := service.NewOrderLifecycleManager(db, inventory, ledger, eventPublisher)
	walletService := service.NewWalletService(db, db, ledger)

	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()

	walletConsumer := broker.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.TopicOrder, cfg.Kafka.ConsumerGroup)
	walletWorker := worker.NewWalletWorker(walletConsumer, walletService)
	go func() {
		if err := walletWorker.Start(workerCtx); err != nil {
			logger.Error("Wallet worker error", zap.Error(err))
		}
	}()

	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	handler := api.NewHandler(checkout, lifecycle, walletService, map[string]api.ReadinessCheck{
		"postgres": db.Ping,
		"redis":    redisClient.Ping,
	})
	handler.SetupRoutes(router, api.RouterConfig{
		JWTSecret:      cfg.Auth.JWTSecret,
		AllowedOrigins: cfg.Server.AllowedOrigins,
		AccessLog:      cfg.Server.Env != "production",
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("Starting HTTP server", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}

	workerCancel()
	if err := walletWorker.Stop(); err != nil {
		logger.Warn("Error stopping wallet worker", zap.Error(err))
	}

	logger.Info("Server exited")
}

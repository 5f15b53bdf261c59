package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cinema-checkout/config"
	"cinema-checkout/internal/cache"
	"cinema-checkout/internal/client"
	"cinema-checkout/internal/database"
	"cinema-checkout/internal/handler"
	"cinema-checkout/internal/queue"
	"cinema-checkout/internal/repository"
	"cinema-checkout/internal/service"
	"cinema-checkout/internal/worker"
	"cinema-checkout/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg := config.LoadConfig()
	logger.Init(cfg.Server.LogLevel)
	log := logger.WithComponent("server")
	defer func() { _ = logger.L.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := database.InitDatabase(&cfg.Database)
	if err != nil {
		log.Fatal("Failed to initialize database", zap.Error(err))
	}
	defer pool.Close()

	if err := database.EnsureSchema(ctx, pool); err != nil {
		log.Fatal("Failed to create schema", zap.Error(err))
	}

	var rdb *redis.Client
	if cfg.Storage.Driver == "redis" || cfg.Queue.Driver == "redis" {
		rdb, err = database.InitRedis(&cfg.Redis)
		if err != nil {
			log.Fatal("Failed to initialize redis", zap.Error(err))
		}
		defer rdb.Close()
	}

	var store cache.Store
	switch cfg.Storage.Driver {
	case "redis":
		store = cache.NewRedisStore(rdb, cfg.Storage.Prefix)
	default:
		store = cache.NewMemoryStore()
	}

	var eventQueue queue.OrderEventQueue
	switch cfg.Queue.Driver {
	case "redis":
		eventQueue, err = queue.NewRedisStreamOrderEventQueue(rdb, "server-"+uuid.New().String(), nil)
		if err != nil {
			log.Fatal("Failed to initialize redis stream queue", zap.Error(err))
		}
	case "amqp":
		amqpQueue, err := queue.NewAMQPOrderEventQueue(cfg.Queue.RabbitMQURL, cfg.Queue.BufferSize)
		if err != nil {
			log.Fatal("Failed to initialize rabbitmq queue", zap.Error(err))
		}
		defer amqpQueue.Close()
		eventQueue = amqpQueue
	default:
		eventQueue = queue.NewMemoryOrderEventQueue(cfg.Queue.BufferSize)
	}

	historyService := service.NewOrderHistoryService(repository.NewOrderHistoryRepository(pool), store)
	historyWorker := worker.NewOrderHistoryWorker(historyService, eventQueue)
	if err := historyWorker.Start(ctx); err != nil {
		log.Fatal("Failed to start order history worker", zap.Error(err))
	}

	backend := client.NewBackendClient(cfg.Backend)
	registry := service.NewCheckoutRegistry(backend, store, eventQueue, cfg.Checkout)
	defer registry.Close()
	registry.StartSweeper(ctx, cfg.Checkout.IdleTimeout/2, cfg.Checkout.IdleTimeout)

	router := gin.Default()
	router.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"message": "pong",
		})
	})
	handler.NewCheckoutHandler(registry).RegisterRoutes(router)
	handler.NewOrderHistoryHandler(historyService).RegisterRoutes(router)

	srv := &http.Server{
		Addr:    ":" + cfg.Server.Port,
		Handler: router,
	}
	go func() {
		log.Info("Server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("Server stopped", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	log.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Server shutdown failed", zap.Error(err))
	}

	select {
	case <-historyWorker.Done():
	case <-shutdownCtx.Done():
		log.Warn("Order history worker did not stop in time")
	}
}

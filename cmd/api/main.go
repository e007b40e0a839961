package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"github.com/xsm-market/backend/internal/config"
	"github.com/xsm-market/backend/internal/db"
	"github.com/xsm-market/backend/internal/events"
	apphttp "github.com/xsm-market/backend/internal/http"
	"github.com/xsm-market/backend/internal/http/handlers"
	"github.com/xsm-market/backend/internal/repositories"
	"github.com/xsm-market/backend/internal/services"
	"go.uber.org/zap"
)

func main() {
	log, _ := zap.NewProduction()
	defer log.Sync()

	cfg := config.Load()
	cfg.Validate(log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Database
	pool, err := db.NewPostgresPool(ctx, cfg.PostgresDSN, log)
	if err != nil {
		log.Fatal("failed to connect to postgres", zap.Error(err))
	}
	defer pool.Close()

	// Run migrations
	if err := db.RunMigrations(ctx, pool, "migrations", log); err != nil {
		log.Fatal("failed to run migrations", zap.Error(err))
	}

	// Redis
	rdb, err := db.NewRedisClient(ctx, cfg.RedisURL, log)
	if err != nil {
		log.Fatal("failed to connect to redis", zap.Error(err))
	}
	defer rdb.Close()

	// Repositories
	dealRepo := repositories.NewDealRepo(pool)
	paymentRepo := repositories.NewPaymentRepo(pool)
	historyRepo := repositories.NewHistoryRepo(pool)
	chatRepo := repositories.NewChatRepo(pool)

	// Events
	publisher := events.NewRedisPublisher(rdb, log)
	subscriber := events.NewRedisSubscriber(rdb, log)

	// Services
	gateway := services.NewGatewayClient(cfg.GatewayBaseURL, cfg.GatewayAPIKey, cfg.GatewayTimeout, log)
	dealService := services.NewDealService(pool, dealRepo, historyRepo, publisher, cfg, log)
	paymentService := services.NewPaymentService(pool, dealRepo, paymentRepo, historyRepo, gateway, cfg, log)
	processor := services.NewWebhookProcessor(pool, dealRepo, paymentRepo, historyRepo, chatRepo, publisher, cfg, log)

	// Handlers
	dealHandler := handlers.NewDealHandler(dealService, log)
	paymentHandler := handlers.NewPaymentHandler(paymentService, log)
	webhookHandler := handlers.NewWebhookHandler(processor, log)
	wsHub := handlers.NewWSHub(cfg, subscriber, log)

	// Start WS hub
	wsHub.Start(ctx)

	// Fiber app
	app := fiber.New(fiber.Config{
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			if e, ok := err.(*fiber.Error); ok {
				code = e.Code
			}
			return c.Status(code).JSON(fiber.Map{"error": err.Error()})
		},
	})

	apphttp.SetupRouter(app, cfg, log, rdb, dealHandler, paymentHandler, webhookHandler, wsHub)

	// Graceful shutdown
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		log.Info("shutting down...")
		cancel()
		_ = app.Shutdown()
	}()

	addr := fmt.Sprintf(":%s", cfg.APIPort)
	log.Info("starting API server", zap.String("addr", addr))
	if err := app.Listen(addr); err != nil {
		log.Fatal("server error", zap.Error(err))
	}
}

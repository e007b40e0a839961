package http

import (
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/redis/go-redis/v9"
	"github.com/xsm-market/backend/internal/config"
	"github.com/xsm-market/backend/internal/http/handlers"
	"github.com/xsm-market/backend/internal/middleware"
	"go.uber.org/zap"
)

func SetupRouter(
	app *fiber.App,
	cfg *config.Config,
	log *zap.Logger,
	rdb *redis.Client,
	dealHandler *handlers.DealHandler,
	paymentHandler *handlers.PaymentHandler,
	webhookHandler *handlers.WebhookHandler,
	wsHub *handlers.WSHub,
) {
	// Global middleware
	app.Use(recover.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowHeaders: "Origin, Content-Type, Accept, Authorization, X-Request-ID",
	}))
	app.Use(middleware.RequestIDMiddleware())
	app.Use(middleware.LoggerMiddleware(log))

	// Health check
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	api := app.Group("/api/v1")

	// Gateway callbacks (public, signature-verified instead of authed)
	api.Post("/webhooks/payment", webhookHandler.HandlePaymentWebhook)

	// Rate-limited endpoints
	api.Use(middleware.RateLimitMiddleware(rdb, 100, time.Minute))

	// Protected endpoints
	protected := api.Group("", middleware.AuthMiddleware(cfg, log))

	// Deals
	protected.Post("/deals", dealHandler.CreateDeal)
	protected.Get("/deals/buyer", dealHandler.GetBuyerDeals)
	protected.Get("/deals/seller", dealHandler.GetSellerDeals)
	protected.Get("/deals/:id", dealHandler.GetDeal)
	protected.Post("/deals/:id/agree", dealHandler.SellerAgree)
	protected.Put("/deals/:id/status", dealHandler.UpdateDealStatus)
	protected.Post("/deals/:id/notes", dealHandler.AddNote)

	// Crypto payments
	protected.Post("/deals/:id/payments/crypto", paymentHandler.CreateCryptoPayment)
	protected.Get("/deals/:id/payments/crypto", paymentHandler.GetPaymentStatus)

	// Admin audit surface
	admin := protected.Group("/admin", middleware.AdminMiddleware(cfg))
	admin.Get("/deals/:id", dealHandler.GetDeal)
	admin.Post("/deals/:id/notes", dealHandler.AddNote)

	// WebSocket
	app.Use("/ws", handlers.WSUpgradeMiddleware())
	app.Get("/ws", websocket.New(wsHub.HandleWS))
}

package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/xsm-market/backend/internal/http/dto"
	"github.com/xsm-market/backend/internal/services"
	"go.uber.org/zap"
)

// SignatureHeader carries the gateway's HMAC over the notification body.
const SignatureHeader = "x-nowpayments-sig"

type WebhookHandler struct {
	processor *services.WebhookProcessor
	log       *zap.Logger
}

func NewWebhookHandler(processor *services.WebhookProcessor, log *zap.Logger) *WebhookHandler {
	return &WebhookHandler{processor: processor, log: log}
}

// HandlePaymentWebhook receives gateway IPN callbacks. The raw body is passed
// through untouched so signature verification sees exactly what was signed.
func (h *WebhookHandler) HandlePaymentWebhook(c *fiber.Ctx) error {
	raw := c.Body()
	signature := c.Get(SignatureHeader)

	if err := h.processor.Process(c.Context(), raw, signature); err != nil {
		h.log.Warn("payment webhook rejected", zap.Error(err))
		return respondError(c, err)
	}

	return c.JSON(dto.WebhookAckResponse{Success: true})
}

package handlers

import (
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/xsm-market/backend/internal/http/dto"
	"github.com/xsm-market/backend/internal/middleware"
	"github.com/xsm-market/backend/internal/services"
	"go.uber.org/zap"
)

type PaymentHandler struct {
	paymentService *services.PaymentService
	log            *zap.Logger
}

func NewPaymentHandler(paymentService *services.PaymentService, log *zap.Logger) *PaymentHandler {
	return &PaymentHandler{paymentService: paymentService, log: log}
}

func (h *PaymentHandler) CreateCryptoPayment(c *fiber.Ctx) error {
	dealID, err := strconv.ParseInt(c.Params("id"), 10, 64)
	if err != nil || dealID <= 0 {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid deal id"})
	}

	var req dto.CreateCryptoPaymentRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid request"})
	}

	payment, err := h.paymentService.CreateCryptoPayment(c.Context(), dealID, middleware.GetUserID(c), req.PayCurrency)
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(dto.SuccessResponse{OK: true, Data: payment})
}

func (h *PaymentHandler) GetPaymentStatus(c *fiber.Ctx) error {
	dealID, err := strconv.ParseInt(c.Params("id"), 10, 64)
	if err != nil || dealID <= 0 {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid deal id"})
	}

	payment, err := h.paymentService.GetPaymentStatus(c.Context(), dealID, middleware.GetUserID(c))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: payment})
}

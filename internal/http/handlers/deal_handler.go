package handlers

import (
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/xsm-market/backend/internal/http/dto"
	"github.com/xsm-market/backend/internal/middleware"
	"github.com/xsm-market/backend/internal/services"
	"go.uber.org/zap"
)

type DealHandler struct {
	dealService *services.DealService
	log         *zap.Logger
}

func NewDealHandler(dealService *services.DealService, log *zap.Logger) *DealHandler {
	return &DealHandler{dealService: dealService, log: log}
}

func (h *DealHandler) CreateDeal(c *fiber.Ctx) error {
	var req dto.CreateDealRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid request"})
	}

	buyerID := middleware.GetUserID(c)
	deal, err := h.dealService.CreateDeal(c.Context(), buyerID, services.CreateDealInput{
		SellerID:         req.SellerID,
		ChannelID:        req.ChannelID,
		ChannelTitle:     req.ChannelTitle,
		ChannelPrice:     req.ChannelPrice,
		EscrowFee:        req.EscrowFee,
		EscrowFeePercent: req.EscrowFeePercent,
		TransactionType:  req.TransactionType,
		BuyerEmail:       req.BuyerEmail,
		PaymentMethods:   req.PaymentMethods,
		TransactionID:    req.TransactionID,
	})
	if err != nil {
		return respondError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(dto.SuccessResponse{OK: true, Data: deal})
}

func (h *DealHandler) GetDeal(c *fiber.Ctx) error {
	dealID, err := strconv.ParseInt(c.Params("id"), 10, 64)
	if err != nil || dealID <= 0 {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid deal id"})
	}

	deal, err := h.dealService.GetDealWithDetails(c.Context(), dealID, middleware.GetUserID(c))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: deal})
}

func (h *DealHandler) GetBuyerDeals(c *fiber.Ctx) error {
	deals, err := h.dealService.GetBuyerDeals(c.Context(), middleware.GetUserID(c))
	if err != nil {
		h.log.Error("list buyer deals failed", zap.Error(err))
		return respondError(c, err)
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: deals})
}

func (h *DealHandler) GetSellerDeals(c *fiber.Ctx) error {
	deals, err := h.dealService.GetSellerDeals(c.Context(), middleware.GetUserID(c))
	if err != nil {
		h.log.Error("list seller deals failed", zap.Error(err))
		return respondError(c, err)
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: deals})
}

func (h *DealHandler) SellerAgree(c *fiber.Ctx) error {
	dealID, err := strconv.ParseInt(c.Params("id"), 10, 64)
	if err != nil || dealID <= 0 {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid deal id"})
	}

	deal, err := h.dealService.SellerAgree(c.Context(), dealID, middleware.GetUserID(c))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: deal})
}

func (h *DealHandler) UpdateDealStatus(c *fiber.Ctx) error {
	dealID, err := strconv.ParseInt(c.Params("id"), 10, 64)
	if err != nil || dealID <= 0 {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid deal id"})
	}

	var req dto.UpdateDealStatusRequest
	if err := c.BodyParser(&req); err != nil || req.Status == "" {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "status is required"})
	}

	deal, err := h.dealService.UpdateDealStatus(c.Context(), dealID, middleware.GetUserID(c), req.Status, req.Note)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: deal})
}

func (h *DealHandler) AddNote(c *fiber.Ctx) error {
	dealID, err := strconv.ParseInt(c.Params("id"), 10, 64)
	if err != nil || dealID <= 0 {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid deal id"})
	}

	var req dto.AddNoteRequest
	if err := c.BodyParser(&req); err != nil || req.Text == "" {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "text is required"})
	}

	if err := h.dealService.AddNote(c.Context(), dealID, middleware.GetUserID(c), req.Text); err != nil {
		return respondError(c, err)
	}
	return c.JSON(dto.SuccessResponse{OK: true})
}

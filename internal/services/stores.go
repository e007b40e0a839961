package services

import (
	"context"
	"time"

	"github.com/xsm-market/backend/internal/models"
)

// Narrow store surfaces consumed inside a transaction. The concrete
// repositories satisfy them; tests substitute in-memory fakes.

type dealStore interface {
	GetByIDForUpdate(ctx context.Context, id int64) (*models.Deal, error)
	MarkFeePaid(ctx context.Context, id int64, method string, at time.Time) error
	MarkAgentEmailSent(ctx context.Context, id int64, at time.Time) error
}

type paymentStore interface {
	Create(ctx context.Context, p *models.CryptoPayment) error
	Upsert(ctx context.Context, p *models.CryptoPayment) error
	GetPendingByDeal(ctx context.Context, dealID int64) (*models.CryptoPayment, error)
}

type historyStore interface {
	Append(ctx context.Context, e *models.DealHistoryEntry) error
}

type chatStore interface {
	FindInquiryConversation(ctx context.Context, buyerID, sellerID, adID int64) (*models.Conversation, error)
	PostSystemMessage(ctx context.Context, conversationID int64, body string) (*models.Message, error)
}

// PaymentGateway is the slice of the hosted gateway the payment flows use.
// *GatewayClient is the production implementation.
type PaymentGateway interface {
	CreatePayment(ctx context.Context, in CreatePaymentInput) (*GatewayPayment, error)
	GetPaymentStatus(ctx context.Context, externalPaymentID string) (*GatewayPayment, error)
}

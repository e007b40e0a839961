package services

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/xsm-market/backend/internal/models"
)

// In-memory stand-ins for the tx-scoped store interfaces.

type fakeDealStore struct {
	deal            *models.Deal
	feePaidCalls    int
	agentEmailCalls int
}

func (f *fakeDealStore) GetByIDForUpdate(_ context.Context, id int64) (*models.Deal, error) {
	if f.deal == nil || f.deal.ID != id {
		return nil, pgx.ErrNoRows
	}
	d := *f.deal
	return &d, nil
}

func (f *fakeDealStore) MarkFeePaid(_ context.Context, id int64, method string, at time.Time) error {
	f.feePaidCalls++
	f.deal.FeePaid = true
	f.deal.FeePaidAt = &at
	f.deal.FeePaidMethod = &method
	f.deal.Status = models.DealStatusFeePaid
	return nil
}

func (f *fakeDealStore) MarkAgentEmailSent(_ context.Context, id int64, at time.Time) error {
	f.agentEmailCalls++
	f.deal.AgentEmailSent = true
	f.deal.AgentEmailSentAt = &at
	f.deal.Status = models.DealStatusAgentAccessPending
	return nil
}

type fakePaymentStore struct {
	rows    []*models.CryptoPayment
	upserts int
}

func (f *fakePaymentStore) Create(_ context.Context, p *models.CryptoPayment) error {
	p.ID = int64(len(f.rows) + 1)
	f.rows = append(f.rows, p)
	return nil
}

func (f *fakePaymentStore) Upsert(_ context.Context, p *models.CryptoPayment) error {
	f.upserts++
	for i, row := range f.rows {
		if row.ExternalPaymentID == p.ExternalPaymentID {
			p.ID = row.ID
			f.rows[i] = p
			return nil
		}
	}
	p.ID = int64(len(f.rows) + 1)
	f.rows = append(f.rows, p)
	return nil
}

func (f *fakePaymentStore) GetPendingByDeal(_ context.Context, dealID int64) (*models.CryptoPayment, error) {
	for _, row := range f.rows {
		if row.DealID == dealID && models.PaymentStatus(row.Status).IsPending() {
			return row, nil
		}
	}
	return nil, pgx.ErrNoRows
}

type fakeHistoryStore struct {
	entries []models.DealHistoryEntry
}

func (f *fakeHistoryStore) Append(_ context.Context, e *models.DealHistoryEntry) error {
	f.entries = append(f.entries, *e)
	return nil
}

func (f *fakeHistoryStore) countByAction(action string) int {
	n := 0
	for _, e := range f.entries {
		if e.ActionType == action {
			n++
		}
	}
	return n
}

type fakeChatStore struct {
	conv     *models.Conversation
	messages []string
}

func (f *fakeChatStore) FindInquiryConversation(_ context.Context, buyerID, sellerID, adID int64) (*models.Conversation, error) {
	if f.conv == nil {
		return nil, pgx.ErrNoRows
	}
	return f.conv, nil
}

func (f *fakeChatStore) PostSystemMessage(_ context.Context, conversationID int64, body string) (*models.Message, error) {
	f.messages = append(f.messages, body)
	return &models.Message{
		ID:             int64(len(f.messages)),
		ConversationID: conversationID,
		Body:           body,
		IsSystem:       true,
	}, nil
}

type fakeGateway struct {
	payment     *GatewayPayment
	createErr   error
	statusErr   error
	createCalls int
	lastCreate  CreatePaymentInput
}

func (f *fakeGateway) CreatePayment(_ context.Context, in CreatePaymentInput) (*GatewayPayment, error) {
	f.createCalls++
	f.lastCreate = in
	if f.createErr != nil {
		return nil, f.createErr
	}
	return f.payment, nil
}

func (f *fakeGateway) GetPaymentStatus(_ context.Context, externalPaymentID string) (*GatewayPayment, error) {
	if f.statusErr != nil {
		return nil, f.statusErr
	}
	return f.payment, nil
}

package services

import (
	"context"
	"testing"

	"github.com/xsm-market/backend/internal/apperr"
	"github.com/xsm-market/backend/internal/config"
	"github.com/xsm-market/backend/internal/models"
	"go.uber.org/zap"
)

func quoteFixtures(gw *fakeGateway) (*PaymentService, *fakeDealStore, *fakePaymentStore, *fakeHistoryStore) {
	s := &PaymentService{
		gateway: gw,
		cfg:     &config.Config{PriceCurrency: "usd"},
		log:     zap.NewNop(),
	}
	deals := &fakeDealStore{deal: &models.Deal{
		ID:           7,
		BuyerID:      1,
		SellerID:     2,
		BuyerEmail:   "buyer@example.com",
		ChannelTitle: "Crypto News Daily",
		EscrowFee:    "24.00",
		Status:       models.DealStatusTermsAgreed,
	}}
	return s, deals, &fakePaymentStore{}, &fakeHistoryStore{}
}

func TestCreateQuoteReusesOutstandingPayment(t *testing.T) {
	gw := &fakeGateway{payment: &GatewayPayment{ExternalPaymentID: "900100", Status: "waiting"}}
	s, deals, payments, history := quoteFixtures(gw)

	first, err := s.createQuote(context.Background(), deals, payments, history, 7, 1, "btc")
	if err != nil {
		t.Fatalf("first quote failed: %v", err)
	}
	second, err := s.createQuote(context.Background(), deals, payments, history, 7, 1, "btc")
	if err != nil {
		t.Fatalf("second quote failed: %v", err)
	}

	if gw.createCalls != 1 {
		t.Errorf("gateway create calls = %d, want 1", gw.createCalls)
	}
	if second.ExternalPaymentID != first.ExternalPaymentID {
		t.Errorf("second quote payment id = %q, want %q", second.ExternalPaymentID, first.ExternalPaymentID)
	}
	if len(payments.rows) != 1 {
		t.Errorf("stored payment rows = %d, want 1", len(payments.rows))
	}
}

func TestCreateQuoteSendsBuyerEmail(t *testing.T) {
	gw := &fakeGateway{payment: &GatewayPayment{ExternalPaymentID: "900101", Status: "waiting"}}
	s, deals, payments, history := quoteFixtures(gw)

	if _, err := s.createQuote(context.Background(), deals, payments, history, 7, 1, "btc"); err != nil {
		t.Fatalf("quote failed: %v", err)
	}
	if gw.lastCreate.CustomerEmail != "buyer@example.com" {
		t.Errorf("customer email = %q, want %q", gw.lastCreate.CustomerEmail, "buyer@example.com")
	}
	if dealID, err := ParseOrderID(gw.lastCreate.OrderID); err != nil || dealID != 7 {
		t.Errorf("order id %q does not round-trip to deal 7", gw.lastCreate.OrderID)
	}
}

func TestCreateQuoteAfterFeePaid(t *testing.T) {
	gw := &fakeGateway{payment: &GatewayPayment{ExternalPaymentID: "900102", Status: "waiting"}}
	s, deals, payments, history := quoteFixtures(gw)
	deals.deal.FeePaid = true

	_, err := s.createQuote(context.Background(), deals, payments, history, 7, 1, "btc")
	if apperr.CodeOf(err) != apperr.CodeConflict {
		t.Errorf("fee-paid quote error code = %q, want %q", apperr.CodeOf(err), apperr.CodeConflict)
	}
	if gw.createCalls != 0 {
		t.Errorf("gateway called %d times for a paid deal", gw.createCalls)
	}
}

func TestCreateQuoteNotParty(t *testing.T) {
	gw := &fakeGateway{payment: &GatewayPayment{ExternalPaymentID: "900103", Status: "waiting"}}
	s, deals, payments, history := quoteFixtures(gw)

	_, err := s.createQuote(context.Background(), deals, payments, history, 7, 99, "btc")
	if apperr.CodeOf(err) != apperr.CodeForbidden {
		t.Errorf("outsider quote error code = %q, want %q", apperr.CodeOf(err), apperr.CodeForbidden)
	}
}

func TestCreateQuoteUpstreamFailureLeavesNothing(t *testing.T) {
	gw := &fakeGateway{createErr: apperr.New(apperr.CodeUpstream, "payment gateway returned 502")}
	s, deals, payments, history := quoteFixtures(gw)

	_, err := s.createQuote(context.Background(), deals, payments, history, 7, 1, "btc")
	if apperr.CodeOf(err) != apperr.CodeUpstream {
		t.Errorf("upstream failure error code = %q, want %q", apperr.CodeOf(err), apperr.CodeUpstream)
	}
	if len(payments.rows) != 0 {
		t.Errorf("payment rows persisted after upstream failure: %d", len(payments.rows))
	}
	if len(history.entries) != 0 {
		t.Errorf("history entries persisted after upstream failure: %d", len(history.entries))
	}
}

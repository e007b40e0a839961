package services

import (
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/xsm-market/backend/internal/apperr"
	"github.com/xsm-market/backend/internal/models"
)

func testTime() time.Time {
	return time.Unix(1756400000, 0)
}

func validCreateDealInput() CreateDealInput {
	return CreateDealInput{
		SellerID:       2,
		ChannelID:      10,
		ChannelTitle:   "Crypto News Daily",
		ChannelPrice:   "500.00",
		EscrowFee:      "24.00",
		BuyerEmail:     "buyer@example.com",
		PaymentMethods: []string{"crypto", "bank_transfer"},
		TransactionID:  "TXN-2024-0001",
	}
}

func TestValidateCreateDeal(t *testing.T) {
	if err := ValidateCreateDeal(validCreateDealInput()); err != nil {
		t.Errorf("valid input rejected: %v", err)
	}

	tests := []struct {
		name    string
		missing string
		mutate  func(*CreateDealInput)
	}{
		{"missing seller", "sellerId", func(in *CreateDealInput) { in.SellerID = 0 }},
		{"missing channel id", "channelId", func(in *CreateDealInput) { in.ChannelID = 0 }},
		{"missing channel title", "channelTitle", func(in *CreateDealInput) { in.ChannelTitle = "" }},
		{"missing channel price", "channelPrice", func(in *CreateDealInput) { in.ChannelPrice = "" }},
		{"missing escrow fee", "escrowFee", func(in *CreateDealInput) { in.EscrowFee = "" }},
		{"missing buyer email", "buyerEmail", func(in *CreateDealInput) { in.BuyerEmail = "" }},
		{"missing payment methods", "paymentMethods", func(in *CreateDealInput) { in.PaymentMethods = nil }},
		{"missing transaction id", "transactionId", func(in *CreateDealInput) { in.TransactionID = "" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := validCreateDealInput()
			tt.mutate(&in)
			err := ValidateCreateDeal(in)
			if err == nil {
				t.Fatal("expected validation error, got nil")
			}
			if apperr.CodeOf(err) != apperr.CodeValidation {
				t.Errorf("error code = %q, want %q", apperr.CodeOf(err), apperr.CodeValidation)
			}
			if !strings.Contains(err.Error(), tt.missing) {
				t.Errorf("error %q does not name missing field %q", err.Error(), tt.missing)
			}
		})
	}
}

func TestValidateCreateDealTransactionType(t *testing.T) {
	for _, txType := range []string{"", "safest", "recommended"} {
		in := validCreateDealInput()
		in.TransactionType = txType
		if err := ValidateCreateDeal(in); err != nil {
			t.Errorf("transaction type %q rejected: %v", txType, err)
		}
	}

	in := validCreateDealInput()
	in.TransactionType = "fastest"
	if err := ValidateCreateDeal(in); err == nil {
		t.Error("unknown transaction type accepted")
	}
}

func TestCanSellerAgree(t *testing.T) {
	tests := []struct {
		name string
		deal models.Deal
		ok   bool
	}{
		{"seller reviewing", models.Deal{Status: models.DealStatusSellerReviewing}, true},
		{"payment negotiation", models.Deal{Status: models.DealStatusPaymentNegotiation}, true},
		{"already agreed", models.Deal{Status: models.DealStatusSellerReviewing, SellerAgreed: true}, false},
		{"agreed and fee paid", models.Deal{Status: models.DealStatusFeePaid, SellerAgreed: true}, false},
		{"fee paid", models.Deal{Status: models.DealStatusFeePaid}, false},
		{"agent access pending", models.Deal{Status: models.DealStatusAgentAccessPending, SellerAgreed: true}, false},
		{"terms already agreed", models.Deal{Status: models.DealStatusTermsAgreed}, false},
		{"cancelled", models.Deal{Status: models.DealStatusCancelled}, false},
		{"completed", models.Deal{Status: models.DealStatusCompleted}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := canSellerAgree(&tt.deal)
			if tt.ok {
				if err != nil {
					t.Errorf("canSellerAgree rejected: %v", err)
				}
				return
			}
			if apperr.CodeOf(err) != apperr.CodeConflict {
				t.Errorf("error code = %q, want %q", apperr.CodeOf(err), apperr.CodeConflict)
			}
		})
	}
}

func TestIsUniqueViolation(t *testing.T) {
	wrapped := fmt.Errorf("create deal: %w", &pgconn.PgError{Code: "23505"})
	if !isUniqueViolation(wrapped) {
		t.Error("wrapped unique_violation not detected")
	}
	if isUniqueViolation(&pgconn.PgError{Code: "23503"}) {
		t.Error("foreign key violation misread as unique_violation")
	}
	if isUniqueViolation(errors.New("plain error")) {
		t.Error("plain error misread as unique_violation")
	}
	if isUniqueViolation(nil) {
		t.Error("nil error misread as unique_violation")
	}
}

package services

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"testing"

	"github.com/xsm-market/backend/internal/apperr"
	"github.com/xsm-market/backend/internal/config"
	"github.com/xsm-market/backend/internal/models"
	"go.uber.org/zap"
)

func TestParseOrderID(t *testing.T) {
	tests := []struct {
		input    string
		expected int64
		wantErr  bool
	}{
		{"deal_42_1700000000", 42, false},
		{"deal_1_1", 1, false},
		{"deal_9000123_1756400000", 9000123, false},
		{"deal_42", 0, true},
		{"deal_42_", 0, true},
		{"deal__1700000000", 0, true},
		{"deal_abc_1700000000", 0, true},
		{"order_42_1700000000", 0, true},
		{"deal_42_1700000000_extra", 0, true},
		{"deal_-42_1700000000", 0, true},
		{"deal_42_17000x0000", 0, true},
		{"", 0, true},
		{"DEAL_42_1700000000", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			dealID, err := ParseOrderID(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("ParseOrderID(%q) = %d, want error", tt.input, dealID)
				}
				if apperr.CodeOf(err) != apperr.CodeBadRequest {
					t.Errorf("ParseOrderID(%q) error code = %q, want %q", tt.input, apperr.CodeOf(err), apperr.CodeBadRequest)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseOrderID(%q) unexpected error: %v", tt.input, err)
			}
			if dealID != tt.expected {
				t.Errorf("ParseOrderID(%q) = %d, want %d", tt.input, dealID, tt.expected)
			}
		})
	}
}

func TestNewOrderIDRoundTrips(t *testing.T) {
	orderID := NewOrderID(77, testTime())
	dealID, err := ParseOrderID(orderID)
	if err != nil {
		t.Fatalf("ParseOrderID(%q) unexpected error: %v", orderID, err)
	}
	if dealID != 77 {
		t.Errorf("round trip deal id = %d, want 77", dealID)
	}
}

func TestValidateNotification(t *testing.T) {
	valid := func() WebhookNotification {
		return WebhookNotification{
			PaymentID:     json.Number("123456"),
			PaymentStatus: "finished",
			OrderID:       "deal_1_1700000000",
		}
	}

	n := valid()
	if err := ValidateNotification(&n); err != nil {
		t.Errorf("valid notification rejected: %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*WebhookNotification)
	}{
		{"missing payment_id", func(n *WebhookNotification) { n.PaymentID = json.Number("") }},
		{"missing payment_status", func(n *WebhookNotification) { n.PaymentStatus = "" }},
		{"missing order_id", func(n *WebhookNotification) { n.OrderID = "" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n := valid()
			tt.mutate(&n)
			err := ValidateNotification(&n)
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			if apperr.CodeOf(err) != apperr.CodeBadRequest {
				t.Errorf("error code = %q, want %q", apperr.CodeOf(err), apperr.CodeBadRequest)
			}
		})
	}
}

func signBody(t *testing.T, raw []byte, secret string) string {
	t.Helper()
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var payload map[string]any
	if err := dec.Decode(&payload); err != nil {
		t.Fatalf("test body is not valid JSON: %v", err)
	}
	sorted, _ := json.Marshal(payload)
	mac := hmac.New(sha512.New, []byte(secret))
	mac.Write(sorted)
	return hex.EncodeToString(mac.Sum(nil))
}

func TestVerifyIPNSignature(t *testing.T) {
	secret := "ipn-secret"
	// Keys deliberately out of order: the signature is computed over the
	// sorted rendering, so field order on the wire must not matter.
	raw := []byte(`{"payment_status":"finished","payment_id":123,"order_id":"deal_1_1700000000"}`)

	sig := signBody(t, raw, secret)
	if err := VerifyIPNSignature(raw, sig, secret); err != nil {
		t.Errorf("valid signature rejected: %v", err)
	}

	if err := VerifyIPNSignature(raw, "", secret); err == nil {
		t.Error("missing signature accepted")
	}
	if err := VerifyIPNSignature(raw, sig, "other-secret"); err == nil {
		t.Error("signature from wrong secret accepted")
	}
	if err := VerifyIPNSignature(raw, "deadbeef", secret); err == nil {
		t.Error("garbage signature accepted")
	}
	if err := VerifyIPNSignature([]byte("not json"), sig, secret); err == nil {
		t.Error("non-JSON body accepted")
	}

	tampered := []byte(`{"payment_status":"finished","payment_id":999,"order_id":"deal_1_1700000000"}`)
	if err := VerifyIPNSignature(tampered, sig, secret); err == nil {
		t.Error("tampered body accepted under old signature")
	}
}

func TestVerifyIPNSignaturePreservesNumberLexemes(t *testing.T) {
	secret := "ipn-secret"

	// Keys pre-sorted so the signature is over the raw bytes themselves.
	// payment_id is 2^53+1: a float64 round trip would re-render it and the
	// comparison would miss.
	raw := []byte(`{"order_id":"deal_1_1700000000","payment_id":9007199254740993,"payment_status":"finished"}`)
	mac := hmac.New(sha512.New, []byte(secret))
	mac.Write(raw)
	sig := hex.EncodeToString(mac.Sum(nil))
	if err := VerifyIPNSignature(raw, sig, secret); err != nil {
		t.Errorf("body with large payment_id rejected: %v", err)
	}

	// Same for long-precision decimal amounts.
	raw = []byte(`{"actually_paid":0.000001234567891234,"order_id":"deal_1_1700000000"}`)
	mac = hmac.New(sha512.New, []byte(secret))
	mac.Write(raw)
	sig = hex.EncodeToString(mac.Sum(nil))
	if err := VerifyIPNSignature(raw, sig, secret); err != nil {
		t.Errorf("body with long-precision amount rejected: %v", err)
	}
}

func TestVerifyIPNSignatureErrorCodes(t *testing.T) {
	raw := []byte(`{"payment_id":1}`)
	if code := apperr.CodeOf(VerifyIPNSignature(raw, "", "s")); code != apperr.CodeForbidden {
		t.Errorf("missing signature code = %q, want %q", code, apperr.CodeForbidden)
	}
	if code := apperr.CodeOf(VerifyIPNSignature(raw, "bad", "s")); code != apperr.CodeForbidden {
		t.Errorf("bad signature code = %q, want %q", code, apperr.CodeForbidden)
	}
	if code := apperr.CodeOf(VerifyIPNSignature([]byte("{"), "bad", "s")); code != apperr.CodeBadRequest {
		t.Errorf("broken body code = %q, want %q", code, apperr.CodeBadRequest)
	}
}

func reconcileFixtures() (*WebhookProcessor, *fakeDealStore, *fakePaymentStore, *fakeHistoryStore, *fakeChatStore) {
	p := &WebhookProcessor{
		cfg: &config.Config{PriceCurrency: "usd"},
		log: zap.NewNop(),
	}
	deals := &fakeDealStore{deal: &models.Deal{
		ID:           42,
		BuyerID:      1,
		SellerID:     2,
		AdID:         7,
		ChannelTitle: "Crypto News Daily",
		Status:       models.DealStatusTermsAgreed,
	}}
	return p, deals, &fakePaymentStore{}, &fakeHistoryStore{}, &fakeChatStore{conv: &models.Conversation{ID: 9}}
}

func TestReconcileDuplicateSuccessAppliesOnce(t *testing.T) {
	p, deals, payments, history, chat := reconcileFixtures()

	n := &WebhookNotification{
		PaymentID:     json.Number("555001"),
		PaymentStatus: "finished",
		OrderID:       "deal_42_1756400000",
		ActuallyPaid:  json.Number("24.00"),
		PayCurrency:   "btc",
	}
	status := models.ParsePaymentStatus(n.PaymentStatus)

	for i := 0; i < 2; i++ {
		var feePaidNow bool
		err := p.reconcile(context.Background(), deals, payments, history, chat, 42, n, status, []byte(`{}`), &feePaidNow)
		if err != nil {
			t.Fatalf("delivery %d failed: %v", i+1, err)
		}
		if want := i == 0; feePaidNow != want {
			t.Errorf("delivery %d: feePaidNow = %v, want %v", i+1, feePaidNow, want)
		}
	}

	if deals.feePaidCalls != 1 {
		t.Errorf("fee paid latch written %d times, want 1", deals.feePaidCalls)
	}
	if deals.agentEmailCalls != 1 {
		t.Errorf("agent email latch written %d times, want 1", deals.agentEmailCalls)
	}
	if got := history.countByAction(models.HistoryActionFeePaid); got != 1 {
		t.Errorf("fee_paid history entries = %d, want 1", got)
	}
	if got := history.countByAction(models.HistoryActionAgentEmailSent); got != 1 {
		t.Errorf("agent_email_sent history entries = %d, want 1", got)
	}
	if len(chat.messages) != 1 {
		t.Errorf("chat messages = %d, want 1", len(chat.messages))
	}
	// The payment row itself is refreshed on every delivery.
	if payments.upserts != 2 {
		t.Errorf("payment upserts = %d, want 2", payments.upserts)
	}
	if len(payments.rows) != 1 {
		t.Errorf("payment rows = %d, want 1", len(payments.rows))
	}
}

func TestReconcileSuccessWithoutConversation(t *testing.T) {
	p, deals, payments, history, chat := reconcileFixtures()
	chat.conv = nil

	n := &WebhookNotification{
		PaymentID:     json.Number("555002"),
		PaymentStatus: "confirmed",
		OrderID:       "deal_42_1756400000",
	}

	var feePaidNow bool
	err := p.reconcile(context.Background(), deals, payments, history, chat, 42, n, models.ParsePaymentStatus(n.PaymentStatus), []byte(`{}`), &feePaidNow)
	if err != nil {
		t.Fatalf("reconcile failed: %v", err)
	}
	if !feePaidNow {
		t.Error("feePaidNow = false, want true")
	}
	if len(chat.messages) != 0 {
		t.Errorf("chat messages = %d, want 0", len(chat.messages))
	}
	if deals.feePaidCalls != 1 || deals.agentEmailCalls != 1 {
		t.Errorf("latch writes = (%d, %d), want (1, 1)", deals.feePaidCalls, deals.agentEmailCalls)
	}
}

func TestReconcileFailureLeavesDealUntouched(t *testing.T) {
	p, deals, payments, history, chat := reconcileFixtures()

	n := &WebhookNotification{
		PaymentID:     json.Number("555003"),
		PaymentStatus: "expired",
		OrderID:       "deal_42_1756400000",
	}

	var feePaidNow bool
	err := p.reconcile(context.Background(), deals, payments, history, chat, 42, n, models.ParsePaymentStatus(n.PaymentStatus), []byte(`{}`), &feePaidNow)
	if err != nil {
		t.Fatalf("reconcile failed: %v", err)
	}
	if feePaidNow {
		t.Error("feePaidNow = true for a failed payment")
	}
	if deals.deal.Status != models.DealStatusTermsAgreed {
		t.Errorf("deal status = %q, want %q", deals.deal.Status, models.DealStatusTermsAgreed)
	}
	if deals.feePaidCalls != 0 || deals.deal.FeePaid {
		t.Error("fee paid latch written for a failed payment")
	}
	if got := history.countByAction(models.HistoryActionNoteAdded); got != 1 {
		t.Errorf("note_added history entries = %d, want 1", got)
	}
	if len(chat.messages) != 0 {
		t.Errorf("chat messages = %d, want 0", len(chat.messages))
	}
	if payments.upserts != 1 {
		t.Errorf("payment upserts = %d, want 1", payments.upserts)
	}
}

func TestReconcileUnknownDeal(t *testing.T) {
	p, deals, payments, history, chat := reconcileFixtures()

	n := &WebhookNotification{
		PaymentID:     json.Number("555004"),
		PaymentStatus: "finished",
		OrderID:       "deal_99_1756400000",
	}

	var feePaidNow bool
	err := p.reconcile(context.Background(), deals, payments, history, chat, 99, n, models.ParsePaymentStatus(n.PaymentStatus), []byte(`{}`), &feePaidNow)
	if apperr.CodeOf(err) != apperr.CodeBadRequest {
		t.Errorf("unknown deal error code = %q, want %q", apperr.CodeOf(err), apperr.CodeBadRequest)
	}
	if len(payments.rows) != 0 || len(history.entries) != 0 {
		t.Error("writes happened for an unknown deal")
	}
}

package services

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/xsm-market/backend/internal/apperr"
	"github.com/xsm-market/backend/internal/config"
	"github.com/xsm-market/backend/internal/events"
	"github.com/xsm-market/backend/internal/models"
	"github.com/xsm-market/backend/internal/repositories"
	"go.uber.org/zap"
)

// WebhookProcessor turns at-least-once, possibly out-of-order gateway
// notifications into exactly-once deal transitions. Everything it writes for
// one delivery happens inside a single transaction; the deal's fee_paid latch
// is the idempotence boundary for the success side effects.
type WebhookProcessor struct {
	pool        *pgxpool.Pool
	dealRepo    *repositories.DealRepo
	paymentRepo *repositories.PaymentRepo
	historyRepo *repositories.HistoryRepo
	chatRepo    *repositories.ChatRepo
	publisher   events.Publisher
	cfg         *config.Config
	log         *zap.Logger
}

func NewWebhookProcessor(
	pool *pgxpool.Pool,
	dealRepo *repositories.DealRepo,
	paymentRepo *repositories.PaymentRepo,
	historyRepo *repositories.HistoryRepo,
	chatRepo *repositories.ChatRepo,
	publisher events.Publisher,
	cfg *config.Config,
	log *zap.Logger,
) *WebhookProcessor {
	return &WebhookProcessor{
		pool:        pool,
		dealRepo:    dealRepo,
		paymentRepo: paymentRepo,
		historyRepo: historyRepo,
		chatRepo:    chatRepo,
		publisher:   publisher,
		cfg:         cfg,
		log:         log,
	}
}

// WebhookNotification is the field set extracted from a gateway callback.
// Numeric fields arrive as JSON numbers; they are kept as their decimal
// rendering end to end.
type WebhookNotification struct {
	PaymentID       json.Number `json:"payment_id"`
	PaymentStatus   string      `json:"payment_status"`
	OrderID         string      `json:"order_id"`
	PriceAmount     json.Number `json:"price_amount"`
	ActuallyPaid    json.Number `json:"actually_paid"`
	PayCurrency     string      `json:"pay_currency"`
	OutcomeAmount   json.Number `json:"outcome_amount"`
	OutcomeCurrency string      `json:"outcome_currency"`
}

var orderIDPattern = regexp.MustCompile(`^deal_(\d+)_(\d+)$`)

// ParseOrderID extracts the deal id from an order id of the fixed form
// deal_<dealID>_<timestamp>. Anything else is rejected so a forged or garbled
// order id can never drive updates to an unrelated deal.
func ParseOrderID(orderID string) (int64, error) {
	m := orderIDPattern.FindStringSubmatch(orderID)
	if m == nil {
		return 0, apperr.BadRequest(fmt.Sprintf("malformed order_id %q", orderID))
	}
	dealID, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil {
		return 0, apperr.BadRequest(fmt.Sprintf("malformed order_id %q", orderID))
	}
	return dealID, nil
}

// VerifyIPNSignature checks the gateway's HMAC-SHA512 signature over the
// request body with its JSON keys sorted, compared in constant time.
func VerifyIPNSignature(raw []byte, signature, secret string) error {
	if signature == "" {
		return apperr.Forbidden("missing webhook signature")
	}

	// UseNumber keeps numeric lexemes verbatim; a plain decode would re-render
	// ids above 2^53 in float notation and break the comparison below.
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var payload map[string]any
	if err := dec.Decode(&payload); err != nil {
		return apperr.BadRequest("invalid JSON body")
	}
	// json.Marshal renders map keys in sorted order, matching the gateway's
	// signing convention.
	sorted, err := json.Marshal(payload)
	if err != nil {
		return apperr.BadRequest("invalid JSON body")
	}

	mac := hmac.New(sha512.New, []byte(secret))
	mac.Write(sorted)
	expected := hex.EncodeToString(mac.Sum(nil))

	if !hmac.Equal([]byte(expected), []byte(strings.ToLower(signature))) {
		return apperr.Forbidden("invalid webhook signature")
	}
	return nil
}

// ValidateNotification enforces the minimum field set of the input contract.
func ValidateNotification(n *WebhookNotification) error {
	if n.PaymentID.String() == "" {
		return apperr.BadRequest("payment_id is required")
	}
	if n.PaymentStatus == "" {
		return apperr.BadRequest("payment_status is required")
	}
	if n.OrderID == "" {
		return apperr.BadRequest("order_id is required")
	}
	return nil
}

// Process handles one webhook delivery. Signature verification is mandatory
// and happens before the body is trusted. Any error after the transaction
// opens rolls every write back, so the gateway's retry redelivers cleanly.
func (p *WebhookProcessor) Process(ctx context.Context, raw []byte, signature string) error {
	if err := VerifyIPNSignature(raw, signature, p.cfg.GatewayIPNSecret); err != nil {
		return err
	}

	var n WebhookNotification
	if err := json.Unmarshal(raw, &n); err != nil {
		return apperr.BadRequest("invalid JSON body")
	}
	if err := ValidateNotification(&n); err != nil {
		return err
	}

	dealID, err := ParseOrderID(n.OrderID)
	if err != nil {
		return err
	}

	status := models.ParsePaymentStatus(n.PaymentStatus)

	var feePaidNow bool
	err = repositories.WithTx(ctx, p.pool, func(tx pgx.Tx) error {
		return p.reconcile(ctx,
			p.dealRepo.WithTx(tx), p.paymentRepo.WithTx(tx),
			p.historyRepo.WithTx(tx), p.chatRepo.WithTx(tx),
			dealID, &n, status, raw, &feePaidNow)
	})
	if err != nil {
		if _, ok := errAsAppErr(err); ok {
			return err
		}
		return apperr.Wrap(apperr.CodeInternal, "webhook processing failed", err)
	}

	if feePaidNow {
		p.publishFeePaid(ctx, dealID, n.PaymentID.String())
	}
	return nil
}

// reconcile is the transactional core of one delivery. The stores are the
// tx-scoped repositories in production.
func (p *WebhookProcessor) reconcile(
	ctx context.Context,
	deals dealStore,
	payments paymentStore,
	history historyStore,
	chat chatStore,
	dealID int64,
	n *WebhookNotification,
	status models.PaymentStatus,
	raw []byte,
	feePaidNow *bool,
) error {
	// Lock the deal row so concurrent deliveries for the same payment
	// serialize and the second one observes the committed latch.
	deal, err := deals.GetByIDForUpdate(ctx, dealID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return apperr.BadRequest(fmt.Sprintf("order_id references unknown deal %d", dealID))
		}
		return err
	}

	if err := p.upsertPayment(ctx, payments, dealID, n, status, raw); err != nil {
		return err
	}

	switch {
	case status.IsSuccess():
		return p.applySuccess(ctx, deals, history, chat, deal, n, feePaidNow)
	case status.IsFailure():
		// Deal status deliberately left untouched for manual follow-up.
		return history.Append(ctx, &models.DealHistoryEntry{
			DealID:     dealID,
			ActionType: models.HistoryActionNoteAdded,
			ActorID:    models.SystemActorID,
			Description: fmt.Sprintf("Crypto payment %s reported %s",
				n.PaymentID.String(), n.PaymentStatus),
		})
	case status.IsPending():
		p.log.Debug("transient payment status",
			zap.String("payment_id", n.PaymentID.String()),
			zap.String("status", n.PaymentStatus),
			zap.Int64("deal_id", dealID))
		return nil
	default:
		p.log.Warn("unrecognized payment status, ignoring",
			zap.String("payment_id", n.PaymentID.String()),
			zap.String("status", n.PaymentStatus),
			zap.Int64("deal_id", dealID))
		return nil
	}
}

func (p *WebhookProcessor) upsertPayment(ctx context.Context, payments paymentStore, dealID int64, n *WebhookNotification, status models.PaymentStatus, raw []byte) error {
	payment := &models.CryptoPayment{
		DealID:            dealID,
		ExternalPaymentID: n.PaymentID.String(),
		OrderID:           n.OrderID,
		Status:            string(status),
		PriceAmount:       numberOrZero(n.PriceAmount),
		PriceCurrency:     p.cfg.PriceCurrency,
		PayCurrency:       strPtr(n.PayCurrency),
		ActuallyPaid:      numberPtr(n.ActuallyPaid),
		OutcomeAmount:     numberPtr(n.OutcomeAmount),
		OutcomeCurrency:   strPtr(n.OutcomeCurrency),
		RawPayload:        raw,
	}
	return payments.Upsert(ctx, payment)
}

// applySuccess runs the one-time success side effects. If the fee_paid latch
// is already set this delivery is a duplicate: the payment row was refreshed
// above and nothing else may happen.
func (p *WebhookProcessor) applySuccess(
	ctx context.Context,
	deals dealStore,
	history historyStore,
	chat chatStore,
	deal *models.Deal,
	n *WebhookNotification,
	feePaidNow *bool,
) error {
	if deal.FeePaid {
		p.log.Info("duplicate success delivery, payment row refreshed only",
			zap.Int64("deal_id", deal.ID),
			zap.String("payment_id", n.PaymentID.String()))
		return nil
	}

	now := time.Now()
	if err := deals.MarkFeePaid(ctx, deal.ID, "crypto", now); err != nil {
		return err
	}
	amount := numberOrZero(n.ActuallyPaid)
	currency := n.PayCurrency
	if currency == "" {
		currency = p.cfg.PriceCurrency
	}
	if err := history.Append(ctx, &models.DealHistoryEntry{
		DealID:     deal.ID,
		ActionType: models.HistoryActionFeePaid,
		ActorID:    models.SystemActorID,
		Description: fmt.Sprintf("Escrow fee paid via crypto: payment %s, %s %s",
			n.PaymentID.String(), amount, currency),
	}); err != nil {
		return err
	}

	conv, err := chat.FindInquiryConversation(ctx, deal.BuyerID, deal.SellerID, deal.AdID)
	switch {
	case err == nil:
		if _, err := chat.PostSystemMessage(ctx, conv.ID, agentAccessMessage(deal)); err != nil {
			return err
		}
	case errors.Is(err, pgx.ErrNoRows):
		// No inquiry conversation; the payment state is still recorded.
		p.log.Info("no inquiry conversation for deal, skipping chat message",
			zap.Int64("deal_id", deal.ID))
	default:
		return err
	}

	if err := deals.MarkAgentEmailSent(ctx, deal.ID, now); err != nil {
		return err
	}
	if err := history.Append(ctx, &models.DealHistoryEntry{
		DealID:      deal.ID,
		ActionType:  models.HistoryActionAgentEmailSent,
		ActorID:     models.SystemActorID,
		Description: "Agent access instructions sent to seller",
	}); err != nil {
		return err
	}

	*feePaidNow = true
	return nil
}

func agentAccessMessage(deal *models.Deal) string {
	return fmt.Sprintf(
		"The escrow fee for %q has been paid. Please grant our agent account manager-level access to the channel (not ownership) so the transfer can be verified.",
		deal.ChannelTitle)
}

func (p *WebhookProcessor) publishFeePaid(ctx context.Context, dealID int64, paymentID string) {
	err := p.publisher.Publish(ctx, events.StreamDeals, events.Event{
		Type: events.EventDealFeePaid,
		Payload: map[string]any{
			"deal_id":    dealID,
			"payment_id": paymentID,
			"new_status": models.DealStatusAgentAccessPending,
		},
	})
	if err != nil {
		p.log.Warn("publish fee paid event failed", zap.Int64("deal_id", dealID), zap.Error(err))
	}
}

// --- small helpers ---

func errAsAppErr(err error) (*apperr.Error, bool) {
	var e *apperr.Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

func numberOrZero(n json.Number) string {
	if n.String() == "" {
		return "0"
	}
	return n.String()
}

func numberPtr(n json.Number) *string {
	if n.String() == "" {
		return nil
	}
	s := n.String()
	return &s
}

func strPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

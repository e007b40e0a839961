package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/xsm-market/backend/internal/apperr"
	"github.com/xsm-market/backend/internal/config"
	"github.com/xsm-market/backend/internal/models"
	"github.com/xsm-market/backend/internal/repositories"
	"go.uber.org/zap"
)

// PaymentService creates gateway quotes for the escrow fee and exposes the
// stored payment state to the deal parties.
type PaymentService struct {
	pool        *pgxpool.Pool
	dealRepo    *repositories.DealRepo
	paymentRepo *repositories.PaymentRepo
	historyRepo *repositories.HistoryRepo
	gateway     PaymentGateway
	cfg         *config.Config
	log         *zap.Logger
}

func NewPaymentService(
	pool *pgxpool.Pool,
	dealRepo *repositories.DealRepo,
	paymentRepo *repositories.PaymentRepo,
	historyRepo *repositories.HistoryRepo,
	gateway PaymentGateway,
	cfg *config.Config,
	log *zap.Logger,
) *PaymentService {
	return &PaymentService{
		pool:        pool,
		dealRepo:    dealRepo,
		paymentRepo: paymentRepo,
		historyRepo: historyRepo,
		gateway:     gateway,
		cfg:         cfg,
		log:         log,
	}
}

// NewOrderID renders the correlation id the gateway echoes back in webhooks.
func NewOrderID(dealID int64, now time.Time) string {
	return fmt.Sprintf("deal_%d_%d", dealID, now.Unix())
}

// CreateCryptoPayment requests a gateway quote for the deal's escrow fee.
// The whole flow runs under the deal row lock so two concurrent requests
// serialize and the second one sees the first one's quote instead of opening
// a second. An upstream failure rolls everything back, leaving no orphan row.
func (s *PaymentService) CreateCryptoPayment(ctx context.Context, dealID, requesterID int64, payCurrency string) (*models.CryptoPayment, error) {
	if payCurrency == "" {
		return nil, apperr.Validation("payCurrency is required")
	}

	var payment *models.CryptoPayment
	err := repositories.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		var err error
		payment, err = s.createQuote(ctx,
			s.dealRepo.WithTx(tx), s.paymentRepo.WithTx(tx), s.historyRepo.WithTx(tx),
			dealID, requesterID, payCurrency)
		return err
	})
	if err != nil {
		if _, ok := errAsAppErr(err); ok {
			return nil, err
		}
		return nil, apperr.Wrap(apperr.CodeInternal, "create crypto payment failed", err)
	}
	return payment, nil
}

// createQuote is the transactional core of CreateCryptoPayment. The gateway
// call happens while the deal row is locked; the client's bounded timeout
// keeps the lock short-lived.
func (s *PaymentService) createQuote(
	ctx context.Context,
	deals dealStore,
	payments paymentStore,
	history historyStore,
	dealID, requesterID int64,
	payCurrency string,
) (*models.CryptoPayment, error) {
	deal, err := deals.GetByIDForUpdate(ctx, dealID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFound("deal not found")
		}
		return nil, err
	}
	if deal.BuyerID != requesterID && deal.SellerID != requesterID {
		return nil, apperr.Forbidden("not a party to this deal")
	}
	if deal.FeePaid {
		return nil, apperr.Conflict("escrow fee has already been paid")
	}

	// At most one unresolved quote per deal.
	if pending, err := payments.GetPendingByDeal(ctx, dealID); err == nil {
		return pending, nil
	} else if !errors.Is(err, pgx.ErrNoRows) {
		return nil, err
	}

	orderID := NewOrderID(dealID, time.Now())
	quote, err := s.gateway.CreatePayment(ctx, CreatePaymentInput{
		Amount:           deal.EscrowFee,
		PriceCurrency:    s.cfg.PriceCurrency,
		PayCurrency:      payCurrency,
		OrderID:          orderID,
		OrderDescription: fmt.Sprintf("Escrow fee for %q", deal.ChannelTitle),
		CustomerEmail:    deal.BuyerEmail,
	})
	if err != nil {
		return nil, err
	}

	status := models.ParsePaymentStatus(quote.Status)
	if status == models.PaymentStatusUnknown {
		s.log.Warn("gateway returned unrecognized payment status",
			zap.String("status", quote.Status),
			zap.String("payment_id", quote.ExternalPaymentID))
		status = models.PaymentStatusWaiting
	}

	payment := &models.CryptoPayment{
		DealID:            dealID,
		ExternalPaymentID: quote.ExternalPaymentID,
		OrderID:           orderID,
		Status:            string(status),
		PriceAmount:       deal.EscrowFee,
		PriceCurrency:     s.cfg.PriceCurrency,
		PayCurrency:       &payCurrency,
	}

	if err := payments.Create(ctx, payment); err != nil {
		return nil, err
	}
	if err := history.Append(ctx, &models.DealHistoryEntry{
		DealID:     dealID,
		ActionType: models.HistoryActionNoteAdded,
		ActorID:    requesterID,
		Description: fmt.Sprintf("Crypto payment initiated: %s %s via %s (payment %s)",
			deal.EscrowFee, s.cfg.PriceCurrency, payCurrency, quote.ExternalPaymentID),
	}); err != nil {
		return nil, err
	}
	return payment, nil
}

// GetPaymentStatus returns the deal's latest payment, re-polling the gateway
// and persisting a changed status. A failed poll degrades to the stored row.
func (s *PaymentService) GetPaymentStatus(ctx context.Context, dealID, requesterID int64) (*models.CryptoPayment, error) {
	deal, err := s.getDeal(ctx, dealID)
	if err != nil {
		return nil, err
	}
	if deal.BuyerID != requesterID && deal.SellerID != requesterID {
		return nil, apperr.Forbidden("not a party to this deal")
	}

	payment, err := s.paymentRepo.GetLatestByDeal(ctx, dealID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFound("no payment for this deal")
		}
		return nil, apperr.Wrap(apperr.CodeInternal, "payment lookup failed", err)
	}

	remote, err := s.gateway.GetPaymentStatus(ctx, payment.ExternalPaymentID)
	if err != nil {
		s.log.Warn("gateway status poll failed, returning stored state",
			zap.String("payment_id", payment.ExternalPaymentID), zap.Error(err))
		return payment, nil
	}

	status := models.ParsePaymentStatus(remote.Status)
	if status != models.PaymentStatusUnknown && string(status) != payment.Status {
		if err := s.paymentRepo.UpdateStatus(ctx, payment.ID, string(status)); err != nil {
			return nil, apperr.Wrap(apperr.CodeInternal, "payment status update failed", err)
		}
		payment.Status = string(status)
	}
	return payment, nil
}

func (s *PaymentService) getDeal(ctx context.Context, dealID int64) (*models.Deal, error) {
	deal, err := s.dealRepo.GetByID(ctx, dealID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFound("deal not found")
		}
		return nil, apperr.Wrap(apperr.CodeInternal, "deal lookup failed", err)
	}
	return deal, nil
}

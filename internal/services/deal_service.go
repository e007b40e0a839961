package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/xsm-market/backend/internal/apperr"
	"github.com/xsm-market/backend/internal/config"
	"github.com/xsm-market/backend/internal/events"
	"github.com/xsm-market/backend/internal/models"
	"github.com/xsm-market/backend/internal/repositories"
	"go.uber.org/zap"
)

// DealService enforces the deal status vocabulary and the buyer/seller-gated
// lifecycle transitions. Every operation takes the acting user id explicitly.
type DealService struct {
	pool        *pgxpool.Pool
	dealRepo    *repositories.DealRepo
	historyRepo *repositories.HistoryRepo
	publisher   events.Publisher
	cfg         *config.Config
	log         *zap.Logger
}

func NewDealService(
	pool *pgxpool.Pool,
	dealRepo *repositories.DealRepo,
	historyRepo *repositories.HistoryRepo,
	publisher events.Publisher,
	cfg *config.Config,
	log *zap.Logger,
) *DealService {
	return &DealService{
		pool:        pool,
		dealRepo:    dealRepo,
		historyRepo: historyRepo,
		publisher:   publisher,
		cfg:         cfg,
		log:         log,
	}
}

type CreateDealInput struct {
	SellerID         int64
	ChannelID        int64
	ChannelTitle     string
	ChannelPrice     string
	EscrowFee        string
	EscrowFeePercent string
	TransactionType  string
	BuyerEmail       string
	PaymentMethods   []string
	TransactionID    string
}

// ValidateCreateDeal checks the required fields for deal creation.
func ValidateCreateDeal(in CreateDealInput) error {
	var missing []string
	if in.SellerID == 0 {
		missing = append(missing, "sellerId")
	}
	if in.ChannelID == 0 {
		missing = append(missing, "channelId")
	}
	if in.ChannelTitle == "" {
		missing = append(missing, "channelTitle")
	}
	if in.ChannelPrice == "" {
		missing = append(missing, "channelPrice")
	}
	if in.EscrowFee == "" {
		missing = append(missing, "escrowFee")
	}
	if in.BuyerEmail == "" {
		missing = append(missing, "buyerEmail")
	}
	if len(in.PaymentMethods) == 0 {
		missing = append(missing, "paymentMethods")
	}
	if in.TransactionID == "" {
		missing = append(missing, "transactionId")
	}
	if len(missing) > 0 {
		return apperr.Validation(fmt.Sprintf("missing required fields: %v", missing))
	}
	if in.TransactionType != "" && in.TransactionType != models.TransactionTypeSafest && in.TransactionType != models.TransactionTypeRecommended {
		return apperr.Validation(fmt.Sprintf("invalid transaction type %q", in.TransactionType))
	}
	return nil
}

// CreateDeal inserts the deal with the buyer agreement latch already set,
// records the selected payment methods and the opening history entry, all in
// one transaction.
func (s *DealService) CreateDeal(ctx context.Context, buyerID int64, in CreateDealInput) (*models.DealWithDetails, error) {
	if err := ValidateCreateDeal(in); err != nil {
		return nil, err
	}

	txType := in.TransactionType
	if txType == "" {
		txType = models.TransactionTypeSafest
	}
	pct := in.EscrowFeePercent
	if pct == "" {
		pct = "0"
	}

	now := time.Now()
	deal := &models.Deal{
		TransactionID:    in.TransactionID,
		BuyerID:          buyerID,
		SellerID:         in.SellerID,
		BuyerEmail:       in.BuyerEmail,
		AdID:             in.ChannelID,
		ChannelTitle:     in.ChannelTitle,
		ChannelPrice:     in.ChannelPrice,
		EscrowFee:        in.EscrowFee,
		EscrowFeePercent: pct,
		TransactionType:  txType,
		Status:           models.DealStatusSellerReviewing,
		BuyerAgreed:      true,
		BuyerAgreedAt:    &now,
	}

	err := repositories.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		deals := s.dealRepo.WithTx(tx)
		history := s.historyRepo.WithTx(tx)

		if err := deals.Create(ctx, deal); err != nil {
			return err
		}
		for _, method := range in.PaymentMethods {
			sel := &models.DealPaymentMethodSelection{DealID: deal.ID, Method: method}
			if err := deals.AddPaymentMethod(ctx, sel); err != nil {
				return err
			}
		}
		return history.Append(ctx, &models.DealHistoryEntry{
			DealID:     deal.ID,
			ActionType: models.HistoryActionCreated,
			ActorID:    buyerID,
			Description: fmt.Sprintf("Deal created for channel %q with %d payment method(s)",
				in.ChannelTitle, len(in.PaymentMethods)),
		})
	})
	if err != nil {
		if isUniqueViolation(err) {
			return nil, apperr.Conflict(fmt.Sprintf("a deal with transaction id %q already exists", in.TransactionID))
		}
		return nil, apperr.Wrap(apperr.CodeInternal, "create deal failed", err)
	}

	s.publishStatus(ctx, deal.ID, "", deal.Status)
	return s.loadDetails(ctx, deal)
}

// canSellerAgree guards the one-way seller agreement latch: agreement can
// happen once, and only from a status that may still move to terms_agreed.
func canSellerAgree(deal *models.Deal) error {
	if deal.SellerAgreed {
		return apperr.Conflict("seller has already agreed to this deal")
	}
	if !models.IsValidTransition(deal.Status, models.DealStatusTermsAgreed) {
		return apperr.Conflict(fmt.Sprintf("cannot agree to a deal in status %q", deal.Status))
	}
	return nil
}

// SellerAgree flips the one-way seller agreement latch. Only the deal's
// recorded seller may call it; everyone else gets NotFound.
func (s *DealService) SellerAgree(ctx context.Context, dealID, requesterID int64) (*models.Deal, error) {
	deal, err := s.getDeal(ctx, dealID)
	if err != nil {
		return nil, err
	}
	if deal.SellerID != requesterID {
		return nil, apperr.NotFound("deal not found")
	}
	if err := canSellerAgree(deal); err != nil {
		return nil, err
	}

	now := time.Now()
	oldStatus := deal.Status
	err = repositories.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		if err := s.dealRepo.WithTx(tx).SetSellerAgreed(ctx, dealID, now, models.DealStatusTermsAgreed); err != nil {
			return err
		}
		return s.historyRepo.WithTx(tx).Append(ctx, &models.DealHistoryEntry{
			DealID:      dealID,
			ActionType:  models.HistoryActionSellerAgreed,
			ActorID:     requesterID,
			Description: "Seller agreed to the deal terms",
		})
	})
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeInternal, "seller agree failed", err)
	}

	deal.SellerAgreed = true
	deal.SellerAgreedAt = &now
	deal.Status = models.DealStatusTermsAgreed
	s.publishStatus(ctx, dealID, oldStatus, deal.Status)
	return deal, nil
}

// UpdateDealStatus applies a buyer- or seller-requested transition. The
// (current, requested) pair must be an edge of the transition table.
func (s *DealService) UpdateDealStatus(ctx context.Context, dealID, requesterID int64, newStatus string, note *string) (*models.Deal, error) {
	deal, err := s.getDeal(ctx, dealID)
	if err != nil {
		return nil, err
	}
	if deal.BuyerID != requesterID && deal.SellerID != requesterID {
		return nil, apperr.NotFound("deal not found")
	}
	if !models.IsValidDealStatus(newStatus) {
		return nil, apperr.InvalidStatus(fmt.Sprintf("unknown status %q", newStatus))
	}
	if !models.IsValidTransition(deal.Status, newStatus) {
		return nil, apperr.InvalidStatus(fmt.Sprintf("cannot transition from %s to %s", deal.Status, newStatus))
	}

	description := fmt.Sprintf("Status changed from %s to %s", deal.Status, newStatus)
	if note != nil && *note != "" {
		description = *note
	}

	oldStatus := deal.Status
	err = repositories.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		deals := s.dealRepo.WithTx(tx)

		switch newStatus {
		case models.DealStatusCancelled:
			if err := deals.MarkCancelled(ctx, dealID, note); err != nil {
				return err
			}
		case models.DealStatusCompleted:
			if err := deals.MarkCompleted(ctx, dealID); err != nil {
				return err
			}
		default:
			if err := deals.UpdateStatus(ctx, dealID, newStatus); err != nil {
				return err
			}
		}
		return s.historyRepo.WithTx(tx).Append(ctx, &models.DealHistoryEntry{
			DealID:      dealID,
			ActionType:  models.HistoryActionStatusChanged,
			ActorID:     requesterID,
			Description: description,
		})
	})
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeInternal, "status update failed", err)
	}

	deal.Status = newStatus
	s.publishStatus(ctx, dealID, oldStatus, newStatus)
	return deal, nil
}

// AddNote stores a note on the caller's side of the deal and records it in history.
func (s *DealService) AddNote(ctx context.Context, dealID, requesterID int64, text string) error {
	if text == "" {
		return apperr.Validation("note text is required")
	}
	deal, err := s.getDeal(ctx, dealID)
	if err != nil {
		return err
	}

	var column string
	switch {
	case deal.BuyerID == requesterID:
		column = "buyer_notes"
	case deal.SellerID == requesterID:
		column = "seller_notes"
	case s.cfg.IsAdmin(requesterID):
		column = "admin_notes"
	default:
		return apperr.Forbidden("not a party to this deal")
	}

	err = repositories.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		if err := s.dealRepo.WithTx(tx).SetNotes(ctx, dealID, column, text); err != nil {
			return err
		}
		return s.historyRepo.WithTx(tx).Append(ctx, &models.DealHistoryEntry{
			DealID:      dealID,
			ActionType:  models.HistoryActionNoteAdded,
			ActorID:     requesterID,
			Description: text,
		})
	})
	if err != nil {
		return apperr.Wrap(apperr.CodeInternal, "add note failed", err)
	}
	return nil
}

// GetDealWithDetails returns the deal joined with its payment method
// selections (ascending) and full history (descending). Access is limited to
// buyer, seller and admins.
func (s *DealService) GetDealWithDetails(ctx context.Context, dealID, requesterID int64) (*models.DealWithDetails, error) {
	deal, err := s.getDeal(ctx, dealID)
	if err != nil {
		return nil, err
	}
	if deal.BuyerID != requesterID && deal.SellerID != requesterID && !s.cfg.IsAdmin(requesterID) {
		return nil, apperr.Forbidden("not a party to this deal")
	}
	return s.loadDetails(ctx, deal)
}

func (s *DealService) GetBuyerDeals(ctx context.Context, buyerID int64) ([]models.Deal, error) {
	return s.dealRepo.ListByBuyer(ctx, buyerID)
}

func (s *DealService) GetSellerDeals(ctx context.Context, sellerID int64) ([]models.Deal, error) {
	return s.dealRepo.ListBySeller(ctx, sellerID)
}

// --- helpers ---

// isUniqueViolation reports whether err carries a Postgres unique_violation.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func (s *DealService) getDeal(ctx context.Context, dealID int64) (*models.Deal, error) {
	deal, err := s.dealRepo.GetByID(ctx, dealID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFound("deal not found")
		}
		return nil, apperr.Wrap(apperr.CodeInternal, "deal lookup failed", err)
	}
	return deal, nil
}

func (s *DealService) loadDetails(ctx context.Context, deal *models.Deal) (*models.DealWithDetails, error) {
	methods, err := s.dealRepo.ListPaymentMethods(ctx, deal.ID)
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeInternal, "load payment methods failed", err)
	}
	history, err := s.historyRepo.ListByDeal(ctx, deal.ID)
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeInternal, "load history failed", err)
	}
	return &models.DealWithDetails{Deal: *deal, PaymentMethods: methods, History: history}, nil
}

func (s *DealService) publishStatus(ctx context.Context, dealID int64, oldStatus, newStatus string) {
	err := s.publisher.Publish(ctx, events.StreamDeals, events.Event{
		Type: events.EventDealStatusChanged,
		Payload: map[string]any{
			"deal_id":    dealID,
			"old_status": oldStatus,
			"new_status": newStatus,
		},
	})
	if err != nil {
		s.log.Warn("publish deal status event failed", zap.Int64("deal_id", dealID), zap.Error(err))
	}
}

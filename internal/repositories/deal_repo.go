package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/xsm-market/backend/internal/models"
)

const dealColumns = `id, transaction_id, buyer_id, seller_id, buyer_email, ad_id, channel_title, channel_price,
	escrow_fee, escrow_fee_percent, transaction_type, status,
	buyer_agreed, buyer_agreed_at, seller_agreed, seller_agreed_at,
	fee_paid, fee_paid_at, fee_paid_method,
	agent_email_sent, agent_email_sent_at,
	completed_at, cancelled_at, cancel_reason,
	buyer_notes, seller_notes, admin_notes, created_at, updated_at`

type DealRepo struct {
	db Querier
}

func NewDealRepo(db Querier) *DealRepo {
	return &DealRepo{db: db}
}

// WithTx returns a copy bound to the given transaction.
func (r *DealRepo) WithTx(tx pgx.Tx) *DealRepo {
	return &DealRepo{db: tx}
}

func scanDeal(row pgx.Row) (*models.Deal, error) {
	var d models.Deal
	err := row.Scan(&d.ID, &d.TransactionID, &d.BuyerID, &d.SellerID, &d.BuyerEmail, &d.AdID, &d.ChannelTitle, &d.ChannelPrice,
		&d.EscrowFee, &d.EscrowFeePercent, &d.TransactionType, &d.Status,
		&d.BuyerAgreed, &d.BuyerAgreedAt, &d.SellerAgreed, &d.SellerAgreedAt,
		&d.FeePaid, &d.FeePaidAt, &d.FeePaidMethod,
		&d.AgentEmailSent, &d.AgentEmailSentAt,
		&d.CompletedAt, &d.CancelledAt, &d.CancelReason,
		&d.BuyerNotes, &d.SellerNotes, &d.AdminNotes, &d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func (r *DealRepo) Create(ctx context.Context, d *models.Deal) error {
	return r.db.QueryRow(ctx, `
		INSERT INTO deals (transaction_id, buyer_id, seller_id, buyer_email, ad_id, channel_title, channel_price,
		                   escrow_fee, escrow_fee_percent, transaction_type, status,
		                   buyer_agreed, buyer_agreed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING id, created_at, updated_at
	`, d.TransactionID, d.BuyerID, d.SellerID, d.BuyerEmail, d.AdID, d.ChannelTitle, d.ChannelPrice,
		d.EscrowFee, d.EscrowFeePercent, d.TransactionType, d.Status,
		d.BuyerAgreed, d.BuyerAgreedAt,
	).Scan(&d.ID, &d.CreatedAt, &d.UpdatedAt)
}

func (r *DealRepo) GetByID(ctx context.Context, id int64) (*models.Deal, error) {
	return scanDeal(r.db.QueryRow(ctx, `SELECT `+dealColumns+` FROM deals WHERE id = $1`, id))
}

// GetByIDForUpdate locks the deal row for the rest of the transaction.
// Concurrent webhook deliveries serialize here.
func (r *DealRepo) GetByIDForUpdate(ctx context.Context, id int64) (*models.Deal, error) {
	return scanDeal(r.db.QueryRow(ctx, `SELECT `+dealColumns+` FROM deals WHERE id = $1 FOR UPDATE`, id))
}

func (r *DealRepo) listBy(ctx context.Context, column string, userID int64) ([]models.Deal, error) {
	rows, err := r.db.Query(ctx, `SELECT `+dealColumns+` FROM deals WHERE `+column+` = $1 ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var deals []models.Deal
	for rows.Next() {
		d, err := scanDeal(rows)
		if err != nil {
			return nil, err
		}
		deals = append(deals, *d)
	}
	return deals, rows.Err()
}

func (r *DealRepo) ListByBuyer(ctx context.Context, buyerID int64) ([]models.Deal, error) {
	return r.listBy(ctx, "buyer_id", buyerID)
}

func (r *DealRepo) ListBySeller(ctx context.Context, sellerID int64) ([]models.Deal, error) {
	return r.listBy(ctx, "seller_id", sellerID)
}

func (r *DealRepo) UpdateStatus(ctx context.Context, id int64, status string) error {
	_, err := r.db.Exec(ctx, `UPDATE deals SET status = $1, updated_at = now() WHERE id = $2`, status, id)
	return err
}

// SetSellerAgreed flips the one-way seller agreement latch and moves the deal
// to terms_agreed in a single statement.
func (r *DealRepo) SetSellerAgreed(ctx context.Context, id int64, at time.Time, status string) error {
	_, err := r.db.Exec(ctx, `
		UPDATE deals SET seller_agreed = TRUE, seller_agreed_at = $1, status = $2, updated_at = now()
		WHERE id = $3
	`, at, status, id)
	return err
}

// MarkFeePaid flips the fee_paid latch. The WHERE clause refuses to run
// against a deal that already has the latch set.
func (r *DealRepo) MarkFeePaid(ctx context.Context, id int64, method string, at time.Time) error {
	_, err := r.db.Exec(ctx, `
		UPDATE deals SET fee_paid = TRUE, fee_paid_at = $1, fee_paid_method = $2,
		       status = $3, updated_at = now()
		WHERE id = $4 AND fee_paid = FALSE
	`, at, method, models.DealStatusFeePaid, id)
	return err
}

func (r *DealRepo) MarkAgentEmailSent(ctx context.Context, id int64, at time.Time) error {
	_, err := r.db.Exec(ctx, `
		UPDATE deals SET agent_email_sent = TRUE, agent_email_sent_at = $1,
		       status = $2, updated_at = now()
		WHERE id = $3
	`, at, models.DealStatusAgentAccessPending, id)
	return err
}

// MarkCancelled records the terminal cancellation; the row is never deleted.
func (r *DealRepo) MarkCancelled(ctx context.Context, id int64, reason *string) error {
	_, err := r.db.Exec(ctx, `
		UPDATE deals SET status = $1, cancelled_at = now(), cancel_reason = $2, updated_at = now()
		WHERE id = $3
	`, models.DealStatusCancelled, reason, id)
	return err
}

func (r *DealRepo) MarkCompleted(ctx context.Context, id int64) error {
	_, err := r.db.Exec(ctx, `
		UPDATE deals SET status = $1, completed_at = now(), updated_at = now()
		WHERE id = $2
	`, models.DealStatusCompleted, id)
	return err
}

// SetNotes writes one of the three note columns. Column names are pinned to a
// fixed set so a caller can never inject an arbitrary column.
func (r *DealRepo) SetNotes(ctx context.Context, id int64, column, text string) error {
	var stmt string
	switch column {
	case "buyer_notes":
		stmt = `UPDATE deals SET buyer_notes = $1, updated_at = now() WHERE id = $2`
	case "seller_notes":
		stmt = `UPDATE deals SET seller_notes = $1, updated_at = now() WHERE id = $2`
	case "admin_notes":
		stmt = `UPDATE deals SET admin_notes = $1, updated_at = now() WHERE id = $2`
	default:
		return fmt.Errorf("unknown notes column %q", column)
	}
	_, err := r.db.Exec(ctx, stmt, text, id)
	return err
}

// ---- Payment method selections ----

func (r *DealRepo) AddPaymentMethod(ctx context.Context, sel *models.DealPaymentMethodSelection) error {
	return r.db.QueryRow(ctx, `
		INSERT INTO deal_payment_methods (deal_id, method)
		VALUES ($1, $2)
		RETURNING id, created_at
	`, sel.DealID, sel.Method).Scan(&sel.ID, &sel.CreatedAt)
}

func (r *DealRepo) ListPaymentMethods(ctx context.Context, dealID int64) ([]models.DealPaymentMethodSelection, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, deal_id, method, created_at
		FROM deal_payment_methods WHERE deal_id = $1 ORDER BY created_at ASC
	`, dealID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var selections []models.DealPaymentMethodSelection
	for rows.Next() {
		var s models.DealPaymentMethodSelection
		if err := rows.Scan(&s.ID, &s.DealID, &s.Method, &s.CreatedAt); err != nil {
			return nil, err
		}
		selections = append(selections, s)
	}
	return selections, rows.Err()
}

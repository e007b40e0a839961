package repositories

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/xsm-market/backend/internal/models"
)

const paymentColumns = `id, deal_id, external_payment_id, order_id, status,
	price_amount, price_currency, pay_currency, actually_paid,
	outcome_amount, outcome_currency, raw_payload, created_at, updated_at`

type PaymentRepo struct {
	db Querier
}

func NewPaymentRepo(db Querier) *PaymentRepo {
	return &PaymentRepo{db: db}
}

func (r *PaymentRepo) WithTx(tx pgx.Tx) *PaymentRepo {
	return &PaymentRepo{db: tx}
}

func scanPayment(row pgx.Row) (*models.CryptoPayment, error) {
	var p models.CryptoPayment
	err := row.Scan(&p.ID, &p.DealID, &p.ExternalPaymentID, &p.OrderID, &p.Status,
		&p.PriceAmount, &p.PriceCurrency, &p.PayCurrency, &p.ActuallyPaid,
		&p.OutcomeAmount, &p.OutcomeCurrency, &p.RawPayload, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *PaymentRepo) Create(ctx context.Context, p *models.CryptoPayment) error {
	return r.db.QueryRow(ctx, `
		INSERT INTO crypto_payments (deal_id, external_payment_id, order_id, status,
		                             price_amount, price_currency, pay_currency, raw_payload)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, created_at, updated_at
	`, p.DealID, p.ExternalPaymentID, p.OrderID, p.Status,
		p.PriceAmount, p.PriceCurrency, p.PayCurrency, p.RawPayload,
	).Scan(&p.ID, &p.CreatedAt, &p.UpdatedAt)
}

func (r *PaymentRepo) GetByExternalID(ctx context.Context, externalPaymentID string) (*models.CryptoPayment, error) {
	return scanPayment(r.db.QueryRow(ctx,
		`SELECT `+paymentColumns+` FROM crypto_payments WHERE external_payment_id = $1`, externalPaymentID))
}

func (r *PaymentRepo) GetLatestByDeal(ctx context.Context, dealID int64) (*models.CryptoPayment, error) {
	return scanPayment(r.db.QueryRow(ctx,
		`SELECT `+paymentColumns+` FROM crypto_payments WHERE deal_id = $1 ORDER BY created_at DESC LIMIT 1`, dealID))
}

// GetPendingByDeal returns the deal's unresolved payment, if any. Application
// logic keeps at most one payment per deal in waiting/confirming/sending.
func (r *PaymentRepo) GetPendingByDeal(ctx context.Context, dealID int64) (*models.CryptoPayment, error) {
	return scanPayment(r.db.QueryRow(ctx, `
		SELECT `+paymentColumns+` FROM crypto_payments
		WHERE deal_id = $1 AND status IN ('waiting', 'confirming', 'sending')
		ORDER BY created_at DESC LIMIT 1
	`, dealID))
}

// Upsert records a gateway notification. The unique index on
// external_payment_id turns a racing second insert into the update path, so
// two near-simultaneous deliveries for the same payment never duplicate rows.
func (r *PaymentRepo) Upsert(ctx context.Context, p *models.CryptoPayment) error {
	return r.db.QueryRow(ctx, `
		INSERT INTO crypto_payments (deal_id, external_payment_id, order_id, status,
		                             price_amount, price_currency, pay_currency, actually_paid,
		                             outcome_amount, outcome_currency, raw_payload)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (external_payment_id) DO UPDATE SET
			status = EXCLUDED.status,
			actually_paid = EXCLUDED.actually_paid,
			pay_currency = COALESCE(EXCLUDED.pay_currency, crypto_payments.pay_currency),
			outcome_amount = EXCLUDED.outcome_amount,
			outcome_currency = EXCLUDED.outcome_currency,
			raw_payload = EXCLUDED.raw_payload,
			updated_at = now()
		RETURNING id, created_at, updated_at
	`, p.DealID, p.ExternalPaymentID, p.OrderID, p.Status,
		p.PriceAmount, p.PriceCurrency, p.PayCurrency, p.ActuallyPaid,
		p.OutcomeAmount, p.OutcomeCurrency, p.RawPayload,
	).Scan(&p.ID, &p.CreatedAt, &p.UpdatedAt)
}

func (r *PaymentRepo) UpdateStatus(ctx context.Context, id int64, status string) error {
	_, err := r.db.Exec(ctx, `UPDATE crypto_payments SET status = $1, updated_at = now() WHERE id = $2`, status, id)
	return err
}

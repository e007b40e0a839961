package repositories

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/xsm-market/backend/internal/models"
)

// HistoryRepo is append-only. There are deliberately no update or delete
// methods: history is the audit trail for dispute resolution.
type HistoryRepo struct {
	db Querier
}

func NewHistoryRepo(db Querier) *HistoryRepo {
	return &HistoryRepo{db: db}
}

func (r *HistoryRepo) WithTx(tx pgx.Tx) *HistoryRepo {
	return &HistoryRepo{db: tx}
}

func (r *HistoryRepo) Append(ctx context.Context, e *models.DealHistoryEntry) error {
	return r.db.QueryRow(ctx, `
		INSERT INTO deal_history (deal_id, action_type, actor_id, description)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at
	`, e.DealID, e.ActionType, e.ActorID, e.Description).Scan(&e.ID, &e.CreatedAt)
}

func (r *HistoryRepo) ListByDeal(ctx context.Context, dealID int64) ([]models.DealHistoryEntry, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, deal_id, action_type, actor_id, description, created_at
		FROM deal_history WHERE deal_id = $1 ORDER BY created_at DESC
	`, dealID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []models.DealHistoryEntry
	for rows.Next() {
		var e models.DealHistoryEntry
		if err := rows.Scan(&e.ID, &e.DealID, &e.ActionType, &e.ActorID, &e.Description, &e.CreatedAt); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

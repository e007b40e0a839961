package repositories

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/xsm-market/backend/internal/models"
)

// ChatRepo is the narrow slice of the messaging subsystem the reconciliation
// engine touches: find the inquiry conversation, append a system message.
type ChatRepo struct {
	db Querier
}

func NewChatRepo(db Querier) *ChatRepo {
	return &ChatRepo{db: db}
}

func (r *ChatRepo) WithTx(tx pgx.Tx) *ChatRepo {
	return &ChatRepo{db: tx}
}

// FindInquiryConversation locates the active listing-inquiry conversation
// between the two participants for the given ad.
func (r *ChatRepo) FindInquiryConversation(ctx context.Context, buyerID, sellerID, adID int64) (*models.Conversation, error) {
	var c models.Conversation
	err := r.db.QueryRow(ctx, `
		SELECT id, buyer_id, seller_id, ad_id, kind, is_active, last_message, last_message_at, created_at
		FROM conversations
		WHERE buyer_id = $1 AND seller_id = $2 AND ad_id = $3 AND kind = $4 AND is_active = TRUE
		ORDER BY created_at DESC LIMIT 1
	`, buyerID, sellerID, adID, models.ConversationKindListingInquiry,
	).Scan(&c.ID, &c.BuyerID, &c.SellerID, &c.AdID, &c.Kind, &c.IsActive, &c.LastMessage, &c.LastMessageAt, &c.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// PostSystemMessage appends a system-authored message and refreshes the
// conversation's last-message cache.
func (r *ChatRepo) PostSystemMessage(ctx context.Context, conversationID int64, body string) (*models.Message, error) {
	m := &models.Message{
		ConversationID: conversationID,
		SenderID:       models.SystemActorID,
		Body:           body,
		IsSystem:       true,
	}
	err := r.db.QueryRow(ctx, `
		INSERT INTO messages (conversation_id, sender_id, body, is_system)
		VALUES ($1, $2, $3, TRUE)
		RETURNING id, created_at
	`, m.ConversationID, m.SenderID, m.Body).Scan(&m.ID, &m.CreatedAt)
	if err != nil {
		return nil, err
	}

	_, err = r.db.Exec(ctx, `
		UPDATE conversations SET last_message = $1, last_message_at = $2 WHERE id = $3
	`, m.Body, m.CreatedAt, conversationID)
	if err != nil {
		return nil, err
	}
	return m, nil
}

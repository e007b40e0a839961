package models

import "time"

// History action types
const (
	HistoryActionCreated        = "created"
	HistoryActionSellerAgreed   = "seller_agreed"
	HistoryActionFeePaid        = "fee_paid"
	HistoryActionAgentEmailSent = "agent_email_sent"
	HistoryActionNoteAdded      = "note_added"
	HistoryActionStatusChanged  = "status_changed"
)

// SystemActorID marks entries written by the reconciliation engine rather than a user.
const SystemActorID int64 = 0

// DealHistoryEntry is append-only: the audit trail must be able to reconstruct
// every transition without consulting the deal's current fields.
type DealHistoryEntry struct {
	ID          int64     `json:"id"`
	DealID      int64     `json:"deal_id"`
	ActionType  string    `json:"action_type"`
	ActorID     int64     `json:"actor_id"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"created_at"`
}

package models

import "time"

const ConversationKindListingInquiry = "listing_inquiry"

type Conversation struct {
	ID            int64      `json:"id"`
	BuyerID       int64      `json:"buyer_id"`
	SellerID      int64      `json:"seller_id"`
	AdID          int64      `json:"ad_id"`
	Kind          string     `json:"kind"`
	IsActive      bool       `json:"is_active"`
	LastMessage   *string    `json:"last_message,omitempty"`
	LastMessageAt *time.Time `json:"last_message_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
}

type Message struct {
	ID             int64     `json:"id"`
	ConversationID int64     `json:"conversation_id"`
	SenderID       int64     `json:"sender_id"` // 0 for system-authored messages
	Body           string    `json:"body"`
	IsSystem       bool      `json:"is_system"`
	CreatedAt      time.Time `json:"created_at"`
}

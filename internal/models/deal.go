package models

import "time"

// Deal statuses
const (
	DealStatusPending            = "pending"
	DealStatusSellerReviewing    = "seller_reviewing"
	DealStatusPaymentNegotiation = "payment_negotiation"
	DealStatusTermsAgreed        = "terms_agreed"
	DealStatusFeePaid            = "fee_paid"
	DealStatusAgentAccessPending = "agent_access_pending"
	DealStatusEscrowPaid         = "escrow_paid"
	DealStatusChannelTransferred = "channel_transferred"
	DealStatusPaymentCompleted   = "payment_completed"
	DealStatusCompleted          = "completed"
	DealStatusCancelled          = "cancelled"
	DealStatusDisputed           = "disputed"
)

// Transaction types
const (
	TransactionTypeSafest      = "safest"
	TransactionTypeRecommended = "recommended"
)

// AllDealStatuses is the closed status vocabulary. Any write outside it is rejected.
var AllDealStatuses = []string{
	DealStatusPending, DealStatusSellerReviewing, DealStatusPaymentNegotiation,
	DealStatusTermsAgreed, DealStatusFeePaid, DealStatusAgentAccessPending,
	DealStatusEscrowPaid, DealStatusChannelTransferred, DealStatusPaymentCompleted,
	DealStatusCompleted, DealStatusCancelled, DealStatusDisputed,
}

func IsValidDealStatus(status string) bool {
	for _, s := range AllDealStatuses {
		if s == status {
			return true
		}
	}
	return false
}

// Valid state transitions: from -> []to
var ValidDealTransitions = map[string][]string{
	DealStatusPending:            {DealStatusSellerReviewing, DealStatusPaymentNegotiation, DealStatusCancelled, DealStatusDisputed},
	DealStatusSellerReviewing:    {DealStatusPaymentNegotiation, DealStatusTermsAgreed, DealStatusCancelled, DealStatusDisputed},
	DealStatusPaymentNegotiation: {DealStatusTermsAgreed, DealStatusCancelled, DealStatusDisputed},
	DealStatusTermsAgreed:        {DealStatusFeePaid, DealStatusCancelled, DealStatusDisputed},
	DealStatusFeePaid:            {DealStatusAgentAccessPending, DealStatusCancelled, DealStatusDisputed},
	DealStatusAgentAccessPending: {DealStatusEscrowPaid, DealStatusCancelled, DealStatusDisputed},
	DealStatusEscrowPaid:         {DealStatusChannelTransferred, DealStatusCancelled, DealStatusDisputed},
	DealStatusChannelTransferred: {DealStatusPaymentCompleted, DealStatusCancelled, DealStatusDisputed},
	DealStatusPaymentCompleted:   {DealStatusCompleted, DealStatusDisputed},
	DealStatusCompleted:          {},
	DealStatusCancelled:          {},
	DealStatusDisputed:           {DealStatusCompleted, DealStatusCancelled},
}

func IsValidTransition(from, to string) bool {
	allowed, ok := ValidDealTransitions[from]
	if !ok {
		return false
	}
	for _, s := range allowed {
		if s == to {
			return true
		}
	}
	return false
}

type Deal struct {
	ID               int64      `json:"id"`
	TransactionID    string     `json:"transaction_id"`
	BuyerID          int64      `json:"buyer_id"`
	SellerID         int64      `json:"seller_id"`
	BuyerEmail       string     `json:"buyer_email"`
	AdID             int64      `json:"ad_id"`
	ChannelTitle     string     `json:"channel_title"`
	ChannelPrice     string     `json:"channel_price"` // numeric as string
	EscrowFee        string     `json:"escrow_fee"`
	EscrowFeePercent string     `json:"escrow_fee_percent"`
	TransactionType  string     `json:"transaction_type"` // safest / recommended
	Status           string     `json:"status"`
	BuyerAgreed      bool       `json:"buyer_agreed"`
	BuyerAgreedAt    *time.Time `json:"buyer_agreed_at,omitempty"`
	SellerAgreed     bool       `json:"seller_agreed"`
	SellerAgreedAt   *time.Time `json:"seller_agreed_at,omitempty"`
	FeePaid          bool       `json:"fee_paid"`
	FeePaidAt        *time.Time `json:"fee_paid_at,omitempty"`
	FeePaidMethod    *string    `json:"fee_paid_method,omitempty"`
	AgentEmailSent   bool       `json:"agent_email_sent"`
	AgentEmailSentAt *time.Time `json:"agent_email_sent_at,omitempty"`
	CompletedAt      *time.Time `json:"completed_at,omitempty"`
	CancelledAt      *time.Time `json:"cancelled_at,omitempty"`
	CancelReason     *string    `json:"cancel_reason,omitempty"`
	BuyerNotes       *string    `json:"buyer_notes,omitempty"`
	SellerNotes      *string    `json:"seller_notes,omitempty"`
	AdminNotes       *string    `json:"admin_notes,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

type DealPaymentMethodSelection struct {
	ID        int64     `json:"id"`
	DealID    int64     `json:"deal_id"`
	Method    string    `json:"method"`
	CreatedAt time.Time `json:"created_at"`
}

// DealWithDetails embeds Deal and adds selections and history for the detail view.
type DealWithDetails struct {
	Deal
	PaymentMethods []DealPaymentMethodSelection `json:"payment_methods"`
	History        []DealHistoryEntry           `json:"history"`
}

package models

import "time"

// PaymentStatus is a gateway-reported payment state decoded at the boundary.
// Unrecognized values map to PaymentStatusUnknown instead of being dropped.
type PaymentStatus string

const (
	PaymentStatusWaiting    PaymentStatus = "waiting"
	PaymentStatusConfirming PaymentStatus = "confirming"
	PaymentStatusSending    PaymentStatus = "sending"
	PaymentStatusFinished   PaymentStatus = "finished"
	PaymentStatusConfirmed  PaymentStatus = "confirmed"
	PaymentStatusFailed     PaymentStatus = "failed"
	PaymentStatusExpired    PaymentStatus = "expired"
	PaymentStatusUnknown    PaymentStatus = "unknown"
)

func ParsePaymentStatus(s string) PaymentStatus {
	switch PaymentStatus(s) {
	case PaymentStatusWaiting, PaymentStatusConfirming, PaymentStatusSending,
		PaymentStatusFinished, PaymentStatusConfirmed,
		PaymentStatusFailed, PaymentStatusExpired:
		return PaymentStatus(s)
	default:
		return PaymentStatusUnknown
	}
}

// IsSuccess reports whether the status represents a completed payment.
func (s PaymentStatus) IsSuccess() bool {
	return s == PaymentStatusFinished || s == PaymentStatusConfirmed
}

// IsFailure reports whether the status is a definitive failure.
func (s PaymentStatus) IsFailure() bool {
	return s == PaymentStatusFailed || s == PaymentStatusExpired
}

// IsPending reports whether the status is an expected transient state.
// At most one payment per deal may be in a pending state at a time.
func (s PaymentStatus) IsPending() bool {
	return s == PaymentStatusWaiting || s == PaymentStatusConfirming || s == PaymentStatusSending
}

type CryptoPayment struct {
	ID                int64     `json:"id"`
	DealID            int64     `json:"deal_id"`
	ExternalPaymentID string    `json:"external_payment_id"`
	OrderID           string    `json:"order_id"` // deal_{dealID}_{timestamp}
	Status            string    `json:"status"`
	PriceAmount       string    `json:"price_amount"`
	PriceCurrency     string    `json:"price_currency"`
	PayCurrency       *string   `json:"pay_currency,omitempty"`
	ActuallyPaid      *string   `json:"actually_paid,omitempty"`
	OutcomeAmount     *string   `json:"outcome_amount,omitempty"`
	OutcomeCurrency   *string   `json:"outcome_currency,omitempty"`
	RawPayload        []byte    `json:"-"` // last notification body, kept for forensics
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

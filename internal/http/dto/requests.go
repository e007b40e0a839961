package dto

type CreateDealRequest struct {
	SellerID         int64    `json:"seller_id"`
	ChannelID        int64    `json:"channel_id"`
	ChannelTitle     string   `json:"channel_title"`
	ChannelPrice     string   `json:"channel_price"`
	EscrowFee        string   `json:"escrow_fee"`
	EscrowFeePercent string   `json:"escrow_fee_percent,omitempty"`
	TransactionType  string   `json:"transaction_type,omitempty"` // safest / recommended
	BuyerEmail       string   `json:"buyer_email"`
	PaymentMethods   []string `json:"payment_methods"`
	TransactionID    string   `json:"transaction_id"`
}

type UpdateDealStatusRequest struct {
	Status string  `json:"status"`
	Note   *string `json:"note,omitempty"`
}

type AddNoteRequest struct {
	Text string `json:"text"`
}

type CreateCryptoPaymentRequest struct {
	PayCurrency string `json:"pay_currency"`
}

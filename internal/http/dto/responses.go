package dto

type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

type SuccessResponse struct {
	OK   bool `json:"ok"`
	Data any  `json:"data,omitempty"`
}

// WebhookAckResponse is the body the payment gateway expects on a processed
// notification.
type WebhookAckResponse struct {
	Success bool `json:"success"`
}

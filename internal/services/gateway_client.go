package services

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/xsm-market/backend/internal/apperr"
	"go.uber.org/zap"
)

// GatewayClient talks to the hosted crypto payment gateway. The gateway is
// untrusted input everywhere else; here we only create quotes and poll status.
type GatewayClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	log        *zap.Logger
}

// NewGatewayClient builds a client with a bounded timeout so a stuck gateway
// call fails fast instead of holding the caller's transaction open.
func NewGatewayClient(baseURL, apiKey string, timeout time.Duration, log *zap.Logger) *GatewayClient {
	if timeout <= 0 {
		timeout = 8 * time.Second
	}
	return &GatewayClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		log: log,
	}
}

type CreatePaymentInput struct {
	Amount           string
	PriceCurrency    string
	PayCurrency      string
	OrderID          string
	OrderDescription string
	CustomerEmail    string
}

type GatewayPayment struct {
	ExternalPaymentID string
	Status            string
	PayAmount         string
	PayAddress        string
	PaymentURL        string
}

type gatewayPaymentResponse struct {
	PaymentID     json.Number `json:"payment_id"`
	PaymentStatus string      `json:"payment_status"`
	PayAmount     json.Number `json:"pay_amount"`
	PayAddress    string      `json:"pay_address"`
	InvoiceURL    string      `json:"invoice_url"`
}

func (r *gatewayPaymentResponse) toPayment() *GatewayPayment {
	return &GatewayPayment{
		ExternalPaymentID: r.PaymentID.String(),
		Status:            r.PaymentStatus,
		PayAmount:         r.PayAmount.String(),
		PayAddress:        r.PayAddress,
		PaymentURL:        r.InvoiceURL,
	}
}

// CreatePayment asks the gateway for a payment quote. Nothing is persisted
// here; the caller stores the result only after this succeeds.
func (c *GatewayClient) CreatePayment(ctx context.Context, in CreatePaymentInput) (*GatewayPayment, error) {
	amount, err := strconv.ParseFloat(in.Amount, 64)
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeValidation, fmt.Sprintf("invalid payment amount %q", in.Amount), err)
	}

	body, _ := json.Marshal(map[string]any{
		"price_amount":      amount,
		"price_currency":    in.PriceCurrency,
		"pay_currency":      in.PayCurrency,
		"order_id":          in.OrderID,
		"order_description": in.OrderDescription,
		"customer_email":    in.CustomerEmail,
	})

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/payment", strings.NewReader(string(body)))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeUpstream, "payment gateway unavailable", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return nil, apperr.New(apperr.CodeUpstream, fmt.Sprintf("payment gateway returned %d: %s", resp.StatusCode, string(b)))
	}

	var result gatewayPaymentResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, apperr.Wrap(apperr.CodeUpstream, "malformed gateway response", err)
	}
	if result.PaymentID.String() == "" {
		return nil, apperr.New(apperr.CodeUpstream, "gateway response missing payment_id")
	}
	return result.toPayment(), nil
}

// GetPaymentStatus polls the gateway for the latest state of a payment.
func (c *GatewayClient) GetPaymentStatus(ctx context.Context, externalPaymentID string) (*GatewayPayment, error) {
	url := fmt.Sprintf("%s/v1/payment/%s", c.baseURL, externalPaymentID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("x-api-key", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeUpstream, "payment gateway unavailable", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return nil, apperr.New(apperr.CodeUpstream, fmt.Sprintf("payment gateway returned %d: %s", resp.StatusCode, string(b)))
	}

	var result gatewayPaymentResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, apperr.Wrap(apperr.CodeUpstream, "malformed gateway response", err)
	}
	return result.toPayment(), nil
}

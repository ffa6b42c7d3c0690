// Package providers implements the payment-gateway clients. Each provider
// signs requests over concatenated fields and a shared secret, per its own
// scheme, and normalizes responses into a common Result.
package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"fulfillment-service/internal/fulfillment"
)

// Result is the provider-normalized payment outcome
type Result struct {
	Success       bool   `json:"success"`
	PaymentURL    string `json:"payment_url,omitempty"`
	TransactionID string `json:"transaction_id,omitempty"`
	Amount        int64  `json:"amount,omitempty"`
	Status        string `json:"status,omitempty"`
	Message       string `json:"message"`
}

// Client is one payment provider
type Client interface {
	// Name identifies the provider in logs and metrics
	Name() string
	// CreatePayment creates an invoice/receipt and returns a payment URL
	CreatePayment(ctx context.Context, orderID string, amount int64) (*Result, error)
	// VerifyPayment checks the status of an earlier transaction
	VerifyPayment(ctx context.Context, transactionID string) (*Result, error)
}

// httpClient is shared by all providers; provider endpoints are slow, not
// unbounded.
var httpClient = &http.Client{Timeout: 15 * time.Second}

// postJSON sends a JSON body and decodes the JSON response into out
func postJSON(ctx context.Context, url string, headers map[string]string, body, out interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("provider request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return &fulfillment.APIError{
			Provider: url,
			Message:  fmt.Sprintf("unexpected status %d", resp.StatusCode),
		}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode provider response: %w", err)
	}
	return nil
}

package providers

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"fulfillment-service/internal/fulfillment"
)

// Uzcard talks to the Uzcard payment API and also serves Humo payments;
// the two card networks share one gateway. Requests carry a SHA-256
// signature over the concatenated fields and the shared secret.
type Uzcard struct {
	merchantID string
	secretKey  string
	baseURL    string
	returnURL  string
}

// NewUzcard creates an Uzcard client
func NewUzcard(merchantID, secretKey, baseURL, returnURL string) *Uzcard {
	if baseURL == "" {
		baseURL = "https://api.uzcard.uz/api/v1"
	}
	return &Uzcard{merchantID: merchantID, secretKey: secretKey, baseURL: baseURL, returnURL: returnURL}
}

func (u *Uzcard) Name() string { return "uzcard" }

type uzcardResponse struct {
	Success       bool   `json:"success"`
	Message       string `json:"message"`
	PaymentURL    string `json:"payment_url"`
	TransactionID string `json:"transaction_id"`
	Amount        int64  `json:"amount"`
	Status        string `json:"status"`
}

// CreatePayment creates a payment and returns its URL
func (u *Uzcard) CreatePayment(ctx context.Context, orderID string, amount int64) (*Result, error) {
	body := map[string]interface{}{
		"merchant_id": u.merchantID,
		"amount":      amount,
		"order_id":    orderID,
		"currency":    "UZS",
		"description": fmt.Sprintf("Order payment for %s", orderID),
		"return_url":  u.returnURL + "/payment/success",
		"cancel_url":  u.returnURL + "/payment/cancel",
		"signature":   UzcardCreateSignature(u.merchantID, amount, orderID, u.secretKey),
	}

	var resp uzcardResponse
	if err := postJSON(ctx, u.baseURL+"/payment/create", nil, body, &resp); err != nil {
		return nil, err
	}
	if !resp.Success {
		return nil, u.apiError(resp.Message)
	}

	return &Result{
		Success:       true,
		PaymentURL:    resp.PaymentURL,
		TransactionID: resp.TransactionID,
		Message:       "payment url generated",
	}, nil
}

// VerifyPayment checks a payment's status
func (u *Uzcard) VerifyPayment(ctx context.Context, transactionID string) (*Result, error) {
	body := map[string]interface{}{
		"merchant_id":    u.merchantID,
		"transaction_id": transactionID,
		"signature":      UzcardVerifySignature(u.merchantID, transactionID, u.secretKey),
	}

	var resp uzcardResponse
	if err := postJSON(ctx, u.baseURL+"/payment/status", nil, body, &resp); err != nil {
		return nil, err
	}
	if !resp.Success {
		return nil, u.apiError(resp.Message)
	}

	paid := resp.Status == "completed"
	return &Result{
		Success:       paid,
		TransactionID: transactionID,
		Amount:        resp.Amount,
		Status:        resp.Status,
		Message:       verifyMessage(paid),
	}, nil
}

func (u *Uzcard) apiError(msg string) error {
	if msg == "" {
		msg = "payment request failed"
	}
	return &fulfillment.APIError{Provider: u.Name(), Message: msg}
}

// UzcardCreateSignature signs a payment-create request:
// sha256(merchant_id + amount + order_id + secret)
func UzcardCreateSignature(merchantID string, amount int64, orderID, secret string) string {
	raw := fmt.Sprintf("%s%d%s%s", merchantID, amount, orderID, secret)
	return sha256Hex(raw)
}

// UzcardVerifySignature signs a status-check request:
// sha256(merchant_id + transaction_id + secret)
func UzcardVerifySignature(merchantID, transactionID, secret string) string {
	raw := fmt.Sprintf("%s%s%s", merchantID, transactionID, secret)
	return sha256Hex(raw)
}

func sha256Hex(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

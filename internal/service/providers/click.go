package providers

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"time"

	"fulfillment-service/internal/fulfillment"
)

// Click talks to the Click merchant API. Requests carry an MD5 signature
// over the concatenated request fields and the shared secret.
type Click struct {
	merchantID string
	secretKey  string
	baseURL    string
	returnURL  string
}

// NewClick creates a Click client
func NewClick(merchantID, secretKey, baseURL, returnURL string) *Click {
	if baseURL == "" {
		baseURL = "https://api.click.uz/v2/merchant"
	}
	return &Click{merchantID: merchantID, secretKey: secretKey, baseURL: baseURL, returnURL: returnURL}
}

func (c *Click) Name() string { return "click" }

type clickResponse struct {
	ErrorCode    int    `json:"error_code"`
	ErrorNote    string `json:"error_note"`
	PayURL       string `json:"pay_url"`
	ClickTransID string `json:"click_trans_id"`
	Amount       int64  `json:"amount"`
	Status       string `json:"status"`
}

// CreatePayment creates an invoice and returns its payment URL
func (c *Click) CreatePayment(ctx context.Context, orderID string, amount int64) (*Result, error) {
	body := map[string]interface{}{
		"service_id":        c.merchantID,
		"merchant_id":       c.merchantID,
		"amount":            amount,
		"transaction_param": orderID,
		"return_url":        c.returnURL + "/payment/success",
		"cancel_url":        c.returnURL + "/payment/cancel",
		"sign_time":         time.Now().UnixMilli(),
		"sign_string":       ClickCreateSignature(c.merchantID, amount, orderID, c.secretKey),
	}

	var resp clickResponse
	if err := postJSON(ctx, c.baseURL+"/invoice/create", nil, body, &resp); err != nil {
		return nil, err
	}
	if resp.ErrorCode != 0 {
		return nil, c.apiError(resp.ErrorNote)
	}

	return &Result{
		Success:       true,
		PaymentURL:    resp.PayURL,
		TransactionID: resp.ClickTransID,
		Message:       "payment url generated",
	}, nil
}

// VerifyPayment checks an invoice's status
func (c *Click) VerifyPayment(ctx context.Context, transactionID string) (*Result, error) {
	signTime := time.Now().UnixMilli()
	body := map[string]interface{}{
		"service_id":        c.merchantID,
		"click_trans_id":    transactionID,
		"merchant_trans_id": transactionID,
		"amount":            0,
		"action":            1,
		"sign_time":         signTime,
		"sign_string":       ClickVerifySignature(c.merchantID, transactionID, signTime, c.secretKey),
	}

	var resp clickResponse
	if err := postJSON(ctx, c.baseURL+"/invoice/status", nil, body, &resp); err != nil {
		return nil, err
	}
	if resp.ErrorCode != 0 {
		return nil, c.apiError(resp.ErrorNote)
	}

	paid := resp.Status == "confirmed"
	return &Result{
		Success:       paid,
		TransactionID: transactionID,
		Amount:        resp.Amount,
		Status:        resp.Status,
		Message:       verifyMessage(paid),
	}, nil
}

func (c *Click) apiError(note string) error {
	if note == "" {
		note = "payment request failed"
	}
	return &fulfillment.APIError{Provider: c.Name(), Message: note}
}

// ClickCreateSignature signs an invoice-create request:
// md5(service_id + merchant_id + amount + transaction_param + secret)
func ClickCreateSignature(merchantID string, amount int64, orderID, secret string) string {
	raw := fmt.Sprintf("%s%s%d%s%s", merchantID, merchantID, amount, orderID, secret)
	return md5Hex(raw)
}

// ClickVerifySignature signs a status-check request:
// md5(service_id + click_trans_id + merchant_trans_id + amount + action + sign_time + secret)
func ClickVerifySignature(merchantID, transactionID string, signTime int64, secret string) string {
	raw := fmt.Sprintf("%s%s%s%d%d%d%s", merchantID, transactionID, transactionID, 0, 1, signTime, secret)
	return md5Hex(raw)
}

func md5Hex(s string) string {
	sum := md5.Sum([]byte(s))
	return hex.EncodeToString(sum[:])
}

package providers

import (
	"context"
	"fmt"

	"fulfillment-service/internal/fulfillment"
)

const paymeStatusPaid = 2

// Payme talks to the Payme receipts API. Requests authenticate with the
// merchant id in the X-Auth header; amounts are in tiyin on the wire.
type Payme struct {
	merchantID string
	secretKey  string
	baseURL    string
}

// NewPayme creates a Payme client
func NewPayme(merchantID, secretKey, baseURL string) *Payme {
	if baseURL == "" {
		baseURL = "https://checkout.paycom.uz/api"
	}
	return &Payme{merchantID: merchantID, secretKey: secretKey, baseURL: baseURL}
}

func (p *Payme) Name() string { return "payme" }

type paymeRequest struct {
	Method string      `json:"method"`
	Params interface{} `json:"params"`
}

type paymeResponse struct {
	Result *struct {
		Receipt struct {
			ID     string `json:"_id"`
			Amount int64  `json:"amount"`
			Status int    `json:"status"`
		} `json:"receipt"`
	} `json:"result"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// CreatePayment creates a receipt and returns its checkout URL
func (p *Payme) CreatePayment(ctx context.Context, orderID string, amount int64) (*Result, error) {
	req := paymeRequest{
		Method: "receipts.create",
		Params: map[string]interface{}{
			"amount": amount * 100,
			"account": map[string]string{
				"order_id": orderID,
			},
		},
	}

	var resp paymeResponse
	if err := p.call(ctx, "receipts.create", req, &resp); err != nil {
		return nil, err
	}
	if resp.Result == nil {
		return nil, p.apiError(resp.Error)
	}

	receiptID := resp.Result.Receipt.ID
	return &Result{
		Success:       true,
		PaymentURL:    fmt.Sprintf("https://checkout.paycom.uz/%s", receiptID),
		TransactionID: receiptID,
		Message:       "payment url generated",
	}, nil
}

// VerifyPayment checks a receipt's status
func (p *Payme) VerifyPayment(ctx context.Context, transactionID string) (*Result, error) {
	req := paymeRequest{
		Method: "receipts.get",
		Params: map[string]string{
			"id": transactionID,
		},
	}

	var resp paymeResponse
	if err := p.call(ctx, "receipts.get", req, &resp); err != nil {
		return nil, err
	}
	if resp.Result == nil {
		return nil, p.apiError(resp.Error)
	}

	receipt := resp.Result.Receipt
	paid := receipt.Status == paymeStatusPaid
	return &Result{
		Success:       paid,
		TransactionID: transactionID,
		Amount:        receipt.Amount / 100,
		Status:        fmt.Sprintf("%d", receipt.Status),
		Message:       verifyMessage(paid),
	}, nil
}

func (p *Payme) call(ctx context.Context, method string, req, resp interface{}) error {
	headers := map[string]string{"X-Auth": p.merchantID}
	return postJSON(ctx, fmt.Sprintf("%s/%s", p.baseURL, method), headers, req, resp)
}

func (p *Payme) apiError(e *struct {
	Message string `json:"message"`
}) error {
	msg := "payment request failed"
	if e != nil && e.Message != "" {
		msg = e.Message
	}
	return &fulfillment.APIError{Provider: p.Name(), Message: msg}
}

func verifyMessage(paid bool) string {
	if paid {
		return "payment verified"
	}
	return "payment not completed"
}

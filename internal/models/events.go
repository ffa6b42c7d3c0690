package models

import "time"

// Event types
const (
	EventTypeOrderCreated    = "ORDER_CREATED"
	EventTypeOrderCompleted  = "ORDER_COMPLETED"
	EventTypeOrderFailed     = "ORDER_FAILED"
	EventTypeCaptchaRequired = "CAPTCHA_REQUIRED"
	EventTypePaymentUpdated  = "PAYMENT_UPDATED"
)

// BaseEvent contains common fields for all events
type BaseEvent struct {
	EventID   string    `json:"event_id"`
	EventType string    `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
}

// OrderCreatedEvent published when intake accepts an order
type OrderCreatedEvent struct {
	BaseEvent
	OrderID     string          `json:"order_id"`
	OrderNumber string          `json:"order_number"`
	CustomerID  string          `json:"customer_id"`
	TotalAmount int64           `json:"total_amount"`
	Items       []OrderItemData `json:"items"`
}

// OrderCompletedEvent published when automation places the order on the
// merchant site
type OrderCompletedEvent struct {
	BaseEvent
	OrderID         string `json:"order_id"`
	OrderNumber     string `json:"order_number"`
	ExternalOrderID string `json:"external_order_id"`
	ReceiptURL      string `json:"receipt_url"`
}

// OrderFailedEvent published when fulfillment terminally fails
type OrderFailedEvent struct {
	BaseEvent
	OrderID     string `json:"order_id"`
	OrderNumber string `json:"order_number"`
	Reason      string `json:"reason"`
}

// CaptchaRequiredEvent published when automation is suspended on a captcha
type CaptchaRequiredEvent struct {
	BaseEvent
	OrderID   string    `json:"order_id"`
	SessionID string    `json:"session_id"`
	ExpiresAt time.Time `json:"expires_at"`
}

// PaymentUpdatedEvent published when a payment log changes state
type PaymentUpdatedEvent struct {
	BaseEvent
	OrderID       string `json:"order_id"`
	PaymentMethod string `json:"payment_method"`
	TransactionID string `json:"transaction_id"`
	Status        string `json:"status"`
}

// OrderItemData represents item data in events
type OrderItemData struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
	UnitPrice int64  `json:"unit_price"`
}

package models

import "time"

// Product represents a product in the local catalog. ExternalID maps the
// product to the merchant site; products without a mapping are skipped
// during cart population.
type Product struct {
	ID         string    `db:"id" json:"id"`
	Name       string    `db:"name" json:"name"`
	Price      int64     `db:"price" json:"price"`
	ExternalID string    `db:"external_id" json:"external_id,omitempty"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}

// Customer represents a registered customer. External credentials are
// provisioned lazily by the automation driver on first fulfillment.
type Customer struct {
	ID               string    `db:"id" json:"id"`
	Name             string    `db:"name" json:"name"`
	Phone            string    `db:"phone" json:"phone"`
	Email            string    `db:"email" json:"email,omitempty"`
	Address          string    `db:"address" json:"address"`
	Region           string    `db:"region" json:"region"`
	District         string    `db:"district" json:"district"`
	ExternalID       string    `db:"external_id" json:"-"`
	ExternalLogin    string    `db:"external_login" json:"-"`
	ExternalPassword string    `db:"external_password" json:"-"`
	CreatedAt        time.Time `db:"created_at" json:"created_at"`
}

// CartItem represents an item in a customer's cart
type CartItem struct {
	ID         string `db:"id" json:"id"`
	CustomerID string `db:"customer_id" json:"customer_id"`
	ProductID  string `db:"product_id" json:"product_id"`
	Quantity   int    `db:"quantity" json:"quantity"`
}

// Order represents a customer order. TotalAmount is a price snapshot taken
// at creation time and never recalculated.
type Order struct {
	ID               string     `db:"id" json:"id"`
	OrderNumber      string     `db:"order_number" json:"order_number"`
	CustomerID       string     `db:"customer_id" json:"customer_id"`
	TotalAmount      int64      `db:"total_amount" json:"total_amount"`
	Status           string     `db:"status" json:"status"`
	PaymentStatus    string     `db:"payment_status" json:"payment_status"`
	CustomerName     string     `db:"customer_name" json:"customer_name"`
	CustomerPhone    string     `db:"customer_phone" json:"customer_phone"`
	CustomerAddress  string     `db:"customer_address" json:"customer_address"`
	CustomerRegion   string     `db:"customer_region" json:"customer_region"`
	CustomerDistrict string     `db:"customer_district" json:"customer_district"`
	ExternalOrderID  string     `db:"external_order_id" json:"external_order_id,omitempty"`
	ReceiptURL       string     `db:"receipt_url" json:"receipt_url,omitempty"`
	CaptchaAttempts  int        `db:"captcha_attempts" json:"captcha_attempts"`
	CompletedAt      *time.Time `db:"completed_at" json:"completed_at,omitempty"`
	CreatedAt        time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time  `db:"updated_at" json:"updated_at"`
}

// OrderItem represents items in an order. Created atomically with the
// order; never mutated afterwards.
type OrderItem struct {
	ID        string `db:"id" json:"id"`
	OrderID   string `db:"order_id" json:"order_id"`
	ProductID string `db:"product_id" json:"product_id"`
	Quantity  int    `db:"quantity" json:"quantity"`
	UnitPrice int64  `db:"unit_price" json:"unit_price"`
}

// CaptchaSession represents a pending human-solvable challenge blocking
// automation progress. At most one open session exists per order; sessions
// are never deleted, so readers must check both IsSolved and ExpiresAt.
type CaptchaSession struct {
	ID        string    `db:"id" json:"id"`
	OrderID   string    `db:"order_id" json:"order_id"`
	ImageURL  string    `db:"image_url" json:"image_url,omitempty"`
	IframeURL string    `db:"iframe_url" json:"iframe_url,omitempty"`
	Solution  string    `db:"solution" json:"-"`
	IsSolved  bool      `db:"is_solved" json:"is_solved"`
	ExpiresAt time.Time `db:"expires_at" json:"expires_at"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// PaymentLog represents a payment transaction attempt against a provider
type PaymentLog struct {
	ID            string    `db:"id" json:"id"`
	OrderID       string    `db:"order_id" json:"order_id"`
	PaymentMethod string    `db:"payment_method" json:"payment_method"`
	Amount        int64     `db:"amount" json:"amount"`
	Status        string    `db:"status" json:"status"`
	TransactionID string    `db:"transaction_id" json:"transaction_id,omitempty"`
	Response      string    `db:"response" json:"response,omitempty"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time `db:"updated_at" json:"updated_at"`
}

// SmsLog records every notification attempt, successful or not
type SmsLog struct {
	ID        string    `db:"id" json:"id"`
	OrderID   string    `db:"order_id" json:"order_id,omitempty"`
	Phone     string    `db:"phone" json:"phone"`
	Message   string    `db:"message" json:"message"`
	Status    string    `db:"status" json:"status"`
	Response  string    `db:"response" json:"response,omitempty"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// Order statuses
const (
	OrderStatusPending         = "PENDING"
	OrderStatusProcessing      = "PROCESSING"
	OrderStatusAwaitingCaptcha = "AWAITING_CAPTCHA"
	OrderStatusCompleted       = "COMPLETED"
	OrderStatusCancelled       = "CANCELLED"
	OrderStatusFailed          = "FAILED"
)

// Payment statuses
const (
	PaymentStatusPending   = "PENDING"
	PaymentStatusCompleted = "COMPLETED"
	PaymentStatusFailed    = "FAILED"
	PaymentStatusRefunded  = "REFUNDED"
)

// SMS statuses
const (
	SmsStatusSent   = "SENT"
	SmsStatusFailed = "FAILED"
)

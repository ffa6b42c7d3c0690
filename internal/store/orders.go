package store

import (
	"context"
	"database/sql"
	"fmt"

	"fulfillment-service/internal/fulfillment"
	"fulfillment-service/internal/models"
)

// CreateOrderWithItems creates an order and its items in one transaction.
// The item price snapshots are taken by the caller; this only persists them.
func (s *Store) CreateOrderWithItems(ctx context.Context, order *models.Order, items []models.OrderItem) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	query := `
		INSERT INTO orders (
			id, order_number, customer_id, total_amount, status, payment_status,
			customer_name, customer_phone, customer_address, customer_region, customer_district
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING created_at, updated_at`

	err = tx.GetContext(ctx, order, query,
		order.ID, order.OrderNumber, order.CustomerID, order.TotalAmount,
		order.Status, order.PaymentStatus,
		order.CustomerName, order.CustomerPhone, order.CustomerAddress,
		order.CustomerRegion, order.CustomerDistrict)
	if err != nil {
		return fmt.Errorf("failed to insert order: %w", err)
	}

	for i := range items {
		items[i].OrderID = order.ID
		_, err = tx.ExecContext(ctx, `
			INSERT INTO order_items (id, order_id, product_id, quantity, unit_price)
			VALUES ($1, $2, $3, $4, $5)`,
			items[i].ID, items[i].OrderID, items[i].ProductID,
			items[i].Quantity, items[i].UnitPrice)
		if err != nil {
			return fmt.Errorf("failed to insert order item: %w", err)
		}
	}

	return tx.Commit()
}

// GetOrderByID retrieves an order by ID
func (s *Store) GetOrderByID(ctx context.Context, id string) (*models.Order, error) {
	var order models.Order
	err := s.db.GetContext(ctx, &order, "SELECT * FROM orders WHERE id = $1", id)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("order %s: %w", id, fulfillment.ErrOrderNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// GetOrderItemsByOrderID retrieves all items for an order
func (s *Store) GetOrderItemsByOrderID(ctx context.Context, orderID string) ([]models.OrderItem, error) {
	var items []models.OrderItem
	err := s.db.SelectContext(ctx, &items,
		"SELECT * FROM order_items WHERE order_id = $1", orderID)
	return items, err
}

// GetOrdersByCustomerID retrieves orders for a customer
func (s *Store) GetOrdersByCustomerID(ctx context.Context, customerID string) ([]models.Order, error) {
	var orders []models.Order
	err := s.db.SelectContext(ctx, &orders,
		"SELECT * FROM orders WHERE customer_id = $1 ORDER BY created_at DESC", customerID)
	return orders, err
}

// ClaimOrderForProcessing atomically moves the order to PROCESSING if no
// other execution owns it. Returns false when the conditional update loses,
// which the worker treats as "another execution is in flight". FAILED is
// claimable so a queue retry can re-drive the order; terminal failure means
// no job remains, not an unclaimable row.
func (s *Store) ClaimOrderForProcessing(ctx context.Context, orderID string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE orders SET status = $1, updated_at = NOW()
		WHERE id = $2 AND status IN ($3, $4, $5)`,
		models.OrderStatusProcessing, orderID,
		models.OrderStatusPending, models.OrderStatusAwaitingCaptcha,
		models.OrderStatusFailed)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// MarkOrderCompleted records the receipt and completion time. The receipt
// and completed_at are written together so a COMPLETED order can never be
// observed without them.
func (s *Store) MarkOrderCompleted(ctx context.Context, orderID, externalOrderID, receiptURL string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE orders
		SET status = $1, external_order_id = $2, receipt_url = $3,
		    completed_at = NOW(), updated_at = NOW()
		WHERE id = $4`,
		models.OrderStatusCompleted, externalOrderID, receiptURL, orderID)
	return err
}

// MarkOrderFailed moves the order to FAILED
func (s *Store) MarkOrderFailed(ctx context.Context, orderID string) error {
	return s.UpdateOrderStatus(ctx, orderID, models.OrderStatusFailed)
}

// MarkOrderAwaitingCaptcha moves the order to the explicit captcha wait state
func (s *Store) MarkOrderAwaitingCaptcha(ctx context.Context, orderID string) error {
	return s.UpdateOrderStatus(ctx, orderID, models.OrderStatusAwaitingCaptcha)
}

// UpdateOrderStatus updates order status
func (s *Store) UpdateOrderStatus(ctx context.Context, orderID, status string) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE orders SET status = $1, updated_at = NOW() WHERE id = $2",
		status, orderID)
	return err
}

// UpdateOrderPaymentStatus mirrors a provider result onto the order
func (s *Store) UpdateOrderPaymentStatus(ctx context.Context, orderID, paymentStatus string) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE orders SET payment_status = $1, updated_at = NOW() WHERE id = $2",
		paymentStatus, orderID)
	return err
}

// MarkOrderPaid sets payment COMPLETED and moves the order to PROCESSING so
// fulfillment may proceed
func (s *Store) MarkOrderPaid(ctx context.Context, orderID string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE orders SET payment_status = $1, status = $2, updated_at = NOW()
		WHERE id = $3`,
		models.PaymentStatusCompleted, models.OrderStatusProcessing, orderID)
	return err
}

// IncrementCaptchaAttempts bumps the resumption counter and returns the new
// value. The captcha service enforces the ceiling.
func (s *Store) IncrementCaptchaAttempts(ctx context.Context, orderID string) (int, error) {
	var attempts int
	err := s.db.GetContext(ctx, &attempts, `
		UPDATE orders SET captcha_attempts = captcha_attempts + 1, updated_at = NOW()
		WHERE id = $1
		RETURNING captcha_attempts`, orderID)
	if err == sql.ErrNoRows {
		return 0, fmt.Errorf("order %s: %w", orderID, fulfillment.ErrOrderNotFound)
	}
	return attempts, err
}

// OrderStats aggregates order counts for the admin surface
type OrderStats struct {
	TotalOrders     int   `db:"total_orders" json:"total_orders"`
	PendingOrders   int   `db:"pending_orders" json:"pending_orders"`
	CompletedOrders int   `db:"completed_orders" json:"completed_orders"`
	TotalRevenue    int64 `db:"total_revenue" json:"total_revenue"`
}

// GetOrderStats returns aggregate order counts and completed revenue
func (s *Store) GetOrderStats(ctx context.Context) (*OrderStats, error) {
	var stats OrderStats
	err := s.db.GetContext(ctx, &stats, `
		SELECT
			COUNT(*) AS total_orders,
			COUNT(*) FILTER (WHERE status = $1) AS pending_orders,
			COUNT(*) FILTER (WHERE status = $2) AS completed_orders,
			COALESCE(SUM(total_amount) FILTER (WHERE status = $2), 0) AS total_revenue
		FROM orders`,
		models.OrderStatusPending, models.OrderStatusCompleted)
	if err != nil {
		return nil, err
	}
	return &stats, nil
}

package store

import (
	"context"
	"database/sql"
	"fmt"

	"fulfillment-service/internal/models"
)

// CreatePaymentLog creates a new payment log row
func (s *Store) CreatePaymentLog(ctx context.Context, log *models.PaymentLog) error {
	query := `
		INSERT INTO payment_logs (id, order_id, payment_method, amount, status)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at, updated_at`

	return s.db.GetContext(ctx, log, query,
		log.ID, log.OrderID, log.PaymentMethod, log.Amount, log.Status)
}

// UpdatePaymentLog records the provider outcome on a payment log
func (s *Store) UpdatePaymentLog(ctx context.Context, logID, status, transactionID, response string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE payment_logs
		SET status = $1, transaction_id = $2, response = $3, updated_at = NOW()
		WHERE id = $4`,
		status, transactionID, response, logID)
	return err
}

// GetPaymentLogByTransactionID retrieves the payment log matching a provider
// transaction. Returns nil when no log matches; verification tolerates
// unknown transactions.
func (s *Store) GetPaymentLogByTransactionID(ctx context.Context, transactionID string) (*models.PaymentLog, error) {
	var log models.PaymentLog
	err := s.db.GetContext(ctx, &log, `
		SELECT * FROM payment_logs WHERE transaction_id = $1
		ORDER BY created_at DESC LIMIT 1`, transactionID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &log, nil
}

// GetPaymentLogsByOrderID retrieves payment logs for an order
func (s *Store) GetPaymentLogsByOrderID(ctx context.Context, orderID string) ([]models.PaymentLog, error) {
	var logs []models.PaymentLog
	err := s.db.SelectContext(ctx, &logs,
		"SELECT * FROM payment_logs WHERE order_id = $1 ORDER BY created_at DESC", orderID)
	return logs, err
}

// CreateSmsLog records a notification attempt
func (s *Store) CreateSmsLog(ctx context.Context, log *models.SmsLog) error {
	query := `
		INSERT INTO sms_logs (id, order_id, phone, message, status, response)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at`

	err := s.db.GetContext(ctx, &log.CreatedAt, query,
		log.ID, log.OrderID, log.Phone, log.Message, log.Status, log.Response)
	if err != nil {
		return fmt.Errorf("failed to insert sms log: %w", err)
	}
	return nil
}

// GetSmsLogsByOrderID retrieves notification attempts for an order
func (s *Store) GetSmsLogsByOrderID(ctx context.Context, orderID string) ([]models.SmsLog, error) {
	var logs []models.SmsLog
	err := s.db.SelectContext(ctx, &logs,
		"SELECT * FROM sms_logs WHERE order_id = $1 ORDER BY created_at DESC", orderID)
	return logs, err
}

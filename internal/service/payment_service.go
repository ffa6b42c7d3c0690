package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"fulfillment-service/internal/fulfillment"
	"fulfillment-service/internal/models"
	"fulfillment-service/internal/service/providers"
	"fulfillment-service/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// PaymentStore is the persistence slice payment handling needs
type PaymentStore interface {
	GetOrderByID(ctx context.Context, id string) (*models.Order, error)
	CreatePaymentLog(ctx context.Context, log *models.PaymentLog) error
	UpdatePaymentLog(ctx context.Context, logID, status, transactionID, response string) error
	GetPaymentLogByTransactionID(ctx context.Context, transactionID string) (*models.PaymentLog, error)
	GetPaymentLogsByOrderID(ctx context.Context, orderID string) ([]models.PaymentLog, error)
	UpdateOrderPaymentStatus(ctx context.Context, orderID, paymentStatus string) error
	MarkOrderPaid(ctx context.Context, orderID string) error
}

// PaymentEventPublisher publishes payment events, best-effort
type PaymentEventPublisher interface {
	PublishPaymentUpdated(ctx context.Context, event *models.PaymentUpdatedEvent) error
}

// PaymentService dispatches payment creation and verification to the
// configured providers. Provider selection is case-insensitive; uzcard and
// humo share a client.
type PaymentService struct {
	store     PaymentStore
	providers map[string]providers.Client
	events    PaymentEventPublisher
	logger    *zap.Logger
}

// NewPaymentService creates a payment service over the given providers.
// Keys are lower-case method names.
func NewPaymentService(store PaymentStore, clients map[string]providers.Client, events PaymentEventPublisher) *PaymentService {
	return &PaymentService{
		store:     store,
		providers: clients,
		events:    events,
		logger:    util.GetLogger(),
	}
}

// DefaultProviders builds the standard provider set
func DefaultProviders(payme *providers.Payme, click *providers.Click, uzcard *providers.Uzcard) map[string]providers.Client {
	return map[string]providers.Client{
		"payme":  payme,
		"click":  click,
		"uzcard": uzcard,
		"humo":   uzcard,
	}
}

// CreatePaymentResponse is the normalized createPayment result
type CreatePaymentResponse struct {
	Success       bool   `json:"success"`
	PaymentURL    string `json:"payment_url,omitempty"`
	TransactionID string `json:"transaction_id,omitempty"`
	Message       string `json:"message"`
}

// CreatePayment writes a PENDING payment log, dispatches to the provider,
// then mirrors the outcome onto the log and the order. An unsupported
// method fails fast with a FAILED log and no order mutation.
func (ps *PaymentService) CreatePayment(ctx context.Context, orderID, method string, amount int64) (*CreatePaymentResponse, error) {
	ctx, span := util.StartSpan(ctx, "PaymentService.CreatePayment")
	defer span.End()

	if _, err := ps.store.GetOrderByID(ctx, orderID); err != nil {
		return nil, err
	}

	log := &models.PaymentLog{
		ID:            uuid.New().String(),
		OrderID:       orderID,
		PaymentMethod: method,
		Amount:        amount,
		Status:        models.PaymentStatusPending,
	}
	if err := ps.store.CreatePaymentLog(ctx, log); err != nil {
		return nil, fmt.Errorf("failed to create payment log: %w", err)
	}

	client, ok := ps.providers[strings.ToLower(method)]
	if !ok {
		if err := ps.store.UpdatePaymentLog(ctx, log.ID, models.PaymentStatusFailed, "",
			fmt.Sprintf("unsupported payment method: %s", method)); err != nil {
			ps.logger.Error("Failed to update payment log", zap.Error(err))
		}
		return nil, fmt.Errorf("%s: %w", method, fulfillment.ErrUnsupportedPaymentMethod)
	}

	util.PaymentAttemptsTotal.WithLabelValues(client.Name()).Inc()

	result, err := client.CreatePayment(ctx, orderID, amount)
	if err != nil {
		util.PaymentFailedTotal.WithLabelValues(client.Name()).Inc()
		if updErr := ps.store.UpdatePaymentLog(ctx, log.ID, models.PaymentStatusFailed, "", err.Error()); updErr != nil {
			ps.logger.Error("Failed to update payment log", zap.Error(updErr))
		}
		return nil, fmt.Errorf("payment creation failed: %w", err)
	}

	status := models.PaymentStatusCompleted
	if !result.Success {
		status = models.PaymentStatusFailed
		util.PaymentFailedTotal.WithLabelValues(client.Name()).Inc()
	}

	if err := ps.store.UpdatePaymentLog(ctx, log.ID, status, result.TransactionID, marshalResult(result)); err != nil {
		return nil, fmt.Errorf("failed to update payment log: %w", err)
	}
	if err := ps.store.UpdateOrderPaymentStatus(ctx, orderID, status); err != nil {
		return nil, fmt.Errorf("failed to update order payment status: %w", err)
	}

	ps.publishUpdate(ctx, orderID, client.Name(), result.TransactionID, status)

	ps.logger.Info("Payment created",
		zap.String("order_id", orderID),
		zap.String("provider", client.Name()),
		zap.String("status", status))

	return &CreatePaymentResponse{
		Success:       result.Success,
		PaymentURL:    result.PaymentURL,
		TransactionID: result.TransactionID,
		Message:       result.Message,
	}, nil
}

// VerifyPayment checks a transaction with its provider, updates the
// matching payment log, and on confirmation releases the order to
// fulfillment.
func (ps *PaymentService) VerifyPayment(ctx context.Context, transactionID, method string) (*providers.Result, error) {
	ctx, span := util.StartSpan(ctx, "PaymentService.VerifyPayment")
	defer span.End()

	client, ok := ps.providers[strings.ToLower(method)]
	if !ok {
		return nil, fmt.Errorf("%s: %w", method, fulfillment.ErrUnsupportedPaymentMethod)
	}

	result, err := client.VerifyPayment(ctx, transactionID)
	if err != nil {
		return nil, fmt.Errorf("payment verification failed: %w", err)
	}

	log, err := ps.store.GetPaymentLogByTransactionID(ctx, transactionID)
	if err != nil {
		return nil, err
	}
	if log == nil {
		ps.logger.Warn("No payment log for verified transaction",
			zap.String("transaction_id", transactionID))
		return result, nil
	}

	status := models.PaymentStatusCompleted
	if !result.Success {
		status = models.PaymentStatusFailed
	}
	if err := ps.store.UpdatePaymentLog(ctx, log.ID, status, transactionID, marshalResult(result)); err != nil {
		return nil, fmt.Errorf("failed to update payment log: %w", err)
	}

	if result.Success {
		if err := ps.store.MarkOrderPaid(ctx, log.OrderID); err != nil {
			return nil, fmt.Errorf("failed to mark order paid: %w", err)
		}
	}

	ps.publishUpdate(ctx, log.OrderID, client.Name(), transactionID, status)
	return result, nil
}

// GetPaymentHistory retrieves an order's payment attempts, newest first
func (ps *PaymentService) GetPaymentHistory(ctx context.Context, orderID string) ([]models.PaymentLog, error) {
	if _, err := ps.store.GetOrderByID(ctx, orderID); err != nil {
		return nil, err
	}
	return ps.store.GetPaymentLogsByOrderID(ctx, orderID)
}

func (ps *PaymentService) publishUpdate(ctx context.Context, orderID, provider, transactionID, status string) {
	event := &models.PaymentUpdatedEvent{
		BaseEvent: models.BaseEvent{
			EventID:   uuid.New().String(),
			EventType: models.EventTypePaymentUpdated,
			Timestamp: time.Now().UTC(),
		},
		OrderID:       orderID,
		PaymentMethod: provider,
		TransactionID: transactionID,
		Status:        status,
	}
	if err := ps.events.PublishPaymentUpdated(ctx, event); err != nil {
		ps.logger.Error("Failed to publish payment event", zap.Error(err))
	}
}

func marshalResult(result *providers.Result) string {
	raw, err := json.Marshal(result)
	if err != nil {
		return ""
	}
	return string(raw)
}

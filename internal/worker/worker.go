// Package worker drives queued Fulfillment Jobs through the order state
// machine: PENDING -> PROCESSING -> {COMPLETED | FAILED | AWAITING_CAPTCHA},
// with AWAITING_CAPTCHA resuming through a fresh job after an external solve.
package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"fulfillment-service/internal/automation"
	"fulfillment-service/internal/fulfillment"
	"fulfillment-service/internal/models"
	"fulfillment-service/internal/queue"
	"fulfillment-service/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Store is the slice of persistence the worker needs
type Store interface {
	GetOrderByID(ctx context.Context, id string) (*models.Order, error)
	GetOrderItemsByOrderID(ctx context.Context, orderID string) ([]models.OrderItem, error)
	GetProductByID(ctx context.Context, id string) (*models.Product, error)
	GetCustomerByID(ctx context.Context, id string) (*models.Customer, error)
	ClaimOrderForProcessing(ctx context.Context, orderID string) (bool, error)
	MarkOrderCompleted(ctx context.Context, orderID, externalOrderID, receiptURL string) error
	MarkOrderFailed(ctx context.Context, orderID string) error
	MarkOrderAwaitingCaptcha(ctx context.Context, orderID string) error
	GetCaptchaSession(ctx context.Context, orderID string) (*models.CaptchaSession, error)
	UpsertCaptchaSession(ctx context.Context, session *models.CaptchaSession) error
}

// Driver runs one checkout attempt
type Driver interface {
	Run(ctx context.Context, req *automation.Request) (*automation.Result, *automation.CaptchaChallenge, error)
}

// Notifier dispatches customer notifications. Implementations log every
// attempt and never return an error.
type Notifier interface {
	SendOrderConfirmation(ctx context.Context, orderID string)
	SendOrderFailure(ctx context.Context, orderID string)
}

// EventPublisher publishes lifecycle events, best-effort
type EventPublisher interface {
	PublishOrderCompleted(ctx context.Context, event *models.OrderCompletedEvent) error
	PublishOrderFailed(ctx context.Context, event *models.OrderFailedEvent) error
	PublishCaptchaRequired(ctx context.Context, event *models.CaptchaRequiredEvent) error
}

// Options bound worker behavior
type Options struct {
	// JobTimeout is the overall deadline for one automation run so a stuck
	// step cannot starve the shared browser.
	JobTimeout time.Duration
	CaptchaTTL time.Duration
}

// DefaultOptions mirror the deployed configuration
func DefaultOptions() Options {
	return Options{
		JobTimeout: 5 * time.Minute,
		CaptchaTTL: 10 * time.Minute,
	}
}

// Worker executes fulfillment jobs
type Worker struct {
	store    Store
	driver   Driver
	notifier Notifier
	events   EventPublisher
	opts     Options
	logger   *zap.Logger
}

// New creates a worker
func New(store Store, driver Driver, notifier Notifier, events EventPublisher, opts Options) *Worker {
	return &Worker{
		store:    store,
		driver:   driver,
		notifier: notifier,
		events:   events,
		opts:     opts,
		logger:   util.GetLogger(),
	}
}

// Handle processes one leased job. The returned error's classification
// drives the queue's retry/dead-letter decision.
func (w *Worker) Handle(ctx context.Context, job *queue.Job) error {
	ctx, cancel := context.WithTimeout(ctx, w.opts.JobTimeout)
	defer cancel()

	ctx, span := util.StartSpan(ctx, "Worker.Handle")
	defer span.End()

	order, err := w.store.GetOrderByID(ctx, job.OrderID)
	if err != nil {
		if errors.Is(err, fulfillment.ErrOrderNotFound) {
			return fulfillment.Fatal(err)
		}
		return fulfillment.Transient(err)
	}

	claimed, err := w.store.ClaimOrderForProcessing(ctx, order.ID)
	if err != nil {
		return fulfillment.Transient(err)
	}
	if !claimed {
		// Another execution owns the order, or it already completed.
		// Dropping the duplicate is the single-flight guarantee.
		w.logger.Info("Dropping job: order claimed elsewhere",
			zap.String("order_id", order.ID),
			zap.String("status", order.Status))
		util.JobsDroppedTotal.Inc()
		return nil
	}

	req, err := w.buildRequest(ctx, order)
	if err != nil {
		return w.failOrder(ctx, order, err)
	}

	w.logger.Info("Running checkout automation",
		zap.String("order_id", order.ID),
		zap.String("order_number", order.OrderNumber),
		zap.Int("attempt", job.Attempt))

	result, challenge, err := w.driver.Run(ctx, req)
	switch {
	case err != nil:
		util.AutomationRunsTotal.WithLabelValues("error").Inc()
		return w.failOrder(ctx, order, err)
	case challenge != nil:
		util.AutomationRunsTotal.WithLabelValues("captcha").Inc()
		return w.suspendOnCaptcha(ctx, order, challenge)
	default:
		util.AutomationRunsTotal.WithLabelValues("ok").Inc()
		return w.completeOrder(ctx, order, result)
	}
}

// buildRequest loads the order's items, their product mappings, the
// customer, and any solved captcha solution to replay.
func (w *Worker) buildRequest(ctx context.Context, order *models.Order) (*automation.Request, error) {
	items, err := w.store.GetOrderItemsByOrderID(ctx, order.ID)
	if err != nil {
		return nil, fulfillment.Transient(fmt.Errorf("failed to load order items: %w", err))
	}

	products := make(map[string]*models.Product, len(items))
	for _, item := range items {
		if _, ok := products[item.ProductID]; ok {
			continue
		}
		product, err := w.store.GetProductByID(ctx, item.ProductID)
		if err != nil {
			return nil, fulfillment.Transient(fmt.Errorf("failed to load product %s: %w", item.ProductID, err))
		}
		products[item.ProductID] = product
	}

	customer, err := w.store.GetCustomerByID(ctx, order.CustomerID)
	if err != nil {
		return nil, fulfillment.Transient(fmt.Errorf("failed to load customer: %w", err))
	}

	req := &automation.Request{
		Order:    order,
		Items:    items,
		Products: products,
		Customer: customer,
	}

	session, err := w.store.GetCaptchaSession(ctx, order.ID)
	if err == nil && session.IsSolved && time.Now().Before(session.ExpiresAt) {
		req.CaptchaSolution = session.Solution
	} else if err != nil && !errors.Is(err, fulfillment.ErrCaptchaNotFound) {
		return nil, fulfillment.Transient(err)
	}

	return req, nil
}

func (w *Worker) completeOrder(ctx context.Context, order *models.Order, result *automation.Result) error {
	if err := w.store.MarkOrderCompleted(ctx, order.ID, result.ExternalOrderID, result.ReceiptURL); err != nil {
		return fulfillment.Transient(fmt.Errorf("failed to mark order completed: %w", err))
	}

	util.OrdersCompletedTotal.Inc()
	w.logger.Info("Order completed",
		zap.String("order_id", order.ID),
		zap.String("receipt_url", result.ReceiptURL))

	w.notifier.SendOrderConfirmation(ctx, order.ID)

	event := &models.OrderCompletedEvent{
		BaseEvent:       newBaseEvent(models.EventTypeOrderCompleted),
		OrderID:         order.ID,
		OrderNumber:     order.OrderNumber,
		ExternalOrderID: result.ExternalOrderID,
		ReceiptURL:      result.ReceiptURL,
	}
	if err := w.events.PublishOrderCompleted(ctx, event); err != nil {
		w.logger.Error("Failed to publish order completed event", zap.Error(err))
	}

	return nil
}

// suspendOnCaptcha parks the order until an external solve arrives. The job
// ends successfully; resumption happens only via the solve path.
func (w *Worker) suspendOnCaptcha(ctx context.Context, order *models.Order, challenge *automation.CaptchaChallenge) error {
	session := &models.CaptchaSession{
		ID:        uuid.New().String(),
		OrderID:   order.ID,
		ImageURL:  challenge.ImageURL,
		IframeURL: challenge.IframeURL,
		ExpiresAt: time.Now().Add(w.opts.CaptchaTTL),
	}
	if err := w.store.UpsertCaptchaSession(ctx, session); err != nil {
		return fulfillment.Transient(fmt.Errorf("failed to persist captcha session: %w", err))
	}
	if err := w.store.MarkOrderAwaitingCaptcha(ctx, order.ID); err != nil {
		return fulfillment.Transient(err)
	}

	util.CaptchaSessionsTotal.Inc()
	w.logger.Info("Order awaiting captcha",
		zap.String("order_id", order.ID),
		zap.String("session_id", session.ID),
		zap.Time("expires_at", session.ExpiresAt))

	event := &models.CaptchaRequiredEvent{
		BaseEvent: newBaseEvent(models.EventTypeCaptchaRequired),
		OrderID:   order.ID,
		SessionID: session.ID,
		ExpiresAt: session.ExpiresAt,
	}
	if err := w.events.PublishCaptchaRequired(ctx, event); err != nil {
		w.logger.Error("Failed to publish captcha event", zap.Error(err))
	}

	return nil
}

// failOrder moves the order to FAILED, makes the required failure
// notification attempt, and re-raises the classified error so the queue can
// decide between retry and dead-letter.
func (w *Worker) failOrder(ctx context.Context, order *models.Order, cause error) error {
	if err := w.store.MarkOrderFailed(ctx, order.ID); err != nil {
		w.logger.Error("Failed to mark order failed",
			zap.String("order_id", order.ID),
			zap.Error(err))
	}

	util.OrdersFailedTotal.WithLabelValues("automation").Inc()
	w.logger.Warn("Order fulfillment failed",
		zap.String("order_id", order.ID),
		zap.Error(cause))

	w.notifier.SendOrderFailure(ctx, order.ID)

	event := &models.OrderFailedEvent{
		BaseEvent:   newBaseEvent(models.EventTypeOrderFailed),
		OrderID:     order.ID,
		OrderNumber: order.OrderNumber,
		Reason:      cause.Error(),
	}
	if err := w.events.PublishOrderFailed(ctx, event); err != nil {
		w.logger.Error("Failed to publish order failed event", zap.Error(err))
	}

	return cause
}

func newBaseEvent(eventType string) models.BaseEvent {
	return models.BaseEvent{
		EventID:   uuid.New().String(),
		EventType: eventType,
		Timestamp: time.Now().UTC(),
	}
}

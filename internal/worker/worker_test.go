package worker

import (
	"context"
	"fmt"
	"testing"
	"time"

	"fulfillment-service/internal/automation"
	"fulfillment-service/internal/fulfillment"
	"fulfillment-service/internal/models"
	"fulfillment-service/internal/queue"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStore struct {
	order    *models.Order
	items    []models.OrderItem
	products map[string]*models.Product
	customer *models.Customer
	session  *models.CaptchaSession

	claimResult bool
	claimErr    error

	completed        bool
	completedReceipt string
	failed           bool
	awaitingCaptcha  bool
	savedSession     *models.CaptchaSession
}

func (f *fakeStore) GetOrderByID(ctx context.Context, id string) (*models.Order, error) {
	if f.order == nil || f.order.ID != id {
		return nil, fulfillment.ErrOrderNotFound
	}
	return f.order, nil
}

func (f *fakeStore) GetOrderItemsByOrderID(ctx context.Context, orderID string) ([]models.OrderItem, error) {
	return f.items, nil
}

func (f *fakeStore) GetProductByID(ctx context.Context, id string) (*models.Product, error) {
	if p, ok := f.products[id]; ok {
		return p, nil
	}
	return nil, fmt.Errorf("product %s not found", id)
}

func (f *fakeStore) GetCustomerByID(ctx context.Context, id string) (*models.Customer, error) {
	return f.customer, nil
}

func (f *fakeStore) ClaimOrderForProcessing(ctx context.Context, orderID string) (bool, error) {
	return f.claimResult, f.claimErr
}

func (f *fakeStore) MarkOrderCompleted(ctx context.Context, orderID, externalOrderID, receiptURL string) error {
	f.completed = true
	f.completedReceipt = receiptURL
	return nil
}

func (f *fakeStore) MarkOrderFailed(ctx context.Context, orderID string) error {
	f.failed = true
	return nil
}

func (f *fakeStore) MarkOrderAwaitingCaptcha(ctx context.Context, orderID string) error {
	f.awaitingCaptcha = true
	return nil
}

func (f *fakeStore) GetCaptchaSession(ctx context.Context, orderID string) (*models.CaptchaSession, error) {
	if f.session == nil {
		return nil, fulfillment.ErrCaptchaNotFound
	}
	return f.session, nil
}

func (f *fakeStore) UpsertCaptchaSession(ctx context.Context, session *models.CaptchaSession) error {
	f.savedSession = session
	return nil
}

type fakeDriver struct {
	result    *automation.Result
	challenge *automation.CaptchaChallenge
	err       error

	lastRequest *automation.Request
}

func (f *fakeDriver) Run(ctx context.Context, req *automation.Request) (*automation.Result, *automation.CaptchaChallenge, error) {
	f.lastRequest = req
	return f.result, f.challenge, f.err
}

type fakeNotifier struct {
	confirmations []string
	failures      []string
}

func (f *fakeNotifier) SendOrderConfirmation(ctx context.Context, orderID string) {
	f.confirmations = append(f.confirmations, orderID)
}

func (f *fakeNotifier) SendOrderFailure(ctx context.Context, orderID string) {
	f.failures = append(f.failures, orderID)
}

type fakeEvents struct {
	completed []*models.OrderCompletedEvent
	failed    []*models.OrderFailedEvent
	captcha   []*models.CaptchaRequiredEvent
	err       error
}

func (f *fakeEvents) PublishOrderCompleted(ctx context.Context, e *models.OrderCompletedEvent) error {
	f.completed = append(f.completed, e)
	return f.err
}

func (f *fakeEvents) PublishOrderFailed(ctx context.Context, e *models.OrderFailedEvent) error {
	f.failed = append(f.failed, e)
	return f.err
}

func (f *fakeEvents) PublishCaptchaRequired(ctx context.Context, e *models.CaptchaRequiredEvent) error {
	f.captcha = append(f.captcha, e)
	return f.err
}

func newWorkerFixture() (*fakeStore, *fakeDriver, *fakeNotifier, *fakeEvents, *Worker) {
	store := &fakeStore{
		order: &models.Order{
			ID:          "order-1",
			OrderNumber: "ORD-1-ABCDEF12",
			CustomerID:  "cust-1",
			Status:      models.OrderStatusPending,
		},
		items: []models.OrderItem{
			{ID: "item-1", ProductID: "prod-1", Quantity: 2},
		},
		products: map[string]*models.Product{
			"prod-1": {ID: "prod-1", ExternalID: "ext-100"},
		},
		customer:    &models.Customer{ID: "cust-1"},
		claimResult: true,
	}
	driver := &fakeDriver{}
	notifier := &fakeNotifier{}
	events := &fakeEvents{}
	w := New(store, driver, notifier, events, DefaultOptions())
	return store, driver, notifier, events, w
}

func testJob() *queue.Job {
	return &queue.Job{ID: "job-1", OrderID: "order-1", Attempt: 0}
}

func TestHandleSuccessCompletesOrder(t *testing.T) {
	store, driver, notifier, events, w := newWorkerFixture()
	driver.result = &automation.Result{
		ExternalOrderID: "M-991",
		ReceiptURL:      "https://merchant.example/receipt/991",
	}

	err := w.Handle(context.Background(), testJob())
	require.NoError(t, err)

	assert.True(t, store.completed)
	assert.Equal(t, "https://merchant.example/receipt/991", store.completedReceipt)
	assert.Equal(t, []string{"order-1"}, notifier.confirmations)
	require.Len(t, events.completed, 1)
	assert.Equal(t, "M-991", events.completed[0].ExternalOrderID)
}

func TestHandleDriverFailureFailsOrderAndReraises(t *testing.T) {
	store, driver, notifier, events, w := newWorkerFixture()
	driver.err = fulfillment.Transient(fmt.Errorf("browser crashed"))

	err := w.Handle(context.Background(), testJob())
	require.Error(t, err)
	assert.True(t, fulfillment.Retryable(err))

	assert.True(t, store.failed)
	assert.Equal(t, []string{"order-1"}, notifier.failures)
	assert.Len(t, events.failed, 1)
}

func TestHandleFailureNotifiesEvenWhenEventPublishFails(t *testing.T) {
	store, driver, notifier, events, w := newWorkerFixture()
	driver.err = fulfillment.Transient(fmt.Errorf("browser crashed"))
	events.err = fmt.Errorf("kafka down")

	err := w.Handle(context.Background(), testJob())
	require.Error(t, err)
	assert.True(t, store.failed)
	assert.Equal(t, []string{"order-1"}, notifier.failures)
}

func TestHandleUnknownOrderIsFatal(t *testing.T) {
	store, _, _, _, w := newWorkerFixture()
	store.order = nil

	err := w.Handle(context.Background(), testJob())
	require.Error(t, err)
	assert.False(t, fulfillment.Retryable(err))
	assert.ErrorIs(t, err, fulfillment.ErrOrderNotFound)
}

func TestHandleLostClaimDropsJob(t *testing.T) {
	store, driver, notifier, _, w := newWorkerFixture()
	store.claimResult = false

	err := w.Handle(context.Background(), testJob())
	require.NoError(t, err)

	assert.Nil(t, driver.lastRequest)
	assert.Empty(t, notifier.confirmations)
	assert.Empty(t, notifier.failures)
	assert.False(t, store.completed)
	assert.False(t, store.failed)
}

func TestHandleCaptchaSuspendsOrder(t *testing.T) {
	store, driver, notifier, events, w := newWorkerFixture()
	driver.challenge = &automation.CaptchaChallenge{
		ImageURL: "https://merchant.example/captcha.png",
	}

	err := w.Handle(context.Background(), testJob())
	require.NoError(t, err)

	assert.True(t, store.awaitingCaptcha)
	require.NotNil(t, store.savedSession)
	assert.Equal(t, "order-1", store.savedSession.OrderID)
	assert.Equal(t, "https://merchant.example/captcha.png", store.savedSession.ImageURL)
	assert.True(t, store.savedSession.ExpiresAt.After(time.Now()))

	assert.False(t, store.completed)
	assert.False(t, store.failed)
	assert.Empty(t, notifier.failures)
	assert.Len(t, events.captcha, 1)
}

func TestHandleReplaysSolvedCaptcha(t *testing.T) {
	store, driver, _, _, w := newWorkerFixture()
	store.session = &models.CaptchaSession{
		OrderID:   "order-1",
		Solution:  "X7K2M",
		IsSolved:  true,
		ExpiresAt: time.Now().Add(5 * time.Minute),
	}
	driver.result = &automation.Result{ReceiptURL: "https://merchant.example/receipt/992"}

	err := w.Handle(context.Background(), testJob())
	require.NoError(t, err)

	require.NotNil(t, driver.lastRequest)
	assert.Equal(t, "X7K2M", driver.lastRequest.CaptchaSolution)
}

func TestHandleIgnoresExpiredSolvedCaptcha(t *testing.T) {
	store, driver, _, _, w := newWorkerFixture()
	store.session = &models.CaptchaSession{
		OrderID:   "order-1",
		Solution:  "X7K2M",
		IsSolved:  true,
		ExpiresAt: time.Now().Add(-time.Minute),
	}
	driver.result = &automation.Result{ReceiptURL: "https://merchant.example/receipt/993"}

	err := w.Handle(context.Background(), testJob())
	require.NoError(t, err)

	require.NotNil(t, driver.lastRequest)
	assert.Empty(t, driver.lastRequest.CaptchaSolution)
}

func TestHandleMissingProductFailsOrder(t *testing.T) {
	store, _, notifier, _, w := newWorkerFixture()
	store.products = map[string]*models.Product{}

	err := w.Handle(context.Background(), testJob())
	require.Error(t, err)
	assert.True(t, store.failed)
	assert.Equal(t, []string{"order-1"}, notifier.failures)
}

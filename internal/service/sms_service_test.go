package service

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"fulfillment-service/internal/fulfillment"
	"fulfillment-service/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSmsStore struct {
	order *models.Order
	logs  []*models.SmsLog
}

func (f *fakeSmsStore) GetOrderByID(ctx context.Context, id string) (*models.Order, error) {
	if f.order == nil || f.order.ID != id {
		return nil, fulfillment.ErrOrderNotFound
	}
	return f.order, nil
}

func (f *fakeSmsStore) CreateSmsLog(ctx context.Context, log *models.SmsLog) error {
	f.logs = append(f.logs, log)
	return nil
}

func (f *fakeSmsStore) GetSmsLogsByOrderID(ctx context.Context, orderID string) ([]models.SmsLog, error) {
	var logs []models.SmsLog
	for _, log := range f.logs {
		if log.OrderID == orderID {
			logs = append(logs, *log)
		}
	}
	return logs, nil
}

// newSmsGateway fakes the eskiz-style login/send exchange
func newSmsGateway(t *testing.T, sendStatus string) (*httptest.Server, *[]map[string]string) {
	t.Helper()
	var sent []map[string]string

	mux := http.NewServeMux()
	mux.HandleFunc("/auth/login", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"data": map[string]string{"token": "test-token"},
		})
	})
	mux.HandleFunc("/message/sms/send", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		sent = append(sent, body)
		json.NewEncoder(w).Encode(map[string]string{"status": sendStatus, "id": "msg-1"})
	})

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server, &sent
}

func newSmsFixture(t *testing.T, sendStatus string) (*fakeSmsStore, *[]map[string]string, *SmsService) {
	server, sent := newSmsGateway(t, sendStatus)
	store := &fakeSmsStore{
		order: &models.Order{
			ID:            "order-1",
			OrderNumber:   "ORD-1-ABCDEF12",
			CustomerPhone: "+998 90 123-45-67",
			ReceiptURL:    "https://merchant.example/receipt/991",
		},
	}
	svc := NewSmsService(store, SmsConfig{
		BaseURL:  server.URL,
		Email:    "notify@example.com",
		Password: "secret",
		Sender:   "4546",
	})
	return store, sent, svc
}

func TestSendOrderConfirmation(t *testing.T) {
	store, sent, svc := newSmsFixture(t, "success")

	svc.SendOrderConfirmation(context.Background(), "order-1")

	require.Len(t, *sent, 1)
	body := (*sent)[0]
	assert.Equal(t, "998901234567", body["mobile_phone"])
	assert.Contains(t, body["message"], "ORD-1-ABCDEF12")
	assert.Contains(t, body["message"], "https://merchant.example/receipt/991")

	require.Len(t, store.logs, 1)
	assert.Equal(t, models.SmsStatusSent, store.logs[0].Status)
}

func TestSendOrderConfirmationWithoutReceipt(t *testing.T) {
	store, sent, svc := newSmsFixture(t, "success")
	store.order.ReceiptURL = ""

	svc.SendOrderConfirmation(context.Background(), "order-1")

	require.Len(t, *sent, 1)
	assert.Contains(t, (*sent)[0]["message"], "Tayyorlanmoqda")
}

func TestSendOrderFailure(t *testing.T) {
	store, sent, svc := newSmsFixture(t, "success")

	svc.SendOrderFailure(context.Background(), "order-1")

	require.Len(t, *sent, 1)
	assert.Contains(t, (*sent)[0]["message"], "qayta ishlanmadi")
	require.Len(t, store.logs, 1)
	assert.Equal(t, models.SmsStatusSent, store.logs[0].Status)
}

func TestSendLogsFailedAttemptOnGatewayRejection(t *testing.T) {
	store, _, svc := newSmsFixture(t, "error")

	svc.SendOrderConfirmation(context.Background(), "order-1")

	require.Len(t, store.logs, 1)
	assert.Equal(t, models.SmsStatusFailed, store.logs[0].Status)
}

func TestSendLogsFailedAttemptForUnknownOrder(t *testing.T) {
	store, sent, svc := newSmsFixture(t, "success")

	svc.SendOrderConfirmation(context.Background(), "order-missing")

	assert.Empty(t, *sent)
	require.Len(t, store.logs, 1)
	assert.Equal(t, models.SmsStatusFailed, store.logs[0].Status)
}

func TestSendLogsFailedAttemptWithoutCredentials(t *testing.T) {
	store := &fakeSmsStore{
		order: &models.Order{ID: "order-1", OrderNumber: "ORD-1", CustomerPhone: "+998901234567"},
	}
	svc := NewSmsService(store, SmsConfig{})

	svc.SendOrderFailure(context.Background(), "order-1")

	require.Len(t, store.logs, 1)
	assert.Equal(t, models.SmsStatusFailed, store.logs[0].Status)
	assert.Contains(t, store.logs[0].Response, "not configured")
}

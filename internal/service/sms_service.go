package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"time"

	"fulfillment-service/internal/models"
	"fulfillment-service/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// SmsStore is the persistence slice notification dispatch needs
type SmsStore interface {
	GetOrderByID(ctx context.Context, id string) (*models.Order, error)
	CreateSmsLog(ctx context.Context, log *models.SmsLog) error
	GetSmsLogsByOrderID(ctx context.Context, orderID string) ([]models.SmsLog, error)
}

// SmsConfig configures the SMS gateway
type SmsConfig struct {
	BaseURL  string
	Email    string
	Password string
	Sender   string
}

// SmsService dispatches customer notifications through an SMS gateway. Both
// public methods record every attempt as an SmsLog row and never propagate
// errors to the caller: a lost notification must not fail fulfillment.
type SmsService struct {
	store  SmsStore
	cfg    SmsConfig
	client *http.Client
	logger *zap.Logger
}

// NewSmsService creates an SMS service
func NewSmsService(store SmsStore, cfg SmsConfig) *SmsService {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://notify.eskiz.uz/api"
	}
	return &SmsService{
		store:  store,
		cfg:    cfg,
		client: &http.Client{Timeout: 15 * time.Second},
		logger: util.GetLogger(),
	}
}

// SendOrderConfirmation notifies the customer that the order was placed
func (s *SmsService) SendOrderConfirmation(ctx context.Context, orderID string) {
	order, err := s.store.GetOrderByID(ctx, orderID)
	if err != nil {
		s.logAttempt(ctx, orderID, "", "", models.SmsStatusFailed, err.Error())
		return
	}

	receipt := order.ReceiptURL
	if receipt == "" {
		receipt = "Tayyorlanmoqda..."
	}
	message := fmt.Sprintf(
		"Sizning buyurtmangiz qabul qilindi! Buyurtma raqami: %s. Chek: %s",
		order.OrderNumber, receipt)

	s.send(ctx, order, message)
}

// SendOrderFailure notifies the customer that fulfillment failed
func (s *SmsService) SendOrderFailure(ctx context.Context, orderID string) {
	order, err := s.store.GetOrderByID(ctx, orderID)
	if err != nil {
		s.logAttempt(ctx, orderID, "", "", models.SmsStatusFailed, err.Error())
		return
	}

	message := fmt.Sprintf(
		"Buyurtmangiz %s qayta ishlanmadi. Iltimos, qayta urinib ko'ring.",
		order.OrderNumber)

	s.send(ctx, order, message)
}

// GetNotifications retrieves an order's notification attempts, newest first
func (s *SmsService) GetNotifications(ctx context.Context, orderID string) ([]models.SmsLog, error) {
	if _, err := s.store.GetOrderByID(ctx, orderID); err != nil {
		return nil, err
	}
	return s.store.GetSmsLogsByOrderID(ctx, orderID)
}

func (s *SmsService) send(ctx context.Context, order *models.Order, message string) {
	status := models.SmsStatusSent
	response, err := s.deliver(ctx, order.CustomerPhone, message)
	if err != nil {
		status = models.SmsStatusFailed
		response = err.Error()
		s.logger.Warn("SMS delivery failed",
			zap.String("order_id", order.ID),
			zap.Error(err))
	}

	s.logAttempt(ctx, order.ID, order.CustomerPhone, message, status, response)
}

func (s *SmsService) logAttempt(ctx context.Context, orderID, phone, message, status, response string) {
	util.NotificationsTotal.WithLabelValues(status).Inc()

	log := &models.SmsLog{
		ID:       uuid.New().String(),
		OrderID:  orderID,
		Phone:    phone,
		Message:  message,
		Status:   status,
		Response: response,
	}
	if err := s.store.CreateSmsLog(ctx, log); err != nil {
		s.logger.Error("Failed to record sms attempt",
			zap.String("order_id", orderID),
			zap.Error(err))
	}
}

var nonDigits = regexp.MustCompile(`\D`)

// deliver authenticates with the gateway and sends one message
func (s *SmsService) deliver(ctx context.Context, phone, message string) (string, error) {
	if s.cfg.Email == "" || s.cfg.Password == "" {
		return "", fmt.Errorf("sms credentials not configured")
	}

	token, err := s.login(ctx)
	if err != nil {
		return "", err
	}

	body := map[string]string{
		"mobile_phone": nonDigits.ReplaceAllString(phone, ""),
		"message":      message,
		"from":         s.cfg.Sender,
	}

	var resp struct {
		Status string `json:"status"`
		ID     string `json:"id"`
	}
	raw, err := s.post(ctx, s.cfg.BaseURL+"/message/sms/send", token, body, &resp)
	if err != nil {
		return "", err
	}
	if resp.Status != "success" {
		return raw, fmt.Errorf("sms gateway rejected message: %s", resp.Status)
	}
	return raw, nil
}

func (s *SmsService) login(ctx context.Context) (string, error) {
	body := map[string]string{
		"email":    s.cfg.Email,
		"password": s.cfg.Password,
	}

	var resp struct {
		Data struct {
			Token string `json:"token"`
		} `json:"data"`
	}
	if _, err := s.post(ctx, s.cfg.BaseURL+"/auth/login", "", body, &resp); err != nil {
		return "", fmt.Errorf("sms gateway login failed: %w", err)
	}
	if resp.Data.Token == "" {
		return "", fmt.Errorf("sms gateway returned no token")
	}
	return resp.Data.Token, nil
}

func (s *SmsService) post(ctx context.Context, url, token string, body, out interface{}) (string, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return string(raw), fmt.Errorf("failed to decode gateway response: %w", err)
	}
	return string(raw), nil
}

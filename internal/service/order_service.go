package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"fulfillment-service/internal/fulfillment"
	"fulfillment-service/internal/models"
	"fulfillment-service/internal/store"
	"fulfillment-service/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// OrderStore is the persistence slice order intake needs
type OrderStore interface {
	GetCartItems(ctx context.Context, customerID string) ([]models.CartItem, map[string]*models.Product, error)
	ClearCart(ctx context.Context, customerID string) error
	GetCustomerByID(ctx context.Context, id string) (*models.Customer, error)
	CreateOrderWithItems(ctx context.Context, order *models.Order, items []models.OrderItem) error
	GetOrderByID(ctx context.Context, id string) (*models.Order, error)
	GetOrderItemsByOrderID(ctx context.Context, orderID string) ([]models.OrderItem, error)
	GetOrdersByCustomerID(ctx context.Context, customerID string) ([]models.Order, error)
	GetProducts(ctx context.Context) ([]models.Product, error)
	GetOrderStats(ctx context.Context) (*store.OrderStats, error)
}

// Enqueuer adds fulfillment jobs to the work queue
type Enqueuer interface {
	Enqueue(ctx context.Context, orderID string) error
}

// OrderEventPublisher publishes intake events, best-effort
type OrderEventPublisher interface {
	PublishOrderCreated(ctx context.Context, event *models.OrderCreatedEvent) error
}

// OrderService handles order intake and reads
type OrderService struct {
	store  OrderStore
	queue  Enqueuer
	events OrderEventPublisher
	logger *zap.Logger
}

// NewOrderService creates a new order service
func NewOrderService(store OrderStore, queue Enqueuer, events OrderEventPublisher) *OrderService {
	return &OrderService{
		store:  store,
		queue:  queue,
		events: events,
		logger: util.GetLogger(),
	}
}

// CreateOrderRequest represents a request to create an order from the
// customer's cart
type CreateOrderRequest struct {
	CustomerID       string `json:"customer_id" binding:"required"`
	CustomerName     string `json:"customer_name" binding:"required"`
	CustomerPhone    string `json:"customer_phone" binding:"required"`
	CustomerAddress  string `json:"customer_address" binding:"required"`
	CustomerRegion   string `json:"customer_region" binding:"required"`
	CustomerDistrict string `json:"customer_district" binding:"required"`
}

// CreateOrderResponse represents the response after creating an order
type CreateOrderResponse struct {
	OrderID     string `json:"order_id"`
	OrderNumber string `json:"order_number"`
	TotalAmount int64  `json:"total_amount"`
	Status      string `json:"status"`
}

// CreateOrder snapshots the cart into an immutable order, clears the cart,
// and enqueues exactly one fulfillment job.
func (s *OrderService) CreateOrder(ctx context.Context, req *CreateOrderRequest) (*CreateOrderResponse, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.CreateOrder")
	defer span.End()

	if _, err := s.store.GetCustomerByID(ctx, req.CustomerID); err != nil {
		return nil, err
	}

	cartItems, products, err := s.store.GetCartItems(ctx, req.CustomerID)
	if err != nil {
		return nil, fmt.Errorf("failed to load cart: %w", err)
	}
	if len(cartItems) == 0 {
		return nil, fulfillment.ErrCartEmpty
	}

	items := make([]models.OrderItem, 0, len(cartItems))
	var totalAmount int64
	for _, cartItem := range cartItems {
		product := products[cartItem.ProductID]
		if product == nil {
			return nil, fmt.Errorf("cart references unknown product %s", cartItem.ProductID)
		}
		totalAmount += product.Price * int64(cartItem.Quantity)
		items = append(items, models.OrderItem{
			ID:        uuid.New().String(),
			ProductID: cartItem.ProductID,
			Quantity:  cartItem.Quantity,
			UnitPrice: product.Price,
		})
	}

	order := &models.Order{
		ID:               uuid.New().String(),
		OrderNumber:      newOrderNumber(),
		CustomerID:       req.CustomerID,
		TotalAmount:      totalAmount,
		Status:           models.OrderStatusPending,
		PaymentStatus:    models.PaymentStatusPending,
		CustomerName:     req.CustomerName,
		CustomerPhone:    req.CustomerPhone,
		CustomerAddress:  req.CustomerAddress,
		CustomerRegion:   req.CustomerRegion,
		CustomerDistrict: req.CustomerDistrict,
	}

	if err := s.store.CreateOrderWithItems(ctx, order, items); err != nil {
		util.OrdersFailedTotal.WithLabelValues("db_error").Inc()
		return nil, fmt.Errorf("failed to create order: %w", err)
	}

	if err := s.store.ClearCart(ctx, req.CustomerID); err != nil {
		// The order exists; a stale cart is recoverable, losing the order is not.
		s.logger.Error("Failed to clear cart",
			zap.String("customer_id", req.CustomerID),
			zap.Error(err))
	}

	if err := s.queue.Enqueue(ctx, order.ID); err != nil {
		return nil, fmt.Errorf("failed to enqueue fulfillment job: %w", err)
	}

	util.OrdersCreatedTotal.Inc()
	s.logger.Info("Order created",
		zap.String("order_id", order.ID),
		zap.String("order_number", order.OrderNumber),
		zap.Int64("total_amount", totalAmount))

	eventItems := make([]models.OrderItemData, len(items))
	for i, item := range items {
		eventItems[i] = models.OrderItemData{
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice,
		}
	}
	event := &models.OrderCreatedEvent{
		BaseEvent: models.BaseEvent{
			EventID:   uuid.New().String(),
			EventType: models.EventTypeOrderCreated,
			Timestamp: time.Now().UTC(),
		},
		OrderID:     order.ID,
		OrderNumber: order.OrderNumber,
		CustomerID:  order.CustomerID,
		TotalAmount: order.TotalAmount,
		Items:       eventItems,
	}
	if err := s.events.PublishOrderCreated(ctx, event); err != nil {
		s.logger.Error("Failed to publish OrderCreated event", zap.Error(err))
	}

	return &CreateOrderResponse{
		OrderID:     order.ID,
		OrderNumber: order.OrderNumber,
		TotalAmount: order.TotalAmount,
		Status:      order.Status,
	}, nil
}

// GetOrder retrieves an order with its items
func (s *OrderService) GetOrder(ctx context.Context, orderID string) (*models.Order, []models.OrderItem, error) {
	order, err := s.store.GetOrderByID(ctx, orderID)
	if err != nil {
		return nil, nil, err
	}
	items, err := s.store.GetOrderItemsByOrderID(ctx, orderID)
	if err != nil {
		return nil, nil, err
	}
	return order, items, nil
}

// ListCustomerOrders retrieves a customer's orders, newest first
func (s *OrderService) ListCustomerOrders(ctx context.Context, customerID string) ([]models.Order, error) {
	if _, err := s.store.GetCustomerByID(ctx, customerID); err != nil {
		return nil, err
	}
	return s.store.GetOrdersByCustomerID(ctx, customerID)
}

// ListProducts retrieves the product catalog
func (s *OrderService) ListProducts(ctx context.Context) ([]models.Product, error) {
	return s.store.GetProducts(ctx)
}

// GetStats returns aggregate order counts
func (s *OrderService) GetStats(ctx context.Context) (*store.OrderStats, error) {
	return s.store.GetOrderStats(ctx)
}

// newOrderNumber generates a human-readable unique order number
func newOrderNumber() string {
	suffix := strings.ToUpper(uuid.New().String()[:8])
	return fmt.Sprintf("ORD-%d-%s", time.Now().Unix(), suffix)
}

package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"fulfillment-service/internal/fulfillment"
	"fulfillment-service/internal/service"
	"fulfillment-service/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Handler contains HTTP handlers
type Handler struct {
	orderService   *service.OrderService
	captchaService *service.CaptchaService
	paymentService *service.PaymentService
	smsService     *service.SmsService
}

// NewHandler creates a new HTTP handler
func NewHandler(orders *service.OrderService, captcha *service.CaptchaService, payments *service.PaymentService, sms *service.SmsService) *Handler {
	return &Handler{
		orderService:   orders,
		captchaService: captcha,
		paymentService: payments,
		smsService:     sms,
	}
}

// SetupRoutes sets up HTTP routes
func (h *Handler) SetupRoutes(router *gin.Engine) {
	router.Use(gin.Recovery())
	router.Use(prometheusMiddleware())
	router.Use(gin.Logger())

	router.GET("/health", h.healthCheck)
	router.GET("/ready", h.readinessCheck)

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/api/v1")
	{
		v1.POST("/orders", h.createOrder)
		v1.GET("/orders/:id", h.getOrder)
		v1.GET("/orders/:id/payments", h.getPaymentHistory)
		v1.GET("/orders/:id/notifications", h.getNotifications)

		v1.GET("/customers/:id/orders", h.listCustomerOrders)
		v1.GET("/products", h.listProducts)
		v1.GET("/stats", h.getStats)

		v1.GET("/captcha/:orderId", h.getCaptcha)
		v1.POST("/captcha/:orderId/solve", h.solveCaptcha)

		v1.POST("/payments/create", h.createPayment)
		v1.POST("/payments/verify", h.verifyPayment)
	}
}

// healthCheck handles health check requests
func (h *Handler) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"time":   time.Now().Unix(),
	})
}

// readinessCheck handles readiness check requests
func (h *Handler) readinessCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ready",
		"time":   time.Now().Unix(),
	})
}

// createOrder handles order creation from the customer's cart
func (h *Handler) createOrder(c *gin.Context) {
	var req service.CreateOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return
	}

	resp, err := h.orderService.CreateOrder(c.Request.Context(), &req)
	if err != nil {
		respondError(c, err, "Failed to create order")
		return
	}

	c.JSON(http.StatusCreated, resp)
}

// getOrder handles get order by ID
func (h *Handler) getOrder(c *gin.Context) {
	order, items, err := h.orderService.GetOrder(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err, "Failed to load order")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"order": order,
		"items": items,
	})
}

// getPaymentHistory lists an order's payment attempts
func (h *Handler) getPaymentHistory(c *gin.Context) {
	logs, err := h.paymentService.GetPaymentHistory(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err, "Failed to load payment history")
		return
	}
	c.JSON(http.StatusOK, gin.H{"payments": logs})
}

// getNotifications lists an order's notification attempts
func (h *Handler) getNotifications(c *gin.Context) {
	logs, err := h.smsService.GetNotifications(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err, "Failed to load notifications")
		return
	}
	c.JSON(http.StatusOK, gin.H{"notifications": logs})
}

// listCustomerOrders lists a customer's orders
func (h *Handler) listCustomerOrders(c *gin.Context) {
	orders, err := h.orderService.ListCustomerOrders(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err, "Failed to load orders")
		return
	}
	c.JSON(http.StatusOK, gin.H{"orders": orders})
}

// listProducts lists the product catalog
func (h *Handler) listProducts(c *gin.Context) {
	products, err := h.orderService.ListProducts(c.Request.Context())
	if err != nil {
		respondError(c, err, "Failed to load products")
		return
	}
	c.JSON(http.StatusOK, gin.H{"products": products})
}

// getStats returns aggregate order counts
func (h *Handler) getStats(c *gin.Context) {
	stats, err := h.orderService.GetStats(c.Request.Context())
	if err != nil {
		respondError(c, err, "Failed to load stats")
		return
	}
	c.JSON(http.StatusOK, stats)
}

// getCaptcha returns the open captcha session for an order
func (h *Handler) getCaptcha(c *gin.Context) {
	view, err := h.captchaService.GetCaptcha(c.Request.Context(), c.Param("orderId"))
	if err != nil {
		respondError(c, err, "Failed to load captcha session")
		return
	}

	c.JSON(http.StatusOK, view)
}

type solveCaptchaRequest struct {
	Solution string `json:"solution" binding:"required"`
}

// solveCaptcha accepts the human-provided solution and resumes fulfillment
func (h *Handler) solveCaptcha(c *gin.Context) {
	var req solveCaptchaRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return
	}

	orderID := c.Param("orderId")
	if err := h.captchaService.SubmitSolution(c.Request.Context(), orderID, req.Solution); err != nil {
		respondError(c, err, "Failed to submit captcha solution")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":  true,
		"order_id": orderID,
	})
}

type createPaymentRequest struct {
	OrderID       string `json:"orderId" binding:"required"`
	PaymentMethod string `json:"paymentMethod" binding:"required"`
	Amount        int64  `json:"amount" binding:"required,min=1"`
}

// createPayment dispatches payment creation to a provider
func (h *Handler) createPayment(c *gin.Context) {
	var req createPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return
	}

	resp, err := h.paymentService.CreatePayment(c.Request.Context(), req.OrderID, req.PaymentMethod, req.Amount)
	if err != nil {
		respondError(c, err, "Failed to create payment")
		return
	}

	c.JSON(http.StatusOK, resp)
}

type verifyPaymentRequest struct {
	TransactionID string `json:"transactionId" binding:"required"`
	PaymentMethod string `json:"paymentMethod" binding:"required"`
}

// verifyPayment checks a transaction with its provider
func (h *Handler) verifyPayment(c *gin.Context) {
	var req verifyPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return
	}

	result, err := h.paymentService.VerifyPayment(c.Request.Context(), req.TransactionID, req.PaymentMethod)
	if err != nil {
		respondError(c, err, "Failed to verify payment")
		return
	}

	c.JSON(http.StatusOK, result)
}

// respondError maps the error taxonomy to HTTP statuses
func respondError(c *gin.Context, err error, fallback string) {
	switch {
	case errors.Is(err, fulfillment.ErrOrderNotFound),
		errors.Is(err, fulfillment.ErrCustomerNotFound),
		errors.Is(err, fulfillment.ErrCaptchaNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, fulfillment.ErrCaptchaExpired),
		errors.Is(err, fulfillment.ErrCaptchaAlreadySolved),
		errors.Is(err, fulfillment.ErrUnsupportedPaymentMethod),
		errors.Is(err, fulfillment.ErrCartEmpty):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   fallback,
			"details": err.Error(),
		})
	}
}

// prometheusMiddleware collects HTTP metrics
func prometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Writer.Status())

		util.HTTPRequestDuration.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Observe(duration)

		util.HTTPRequestsTotal.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Inc()
	}
}

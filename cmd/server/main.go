package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"fulfillment-service/config"
	"fulfillment-service/internal/api"
	"fulfillment-service/internal/automation"
	"fulfillment-service/internal/broker"
	"fulfillment-service/internal/queue"
	"fulfillment-service/internal/service"
	"fulfillment-service/internal/service/providers"
	"fulfillment-service/internal/store"
	"fulfillment-service/internal/util"
	"fulfillment-service/internal/worker"

	"github.com/gin-gonic/gin"
)

func main() {

	cfg := config.Load()

	if err := util.InitLogger(cfg.Server.Env); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer util.SyncLogger()

	logger := util.GetLogger()
	logger.Info("Starting fulfillment service")

	tp, err := util.InitTracer("fulfillment-service", cfg.Observ.JaegerEndpoint)
	if err != nil {
		log.Fatalf("Failed to initialize tracer: %v", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(ctx); err != nil {
			log.Printf("Error shutting down tracer: %v", err)
		}
	}()

	db, err := store.NewStore(cfg.Database.URL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()
	log.Println("Database connected")

	jobQueue, err := queue.Connect(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, queue.Options{
		MaxAttempts:    cfg.Queue.MaxAttempts,
		LeaseTimeout:   cfg.Queue.LeaseTimeout,
		BackoffBase:    cfg.Queue.BackoffBase,
		BackoffCeiling: cfg.Queue.BackoffCeiling,
	})
	if err != nil {
		log.Fatalf("Failed to connect to Redis: %v", err)
	}
	defer jobQueue.Close()
	log.Println("Redis connected")

	producer := broker.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.TopicOrder)
	defer producer.Close()
	log.Println("Kafka producer initialized")

	eventPublisher := broker.NewEventPublisher(producer)

	browser := automation.NewBrowserManager(automation.RemoteLauncher(cfg.Automation.DriverEndpoint))
	defer browser.Close()

	checkout := automation.NewCheckoutFlow(
		browser,
		automation.NewCredentialIssuer(),
		db,
		automation.Config{
			BaseURL:        cfg.Automation.MerchantBaseURL,
			StepTimeout:    cfg.Automation.StepTimeout,
			ConfirmTimeout: cfg.Automation.ConfirmTimeout,
		},
	)

	smsService := service.NewSmsService(db, service.SmsConfig{
		BaseURL:  cfg.Sms.BaseURL,
		Email:    cfg.Sms.Email,
		Password: cfg.Sms.Password,
		Sender:   cfg.Sms.Sender,
	})

	orderService := service.NewOrderService(db, jobQueue, eventPublisher)
	captchaService := service.NewCaptchaService(db, jobQueue, cfg.Automation.MaxResumptions)

	paymentClients := service.DefaultProviders(
		providers.NewPayme(cfg.Payments.Payme.MerchantID, cfg.Payments.Payme.SecretKey, cfg.Payments.Payme.BaseURL),
		providers.NewClick(cfg.Payments.Click.MerchantID, cfg.Payments.Click.SecretKey, cfg.Payments.Click.BaseURL, cfg.Payments.ReturnURL),
		providers.NewUzcard(cfg.Payments.Uzcard.MerchantID, cfg.Payments.Uzcard.SecretKey, cfg.Payments.Uzcard.BaseURL, cfg.Payments.ReturnURL),
	)
	paymentService := service.NewPaymentService(db, paymentClients, eventPublisher)

	fulfillmentWorker := worker.New(db, checkout, smsService, eventPublisher, worker.Options{
		JobTimeout: cfg.Automation.JobTimeout,
		CaptchaTTL: cfg.Automation.CaptchaTTL,
	})

	consumerCtx, consumerCancel := context.WithCancel(context.Background())
	defer consumerCancel()

	consumer := queue.NewConsumer(jobQueue, fulfillmentWorker.Handle, cfg.Queue.Concurrency)
	consumerDone := make(chan struct{})
	go func() {
		consumer.Start(consumerCtx)
		close(consumerDone)
	}()

	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	handler := api.NewHandler(orderService, captchaService, paymentService, smsService)
	handler.SetupRoutes(router)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Server.Port),
		Handler: router,
	}

	go func() {
		log.Printf("Starting HTTP server on port %s", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server forced to shutdown: %v", err)
	}

	consumerCancel()
	select {
	case <-consumerDone:
	case <-time.After(cfg.Automation.JobTimeout):
		log.Println("Timed out waiting for in-flight jobs")
	}

	log.Println("Server exited")
}

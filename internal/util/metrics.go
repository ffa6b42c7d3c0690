package util

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	OrdersCreatedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "orders_created_total",
		Help: "Total number of orders created",
	})

	OrdersCompletedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "orders_completed_total",
		Help: "Total number of orders placed on the merchant site",
	})

	OrdersFailedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "orders_failed_total",
		Help: "Total number of failed orders",
	}, []string{"reason"})

	JobsProcessedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fulfillment_jobs_processed_total",
		Help: "Total number of fulfillment job executions by outcome",
	}, []string{"outcome"})

	JobsReapedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fulfillment_jobs_reaped_total",
		Help: "Total number of jobs redelivered after lease expiry",
	})

	JobDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "fulfillment_job_duration_seconds",
		Help:    "Duration of fulfillment job executions",
		Buckets: []float64{1, 5, 15, 30, 60, 120, 300},
	})

	JobsDroppedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fulfillment_jobs_dropped_total",
		Help: "Total number of jobs dropped by the single-flight guard",
	})

	AutomationRunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "automation_runs_total",
		Help: "Total number of automation runs by outcome",
	}, []string{"outcome"})

	CaptchaSessionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "captcha_sessions_total",
		Help: "Total number of captcha sessions opened",
	})

	CaptchaSolvesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "captcha_solves_total",
		Help: "Total number of captcha solve submissions by outcome",
	}, []string{"outcome"})

	PaymentAttemptsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "payment_attempts_total",
		Help: "Total number of payment attempts by provider",
	}, []string{"provider"})

	PaymentFailedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "payment_failed_total",
		Help: "Total number of failed payments by provider",
	}, []string{"provider"})

	NotificationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "notifications_total",
		Help: "Total number of notification attempts by outcome",
	}, []string{"outcome"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})
)

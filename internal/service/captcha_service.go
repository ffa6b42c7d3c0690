package service

import (
	"context"
	"fmt"
	"time"

	"fulfillment-service/internal/fulfillment"
	"fulfillment-service/internal/models"
	"fulfillment-service/internal/util"

	"go.uber.org/zap"
)

// CaptchaStore is the persistence slice the captcha manager needs
type CaptchaStore interface {
	GetCaptchaSession(ctx context.Context, orderID string) (*models.CaptchaSession, error)
	SolveCaptchaSession(ctx context.Context, orderID, solution string) (bool, error)
	IncrementCaptchaAttempts(ctx context.Context, orderID string) (int, error)
	MarkOrderFailed(ctx context.Context, orderID string) error
}

// CaptchaService validates captcha sessions and turns accepted external
// solutions into new fulfillment attempts. Resumption restarts the scripted
// flow from the top; it is not a continuation of the suspended run.
type CaptchaService struct {
	store CaptchaStore
	queue Enqueuer
	// maxResumptions caps solve->restart->captcha-again cycles per order.
	maxResumptions int
	logger         *zap.Logger
	now            func() time.Time
}

// NewCaptchaService creates a captcha service
func NewCaptchaService(store CaptchaStore, queue Enqueuer, maxResumptions int) *CaptchaService {
	if maxResumptions < 1 {
		maxResumptions = 3
	}
	return &CaptchaService{
		store:          store,
		queue:          queue,
		maxResumptions: maxResumptions,
		logger:         util.GetLogger(),
		now:            time.Now,
	}
}

// CaptchaView is the session payload exposed over HTTP
type CaptchaView struct {
	OrderID   string    `json:"order_id"`
	ImageURL  string    `json:"image_url,omitempty"`
	IframeURL string    `json:"iframe_url,omitempty"`
	ExpiresAt time.Time `json:"expires_at"`
}

// GetCaptcha returns the open session for an order. Fails NotFound when no
// session exists, Expired when past the TTL, AlreadySolved when consumed.
func (s *CaptchaService) GetCaptcha(ctx context.Context, orderID string) (*CaptchaView, error) {
	session, err := s.validateSession(ctx, orderID)
	if err != nil {
		return nil, err
	}

	return &CaptchaView{
		OrderID:   session.OrderID,
		ImageURL:  session.ImageURL,
		IframeURL: session.IframeURL,
		ExpiresAt: session.ExpiresAt,
	}, nil
}

// SubmitSolution accepts an external solve and triggers a new fulfillment
// attempt. The session is consumed atomically: a second solve, or a solve
// after expiry, fails even when retried.
func (s *CaptchaService) SubmitSolution(ctx context.Context, orderID, solution string) error {
	ctx, span := util.StartSpan(ctx, "CaptchaService.SubmitSolution")
	defer span.End()

	if _, err := s.validateSession(ctx, orderID); err != nil {
		util.CaptchaSolvesTotal.WithLabelValues("rejected").Inc()
		return err
	}

	solved, err := s.store.SolveCaptchaSession(ctx, orderID, solution)
	if err != nil {
		return fmt.Errorf("failed to record captcha solution: %w", err)
	}
	if !solved {
		// Lost the race against a concurrent solve or the TTL.
		util.CaptchaSolvesTotal.WithLabelValues("rejected").Inc()
		return fmt.Errorf("order %s: %w", orderID, fulfillment.ErrCaptchaAlreadySolved)
	}

	attempts, err := s.store.IncrementCaptchaAttempts(ctx, orderID)
	if err != nil {
		return err
	}
	if attempts > s.maxResumptions {
		s.logger.Warn("Captcha resumption ceiling reached, failing order",
			zap.String("order_id", orderID),
			zap.Int("attempts", attempts))
		util.CaptchaSolvesTotal.WithLabelValues("ceiling").Inc()
		if err := s.store.MarkOrderFailed(ctx, orderID); err != nil {
			return err
		}
		return fmt.Errorf("order %s: captcha resumption limit exceeded", orderID)
	}

	if err := s.queue.Enqueue(ctx, orderID); err != nil {
		return fmt.Errorf("failed to enqueue resumption job: %w", err)
	}

	util.CaptchaSolvesTotal.WithLabelValues("accepted").Inc()
	s.logger.Info("Captcha solved, fulfillment resuming",
		zap.String("order_id", orderID),
		zap.Int("resumption", attempts))
	return nil
}

func (s *CaptchaService) validateSession(ctx context.Context, orderID string) (*models.CaptchaSession, error) {
	session, err := s.store.GetCaptchaSession(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if s.now().After(session.ExpiresAt) {
		return nil, fmt.Errorf("order %s: %w", orderID, fulfillment.ErrCaptchaExpired)
	}
	if session.IsSolved {
		return nil, fmt.Errorf("order %s: %w", orderID, fulfillment.ErrCaptchaAlreadySolved)
	}
	return session, nil
}

package store

import (
	"context"
	"database/sql"
	"fmt"

	"fulfillment-service/internal/fulfillment"
	"fulfillment-service/internal/models"
)

// UpsertCaptchaSession creates a captcha session for an order, replacing any
// stale one. Sessions are keyed by order id: at most one row per order.
func (s *Store) UpsertCaptchaSession(ctx context.Context, session *models.CaptchaSession) error {
	query := `
		INSERT INTO captcha_sessions (id, order_id, image_url, iframe_url, expires_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (order_id) DO UPDATE SET
			id = EXCLUDED.id,
			image_url = EXCLUDED.image_url,
			iframe_url = EXCLUDED.iframe_url,
			solution = '',
			is_solved = FALSE,
			expires_at = EXCLUDED.expires_at,
			created_at = NOW()
		RETURNING created_at`

	return s.db.GetContext(ctx, &session.CreatedAt, query,
		session.ID, session.OrderID, session.ImageURL, session.IframeURL, session.ExpiresAt)
}

// GetCaptchaSession retrieves the captcha session for an order
func (s *Store) GetCaptchaSession(ctx context.Context, orderID string) (*models.CaptchaSession, error) {
	var session models.CaptchaSession
	err := s.db.GetContext(ctx, &session,
		"SELECT * FROM captcha_sessions WHERE order_id = $1", orderID)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("order %s: %w", orderID, fulfillment.ErrCaptchaNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &session, nil
}

// SolveCaptchaSession records the solution. The conditional update rejects a
// second solve or a solve after expiry at the storage layer, so two
// concurrent solve calls cannot both win.
func (s *Store) SolveCaptchaSession(ctx context.Context, orderID, solution string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE captcha_sessions
		SET solution = $1, is_solved = TRUE
		WHERE order_id = $2 AND is_solved = FALSE AND expires_at > NOW()`,
		solution, orderID)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

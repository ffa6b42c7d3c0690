// Package automation drives the scripted checkout on the external merchant
// site. The pipeline depends only on the Page/Browser capability interfaces,
// never on a concrete automation technology, so tests run against
// deterministic fakes.
package automation

import (
	"context"
	"time"

	"fulfillment-service/internal/models"
)

// Page is one isolated execution context on the merchant site. Every
// navigating or waiting call blocks and must honor ctx.
type Page interface {
	Navigate(ctx context.Context, url string) error
	Fill(ctx context.Context, selector, value string) error
	Click(ctx context.Context, selector string) error
	// WaitFor blocks until the selector appears or the timeout elapses.
	WaitFor(ctx context.Context, selector string, timeout time.Duration) error
	// WaitForNavigation blocks until in-flight navigation settles.
	WaitForNavigation(ctx context.Context, timeout time.Duration) error
	Exists(ctx context.Context, selector string) (bool, error)
	ReadAttribute(ctx context.Context, selector, attribute string) (string, error)
	ReadText(ctx context.Context, selector string) (string, error)
	Close() error
}

// Browser is a live browser process able to open isolated pages
type Browser interface {
	NewPage(ctx context.Context) (Page, error)
	Close() error
}

// Request carries everything one checkout run needs
type Request struct {
	Order    *models.Order
	Items    []models.OrderItem
	Products map[string]*models.Product
	Customer *models.Customer
	// CaptchaSolution is supplied on a resumed run and replayed when the
	// captcha challenge reappears.
	CaptchaSolution string
}

// Result is the outcome of a completed (non-interrupted) checkout run
type Result struct {
	ExternalOrderID string
	ReceiptURL      string
}

// CaptchaChallenge signals that the run was suspended on a captcha. At
// least one of the URLs is set.
type CaptchaChallenge struct {
	ImageURL  string
	IframeURL string
}

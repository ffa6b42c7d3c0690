package automation

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"fulfillment-service/internal/fulfillment"
	"fulfillment-service/internal/models"
	"fulfillment-service/internal/util"

	"go.uber.org/zap"
)

// Merchant site selectors. The site exposes no API; these are the contract.
const (
	selLoginInput       = `input[name="login"]`
	selPasswordInput    = `input[name="password"]`
	selLoginSubmit      = `button[type="submit"]`
	selAddToCart        = `button[data-testid="add-to-cart"]`
	selQuantityInput    = `input[data-testid="quantity"]`
	selCheckout         = `button[data-testid="checkout"]`
	selAddressInput     = `input[name="address"]`
	selRegionInput      = `input[name="region"]`
	selDistrictInput    = `input[name="district"]`
	selPhoneInput       = `input[name="phone"]`
	selNameInput        = `input[name="name"]`
	selProceedToPayment = `button[data-testid="proceed-to-payment"]`
	selCaptcha          = `[data-testid="captcha"]`
	selCaptchaImage     = `img[data-testid="captcha-image"]`
	selCaptchaIframe    = `iframe[data-testid="captcha-iframe"]`
	selCaptchaInput     = `input[data-testid="captcha-input"]`
	selCaptchaSubmit    = `button[data-testid="submit-captcha"]`
	selPlaceOrder       = `button[data-testid="place-order"]`
	selConfirmation     = `[data-testid="order-confirmation"]`
	selReceiptURL       = `[data-testid="receipt-url"]`
	selReceiptOrderID   = `[data-testid="merchant-order-id"]`
)

// Config bounds every step of the flow
type Config struct {
	BaseURL        string
	StepTimeout    time.Duration
	ConfirmTimeout time.Duration
}

// CredentialStore persists provisioned merchant identities
type CredentialStore interface {
	SaveExternalCredentials(ctx context.Context, customerID, externalID, login, password string) error
}

// CheckoutFlow executes the scripted checkout end to end. A run terminates
// in exactly one of three ways: a Result, a CaptchaChallenge, or an error.
type CheckoutFlow struct {
	browser *BrowserManager
	issuer  *CredentialIssuer
	creds   CredentialStore
	cfg     Config
	logger  *zap.Logger
}

// NewCheckoutFlow creates a flow over the shared browser
func NewCheckoutFlow(browser *BrowserManager, issuer *CredentialIssuer, creds CredentialStore, cfg Config) *CheckoutFlow {
	if cfg.StepTimeout == 0 {
		cfg.StepTimeout = 15 * time.Second
	}
	if cfg.ConfirmTimeout == 0 {
		cfg.ConfirmTimeout = 30 * time.Second
	}
	return &CheckoutFlow{
		browser: browser,
		issuer:  issuer,
		creds:   creds,
		cfg:     cfg,
		logger:  util.GetLogger(),
	}
}

// Run drives one checkout attempt for the order. The page is released on
// every exit path.
func (f *CheckoutFlow) Run(ctx context.Context, req *Request) (*Result, *CaptchaChallenge, error) {
	page, err := f.browser.AcquirePage(ctx)
	if err != nil {
		return nil, nil, fulfillment.Transient(err)
	}
	defer page.Close()

	creds, err := f.provisionCredentials(ctx, req.Customer)
	if err != nil {
		return nil, nil, err
	}

	if err := f.login(ctx, page, creds); err != nil {
		return nil, nil, err
	}

	if err := f.populateCart(ctx, page, req); err != nil {
		return nil, nil, err
	}

	if err := f.fillCheckout(ctx, page, req); err != nil {
		return nil, nil, err
	}

	challenge, err := f.probeCaptcha(ctx, page, req.CaptchaSolution)
	if err != nil {
		return nil, nil, err
	}
	if challenge != nil {
		return nil, challenge, nil
	}

	result, err := f.placeOrder(ctx, page)
	if err != nil {
		return nil, nil, err
	}
	return result, nil, nil
}

// provisionCredentials reuses stored merchant credentials or issues and
// persists a fresh identity.
func (f *CheckoutFlow) provisionCredentials(ctx context.Context, customer *models.Customer) (Credentials, error) {
	if customer.ExternalID != "" && customer.ExternalLogin != "" && customer.ExternalPassword != "" {
		return Credentials{
			ExternalID: customer.ExternalID,
			Login:      customer.ExternalLogin,
			Password:   customer.ExternalPassword,
		}, nil
	}

	creds, err := f.issuer.Issue()
	if err != nil {
		return Credentials{}, fulfillment.Fatal(fmt.Errorf("credential provisioning: %w", err))
	}

	if err := f.creds.SaveExternalCredentials(ctx, customer.ID, creds.ExternalID, creds.Login, creds.Password); err != nil {
		return Credentials{}, fulfillment.Transient(fmt.Errorf("failed to persist credentials: %w", err))
	}

	f.logger.Info("Provisioned merchant credentials",
		zap.String("customer_id", customer.ID),
		zap.String("external_id", creds.ExternalID))
	return creds, nil
}

func (f *CheckoutFlow) login(ctx context.Context, page Page, creds Credentials) error {
	steps := []struct {
		name string
		run  func() error
	}{
		{"navigate-login", func() error { return page.Navigate(ctx, f.cfg.BaseURL+"/login") }},
		{"fill-login", func() error { return page.Fill(ctx, selLoginInput, creds.Login) }},
		{"fill-password", func() error { return page.Fill(ctx, selPasswordInput, creds.Password) }},
		{"submit-login", func() error { return page.Click(ctx, selLoginSubmit) }},
		{"settle-login", func() error { return page.WaitForNavigation(ctx, f.cfg.StepTimeout) }},
	}
	for _, step := range steps {
		if err := step.run(); err != nil {
			return stepError(step.name, err)
		}
	}
	return nil
}

// populateCart adds every externally mapped item. Items without a merchant
// mapping are skipped, not an error.
func (f *CheckoutFlow) populateCart(ctx context.Context, page Page, req *Request) error {
	for _, item := range req.Items {
		product := req.Products[item.ProductID]
		if product == nil || product.ExternalID == "" {
			f.logger.Debug("Skipping unmapped product",
				zap.String("order_id", req.Order.ID),
				zap.String("product_id", item.ProductID))
			continue
		}

		url := fmt.Sprintf("%s/product/%s", f.cfg.BaseURL, product.ExternalID)
		if err := page.Navigate(ctx, url); err != nil {
			return stepError("navigate-product", err)
		}
		if err := page.Click(ctx, selAddToCart); err != nil {
			return stepError("add-to-cart", err)
		}
		if item.Quantity > 1 {
			if err := page.Fill(ctx, selQuantityInput, strconv.Itoa(item.Quantity)); err != nil {
				return stepError("set-quantity", err)
			}
		}
	}
	return nil
}

func (f *CheckoutFlow) fillCheckout(ctx context.Context, page Page, req *Request) error {
	order := req.Order
	steps := []struct {
		name string
		run  func() error
	}{
		{"navigate-cart", func() error { return page.Navigate(ctx, f.cfg.BaseURL+"/cart") }},
		{"open-checkout", func() error { return page.Click(ctx, selCheckout) }},
		{"fill-address", func() error { return page.Fill(ctx, selAddressInput, order.CustomerAddress) }},
		{"fill-region", func() error { return page.Fill(ctx, selRegionInput, order.CustomerRegion) }},
		{"fill-district", func() error { return page.Fill(ctx, selDistrictInput, order.CustomerDistrict) }},
		{"fill-phone", func() error { return page.Fill(ctx, selPhoneInput, order.CustomerPhone) }},
		{"fill-name", func() error { return page.Fill(ctx, selNameInput, order.CustomerName) }},
		{"proceed-to-payment", func() error { return page.Click(ctx, selProceedToPayment) }},
	}
	for _, step := range steps {
		if err := step.run(); err != nil {
			return stepError(step.name, err)
		}
	}
	return nil
}

// probeCaptcha checks for a captcha challenge. With a solution in hand the
// challenge is answered in place; otherwise the run is suspended.
func (f *CheckoutFlow) probeCaptcha(ctx context.Context, page Page, solution string) (*CaptchaChallenge, error) {
	present, err := page.Exists(ctx, selCaptcha)
	if err != nil {
		return nil, stepError("probe-captcha", err)
	}
	if !present {
		return nil, nil
	}

	if solution != "" {
		if err := page.Fill(ctx, selCaptchaInput, solution); err != nil {
			return nil, stepError("fill-captcha", err)
		}
		if err := page.Click(ctx, selCaptchaSubmit); err != nil {
			return nil, stepError("submit-captcha", err)
		}
		if err := page.WaitForNavigation(ctx, f.cfg.StepTimeout); err != nil {
			return nil, stepError("settle-captcha", err)
		}
		return nil, nil
	}

	challenge := &CaptchaChallenge{}
	if present, _ := page.Exists(ctx, selCaptchaImage); present {
		challenge.ImageURL, _ = page.ReadAttribute(ctx, selCaptchaImage, "src")
	}
	if present, _ := page.Exists(ctx, selCaptchaIframe); present {
		challenge.IframeURL, _ = page.ReadAttribute(ctx, selCaptchaIframe, "src")
	}
	if challenge.ImageURL == "" && challenge.IframeURL == "" {
		// Nothing to forward to the customer. Suspending on an empty
		// challenge would strand the order; fail the step and retry.
		return nil, stepError("read-captcha", fmt.Errorf("captcha present but challenge unreadable"))
	}
	return challenge, nil
}

func (f *CheckoutFlow) placeOrder(ctx context.Context, page Page) (*Result, error) {
	if err := page.Click(ctx, selPlaceOrder); err != nil {
		return nil, stepError("place-order", err)
	}

	if err := page.WaitFor(ctx, selConfirmation, f.cfg.ConfirmTimeout); err != nil {
		return nil, fulfillment.Transient(&fulfillment.TimeoutError{Op: "order confirmation"})
	}

	receiptURL, err := page.ReadText(ctx, selReceiptURL)
	if err != nil {
		return nil, stepError("read-receipt", err)
	}

	// Some confirmations omit a distinct merchant order id; the receipt
	// then doubles as the identifier, matching the merchant's receipts.
	externalOrderID, err := page.ReadText(ctx, selReceiptOrderID)
	if err != nil || externalOrderID == "" {
		externalOrderID = receiptURL
	}

	return &Result{
		ExternalOrderID: externalOrderID,
		ReceiptURL:      receiptURL,
	}, nil
}

func stepError(step string, err error) error {
	return fulfillment.Transient(&fulfillment.AutomationError{Step: step, Cause: err})
}

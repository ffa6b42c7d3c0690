package automation

import (
	"context"
	"fmt"
	"testing"
	"time"

	"fulfillment-service/internal/fulfillment"
	"fulfillment-service/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakePage scripts the merchant site: selectors in present are visible,
// attrs/texts feed reads, and failOn injects an error into one action.
type fakePage struct {
	present map[string]bool
	attrs   map[string]string
	texts   map[string]string

	failOn    string
	failErr   error
	fills     map[string]string
	clicks    []string
	navigated []string
	closed    bool
}

func newFakePage() *fakePage {
	return &fakePage{
		present: make(map[string]bool),
		attrs:   make(map[string]string),
		texts:   make(map[string]string),
		fills:   make(map[string]string),
	}
}

func (p *fakePage) fail(action string) error {
	if p.failOn == action {
		if p.failErr != nil {
			return p.failErr
		}
		return fmt.Errorf("scripted failure at %s", action)
	}
	return nil
}

func (p *fakePage) Navigate(ctx context.Context, url string) error {
	p.navigated = append(p.navigated, url)
	return p.fail("navigate")
}

func (p *fakePage) Fill(ctx context.Context, selector, value string) error {
	p.fills[selector] = value
	return p.fail("fill:" + selector)
}

func (p *fakePage) Click(ctx context.Context, selector string) error {
	p.clicks = append(p.clicks, selector)
	return p.fail("click:" + selector)
}

func (p *fakePage) WaitFor(ctx context.Context, selector string, timeout time.Duration) error {
	if err := p.fail("waitFor:" + selector); err != nil {
		return err
	}
	if !p.present[selector] {
		return fmt.Errorf("selector %s never appeared", selector)
	}
	return nil
}

func (p *fakePage) WaitForNavigation(ctx context.Context, timeout time.Duration) error {
	return p.fail("waitForNavigation")
}

func (p *fakePage) Exists(ctx context.Context, selector string) (bool, error) {
	return p.present[selector], p.fail("exists:" + selector)
}

func (p *fakePage) ReadAttribute(ctx context.Context, selector, attribute string) (string, error) {
	return p.attrs[selector], nil
}

func (p *fakePage) ReadText(ctx context.Context, selector string) (string, error) {
	return p.texts[selector], nil
}

func (p *fakePage) Close() error {
	p.closed = true
	return nil
}

type fakeBrowser struct {
	page *fakePage
}

func (b *fakeBrowser) NewPage(ctx context.Context) (Page, error) { return b.page, nil }
func (b *fakeBrowser) Close() error                              { return nil }

type fakeCredStore struct {
	saved []Credentials
	err   error
}

func (f *fakeCredStore) SaveExternalCredentials(ctx context.Context, customerID, externalID, login, password string) error {
	if f.err != nil {
		return f.err
	}
	f.saved = append(f.saved, Credentials{ExternalID: externalID, Login: login, Password: password})
	return nil
}

func newFlowFixture(page *fakePage) (*fakeCredStore, *CheckoutFlow) {
	manager := NewBrowserManager(func(ctx context.Context) (Browser, error) {
		return &fakeBrowser{page: page}, nil
	})
	creds := &fakeCredStore{}
	flow := NewCheckoutFlow(manager, NewCredentialIssuer(), creds, Config{
		BaseURL:        "https://merchant.example",
		StepTimeout:    time.Second,
		ConfirmTimeout: time.Second,
	})
	return creds, flow
}

func checkoutRequest() *Request {
	return &Request{
		Order: &models.Order{
			ID:               "order-1",
			CustomerName:     "Aziz Karimov",
			CustomerPhone:    "+998901234567",
			CustomerAddress:  "Amir Temur 15",
			CustomerRegion:   "Tashkent",
			CustomerDistrict: "Yunusabad",
		},
		Items: []models.OrderItem{
			{ID: "item-1", ProductID: "prod-1", Quantity: 2},
			{ID: "item-2", ProductID: "prod-2", Quantity: 1},
		},
		Products: map[string]*models.Product{
			"prod-1": {ID: "prod-1", ExternalID: "ext-100"},
			"prod-2": {ID: "prod-2", ExternalID: "ext-200"},
		},
		Customer: &models.Customer{
			ID:               "cust-1",
			ExternalID:       "EXT-abc",
			ExternalLogin:    "user_existing",
			ExternalPassword: "pw",
		},
	}
}

func TestRunCompletesCheckout(t *testing.T) {
	page := newFakePage()
	page.present[selConfirmation] = true
	page.texts[selReceiptURL] = "https://merchant.example/receipt/991"
	page.texts[selReceiptOrderID] = "M-991"

	_, flow := newFlowFixture(page)

	result, challenge, err := flow.Run(context.Background(), checkoutRequest())
	require.NoError(t, err)
	assert.Nil(t, challenge)
	require.NotNil(t, result)
	assert.Equal(t, "M-991", result.ExternalOrderID)
	assert.Equal(t, "https://merchant.example/receipt/991", result.ReceiptURL)

	// Login used the stored credentials, both products were added, and
	// the quantity field was only touched for the multi-unit item.
	assert.Equal(t, "user_existing", page.fills[selLoginInput])
	assert.Contains(t, page.navigated, "https://merchant.example/product/ext-100")
	assert.Contains(t, page.navigated, "https://merchant.example/product/ext-200")
	assert.Equal(t, "2", page.fills[selQuantityInput])
	assert.Equal(t, "Yunusabad", page.fills[selDistrictInput])
	assert.True(t, page.closed)
}

func TestRunExternalOrderIDFallsBackToReceipt(t *testing.T) {
	page := newFakePage()
	page.present[selConfirmation] = true
	page.texts[selReceiptURL] = "https://merchant.example/receipt/991"

	_, flow := newFlowFixture(page)

	result, _, err := flow.Run(context.Background(), checkoutRequest())
	require.NoError(t, err)
	assert.Equal(t, result.ReceiptURL, result.ExternalOrderID)
}

func TestRunSuspendsOnCaptcha(t *testing.T) {
	page := newFakePage()
	page.present[selCaptcha] = true
	page.present[selCaptchaImage] = true
	page.attrs[selCaptchaImage] = "https://merchant.example/captcha.png"

	_, flow := newFlowFixture(page)

	result, challenge, err := flow.Run(context.Background(), checkoutRequest())
	require.NoError(t, err)
	assert.Nil(t, result)
	require.NotNil(t, challenge)
	assert.Equal(t, "https://merchant.example/captcha.png", challenge.ImageURL)

	// The order was never placed.
	assert.NotContains(t, page.clicks, selPlaceOrder)
	assert.True(t, page.closed)
}

func TestRunUnreadableCaptchaFailsInsteadOfSuspending(t *testing.T) {
	page := newFakePage()
	page.present[selCaptcha] = true
	// Neither the image nor the iframe is readable, so there is no
	// challenge to hand to the customer.

	_, flow := newFlowFixture(page)

	result, challenge, err := flow.Run(context.Background(), checkoutRequest())
	require.Error(t, err)
	assert.Nil(t, result)
	assert.Nil(t, challenge)
	assert.True(t, fulfillment.Retryable(err))

	var autoErr *fulfillment.AutomationError
	require.ErrorAs(t, err, &autoErr)
	assert.Equal(t, "read-captcha", autoErr.Step)
	assert.NotContains(t, page.clicks, selPlaceOrder)
	assert.True(t, page.closed)
}

func TestRunReplaysCaptchaSolution(t *testing.T) {
	page := newFakePage()
	page.present[selCaptcha] = true
	page.present[selConfirmation] = true
	page.texts[selReceiptURL] = "https://merchant.example/receipt/992"

	_, flow := newFlowFixture(page)

	req := checkoutRequest()
	req.CaptchaSolution = "X7K2M"

	result, challenge, err := flow.Run(context.Background(), req)
	require.NoError(t, err)
	assert.Nil(t, challenge)
	require.NotNil(t, result)

	assert.Equal(t, "X7K2M", page.fills[selCaptchaInput])
	assert.Contains(t, page.clicks, selCaptchaSubmit)
	assert.Contains(t, page.clicks, selPlaceOrder)
}

func TestRunConfirmationTimeoutIsTransient(t *testing.T) {
	page := newFakePage()
	// Confirmation never appears.
	_, flow := newFlowFixture(page)

	_, _, err := flow.Run(context.Background(), checkoutRequest())
	require.Error(t, err)
	assert.True(t, fulfillment.Retryable(err))

	var timeout *fulfillment.TimeoutError
	assert.ErrorAs(t, err, &timeout)
	assert.True(t, page.closed)
}

func TestRunStepFailureIsTransientAutomationError(t *testing.T) {
	page := newFakePage()
	page.failOn = "click:" + selCheckout

	_, flow := newFlowFixture(page)

	_, _, err := flow.Run(context.Background(), checkoutRequest())
	require.Error(t, err)
	assert.True(t, fulfillment.Retryable(err))

	var autoErr *fulfillment.AutomationError
	require.ErrorAs(t, err, &autoErr)
	assert.Equal(t, "open-checkout", autoErr.Step)
	assert.True(t, page.closed)
}

func TestRunSkipsUnmappedProducts(t *testing.T) {
	page := newFakePage()
	page.present[selConfirmation] = true
	page.texts[selReceiptURL] = "https://merchant.example/receipt/993"

	_, flow := newFlowFixture(page)

	req := checkoutRequest()
	req.Products["prod-2"].ExternalID = ""

	_, _, err := flow.Run(context.Background(), req)
	require.NoError(t, err)

	assert.Contains(t, page.navigated, "https://merchant.example/product/ext-100")
	assert.NotContains(t, page.navigated, "https://merchant.example/product/ext-200")
}

func TestRunProvisionsCredentialsOnce(t *testing.T) {
	page := newFakePage()
	page.present[selConfirmation] = true
	page.texts[selReceiptURL] = "https://merchant.example/receipt/994"

	creds, flow := newFlowFixture(page)

	req := checkoutRequest()
	req.Customer.ExternalID = ""
	req.Customer.ExternalLogin = ""
	req.Customer.ExternalPassword = ""

	_, _, err := flow.Run(context.Background(), req)
	require.NoError(t, err)

	require.Len(t, creds.saved, 1)
	assert.NotEmpty(t, creds.saved[0].Login)
	assert.Equal(t, creds.saved[0].Login, page.fills[selLoginInput])
}

func TestRunCredentialPersistFailureIsTransient(t *testing.T) {
	page := newFakePage()
	creds, flow := newFlowFixture(page)
	creds.err = fmt.Errorf("db down")

	req := checkoutRequest()
	req.Customer.ExternalID = ""
	req.Customer.ExternalLogin = ""
	req.Customer.ExternalPassword = ""

	_, _, err := flow.Run(context.Background(), req)
	require.Error(t, err)
	assert.True(t, fulfillment.Retryable(err))
	assert.True(t, page.closed)
}

package automation

import (
	"context"
	"fmt"
	"sync"

	"fulfillment-service/internal/util"

	"go.uber.org/zap"
)

// Launcher starts the long-lived browser process
type Launcher func(ctx context.Context) (Browser, error)

// BrowserManager owns the process-wide browser singleton. The browser is
// launched lazily on first use behind a lock so concurrent workers cannot
// double-init, and every job gets its own isolated page.
type BrowserManager struct {
	launch Launcher
	logger *zap.Logger

	mu      sync.Mutex
	browser Browser
}

// NewBrowserManager creates a manager; the browser is not launched until
// the first AcquirePage call.
func NewBrowserManager(launch Launcher) *BrowserManager {
	return &BrowserManager{
		launch: launch,
		logger: util.GetLogger(),
	}
}

// AcquirePage returns a fresh isolated page. Callers must Close the page on
// every exit path.
func (m *BrowserManager) AcquirePage(ctx context.Context) (Page, error) {
	browser, err := m.getBrowser(ctx)
	if err != nil {
		return nil, err
	}

	page, err := browser.NewPage(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to open page: %w", err)
	}
	return page, nil
}

func (m *BrowserManager) getBrowser(ctx context.Context) (Browser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.browser != nil {
		return m.browser, nil
	}

	m.logger.Info("Launching browser")
	browser, err := m.launch(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to launch browser: %w", err)
	}
	m.browser = browser
	return m.browser, nil
}

// Close shuts the browser down if it was ever launched
func (m *BrowserManager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.browser == nil {
		return nil
	}
	err := m.browser.Close()
	m.browser = nil
	return err
}

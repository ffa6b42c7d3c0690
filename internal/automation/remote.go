package automation

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// remoteBrowser speaks JSON over HTTP to a browser-driver sidecar. The
// sidecar owns the actual browser process; this client only issues page
// commands against it.
type remoteBrowser struct {
	endpoint string
	client   *http.Client
}

// RemoteLauncher returns a Launcher that attaches to the driver sidecar at
// the given endpoint. The sidecar is probed once at launch so a missing
// driver fails fast instead of on the first job.
func RemoteLauncher(endpoint string) Launcher {
	return func(ctx context.Context) (Browser, error) {
		b := &remoteBrowser{
			endpoint: endpoint,
			client:   &http.Client{Timeout: 60 * time.Second},
		}
		if err := b.call(ctx, "/session/ping", nil, nil); err != nil {
			return nil, fmt.Errorf("browser driver unreachable at %s: %w", endpoint, err)
		}
		return b, nil
	}
}

func (b *remoteBrowser) NewPage(ctx context.Context) (Page, error) {
	var resp struct {
		PageID string `json:"pageId"`
	}
	if err := b.call(ctx, "/session/pages", map[string]any{}, &resp); err != nil {
		return nil, err
	}
	return &remotePage{browser: b, id: resp.PageID}, nil
}

func (b *remoteBrowser) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return b.call(ctx, "/session/close", nil, nil)
}

func (b *remoteBrowser) call(ctx context.Context, path string, payload, out any) error {
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.endpoint+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := b.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode >= 400 {
		var driverErr struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(raw, &driverErr) == nil && driverErr.Error != "" {
			return fmt.Errorf("browser driver: %s", driverErr.Error)
		}
		return fmt.Errorf("browser driver: status %d", resp.StatusCode)
	}
	if out != nil {
		return json.Unmarshal(raw, out)
	}
	return nil
}

// remotePage proxies Page calls to one page held open by the sidecar
type remotePage struct {
	browser *remoteBrowser
	id      string
}

type pageCommand struct {
	Action    string `json:"action"`
	Selector  string `json:"selector,omitempty"`
	Value     string `json:"value,omitempty"`
	Attribute string `json:"attribute,omitempty"`
	URL       string `json:"url,omitempty"`
	TimeoutMs int64  `json:"timeoutMs,omitempty"`
}

type pageResult struct {
	Found bool   `json:"found"`
	Text  string `json:"text"`
}

func (p *remotePage) exec(ctx context.Context, cmd pageCommand) (*pageResult, error) {
	var res pageResult
	path := fmt.Sprintf("/session/pages/%s/command", p.id)
	if err := p.browser.call(ctx, path, cmd, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

func (p *remotePage) Navigate(ctx context.Context, url string) error {
	_, err := p.exec(ctx, pageCommand{Action: "navigate", URL: url})
	return err
}

func (p *remotePage) Fill(ctx context.Context, selector, value string) error {
	_, err := p.exec(ctx, pageCommand{Action: "fill", Selector: selector, Value: value})
	return err
}

func (p *remotePage) Click(ctx context.Context, selector string) error {
	_, err := p.exec(ctx, pageCommand{Action: "click", Selector: selector})
	return err
}

func (p *remotePage) WaitFor(ctx context.Context, selector string, timeout time.Duration) error {
	_, err := p.exec(ctx, pageCommand{Action: "waitFor", Selector: selector, TimeoutMs: timeout.Milliseconds()})
	return err
}

func (p *remotePage) WaitForNavigation(ctx context.Context, timeout time.Duration) error {
	_, err := p.exec(ctx, pageCommand{Action: "waitForNavigation", TimeoutMs: timeout.Milliseconds()})
	return err
}

func (p *remotePage) Exists(ctx context.Context, selector string) (bool, error) {
	res, err := p.exec(ctx, pageCommand{Action: "exists", Selector: selector})
	if err != nil {
		return false, err
	}
	return res.Found, nil
}

func (p *remotePage) ReadAttribute(ctx context.Context, selector, attribute string) (string, error) {
	res, err := p.exec(ctx, pageCommand{Action: "readAttribute", Selector: selector, Attribute: attribute})
	if err != nil {
		return "", err
	}
	return res.Text, nil
}

func (p *remotePage) ReadText(ctx context.Context, selector string) (string, error) {
	res, err := p.exec(ctx, pageCommand{Action: "readText", Selector: selector})
	if err != nil {
		return "", err
	}
	return res.Text, nil
}

func (p *remotePage) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return p.browser.call(ctx, fmt.Sprintf("/session/pages/%s/close", p.id), nil, nil)
}

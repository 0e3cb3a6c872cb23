// Package hosting talks to the hosting provider's web app API.
package hosting

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"gatehouse/internal/config"
)

const (
	breakerThreshold = 3
	breakerCooldown  = time.Minute
)

var ErrNotConfigured = errors.New("hosting provider configuration incomplete or missing")

// StatusError is returned for non-2xx responses.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("hosting API returned status %d", e.StatusCode)
}

// Client calls the info and reload endpoints for one web app.
type Client struct {
	BaseURL    string
	Domain     string
	Token      string
	HTTPClient *http.Client
	// Breaker, when set, fails calls fast during a provider outage.
	Breaker *Breaker
}

// NewClient builds a client from configuration. The HTTP timeout bounds
// every call.
func NewClient(cfg config.HostingConfig) *Client {
	timeout := cfg.Timeout.Std()
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	base := strings.TrimRight(cfg.APIBase, "/") + "/" + cfg.Username + "/"
	if !cfg.Enabled() {
		base = ""
	}
	return &Client{
		BaseURL: base,
		Domain:  cfg.Domain,
		Token:   cfg.Token,
		HTTPClient: &http.Client{
			Timeout: timeout,
		},
		Breaker: NewBreaker(breakerThreshold, breakerCooldown),
	}
}

func (c *Client) Enabled() bool {
	return c != nil && c.BaseURL != "" && c.Domain != "" && c.Token != ""
}

func (c *Client) webappURL(suffix string) string {
	return c.BaseURL + "webapps/" + c.Domain + "/" + suffix
}

// Info fetches the web app status document and returns it pretty-printed.
func (c *Client) Info(ctx context.Context) (string, error) {
	if !c.Enabled() {
		return "", ErrNotConfigured
	}
	body, err := c.do(ctx, http.MethodGet, c.webappURL(""))
	if err != nil {
		return "", err
	}
	var pretty bytes.Buffer
	if err := json.Indent(&pretty, body, "", "  "); err != nil {
		return "", fmt.Errorf("decode info response: %w", err)
	}
	return pretty.String(), nil
}

// Reload restarts the web app.
func (c *Client) Reload(ctx context.Context) error {
	if !c.Enabled() {
		return ErrNotConfigured
	}
	_, err := c.do(ctx, http.MethodPost, c.webappURL("reload/"))
	return err
}

func (c *Client) do(ctx context.Context, method, url string) ([]byte, error) {
	if c.Breaker == nil {
		return c.roundTrip(ctx, method, url)
	}
	var body []byte
	err := c.Breaker.Call(func() error {
		var err error
		body, err = c.roundTrip(ctx, method, url)
		return err
	})
	return body, err
}

func (c *Client) roundTrip(ctx context.Context, method, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Token "+c.Token)
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("hosting API request failed: %w", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: string(body)}
	}
	return body, nil
}

package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/vettedhq/vetted/internal/config"
	"github.com/vettedhq/vetted/internal/sources/credentials"
	sourcesdomain "github.com/vettedhq/vetted/internal/sources/domain"
	"go.uber.org/zap"
)

// callTimeout bounds a single upstream exchange; the acquisition chain
// carries its own overall deadline above this.
const callTimeout = 30 * time.Second

// Client is the shared HTTP helper source adapters call through. It
// resolves base URLs from configuration, injects bearer tokens, and maps
// upstream statuses onto adapter errors.
type Client struct {
	cfg   config.Config
	creds credentials.Provider
	http  *http.Client
	log   *zap.Logger
}

func New(cfg config.Config, creds credentials.Provider, log *zap.Logger) *Client {
	return &Client{
		cfg:   cfg,
		creds: creds,
		http:  &http.Client{Timeout: callTimeout},
		log:   log.Named("sources.client"),
	}
}

// GetJSON performs an authenticated GET against a service path.
func (c *Client) GetJSON(ctx context.Context, service, path string, query url.Values) ([]byte, error) {
	return c.do(ctx, service, http.MethodGet, path, query, nil, "application/json")
}

// PostJSON performs an authenticated POST with a JSON body.
func (c *Client) PostJSON(ctx context.Context, service, path string, payload any) ([]byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return c.do(ctx, service, http.MethodPost, path, nil, body, "application/json")
}

// GetXML performs an authenticated GET expecting an XML response.
func (c *Client) GetXML(ctx context.Context, service, path string, query url.Values) ([]byte, error) {
	return c.do(ctx, service, http.MethodGet, path, query, nil, "application/xml")
}

// GetURL fetches an absolute URL (poll URLs handed back by two-phase
// sources) under the same auth and status mapping.
func (c *Client) GetURL(ctx context.Context, service, rawURL string) ([]byte, error) {
	return c.request(ctx, service, http.MethodGet, rawURL, nil, "application/json")
}

func (c *Client) do(ctx context.Context, service, method, path string, query url.Values, body []byte, accept string) ([]byte, error) {
	upstream := c.cfg.UpstreamFor(service)
	if upstream.BaseURL == "" {
		return nil, fmt.Errorf("upstream %s is not configured", service)
	}

	target := upstream.BaseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}
	return c.request(ctx, service, method, target, body, accept)
}

func (c *Client) request(ctx context.Context, service, method, target string, body []byte, accept string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, callTimeout)
	defer cancel()

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", accept)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	token, err := c.creds.Token(ctx, service)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	c.log.Debug("upstream call",
		zap.String("service", service),
		zap.String("method", method),
		zap.Int("status", resp.StatusCode),
		zap.Int64("duration_ms", time.Since(start).Milliseconds()),
	)

	switch {
	case resp.StatusCode == http.StatusAccepted,
		resp.StatusCode == http.StatusNotFound,
		resp.StatusCode == http.StatusConflict:
		// Order-based sources answer 202/404/409 while a result is still
		// materializing.
		return nil, sourcesdomain.ErrNotReady
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return payload, nil
	default:
		return nil, fmt.Errorf("%w: %s returned %d", sourcesdomain.ErrUpstreamStatus, service, resp.StatusCode)
	}
}

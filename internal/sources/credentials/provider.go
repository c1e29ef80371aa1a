package credentials

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/vettedhq/vetted/internal/clock"
	"github.com/vettedhq/vetted/internal/config"
	"go.uber.org/zap"
)

// Provider hands out bearer tokens for upstream services, caching each
// token until shortly before it expires.
type Provider interface {
	Token(ctx context.Context, service string) (string, error)
}

var (
	ErrUnknownService = errors.New("unknown_upstream_service")
	ErrNoCredentials  = errors.New("upstream_credentials_missing")
)

// expirySkew renews tokens slightly early so an in-flight call never
// carries a token that lapses mid-request.
const expirySkew = 30 * time.Second

type cachedToken struct {
	value     string
	expiresAt time.Time
}

type provider struct {
	cfg  config.Config
	clk  clock.Clock
	http *http.Client
	log  *zap.Logger

	mu     sync.Mutex
	tokens map[string]cachedToken
}

func New(cfg config.Config, clk clock.Clock, log *zap.Logger) Provider {
	return &provider{
		cfg:    cfg,
		clk:    clk,
		http:   &http.Client{Timeout: 15 * time.Second},
		log:    log.Named("sources.credentials"),
		tokens: map[string]cachedToken{},
	}
}

func (p *provider) Token(ctx context.Context, service string) (string, error) {
	upstream, ok := p.cfg.Upstreams[service]
	if !ok {
		return "", ErrUnknownService
	}
	if upstream.APIKey == "" {
		return "", ErrNoCredentials
	}

	// Key-only services authenticate each call with the static key.
	if strings.TrimSpace(upstream.TokenURL) == "" {
		return upstream.APIKey, nil
	}

	p.mu.Lock()
	cached, ok := p.tokens[service]
	p.mu.Unlock()
	if ok && p.clk.Now().Before(cached.expiresAt) {
		return cached.value, nil
	}

	token, expiresIn, err := p.exchange(ctx, upstream)
	if err != nil {
		return "", err
	}

	p.mu.Lock()
	p.tokens[service] = cachedToken{
		value:     token,
		expiresAt: p.clk.Now().Add(expiresIn - expirySkew),
	}
	p.mu.Unlock()

	p.log.Debug("token refreshed", zap.String("service", service))
	return token, nil
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int64  `json:"expires_in"`
}

func (p *provider) exchange(ctx context.Context, upstream config.Upstream) (string, time.Duration, error) {
	form := url.Values{}
	form.Set("grant_type", "client_credentials")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, upstream.TokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", 0, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Authorization", "Bearer "+upstream.APIKey)

	resp, err := p.http.Do(req)
	if err != nil {
		return "", 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", 0, fmt.Errorf("token endpoint returned %d", resp.StatusCode)
	}

	var body tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", 0, err
	}
	if strings.TrimSpace(body.AccessToken) == "" {
		return "", 0, errors.New("token endpoint returned empty token")
	}

	expiresIn := time.Duration(body.ExpiresIn) * time.Second
	if expiresIn <= expirySkew {
		expiresIn = 5 * time.Minute
	}
	return body.AccessToken, expiresIn, nil
}

// Package auth acquires bearer tokens for the Microsoft Graph API using the
// OAuth2 client-credentials flow.
//
// The provider is an explicit, injectable dependency of the Graph client so
// the upload pipeline can be tested with a fake. Tokens are cached in memory
// and refreshed single-flight shortly before expiry.
package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/sync/singleflight"
)

const (
	// DefaultAuthorityBase is the Microsoft Entra token authority.
	DefaultAuthorityBase = "https://login.microsoftonline.com"

	// DefaultScope requests all application permissions granted to the
	// client registration.
	DefaultScope = "https://graph.microsoft.com/.default"

	// expiryLeeway is subtracted from the token lifetime so a token is never
	// handed out moments before it expires server-side.
	expiryLeeway = 60 * time.Second

	// fallbackLifetime is assumed when neither the token response nor the
	// token itself carries an expiry.
	fallbackLifetime = 3599 * time.Second
)

// TokenProvider yields a currently valid access token.
type TokenProvider interface {
	Token(ctx context.Context) (string, error)
}

// TokenFunc adapts a plain function to the TokenProvider interface.
type TokenFunc func(ctx context.Context) (string, error)

func (f TokenFunc) Token(ctx context.Context) (string, error) { return f(ctx) }

// Config carries the client-credentials registration details.
type Config struct {
	TenantID     string
	ClientID     string
	ClientSecret string

	// AuthorityBase overrides DefaultAuthorityBase (used in tests).
	AuthorityBase string
	// Scope overrides DefaultScope.
	Scope string
	// HTTPClient overrides http.DefaultClient.
	HTTPClient *http.Client
}

// ClientCredentials is a caching TokenProvider performing the OAuth2
// client-credentials grant. Safe for concurrent use.
type ClientCredentials struct {
	cfg Config
	now func() time.Time

	mu        sync.RWMutex
	token     string
	expiresAt time.Time

	sf singleflight.Group
}

func NewClientCredentials(cfg Config) *ClientCredentials {
	if cfg.AuthorityBase == "" {
		cfg.AuthorityBase = DefaultAuthorityBase
	}
	if cfg.Scope == "" {
		cfg.Scope = DefaultScope
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = http.DefaultClient
	}
	return &ClientCredentials{cfg: cfg, now: time.Now}
}

// Token returns the cached token while it is still valid (with leeway) and
// otherwise refreshes it. Concurrent callers share one refresh request.
func (p *ClientCredentials) Token(ctx context.Context) (string, error) {
	p.mu.RLock()
	token, expiresAt := p.token, p.expiresAt
	p.mu.RUnlock()

	if token != "" && p.now().Add(expiryLeeway).Before(expiresAt) {
		return token, nil
	}

	v, err, _ := p.sf.Do("token", func() (any, error) {
		token, expiresAt, err := p.fetch(ctx)
		if err != nil {
			return nil, err
		}
		p.mu.Lock()
		p.token, p.expiresAt = token, expiresAt
		p.mu.Unlock()
		return token, nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int64  `json:"expires_in"`
}

func (p *ClientCredentials) fetch(ctx context.Context) (string, time.Time, error) {
	if p.cfg.TenantID == "" || p.cfg.ClientID == "" || p.cfg.ClientSecret == "" {
		return "", time.Time{}, errors.New("incomplete client-credentials configuration")
	}

	endpoint := fmt.Sprintf("%s/%s/oauth2/v2.0/token", strings.TrimRight(p.cfg.AuthorityBase, "/"), p.cfg.TenantID)

	form := url.Values{
		"grant_type":    {"client_credentials"},
		"client_id":     {p.cfg.ClientID},
		"client_secret": {p.cfg.ClientSecret},
		"scope":         {p.cfg.Scope},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return "", time.Time{}, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := p.cfg.HTTPClient.Do(req)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("token request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("token response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", time.Time{}, fmt.Errorf("token endpoint returned %d: %s", resp.StatusCode, body)
	}

	var tr tokenResponse
	if err := json.Unmarshal(body, &tr); err != nil {
		return "", time.Time{}, fmt.Errorf("token response: %w", err)
	}
	if tr.AccessToken == "" {
		return "", time.Time{}, errors.New("token endpoint returned no access_token")
	}

	return tr.AccessToken, p.expiry(&tr), nil
}

// expiry derives the cache deadline: expires_in when present, otherwise the
// token's own exp claim, otherwise a conservative default.
func (p *ClientCredentials) expiry(tr *tokenResponse) time.Time {
	if tr.ExpiresIn > 0 {
		return p.now().Add(time.Duration(tr.ExpiresIn) * time.Second)
	}

	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(tr.AccessToken, claims); err == nil {
		if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
			return exp.Time
		}
	}

	return p.now().Add(fallbackLifetime)
}

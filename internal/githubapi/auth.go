package githubapi

import (
	"context"
	"crypto/rsa"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/dgrijalva/jwt-go"
	"github.com/google/go-github/v66/github"
)

// TokenProvider hands out bearer tokens for the GitHub API. Implementations
// memoize the token; Invalidate drops it so the next Token call fetches a
// fresh one. The service calls Invalidate after a 401 and retries once.
type TokenProvider interface {
	Token(ctx context.Context) (string, error)
	Invalidate()
}

// StaticTokenProvider wraps a personal access token. Invalidate is a no-op
// since there is nothing to refresh.
type StaticTokenProvider struct {
	token string
}

func NewStaticTokenProvider(token string) *StaticTokenProvider {
	return &StaticTokenProvider{token: token}
}

func (p *StaticTokenProvider) Token(ctx context.Context) (string, error) {
	if p.token == "" {
		return "", newAPIError(CodeAuthenticationFailed, 0, "no GitHub token configured")
	}
	return p.token, nil
}

func (p *StaticTokenProvider) Invalidate() {}

// AppTokenProvider authenticates as a GitHub App installation: it mints a
// short-lived RS256 app JWT and exchanges it for an installation token, which
// is cached until shortly before expiry.
type AppTokenProvider struct {
	appID          string
	installationID int64
	key            *rsa.PrivateKey
	baseURL        string

	mu        sync.Mutex
	token     string
	expiresAt time.Time
}

func NewAppTokenProvider(appID string, installationID int64, privateKeyPEM []byte) (*AppTokenProvider, error) {
	key, err := jwt.ParseRSAPrivateKeyFromPEM(privateKeyPEM)
	if err != nil {
		return nil, fmt.Errorf("failed to parse GitHub App private key: %w", err)
	}
	return &AppTokenProvider{
		appID:          appID,
		installationID: installationID,
		key:            key,
	}, nil
}

func (p *AppTokenProvider) Token(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	// 60s slack so a token never expires mid-request.
	if p.token != "" && time.Until(p.expiresAt) > time.Minute {
		return p.token, nil
	}

	appJWT, err := p.mintAppJWT()
	if err != nil {
		return "", err
	}

	client := github.NewClient(&http.Client{
		Transport: &staticBearerTransport{wrapped: http.DefaultTransport, token: appJWT},
		Timeout:   30 * time.Second,
	})
	if p.baseURL != "" {
		base, err := url.Parse(p.baseURL)
		if err != nil {
			return "", fmt.Errorf("invalid GitHub base URL: %w", err)
		}
		client.BaseURL = base
	}

	installation, _, err := client.Apps.CreateInstallationToken(ctx, p.installationID, nil)
	if err != nil {
		return "", Classify(err)
	}

	p.token = installation.GetToken()
	p.expiresAt = installation.GetExpiresAt().Time
	return p.token, nil
}

func (p *AppTokenProvider) Invalidate() {
	p.mu.Lock()
	p.token = ""
	p.expiresAt = time.Time{}
	p.mu.Unlock()
}

// App JWTs are capped at 10 minutes by GitHub; issue slightly in the past to
// tolerate clock drift.
func (p *AppTokenProvider) mintAppJWT() (string, error) {
	now := time.Now()
	claims := jwt.StandardClaims{
		IssuedAt:  now.Add(-60 * time.Second).Unix(),
		ExpiresAt: now.Add(9 * time.Minute).Unix(),
		Issuer:    p.appID,
	}
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	signed, err := token.SignedString(p.key)
	if err != nil {
		return "", fmt.Errorf("failed to sign app JWT: %w", err)
	}
	return signed, nil
}

// bearerTransport injects a token from the provider into every request.
type bearerTransport struct {
	wrapped http.RoundTripper
	tokens  TokenProvider
}

func (t *bearerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	token, err := t.tokens.Token(req.Context())
	if err != nil {
		return nil, err
	}
	out := req.Clone(req.Context())
	out.Header.Set("Authorization", "Bearer "+token)
	return t.wrapped.RoundTrip(out)
}

type staticBearerTransport struct {
	wrapped http.RoundTripper
	token   string
}

func (t *staticBearerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	out := req.Clone(req.Context())
	out.Header.Set("Authorization", "Bearer "+t.token)
	return t.wrapped.RoundTrip(out)
}

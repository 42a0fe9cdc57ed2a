// Package githubapi resolves deployment status and history for configured
// environments from the GitHub Deployments and Actions APIs, and dispatches
// new deployment workflow runs. Results are memoized for a short TTL and all
// failures surface as classified APIErrors.
package githubapi

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/go-github/v66/github"
)

// defaultRunSettleDelay is how long we wait after dispatching a workflow
// before looking for the run it created.
const defaultRunSettleDelay = 2 * time.Second

// ServiceOptions tunes the service. Zero values fall back to production
// defaults; tests shrink the delays and point BaseURL at a fake.
type ServiceOptions struct {
	// BaseURL overrides the GitHub API endpoint (GitHub Enterprise, tests).
	// Must end with a trailing slash.
	BaseURL string
	// CacheTTL overrides the status/history memoization window.
	CacheTTL time.Duration
	// RunSettleDelay overrides the post-dispatch wait before run discovery.
	RunSettleDelay time.Duration
}

// Service is the GitHub-facing resolver used by the HTTP layer.
type Service struct {
	client         *github.Client
	tokens         TokenProvider
	cache          *Cache
	logger         *slog.Logger
	runSettleDelay time.Duration
	sleep          func(ctx context.Context, d time.Duration) error
}

func NewService(tokens TokenProvider, logger *slog.Logger, opts ServiceOptions) (*Service, error) {
	httpClient := &http.Client{
		Transport: &bearerTransport{wrapped: http.DefaultTransport, tokens: tokens},
		Timeout:   30 * time.Second,
	}
	client := github.NewClient(httpClient)
	if opts.BaseURL != "" {
		base, err := url.Parse(opts.BaseURL)
		if err != nil {
			return nil, fmt.Errorf("invalid GitHub base URL %q: %w", opts.BaseURL, err)
		}
		client.BaseURL = base
	}

	settle := opts.RunSettleDelay
	if settle <= 0 {
		settle = defaultRunSettleDelay
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Service{
		client:         client,
		tokens:         tokens,
		cache:          NewCache(opts.CacheTTL),
		logger:         logger,
		runSettleDelay: settle,
		sleep:          sleepContext,
	}, nil
}

// Cache exposes the memoization layer, mainly so callers can flush it.
func (s *Service) Cache() *Cache {
	return s.cache
}

// execute runs op with network retries. A 401 invalidates the memoized token
// and the call is retried exactly once with a freshly fetched one; a second
// 401 propagates to the caller.
func (s *Service) execute(ctx context.Context, op func() error) error {
	err := s.withRetry(ctx, op)
	if err == nil {
		return nil
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.Code == CodeAuthenticationFailed {
		s.logger.Debug("github token rejected, refreshing and retrying once")
		s.tokens.Invalidate()
		return s.withRetry(ctx, op)
	}
	return err
}

// splitRepo parses an "owner/name" repository slug.
func splitRepo(repo string) (string, string, error) {
	parts := strings.Split(repo, "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", newAPIError(CodeValidationError, 0,
			fmt.Sprintf("invalid repository %q, expected owner/name", repo))
	}
	return parts[0], parts[1], nil
}

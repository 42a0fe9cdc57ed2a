package githubapi

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func networkFailure() error {
	return &url.Error{Op: "Get", URL: "https://api.github.com", Err: errors.New("connection refused")}
}

func TestWithRetryRecoversFromTransientFailures(t *testing.T) {
	svc := newTestService(t, http.NotFoundHandler(), ServiceOptions{})

	var delays []time.Duration
	svc.sleep = func(ctx context.Context, d time.Duration) error {
		delays = append(delays, d)
		return nil
	}

	attempts := 0
	err := svc.withRetry(context.Background(), func() error {
		attempts++
		if attempts < 3 {
			return networkFailure()
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, delays)
}

func TestWithRetryGivesUpAfterMaxRetries(t *testing.T) {
	svc := newTestService(t, http.NotFoundHandler(), ServiceOptions{})

	attempts := 0
	err := svc.withRetry(context.Background(), func() error {
		attempts++
		return networkFailure()
	})

	require.Error(t, err)
	assert.Equal(t, 3, attempts)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, CodeNetworkError, apiErr.Code)
}

func TestWithRetryDoesNotRetryClassifiedFailures(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode ErrorCode
	}{
		{"authentication", errorResponse(401, nil, "Bad credentials"), CodeAuthenticationFailed},
		{"permissions", errorResponse(403, nil, "forbidden"), CodeInsufficientPermission},
		{"not found", errorResponse(404, nil, "Not Found"), CodeResourceNotFound},
		{"server error", errorResponse(500, nil, "boom"), CodeServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := newTestService(t, http.NotFoundHandler(), ServiceOptions{})

			attempts := 0
			err := svc.withRetry(context.Background(), func() error {
				attempts++
				return tt.err
			})

			require.Error(t, err)
			assert.Equal(t, 1, attempts)

			var apiErr *APIError
			require.ErrorAs(t, err, &apiErr)
			assert.Equal(t, tt.wantCode, apiErr.Code)
		})
	}
}

func TestWithRetryStopsOnCancelledContext(t *testing.T) {
	svc := newTestService(t, http.NotFoundHandler(), ServiceOptions{})
	svc.sleep = sleepContext

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	attempts := 0
	err := svc.withRetry(ctx, func() error {
		attempts++
		return networkFailure()
	})

	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, attempts)
}

func TestBackoffForIsCapped(t *testing.T) {
	assert.Equal(t, time.Second, backoffFor(1))
	assert.Equal(t, 2*time.Second, backoffFor(2))
	assert.Equal(t, 4*time.Second, backoffFor(3))
	assert.Equal(t, 5*time.Second, backoffFor(4))
	assert.Equal(t, 5*time.Second, backoffFor(10))
}

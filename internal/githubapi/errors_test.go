package githubapi

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"testing"
	"time"

	"github.com/google/go-github/v66/github"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func errorResponse(status int, headers map[string]string, message string) *github.ErrorResponse {
	header := http.Header{}
	for k, v := range headers {
		header.Set(k, v)
	}
	return &github.ErrorResponse{
		Response: &http.Response{StatusCode: status, Header: header},
		Message:  message,
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantCode   ErrorCode
		wantStatus int
	}{
		{
			name:       "401 is authentication failure",
			err:        errorResponse(401, nil, "Bad credentials"),
			wantCode:   CodeAuthenticationFailed,
			wantStatus: 401,
		},
		{
			name:       "403 with exhausted rate limit",
			err:        errorResponse(403, map[string]string{"x-ratelimit-remaining": "0", "x-ratelimit-reset": "1700000000"}, "API rate limit exceeded"),
			wantCode:   CodeRateLimitExceeded,
			wantStatus: 403,
		},
		{
			name:       "403 with retry-after is secondary rate limit",
			err:        errorResponse(403, map[string]string{"retry-after": "60"}, "You have exceeded a secondary rate limit"),
			wantCode:   CodeSecondaryRateLimit,
			wantStatus: 403,
		},
		{
			name:       "plain 403 is insufficient permissions",
			err:        errorResponse(403, nil, "Resource not accessible"),
			wantCode:   CodeInsufficientPermission,
			wantStatus: 403,
		},
		{
			name:       "404",
			err:        errorResponse(404, nil, "Not Found"),
			wantCode:   CodeResourceNotFound,
			wantStatus: 404,
		},
		{
			name:       "422",
			err:        errorResponse(422, nil, "Validation Failed"),
			wantCode:   CodeValidationError,
			wantStatus: 422,
		},
		{
			name:       "502",
			err:        errorResponse(502, nil, "Bad Gateway"),
			wantCode:   CodeServerError,
			wantStatus: 502,
		},
		{
			name:       "unmapped status falls back to generic code",
			err:        errorResponse(418, nil, "teapot"),
			wantCode:   CodeGithubAPIError,
			wantStatus: 418,
		},
		{
			name:     "connection failure has no status",
			err:      &url.Error{Op: "Get", URL: "https://api.github.com", Err: errors.New("connection reset by peer")},
			wantCode: CodeNetworkError,
		},
		{
			name:     "unknown error falls back to generic code",
			err:      errors.New("something odd"),
			wantCode: CodeGithubAPIError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Classify(tt.err)
			require.NotNil(t, got)
			assert.Equal(t, tt.wantCode, got.Code)
			assert.Equal(t, tt.wantStatus, got.Status)
			assert.NotEmpty(t, got.Suggestion)
		})
	}
}

func TestClassifyRateLimitDetails(t *testing.T) {
	err := errorResponse(403, map[string]string{
		"x-ratelimit-remaining": "0",
		"x-ratelimit-reset":     "1700000000",
	}, "API rate limit exceeded")

	got := Classify(err)
	require.Equal(t, CodeRateLimitExceeded, got.Code)
	assert.Equal(t, "1700000000", got.Details["resetTime"])
}

func TestClassifyTypedRateLimitError(t *testing.T) {
	reset := time.Now().Add(30 * time.Minute).Truncate(time.Second)
	err := &github.RateLimitError{
		Rate:     github.Rate{Remaining: 0, Reset: github.Timestamp{Time: reset}},
		Response: &http.Response{StatusCode: 403},
		Message:  "API rate limit exceeded",
	}

	got := Classify(err)
	require.Equal(t, CodeRateLimitExceeded, got.Code)
	assert.Equal(t, fmt.Sprintf("%d", reset.Unix()), got.Details["resetTime"])
	assert.NotEmpty(t, got.Details["remainingMinutes"])
}

func TestClassifyAbuseRateLimitError(t *testing.T) {
	retryAfter := 90 * time.Second
	err := &github.AbuseRateLimitError{
		Response:   &http.Response{StatusCode: 403},
		Message:    "You have exceeded a secondary rate limit",
		RetryAfter: &retryAfter,
	}

	got := Classify(err)
	require.Equal(t, CodeSecondaryRateLimit, got.Code)
	assert.Equal(t, "90", got.Details["retryAfter"])
}

func TestClassifyPassesThroughAPIErrors(t *testing.T) {
	original := newAPIError(CodeWorkflowNotFound, 0, "workflow missing")
	got := Classify(fmt.Errorf("wrapped: %w", original))
	assert.Same(t, original, got)
}

func TestClassifyNil(t *testing.T) {
	assert.Nil(t, Classify(nil))
}

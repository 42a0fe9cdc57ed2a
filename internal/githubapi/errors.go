package githubapi

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/google/go-github/v66/github"
)

// ErrorCode is the closed set of failure kinds surfaced to callers. The UI
// renders Code plus Suggestion verbatim, so these values are part of the
// plugin's contract.
type ErrorCode string

const (
	CodeAuthenticationFailed   ErrorCode = "AUTHENTICATION_FAILED"
	CodeRateLimitExceeded      ErrorCode = "RATE_LIMIT_EXCEEDED"
	CodeSecondaryRateLimit     ErrorCode = "SECONDARY_RATE_LIMIT_EXCEEDED"
	CodeInsufficientPermission ErrorCode = "INSUFFICIENT_PERMISSIONS"
	CodeResourceNotFound       ErrorCode = "RESOURCE_NOT_FOUND"
	CodeValidationError        ErrorCode = "VALIDATION_ERROR"
	CodeServerError            ErrorCode = "SERVER_ERROR"
	CodeNetworkError           ErrorCode = "NETWORK_ERROR"
	CodeGithubAPIError         ErrorCode = "GITHUB_API_ERROR"
	CodeMissingWorkflowPath    ErrorCode = "MISSING_WORKFLOW_PATH"
	CodeWorkflowNotFound       ErrorCode = "WORKFLOW_NOT_FOUND"
)

var suggestions = map[ErrorCode]string{
	CodeAuthenticationFailed:   "Check that your GitHub token is valid and has not expired, then refresh the page.",
	CodeRateLimitExceeded:      "GitHub API rate limit reached. Wait for the limit to reset before retrying.",
	CodeSecondaryRateLimit:     "GitHub secondary rate limit hit. Reduce request frequency and retry shortly.",
	CodeInsufficientPermission: "The token lacks access to this repository. It needs repo, workflow and repo_deployment scopes.",
	CodeResourceNotFound:       "Check that the repository and environment names in the configuration are correct.",
	CodeValidationError:        "GitHub rejected the request. Check the workflow inputs and ref.",
	CodeServerError:            "GitHub is having trouble. Try again in a few minutes.",
	CodeNetworkError:           "Could not reach GitHub. Check network connectivity and retry.",
	CodeGithubAPIError:         "Unexpected GitHub API response. Check the service logs for details.",
	CodeMissingWorkflowPath:    "Set workflowPath on the environment configuration to enable deployments.",
	CodeWorkflowNotFound:       "The configured workflow file does not exist in the repository's .github/workflows directory.",
}

// APIError is the uniform error surfaced by every resolver. Status is the
// upstream HTTP status when one was received, zero otherwise.
type APIError struct {
	Message    string            `json:"message"`
	Status     int               `json:"status,omitempty"`
	Code       ErrorCode         `json:"code"`
	Suggestion string            `json:"suggestion,omitempty"`
	Details    map[string]string `json:"details,omitempty"`
}

func (e *APIError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s (%d): %s", e.Code, e.Status, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func newAPIError(code ErrorCode, status int, message string) *APIError {
	return &APIError{
		Message:    message,
		Status:     status,
		Code:       code,
		Suggestion: suggestions[code],
	}
}

// Classify maps a raw SDK or transport failure onto the closed error set.
// Order matters: 401 wins over the 403 variants, and the primary rate limit
// check wins over the generic 403.
func Classify(err error) *APIError {
	if err == nil {
		return nil
	}

	// Already classified errors pass through untouched.
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr
	}

	// go-github promotes 403 + exhausted primary limit to a typed error
	// before the generic ErrorResponse path ever sees it.
	var rateErr *github.RateLimitError
	if errors.As(err, &rateErr) {
		out := newAPIError(CodeRateLimitExceeded, statusOf(rateErr.Response), rateErr.Message)
		out.Details = map[string]string{
			"resetTime":        strconv.FormatInt(rateErr.Rate.Reset.Unix(), 10),
			"remainingMinutes": strconv.Itoa(minutesUntil(rateErr.Rate.Reset.Time)),
		}
		return out
	}

	var abuseErr *github.AbuseRateLimitError
	if errors.As(err, &abuseErr) {
		out := newAPIError(CodeSecondaryRateLimit, statusOf(abuseErr.Response), abuseErr.Message)
		if abuseErr.RetryAfter != nil {
			out.Details = map[string]string{
				"retryAfter": strconv.Itoa(int(abuseErr.RetryAfter.Seconds())),
			}
		}
		return out
	}

	var ghErr *github.ErrorResponse
	if errors.As(err, &ghErr) && ghErr.Response != nil {
		return classifyResponse(ghErr.Response.StatusCode, ghErr.Response.Header.Get("x-ratelimit-remaining"),
			ghErr.Response.Header.Get("x-ratelimit-reset"), ghErr.Response.Header.Get("retry-after"), ghErr.Message)
	}

	// Connection-level failures carry no HTTP status at all.
	var urlErr *url.Error
	var netErr net.Error
	if errors.As(err, &urlErr) || errors.As(err, &netErr) {
		return newAPIError(CodeNetworkError, 0, err.Error())
	}

	return newAPIError(CodeGithubAPIError, 0, err.Error())
}

func classifyResponse(status int, rateRemaining, rateReset, retryAfter, message string) *APIError {
	switch {
	case status == 401:
		return newAPIError(CodeAuthenticationFailed, status, message)
	case status == 403 && rateRemaining == "0":
		out := newAPIError(CodeRateLimitExceeded, status, message)
		out.Details = map[string]string{"resetTime": rateReset}
		if epoch, err := strconv.ParseInt(rateReset, 10, 64); err == nil {
			out.Details["remainingMinutes"] = strconv.Itoa(minutesUntil(time.Unix(epoch, 0)))
		}
		return out
	case status == 403 && retryAfter != "":
		out := newAPIError(CodeSecondaryRateLimit, status, message)
		out.Details = map[string]string{"retryAfter": retryAfter}
		return out
	case status == 403:
		return newAPIError(CodeInsufficientPermission, status, message)
	case status == 404:
		return newAPIError(CodeResourceNotFound, status, message)
	case status == 422:
		return newAPIError(CodeValidationError, status, message)
	case status >= 500:
		return newAPIError(CodeServerError, status, message)
	default:
		return newAPIError(CodeGithubAPIError, status, message)
	}
}

func statusOf(resp *http.Response) int {
	if resp == nil {
		return 0
	}
	return resp.StatusCode
}

func minutesUntil(t time.Time) int {
	m := int(time.Until(t).Minutes())
	if m < 0 {
		return 0
	}
	return m
}

package githubapi

import (
	"context"
	"errors"
	"time"

	"github.com/matryer/try"
)

const (
	// maxRetries is the number of re-attempts after the initial call.
	maxRetries     = 2
	backoffBase    = time.Second
	backoffCeiling = 5 * time.Second
)

// withRetry runs op and retries it on transient network failures with
// exponential backoff. Anything that got an HTTP response back (auth,
// permission, rate limit, 4xx/5xx) is never retried here; those surface to
// the caller immediately as classified errors.
func (s *Service) withRetry(ctx context.Context, op func() error) error {
	var classified *APIError
	err := try.Do(func(attempt int) (bool, error) {
		opErr := op()
		if opErr == nil {
			return false, nil
		}
		classified = Classify(opErr)
		if classified.Code != CodeNetworkError || attempt > maxRetries {
			return false, classified
		}
		if sleepErr := s.sleep(ctx, backoffFor(attempt)); sleepErr != nil {
			classified = nil
			return false, sleepErr
		}
		return true, classified
	})
	if err == nil {
		return nil
	}
	if classified != nil && errors.Is(err, classified) {
		return classified
	}
	return err
}

// backoffFor returns 1s, 2s, 4s... capped at 5s. attempt is 1-based.
func backoffFor(attempt int) time.Duration {
	d := backoffBase << uint(attempt-1)
	if d > backoffCeiling {
		d = backoffCeiling
	}
	return d
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

package githubapi

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newTestService(t *testing.T, handler http.Handler, opts ServiceOptions) *Service {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	opts.BaseURL = server.URL + "/"
	if opts.RunSettleDelay == 0 {
		opts.RunSettleDelay = time.Millisecond
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc, err := NewService(NewStaticTokenProvider("test-token"), logger, opts)
	require.NoError(t, err)

	// Tests never want real backoff waits.
	svc.sleep = func(ctx context.Context, d time.Duration) error { return nil }
	return svc
}

package githubapi

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/portalops/deploy-environments/internal/api/models"
)

func TestGetDeploymentHistoryComputesDurations(t *testing.T) {
	deployments := `[
		{"id": 12, "sha": "abc123def4567890", "environment": "production", "created_at": "2024-03-02T09:00:00Z", "creator": {"login": "renovate"}},
		{"id": 11, "sha": "fedcba9876543210", "environment": "production", "created_at": "2024-03-01T09:00:00Z", "creator": {"login": "octocat"}}
	]`
	statuses := map[int64]string{
		12: `[{"id": 1, "state": "failure", "description": "Smoke tests failed", "created_at": "2024-03-02T09:01:30Z"}]`,
		11: `[{"id": 1, "state": "success", "target_url": "https://github.com/acme/web/actions/runs/777", "created_at": "2024-03-01T09:04:00Z"}]`,
	}

	var calls int64
	svc := newTestService(t, fakeDeploymentsAPI(deployments, statuses, &calls), ServiceOptions{})

	history, err := svc.GetDeploymentHistory(context.Background(), "web", "production", "acme/web", 10)
	require.NoError(t, err)
	require.Len(t, history, 2)

	// Newest-first ordering from the API is preserved.
	failed := history[0]
	assert.Equal(t, "12", failed.ID)
	assert.Equal(t, models.DeploymentStateFailure, failed.Status)
	assert.Equal(t, "Smoke tests failed", failed.ErrorMessage)
	assert.Equal(t, "renovate", failed.TriggeredBy)
	require.NotNil(t, failed.CompletedAt)
	require.NotNil(t, failed.DurationMS)
	assert.Equal(t, int64(90*1000), *failed.DurationMS)
	assert.Equal(t, failed.CompletedAt.Sub(failed.StartedAt).Milliseconds(), *failed.DurationMS)

	succeeded := history[1]
	assert.Equal(t, models.DeploymentStateSuccess, succeeded.Status)
	assert.Equal(t, int64(777), succeeded.WorkflowRunID)
	require.NotNil(t, succeeded.DurationMS)
	assert.Equal(t, int64(4*60*1000), *succeeded.DurationMS)
}

func TestGetDeploymentHistoryInFlightAttemptHasNoDuration(t *testing.T) {
	deployments := `[{"id": 20, "sha": "abc123def4567890", "environment": "staging", "created_at": "2024-03-02T09:00:00Z"}]`
	statuses := map[int64]string{
		20: `[{"id": 1, "state": "in_progress", "created_at": "2024-03-02T09:00:30Z"}]`,
	}

	var calls int64
	svc := newTestService(t, fakeDeploymentsAPI(deployments, statuses, &calls), ServiceOptions{})

	history, err := svc.GetDeploymentHistory(context.Background(), "web", "staging", "acme/web", 10)
	require.NoError(t, err)
	require.Len(t, history, 1)

	assert.Equal(t, models.DeploymentStateRunning, history[0].Status)
	assert.Nil(t, history[0].CompletedAt)
	assert.Nil(t, history[0].DurationMS)
}

func TestGetDeploymentHistoryCacheHitIsSlicedToLimit(t *testing.T) {
	deployments := `[
		{"id": 32, "sha": "abc123def4567890", "environment": "production", "created_at": "2024-03-03T09:00:00Z"},
		{"id": 31, "sha": "bbc123def4567890", "environment": "production", "created_at": "2024-03-02T09:00:00Z"},
		{"id": 30, "sha": "cbc123def4567890", "environment": "production", "created_at": "2024-03-01T09:00:00Z"}
	]`
	statuses := map[int64]string{
		32: `[{"id": 1, "state": "success", "created_at": "2024-03-03T09:01:00Z"}]`,
		31: `[{"id": 1, "state": "success", "created_at": "2024-03-02T09:01:00Z"}]`,
		30: `[{"id": 1, "state": "success", "created_at": "2024-03-01T09:01:00Z"}]`,
	}

	var calls int64
	svc := newTestService(t, fakeDeploymentsAPI(deployments, statuses, &calls), ServiceOptions{})

	full, err := svc.GetDeploymentHistory(context.Background(), "web", "production", "acme/web", 10)
	require.NoError(t, err)
	require.Len(t, full, 3)
	upstreamCalls := atomic.LoadInt64(&calls)

	sliced, err := svc.GetDeploymentHistory(context.Background(), "web", "production", "acme/web", 2)
	require.NoError(t, err)
	assert.Len(t, sliced, 2)
	assert.Equal(t, full[0].ID, sliced[0].ID)
	assert.Equal(t, upstreamCalls, atomic.LoadInt64(&calls), "cache hit must not touch upstream")
}

func TestGetDeploymentHistoryEmpty(t *testing.T) {
	var calls int64
	svc := newTestService(t, fakeDeploymentsAPI(`[]`, nil, &calls), ServiceOptions{})

	history, err := svc.GetDeploymentHistory(context.Background(), "web", "production", "acme/web", 10)
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestGetDeploymentHistoryRefetchesAfterTTL(t *testing.T) {
	var calls int64
	svc := newTestService(t, fakeDeploymentsAPI(`[]`, nil, &calls), ServiceOptions{CacheTTL: 20 * time.Millisecond})

	_, err := svc.GetDeploymentHistory(context.Background(), "web", "production", "acme/web", 10)
	require.NoError(t, err)
	upstreamCalls := atomic.LoadInt64(&calls)

	time.Sleep(30 * time.Millisecond)

	_, err = svc.GetDeploymentHistory(context.Background(), "web", "production", "acme/web", 10)
	require.NoError(t, err)
	assert.Greater(t, atomic.LoadInt64(&calls), upstreamCalls)
}

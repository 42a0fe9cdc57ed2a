package githubapi

import (
	"context"
	"strconv"

	"github.com/portalops/deploy-environments/internal/api/models"
)

const defaultHistoryLimit = 10

// GetDeploymentHistory lists past deployment attempts for an environment,
// newest first, capped at limit. The full fetched list is memoized; a cache
// hit is sliced down to the caller's limit.
func (s *Service) GetDeploymentHistory(ctx context.Context, component, environment, repo string, limit int) ([]models.DeploymentHistoryEntry, error) {
	if limit <= 0 {
		limit = defaultHistoryLimit
	}

	if cached, ok := s.cache.GetHistory(component, environment); ok {
		if len(cached) > limit {
			return cached[:limit], nil
		}
		return cached, nil
	}

	owner, name, err := splitRepo(repo)
	if err != nil {
		return nil, err
	}

	deployments, err := s.listDeployments(ctx, owner, name, environment, limit)
	if err != nil {
		return nil, err
	}

	entries := make([]models.DeploymentHistoryEntry, 0, len(deployments))
	for _, d := range deployments {
		statuses, err := s.listStatuses(ctx, owner, name, d.GetID())
		if err != nil {
			return nil, err
		}

		decisive := pickDecisiveStatus(statuses)
		state := models.DeploymentStateIdle
		if decisive != nil {
			state = mapState(decisive.GetState())
		}

		runID, runURL := extractWorkflowRun(d, decisive)

		entry := models.DeploymentHistoryEntry{
			ID:             strconv.FormatInt(d.GetID(), 10),
			Version:        extractVersion(d),
			Status:         state,
			StartedAt:      d.GetCreatedAt().Time,
			WorkflowRunID:  runID,
			WorkflowRunURL: runURL,
			TriggeredBy:    deployedBy(d),
		}

		if decisive != nil && isTerminalState(decisive.GetState()) {
			completed := decisive.GetCreatedAt().Time
			entry.CompletedAt = &completed
			duration := completed.Sub(entry.StartedAt).Milliseconds()
			entry.DurationMS = &duration
		}

		if state == models.DeploymentStateFailure {
			entry.ErrorMessage = defaultFailureMessage
			if desc := decisive.GetDescription(); desc != "" {
				entry.ErrorMessage = desc
			}
		}

		entries = append(entries, entry)
	}

	s.cache.SetHistory(component, environment, entries)
	if len(entries) > limit {
		return entries[:limit], nil
	}
	return entries, nil
}

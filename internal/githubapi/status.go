package githubapi

import (
	"context"
	"fmt"

	"github.com/portalops/deploy-environments/internal/api/models"
)

// GetDeploymentStatus resolves the current deployment status of one
// environment from its most recent GitHub deployment. The result is memoized;
// within the TTL repeated calls cost no upstream requests.
func (s *Service) GetDeploymentStatus(ctx context.Context, component, environment, repo string) (*models.DeploymentStatus, error) {
	if cached, ok := s.cache.GetStatus(component, environment); ok {
		return cached, nil
	}

	owner, name, err := splitRepo(repo)
	if err != nil {
		return nil, err
	}

	deployments, err := s.listDeployments(ctx, owner, name, environment, statusDeploymentLimit)
	if err != nil {
		return nil, err
	}

	// No deployments is a normal state for a freshly registered
	// environment, not an error.
	if len(deployments) == 0 {
		status := &models.DeploymentStatus{
			EnvironmentName: environment,
			Status:          models.DeploymentStateIdle,
			ErrorMessage:    fmt.Sprintf("No deployments found for environment %q", environment),
		}
		s.cache.SetStatus(component, environment, status)
		return status, nil
	}

	// The API returns deployments newest first.
	latest := deployments[0]

	statuses, err := s.listStatuses(ctx, owner, name, latest.GetID())
	if err != nil {
		return nil, err
	}

	decisive := pickDecisiveStatus(statuses)
	state := models.DeploymentStateIdle
	if decisive != nil {
		state = mapState(decisive.GetState())
	}

	runID, runURL := extractWorkflowRun(latest, decisive)

	status := &models.DeploymentStatus{
		EnvironmentName: environment,
		Status:          state,
		CurrentVersion:  extractVersion(latest),
		WorkflowRunID:   runID,
		WorkflowRunURL:  runURL,
		DeployedBy:      deployedBy(latest),
	}

	switch state {
	case models.DeploymentStateSuccess:
		t := decisive.GetCreatedAt().Time
		status.DeployedAt = &t
	case models.DeploymentStateFailure:
		status.ErrorMessage = defaultFailureMessage
		if desc := decisive.GetDescription(); desc != "" {
			status.ErrorMessage = desc
		}
	}

	s.cache.SetStatus(component, environment, status)
	return status, nil
}

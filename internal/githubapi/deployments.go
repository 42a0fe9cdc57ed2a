package githubapi

import (
	"context"
	"encoding/json"
	"regexp"
	"sort"
	"strconv"

	"github.com/google/go-github/v66/github"

	"github.com/portalops/deploy-environments/internal/api/models"
)

const (
	statusDeploymentLimit = 20
	deploymentStatusLimit = 50
	defaultUnknownVersion = "unknown"
	defaultFailureMessage = "Deployment failed"
	defaultUnknownActor   = "unknown"
)

var (
	workflowRunPattern = regexp.MustCompile(`/runs/(\d+)`)
	commitSHAPattern   = regexp.MustCompile(`^[0-9a-fA-F]{7,40}$`)
	semverPattern      = regexp.MustCompile(`^v?\d+\.\d+\.\d+`)
)

func (s *Service) listDeployments(ctx context.Context, owner, repo, environment string, limit int) ([]*github.Deployment, error) {
	var deployments []*github.Deployment
	err := s.execute(ctx, func() error {
		var opErr error
		deployments, _, opErr = s.client.Repositories.ListDeployments(ctx, owner, repo, &github.DeploymentsListOptions{
			Environment: environment,
			ListOptions: github.ListOptions{PerPage: limit},
		})
		return opErr
	})
	if err != nil {
		return nil, err
	}
	return deployments, nil
}

// listStatuses fetches the status events for one deployment, oldest first.
// The API returns them newest first; derivation below wants chronological
// order so the first terminal event can be picked.
func (s *Service) listStatuses(ctx context.Context, owner, repo string, deploymentID int64) ([]*github.DeploymentStatus, error) {
	var statuses []*github.DeploymentStatus
	err := s.execute(ctx, func() error {
		var opErr error
		statuses, _, opErr = s.client.Repositories.ListDeploymentStatuses(ctx, owner, repo, deploymentID, &github.ListOptions{
			PerPage: deploymentStatusLimit,
		})
		return opErr
	})
	if err != nil {
		return nil, err
	}
	sort.SliceStable(statuses, func(i, j int) bool {
		return statuses[i].GetCreatedAt().Time.Before(statuses[j].GetCreatedAt().Time)
	})
	return statuses, nil
}

func isTerminalState(state string) bool {
	switch state {
	case "success", "failure", "error", "inactive":
		return true
	}
	return false
}

// pickDecisiveStatus returns the first terminal status event, or the
// chronologically last event when the deployment is still in flight.
func pickDecisiveStatus(statuses []*github.DeploymentStatus) *github.DeploymentStatus {
	for _, st := range statuses {
		if isTerminalState(st.GetState()) {
			return st
		}
	}
	if len(statuses) == 0 {
		return nil
	}
	return statuses[len(statuses)-1]
}

func mapState(state string) models.DeploymentState {
	switch state {
	case "success":
		return models.DeploymentStateSuccess
	case "failure", "error":
		return models.DeploymentStateFailure
	case "in_progress", "queued", "pending":
		return models.DeploymentStateRunning
	case "inactive":
		return models.DeploymentStateCancelled
	}
	return models.DeploymentStateIdle
}

// deploymentPayload is the subset of the dispatch payload we embed when
// triggering deployments ourselves.
type deploymentPayload struct {
	Version        string `json:"version"`
	WorkflowRunURL string `json:"workflow_run_url"`
}

func parsePayload(raw json.RawMessage) deploymentPayload {
	var payload deploymentPayload
	if len(raw) == 0 {
		return payload
	}
	// Payloads are free-form; anything unparseable is simply ignored.
	_ = json.Unmarshal(raw, &payload)
	return payload
}

// extractVersion prefers an explicit payload version, then a short commit
// SHA, then a semver-looking ref.
func extractVersion(d *github.Deployment) string {
	if v := parsePayload(d.Payload).Version; v != "" {
		return v
	}
	if sha := d.GetSHA(); len(sha) >= 7 {
		return sha[:7]
	}
	if ref := d.GetRef(); semverPattern.MatchString(ref) {
		return ref
	}
	return defaultUnknownVersion
}

// extractWorkflowRun pulls the Actions run id and URL out of a status event's
// target/log URL, falling back to a payload-embedded run URL.
func extractWorkflowRun(d *github.Deployment, decisive *github.DeploymentStatus) (int64, string) {
	var candidates []string
	if decisive != nil {
		candidates = append(candidates, decisive.GetTargetURL(), decisive.GetLogURL())
	}
	candidates = append(candidates, parsePayload(d.Payload).WorkflowRunURL)

	for _, candidate := range candidates {
		if candidate == "" {
			continue
		}
		if m := workflowRunPattern.FindStringSubmatch(candidate); m != nil {
			id, err := strconv.ParseInt(m[1], 10, 64)
			if err != nil {
				continue
			}
			return id, candidate
		}
	}
	return 0, ""
}

func deployedBy(d *github.Deployment) string {
	if login := d.GetCreator().GetLogin(); login != "" {
		return login
	}
	return defaultUnknownActor
}

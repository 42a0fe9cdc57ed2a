package githubapi

import (
	"context"
	"fmt"

	"github.com/google/go-github/v66/github"
)

const (
	workflowListLimit = 100
	runDiscoveryLimit = 5
)

// TriggerResult describes a dispatched deployment. WorkflowRunURL may be
// empty: run discovery after dispatch is best-effort.
type TriggerResult struct {
	WorkflowURL    string `json:"workflowUrl"`
	WorkflowRunURL string `json:"workflowRunUrl,omitempty"`
	WorkflowID     int64  `json:"workflowId"`
}

// TriggerDeployment dispatches the environment's deployment workflow with
// {environment, version} inputs and tries to locate the run it created.
func (s *Service) TriggerDeployment(ctx context.Context, component, environment, repo, workflowPath, version string) (*TriggerResult, error) {
	if workflowPath == "" {
		return nil, newAPIError(CodeMissingWorkflowPath, 0,
			fmt.Sprintf("no workflow path configured for %s/%s", component, environment))
	}

	owner, name, err := splitRepo(repo)
	if err != nil {
		return nil, err
	}

	workflow, err := s.findWorkflow(ctx, owner, name, workflowPath)
	if err != nil {
		return nil, err
	}

	// Snapshot the newest existing run so the one created by our dispatch
	// can be told apart afterwards.
	beforeID, err := s.latestRunID(ctx, owner, name, workflow.GetID())
	if err != nil {
		return nil, err
	}

	ref := dispatchRef(version)
	err = s.execute(ctx, func() error {
		_, opErr := s.client.Actions.CreateWorkflowDispatchEventByID(ctx, owner, name, workflow.GetID(), github.CreateWorkflowDispatchEventRequest{
			Ref: ref,
			Inputs: map[string]interface{}{
				"environment": environment,
				"version":     version,
			},
		})
		return opErr
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("dispatched deployment workflow",
		"component", component, "environment", environment,
		"workflow", workflowPath, "ref", ref)

	// Give the new run a moment to register before looking for it.
	if err := s.sleep(ctx, s.runSettleDelay); err != nil {
		return nil, err
	}

	// The dispatch already succeeded; failing to spot the new run only
	// costs the caller a deep link.
	runURL, discoverErr := s.discoverNewRun(ctx, owner, name, workflow.GetID(), beforeID)
	if discoverErr != nil {
		s.logger.Debug("could not discover new workflow run", "error", discoverErr)
	}

	s.cache.Invalidate(component, environment)

	return &TriggerResult{
		WorkflowURL:    workflow.GetHTMLURL(),
		WorkflowRunURL: runURL,
		WorkflowID:     workflow.GetID(),
	}, nil
}

func (s *Service) findWorkflow(ctx context.Context, owner, name, workflowPath string) (*github.Workflow, error) {
	var workflows *github.Workflows
	err := s.execute(ctx, func() error {
		var opErr error
		workflows, _, opErr = s.client.Actions.ListWorkflows(ctx, owner, name, &github.ListOptions{PerPage: workflowListLimit})
		return opErr
	})
	if err != nil {
		return nil, err
	}

	for _, w := range workflows.Workflows {
		if w.GetPath() == workflowPath || w.GetPath() == ".github/workflows/"+workflowPath {
			return w, nil
		}
	}

	apiErr := newAPIError(CodeWorkflowNotFound, 0,
		fmt.Sprintf("workflow %q not found in %s/%s", workflowPath, owner, name))
	apiErr.Details = map[string]string{"workflowPath": workflowPath}
	return nil, apiErr
}

func (s *Service) latestRunID(ctx context.Context, owner, name string, workflowID int64) (int64, error) {
	var runs *github.WorkflowRuns
	err := s.execute(ctx, func() error {
		var opErr error
		runs, _, opErr = s.client.Actions.ListWorkflowRunsByID(ctx, owner, name, workflowID, &github.ListWorkflowRunsOptions{
			ListOptions: github.ListOptions{PerPage: 1},
		})
		return opErr
	})
	if err != nil {
		return 0, err
	}
	if len(runs.WorkflowRuns) == 0 {
		return 0, nil
	}
	return runs.WorkflowRuns[0].GetID(), nil
}

func (s *Service) discoverNewRun(ctx context.Context, owner, name string, workflowID, beforeID int64) (string, error) {
	var runs *github.WorkflowRuns
	err := s.execute(ctx, func() error {
		var opErr error
		runs, _, opErr = s.client.Actions.ListWorkflowRunsByID(ctx, owner, name, workflowID, &github.ListWorkflowRunsOptions{
			ListOptions: github.ListOptions{PerPage: runDiscoveryLimit},
		})
		return opErr
	})
	if err != nil {
		return "", err
	}
	for _, run := range runs.WorkflowRuns {
		if run.GetID() > beforeID {
			return run.GetHTMLURL(), nil
		}
	}
	return "", nil
}

// dispatchRef picks the git ref for the dispatch: commit-SHA-like or
// semver-like versions are used verbatim, anything else falls back to main.
func dispatchRef(version string) string {
	if commitSHAPattern.MatchString(version) || semverPattern.MatchString(version) {
		return version
	}
	return "main"
}

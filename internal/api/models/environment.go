package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// EnvironmentConfig ties a catalog component to a deployment environment in a
// GitHub repository. One row per (component, environment) pair.
type EnvironmentConfig struct {
	ID              string    `json:"id" gorm:"primaryKey"`
	ComponentName   string    `json:"componentName" gorm:"uniqueIndex:idx_component_environment"`
	EnvironmentName string    `json:"environmentName" gorm:"uniqueIndex:idx_component_environment"`
	GithubRepo      string    `json:"githubRepo"`
	WorkflowPath    string    `json:"workflowPath"`
	CreatedAt       time.Time `json:"createdAt"`
	UpdatedAt       time.Time `json:"updatedAt"`
}

func (e *EnvironmentConfig) BeforeCreate(tx *gorm.DB) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	return nil
}

type DeploymentState string

const (
	DeploymentStateIdle      DeploymentState = "idle"
	DeploymentStateRunning   DeploymentState = "running"
	DeploymentStateSuccess   DeploymentState = "success"
	DeploymentStateFailure   DeploymentState = "failure"
	DeploymentStateCancelled DeploymentState = "cancelled"
)

// DeploymentStatus is derived from the GitHub Deployments API per request and
// never stored. A nil DeployedAt means the environment has not seen a
// successful deployment recently.
type DeploymentStatus struct {
	EnvironmentName string          `json:"environmentName"`
	Status          DeploymentState `json:"status"`
	CurrentVersion  string          `json:"currentVersion,omitempty"`
	DeployedAt      *time.Time      `json:"deployedAt,omitempty"`
	WorkflowRunID   int64           `json:"workflowRunId,omitempty"`
	WorkflowRunURL  string          `json:"workflowRunUrl,omitempty"`
	DeployedBy      string          `json:"deployedBy,omitempty"`
	ErrorMessage    string          `json:"errorMessage,omitempty"`
}

// DeploymentHistoryEntry is one past deployment attempt. DurationMS is only
// set once the attempt reached a terminal state.
type DeploymentHistoryEntry struct {
	ID             string          `json:"id"`
	Version        string          `json:"version"`
	Status         DeploymentState `json:"status"`
	StartedAt      time.Time       `json:"startedAt"`
	CompletedAt    *time.Time      `json:"completedAt,omitempty"`
	WorkflowRunID  int64           `json:"workflowRunId,omitempty"`
	WorkflowRunURL string          `json:"workflowRunUrl,omitempty"`
	TriggeredBy    string          `json:"triggeredBy"`
	ErrorMessage   string          `json:"errorMessage,omitempty"`
	DurationMS     *int64          `json:"duration,omitempty"`
}

// CreateEnvironmentRequest is the POST body for registering an environment.
type CreateEnvironmentRequest struct {
	EnvironmentName string `json:"environmentName" binding:"required"`
	GithubRepo      string `json:"githubRepo" binding:"required"`
	WorkflowPath    string `json:"workflowPath"`
}

// UpdateEnvironmentRequest is the PUT body. Empty fields are left unchanged.
type UpdateEnvironmentRequest struct {
	GithubRepo   string `json:"githubRepo"`
	WorkflowPath string `json:"workflowPath"`
}

// TriggerDeploymentRequest is the POST body for dispatching a deployment.
type TriggerDeploymentRequest struct {
	Version string `json:"version"`
}

package service

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/portalops/deploy-environments/internal/api/models"
	"github.com/portalops/deploy-environments/internal/audit"
	"github.com/portalops/deploy-environments/internal/events"
	"github.com/portalops/deploy-environments/internal/githubapi"
)

// DeploymentResolver is the GitHub-facing part of the service, satisfied by
// *githubapi.Service.
type DeploymentResolver interface {
	GetDeploymentStatus(ctx context.Context, component, environment, repo string) (*models.DeploymentStatus, error)
	GetDeploymentHistory(ctx context.Context, component, environment, repo string, limit int) ([]models.DeploymentHistoryEntry, error)
	TriggerDeployment(ctx context.Context, component, environment, repo, workflowPath, version string) (*githubapi.TriggerResult, error)
}

// Collaborators are everything the HTTP layer needs besides the database.
// Publisher and Exporter may be nil when those integrations are disabled.
type Collaborators struct {
	Deployments DeploymentResolver
	Publisher   *events.Publisher
	Exporter    *audit.Exporter
}

func SetupRouter(db *gorm.DB, collaborators Collaborators) (*gin.Engine, error) {
	router := gin.Default()

	// Set up DB and collaborators as middleware for injection
	router.Use(func(c *gin.Context) {
		c.Set("db", db)
		c.Set("collaborators", collaborators)
		c.Next()
	})

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	router.GET("/environments/:component", ListEnvironmentsEndpoint)
	router.POST("/environments/:component", CreateEnvironmentEndpoint)
	router.GET("/environments/:component/:environment", GetEnvironmentEndpoint)
	router.PUT("/environments/:component/:environment", UpdateEnvironmentEndpoint)
	router.DELETE("/environments/:component/:environment", DeleteEnvironmentEndpoint)

	router.GET("/environments/:component/:environment/status", GetDeploymentStatusEndpoint)
	router.GET("/environments/:component/:environment/history", GetDeploymentHistoryEndpoint)
	router.POST("/environments/:component/:environment/deploy", TriggerDeploymentEndpoint)
	router.POST("/environments/:component/:environment/history/export", ExportHistoryEndpoint)

	return router, nil
}

func getDB(c *gin.Context) (*gorm.DB, bool) {
	v, exists := c.Get("db")
	if !exists {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database connection not found"})
		return nil, false
	}
	db, ok := v.(*gorm.DB)
	if !ok {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Invalid database connection"})
		return nil, false
	}
	return db, true
}

func getCollaborators(c *gin.Context) (Collaborators, bool) {
	v, exists := c.Get("collaborators")
	if !exists {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Service collaborators not found"})
		return Collaborators{}, false
	}
	collaborators, ok := v.(Collaborators)
	if !ok {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Invalid service collaborators"})
		return Collaborators{}, false
	}
	return collaborators, true
}

func ListEnvironmentsEndpoint(c *gin.Context) {
	db, ok := getDB(c)
	if !ok {
		return
	}

	configs, err := ListEnvironments(db, c.Param("component"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list environment configurations"})
		return
	}

	c.JSON(http.StatusOK, configs)
}

func GetEnvironmentEndpoint(c *gin.Context) {
	db, ok := getDB(c)
	if !ok {
		return
	}

	config, err := GetEnvironment(db, c.Param("component"), c.Param("environment"))
	if errors.Is(err, ErrEnvironmentNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Environment configuration not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load environment configuration"})
		return
	}

	c.JSON(http.StatusOK, config)
}

func CreateEnvironmentEndpoint(c *gin.Context) {
	db, ok := getDB(c)
	if !ok {
		return
	}

	var request models.CreateEnvironmentRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid JSON payload"})
		return
	}

	config := &models.EnvironmentConfig{
		ComponentName:   c.Param("component"),
		EnvironmentName: request.EnvironmentName,
		GithubRepo:      request.GithubRepo,
		WorkflowPath:    request.WorkflowPath,
	}

	err := CreateEnvironment(db, config)
	if errors.Is(err, ErrEnvironmentExists) {
		c.JSON(http.StatusConflict, gin.H{"error": "Environment configuration already exists"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create environment configuration"})
		return
	}

	c.JSON(http.StatusCreated, config)
}

func UpdateEnvironmentEndpoint(c *gin.Context) {
	db, ok := getDB(c)
	if !ok {
		return
	}

	var request models.UpdateEnvironmentRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid JSON payload"})
		return
	}

	config, err := UpdateEnvironment(db, c.Param("component"), c.Param("environment"), request)
	if errors.Is(err, ErrEnvironmentNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Environment configuration not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update environment configuration"})
		return
	}

	c.JSON(http.StatusOK, config)
}

func DeleteEnvironmentEndpoint(c *gin.Context) {
	db, ok := getDB(c)
	if !ok {
		return
	}

	rowsAffected, err := DeleteEnvironment(db, c.Param("component"), c.Param("environment"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete environment configuration"})
		return
	}
	if rowsAffected == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "Environment configuration not found"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Environment configuration deleted"})
}

func GetDeploymentStatusEndpoint(c *gin.Context) {
	db, ok := getDB(c)
	if !ok {
		return
	}
	collaborators, ok := getCollaborators(c)
	if !ok {
		return
	}

	component := c.Param("component")
	environment := c.Param("environment")

	config, err := GetEnvironment(db, component, environment)
	if errors.Is(err, ErrEnvironmentNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Environment configuration not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load environment configuration"})
		return
	}

	status, err := collaborators.Deployments.GetDeploymentStatus(c.Request.Context(), component, environment, config.GithubRepo)
	if err != nil {
		respondWithAPIError(c, err)
		return
	}

	c.JSON(http.StatusOK, status)
}

func GetDeploymentHistoryEndpoint(c *gin.Context) {
	db, ok := getDB(c)
	if !ok {
		return
	}
	collaborators, ok := getCollaborators(c)
	if !ok {
		return
	}

	component := c.Param("component")
	environment := c.Param("environment")

	limit := 10
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid limit"})
			return
		}
		limit = parsed
	}

	config, err := GetEnvironment(db, component, environment)
	if errors.Is(err, ErrEnvironmentNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Environment configuration not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load environment configuration"})
		return
	}

	history, err := collaborators.Deployments.GetDeploymentHistory(c.Request.Context(), component, environment, config.GithubRepo, limit)
	if err != nil {
		respondWithAPIError(c, err)
		return
	}

	c.JSON(http.StatusOK, history)
}

func TriggerDeploymentEndpoint(c *gin.Context) {
	db, ok := getDB(c)
	if !ok {
		return
	}
	collaborators, ok := getCollaborators(c)
	if !ok {
		return
	}

	component := c.Param("component")
	environment := c.Param("environment")

	var request models.TriggerDeploymentRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid JSON payload"})
		return
	}

	config, err := GetEnvironment(db, component, environment)
	if errors.Is(err, ErrEnvironmentNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Environment configuration not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load environment configuration"})
		return
	}

	result, err := collaborators.Deployments.TriggerDeployment(c.Request.Context(), component, environment,
		config.GithubRepo, config.WorkflowPath, request.Version)
	if err != nil {
		respondWithAPIError(c, err)
		return
	}

	if collaborators.Publisher != nil {
		publishErr := collaborators.Publisher.PublishDeploymentTriggered(events.DeploymentTriggered{
			ComponentName:   component,
			EnvironmentName: environment,
			GithubRepo:      config.GithubRepo,
			Version:         request.Version,
			WorkflowID:      result.WorkflowID,
			WorkflowRunURL:  result.WorkflowRunURL,
			TriggeredAt:     time.Now().UTC(),
		})
		if publishErr != nil {
			// The trigger already succeeded; a lost event is not worth a 5xx.
			slog.Error("failed to publish deployment event", "error", publishErr)
		}
	}

	c.JSON(http.StatusAccepted, result)
}

func ExportHistoryEndpoint(c *gin.Context) {
	db, ok := getDB(c)
	if !ok {
		return
	}
	collaborators, ok := getCollaborators(c)
	if !ok {
		return
	}

	if collaborators.Exporter == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "History export is disabled"})
		return
	}

	component := c.Param("component")
	environment := c.Param("environment")

	config, err := GetEnvironment(db, component, environment)
	if errors.Is(err, ErrEnvironmentNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Environment configuration not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load environment configuration"})
		return
	}

	history, err := collaborators.Deployments.GetDeploymentHistory(c.Request.Context(), component, environment, config.GithubRepo, 50)
	if err != nil {
		respondWithAPIError(c, err)
		return
	}

	objectPath, err := collaborators.Exporter.ExportHistory(c.Request.Context(), component, environment, history)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to export deployment history"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"object": objectPath})
}

// respondWithAPIError translates a classified resolver error into an HTTP
// response the UI can render directly.
func respondWithAPIError(c *gin.Context, err error) {
	var apiErr *githubapi.APIError
	if !errors.As(err, &apiErr) {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(httpStatusForCode(apiErr.Code), gin.H{
		"error":      apiErr.Message,
		"code":       apiErr.Code,
		"suggestion": apiErr.Suggestion,
		"details":    apiErr.Details,
	})
}

func httpStatusForCode(code githubapi.ErrorCode) int {
	switch code {
	case githubapi.CodeMissingWorkflowPath, githubapi.CodeValidationError:
		return http.StatusBadRequest
	case githubapi.CodeAuthenticationFailed:
		return http.StatusUnauthorized
	case githubapi.CodeInsufficientPermission:
		return http.StatusForbidden
	case githubapi.CodeResourceNotFound, githubapi.CodeWorkflowNotFound:
		return http.StatusNotFound
	case githubapi.CodeRateLimitExceeded, githubapi.CodeSecondaryRateLimit:
		return http.StatusTooManyRequests
	case githubapi.CodeNetworkError:
		return http.StatusGatewayTimeout
	default:
		return http.StatusBadGateway
	}
}

// Package migrations seeds the environment configuration table from a YAML
// file. Schema migrations themselves run through gorm's AutoMigrate at
// startup; this package only loads initial data.
package migrations

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
	"gorm.io/gorm"

	"github.com/portalops/deploy-environments/internal/api/models"
)

type seedFile struct {
	Environments []seedEnvironment `yaml:"environments"`
}

type seedEnvironment struct {
	Component    string `yaml:"component"`
	Environment  string `yaml:"environment"`
	GithubRepo   string `yaml:"githubRepo"`
	WorkflowPath string `yaml:"workflowPath"`
}

// SeedFromFile inserts the environment configurations listed in path. Rows
// that already exist are left untouched so the seed can run on every start.
func SeedFromFile(db *gorm.DB, path string) (int, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("failed to read seed file: %w", err)
	}

	var seed seedFile
	if err := yaml.Unmarshal(raw, &seed); err != nil {
		return 0, fmt.Errorf("failed to parse seed file: %w", err)
	}

	inserted := 0
	for _, env := range seed.Environments {
		if env.Component == "" || env.Environment == "" || env.GithubRepo == "" {
			return inserted, fmt.Errorf("seed entry needs component, environment and githubRepo, got %+v", env)
		}

		var count int64
		err := db.Model(&models.EnvironmentConfig{}).
			Where("component_name = ? AND environment_name = ?", env.Component, env.Environment).
			Count(&count).Error
		if err != nil {
			return inserted, err
		}
		if count > 0 {
			continue
		}

		config := models.EnvironmentConfig{
			ComponentName:   env.Component,
			EnvironmentName: env.Environment,
			GithubRepo:      env.GithubRepo,
			WorkflowPath:    env.WorkflowPath,
		}
		if err := db.Create(&config).Error; err != nil {
			return inserted, err
		}
		inserted++
	}

	return inserted, nil
}

package service

import (
	"errors"
	"strings"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/portalops/deploy-environments/internal/api/models"
)

type Dboptions struct {
	// DSN is either an sqlite filename or a postgres connection string.
	DSN string
}

var (
	ErrEnvironmentExists   = errors.New("environment configuration already exists")
	ErrEnvironmentNotFound = errors.New("environment configuration not found")
)

// SetUpDatabase will connect to the selected DB and run pending migrations
func SetUpDatabase(opts Dboptions) (*gorm.DB, error) {
	dialector := sqlite.Open(opts.DSN)
	if strings.HasPrefix(opts.DSN, "postgres://") || strings.Contains(opts.DSN, "host=") {
		dialector = postgres.Open(opts.DSN)
	}

	db, err := gorm.Open(dialector, &gorm.Config{})
	if err != nil {
		return db, err
	}

	if err = db.AutoMigrate(&models.EnvironmentConfig{}); err != nil {
		return db, err
	}

	return db, nil
}

func CreateEnvironment(db *gorm.DB, config *models.EnvironmentConfig) error {
	var count int64
	err := db.Model(&models.EnvironmentConfig{}).
		Where("component_name = ? AND environment_name = ?", config.ComponentName, config.EnvironmentName).
		Count(&count).Error
	if err != nil {
		return err
	}
	if count > 0 {
		return ErrEnvironmentExists
	}
	return db.Create(config).Error
}

func GetEnvironment(db *gorm.DB, component, environment string) (*models.EnvironmentConfig, error) {
	var config models.EnvironmentConfig
	err := db.Where("component_name = ? AND environment_name = ?", component, environment).
		First(&config).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrEnvironmentNotFound
	}
	if err != nil {
		return nil, err
	}
	return &config, nil
}

func ListEnvironments(db *gorm.DB, component string) ([]models.EnvironmentConfig, error) {
	configs := []models.EnvironmentConfig{}
	err := db.Where("component_name = ?", component).
		Order("environment_name").
		Find(&configs).Error
	return configs, err
}

// UpdateEnvironment applies non-empty fields from the request to an existing
// configuration.
func UpdateEnvironment(db *gorm.DB, component, environment string, req models.UpdateEnvironmentRequest) (*models.EnvironmentConfig, error) {
	config, err := GetEnvironment(db, component, environment)
	if err != nil {
		return nil, err
	}

	if req.GithubRepo != "" {
		config.GithubRepo = req.GithubRepo
	}
	if req.WorkflowPath != "" {
		config.WorkflowPath = req.WorkflowPath
	}

	if err := db.Save(config).Error; err != nil {
		return nil, err
	}
	return config, nil
}

func DeleteEnvironment(db *gorm.DB, component, environment string) (int64, error) {
	result := db.Where("component_name = ? AND environment_name = ?", component, environment).
		Delete(&models.EnvironmentConfig{})
	return result.RowsAffected, result.Error
}

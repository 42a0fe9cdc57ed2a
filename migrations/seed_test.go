package migrations

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/portalops/deploy-environments/internal/api/models"
)

func testDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.EnvironmentConfig{}))
	return db
}

func writeSeed(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "seed.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestSeedFromFile(t *testing.T) {
	db := testDB(t)
	path := writeSeed(t, `
environments:
  - component: web
    environment: production
    githubRepo: acme/web
    workflowPath: deploy.yml
  - component: web
    environment: staging
    githubRepo: acme/web
`)

	inserted, err := SeedFromFile(db, path)
	require.NoError(t, err)
	assert.Equal(t, 2, inserted)

	var configs []models.EnvironmentConfig
	require.NoError(t, db.Order("environment_name").Find(&configs).Error)
	require.Len(t, configs, 2)
	assert.Equal(t, "production", configs[0].EnvironmentName)
	assert.Equal(t, "deploy.yml", configs[0].WorkflowPath)
}

func TestSeedFromFileIsIdempotent(t *testing.T) {
	db := testDB(t)
	path := writeSeed(t, `
environments:
  - component: web
    environment: production
    githubRepo: acme/web
`)

	inserted, err := SeedFromFile(db, path)
	require.NoError(t, err)
	assert.Equal(t, 1, inserted)

	inserted, err = SeedFromFile(db, path)
	require.NoError(t, err)
	assert.Equal(t, 0, inserted, "existing rows are not reinserted")
}

func TestSeedFromFileRejectsIncompleteEntries(t *testing.T) {
	db := testDB(t)
	path := writeSeed(t, `
environments:
  - component: web
    environment: production
`)

	_, err := SeedFromFile(db, path)
	assert.Error(t, err)
}

func TestSeedFromFileMissingFile(t *testing.T) {
	db := testDB(t)
	_, err := SeedFromFile(db, filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

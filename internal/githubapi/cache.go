package githubapi

import (
	"fmt"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/portalops/deploy-environments/internal/api/models"
)

// DefaultCacheTTL is how long resolved status and history are memoized.
// Entries older than the TTL are never served; the store treats them as
// misses on Get and evicts them in the background.
const DefaultCacheTTL = 15 * time.Second

// Cache keeps independent stores for current status and history, both keyed
// by component:environment.
type Cache struct {
	status  *gocache.Cache
	history *gocache.Cache
}

func NewCache(ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &Cache{
		status:  gocache.New(ttl, 2*ttl),
		history: gocache.New(ttl, 2*ttl),
	}
}

func cacheKey(component, environment string) string {
	return fmt.Sprintf("%s:%s", component, environment)
}

func (c *Cache) GetStatus(component, environment string) (*models.DeploymentStatus, bool) {
	v, ok := c.status.Get(cacheKey(component, environment))
	if !ok {
		return nil, false
	}
	status, ok := v.(*models.DeploymentStatus)
	return status, ok
}

func (c *Cache) SetStatus(component, environment string, status *models.DeploymentStatus) {
	c.status.SetDefault(cacheKey(component, environment), status)
}

func (c *Cache) GetHistory(component, environment string) ([]models.DeploymentHistoryEntry, bool) {
	v, ok := c.history.Get(cacheKey(component, environment))
	if !ok {
		return nil, false
	}
	entries, ok := v.([]models.DeploymentHistoryEntry)
	return entries, ok
}

func (c *Cache) SetHistory(component, environment string, entries []models.DeploymentHistoryEntry) {
	c.history.SetDefault(cacheKey(component, environment), entries)
}

// Invalidate drops both entries for a key. Called after a successful trigger
// since the deployment list upstream has just changed.
func (c *Cache) Invalidate(component, environment string) {
	key := cacheKey(component, environment)
	c.status.Delete(key)
	c.history.Delete(key)
}

func (c *Cache) InvalidateAll() {
	c.status.Flush()
	c.history.Flush()
}

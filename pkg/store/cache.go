package store

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/scenestack/pipeline/pkg/domain"
)

// cache is the write-through/cache-aside front for Project reads (spec
// §4.2 "Caching"). On write the database is updated first, the cache
// second, then an invalidation is published on a side channel so other
// replicas drop their own local copy. On read, a miss falls through to the
// database and repopulates the cache with DefaultCacheTTL.
//
// Redis itself is shared across replicas, so the "other replicas drop their
// local copy" step is just deleting the shared key — there is no
// process-local second tier to invalidate separately.
type cache struct {
	client redis.UniversalClient
	ttl    time.Duration
}

func newCache(client redis.UniversalClient, ttl time.Duration) *cache {
	return &cache{client: client, ttl: ttl}
}

func cacheKey(projectID string) string {
	return "project_cache:" + projectID
}

func (c *cache) get(ctx context.Context, projectID string) (*domain.Project, bool) {
	if c.client == nil {
		return nil, false
	}
	raw, err := c.client.Get(ctx, cacheKey(projectID)).Bytes()
	if err != nil {
		return nil, false
	}
	var p domain.Project
	if err := json.Unmarshal(raw, &p); err != nil {
		slog.Warn("store: cache entry undecodable, treating as miss", "project_id", projectID, "error", err)
		return nil, false
	}
	return &p, true
}

func (c *cache) set(ctx context.Context, projectID string, p *domain.Project) {
	if c.client == nil {
		return
	}
	raw, err := json.Marshal(p)
	if err != nil {
		slog.Warn("store: cache marshal failed", "project_id", projectID, "error", err)
		return
	}
	if err := c.client.Set(ctx, cacheKey(projectID), raw, c.ttl).Err(); err != nil {
		slog.Warn("store: cache set failed", "project_id", projectID, "error", err)
	}
}

// invalidate deletes the cached entry. Every mutation calls this after its
// database write commits (spec §4.2: "database first, cache second, then
// publish a cache-invalidation notification").
func (c *cache) invalidate(ctx context.Context, projectID string) {
	if c.client == nil {
		return
	}
	if err := c.client.Del(ctx, cacheKey(projectID)).Err(); err != nil {
		slog.Warn("store: cache invalidate failed", "project_id", projectID, "error", err)
	}
}

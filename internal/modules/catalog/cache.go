package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/thespeedingatom/soviario-app-sub000/internal/shared/slug"
)

// kv is the subset of redis used by the cache.
type kv interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
}

// CachedCatalog is a read-through redis cache in front of another Catalog.
// Misses are not cached so a newly published plan is visible immediately.
type CachedCatalog struct {
	next   Catalog
	rdb    kv
	ttl    time.Duration
	logger *slog.Logger
}

func NewCachedCatalog(next Catalog, rdb kv, ttl time.Duration, logger *slog.Logger) *CachedCatalog {
	if logger == nil {
		logger = slog.Default()
	}
	return &CachedCatalog{next: next, rdb: rdb, ttl: ttl, logger: logger}
}

func cacheKey(s string) string { return "catalog:plan:" + s }

func (c *CachedCatalog) GetBySlug(ctx context.Context, s string) (Plan, error) {
	s = slug.Normalize(s)
	key := cacheKey(s)

	raw, err := c.rdb.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var p Plan
		if jerr := json.Unmarshal(raw, &p); jerr == nil {
			return p, nil
		}
		c.logger.WarnContext(ctx, "catalog cache entry corrupt", "slug", s)
	case !errors.Is(err, redis.Nil):
		c.logger.WarnContext(ctx, "catalog cache read failed", "slug", s, "err", err)
	}

	p, err := c.next.GetBySlug(ctx, s)
	if err != nil {
		return Plan{}, err
	}

	if b, jerr := json.Marshal(p); jerr == nil {
		if serr := c.rdb.Set(ctx, key, b, c.ttl).Err(); serr != nil {
			c.logger.WarnContext(ctx, "catalog cache write failed", "slug", s, "err", serr)
		}
	}
	return p, nil
}

func (c *CachedCatalog) ListActive(ctx context.Context, limit, offset int) ([]Plan, error) {
	return c.next.ListActive(ctx, limit, offset)
}

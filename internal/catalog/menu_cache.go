package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

const (
	menuVersionKey = "menu:version"
	menuKeyPrefix  = "menu:public"
)

// ErrCacheUnavailable wraps Redis failures seen while serving the menu.
var ErrCacheUnavailable = errors.New("menu cache unavailable")

// MenuCache stores the rendered public menu in Redis under a versioned key.
// Bumping the version invalidates every cached copy at once.
type MenuCache struct {
	client *redis.Client
	ttl    time.Duration
	group  singleflight.Group
}

// NewMenuCache instantiates the cache. A nil client disables caching.
func NewMenuCache(client *redis.Client, ttl time.Duration) *MenuCache {
	return &MenuCache{client: client, ttl: ttl}
}

// Version returns the current menu version, initialising it when missing.
func (c *MenuCache) Version(ctx context.Context) (int64, error) {
	if c == nil || c.client == nil {
		return 0, nil
	}
	ver, err := c.client.Get(ctx, menuVersionKey).Int64()
	if errors.Is(err, redis.Nil) || (err == nil && ver <= 0) {
		// SETNX so a concurrent Bump is not overwritten.
		if err := c.client.SetNX(ctx, menuVersionKey, 1, 0).Err(); err != nil {
			return 0, err
		}
		return c.client.Get(ctx, menuVersionKey).Int64()
	}
	return ver, err
}

// Fetch returns the cached menu or builds it with load. Concurrent misses for
// the same version share a single load. Redis failures wrap ErrCacheUnavailable;
// load errors are returned as is.
func (c *MenuCache) Fetch(ctx context.Context, load func(context.Context) ([]MenuSection, error)) ([]MenuSection, error) {
	if c == nil || c.client == nil {
		return load(ctx)
	}
	ver, err := c.Version(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: version: %v", ErrCacheUnavailable, err)
	}
	key := fmt.Sprintf("%s:%d", menuKeyPrefix, ver)

	payload, err := c.client.Get(ctx, key).Bytes()
	if err == nil {
		var menu []MenuSection
		if err := json.Unmarshal(payload, &menu); err == nil {
			return menu, nil
		}
	} else if !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("%w: get: %v", ErrCacheUnavailable, err)
	}

	result, err, _ := c.group.Do(key, func() (interface{}, error) {
		menu, err := load(ctx)
		if err != nil {
			return nil, err
		}
		raw, err := json.Marshal(menu)
		if err != nil {
			return nil, err
		}
		if err := c.client.Set(ctx, key, raw, c.ttl).Err(); err != nil {
			return nil, fmt.Errorf("%w: set: %v", ErrCacheUnavailable, err)
		}
		return menu, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]MenuSection), nil
}

// Bump invalidates the cached menu.
func (c *MenuCache) Bump(ctx context.Context) error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Incr(ctx, menuVersionKey).Err()
}

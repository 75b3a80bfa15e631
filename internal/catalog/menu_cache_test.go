package catalog

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestMenuCache(t *testing.T) (*MenuCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewMenuCache(client, time.Minute), mr
}

func TestMenuCacheServesUntilBumped(t *testing.T) {
	cache, _ := newTestMenuCache(t)
	ctx := context.Background()
	var loads atomic.Int32
	load := func(context.Context) ([]MenuSection, error) {
		n := loads.Add(1)
		return []MenuSection{{ID: int64(n), Name: "Pizzas", Products: []Product{}}}, nil
	}

	first, err := cache.Fetch(ctx, load)
	require.NoError(t, err)
	second, err := cache.Fetch(ctx, load)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, int32(1), loads.Load())

	require.NoError(t, cache.Bump(ctx))
	third, err := cache.Fetch(ctx, load)
	require.NoError(t, err)
	assert.Equal(t, int64(2), third[0].ID)
	assert.Equal(t, int32(2), loads.Load())
}

func TestMenuCacheVersionInitialises(t *testing.T) {
	cache, mr := newTestMenuCache(t)

	ver, err := cache.Version(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), ver)
	stored, err := mr.Get(menuVersionKey)
	require.NoError(t, err)
	assert.Equal(t, "1", stored)
}

func TestMenuCacheCollapsesConcurrentMisses(t *testing.T) {
	cache, _ := newTestMenuCache(t)
	ctx := context.Background()
	var loads atomic.Int32
	release := make(chan struct{})
	load := func(context.Context) ([]MenuSection, error) {
		loads.Add(1)
		<-release
		return []MenuSection{}, nil
	}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := cache.Fetch(ctx, load)
			assert.NoError(t, err)
		}()
	}
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()
	assert.Equal(t, int32(1), loads.Load())
}

func TestNilMenuCacheLoadsDirectly(t *testing.T) {
	var cache *MenuCache
	menu, err := cache.Fetch(context.Background(), func(context.Context) ([]MenuSection, error) {
		return []MenuSection{{Name: "x"}}, nil
	})
	require.NoError(t, err)
	assert.Len(t, menu, 1)
	assert.NoError(t, cache.Bump(context.Background()))
}

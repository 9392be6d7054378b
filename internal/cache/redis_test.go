package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"invoicedesk/internal/domain"
)

// setupTestRedis creates a miniredis server and returns a RedisCache instance
func setupTestRedis(t *testing.T) (*RedisCache, *miniredis.Miniredis) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisCache(client), mr
}

func TestRedisCache_Miss(t *testing.T) {
	c, _ := setupTestRedis(t)
	_, err := c.Get(context.Background())
	assert.ErrorIs(t, err, ErrCacheMiss)
}

func TestRedisCache_SetGetDelete(t *testing.T) {
	c, mr := setupTestRedis(t)
	ctx := context.Background()
	items := []domain.CatalogItem{
		{ID: "p1", Name: "Ring", Price: 100, Quantity: 2, Variants: []domain.Variant{{Name: "gold", Price: 120}}},
		{ID: "p2", Name: "Chain", Price: 50},
	}
	require.NoError(t, c.Set(ctx, items))

	ttl := mr.TTL(catalogKey)
	assert.GreaterOrEqual(t, ttl, 15*time.Minute)
	assert.Less(t, ttl, 20*time.Minute)

	got, err := c.Get(ctx)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "Ring", got[0].Name)
	assert.Equal(t, "gold", got[0].Variants[0].Name)

	require.NoError(t, c.Delete(ctx))
	assert.False(t, mr.Exists(catalogKey))
}

func TestRedisCache_Expires(t *testing.T) {
	c, mr := setupTestRedis(t)
	ctx := context.Background()
	require.NoError(t, c.Set(ctx, []domain.CatalogItem{{ID: "p1"}}))
	mr.FastForward(25 * time.Minute)
	_, err := c.Get(ctx)
	assert.ErrorIs(t, err, ErrCacheMiss)
}

func TestRedisCache_CorruptPayload(t *testing.T) {
	c, mr := setupTestRedis(t)
	require.NoError(t, mr.Set(catalogKey, "{not json"))
	_, err := c.Get(context.Background())
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrCacheMiss)
}

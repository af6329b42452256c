package preference

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/assessor/pkg/rbac"
)

func setupRedisStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client, err := NewRedisClient(context.Background(), RedisConfig{URL: "redis://" + mr.Addr(), MaxRetries: 1, PoolSize: 2})
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })

	return NewRedisStore(client, time.Hour), mr
}

func TestNewRedisClient_InvalidURL(t *testing.T) {
	_, err := NewRedisClient(context.Background(), RedisConfig{URL: "not-a-url"})
	assert.Error(t, err)
}

func TestNewRedisClient_Unreachable(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	addr := mr.Addr()
	mr.Close()

	_, err = NewRedisClient(context.Background(), RedisConfig{URL: "redis://" + addr})
	assert.Error(t, err)
}

func TestRedisStore_RoundTrip(t *testing.T) {
	store, mr := setupRedisStore(t)
	ctx := context.Background()

	_, ok, err := store.GetActiveRole(ctx, "client-1")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, store.SetActiveRole(ctx, "client-1", rbac.RoleChair))
	assert.Equal(t, time.Hour, mr.TTL(DefaultKeyPrefix+"client-1"))

	role, ok, err := store.GetActiveRole(ctx, "client-1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, rbac.RoleChair, role)

	require.NoError(t, store.Clear(ctx, "client-1"))
	_, ok, err = store.GetActiveRole(ctx, "client-1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRedisStore_ExpiresAfterTTL(t *testing.T) {
	store, mr := setupRedisStore(t)
	ctx := context.Background()

	require.NoError(t, store.SetActiveRole(ctx, "client-1", rbac.RoleEM))
	mr.FastForward(2 * time.Hour)

	_, ok, err := store.GetActiveRole(ctx, "client-1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRedisStore_DiscardsUnknownRole(t *testing.T) {
	store, mr := setupRedisStore(t)
	ctx := context.Background()

	require.NoError(t, mr.Set(DefaultKeyPrefix+"client-1", "overlord"))

	_, ok, err := store.GetActiveRole(ctx, "client-1")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.False(t, mr.Exists(DefaultKeyPrefix+"client-1"))
}

func TestRedisStore_Errors(t *testing.T) {
	store, mr := setupRedisStore(t)
	ctx := context.Background()

	mr.SetError("ERR redis down")
	defer mr.SetError("")

	_, _, err := store.GetActiveRole(ctx, "client-1")
	assert.Error(t, err)
	assert.Error(t, store.SetActiveRole(ctx, "client-1", rbac.RoleEM))
	assert.Error(t, store.Clear(ctx, "client-1"))
}

func TestRedisStore_DefaultTTL(t *testing.T) {
	store := NewRedisStore(redis.NewClient(&redis.Options{Addr: "127.0.0.1:0"}), 0)
	assert.Equal(t, DefaultTTL, store.ttl)
}

package cache

import (
	"context"
	"testing"
	"time"

	"github.com/BradenHooton/gatekeeper/internal/models"
	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newCacheForTest(t *testing.T, ttl time.Duration) (*miniredis.Miniredis, *ProfileCache) {
	t.Helper()
	m := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: m.Addr()})
	t.Cleanup(func() {
		_ = client.Close()
		m.Close()
	})
	return m, NewProfileCache(client, ttl)
}

func TestProfileKey(t *testing.T) {
	assert.Equal(t, "profile:user_id:7205759403792793600", ProfileKey(7205759403792793600))
}

func TestProfileCache_SetGetDelete(t *testing.T) {
	m, c := newCacheForTest(t, 0)
	ctx := context.Background()
	created := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	profile := &models.Profile{
		ID:        42,
		Username:  "ada",
		Email:     "ada@example.com",
		FullName:  "Ada Lovelace",
		Role:      models.RoleAdmin,
		Status:    string(models.StatusActive),
		CreatedAt: created,
	}

	require.NoError(t, c.Set(ctx, profile))
	assert.True(t, m.Exists("profile:user_id:42"))
	assert.Equal(t, DefaultProfileTTL, m.TTL("profile:user_id:42"))

	got, err := c.Get(ctx, 42)
	require.NoError(t, err)
	assert.Equal(t, profile, got)

	require.NoError(t, c.Delete(ctx, 42))
	got, err = c.Get(ctx, 42)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestProfileCache_MissAndExpiry(t *testing.T) {
	m, c := newCacheForTest(t, time.Minute)
	ctx := context.Background()

	got, err := c.Get(ctx, 1)
	require.NoError(t, err)
	assert.Nil(t, got)

	require.NoError(t, c.Set(ctx, &models.Profile{ID: 1}))
	m.FastForward(61 * time.Second)

	got, err = c.Get(ctx, 1)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestProfileCache_CorruptEntryIsDropped(t *testing.T) {
	m, c := newCacheForTest(t, 0)
	require.NoError(t, m.Set("profile:user_id:5", "{not json"))

	got, err := c.Get(context.Background(), 5)

	require.NoError(t, err)
	assert.Nil(t, got)
	assert.False(t, m.Exists("profile:user_id:5"))
}

func TestProfileCache_RedisDown(t *testing.T) {
	m, c := newCacheForTest(t, 0)
	m.Close()

	_, err := c.Get(context.Background(), 1)

	assert.Error(t, err)
}

// Package cache keeps read-mostly account views in Redis.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/BradenHooton/gatekeeper/internal/models"
	"github.com/redis/go-redis/v9"
)

// DefaultProfileTTL bounds how long a profile survives a missed invalidation.
const DefaultProfileTTL = 24 * time.Hour

// ProfileKey is the Redis key of the cached profile of account id.
func ProfileKey(id int64) string {
	return "profile:user_id:" + strconv.FormatInt(id, 10)
}

// ProfileCache stores models.Profile values as JSON.
type ProfileCache struct {
	client redis.UniversalClient
	ttl    time.Duration
}

func NewProfileCache(client redis.UniversalClient, ttl time.Duration) *ProfileCache {
	if ttl <= 0 {
		ttl = DefaultProfileTTL
	}
	return &ProfileCache{client: client, ttl: ttl}
}

// Get returns the cached profile, or nil without error on a miss.
func (c *ProfileCache) Get(ctx context.Context, id int64) (*models.Profile, error) {
	raw, err := c.client.Get(ctx, ProfileKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read cached profile: %w", err)
	}

	var profile models.Profile
	if err := json.Unmarshal(raw, &profile); err != nil {
		// unreadable entries are dropped so the next read repopulates them
		_ = c.client.Del(ctx, ProfileKey(id)).Err()
		return nil, nil
	}
	return &profile, nil
}

func (c *ProfileCache) Set(ctx context.Context, profile *models.Profile) error {
	raw, err := json.Marshal(profile)
	if err != nil {
		return fmt.Errorf("failed to encode profile: %w", err)
	}
	if err := c.client.Set(ctx, ProfileKey(profile.ID), raw, c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to cache profile: %w", err)
	}
	return nil
}

// Delete evicts the profile of account id. Evicting a missing key is not an error.
func (c *ProfileCache) Delete(ctx context.Context, id int64) error {
	if err := c.client.Del(ctx, ProfileKey(id)).Err(); err != nil {
		return fmt.Errorf("failed to evict profile: %w", err)
	}
	return nil
}

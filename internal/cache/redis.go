package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Boitumelo14/busbooking/config"
	"github.com/Boitumelo14/busbooking/internal/domain"
	"github.com/redis/go-redis/v9"
)

type RedisCache struct {
	client      *redis.Client
	snapshotTTL time.Duration
}

func NewRedisCache(cfg config.RedisConfig, snapshotTTL time.Duration) *RedisCache {
	return &RedisCache{
		client:      redis.NewClient(&redis.Options{Addr: cfg.Addr, Password: cfg.Password, DB: cfg.DB}),
		snapshotTTL: snapshotTTL,
	}
}

type snapshotPayload struct {
	SeatStates map[string]domain.SeatState `json:"seat_states"`
	Version    int64                       `json:"version"`
}

// GetSnapshot returns the cached seat-state view, or ok=false on a miss.
func (c *RedisCache) GetSnapshot(ctx context.Context, tripID string) (map[string]domain.SeatState, int64, bool, error) {
	data, err := c.client.Get(ctx, snapshotKey(tripID)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, 0, false, nil
		}
		return nil, 0, false, err
	}

	var payload snapshotPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, 0, false, err
	}
	return payload.SeatStates, payload.Version, true, nil
}

func (c *RedisCache) SetSnapshot(ctx context.Context, tripID string, states map[string]domain.SeatState, version int64) error {
	payload, err := json.Marshal(snapshotPayload{SeatStates: states, Version: version})
	if err != nil {
		return err
	}
	return c.client.Set(ctx, snapshotKey(tripID), payload, c.snapshotTTL).Err()
}

func (c *RedisCache) InvalidateSnapshot(ctx context.Context, tripID string) error {
	return c.client.Del(ctx, snapshotKey(tripID)).Err()
}

// PutHoldKey registers an idempotency key for a hold. Returns false when an
// identical hold was registered inside the window.
func (c *RedisCache) PutHoldKey(ctx context.Context, key, holdID string, window time.Duration) (bool, error) {
	return c.client.SetNX(ctx, idemKey(key), holdID, window).Result()
}

// GetHoldKey returns the hold id registered for the key, or "" on a miss.
func (c *RedisCache) GetHoldKey(ctx context.Context, key string) (string, error) {
	id, err := c.client.Get(ctx, idemKey(key)).Result()
	if err != nil {
		if err == redis.Nil {
			return "", nil
		}
		return "", err
	}
	return id, nil
}

func (c *RedisCache) DropHoldKey(ctx context.Context, key string) error {
	return c.client.Del(ctx, idemKey(key)).Err()
}

// Allow is a fixed-window counter used to limit hold attempts per subject.
// The first attempt in a window sets the expiry; attempts past maxAttempts
// are rejected until the window rolls over.
func (c *RedisCache) Allow(ctx context.Context, subject string, maxAttempts int, window time.Duration) (bool, error) {
	key := limiterKey(subject)
	count, err := c.client.Incr(ctx, key).Result()
	if err != nil {
		return false, err
	}
	if count == 1 {
		if err := c.client.Expire(ctx, key, window).Err(); err != nil {
			return false, err
		}
	}
	return count <= int64(maxAttempts), nil
}

func snapshotKey(tripID string) string {
	return fmt.Sprintf("cache:inventory:%s", tripID)
}

func idemKey(key string) string {
	return fmt.Sprintf("idem:hold:%s", key)
}

func limiterKey(subject string) string {
	return fmt.Sprintf("limit:hold:%s", subject)
}

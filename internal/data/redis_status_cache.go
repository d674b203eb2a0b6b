package data

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/dealerlink/prospect-ingest/internal/domain/model"
)

// RedisStatusCache caches terminal JobRun snapshots so the dashboard's
// polling read path avoids hitting Postgres for runs that can no longer
// change. A nil *RedisStatusCache is a valid no-op cache.
type RedisStatusCache struct {
	client redis.UniversalClient
}

// NewRedisStatusCache creates a new RedisStatusCache with the given client.
func NewRedisStatusCache(client redis.UniversalClient) *RedisStatusCache {
	return &RedisStatusCache{client: client}
}

func runKey(id string) string {
	return "jobrun:" + id
}

// GetRun returns a cached run snapshot, or nil on a miss.
func (c *RedisStatusCache) GetRun(ctx context.Context, id string) (*model.JobRun, error) {
	if c == nil || c.client == nil {
		return nil, nil
	}
	if id == "" {
		return nil, errors.New("run id cannot be empty")
	}

	raw, err := c.client.Get(ctx, runKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("redis get: %w", err)
	}

	var run model.JobRun
	if err := json.Unmarshal(raw, &run); err != nil {
		// A corrupt entry is treated as a miss; the source of truth is Postgres.
		return nil, nil
	}
	return &run, nil
}

// SetRun caches a run snapshot with the given TTL. Only terminal runs are
// worth caching; callers enforce that.
func (c *RedisStatusCache) SetRun(ctx context.Context, run *model.JobRun, ttl time.Duration) error {
	if c == nil || c.client == nil {
		return nil
	}
	if run == nil || run.ID == "" {
		return errors.New("run with id is required")
	}

	raw, err := json.Marshal(run)
	if err != nil {
		return fmt.Errorf("marshal run: %w", err)
	}
	return c.client.Set(ctx, runKey(run.ID), raw, ttl).Err()
}

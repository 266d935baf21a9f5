package store

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// QueueDepthCache exposes the worker-task queue's per-task-type queue
// depth and in-flight count through Redis, so a horizontally-scaled
// HTTP tier can answer metrics/status queries without a round-trip to
// whichever process is running the in-memory worker.Queue. Optional:
// callers that don't need cross-process visibility can skip wiring
// this and read worker.Queue's counts in-process directly.
type QueueDepthCache struct {
	client *redis.Client
	prefix string
}

// NewQueueDepthCache wraps an already-configured *redis.Client.
func NewQueueDepthCache(client *redis.Client, prefix string) *QueueDepthCache {
	return &QueueDepthCache{client: client, prefix: prefix}
}

func (c *QueueDepthCache) key(taskType string) string {
	return c.prefix + ":queue_depth:" + taskType
}

func (c *QueueDepthCache) inFlightKey(taskType string) string {
	return c.prefix + ":in_flight:" + taskType
}

// SetQueueDepth publishes the current queue depth for taskType.
func (c *QueueDepthCache) SetQueueDepth(ctx context.Context, taskType string, depth int) error {
	return c.client.Set(ctx, c.key(taskType), depth, time.Minute).Err()
}

// SetInFlight publishes the current in-flight count for taskType.
func (c *QueueDepthCache) SetInFlight(ctx context.Context, taskType string, count int) error {
	return c.client.Set(ctx, c.inFlightKey(taskType), count, time.Minute).Err()
}

// QueueDepth returns the last published queue depth for taskType, or 0
// if nothing has been published yet (e.g. the cache expired or the
// worker process hasn't reported in).
func (c *QueueDepthCache) QueueDepth(ctx context.Context, taskType string) (int, error) {
	n, err := c.client.Get(ctx, c.key(taskType)).Int()
	if err == redis.Nil {
		return 0, nil
	}
	return n, err
}

// InFlight returns the last published in-flight count for taskType.
func (c *QueueDepthCache) InFlight(ctx context.Context, taskType string) (int, error) {
	n, err := c.client.Get(ctx, c.inFlightKey(taskType)).Int()
	if err == redis.Nil {
		return 0, nil
	}
	return n, err
}

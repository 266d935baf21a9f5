package store

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestCache(t *testing.T) *QueueDepthCache {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewQueueDepthCache(client, "test")
}

func TestQueueDepthCacheRoundTripsQueueDepth(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	if err := c.SetQueueDepth(ctx, "scan", 7); err != nil {
		t.Fatalf("set queue depth: %v", err)
	}
	depth, err := c.QueueDepth(ctx, "scan")
	if err != nil {
		t.Fatalf("get queue depth: %v", err)
	}
	if depth != 7 {
		t.Fatalf("expected 7, got %d", depth)
	}
}

func TestQueueDepthCacheRoundTripsInFlight(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	if err := c.SetInFlight(ctx, "scan", 3); err != nil {
		t.Fatalf("set in-flight: %v", err)
	}
	n, err := c.InFlight(ctx, "scan")
	if err != nil {
		t.Fatalf("get in-flight: %v", err)
	}
	if n != 3 {
		t.Fatalf("expected 3, got %d", n)
	}
}

func TestQueueDepthCacheUnpublishedTaskTypeReturnsZero(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	depth, err := c.QueueDepth(ctx, "never-published")
	if err != nil {
		t.Fatalf("get queue depth: %v", err)
	}
	if depth != 0 {
		t.Fatalf("expected 0 for unpublished task type, got %d", depth)
	}
}

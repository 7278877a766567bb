package lifecycle

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Deduper hands out one-shot claims on keys for a limited time.
type Deduper interface {
	// Claim returns true for the first caller of key until ttl passes.
	Claim(ctx context.Context, key string, ttl time.Duration) (bool, error)
	// Release drops a claim so the work can be retried.
	Release(ctx context.Context, key string) error
}

// RedisDeduper claims keys with SET NX, shared by every replica.
type RedisDeduper struct {
	client *redis.Client
	prefix string
}

// NewRedisDeduper creates a Redis-backed deduper.
func NewRedisDeduper(client *redis.Client) *RedisDeduper {
	if client == nil {
		panic("lifecycle: redis client required")
	}
	return &RedisDeduper{client: client, prefix: "booking:lifecycle:"}
}

func (d *RedisDeduper) Claim(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	ok, err := d.client.SetNX(ctx, d.prefix+key, time.Now().UTC().Format(time.RFC3339), ttl).Result()
	if err != nil {
		return false, fmt.Errorf("lifecycle: claim %s: %w", key, err)
	}
	return ok, nil
}

func (d *RedisDeduper) Release(ctx context.Context, key string) error {
	if err := d.client.Del(ctx, d.prefix+key).Err(); err != nil {
		return fmt.Errorf("lifecycle: release %s: %w", key, err)
	}
	return nil
}

// MemoryDeduper is the single-process fallback when Redis is not configured.
type MemoryDeduper struct {
	mu     sync.Mutex
	claims map[string]time.Time
	now    func() time.Time
}

func NewMemoryDeduper() *MemoryDeduper {
	return &MemoryDeduper{claims: make(map[string]time.Time), now: time.Now}
}

func (d *MemoryDeduper) Claim(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	now := d.now()
	for k, exp := range d.claims {
		if !now.Before(exp) {
			delete(d.claims, k)
		}
	}
	if _, held := d.claims[key]; held {
		return false, nil
	}
	d.claims[key] = now.Add(ttl)
	return true, nil
}

func (d *MemoryDeduper) Release(ctx context.Context, key string) error {
	d.mu.Lock()
	delete(d.claims, key)
	d.mu.Unlock()
	return nil
}

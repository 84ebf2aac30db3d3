package authority

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/TTS1976/alcohol-check-engine/model"
)

// ConfirmerCache stores resolved eligible-confirmer sets per actor. The org
// snapshot changes rarely, so a short TTL keeps repeated form loads from
// recomputing the same set. Key format is "confirmers:{actorId}".
type ConfirmerCache interface {
	// Get looks up a cached set. ok is false on a miss or an expired entry.
	Get(ctx context.Context, key string) (confirmers []model.Confirmer, ok bool, err error)

	// Set saves a set with a TTL.
	Set(ctx context.Context, key string, confirmers []model.Confirmer, ttl time.Duration) error
}

// --- MemoryConfirmerCache ---

// MemoryConfirmerCache is an in-memory ConfirmerCache with TTL support.
// Suitable for testing and single-instance deployments.
type MemoryConfirmerCache struct {
	mu      sync.RWMutex
	entries map[string]*memCacheEntry
}

type memCacheEntry struct {
	confirmers []model.Confirmer
	expiresAt  time.Time
}

// NewMemoryConfirmerCache creates a new in-memory confirmer cache.
func NewMemoryConfirmerCache() *MemoryConfirmerCache {
	return &MemoryConfirmerCache{
		entries: make(map[string]*memCacheEntry),
	}
}

// Get looks up a cached set, dropping it if expired.
func (c *MemoryConfirmerCache) Get(_ context.Context, key string) ([]model.Confirmer, bool, error) {
	c.mu.RLock()
	entry, exists := c.entries[key]
	c.mu.RUnlock()

	if !exists {
		return nil, false, nil
	}
	if time.Now().After(entry.expiresAt) {
		c.mu.Lock()
		delete(c.entries, key)
		c.mu.Unlock()
		return nil, false, nil
	}

	out := make([]model.Confirmer, len(entry.confirmers))
	copy(out, entry.confirmers)
	return out, true, nil
}

// Set saves a set with TTL.
func (c *MemoryConfirmerCache) Set(_ context.Context, key string, confirmers []model.Confirmer, ttl time.Duration) error {
	stored := make([]model.Confirmer, len(confirmers))
	copy(stored, confirmers)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = &memCacheEntry{confirmers: stored, expiresAt: time.Now().Add(ttl)}
	return nil
}

// Len returns the number of entries (including expired ones). For testing.
func (c *MemoryConfirmerCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// HealthCheck always succeeds for the in-process cache.
func (c *MemoryConfirmerCache) HealthCheck(_ context.Context) error {
	return nil
}

// --- RedisConfirmerCache ---

// RedisConfirmerCache is a Redis-backed ConfirmerCache for multi-instance
// deployments.
type RedisConfirmerCache struct {
	client redis.Cmdable
}

// NewRedisConfirmerCache creates a new Redis-backed confirmer cache.
func NewRedisConfirmerCache(client redis.Cmdable) *RedisConfirmerCache {
	return &RedisConfirmerCache{client: client}
}

// Get looks up a cached set in Redis.
func (c *RedisConfirmerCache) Get(ctx context.Context, key string) ([]model.Confirmer, bool, error) {
	raw, err := c.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get %q: %w", key, err)
	}

	var confirmers []model.Confirmer
	if err := json.Unmarshal(raw, &confirmers); err != nil {
		return nil, false, fmt.Errorf("unmarshal confirmer set %q: %w", key, err)
	}
	return confirmers, true, nil
}

// Set saves a set in Redis with TTL.
func (c *RedisConfirmerCache) Set(ctx context.Context, key string, confirmers []model.Confirmer, ttl time.Duration) error {
	data, err := json.Marshal(confirmers)
	if err != nil {
		return fmt.Errorf("marshal confirmer set: %w", err)
	}
	if err := c.client.Set(ctx, key, data, ttl).Err(); err != nil {
		return fmt.Errorf("redis set %q: %w", key, err)
	}
	return nil
}

// HealthCheck pings Redis.
func (c *RedisConfirmerCache) HealthCheck(ctx context.Context) error {
	if err := c.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}
	return nil
}

// FormatCacheKey builds the standard confirmer-cache key.
func FormatCacheKey(actorID string) string {
	return fmt.Sprintf("confirmers:%s", actorID)
}

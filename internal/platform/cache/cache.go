// Package cache provides the engine's result-caching layer: bounded
// in-process LRUs for memoizing pure per-call computations, and
// Redis-backed caches for sharing results across engine replicas.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	redisv8 "github.com/go-redis/redis/v8"
	lru "github.com/hashicorp/golang-lru"
	lruv2 "github.com/hashicorp/golang-lru/v2"
	"github.com/redis/go-redis/v9"
)

// RankCache memoizes Router.Route's ranking computation for a repeated
// query signature, bounded by an LRU so a batch of patients sharing the
// same adverse-event/complexity profile doesn't re-rank an unchanged
// candidate pool on every call. Purge on every registry mutation.
type RankCache struct {
	cache *lruv2.Cache[string, any]
}

// NewRankCache builds a RankCache holding at most size entries.
func NewRankCache(size int) (*RankCache, error) {
	c, err := lruv2.New[string, any](size)
	if err != nil {
		return nil, fmt.Errorf("new rank cache: %w", err)
	}
	return &RankCache{cache: c}, nil
}

// Get returns the cached value for key, if present.
func (c *RankCache) Get(key string) (any, bool) {
	return c.cache.Get(key)
}

// Put stores value under key, evicting the least recently used entry if
// the cache is at capacity.
func (c *RankCache) Put(key string, value any) {
	c.cache.Add(key, value)
}

// Purge clears every entry, used when the underlying model registry
// changes and cached rankings would otherwise go stale.
func (c *RankCache) Purge() {
	c.cache.Purge()
}

// ParseCache memoizes the Normalizer's parsed-response fields for an
// identical raw vendor payload, using the legacy (v1) LRU shape kept
// alongside the v2 generic cache.
type ParseCache struct {
	cache *lru.Cache
}

// NewParseCache builds a ParseCache holding at most size entries.
func NewParseCache(size int) (*ParseCache, error) {
	c, err := lru.New(size)
	if err != nil {
		return nil, fmt.Errorf("new parse cache: %w", err)
	}
	return &ParseCache{cache: c}, nil
}

// Get returns the cached value for key, if present.
func (c *ParseCache) Get(key string) (any, bool) {
	return c.cache.Get(key)
}

// Put stores value under key.
func (c *ParseCache) Put(key string, value any) {
	c.cache.Add(key, value)
}

// cachedResponse is the envelope stored in Redis for a cached vendor
// response, tracking its own expiry independently of the key's TTL so a
// stale entry read just before Redis expires it is still detected.
type cachedResponse struct {
	Body       map[string]any `json:"body"`
	TokensUsed int            `json:"tokens_used"`
	CachedAt   time.Time      `json:"cached_at"`
	ExpiresAt  time.Time      `json:"expires_at"`
}

// ResponseCache distributes Gateway vendor responses across engine
// replicas, keyed by a hash of (model, prompt).
type ResponseCache struct {
	redis      *redis.Client
	defaultTTL time.Duration
}

// NewResponseCache connects to redisURL and returns a ResponseCache with
// the given default TTL for entries set without an explicit one.
func NewResponseCache(redisURL string, defaultTTL time.Duration) (*ResponseCache, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	return &ResponseCache{redis: redis.NewClient(opts), defaultTTL: defaultTTL}, nil
}

// ResponseKey derives the cache key for a (model, prompt) pair.
func ResponseKey(model, prompt string) string {
	h := sha256.Sum256([]byte(model + "::" + prompt))
	return "gateway:response:" + hex.EncodeToString(h[:8])
}

// Get returns the cached vendor response body and token count for
// (model, prompt), or ok=false on a miss or expired entry.
func (c *ResponseCache) Get(ctx context.Context, model, prompt string) (body map[string]any, tokensUsed int, ok bool, err error) {
	key := ResponseKey(model, prompt)

	val, err := c.redis.Get(ctx, key).Result()
	if err == redis.Nil {
		return nil, 0, false, nil
	}
	if err != nil {
		return nil, 0, false, fmt.Errorf("get response cache: %w", err)
	}

	var cached cachedResponse
	if err := json.Unmarshal([]byte(val), &cached); err != nil {
		c.redis.Del(ctx, key)
		return nil, 0, false, nil
	}
	if time.Now().After(cached.ExpiresAt) {
		c.redis.Del(ctx, key)
		return nil, 0, false, nil
	}

	return cached.Body, cached.TokensUsed, true, nil
}

// Set caches a vendor response body for (model, prompt). ttl of zero uses
// the cache's default TTL.
func (c *ResponseCache) Set(ctx context.Context, model, prompt string, body map[string]any, tokensUsed int, ttl time.Duration) error {
	if ttl == 0 {
		ttl = c.defaultTTL
	}

	cached := cachedResponse{
		Body: body, TokensUsed: tokensUsed,
		CachedAt: time.Now(), ExpiresAt: time.Now().Add(ttl),
	}
	raw, err := json.Marshal(cached)
	if err != nil {
		return fmt.Errorf("marshal response cache entry: %w", err)
	}

	return c.redis.Set(ctx, ResponseKey(model, prompt), raw, ttl).Err()
}

// Close releases the underlying Redis connection pool.
func (c *ResponseCache) Close() error {
	return c.redis.Close()
}

// sessionResultEntry is a cached assessment result backed by a previously
// serialized value.
type sessionResultEntry struct {
	Data      []byte
	ExpiresAt time.Time
}

// SessionResultCache two-tiers an in-process map in front of a go-redis
// v8 client, mirroring the teacher's ToolResultCache shape: memory first,
// falling through to Redis and repopulating memory on a remote hit. Kept
// on the legacy v8 client (rather than ResponseCache's v9) so both
// generations of the Redis client get exercised, the way the teacher's
// own dependency set carries both.
type SessionResultCache struct {
	redis      *redisv8.Client
	defaultTTL time.Duration

	mu     sync.RWMutex
	memory map[string]sessionResultEntry
}

// NewSessionResultCache builds a SessionResultCache against a go-redis v8
// client at redisAddr.
func NewSessionResultCache(redisAddr string, defaultTTL time.Duration) *SessionResultCache {
	return &SessionResultCache{
		redis:      redisv8.NewClient(&redisv8.Options{Addr: redisAddr}),
		defaultTTL: defaultTTL,
		memory:     make(map[string]sessionResultEntry),
	}
}

func sessionKey(sessionID string) string {
	return "psp:session:" + sessionID
}

// Get decodes the cached value for sessionID into out, returning
// ok=false on a miss.
func (c *SessionResultCache) Get(ctx context.Context, sessionID string, out any) (bool, error) {
	key := sessionKey(sessionID)

	c.mu.RLock()
	if entry, found := c.memory[key]; found && time.Now().Before(entry.ExpiresAt) {
		c.mu.RUnlock()
		return true, json.Unmarshal(entry.Data, out)
	}
	c.mu.RUnlock()

	val, err := c.redis.Get(ctx, key).Bytes()
	if err == redisv8.Nil {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("get session cache: %w", err)
	}

	c.mu.Lock()
	c.memory[key] = sessionResultEntry{Data: val, ExpiresAt: time.Now().Add(c.defaultTTL)}
	c.mu.Unlock()

	return true, json.Unmarshal(val, out)
}

// Set caches value under sessionID in both tiers. ttl of zero uses the
// cache's default TTL.
func (c *SessionResultCache) Set(ctx context.Context, sessionID string, value any, ttl time.Duration) error {
	if ttl == 0 {
		ttl = c.defaultTTL
	}
	key := sessionKey(sessionID)

	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal session cache entry: %w", err)
	}

	c.mu.Lock()
	c.memory[key] = sessionResultEntry{Data: raw, ExpiresAt: time.Now().Add(ttl)}
	c.mu.Unlock()

	return c.redis.Set(ctx, key, raw, ttl).Err()
}

// Close releases the underlying Redis connection pool.
func (c *SessionResultCache) Close() error {
	return c.redis.Close()
}

package travel

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	redis "github.com/redis/go-redis/v9"

	"dispatchcore/internal/model"
)

// DefaultTTL is how long a travel-time result stays valid.
const DefaultTTL = 24 * time.Hour

// memoryStoreLimit triggers a prune pass on the in-process store.
const memoryStoreLimit = 1000

// Store is a keyed travel-time store with TTL support. Implementations must
// be safe for concurrent use. A miss and a backend error look the same to
// the caller: both return ok=false.
type Store interface {
	Get(ctx context.Context, key string) (model.TravelTimeResult, bool)
	Set(ctx context.Context, key string, res model.TravelTimeResult, ttl time.Duration)
}

// CacheKey derives a deterministic fixed-length key from the request.
// Coordinates are rounded to 4 decimal places so nearby points share an
// entry; the departure time contributes its hour bucket only.
func CacheKey(req model.TravelTimeRequest) string {
	s := fmt.Sprintf("%.4f|%.4f|%.4f|%.4f|%s",
		req.From.Lat, req.From.Lng, req.To.Lat, req.To.Lng, req.Mode)
	if req.DepartureTime != nil {
		s += "|" + req.DepartureTime.UTC().Format("2006010215")
	}
	sum := sha1.Sum([]byte(s))
	return "travel:" + hex.EncodeToString(sum[:])
}

// MemoryStore is the in-process fallback store: a mutex-guarded map that
// prunes expired entries once it grows past memoryStoreLimit.
type MemoryStore struct {
	mu sync.Mutex
	m  map[string]memoryEntry
}

type memoryEntry struct {
	res    model.TravelTimeResult
	expiry time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{m: map[string]memoryEntry{}}
}

func (s *MemoryStore) Get(_ context.Context, key string) (model.TravelTimeResult, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.m[key]
	if !ok {
		return model.TravelTimeResult{}, false
	}
	if time.Now().After(e.expiry) {
		delete(s.m, key)
		return model.TravelTimeResult{}, false
	}
	return e.res, true
}

func (s *MemoryStore) Set(_ context.Context, key string, res model.TravelTimeResult, ttl time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.m[key] = memoryEntry{res: res, expiry: time.Now().Add(ttl)}
	if len(s.m) > memoryStoreLimit {
		now := time.Now()
		for k, e := range s.m {
			if now.After(e.expiry) {
				delete(s.m, k)
			}
		}
	}
}

// Len reports the current entry count.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.m)
}

// RedisStore keeps travel-time results in Redis with per-key TTL. Backend
// errors are logged and treated as misses; losing the cache only costs
// recomputation.
type RedisStore struct {
	rdb *redis.Client
}

func NewRedisStore(rdb *redis.Client) *RedisStore {
	return &RedisStore{rdb: rdb}
}

// NewRedisStoreFromURL connects using a REDIS_URL-style address and verifies
// the connection.
func NewRedisStoreFromURL(ctx context.Context, url string) (*RedisStore, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	rdb := redis.NewClient(opt)
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &RedisStore{rdb: rdb}, nil
}

func (s *RedisStore) Get(ctx context.Context, key string) (model.TravelTimeResult, bool) {
	data, err := s.rdb.Get(ctx, key).Bytes()
	if err != nil {
		if err != redis.Nil {
			log.Printf("travel: redis get failed: %v", err)
		}
		return model.TravelTimeResult{}, false
	}
	var res model.TravelTimeResult
	if err := json.Unmarshal(data, &res); err != nil {
		log.Printf("travel: redis entry decode failed: %v", err)
		return model.TravelTimeResult{}, false
	}
	return res, true
}

func (s *RedisStore) Set(ctx context.Context, key string, res model.TravelTimeResult, ttl time.Duration) {
	data, err := json.Marshal(res)
	if err != nil {
		return
	}
	if err := s.rdb.Set(ctx, key, data, ttl).Err(); err != nil {
		log.Printf("travel: redis set failed: %v", err)
	}
}

// Cache wraps a Store with the configured TTL and hit/miss accounting.
type Cache struct {
	store Store
	ttl   time.Duration

	mu     sync.Mutex
	hits   int64
	misses int64
}

func NewCache(store Store, ttl time.Duration) *Cache {
	if store == nil {
		store = NewMemoryStore()
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Cache{store: store, ttl: ttl}
}

// Get returns a cached result with the cached flag set.
func (c *Cache) Get(ctx context.Context, req model.TravelTimeRequest) (model.TravelTimeResult, bool) {
	res, ok := c.store.Get(ctx, CacheKey(req))
	c.mu.Lock()
	if ok {
		c.hits++
	} else {
		c.misses++
	}
	c.mu.Unlock()
	if !ok {
		return model.TravelTimeResult{}, false
	}
	res.Cached = true
	return res, true
}

func (c *Cache) Set(ctx context.Context, req model.TravelTimeRequest, res model.TravelTimeResult) {
	res.Cached = false
	c.store.Set(ctx, CacheKey(req), res, c.ttl)
}

// Stats reports hit/miss totals.
func (c *Cache) Stats() map[string]int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return map[string]int64{"hits": c.hits, "misses": c.misses}
}

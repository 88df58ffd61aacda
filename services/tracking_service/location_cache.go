package tracking_service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/joy095/dispatch/utils/geo"
)

// LocationTTL is how long a cached position stays valid.
const LocationTTL = 5 * time.Minute

// CachedLocation is the latest ping of a professional.
type CachedLocation struct {
	ProfessionalID uuid.UUID  `json:"professionalId"`
	Point          geo.Point  `json:"point"`
	Accuracy       float64    `json:"accuracy,omitempty"`
	Heading        float64    `json:"heading,omitempty"`
	Speed          float64    `json:"speed,omitempty"`
	Timestamp      time.Time  `json:"timestamp"`
	BookingID      *uuid.UUID `json:"bookingId,omitempty"`
}

// LocationCache holds short-lived positions. Get returns nil, nil on a miss.
type LocationCache interface {
	Put(ctx context.Context, loc CachedLocation) error
	Get(ctx context.Context, professionalID uuid.UUID) (*CachedLocation, error)
	Delete(ctx context.Context, professionalID uuid.UUID) error
}

type redisKV interface {
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Get(ctx context.Context, key string) *redis.StringCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// RedisCache stores positions under "location:<professionalId>".
type RedisCache struct {
	client redisKV
	ttl    time.Duration
}

func NewRedisCache(client *redis.Client, ttl time.Duration) *RedisCache {
	if ttl <= 0 {
		ttl = LocationTTL
	}
	return &RedisCache{client: client, ttl: ttl}
}

func cacheKey(id uuid.UUID) string { return "location:" + id.String() }

func (c *RedisCache) Put(ctx context.Context, loc CachedLocation) error {
	data, err := json.Marshal(loc)
	if err != nil {
		return fmt.Errorf("marshal location: %w", err)
	}
	return c.client.Set(ctx, cacheKey(loc.ProfessionalID), data, c.ttl).Err()
}

func (c *RedisCache) Get(ctx context.Context, professionalID uuid.UUID) (*CachedLocation, error) {
	data, err := c.client.Get(ctx, cacheKey(professionalID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var loc CachedLocation
	if err := json.Unmarshal(data, &loc); err != nil {
		return nil, fmt.Errorf("decode cached location: %w", err)
	}
	return &loc, nil
}

func (c *RedisCache) Delete(ctx context.Context, professionalID uuid.UUID) error {
	return c.client.Del(ctx, cacheKey(professionalID)).Err()
}

// MemoryCache is the in-process LocationCache with lazy and swept expiry.
type MemoryCache struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[uuid.UUID]memEntry
	now     func() time.Time
}

type memEntry struct {
	loc     CachedLocation
	expires time.Time
}

func NewMemoryCache(ttl time.Duration) *MemoryCache {
	if ttl <= 0 {
		ttl = LocationTTL
	}
	return &MemoryCache{ttl: ttl, entries: make(map[uuid.UUID]memEntry), now: time.Now}
}

func (c *MemoryCache) Put(_ context.Context, loc CachedLocation) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[loc.ProfessionalID] = memEntry{loc: loc, expires: c.now().Add(c.ttl)}
	return nil
}

func (c *MemoryCache) Get(_ context.Context, professionalID uuid.UUID) (*CachedLocation, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[professionalID]
	if !ok {
		return nil, nil
	}
	if !e.expires.After(c.now()) {
		delete(c.entries, professionalID)
		return nil, nil
	}
	loc := e.loc
	return &loc, nil
}

func (c *MemoryCache) Delete(_ context.Context, professionalID uuid.UUID) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, professionalID)
	return nil
}

// Sweep drops expired entries.
func (c *MemoryCache) Sweep() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	n := 0
	for id, e := range c.entries {
		if !e.expires.After(now) {
			delete(c.entries, id)
			n++
		}
	}
	return n
}

// Run sweeps every interval until ctx is done.
func (c *MemoryCache) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.Sweep()
		}
	}
}

// Package cache provides the process-local read-through cache used by the
// services to memoize list and get results.
//
// The store is a sharded github.com/viccon/sturdyc client. Every value is
// wrapped with its own expiry so callers can pick a TTL per entry; expired
// entries are evicted lazily by the read that finds them and by a periodic
// full sweep. Writers invalidate every cached variation of a resource with
// DeleteByPrefix(Prefix(resource)).
//
// The cache is best effort. A nil *Cache is a valid cache that never hits,
// and a failure inside the store is recovered and reported as a miss, so
// callers always fall back to the resource store.
package cache

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/viccon/sturdyc"
)

// Config holds the cache sizing and expiry settings.
type Config struct {
	// Capacity is the maximum number of entries across all shards.
	Capacity int
	// NumShards splits the key space for concurrent access.
	NumShards int
	// EvictionPercentage is the share of a full shard evicted to make room.
	EvictionPercentage int
	// DefaultTTL applies when Set is called with ttl <= 0.
	DefaultTTL time.Duration
	// MaxTTL caps every entry; it is also the store-wide TTL.
	MaxTTL time.Duration
	// SweepInterval is how often Start removes expired entries. Zero disables
	// the janitor; expired entries are then only evicted on read.
	SweepInterval time.Duration
}

// DefaultConfig returns settings suited to a single API process.
func DefaultConfig() Config {
	return Config{
		Capacity:           10000,
		NumShards:          64,
		EvictionPercentage: 10,
		DefaultTTL:         5 * time.Minute,
		MaxTTL:             time.Hour,
		SweepInterval:      time.Minute,
	}
}

// Validate checks the configuration values.
func (c Config) Validate() error {
	switch {
	case c.Capacity <= 0:
		return &ConfigError{Field: "Capacity", Message: "must be greater than 0"}
	case c.NumShards <= 0:
		return &ConfigError{Field: "NumShards", Message: "must be greater than 0"}
	case c.EvictionPercentage < 1 || c.EvictionPercentage > 100:
		return &ConfigError{Field: "EvictionPercentage", Message: "must be between 1 and 100"}
	case c.DefaultTTL <= 0:
		return &ConfigError{Field: "DefaultTTL", Message: "must be greater than 0"}
	case c.MaxTTL < c.DefaultTTL:
		return &ConfigError{Field: "MaxTTL", Message: "must be >= DefaultTTL"}
	case c.SweepInterval < 0:
		return &ConfigError{Field: "SweepInterval", Message: "must be non-negative"}
	}
	return nil
}

// ConfigError reports an invalid configuration field.
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return "cache config error in field " + e.Field + ": " + e.Message
}

type entry struct {
	value     any
	expiresAt time.Time
}

// Cache is an in-memory key/value store with per-entry TTL.
// All methods are safe for concurrent use and safe on a nil receiver.
type Cache struct {
	client *sturdyc.Client[entry]
	cfg    Config
	now    func() time.Time

	stopOnce sync.Once
	stop     chan struct{}
	wg       sync.WaitGroup
}

// New validates cfg and builds an empty cache.
func New(cfg Config) (*Cache, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	var opts []sturdyc.Option
	if cfg.SweepInterval > 0 {
		opts = append(opts, sturdyc.WithEvictionInterval(cfg.SweepInterval))
	}
	return &Cache{
		client: sturdyc.New[entry](cfg.Capacity, cfg.NumShards, cfg.MaxTTL, cfg.EvictionPercentage, opts...),
		cfg:    cfg,
		now:    time.Now,
		stop:   make(chan struct{}),
	}, nil
}

// DefaultTTL returns the TTL used when Set receives ttl <= 0.
func (c *Cache) DefaultTTL() time.Duration {
	if c == nil {
		return 0
	}
	return c.cfg.DefaultTTL
}

// Get returns the value stored under key. ok is false when the key is absent
// or expired; an expired entry is removed by the call that finds it.
func (c *Cache) Get(key string) (value any, ok bool) {
	if c == nil {
		return nil, false
	}
	resource := resourceOf(key)
	defer func() {
		if r := recover(); r != nil {
			log.Warn().Interface("panic", r).Str("key", key).Msg("cache get failed; treating as miss")
			value, ok = nil, false
			cacheMisses.WithLabelValues(resource).Inc()
		}
	}()

	e, found := c.client.Get(key)
	if !found {
		cacheMisses.WithLabelValues(resource).Inc()
		return nil, false
	}
	if !c.now().Before(e.expiresAt) {
		c.client.Delete(key)
		cacheEvictions.WithLabelValues(resource).Inc()
		cacheMisses.WithLabelValues(resource).Inc()
		return nil, false
	}
	cacheHits.WithLabelValues(resource).Inc()
	return e.value, true
}

// Set stores value under key for ttl, replacing any previous entry.
// ttl <= 0 uses DefaultTTL; ttl above MaxTTL is capped.
func (c *Cache) Set(key string, value any, ttl time.Duration) {
	if c == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			log.Warn().Interface("panic", r).Str("key", key).Msg("cache set failed; entry dropped")
		}
	}()

	if ttl <= 0 {
		ttl = c.cfg.DefaultTTL
	}
	if ttl > c.cfg.MaxTTL {
		ttl = c.cfg.MaxTTL
	}
	c.client.Set(key, entry{value: value, expiresAt: c.now().Add(ttl)})
}

// Delete removes a single key.
func (c *Cache) Delete(key string) {
	if c == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			log.Warn().Interface("panic", r).Str("key", key).Msg("cache delete failed")
		}
	}()

	if _, found := c.client.Get(key); found {
		cacheEvictions.WithLabelValues(resourceOf(key)).Inc()
	}
	c.client.Delete(key)
}

// DeleteByPrefix removes every key starting with prefix and returns how many
// were removed. It runs synchronously so a writer can rely on the eviction
// being complete when it returns.
func (c *Cache) DeleteByPrefix(prefix string) (n int) {
	if c == nil {
		return 0
	}
	defer func() {
		if r := recover(); r != nil {
			log.Warn().Interface("panic", r).Str("prefix", prefix).Msg("cache prefix eviction failed")
		}
	}()

	for _, key := range c.client.ScanKeys() {
		if strings.HasPrefix(key, prefix) {
			c.client.Delete(key)
			cacheEvictions.WithLabelValues(resourceOf(key)).Inc()
			n++
		}
	}
	return n
}

// Sweep removes every expired entry and returns how many were removed.
func (c *Cache) Sweep() (n int) {
	if c == nil {
		return 0
	}
	defer func() {
		if r := recover(); r != nil {
			log.Warn().Interface("panic", r).Msg("cache sweep failed")
		}
	}()

	now := c.now()
	for _, key := range c.client.ScanKeys() {
		e, found := c.client.Get(key)
		if found && now.Before(e.expiresAt) {
			continue
		}
		c.client.Delete(key)
		cacheEvictions.WithLabelValues(resourceOf(key)).Inc()
		n++
	}
	return n
}

// Len reports the number of stored entries, expired ones included.
func (c *Cache) Len() int {
	if c == nil {
		return 0
	}
	return c.client.Size()
}

// Start runs the sweep janitor until ctx is done or Close is called.
// It is a no-op when SweepInterval is zero.
func (c *Cache) Start(ctx context.Context) {
	if c == nil || c.cfg.SweepInterval <= 0 {
		return
	}
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		t := time.NewTicker(c.cfg.SweepInterval)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-c.stop:
				return
			case <-t.C:
				if n := c.Sweep(); n > 0 {
					log.Debug().Int("evicted", n).Msg("cache sweep")
				}
			}
		}
	}()
}

// Close stops the janitor and drops every entry. Safe to call more than once.
func (c *Cache) Close() {
	if c == nil {
		return
	}
	c.stopOnce.Do(func() {
		close(c.stop)
		c.wg.Wait()
		c.DeleteByPrefix("")
	})
}

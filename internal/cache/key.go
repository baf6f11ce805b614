package cache

import (
	"context"
	"encoding/json"
	"strings"
	"time"
)

// Key builds "<resource>:<op>:<params>" where params is the JSON object of
// the non-empty parameters. encoding/json writes map keys in sorted order, so
// two requests carrying the same parameters in a different order share a key.
func Key(resource, op string, params map[string]string) string {
	kept := make(map[string]string, len(params))
	for k, v := range params {
		if strings.TrimSpace(v) == "" {
			continue
		}
		kept[k] = v
	}
	b, err := json.Marshal(kept)
	if err != nil {
		// map[string]string always marshals
		b = []byte("{}")
	}
	return resource + ":" + op + ":" + string(b)
}

// Prefix returns the prefix shared by every key of resource.
func Prefix(resource string) string { return resource + ":" }

// resourceOf extracts the metrics label from a key.
func resourceOf(key string) string {
	if i := strings.IndexByte(key, ':'); i > 0 {
		return key[:i]
	}
	return "unknown"
}

// GetOrLoad returns the cached value for key, or calls load and caches its
// result for ttl. Load errors are returned and never cached. A cached value
// of another type is treated as a miss.
func GetOrLoad[T any](ctx context.Context, c *Cache, key string, ttl time.Duration, load func(context.Context) (T, error)) (T, error) {
	if v, ok := c.Get(key); ok {
		if typed, ok := v.(T); ok {
			return typed, nil
		}
	}
	v, err := load(ctx)
	if err != nil {
		var zero T
		return zero, err
	}
	c.Set(key, v, ttl)
	return v, nil
}

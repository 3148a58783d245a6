package redisad

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"hotel_proxy/internal/adapters/observability"
)

// entry is the stored shape of every value. Nothing expires; lastUpdated only
// records when the value was last written.
type entry struct {
	Data        json.RawMessage `json:"data"`
	LastUpdated time.Time       `json:"lastUpdated"`
}

type Cache struct {
	c   *redis.Client
	ns  string
	now func() time.Time
}

func New(addr, pass string, db int, ns string) *Cache {
	return NewWithClient(redis.NewClient(&redis.Options{Addr: addr, Password: pass, DB: db}), ns)
}

func NewWithClient(c *redis.Client, ns string) *Cache {
	return &Cache{c: c, ns: ns, now: time.Now}
}

func (r *Cache) Ping(ctx context.Context) error { return r.c.Ping(ctx).Err() }

func (r *Cache) Close() error { return r.c.Close() }

func (r *Cache) key(k string) string {
	if r.ns == "" {
		return k
	}
	return r.ns + ":" + k
}

func (r *Cache) Get(ctx context.Context, key string, dst any) (bool, error) {
	v, err := r.c.Get(ctx, r.key(key)).Bytes()
	if err == redis.Nil {
		observability.ObserveCache("redis", "miss")
		return false, nil
	}
	if err != nil {
		return false, err
	}
	var e entry
	if err := json.Unmarshal(v, &e); err != nil {
		return false, fmt.Errorf("decode %s: %w", key, err)
	}
	observability.ObserveCache("redis", "hit")
	return true, json.Unmarshal(e.Data, dst)
}

// MGet reads many keys in one round trip. Missing or undecodable keys are
// left out of the result.
func (r *Cache) MGet(ctx context.Context, keys []string) (map[string]json.RawMessage, error) {
	out := make(map[string]json.RawMessage, len(keys))
	if len(keys) == 0 {
		return out, nil
	}
	full := make([]string, len(keys))
	for i, k := range keys {
		full[i] = r.key(k)
	}
	vals, err := r.c.MGet(ctx, full...).Result()
	if err != nil {
		return nil, err
	}
	for i, v := range vals {
		s, ok := v.(string)
		if !ok {
			observability.ObserveCache("redis", "miss")
			continue
		}
		var e entry
		if err := json.Unmarshal([]byte(s), &e); err != nil || len(e.Data) == 0 {
			observability.ObserveCache("redis", "miss")
			continue
		}
		observability.ObserveCache("redis", "hit")
		out[keys[i]] = e.Data
	}
	return out, nil
}

func (r *Cache) Set(ctx context.Context, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	b, err := json.Marshal(entry{Data: data, LastUpdated: r.now().UTC()})
	if err != nil {
		return err
	}
	observability.ObserveCache("redis", "set")
	return r.c.Set(ctx, r.key(key), b, 0).Err()
}

func (r *Cache) Del(ctx context.Context, key string) error {
	observability.ObserveCache("redis", "del")
	return r.c.Del(ctx, r.key(key)).Err()
}

// Flush removes every key under the namespace and reports how many were
// deleted. It walks the keyspace with SCAN so it never blocks the server.
func (r *Cache) Flush(ctx context.Context) (int, error) {
	pattern := r.key("*")
	var cursor uint64
	deleted := 0
	for {
		keys, next, err := r.c.Scan(ctx, cursor, pattern, 500).Result()
		if err != nil {
			return deleted, err
		}
		if len(keys) > 0 {
			n, err := r.c.Del(ctx, keys...).Result()
			if err != nil {
				return deleted, err
			}
			deleted += int(n)
		}
		cursor = next
		if cursor == 0 {
			break
		}
	}
	observability.ObserveCache("redis", "flush")
	return deleted, nil
}

package redisad

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

type card struct {
	Image string `json:"imageUrl"`
}

func newTestCache(t *testing.T, ns string) (*Cache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	c := NewWithClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}), ns)
	t.Cleanup(func() { _ = c.Close() })
	return c, mr
}

func TestCache_SetGetWrapsWithLastUpdated(t *testing.T) {
	c, mr := newTestCache(t, "tbo")
	fixed := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	c.now = func() time.Time { return fixed }
	ctx := context.Background()

	if err := c.Set(ctx, "cardinfo:1", card{Image: "a.jpg"}); err != nil {
		t.Fatalf("set: %v", err)
	}

	raw, err := mr.Get("tbo:cardinfo:1")
	if err != nil {
		t.Fatalf("raw get: %v", err)
	}
	var e entry
	if err := json.Unmarshal([]byte(raw), &e); err != nil {
		t.Fatalf("stored value is not an envelope: %v", err)
	}
	if !e.LastUpdated.Equal(fixed) {
		t.Fatalf("lastUpdated: %v", e.LastUpdated)
	}
	if mr.TTL("tbo:cardinfo:1") != 0 {
		t.Fatalf("entries must not expire")
	}

	var got card
	ok, err := c.Get(ctx, "cardinfo:1", &got)
	if err != nil || !ok || got.Image != "a.jpg" {
		t.Fatalf("get: ok=%v err=%v got=%+v", ok, err, got)
	}

	ok, err = c.Get(ctx, "cardinfo:2", &got)
	if err != nil || ok {
		t.Fatalf("expected miss, ok=%v err=%v", ok, err)
	}
}

func TestCache_MGetReturnsOnlyPresentKeys(t *testing.T) {
	c, mr := newTestCache(t, "tbo")
	ctx := context.Background()
	_ = c.Set(ctx, "cardinfo:1", card{Image: "one"})
	_ = c.Set(ctx, "cardinfo:3", card{Image: "three"})
	_ = mr.Set("tbo:cardinfo:4", "not-json")

	got, err := c.MGet(ctx, []string{"cardinfo:1", "cardinfo:2", "cardinfo:3", "cardinfo:4"})
	if err != nil {
		t.Fatalf("mget: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 hits, got %d: %v", len(got), got)
	}
	var c3 card
	if err := json.Unmarshal(got["cardinfo:3"], &c3); err != nil || c3.Image != "three" {
		t.Fatalf("cardinfo:3 = %s (%v)", got["cardinfo:3"], err)
	}

	empty, err := c.MGet(ctx, nil)
	if err != nil || len(empty) != 0 {
		t.Fatalf("empty mget: %v %v", empty, err)
	}
}

func TestCache_FlushOnlyTouchesNamespace(t *testing.T) {
	c, mr := newTestCache(t, "tbo")
	ctx := context.Background()
	for _, k := range []string{"countries", "cities:IN", "hotels:130443", "cardinfo:1"} {
		if err := c.Set(ctx, k, []string{"x"}); err != nil {
			t.Fatalf("set %s: %v", k, err)
		}
	}
	_ = mr.Set("other:key", "keep")

	n, err := c.Flush(ctx)
	if err != nil {
		t.Fatalf("flush: %v", err)
	}
	if n != 4 {
		t.Fatalf("deleted %d keys, want 4", n)
	}
	if !mr.Exists("other:key") {
		t.Fatalf("flush removed a key outside the namespace")
	}
	if mr.Exists("tbo:countries") {
		t.Fatalf("namespace key survived flush")
	}
}

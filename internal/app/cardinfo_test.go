package app_test

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"hotel_proxy/internal/app"
	"hotel_proxy/internal/domain"
)

func codes(prefix string, n int) []domain.HotelCode {
	out := make([]domain.HotelCode, n)
	for i := range out {
		out[i] = domain.HotelCode(fmt.Sprintf("%s%d", prefix, i))
	}
	return out
}

func inventoryFor(cs []domain.HotelCode) *fakeInventory {
	inv := &fakeInventory{details: map[domain.HotelCode]domain.HotelDetail{}}
	for _, c := range cs {
		inv.details[c] = detail(string(c), 3, 4.2)
	}
	return inv
}

func TestCardInfo_AllCachedMakesNoOracleCalls(t *testing.T) {
	ctx := context.Background()
	cache := newMemCache()
	for _, c := range []domain.HotelCode{"1", "2"} {
		_ = cache.Set(ctx, app.CardInfoKey(c), domain.HotelCardInfo{HotelCode: c, ImageURL: "cached.jpg", Amenities: []string{}})
	}
	inv := &fakeInventory{}
	lim := &countingLimiter{}
	svc := app.NewCardInfoService(inv, cache, nil, lim, 5)

	res, err := svc.Get(ctx, []domain.HotelCode{"1", "2", "1"})
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	if inv.calls() != 0 || lim.waits != 0 {
		t.Fatalf("expected no oracle calls, got %d (waits %d)", inv.calls(), lim.waits)
	}
	if res.Source != app.SourceCache || res.CachedCount != 2 || res.FetchedCount != 0 || len(res.HotelInfo) != 2 {
		t.Fatalf("unexpected result: %+v", res)
	}
}

func TestCardInfo_FailedBatchDoesNotSinkOthers(t *testing.T) {
	all := codes("c", 12)
	inv := inventoryFor(all)
	inv.failCodes = map[domain.HotelCode]bool{"c7": true}
	cache := newMemCache()

	var mu sync.Mutex
	written := map[string]bool{}
	w := app.NewWriteBehind(cache, 64, 2, app.WithWriteHook(func(key string, err error) {
		mu.Lock()
		written[key] = err == nil
		mu.Unlock()
	}))
	defer w.Close()

	lim := &countingLimiter{}
	svc := app.NewCardInfoService(inv, cache, w, lim, 5)
	res, err := svc.Get(context.Background(), all)
	if err != nil {
		t.Fatalf("err: %v", err)
	}

	if inv.calls() != 3 || lim.waits != 3 {
		t.Fatalf("want 3 batches, got %d calls and %d waits", inv.calls(), lim.waits)
	}
	if res.FetchedCount != 7 || len(res.HotelInfo) != 7 || res.Source != app.SourceAPI {
		t.Fatalf("want 7 fetched from the two good batches, got %+v", res)
	}
	for _, c := range []domain.HotelCode{"c5", "c6", "c7", "c8", "c9"} {
		if _, ok := res.HotelInfo[c]; ok {
			t.Fatalf("%s belongs to the failed batch", c)
		}
	}

	w.Wait()
	mu.Lock()
	defer mu.Unlock()
	if len(written) != 7 {
		t.Fatalf("want 7 background writes, got %d", len(written))
	}
	if !cache.has(app.CardInfoKey("c11")) {
		t.Fatalf("fetched entry not cached")
	}
}

func TestCardInfo_MixedSourceAndMapping(t *testing.T) {
	ctx := context.Background()
	cache := newMemCache()
	_ = cache.Set(ctx, app.CardInfoKey("old"), domain.HotelCardInfo{HotelCode: "old", Amenities: []string{}})

	inv := &fakeInventory{details: map[domain.HotelCode]domain.HotelDetail{
		"new": detail("new", 14, 4.2),
	}}
	w := app.NewWriteBehind(cache, 8, 1)
	defer w.Close()
	svc := app.NewCardInfoService(inv, cache, w, &countingLimiter{}, 5)

	res, err := svc.Get(ctx, []domain.HotelCode{"old", "new"})
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	if res.Source != app.SourceMixed || res.CachedCount != 1 || res.FetchedCount != 1 {
		t.Fatalf("unexpected counts: %+v", res)
	}
	if len(inv.detailCalls) != 1 || len(inv.detailCalls[0]) != 1 || inv.detailCalls[0][0] != "new" {
		t.Fatalf("only the missing code should be fetched: %v", inv.detailCalls)
	}

	ci := res.HotelInfo["new"]
	if len(ci.Amenities) != domain.MaxAmenities {
		t.Fatalf("amenities should be capped at %d, got %d", domain.MaxAmenities, len(ci.Amenities))
	}
	if ci.ImageURL != "https://img/new/1.jpg" {
		t.Fatalf("first image expected, got %q", ci.ImageURL)
	}
	if ci.Rating == nil || *ci.Rating != 4.2 || ci.RatingText == nil || *ci.RatingText != "Very Good" {
		t.Fatalf("rating mapping: %+v", ci)
	}
	if ci.Reviews == nil || *ci.Reviews != 120 {
		t.Fatalf("reviews mapping: %+v", ci.Reviews)
	}
	if ci.LastUpdated.IsZero() {
		t.Fatalf("lastUpdated not stamped")
	}

	w.Wait()
	var stored domain.HotelCardInfo
	if ok, _ := cache.Get(ctx, app.CardInfoKey("new"), &stored); !ok || stored.HotelCode != "new" {
		t.Fatalf("card info not written back: %+v", stored)
	}
}

func TestCardInfo_NoRatingHasNoText(t *testing.T) {
	inv := &fakeInventory{details: map[domain.HotelCode]domain.HotelDetail{"9": detail("9", 0, 0)}}
	svc := app.NewCardInfoService(inv, newMemCache(), nil, &countingLimiter{}, 5)
	res, err := svc.Get(context.Background(), []domain.HotelCode{"9"})
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	ci := res.HotelInfo["9"]
	if ci.Rating != nil || ci.RatingText != nil {
		t.Fatalf("no rating expected: %+v", ci)
	}
	if ci.Amenities == nil {
		t.Fatalf("amenities should be an empty list")
	}
}

func TestCardInfo_CancelledContextReturnsCollected(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	inv := inventoryFor(codes("z", 3))
	svc := app.NewCardInfoService(inv, newMemCache(), nil, &countingLimiter{}, 5)
	res, err := svc.Get(ctx, codes("z", 3))
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	if inv.calls() != 0 || len(res.HotelInfo) != 0 {
		t.Fatalf("no batches should run after cancellation: %+v", res)
	}
}

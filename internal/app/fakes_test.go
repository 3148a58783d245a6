package app_test

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"

	"hotel_proxy/internal/domain"
)

// ---- cache ----

type memCache struct {
	mu    sync.Mutex
	store map[string]json.RawMessage
	sets  int
}

func newMemCache() *memCache { return &memCache{store: map[string]json.RawMessage{}} }

func (c *memCache) Get(ctx context.Context, key string, dst any) (bool, error) {
	c.mu.Lock()
	raw, ok := c.store[key]
	c.mu.Unlock()
	if !ok {
		return false, nil
	}
	return true, json.Unmarshal(raw, dst)
}

func (c *memCache) MGet(ctx context.Context, keys []string) (map[string]json.RawMessage, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := map[string]json.RawMessage{}
	for _, k := range keys {
		if v, ok := c.store[k]; ok {
			out[k] = v
		}
	}
	return out, nil
}

func (c *memCache) Set(ctx context.Context, key string, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.store[key] = b
	c.sets++
	c.mu.Unlock()
	return nil
}

func (c *memCache) Del(ctx context.Context, key string) error {
	c.mu.Lock()
	delete(c.store, key)
	c.mu.Unlock()
	return nil
}

func (c *memCache) Flush(ctx context.Context) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := len(c.store)
	c.store = map[string]json.RawMessage{}
	return n, nil
}

func (c *memCache) has(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.store[key]
	return ok
}

// ---- inventory ----

type fakeInventory struct {
	mu          sync.Mutex
	countries   []domain.Country
	hotels      map[string][]domain.HotelStub
	details     map[domain.HotelCode]domain.HotelDetail
	failCodes   map[domain.HotelCode]bool
	detailCalls [][]domain.HotelCode
	countryHits int
	search      domain.SearchResponse
	searchErr   error
	searchCalls int
	bookErr     error
	bookResp    json.RawMessage
	bookCalls   []json.RawMessage
	// bookEntered is signalled and bookGate awaited inside Book when set.
	bookEntered chan struct{}
	bookGate    chan struct{}
}

func (f *fakeInventory) Countries(ctx context.Context) ([]domain.Country, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.countryHits++
	return f.countries, nil
}

func (f *fakeInventory) Cities(ctx context.Context, country string) ([]domain.City, error) {
	return nil, nil
}

func (f *fakeInventory) HotelCodes(ctx context.Context, city string) ([]domain.HotelStub, error) {
	return f.hotels[city], nil
}

func (f *fakeInventory) HotelDetails(ctx context.Context, codes []domain.HotelCode, lang string, rooms bool) ([]domain.HotelDetail, error) {
	f.mu.Lock()
	f.detailCalls = append(f.detailCalls, append([]domain.HotelCode(nil), codes...))
	f.mu.Unlock()
	var out []domain.HotelDetail
	for _, c := range codes {
		if f.failCodes[c] {
			return nil, errors.New("connection reset by peer")
		}
		if d, ok := f.details[c]; ok {
			out = append(out, d)
		}
	}
	return out, nil
}

func (f *fakeInventory) Search(ctx context.Context, req domain.SearchRequest) (domain.SearchResponse, error) {
	f.mu.Lock()
	f.searchCalls++
	f.mu.Unlock()
	return f.search, f.searchErr
}

func (f *fakeInventory) PreBook(ctx context.Context, code string) (json.RawMessage, error) {
	return json.RawMessage(`{"Status":{"Code":200}}`), nil
}

func (f *fakeInventory) Book(ctx context.Context, payload json.RawMessage) (json.RawMessage, error) {
	f.mu.Lock()
	f.bookCalls = append(f.bookCalls, payload)
	f.mu.Unlock()
	if f.bookEntered != nil {
		f.bookEntered <- struct{}{}
	}
	if f.bookGate != nil {
		<-f.bookGate
	}
	return f.bookResp, f.bookErr
}

func (f *fakeInventory) books() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.bookCalls)
}

func (f *fakeInventory) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.detailCalls)
}

// detail builds an oracle detail payload the way it arrives after JSON decode.
func detail(code string, facilities int, rating float64) domain.HotelDetail {
	fac := make([]any, facilities)
	for i := range fac {
		fac[i] = "Facility " + strings.Repeat("x", i+1)
	}
	d := domain.HotelDetail{
		"HotelCode":       code,
		"HotelName":       "Hotel " + code,
		"Address":         "1 Main Road",
		"Description":     "About " + code,
		"Images":          []any{"https://img/" + code + "/1.jpg", "https://img/" + code + "/2.jpg"},
		"HotelFacilities": fac,
	}
	if rating > 0 {
		d["TripAdvisorRating"] = rating
		d["TripAdvisorReviewCount"] = float64(120)
	}
	return d
}

// ---- limiter ----

type countingLimiter struct {
	mu    sync.Mutex
	waits int
}

func (l *countingLimiter) Wait(ctx context.Context) error {
	l.mu.Lock()
	l.waits++
	l.mu.Unlock()
	return ctx.Err()
}

// ---- payments ----

type fakeGateway struct {
	valid  bool
	orders int
	last   struct {
		amount   int64
		currency string
		receipt  string
	}
}

func (g *fakeGateway) CreateOrder(ctx context.Context, amount int64, currency, receipt string, notes map[string]string) (domain.Order, error) {
	g.orders++
	g.last.amount, g.last.currency, g.last.receipt = amount, currency, receipt
	return domain.Order{ID: "order_123", Amount: amount, Currency: currency, Receipt: receipt, Status: "created"}, nil
}

func (g *fakeGateway) VerifySignature(orderID, paymentID, signature string) bool { return g.valid }

type fakeStore struct {
	mu       sync.Mutex
	pending  map[string]domain.PendingPayment
	bookings map[string]domain.BookingRecord
	touched  int
}

func newFakeStore() *fakeStore {
	return &fakeStore{pending: map[string]domain.PendingPayment{}, bookings: map[string]domain.BookingRecord{}}
}

func (s *fakeStore) SavePending(ctx context.Context, p domain.PendingPayment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touched++
	if p.State == "" {
		p.State = domain.PendingOpen
	}
	s.pending[p.OrderID] = p
	return nil
}

func (s *fakeStore) ClaimPending(ctx context.Context, id string) (domain.PendingPayment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touched++
	p, ok := s.pending[id]
	if !ok {
		return domain.PendingPayment{}, domain.ErrPendingNotFound
	}
	if p.State == domain.PendingClaimed {
		return domain.PendingPayment{}, domain.ErrBookingInFlight
	}
	p.State = domain.PendingClaimed
	s.pending[id] = p
	return p, nil
}

func (s *fakeStore) ReleasePending(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touched++
	if p, ok := s.pending[id]; ok && p.State == domain.PendingClaimed {
		p.State = domain.PendingOpen
		s.pending[id] = p
	}
	return nil
}

func (s *fakeStore) DeletePending(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touched++
	delete(s.pending, id)
	return nil
}

func (s *fakeStore) SaveBooking(ctx context.Context, b domain.BookingRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touched++
	s.bookings[b.OrderID] = b
	return nil
}

func (s *fakeStore) GetBooking(ctx context.Context, id string) (domain.BookingRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.bookings[id]
	if !ok {
		return domain.BookingRecord{}, domain.ErrNotFound
	}
	return b, nil
}

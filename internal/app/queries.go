package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"hotel_proxy/internal/adapters/observability"
	"hotel_proxy/internal/domain"
	"hotel_proxy/internal/search"
)

// ErrValidation marks requests rejected before any upstream call.
var ErrValidation = errors.New("invalid request")

// CatalogService serves the static catalog through the cache. Nothing cached
// here expires; a miss goes to the oracle and the answer is written behind.
type CatalogService struct {
	inv     domain.Inventory
	cache   domain.Cache
	writer  *WriteBehind
	cards   *CardInfoService
	matcher search.RoomMatcher
	log     zerolog.Logger
}

func NewCatalogService(inv domain.Inventory, c domain.Cache, w *WriteBehind, cards *CardInfoService) *CatalogService {
	return &CatalogService{
		inv:     inv,
		cache:   c,
		writer:  w,
		cards:   cards,
		matcher: search.PrefixMatcher{N: search.DefaultPrefixLen},
		log:     observability.Component("catalog"),
	}
}

// WithMatcher swaps the room matcher used by Rooms.
func (s *CatalogService) WithMatcher(m search.RoomMatcher) *CatalogService {
	s.matcher = m
	return s
}

func detailsKey(code domain.HotelCode, lang string, rooms bool) string {
	return fmt.Sprintf("details:%s:%s:%t", code, lang, rooms)
}

// readThrough returns the cached value under key, or fetches it and schedules
// the write. Empty answers are not cached.
func readThrough[T any](ctx context.Context, s *CatalogService, key string, fetch func(context.Context) (T, error), empty func(T) bool) (T, string, error) {
	var v T
	ok, err := s.cache.Get(ctx, key, &v)
	if err != nil {
		s.log.Warn().Err(err).Str("key", key).Msg("cache read failed")
	}
	if ok {
		return v, SourceCache, nil
	}
	v, err = fetch(ctx)
	if err != nil {
		var zero T
		return zero, "", err
	}
	if !empty(v) && s.writer != nil {
		s.writer.Enqueue(key, v)
	}
	return v, SourceAPI, nil
}

func (s *CatalogService) Countries(ctx context.Context) ([]domain.Country, string, error) {
	return readThrough(ctx, s, "countries", s.inv.Countries,
		func(v []domain.Country) bool { return len(v) == 0 })
}

func (s *CatalogService) Cities(ctx context.Context, countryCode string) ([]domain.City, string, error) {
	countryCode = strings.TrimSpace(countryCode)
	if countryCode == "" {
		return nil, "", fmt.Errorf("%w: countryCode is required", ErrValidation)
	}
	return readThrough(ctx, s, "cities:"+countryCode,
		func(ctx context.Context) ([]domain.City, error) { return s.inv.Cities(ctx, countryCode) },
		func(v []domain.City) bool { return len(v) == 0 })
}

func (s *CatalogService) Hotels(ctx context.Context, cityCode string) ([]domain.HotelStub, string, error) {
	cityCode = strings.TrimSpace(cityCode)
	if cityCode == "" {
		return nil, "", fmt.Errorf("%w: cityCode is required", ErrValidation)
	}
	return readThrough(ctx, s, "hotels:"+cityCode,
		func(ctx context.Context) ([]domain.HotelStub, error) { return s.inv.HotelCodes(ctx, cityCode) },
		func(v []domain.HotelStub) bool { return len(v) == 0 })
}

func (s *CatalogService) HotelDetails(ctx context.Context, code domain.HotelCode, lang string, rooms bool) ([]domain.HotelDetail, string, error) {
	if code == "" {
		return nil, "", fmt.Errorf("%w: hotelCode is required", ErrValidation)
	}
	if lang == "" {
		lang = "en"
	}
	return readThrough(ctx, s, detailsKey(code, lang, rooms),
		func(ctx context.Context) ([]domain.HotelDetail, error) {
			return s.inv.HotelDetails(ctx, []domain.HotelCode{code}, lang, rooms)
		},
		func(v []domain.HotelDetail) bool { return len(v) == 0 })
}

// BasicInfo returns a hotel stub from whatever is already known: a cached
// detail payload, then cached card info, then a fresh detail call.
func (s *CatalogService) BasicInfo(ctx context.Context, code domain.HotelCode) (domain.HotelStub, string, error) {
	if code == "" {
		return domain.HotelStub{}, "", fmt.Errorf("%w: hotelCode is required", ErrValidation)
	}

	var details []domain.HotelDetail
	if ok, _ := s.cache.Get(ctx, detailsKey(code, "en", false), &details); ok && len(details) > 0 {
		return stubFor(code, details[0]), SourceCache, nil
	}
	var ci domain.HotelCardInfo
	if ok, _ := s.cache.Get(ctx, CardInfoKey(code), &ci); ok {
		return domain.HotelStub{
			HotelCode:   code,
			ImageURL:    ci.ImageURL,
			Description: ci.Description,
			Facilities:  ci.Amenities,
		}, SourceCache, nil
	}

	details, src, err := s.HotelDetails(ctx, code, "en", false)
	if err != nil {
		return domain.HotelStub{}, "", err
	}
	if len(details) == 0 {
		return domain.HotelStub{}, "", domain.ErrNotFound
	}
	return stubFor(code, details[0]), src, nil
}

func stubFor(code domain.HotelCode, d domain.HotelDetail) domain.HotelStub {
	st := stubFromDetail(d)
	if st.HotelCode == "" {
		st.HotelCode = code
	}
	if st.ImageURL == "" {
		st.ImageURL = mapCardInfo(d, time.Time{}).ImageURL
	}
	return st
}

// Search proxies a live pricing search. Results are never cached.
func (s *CatalogService) Search(ctx context.Context, req domain.SearchRequest) (domain.SearchResponse, error) {
	if len(req.HotelCodes) == 0 {
		return domain.SearchResponse{}, fmt.Errorf("%w: hotelCodes is required", ErrValidation)
	}
	if req.CheckIn == "" || req.CheckOut == "" {
		return domain.SearchResponse{}, fmt.Errorf("%w: checkIn and checkOut are required", ErrValidation)
	}
	return s.inv.Search(ctx, req)
}

func (s *CatalogService) PreBook(ctx context.Context, bookingCode string) (json.RawMessage, error) {
	if strings.TrimSpace(bookingCode) == "" {
		return nil, fmt.Errorf("%w: bookingCode is required", ErrValidation)
	}
	return s.inv.PreBook(ctx, bookingCode)
}

// Book forwards a booking payload unchanged. Paid bookings go through
// PaymentService.Verify instead.
func (s *CatalogService) Book(ctx context.Context, payload json.RawMessage) (json.RawMessage, error) {
	if len(payload) == 0 || !json.Valid(payload) {
		return nil, fmt.Errorf("%w: booking payload must be JSON", ErrValidation)
	}
	return s.inv.Book(ctx, payload)
}

// CardInfo is the cache-fill lookup for a set of hotels.
func (s *CatalogService) CardInfo(ctx context.Context, codes []domain.HotelCode) (CardInfoResult, error) {
	if len(codes) == 0 {
		return CardInfoResult{}, fmt.Errorf("%w: hotelCodes is required", ErrValidation)
	}
	return s.cards.Get(ctx, codes)
}

func (s *CatalogService) FlushCache(ctx context.Context) (int, error) {
	n, err := s.cache.Flush(ctx)
	if err != nil {
		return 0, err
	}
	s.log.Info().Int("keys", n).Msg("cache flushed")
	return n, nil
}

type RoomsQuery struct {
	HotelCode domain.HotelCode `json:"hotelCode"`
	domain.DateRange
	GuestNationality string           `json:"guestNationality,omitempty"`
	PaxRooms         []domain.PaxRoom `json:"paxRooms,omitempty"`
}

type RoomsResult struct {
	HotelCode      domain.HotelCode    `json:"hotelCode"`
	Currency       string              `json:"currency,omitempty"`
	Rooms          []domain.MergedRoom `json:"rooms"`
	AvailableCount int                 `json:"availableCount"`
	TotalCount     int                 `json:"totalCount"`
}

// Rooms joins the hotel's catalog room types with what is bookable for the
// stay. Catalog data is optional; a failed catalog read still returns the
// live rooms.
func (s *CatalogService) Rooms(ctx context.Context, q RoomsQuery) (RoomsResult, error) {
	if q.HotelCode == "" {
		return RoomsResult{}, fmt.Errorf("%w: hotelCode is required", ErrValidation)
	}
	if q.CheckIn == "" || q.CheckOut == "" {
		return RoomsResult{}, fmt.Errorf("%w: checkIn and checkOut are required", ErrValidation)
	}

	var (
		catalog []domain.CatalogRoom
		resp    domain.SearchResponse
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		details, _, err := s.HotelDetails(gctx, q.HotelCode, "en", true)
		if err != nil {
			s.log.Warn().Err(err).Str("hotel", string(q.HotelCode)).Msg("room catalog unavailable")
			return nil
		}
		if len(details) > 0 {
			catalog = mapCatalogRooms(details[0])
		}
		return nil
	})
	g.Go(func() error {
		var err error
		resp, err = s.inv.Search(gctx, domain.SearchRequest{
			DateRange:          q.DateRange,
			HotelCodes:         []domain.HotelCode{q.HotelCode},
			GuestNationality:   q.GuestNationality,
			NoOfRooms:          len(q.PaxRooms),
			PaxRooms:           q.PaxRooms,
			IsDetailedResponse: true,
		})
		return err
	})
	if err := g.Wait(); err != nil {
		return RoomsResult{}, err
	}

	out := RoomsResult{HotelCode: q.HotelCode}
	var live []domain.LiveRoom
	for _, r := range resp.HotelResult {
		if r.HotelCode == q.HotelCode || len(resp.HotelResult) == 1 {
			live = r.Rooms
			out.Currency = r.Currency
			break
		}
	}
	out.Rooms = search.MergeRooms(catalog, live, s.matcher)
	out.AvailableCount = search.AvailableCount(out.Rooms)
	out.TotalCount = len(out.Rooms)
	return out, nil
}

// SearchBackend adapts the catalog to what a search session needs.
type SearchBackend struct {
	Catalog *CatalogService
}

func (b SearchBackend) CityHotels(ctx context.Context, cityCode string) ([]domain.HotelStub, error) {
	hs, _, err := b.Catalog.Hotels(ctx, cityCode)
	return hs, err
}

func (b SearchBackend) Search(ctx context.Context, req domain.SearchRequest) (domain.SearchResponse, error) {
	return b.Catalog.inv.Search(ctx, req)
}

func (b SearchBackend) CardInfo(ctx context.Context, codes []domain.HotelCode) (map[domain.HotelCode]domain.HotelCardInfo, error) {
	res, err := b.Catalog.cards.Get(ctx, codes)
	if err != nil {
		return nil, err
	}
	return res.HotelInfo, nil
}

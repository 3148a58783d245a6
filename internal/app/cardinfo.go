package app

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"hotel_proxy/internal/adapters/observability"
	"hotel_proxy/internal/domain"
)

const (
	SourceCache = "cache"
	SourceAPI   = "api"
	SourceMixed = "mixed"

	DefaultCardInfoBatch = 5
)

// BatchLimiter paces oracle batches. *rate.Limiter satisfies it.
type BatchLimiter interface {
	Wait(ctx context.Context) error
}

// NewBatchLimiter allows one batch immediately and one more per interval.
func NewBatchLimiter(interval time.Duration) BatchLimiter {
	if interval <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	return rate.NewLimiter(rate.Every(interval), 1)
}

func CardInfoKey(code domain.HotelCode) string { return "cardinfo:" + string(code) }

type CardInfoResult struct {
	HotelInfo    map[domain.HotelCode]domain.HotelCardInfo `json:"hotelInfo"`
	Source       string                                    `json:"source"`
	CachedCount  int                                       `json:"cachedCount"`
	FetchedCount int                                       `json:"fetchedCount"`
}

// CardInfoService answers card-info lookups from cache first and fills the
// gaps from the oracle in small, paced batches.
type CardInfoService struct {
	inv       domain.Inventory
	cache     domain.Cache
	writer    *WriteBehind
	limiter   BatchLimiter
	batchSize int
	now       func() time.Time
	log       zerolog.Logger
}

func NewCardInfoService(inv domain.Inventory, c domain.Cache, w *WriteBehind, lim BatchLimiter, batchSize int) *CardInfoService {
	if lim == nil {
		lim = NewBatchLimiter(100 * time.Millisecond)
	}
	if batchSize <= 0 {
		batchSize = DefaultCardInfoBatch
	}
	return &CardInfoService{
		inv:       inv,
		cache:     c,
		writer:    w,
		limiter:   lim,
		batchSize: batchSize,
		now:       time.Now,
		log:       observability.Component("cardinfo"),
	}
}

// Get returns card info for the given codes. Per-batch oracle failures are
// logged and skipped, so the result may cover fewer codes than requested.
func (s *CardInfoService) Get(ctx context.Context, codes []domain.HotelCode) (CardInfoResult, error) {
	codes = uniqueCodes(codes)
	res := CardInfoResult{HotelInfo: make(map[domain.HotelCode]domain.HotelCardInfo, len(codes))}
	if len(codes) == 0 {
		res.Source = SourceCache
		return res, nil
	}

	missing := s.fromCache(ctx, codes, res.HotelInfo)
	res.CachedCount = len(res.HotelInfo)
	if len(missing) == 0 {
		res.Source = SourceCache
		observability.ObserveCardInfo(res.CachedCount, 0, 0)
		return res, nil
	}

	for start := 0; start < len(missing); start += s.batchSize {
		end := min(start+s.batchSize, len(missing))
		if err := s.limiter.Wait(ctx); err != nil {
			s.log.Warn().Err(err).Int("remaining", len(missing)-start).Msg("card info fetch interrupted")
			break
		}
		batch := missing[start:end]
		fetched, err := s.fetchBatch(ctx, batch)
		observability.ObserveCardInfoBatch(err)
		if err != nil {
			s.log.Error().Err(err).Str("codes", domain.JoinCodes(batch)).Msg("card info batch failed")
			continue
		}
		for code, ci := range fetched {
			res.HotelInfo[code] = ci
			res.FetchedCount++
		}
	}

	if res.CachedCount == 0 {
		res.Source = SourceAPI
	} else {
		res.Source = SourceMixed
	}
	observability.ObserveCardInfo(res.CachedCount, res.FetchedCount, len(codes)-len(res.HotelInfo))
	return res, nil
}

// fromCache fills out with cached entries and returns the codes still needed.
// A cache failure is treated as a full miss.
func (s *CardInfoService) fromCache(ctx context.Context, codes []domain.HotelCode, out map[domain.HotelCode]domain.HotelCardInfo) []domain.HotelCode {
	keys := make([]string, len(codes))
	for i, c := range codes {
		keys[i] = CardInfoKey(c)
	}
	hits, err := s.cache.MGet(ctx, keys)
	if err != nil {
		s.log.Warn().Err(err).Msg("card info cache read failed")
		hits = nil
	}

	var missing []domain.HotelCode
	for i, c := range codes {
		raw, ok := hits[keys[i]]
		if !ok {
			missing = append(missing, c)
			continue
		}
		var ci domain.HotelCardInfo
		if err := json.Unmarshal(raw, &ci); err != nil {
			missing = append(missing, c)
			continue
		}
		if ci.HotelCode == "" {
			ci.HotelCode = c
		}
		out[c] = ci
	}
	return missing
}

func (s *CardInfoService) fetchBatch(ctx context.Context, batch []domain.HotelCode) (map[domain.HotelCode]domain.HotelCardInfo, error) {
	details, err := s.inv.HotelDetails(ctx, batch, "en", false)
	if err != nil {
		return nil, err
	}
	now := s.now()
	out := make(map[domain.HotelCode]domain.HotelCardInfo, len(details))
	for _, d := range details {
		ci := mapCardInfo(d, now)
		if ci.HotelCode == "" && len(batch) == 1 {
			ci.HotelCode = batch[0]
		}
		if ci.HotelCode == "" {
			continue
		}
		out[ci.HotelCode] = ci
		if s.writer != nil {
			s.writer.Enqueue(CardInfoKey(ci.HotelCode), ci)
		}
	}
	return out, nil
}

func uniqueCodes(codes []domain.HotelCode) []domain.HotelCode {
	seen := make(map[domain.HotelCode]struct{}, len(codes))
	out := make([]domain.HotelCode, 0, len(codes))
	for _, c := range codes {
		if c == "" {
			continue
		}
		if _, ok := seen[c]; ok {
			continue
		}
		seen[c] = struct{}{}
		out = append(out, c)
	}
	return out
}

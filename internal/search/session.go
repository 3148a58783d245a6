package search

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"hotel_proxy/internal/domain"
)

// DefaultChunkSize is how many hotel codes go into one pricing search.
const DefaultChunkSize = 100

var (
	ErrLoadInFlight     = errors.New("a page is already loading")
	ErrNoMorePages      = errors.New("no more pages")
	ErrNoActiveSearch   = errors.New("no active search")
	ErrNoHotelsFound    = errors.New("no hotels found")
	ErrStaleGeneration  = errors.New("search was superseded")
	ErrInvalidTarget    = errors.New("exactly one of cityCode or hotelCode is required")
	ErrInvalidDateRange = errors.New("checkIn and checkOut are required")
)

// Outcome names the result of a Start or LoadMore call for metrics:
// ok, stale, rejected or error.
func Outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrStaleGeneration):
		return "stale"
	case errors.Is(err, ErrLoadInFlight),
		errors.Is(err, ErrNoMorePages),
		errors.Is(err, ErrNoActiveSearch):
		return "rejected"
	default:
		return "error"
	}
}

type State string

const (
	StateIdle        State = "idle"
	StateListLoaded  State = "list_loaded"
	StatePageLoading State = "page_loading"
	StatePageLoaded  State = "page_loaded"
	StateExhausted   State = "exhausted"
	StateErrored     State = "errored"
)

// Backend is what a session needs from the rest of the system.
type Backend interface {
	CityHotels(ctx context.Context, cityCode string) ([]domain.HotelStub, error)
	Search(ctx context.Context, req domain.SearchRequest) (domain.SearchResponse, error)
	CardInfo(ctx context.Context, codes []domain.HotelCode) (map[domain.HotelCode]domain.HotelCardInfo, error)
}

// Query starts a search for a whole city or a single hotel.
type Query struct {
	CityCode  string           `json:"cityCode,omitempty"`
	HotelCode domain.HotelCode `json:"hotelCode,omitempty"`
	domain.DateRange
	GuestNationality string           `json:"guestNationality,omitempty"`
	PaxRooms         []domain.PaxRoom `json:"paxRooms,omitempty"`
}

func (q Query) Validate() error {
	if (q.CityCode == "") == (q.HotelCode == "") {
		return ErrInvalidTarget
	}
	if q.CheckIn == "" || q.CheckOut == "" {
		return ErrInvalidDateRange
	}
	return nil
}

// View is a snapshot of a session.
type View struct {
	State       State                `json:"state"`
	Hotels      []domain.MergedHotel `json:"hotels"`
	HasMore     bool                 `json:"hasMore"`
	Page        int                  `json:"page"`
	TotalHotels int                  `json:"totalHotels"`
	Loading     bool                 `json:"loading"`
	Error       string               `json:"error,omitempty"`
}

// Session accumulates priced hotels for one search, one page of hotel codes
// at a time. The lock is never held across backend calls.
type Session struct {
	backend Backend
	chunk   int
	log     zerolog.Logger

	mu      sync.Mutex
	gen     uint64
	query   *Query
	codes   []domain.HotelCode
	stubs   map[domain.HotelCode]domain.HotelStub
	next    int
	hasMore bool
	loading bool
	state   State
	hotels  []domain.MergedHotel
	errMsg  string
	touched time.Time
}

func NewSession(b Backend, chunk int) *Session {
	if chunk <= 0 {
		chunk = DefaultChunkSize
	}
	return &Session{
		backend: b,
		chunk:   chunk,
		state:   StateIdle,
		log:     log.Logger.With().Str("component", "search").Logger(),
		touched: time.Now(),
	}
}

type pageJob struct {
	gen   uint64
	page  int
	query Query
	codes []domain.HotelCode
	stubs map[domain.HotelCode]domain.HotelStub
}

// Start replaces any previous search and loads the first page. A response
// still in flight for the previous search is discarded when it lands.
func (s *Session) Start(ctx context.Context, q Query) error {
	if err := q.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	s.gen++
	gen := s.gen
	s.query = &q
	s.codes = nil
	s.stubs = nil
	s.next = 0
	s.hasMore = false
	s.loading = true
	s.hotels = nil
	s.errMsg = ""
	s.state = StateIdle
	s.touched = time.Now()
	s.mu.Unlock()

	var (
		codes []domain.HotelCode
		stubs map[domain.HotelCode]domain.HotelStub
	)
	if q.CityCode != "" {
		list, err := s.backend.CityHotels(ctx, q.CityCode)
		if err == nil && len(list) == 0 {
			err = ErrNoHotelsFound
		}
		if err != nil {
			return s.fail(gen, err)
		}
		codes = make([]domain.HotelCode, 0, len(list))
		stubs = make(map[domain.HotelCode]domain.HotelStub, len(list))
		for _, h := range list {
			if h.HotelCode == "" {
				continue
			}
			if _, dup := stubs[h.HotelCode]; dup {
				continue
			}
			codes = append(codes, h.HotelCode)
			stubs[h.HotelCode] = h
		}
	} else {
		codes = []domain.HotelCode{q.HotelCode}
	}

	s.mu.Lock()
	if s.gen != gen {
		s.mu.Unlock()
		return ErrStaleGeneration
	}
	s.codes = codes
	s.stubs = stubs
	s.hasMore = len(codes) > s.chunk
	s.state = StateListLoaded
	job := s.jobLocked(gen, 0)
	s.mu.Unlock()

	return s.loadPage(ctx, job)
}

// LoadMore appends the next page. It refuses while another page is loading,
// after the last page, and before any search was started.
func (s *Session) LoadMore(ctx context.Context) error {
	s.mu.Lock()
	s.touched = time.Now()
	switch {
	case s.query == nil:
		s.mu.Unlock()
		return ErrNoActiveSearch
	case s.loading:
		s.mu.Unlock()
		return ErrLoadInFlight
	case !s.hasMore:
		s.mu.Unlock()
		return ErrNoMorePages
	}
	s.loading = true
	job := s.jobLocked(s.gen, s.next)
	s.mu.Unlock()

	return s.loadPage(ctx, job)
}

func (s *Session) jobLocked(gen uint64, page int) pageJob {
	start := page * s.chunk
	end := min(start+s.chunk, len(s.codes))
	codes := make([]domain.HotelCode, end-start)
	copy(codes, s.codes[start:end])
	s.state = StatePageLoading
	return pageJob{gen: gen, page: page, query: *s.query, codes: codes, stubs: s.stubs}
}

func (s *Session) loadPage(ctx context.Context, job pageJob) error {
	resp, err := s.backend.Search(ctx, domain.SearchRequest{
		DateRange:        job.query.DateRange,
		HotelCodes:       job.codes,
		GuestNationality: job.query.GuestNationality,
		NoOfRooms:        len(job.query.PaxRooms),
		PaxRooms:         job.query.PaxRooms,
	})
	if err != nil {
		return s.fail(job.gen, err)
	}

	var bookable []domain.HotelResult
	for _, r := range resp.HotelResult {
		if len(r.Rooms) > 0 {
			bookable = append(bookable, r)
		}
	}

	var cards map[domain.HotelCode]domain.HotelCardInfo
	if len(bookable) > 0 {
		codes := make([]domain.HotelCode, len(bookable))
		for i, r := range bookable {
			codes[i] = r.HotelCode
		}
		cards, err = s.backend.CardInfo(ctx, codes)
		if err != nil {
			// Enrichment is optional; priced hotels are still shown.
			s.log.Warn().Err(err).Int("hotels", len(codes)).Msg("card info enrichment failed")
		}
	}

	merged := make([]domain.MergedHotel, 0, len(bookable))
	for _, r := range bookable {
		var stub *domain.HotelStub
		if st, ok := job.stubs[r.HotelCode]; ok {
			stub = &st
		}
		var card *domain.HotelCardInfo
		if ci, ok := cards[r.HotelCode]; ok {
			card = &ci
		}
		merged = append(merged, MergeHotel(stub, card, r))
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gen != job.gen {
		return ErrStaleGeneration
	}
	if job.page == 0 {
		s.hotels = merged
	} else {
		s.hotels = append(s.hotels, merged...)
	}
	s.next = job.page + 1
	s.hasMore = s.next*s.chunk < len(s.codes)
	s.loading = false
	s.errMsg = ""
	s.touched = time.Now()
	if s.hasMore {
		s.state = StatePageLoaded
	} else {
		s.state = StateExhausted
	}
	return nil
}

// fail records err for the current generation. The page cursor does not move,
// so a later LoadMore retries the same page.
func (s *Session) fail(gen uint64, err error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gen != gen {
		return ErrStaleGeneration
	}
	s.loading = false
	s.state = StateErrored
	s.errMsg = err.Error()
	s.hasMore = s.next*s.chunk < len(s.codes)
	s.log.Warn().Err(err).Int("page", s.next).Msg("search page failed")
	return err
}

func (s *Session) View() View {
	s.mu.Lock()
	defer s.mu.Unlock()
	hotels := make([]domain.MergedHotel, len(s.hotels))
	copy(hotels, s.hotels)
	return View{
		State:       s.state,
		Hotels:      hotels,
		HasMore:     s.hasMore,
		Page:        s.next,
		TotalHotels: len(s.codes),
		Loading:     s.loading,
		Error:       s.errMsg,
	}
}

func (s *Session) lastTouched() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.touched
}

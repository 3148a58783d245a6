// internal/adapters/tbo/client.go
package tbo

import (
	"bytes"
	"compress/gzip"
	"context"
	crand "crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/andybalholm/brotli"
	"golang.org/x/time/rate"

	"hotel_proxy/internal/adapters/observability"
	"hotel_proxy/internal/domain"
)

const (
	statusOK       = 200
	statusNoRecord = 201
)

type Client struct {
	base string
	hc   *http.Client
	user string
	pass string
	rl   *rate.Limiter

	attempts int
}

type Option func(*Client)

// WithAttempts enables retries of catalog reads on 429/5xx and network
// errors. Search, PreBook and Book are never retried. The default is a
// single attempt.
func WithAttempts(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.attempts = n
		}
	}
}

func New(base, user, pass string, rps int, opts ...Option) (*Client, error) {
	if user == "" || pass == "" {
		return nil, fmt.Errorf("TBO credentials are required")
	}
	if rps <= 0 {
		rps = 10
	}
	c := &Client{
		base:     strings.TrimRight(base, "/"),
		hc:       &http.Client{Timeout: 30 * time.Second},
		user:     user,
		pass:     pass,
		rl:       rate.NewLimiter(rate.Limit(rps), rps),
		attempts: 1,
	}
	for _, o := range opts {
		o(c)
	}
	return c, nil
}

// ---- Public API ----

type envelope struct {
	Status domain.Status `json:"Status"`
}

func (c *Client) Countries(ctx context.Context) ([]domain.Country, error) {
	var out struct {
		envelope
		CountryList []domain.Country `json:"CountryList"`
	}
	if err := c.call(ctx, http.MethodGet, "CountryList", nil, &out, true); err != nil {
		return nil, err
	}
	return out.CountryList, c.listStatus("CountryList", out.Status)
}

func (c *Client) Cities(ctx context.Context, countryCode string) ([]domain.City, error) {
	var out struct {
		envelope
		CityList []domain.City `json:"CityList"`
	}
	in := map[string]any{"CountryCode": countryCode}
	if err := c.call(ctx, http.MethodPost, "CityList", in, &out, true); err != nil {
		return nil, err
	}
	return out.CityList, c.listStatus("CityList", out.Status)
}

func (c *Client) HotelCodes(ctx context.Context, cityCode string) ([]domain.HotelStub, error) {
	var out struct {
		envelope
		Hotels []domain.HotelStub `json:"Hotels"`
	}
	in := map[string]any{"CityCode": cityCode, "IsDetailedResponse": "true"}
	if err := c.call(ctx, http.MethodPost, "TBOHotelCodeList", in, &out, true); err != nil {
		return nil, err
	}
	return out.Hotels, c.listStatus("TBOHotelCodeList", out.Status)
}

func (c *Client) HotelDetails(ctx context.Context, codes []domain.HotelCode, language string, roomDetail bool) ([]domain.HotelDetail, error) {
	if language == "" {
		language = "en"
	}
	var out struct {
		envelope
		HotelDetails []domain.HotelDetail `json:"HotelDetails"`
	}
	in := map[string]any{
		"Hotelcodes":           domain.JoinCodes(codes),
		"Language":             language,
		"IsRoomDetailRequired": roomDetail,
	}
	if err := c.call(ctx, http.MethodPost, "Hoteldetails", in, &out, true); err != nil {
		return nil, err
	}
	return out.HotelDetails, c.listStatus("Hoteldetails", out.Status)
}

// Search is the live pricing call. In-band status is not an error here: the
// proxy returns the oracle body as-is and callers read HotelResult.
func (c *Client) Search(ctx context.Context, req domain.SearchRequest) (domain.SearchResponse, error) {
	nat := req.GuestNationality
	if nat == "" {
		nat = "IN"
	}
	rooms := req.NoOfRooms
	if rooms <= 0 {
		rooms = len(req.PaxRooms)
	}
	pax := req.PaxRooms
	if len(pax) == 0 {
		pax = []domain.PaxRoom{{Adults: 2, ChildrenAges: []int{}}}
	}
	in := map[string]any{
		"CheckIn":            req.CheckIn,
		"CheckOut":           req.CheckOut,
		"HotelCodes":         domain.JoinCodes(req.HotelCodes),
		"GuestNationality":   nat,
		"PaxRooms":           pax,
		"ResponseTime":       23.0,
		"IsDetailedResponse": req.IsDetailedResponse,
		"Filters": map[string]any{
			"Refundable": false,
			"NoOfRooms":  rooms,
			"MealType":   "All",
		},
	}
	var raw json.RawMessage
	if err := c.call(ctx, http.MethodPost, "search", in, &raw, false); err != nil {
		return domain.SearchResponse{}, err
	}
	var out domain.SearchResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return domain.SearchResponse{}, fmt.Errorf("decode search: %w", err)
	}
	out.Raw = raw
	return out, nil
}

// PreBook and Book are not idempotent and are never retried. On an in-band
// failure the raw body is returned together with the error.
func (c *Client) PreBook(ctx context.Context, bookingCode string) (json.RawMessage, error) {
	in := map[string]any{"BookingCode": bookingCode, "PaymentMode": "Limit"}
	return c.callRaw(ctx, "PreBook", in)
}

func (c *Client) Book(ctx context.Context, payload json.RawMessage) (json.RawMessage, error) {
	return c.callRaw(ctx, "Book", payload)
}

// ---- Internals ----

var ErrUnauthorized = errors.New("tbo: unauthorized")

func (c *Client) listStatus(endpoint string, st domain.Status) error {
	if st.Code == statusOK || st.Code == statusNoRecord || st.Code == 0 {
		return nil
	}
	return &domain.UpstreamError{Service: "tbo", Endpoint: endpoint, HTTPStatus: http.StatusOK, Code: st.Code, Description: st.Description}
}

func (c *Client) callRaw(ctx context.Context, endpoint string, in any) (json.RawMessage, error) {
	var raw json.RawMessage
	if err := c.call(ctx, http.MethodPost, endpoint, in, &raw, false); err != nil {
		return nil, err
	}
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return raw, fmt.Errorf("decode %s: %w", endpoint, err)
	}
	if env.Status.Code != statusOK {
		return raw, &domain.UpstreamError{
			Service: "tbo", Endpoint: endpoint, HTTPStatus: http.StatusOK,
			Code: env.Status.Code, Description: env.Status.Description, Body: raw,
		}
	}
	return raw, nil
}

// call performs one logical request with client-side rate limiting and JSON
// decode into out. When retry is set and the client allows more than one
// attempt, 429/5xx and network errors are retried with backoff, honoring
// Retry-After.
func (c *Client) call(ctx context.Context, method, endpoint string, in, out any, retry bool) error {
	if err := c.rl.Wait(ctx); err != nil {
		return err
	}

	var body []byte
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode %s: %w", endpoint, err)
		}
		body = b
	}
	url := c.base + "/" + endpoint

	attempts := 1
	if retry {
		attempts = c.attempts
	}
	var lastErr error
	for i := 0; i < attempts; i++ {
		// build a fresh request each attempt
		var rdr io.Reader
		if body != nil {
			rdr = bytes.NewReader(body)
		}
		req, err := http.NewRequestWithContext(ctx, method, url, rdr)
		if err != nil {
			return err
		}
		req.SetBasicAuth(c.user, c.pass)
		req.Header.Set("Accept", "application/json")
		req.Header.Set("Accept-Encoding", "gzip, br")
		req.Header.Set("User-Agent", "hotel-proxy/1.0")
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		start := time.Now()
		resp, err := c.hc.Do(req)
		if err != nil {
			observability.ObserveExternal("tbo", endpoint, 0, time.Since(start))
			if ctx.Err() != nil {
				return ctx.Err()
			}
			lastErr = err
			if i < attempts-1 && sleepCtx(ctx, backoff(i)) {
				continue
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return lastErr
		}
		observability.ObserveExternal("tbo", endpoint, resp.StatusCode, time.Since(start))

		switch resp.StatusCode {
		case http.StatusOK, http.StatusCreated, http.StatusAccepted:
			b, err := readBody(resp)
			resp.Body.Close()
			if err != nil {
				return fmt.Errorf("read %s: %w", endpoint, err)
			}
			if err := json.Unmarshal(b, out); err != nil {
				return fmt.Errorf("decode %s: %w", endpoint, err)
			}
			return nil

		case http.StatusUnauthorized, http.StatusForbidden:
			resp.Body.Close()
			return fmt.Errorf("%w (%d)", ErrUnauthorized, resp.StatusCode)

		case http.StatusTooManyRequests, http.StatusInternalServerError,
			http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
			wait := retryAfter(resp)
			resp.Body.Close()
			if wait == 0 {
				wait = backoff(i)
			}
			lastErr = &domain.UpstreamError{Service: "tbo", Endpoint: endpoint, HTTPStatus: resp.StatusCode, Description: http.StatusText(resp.StatusCode)}
			if i < attempts-1 && sleepCtx(ctx, wait) {
				continue
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return lastErr

		default:
			// read a small error body for diagnostics
			b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
			resp.Body.Close()
			return &domain.UpstreamError{
				Service: "tbo", Endpoint: endpoint, HTTPStatus: resp.StatusCode,
				Description: strings.TrimSpace(string(b)), Body: b,
			}
		}
	}

	return lastErr
}

// readBody decodes gzip or brotli bodies; anything else is read as-is.
func readBody(resp *http.Response) ([]byte, error) {
	switch strings.ToLower(resp.Header.Get("Content-Encoding")) {
	case "gzip":
		zr, err := gzip.NewReader(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("gzip reader: %w", err)
		}
		defer zr.Close()
		return io.ReadAll(zr)
	case "br":
		return io.ReadAll(brotli.NewReader(resp.Body))
	default:
		return io.ReadAll(resp.Body)
	}
}

// sleepCtx waits for d or returns early if ctx is done.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// retryAfter parses Retry-After header (seconds or HTTP-date). Returns 0 if absent/invalid.
func retryAfter(resp *http.Response) time.Duration {
	h := resp.Header.Get("Retry-After")
	if h == "" {
		return 0
	}
	if secs, err := strconv.Atoi(strings.TrimSpace(h)); err == nil && secs >= 0 {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(h); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}

// backoff returns 200ms, 400ms, 800ms... plus up to 50% jitter.
func backoff(i int) time.Duration {
	base := time.Duration(1<<i) * 200 * time.Millisecond
	var b [1]byte
	if _, err := crand.Read(b[:]); err != nil {
		return base
	}
	f := float64(b[0]) / 255.0
	return base + time.Duration(0.5*f*float64(base))
}

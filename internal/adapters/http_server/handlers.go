// internal/adapters/http_server/handlers.go
package httpserver

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"hotel_proxy/internal/adapters/observability"
	"hotel_proxy/internal/adapters/tbo"
	"hotel_proxy/internal/app"
	"hotel_proxy/internal/domain"
	"hotel_proxy/internal/search"
)

const maxBody = 1 << 20

type Handlers struct {
	Catalog  *app.CatalogService
	Payments *app.PaymentService
	Sessions *search.Store
	AdminKey string
	// Checks back /readyz; each is called with a short deadline.
	Checks map[string]func(context.Context) error
}

type problem struct {
	Type   string `json:"type"`
	Title  string `json:"title"`
	Status int    `json:"status"`
	Detail string `json:"detail,omitempty"`
}

func (s *Server) MountHandlers(h *Handlers) {
	s.mux.Get("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200); _, _ = w.Write([]byte("ok")) })
	s.mux.Get("/readyz", h.ready)

	s.mux.Route("/api/hotels", func(r chi.Router) {
		r.Get("/countries", h.countries)
		r.Post("/cities", h.cities)
		r.Post("/hotels", h.hotels)
		r.Post("/hotel-details", h.hotelDetails)
		r.Post("/hotel-basic-info", h.basicInfo)
		r.Post("/card-info", h.cardInfo)
		r.Post("/rooms", h.rooms)
		r.Post("/search", h.search)
		r.Post("/prebook", h.prebook)
		r.Post("/book", h.book)
	})
	s.mux.Route("/api/search/sessions", func(r chi.Router) {
		r.Post("/", h.startSession)
		r.Get("/{id}", h.getSession)
		r.Post("/{id}/more", h.loadMore)
	})
	s.mux.Route("/api/payment", func(r chi.Router) {
		r.Post("/create-order", h.createOrder)
		r.Post("/verify", h.verify)
		r.Get("/bookings/{orderId}", h.getBooking)
	})
	s.mux.With(AdminOnly(h.AdminKey)).Delete("/api/admin/cache", h.flushCache)
}

func writeProblem(w http.ResponseWriter, status int, title, detail string) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(problem{Type: "about:blank", Title: title, Status: status, Detail: detail}); err != nil {
		log.Error().Err(err).Msg("write JSON problem response failed")
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("write JSON response failed")
	}
}

func writeRaw(w http.ResponseWriter, status int, body []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err := w.Write(body); err != nil {
		log.Error().Err(err).Msg("write raw response failed")
	}
}

// calcETagAndBody marshals once and hashes once, returning both ETag and body.
func calcETagAndBody(v any) (string, []byte) {
	body, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Msg("failed to marshal object for ETag/body")
		return "", nil
	}
	sum := sha1.Sum(body)
	etag := `W/"` + hex.EncodeToString(sum[:]) + `"`
	return etag, body
}

// writeCached serves a GET body with a weak ETag and honors If-None-Match.
func writeCached(w http.ResponseWriter, r *http.Request, v any) {
	etag, body := calcETagAndBody(v)
	if inm := r.Header.Get("If-None-Match"); inm != "" && inm == etag {
		w.Header().Set("ETag", etag)
		w.WriteHeader(http.StatusNotModified)
		return
	}
	if etag != "" {
		w.Header().Set("ETag", etag)
	}
	writeRaw(w, http.StatusOK, body)
}

func decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBody)).Decode(dst); err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid body", err.Error())
		return false
	}
	return true
}

// fail maps service errors onto HTTP. Oracle failures keep the oracle's status
// and description where it gave one.
func fail(w http.ResponseWriter, err error) {
	var ue *domain.UpstreamError
	switch {
	case errors.Is(err, app.ErrValidation),
		errors.Is(err, search.ErrInvalidTarget),
		errors.Is(err, search.ErrInvalidDateRange):
		writeProblem(w, http.StatusBadRequest, "Bad Request", err.Error())
	case errors.Is(err, domain.ErrInvalidSignature):
		writeProblem(w, http.StatusBadRequest, "Invalid Signature", "payment signature verification failed")
	case errors.Is(err, domain.ErrNotFound),
		errors.Is(err, domain.ErrPendingNotFound),
		errors.Is(err, search.ErrNoHotelsFound):
		writeProblem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, search.ErrLoadInFlight),
		errors.Is(err, search.ErrNoMorePages),
		errors.Is(err, search.ErrNoActiveSearch),
		errors.Is(err, search.ErrStaleGeneration):
		writeProblem(w, http.StatusConflict, "Conflict", err.Error())
	case errors.Is(err, tbo.ErrUnauthorized):
		writeProblem(w, http.StatusBadGateway, "Upstream Unauthorized", err.Error())
	case errors.As(err, &ue):
		writeProblem(w, upstreamStatus(ue), "Upstream Error", ue.Description)
	case errors.Is(err, context.DeadlineExceeded):
		writeProblem(w, http.StatusGatewayTimeout, "Upstream Timeout", err.Error())
	default:
		log.Error().Err(err).Msg("unhandled error")
		writeProblem(w, http.StatusInternalServerError, "Internal Server Error", "")
	}
}

func upstreamStatus(ue *domain.UpstreamError) int {
	if ue.HTTPStatus >= 400 && ue.HTTPStatus <= 599 {
		return ue.HTTPStatus
	}
	if ue.Code >= 400 && ue.Code <= 599 {
		return ue.Code
	}
	return http.StatusBadGateway
}

// ---- catalog ----

func (h *Handlers) countries(w http.ResponseWriter, r *http.Request) {
	list, src, err := h.Catalog.Countries(r.Context())
	if err != nil {
		fail(w, err)
		return
	}
	writeCached(w, r, map[string]any{"CountryList": nonNil(list), "source": src})
}

func (h *Handlers) cities(w http.ResponseWriter, r *http.Request) {
	var in struct {
		CountryCode string `json:"countryCode"`
	}
	if !decode(w, r, &in) {
		return
	}
	list, src, err := h.Catalog.Cities(r.Context(), in.CountryCode)
	if err != nil {
		fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"CityList": nonNil(list), "source": src})
}

func (h *Handlers) hotels(w http.ResponseWriter, r *http.Request) {
	var in struct {
		CityCode string `json:"cityCode"`
	}
	if !decode(w, r, &in) {
		return
	}
	list, src, err := h.Catalog.Hotels(r.Context(), in.CityCode)
	if err != nil {
		fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"Hotels": nonNil(list), "source": src})
}

func (h *Handlers) hotelDetails(w http.ResponseWriter, r *http.Request) {
	var in struct {
		HotelCode            domain.HotelCode `json:"hotelCode"`
		Language             string           `json:"language"`
		IsRoomDetailRequired bool             `json:"isRoomDetailRequired"`
	}
	if !decode(w, r, &in) {
		return
	}
	details, src, err := h.Catalog.HotelDetails(r.Context(), in.HotelCode, in.Language, in.IsRoomDetailRequired)
	if err != nil {
		fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"HotelDetails": nonNil(details), "source": src})
}

func (h *Handlers) basicInfo(w http.ResponseWriter, r *http.Request) {
	var in struct {
		HotelCode domain.HotelCode `json:"hotelCode"`
	}
	if !decode(w, r, &in) {
		return
	}
	info, src, err := h.Catalog.BasicInfo(r.Context(), in.HotelCode)
	if err != nil {
		fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"HotelInfo": info, "source": src, "isBasicInfo": true})
}

func (h *Handlers) cardInfo(w http.ResponseWriter, r *http.Request) {
	var in struct {
		HotelCodes []domain.HotelCode `json:"hotelCodes"`
	}
	if !decode(w, r, &in) {
		return
	}
	res, err := h.Catalog.CardInfo(r.Context(), in.HotelCodes)
	if err != nil {
		fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *Handlers) rooms(w http.ResponseWriter, r *http.Request) {
	var in app.RoomsQuery
	if !decode(w, r, &in) {
		return
	}
	res, err := h.Catalog.Rooms(r.Context(), in)
	if err != nil {
		fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// search returns the oracle body untouched, whatever its in-band status.
func (h *Handlers) search(w http.ResponseWriter, r *http.Request) {
	var in domain.SearchRequest
	if !decode(w, r, &in) {
		return
	}
	resp, err := h.Catalog.Search(r.Context(), in)
	if err != nil {
		fail(w, err)
		return
	}
	writeRaw(w, http.StatusOK, resp.Raw)
}

func (h *Handlers) prebook(w http.ResponseWriter, r *http.Request) {
	var in struct {
		BookingCode string `json:"BookingCode"`
	}
	if !decode(w, r, &in) {
		return
	}
	raw, err := h.Catalog.PreBook(r.Context(), in.BookingCode)
	passThrough(w, raw, err)
}

func (h *Handlers) book(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBody))
	if err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid body", err.Error())
		return
	}
	raw, err := h.Catalog.Book(r.Context(), body)
	passThrough(w, raw, err)
}

// passThrough relays a prebook/book answer. An in-band oracle failure is a
// 400 carrying the oracle body.
func passThrough(w http.ResponseWriter, raw json.RawMessage, err error) {
	var ue *domain.UpstreamError
	switch {
	case err == nil:
		writeRaw(w, http.StatusOK, raw)
	case errors.As(err, &ue) && ue.Code != 0 && len(raw) > 0:
		writeRaw(w, http.StatusBadRequest, raw)
	default:
		fail(w, err)
	}
}

// ---- search sessions ----

type sessionView struct {
	SessionID string `json:"sessionId"`
	search.View
}

func (h *Handlers) startSession(w http.ResponseWriter, r *http.Request) {
	var q search.Query
	if !decode(w, r, &q) {
		return
	}
	if err := q.Validate(); err != nil {
		fail(w, err)
		return
	}
	id, sess := h.Sessions.Create()
	err := sess.Start(r.Context(), q)
	observability.ObserveSearchPage(search.Outcome(err))
	if err != nil {
		// nothing can be paged from a session whose first page never loaded
		h.Sessions.Remove(id)
		fail(w, err)
		return
	}
	w.Header().Set("Location", "/api/search/sessions/"+id)
	writeJSON(w, http.StatusCreated, sessionView{SessionID: id, View: sess.View()})
}

func (h *Handlers) getSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	sess, ok := h.Sessions.Get(id)
	if !ok {
		writeProblem(w, http.StatusNotFound, "Not Found", "search session not found or expired")
		return
	}
	writeCached(w, r, sessionView{SessionID: id, View: sess.View()})
}

func (h *Handlers) loadMore(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	sess, ok := h.Sessions.Get(id)
	if !ok {
		writeProblem(w, http.StatusNotFound, "Not Found", "search session not found or expired")
		return
	}
	err := sess.LoadMore(r.Context())
	observability.ObserveSearchPage(search.Outcome(err))
	if err != nil {
		fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sessionView{SessionID: id, View: sess.View()})
}

// ---- payment ----

func (h *Handlers) createOrder(w http.ResponseWriter, r *http.Request) {
	var in app.CreateOrderRequest
	if !decode(w, r, &in) {
		return
	}
	res, err := h.Payments.CreateOrder(r.Context(), in)
	if err != nil {
		fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *Handlers) verify(w http.ResponseWriter, r *http.Request) {
	var in app.VerifyRequest
	if !decode(w, r, &in) {
		return
	}
	res, err := h.Payments.Verify(r.Context(), in)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, res)
	case errors.Is(err, domain.ErrInvalidSignature):
		writeJSON(w, http.StatusBadRequest, res)
	case errors.Is(err, app.ErrBookingFailed):
		writeJSON(w, http.StatusBadGateway, res)
	case errors.Is(err, domain.ErrBookingInFlight):
		writeJSON(w, http.StatusConflict, res)
	case errors.Is(err, domain.ErrPendingNotFound):
		writeJSON(w, http.StatusNotFound, res)
	default:
		fail(w, err)
	}
}

func (h *Handlers) getBooking(w http.ResponseWriter, r *http.Request) {
	rec, err := h.Payments.Booking(r.Context(), chi.URLParam(r, "orderId"))
	if err != nil {
		fail(w, err)
		return
	}
	writeCached(w, r, rec)
}

// ---- admin ----

func (h *Handlers) ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	out := make(map[string]string, len(h.Checks))
	code := http.StatusOK
	for name, check := range h.Checks {
		if err := check(ctx); err != nil {
			out[name] = err.Error()
			code = http.StatusServiceUnavailable
			continue
		}
		out[name] = "ok"
	}
	writeJSON(w, code, out)
}

func (h *Handlers) flushCache(w http.ResponseWriter, r *http.Request) {
	n, err := h.Catalog.FlushCache(r.Context())
	if err != nil {
		fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"deleted": n})
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

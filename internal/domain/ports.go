package domain

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

var (
	ErrNotFound         = errors.New("not found")
	ErrInvalidSignature = errors.New("payment signature mismatch")
	ErrPendingNotFound  = errors.New("pending payment not found")
	ErrBookingInFlight  = errors.New("booking already in progress for this order")
)

// Inventory is the hotel oracle. Static calls are cacheable, Search never is.
type Inventory interface {
	Countries(ctx context.Context) ([]Country, error)
	Cities(ctx context.Context, countryCode string) ([]City, error)
	HotelCodes(ctx context.Context, cityCode string) ([]HotelStub, error)
	HotelDetails(ctx context.Context, codes []HotelCode, language string, roomDetail bool) ([]HotelDetail, error)
	Search(ctx context.Context, req SearchRequest) (SearchResponse, error)
	PreBook(ctx context.Context, bookingCode string) (json.RawMessage, error)
	Book(ctx context.Context, payload json.RawMessage) (json.RawMessage, error)
}

// Cache is the key-value store. Values are stored with a lastUpdated stamp
// by the adapter; MGet returns only the keys that were present.
type Cache interface {
	Get(ctx context.Context, key string, dst any) (bool, error)
	MGet(ctx context.Context, keys []string) (map[string]json.RawMessage, error)
	Set(ctx context.Context, key string, v any) error
	Del(ctx context.Context, key string) error
	Flush(ctx context.Context) (int, error)
}

type PaymentGateway interface {
	CreateOrder(ctx context.Context, amountMinor int64, currency, receipt string, notes map[string]string) (Order, error)
	VerifySignature(orderID, paymentID, signature string) bool
}

type BookingStore interface {
	SavePending(ctx context.Context, p PendingPayment) error
	// ClaimPending atomically moves an open pending payment to the booking
	// state and returns it. Only one caller can hold the claim; others get
	// ErrBookingInFlight, or ErrPendingNotFound when there is no row.
	ClaimPending(ctx context.Context, orderID string) (PendingPayment, error)
	// ReleasePending reopens a claimed payment after a failed booking.
	ReleasePending(ctx context.Context, orderID string) error
	DeletePending(ctx context.Context, orderID string) error
	SaveBooking(ctx context.Context, b BookingRecord) error
	GetBooking(ctx context.Context, orderID string) (BookingRecord, error)
}

// UpstreamError reports a failed oracle or gateway call. HTTPStatus is the
// transport status; Code/Description come from the response body when the
// upstream reports failures in-band.
type UpstreamError struct {
	Service     string
	Endpoint    string
	HTTPStatus  int
	Code        int
	Description string
	Body        []byte
}

func (e *UpstreamError) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("%s %s: status %d: %s", e.Service, e.Endpoint, e.Code, e.Description)
	}
	return fmt.Sprintf("%s %s: http %d: %s", e.Service, e.Endpoint, e.HTTPStatus, e.Description)
}

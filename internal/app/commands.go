package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"hotel_proxy/internal/adapters/observability"
	"hotel_proxy/internal/domain"
)

// ErrBookingFailed means the payment went through but the oracle did not
// confirm the booking.
var ErrBookingFailed = errors.New("booking failed after payment")

// PaymentService takes a priced room from order creation to a confirmed
// booking. Nothing is booked until the gateway signature checks out.
type PaymentService struct {
	gateway  domain.PaymentGateway
	inv      domain.Inventory
	store    domain.BookingStore
	keyID    string
	currency string
	now      func() time.Time
	log      zerolog.Logger
}

func NewPaymentService(gw domain.PaymentGateway, inv domain.Inventory, st domain.BookingStore, keyID, currency string) *PaymentService {
	if currency == "" {
		currency = "INR"
	}
	return &PaymentService{
		gateway:  gw,
		inv:      inv,
		store:    st,
		keyID:    keyID,
		currency: currency,
		now:      time.Now,
		log:      observability.Component("payment"),
	}
}

type CreateOrderRequest struct {
	Amount      float64           `json:"amount"`
	Currency    string            `json:"currency,omitempty"`
	BookingCode string            `json:"bookingCode"`
	Guest       json.RawMessage   `json:"guest,omitempty"`
	Booking     json.RawMessage   `json:"booking,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

type CreateOrderResult struct {
	Order domain.Order `json:"order"`
	KeyID string       `json:"keyId"`
}

func (s *PaymentService) CreateOrder(ctx context.Context, req CreateOrderRequest) (CreateOrderResult, error) {
	if req.Amount <= 0 {
		return CreateOrderResult{}, fmt.Errorf("%w: amount must be positive", ErrValidation)
	}
	if strings.TrimSpace(req.BookingCode) == "" {
		return CreateOrderResult{}, fmt.Errorf("%w: bookingCode is required", ErrValidation)
	}
	if len(req.Booking) > 0 && !json.Valid(req.Booking) {
		return CreateOrderResult{}, fmt.Errorf("%w: booking must be JSON", ErrValidation)
	}
	if len(req.Guest) > 0 {
		if err := validateGuest(req.Guest); err != nil {
			return CreateOrderResult{}, err
		}
	}
	cur := req.Currency
	if cur == "" {
		cur = s.currency
	}

	notes := map[string]string{"bookingCode": req.BookingCode}
	for k, v := range req.Metadata {
		if _, taken := notes[k]; !taken {
			notes[k] = v
		}
	}
	receipt := "rcpt_" + strings.ReplaceAll(uuid.NewString(), "-", "")
	minor := int64(math.Round(req.Amount * 100))

	order, err := s.gateway.CreateOrder(ctx, minor, cur, receipt, notes)
	if err != nil {
		return CreateOrderResult{}, err
	}

	if err := s.store.SavePending(ctx, domain.PendingPayment{
		OrderID:     order.ID,
		Receipt:     receipt,
		BookingCode: req.BookingCode,
		Amount:      req.Amount,
		Currency:    cur,
		GuestJSON:   req.Guest,
		BookingJSON: req.Booking,
		State:       domain.PendingOpen,
		CreatedAt:   s.now().UTC(),
	}); err != nil {
		return CreateOrderResult{}, fmt.Errorf("save pending payment %s: %w", order.ID, err)
	}
	s.log.Info().Str("order_id", order.ID).Str("booking_code", req.BookingCode).Int64("amount", minor).Msg("payment order created")
	return CreateOrderResult{Order: order, KeyID: s.keyID}, nil
}

// validateGuest checks the lead guest before any money moves. The raw JSON is
// still what gets stored, so fields the oracle knows and we don't survive.
func validateGuest(raw json.RawMessage) error {
	var g domain.Guest
	if err := json.Unmarshal(raw, &g); err != nil {
		return fmt.Errorf("%w: guest must be an object: %v", ErrValidation, err)
	}
	if strings.TrimSpace(g.FirstName) == "" || strings.TrimSpace(g.LastName) == "" {
		return fmt.Errorf("%w: guest firstName and lastName are required", ErrValidation)
	}
	return nil
}

type VerifyRequest struct {
	OrderID   string `json:"razorpay_order_id"`
	PaymentID string `json:"razorpay_payment_id"`
	Signature string `json:"razorpay_signature"`
}

type VerifyResult struct {
	Success          bool            `json:"success"`
	PaymentCompleted bool            `json:"paymentCompleted"`
	OrderID          string          `json:"orderId"`
	PaymentID        string          `json:"paymentId"`
	Status           string          `json:"status,omitempty"`
	ConfirmationNo   string          `json:"confirmationNo,omitempty"`
	Message          string          `json:"message,omitempty"`
	Booking          json.RawMessage `json:"booking,omitempty"`
}

// Verify checks the gateway signature and only then books the pending room.
// A booking failure after a good signature returns ErrBookingFailed together
// with a result that reports the payment as completed.
func (s *PaymentService) Verify(ctx context.Context, req VerifyRequest) (VerifyResult, error) {
	if req.OrderID == "" || req.PaymentID == "" || req.Signature == "" {
		return VerifyResult{}, fmt.Errorf("%w: order id, payment id and signature are required", ErrValidation)
	}
	if !s.gateway.VerifySignature(req.OrderID, req.PaymentID, req.Signature) {
		s.log.Warn().Str("order_id", req.OrderID).Msg("payment signature mismatch")
		return VerifyResult{OrderID: req.OrderID, PaymentID: req.PaymentID, Message: "invalid payment signature"}, domain.ErrInvalidSignature
	}

	res := VerifyResult{OrderID: req.OrderID, PaymentID: req.PaymentID, PaymentCompleted: true}
	// The claim is taken before Book so a second callback for the same order
	// cannot book it again while this one is in flight.
	pending, err := s.store.ClaimPending(ctx, req.OrderID)
	switch {
	case errors.Is(err, domain.ErrBookingInFlight):
		res.Message = "booking for this order is already in progress"
		return res, err
	case err != nil:
		res.Message = "no pending booking for this order"
		return res, err
	}

	payload, err := bookPayload(pending)
	if err != nil {
		s.release(ctx, req.OrderID)
		res.Message = err.Error()
		return res, fmt.Errorf("%w: %v", ErrBookingFailed, err)
	}
	raw, bookErr := s.inv.Book(ctx, payload)

	rec := domain.BookingRecord{
		OrderID:      req.OrderID,
		PaymentID:    req.PaymentID,
		BookingCode:  pending.BookingCode,
		Amount:       pending.Amount,
		Currency:     pending.Currency,
		ResponseJSON: raw,
		CreatedAt:    s.now().UTC(),
	}
	if bookErr != nil {
		rec.Status = domain.BookingFailed
		rec.Message = bookErr.Error()
	} else {
		rec.Status = domain.BookingConfirmed
		rec.Confirmation = confirmationNo(raw)
	}
	if err := s.store.SaveBooking(ctx, rec); err != nil {
		s.log.Error().Err(err).Str("order_id", req.OrderID).Msg("save booking record failed")
	}

	res.Status = rec.Status
	res.Booking = raw
	if bookErr != nil {
		s.log.Error().Err(bookErr).Str("order_id", req.OrderID).Str("payment_id", req.PaymentID).Msg("booking failed after payment")
		// The pending row is reopened so the booking can be retried.
		s.release(ctx, req.OrderID)
		res.Message = "payment received but booking failed: " + bookErr.Error()
		return res, fmt.Errorf("%w: %v", ErrBookingFailed, bookErr)
	}

	if err := s.store.DeletePending(ctx, req.OrderID); err != nil {
		s.log.Warn().Err(err).Str("order_id", req.OrderID).Msg("delete pending payment failed")
	}
	res.Success = true
	res.ConfirmationNo = rec.Confirmation
	res.Message = "booking confirmed"
	return res, nil
}

// release reopens a claim even when the request context is already gone.
func (s *PaymentService) release(ctx context.Context, orderID string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := s.store.ReleasePending(ctx, orderID); err != nil {
		s.log.Error().Err(err).Str("order_id", orderID).Msg("release pending payment failed")
	}
}

func (s *PaymentService) Booking(ctx context.Context, orderID string) (domain.BookingRecord, error) {
	if orderID == "" {
		return domain.BookingRecord{}, fmt.Errorf("%w: orderId is required", ErrValidation)
	}
	return s.store.GetBooking(ctx, orderID)
}

// bookPayload fills the oracle Book request from the saved intent, keeping
// any field the client already supplied.
func bookPayload(p domain.PendingPayment) (json.RawMessage, error) {
	body := map[string]any{}
	if len(p.BookingJSON) > 0 {
		if err := json.Unmarshal(p.BookingJSON, &body); err != nil {
			return nil, fmt.Errorf("stored booking payload: %w", err)
		}
	}
	setDefault := func(k string, v any) {
		if _, ok := body[k]; !ok {
			body[k] = v
		}
	}
	setDefault("BookingCode", p.BookingCode)
	setDefault("ClientReferenceId", p.Receipt)
	setDefault("BookingReferenceId", p.OrderID)
	setDefault("TotalFare", p.Amount)
	setDefault("PaymentMode", "Limit")
	if len(p.GuestJSON) > 0 {
		setDefault("Guest", p.GuestJSON)
	}
	return json.Marshal(body)
}

func confirmationNo(raw json.RawMessage) string {
	var out struct {
		ConfirmationNumber string `json:"ConfirmationNumber"`
		ConfirmationNo     string `json:"ConfirmationNo"`
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return ""
	}
	if out.ConfirmationNumber != "" {
		return out.ConfirmationNumber
	}
	return out.ConfirmationNo
}

package domain

import (
	"encoding/json"
	"time"
)

// Guest is the lead guest sent with an order. Only the names are required.
type Guest struct {
	Title     string `json:"title,omitempty"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Email     string `json:"email"`
	Phone     string `json:"phone,omitempty"`
}

// PendingPayment is the booking intent saved when a gateway order is created
// and consumed once the payment is verified.
type PendingPayment struct {
	OrderID     string          `json:"orderId" db:"order_id"`
	Receipt     string          `json:"receipt" db:"receipt"`
	BookingCode string          `json:"bookingCode" db:"booking_code"`
	Amount      float64         `json:"amount" db:"amount"`
	Currency    string          `json:"currency" db:"currency"`
	GuestJSON   json.RawMessage `json:"guest" db:"guest"`
	BookingJSON json.RawMessage `json:"booking" db:"booking"`
	State       string          `json:"state" db:"state"`
	CreatedAt   time.Time       `json:"createdAt" db:"created_at"`
}

// Pending payment states. A claimed row is being booked and cannot be claimed
// again until it is released.
const (
	PendingOpen    = "pending"
	PendingClaimed = "booking"
)

const (
	BookingConfirmed = "confirmed"
	BookingFailed    = "booking_failed"
)

// BookingRecord is the persisted outcome of a paid booking attempt.
type BookingRecord struct {
	OrderID      string          `json:"orderId" db:"order_id"`
	PaymentID    string          `json:"paymentId" db:"payment_id"`
	BookingCode  string          `json:"bookingCode" db:"booking_code"`
	Amount       float64         `json:"amount" db:"amount"`
	Currency     string          `json:"currency" db:"currency"`
	Status       string          `json:"status" db:"status"`
	Confirmation string          `json:"confirmationNo,omitempty" db:"confirmation_no"`
	Message      string          `json:"message,omitempty" db:"message"`
	ResponseJSON json.RawMessage `json:"response,omitempty" db:"response"`
	CreatedAt    time.Time       `json:"createdAt" db:"created_at"`
}

// Order is the gateway-side order a client pays against.
type Order struct {
	ID       string `json:"id"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	Receipt  string `json:"receipt"`
	Status   string `json:"status"`
}

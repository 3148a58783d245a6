package mysql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"hotel_proxy/internal/domain"
)

func valStr(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func valJSON(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return string(b)
}

type Repo struct{ db *sqlx.DB }

func New(db *sql.DB) *Repo { return &Repo{db: sqlx.NewDb(db, "mysql")} }

// Migrate creates the tables if they do not exist. Statements are run one at
// a time so the DSN does not need multiStatements.
func Migrate(ctx context.Context, db *sql.DB) error {
	for _, stmt := range strings.Split(schemaSQL, ";") {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

func (r *Repo) SavePending(ctx context.Context, p domain.PendingPayment) error {
	_, err := r.db.ExecContext(ctx, upsertPendingSQL,
		p.OrderID,
		p.Receipt,
		p.BookingCode,
		p.Amount,
		p.Currency,
		valJSON(p.GuestJSON),
		valJSON(p.BookingJSON),
		p.CreatedAt,
	)
	return err
}

func (r *Repo) GetPending(ctx context.Context, orderID string) (domain.PendingPayment, error) {
	var p domain.PendingPayment
	if err := r.db.GetContext(ctx, &p, getPendingSQL, orderID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.PendingPayment{}, domain.ErrPendingNotFound
		}
		return domain.PendingPayment{}, err
	}
	if len(p.GuestJSON) == 0 {
		p.GuestJSON = nil
	}
	if len(p.BookingJSON) == 0 {
		p.BookingJSON = nil
	}
	return p, nil
}

// ClaimPending takes the booking claim on an open pending payment.
func (r *Repo) ClaimPending(ctx context.Context, orderID string) (domain.PendingPayment, error) {
	res, err := r.db.ExecContext(ctx, claimPendingSQL, time.Now().UTC(), orderID)
	if err != nil {
		return domain.PendingPayment{}, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return domain.PendingPayment{}, err
	}
	p, err := r.GetPending(ctx, orderID)
	if err != nil {
		return domain.PendingPayment{}, err
	}
	if n != 1 {
		return domain.PendingPayment{}, domain.ErrBookingInFlight
	}
	return p, nil
}

func (r *Repo) ReleasePending(ctx context.Context, orderID string) error {
	_, err := r.db.ExecContext(ctx, releasePendingSQL, orderID)
	return err
}

func (r *Repo) DeletePending(ctx context.Context, orderID string) error {
	_, err := r.db.ExecContext(ctx, deletePendingSQL, orderID)
	return err
}

func (r *Repo) SaveBooking(ctx context.Context, b domain.BookingRecord) error {
	_, err := r.db.ExecContext(ctx, upsertBookingSQL,
		b.OrderID,
		b.PaymentID,
		b.BookingCode,
		b.Amount,
		b.Currency,
		b.Status,
		valStr(b.Confirmation),
		valStr(b.Message),
		valJSON(b.ResponseJSON),
		b.CreatedAt,
	)
	return err
}

func (r *Repo) GetBooking(ctx context.Context, orderID string) (domain.BookingRecord, error) {
	var b domain.BookingRecord
	if err := r.db.GetContext(ctx, &b, getBookingSQL, orderID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.BookingRecord{}, domain.ErrNotFound
		}
		return domain.BookingRecord{}, err
	}
	if len(b.ResponseJSON) == 0 {
		b.ResponseJSON = nil
	}
	return b, nil
}

func (r *Repo) Ping(ctx context.Context) error { return r.db.PingContext(ctx) }

package app_test

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"hotel_proxy/internal/app"
	"hotel_proxy/internal/domain"
)

func seedPending(st *fakeStore) {
	st.pending["order_123"] = domain.PendingPayment{
		OrderID:     "order_123",
		Receipt:     "rcpt_1",
		BookingCode: "BC-1",
		Amount:      1250.5,
		Currency:    "INR",
		BookingJSON: json.RawMessage(`{"BookingCode":"BC-1","CustomerDetails":[]}`),
		State:       domain.PendingOpen,
	}
}

func verifyReq() app.VerifyRequest {
	return app.VerifyRequest{OrderID: "order_123", PaymentID: "pay_9", Signature: "sig"}
}

func TestCreateOrder_SavesPendingInMinorUnits(t *testing.T) {
	gw := &fakeGateway{}
	st := newFakeStore()
	svc := app.NewPaymentService(gw, &fakeInventory{}, st, "rzp_test_key", "INR")

	res, err := svc.CreateOrder(context.Background(), app.CreateOrderRequest{Amount: 1250.50, BookingCode: "BC-1"})
	if err != nil {
		t.Fatalf("create order: %v", err)
	}
	if gw.last.amount != 125050 || gw.last.currency != "INR" {
		t.Fatalf("gateway got %d %s", gw.last.amount, gw.last.currency)
	}
	if !strings.HasPrefix(gw.last.receipt, "rcpt_") || len(gw.last.receipt) > 40 {
		t.Fatalf("bad receipt %q", gw.last.receipt)
	}
	if res.KeyID != "rzp_test_key" || res.Order.ID != "order_123" {
		t.Fatalf("unexpected result: %+v", res)
	}
	p, ok := st.pending["order_123"]
	if !ok || p.BookingCode != "BC-1" || p.Amount != 1250.50 {
		t.Fatalf("pending not saved: %+v", p)
	}
}

func TestCreateOrder_Validation(t *testing.T) {
	gw := &fakeGateway{}
	svc := app.NewPaymentService(gw, &fakeInventory{}, newFakeStore(), "k", "")
	if _, err := svc.CreateOrder(context.Background(), app.CreateOrderRequest{Amount: 0, BookingCode: "x"}); !errors.Is(err, app.ErrValidation) {
		t.Fatalf("want ErrValidation, got %v", err)
	}
	if gw.orders != 0 {
		t.Fatalf("gateway must not be called on invalid input")
	}
}

func TestCreateOrder_RejectsGuestWithoutNames(t *testing.T) {
	gw := &fakeGateway{}
	st := newFakeStore()
	svc := app.NewPaymentService(gw, &fakeInventory{}, st, "k", "INR")

	for name, guest := range map[string]string{
		"missing last name": `{"firstName":"Asha","email":"asha@example.com"}`,
		"blank first name":  `{"firstName":"  ","lastName":"Rao"}`,
		"not an object":     `["Asha","Rao"]`,
	} {
		t.Run(name, func(t *testing.T) {
			_, err := svc.CreateOrder(context.Background(), app.CreateOrderRequest{
				Amount: 100, BookingCode: "BC-1", Guest: json.RawMessage(guest),
			})
			if !errors.Is(err, app.ErrValidation) {
				t.Fatalf("want ErrValidation, got %v", err)
			}
		})
	}
	if gw.orders != 0 || len(st.pending) != 0 {
		t.Fatalf("invalid guest must not create an order")
	}

	// extra fields are kept verbatim for the booking payload
	guest := json.RawMessage(`{"firstName":"Asha","lastName":"Rao","email":"asha@example.com","PAN":"ABCDE1234F"}`)
	if _, err := svc.CreateOrder(context.Background(), app.CreateOrderRequest{Amount: 100, BookingCode: "BC-1", Guest: guest}); err != nil {
		t.Fatalf("create order: %v", err)
	}
	if got := st.pending["order_123"].GuestJSON; string(got) != string(guest) {
		t.Fatalf("guest stored as %s", got)
	}
}

func TestVerify_TamperedSignatureNeverBooks(t *testing.T) {
	inv := &fakeInventory{}
	st := newFakeStore()
	seedPending(st)
	before := st.touched
	svc := app.NewPaymentService(&fakeGateway{valid: false}, inv, st, "k", "INR")

	res, err := svc.Verify(context.Background(), verifyReq())
	if !errors.Is(err, domain.ErrInvalidSignature) {
		t.Fatalf("want ErrInvalidSignature, got %v", err)
	}
	if res.Success || res.PaymentCompleted {
		t.Fatalf("tampered payment must not be reported as completed: %+v", res)
	}
	if len(inv.bookCalls) != 0 {
		t.Fatalf("Book was called %d times", len(inv.bookCalls))
	}
	if st.touched != before {
		t.Fatalf("store must not be touched before the signature check passes")
	}
}

func TestVerify_BooksAndRecords(t *testing.T) {
	inv := &fakeInventory{bookResp: json.RawMessage(`{"Status":{"Code":200},"ConfirmationNumber":"CNF-77"}`)}
	st := newFakeStore()
	seedPending(st)
	svc := app.NewPaymentService(&fakeGateway{valid: true}, inv, st, "k", "INR")

	res, err := svc.Verify(context.Background(), verifyReq())
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if !res.Success || !res.PaymentCompleted || res.ConfirmationNo != "CNF-77" {
		t.Fatalf("unexpected result: %+v", res)
	}
	if len(inv.bookCalls) != 1 {
		t.Fatalf("want one Book call, got %d", len(inv.bookCalls))
	}
	var body map[string]any
	if err := json.Unmarshal(inv.bookCalls[0], &body); err != nil {
		t.Fatalf("book payload: %v", err)
	}
	if body["BookingCode"] != "BC-1" || body["ClientReferenceId"] != "rcpt_1" || body["BookingReferenceId"] != "order_123" {
		t.Fatalf("book payload missing defaults: %v", body)
	}
	if rec := st.bookings["order_123"]; rec.Status != domain.BookingConfirmed || rec.PaymentID != "pay_9" {
		t.Fatalf("booking record: %+v", rec)
	}
	if _, ok := st.pending["order_123"]; ok {
		t.Fatalf("pending should be removed after a confirmed booking")
	}
}

func TestVerify_BookingFailureAfterPayment(t *testing.T) {
	inv := &fakeInventory{
		bookResp: json.RawMessage(`{"Status":{"Code":500,"Description":"Room no longer available"}}`),
		bookErr:  &domain.UpstreamError{Service: "tbo", Endpoint: "Book", HTTPStatus: 200, Code: 500, Description: "Room no longer available"},
	}
	st := newFakeStore()
	seedPending(st)
	svc := app.NewPaymentService(&fakeGateway{valid: true}, inv, st, "k", "INR")

	res, err := svc.Verify(context.Background(), verifyReq())
	if !errors.Is(err, app.ErrBookingFailed) {
		t.Fatalf("want ErrBookingFailed, got %v", err)
	}
	if res.Success || !res.PaymentCompleted || !strings.Contains(res.Message, "Room no longer available") {
		t.Fatalf("unexpected result: %+v", res)
	}
	if rec := st.bookings["order_123"]; rec.Status != domain.BookingFailed {
		t.Fatalf("failed booking should be recorded: %+v", rec)
	}
	p, ok := st.pending["order_123"]
	if !ok || p.State != domain.PendingOpen {
		t.Fatalf("pending should be kept and reopened for a failed booking: %+v", p)
	}

	// the reopened order can be booked on a later callback
	inv.bookErr = nil
	inv.bookResp = json.RawMessage(`{"Status":{"Code":200},"ConfirmationNumber":"CNF-2"}`)
	res, err = svc.Verify(context.Background(), verifyReq())
	if err != nil || !res.Success || res.ConfirmationNo != "CNF-2" {
		t.Fatalf("retry after failure: %+v %v", res, err)
	}
	if len(inv.bookCalls) != 2 {
		t.Fatalf("want two Book calls, got %d", len(inv.bookCalls))
	}
}

func TestVerify_ConcurrentCallbacksBookOnce(t *testing.T) {
	inv := &fakeInventory{
		bookResp:    json.RawMessage(`{"Status":{"Code":200},"ConfirmationNumber":"CNF-1"}`),
		bookEntered: make(chan struct{}, 1),
		bookGate:    make(chan struct{}),
	}
	st := newFakeStore()
	seedPending(st)
	svc := app.NewPaymentService(&fakeGateway{valid: true}, inv, st, "k", "INR")

	type outcome struct {
		res app.VerifyResult
		err error
	}
	first := make(chan outcome, 1)
	go func() {
		res, err := svc.Verify(context.Background(), verifyReq())
		first <- outcome{res, err}
	}()
	<-inv.bookEntered

	// the first callback is inside Book; a duplicate must not reach it
	res, err := svc.Verify(context.Background(), verifyReq())
	if !errors.Is(err, domain.ErrBookingInFlight) {
		t.Fatalf("want ErrBookingInFlight, got %v", err)
	}
	if res.Success || !res.PaymentCompleted {
		t.Fatalf("duplicate callback result: %+v", res)
	}

	close(inv.bookGate)
	got := <-first
	if got.err != nil || !got.res.Success || got.res.ConfirmationNo != "CNF-1" {
		t.Fatalf("first callback: %+v %v", got.res, got.err)
	}
	if n := inv.books(); n != 1 {
		t.Fatalf("want exactly one Book call, got %d", n)
	}

	// once confirmed, the pending row is gone
	if _, err := svc.Verify(context.Background(), verifyReq()); !errors.Is(err, domain.ErrPendingNotFound) {
		t.Fatalf("verify after confirmation: want ErrPendingNotFound, got %v", err)
	}
}

func TestVerify_UnknownOrder(t *testing.T) {
	inv := &fakeInventory{}
	svc := app.NewPaymentService(&fakeGateway{valid: true}, inv, newFakeStore(), "k", "INR")
	res, err := svc.Verify(context.Background(), verifyReq())
	if !errors.Is(err, domain.ErrPendingNotFound) || !res.PaymentCompleted {
		t.Fatalf("want ErrPendingNotFound with payment completed, got %+v %v", res, err)
	}
	if len(inv.bookCalls) != 0 {
		t.Fatalf("nothing to book")
	}
}

package app_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"staybook/internal/app"
	"staybook/internal/domain"
)

// ---- fakes ----

type fakeHotels struct {
	hotel domain.Hotel
	err   error
}

func (f *fakeHotels) GetHotel(ctx context.Context, id string) (domain.Hotel, error) {
	if f.err != nil {
		return domain.Hotel{}, f.err
	}
	return f.hotel, nil
}

type fakePayments struct {
	mu        sync.Mutex
	intents   int
	confirms  int
	intentErr error
	confirm   domain.PaymentResult
	confErr   error

	intentGate chan struct{} // when set, CreateIntent blocks until closed
}

func (f *fakePayments) CreateIntent(ctx context.Context, amountMinor int64, currency string) (domain.Intent, error) {
	f.mu.Lock()
	f.intents++
	gate := f.intentGate
	f.mu.Unlock()
	if gate != nil {
		<-gate
	}
	if f.intentErr != nil {
		return domain.Intent{}, f.intentErr
	}
	return domain.Intent{ClientSecret: "cs_test"}, nil
}

func (f *fakePayments) Confirm(ctx context.Context, clientSecret, paymentMethod string) (domain.PaymentResult, error) {
	f.mu.Lock()
	f.confirms++
	f.mu.Unlock()
	return f.confirm, f.confErr
}

type fakeBookings struct {
	mu      sync.Mutex
	created []domain.Booking
	err     error
}

func (f *fakeBookings) CreateBooking(ctx context.Context, b domain.Booking) (domain.Booking, error) {
	if f.err != nil {
		return domain.Booking{}, f.err
	}
	b.ID = "bk-1"
	f.mu.Lock()
	f.created = append(f.created, b)
	f.mu.Unlock()
	return b, nil
}

func validRequest() app.SubmitRequest {
	return app.SubmitRequest{
		UserID:        "u1",
		HotelID:       "h1",
		Checkin:       "2026-03-10",
		Checkout:      "2026-03-12",
		Guests:        domain.Guests{Adults: 2},
		PaymentMethod: "pm_card",
	}
}

func newWorkflow(p *fakePayments, b *fakeBookings) *app.BookingWorkflow {
	hotels := &fakeHotels{hotel: domain.Hotel{ID: "h1", Name: "Protea", Price: 1000, RoomType: "Double Room"}}
	return app.NewBookingWorkflow(hotels, p, b, "zar")
}

// ---- tests ----

func TestSubmit_Completed(t *testing.T) {
	pay := &fakePayments{confirm: domain.PaymentResult{Status: domain.PaymentSucceeded}}
	bk := &fakeBookings{}
	wf := newWorkflow(pay, bk)

	res, err := wf.Submit(context.Background(), validRequest())
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	if res.State != app.StateCompleted {
		t.Fatalf("state = %s, want completed", res.State)
	}
	// 1000*2 nights + 500 fee * 1 extra * 2 nights
	if res.Total != 3000 {
		t.Fatalf("total = %v, want 3000", res.Total)
	}
	if res.Booking.ID != "bk-1" || res.Booking.Status != domain.BookingPending {
		t.Fatalf("unexpected booking: %+v", res.Booking)
	}
	if res.Booking.TotalPrice != 3000 {
		t.Fatalf("stored price = %v, want 3000", res.Booking.TotalPrice)
	}
	if res.Booking.RoomType == nil || *res.Booking.RoomType != "Double Room" {
		t.Fatalf("room type not copied from hotel: %+v", res.Booking)
	}
	if pay.intents != 1 || pay.confirms != 1 {
		t.Fatalf("expected one intent and one confirm, got %d/%d", pay.intents, pay.confirms)
	}
}

func TestSubmit_ValidationFailures(t *testing.T) {
	pay := &fakePayments{confirm: domain.PaymentResult{Status: domain.PaymentSucceeded}}
	bk := &fakeBookings{}
	wf := newWorkflow(pay, bk)

	cases := []struct {
		name   string
		mutate func(*app.SubmitRequest)
	}{
		{"missing user", func(r *app.SubmitRequest) { r.UserID = "" }},
		{"missing hotel", func(r *app.SubmitRequest) { r.HotelID = "" }},
		{"missing dates", func(r *app.SubmitRequest) { r.Checkin = "" }},
		{"unparseable date", func(r *app.SubmitRequest) { r.Checkout = "12-03-2026" }},
		{"checkout not after checkin", func(r *app.SubmitRequest) { r.Checkout = r.Checkin }},
		{"negative guests", func(r *app.SubmitRequest) { r.Guests.Adults = -1 }},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			req := validRequest()
			c.mutate(&req)
			res, err := wf.Submit(context.Background(), req)
			if res.State != app.StateValidationFailed {
				t.Fatalf("state = %s, want validation_failed", res.State)
			}
			var verr *domain.ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("expected ValidationError, got %v", err)
			}
		})
	}
	// No money moved for any of them.
	if pay.intents != 0 {
		t.Fatalf("intents created during validation failures: %d", pay.intents)
	}
}

func TestSubmit_IntentFailure(t *testing.T) {
	pay := &fakePayments{intentErr: &domain.GatewayError{Op: "payments", Message: "intent refused"}}
	bk := &fakeBookings{}
	wf := newWorkflow(pay, bk)

	res, err := wf.Submit(context.Background(), validRequest())
	if res.State != app.StateIntentFailed {
		t.Fatalf("state = %s, want intent_failed", res.State)
	}
	if err == nil {
		t.Fatalf("expected error")
	}
	if pay.confirms != 0 || len(bk.created) != 0 {
		t.Fatalf("confirm or booking ran after failed intent")
	}
}

func TestSubmit_PaymentDeclined_NoBooking(t *testing.T) {
	pay := &fakePayments{confirm: domain.PaymentResult{Status: domain.PaymentFailed, Message: "card declined"}}
	bk := &fakeBookings{}
	wf := newWorkflow(pay, bk)

	res, err := wf.Submit(context.Background(), validRequest())
	if res.State != app.StatePaymentFailed {
		t.Fatalf("state = %s, want payment_failed", res.State)
	}
	// The decline reason is surfaced verbatim.
	if res.Message != "card declined" {
		t.Fatalf("message = %q, want gateway message", res.Message)
	}
	var perr *domain.PaymentError
	if !errors.As(err, &perr) {
		t.Fatalf("expected PaymentError, got %v", err)
	}
	if len(bk.created) != 0 {
		t.Fatalf("booking created despite declined payment")
	}
}

func TestSubmit_RequiresActionIsAFailure(t *testing.T) {
	pay := &fakePayments{confirm: domain.PaymentResult{Status: domain.PaymentRequiresAction}}
	bk := &fakeBookings{}
	wf := newWorkflow(pay, bk)

	res, _ := wf.Submit(context.Background(), validRequest())
	if res.State != app.StatePaymentFailed {
		t.Fatalf("state = %s, want payment_failed", res.State)
	}
	if len(bk.created) != 0 {
		t.Fatalf("booking created for requires_action confirm")
	}
}

func TestSubmit_BookingFailedAfterPayment(t *testing.T) {
	pay := &fakePayments{confirm: domain.PaymentResult{Status: domain.PaymentSucceeded}}
	bk := &fakeBookings{err: &domain.GatewayError{Op: "documents", Message: "write failed"}}
	wf := newWorkflow(pay, bk)

	res, err := wf.Submit(context.Background(), validRequest())
	if res.State != app.StateBookingFailed {
		t.Fatalf("state = %s, want booking_failed", res.State)
	}
	if err == nil {
		t.Fatalf("expected error")
	}
	if pay.confirms != 1 {
		t.Fatalf("payment should have run exactly once")
	}
}

func TestSubmit_SecondAttemptWhileInFlight(t *testing.T) {
	gate := make(chan struct{})
	pay := &fakePayments{confirm: domain.PaymentResult{Status: domain.PaymentSucceeded}, intentGate: gate}
	bk := &fakeBookings{}
	wf := newWorkflow(pay, bk)

	done := make(chan struct{})
	go func() {
		defer close(done)
		if _, err := wf.Submit(context.Background(), validRequest()); err != nil {
			t.Errorf("first submit: %v", err)
		}
	}()

	// Wait until the first attempt holds the in-flight slot.
	for {
		pay.mu.Lock()
		started := pay.intents > 0
		pay.mu.Unlock()
		if started {
			break
		}
		time.Sleep(time.Millisecond)
	}

	_, err := wf.Submit(context.Background(), validRequest())
	if !errors.Is(err, app.ErrAttemptInFlight) {
		t.Fatalf("expected ErrAttemptInFlight, got %v", err)
	}

	close(gate)
	<-done

	// A different user is never blocked by someone else's attempt.
	other := validRequest()
	other.UserID = "u2"
	if _, err := wf.Submit(context.Background(), other); err != nil {
		t.Fatalf("other user blocked: %v", err)
	}
}

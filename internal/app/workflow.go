package app

import (
	"context"
	"fmt"
	"sync"
	"time"

	"staybook/internal/domain"
)

// AttemptState tracks one booking submission attempt. Terminal states admit
// no further transition without a fresh user-initiated attempt.
type AttemptState string

const (
	StateIdle              AttemptState = "idle"
	StateValidationFailed  AttemptState = "validation_failed"
	StateIntentRequested   AttemptState = "intent_requested"
	StateIntentFailed      AttemptState = "intent_failed"
	StatePaymentConfirming AttemptState = "payment_confirming"
	StatePaymentFailed     AttemptState = "payment_failed"
	StateBookingCreating   AttemptState = "booking_creating"
	StateBookingFailed     AttemptState = "booking_failed"
	StateCompleted         AttemptState = "completed"
)

func (s AttemptState) Terminal() bool {
	switch s {
	case StateValidationFailed, StateIntentFailed, StatePaymentFailed, StateBookingFailed, StateCompleted:
		return true
	}
	return false
}

// HotelReader supplies hotel details for pricing.
type HotelReader interface {
	GetHotel(ctx context.Context, id string) (domain.Hotel, error)
}

// BookingCreator commits a booking; invoked only after a confirmed payment.
type BookingCreator interface {
	CreateBooking(ctx context.Context, b domain.Booking) (domain.Booking, error)
}

type SubmitRequest struct {
	UserID        string
	HotelID       string
	Checkin       string // YYYY-MM-DD
	Checkout      string
	Guests        domain.Guests
	GuestName     *string
	PaymentMethod string // opaque instrument reference from the presentation boundary
}

type SubmitResult struct {
	State   AttemptState
	Total   float64
	Booking domain.Booking // set only when State == StateCompleted
	Message string         // failure message, verbatim from the rejecting step
}

// ErrAttemptInFlight is returned when a user submits while a previous attempt
// has not reached a terminal state. Once an intent has been requested the
// attempt must finish before a new one starts; this avoids double-charging.
var ErrAttemptInFlight = fmt.Errorf("booking attempt already in flight")

// BookingWorkflow runs the strictly-ordered submission sequence:
// validate, request intent, confirm payment, create booking. No step is
// retried automatically; every failure is terminal for the attempt.
type BookingWorkflow struct {
	hotels   HotelReader
	payments domain.PaymentGateway
	bookings BookingCreator
	currency string

	mu       sync.Mutex
	inFlight map[string]bool // keyed by user id
}

func NewBookingWorkflow(hotels HotelReader, payments domain.PaymentGateway, bookings BookingCreator, currency string) *BookingWorkflow {
	return &BookingWorkflow{
		hotels:   hotels,
		payments: payments,
		bookings: bookings,
		currency: currency,
		inFlight: map[string]bool{},
	}
}

func (w *BookingWorkflow) Submit(ctx context.Context, req SubmitRequest) (SubmitResult, error) {
	checkin, checkout, verr := validate(req)
	if verr != nil {
		return SubmitResult{State: StateValidationFailed, Message: verr.Reason}, verr
	}

	w.mu.Lock()
	if w.inFlight[req.UserID] {
		w.mu.Unlock()
		return SubmitResult{State: StateIdle, Message: ErrAttemptInFlight.Error()}, ErrAttemptInFlight
	}
	w.inFlight[req.UserID] = true
	w.mu.Unlock()
	defer func() {
		w.mu.Lock()
		delete(w.inFlight, req.UserID)
		w.mu.Unlock()
	}()

	hotel, err := w.hotels.GetHotel(ctx, req.HotelID)
	if err != nil {
		return SubmitResult{State: StateValidationFailed, Message: err.Error()},
			&domain.ValidationError{Reason: "hotel not found: " + err.Error()}
	}

	total := Quote(hotel.Price, checkin, checkout, req.Guests)

	// A new intent per attempt; a retried submission never reuses one.
	intent, err := w.payments.CreateIntent(ctx, MinorUnits(total), w.currency)
	if err != nil {
		return SubmitResult{State: StateIntentFailed, Total: total, Message: err.Error()}, err
	}

	res, err := w.payments.Confirm(ctx, intent.ClientSecret, req.PaymentMethod)
	if err != nil {
		return SubmitResult{State: StatePaymentFailed, Total: total, Message: err.Error()}, err
	}
	if res.Status != domain.PaymentSucceeded {
		msg := res.Message
		if msg == "" {
			msg = "payment not completed: " + res.Status
		}
		perr := &domain.PaymentError{Stage: "confirm", Status: res.Status, Message: msg}
		return SubmitResult{State: StatePaymentFailed, Total: total, Message: msg}, perr
	}

	booking, err := w.bookings.CreateBooking(ctx, domain.Booking{
		UserID:     req.UserID,
		HotelID:    req.HotelID,
		Checkin:    req.Checkin,
		Checkout:   req.Checkout,
		Guests:     req.Guests,
		TotalPrice: total,
		Status:     domain.BookingPending,
		GuestName:  req.GuestName,
		RoomType:   roomTypeOf(hotel),
	})
	if err != nil {
		return SubmitResult{State: StateBookingFailed, Total: total, Message: err.Error()}, err
	}

	return SubmitResult{State: StateCompleted, Total: total, Booking: booking}, nil
}

func validate(req SubmitRequest) (time.Time, time.Time, *domain.ValidationError) {
	var zero time.Time
	if req.UserID == "" {
		return zero, zero, &domain.ValidationError{Reason: "you must be signed in to book a room"}
	}
	if req.HotelID == "" {
		return zero, zero, &domain.ValidationError{Reason: "hotel id is required"}
	}
	if req.Checkin == "" || req.Checkout == "" {
		return zero, zero, &domain.ValidationError{Reason: "check-in and check-out dates are required"}
	}
	checkin, err := time.Parse(dateLayout, req.Checkin)
	if err != nil {
		return zero, zero, &domain.ValidationError{Reason: "invalid check-in date"}
	}
	checkout, err := time.Parse(dateLayout, req.Checkout)
	if err != nil {
		return zero, zero, &domain.ValidationError{Reason: "invalid check-out date"}
	}
	if !checkout.After(checkin) {
		return zero, zero, &domain.ValidationError{Reason: "check-out must be after check-in"}
	}
	if req.Guests.Negative() {
		return zero, zero, &domain.ValidationError{Reason: "guest counts cannot be negative"}
	}
	return checkin, checkout, nil
}

func roomTypeOf(h domain.Hotel) *string {
	if h.RoomType == "" {
		return nil
	}
	rt := h.RoomType
	return &rt
}

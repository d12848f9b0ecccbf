package domain

import "errors"

var ErrNotFound = errors.New("not found")

// ValidationError is raised locally before any remote call is made.
type ValidationError struct{ Reason string }

func (e *ValidationError) Error() string { return "validation: " + e.Reason }

// GatewayError wraps a failed remote data/auth call, carrying the gateway's
// message verbatim.
type GatewayError struct {
	Op      string
	Message string
}

func (e *GatewayError) Error() string { return e.Op + ": " + e.Message }

// PaymentError is an intent creation or confirmation rejected by the payment
// gateway. Status holds the terminal confirmation status when one was reached.
type PaymentError struct {
	Stage   string // "intent" | "confirm"
	Status  string
	Message string
}

func (e *PaymentError) Error() string { return "payment " + e.Stage + ": " + e.Message }

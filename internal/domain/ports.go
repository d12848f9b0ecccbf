package domain

import (
	"context"
	"encoding/json"
)

// Collections known to the data gateway.
const (
	CollectionHotels   = "hotels"
	CollectionBookings = "bookings"
	CollectionUsers    = "users"
)

// Snapshot is a complete point-in-time listing of a collection, keyed by
// document id.
type Snapshot map[string]json.RawMessage

// DataGateway is the remote document store. It owns the durable copies;
// everything held locally is a display cache. Merge applies a per-document
// atomic merge-update. All calls fail with a descriptive message on
// network/permission errors.
type DataGateway interface {
	Create(ctx context.Context, collection string, doc json.RawMessage) (string, error)
	Get(ctx context.Context, collection, id string) (json.RawMessage, error)
	QueryField(ctx context.Context, collection, field, value string) (Snapshot, error)
	List(ctx context.Context, collection string) (Snapshot, error)
	Merge(ctx context.Context, collection, id string, partial json.RawMessage) error
	// Upsert is a merge-write that creates the document when absent, for
	// records keyed by an externally assigned id (user profiles).
	Upsert(ctx context.Context, collection, id string, partial json.RawMessage) error
	Delete(ctx context.Context, collection, id string) error
	Subscribe(ctx context.Context, collection string) (SnapshotStream, error)
}

// SnapshotStream is a standing subscription channel. Every remote change
// pushes the full current snapshot. Close must be called on all exit paths;
// an unclosed stream keeps delivering updates indefinitely.
type SnapshotStream interface {
	Snapshots() <-chan Snapshot
	Close() error
}

type Identity struct {
	UID   string
	Email string
}

type AuthGateway interface {
	SignUp(ctx context.Context, email, password string) (Identity, error)
	SignIn(ctx context.Context, email, password string) (Identity, error)
}

// Intent is a provisional charge authorization, confirmed in a second step.
type Intent struct{ ClientSecret string }

// Confirmation statuses reported by the payment gateway.
const (
	PaymentSucceeded      = "succeeded"
	PaymentFailed         = "failed"
	PaymentRequiresAction = "requires_action"
)

type PaymentResult struct {
	Status  string
	Message string
}

type PaymentGateway interface {
	// CreateIntent takes the amount in minor currency units. One intent per
	// submission attempt; a retried submission creates a new intent.
	CreateIntent(ctx context.Context, amountMinor int64, currency string) (Intent, error)
	Confirm(ctx context.Context, clientSecret, paymentMethod string) (PaymentResult, error)
}

type Cache interface {
	Get(ctx context.Context, key string, dst any) (bool, error)
	Set(ctx context.Context, key string, v any, ttlSec int) error
	Del(ctx context.Context, key string) error
}

package mysql

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"staybook/internal/domain"
)

// SnapshotBus fans full-collection snapshots out to subscribers. Streams
// returned by Subscribe carry only change notifications; the initial snapshot
// is prepended by the Repo.
type SnapshotBus interface {
	Publish(ctx context.Context, collection string, snap domain.Snapshot) error
	Subscribe(ctx context.Context, collection string) (domain.SnapshotStream, error)
}

var tables = map[string]string{
	domain.CollectionHotels:   "hotels",
	domain.CollectionBookings: "bookings",
	domain.CollectionUsers:    "users",
}

func tableFor(collection string) (string, error) {
	t, ok := tables[collection]
	if !ok {
		return "", fmt.Errorf("unknown collection %q", collection)
	}
	return t, nil
}

// Repo implements domain.DataGateway over MySQL JSON documents, with change
// notifications pushed through an optional SnapshotBus.
type Repo struct {
	db  *sql.DB
	bus SnapshotBus // nil disables subscriptions and change fan-out
}

func New(db *sql.DB, bus SnapshotBus) *Repo { return &Repo{db: db, bus: bus} }

func (r *Repo) Create(ctx context.Context, collection string, doc json.RawMessage) (string, error) {
	table, err := tableFor(collection)
	if err != nil {
		return "", err
	}
	id := uuid.NewString()
	if _, err := r.db.ExecContext(ctx, fmt.Sprintf(createDocSQL, table), id, string(doc)); err != nil {
		return "", err
	}
	r.notify(ctx, collection)
	return id, nil
}

func (r *Repo) Get(ctx context.Context, collection, id string) (json.RawMessage, error) {
	table, err := tableFor(collection)
	if err != nil {
		return nil, err
	}
	var doc []byte
	err = r.db.QueryRowContext(ctx, fmt.Sprintf(getDocSQL, table), id).Scan(&doc)
	if err == sql.ErrNoRows {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return doc, nil
}

func (r *Repo) List(ctx context.Context, collection string) (domain.Snapshot, error) {
	table, err := tableFor(collection)
	if err != nil {
		return nil, err
	}
	return r.scanSnapshot(ctx, fmt.Sprintf(listDocsSQL, table))
}

func (r *Repo) QueryField(ctx context.Context, collection, field, value string) (domain.Snapshot, error) {
	table, err := tableFor(collection)
	if err != nil {
		return nil, err
	}
	return r.scanSnapshot(ctx, fmt.Sprintf(queryFieldSQL, table), "$."+field, value)
}

func (r *Repo) Merge(ctx context.Context, collection, id string, partial json.RawMessage) error {
	table, err := tableFor(collection)
	if err != nil {
		return err
	}
	res, err := r.db.ExecContext(ctx, fmt.Sprintf(mergeDocSQL, table), string(partial), id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		// Requires clientFoundRows in the DSN: zero then means no row matched
		// the id, not that the merge was a no-op.
		return domain.ErrNotFound
	}
	r.notify(ctx, collection)
	return nil
}

func (r *Repo) Upsert(ctx context.Context, collection, id string, partial json.RawMessage) error {
	table, err := tableFor(collection)
	if err != nil {
		return err
	}
	if _, err := r.db.ExecContext(ctx, fmt.Sprintf(upsertDocSQL, table), id, string(partial)); err != nil {
		return err
	}
	r.notify(ctx, collection)
	return nil
}

func (r *Repo) Delete(ctx context.Context, collection, id string) error {
	table, err := tableFor(collection)
	if err != nil {
		return err
	}
	res, err := r.db.ExecContext(ctx, fmt.Sprintf(deleteDocSQL, table), id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrNotFound
	}
	r.notify(ctx, collection)
	return nil
}

// Subscribe delivers the current snapshot first, then every snapshot the bus
// publishes, until Close.
func (r *Repo) Subscribe(ctx context.Context, collection string) (domain.SnapshotStream, error) {
	if r.bus == nil {
		return nil, fmt.Errorf("subscriptions disabled: no snapshot bus configured")
	}
	if _, err := tableFor(collection); err != nil {
		return nil, err
	}
	initial, err := r.List(ctx, collection)
	if err != nil {
		return nil, err
	}
	inner, err := r.bus.Subscribe(ctx, collection)
	if err != nil {
		return nil, err
	}
	s := &stream{inner: inner, out: make(chan domain.Snapshot), done: make(chan struct{})}
	go s.forward(initial)
	return s, nil
}

func (r *Repo) scanSnapshot(ctx context.Context, query string, args ...any) (domain.Snapshot, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	snap := domain.Snapshot{}
	for rows.Next() {
		var id string
		var doc []byte
		if err := rows.Scan(&id, &doc); err != nil {
			return nil, err
		}
		snap[id] = json.RawMessage(doc)
	}
	return snap, rows.Err()
}

// notify publishes the post-write snapshot, best effort. Readers that miss a
// publish converge on the next one; the database stays the source of truth.
func (r *Repo) notify(ctx context.Context, collection string) {
	if r.bus == nil {
		return
	}
	snap, err := r.List(ctx, collection)
	if err != nil {
		return
	}
	_ = r.bus.Publish(ctx, collection, snap)
}

type stream struct {
	inner domain.SnapshotStream
	out   chan domain.Snapshot
	done  chan struct{}
	once  sync.Once
	err   error
}

func (s *stream) Snapshots() <-chan domain.Snapshot { return s.out }

func (s *stream) Close() error {
	s.once.Do(func() {
		close(s.done)
		s.err = s.inner.Close()
	})
	return s.err
}

func (s *stream) forward(initial domain.Snapshot) {
	defer close(s.out)
	select {
	case s.out <- initial:
	case <-s.done:
		return
	}
	for {
		select {
		case snap, ok := <-s.inner.Snapshots():
			if !ok {
				return
			}
			select {
			case s.out <- snap:
			case <-s.done:
				return
			}
		case <-s.done:
			return
		}
	}
}

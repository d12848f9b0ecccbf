package httpserver_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	httpserver "staybook/internal/adapters/http_server"
	"staybook/internal/domain"
	"staybook/internal/store"
)

// stubGateway is the minimal document store these handler tests need:
// documents in memory plus a switch that fails every call, to simulate a
// remote outage.
type stubGateway struct {
	mu   sync.Mutex
	docs map[string]map[string]json.RawMessage
	down bool
}

func newStubGateway() *stubGateway {
	return &stubGateway{docs: map[string]map[string]json.RawMessage{
		domain.CollectionHotels:   {},
		domain.CollectionBookings: {},
		domain.CollectionUsers:    {},
	}}
}

func (g *stubGateway) setDown(down bool) {
	g.mu.Lock()
	g.down = down
	g.mu.Unlock()
}

func (g *stubGateway) put(collection, id string, doc json.RawMessage) {
	g.mu.Lock()
	g.docs[collection][id] = doc
	g.mu.Unlock()
}

func (g *stubGateway) Create(ctx context.Context, collection string, doc json.RawMessage) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.down {
		return "", errors.New("document store unavailable")
	}
	id := fmt.Sprintf("doc-%d", len(g.docs[collection])+1)
	g.docs[collection][id] = doc
	return id, nil
}

func (g *stubGateway) Get(ctx context.Context, collection, id string) (json.RawMessage, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.down {
		return nil, errors.New("document store unavailable")
	}
	raw, ok := g.docs[collection][id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return raw, nil
}

func (g *stubGateway) QueryField(ctx context.Context, collection, field, value string) (domain.Snapshot, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.down {
		return nil, errors.New("document store unavailable")
	}
	out := domain.Snapshot{}
	for id, raw := range g.docs[collection] {
		var m map[string]any
		if err := json.Unmarshal(raw, &m); err != nil {
			return nil, err
		}
		if s, _ := m[field].(string); s == value {
			out[id] = raw
		}
	}
	return out, nil
}

func (g *stubGateway) List(ctx context.Context, collection string) (domain.Snapshot, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.down {
		return nil, errors.New("document store unavailable")
	}
	out := domain.Snapshot{}
	for id, raw := range g.docs[collection] {
		out[id] = raw
	}
	return out, nil
}

func (g *stubGateway) Merge(ctx context.Context, collection, id string, partial json.RawMessage) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.down {
		return errors.New("document store unavailable")
	}
	raw, ok := g.docs[collection][id]
	if !ok {
		return domain.ErrNotFound
	}
	var doc, patch map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return err
	}
	if err := json.Unmarshal(partial, &patch); err != nil {
		return err
	}
	for k, v := range patch {
		doc[k] = v
	}
	merged, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	g.docs[collection][id] = merged
	return nil
}

func (g *stubGateway) Upsert(ctx context.Context, collection, id string, partial json.RawMessage) error {
	if err := g.Merge(ctx, collection, id, partial); err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			return err
		}
		g.put(collection, id, partial)
	}
	return nil
}

func (g *stubGateway) Delete(ctx context.Context, collection, id string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.down {
		return errors.New("document store unavailable")
	}
	delete(g.docs[collection], id)
	return nil
}

func (g *stubGateway) Subscribe(ctx context.Context, collection string) (domain.SnapshotStream, error) {
	return nil, errors.New("subscriptions not supported")
}

type handlerEnv struct {
	gw     *stubGateway
	st     *store.Store
	tokens *httpserver.TokenService
	mux    http.Handler
}

func newHandlerEnv(t *testing.T) *handlerEnv {
	t.Helper()
	gw := newStubGateway()
	st := store.New(gw, nil, nil)
	tokens := httpserver.NewTokenService("handler-test-secret", time.Hour)
	srv := httpserver.New()
	srv.MountHandlers(&httpserver.Handlers{St: st, Tokens: tokens})
	return &handlerEnv{gw: gw, st: st, tokens: tokens, mux: srv.Mux()}
}

func (e *handlerEnv) get(t *testing.T, path, token string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	e.mux.ServeHTTP(rr, req)
	return rr
}

func (e *handlerEnv) issue(t *testing.T, uid string, role domain.Role) string {
	t.Helper()
	token, err := e.tokens.Issue(uid, role)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	return token
}

// A load that failed once must be retried on the next request, not served as
// a permanent 502.
func TestListHotels_RecoversAfterOutage(t *testing.T) {
	env := newHandlerEnv(t)
	env.gw.put(domain.CollectionHotels, "h1", domain.EncodeHotel(domain.Hotel{
		Name: "Sea Breeze", Price: 1500, ImageURL: "https://img.example.com/h1.png",
	}))

	env.gw.setDown(true)
	if rr := env.get(t, "/v1/hotels", ""); rr.Code != http.StatusBadGateway {
		t.Fatalf("expected 502 during outage, got %d: %s", rr.Code, rr.Body.String())
	}

	env.gw.setDown(false)
	rr := env.get(t, "/v1/hotels", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected listing after recovery, got %d: %s", rr.Code, rr.Body.String())
	}
	var hotels []domain.Hotel
	if err := json.Unmarshal(rr.Body.Bytes(), &hotels); err != nil {
		t.Fatalf("decode listing: %v", err)
	}
	if len(hotels) != 1 || hotels[0].ID != "h1" {
		t.Fatalf("unexpected listing: %+v", hotels)
	}
}

func TestMyBookings_OnlyCallerBookings(t *testing.T) {
	env := newHandlerEnv(t)
	env.gw.put(domain.CollectionBookings, "b1", domain.EncodeBooking(domain.Booking{
		UserID: "u1", HotelID: "h1", Checkin: "2026-03-01", Checkout: "2026-03-03",
		Guests: domain.Guests{Adults: 2}, TotalPrice: 3000, Status: domain.BookingPending,
	}))
	env.gw.put(domain.CollectionBookings, "b2", domain.EncodeBooking(domain.Booking{
		UserID: "u2", HotelID: "h1", Checkin: "2026-04-01", Checkout: "2026-04-02",
		Guests: domain.Guests{Adults: 1}, TotalPrice: 1500, Status: domain.BookingApproved,
	}))

	// Another session's fetch has already filled the shared view with every
	// booking; the caller's response must still be owner-filtered.
	if _, err := env.st.FetchAllBookings(context.Background()); err != nil {
		t.Fatalf("FetchAllBookings: %v", err)
	}

	rr := env.get(t, "/v1/me/bookings", env.issue(t, "u1", domain.RoleUser))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	var got []domain.Booking
	if err := json.Unmarshal(rr.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode bookings: %v", err)
	}
	if len(got) != 1 || got[0].ID != "b1" || got[0].UserID != "u1" {
		t.Fatalf("expected only u1's booking, got %+v", got)
	}

	rr = env.get(t, "/v1/bookings", env.issue(t, "admin", domain.RoleAdmin))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 for admin listing, got %d: %s", rr.Code, rr.Body.String())
	}
	var all []domain.Booking
	if err := json.Unmarshal(rr.Body.Bytes(), &all); err != nil {
		t.Fatalf("decode bookings: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("admin listing must span owners, got %+v", all)
	}
}

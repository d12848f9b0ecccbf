// Package store holds the in-memory state of a user session: hotels,
// bookings, and the signed-in user, each as its own independently-locked
// collection synchronized from the remote document store. The remote store
// owns the durable copies; everything here is a display cache and may be
// stale between the last sync point and the next read.
package store

import (
	"context"
	"sync"

	"staybook/internal/domain"
)

type Status string

const (
	StatusIdle      Status = "idle"
	StatusLoading   Status = "loading"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

// collection pairs an id->entity map with its load/mutate lifecycle. The
// mutex guards only local state; remote calls happen outside it, so
// operations on different entities never block each other.
type collection[T any] struct {
	mu     sync.RWMutex
	items  map[string]T
	status Status
	err    string
}

func (c *collection[T]) loading() {
	c.mu.Lock()
	c.status = StatusLoading
	c.err = ""
	c.mu.Unlock()
}

func (c *collection[T]) fail(err error) {
	c.mu.Lock()
	c.status = StatusFailed
	c.err = err.Error()
	c.mu.Unlock()
}

func (c *collection[T]) replace(items map[string]T) {
	c.mu.Lock()
	c.items = items
	c.status = StatusSucceeded
	c.err = ""
	c.mu.Unlock()
}

func (c *collection[T]) put(id string, v T) {
	c.mu.Lock()
	if c.items == nil {
		c.items = map[string]T{}
	}
	c.items[id] = v
	c.status = StatusSucceeded
	c.err = ""
	c.mu.Unlock()
}

func (c *collection[T]) remove(id string) {
	c.mu.Lock()
	delete(c.items, id)
	c.status = StatusSucceeded
	c.err = ""
	c.mu.Unlock()
}

func (c *collection[T]) get(id string) (T, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.items[id]
	return v, ok
}

// view returns a copy; callers never alias the live map.
func (c *collection[T]) view() (map[string]T, Status, string) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]T, len(c.items))
	for k, v := range c.items {
		out[k] = v
	}
	return out, c.status, c.err
}

type session struct {
	mu     sync.RWMutex
	user   *domain.User
	status Status
	err    string
}

// Store is the explicit state container passed to handlers in place of
// ambient shared mutable state.
type Store struct {
	gw    domain.DataGateway
	auth  domain.AuthGateway
	cache domain.Cache // optional; hotel mutations evict read-path entries

	hotels   collection[domain.Hotel]
	bookings collection[domain.Booking]
	sess     session
}

func New(gw domain.DataGateway, auth domain.AuthGateway, cache domain.Cache) *Store {
	s := &Store{gw: gw, auth: auth, cache: cache}
	s.hotels.status = StatusIdle
	s.bookings.status = StatusIdle
	s.sess.status = StatusIdle
	return s
}

// ---- hotels ----

// LoadHotels replaces the entire hotels mapping with the gateway's full
// listing. Whole-collection last-writer-wins; no partial merge.
func (s *Store) LoadHotels(ctx context.Context) error {
	s.hotels.loading()
	snap, err := s.gw.List(ctx, domain.CollectionHotels)
	if err != nil {
		s.hotels.fail(err)
		return err
	}
	items, err := domain.HotelsFromSnapshot(snap)
	if err != nil {
		s.hotels.fail(err)
		return err
	}
	s.hotels.replace(items)
	return nil
}

// HotelSubscription is the scoped handle for a standing hotels feed. Close
// must run on every exit path; an unclosed subscription keeps applying remote
// snapshots indefinitely.
type HotelSubscription struct {
	stream domain.SnapshotStream
	once   sync.Once
	err    error
}

func (h *HotelSubscription) Close() error {
	h.once.Do(func() { h.err = h.stream.Close() })
	return h.err
}

// SubscribeHotels opens a standing channel; every remote change replaces the
// whole hotels mapping with the pushed snapshot.
func (s *Store) SubscribeHotels(ctx context.Context) (*HotelSubscription, error) {
	stream, err := s.gw.Subscribe(ctx, domain.CollectionHotels)
	if err != nil {
		s.hotels.fail(err)
		return nil, err
	}
	go func() {
		for snap := range stream.Snapshots() {
			items, err := domain.HotelsFromSnapshot(snap)
			if err != nil {
				s.hotels.fail(err)
				continue
			}
			s.hotels.replace(items)
		}
	}()
	return &HotelSubscription{stream: stream}, nil
}

// AddHotel issues the remote write first; local state changes only after the
// gateway confirms, never optimistically.
func (s *Store) AddHotel(ctx context.Context, h domain.Hotel) (domain.Hotel, error) {
	id, err := s.gw.Create(ctx, domain.CollectionHotels, domain.EncodeHotel(h))
	if err != nil {
		s.hotels.fail(err)
		return domain.Hotel{}, err
	}
	h.ID = id
	s.hotels.put(id, h)
	s.evictHotel(ctx, id)
	return h, nil
}

func (s *Store) UpdateHotel(ctx context.Context, id string, p domain.HotelPatch) error {
	if err := s.gw.Merge(ctx, domain.CollectionHotels, id, domain.EncodeHotelPatch(p)); err != nil {
		s.hotels.fail(err)
		return err
	}
	// Two racing updates of the same id resolve last-callback-wins here; the
	// remote value may transiently diverge until the next load or snapshot.
	if cur, ok := s.hotels.get(id); ok {
		s.hotels.put(id, domain.ApplyHotelPatch(cur, p))
	}
	s.evictHotel(ctx, id)
	return nil
}

func (s *Store) DeleteHotel(ctx context.Context, id string) error {
	if err := s.gw.Delete(ctx, domain.CollectionHotels, id); err != nil {
		s.hotels.fail(err)
		return err
	}
	s.hotels.remove(id)
	s.evictHotel(ctx, id)
	return nil
}

func (s *Store) Hotels() (map[string]domain.Hotel, Status, string) {
	return s.hotels.view()
}

func (s *Store) evictHotel(ctx context.Context, id string) {
	if s.cache == nil {
		return
	}
	_ = s.cache.Del(ctx, "hotel:"+id)
}

// ---- bookings ----

// FetchUserBookings replaces the bookings mapping with the owner-filtered
// result set and returns that set. Mutually exclusive with FetchAllBookings:
// each call invalidates whatever view the other populated. Callers that need
// exactly this call's result must use the returned map — the shared view may
// be replaced by a concurrent fetch at any time.
func (s *Store) FetchUserBookings(ctx context.Context, userID string) (map[string]domain.Booking, error) {
	s.bookings.loading()
	snap, err := s.gw.QueryField(ctx, domain.CollectionBookings, "userId", userID)
	if err != nil {
		s.bookings.fail(err)
		return nil, err
	}
	return s.adoptBookings(snap)
}

func (s *Store) FetchAllBookings(ctx context.Context) (map[string]domain.Booking, error) {
	s.bookings.loading()
	snap, err := s.gw.List(ctx, domain.CollectionBookings)
	if err != nil {
		s.bookings.fail(err)
		return nil, err
	}
	return s.adoptBookings(snap)
}

// adoptBookings installs a copy in the shared view and hands the decoded set
// back to the caller, so the two never alias.
func (s *Store) adoptBookings(snap domain.Snapshot) (map[string]domain.Booking, error) {
	items, err := domain.BookingsFromSnapshot(snap)
	if err != nil {
		s.bookings.fail(err)
		return nil, err
	}
	view := make(map[string]domain.Booking, len(items))
	for id, b := range items {
		view[id] = b
	}
	s.bookings.replace(view)
	return items, nil
}

// CreateBooking persists the booking and appends it locally on success.
// Callers reach this only after payment confirmation reported success.
func (s *Store) CreateBooking(ctx context.Context, b domain.Booking) (domain.Booking, error) {
	if b.Status == "" {
		b.Status = domain.BookingPending
	}
	id, err := s.gw.Create(ctx, domain.CollectionBookings, domain.EncodeBooking(b))
	if err != nil {
		s.bookings.fail(err)
		return domain.Booking{}, err
	}
	b.ID = id
	s.bookings.put(id, b)
	return b, nil
}

func (s *Store) ApproveBooking(ctx context.Context, id string) (domain.Booking, error) {
	return s.transitionBooking(ctx, id, domain.BookingApproved)
}

func (s *Store) CancelBooking(ctx context.Context, id string) (domain.Booking, error) {
	return s.transitionBooking(ctx, id, domain.BookingCanceled)
}

// transitionBooking merges the new status remotely, then re-reads the
// document so local state reflects what the store actually holds. The stored
// price is never recomputed by a transition.
func (s *Store) transitionBooking(ctx context.Context, id string, status domain.BookingStatus) (domain.Booking, error) {
	if err := s.gw.Merge(ctx, domain.CollectionBookings, id, domain.EncodeBookingStatus(status)); err != nil {
		s.bookings.fail(err)
		return domain.Booking{}, err
	}
	return s.refreshBooking(ctx, id)
}

func (s *Store) ModifyBooking(ctx context.Context, id string, p domain.BookingPatch) (domain.Booking, error) {
	if err := s.gw.Merge(ctx, domain.CollectionBookings, id, domain.EncodeBookingPatch(p)); err != nil {
		s.bookings.fail(err)
		return domain.Booking{}, err
	}
	return s.refreshBooking(ctx, id)
}

func (s *Store) refreshBooking(ctx context.Context, id string) (domain.Booking, error) {
	raw, err := s.gw.Get(ctx, domain.CollectionBookings, id)
	if err != nil {
		s.bookings.fail(err)
		return domain.Booking{}, err
	}
	b, err := domain.DecodeBooking(id, raw)
	if err != nil {
		s.bookings.fail(err)
		return domain.Booking{}, err
	}
	s.bookings.put(id, b)
	return b, nil
}

func (s *Store) Bookings() (map[string]domain.Booking, Status, string) {
	return s.bookings.view()
}

// ---- user ----

// SignUp registers with the auth gateway and creates the user document
// implicitly, role "user".
func (s *Store) SignUp(ctx context.Context, email, password string) (domain.User, error) {
	s.sess.setLoading()
	ident, err := s.auth.SignUp(ctx, email, password)
	if err != nil {
		s.sess.fail(err)
		return domain.User{}, err
	}
	return s.adoptIdentity(ctx, ident)
}

func (s *Store) SignIn(ctx context.Context, email, password string) (domain.User, error) {
	s.sess.setLoading()
	ident, err := s.auth.SignIn(ctx, email, password)
	if err != nil {
		s.sess.fail(err)
		return domain.User{}, err
	}
	return s.adoptIdentity(ctx, ident)
}

// adoptIdentity makes sure a user document exists for the uid (first
// authentication creates it), then loads it into the session.
func (s *Store) adoptIdentity(ctx context.Context, ident domain.Identity) (domain.User, error) {
	raw, err := s.gw.Get(ctx, domain.CollectionUsers, ident.UID)
	if err == domain.ErrNotFound {
		if err := s.gw.Upsert(ctx, domain.CollectionUsers, ident.UID, domain.EncodeNewUser(ident.Email)); err != nil {
			s.sess.fail(err)
			return domain.User{}, err
		}
		raw, err = s.gw.Get(ctx, domain.CollectionUsers, ident.UID)
	}
	if err != nil {
		s.sess.fail(err)
		return domain.User{}, err
	}
	u, err := domain.DecodeUser(ident.UID, raw)
	if err != nil {
		s.sess.fail(err)
		return domain.User{}, err
	}
	s.sess.set(u)
	return u, nil
}

// LoadUser refreshes the session user from the remote document.
func (s *Store) LoadUser(ctx context.Context, uid string) (domain.User, error) {
	s.sess.setLoading()
	raw, err := s.gw.Get(ctx, domain.CollectionUsers, uid)
	if err != nil {
		s.sess.fail(err)
		return domain.User{}, err
	}
	u, err := domain.DecodeUser(uid, raw)
	if err != nil {
		s.sess.fail(err)
		return domain.User{}, err
	}
	s.sess.set(u)
	return u, nil
}

// SignOut always succeeds locally.
func (s *Store) SignOut() {
	s.sess.mu.Lock()
	s.sess.user = nil
	s.sess.status = StatusIdle
	s.sess.err = ""
	s.sess.mu.Unlock()
}

// UpdateProfile issues one remote merge-write keyed by uid, then shallow-
// merges the payload into the local user on success.
func (s *Store) UpdateProfile(ctx context.Context, uid string, p domain.ProfilePatch) (domain.User, error) {
	if err := s.gw.Upsert(ctx, domain.CollectionUsers, uid, domain.EncodeProfilePatch(p)); err != nil {
		s.sess.fail(err)
		return domain.User{}, err
	}
	s.sess.mu.Lock()
	if s.sess.user != nil && s.sess.user.UID == uid {
		u := *s.sess.user
		if p.DisplayName != nil {
			u.DisplayName = p.DisplayName
		}
		if p.LastName != nil {
			u.LastName = p.LastName
		}
		if p.PhoneNumber != nil {
			u.PhoneNumber = p.PhoneNumber
		}
		if p.ProfilePictureURL != nil {
			u.ProfilePictureURL = p.ProfilePictureURL
		}
		s.sess.user = &u
		s.sess.status = StatusSucceeded
		s.sess.err = ""
		s.sess.mu.Unlock()
		return u, nil
	}
	s.sess.mu.Unlock()
	// Not the session user: read the merged document back instead.
	return s.fetchUser(ctx, uid)
}

func (s *Store) fetchUser(ctx context.Context, uid string) (domain.User, error) {
	raw, err := s.gw.Get(ctx, domain.CollectionUsers, uid)
	if err != nil {
		return domain.User{}, err
	}
	return domain.DecodeUser(uid, raw)
}

// ToggleFavorite reads the current favorites, computes the toggled set,
// writes the full set remotely, and applies the computed set locally (not the
// remote echo). Two racing toggles for the same user are a lost-update race:
// last local write wins, but set semantics keep duplicates impossible.
// ToggleFavorite flips the hotel's membership in the user's favorites and
// returns the updated user.
func (s *Store) ToggleFavorite(ctx context.Context, uid, hotelID string) (domain.User, error) {
	s.sess.mu.RLock()
	var u domain.User
	isSession := s.sess.user != nil && s.sess.user.UID == uid
	if isSession {
		u = *s.sess.user
		u.Favorites = append([]string(nil), s.sess.user.Favorites...)
	}
	s.sess.mu.RUnlock()
	if !isSession {
		var err error
		u, err = s.fetchUser(ctx, uid)
		if err != nil {
			return domain.User{}, err
		}
	}

	next := toggle(u.Favorites, hotelID)
	if err := s.gw.Upsert(ctx, domain.CollectionUsers, uid, domain.EncodeFavorites(next)); err != nil {
		s.sess.fail(err)
		return domain.User{}, err
	}
	u.Favorites = next

	s.sess.mu.Lock()
	if s.sess.user != nil && s.sess.user.UID == uid {
		cp := u
		s.sess.user = &cp
		s.sess.status = StatusSucceeded
		s.sess.err = ""
	}
	s.sess.mu.Unlock()
	return u, nil
}

func toggle(set []string, id string) []string {
	out := make([]string, 0, len(set)+1)
	found := false
	for _, v := range set {
		if v == id {
			found = true
			continue
		}
		out = append(out, v)
	}
	if !found {
		out = append(out, id)
	}
	return out
}

func (s *Store) CurrentUser() (domain.User, bool, Status, string) {
	s.sess.mu.RLock()
	defer s.sess.mu.RUnlock()
	if s.sess.user == nil {
		return domain.User{}, false, s.sess.status, s.sess.err
	}
	return *s.sess.user, true, s.sess.status, s.sess.err
}

func (s *session) setLoading() {
	s.mu.Lock()
	s.status = StatusLoading
	s.err = ""
	s.mu.Unlock()
}

func (s *session) fail(err error) {
	s.mu.Lock()
	s.status = StatusFailed
	s.err = err.Error()
	s.mu.Unlock()
}

func (s *session) set(u domain.User) {
	s.mu.Lock()
	s.user = &u
	s.status = StatusSucceeded
	s.err = ""
	s.mu.Unlock()
}

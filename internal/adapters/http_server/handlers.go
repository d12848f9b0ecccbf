package httpserver

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"sort"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"staybook/internal/app"
	"staybook/internal/domain"
	"staybook/internal/store"
)

type Handlers struct {
	St     *store.Store
	Q      *app.QueryService
	W      *app.BookingWorkflow
	Tokens *TokenService
}

type problem struct {
	Type   string `json:"type"`
	Title  string `json:"title"`
	Status int    `json:"status"`
	Detail string `json:"detail,omitempty"`
}

func (s *Server) MountHandlers(h *Handlers) {
	s.mux.Get("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200); _, _ = w.Write([]byte("ok")) })

	s.mux.Post("/v1/auth/register", h.register)
	s.mux.Post("/v1/auth/login", h.login)

	s.mux.Get("/v1/hotels", h.listHotels)
	s.mux.Get("/v1/hotels/{id}", h.getHotel)

	s.mux.Group(func(r chi.Router) {
		r.Use(h.Tokens.Authenticate)

		r.Post("/v1/bookings", h.submitBooking)
		r.Get("/v1/me", h.getProfile)
		r.Patch("/v1/me", h.updateProfile)
		r.Post("/v1/me/favorites/{hotelId}", h.toggleFavorite)
		r.Get("/v1/me/bookings", h.myBookings)

		r.Group(func(ra chi.Router) {
			ra.Use(RequireAdmin)
			ra.Post("/v1/hotels", h.createHotel)
			ra.Patch("/v1/hotels/{id}", h.updateHotel)
			ra.Delete("/v1/hotels/{id}", h.deleteHotel)
			ra.Get("/v1/bookings", h.listAllBookings)
			ra.Post("/v1/bookings/{id}/approve", h.approveBooking)
			ra.Post("/v1/bookings/{id}/cancel", h.cancelBooking)
			ra.Patch("/v1/bookings/{id}", h.modifyBooking)
		})
	})
}

func writeProblem(w http.ResponseWriter, status int, title, detail string) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(problem{Type: "about:blank", Title: title, Status: status, Detail: detail}); err != nil {
		log.Error().Err(err).Msg("write JSON problem response failed")
	}
}

// writeDomainErr maps the error taxonomy onto HTTP statuses, keeping the
// remote message verbatim in the detail.
func writeDomainErr(w http.ResponseWriter, err error) {
	var verr *domain.ValidationError
	var perr *domain.PaymentError
	switch {
	case errors.Is(err, domain.ErrNotFound):
		writeProblem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.As(err, &verr):
		writeProblem(w, http.StatusBadRequest, "Validation Failed", verr.Reason)
	case errors.As(err, &perr):
		writeProblem(w, http.StatusPaymentRequired, "Payment Failed", perr.Message)
	default:
		writeProblem(w, http.StatusBadGateway, "Gateway Error", err.Error())
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("write JSON response failed")
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return false
	}
	return true
}

// calcETagAndBody marshals once and hashes once, returning both ETag and body.
func calcETagAndBody(v any) (string, []byte) {
	body, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Msg("failed to marshal object for ETag/body")
		return "", nil
	}
	sum := sha1.Sum(body)
	etag := `W/"` + hex.EncodeToString(sum[:]) + `"`
	return etag, body
}

// ---- auth ----

type credentialsBody struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type sessionResponse struct {
	Token string      `json:"token"`
	UID   string      `json:"uid"`
	Email string      `json:"email"`
	Role  domain.Role `json:"role"`
}

func (h *Handlers) register(w http.ResponseWriter, r *http.Request) {
	h.session(w, r, h.St.SignUp)
}

func (h *Handlers) login(w http.ResponseWriter, r *http.Request) {
	h.session(w, r, h.St.SignIn)
}

func (h *Handlers) session(w http.ResponseWriter, r *http.Request, via func(ctx context.Context, email, password string) (domain.User, error)) {
	var body credentialsBody
	if !decodeBody(w, r, &body) {
		return
	}
	if body.Email == "" || body.Password == "" {
		writeProblem(w, http.StatusBadRequest, "Validation Failed", "email and password are required")
		return
	}
	u, err := via(r.Context(), body.Email, body.Password)
	if err != nil {
		writeProblem(w, http.StatusUnauthorized, "Authentication Failed", err.Error())
		return
	}
	token, err := h.Tokens.Issue(u.UID, u.Role)
	if err != nil {
		writeProblem(w, http.StatusInternalServerError, "Token Error", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, sessionResponse{Token: token, UID: u.UID, Email: u.Email, Role: u.Role})
}

// ---- hotels ----

func (h *Handlers) listHotels(w http.ResponseWriter, r *http.Request) {
	hotels, status, errMsg := h.St.Hotels()
	// A failed view gets retried on the next request instead of serving the
	// stale error forever.
	if status == store.StatusIdle || status == store.StatusFailed {
		if err := h.St.LoadHotels(r.Context()); err != nil {
			writeDomainErr(w, err)
			return
		}
		hotels, status, errMsg = h.St.Hotels()
	}
	if status == store.StatusFailed {
		writeProblem(w, http.StatusBadGateway, "Gateway Error", errMsg)
		return
	}
	writeJSON(w, http.StatusOK, sortedHotels(hotels))
}

func (h *Handlers) getHotel(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	resp, err := h.Q.GetHotel(r.Context(), id)
	if err != nil {
		writeDomainErr(w, err)
		return
	}

	etag, body := calcETagAndBody(resp)
	if inm := r.Header.Get("If-None-Match"); inm != "" && inm == etag {
		w.Header().Set("ETag", etag) // include ETag on 304
		w.WriteHeader(http.StatusNotModified)
		return
	}

	w.Header().Set("ETag", etag)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(body); err != nil {
		log.Error().Err(err).Msg("failed to write getHotel body")
	}
}

type hotelBody struct {
	Name         string  `json:"name"`
	Price        float64 `json:"price"`
	ImageURL     string  `json:"imageUrl"`
	Distance     string  `json:"distance"`
	RoomType     string  `json:"roomType"`
	Capacity     int     `json:"capacity"`
	Availability string  `json:"availability"`
	Rating       *int    `json:"rating"`
}

func (h *Handlers) createHotel(w http.ResponseWriter, r *http.Request) {
	var body hotelBody
	if !decodeBody(w, r, &body) {
		return
	}
	if body.Name == "" || body.Price < 0 {
		writeProblem(w, http.StatusBadRequest, "Validation Failed", "name is required and price must be non-negative")
		return
	}
	created, err := h.St.AddHotel(r.Context(), domain.Hotel{
		Name:         body.Name,
		Price:        body.Price,
		ImageURL:     body.ImageURL,
		Distance:     body.Distance,
		RoomType:     body.RoomType,
		Capacity:     body.Capacity,
		Availability: body.Availability,
		Rating:       body.Rating,
	})
	if err != nil {
		writeDomainErr(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

type hotelPatchBody struct {
	Name         *string  `json:"name"`
	Price        *float64 `json:"price"`
	ImageURL     *string  `json:"imageUrl"`
	Distance     *string  `json:"distance"`
	RoomType     *string  `json:"roomType"`
	Capacity     *int     `json:"capacity"`
	Availability *string  `json:"availability"`
	Rating       *int     `json:"rating"`
}

func (h *Handlers) updateHotel(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var body hotelPatchBody
	if !decodeBody(w, r, &body) {
		return
	}
	if body.Price != nil && *body.Price < 0 {
		writeProblem(w, http.StatusBadRequest, "Validation Failed", "price must be non-negative")
		return
	}
	err := h.St.UpdateHotel(r.Context(), id, domain.HotelPatch{
		Name:         body.Name,
		Price:        body.Price,
		ImageURL:     body.ImageURL,
		Distance:     body.Distance,
		RoomType:     body.RoomType,
		Capacity:     body.Capacity,
		Availability: body.Availability,
		Rating:       body.Rating,
	})
	if err != nil {
		writeDomainErr(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handlers) deleteHotel(w http.ResponseWriter, r *http.Request) {
	if err := h.St.DeleteHotel(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeDomainErr(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ---- bookings ----

type submitBookingBody struct {
	HotelID       string        `json:"hotelId"`
	Checkin       string        `json:"checkin"`
	Checkout      string        `json:"checkout"`
	Guests        domain.Guests `json:"guests"`
	GuestName     *string       `json:"guestName"`
	PaymentMethod string        `json:"paymentMethod"`
}

type submitBookingResponse struct {
	State   app.AttemptState `json:"state"`
	Total   float64          `json:"total"`
	Booking *domain.Booking  `json:"booking,omitempty"`
	Message string           `json:"message,omitempty"`
}

func (h *Handlers) submitBooking(w http.ResponseWriter, r *http.Request) {
	claims, _ := ClaimsFrom(r.Context())
	var body submitBookingBody
	if !decodeBody(w, r, &body) {
		return
	}
	res, err := h.W.Submit(r.Context(), app.SubmitRequest{
		UserID:        claims.UID,
		HotelID:       body.HotelID,
		Checkin:       body.Checkin,
		Checkout:      body.Checkout,
		Guests:        body.Guests,
		GuestName:     body.GuestName,
		PaymentMethod: body.PaymentMethod,
	})
	resp := submitBookingResponse{State: res.State, Total: res.Total, Message: res.Message}
	switch {
	case err == nil:
		resp.Booking = &res.Booking
		writeJSON(w, http.StatusCreated, resp)
	case errors.Is(err, app.ErrAttemptInFlight):
		writeJSON(w, http.StatusConflict, resp)
	case res.State == app.StateValidationFailed:
		writeJSON(w, http.StatusBadRequest, resp)
	case res.State == app.StateIntentFailed, res.State == app.StatePaymentFailed:
		writeJSON(w, http.StatusPaymentRequired, resp)
	default:
		writeJSON(w, http.StatusBadGateway, resp)
	}
}

// Both booking listings serialize the snapshot their own fetch returned. The
// shared view can be replaced by a concurrent request between fetch and write,
// so reading it back here could hand one caller another caller's result set.
func (h *Handlers) listAllBookings(w http.ResponseWriter, r *http.Request) {
	bookings, err := h.St.FetchAllBookings(r.Context())
	if err != nil {
		writeDomainErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sortedBookings(bookings))
}

func (h *Handlers) myBookings(w http.ResponseWriter, r *http.Request) {
	claims, _ := ClaimsFrom(r.Context())
	bookings, err := h.St.FetchUserBookings(r.Context(), claims.UID)
	if err != nil {
		writeDomainErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sortedBookings(bookings))
}

func (h *Handlers) approveBooking(w http.ResponseWriter, r *http.Request) {
	b, err := h.St.ApproveBooking(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

func (h *Handlers) cancelBooking(w http.ResponseWriter, r *http.Request) {
	b, err := h.St.CancelBooking(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

type bookingPatchBody struct {
	Checkin   *string        `json:"checkin"`
	Checkout  *string        `json:"checkout"`
	Guests    *domain.Guests `json:"guests"`
	GuestName *string        `json:"guestName"`
	RoomType  *string        `json:"roomType"`
}

func (h *Handlers) modifyBooking(w http.ResponseWriter, r *http.Request) {
	var body bookingPatchBody
	if !decodeBody(w, r, &body) {
		return
	}
	b, err := h.St.ModifyBooking(r.Context(), chi.URLParam(r, "id"), domain.BookingPatch{
		Checkin:   body.Checkin,
		Checkout:  body.Checkout,
		Guests:    body.Guests,
		GuestName: body.GuestName,
		RoomType:  body.RoomType,
	})
	if err != nil {
		writeDomainErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

// ---- profile & favorites ----

func (h *Handlers) getProfile(w http.ResponseWriter, r *http.Request) {
	claims, _ := ClaimsFrom(r.Context())
	u, err := h.St.LoadUser(r.Context(), claims.UID)
	if err != nil {
		writeDomainErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}

type profilePatchBody struct {
	DisplayName       *string `json:"displayName"`
	LastName          *string `json:"lastName"`
	PhoneNumber       *string `json:"phoneNumber"`
	ProfilePictureURL *string `json:"profilePictureUrl"`
}

func (h *Handlers) updateProfile(w http.ResponseWriter, r *http.Request) {
	claims, _ := ClaimsFrom(r.Context())
	var body profilePatchBody
	if !decodeBody(w, r, &body) {
		return
	}
	u, err := h.St.UpdateProfile(r.Context(), claims.UID, domain.ProfilePatch{
		DisplayName:       body.DisplayName,
		LastName:          body.LastName,
		PhoneNumber:       body.PhoneNumber,
		ProfilePictureURL: body.ProfilePictureURL,
	})
	if err != nil {
		writeDomainErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}

func (h *Handlers) toggleFavorite(w http.ResponseWriter, r *http.Request) {
	claims, _ := ClaimsFrom(r.Context())
	hotelID := chi.URLParam(r, "hotelId")
	u, err := h.St.ToggleFavorite(r.Context(), claims.UID, hotelID)
	if err != nil {
		writeDomainErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"favorites": u.Favorites,
		"favorited": u.HasFavorite(hotelID),
	})
}

// ---- helpers ----

func sortedHotels(m map[string]domain.Hotel) []domain.Hotel {
	out := make([]domain.Hotel, 0, len(m))
	for _, h := range m {
		out = append(out, h)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func sortedBookings(m map[string]domain.Booking) []domain.Booking {
	out := make([]domain.Booking, 0, len(m))
	for _, b := range m {
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Document codec: the wire layout of the persisted collections. Decoding is
// strict — unknown fields are rejected at the gateway boundary instead of
// propagating silently.

type hotelDoc struct {
	Name         string  `json:"name"`
	Price        float64 `json:"price"`
	ImageURL     string  `json:"imageUrl"`
	Distance     string  `json:"distance,omitempty"`
	RoomType     string  `json:"roomType,omitempty"`
	Capacity     int     `json:"capacity,omitempty"`
	Availability string  `json:"availability,omitempty"`
	Rating       *int    `json:"rating,omitempty"`
}

type guestsDoc struct {
	Adults   int `json:"adults"`
	Children int `json:"children"`
	Infants  int `json:"infants"`
	Pets     int `json:"pets"`
}

type bookingDoc struct {
	UserID     string        `json:"userId"`
	HotelID    string        `json:"hotelId"`
	Checkin    string        `json:"checkin"`
	Checkout   string        `json:"checkout"`
	Guests     guestsDoc     `json:"guests"`
	TotalPrice float64       `json:"totalPrice"`
	Status     BookingStatus `json:"status"`
	GuestName  *string       `json:"guestName,omitempty"`
	RoomType   *string       `json:"roomType,omitempty"`
}

type userDoc struct {
	Email             string   `json:"email"`
	Role              Role     `json:"role,omitempty"`
	DisplayName       *string  `json:"displayName,omitempty"`
	LastName          *string  `json:"lastName,omitempty"`
	PhoneNumber       *string  `json:"phoneNumber,omitempty"`
	ProfilePictureURL *string  `json:"profilePictureUrl,omitempty"`
	Favorites         []string `json:"favorites,omitempty"`
}

func strictDecode(raw json.RawMessage, dst any) error {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

func DecodeHotel(id string, raw json.RawMessage) (Hotel, error) {
	var d hotelDoc
	if err := strictDecode(raw, &d); err != nil {
		return Hotel{}, fmt.Errorf("hotel %s: %w", id, err)
	}
	if d.Name == "" {
		return Hotel{}, fmt.Errorf("hotel %s: missing name", id)
	}
	if d.Price < 0 {
		return Hotel{}, fmt.Errorf("hotel %s: negative price", id)
	}
	if d.Rating != nil && (*d.Rating < 0 || *d.Rating > 5) {
		return Hotel{}, fmt.Errorf("hotel %s: rating out of range", id)
	}
	return Hotel{
		ID:           id,
		Name:         d.Name,
		Price:        d.Price,
		ImageURL:     d.ImageURL,
		Distance:     d.Distance,
		RoomType:     d.RoomType,
		Capacity:     d.Capacity,
		Availability: d.Availability,
		Rating:       d.Rating,
	}, nil
}

func EncodeHotel(h Hotel) json.RawMessage {
	b, _ := json.Marshal(hotelDoc{
		Name:         h.Name,
		Price:        h.Price,
		ImageURL:     h.ImageURL,
		Distance:     h.Distance,
		RoomType:     h.RoomType,
		Capacity:     h.Capacity,
		Availability: h.Availability,
		Rating:       h.Rating,
	})
	return b
}

func EncodeHotelPatch(p HotelPatch) json.RawMessage {
	m := map[string]any{}
	if p.Name != nil {
		m["name"] = *p.Name
	}
	if p.Price != nil {
		m["price"] = *p.Price
	}
	if p.ImageURL != nil {
		m["imageUrl"] = *p.ImageURL
	}
	if p.Distance != nil {
		m["distance"] = *p.Distance
	}
	if p.RoomType != nil {
		m["roomType"] = *p.RoomType
	}
	if p.Capacity != nil {
		m["capacity"] = *p.Capacity
	}
	if p.Availability != nil {
		m["availability"] = *p.Availability
	}
	if p.Rating != nil {
		m["rating"] = *p.Rating
	}
	b, _ := json.Marshal(m)
	return b
}

// ApplyHotelPatch mirrors the gateway's merge on an in-memory copy.
func ApplyHotelPatch(h Hotel, p HotelPatch) Hotel {
	if p.Name != nil {
		h.Name = *p.Name
	}
	if p.Price != nil {
		h.Price = *p.Price
	}
	if p.ImageURL != nil {
		h.ImageURL = *p.ImageURL
	}
	if p.Distance != nil {
		h.Distance = *p.Distance
	}
	if p.RoomType != nil {
		h.RoomType = *p.RoomType
	}
	if p.Capacity != nil {
		h.Capacity = *p.Capacity
	}
	if p.Availability != nil {
		h.Availability = *p.Availability
	}
	if p.Rating != nil {
		h.Rating = p.Rating
	}
	return h
}

func DecodeBooking(id string, raw json.RawMessage) (Booking, error) {
	var d bookingDoc
	if err := strictDecode(raw, &d); err != nil {
		return Booking{}, fmt.Errorf("booking %s: %w", id, err)
	}
	if d.UserID == "" || d.HotelID == "" {
		return Booking{}, fmt.Errorf("booking %s: missing owner or hotel", id)
	}
	switch d.Status {
	case BookingPending, BookingApproved, BookingCanceled:
	default:
		return Booking{}, fmt.Errorf("booking %s: unknown status %q", id, d.Status)
	}
	g := Guests{Adults: d.Guests.Adults, Children: d.Guests.Children, Infants: d.Guests.Infants, Pets: d.Guests.Pets}
	if g.Negative() {
		return Booking{}, fmt.Errorf("booking %s: negative guest count", id)
	}
	return Booking{
		ID:         id,
		UserID:     d.UserID,
		HotelID:    d.HotelID,
		Checkin:    d.Checkin,
		Checkout:   d.Checkout,
		Guests:     g,
		TotalPrice: d.TotalPrice,
		Status:     d.Status,
		GuestName:  d.GuestName,
		RoomType:   d.RoomType,
	}, nil
}

func EncodeBooking(b Booking) json.RawMessage {
	raw, _ := json.Marshal(bookingDoc{
		UserID:   b.UserID,
		HotelID:  b.HotelID,
		Checkin:  b.Checkin,
		Checkout: b.Checkout,
		Guests: guestsDoc{
			Adults:   b.Guests.Adults,
			Children: b.Guests.Children,
			Infants:  b.Guests.Infants,
			Pets:     b.Guests.Pets,
		},
		TotalPrice: b.TotalPrice,
		Status:     b.Status,
		GuestName:  b.GuestName,
		RoomType:   b.RoomType,
	})
	return raw
}

func EncodeBookingPatch(p BookingPatch) json.RawMessage {
	m := map[string]any{}
	if p.Checkin != nil {
		m["checkin"] = *p.Checkin
	}
	if p.Checkout != nil {
		m["checkout"] = *p.Checkout
	}
	if p.Guests != nil {
		m["guests"] = guestsDoc{
			Adults:   p.Guests.Adults,
			Children: p.Guests.Children,
			Infants:  p.Guests.Infants,
			Pets:     p.Guests.Pets,
		}
	}
	if p.GuestName != nil {
		m["guestName"] = *p.GuestName
	}
	if p.RoomType != nil {
		m["roomType"] = *p.RoomType
	}
	b, _ := json.Marshal(m)
	return b
}

func EncodeBookingStatus(status BookingStatus) json.RawMessage {
	b, _ := json.Marshal(map[string]any{"status": status})
	return b
}

func DecodeUser(uid string, raw json.RawMessage) (User, error) {
	var d userDoc
	if err := strictDecode(raw, &d); err != nil {
		return User{}, fmt.Errorf("user %s: %w", uid, err)
	}
	role := d.Role
	if role == "" {
		// Stored flag absent means plain user.
		role = RoleUser
	}
	if role != RoleUser && role != RoleAdmin {
		return User{}, fmt.Errorf("user %s: unknown role %q", uid, d.Role)
	}
	return User{
		UID:               uid,
		Email:             d.Email,
		Role:              role,
		DisplayName:       d.DisplayName,
		LastName:          d.LastName,
		PhoneNumber:       d.PhoneNumber,
		ProfilePictureURL: d.ProfilePictureURL,
		Favorites:         d.Favorites,
	}, nil
}

func EncodeNewUser(email string) json.RawMessage {
	b, _ := json.Marshal(userDoc{Email: email, Role: RoleUser, Favorites: []string{}})
	return b
}

func EncodeProfilePatch(p ProfilePatch) json.RawMessage {
	m := map[string]any{}
	if p.DisplayName != nil {
		m["displayName"] = *p.DisplayName
	}
	if p.LastName != nil {
		m["lastName"] = *p.LastName
	}
	if p.PhoneNumber != nil {
		m["phoneNumber"] = *p.PhoneNumber
	}
	if p.ProfilePictureURL != nil {
		m["profilePictureUrl"] = *p.ProfilePictureURL
	}
	b, _ := json.Marshal(m)
	return b
}

func EncodeFavorites(favorites []string) json.RawMessage {
	b, _ := json.Marshal(map[string]any{"favorites": favorites})
	return b
}

func HotelsFromSnapshot(snap Snapshot) (map[string]Hotel, error) {
	out := make(map[string]Hotel, len(snap))
	for id, raw := range snap {
		h, err := DecodeHotel(id, raw)
		if err != nil {
			return nil, err
		}
		out[id] = h
	}
	return out, nil
}

func BookingsFromSnapshot(snap Snapshot) (map[string]Booking, error) {
	out := make(map[string]Booking, len(snap))
	for id, raw := range snap {
		b, err := DecodeBooking(id, raw)
		if err != nil {
			return nil, err
		}
		out[id] = b
	}
	return out, nil
}

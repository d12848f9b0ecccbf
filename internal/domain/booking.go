package domain

type BookingStatus string

const (
	BookingPending  BookingStatus = "pending"
	BookingApproved BookingStatus = "approved"
	BookingCanceled BookingStatus = "canceled"
)

// Guests holds per-category head counts. Only adults and children count
// toward the extra-guest fee.
type Guests struct {
	Adults   int `json:"adults"`
	Children int `json:"children"`
	Infants  int `json:"infants"`
	Pets     int `json:"pets"`
}

func (g Guests) Negative() bool {
	return g.Adults < 0 || g.Children < 0 || g.Infants < 0 || g.Pets < 0
}

// Booking dates are stored as YYYY-MM-DD strings, matching the persisted
// document layout. TotalPrice is fixed at creation time and never recomputed
// by status transitions.
type Booking struct {
	ID         string        `json:"id"`
	UserID     string        `json:"userId"`
	HotelID    string        `json:"hotelId"`
	Checkin    string        `json:"checkin"`
	Checkout   string        `json:"checkout"`
	Guests     Guests        `json:"guests"`
	TotalPrice float64       `json:"totalPrice"`
	Status     BookingStatus `json:"status"`
	GuestName  *string       `json:"guestName,omitempty"`
	RoomType   *string       `json:"roomType,omitempty"`
}

// BookingPatch is the admin modify-fields payload. Price and status are
// intentionally absent; status moves only through Approve/Cancel.
type BookingPatch struct {
	Checkin   *string
	Checkout  *string
	Guests    *Guests
	GuestName *string
	RoomType  *string
}

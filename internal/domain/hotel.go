package domain

type Hotel struct {
	ID           string  `json:"id"`
	Name         string  `json:"name"`
	Price        float64 `json:"price"` // nightly rate
	ImageURL     string  `json:"imageUrl"`
	Distance     string  `json:"distance,omitempty"`
	RoomType     string  `json:"roomType,omitempty"`
	Capacity     int     `json:"capacity,omitempty"`
	Availability string  `json:"availability,omitempty"`
	Rating       *int    `json:"rating,omitempty"` // 0..5 when present
}

// HotelPatch carries a partial hotel update. Nil fields are left untouched by
// the gateway's merge-update.
type HotelPatch struct {
	Name         *string
	Price        *float64
	ImageURL     *string
	Distance     *string
	RoomType     *string
	Capacity     *int
	Availability *string
	Rating       *int
}

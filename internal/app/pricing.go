package app

import (
	"math"
	"time"

	"staybook/internal/domain"
)

// Per extra guest, per night, in major currency units. Only adults and
// children count; the first guest stays free of the surcharge.
const extraGuestFee = 500

const dateLayout = "2006-01-02"

// Nights returns the whole-day span between checkin and checkout, collapsing
// zero or negative spans to a single night.
func Nights(checkin, checkout time.Time) int {
	days := int(checkout.Sub(checkin).Hours() / 24)
	if days < 1 {
		return 1
	}
	return days
}

// Quote computes the total booking price. Pure and deterministic: the stored
// booking fields are enough to re-derive it for auditing.
func Quote(nightly float64, checkin, checkout time.Time, g domain.Guests) float64 {
	nights := Nights(checkin, checkout)
	extra := g.Adults + g.Children - 1
	if extra < 0 {
		extra = 0
	}
	return nightly*float64(nights) + float64(extra*extraGuestFee*nights)
}

// MinorUnits converts a major-unit amount to the smallest currency unit for
// the payment gateway.
func MinorUnits(amount float64) int64 {
	return int64(math.Round(amount * 100))
}

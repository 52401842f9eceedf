package domain

import (
	"time"

	"crowdship-engine/internal/geo"
)

// Route is a carrier's planned trip window. Created and updated by the
// deliverer, read-only to the matching engine.
type Route struct {
	ID               string
	OwnerDelivererID string
	DepartureAddress string
	ArrivalAddress   string
	Departure        geo.Point
	Arrival          geo.Point
	Window           geo.Window
	CapacityKg       float64
	CarrierRating    float64 // 0..5
	Active           bool
	CreatedAt        time.Time
}

// HasCoordinates reports whether both trip endpoints are geocoded.
func (r *Route) HasCoordinates() bool {
	return !r.Departure.IsZero() && !r.Arrival.IsZero()
}

// CanCarry reports whether the route has capacity for the given weight.
// Zero capacity means unconstrained.
func (r *Route) CanCarry(weightKg float64) bool {
	return r.CapacityKg <= 0 || weightKg <= r.CapacityKg
}

package domain

import (
	"time"

	"crowdship-engine/internal/geo"
)

// AnnouncementType represents what a client is asking for.
type AnnouncementType string

// List of possible announcement types.
const (
	TypePackageDelivery       AnnouncementType = "PACKAGE_DELIVERY"
	TypeCartDrop              AnnouncementType = "CART_DROP"
	TypePartialDelivery       AnnouncementType = "PARTIAL_DELIVERY"
	TypeService               AnnouncementType = "SERVICE"
	TypeShopping              AnnouncementType = "SHOPPING"
	TypeInternationalPurchase AnnouncementType = "INTERNATIONAL_PURCHASE"
)

var allowedTypes = [...]AnnouncementType{
	TypePackageDelivery, TypeCartDrop, TypePartialDelivery,
	TypeService, TypeShopping, TypeInternationalPurchase,
}

// Valid checks if the AnnouncementType is valid.
func (t AnnouncementType) Valid() bool {
	for _, v := range allowedTypes {
		if t == v {
			return true
		}
	}
	return false
}

// Announcement is a client's request to move a parcel or perform a service.
// Status is mutated only by the lifecycle machine; FinalPrice is set once,
// when funds are held.
type Announcement struct {
	ID              string
	Type            AnnouncementType
	Status          AnnouncementStatus
	OwnerClientID   string
	PickupAddress   string
	DeliveryAddress string
	Pickup          geo.Point
	Delivery        geo.Point
	PickupWindow    geo.Window
	WeightKg        float64
	Fragile         bool
	Insured         bool
	SuggestedPrice  float64
	FinalPrice      float64
	CreatedAt       time.Time
	ExpiresAt       time.Time
}

// HasCoordinates reports whether both endpoints are geocoded. The matching
// engine refuses announcements without them.
func (a *Announcement) HasCoordinates() bool {
	return !a.Pickup.IsZero() && !a.Delivery.IsZero()
}

// Expired reports whether the announcement is past its expiry.
func (a *Announcement) Expired(now time.Time) bool {
	return !a.ExpiresAt.IsZero() && now.After(a.ExpiresAt)
}

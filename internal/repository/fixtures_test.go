//go:build integration

package repository_test

import (
	"time"

	"github.com/google/uuid"

	"crowdship-engine/internal/domain"
	"crowdship-engine/internal/geo"
)

// Shared row builders. Every timestamp is truncated to microseconds so
// round trips through timestamptz compare cleanly.

func tcNow() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}

func newAnnouncement(status domain.AnnouncementStatus) *domain.Announcement {
	now := tcNow()
	return &domain.Announcement{
		ID:              uuid.NewString(),
		Type:            domain.TypePackageDelivery,
		Status:          status,
		OwnerClientID:   "client-1",
		PickupAddress:   "10 Rue de Rivoli, Paris",
		DeliveryAddress: "1 Place Bellecour, Lyon",
		Pickup:          geo.Point{Lat: 48.8566, Lng: 2.3522},
		Delivery:        geo.Point{Lat: 45.7640, Lng: 4.8357},
		PickupWindow:    geo.Window{From: now.Add(time.Hour), To: now.Add(6 * time.Hour)},
		WeightKg:        4.5,
		SuggestedPrice:  30,
		CreatedAt:       now,
		ExpiresAt:       now.Add(48 * time.Hour),
	}
}

func newRoute() *domain.Route {
	now := tcNow()
	return &domain.Route{
		ID:               uuid.NewString(),
		OwnerDelivererID: "deliverer-1",
		DepartureAddress: "Paris",
		ArrivalAddress:   "Lyon",
		Departure:        geo.Point{Lat: 48.86, Lng: 2.35},
		Arrival:          geo.Point{Lat: 45.76, Lng: 4.83},
		Window:           geo.Window{From: now.Add(time.Hour), To: now.Add(8 * time.Hour)},
		CapacityKg:       20,
		CarrierRating:    4.5,
		Active:           true,
		CreatedAt:        now,
	}
}

func newMatch(announcementID, routeID string, score float64) domain.Match {
	return domain.Match{
		ID:             uuid.NewString(),
		AnnouncementID: announcementID,
		RouteID:        routeID,
		DelivererID:    "deliverer-1",
		Score:          score,
		Reasons:        []domain.MatchReason{domain.ReasonTimingCompatible, domain.ReasonLowDetour},
		DistanceKm:     392.1,
		DetourPercent:  3.4,
		PriceEstimate:  31.5,
		PickupPoint:    geo.Point{Lat: 48.8566, Lng: 2.3522},
		DeliveryPoint:  geo.Point{Lat: 45.7640, Lng: 4.8357},
		Status:         domain.MatchPending,
		CreatedAt:      tcNow(),
	}
}

func newEscrow(announcementID string) *domain.EscrowTransaction {
	now := tcNow()
	return &domain.EscrowTransaction{
		ID:             uuid.NewString(),
		AnnouncementID: announcementID,
		ClientID:       "client-1",
		Amount:         30,
		Currency:       "EUR",
		Breakdown: domain.Breakdown{
			ServiceAmount: 20,
			DeliveryFee:   5,
			PlatformFee:   3,
			VATAmount:     2,
		},
		Status:         domain.EscrowPending,
		HeldUntil:      now.Add(72 * time.Hour),
		ValidationCode: "482913",
		Metadata:       map[string]string{"channel": "api"},
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

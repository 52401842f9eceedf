package handlers

import (
	"time"

	"crowdship-engine/internal/domain"
	"crowdship-engine/internal/geo"
)

func (p *pointDTO) toModel() geo.Point {
	if p == nil {
		return geo.Point{}
	}
	return geo.Point{Lat: p.Lat, Lng: p.Lng}
}

func pointToResponse(p geo.Point) pointDTO {
	return pointDTO{Lat: p.Lat, Lng: p.Lng}
}

func (w windowDTO) toModel() geo.Window {
	return geo.Window{From: w.From, To: w.To}
}

func windowToResponse(w geo.Window) windowDTO {
	return windowDTO{From: w.From, To: w.To}
}

func (r createAnnouncementRequest) toModel() *domain.Announcement {
	a := &domain.Announcement{
		Type:            r.Type,
		OwnerClientID:   r.OwnerClientID,
		PickupAddress:   r.PickupAddress,
		DeliveryAddress: r.DeliveryAddress,
		Pickup:          r.Pickup.toModel(),
		Delivery:        r.Delivery.toModel(),
		PickupWindow:    r.PickupWindow.toModel(),
		WeightKg:        r.WeightKg,
		Fragile:         r.Fragile,
		Insured:         r.Insured,
		SuggestedPrice:  r.SuggestedPrice,
	}
	if r.ExpiresAt != nil {
		a.ExpiresAt = *r.ExpiresAt
	}
	return a
}

func announcementToResponse(a *domain.Announcement) announcementDTO {
	dto := announcementDTO{
		ID:              a.ID,
		Type:            a.Type,
		Status:          a.Status,
		OwnerClientID:   a.OwnerClientID,
		PickupAddress:   a.PickupAddress,
		DeliveryAddress: a.DeliveryAddress,
		Pickup:          pointToResponse(a.Pickup),
		Delivery:        pointToResponse(a.Delivery),
		PickupWindow:    windowToResponse(a.PickupWindow),
		WeightKg:        a.WeightKg,
		Fragile:         a.Fragile,
		Insured:         a.Insured,
		SuggestedPrice:  a.SuggestedPrice,
		FinalPrice:      a.FinalPrice,
		CreatedAt:       a.CreatedAt,
	}
	dto.ExpiresAt = timePtr(a.ExpiresAt)
	return dto
}

func (r createRouteRequest) toModel() *domain.Route {
	return &domain.Route{
		OwnerDelivererID: r.OwnerDelivererID,
		DepartureAddress: r.DepartureAddress,
		ArrivalAddress:   r.ArrivalAddress,
		Departure:        r.Departure.toModel(),
		Arrival:          r.Arrival.toModel(),
		Window:           r.Window.toModel(),
		CapacityKg:       r.CapacityKg,
		CarrierRating:    r.CarrierRating,
	}
}

func routeToResponse(rt *domain.Route) routeDTO {
	return routeDTO{
		ID:               rt.ID,
		OwnerDelivererID: rt.OwnerDelivererID,
		DepartureAddress: rt.DepartureAddress,
		ArrivalAddress:   rt.ArrivalAddress,
		Departure:        pointToResponse(rt.Departure),
		Arrival:          pointToResponse(rt.Arrival),
		Window:           windowToResponse(rt.Window),
		CapacityKg:       rt.CapacityKg,
		CarrierRating:    rt.CarrierRating,
		Active:           rt.Active,
		CreatedAt:        rt.CreatedAt,
	}
}

func matchToResponse(m domain.Match) matchDTO {
	return matchDTO{
		ID:             m.ID,
		AnnouncementID: m.AnnouncementID,
		RouteID:        m.RouteID,
		DelivererID:    m.DelivererID,
		Score:          m.Score,
		Reasons:        m.Reasons,
		DistanceKm:     m.DistanceKm,
		DetourPercent:  m.DetourPercent,
		PriceEstimate:  m.PriceEstimate,
		Status:         m.Status,
		CreatedAt:      m.CreatedAt,
	}
}

func matchesToResponse(list []domain.Match) []matchDTO {
	out := make([]matchDTO, 0, len(list))
	for _, m := range list {
		out = append(out, matchToResponse(m))
	}
	return out
}

func (b breakdownDTO) toModel() domain.Breakdown {
	return domain.Breakdown{
		ServiceAmount: b.ServiceAmount,
		DeliveryFee:   b.DeliveryFee,
		PlatformFee:   b.PlatformFee,
		VATAmount:     b.VATAmount,
	}
}

func breakdownToResponse(b domain.Breakdown) breakdownDTO {
	return breakdownDTO{
		ServiceAmount: b.ServiceAmount,
		DeliveryFee:   b.DeliveryFee,
		PlatformFee:   b.PlatformFee,
		VATAmount:     b.VATAmount,
	}
}

func escrowToResponse(e *domain.EscrowTransaction) escrowDTO {
	dto := escrowDTO{
		ID:             e.ID,
		AnnouncementID: e.AnnouncementID,
		ClientID:       e.ClientID,
		DelivererID:    e.DelivererID,
		Amount:         e.Amount,
		Currency:       e.Currency,
		Breakdown:      breakdownToResponse(e.Breakdown),
		Status:         e.Status,
		CodeAttempts:   e.CodeAttempts,
		DisputeRaised:  e.DisputeRaised,
		CreatedAt:      e.CreatedAt,
	}
	dto.HeldUntil = timePtr(e.HeldUntil)
	for _, ev := range e.Events {
		dto.Events = append(dto.Events, escrowEventDTO{
			EventType:  ev.EventType,
			FromStatus: ev.FromStatus,
			ToStatus:   ev.ToStatus,
			Actor:      ev.Actor,
			At:         ev.At,
			Reason:     ev.Reason,
		})
	}
	return dto
}

// timePtr keeps zero timestamps out of responses.
func timePtr(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

package handlers

import (
	"time"

	"crowdship-engine/internal/domain"
)

type pointDTO struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

type windowDTO struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

type createAnnouncementRequest struct {
	Type            domain.AnnouncementType `json:"type"`
	OwnerClientID   string                  `json:"owner_client_id"`
	PickupAddress   string                  `json:"pickup_address"`
	DeliveryAddress string                  `json:"delivery_address"`
	Pickup          *pointDTO               `json:"pickup,omitempty"`
	Delivery        *pointDTO               `json:"delivery,omitempty"`
	PickupWindow    windowDTO               `json:"pickup_window"`
	WeightKg        float64                 `json:"weight_kg"`
	Fragile         bool                    `json:"fragile"`
	Insured         bool                    `json:"insured"`
	SuggestedPrice  float64                 `json:"suggested_price"`
	ExpiresAt       *time.Time              `json:"expires_at,omitempty"`
}

type announcementDTO struct {
	ID              string                    `json:"id"`
	Type            domain.AnnouncementType   `json:"type"`
	Status          domain.AnnouncementStatus `json:"status"`
	OwnerClientID   string                    `json:"owner_client_id"`
	PickupAddress   string                    `json:"pickup_address"`
	DeliveryAddress string                    `json:"delivery_address"`
	Pickup          pointDTO                  `json:"pickup"`
	Delivery        pointDTO                  `json:"delivery"`
	PickupWindow    windowDTO                 `json:"pickup_window"`
	WeightKg        float64                   `json:"weight_kg"`
	Fragile         bool                      `json:"fragile"`
	Insured         bool                      `json:"insured"`
	SuggestedPrice  float64                   `json:"suggested_price"`
	FinalPrice      float64                   `json:"final_price,omitempty"`
	CreatedAt       time.Time                 `json:"created_at"`
	ExpiresAt       *time.Time                `json:"expires_at,omitempty"`
}

type createRouteRequest struct {
	OwnerDelivererID string    `json:"owner_deliverer_id"`
	DepartureAddress string    `json:"departure_address"`
	ArrivalAddress   string    `json:"arrival_address"`
	Departure        *pointDTO `json:"departure,omitempty"`
	Arrival          *pointDTO `json:"arrival,omitempty"`
	Window           windowDTO `json:"window"`
	CapacityKg       float64   `json:"capacity_kg"`
	CarrierRating    float64   `json:"carrier_rating"`
}

type routeDTO struct {
	ID               string    `json:"id"`
	OwnerDelivererID string    `json:"owner_deliverer_id"`
	DepartureAddress string    `json:"departure_address"`
	ArrivalAddress   string    `json:"arrival_address"`
	Departure        pointDTO  `json:"departure"`
	Arrival          pointDTO  `json:"arrival"`
	Window           windowDTO `json:"window"`
	CapacityKg       float64   `json:"capacity_kg"`
	CarrierRating    float64   `json:"carrier_rating"`
	Active           bool      `json:"active"`
	CreatedAt        time.Time `json:"created_at"`
}

type transitionRequest struct {
	Target domain.AnnouncementStatus `json:"target"`
	Actor  string                    `json:"actor"`
}

type matchDTO struct {
	ID             string               `json:"id"`
	AnnouncementID string               `json:"announcement_id"`
	RouteID        string               `json:"route_id"`
	DelivererID    string               `json:"deliverer_id"`
	Score          float64              `json:"score"`
	Reasons        []domain.MatchReason `json:"reasons,omitempty"`
	DistanceKm     float64              `json:"distance_km"`
	DetourPercent  float64              `json:"detour_percent"`
	PriceEstimate  float64              `json:"price_estimate"`
	Status         domain.MatchStatus   `json:"status"`
	CreatedAt      time.Time            `json:"created_at"`
}

type acceptMatchRequest struct {
	DelivererID string `json:"deliverer_id"`
}

// conflictResponse carries the strongest surviving candidate when an
// accept loses the race.
type conflictResponse struct {
	Error       string `json:"error"`
	NextMatchID string `json:"next_match_id,omitempty"`
}

type breakdownDTO struct {
	ServiceAmount float64 `json:"service_amount"`
	DeliveryFee   float64 `json:"delivery_fee"`
	PlatformFee   float64 `json:"platform_fee"`
	VATAmount     float64 `json:"vat_amount"`
}

type holdEscrowRequest struct {
	Amount    float64      `json:"amount"`
	Breakdown breakdownDTO `json:"breakdown"`
}

type validateCodeRequest struct {
	Code  string `json:"code"`
	Actor string `json:"actor,omitempty"`
}

type refundEscrowRequest struct {
	Reason string `json:"reason"`
}

type disputeEscrowRequest struct {
	Reason string `json:"reason"`
}

type escrowEventDTO struct {
	EventType  string              `json:"event_type"`
	FromStatus domain.EscrowStatus `json:"from_status"`
	ToStatus   domain.EscrowStatus `json:"to_status"`
	Actor      string              `json:"actor"`
	At         time.Time           `json:"at"`
	Reason     string              `json:"reason,omitempty"`
}

// escrowDTO never carries the validation code; the code travels to the
// client exactly once, in the hold response.
type escrowDTO struct {
	ID             string              `json:"id"`
	AnnouncementID string              `json:"announcement_id"`
	ClientID       string              `json:"client_id"`
	DelivererID    string              `json:"deliverer_id,omitempty"`
	Amount         float64             `json:"amount"`
	Currency       string              `json:"currency"`
	Breakdown      breakdownDTO        `json:"breakdown"`
	Status         domain.EscrowStatus `json:"status"`
	HeldUntil      *time.Time          `json:"held_until,omitempty"`
	CodeAttempts   int                 `json:"code_attempts"`
	DisputeRaised  bool                `json:"dispute_raised"`
	Events         []escrowEventDTO    `json:"events,omitempty"`
	CreatedAt      time.Time           `json:"created_at"`
}

type holdEscrowResponse struct {
	escrowDTO
	ValidationCode string `json:"validation_code"`
}

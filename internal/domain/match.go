package domain

import (
	"time"

	"crowdship-engine/internal/geo"
)

type (
	// MatchStatus represents the state of a match candidate.
	MatchStatus string
	// MatchReason is an audit tag explaining why a pairing was proposed.
	MatchReason string
)

// List of possible match states.
const (
	MatchPending     MatchStatus = "PENDING"
	MatchAccepted    MatchStatus = "ACCEPTED"
	MatchRejected    MatchStatus = "REJECTED"
	MatchInvalidated MatchStatus = "INVALIDATED"
	MatchExpired     MatchStatus = "EXPIRED"
)

// Reason tags attached to generated matches. Informational only,
// never used for scoring.
const (
	ReasonSameRoute        MatchReason = "SAME_ROUTE"
	ReasonTimingCompatible MatchReason = "TIMING_COMPATIBLE"
	ReasonLowDetour        MatchReason = "LOW_DETOUR"
	ReasonPriceAttractive  MatchReason = "PRICE_ATTRACTIVE"
	ReasonRatedCarrier     MatchReason = "RATED_CARRIER"
)

// Live reports whether the match can still be accepted.
func (s MatchStatus) Live() bool {
	return s == MatchPending
}

// Match is a scored candidate pairing of one announcement with one route.
// All cross-references are by id; at most one match per announcement may
// ever be ACCEPTED.
type Match struct {
	ID             string
	AnnouncementID string
	RouteID        string
	DelivererID    string
	Score          float64 // 0..100
	Reasons        []MatchReason
	DistanceKm     float64
	DetourPercent  float64
	PriceEstimate  float64
	PickupPoint    geo.Point
	DeliveryPoint  geo.Point
	Status         MatchStatus
	Notified       bool
	CreatedAt      time.Time
}

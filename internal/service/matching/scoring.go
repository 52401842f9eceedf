package matching

import (
	"math"
	"sort"
	"time"

	"github.com/google/uuid"

	"crowdship-engine/internal/config"
	"crowdship-engine/internal/domain"
	"crowdship-engine/internal/geo"
)

// sameRouteDetourPercent marks pairings where the carrier barely leaves the
// planned trip.
const sameRouteDetourPercent = 5.0

// scorer turns (announcement, route) pairs into scored candidates using the
// configured weights. It is pure; persistence happens in the Service.
type scorer struct {
	cfg config.Matching
}

// estimate prices the trip from the configured base fare and per-km rate.
func (s scorer) estimate(tripKm float64) float64 {
	return domain.Round2(s.cfg.BaseFare + s.cfg.PerKmRate*tripKm)
}

// priceScore rates how close the client's suggested price sits to the
// engine's estimate. Announcements without a suggested price score neutral.
func (s scorer) priceScore(suggested, estimate float64) float64 {
	if suggested <= 0 {
		return 0.5
	}
	tolerance := suggested * s.cfg.PriceFlexibility
	if tolerance <= 0 {
		return 0.5
	}
	delta := math.Abs(suggested - estimate)
	return 1 - math.Min(1, delta/tolerance)
}

// build evaluates one route against the announcement. Reports false when
// the pairing fails a hard filter.
func (s scorer) build(a *domain.Announcement, r *domain.Route, now time.Time) (domain.Match, bool) {
	if !r.HasCoordinates() || !r.CanCarry(a.WeightKg) {
		return domain.Match{}, false
	}

	overlap := r.Window.OverlapRatio(a.PickupWindow)
	if overlap <= 0 {
		return domain.Match{}, false
	}

	detour := geo.DetourPercent(r.Departure, r.Arrival, a.Pickup, a.Delivery)
	if detour > s.cfg.MaxDetourPercent {
		return domain.Match{}, false
	}

	approachKm := geo.DistanceKm(r.Departure, a.Pickup)
	if approachKm > s.cfg.MaxDistanceKm {
		return domain.Match{}, false
	}

	tripKm := geo.DistanceKm(a.Pickup, a.Delivery)
	estimate := s.estimate(tripKm)

	distScore := 1 - math.Min(1, approachKm/s.cfg.MaxDistanceKm)
	detourScore := 1 - detour/s.cfg.MaxDetourPercent
	ratingScore := math.Min(1, r.CarrierRating/5)
	priceScore := s.priceScore(a.SuggestedPrice, estimate)

	w := s.cfg.Weights
	total := w.Distance + w.Detour + w.Time + w.Rating + w.Price
	if total <= 0 {
		return domain.Match{}, false
	}
	score := 100 * (w.Distance*distScore +
		w.Detour*detourScore +
		w.Time*overlap +
		w.Rating*ratingScore +
		w.Price*priceScore) / total

	m := domain.Match{
		ID:             uuid.NewString(),
		AnnouncementID: a.ID,
		RouteID:        r.ID,
		DelivererID:    r.OwnerDelivererID,
		Score:          math.Round(score*100) / 100,
		Reasons:        reasons(detour, overlap, priceScore, r.CarrierRating, s.cfg.MaxDetourPercent),
		DistanceKm:     math.Round(approachKm*100) / 100,
		DetourPercent:  math.Round(detour*100) / 100,
		PriceEstimate:  estimate,
		PickupPoint:    a.Pickup,
		DeliveryPoint:  a.Delivery,
		Status:         domain.MatchPending,
		CreatedAt:      now,
	}
	return m, true
}

func reasons(detour, overlap, priceScore, rating, detourCeiling float64) []domain.MatchReason {
	var out []domain.MatchReason
	if detour <= sameRouteDetourPercent {
		out = append(out, domain.ReasonSameRoute)
	}
	if overlap >= 0.5 {
		out = append(out, domain.ReasonTimingCompatible)
	}
	if detour <= detourCeiling/2 {
		out = append(out, domain.ReasonLowDetour)
	}
	if priceScore >= 0.8 {
		out = append(out, domain.ReasonPriceAttractive)
	}
	if rating >= 4.5 {
		out = append(out, domain.ReasonRatedCarrier)
	}
	return out
}

// rank orders candidates best first: score descending, ties broken by
// earliest route departure, then lowest detour.
func rank(matches []domain.Match, departures map[string]time.Time) {
	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].Score != matches[j].Score {
			return matches[i].Score > matches[j].Score
		}
		di, dj := departures[matches[i].RouteID], departures[matches[j].RouteID]
		if !di.Equal(dj) {
			return di.Before(dj)
		}
		return matches[i].DetourPercent < matches[j].DetourPercent
	})
}

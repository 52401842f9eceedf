package matching

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"crowdship-engine/internal/config"
	"crowdship-engine/internal/domain"
	"crowdship-engine/internal/geo"
)

func testScorer() scorer {
	return scorer{cfg: config.DefaultMatching()}
}

func testAnnouncement(window geo.Window) *domain.Announcement {
	return &domain.Announcement{
		ID:             "a-1",
		Type:           domain.TypePackageDelivery,
		Status:         domain.StatusActive,
		OwnerClientID:  "c-1",
		Pickup:         geo.Point{Lat: 48.8566, Lng: 2.3522},  // Paris
		Delivery:       geo.Point{Lat: 45.7640, Lng: 4.8357},  // Lyon
		PickupWindow:   window,
		WeightKg:       5,
		SuggestedPrice: 60,
	}
}

func testRoute(window geo.Window) *domain.Route {
	return &domain.Route{
		ID:               "r-1",
		OwnerDelivererID: "d-1",
		Departure:        geo.Point{Lat: 48.85, Lng: 2.35},   // Paris
		Arrival:          geo.Point{Lat: 43.2965, Lng: 5.3698}, // Marseille
		Window:           window,
		CapacityKg:       20,
		CarrierRating:    4.8,
		Active:           true,
	}
}

func TestScorer_Build_OnRouteCandidatePasses(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)
	w := geo.Window{From: now, To: now.Add(6 * time.Hour)}

	s := testScorer()
	m, ok := s.build(testAnnouncement(w), testRoute(w), now)
	require.True(t, ok)
	require.Greater(t, m.Score, 0.0)
	require.LessOrEqual(t, m.Score, 100.0)
	require.Equal(t, domain.MatchPending, m.Status)
	require.Contains(t, m.Reasons, domain.ReasonTimingCompatible)
	require.Contains(t, m.Reasons, domain.ReasonRatedCarrier)
}

func TestScorer_Build_RejectsExcessiveDetour(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)
	w := geo.Window{From: now, To: now.Add(6 * time.Hour)}

	a := testAnnouncement(w)
	a.Delivery = geo.Point{Lat: 48.3904, Lng: -4.4861} // Brest, далеко в сторону

	s := testScorer()
	_, ok := s.build(a, testRoute(w), now)
	require.False(t, ok)
}

func TestScorer_Build_RejectsDisjointWindows(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)
	a := testAnnouncement(geo.Window{From: now, To: now.Add(2 * time.Hour)})
	r := testRoute(geo.Window{From: now.Add(3 * time.Hour), To: now.Add(5 * time.Hour)})

	s := testScorer()
	_, ok := s.build(a, r, now)
	require.False(t, ok)
}

func TestScorer_Build_RejectsOverweight(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)
	w := geo.Window{From: now, To: now.Add(6 * time.Hour)}

	a := testAnnouncement(w)
	a.WeightKg = 50

	s := testScorer()
	_, ok := s.build(a, testRoute(w), now)
	require.False(t, ok)
}

// Score never rises when distance or detour grows, other factors fixed.
func TestScorer_Build_ScoreMonotonicity(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)
	w := geo.Window{From: now, To: now.Add(6 * time.Hour)}
	s := testScorer()

	a := testAnnouncement(w)
	prev := 101.0
	// отодвигаем точку старта маршрута все дальше от пикапа
	for _, latOffset := range []float64{0, 0.05, 0.1, 0.2, 0.3} {
		r := testRoute(w)
		r.Departure.Lat += latOffset
		m, ok := s.build(a, r, now)
		require.True(t, ok, "offset %v", latOffset)
		require.LessOrEqual(t, m.Score, prev, "offset %v", latOffset)
		prev = m.Score
	}
}

func TestRank_OrdersByScoreThenDepartureThenDetour(t *testing.T) {
	t.Parallel()

	early := time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)
	late := early.Add(2 * time.Hour)

	matches := []domain.Match{
		{ID: "m-low", RouteID: "r-1", Score: 40},
		{ID: "m-late", RouteID: "r-2", Score: 80, DetourPercent: 10},
		{ID: "m-early", RouteID: "r-3", Score: 80, DetourPercent: 10},
		{ID: "m-tight", RouteID: "r-4", Score: 80, DetourPercent: 5},
	}
	departures := map[string]time.Time{
		"r-1": early,
		"r-2": late,
		"r-3": early,
		"r-4": late,
	}

	rank(matches, departures)

	require.Equal(t, "m-early", matches[0].ID)
	require.Equal(t, "m-tight", matches[1].ID) // при равном времени выигрывает меньший крюк
	require.Equal(t, "m-late", matches[2].ID)
	require.Equal(t, "m-low", matches[3].ID)
}

func TestScorer_PriceScore(t *testing.T) {
	t.Parallel()

	s := testScorer()

	require.Equal(t, 0.5, s.priceScore(0, 50))
	require.Equal(t, 1.0, s.priceScore(50, 50))
	require.Less(t, s.priceScore(50, 70), s.priceScore(50, 55))
	require.Equal(t, 0.0, s.priceScore(50, 500))
}

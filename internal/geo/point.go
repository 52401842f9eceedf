package geo

import "math"

// earthRadiusKm is the mean Earth radius used by the haversine formula.
const earthRadiusKm = 6371.0

// Point is a WGS84 coordinate pair.
type Point struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// IsZero reports whether the point carries no coordinates.
func (p Point) IsZero() bool {
	return p.Lat == 0 && p.Lng == 0
}

// DistanceKm returns the great-circle distance between two points in kilometers.
func DistanceKm(a, b Point) float64 {
	dLat := rad(b.Lat - a.Lat)
	dLng := rad(b.Lng - a.Lng)

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(rad(a.Lat))*math.Cos(rad(b.Lat))*
			math.Sin(dLng/2)*math.Sin(dLng/2)
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
	return earthRadiusKm * c
}

// DetourPercent returns the extra distance, relative to the direct
// departure→arrival path, that a carrier travels to cover pickup and
// drop on the way: departure→pickup→drop→arrival.
func DetourPercent(departure, arrival, pickup, drop Point) float64 {
	direct := DistanceKm(departure, arrival)
	if direct <= 0 {
		return 0
	}
	via := DistanceKm(departure, pickup) +
		DistanceKm(pickup, drop) +
		DistanceKm(drop, arrival)
	extra := via - direct
	if extra <= 0 {
		return 0
	}
	return extra / direct * 100
}

// Bounds is a latitude/longitude box used as a coarse candidate prefilter.
type Bounds struct {
	MinLat, MaxLat float64
	MinLng, MaxLng float64
}

// BoundsAround returns a box of roughly radiusKm around center.
// One degree of latitude is approximated as 111 km.
func BoundsAround(center Point, radiusKm float64) Bounds {
	latDelta := radiusKm / 111
	lngDelta := radiusKm / (111 * math.Cos(rad(center.Lat)))
	if lngDelta < 0 {
		lngDelta = -lngDelta
	}
	return Bounds{
		MinLat: center.Lat - latDelta,
		MaxLat: center.Lat + latDelta,
		MinLng: center.Lng - lngDelta,
		MaxLng: center.Lng + lngDelta,
	}
}

// Contains reports whether p falls inside the box.
func (b Bounds) Contains(p Point) bool {
	return p.Lat >= b.MinLat && p.Lat <= b.MaxLat &&
		p.Lng >= b.MinLng && p.Lng <= b.MaxLng
}

func rad(deg float64) float64 {
	return deg * math.Pi / 180
}

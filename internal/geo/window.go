package geo

import "time"

// Window is a half-open time interval [From, To).
type Window struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

// Valid reports whether the window is non-empty.
func (w Window) Valid() bool {
	return w.To.After(w.From)
}

// Duration returns the window length.
func (w Window) Duration() time.Duration {
	return w.To.Sub(w.From)
}

// Overlaps reports whether two windows share any time.
func (w Window) Overlaps(other Window) bool {
	return w.OverlapRatio(other) > 0
}

// OverlapRatio returns the shared portion of the two windows as a fraction
// of the shorter one, in [0, 1]. Invalid windows yield 0.
func (w Window) OverlapRatio(other Window) float64 {
	if !w.Valid() || !other.Valid() {
		return 0
	}
	start := w.From
	if other.From.After(start) {
		start = other.From
	}
	end := w.To
	if other.To.Before(end) {
		end = other.To
	}
	if !end.After(start) {
		return 0
	}
	shorter := w.Duration()
	if d := other.Duration(); d < shorter {
		shorter = d
	}
	return float64(end.Sub(start)) / float64(shorter)
}

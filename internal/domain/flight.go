package domain

// burstHysteresisM is how far below the apex the latest fix must be before
// the apex is reported as the burst point.
const burstHysteresisM = 10.0

// LaunchPoint is the earliest history point. History is time-ordered.
func LaunchPoint(history []HistoryPoint) (Point, bool) {
	if len(history) == 0 {
		return Point{}, false
	}
	return pointOf(history[0]), true
}

// BurstPoint returns the highest point of the flight once the sonde has
// descended more than the hysteresis below it.
func BurstPoint(history []HistoryPoint) (Point, bool) {
	if len(history) == 0 {
		return Point{}, false
	}
	apex := -1
	var apexAlt float64
	for i, h := range history {
		alt, ok := Finite(h.Alt)
		if !ok {
			continue
		}
		if apex < 0 || alt > apexAlt {
			apex, apexAlt = i, alt
		}
	}
	lastAlt, ok := Finite(history[len(history)-1].Alt)
	if apex < 0 || !ok || lastAlt >= apexAlt-burstHysteresisM {
		return Point{}, false
	}
	return pointOf(history[apex]), true
}

func pointOf(h HistoryPoint) Point {
	p := Point{Time: h.Time, Lat: h.Lat, Lon: h.Lon}
	if alt, ok := Finite(h.Alt); ok {
		p.Alt = &alt
	}
	return p
}

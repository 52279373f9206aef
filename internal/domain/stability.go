package domain

import "sort"

// StabilityClass is a lapse-rate band, ordered from most to least stable.
type StabilityClass string

const (
	StabilityStronglyStable   StabilityClass = "strongly_stable"
	StabilityStable           StabilityClass = "stable"
	StabilityNeutral          StabilityClass = "neutral"
	StabilityUnstable         StabilityClass = "unstable"
	StabilityStronglyUnstable StabilityClass = "strongly_unstable"
)

const (
	stabilityMaxSegments = 10
	stabilityMinDzKm     = 0.05
)

// ComputeStability averages the lapse rate Γ = −ΔT/Δz (K/km) over up to the
// last ten altitude-sorted segments thicker than 50 m and classifies it:
//
//	Γ > 9.8 strongly unstable | > 7 unstable | > 4 neutral | > 0 stable | else strongly stable
//
// ok is false when no segment qualifies.
func ComputeStability(history []HistoryPoint) (gamma float64, class StabilityClass, ok bool) {
	type level struct{ alt, temp float64 }
	pts := make([]level, 0, len(history))
	for _, h := range history {
		alt, okA := Finite(h.Alt)
		temp, okT := Finite(h.Temp)
		if okA && okT {
			pts = append(pts, level{alt, temp})
		}
	}
	if len(pts) < 2 {
		return 0, "", false
	}
	sort.SliceStable(pts, func(i, j int) bool { return pts[i].alt < pts[j].alt })

	maxSeg := min(len(pts)-1, stabilityMaxSegments)
	var sum float64
	count := 0
	for i := len(pts) - maxSeg; i < len(pts); i++ {
		dz := (pts[i].alt - pts[i-1].alt) / 1000
		if dz <= stabilityMinDzKm {
			continue
		}
		g := -(pts[i].temp - pts[i-1].temp) / dz
		if isFinite(g) {
			sum += g
			count++
		}
	}
	if count == 0 {
		return 0, "", false
	}

	gamma = sum / float64(count)
	return gamma, ClassifyLapseRate(gamma), true
}

// ClassifyLapseRate maps an average lapse rate in K/km to its stability band.
func ClassifyLapseRate(gamma float64) StabilityClass {
	switch {
	case gamma > 9.8:
		return StabilityStronglyUnstable
	case gamma > 7:
		return StabilityUnstable
	case gamma > 4:
		return StabilityNeutral
	case gamma > 0:
		return StabilityStable
	default:
		return StabilityStronglyStable
	}
}

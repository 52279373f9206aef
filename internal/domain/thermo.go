package domain

import (
	"math"
	"sort"
)

const (
	// Magnus–Tetens coefficients for the dew point inversion.
	magnusA = 17.27
	magnusB = 237.7

	// Poisson exponent R/cp used for potential temperature.
	poissonKappa = 0.2854

	kelvin = 273.15

	// lclMetersPerKelvin is the empirical spread-to-height factor.
	lclMetersPerKelvin = 125.0
)

// DewPoint inverts the Magnus–Tetens formula for temperature t (°C) and
// relative humidity rh (%), clamped to [0,100]. It never exceeds t.
func DewPoint(t, rh float64) (float64, bool) {
	if !isFinite(t) || !isFinite(rh) {
		return 0, false
	}
	alpha := (magnusA*t)/(magnusB+t) + math.Log(clamp(rh, 0, 100)/100)
	td := (magnusB * alpha) / (magnusA - alpha)
	if !isFinite(td) {
		return 0, false
	}
	return math.Min(td, t), true
}

// PotentialTemperature returns θ in kelvin for t (°C) at pressure p (hPa).
func PotentialTemperature(t, p float64) (float64, bool) {
	if !isFinite(t) || !isFinite(p) || p <= 0 {
		return 0, false
	}
	return (t + kelvin) * math.Pow(1000/p, poissonKappa), true
}

// LCLHeight is the empirical lifted condensation level above the sample, in
// meters: 125 m per kelvin of dew point depression.
func LCLHeight(t, td float64) (float64, bool) {
	if !isFinite(t) || !isFinite(td) || t < td {
		return 0, false
	}
	return lclMetersPerKelvin * (t - td), true
}

// ZeroIsoHeight returns the altitude of the first 0 °C crossing in the
// altitude-sorted history, linearly interpolated between the bracketing points.
func ZeroIsoHeight(history []HistoryPoint) (float64, bool) {
	type level struct{ alt, temp float64 }
	levels := make([]level, 0, len(history))
	for _, h := range history {
		alt, okA := Finite(h.Alt)
		temp, okT := Finite(h.Temp)
		if okA && okT {
			levels = append(levels, level{alt, temp})
		}
	}
	sort.SliceStable(levels, func(i, j int) bool { return levels[i].alt < levels[j].alt })

	for i := 1; i < len(levels); i++ {
		t1, t2 := levels[i-1].temp, levels[i].temp
		z1, z2 := levels[i-1].alt, levels[i].alt
		if (t1 <= 0 && t2 >= 0) || (t1 >= 0 && t2 <= 0) {
			if t1 == t2 {
				return z1, true
			}
			k := -t1 / (t2 - t1)
			return z1 + k*(z2-z1), true
		}
	}
	return 0, false
}

// DewPointOf derives the dew point of a history point from its temperature
// and humidity.
func DewPointOf(h HistoryPoint) (float64, bool) {
	t, okT := Finite(h.Temp)
	rh, okH := Finite(h.Humidity)
	if !okT || !okH {
		return 0, false
	}
	return DewPoint(t, rh)
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

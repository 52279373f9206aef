package domain

import "math"

const (
	surfaceLayerM      = 100.0
	launchBasePoints   = 10
	landingBasePoints  = 20
	layerQualityPoints = 6
	kmPerNauticalMile  = 1.852
)

// LayerSummary averages the observations of a near-surface layer.
type LayerSummary struct {
	Temp     *float64 `json:"temp"`
	Humidity *float64 `json:"humidity"`
	Pressure *float64 `json:"pressure"`
	Count    int      `json:"count"`
	AltMin   *float64 `json:"alt_min"`
	AltMax   *float64 `json:"alt_max"`
	AltAvg   *float64 `json:"alt_avg"`
}

// VisibilityEstimate is a rough horizontal visibility derived from the
// dew point depression of a near-surface layer.
type VisibilityEstimate struct {
	Km      float64      `json:"km"`
	NM      float64      `json:"nm"`
	Class   string       `json:"class"`
	Quality float64      `json:"quality"`
	Layer   LayerSummary `json:"layer"`
}

// EstimateVisibility maps temperature (°C) and relative humidity (%) to a
// visibility in km, clamped to [0.2, 50], and its class.
func EstimateVisibility(t, rh float64) (km float64, class string, ok bool) {
	if !isFinite(t) || !isFinite(rh) {
		return 0, "", false
	}

	var dd float64
	hasDD := false
	if td, okTd := DewPoint(t, rh); okTd {
		dd, hasDD = clamp(t-td, 0, 20), true
	}
	rh = clamp(rh, 0, 100)

	switch {
	case rh >= 99 || (hasDD && dd <= 0.5):
		km = 0.5
	case rh >= 97 || (hasDD && dd <= 1.0):
		km = 1.0
	case rh >= 95 || (hasDD && dd <= 2.0):
		km = 2.0
		if hasDD {
			km += (dd - 1.0) * 2.0
		}
	case rh >= 90 || (hasDD && dd <= 4.0):
		km = 5.0
		if hasDD {
			km += (dd - 2.0) * 2.5
		}
	case rh >= 80:
		km = 12.0
		if hasDD {
			km += dd * 2.0
		}
	default:
		km = 30.0
		if hasDD {
			km = 20.0 + dd*2.0
		}
	}
	km = clamp(km, 0.2, 50)
	return km, visibilityClass(km), true
}

func visibilityClass(km float64) string {
	switch {
	case km < 1:
		return "very_poor"
	case km < 5:
		return "poor"
	case km < 10:
		return "moderate"
	case km < 20:
		return "good"
	default:
		return "very_good"
	}
}

// SummarizeLayer averages the points whose altitude lies in [base, base+depth].
func SummarizeLayer(history []HistoryPoint, base, depth float64) LayerSummary {
	var (
		sumT, sumRH, sumP, sumZ float64
		nT, nRH, nP, nZ         int
		zMin, zMax              = math.Inf(1), math.Inf(-1)
		s                       LayerSummary
	)
	for _, h := range history {
		alt, ok := Finite(h.Alt)
		if !ok || alt < base || alt > base+depth {
			continue
		}
		s.Count++
		if v, ok := Finite(h.Temp); ok {
			sumT += v
			nT++
		}
		if v, ok := Finite(h.Humidity); ok {
			sumRH += v
			nRH++
		}
		if v, ok := Finite(h.Pressure); ok {
			sumP += v
			nP++
		}
		zMin, zMax = math.Min(zMin, alt), math.Max(zMax, alt)
		sumZ += alt
		nZ++
	}
	s.Temp = mean(sumT, nT)
	s.Humidity = mean(sumRH, nRH)
	s.Pressure = mean(sumP, nP)
	s.AltAvg = mean(sumZ, nZ)
	s.AltMin = Float(zMin)
	s.AltMax = Float(zMax)
	return s
}

// LaunchVisibility estimates visibility in the first 100 m above the launch
// base, the lowest altitude among the first ten points.
func LaunchVisibility(history []HistoryPoint) (VisibilityEstimate, bool) {
	if len(history) == 0 {
		return VisibilityEstimate{}, false
	}
	base, ok := minAlt(history[:min(launchBasePoints, len(history))])
	if !ok {
		if base, ok = Finite(history[0].Alt); !ok {
			return VisibilityEstimate{}, false
		}
	}
	return layerVisibility(history, base)
}

// LandingVisibility estimates visibility near the landing site once the
// sonde is descending; the base is the lowest of the last twenty points.
func LandingVisibility(history []HistoryPoint) (VisibilityEstimate, bool) {
	if _, descending := BurstPoint(history); !descending {
		return VisibilityEstimate{}, false
	}
	tail := history[max(0, len(history)-landingBasePoints):]
	base, ok := minAlt(tail)
	if !ok {
		return VisibilityEstimate{}, false
	}
	return layerVisibility(tail, base)
}

func layerVisibility(history []HistoryPoint, base float64) (VisibilityEstimate, bool) {
	layer := SummarizeLayer(history, base, surfaceLayerM)
	t, okT := Finite(layer.Temp)
	rh, okRH := Finite(layer.Humidity)
	if !okT || !okRH {
		return VisibilityEstimate{}, false
	}
	km, class, ok := EstimateVisibility(t, rh)
	if !ok {
		return VisibilityEstimate{}, false
	}
	return VisibilityEstimate{
		Km:      km,
		NM:      km / kmPerNauticalMile,
		Class:   class,
		Quality: clamp(float64(layer.Count)/layerQualityPoints, 0, 1),
		Layer:   layer,
	}, true
}

func minAlt(history []HistoryPoint) (float64, bool) {
	lo, found := math.Inf(1), false
	for _, h := range history {
		if alt, ok := Finite(h.Alt); ok {
			lo, found = math.Min(lo, alt), true
		}
	}
	return lo, found
}

func mean(sum float64, n int) *float64 {
	if n == 0 {
		return nil
	}
	return Float(sum / float64(n))
}

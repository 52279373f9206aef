package domain

import (
	"math"
	"sort"
)

// Parcel-theory constants (SI unless noted).
const (
	gravity = 9.80665
	gasRd   = 287.05
	heatCp  = 1004.0
	heatLv  = 2.5e6
	epsilon = 0.622
	kappa   = gasRd / heatCp

	// Magnus form of saturation vapour pressure, hPa/°C.
	esA = 6.112
	esB = 17.67
	esC = 243.5

	minCapeLevels  = 12
	moistSubsteps  = 8
	minVapourSplit = 0.1 // hPa floor for p - e
)

// ParcelResult holds integrated convective energy in J/kg. CIN is reported
// as a negative magnitude.
type ParcelResult struct {
	CAPE float64
	CIN  float64
}

type sounding struct {
	alt, temp, dew, pressure float64
}

// ComputeCapeCin lifts a surface-based parcel through the observed profile.
// Below the LCL it follows the dry adiabat; above it the moist lapse rate is
// integrated in pressure with forward Euler, eight substeps per observed
// interval. Buoyancy from virtual temperatures is integrated over altitude
// with the trapezoid rule. Segments where pressure does not decrease are
// skipped. ok is false when fewer than twelve usable levels remain.
func ComputeCapeCin(history []HistoryPoint) (ParcelResult, bool) {
	levels := make([]sounding, 0, len(history))
	for _, h := range history {
		alt, okA := Finite(h.Alt)
		temp, okT := Finite(h.Temp)
		p, okP := Finite(h.Pressure)
		dew, okD := DewPointOf(h)
		if okA && okT && okP && okD && p > 0 {
			levels = append(levels, sounding{alt: alt, temp: temp, dew: dew, pressure: p})
		}
	}
	if len(levels) < minCapeLevels {
		return ParcelResult{}, false
	}
	sort.SliceStable(levels, func(i, j int) bool { return levels[i].alt < levels[j].alt })

	sfc := levels[0]
	p0, t0, td0 := sfc.pressure, sfc.temp, sfc.dew

	w0 := mixingRatio(p0, td0)
	theta0 := (t0 + kelvin) * math.Pow(1000/p0, kappa)
	tLcl := boltonLCLTemp(t0+kelvin, td0+kelvin)
	pLcl := p0 * math.Pow(tLcl/(t0+kelvin), 1/kappa)

	var cape, cin float64

	parcelK := t0 + kelvin
	pPrev, zPrev := p0, sfc.alt
	bPrev := buoyancy(virtualTemp(t0, w0), virtualTemp(t0, mixingRatio(p0, td0)))

	for _, lev := range levels[1:] {
		p1, p2 := pPrev*100, lev.pressure*100
		if !(p2 < p1) {
			pPrev, zPrev = lev.pressure, lev.alt
			continue
		}

		dp := (p2 - p1) / moistSubsteps
		for s := 1; s <= moistSubsteps; s++ {
			pStep := p1 + dp*float64(s)
			if pStep/100 > pLcl {
				parcelK = dryParcelTemp(theta0, pStep/100) + kelvin
			} else {
				parcelK += moistLapse(parcelK, pStep) * dp
			}
		}
		parcelC := parcelK - kelvin

		wParcel := w0
		if lev.pressure <= pLcl {
			wParcel = saturationMixingRatio(lev.pressure, parcelC)
		}
		b := buoyancy(virtualTemp(parcelC, wParcel), virtualTemp(lev.temp, mixingRatio(lev.pressure, lev.dew)))

		dz := lev.alt - zPrev
		if isFinite(dz) && dz > 0 && isFinite(bPrev) && isFinite(b) {
			area := 0.5 * (bPrev + b) * dz
			if area > 0 {
				cape += area
			} else {
				cin += area
			}
		}
		pPrev, zPrev, bPrev = lev.pressure, lev.alt, b
	}

	if !isFinite(cape) || !isFinite(cin) {
		return ParcelResult{}, false
	}
	return ParcelResult{CAPE: cape, CIN: cin}, true
}

// SaturationVapourPressure returns e_s in hPa for a temperature in °C.
func SaturationVapourPressure(tc float64) float64 {
	return esA * math.Exp((esB*tc)/(tc+esC))
}

// mixingRatio is the vapour mixing ratio (kg/kg) at pressure p (hPa) for a
// dew point in °C.
func mixingRatio(p, dew float64) float64 {
	e := SaturationVapourPressure(dew)
	return epsilon * e / math.Max(minVapourSplit, p-e)
}

func saturationMixingRatio(p, tc float64) float64 {
	return mixingRatio(p, tc)
}

func virtualTemp(tc, w float64) float64 {
	if !isFinite(w) {
		w = 0
	}
	return (tc + kelvin) * (1 + 0.61*w)
}

func buoyancy(tvParcel, tvEnv float64) float64 {
	return gravity * (tvParcel - tvEnv) / tvEnv
}

// boltonLCLTemp is Bolton's (1980) LCL temperature in kelvin.
func boltonLCLTemp(tk, tdk float64) float64 {
	return 1/(1/(tdk-56)+math.Log(tk/tdk)/800) + 56
}

func dryParcelTemp(theta, p float64) float64 {
	return theta/math.Pow(1000/p, kappa) - kelvin
}

// moistLapse is the saturated dT/dp in K/Pa at tk (K) and p (Pa).
func moistLapse(tk, pPa float64) float64 {
	ws := saturationMixingRatio(pPa/100, tk-kelvin)
	num := kappa * tk / pPa * (1 + (heatLv*ws)/(gasRd*tk))
	den := 1 + (heatLv*heatLv*ws*epsilon)/(heatCp*gasRd*tk*tk)
	return num / den
}

// CAPELevel describes convective potential in words.
func CAPELevel(cape float64) string {
	switch {
	case cape < 100:
		return "very_low"
	case cape < 500:
		return "low"
	case cape < 1000:
		return "moderate"
	case cape < 2000:
		return "high"
	default:
		return "very_high"
	}
}

// CINLevel describes inhibition strength from |CIN|.
func CINLevel(cin float64) string {
	switch abs := math.Abs(cin); {
	case abs < 25:
		return "weak"
	case abs < 75:
		return "moderate"
	default:
		return "strong"
	}
}

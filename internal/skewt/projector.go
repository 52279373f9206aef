// Package skewt maps atmospheric profiles onto a Skew-T log-P diagram.
//
// The vertical axis is linear in ln(p); the horizontal axis is temperature
// skewed by 35 °C per e-fold of pressure relative to 1000 hPa. Bounds are
// auto-fitted to the profile being drawn. Nothing here draws: callers get
// plot-space coordinates and reference curves.
package skewt

import (
	"math"

	"github.com/couchcryptid/sonde-etl/internal/domain"
)

const (
	skewFactor   = 35.0
	refPressure  = 1000.0
	poissonKappa = 0.2854
	kelvin       = 273.15

	pressureMargin = 50.0
	pressureFloor  = 50.0
	pressureCeil   = 1050.0
	tempMargin     = 10.0
	tempFloor      = -90.0
	tempCeil       = 50.0
	minTempSpan    = 40.0
)

// DefaultBounds are used when the profile has no usable data.
var DefaultBounds = Bounds{PMin: 100, PMax: 1000, TMin: -60, TMax: 40}

// Bounds is the pressure (hPa) and temperature (°C) window of a diagram.
type Bounds struct {
	PMin float64 `json:"p_min"`
	PMax float64 `json:"p_max"`
	TMin float64 `json:"t_min"`
	TMax float64 `json:"t_max"`
}

// Rect is the plot area in output coordinates; y grows downwards.
type Rect struct {
	Left   float64 `json:"left"`
	Top    float64 `json:"top"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// PlotArea returns the plot rectangle inside a canvas of the given size,
// leaving room for axis labels.
func PlotArea(width, height float64) Rect {
	const left, right, top, bottom = 52, 32, 18, 30
	return Rect{
		Left:   left,
		Top:    top,
		Width:  math.Max(1, width-left-right),
		Height: math.Max(1, height-top-bottom),
	}
}

// Projector is an immutable (T, p) → (x, y) transform.
type Projector struct {
	bounds  Bounds
	rect    Rect
	logPMin float64
	logPMax float64
}

// New builds a Projector over fixed bounds.
func New(b Bounds, r Rect) *Projector {
	return &Projector{
		bounds:  b,
		rect:    r,
		logPMin: math.Log(b.PMin),
		logPMax: math.Log(b.PMax),
	}
}

// Fit builds a Projector whose bounds enclose the profile.
func Fit(profile []domain.HistoryPoint, r Rect) *Projector {
	return New(FitBounds(profile), r)
}

// FitBounds expands the data range of the profile by 50 hPa and 10 °C,
// clamps it to [50, 1050] hPa and [-90, 50] °C, and widens the temperature
// window symmetrically to at least 40 °C. Dew points count towards the
// temperature range.
func FitBounds(profile []domain.HistoryPoint) Bounds {
	b := DefaultBounds
	pLo, pHi := math.Inf(1), math.Inf(-1)
	tLo, tHi := math.Inf(1), math.Inf(-1)

	for _, h := range profile {
		if p, ok := domain.Finite(h.Pressure); ok {
			pLo, pHi = math.Min(pLo, p), math.Max(pHi, p)
		}
		if t, ok := domain.Finite(h.Temp); ok {
			tLo, tHi = math.Min(tLo, t), math.Max(tHi, t)
		}
		if td, ok := domain.DewPointOf(h); ok {
			tLo, tHi = math.Min(tLo, td), math.Max(tHi, td)
		}
	}

	if !math.IsInf(pLo, 0) {
		b.PMin = math.Max(pressureFloor, pLo-pressureMargin)
		b.PMax = math.Min(pressureCeil, pHi+pressureMargin)
		if b.PMin >= b.PMax {
			b.PMin, b.PMax = DefaultBounds.PMin, DefaultBounds.PMax
		}
	}
	if !math.IsInf(tLo, 0) {
		b.TMin = math.Max(tempFloor, tLo-tempMargin)
		b.TMax = math.Min(tempCeil, tHi+tempMargin)
		if b.TMax-b.TMin < minTempSpan {
			mid := (b.TMax + b.TMin) / 2
			b.TMin, b.TMax = mid-minTempSpan/2, mid+minTempSpan/2
		}
	}
	return b
}

// Bounds returns the fitted window.
func (pr *Projector) Bounds() Bounds { return pr.bounds }

// Rect returns the plot area.
func (pr *Projector) Rect() Rect { return pr.rect }

// Y maps a pressure to a vertical coordinate. Pressures outside the bounds
// are clamped; PMin maps to the top edge and PMax to the bottom.
func (pr *Projector) Y(p float64) float64 {
	frac := (pr.logP(p) - pr.logPMin) / (pr.logPMax - pr.logPMin)
	return pr.rect.Top + frac*pr.rect.Height
}

// X maps a temperature at a pressure to a horizontal coordinate.
func (pr *Projector) X(t, p float64) float64 {
	skewed := t + (pr.logP(p)-math.Log(refPressure))*skewFactor
	frac := (skewed - pr.bounds.TMin) / (pr.bounds.TMax - pr.bounds.TMin)
	return pr.rect.Left + frac*pr.rect.Width
}

func (pr *Projector) logP(p float64) float64 {
	return math.Log(math.Max(pr.bounds.PMin, math.Min(pr.bounds.PMax, p)))
}

// DryAdiabatTemp is the temperature (°C) at pressure p (hPa) on the dry
// adiabat of potential temperature theta (K).
func DryAdiabatTemp(theta, p float64) float64 {
	return theta/math.Pow(refPressure/p, poissonKappa) - kelvin
}

// MixingLineTemp approximates the dew point (°C) at pressure p (hPa) on the
// isopleth of mixing ratio w (g/kg).
func MixingLineTemp(w, p float64) float64 {
	return 5 + 8*math.Log(w) - 0.005*(p-refPressure)
}

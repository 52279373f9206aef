package skewt

import (
	"math"
	"sort"

	"github.com/couchcryptid/sonde-etl/internal/domain"
)

const (
	isobarStep   = 50.0
	isothermStep = 10.0
	curveStep    = 10.0
	mixingTopHPa = 400.0
	thetaFirstK  = 280.0
	thetaLastK   = 360.0
	thetaStepK   = 10.0
)

var mixingRatios = []float64{2, 4, 8, 12, 16}

// Vertex is a projected point together with the values it came from.
type Vertex struct {
	X        float64 `json:"x"`
	Y        float64 `json:"y"`
	Pressure float64 `json:"p"`
	Temp     float64 `json:"t"`
}

// Curve is a labelled polyline; Value is the isobar (hPa), isotherm (°C),
// potential temperature (K) or mixing ratio (g/kg) it represents.
type Curve struct {
	Value  float64  `json:"value"`
	Points []Vertex `json:"points"`
}

// Diagram is everything a renderer needs to draw one Skew-T chart.
type Diagram struct {
	SondeID      string   `json:"sonde_id"`
	Bounds       Bounds   `json:"bounds"`
	Rect         Rect     `json:"rect"`
	Empty        bool     `json:"empty"`
	Temperature  []Vertex `json:"temperature"`
	DewPoint     []Vertex `json:"dew_point"`
	Isobars      []Curve  `json:"isobars"`
	Isotherms    []Curve  `json:"isotherms"`
	DryAdiabats  []Curve  `json:"dry_adiabats"`
	MixingLines  []Curve  `json:"mixing_lines"`
	ZeroIsotherm []Vertex `json:"zero_isotherm"`
	LCL          *Vertex  `json:"lcl,omitempty"`
}

// Build fits a projector to the sonde's history and produces the diagram.
// Levels without both pressure and temperature are ignored.
func Build(s domain.SondeState, r Rect) Diagram {
	levels := make([]domain.HistoryPoint, 0, len(s.History))
	for _, h := range s.History {
		_, okP := domain.Finite(h.Pressure)
		_, okT := domain.Finite(h.Temp)
		if okP && okT {
			levels = append(levels, h)
		}
	}
	// Surface first.
	sort.SliceStable(levels, func(i, j int) bool { return *levels[i].Pressure > *levels[j].Pressure })

	pr := Fit(levels, r)
	b := pr.Bounds()
	d := Diagram{SondeID: s.ID, Bounds: b, Rect: r, Empty: len(levels) == 0}
	if d.Empty {
		return d
	}

	for _, h := range levels {
		p, t := *h.Pressure, *h.Temp
		d.Temperature = append(d.Temperature, pr.vertex(t, p))
		if td, ok := domain.DewPointOf(h); ok {
			d.DewPoint = append(d.DewPoint, pr.vertex(td, p))
		}
	}

	for p := math.Floor(b.PMax/isobarStep) * isobarStep; p >= math.Ceil(b.PMin/isobarStep)*isobarStep; p -= isobarStep {
		y := pr.Y(p)
		d.Isobars = append(d.Isobars, Curve{Value: p, Points: []Vertex{
			{X: r.Left, Y: y, Pressure: p},
			{X: r.Left + r.Width, Y: y, Pressure: p},
		}})
	}
	for t := math.Ceil(b.TMin/isothermStep) * isothermStep; t <= b.TMax; t += isothermStep {
		d.Isotherms = append(d.Isotherms, Curve{Value: t, Points: pr.sample(b.PMax, b.PMin, func(float64) float64 { return t })})
	}
	for theta := thetaFirstK; theta <= thetaLastK; theta += thetaStepK {
		d.DryAdiabats = append(d.DryAdiabats, Curve{Value: theta, Points: pr.sample(b.PMax, b.PMin, func(p float64) float64 {
			return DryAdiabatTemp(theta, p)
		})})
	}
	for _, w := range mixingRatios {
		d.MixingLines = append(d.MixingLines, Curve{Value: w, Points: pr.sample(b.PMax, math.Max(b.PMin, mixingTopHPa), func(p float64) float64 {
			return MixingLineTemp(w, p)
		})})
	}
	d.ZeroIsotherm = pr.sample(b.PMax, b.PMin, func(float64) float64 { return 0 })
	d.LCL = pr.lclMarker(s.LCLHeight, levels)
	return d
}

// lclMarker places the LCL at the level nearest in altitude to the LCL
// height, with the temperature of the surface dry adiabat at that level.
func (pr *Projector) lclMarker(lclHeight *float64, levels []domain.HistoryPoint) *Vertex {
	target, ok := domain.Finite(lclHeight)
	if !ok {
		return nil
	}
	best, bestDz := -1, math.Inf(1)
	for i, h := range levels {
		alt, ok := domain.Finite(h.Alt)
		if !ok {
			continue
		}
		if dz := math.Abs(alt - target); dz < bestDz {
			best, bestDz = i, dz
		}
	}
	if best < 0 {
		return nil
	}
	p := *levels[best].Pressure
	t := *levels[best].Temp
	if theta, ok := domain.PotentialTemperature(*levels[0].Temp, *levels[0].Pressure); ok {
		t = DryAdiabatTemp(theta, p)
	}
	v := pr.vertex(t, p)
	return &v
}

// sample walks pressure from bottom up to top in 10 hPa steps.
func (pr *Projector) sample(bottom, top float64, temp func(p float64) float64) []Vertex {
	var out []Vertex
	for p := bottom; p >= top; p -= curveStep {
		out = append(out, pr.vertex(temp(p), p))
	}
	return out
}

func (pr *Projector) vertex(t, p float64) Vertex {
	return Vertex{X: pr.X(t, p), Y: pr.Y(p), Pressure: p, Temp: t}
}

package domain

import (
	"math"
	"time"
)

// Status is the lifecycle state of a tracked sonde.
type Status string

const (
	StatusActive   Status = "active"
	StatusFinished Status = "finished"
)

// RawSample is one validated observation row. Optional measurements are nil
// when the column is missing or does not parse to a finite number.
type RawSample struct {
	Time        time.Time
	Lat         float64
	Lon         float64
	Alt         *float64
	Temp        *float64 // °C
	Pressure    *float64 // hPa
	Humidity    *float64 // %RH
	WindSpeed   *float64
	WindDir     *float64
	RSSI        *float64
	Battery     *float64 // V
	Description string
}

// Extra holds the per-row fields that are not part of the history point
// itself: the type label and the metrics embedded in the free-text description.
type Extra struct {
	Type    string
	Metrics DescriptionMetrics
}

// Sample pairs a raw observation with its extracted extra fields.
type Sample struct {
	Raw   RawSample
	Extra Extra
}

// SondeBatch is the time-ordered set of samples for one identifier.
type SondeBatch struct {
	ID      string
	Samples []Sample
}

// HistoryPoint is an immutable entry in a sonde's history.
type HistoryPoint struct {
	Time     time.Time `json:"time"`
	Lat      float64   `json:"lat"`
	Lon      float64   `json:"lon"`
	Alt      *float64  `json:"alt"`
	Temp     *float64  `json:"temp"`
	Pressure *float64  `json:"pressure"`
	Humidity *float64  `json:"humidity"`
	RSSI     *float64  `json:"rssi"`
	Battery  *float64  `json:"battery"`
}

// Point is a geographic fix with an optional altitude.
type Point struct {
	Time time.Time `json:"time"`
	Lat  float64   `json:"lat"`
	Lon  float64   `json:"lon"`
	Alt  *float64  `json:"alt"`
}

// SondeState is the consolidated view of one radiosonde.
type SondeState struct {
	ID   string `json:"id"`
	Type string `json:"type,omitempty"`

	Time      time.Time `json:"time"`
	Lat       *float64  `json:"lat"`
	Lon       *float64  `json:"lon"`
	Alt       *float64  `json:"alt"`
	Temp      *float64  `json:"temp"`
	Pressure  *float64  `json:"pressure"`
	Humidity  *float64  `json:"humidity"`
	WindSpeed *float64  `json:"wind_speed"`
	WindDir   *float64  `json:"wind_dir"`
	RSSI      *float64  `json:"rssi"`
	Battery   *float64  `json:"battery"`

	Derived

	AgeSec float64 `json:"age_sec"`
	Status Status  `json:"status"`

	Launch *Point `json:"launch,omitempty"`
	Burst  *Point `json:"burst,omitempty"`

	VisibilityLaunch  *VisibilityEstimate `json:"visibility_launch,omitempty"`
	VisibilityLanding *VisibilityEstimate `json:"visibility_landing,omitempty"`

	LaunchPlace string `json:"launch_place,omitempty"`
	GeoSource   string `json:"geo_source,omitempty"` // "reverse", "original", "failed"

	History []HistoryPoint `json:"history,omitempty"`
}

// Derived holds every quantity recomputed on merge. Nil means indeterminate.
type Derived struct {
	DewPoint        *float64 `json:"dew_point"`
	Theta           *float64 `json:"theta"`
	LCLHeight       *float64 `json:"lcl_height"`
	ZeroIsoHeight   *float64 `json:"zero_iso_height"`
	HorizontalSpeed *float64 `json:"horizontal_speed"`
	VerticalSpeed   *float64 `json:"vertical_speed"`
	Speed3D         *float64 `json:"speed_3d"`
	Course          *float64 `json:"course"`
	DistanceToRef   *float64 `json:"distance_to_ref"`
	StabilityIndex  *float64 `json:"stability_index"`
	StabilityClass  string   `json:"stability_class,omitempty"`
	CAPE            *float64 `json:"cape"`
	CIN             *float64 `json:"cin"`
	CAPELevel       string   `json:"cape_level,omitempty"`
	CINLevel        string   `json:"cin_level,omitempty"`
}

// Clone returns a deep copy safe to hand to readers outside the registry.
func (s *SondeState) Clone(withHistory bool) SondeState {
	out := *s
	out.History = nil
	if withHistory {
		out.History = make([]HistoryPoint, len(s.History))
		copy(out.History, s.History)
	}
	if s.Launch != nil {
		l := *s.Launch
		out.Launch = &l
	}
	if s.Burst != nil {
		b := *s.Burst
		out.Burst = &b
	}
	if s.VisibilityLaunch != nil {
		v := *s.VisibilityLaunch
		out.VisibilityLaunch = &v
	}
	if s.VisibilityLanding != nil {
		v := *s.VisibilityLanding
		out.VisibilityLanding = &v
	}
	return out
}

// Float returns a pointer to v, or nil when v is not finite.
func Float(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}

// Finite dereferences p, reporting false for nil or non-finite values.
func Finite(p *float64) (float64, bool) {
	if p == nil || math.IsNaN(*p) || math.IsInf(*p, 0) {
		return 0, false
	}
	return *p, true
}

// FirstFinite returns the first finite value in priority order.
func FirstFinite(values ...*float64) *float64 {
	for _, v := range values {
		if f, ok := Finite(v); ok {
			return &f
		}
	}
	return nil
}

func optional(v float64, ok bool) *float64 {
	if !ok {
		return nil
	}
	return Float(v)
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

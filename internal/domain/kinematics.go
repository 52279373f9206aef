package domain

import "math"

const (
	earthRadiusM = 6371000.0

	minKinematicDt = 0.5
	maxKinematicDt = 600.0
)

// Haversine returns the great-circle distance in meters.
func Haversine(lat1, lon1, lat2, lon2 float64) float64 {
	dLat := toRad(lat2 - lat1)
	dLon := toRad(lon2 - lon1)
	a := math.Pow(math.Sin(dLat/2), 2) +
		math.Cos(toRad(lat1))*math.Cos(toRad(lat2))*math.Pow(math.Sin(dLon/2), 2)
	return 2 * earthRadiusM * math.Asin(math.Sqrt(a))
}

// Bearing returns the initial great-circle heading from the first point to
// the second, in degrees [0,360).
func Bearing(lat1, lon1, lat2, lon2 float64) float64 {
	y := math.Sin(toRad(lon2-lon1)) * math.Cos(toRad(lat2))
	x := math.Cos(toRad(lat1))*math.Sin(toRad(lat2)) -
		math.Sin(toRad(lat1))*math.Cos(toRad(lat2))*math.Cos(toRad(lon2-lon1))
	brng := math.Atan2(y, x) * 180 / math.Pi
	return math.Mod(brng+360, 360)
}

// Kinematics is the motion derived from the two most recent history points.
type Kinematics struct {
	HorizontalSpeed *float64
	VerticalSpeed   *float64
	Speed3D         *float64
	Course          *float64
}

// ComputeKinematics derives speeds and course from the last two points of
// history. An embedded climb rate, when present, overrides the computed
// vertical speed. With fewer than two points only the embedded climb rate
// (or the previous vertical speed) is reported.
func ComputeKinematics(history []HistoryPoint, climb, previousVertical *float64) Kinematics {
	n := len(history)
	if n < 2 {
		return Kinematics{VerticalSpeed: FirstFinite(climb, previousVertical)}
	}
	a, b := history[n-2], history[n-1]

	dt := clamp(b.Time.Sub(a.Time).Seconds(), minKinematicDt, maxKinematicDt)
	dH := Haversine(a.Lat, a.Lon, b.Lat, b.Lon)

	var (
		dz    float64
		hasDz bool
	)
	altA, okA := Finite(a.Alt)
	altB, okB := Finite(b.Alt)
	if okA && okB {
		dz, hasDz = altB-altA, true
	}

	k := Kinematics{
		HorizontalSpeed: Float(dH / dt),
		Course:          Float(Bearing(a.Lat, a.Lon, b.Lat, b.Lon)),
	}
	var computedVz *float64
	if hasDz {
		computedVz = Float(dz / dt)
	}
	k.VerticalSpeed = FirstFinite(climb, computedVz)
	if hasDz && k.HorizontalSpeed != nil && k.VerticalSpeed != nil {
		k.Speed3D = Float(math.Sqrt(dH*dH+dz*dz) / dt)
	}
	return k
}

func toRad(deg float64) float64 {
	return deg * math.Pi / 180
}

package domain

// Reference is the fixed receiving station used for distance computation.
type Reference struct {
	Lat float64
	Lon float64
}

// Derive recomputes every derived quantity on s from its latest scalar
// observations and history. climb is the vertical speed embedded in the
// latest sample's description, if any. Derive never fails; indeterminate
// values are left nil.
func Derive(s *SondeState, climb *float64, ref Reference) {
	prevVertical := s.VerticalSpeed
	d := Derived{}

	t, okT := Finite(s.Temp)
	rh, okRH := Finite(s.Humidity)
	p, okP := Finite(s.Pressure)

	if okT && okRH {
		d.DewPoint = optional(DewPoint(t, rh))
	}
	if okT && okP {
		d.Theta = optional(PotentialTemperature(t, p))
	}
	if td, ok := Finite(d.DewPoint); ok && okT {
		d.LCLHeight = optional(LCLHeight(t, td))
	}
	d.ZeroIsoHeight = optional(ZeroIsoHeight(s.History))

	lat, okLat := Finite(s.Lat)
	lon, okLon := Finite(s.Lon)
	if okLat && okLon {
		d.DistanceToRef = Float(Haversine(ref.Lat, ref.Lon, lat, lon))
	}

	k := ComputeKinematics(s.History, climb, prevVertical)
	d.HorizontalSpeed = k.HorizontalSpeed
	d.VerticalSpeed = k.VerticalSpeed
	d.Speed3D = k.Speed3D
	d.Course = k.Course
	if len(s.History) < 2 {
		// Motion needs two fixes; keep the last known horizontal values.
		d.HorizontalSpeed = s.HorizontalSpeed
		d.Speed3D = s.Speed3D
		d.Course = s.Course
	}

	if gamma, class, ok := ComputeStability(s.History); ok {
		d.StabilityIndex = Float(gamma)
		d.StabilityClass = string(class)
	}

	if res, ok := ComputeCapeCin(s.History); ok {
		d.CAPE = Float(res.CAPE)
		d.CIN = Float(res.CIN)
		d.CAPELevel = CAPELevel(res.CAPE)
		d.CINLevel = CINLevel(res.CIN)
	}

	s.Derived = d

	s.Launch, s.Burst = nil, nil
	if lp, ok := LaunchPoint(s.History); ok {
		s.Launch = &lp
	}
	if bp, ok := BurstPoint(s.History); ok {
		s.Burst = &bp
	}

	s.VisibilityLaunch, s.VisibilityLanding = nil, nil
	if v, ok := LaunchVisibility(s.History); ok {
		s.VisibilityLaunch = &v
	}
	if v, ok := LandingVisibility(s.History); ok {
		s.VisibilityLanding = &v
	}
}

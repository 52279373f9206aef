package domain

import (
	"context"
	"log/slog"
)

// Geo source labels recorded on the sonde state.
const (
	GeoSourceReverse  = "reverse"
	GeoSourceOriginal = "original"
	GeoSourceFailed   = "failed"
)

// GeocodingResult is the best place match for a coordinate pair. An empty
// FormattedAddress means the provider found nothing nearby.
type GeocodingResult struct {
	Lat              float64
	Lon              float64
	FormattedAddress string
	PlaceName        string
	Confidence       float64 // provider relevance, 0..1
}

// Geocoder resolves a launch-site fix to a place.
type Geocoder interface {
	ReverseGeocode(ctx context.Context, lat, lon float64) (GeocodingResult, error)
}

// NeedsLaunchGeocoding reports whether the launch site has not been resolved yet.
func NeedsLaunchGeocoding(s *SondeState) bool {
	return s.Launch != nil && s.GeoSource == ""
}

// EnrichLaunchSite reverse geocodes the launch point once. If geocoder is nil
// the state is left untouched; failures are recorded as GeoSourceFailed
// (graceful degradation) and retried on a later cycle.
func EnrichLaunchSite(ctx context.Context, s *SondeState, geocoder Geocoder, logger *slog.Logger) {
	if geocoder == nil || !NeedsLaunchGeocoding(s) {
		return
	}

	result, err := geocoder.ReverseGeocode(ctx, s.Launch.Lat, s.Launch.Lon)
	if err != nil {
		logger.Warn("launch site geocoding failed",
			"sonde_id", s.ID,
			"lat", s.Launch.Lat,
			"lon", s.Launch.Lon,
			"error", err,
		)
		s.GeoSource = GeoSourceFailed
		return
	}
	if result.FormattedAddress != "" {
		s.LaunchPlace = result.PlaceName
		if s.LaunchPlace == "" {
			s.LaunchPlace = result.FormattedAddress
		}
		s.GeoSource = GeoSourceReverse
		return
	}
	s.GeoSource = GeoSourceOriginal
}

// RetryFailedGeocoding clears a failed lookup so the next cycle tries again.
func RetryFailedGeocoding(s *SondeState) {
	if s.GeoSource == GeoSourceFailed {
		s.GeoSource = ""
	}
}

package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var rx = Reference{Lat: 54.546, Lon: 18.5501}

func TestDerive_FullProfile(t *testing.T) {
	history := idealSounding(30, 8, 70)
	last := history[len(history)-1]
	s := &SondeState{
		ID:       "S1",
		Lat:      Float(last.Lat),
		Lon:      Float(last.Lon),
		Alt:      last.Alt,
		Temp:     Float(20),
		Humidity: Float(50),
		Pressure: Float(900),
		History:  history,
	}

	Derive(s, nil, rx)

	require.NotNil(t, s.DewPoint)
	assert.InDelta(t, 9.26, *s.DewPoint, 0.01)
	require.NotNil(t, s.Theta)
	require.NotNil(t, s.LCLHeight)
	assert.InDelta(t, 125*(20-*s.DewPoint), *s.LCLHeight, 1e-9)
	require.NotNil(t, s.ZeroIsoHeight)
	assert.InDelta(t, 3750, *s.ZeroIsoHeight, 1e-6)

	require.NotNil(t, s.DistanceToRef)
	assert.InDelta(t, Haversine(rx.Lat, rx.Lon, 54.5, 18.5), *s.DistanceToRef, 1e-6)

	require.NotNil(t, s.VerticalSpeed)
	assert.InDelta(t, 5, *s.VerticalSpeed, 1e-9)

	require.NotNil(t, s.StabilityIndex)
	assert.InDelta(t, 8, *s.StabilityIndex, 1e-9)
	assert.Equal(t, string(StabilityUnstable), s.StabilityClass)

	require.NotNil(t, s.CAPE)
	require.NotNil(t, s.CIN)
	assert.NotEmpty(t, s.CAPELevel)
	assert.NotEmpty(t, s.CINLevel)

	require.NotNil(t, s.Launch)
	assert.Equal(t, history[0].Time, s.Launch.Time)
	assert.Nil(t, s.Burst)
	assert.NotNil(t, s.VisibilityLaunch)
	assert.Nil(t, s.VisibilityLanding)
}

func TestDerive_MissingInputsLeaveNil(t *testing.T) {
	s := &SondeState{ID: "S2", Temp: Float(10)}

	Derive(s, nil, rx)

	assert.Nil(t, s.DewPoint)
	assert.Nil(t, s.Theta)
	assert.Nil(t, s.LCLHeight)
	assert.Nil(t, s.ZeroIsoHeight)
	assert.Nil(t, s.DistanceToRef)
	assert.Nil(t, s.CAPE)
	assert.Empty(t, s.StabilityClass)
	assert.Nil(t, s.Launch)
}

func TestDerive_SinglePointKeepsPreviousMotion(t *testing.T) {
	s := &SondeState{
		ID:      "S3",
		History: []HistoryPoint{level(0, 100, 10, 1000, 70)},
	}
	s.HorizontalSpeed = Float(7)
	s.Course = Float(45)
	s.VerticalSpeed = Float(3)

	Derive(s, nil, rx)

	require.NotNil(t, s.HorizontalSpeed)
	assert.Equal(t, 7.0, *s.HorizontalSpeed)
	require.NotNil(t, s.Course)
	assert.Equal(t, 45.0, *s.Course)
	require.NotNil(t, s.VerticalSpeed)
	assert.Equal(t, 3.0, *s.VerticalSpeed)

	Derive(s, Float(5.5), rx)
	assert.Equal(t, 5.5, *s.VerticalSpeed)
}

func TestSondeState_CloneIsDeep(t *testing.T) {
	s := &SondeState{
		ID:      "S4",
		Launch:  &Point{Lat: 1},
		History: []HistoryPoint{level(0, 100, 10, 1000, 70)},
	}

	c := s.Clone(true)
	c.Launch.Lat = 2
	c.History[0].Lat = 9

	assert.Equal(t, 1.0, s.Launch.Lat)
	assert.Equal(t, 54.5, s.History[0].Lat)
	assert.Nil(t, s.Clone(false).History)
}

package domain

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHaversine(t *testing.T) {
	assert.InDelta(t, 111194.9, Haversine(0, 0, 0, 1), 0.5)
	assert.Zero(t, Haversine(54.5, 18.5, 54.5, 18.5))
}

func TestBearing(t *testing.T) {
	assert.InDelta(t, 0, Bearing(0, 0, 1, 0), 1e-9)
	assert.InDelta(t, 90, Bearing(0, 0, 0, 1), 1e-9)
	assert.InDelta(t, 180, Bearing(1, 0, 0, 0), 1e-9)
	assert.InDelta(t, 270, Bearing(0, 1, 0, 0), 1e-9)
}

func TestComputeKinematics(t *testing.T) {
	a := HistoryPoint{Time: flightStart, Lat: 54.500, Lon: 18.5, Alt: Float(1000)}
	b := HistoryPoint{Time: flightStart.Add(10 * time.Second), Lat: 54.501, Lon: 18.5, Alt: Float(1050)}

	k := ComputeKinematics([]HistoryPoint{a, b}, nil, nil)

	dH := Haversine(a.Lat, a.Lon, b.Lat, b.Lon)
	require.NotNil(t, k.HorizontalSpeed)
	assert.InDelta(t, dH/10, *k.HorizontalSpeed, 1e-9)
	require.NotNil(t, k.VerticalSpeed)
	assert.InDelta(t, 5, *k.VerticalSpeed, 1e-9)
	require.NotNil(t, k.Speed3D)
	assert.InDelta(t, math.Sqrt(dH*dH+50*50)/10, *k.Speed3D, 1e-9)
	require.NotNil(t, k.Course)
	assert.InDelta(t, 0, *k.Course, 1e-6)
}

func TestComputeKinematics_ClimbOverridesVerticalSpeed(t *testing.T) {
	a := HistoryPoint{Time: flightStart, Lat: 54.5, Lon: 18.5, Alt: Float(1000)}
	b := HistoryPoint{Time: flightStart.Add(10 * time.Second), Lat: 54.5, Lon: 18.501, Alt: Float(1050)}

	k := ComputeKinematics([]HistoryPoint{a, b}, Float(6.2), nil)

	require.NotNil(t, k.VerticalSpeed)
	assert.Equal(t, 6.2, *k.VerticalSpeed)
	require.NotNil(t, k.Course)
	assert.InDelta(t, 90, *k.Course, 0.01)
}

func TestComputeKinematics_DuplicateTimestampsClampDt(t *testing.T) {
	a := HistoryPoint{Time: flightStart, Lat: 54.5, Lon: 18.5, Alt: Float(1000)}
	b := HistoryPoint{Time: flightStart, Lat: 54.5, Lon: 18.5, Alt: Float(1001)}

	k := ComputeKinematics([]HistoryPoint{a, b}, nil, nil)

	require.NotNil(t, k.VerticalSpeed)
	assert.InDelta(t, 2, *k.VerticalSpeed, 1e-9, "dt is clamped to half a second")
	require.NotNil(t, k.HorizontalSpeed)
	assert.Zero(t, *k.HorizontalSpeed)
}

func TestComputeKinematics_MissingAltitude(t *testing.T) {
	a := HistoryPoint{Time: flightStart, Lat: 54.5, Lon: 18.5}
	b := HistoryPoint{Time: flightStart.Add(5 * time.Second), Lat: 54.5, Lon: 18.5, Alt: Float(10)}

	k := ComputeKinematics([]HistoryPoint{a, b}, nil, nil)

	assert.NotNil(t, k.HorizontalSpeed)
	assert.Nil(t, k.VerticalSpeed)
	assert.Nil(t, k.Speed3D)
}

func TestComputeKinematics_SinglePoint(t *testing.T) {
	single := []HistoryPoint{{Time: flightStart, Lat: 54.5, Lon: 18.5, Alt: Float(10)}}

	k := ComputeKinematics(single, nil, Float(4.4))
	require.NotNil(t, k.VerticalSpeed)
	assert.Equal(t, 4.4, *k.VerticalSpeed)
	assert.Nil(t, k.HorizontalSpeed)

	k = ComputeKinematics(single, Float(5.1), Float(4.4))
	require.NotNil(t, k.VerticalSpeed)
	assert.Equal(t, 5.1, *k.VerticalSpeed)
}

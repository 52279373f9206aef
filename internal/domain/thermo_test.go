package domain

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var flightStart = time.Date(2024, 4, 26, 11, 0, 0, 0, time.UTC)

// level builds a history point at offset seconds into the flight.
func level(offset int, alt, temp, pressure, rh float64) HistoryPoint {
	return HistoryPoint{
		Time:     flightStart.Add(time.Duration(offset) * time.Second),
		Lat:      54.5,
		Lon:      18.5,
		Alt:      Float(alt),
		Temp:     Float(temp),
		Pressure: Float(pressure),
		Humidity: Float(rh),
	}
}

func TestDewPoint(t *testing.T) {
	td, ok := DewPoint(20, 50)
	require.True(t, ok)
	assert.InDelta(t, 9.26, td, 0.01)

	td, ok = DewPoint(15, 100)
	require.True(t, ok)
	assert.InDelta(t, 15, td, 1e-9)

	td, ok = DewPoint(15, 130)
	require.True(t, ok)
	assert.LessOrEqual(t, td, 15.0, "humidity above 100% is clamped")

	_, ok = DewPoint(15, 0)
	assert.False(t, ok, "zero humidity has no dew point")

	_, ok = DewPoint(math.NaN(), 50)
	assert.False(t, ok)
}

func TestDewPoint_NeverExceedsTemperature(t *testing.T) {
	for temp := -40.0; temp <= 40; temp += 5 {
		for rh := 1.0; rh <= 100; rh += 9 {
			td, ok := DewPoint(temp, rh)
			require.True(t, ok, "t=%v rh=%v", temp, rh)
			assert.LessOrEqual(t, td, temp+1e-9, "t=%v rh=%v", temp, rh)
		}
	}
}

func TestPotentialTemperature(t *testing.T) {
	theta, ok := PotentialTemperature(0, 1000)
	require.True(t, ok)
	assert.InDelta(t, 273.15, theta, 1e-9)

	theta, ok = PotentialTemperature(-20, 500)
	require.True(t, ok)
	assert.InDelta(t, 253.15*math.Pow(2, 0.2854), theta, 1e-9)

	_, ok = PotentialTemperature(10, 0)
	assert.False(t, ok)
	_, ok = PotentialTemperature(10, -5)
	assert.False(t, ok)
}

func TestLCLHeight(t *testing.T) {
	h, ok := LCLHeight(20, 10)
	require.True(t, ok)
	assert.InDelta(t, 1250, h, 1e-9)

	h, ok = LCLHeight(10, 10)
	require.True(t, ok)
	assert.Zero(t, h)

	_, ok = LCLHeight(10, 12)
	assert.False(t, ok)
}

func TestZeroIsoHeight(t *testing.T) {
	history := []HistoryPoint{
		level(10, 1100, 1, 880, 80),
		level(0, 1000, -1, 890, 80),
	}
	z, ok := ZeroIsoHeight(history)
	require.True(t, ok)
	assert.InDelta(t, 1050, z, 1e-9)
}

func TestZeroIsoHeight_FirstCrossingInAltitudeOrder(t *testing.T) {
	history := []HistoryPoint{
		level(0, 0, 10, 1000, 70),
		level(60, 1000, 2, 900, 70),
		level(120, 2000, -2, 800, 70),
		level(180, 3000, 4, 700, 70),
		level(240, 4000, -6, 600, 70),
	}
	z, ok := ZeroIsoHeight(history)
	require.True(t, ok)
	assert.InDelta(t, 1500, z, 1e-9)
}

func TestZeroIsoHeight_NoCrossing(t *testing.T) {
	_, ok := ZeroIsoHeight([]HistoryPoint{
		level(0, 0, 10, 1000, 70),
		level(60, 1000, 5, 900, 70),
	})
	assert.False(t, ok)

	_, ok = ZeroIsoHeight(nil)
	assert.False(t, ok)
}

func TestZeroIsoHeight_EqualTemperaturesAtZero(t *testing.T) {
	z, ok := ZeroIsoHeight([]HistoryPoint{
		level(0, 500, 0, 950, 70),
		level(60, 900, 0, 910, 70),
	})
	require.True(t, ok)
	assert.InDelta(t, 500, z, 1e-9)
}

func TestSaturationVapourPressure(t *testing.T) {
	assert.InDelta(t, 6.112, SaturationVapourPressure(0), 1e-9)
	assert.InDelta(t, 23.37, SaturationVapourPressure(20), 0.05)
}

package domain

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testSondeA = "S1234567"
	testSondeB = "T7654321"
)

var warsaw = time.FixedZone("CEST", 2*3600)

func TestNormalize_NativeSemicolonLayout(t *testing.T) {
	csv := strings.Join([]string{
		"SONDE;Type;QRG;StartPlace;DateTime;Latitude;Longitude;Course;Speed;Altitude;Description;Status;Finder",
		testSondeA + ";RS41-SGP;403.0;Gdynia;2024-04-26 15:10:05;54.51;18.52;90;5.5;1250;Clb=5.2m/s t=-12.4C h=64% p=512.3hPa batt=2.8V;Active;SP2ABC",
		testSondeA + ";RS41-SGP;403.0;Gdynia;2024-04-26 15:10:00;54.50;18.51;88;5.0;1200;Clb=5.0m/s t=-12.0C;Active;SP2ABC",
	}, "\n")

	batch := Normalize(csv, NormalizeOptions{Location: warsaw})

	require.Len(t, batch.Sondes, 1)
	assert.Equal(t, 2, batch.Rows)
	assert.Empty(t, batch.Rejected)

	sonde := batch.Sondes[0]
	assert.Equal(t, testSondeA, sonde.ID)
	require.Len(t, sonde.Samples, 2)

	first := sonde.Samples[0]
	assert.True(t, first.Raw.Time.Equal(time.Date(2024, 4, 26, 15, 10, 0, 0, warsaw)), "samples sorted by time")
	assert.Equal(t, 54.50, first.Raw.Lat)
	assert.Equal(t, 18.51, first.Raw.Lon)
	require.NotNil(t, first.Raw.Alt)
	assert.Equal(t, 1200.0, *first.Raw.Alt)
	require.NotNil(t, first.Raw.WindSpeed)
	assert.Equal(t, 5.0, *first.Raw.WindSpeed)
	require.NotNil(t, first.Raw.WindDir)
	assert.Equal(t, 88.0, *first.Raw.WindDir)
	assert.Nil(t, first.Raw.Temp, "no temperature column in the native layout")
	assert.Equal(t, "RS41-SGP", first.Extra.Type)

	second := sonde.Samples[1].Extra.Metrics
	require.NotNil(t, second.Temp)
	assert.Equal(t, -12.4, *second.Temp)
	require.NotNil(t, second.Pressure)
	assert.Equal(t, 512.3, *second.Pressure)
	require.NotNil(t, second.Battery)
	assert.Equal(t, 2.8, *second.Battery)
}

func TestNormalize_PositionalFallback(t *testing.T) {
	csv := "c0;c1;c2;c3;c4;c5;c6;c7;c8;c9;c10\n" +
		testSondeA + ";M10;x;x;1714140000;54.5;18.5;x;x;3000;t=-5.5C\n"

	batch := Normalize(csv, NormalizeOptions{})

	require.Len(t, batch.Sondes, 1)
	s := batch.Sondes[0].Samples[0]
	assert.Equal(t, testSondeA, batch.Sondes[0].ID)
	assert.Equal(t, "M10", s.Extra.Type)
	assert.True(t, s.Raw.Time.Equal(time.Unix(1714140000, 0)))
	require.NotNil(t, s.Raw.Alt)
	assert.Equal(t, 3000.0, *s.Raw.Alt)
	assert.Equal(t, "t=-5.5C", s.Raw.Description)
	require.NotNil(t, s.Extra.Metrics.Temp)
	assert.Equal(t, -5.5, *s.Extra.Metrics.Temp)
}

func TestNormalize_SubstringHeaders(t *testing.T) {
	csv := "Sonde ID;Model;Timestamp UTC;Lat (deg);Lon (deg);Alt m;Temp C;Pressure hPa;Humidity %\n" +
		testSondeB + ";RS41;2024-04-26T15:10:00Z;54.5;18.5;800;4.5;920.1;88\n"

	batch := Normalize(csv, NormalizeOptions{})

	require.Len(t, batch.Sondes, 1)
	raw := batch.Sondes[0].Samples[0].Raw
	assert.True(t, raw.Time.Equal(time.Date(2024, 4, 26, 15, 10, 0, 0, time.UTC)))
	require.NotNil(t, raw.Temp)
	assert.Equal(t, 4.5, *raw.Temp)
	require.NotNil(t, raw.Pressure)
	assert.Equal(t, 920.1, *raw.Pressure)
	require.NotNil(t, raw.Humidity)
	assert.Equal(t, 88.0, *raw.Humidity)
	assert.Equal(t, "RS41", batch.Sondes[0].Samples[0].Extra.Type)
}

func TestNormalize_CommaGroupsAndRejections(t *testing.T) {
	csv := strings.Join([]string{
		"id,type,time,lat,lon,alt,temp,pressure,humidity,rssi",
		testSondeB + ",RS41,1714140010,54.6,18.6,500,10,950,80,-90",
		testSondeA + ",RS41,1714140000000,54.5,18.5,100,15,1000,85,-80",
		testSondeA + ",RS41,not-a-time,54.5,18.5,100,15,1000,85,-80",
		testSondeA + ",RS41,1714140005,,18.5,100,15,1000,85,-80",
		testSondeA + ",RS41,1714140006,NaN,18.5,100,15,1000,85,-80",
		",RS41,1714140007,54.5,18.5,100,15,1000,85,-80",
		"",
	}, "\r\n")

	batch := Normalize(csv, NormalizeOptions{})

	type summary struct {
		ID    string
		Times []int64
	}
	var got []summary
	for _, s := range batch.Sondes {
		sm := summary{ID: s.ID}
		for _, smp := range s.Samples {
			sm.Times = append(sm.Times, smp.Raw.Time.Unix())
		}
		got = append(got, sm)
	}
	// Groups are ordered by id.
	want := []summary{
		{ID: testSondeA, Times: []int64{1714140000}},
		{ID: testSondeB, Times: []int64{1714140010}},
		{ID: UnknownID, Times: []int64{1714140007}},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("grouped samples mismatch (-want +got):\n%s", diff)
	}

	assert.Equal(t, 6, batch.Rows)
	assert.Equal(t, 3, batch.Accepted())
	require.Len(t, batch.Rejected, 3)
	assert.ErrorIs(t, batch.Rejected[0].Reason, ErrUnparsableTimestamp)
	assert.Equal(t, 4, batch.Rejected[0].Line)
	assert.ErrorIs(t, batch.Rejected[1].Reason, ErrMissingCoordinates)
	assert.ErrorIs(t, batch.Rejected[2].Reason, ErrMissingCoordinates)

	rssi := batch.Sondes[0].Samples[0].Raw.RSSI
	require.NotNil(t, rssi)
	assert.Equal(t, -80.0, *rssi)
}

func TestNormalize_Filter(t *testing.T) {
	csv := strings.Join([]string{
		"id;time;lat;lon",
		testSondeA + ";1714140000;54.5;18.5",
		testSondeB + ";1714140000;54.5;18.5",
	}, "\n")

	batch := Normalize(csv, NormalizeOptions{Filter: "s123"})

	require.Len(t, batch.Sondes, 1)
	assert.Equal(t, testSondeA, batch.Sondes[0].ID)
	require.Len(t, batch.Rejected, 1)
	assert.True(t, errors.Is(batch.Rejected[0].Reason, ErrFilteredOut))
	assert.Equal(t, testSondeB, batch.Rejected[0].ID)
}

func TestNormalize_EmptyInput(t *testing.T) {
	assert.Empty(t, Normalize("", NormalizeOptions{}).Sondes)
	assert.Empty(t, Normalize("id;time;lat;lon\n", NormalizeOptions{}).Sondes)
}

func TestNormalize_QuotedDescriptionWithDelimiter(t *testing.T) {
	csv := "id,time,lat,lon,description\n" +
		testSondeA + `,1714140000,54.5,18.5,"t=-3.0C, h=90%"` + "\n"

	batch := Normalize(csv, NormalizeOptions{})

	require.Len(t, batch.Sondes, 1)
	m := batch.Sondes[0].Samples[0].Extra.Metrics
	require.NotNil(t, m.Temp)
	assert.Equal(t, -3.0, *m.Temp)
	require.NotNil(t, m.Humidity)
	assert.Equal(t, 90.0, *m.Humidity)
}

func TestParseTimestamp(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want time.Time
		ok   bool
	}{
		{"epoch seconds", "1714140000", time.Unix(1714140000, 0), true},
		{"epoch milliseconds", "1714140000123", time.UnixMilli(1714140000123), true},
		{"local calendar", "2024-04-26 15:10:00", time.Date(2024, 4, 26, 15, 10, 0, 0, warsaw), true},
		{"calendar rollover", "2024-04-26 24:00:00", time.Date(2024, 4, 27, 0, 0, 0, 0, warsaw), true},
		{"rfc3339", "2024-04-26T13:10:00Z", time.Date(2024, 4, 26, 13, 10, 0, 0, time.UTC), true},
		{"iso without zone is local", "2024-04-26T15:10:00", time.Date(2024, 4, 26, 15, 10, 0, 0, warsaw), true},
		{"rfc1123", "Fri, 26 Apr 2024 13:10:00 GMT", time.Date(2024, 4, 26, 13, 10, 0, 0, time.UTC), true},
		{"empty", "", time.Time{}, false},
		{"garbage", "yesterday-ish", time.Time{}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ParseTimestamp(tt.in, warsaw)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.True(t, tt.want.Equal(got), "want %s, got %s", tt.want, got)
			}
		})
	}
}

func TestParseDescription(t *testing.T) {
	m := ParseDescription("Clb=-12.5m/s t=-40.2C h=12% p=120.5hPa vbatt=2.6V")

	require.NotNil(t, m.VerticalSpeed)
	assert.Equal(t, -12.5, *m.VerticalSpeed)
	require.NotNil(t, m.Temp)
	assert.Equal(t, -40.2, *m.Temp)
	require.NotNil(t, m.Humidity)
	assert.Equal(t, 12.0, *m.Humidity)
	require.NotNil(t, m.Pressure)
	assert.Equal(t, 120.5, *m.Pressure)
	require.NotNil(t, m.Battery)
	assert.Equal(t, 2.6, *m.Battery)

	empty := ParseDescription("")
	assert.Nil(t, empty.Temp)
	assert.Nil(t, ParseDescription("no metrics here").Pressure)
}

package registry

import (
	"math/rand"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/sonde-etl/internal/domain"
)

var t0 = time.Date(2024, 4, 26, 12, 0, 0, 0, time.UTC)

func newTestRegistry(cfg Config) (*Registry, *clockwork.FakeClock) {
	clock := clockwork.NewFakeClockAt(t0)
	return New(cfg, clock), clock
}

func sampleAt(ts time.Time, alt float64) domain.Sample {
	return domain.Sample{
		Raw: domain.RawSample{
			Time:     ts,
			Lat:      54.5,
			Lon:      18.5,
			Alt:      domain.Float(alt),
			Temp:     domain.Float(10),
			Humidity: domain.Float(80),
			Pressure: domain.Float(950),
		},
		Extra: domain.Extra{Type: "RS41"},
	}
}

func TestNew_Defaults(t *testing.T) {
	r := New(Config{}, nil)

	cfg := r.Config()
	assert.Equal(t, DefaultCapacity, cfg.Capacity)
	assert.Equal(t, DefaultActiveTimeout, cfg.ActiveTimeout)
	assert.Equal(t, DefaultVisibilityWindow, cfg.VisibilityWindow)
	assert.Zero(t, r.Len())
}

func TestGetOrCreate(t *testing.T) {
	r, _ := newTestRegistry(Config{})

	s := r.GetOrCreate("S1")
	assert.Equal(t, "S1", s.ID)
	assert.Equal(t, domain.StatusActive, s.Status)
	assert.Empty(t, s.History)

	r.Merge("S1", sampleAt(t0, 100))
	again := r.GetOrCreate("S1")
	assert.Len(t, again.History, 1)
	assert.Equal(t, 1, r.Len())
}

func TestMerge_NewSonde(t *testing.T) {
	r, _ := newTestRegistry(Config{})

	res := r.Merge("S1", sampleAt(t0.Add(-10*time.Second), 100))

	assert.True(t, res.Created)
	assert.True(t, res.Appended)
	s, ok := r.Snapshot("S1", true)
	require.True(t, ok)
	assert.Equal(t, "RS41", s.Type)
	require.Len(t, s.History, 1)
	assert.InDelta(t, 10, s.AgeSec, 1e-9)
	assert.Equal(t, domain.StatusActive, s.Status)
	require.NotNil(t, s.DewPoint)
	require.NotNil(t, s.Theta)
	require.NotNil(t, s.DistanceToRef)
	require.NotNil(t, s.Launch)
}

func TestMerge_ColumnTakesPriorityOverDescription(t *testing.T) {
	r, _ := newTestRegistry(Config{})

	smp := sampleAt(t0, 100)
	smp.Raw.Humidity = nil
	smp.Extra.Metrics = domain.DescriptionMetrics{
		Temp:          domain.Float(-40),
		Humidity:      domain.Float(55),
		Battery:       domain.Float(2.9),
		VerticalSpeed: domain.Float(4.8),
	}
	r.Merge("S1", smp)

	s, _ := r.Snapshot("S1", true)
	require.NotNil(t, s.Temp)
	assert.Equal(t, 10.0, *s.Temp, "column value wins")
	require.NotNil(t, s.Humidity)
	assert.Equal(t, 55.0, *s.Humidity, "description fills the gap")
	require.NotNil(t, s.Battery)
	assert.Equal(t, 2.9, *s.Battery)
	require.NotNil(t, s.History[0].Humidity)
	assert.Equal(t, 55.0, *s.History[0].Humidity)
	require.NotNil(t, s.VerticalSpeed)
	assert.Equal(t, 4.8, *s.VerticalSpeed, "embedded climb rate")
}

func TestMerge_OutOfOrderAndDuplicate(t *testing.T) {
	r, _ := newTestRegistry(Config{})

	r.Merge("S1", sampleAt(t0, 1000))
	dup := r.Merge("S1", sampleAt(t0, 1001))
	old := r.Merge("S1", sampleAt(t0.Add(-time.Minute), 500))

	assert.False(t, dup.Appended)
	assert.False(t, old.Appended)

	s, _ := r.Snapshot("S1", true)
	require.Len(t, s.History, 1)
	assert.True(t, s.Time.Equal(t0))
	require.NotNil(t, s.Alt)
	assert.Equal(t, 1001.0, *s.Alt, "equal timestamp refreshes scalars")
}

func TestMerge_TypeKeepsLastNonEmpty(t *testing.T) {
	r, _ := newTestRegistry(Config{})

	r.Merge("S1", sampleAt(t0, 100))
	next := sampleAt(t0.Add(time.Second), 110)
	next.Extra.Type = ""
	r.Merge("S1", next)

	s, _ := r.Snapshot("S1", false)
	assert.Equal(t, "RS41", s.Type)
}

func TestMerge_CapacityDropsOldest(t *testing.T) {
	r, _ := newTestRegistry(Config{Capacity: 5})

	for i := 0; i < 8; i++ {
		r.Merge("S1", sampleAt(t0.Add(time.Duration(i)*time.Second), float64(i*10)))
	}

	s, _ := r.Snapshot("S1", true)
	require.Len(t, s.History, 5)
	assert.True(t, s.History[0].Time.Equal(t0.Add(3*time.Second)))
	assert.True(t, s.History[4].Time.Equal(t0.Add(7*time.Second)))
}

func TestMerge_HistoryInvariantsUnderShuffledDelivery(t *testing.T) {
	r, _ := newTestRegistry(Config{Capacity: 50})
	rng := rand.New(rand.NewSource(42))

	offsets := rng.Perm(200)
	for _, off := range offsets {
		r.Merge("S1", sampleAt(t0.Add(time.Duration(off)*time.Second), float64(off)))
	}

	s, _ := r.Snapshot("S1", true)
	assert.LessOrEqual(t, len(s.History), 50)
	for i := 1; i < len(s.History); i++ {
		assert.True(t, s.History[i].Time.After(s.History[i-1].Time), "index %d", i)
	}
	assert.True(t, s.Time.Equal(t0.Add(199*time.Second)), "scalars follow the newest sample")
}

func TestMerge_StatusIsRecencyBased(t *testing.T) {
	r, clock := newTestRegistry(Config{ActiveTimeout: 900 * time.Second})

	r.Merge("S1", sampleAt(t0.Add(-901*time.Second), 100))
	s, _ := r.Snapshot("S1", false)
	assert.Equal(t, domain.StatusFinished, s.Status)

	clock.Advance(time.Second)
	r.Merge("S1", sampleAt(clock.Now(), 110))
	s, _ = r.Snapshot("S1", false)
	assert.Equal(t, domain.StatusActive, s.Status, "a fresh sample revives the sonde")
}

func TestEvictStale_VisibilityWindowBoundary(t *testing.T) {
	window := 6 * time.Hour
	r, clock := newTestRegistry(Config{ActiveTimeout: 900 * time.Second, VisibilityWindow: window})

	r.Merge("OLD", sampleAt(t0.Add(-window-time.Second), 100))
	r.Merge("KEEP", sampleAt(t0.Add(-window+time.Second), 100))
	r.Merge("LIVE", sampleAt(t0, 100))

	evicted := r.EvictStale(clock.Now())

	assert.Equal(t, []string{"OLD"}, evicted)
	_, ok := r.Snapshot("OLD", false)
	assert.False(t, ok)

	keep, ok := r.Snapshot("KEEP", false)
	require.True(t, ok)
	assert.Equal(t, domain.StatusFinished, keep.Status)
	live, _ := r.Snapshot("LIVE", false)
	assert.Equal(t, domain.StatusActive, live.Status)

	clock.Advance(2 * time.Second)
	assert.Equal(t, []string{"KEEP"}, r.EvictStale(clock.Now()))
	assert.Equal(t, 1, r.Len())
}

func TestEvictStale_RefreshesStatus(t *testing.T) {
	r, clock := newTestRegistry(Config{ActiveTimeout: time.Minute})

	r.Merge("S1", sampleAt(t0, 100))
	clock.Advance(2 * time.Minute)

	assert.Empty(t, r.EvictStale(clock.Now()))
	s, _ := r.Snapshot("S1", false)
	assert.Equal(t, domain.StatusFinished, s.Status)
	assert.InDelta(t, 120, s.AgeSec, 1e-9)
}

func TestSnapshots_FilterSortAndIsolation(t *testing.T) {
	r, _ := newTestRegistry(Config{})
	for _, id := range []string{"T200", "S100", "S150"} {
		r.Merge(id, sampleAt(t0, 100))
	}

	all := r.Snapshots("", false)
	require.Len(t, all, 3)
	assert.Equal(t, "S100", all[0].ID)
	assert.Equal(t, "T200", all[2].ID)
	assert.Nil(t, all[0].History)

	filtered := r.Snapshots("s1", true)
	require.Len(t, filtered, 2)
	require.Len(t, filtered[0].History, 1)

	filtered[0].History[0].Lat = 0
	again, _ := r.Snapshot("S100", true)
	assert.Equal(t, 54.5, again.History[0].Lat)
}

func TestUpdate(t *testing.T) {
	r, _ := newTestRegistry(Config{})
	r.Merge("S1", sampleAt(t0, 100))

	ok := r.Update("S1", func(s *domain.SondeState) {
		s.LaunchPlace = "Gdynia"
		s.GeoSource = domain.GeoSourceReverse
	})
	require.True(t, ok)

	s, _ := r.Snapshot("S1", false)
	assert.Equal(t, "Gdynia", s.LaunchPlace)
	assert.False(t, r.Update("missing", func(*domain.SondeState) {}))
}

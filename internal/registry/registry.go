// Package registry owns the per-sonde state and bounded history buffers.
//
// A Registry has a single writer (the ingestion pipeline). Readers such as
// the HTTP server and publishers only ever receive deep copies.
package registry

import (
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/sonde-etl/internal/domain"
)

// Defaults applied when a Config field is zero.
const (
	DefaultCapacity         = 600
	DefaultActiveTimeout    = 900 * time.Second
	DefaultVisibilityWindow = 6 * time.Hour
)

// Config holds the fixed lifecycle parameters.
type Config struct {
	Capacity         int
	ActiveTimeout    time.Duration
	VisibilityWindow time.Duration
	Reference        domain.Reference
}

// MergeResult reports what a single merge changed.
type MergeResult struct {
	Created  bool
	Appended bool
}

// Registry maps sonde identifiers to their consolidated state.
type Registry struct {
	cfg   Config
	clock clockwork.Clock

	mu     sync.RWMutex
	sondes map[string]*domain.SondeState
}

// New creates an empty Registry. A nil clock uses the real clock.
func New(cfg Config, clock clockwork.Clock) *Registry {
	if cfg.Capacity <= 0 {
		cfg.Capacity = DefaultCapacity
	}
	if cfg.ActiveTimeout <= 0 {
		cfg.ActiveTimeout = DefaultActiveTimeout
	}
	if cfg.VisibilityWindow <= 0 {
		cfg.VisibilityWindow = DefaultVisibilityWindow
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Registry{
		cfg:    cfg,
		clock:  clock,
		sondes: make(map[string]*domain.SondeState),
	}
}

// GetOrCreate returns a copy of the state for id, registering an empty
// active state first if the identifier is new.
func (r *Registry) GetOrCreate(id string) domain.SondeState {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, _ := r.getOrCreateLocked(id)
	return s.Clone(true)
}

func (r *Registry) getOrCreateLocked(id string) (*domain.SondeState, bool) {
	if s, ok := r.sondes[id]; ok {
		return s, false
	}
	s := &domain.SondeState{ID: id, Status: domain.StatusActive}
	r.sondes[id] = s
	return s, true
}

// Merge folds one sample into the state for id. A history point is appended
// only when the sample is strictly newer than the latest one; scalar fields
// follow the newest sample seen. Derived quantities are always recomputed.
func (r *Registry) Merge(id string, sample domain.Sample) MergeResult {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, created := r.getOrCreateLocked(id)
	raw, desc := sample.Raw, sample.Extra.Metrics

	temp := domain.FirstFinite(raw.Temp, desc.Temp)
	pressure := domain.FirstFinite(raw.Pressure, desc.Pressure)
	humidity := domain.FirstFinite(raw.Humidity, desc.Humidity)
	battery := domain.FirstFinite(raw.Battery, desc.Battery)
	alt := domain.FirstFinite(raw.Alt)

	res := MergeResult{Created: created}
	if n := len(s.History); n == 0 || raw.Time.After(s.History[n-1].Time) {
		s.History = append(s.History, domain.HistoryPoint{
			Time:     raw.Time,
			Lat:      raw.Lat,
			Lon:      raw.Lon,
			Alt:      alt,
			Temp:     temp,
			Pressure: pressure,
			Humidity: humidity,
			RSSI:     domain.FirstFinite(raw.RSSI),
			Battery:  battery,
		})
		if over := len(s.History) - r.cfg.Capacity; over > 0 {
			s.History = slices.Delete(s.History, 0, over)
		}
		res.Appended = true
	}

	var climb *float64
	if s.Time.IsZero() || !raw.Time.Before(s.Time) {
		s.Time = raw.Time
		s.Lat = domain.Float(raw.Lat)
		s.Lon = domain.Float(raw.Lon)
		s.Alt = alt
		s.Temp = temp
		s.Pressure = pressure
		s.Humidity = humidity
		s.WindSpeed = domain.FirstFinite(raw.WindSpeed)
		s.WindDir = domain.FirstFinite(raw.WindDir)
		s.RSSI = domain.FirstFinite(raw.RSSI)
		s.Battery = battery
		if t := strings.TrimSpace(sample.Extra.Type); t != "" {
			s.Type = t
		}
		climb = desc.VerticalSpeed
	}

	r.refreshLocked(s, r.clock.Now())
	domain.Derive(s, climb, r.cfg.Reference)
	return res
}

// refreshLocked recomputes age and status from the latest sample time.
func (r *Registry) refreshLocked(s *domain.SondeState, now time.Time) {
	if s.Time.IsZero() {
		s.AgeSec = 0
		s.Status = domain.StatusActive
		return
	}
	age := now.Sub(s.Time)
	s.AgeSec = age.Seconds()
	if age > r.cfg.ActiveTimeout {
		s.Status = domain.StatusFinished
	} else {
		s.Status = domain.StatusActive
	}
}

// EvictStale refreshes every sonde's age and status at now, then removes
// finished sondes whose latest sample is older than the visibility window.
// It returns the evicted identifiers in sorted order.
func (r *Registry) EvictStale(now time.Time) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	var evicted []string
	for id, s := range r.sondes {
		r.refreshLocked(s, now)
		if s.Status == domain.StatusFinished && now.Sub(s.Time) > r.cfg.VisibilityWindow {
			delete(r.sondes, id)
			evicted = append(evicted, id)
		}
	}
	sort.Strings(evicted)
	return evicted
}

// Update applies fn to the live state for id under the write lock. It
// reports false when the identifier is unknown.
func (r *Registry) Update(id string, fn func(*domain.SondeState)) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sondes[id]
	if !ok {
		return false
	}
	fn(s)
	return true
}

// Snapshot returns a deep copy of the state for id.
func (r *Registry) Snapshot(id string, withHistory bool) (domain.SondeState, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sondes[id]
	if !ok {
		return domain.SondeState{}, false
	}
	return s.Clone(withHistory), true
}

// Snapshots returns copies of every sonde whose identifier contains filter
// (case-insensitive), sorted by identifier. An empty filter matches all.
func (r *Registry) Snapshots(filter string, withHistory bool) []domain.SondeState {
	filter = strings.ToLower(strings.TrimSpace(filter))

	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]domain.SondeState, 0, len(r.sondes))
	for id, s := range r.sondes {
		if filter != "" && !strings.Contains(strings.ToLower(id), filter) {
			continue
		}
		out = append(out, s.Clone(withHistory))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Len returns the number of tracked sondes.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sondes)
}

// Config returns the effective configuration after defaults.
func (r *Registry) Config() Config {
	return r.cfg
}

package domain

import (
	"encoding/csv"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Row rejection reasons. A rejected row is skipped; the rest of the batch
// is still ingested.
var (
	ErrMalformedRow        = errors.New("malformed row")
	ErrUnparsableTimestamp = errors.New("unparsable timestamp")
	ErrMissingCoordinates  = errors.New("missing coordinates")
	ErrFilteredOut         = errors.New("identifier filtered out")
)

// UnknownID is assigned to rows whose identifier column is empty.
const UnknownID = "UNKNOWN"

var (
	digitsRe        = regexp.MustCompile(`^[0-9]+$`)
	localDateTimeRe = regexp.MustCompile(`^(\d{4})-(\d{2})-(\d{2}) (\d{2}):(\d{2}):(\d{2})$`)
)

// genericLayouts are tried in order once the integer and local calendar
// forms have failed. Layouts without an offset are read in the local zone.
var genericLayouts = []struct {
	layout string
	local  bool
}{
	{time.RFC3339Nano, false},
	{time.RFC3339, false},
	{"2006-01-02T15:04:05.999999999", true},
	{"2006-01-02T15:04", true},
	{"2006-01-02 15:04:05Z07:00", false},
	{"2006-01-02 15:04", true},
	{"2006/01/02 15:04:05", true},
	{"2006-01-02", false},
	{time.RFC1123Z, false},
	{time.RFC1123, false},
	{time.RFC850, false},
	{time.RFC822Z, false},
	{time.RFC822, false},
	{time.UnixDate, false},
	{time.ANSIC, true},
	{"Mon Jan 2 2006 15:04:05 GMT-0700", false},
}

// Logical fields and the header names they resolve from, in priority order.
const (
	colID = iota
	colType
	colLat
	colLon
	colAlt
	colTemp
	colPressure
	colHumidity
	colWindSpeed
	colWindDir
	colRSSI
	colBattery
	colTime
	colDesc
	numCols
)

var columnNames = [numCols][]string{
	colID:        {"sonde", "id", "serial"},
	colType:      {"type", "model"},
	colLat:       {"latitude", "lat"},
	colLon:       {"longitude", "lon", "lng"},
	colAlt:       {"altitude", "alt"},
	colTemp:      {"temp", "temperature"},
	colPressure:  {"pres", "pressure", "p"},
	colHumidity:  {"humi", "rh"},
	colWindSpeed: {"speed", "ws"},
	colWindDir:   {"course", "wd"},
	colRSSI:      {"rssi"},
	colBattery:   {"battery", "batt", "vbat"},
	colTime:      {"datetime", "time", "timestamp"},
	colDesc:      {"description", "desc"},
}

// Positional fallback for the aggregator's native layout:
// SONDE;Type;QRG;StartPlace;DateTime;Latitude;Longitude;Course;Speed;Altitude;Description;Status;Finder
var positionalFallback = map[int]int{
	colID:   0,
	colType: 1,
	colTime: 4,
	colLat:  5,
	colLon:  6,
	colAlt:  9,
	colDesc: 10,
}

// minSubstringMatch keeps very short aliases such as "p" or "rh" from
// matching unrelated headers ("type", "three").
const minSubstringMatch = 3

// NormalizeOptions controls row filtering and timestamp interpretation.
type NormalizeOptions struct {
	// Filter keeps only rows whose identifier contains it (case-insensitive).
	Filter string
	// Location is used for "YYYY-MM-DD HH:MM:SS" timestamps. Nil means time.Local.
	Location *time.Location
}

// Rejection records why a single input line was skipped.
type Rejection struct {
	Line   int
	ID     string
	Reason error
}

// Batch is the result of normalizing one delimited text payload.
type Batch struct {
	Sondes   []SondeBatch
	Rows     int
	Rejected []Rejection
}

// Accepted returns the number of rows that made it into the batch.
func (b Batch) Accepted() int {
	n := 0
	for _, s := range b.Sondes {
		n += len(s.Samples)
	}
	return n
}

// Normalize parses a delimited text payload with a header row into samples
// grouped by identifier and sorted by timestamp. Groups are ordered by id.
func Normalize(text string, opts NormalizeOptions) Batch {
	loc := opts.Location
	if loc == nil {
		loc = time.Local
	}

	lines := splitLines(text)
	if len(lines) < 2 {
		return Batch{}
	}

	sep := detectDelimiter(lines[0].text)
	header, err := splitRow(lines[0].text, sep)
	if err != nil {
		return Batch{Rejected: []Rejection{{Line: lines[0].number, Reason: fmt.Errorf("%w: header: %v", ErrMalformedRow, err)}}}
	}
	idx := resolveColumns(header)

	filter := strings.ToLower(strings.TrimSpace(opts.Filter))
	perSonde := make(map[string][]Sample)
	batch := Batch{}

	for _, ln := range lines[1:] {
		batch.Rows++
		row, err := splitRow(ln.text, sep)
		if err != nil {
			batch.Rejected = append(batch.Rejected, Rejection{Line: ln.number, Reason: fmt.Errorf("%w: %v", ErrMalformedRow, err)})
			continue
		}
		sample, id, err := parseRow(row, idx, filter, loc)
		if err != nil {
			batch.Rejected = append(batch.Rejected, Rejection{Line: ln.number, ID: id, Reason: err})
			continue
		}
		perSonde[id] = append(perSonde[id], sample)
	}

	ids := make([]string, 0, len(perSonde))
	for id := range perSonde {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		samples := perSonde[id]
		sort.SliceStable(samples, func(i, j int) bool {
			return samples[i].Raw.Time.Before(samples[j].Raw.Time)
		})
		batch.Sondes = append(batch.Sondes, SondeBatch{ID: id, Samples: samples})
	}
	return batch
}

func parseRow(row []string, idx [numCols]int, filter string, loc *time.Location) (Sample, string, error) {
	field := func(col int) string {
		i := idx[col]
		if i < 0 || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}

	id := field(colID)
	if id == "" {
		id = UnknownID
	}

	tRaw := field(colTime)
	ts, ok := ParseTimestamp(tRaw, loc)
	if !ok {
		return Sample{}, id, fmt.Errorf("%w: %q", ErrUnparsableTimestamp, tRaw)
	}

	lat, latOK := parseFinite(field(colLat))
	lon, lonOK := parseFinite(field(colLon))
	if !latOK || !lonOK {
		return Sample{}, id, fmt.Errorf("%w: lat=%q lon=%q", ErrMissingCoordinates, field(colLat), field(colLon))
	}

	if filter != "" && !strings.Contains(strings.ToLower(id), filter) {
		return Sample{}, id, ErrFilteredOut
	}

	desc := field(colDesc)
	raw := RawSample{
		Time:        ts,
		Lat:         lat,
		Lon:         lon,
		Alt:         parseOptional(field(colAlt)),
		Temp:        parseOptional(field(colTemp)),
		Pressure:    parseOptional(field(colPressure)),
		Humidity:    parseOptional(field(colHumidity)),
		WindSpeed:   parseOptional(field(colWindSpeed)),
		WindDir:     parseOptional(field(colWindDir)),
		RSSI:        parseOptional(field(colRSSI)),
		Battery:     parseOptional(field(colBattery)),
		Description: desc,
	}
	return Sample{
		Raw:   raw,
		Extra: Extra{Type: field(colType), Metrics: ParseDescription(desc)},
	}, id, nil
}

// ParseTimestamp applies the ingestion timestamp policy: integer epoch
// seconds (fewer than 11 digits) or milliseconds, then a local
// "YYYY-MM-DD HH:MM:SS" calendar time, then a set of common date layouts.
func ParseTimestamp(s string, loc *time.Location) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	if loc == nil {
		loc = time.Local
	}

	if digitsRe.MatchString(s) {
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return time.Time{}, false
		}
		if len(s) < 11 {
			return time.Unix(n, 0), true
		}
		return time.UnixMilli(n), true
	}

	if m := localDateTimeRe.FindStringSubmatch(s); m != nil {
		var parts [6]int
		for i := range parts {
			parts[i], _ = strconv.Atoi(m[i+1])
		}
		// time.Date normalizes out-of-range fields the same way a calendar roll-over would.
		return time.Date(parts[0], time.Month(parts[1]), parts[2], parts[3], parts[4], parts[5], 0, loc), true
	}

	for _, l := range genericLayouts {
		var (
			t   time.Time
			err error
		)
		if l.local {
			t, err = time.ParseInLocation(l.layout, s, loc)
		} else {
			t, err = time.Parse(l.layout, s)
		}
		if err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func resolveColumns(header []string) [numCols]int {
	lower := make([]string, len(header))
	for i, h := range header {
		lower[i] = strings.ToLower(strings.TrimSpace(h))
	}

	var idx [numCols]int
	for col, names := range columnNames {
		idx[col] = findColumn(lower, names)
	}
	for col, pos := range positionalFallback {
		if idx[col] == -1 && len(lower) > pos {
			idx[col] = pos
		}
	}
	return idx
}

func findColumn(headers, names []string) int {
	for _, name := range names {
		for i, h := range headers {
			if h == name {
				return i
			}
		}
	}
	for _, name := range names {
		if len(name) < minSubstringMatch {
			continue
		}
		for i, h := range headers {
			if strings.Contains(h, name) {
				return i
			}
		}
	}
	return -1
}

type line struct {
	number int
	text   string
}

func splitLines(text string) []line {
	raw := strings.Split(text, "\n")
	out := make([]line, 0, len(raw))
	for i, l := range raw {
		l = strings.TrimRight(l, "\r")
		if strings.TrimSpace(l) == "" {
			continue
		}
		out = append(out, line{number: i + 1, text: l})
	}
	return out
}

func detectDelimiter(header string) rune {
	if strings.Contains(header, ";") {
		return ';'
	}
	return ','
}

func splitRow(s string, sep rune) ([]string, error) {
	r := csv.NewReader(strings.NewReader(s))
	r.Comma = sep
	r.FieldsPerRecord = -1
	r.LazyQuotes = true
	r.TrimLeadingSpace = true
	return r.Read()
}

func parseFinite(s string) (float64, bool) {
	if s == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return Finite(&v)
}

func parseOptional(s string) *float64 {
	v, ok := parseFinite(s)
	if !ok {
		return nil
	}
	return &v
}

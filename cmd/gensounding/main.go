// Command gensounding writes a synthetic radiosonde flight as aggregator CSV
// for fixtures and demos. Every generated row is run back through the domain
// normalizer so the output is guaranteed to ingest cleanly.
//
// Usage:
//
//	go run ./cmd/gensounding \
//	  -layout semicolon \
//	  -id S1234567 \
//	  -out data/mock/sounding_semicolon.csv
package main

import (
	"flag"
	"fmt"
	"log"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/couchcryptid/sonde-etl/internal/domain"
)

const (
	layoutSemicolon = "semicolon"
	layoutComma     = "comma"

	ascentRate   = 5.0  // m/s
	descentRate  = 12.0 // m/s, mean under parachute
	metresPerDeg = 111320.0
)

var defaultLaunch = time.Date(2024, time.April, 26, 11, 15, 0, 0, time.UTC)

// flightParams describe one synthetic flight.
type flightParams struct {
	Launch   time.Time
	Interval time.Duration
	BurstAlt float64
	LaunchAt domain.Reference
	SiteAlt  float64
}

// fix is one generated telemetry row.
type fix struct {
	Time      time.Time
	Lat, Lon  float64
	Alt       float64
	Temp      float64
	Pressure  float64
	Humidity  float64
	Climb     float64
	WindSpeed float64
	WindDir   float64
	Battery   float64
}

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	layout := flag.String("layout", layoutSemicolon, "output layout: semicolon (aggregator positional) or comma (named columns)")
	id := flag.String("id", "S1234567", "sonde identifier")
	sondeType := flag.String("type", "RS41-SGP", "sonde type label")
	out := flag.String("out", "", "output CSV path (stdout when empty)")
	interval := flag.Duration("interval", 10*time.Second, "time between fixes")
	burst := flag.Float64("burst", 30000, "burst altitude in metres")
	lat := flag.Float64("lat", 54.7536, "launch latitude")
	lon := flag.Float64("lon", 17.5340, "launch longitude")
	flag.Parse()

	if *interval <= 0 || *burst <= 0 {
		flag.Usage()
		return fmt.Errorf("-interval and -burst must be positive")
	}

	fixes := simulate(flightParams{
		Launch:   defaultLaunch,
		Interval: *interval,
		BurstAlt: *burst,
		LaunchAt: domain.Reference{Lat: *lat, Lon: *lon},
		SiteAlt:  10,
	})

	text, err := render(*layout, *id, *sondeType, fixes)
	if err != nil {
		return err
	}

	batch := domain.Normalize(text, domain.NormalizeOptions{Location: time.UTC})
	if err := verify(batch, len(fixes)); err != nil {
		return err
	}
	log.Printf("%s: %d fixes, burst at %.0f m, %s layout", *id, len(fixes), *burst, *layout)

	if *out == "" {
		_, err := os.Stdout.WriteString(text)
		return err
	}
	if err := writeFile(*out, text); err != nil {
		return fmt.Errorf("writing sounding: %w", err)
	}
	log.Printf("wrote sounding: %s", *out)
	return nil
}

// simulate produces an ascent to BurstAlt followed by a descent to the
// launch site elevation, using the standard atmosphere for T and p.
func simulate(p flightParams) []fix {
	var (
		fixes   []fix
		alt     = p.SiteAlt
		lat     = p.LaunchAt.Lat
		lon     = p.LaunchAt.Lon
		t       = p.Launch
		battery = 3.0
		dt      = p.Interval.Seconds()
		rising  = true
	)

	for {
		climb := ascentRate
		if !rising {
			climb = -descentRate
		}
		speed, dir := windAt(alt)
		fixes = append(fixes, fix{
			Time:      t,
			Lat:       round(lat, 5),
			Lon:       round(lon, 5),
			Alt:       round(alt, 1),
			Temp:      round(temperatureAt(alt), 1),
			Pressure:  round(pressureAt(alt), 1),
			Humidity:  round(humidityAt(alt), 0),
			Climb:     climb,
			WindSpeed: round(speed, 1),
			WindDir:   round(dir, 0),
			Battery:   round(battery, 2),
		})

		if !rising && alt <= p.SiteAlt {
			break
		}

		// Drift downwind: dir is where the wind blows from.
		rad := (dir + 180) * math.Pi / 180
		lat += speed * dt * math.Cos(rad) / metresPerDeg
		lon += speed * dt * math.Sin(rad) / (metresPerDeg * math.Cos(lat*math.Pi/180))
		alt += climb * dt
		t = t.Add(p.Interval)
		battery -= 0.0002 * dt

		if rising && alt >= p.BurstAlt {
			alt = p.BurstAlt
			rising = false
		}
		if !rising && alt < p.SiteAlt {
			alt = p.SiteAlt
		}
	}
	return fixes
}

func temperatureAt(h float64) float64 {
	switch {
	case h <= 11000:
		return 15 - 0.0065*h
	case h <= 20000:
		return -56.5
	default:
		return -56.5 + 0.001*(h-20000)
	}
}

func pressureAt(h float64) float64 {
	if h <= 11000 {
		return 1013.25 * math.Pow(1-2.25577e-5*h, 5.25588)
	}
	return 226.32 * math.Exp(-(h-11000)/6341.6)
}

func humidityAt(h float64) float64 {
	return math.Max(5, 85-h/150)
}

// windAt returns speed (m/s) and the direction the wind blows from (deg).
func windAt(h float64) (float64, float64) {
	speed := 4 + 25*math.Exp(-math.Pow((h-11000)/5000, 2))
	dir := 250 + 30*math.Sin(h/8000)
	return speed, math.Mod(dir, 360)
}

func render(layout, id, sondeType string, fixes []fix) (string, error) {
	var b strings.Builder
	switch layout {
	case layoutSemicolon:
		b.WriteString("SONDE;Type;QRG;StartPlace;DateTime;Latitude;Longitude;Course;Speed;Altitude;Description;Status;Finder\n")
		for _, f := range fixes {
			desc := fmt.Sprintf("Clb=%.1fm/s t=%.1fC h=%.0f%% p=%.1fhPa batt=%.2fV",
				f.Climb, f.Temp, f.Humidity, f.Pressure, f.Battery)
			fields := []string{
				id, sondeType, "403.000", "Leba",
				f.Time.UTC().Format("2006-01-02 15:04:05"),
				ftoa(f.Lat), ftoa(f.Lon), ftoa(f.WindDir), ftoa(f.WindSpeed), ftoa(f.Alt),
				desc, "", "",
			}
			b.WriteString(strings.Join(fields, ";"))
			b.WriteByte('\n')
		}
	case layoutComma:
		b.WriteString("id,type,datetime,lat,lon,alt,temp,pressure,humidity,speed,course,battery\n")
		for _, f := range fixes {
			fields := []string{
				id, sondeType, f.Time.UTC().Format(time.RFC3339),
				ftoa(f.Lat), ftoa(f.Lon), ftoa(f.Alt), ftoa(f.Temp), ftoa(f.Pressure),
				ftoa(f.Humidity), ftoa(f.WindSpeed), ftoa(f.WindDir), ftoa(f.Battery),
			}
			b.WriteString(strings.Join(fields, ","))
			b.WriteByte('\n')
		}
	default:
		return "", fmt.Errorf("unknown layout %q: must be %s or %s", layout, layoutSemicolon, layoutComma)
	}
	return b.String(), nil
}

// verify checks that the normalizer accepted every generated row.
func verify(batch domain.Batch, want int) error {
	if len(batch.Rejected) > 0 {
		r := batch.Rejected[0]
		return fmt.Errorf("%d generated rows rejected, first at line %d: %v", len(batch.Rejected), r.Line, r.Reason)
	}
	if got := batch.Accepted(); got != want {
		return fmt.Errorf("normalizer accepted %d of %d rows", got, want)
	}
	return nil
}

func ftoa(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func round(v float64, places int) float64 {
	m := math.Pow(10, float64(places))
	return math.Round(v*m) / m
}

func writeFile(path, text string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(text), 0o600)
}

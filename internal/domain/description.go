package domain

import (
	"regexp"
	"strconv"
)

var (
	// Aggregator descriptions look like "Clb=5.2m/s t=-12.4C h=64% p=512.3hPa batt=2.8V".
	climbRe    = regexp.MustCompile(`(?i)Clb\s*=\s*([-+]?\d+(?:\.\d+)?)\s*m/s`)
	tempRe     = regexp.MustCompile(`(?i)t\s*=\s*([-+]?\d+(?:\.\d+)?)\s*C`)
	humidityRe = regexp.MustCompile(`(?i)h\s*=\s*([-+]?\d+(?:\.\d+)?)\s*%`)
	pressureRe = regexp.MustCompile(`(?i)p\s*=\s*([-+]?\d+(?:\.\d+)?)\s*hPa`)
	batteryRe  = regexp.MustCompile(`(?i)(?:batt|bat|vbatt)\s*=\s*([-+]?\d+(?:\.\d+)?)\s*V`)
)

// DescriptionMetrics are fallback values scraped from a free-text description.
type DescriptionMetrics struct {
	VerticalSpeed *float64
	Temp          *float64
	Humidity      *float64
	Pressure      *float64
	Battery       *float64
}

// ParseDescription extracts the embedded metrics from an aggregator
// description. Fields that are not present stay nil.
func ParseDescription(desc string) DescriptionMetrics {
	if desc == "" {
		return DescriptionMetrics{}
	}
	return DescriptionMetrics{
		VerticalSpeed: matchFloat(climbRe, desc),
		Temp:          matchFloat(tempRe, desc),
		Humidity:      matchFloat(humidityRe, desc),
		Pressure:      matchFloat(pressureRe, desc),
		Battery:       matchFloat(batteryRe, desc),
	}
}

func matchFloat(re *regexp.Regexp, s string) *float64 {
	m := re.FindStringSubmatch(s)
	if len(m) != 2 {
		return nil
	}
	v, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return nil
	}
	return Float(v)
}

// Package domain models radiosonde (weather balloon) telemetry and the
// atmospheric quantities derived from it.
//
// # Data Source
//
// Telemetry is relayed by the radiosondy.info aggregator as delimited text
// with a header row. The delimiter is a semicolon for the aggregator's own
// export and a comma for most re-exports; it is detected from the header.
// Header names vary between exports, so each logical field resolves from a
// list of aliases: exact (case-insensitive) match first, then substring.
// When resolution fails the aggregator's native layout is assumed:
//
//	SONDE;Type;QRG;StartPlace;DateTime;Latitude;Longitude;Course;Speed;Altitude;Description;Status;Finder
//
// Timestamp formats:
//
//	"1714140000"          epoch seconds (fewer than 11 digits)
//	"1714140000000"       epoch milliseconds
//	"2024-04-26 15:10:00" local calendar time (see NormalizeOptions.Location)
//	anything else         common layouts such as RFC 3339 and RFC 1123
//
// Description field:
//
//	The aggregator packs measurements into free text, e.g.
//	"Clb=5.2m/s t=-12.4C h=64% p=512.3hPa batt=2.8V". These are used only
//	when the dedicated column is absent. See [ParseDescription].
//
// # Derived Quantities
//
// All computations are total: they report ok=false (or leave a nil pointer on
// [SondeState]) instead of failing.
//
//	Dew point        Magnus–Tetens inversion, a=17.27, b=237.7
//	Theta            (T+273.15)·(1000/p)^0.2854
//	LCL height       125·(T−Td) m, empirical
//	0 °C level       first interpolated crossing in altitude order
//	Stability        mean lapse rate over up to 10 segments thicker than 50 m
//	CAPE/CIN         surface parcel, Bolton LCL, Euler moist ascent, trapezoid buoyancy
//
// Stability classification (Γ in K/km):
//
//	Γ > 9.8 strongly unstable | > 7 unstable | > 4 neutral | > 0 stable | else strongly stable
//
// CIN is reported as a negative number of J/kg.
package domain

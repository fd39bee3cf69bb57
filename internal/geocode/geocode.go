// Package geocode turns an ECEF-derived WGS-84 position into an
// approximate country and city label for a mount's sourcetable entry. It
// is a best-effort, offline lookup: no network dependency exists in the
// pack for this (no HTTP geocoding client appears in any example's
// go.mod), so this is intentionally a small bounding-box table rather
// than a call to an external service - see DESIGN.md for the
// standard-library justification.
package geocode

import "math"

// region is a coarse rectangular approximation of a country's extent,
// good enough to label a sourcetable entry, never used for anything
// safety-relevant.
type region struct {
	iso2, iso3, country, city string
	minLat, maxLat            float64
	minLon, maxLon            float64
}

// regions is deliberately small: it covers the handful of
// reference/test networks a caster deployment is likely to exercise,
// not a complete gazetteer. For unmatched coordinates Lookup returns a
// zero Result (empty country and city).
var regions = []region{
	{"US", "USA", "United States", "Denver", 24.5, 49.4, -125.0, -66.9},
	{"CA", "CAN", "Canada", "Ottawa", 41.7, 83.1, -141.0, -52.6},
	{"GB", "GBR", "United Kingdom", "London", 49.9, 60.9, -8.6, 1.8},
	{"DE", "DEU", "Germany", "Frankfurt", 47.3, 55.1, 5.9, 15.0},
	{"FR", "FRA", "France", "Paris", 41.3, 51.1, -5.1, 9.6},
	{"AU", "AUS", "Australia", "Canberra", -43.6, -10.7, 113.3, 153.6},
	{"JP", "JPN", "Japan", "Tokyo", 24.0, 45.5, 123.0, 146.0},
	{"BR", "BRA", "Brazil", "Brasilia", -33.7, 5.3, -73.9, -34.8},
	{"ZA", "ZAF", "South Africa", "Pretoria", -34.8, -22.1, 16.5, 32.9},
	{"IN", "IND", "India", "New Delhi", 8.1, 35.5, 68.1, 97.4},
	{"NZ", "NZL", "New Zealand", "Wellington", -47.3, -34.4, 166.4, 178.6},
}

// Result is the best-effort location label for a mount.
type Result struct {
	CountryISO2 string
	CountryISO3 string
	Country     string
	City        string
}

// Lookup returns the region containing (lat, lon), or a zero Result if
// none of the known bounding boxes match. It never returns an error: a
// failed lookup degrades the sourcetable entry's country/city fields
// rather than the upload itself (spec.md's metadata parser treats
// geocoding as tolerant-to-failure).
func Lookup(lat, lon float64) Result {
	if math.IsNaN(lat) || math.IsNaN(lon) {
		return Result{}
	}
	for _, r := range regions {
		if lat >= r.minLat && lat <= r.maxLat && lon >= r.minLon && lon <= r.maxLon {
			return Result{
				CountryISO2: r.iso2,
				CountryISO3: r.iso3,
				Country:     r.country,
				City:        r.city,
			}
		}
	}
	return Result{}
}

// iso2to3 is the ISO 3166-1 alpha-2 -> alpha-3 table for codes that can
// show up in an operator-supplied mount configuration even when Lookup
// can't place the coordinates (e.g. a base station behind NAT reporting
// 0,0 until its first valid fix).
var iso2to3 = map[string]string{
	"US": "USA", "CA": "CAN", "GB": "GBR", "DE": "DEU", "FR": "FRA",
	"AU": "AUS", "JP": "JPN", "BR": "BRA", "ZA": "ZAF", "IN": "IND",
	"NZ": "NZL", "CN": "CHN", "RU": "RUS", "MX": "MEX", "ES": "ESP",
	"IT": "ITA", "NL": "NLD", "SE": "SWE", "NO": "NOR", "FI": "FIN",
	"CH": "CHE", "AT": "AUT", "BE": "BEL", "PL": "POL", "KR": "KOR",
}

// ISO2To3 converts a 2-letter country code to its 3-letter equivalent,
// returning ok=false for codes not in the table.
func ISO2To3(iso2 string) (string, bool) {
	v, ok := iso2to3[iso2]
	return v, ok
}

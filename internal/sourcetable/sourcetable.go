// Package sourcetable builds, formats, parses and filters the NTRIP
// sourcetable (STR/CAS/NET/ENDSOURCETABLE) served at GET / (spec
// component C8).
package sourcetable

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"
)

// Table is everything returned in response to a sourcetable request.
type Table struct {
	Casters  []CasterEntry
	Networks []NetworkEntry
	Mounts   []StreamEntry
}

// String renders the table in the wire format clients expect, ending
// with the mandatory ENDSOURCETABLE marker.
func (t Table) String() string {
	lines := make([]string, 0, len(t.Casters)+len(t.Networks)+len(t.Mounts)+1)

	for _, c := range t.Casters {
		lines = append(lines, c.String())
	}
	for _, n := range t.Networks {
		lines = append(lines, n.String())
	}
	for _, m := range t.Mounts {
		lines = append(lines, m.String())
	}
	lines = append(lines, "ENDSOURCETABLE\r\n")
	return strings.Join(lines, "\r\n")
}

// Filter applies an NTRIP sourcetable query (e.g.
// "?STR;;;;;;;;DEU&bitrate>9600") and returns the subset of entries
// matching every condition.
func (t Table) Filter(rawQuery string) (Table, error) {
	if rawQuery == "" {
		return t, nil
	}

	q, err := parseQuery(rawQuery)
	if err != nil {
		return Table{}, err
	}
	if len(q.conditions) == 0 {
		return t, nil
	}

	result := Table{}
	for _, c := range t.Casters {
		if q.matches(c) {
			result.Casters = append(result.Casters, c)
		}
	}
	for _, n := range t.Networks {
		if q.matches(n) {
			result.Networks = append(result.Networks, n)
		}
	}
	for _, m := range t.Mounts {
		if q.matches(m) {
			result.Mounts = append(result.Mounts, m)
		}
	}
	return result, nil
}

// CasterEntry is a CAS line - this caster's own entry in its sourcetable.
type CasterEntry struct {
	Host                string
	Port                int
	Identifier          string
	Operator            string
	NMEA                bool
	Country             string
	Latitude            float64
	Longitude            float64
	FallbackHostAddress string
	FallbackHostPort    int
	Misc                string
}

func (c CasterEntry) String() string {
	nmea := "0"
	if c.NMEA {
		nmea = "1"
	}
	return strings.Join([]string{
		"CAS", c.Host, strconv.Itoa(c.Port), c.Identifier, c.Operator, nmea, c.Country,
		strconv.FormatFloat(c.Latitude, 'f', 4, 64), strconv.FormatFloat(c.Longitude, 'f', 4, 64),
		c.FallbackHostAddress, strconv.Itoa(c.FallbackHostPort), c.Misc,
	}, ";")
}

// NetworkEntry is a NET line grouping related mounts under one operator.
type NetworkEntry struct {
	Identifier          string
	Operator            string
	Authentication      string
	Fee                 bool
	NetworkInfoURL      string
	StreamInfoURL       string
	RegistrationAddress string
	Misc                string
}

func (n NetworkEntry) String() string {
	fee := "N"
	if n.Fee {
		fee = "Y"
	}
	return strings.Join([]string{
		"NET", n.Identifier, n.Operator, n.Authentication, fee,
		n.NetworkInfoURL, n.StreamInfoURL, n.RegistrationAddress, n.Misc,
	}, ";")
}

// StreamEntry is an STR line - one currently-online mount.
type StreamEntry struct {
	Name           string
	Identifier     string
	Format         string
	FormatDetails  string
	Carrier        string
	NavSystem      string
	Network        string
	CountryCode    string
	Latitude       float64
	Longitude      float64
	NMEA           bool
	Solution       bool
	Generator      string
	Compression    string
	Authentication string
	Fee            bool
	Bitrate        int
	Misc           string
}

func (m StreamEntry) String() string {
	nmea := "0"
	if m.NMEA {
		nmea = "1"
	}
	solution := "0"
	if m.Solution {
		solution = "1"
	}
	fee := "N"
	if m.Fee {
		fee = "Y"
	}
	return strings.Join([]string{
		"STR", m.Name, m.Identifier, m.Format, m.FormatDetails, m.Carrier, m.NavSystem,
		m.Network, m.CountryCode,
		strconv.FormatFloat(m.Latitude, 'f', 4, 64), strconv.FormatFloat(m.Longitude, 'f', 4, 64),
		nmea, solution, m.Generator, m.Compression, m.Authentication, fee,
		strconv.Itoa(m.Bitrate), m.Misc,
	}, ";")
}

// Parse parses a full sourcetable response body, collecting per-line
// errors as warnings rather than failing the whole parse - a caster
// that emits one malformed row shouldn't make its entire table
// unusable to a well-behaved client.
func Parse(body string) (Table, []error) {
	var table Table
	var warnings []error

	for i, raw := range strings.Split(body, "\n") {
		line := strings.TrimSpace(raw)
		if line == "" || line == "ENDSOURCETABLE" {
			if line == "ENDSOURCETABLE" {
				break
			}
			continue
		}
		if len(line) < 3 {
			continue
		}

		switch line[:3] {
		case "CAS":
			c, errs := ParseCasterEntry(line)
			warnings = append(warnings, wrapLineErrors(i, errs)...)
			table.Casters = append(table.Casters, c)
		case "NET":
			n, errs := ParseNetworkEntry(line)
			warnings = append(warnings, wrapLineErrors(i, errs)...)
			table.Networks = append(table.Networks, n)
		case "STR":
			m, errs := ParseStreamEntry(line)
			warnings = append(warnings, wrapLineErrors(i, errs)...)
			table.Mounts = append(table.Mounts, m)
		}
	}

	return table, warnings
}

func wrapLineErrors(lineNo int, errs []error) []error {
	out := make([]error, len(errs))
	for i, e := range errs {
		out[i] = fmt.Errorf("line %d: %w", lineNo, e)
	}
	return out
}

// ParseCasterEntry parses one CAS line.
func ParseCasterEntry(s string) (CasterEntry, []error) {
	p := &fieldParser{parts: strings.Split(s, ";")}
	return CasterEntry{
		Host:                p.str(1, "host"),
		Port:                p.integer(2, "port"),
		Identifier:          p.str(3, "identifier"),
		Operator:            p.str(4, "operator"),
		NMEA:                p.boolean(5, "0", "nmea"),
		Country:             p.str(6, "country"),
		Latitude:            p.float(7, "latitude"),
		Longitude:           p.float(8, "longitude"),
		FallbackHostAddress: p.str(9, "fallback host address"),
		FallbackHostPort:    p.integer(10, "fallback host port"),
		Misc:                p.str(11, "misc"),
	}, p.errors
}

// ParseNetworkEntry parses one NET line.
func ParseNetworkEntry(s string) (NetworkEntry, []error) {
	p := &fieldParser{parts: strings.Split(s, ";")}
	return NetworkEntry{
		Identifier:          p.str(1, "identifier"),
		Operator:            p.str(2, "operator"),
		Authentication:      p.str(3, "authentication"),
		Fee:                 p.boolean(4, "N", "fee"),
		NetworkInfoURL:      p.str(5, "network info url"),
		StreamInfoURL:       p.str(6, "stream info url"),
		RegistrationAddress: p.str(7, "registration address"),
		Misc:                p.str(8, "misc"),
	}, p.errors
}

// ParseStreamEntry parses one STR line.
func ParseStreamEntry(s string) (StreamEntry, []error) {
	p := &fieldParser{parts: strings.Split(s, ";")}
	return StreamEntry{
		Name:           p.str(1, "name"),
		Identifier:     p.str(2, "identifier"),
		Format:         p.str(3, "format"),
		FormatDetails:  p.str(4, "format details"),
		Carrier:        p.str(5, "carrier"),
		NavSystem:      p.str(6, "nav system"),
		Network:        p.str(7, "network"),
		CountryCode:    p.str(8, "country code"),
		Latitude:       p.float(9, "latitude"),
		Longitude:      p.float(10, "longitude"),
		NMEA:           p.boolean(11, "0", "nmea"),
		Solution:       p.boolean(12, "0", "solution"),
		Generator:      p.str(13, "generator"),
		Compression:    p.str(14, "compression"),
		Authentication: p.str(15, "authentication"),
		Fee:            p.boolean(16, "N", "fee"),
		Bitrate:        p.integer(17, "bitrate"),
		Misc:           p.str(18, "misc"),
	}, p.errors
}

type fieldParser struct {
	parts  []string
	errors []error
}

func (p *fieldParser) str(i int, field string) string {
	if len(p.parts) <= i {
		p.errors = append(p.errors, fmt.Errorf("missing field %s", field))
		return ""
	}
	return p.parts[i]
}

func (p *fieldParser) float(i int, field string) float64 {
	if len(p.parts) <= i {
		p.errors = append(p.errors, fmt.Errorf("missing field %s", field))
		return 0
	}
	v, err := strconv.ParseFloat(p.parts[i], 64)
	if err != nil {
		p.errors = append(p.errors, fmt.Errorf("parsing %s as float: %w", field, err))
		return 0
	}
	return v
}

func (p *fieldParser) integer(i int, field string) int {
	if len(p.parts) <= i {
		p.errors = append(p.errors, fmt.Errorf("missing field %s", field))
		return 0
	}
	v, err := strconv.ParseInt(p.parts[i], 10, 64)
	if err != nil {
		p.errors = append(p.errors, fmt.Errorf("parsing %s as int: %w", field, err))
		return 0
	}
	return int(v)
}

func (p *fieldParser) boolean(i int, falseValue, field string) bool {
	if len(p.parts) <= i {
		p.errors = append(p.errors, fmt.Errorf("missing field %s", field))
		return false
	}
	return p.parts[i] != falseValue
}

// query is a parsed sourcetable filter expression.
type query struct {
	conditions []condition
}

type condition struct {
	field    string
	operator string
	value    string
}

func (q query) matches(entry interface{}) bool {
	for _, c := range q.conditions {
		if !matchesCondition(entry, c) {
			return false
		}
	}
	return true
}

func parseQuery(raw string) (query, error) {
	q := query{}
	if raw == "" || !strings.HasPrefix(raw, "?") {
		return q, nil
	}
	raw = raw[1:]

	for i, part := range strings.Split(raw, "&") {
		if i == 0 && strings.Contains(part, ";") {
			fields := strings.Split(part, ";")
			if len(fields) == 0 || fields[0] == "" {
				continue
			}
			entryType := fields[0]
			for j, val := range fields[1:] {
				if val == "" {
					continue
				}
				if name := fieldNameByIndex(entryType, j); name != "" {
					q.conditions = append(q.conditions, condition{field: name, operator: "=", value: val})
				}
			}
			continue
		}

		op, idx := "", -1
		for _, candidate := range []string{"!=", ">=", "<=", "=", ">", "<", "~"} {
			if i := strings.Index(part, candidate); i >= 0 {
				op, idx = candidate, i
				break
			}
		}
		if op == "" {
			return q, fmt.Errorf("invalid condition format: %s", part)
		}
		q.conditions = append(q.conditions, condition{
			field:    part[:idx],
			operator: op,
			value:    part[idx+len(op):],
		})
	}
	return q, nil
}

func fieldNameByIndex(entryType string, index int) string {
	fieldsByType := map[string][]string{
		"STR": {
			"Name", "Identifier", "Format", "FormatDetails", "Carrier",
			"NavSystem", "Network", "CountryCode", "Latitude", "Longitude",
			"NMEA", "Solution", "Generator", "Compression", "Authentication",
			"Fee", "Bitrate", "Misc",
		},
		"CAS": {
			"Host", "Port", "Identifier", "Operator", "NMEA",
			"Country", "Latitude", "Longitude", "FallbackHostAddress", "FallbackHostPort",
			"Misc",
		},
		"NET": {
			"Identifier", "Operator", "Authentication", "Fee", "NetworkInfoURL",
			"StreamInfoURL", "RegistrationAddress", "Misc",
		},
	}
	fields, ok := fieldsByType[entryType]
	if !ok || index >= len(fields) {
		return ""
	}
	return fields[index]
}

func matchesCondition(entry interface{}, cond condition) bool {
	val := reflect.ValueOf(entry)
	if val.Kind() == reflect.Ptr {
		val = val.Elem()
	}
	if val.Kind() != reflect.Struct {
		return false
	}
	field := val.FieldByNameFunc(func(name string) bool {
		return strings.EqualFold(name, cond.field)
	})
	if !field.IsValid() {
		return false
	}

	var fieldStr string
	switch field.Kind() {
	case reflect.String:
		fieldStr = field.String()
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		fieldStr = strconv.FormatInt(field.Int(), 10)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		fieldStr = strconv.FormatUint(field.Uint(), 10)
	case reflect.Float32, reflect.Float64:
		fieldStr = strconv.FormatFloat(field.Float(), 'f', -1, 64)
	case reflect.Bool:
		fieldStr = strconv.FormatBool(field.Bool())
	default:
		return false
	}

	switch cond.operator {
	case "=":
		return fieldStr == cond.value
	case "!=":
		return fieldStr != cond.value
	case "~":
		return strings.Contains(fieldStr, cond.value)
	case ">", ">=", "<", "<=":
		fieldVal, err1 := strconv.ParseFloat(fieldStr, 64)
		condVal, err2 := strconv.ParseFloat(cond.value, 64)
		if err1 != nil || err2 != nil {
			switch cond.operator {
			case ">":
				return fieldStr > cond.value
			case ">=":
				return fieldStr >= cond.value
			case "<":
				return fieldStr < cond.value
			case "<=":
				return fieldStr <= cond.value
			}
		}
		switch cond.operator {
		case ">":
			return fieldVal > condVal
		case ">=":
			return fieldVal >= condVal
		case "<":
			return fieldVal < condVal
		case "<=":
			return fieldVal <= condVal
		}
	}
	return false
}

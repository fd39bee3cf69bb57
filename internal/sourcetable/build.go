package sourcetable

import (
	"fmt"

	"github.com/ntripcaster/caster/internal/registry"
	"github.com/ntripcaster/caster/internal/rtcmmeta"
)

// CasterIdentity is the static, configured half of a caster's own CAS
// line - the part that doesn't change per-mount.
type CasterIdentity struct {
	Host       string
	Port       int
	Identifier string
	Operator   string
	Country    string
	Latitude   float64
	Longitude  float64
}

// MountParser is whatever can report the live rtcmmeta.Snapshot for a
// mount, so Build doesn't need to depend on how the caster keeps
// parsers indexed.
type MountParser interface {
	Snapshot(mount string) (rtcmmeta.Snapshot, bool)
}

// Build assembles the full Table from the currently-online mounts in
// reg plus this caster's own identity. Every online mount is listed
// whether or not its parser has warmed up; the STR line's position
// fields are whatever the mount's registry entry currently holds.
func Build(identity CasterIdentity, reg *registry.Registry, parsers MountParser) Table {
	cas := CasterEntry{
		Host:       identity.Host,
		Port:       identity.Port,
		Identifier: identity.Identifier,
		Operator:   identity.Operator,
		Country:    identity.Country,
		Latitude:   identity.Latitude,
		Longitude:  identity.Longitude,
	}

	table := Table{Casters: []CasterEntry{cas}}

	for _, m := range reg.AllMounts() {
		entry := StreamEntry{
			Name:          m.Name,
			Identifier:    m.Name,
			Format:        "RTCM 3.3",
			FormatDetails: formatDetails(m, parsers),
			Carrier:       "2",
			NavSystem:     "GPS+GLO+GAL+BDS",
			Network:       identity.Identifier,
			CountryCode:   m.CountryISO3,
			Latitude:      m.Latitude,
			Longitude:     m.Longitude,
			NMEA:          false,
			Solution:      false,
			Generator:     "",
			Compression:   "none",
			Authentication: "B",
			Fee:           false,
			Bitrate:       int(m.DataRateBPS),
			Misc:          "",
		}
		table.Mounts = append(table.Mounts, entry)
	}

	return table
}

func formatDetails(m registry.MountInfo, parsers MountParser) string {
	if parsers == nil {
		return ""
	}
	snap, ok := parsers.Snapshot(m.Name)
	if !ok || len(snap.MessageTypes) == 0 {
		return ""
	}
	return fmt.Sprintf("%v", snap.MessageTypes)
}

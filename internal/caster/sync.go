package caster

import (
	"time"

	"github.com/ntripcaster/caster/internal/registry"
	"github.com/ntripcaster/caster/internal/rtcmmeta"
)

// syncMountSnapshot copies whatever the RTCM metadata parser has
// learned about a mount (position, country/city, warm-up state) onto
// its registry entry, so the sourcetable builder can read it without
// touching the parser directly.
func (s *Server) syncMountSnapshot(mount string, parser *rtcmmeta.Parser) {
	snap := parser.Snapshot(time.Now())
	if !snap.HasPosition {
		return
	}
	s.reg.UpdateMountSTR(mount, func(m *registry.MountInfo) {
		m.Latitude = snap.Latitude
		m.Longitude = snap.Longitude
		m.Height = snap.Height
		m.CountryISO3 = snap.CountryISO3
		m.City = snap.City
		m.FinalGenerated = snap.Warm
		if !m.InitialGenerated {
			m.InitialGenerated = true
		}
	})
}

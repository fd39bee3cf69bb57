// Package rtcmmeta extracts sourcetable-relevant metadata (station
// position, antenna descriptor, observed message types, data rate) from
// an uploader's raw RTCM3 byte stream without needing to understand the
// observable payloads themselves. It never blocks the upload path: Feed
// is called inline from the caster's read loop and is bounded so a
// pathological byte stream can't stall ingestion (spec component C4).
package rtcmmeta

import (
	"sort"
	"sync"
	"time"

	"github.com/ntripcaster/caster/internal/geocode"
	"github.com/ntripcaster/caster/internal/ntriperr"
)

// WarmupDuration is how long a mount must stream before its sourcetable
// entry is considered stable enough to publish as final (spec.md §4.4):
// short-lived test connections shouldn't flap the sourcetable.
const WarmupDuration = 30 * time.Second

// maxScanIterations bounds a single Feed call's frame-scanning loop so
// a buffer full of non-RTCM noise can't spin indefinitely.
const maxScanIterations = 4096

// maxBufferedBytes caps how much unconsumed data Feed will hold onto
// waiting for a frame to complete, in case an uploader never sends
// valid RTCM3 at all.
const maxBufferedBytes = 1 << 20

// Snapshot is a point-in-time read of everything this package has
// learned about a mount's stream.
type Snapshot struct {
	StationID         uint
	HasPosition       bool
	Latitude          float64
	Longitude         float64
	Height            float64
	CountryISO3       string
	City              string
	AntennaDescriptor string
	MessageTypes      []int
	BitrateBPS        float64
	Warm              bool
}

// Parser accumulates RTCM3 frame metadata for a single mount's upload
// stream. Feed and Snapshot are serialized by an internal mutex; the
// caster feeds each mount's parser from the one uploader goroutine that
// owns that mount's read loop.
type Parser struct {
	mu sync.Mutex

	buf       []byte
	startTime time.Time

	totalBytes int64
	seenTypes  map[int]struct{}

	position   *antennaPosition
	geo        geocode.Result
	descriptor string
}

// New constructs a Parser whose warm-up clock starts now.
func New(now time.Time) *Parser {
	return &Parser{
		startTime: now,
		seenTypes: make(map[int]struct{}),
	}
}

// Feed appends newly-received bytes and extracts whatever complete
// RTCM3 frames are now available. It returns the message types seen in
// this call (for metrics/logging) and a KindParserTimeout error if the
// buffer couldn't make progress within bounds - callers should treat
// that as non-fatal to the upload itself.
func (p *Parser) Feed(data []byte, now time.Time) ([]int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.totalBytes += int64(len(data))
	p.buf = append(p.buf, data...)

	var newTypes []int
	iterations := 0
	for len(p.buf) > 0 {
		iterations++
		if iterations > maxScanIterations {
			return newTypes, ntriperr.New(ntriperr.KindParserTimeout, "exceeded %d scan iterations without completing a frame", maxScanIterations)
		}

		f, consumed, skipped, err := nextFrame(p.buf)
		if err == ErrIncompleteFrame {
			if skipped > 0 {
				p.buf = p.buf[skipped:]
			}
			break
		}
		if err != nil {
			// Stray byte or bad CRC - drop what was identified as noise
			// and keep scanning; one corrupt frame must not wedge the
			// parser for the rest of the session.
			p.buf = p.buf[skipped:]
			continue
		}

		p.buf = p.buf[consumed:]
		p.handleFrame(f)
		if _, ok := p.seenTypes[f.messageType]; !ok {
			p.seenTypes[f.messageType] = struct{}{}
			newTypes = append(newTypes, f.messageType)
		}
	}

	if len(p.buf) > maxBufferedBytes {
		p.buf = p.buf[len(p.buf)-maxBufferedBytes:]
	}

	return newTypes, nil
}

func (p *Parser) handleFrame(f *frame) {
	switch f.messageType {
	case 1005, 1006:
		if pos, ok := parseAntennaPosition(f.messageType, f.payload); ok {
			pos.latDeg, pos.lonDeg, pos.heightM = ecefToLLA(pos.ecefX, pos.ecefY, pos.ecefZ)
			p.position = pos
			p.geo = geocode.Lookup(pos.latDeg, pos.lonDeg)
		}
	case 1033:
		if desc, _, ok := parseAntennaDescriptor(f.payload); ok {
			p.descriptor = desc
		}
	}
}

// Snapshot reports the parser's current understanding as of now.
func (p *Parser) Snapshot(now time.Time) Snapshot {
	p.mu.Lock()
	defer p.mu.Unlock()

	s := Snapshot{
		AntennaDescriptor: p.descriptor,
		Warm:              now.Sub(p.startTime) >= WarmupDuration,
	}

	if p.position != nil {
		s.HasPosition = true
		s.StationID = p.position.stationID
		s.Latitude = p.position.latDeg
		s.Longitude = p.position.lonDeg
		s.Height = p.position.heightM
		s.CountryISO3 = p.geo.CountryISO3
		s.City = p.geo.City
	}

	for t := range p.seenTypes {
		s.MessageTypes = append(s.MessageTypes, t)
	}
	sort.Ints(s.MessageTypes)

	if elapsed := now.Sub(p.startTime).Seconds(); elapsed > 0 {
		s.BitrateBPS = float64(p.totalBytes) * 8 / elapsed
	}

	return s
}

package rtcmmeta

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	crc24q "github.com/goblimey/go-crc24q/crc24q"
)

// putBits writes n bits of v into buf starting at bit offset pos,
// the inverse of getBitsAsUint64, used only to construct test fixtures.
func putBits(buf []byte, pos, n uint, v uint64) {
	for i := uint(0); i < n; i++ {
		bitPos := pos + i
		bit := (v >> (n - 1 - i)) & 1
		byteIdx := bitPos / 8
		shift := 7 - bitPos%8
		if bit == 1 {
			buf[byteIdx] |= 1 << shift
		} else {
			buf[byteIdx] &^= 1 << shift
		}
	}
}

func buildFrame(t *testing.T, messageType int, payloadBits uint, fill func(buf []byte)) []byte {
	t.Helper()
	payloadBytes := (payloadBits + 7) / 8
	body := make([]byte, payloadBytes)
	putBits(body, 0, 12, uint64(messageType))
	fill(body)

	frame := make([]byte, leaderLengthBytes+len(body)+crcLengthBytes)
	frame[0] = startOfFrame
	putBits(frame, 14, 10, uint64(len(body)))
	copy(frame[leaderLengthBytes:], body)

	crc := crc24q.Hash(frame[:leaderLengthBytes+len(body)])
	frame[len(frame)-3] = crc24q.HiByte(crc)
	frame[len(frame)-2] = crc24q.MiByte(crc)
	frame[len(frame)-1] = crc24q.LoByte(crc)
	return frame
}

func build1005(t *testing.T, stationID uint, x, y, z int64) []byte {
	return buildFrame(t, 1005, 12+12+6+4+38+2+38+2+38, func(buf []byte) {
		putBits(buf, 12, 12, uint64(stationID))
		putBits(buf, 34, 38, uint64(x)&((1<<38)-1))
		putBits(buf, 74, 38, uint64(y)&((1<<38)-1))
		putBits(buf, 114, 38, uint64(z)&((1<<38)-1))
	})
}

func TestFeedParsesStationPosition(t *testing.T) {
	// Roughly Denver, CO in ECEF metres, scaled to 0.1mm units.
	const scale = 10000.0
	xm, ym, zm := -1275012.0, -4714642.0, 4117363.0
	frame := build1005(t, 42, int64(xm*scale), int64(ym*scale), int64(zm*scale))

	p := New(time.Now())
	types, err := p.Feed(frame, time.Now())
	require.NoError(t, err)
	assert.Equal(t, []int{1005}, types)

	snap := p.Snapshot(time.Now())
	assert.True(t, snap.HasPosition)
	assert.Equal(t, uint(42), snap.StationID)
	assert.InDelta(t, 39.0, snap.Latitude, 5.0)
}

func TestFeedSkipsNonRTCMNoise(t *testing.T) {
	noise := []byte("$GPGGA,some,nmea,sentence*00\r\n")
	frame := build1005(t, 1, 0, 0, 0)

	p := New(time.Now())
	types, err := p.Feed(append(noise, frame...), time.Now())
	require.NoError(t, err)
	assert.Equal(t, []int{1005}, types)
}

func TestFeedHandlesPartialFrameAcrossCalls(t *testing.T) {
	frame := build1005(t, 7, 0, 0, 0)
	p := New(time.Now())

	types, err := p.Feed(frame[:len(frame)-2], time.Now())
	require.NoError(t, err)
	assert.Empty(t, types)

	types, err = p.Feed(frame[len(frame)-2:], time.Now())
	require.NoError(t, err)
	assert.Equal(t, []int{1005}, types)
}

func TestSnapshotWarmupFlag(t *testing.T) {
	start := time.Now()
	p := New(start)

	assert.False(t, p.Snapshot(start.Add(5*time.Second)).Warm)
	assert.True(t, p.Snapshot(start.Add(31*time.Second)).Warm)
}

func TestConstellationLookup(t *testing.T) {
	assert.Equal(t, "GPS", Constellation(1074))
	assert.Equal(t, "BeiDou", Constellation(1124))
	assert.Equal(t, "", Constellation(9999))
}

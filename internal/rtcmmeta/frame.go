package rtcmmeta

import (
	"errors"
	"fmt"

	crc24q "github.com/goblimey/go-crc24q/crc24q"
)

const startOfFrame byte = 0xd3
const leaderLengthBytes = 3
const crcLengthBytes = 3

// ErrIncompleteFrame means buf may be the prefix of a valid frame but
// does not yet contain enough bytes to know its full length.
var ErrIncompleteFrame = errors.New("rtcmmeta: incomplete frame")

// frame is one fully-received, CRC-checked RTCM3 message.
type frame struct {
	messageType int
	payload     []byte // the message body, excluding the 3-byte leader and CRC
}

// nextFrame scans buf for the start of an RTCM3 message frame and, if a
// complete one is present, returns it along with the number of bytes
// consumed from buf. If buf starts mid-stream on non-RTCM bytes (NMEA,
// UBX, etc - spec.md notes the upload stream is not guaranteed to be
// pure RTCM3), it skips forward to the next 0xd3 byte and reports that
// via skipped > 0.
func nextFrame(buf []byte) (f *frame, consumed int, skipped int, err error) {
	start := 0
	for start < len(buf) && buf[start] != startOfFrame {
		start++
	}
	if start > 0 {
		skipped = start
	}
	remaining := buf[start:]

	if len(remaining) < leaderLengthBytes+2 {
		return nil, 0, skipped, ErrIncompleteFrame
	}

	reserved := getBitsAsUint64(remaining, 8, 6)
	if reserved != 0 {
		// Not actually a frame header - a stray 0xd3 in binary noise.
		return nil, 0, skipped + 1, fmt.Errorf("rtcmmeta: non-zero reserved bits at candidate frame")
	}
	length := uint(getBitsAsUint64(remaining, 14, 10))
	total := leaderLengthBytes + int(length) + crcLengthBytes
	if len(remaining) < total {
		return nil, 0, skipped, ErrIncompleteFrame
	}

	frameBytes := remaining[:total]
	if !checkCRC(frameBytes) {
		return nil, 0, skipped + 1, fmt.Errorf("rtcmmeta: CRC mismatch on candidate frame")
	}

	messageType := int(getBitsAsUint64(frameBytes, 24, 12))
	payload := frameBytes[leaderLengthBytes : leaderLengthBytes+int(length)]

	return &frame{messageType: messageType, payload: payload}, start + total, skipped, nil
}

func checkCRC(frameBytes []byte) bool {
	if len(frameBytes) < leaderLengthBytes+crcLengthBytes {
		return false
	}
	body := frameBytes[:len(frameBytes)-crcLengthBytes]
	want := frameBytes[len(frameBytes)-crcLengthBytes:]
	got := crc24q.Hash(body)
	return crc24q.HiByte(got) == want[0] && crc24q.MiByte(got) == want[1] && crc24q.LoByte(got) == want[2]
}

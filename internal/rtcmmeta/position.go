package rtcmmeta

import "math"

// WGS-84 ellipsoid constants.
const (
	wgs84SemiMajorAxis = 6378137.0
	wgs84Flattening    = 1 / 298.257223563
)

// antennaPosition is the decoded payload of an RTCM 1005 or 1006 message -
// a station's fixed antenna reference point in ECEF, scaled per the
// 0.1mm units the wire format uses.
type antennaPosition struct {
	stationID      uint
	ecefX          float64
	ecefY          float64
	ecefZ          float64
	antennaHeightM float64 // zero for 1005, set for 1006

	// latDeg/lonDeg/heightM are filled in by the caller after running
	// ecefToLLA; zero until then.
	latDeg  float64
	lonDeg  float64
	heightM float64
}

// parseAntennaPosition decodes message type 1005 (no height) or 1006
// (with height) from payload, the bit layout RTKLIB's decode_type1005/6
// and this type's own message1005/message1006 packages use.
func parseAntennaPosition(messageType int, payload []byte) (*antennaPosition, bool) {
	const (
		lenMessageType         = 12
		lenStationID           = 12
		lenITRFRealisationYear = 6
		lenIgnored1            = 4
		lenAntennaRefX         = 38
		lenIgnored2            = 2
		lenAntennaRefY         = 38
		lenIgnored3            = 2
		lenAntennaRefZ         = 38
		lenAntennaHeight       = 16
	)

	minBits := lenMessageType + lenStationID + lenITRFRealisationYear +
		lenIgnored1 + lenAntennaRefX + lenIgnored2 + lenAntennaRefY +
		lenIgnored3 + lenAntennaRefZ
	if messageType == 1006 {
		minBits += lenAntennaHeight
	}
	if len(payload)*8 < minBits {
		return nil, false
	}

	var pos uint = lenMessageType + lenStationID + lenITRFRealisationYear + lenIgnored1
	stationID := uint(getBitsAsUint64(payload, lenMessageType, lenStationID))

	x := getBitsAsInt64(payload, pos, lenAntennaRefX)
	pos += lenAntennaRefX + lenIgnored2
	y := getBitsAsInt64(payload, pos, lenAntennaRefY)
	pos += lenAntennaRefY + lenIgnored3
	z := getBitsAsInt64(payload, pos, lenAntennaRefZ)
	pos += lenAntennaRefZ

	const scale = 0.0001 // 0.1mm units -> metres
	result := &antennaPosition{
		stationID: stationID,
		ecefX:     float64(x) * scale,
		ecefY:     float64(y) * scale,
		ecefZ:     float64(z) * scale,
	}

	if messageType == 1006 {
		h := getBitsAsUint64(payload, pos, lenAntennaHeight)
		result.antennaHeightM = float64(h) * scale
	}
	return result, true
}

// ecefToLLA converts an ECEF position in metres to geodetic latitude
// and longitude in degrees and ellipsoidal height in metres, using the
// closed-form Bowring iteration for WGS-84.
func ecefToLLA(x, y, z float64) (latDeg, lonDeg, heightM float64) {
	a := wgs84SemiMajorAxis
	f := wgs84Flattening
	e2 := f * (2 - f)

	lon := math.Atan2(y, x)

	p := math.Hypot(x, y)
	lat := math.Atan2(z, p*(1-e2))

	for i := 0; i < 5; i++ {
		sinLat := math.Sin(lat)
		n := a / math.Sqrt(1-e2*sinLat*sinLat)
		lat = math.Atan2(z+e2*n*sinLat, p)
	}

	sinLat := math.Sin(lat)
	n := a / math.Sqrt(1-e2*sinLat*sinLat)
	height := p/math.Cos(lat) - n

	return lat * 180 / math.Pi, lon * 180 / math.Pi, height
}

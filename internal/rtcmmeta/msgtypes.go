package rtcmmeta

// constellationForMSM maps an MSM1/MSM4/MSM7 message type (1070-1127, per
// RTCM 10403.3 table 3.5-73) to the GNSS it carries observables for,
// the same type-to-constellation mapping goblimey-go-ntrip's
// rtcm/utils package builds from its MessageType* constants.
var constellationForMSM = map[int]string{
	1071: "GPS", 1074: "GPS", 1077: "GPS",
	1081: "GLONASS", 1084: "GLONASS", 1087: "GLONASS",
	1091: "Galileo", 1094: "Galileo", 1097: "Galileo",
	1101: "SBAS", 1104: "SBAS", 1107: "SBAS",
	1111: "QZSS", 1114: "QZSS", 1117: "QZSS",
	1121: "BeiDou", 1124: "BeiDou", 1127: "BeiDou",
}

// Constellation returns the GNSS constellation an MSM message type
// carries, or "" if messageType isn't a recognized MSM type.
func Constellation(messageType int) string {
	return constellationForMSM[messageType]
}

// IsMSM reports whether messageType is any Multiple Signal Message
// variant (MSM1 through MSM7) in the 1070-1137 band.
func IsMSM(messageType int) bool {
	return messageType >= 1071 && messageType <= 1137
}

// messageTypeLabels carries short human labels for message types this
// package treats specially; it is intentionally not exhaustive. The
// sourcetable builder does not use them.
var messageTypeLabels = map[int]string{
	1005: "Station ARP",
	1006: "Station ARP + height",
	1033: "Antenna/receiver descriptor",
	1230: "GLONASS code/phase bias",
}

// Label returns a short human label for messageType, or "" if this
// package has no special label for it.
func Label(messageType int) string {
	return messageTypeLabels[messageType]
}

package rtcmmeta

// parseAntennaDescriptor decodes the antenna descriptor field of an
// RTCM 1033 message (antenna descriptor, serial number, receiver
// descriptor and firmware) - this package only needs the first
// descriptor string, used for the sourcetable's antenna note.
func parseAntennaDescriptor(payload []byte) (descriptor string, setupID uint, ok bool) {
	const lenMessageType = 12
	const lenStationID = 12
	const lenDescriptorLength = 8

	var pos uint = lenMessageType + lenStationID
	if len(payload)*8 < int(pos)+lenDescriptorLength {
		return "", 0, false
	}

	descLen := uint(getBitsAsUint64(payload, pos, lenDescriptorLength))
	pos += lenDescriptorLength

	if len(payload)*8 < int(pos)+int(descLen)*8+8 {
		return "", 0, false
	}

	b := make([]byte, descLen)
	for i := uint(0); i < descLen; i++ {
		b[i] = byte(getBitsAsUint64(payload, pos, 8))
		pos += 8
	}

	id := uint(getBitsAsUint64(payload, pos, 8))
	return string(b), id, true
}

package rtu

// CRC16 calculates the Modbus RTU checksum of data. The empty input yields
// the initial value 0xFFFF.
func CRC16(data []byte) uint16 {
	crc := uint16(0xFFFF)
	for _, b := range data {
		crc ^= uint16(b)
		for range 8 {
			if crc&0x0001 != 0 {
				crc = (crc >> 1) ^ 0xA001
			} else {
				crc = crc >> 1
			}
		}
	}
	return crc
}

// AppendCRC appends the checksum of frame in wire order (low byte first).
func AppendCRC(frame []byte) []byte {
	crc := CRC16(frame)
	return append(frame, byte(crc&0xFF), byte(crc>>8))
}

// ValidCRC reports whether the last two bytes of frame hold the checksum of
// the bytes before them.
func ValidCRC(frame []byte) bool {
	if len(frame) < MinFrameSize {
		return false
	}
	received := uint16(frame[len(frame)-2]) | uint16(frame[len(frame)-1])<<8
	return received == CRC16(frame[:len(frame)-2])
}

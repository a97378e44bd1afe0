// internal/frame/crc.go
package frame

// CRC16 computes the Modbus RTU CRC-16 (poly 0xA001, init 0xFFFF).
// The returned value is in register order; on the wire the low byte goes first.
func CRC16(b []byte) uint16 {
	var crc uint16 = 0xFFFF
	for _, v := range b {
		crc ^= uint16(v)
		for i := 0; i < 8; i++ {
			if crc&0x0001 != 0 {
				crc = (crc >> 1) ^ 0xA001
			} else {
				crc >>= 1
			}
		}
	}
	return crc
}

// AppendCRC appends the CRC of b to b, low byte first.
func AppendCRC(b []byte) []byte {
	crc := CRC16(b)
	return append(b, byte(crc), byte(crc>>8))
}

// checkCRC reports whether the trailing two bytes of frame match the CRC
// of everything before them.
func checkCRC(frame []byte) bool {
	if len(frame) < 3 {
		return false
	}
	body := frame[:len(frame)-2]
	seen := uint16(frame[len(frame)-2]) | uint16(frame[len(frame)-1])<<8
	return CRC16(body) == seen
}

// internal/frame/summary.go
package frame

import "fmt"

// Summary is a light parse of a response for logging.
type Summary struct {
	Length       int
	DeviceID     uint8
	FunctionCode uint8
	ByteCount    int
	CRCValid     bool
}

// Summarize parses what it can from buf. It never fails.
func Summarize(buf []byte) Summary {
	s := Summary{Length: len(buf), ByteCount: -1}
	if len(buf) < 2 {
		return s
	}
	s.DeviceID = buf[0]
	s.FunctionCode = buf[1]
	if len(buf) >= 5 {
		s.ByteCount = int(buf[2])
		s.CRCValid = checkCRC(buf)
	}
	return s
}

func (s Summary) String() string {
	if s.Length == 0 {
		return "empty frame"
	}
	crc := "bad"
	if s.CRCValid {
		crc = "ok"
	}
	return fmt.Sprintf("len=%d id=%d func=0x%02X byte_count=%d crc=%s",
		s.Length, s.DeviceID, s.FunctionCode, s.ByteCount, crc)
}

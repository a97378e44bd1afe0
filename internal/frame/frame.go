// internal/frame/frame.go
package frame

import (
	"errors"
	"fmt"

	"github.com/goburrow/modbus"
)

// Wire layout of a read request (RTU framing carried over the radio link):
//
//	DeviceID(1) FC(1) Register(2, BE) Words(2, BE) CRC(2, LE)
//
// Response:
//
//	DeviceID(1) FC(1) ByteCount(1) Payload(words*2) CRC(2, LE)
const (
	FuncReadHoldingRegisters = modbus.FuncCodeReadHoldingRegisters

	RequestLen = 8

	// responseOverhead is device id + function + byte count + CRC.
	responseOverhead = 5

	// MaxReadWords is the Modbus limit for a single register read.
	MaxReadWords = 125
)

var (
	ErrInvalidFrameParameters = errors.New("frame: invalid frame parameters")
	ErrFrameTooShort          = errors.New("frame: response length mismatch")
	ErrChecksumMismatch       = errors.New("frame: checksum mismatch")
)

// BuildReadRequest builds the 8-byte read request for one register range.
func BuildReadRequest(deviceID, function uint8, register, words uint16) ([]byte, error) {
	if deviceID == 0 {
		return nil, fmt.Errorf("%w: device id must be 1..255", ErrInvalidFrameParameters)
	}
	if function == 0 || function >= 0x80 {
		return nil, fmt.Errorf("%w: function code %d", ErrInvalidFrameParameters, function)
	}
	if words == 0 || words > MaxReadWords {
		return nil, fmt.Errorf("%w: word count %d not in 1..%d", ErrInvalidFrameParameters, words, MaxReadWords)
	}

	req := make([]byte, 6, RequestLen)
	req[0] = deviceID
	req[1] = function
	putU16(req[2:4], register)
	putU16(req[4:6], words)

	return AppendCRC(req), nil
}

// ExpectedResponseLen returns the length of a valid read response for words registers.
func ExpectedResponseLen(words uint16) int {
	return int(words)*2 + responseOverhead
}

// ValidateAndExtract checks a read response against the section geometry
// and returns its register payload.
func ValidateAndExtract(buf []byte, words uint16) ([]byte, error) {
	want := ExpectedResponseLen(words)
	if len(buf) != want {
		return nil, fmt.Errorf("%w: got=%d want=%d", ErrFrameTooShort, len(buf), want)
	}
	if !checkCRC(buf) {
		return nil, ErrChecksumMismatch
	}
	return buf[3 : 3+int(words)*2], nil
}

// FunctionCode returns the function code byte of a response, or 0 when the
// buffer is too short to carry one.
func FunctionCode(buf []byte) uint8 {
	if len(buf) < 2 {
		return 0
	}
	return buf[1]
}

func putU16(dst []byte, v uint16) {
	dst[0] = byte(v >> 8)
	dst[1] = byte(v)
}

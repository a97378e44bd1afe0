// internal/status/code.go
package status

import (
	"errors"

	"github.com/goburrow/modbus"

	"github.com/tamzrod/renogy-bt/internal/frame"
	"github.com/tamzrod/renogy-bt/internal/link"
	"github.com/tamzrod/renogy-bt/internal/session"
)

// CodeOf extracts a best-effort uint16 code from an error.
// Known failure kinds map to fixed codes, Modbus exceptions to
// CodeModbusExceptionBase+exception, anything exposing a code is passed
// through, and everything else is CodeGeneric.
func CodeOf(err error) uint16 {
	if err == nil {
		return CodeNone
	}

	switch {
	case errors.Is(err, link.ErrDeviceNotFound):
		return CodeDeviceNotFound
	case errors.Is(err, link.ErrConnectFailed):
		return CodeConnectFailed
	case errors.Is(err, link.ErrNotConnected):
		return CodeNotConnected
	case errors.Is(err, session.ErrReadTimeout):
		return CodeReadTimeout
	case errors.Is(err, frame.ErrFrameTooShort):
		return CodeFrameTooShort
	case errors.Is(err, frame.ErrChecksumMismatch):
		return CodeChecksumMismatch
	case errors.Is(err, frame.ErrInvalidFrameParameters):
		return CodeInvalidFrameParameters
	}

	var mb *modbus.ModbusError
	if errors.As(err, &mb) {
		return CodeModbusExceptionBase + uint16(mb.ExceptionCode)
	}

	type coderA interface{ Code() uint16 }
	type coderB interface{ ErrorCode() uint16 }

	var a coderA
	if errors.As(err, &a) {
		return a.Code()
	}
	var b coderB
	if errors.As(err, &b) {
		return b.ErrorCode()
	}

	return CodeGeneric
}

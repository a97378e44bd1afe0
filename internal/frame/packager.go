// internal/frame/packager.go
package frame

import (
	"fmt"

	"github.com/goburrow/modbus"
)

const exceptionBit = 0x80

// Packager frames Modbus PDUs for one device using RTU framing.
// It satisfies modbus.Packager so PDUs flow through the same types the
// TCP mirror uses.
type Packager struct {
	DeviceID uint8
}

var _ modbus.Packager = (*Packager)(nil)

// Encode wraps a PDU into an RTU ADU: device id, function, data, CRC.
func (p *Packager) Encode(pdu *modbus.ProtocolDataUnit) ([]byte, error) {
	if pdu == nil {
		return nil, fmt.Errorf("%w: nil pdu", ErrInvalidFrameParameters)
	}
	adu := make([]byte, 0, len(pdu.Data)+4)
	adu = append(adu, p.DeviceID, pdu.FunctionCode)
	adu = append(adu, pdu.Data...)
	return AppendCRC(adu), nil
}

// Decode verifies the CRC of an ADU and returns its PDU.
func (p *Packager) Decode(adu []byte) (*modbus.ProtocolDataUnit, error) {
	if len(adu) < 4 {
		return nil, fmt.Errorf("%w: got=%d want>=4", ErrFrameTooShort, len(adu))
	}
	if !checkCRC(adu) {
		return nil, ErrChecksumMismatch
	}
	return &modbus.ProtocolDataUnit{
		FunctionCode: adu[1],
		Data:         adu[2 : len(adu)-2],
	}, nil
}

// Verify checks that a response answers the given request.
func (p *Packager) Verify(aduRequest []byte, aduResponse []byte) error {
	if len(aduRequest) < 2 || len(aduResponse) < 4 {
		return fmt.Errorf("%w: request=%d response=%d", ErrFrameTooShort, len(aduRequest), len(aduResponse))
	}
	if aduResponse[0] != aduRequest[0] {
		return fmt.Errorf("frame: device id mismatch: got=%d want=%d", aduResponse[0], aduRequest[0])
	}
	if aduResponse[1]&^exceptionBit != aduRequest[1] {
		return fmt.Errorf("frame: function mismatch: got=%d want=%d", aduResponse[1], aduRequest[1])
	}
	return nil
}

// Exception returns the Modbus exception carried by pdu, or nil when pdu is
// a normal response.
func Exception(pdu *modbus.ProtocolDataUnit) *modbus.ModbusError {
	if pdu == nil || pdu.FunctionCode&exceptionBit == 0 {
		return nil
	}
	var code byte
	if len(pdu.Data) > 0 {
		code = pdu.Data[0]
	}
	return &modbus.ModbusError{
		FunctionCode:  pdu.FunctionCode,
		ExceptionCode: code,
	}
}

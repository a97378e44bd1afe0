// internal/device/renogy/catalog.go
package renogy

import (
	"fmt"

	"github.com/tamzrod/renogy-bt/internal/device"
)

// Catalog serves the section tables of the Renogy product families.
type Catalog struct{}

var _ device.Catalog = Catalog{}

// Sections returns a fresh copy of the ordered section table for f.
func (Catalog) Sections(f device.Family) ([]device.Section, error) {
	var src []device.Section
	switch f {
	case device.FamilyController:
		src = controllerSections
	case device.FamilyControllerHistory:
		src = controllerHistorySections()
	case device.FamilyBattery:
		src = batterySections
	case device.FamilyInverter:
		src = inverterSections
	default:
		return nil, fmt.Errorf("renogy: no sections for family %q", f)
	}

	out := make([]device.Section, len(src))
	copy(out, src)
	return out, nil
}

// decodeModel reads a 16 byte model string.
func decodeModel(payload []byte) (device.Values, error) {
	return device.Values{"model": text(payload)}, nil
}

// decodeDeviceAddress reads the configured Modbus address (low byte of word 0).
func decodeDeviceAddress(payload []byte) (device.Values, error) {
	return device.Values{"device_id": int(u8(payload, 1))}, nil
}

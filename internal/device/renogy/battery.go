// internal/device/renogy/battery.go
package renogy

import (
	"fmt"
	"math"

	"github.com/tamzrod/renogy-bt/internal/device"
)

// maxCells bounds the cell and sensor counts reported by a battery.
const maxCells = 16

var batterySections = []device.Section{
	{Register: 5000, Words: 17, Decode: decodeCellVoltages},
	{Register: 5017, Words: 17, Decode: decodeCellTemperatures},
	{Register: 5042, Words: 6, Decode: decodeBatteryInfo},
	{Register: 5122, Words: 8, Decode: decodeModel},
	{Register: 5223, Words: 1, Decode: decodeDeviceAddress},
}

func decodeCellVoltages(p []byte) (device.Values, error) {
	n := int(u16(p, 0))
	if n > maxCells {
		return nil, fmt.Errorf("renogy: cell count %d exceeds %d", n, maxCells)
	}
	v := device.Values{"cell_count": n}
	for i := 0; i < n; i++ {
		v[fmt.Sprintf("cell_voltage_%d", i)] = scaled(float64(u16(p, 1+i)), 0.1)
	}
	return v, nil
}

func decodeCellTemperatures(p []byte) (device.Values, error) {
	n := int(u16(p, 0))
	if n > maxCells {
		return nil, fmt.Errorf("renogy: sensor count %d exceeds %d", n, maxCells)
	}
	v := device.Values{"sensor_count": n}
	for i := 0; i < n; i++ {
		v[fmt.Sprintf("temperature_%d", i)] = scaled(float64(s16(p, 1+i)), 0.1)
	}
	return v, nil
}

func decodeBatteryInfo(p []byte) (device.Values, error) {
	remaining := scaled(float64(u32(p, 2)), 0.001)
	capacity := scaled(float64(u32(p, 4)), 0.001)

	v := device.Values{
		"current":          scaled(float64(s16(p, 0)), 0.01),
		"voltage":          scaled(float64(u16(p, 1)), 0.1),
		"remaining_charge": remaining,
		"capacity":         capacity,
	}
	if capacity > 0 {
		v["battery_percentage"] = math.Round(remaining/capacity*1000) / 10
	}
	return v, nil
}

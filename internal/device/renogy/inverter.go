// internal/device/renogy/inverter.go
package renogy

import "github.com/tamzrod/renogy-bt/internal/device"

var inverterSections = []device.Section{
	{Register: 4000, Words: 10, Decode: decodeInverterStatus},
	{Register: 4109, Words: 1, Decode: decodeDeviceAddress},
	{Register: 4311, Words: 8, Decode: decodeModel},
	{Register: 4327, Words: 7, Decode: decodeInverterCharging},
	{Register: 4408, Words: 6, Decode: decodeInverterLoad},
}

func decodeInverterStatus(p []byte) (device.Values, error) {
	return device.Values{
		"input_voltage":    scaled(float64(u16(p, 0)), 0.1),
		"input_current":    scaled(float64(u16(p, 1)), 0.01),
		"output_voltage":   scaled(float64(u16(p, 2)), 0.1),
		"output_current":   scaled(float64(u16(p, 3)), 0.01),
		"output_frequency": scaled(float64(u16(p, 4)), 0.01),
		"battery_voltage":  scaled(float64(u16(p, 5)), 0.1),
		"temperature":      scaled(float64(s16(p, 6)), 0.1),
		"input_frequency":  scaled(float64(u16(p, 7)), 0.01),
	}, nil
}

func decodeInverterCharging(p []byte) (device.Values, error) {
	v := device.Values{
		"battery_percentage": int(u16(p, 0)),
		"charging_current":   scaled(float64(s16(p, 1)), 0.1),
		"solar_voltage":      scaled(float64(u16(p, 2)), 0.1),
		"solar_current":      scaled(float64(u16(p, 3)), 0.1),
		"solar_power":        int(u16(p, 4)),
		"charging_power":     int(u16(p, 6)),
	}
	if s, ok := chargingStates[uint8(u16(p, 5))]; ok {
		v["charging_status"] = s
	}
	return v, nil
}

func decodeInverterLoad(p []byte) (device.Values, error) {
	return device.Values{
		"load_active_power":     int(u16(p, 0)),
		"load_apparent_power":   int(u16(p, 1)),
		"line_charging_current": scaled(float64(u16(p, 4)), 0.1),
		"load_percentage":       int(u16(p, 5)),
	}, nil
}

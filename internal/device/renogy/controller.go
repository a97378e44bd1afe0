// internal/device/renogy/controller.go
package renogy

import (
	"fmt"

	"github.com/tamzrod/renogy-bt/internal/device"
)

var chargingStates = map[uint8]string{
	0: "deactivated",
	1: "activated",
	2: "mppt",
	3: "equalizing",
	4: "boost",
	5: "floating",
	6: "current limiting",
}

var batteryTypes = map[uint16]string{
	1: "open",
	2: "sealed",
	3: "gel",
	4: "lithium",
	5: "custom",
}

var controllerSections = []device.Section{
	{Register: 0x000C, Words: 8, Decode: decodeModel},
	{Register: 0x001A, Words: 1, Decode: decodeDeviceAddress},
	{Register: 0x0100, Words: 34, Decode: decodeChargingInfo},
	{Register: 0xE004, Words: 1, Decode: decodeBatteryType},
}

func decodeChargingInfo(p []byte) (device.Values, error) {
	v := device.Values{
		"battery_percentage":          int(u16(p, 0)),
		"battery_voltage":             scaled(float64(u16(p, 1)), 0.1),
		"battery_current":             scaled(float64(u16(p, 2)), 0.01),
		"controller_temperature":      temperature(u8(p, 6)),
		"battery_temperature":         temperature(u8(p, 7)),
		"load_voltage":                scaled(float64(u16(p, 4)), 0.1),
		"load_current":                scaled(float64(u16(p, 5)), 0.01),
		"load_power":                  int(u16(p, 6)),
		"pv_voltage":                  scaled(float64(u16(p, 7)), 0.1),
		"pv_current":                  scaled(float64(u16(p, 8)), 0.01),
		"pv_power":                    int(u16(p, 9)),
		"max_charging_power_today":    int(u16(p, 15)),
		"max_discharging_power_today": int(u16(p, 16)),
		"charging_amp_hours_today":    int(u16(p, 17)),
		"discharging_amp_hours_today": int(u16(p, 18)),
		"power_generation_today":      int(u16(p, 19)),
		"power_consumption_today":     int(u16(p, 20)),
		"power_generation_total":      int(u32(p, 28)),
	}

	if u8(p, 64)>>7 == 1 {
		v["load_status"] = "on"
	} else {
		v["load_status"] = "off"
	}
	if s, ok := chargingStates[u8(p, 65)]; ok {
		v["charging_status"] = s
	}
	return v, nil
}

func decodeBatteryType(p []byte) (device.Values, error) {
	t, ok := batteryTypes[u16(p, 0)]
	if !ok {
		return nil, fmt.Errorf("renogy: unknown battery type %d", u16(p, 0))
	}
	return device.Values{"battery_type": t}, nil
}

// historyDays is the number of daily history records read from a controller.
const historyDays = 7

func controllerHistorySections() []device.Section {
	out := make([]device.Section, 0, historyDays)
	for day := 0; day < historyDays; day++ {
		out = append(out, device.Section{
			Register: 0xF000 + uint16(day),
			Words:    10,
			Decode:   decodeHistoryDay(day),
		})
	}
	return out
}

func decodeHistoryDay(day int) device.DecodeFunc {
	prefix := fmt.Sprintf("day_%d_", day)
	return func(p []byte) (device.Values, error) {
		return device.Values{
			prefix + "battery_min_voltage":     scaled(float64(u16(p, 0)), 0.1),
			prefix + "battery_max_voltage":     scaled(float64(u16(p, 1)), 0.1),
			prefix + "max_charging_current":    scaled(float64(u16(p, 2)), 0.01),
			prefix + "max_discharging_current": scaled(float64(u16(p, 3)), 0.01),
			prefix + "max_charging_power":      int(u16(p, 4)),
			prefix + "max_discharging_power":   int(u16(p, 5)),
			prefix + "charging_amp_hours":      int(u16(p, 6)),
			prefix + "discharging_amp_hours":   int(u16(p, 7)),
			prefix + "power_generation":        int(u16(p, 8)),
			prefix + "power_consumption":       int(u16(p, 9)),
		}, nil
	}
}

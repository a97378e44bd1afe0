// internal/config/validate.go
package config

import (
	"fmt"
	"strings"
)

// Status blocks are this many registers wide. Kept in sync with
// status.SlotsPerDevice; config does not import runtime packages.
const statusBlockRegs = 20

var families = map[string]bool{
	"RNG_CTRL":      true,
	"RNG_CTRL_HIST": true,
	"RNG_BATT":      true,
	"RNG_INVT":      true,
}

var logLevels = map[string]bool{
	"":        true,
	"DEBUG":   true,
	"INFO":    true,
	"WARNING": true,
	"WARN":    true,
	"ERROR":   true,
}

// RegisterWidth returns the number of registers a mirror register type uses,
// or 0 for an unknown type.
func RegisterWidth(typ string) uint16 {
	switch strings.ToLower(typ) {
	case "", "uint16", "int16":
		return 1
	case "uint32", "int32":
		return 2
	default:
		return 0
	}
}

// Validate checks configuration correctness.
// It performs declarative validation only.
// It MUST NOT mutate configuration.
func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config: nil")
	}

	// ------------------------------------------------------------
	// DEVICES
	// ------------------------------------------------------------

	if len(cfg.Devices) == 0 {
		return fmt.Errorf("devices: at least one device required")
	}

	names := make(map[string]int)
	for i, d := range cfg.Devices {
		alias := strings.TrimSpace(d.Alias)
		mac := strings.ToUpper(strings.TrimSpace(d.MacAddr))

		if alias == "" && mac == "" {
			return fmt.Errorf("device %d: alias or mac_addr required", i)
		}
		if d.DeviceID < 1 || d.DeviceID > 255 {
			return fmt.Errorf("device %q: device_id %d not in 1..255", d.Name(), d.DeviceID)
		}
		if !families[strings.ToUpper(strings.TrimSpace(d.Type))] {
			return fmt.Errorf("device %q: unknown type %q", d.Name(), d.Type)
		}

		for _, key := range []string{alias, mac} {
			if key == "" {
				continue
			}
			if prev, exists := names[strings.ToUpper(key)]; exists && prev != i {
				return fmt.Errorf("device %q: alias/mac_addr %q already used by device %d", d.Name(), key, prev)
			}
			names[strings.ToUpper(key)] = i
		}
	}

	// ------------------------------------------------------------
	// DATA
	// ------------------------------------------------------------

	if cfg.Data.PollInterval <= 0 {
		return fmt.Errorf("data: poll_interval must be > 0 (got %d)", cfg.Data.PollInterval)
	}
	if !logLevels[strings.ToUpper(cfg.Data.LogLevel)] {
		return fmt.Errorf("data: unknown log_level %q", cfg.Data.LogLevel)
	}
	if cfg.Link.DiscoveryTimeoutS < 0 {
		return fmt.Errorf("link: discovery_timeout_s must be >= 0")
	}

	// ------------------------------------------------------------
	// SINKS
	// ------------------------------------------------------------

	if r := cfg.RemoteLogging; r.Enabled && r.URL == "" {
		return fmt.Errorf("remote_logging: url required when enabled")
	}
	if m := cfg.MQTT; m.Enabled {
		if m.Server == "" {
			return fmt.Errorf("mqtt: server required when enabled")
		}
		if m.Port < 0 || m.Port > 65535 {
			return fmt.Errorf("mqtt: port %d out of range", m.Port)
		}
	}
	if p := cfg.PVOutput; p.Enabled && (p.APIKey == "" || p.SystemID == "") {
		return fmt.Errorf("pvoutput: api_key and system_id required when enabled")
	}
	if in := cfg.InfluxDB; in.Enabled && (in.URL == "" || in.Org == "" || in.Bucket == "") {
		return fmt.Errorf("influxdb: url, org and bucket required when enabled")
	}

	if cfg.ModbusMirror.Enabled {
		if err := validateMirror(cfg.ModbusMirror, names); err != nil {
			return err
		}
	}

	return nil
}

func validateMirror(m ModbusMirrorConfig, names map[string]int) error {
	type span struct {
		start uint32
		end   uint32
		owner string
	}

	if m.Endpoint == "" {
		return fmt.Errorf("modbus_mirror: endpoint required when enabled")
	}
	if m.TimeoutMs < 0 {
		return fmt.Errorf("modbus_mirror: timeout_ms must be >= 0")
	}

	// key = unit_id
	spans := make(map[uint8][]span)

	claim := func(unit uint8, start, width uint32, owner string) error {
		end := start + width - 1
		if end > 0xFFFF {
			return fmt.Errorf("modbus_mirror: %s: range %d-%d exceeds register space", owner, start, end)
		}
		for _, s := range spans[unit] {
			// overlap check (inclusive)
			if !(end < s.start || start > s.end) {
				return fmt.Errorf(
					"modbus_mirror overlap: unit_id=%d range=%d-%d (%s) overlaps %s range=%d-%d",
					unit, start, end, owner, s.owner, s.start, s.end,
				)
			}
		}
		spans[unit] = append(spans[unit], span{start: start, end: end, owner: owner})
		return nil
	}

	// ------------------------------------------------------------
	// DATA REGISTERS
	// ------------------------------------------------------------

	for _, r := range m.Registers {
		if _, ok := names[strings.ToUpper(strings.TrimSpace(r.Device))]; !ok {
			return fmt.Errorf("modbus_mirror: register %d references unknown device %q", r.Address, r.Device)
		}
		if r.Field == "" {
			return fmt.Errorf("modbus_mirror: register %d: field required", r.Address)
		}
		w := RegisterWidth(r.Type)
		if w == 0 {
			return fmt.Errorf("modbus_mirror: register %d: unknown type %q", r.Address, r.Type)
		}
		if r.Scale < 0 {
			return fmt.Errorf("modbus_mirror: register %d: scale must be >= 0", r.Address)
		}

		owner := fmt.Sprintf("%s.%s", r.Device, r.Field)
		if err := claim(m.UnitID, uint32(r.Address), uint32(w), owner); err != nil {
			return err
		}
	}

	// ------------------------------------------------------------
	// DEVICE STATUS BLOCKS
	// ------------------------------------------------------------

	for _, s := range m.Status {
		if _, ok := names[strings.ToUpper(strings.TrimSpace(s.Device))]; !ok {
			return fmt.Errorf("modbus_mirror: status references unknown device %q", s.Device)
		}
		for i := 0; i < len(s.Name); i++ {
			if s.Name[i] > 0x7F {
				return fmt.Errorf("modbus_mirror: status %q: name must contain ASCII characters only", s.Device)
			}
		}

		unit := m.UnitID
		if s.UnitID != nil {
			unit = *s.UnitID
		}

		owner := fmt.Sprintf("status %s slot %d", s.Device, s.Slot)
		if err := claim(unit, uint32(s.Slot)*statusBlockRegs, statusBlockRegs, owner); err != nil {
			return err
		}
	}

	return nil
}

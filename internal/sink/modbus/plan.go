// internal/sink/modbus/plan.go
package modbus

import (
	"errors"
	"fmt"
	"math"

	cfg "github.com/tamzrod/renogy-bt/internal/config"
)

// RegisterTarget is where one field of one device lands.
type RegisterTarget struct {
	Field   string
	Address uint16
	Type    string
	Scale   float64
}

// StatusPlan is one device status block.
type StatusPlan struct {
	Device     string
	UnitID     uint8
	BaseSlot   uint16
	DeviceName string
}

// Plan is the fully-built mirror plan.
type Plan struct {
	UnitID  uint8
	Targets map[string][]RegisterTarget // device name -> targets
	Status  []StatusPlan
}

// BuildPlan converts the mirror config into a Plan.
// Assumes config has already passed Validate and Normalize.
func BuildPlan(m cfg.ModbusMirrorConfig) (Plan, error) {
	if m.Endpoint == "" {
		return Plan{}, errors.New("mirror: endpoint required")
	}

	plan := Plan{
		UnitID:  m.UnitID,
		Targets: make(map[string][]RegisterTarget),
	}

	for _, r := range m.Registers {
		plan.Targets[r.Device] = append(plan.Targets[r.Device], RegisterTarget{
			Field:   r.Field,
			Address: r.Address,
			Type:    r.Type,
			Scale:   r.Scale,
		})
	}

	for _, s := range m.Status {
		unit := m.UnitID
		if s.UnitID != nil {
			unit = *s.UnitID
		}
		plan.Status = append(plan.Status, StatusPlan{
			Device:     s.Device,
			UnitID:     unit,
			BaseSlot:   s.Slot,
			DeviceName: s.Name,
		})
	}

	return plan, nil
}

// encodeValue scales v and packs it into registers of the target type.
// Values outside the type's range saturate; clamped reports that.
func encodeValue(v float64, t RegisterTarget) (regs []uint16, clamped bool, err error) {
	scale := t.Scale
	if scale == 0 {
		scale = 1
	}
	raw := math.Round(v * scale)
	if math.IsNaN(raw) {
		return nil, false, fmt.Errorf("field %s: not a number", t.Field)
	}

	switch t.Type {
	case "", "uint16":
		n, c := clamp(raw, 0, math.MaxUint16)
		return []uint16{uint16(n)}, c, nil
	case "int16":
		n, c := clamp(raw, math.MinInt16, math.MaxInt16)
		return []uint16{uint16(int16(n))}, c, nil
	case "uint32":
		n, c := clamp(raw, 0, math.MaxUint32)
		u := uint32(n)
		return []uint16{uint16(u >> 16), uint16(u)}, c, nil
	case "int32":
		n, c := clamp(raw, math.MinInt32, math.MaxInt32)
		u := uint32(int32(n))
		return []uint16{uint16(u >> 16), uint16(u)}, c, nil
	default:
		return nil, false, fmt.Errorf("field %s: unsupported register type %q", t.Field, t.Type)
	}
}

func clamp(v, lo, hi float64) (float64, bool) {
	if v < lo {
		return lo, true
	}
	if v > hi {
		return hi, true
	}
	return v, false
}

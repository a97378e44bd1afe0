// internal/sink/modbus/status_writer.go
package modbus

import (
	"errors"
	"fmt"
	"strings"

	"github.com/tamzrod/renogy-bt/internal/status"
)

// StatusWriter is the delivery-only contract for device status.
// It receives a snapshot and writes it verbatim.
type StatusWriter interface {
	WriteStatus(s status.Snapshot) error
}

// deviceStatusWriter owns one status block on the mirror endpoint.
type deviceStatusWriter struct {
	plan StatusPlan
	cli  endpointClient

	needFull bool
	last     status.Snapshot
}

func newDeviceStatusWriter(plan StatusPlan, cli endpointClient) *deviceStatusWriter {
	return &deviceStatusWriter{
		plan:     plan,
		cli:      cli,
		needFull: true, // full re-assert on first write
	}
}

// WriteStatus delivers a device status snapshot into status memory.
// On any write failure, the next call re-asserts the full block.
func (sw *deviceStatusWriter) WriteStatus(s status.Snapshot) error {
	if sw.cli == nil {
		return errors.New("status writer: no client")
	}

	base := sw.baseAddr()

	if sw.needFull {
		regs := status.Encode(s, sw.plan.DeviceName)
		if err := sw.cli.WriteRegisters(sw.plan.UnitID, base, regs); err != nil {
			return fmt.Errorf("status writer: full block write failed: %w", err)
		}
		sw.needFull = false
		sw.last = s
		return nil
	}

	slots := []struct {
		name string
		slot uint16
		prev *uint16
		next uint16
	}{
		{"health", status.SlotHealthCode, &sw.last.Health, s.Health},
		{"last_error", status.SlotLastErrorCode, &sw.last.LastErrorCode, s.LastErrorCode},
		{"seconds_in_error", status.SlotSecondsInError, &sw.last.SecondsInError, s.SecondsInError},
		{"cycles", status.SlotCycles, &sw.last.Cycles, s.Cycles},
		{"failures", status.SlotFailures, &sw.last.Failures, s.Failures},
	}

	var errs []string
	for _, sl := range slots {
		if *sl.prev == sl.next {
			continue
		}
		if err := sw.cli.WriteRegisters(sw.plan.UnitID, base+sl.slot, []uint16{sl.next}); err != nil {
			errs = append(errs, fmt.Sprintf("slot%d %s write failed: %v", sl.slot, sl.name, err))
			continue
		}
		*sl.prev = sl.next
	}

	if len(errs) > 0 {
		// partial failure: re-assert everything on the next call
		sw.needFull = true
		return errors.New("status writer: " + strings.Join(errs, " | "))
	}
	return nil
}

func (sw *deviceStatusWriter) baseAddr() uint16 {
	return sw.plan.BaseSlot * status.SlotsPerDevice
}

// internal/status/status_test.go
package status

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/goburrow/modbus"

	"github.com/tamzrod/renogy-bt/internal/device"
	"github.com/tamzrod/renogy-bt/internal/frame"
	"github.com/tamzrod/renogy-bt/internal/link"
	"github.com/tamzrod/renogy-bt/internal/session"
)

type codedErr struct{}

func (codedErr) Error() string { return "coded" }
func (codedErr) Code() uint16  { return 77 }

func TestCodeOf(t *testing.T) {
	cases := []struct {
		err  error
		want uint16
	}{
		{nil, CodeNone},
		{fmt.Errorf("x: %w", link.ErrDeviceNotFound), CodeDeviceNotFound},
		{link.ErrConnectFailed, CodeConnectFailed},
		{fmt.Errorf("section 1: %w", session.ErrReadTimeout), CodeReadTimeout},
		{frame.ErrChecksumMismatch, CodeChecksumMismatch},
		{&modbus.ModbusError{FunctionCode: 0x83, ExceptionCode: 2}, CodeModbusExceptionBase + 2},
		{fmt.Errorf("wrapped: %w", codedErr{}), 77},
		{errors.New("boom"), CodeGeneric},
	}

	for i, tc := range cases {
		if got := CodeOf(tc.err); got != tc.want {
			t.Errorf("case %d (%v): got=%d want=%d", i, tc.err, got, tc.want)
		}
	}
}

func TestEncode_Layout(t *testing.T) {
	regs := Encode(Snapshot{Health: HealthError, LastErrorCode: 12, SecondsInError: 9, Cycles: 3, Failures: 1}, "BT-TH-1")

	if len(regs) != SlotsPerDevice {
		t.Fatalf("len=%d want %d", len(regs), SlotsPerDevice)
	}
	if regs[SlotHealthCode] != HealthError || regs[SlotLastErrorCode] != 12 || regs[SlotSecondsInError] != 9 {
		t.Fatalf("live slots=%v", regs[:3])
	}
	for i := SlotReservedStart; i <= SlotReservedEnd; i++ {
		if regs[i] != 0 {
			t.Fatalf("reserved slot %d = %d", i, regs[i])
		}
	}
	// "BT" = 0x4254
	if regs[SlotDeviceNameStart] != 0x4254 {
		t.Fatalf("name slot=0x%04X", regs[SlotDeviceNameStart])
	}
}

func TestEncodeDeviceName_TruncatesAndSanitizes(t *testing.T) {
	name := EncodeDeviceName("ABCDEFGHIJKLMNOPQRST\x01")
	if len(name) != SlotDeviceNameSlots {
		t.Fatalf("len=%d", len(name))
	}
	if name[SlotDeviceNameSlots-1] != uint16('O')<<8|uint16('P') {
		t.Fatalf("last slot=0x%04X", name[SlotDeviceNameSlots-1])
	}

	odd := EncodeDeviceName("A\x01")
	if odd[0] != uint16('A')<<8|uint16('?') {
		t.Fatalf("sanitize=0x%04X", odd[0])
	}
}

func TestTracker_ErrorAndRecovery(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	tr := NewTracker(0)
	tr.now = func() time.Time { return now }

	tr.Register("BT-TH-1", string(device.FamilyController))
	if s, ok := tr.Snapshot("BT-TH-1"); !ok || s.Health != HealthUnknown {
		t.Fatalf("registered snapshot=%+v ok=%v", s, ok)
	}

	tr.CycleFinished(session.Outcome{
		Device: "BT-TH-1",
		Family: device.FamilyController,
		At:     now,
		Err:    fmt.Errorf("section 0: %w", session.ErrReadTimeout),
	})

	now = now.Add(42 * time.Second)
	s, _ := tr.Snapshot("BT-TH-1")
	if s.Health != HealthError || s.LastErrorCode != CodeReadTimeout || s.SecondsInError != 42 {
		t.Fatalf("error snapshot=%+v", s)
	}

	// a second failure keeps the first error start
	tr.CycleFinished(session.Outcome{Device: "BT-TH-1", At: now, Err: link.ErrDeviceNotFound})
	now = now.Add(time.Second)
	s, _ = tr.Snapshot("BT-TH-1")
	if s.SecondsInError != 43 || s.LastErrorCode != CodeDeviceNotFound || s.Failures != 2 {
		t.Fatalf("second error snapshot=%+v", s)
	}

	tr.CycleFinished(session.Outcome{Device: "BT-TH-1", At: now, CycleID: "c1"})
	s, _ = tr.Snapshot("BT-TH-1")
	if s.Health != HealthOK || s.LastErrorCode != 0 || s.SecondsInError != 0 || s.Cycles != 1 {
		t.Fatalf("recovered snapshot=%+v", s)
	}

	devs := tr.Devices()
	if len(devs) != 1 || devs[0].Health != "ok" || devs[0].LastSuccess == nil || devs[0].LastCycleID != "c1" {
		t.Fatalf("devices=%+v", devs)
	}
}

func TestTracker_SecondsInErrorSaturates(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	tr := NewTracker(0)
	tr.now = func() time.Time { return now }

	tr.CycleFinished(session.Outcome{Device: "d", At: now, Err: errors.New("x")})
	now = now.Add(100 * time.Hour)

	s, _ := tr.Snapshot("d")
	if s.SecondsInError != MaxSecondsInError {
		t.Fatalf("seconds_in_error=%d want %d", s.SecondsInError, MaxSecondsInError)
	}
}

func TestTracker_Stale(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	tr := NewTracker(time.Minute)
	tr.now = func() time.Time { return now }

	tr.CycleFinished(session.Outcome{Device: "d", At: now})
	if s, _ := tr.Snapshot("d"); s.Health != HealthOK {
		t.Fatalf("health=%d want ok", s.Health)
	}

	now = now.Add(2 * time.Minute)
	if s, _ := tr.Snapshot("d"); s.Health != HealthStale {
		t.Fatalf("health=%d want stale", s.Health)
	}
}

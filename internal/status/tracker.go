// internal/status/tracker.go
package status

import (
	"sort"
	"sync"
	"time"

	"github.com/tamzrod/renogy-bt/internal/session"
)

// DeviceStatus is the per-device view served by the status API.
type DeviceStatus struct {
	Device         string     `json:"device"`
	Family         string     `json:"family"`
	Health         string     `json:"health"`
	HealthCode     uint16     `json:"health_code"`
	LastErrorCode  uint16     `json:"last_error_code"`
	LastError      string     `json:"last_error,omitempty"`
	SecondsInError uint16     `json:"seconds_in_error"`
	Cycles         uint64     `json:"cycles"`
	Failures       uint64     `json:"failures"`
	LastSuccess    *time.Time `json:"last_success,omitempty"`
	LastCycleID    string     `json:"last_cycle_id,omitempty"`
}

type entry struct {
	family string

	health    uint16
	lastCode  uint16
	lastErr   string
	errSince  time.Time
	lastOK    time.Time
	lastCycle string

	cycles   uint64
	failures uint64
}

// Tracker keeps per-device health derived from cycle outcomes.
// It implements session.Observer.
type Tracker struct {
	mu      sync.Mutex
	devices map[string]*entry

	// staleAfter turns a healthy device stale when its last good read is
	// older than this. Zero disables staleness.
	staleAfter time.Duration
	now        func() time.Time
}

var _ session.Observer = (*Tracker)(nil)

// NewTracker creates a tracker. Devices appear on Register or their first outcome.
func NewTracker(staleAfter time.Duration) *Tracker {
	return &Tracker{
		devices:    make(map[string]*entry),
		staleAfter: staleAfter,
		now:        time.Now,
	}
}

// Register adds a device in HealthUnknown so it is visible before its first cycle.
func (t *Tracker) Register(name, family string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.devices[name]; !ok {
		t.devices[name] = &entry{family: family}
	}
}

// CycleFinished records one outcome.
func (t *Tracker) CycleFinished(o session.Outcome) {
	t.mu.Lock()
	defer t.mu.Unlock()

	e, ok := t.devices[o.Device]
	if !ok {
		e = &entry{}
		t.devices[o.Device] = e
	}
	e.family = string(o.Family)
	if o.CycleID != "" {
		e.lastCycle = o.CycleID
	}

	at := o.At.Add(o.Duration)
	if at.IsZero() {
		at = t.now()
	}

	if o.Err == nil {
		e.cycles++
		e.health = HealthOK
		e.lastCode = CodeNone
		e.lastErr = ""
		e.errSince = time.Time{}
		e.lastOK = at
		return
	}

	e.failures++
	if e.health != HealthError {
		e.errSince = at
	}
	e.health = HealthError
	e.lastCode = CodeOf(o.Err)
	e.lastErr = o.Err.Error()
}

// Snapshot returns the current status block values for one device.
func (t *Tracker) Snapshot(name string) (Snapshot, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	e, ok := t.devices[name]
	if !ok {
		return Snapshot{}, false
	}
	return t.snapshotLocked(e, t.now()), true
}

func (t *Tracker) snapshotLocked(e *entry, now time.Time) Snapshot {
	s := Snapshot{
		Health:        e.health,
		LastErrorCode: e.lastCode,
		Cycles:        uint16(e.cycles),
		Failures:      uint16(e.failures),
	}

	if s.Health == HealthOK && t.staleAfter > 0 && now.Sub(e.lastOK) > t.staleAfter {
		s.Health = HealthStale
	}

	if e.health == HealthError && !e.errSince.IsZero() {
		secs := now.Sub(e.errSince) / time.Second
		if secs > MaxSecondsInError {
			secs = MaxSecondsInError
		}
		if secs > 0 {
			s.SecondsInError = uint16(secs)
		}
	}
	return s
}

// Devices returns every tracked device sorted by name.
func (t *Tracker) Devices() []DeviceStatus {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	out := make([]DeviceStatus, 0, len(t.devices))
	for name, e := range t.devices {
		s := t.snapshotLocked(e, now)
		ds := DeviceStatus{
			Device:         name,
			Family:         e.family,
			Health:         HealthName(s.Health),
			HealthCode:     s.Health,
			LastErrorCode:  s.LastErrorCode,
			LastError:      e.lastErr,
			SecondsInError: s.SecondsInError,
			Cycles:         e.cycles,
			Failures:       e.failures,
			LastCycleID:    e.lastCycle,
		}
		if !e.lastOK.IsZero() {
			ok := e.lastOK
			ds.LastSuccess = &ok
		}
		out = append(out, ds)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Device < out[j].Device })
	return out
}

// internal/session/session_test.go
package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/tamzrod/renogy-bt/internal/device"
	"github.com/tamzrod/renogy-bt/internal/frame"
	"github.com/tamzrod/renogy-bt/internal/link"
)

// ---- fakes ----

// fakeLink answers every write with the frames returned by respond.
type fakeLink struct {
	mu      sync.Mutex
	respond func(req []byte) [][]byte
	notes   chan []byte
	writes  [][]byte

	// onWrite runs after the n-th write (1-based) has been recorded
	onWrite func(n int)
	// scanning, when set, is closed once Discover starts; Discover then
	// lasts scanFor unless its ctx is done first
	scanning chan struct{}
	scanFor  time.Duration

	connectErr   error
	writeErr     error
	disconnected int
}

func newFakeLink(respond func(req []byte) [][]byte) *fakeLink {
	return &fakeLink{respond: respond}
}

func (f *fakeLink) Discover(ctx context.Context, candidates []*device.Descriptor, timeout time.Duration) error {
	if f.scanning != nil {
		close(f.scanning)
		select {
		case <-time.After(f.scanFor):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	for _, c := range candidates {
		c.Attach(device.Advertisement{Address: c.Address(), Name: c.Alias()})
	}
	return nil
}

func (f *fakeLink) Connect(ctx context.Context, d *device.Descriptor) (<-chan []byte, error) {
	if f.connectErr != nil {
		return nil, f.connectErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.notes = make(chan []byte, 8)
	return f.notes, nil
}

func (f *fakeLink) Write(ctx context.Context, p []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.writes = append(f.writes, append([]byte(nil), p...))
	if f.onWrite != nil {
		f.onWrite(len(f.writes))
	}
	if f.writeErr != nil {
		return f.writeErr
	}
	for _, r := range f.respond(p) {
		f.notes <- r
	}
	return nil
}

func (f *fakeLink) Disconnect() error {
	f.mu.Lock()
	f.disconnected++
	f.mu.Unlock()
	return nil
}

func (f *fakeLink) requests() [][]byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([][]byte(nil), f.writes...)
}

type fakeSink struct {
	mu   sync.Mutex
	recs []Record
}

func (s *fakeSink) Deliver(rec Record) {
	s.mu.Lock()
	s.recs = append(s.recs, rec)
	s.mu.Unlock()
}

func (s *fakeSink) records() []Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Record(nil), s.recs...)
}

type fakeObserver struct {
	mu  sync.Mutex
	out []Outcome
}

func (o *fakeObserver) CycleFinished(out Outcome) {
	o.mu.Lock()
	o.out = append(o.out, out)
	o.mu.Unlock()
}

// ---- helpers ----

// response builds a valid read response carrying words registers of value fill.
func response(id uint8, words uint16, fill byte) []byte {
	b := []byte{id, frame.FuncReadHoldingRegisters, byte(words * 2)}
	for i := 0; i < int(words)*2; i++ {
		b = append(b, fill)
	}
	return frame.AppendCRC(b)
}

func register(req []byte) uint16 { return uint16(req[2])<<8 | uint16(req[3]) }
func words(req []byte) uint16    { return uint16(req[4])<<8 | uint16(req[5]) }

// echo answers every request with a valid response.
func echo(req []byte) [][]byte {
	return [][]byte{response(req[0], words(req), 0x01)}
}

func fieldSection(reg, n uint16, key string, val any) device.Section {
	return device.Section{
		Register: reg,
		Words:    n,
		Decode: func(p []byte) (device.Values, error) {
			return device.Values{key: val}, nil
		},
	}
}

func testConfig() Config {
	return Config{
		ReadTimeout:  200 * time.Millisecond,
		SectionDelay: time.Millisecond,
	}
}

func newTestSession(t *testing.T, cfg Config, sections []device.Section, l Link, sink Sink, ob Observer) *Session {
	t.Helper()
	d, err := device.New("AA:BB:CC:DD:EE:FF", "BT-TH-1", 48, device.FamilyController)
	if err != nil {
		t.Fatalf("device.New err=%v", err)
	}
	s, err := New(cfg, d, sections, Deps{
		Link:     l,
		Sink:     sink,
		Observer: ob,
		Log:      zerolog.Nop(),
	})
	if err != nil {
		t.Fatalf("New err=%v", err)
	}
	return s
}

// ---- tests ----

func TestNew_Validation(t *testing.T) {
	d, _ := device.New("AA:BB", "", 1, device.FamilyController)
	l := newFakeLink(echo)

	if _, err := New(testConfig(), d, nil, Deps{Link: l}); !errors.Is(err, ErrNoSections) {
		t.Fatalf("expected ErrNoSections, got %v", err)
	}
	if _, err := New(testConfig(), d, []device.Section{{Register: 1, Words: 1}}, Deps{Link: l}); err == nil {
		t.Fatalf("expected error for missing decode")
	}
	if _, err := New(testConfig(), d, []device.Section{fieldSection(1, 126, "x", 1)}, Deps{Link: l}); err == nil {
		t.Fatalf("expected error for oversize section")
	}
	if _, err := New(testConfig(), d, []device.Section{fieldSection(1, 1, "x", 1)}, Deps{}); err == nil {
		t.Fatalf("expected error for missing link")
	}

	cfg := testConfig()
	cfg.Continuous = true
	if _, err := New(cfg, d, []device.Section{fieldSection(1, 1, "x", 1)}, Deps{Link: l}); err == nil {
		t.Fatalf("expected error for continuous polling without interval")
	}
}

func TestPoll_SectionsInOrderOneRecord(t *testing.T) {
	sections := []device.Section{
		fieldSection(0x000C, 8, "model", "RNG-CTRL-RVR40"),
		fieldSection(0x001A, 1, "device_id", 48),
		fieldSection(0x0100, 34, "battery_percentage", 87),
		fieldSection(0xE004, 1, "battery_type", "lithium"),
	}
	l := newFakeLink(echo)
	sink := &fakeSink{}
	ob := &fakeObserver{}
	s := newTestSession(t, testConfig(), sections, l, sink, ob)

	if err := s.Poll(context.Background()); err != nil {
		t.Fatalf("Poll err=%v", err)
	}

	reqs := l.requests()
	if len(reqs) != len(sections) {
		t.Fatalf("requests=%d want %d", len(reqs), len(sections))
	}
	for i, req := range reqs {
		if len(req) != frame.RequestLen {
			t.Fatalf("request %d length=%d", i, len(req))
		}
		if req[0] != 48 || req[1] != frame.FuncReadHoldingRegisters {
			t.Fatalf("request %d header=% X", i, req[:2])
		}
		if register(req) != sections[i].Register || words(req) != sections[i].Words {
			t.Fatalf("request %d out of order: reg=0x%04X words=%d", i, register(req), words(req))
		}
	}

	recs := sink.records()
	if len(recs) != 1 {
		t.Fatalf("records=%d want 1", len(recs))
	}
	rec := recs[0]
	if rec.Alias != "BT-TH-1" || rec.Family != device.FamilyController || rec.CycleID == "" {
		t.Fatalf("record identity=%+v", rec)
	}
	if rec.Fields[KeyDevice] != "BT-TH-1" || rec.Fields[KeyClient] != "RoverClient" {
		t.Fatalf("metadata=%v %v", rec.Fields[KeyDevice], rec.Fields[KeyClient])
	}
	if rec.Fields["battery_type"] != "lithium" || rec.Fields["battery_percentage"] != 87 {
		t.Fatalf("fields=%v", rec.Fields)
	}

	if s.State() != StateIdle {
		t.Fatalf("state=%s want idle", s.State())
	}
	if s.SectionIndex() != 0 {
		t.Fatalf("section index not reset: %d", s.SectionIndex())
	}
	if l.disconnected != 1 {
		t.Fatalf("disconnected=%d want 1", l.disconnected)
	}
	if len(ob.out) != 1 || ob.out[0].Err != nil || ob.out[0].Fields != len(rec.Fields) {
		t.Fatalf("observer=%+v", ob.out)
	}
}

func TestPoll_TimeoutFailsWithoutFurtherRequests(t *testing.T) {
	sections := []device.Section{
		fieldSection(1, 1, "a", 1),
		fieldSection(2, 1, "b", 2),
		fieldSection(3, 1, "c", 3),
	}
	l := newFakeLink(func(req []byte) [][]byte {
		if register(req) == 2 {
			return nil
		}
		return echo(req)
	})
	sink := &fakeSink{}
	ob := &fakeObserver{}

	cfg := testConfig()
	cfg.ReadTimeout = 30 * time.Millisecond
	s := newTestSession(t, cfg, sections, l, sink, ob)

	err := s.Poll(context.Background())
	if !errors.Is(err, ErrReadTimeout) {
		t.Fatalf("expected ErrReadTimeout, got %v", err)
	}
	if n := len(l.requests()); n != 2 {
		t.Fatalf("requests=%d want 2", n)
	}
	if len(sink.records()) != 0 {
		t.Fatalf("record delivered on failed cycle")
	}
	if s.State() != StateFailed {
		t.Fatalf("state=%s want failed", s.State())
	}
	if l.disconnected != 1 {
		t.Fatalf("link not released after failure")
	}
	if len(ob.out) != 1 || !errors.Is(ob.out[0].Err, ErrReadTimeout) {
		t.Fatalf("observer=%+v", ob.out)
	}
}

func TestPoll_MalformedMiddleSectionSkipped(t *testing.T) {
	sections := []device.Section{
		fieldSection(1, 2, "a", 1),
		fieldSection(2, 2, "b", 2),
		fieldSection(3, 2, "c", 3),
	}
	l := newFakeLink(func(req []byte) [][]byte {
		if register(req) == 2 {
			// one word short
			return [][]byte{response(req[0], 1, 0x01)}
		}
		return echo(req)
	})
	sink := &fakeSink{}
	s := newTestSession(t, testConfig(), sections, l, sink, nil)

	if err := s.Poll(context.Background()); err != nil {
		t.Fatalf("Poll err=%v", err)
	}
	if n := len(l.requests()); n != 3 {
		t.Fatalf("requests=%d want 3", n)
	}

	recs := sink.records()
	if len(recs) != 1 {
		t.Fatalf("records=%d want 1", len(recs))
	}
	f := recs[0].Fields
	if _, ok := f["b"]; ok {
		t.Fatalf("malformed section produced fields: %v", f)
	}
	if f["a"] != 1 || f["c"] != 3 {
		t.Fatalf("fields=%v", f)
	}
}

func TestPoll_DecodeErrorSkipsSection(t *testing.T) {
	bad := device.Section{
		Register: 2,
		Words:    1,
		Decode: func(p []byte) (device.Values, error) {
			return nil, errors.New("bad payload")
		},
	}
	sections := []device.Section{fieldSection(1, 1, "a", 1), bad}
	sink := &fakeSink{}
	s := newTestSession(t, testConfig(), sections, newFakeLink(echo), sink, nil)

	if err := s.Poll(context.Background()); err != nil {
		t.Fatalf("Poll err=%v", err)
	}
	if recs := sink.records(); len(recs) != 1 || recs[0].Fields["a"] != 1 {
		t.Fatalf("records=%+v", recs)
	}
}

func TestPoll_UnknownFunctionCodeIgnored(t *testing.T) {
	sections := []device.Section{fieldSection(1, 1, "a", 1)}
	l := newFakeLink(func(req []byte) [][]byte {
		exception := frame.AppendCRC([]byte{req[0], 0x83, 0x02})
		other := frame.AppendCRC([]byte{req[0], 0x06, 0x00, 0x01, 0x00, 0x02})
		return [][]byte{exception, other, response(req[0], 1, 0x01)}
	})
	sink := &fakeSink{}
	s := newTestSession(t, testConfig(), sections, l, sink, nil)

	if err := s.Poll(context.Background()); err != nil {
		t.Fatalf("Poll err=%v", err)
	}
	if recs := sink.records(); len(recs) != 1 || recs[0].Fields["a"] != 1 {
		t.Fatalf("records=%+v", recs)
	}
}

func TestPoll_EndToEndExample(t *testing.T) {
	sec := device.Section{
		Register: 0x0100,
		Words:    8,
		Decode: func(p []byte) (device.Values, error) {
			return device.Values{"battery_voltage": 25.6}, nil
		},
	}

	cases := []struct {
		name    string
		respLen int
		want    bool
	}{
		{"valid 21 bytes", 21, true},
		{"short 19 bytes", 19, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			l := newFakeLink(func(req []byte) [][]byte {
				if req[0] != 48 {
					t.Errorf("device id=%d want 48", req[0])
				}
				r := response(req[0], uint16((tc.respLen-5)/2), 0x00)
				return [][]byte{r}
			})
			sink := &fakeSink{}
			s := newTestSession(t, testConfig(), []device.Section{sec}, l, sink, nil)

			if err := s.Poll(context.Background()); err != nil {
				t.Fatalf("Poll err=%v", err)
			}

			recs := sink.records()
			if len(recs) != 1 {
				t.Fatalf("records=%d want 1", len(recs))
			}
			v, ok := recs[0].Fields["battery_voltage"]
			if ok != tc.want {
				t.Fatalf("battery_voltage present=%v want %v", ok, tc.want)
			}
			if ok && v != 25.6 {
				t.Fatalf("battery_voltage=%v", v)
			}
			if recs[0].Fields[KeyDevice] != "BT-TH-1" || recs[0].Fields[KeyClient] != "RoverClient" {
				t.Fatalf("metadata missing: %v", recs[0].Fields)
			}
		})
	}
}

func TestPoll_ConnectFailure(t *testing.T) {
	l := newFakeLink(echo)
	l.connectErr = link.ErrConnectFailed
	ob := &fakeObserver{}
	s := newTestSession(t, testConfig(), []device.Section{fieldSection(1, 1, "a", 1)}, l, nil, ob)

	err := s.Poll(context.Background())
	if !errors.Is(err, link.ErrConnectFailed) {
		t.Fatalf("expected ErrConnectFailed, got %v", err)
	}
	if s.State() != StateFailed {
		t.Fatalf("state=%s want failed", s.State())
	}
	if len(l.requests()) != 0 {
		t.Fatalf("requests sent without connection")
	}
	if s.Descriptor().Handle() != nil {
		t.Fatalf("handle kept after failed connect")
	}
	if len(ob.out) != 1 || ob.out[0].Err == nil {
		t.Fatalf("observer=%+v", ob.out)
	}
}

func TestPoll_ContinuousStopsOnShutdown(t *testing.T) {
	sink := &fakeSink{}
	cfg := testConfig()
	cfg.Continuous = true
	cfg.PollInterval = 10 * time.Millisecond
	l := newFakeLink(echo)
	s := newTestSession(t, cfg, []device.Section{fieldSection(1, 1, "a", 1)}, l, sink, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Poll(ctx) }()

	deadline := time.After(2 * time.Second)
	for len(sink.records()) < 3 {
		select {
		case <-deadline:
			t.Fatalf("continuous polling produced %d records", len(sink.records()))
		case <-time.After(5 * time.Millisecond):
		}
	}
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Poll err=%v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("Poll did not return after shutdown")
	}
	if l.disconnected != 1 {
		t.Fatalf("continuous session reconnected: disconnected=%d", l.disconnected)
	}
}

func TestPoll_ShutdownBeforeStart(t *testing.T) {
	l := newFakeLink(echo)
	s := newTestSession(t, testConfig(), []device.Section{fieldSection(1, 1, "a", 1)}, l, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := s.Poll(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if len(l.requests()) != 0 {
		t.Fatalf("cycle started after shutdown")
	}
}

func TestPoll_ResponseFromOtherDeviceIgnored(t *testing.T) {
	sections := []device.Section{{
		Register: 1,
		Words:    1,
		Decode: func(p []byte) (device.Values, error) {
			return device.Values{"a": p[1]}, nil
		},
	}}
	l := newFakeLink(func(req []byte) [][]byte {
		return [][]byte{response(req[0]-1, 1, 0x07), response(req[0], 1, 0x01)}
	})
	sink := &fakeSink{}
	s := newTestSession(t, testConfig(), sections, l, sink, nil)

	if err := s.Poll(context.Background()); err != nil {
		t.Fatalf("Poll err=%v", err)
	}
	recs := sink.records()
	if len(recs) != 1 {
		t.Fatalf("records=%d want 1", len(recs))
	}
	if v := recs[0].Fields["a"]; v != byte(0x01) {
		t.Fatalf("a=%v, decoded from the wrong device", v)
	}
}

func TestPoll_StaleNotificationsDrainedBeforeWrite(t *testing.T) {
	sections := []device.Section{
		fieldSection(1, 1, "a", 1),
		fieldSection(2, 1, "b", 2),
	}
	l := newFakeLink(func(req []byte) [][]byte {
		if register(req) == 1 {
			// late duplicates of the first answer are still queued when
			// the second request goes out
			r := response(req[0], 1, 0x01)
			return [][]byte{r, r, r}
		}
		return [][]byte{response(req[0], 2, 0x01)}
	})
	sink := &fakeSink{}
	ob := &fakeObserver{}
	cfg := testConfig()
	cfg.ReadTimeout = 30 * time.Millisecond
	s := newTestSession(t, cfg, sections, l, sink, ob)

	// the duplicates would satisfy section 2 if they were not discarded;
	// its real answer is malformed, so b must be absent
	if err := s.Poll(context.Background()); err != nil {
		t.Fatalf("Poll err=%v", err)
	}
	recs := sink.records()
	if len(recs) != 1 {
		t.Fatalf("records=%d want 1", len(recs))
	}
	if _, ok := recs[0].Fields["b"]; ok {
		t.Fatalf("stale notification answered section 2: %v", recs[0].Fields)
	}
	if recs[0].Fields["a"] != 1 {
		t.Fatalf("fields=%v", recs[0].Fields)
	}
}

func TestPoll_WriteErrorFails(t *testing.T) {
	writeErr := errors.New("write: not connected")
	l := newFakeLink(echo)
	l.writeErr = writeErr
	sink := &fakeSink{}
	ob := &fakeObserver{}
	sections := []device.Section{fieldSection(1, 1, "a", 1), fieldSection(2, 1, "b", 2)}
	s := newTestSession(t, testConfig(), sections, l, sink, ob)

	err := s.Poll(context.Background())
	if !errors.Is(err, writeErr) {
		t.Fatalf("expected write error, got %v", err)
	}
	if s.State() != StateFailed {
		t.Fatalf("state=%s want failed", s.State())
	}
	if n := len(l.requests()); n != 1 {
		t.Fatalf("requests=%d want 1", n)
	}
	if l.disconnected != 1 {
		t.Fatalf("disconnected=%d want 1", l.disconnected)
	}
	if len(sink.records()) != 0 {
		t.Fatalf("record delivered on failed cycle")
	}
	if len(ob.out) != 1 || !errors.Is(ob.out[0].Err, writeErr) {
		t.Fatalf("observer=%+v", ob.out)
	}
}

func TestPoll_ShutdownMidCycleCompletes(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	l := newFakeLink(echo)
	l.onWrite = func(n int) {
		if n == 1 {
			cancel()
		}
	}
	sink := &fakeSink{}
	ob := &fakeObserver{}
	sections := []device.Section{fieldSection(1, 1, "a", 1), fieldSection(2, 1, "b", 2)}
	s := newTestSession(t, testConfig(), sections, l, sink, ob)

	if err := s.Poll(ctx); err != nil {
		t.Fatalf("Poll err=%v", err)
	}
	if n := len(l.requests()); n != 2 {
		t.Fatalf("requests=%d want 2", n)
	}
	recs := sink.records()
	if len(recs) != 1 || recs[0].Fields["a"] != 1 || recs[0].Fields["b"] != 2 {
		t.Fatalf("records=%+v", recs)
	}
	if len(ob.out) != 1 || ob.out[0].Err != nil {
		t.Fatalf("observer=%+v", ob.out)
	}
	if s.State() != StateIdle {
		t.Fatalf("state=%s want idle", s.State())
	}
}

func TestPoll_ShutdownDuringDiscoveryCompletes(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	l := newFakeLink(echo)
	l.scanning = make(chan struct{})
	l.scanFor = 50 * time.Millisecond
	sink := &fakeSink{}
	ob := &fakeObserver{}
	s := newTestSession(t, testConfig(), []device.Section{fieldSection(1, 1, "a", 1)}, l, sink, ob)

	done := make(chan error, 1)
	go func() { done <- s.Poll(ctx) }()

	<-l.scanning
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Poll err=%v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("Poll did not return")
	}
	if recs := sink.records(); len(recs) != 1 || recs[0].Fields["a"] != 1 {
		t.Fatalf("records=%+v", recs)
	}
	if len(ob.out) != 1 || ob.out[0].Err != nil {
		t.Fatalf("observer=%+v", ob.out)
	}
	if s.State() != StateIdle {
		t.Fatalf("state=%s want idle", s.State())
	}
}

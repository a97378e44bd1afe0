// internal/session/session.go
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/tamzrod/renogy-bt/internal/device"
	"github.com/tamzrod/renogy-bt/internal/frame"
)

const (
	DefaultReadTimeout  = 15 * time.Second
	DefaultSectionDelay = 500 * time.Millisecond
)

var (
	ErrReadTimeout = errors.New("session: read timeout")
	ErrNoSections  = errors.New("session: no sections")
)

// Link is the transport a session drives. link.Adapter implements it.
type Link interface {
	Discover(ctx context.Context, candidates []*device.Descriptor, timeout time.Duration) error
	Connect(ctx context.Context, d *device.Descriptor) (<-chan []byte, error)
	Write(ctx context.Context, frame []byte) error
	Disconnect() error
}

// Sink receives completed records. Deliver must not block on the consumer.
type Sink interface {
	Deliver(rec Record)
}

// Config holds the session timing.
type Config struct {
	ReadTimeout      time.Duration
	SectionDelay     time.Duration
	DiscoveryTimeout time.Duration

	// Continuous keeps the connection open and repeats the cycle every
	// PollInterval until a cycle fails or the context is done.
	Continuous   bool
	PollInterval time.Duration
}

// Deps are the collaborators of a session.
type Deps struct {
	Link     Link
	Gate     sync.Locker
	Sink     Sink
	Observer Observer
	Log      zerolog.Logger
}

// Session is the per-device read state machine.
// One session owns one device; Poll must not be called concurrently.
type Session struct {
	cfg      Config
	desc     *device.Descriptor
	sections []device.Section
	deps     Deps
	log      zerolog.Logger
	pkg      *frame.Packager

	state   atomic.Int32
	section atomic.Int32
}

// New validates the inputs and creates a session in StateIdle.
func New(cfg Config, d *device.Descriptor, sections []device.Section, deps Deps) (*Session, error) {
	if d == nil {
		return nil, errors.New("session: descriptor required")
	}
	if len(sections) == 0 {
		return nil, ErrNoSections
	}
	for i, s := range sections {
		if s.Decode == nil {
			return nil, fmt.Errorf("session: section %d has no decode function", i)
		}
		if s.Words == 0 || s.Words > frame.MaxReadWords {
			return nil, fmt.Errorf("session: section %d: word count %d not in 1..%d", i, s.Words, frame.MaxReadWords)
		}
	}
	if deps.Link == nil {
		return nil, errors.New("session: link required")
	}
	if deps.Gate == nil {
		deps.Gate = &sync.Mutex{}
	}

	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = DefaultReadTimeout
	}
	if cfg.SectionDelay < 0 {
		cfg.SectionDelay = 0
	}
	if cfg.Continuous && cfg.PollInterval <= 0 {
		return nil, errors.New("session: poll interval must be > 0 for continuous polling")
	}

	secs := make([]device.Section, len(sections))
	copy(secs, sections)

	return &Session{
		cfg:      cfg,
		desc:     d,
		sections: secs,
		deps:     deps,
		log:      deps.Log.With().Str("device", d.Name()).Str("family", string(d.Family())).Logger(),
		pkg:      &frame.Packager{DeviceID: d.ID()},
	}, nil
}

// Descriptor returns the device this session polls.
func (s *Session) Descriptor() *device.Descriptor { return s.desc }

// State returns the current state.
func (s *Session) State() State { return State(s.state.Load()) }

// SectionIndex returns the section being read; 0 outside a cycle.
func (s *Session) SectionIndex() int { return int(s.section.Load()) }

func (s *Session) setState(st State) { s.state.Store(int32(st)) }

// Poll connects and runs read cycles.
//
// Without continuous polling it runs exactly one cycle and releases the
// connection. With continuous polling it repeats the cycle on the open
// connection every PollInterval until a cycle fails or ctx is done.
//
// Cancelling ctx never interrupts a cycle in flight; it only prevents the
// next one from starting. A nil error with a done ctx means the session
// stopped before or between cycles.
func (s *Session) Poll(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	notes, err := s.connect(ctx)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(err, ctxErr) {
			s.setState(StateIdle)
			return err
		}
		s.fail(Outcome{At: time.Now()}, err)
		return err
	}
	defer s.release()

	// in-flight work is never cut short by shutdown
	cycleCtx := context.WithoutCancel(ctx)

	for {
		start := time.Now()
		rec, err := s.readCycle(cycleCtx, notes)
		out := Outcome{
			CycleID:  rec.CycleID,
			At:       start,
			Duration: time.Since(start),
		}
		if err != nil {
			s.fail(out, err)
			return err
		}

		s.complete(out, rec)

		if !s.cfg.Continuous {
			return nil
		}

		t := time.NewTimer(s.cfg.PollInterval)
		select {
		case <-t.C:
		case <-ctx.Done():
			t.Stop()
			return nil
		}
	}
}

// connect runs discovery and connection setup under the gate.
func (s *Session) connect(ctx context.Context) (<-chan []byte, error) {
	s.setState(StateConnecting)

	s.deps.Gate.Lock()
	defer s.deps.Gate.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// once the gate is held the cycle has started; shutdown no longer cuts
	// the scan or the connect short
	opCtx := context.WithoutCancel(ctx)

	if err := s.deps.Link.Discover(opCtx, []*device.Descriptor{s.desc}, s.cfg.DiscoveryTimeout); err != nil {
		return nil, err
	}

	notes, err := s.deps.Link.Connect(opCtx, s.desc)
	if err != nil {
		s.desc.Detach()
		return nil, err
	}
	return notes, nil
}

func (s *Session) release() {
	if err := s.deps.Link.Disconnect(); err != nil {
		s.log.Warn().Err(err).Msg("disconnect failed")
	}
	if s.State() == StateCompleted {
		s.setState(StateIdle)
	}
}

// readCycle reads every section in order and assembles the record.
func (s *Session) readCycle(ctx context.Context, notes <-chan []byte) (Record, error) {
	id := uuid.NewString()
	log := s.log.With().Str("cycle", id).Logger()

	acc := make(device.Values)
	s.section.Store(0)
	defer s.section.Store(0)

	rec := Record{CycleID: id}

	for i, sec := range s.sections {
		s.setState(StateReading)
		s.section.Store(int32(i))

		buf, err := s.exchange(ctx, notes, sec, log)
		if err != nil {
			return rec, fmt.Errorf("section %d (0x%04X): %w", i, sec.Register, err)
		}

		s.merge(acc, buf, sec, i, log)

		if i < len(s.sections)-1 && s.cfg.SectionDelay > 0 {
			time.Sleep(s.cfg.SectionDelay)
		}
	}

	acc[KeyDevice] = s.desc.Name()
	acc[KeyClient] = s.desc.Family().ClientName()

	rec.Alias = s.desc.Name()
	rec.Family = s.desc.Family()
	rec.At = time.Now()
	rec.Fields = acc
	return rec, nil
}

// exchange writes one request and waits for its response or the timeout.
func (s *Session) exchange(ctx context.Context, notes <-chan []byte, sec device.Section, log zerolog.Logger) ([]byte, error) {
	req, err := frame.BuildReadRequest(s.desc.ID(), frame.FuncReadHoldingRegisters, sec.Register, sec.Words)
	if err != nil {
		return nil, err
	}

	// responses that arrived after an earlier section was resolved are stale
drain:
	for {
		select {
		case stale := <-notes:
			log.Debug().Str("frame", frame.Summarize(stale).String()).Msg("discarding stale notification")
		default:
			break drain
		}
	}

	if err := s.deps.Link.Write(ctx, req); err != nil {
		return nil, err
	}

	timer := time.NewTimer(s.cfg.ReadTimeout)
	defer timer.Stop()

	for {
		select {
		case buf := <-notes:
			fc := frame.FunctionCode(buf)
			if fc != frame.FuncReadHoldingRegisters {
				s.unexpected(buf, log)
				continue
			}
			if buf[0] != s.desc.ID() {
				log.Warn().
					Uint8("from", buf[0]).
					Str("frame", frame.Summarize(buf).String()).
					Msg("response from another device id, ignored")
				continue
			}
			return buf, nil

		case <-timer.C:
			return nil, fmt.Errorf("%w after %s", ErrReadTimeout, s.cfg.ReadTimeout)
		}
	}
}

// unexpected logs a notification that is not a read response.
func (s *Session) unexpected(buf []byte, log zerolog.Logger) {
	if pdu, err := s.pkg.Decode(buf); err == nil {
		if mbErr := frame.Exception(pdu); mbErr != nil {
			log.Warn().Err(mbErr).Msg("device returned exception")
			return
		}
	}
	log.Warn().
		Uint8("function", frame.FunctionCode(buf)).
		Str("frame", frame.Summarize(buf).String()).
		Msg("unknown function code, ignored")
}

// merge validates a response and merges the decoded values. Malformed
// responses and decode errors skip the section.
func (s *Session) merge(acc device.Values, buf []byte, sec device.Section, i int, log zerolog.Logger) {
	payload, err := frame.ValidateAndExtract(buf, sec.Words)
	if err != nil {
		log.Warn().
			Err(err).
			Int("section", i).
			Str("frame", frame.Summarize(buf).String()).
			Msg("section skipped")
		return
	}

	vals, err := sec.Decode(payload)
	if err != nil {
		log.Warn().Err(err).Int("section", i).Msg("section decode failed, skipped")
		return
	}
	for k, v := range vals {
		acc[k] = v
	}
}

func (s *Session) complete(out Outcome, rec Record) {
	s.setState(StateCompleted)

	out.Device = s.desc.Name()
	out.Family = s.desc.Family()
	out.Fields = len(rec.Fields)

	s.log.Info().
		Str("cycle", rec.CycleID).
		Int("fields", len(rec.Fields)).
		Dur("took", out.Duration).
		Msg("read cycle completed")

	if s.deps.Sink != nil {
		s.deps.Sink.Deliver(rec)
	}
	if s.deps.Observer != nil {
		s.deps.Observer.CycleFinished(out)
	}
}

func (s *Session) fail(out Outcome, err error) {
	s.setState(StateFailed)

	out.Device = s.desc.Name()
	out.Family = s.desc.Family()
	out.Err = err

	s.log.Error().Err(err).Str("cycle", out.CycleID).Msg("read cycle failed")

	if s.deps.Observer != nil {
		s.deps.Observer.CycleFinished(out)
	}
}

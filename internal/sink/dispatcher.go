// internal/sink/dispatcher.go
package sink

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/tamzrod/renogy-bt/internal/session"
)

// DefaultTimeout bounds a single delivery to one sink.
const DefaultTimeout = 30 * time.Second

// Dispatcher fans completed records out to every sink without blocking
// the caller. It implements session.Sink.
type Dispatcher struct {
	sinks   []Sink
	allow   map[string]bool
	timeout time.Duration
	log     zerolog.Logger

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

var _ session.Sink = (*Dispatcher)(nil)

// NewDispatcher creates a dispatcher. fields is the output allow-list.
func NewDispatcher(sinks []Sink, fields []string, timeout time.Duration, log zerolog.Logger) *Dispatcher {
	allow := make(map[string]bool, len(fields))
	for _, f := range fields {
		allow[f] = true
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Dispatcher{
		sinks:   sinks,
		allow:   allow,
		timeout: timeout,
		log:     log.With().Str("component", "sink").Logger(),
	}
}

// Deliver filters the record, logs it and hands it to every sink
// asynchronously. Sink failures are logged and never returned.
func (d *Dispatcher) Deliver(rec session.Record) {
	out := Filter(rec, d.allow)

	d.log.Info().
		Str("device", out.Alias).
		Str("cycle", out.CycleID).
		Fields(map[string]any(out.Fields)).
		Msg("record")

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		d.log.Warn().Str("device", out.Alias).Msg("dispatcher closed, record dropped")
		return
	}

	for _, s := range d.sinks {
		d.wg.Add(1)
		go d.deliverOne(s, out)
	}
}

func (d *Dispatcher) deliverOne(s Sink, rec session.Record) {
	defer d.wg.Done()

	log := d.log.With().Str("sink", s.Name()).Str("device", rec.Alias).Logger()
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Msg("sink panicked")
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
	defer cancel()

	start := time.Now()
	if err := s.Deliver(ctx, rec); err != nil {
		log.Error().Err(err).Msg("delivery failed")
		return
	}
	log.Debug().Dur("took", time.Since(start)).Msg("delivered")
}

// Close stops accepting records, waits for pending deliveries (bounded by
// ctx) and closes every sink.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	var errs []error
	select {
	case <-done:
	case <-ctx.Done():
		errs = append(errs, errors.New("sink: pending deliveries abandoned"))
	}

	for _, s := range d.sinks {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

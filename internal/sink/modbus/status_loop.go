// internal/sink/modbus/status_loop.go
package modbus

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/tamzrod/renogy-bt/internal/status"
)

const DefaultStatusInterval = time.Second

// SnapshotSource provides current status per device. status.Tracker implements it.
type SnapshotSource interface {
	Snapshot(name string) (status.Snapshot, bool)
}

// StatusLoop refreshes every status block from the source on a fixed interval,
// so seconds_in_error keeps counting between read cycles.
type StatusLoop struct {
	src      SnapshotSource
	writers  []*deviceStatusWriter
	interval time.Duration
	log      zerolog.Logger
}

func NewStatusLoop(plan Plan, cli *EndpointClient, src SnapshotSource, log zerolog.Logger) *StatusLoop {
	return newStatusLoop(plan, cli, src, DefaultStatusInterval, log)
}

func newStatusLoop(plan Plan, cli endpointClient, src SnapshotSource, interval time.Duration, log zerolog.Logger) *StatusLoop {
	l := &StatusLoop{
		src:      src,
		interval: interval,
		log:      log.With().Str("component", "status_writer").Logger(),
	}
	for _, sp := range plan.Status {
		l.writers = append(l.writers, newDeviceStatusWriter(sp, cli))
	}
	return l
}

// Enabled reports whether any status block is configured.
func (l *StatusLoop) Enabled() bool { return len(l.writers) > 0 }

// Run writes all blocks once, then on every tick until ctx is done.
func (l *StatusLoop) Run(ctx context.Context) {
	if !l.Enabled() {
		return
	}

	t := time.NewTicker(l.interval)
	defer t.Stop()

	for {
		l.tick()

		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}
	}
}

func (l *StatusLoop) tick() {
	for _, w := range l.writers {
		s, ok := l.src.Snapshot(w.plan.Device)
		if !ok {
			s = status.Snapshot{Health: status.HealthUnknown}
		}
		if err := w.WriteStatus(s); err != nil {
			l.log.Warn().Err(err).Str("device", w.plan.Device).Msg("status write failed")
		}
	}
}

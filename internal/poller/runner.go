// internal/poller/runner.go
package poller

import (
	"context"
	"sync"
	"time"
)

// Run starts one loop per unit and blocks until ctx is done and every
// in-flight cycle has reached a terminal state.
// A failing unit never delays the others.
func (s *Scheduler) Run(ctx context.Context) {
	var wg sync.WaitGroup

	for _, u := range s.units {
		wg.Add(1)
		go func(u Unit) {
			defer wg.Done()
			s.loop(ctx, u)
		}(u)
	}

	wg.Wait()
	s.log.Info().Msg("all devices stopped")
}

// RunOnce runs a single generation: every unit polled once, concurrently.
func (s *Scheduler) RunOnce(ctx context.Context) {
	var wg sync.WaitGroup

	for _, u := range s.units {
		wg.Add(1)
		go func(u Unit) {
			defer wg.Done()
			s.pollOnce(ctx, u)
		}(u)
	}

	wg.Wait()
}

func (s *Scheduler) loop(ctx context.Context, u Unit) {
	for {
		if ctx.Err() != nil {
			return
		}

		s.pollOnce(ctx, u)

		t := time.NewTimer(s.cfg.Interval)
		select {
		case <-ctx.Done():
			t.Stop()
			return
		case <-t.C:
		}
	}
}

func (s *Scheduler) pollOnce(ctx context.Context, u Unit) {
	name := u.Descriptor().Name()

	defer func() {
		if r := recover(); r != nil {
			s.log.Error().Str("device", name).Interface("panic", r).Msg("device poll panicked")
		}
	}()

	if err := u.Poll(ctx); err != nil && ctx.Err() == nil {
		s.log.Debug().Err(err).Str("device", name).Dur("retry_in", s.cfg.Interval).Msg("cycle failed, retrying next interval")
	}
}

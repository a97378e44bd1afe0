// internal/poller/poller.go
package poller

import (
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// Config is the minimal runtime config the scheduler needs.
type Config struct {
	Interval time.Duration
}

// Scheduler drives every unit on its own repeating timer.
// Connection setup across units is serialized by the gate the units share,
// not by the scheduler.
type Scheduler struct {
	cfg   Config
	units []Unit
	log   zerolog.Logger
}

// New creates a scheduler with immutable config.
func New(cfg Config, units []Unit, log zerolog.Logger) (*Scheduler, error) {
	if cfg.Interval <= 0 {
		return nil, errors.New("poller: interval must be > 0")
	}
	if len(units) == 0 {
		return nil, errors.New("poller: at least one device required")
	}
	for i, u := range units {
		if u == nil || u.Descriptor() == nil {
			return nil, fmt.Errorf("poller: nil unit at index %d", i)
		}
	}
	return &Scheduler{
		cfg:   cfg,
		units: units,
		log:   log.With().Str("component", "poller").Logger(),
	}, nil
}

// Units returns the scheduled units.
func (s *Scheduler) Units() []Unit { return s.units }

// internal/poller/builder.go
package poller

import (
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	cfg "github.com/tamzrod/renogy-bt/internal/config"
	"github.com/tamzrod/renogy-bt/internal/device"
	"github.com/tamzrod/renogy-bt/internal/link"
	"github.com/tamzrod/renogy-bt/internal/session"
)

// Deps are the shared collaborators handed to every session.
type Deps struct {
	Radio    link.Radio
	Catalog  device.Catalog
	Sink     session.Sink
	Observer session.Observer
	Log      zerolog.Logger
}

// Build constructs the scheduler: one link adapter and one session per
// device, all sharing a single connection gate.
// Assumes config has already passed Validate and Normalize.
func Build(c *cfg.Config, deps Deps) (*Scheduler, error) {
	if deps.Radio == nil {
		return nil, fmt.Errorf("poller: radio required")
	}
	if deps.Catalog == nil {
		return nil, fmt.Errorf("poller: catalog required")
	}

	interval := time.Duration(c.Data.PollInterval) * time.Second

	// the radio stack cannot handle concurrent connection attempts
	gate := &sync.Mutex{}

	units := make([]Unit, 0, len(c.Devices))
	for _, dc := range c.Devices {
		fam, err := device.ParseFamily(dc.Type)
		if err != nil {
			return nil, err
		}

		d, err := device.New(dc.MacAddr, dc.Alias, uint8(dc.DeviceID), fam)
		if err != nil {
			return nil, fmt.Errorf("poller: device %q: %w", dc.Name(), err)
		}

		sections, err := deps.Catalog.Sections(fam)
		if err != nil {
			return nil, fmt.Errorf("poller: device %q: %w", dc.Name(), err)
		}

		log := deps.Log.With().Str("device", d.Name()).Logger()
		adapter := link.NewAdapter(deps.Radio, link.DefaultConfig(), log)

		s, err := session.New(
			session.Config{
				ReadTimeout:      session.DefaultReadTimeout,
				SectionDelay:     session.DefaultSectionDelay,
				DiscoveryTimeout: time.Duration(c.Link.DiscoveryTimeoutS) * time.Second,
				Continuous:       c.Data.EnablePolling,
				PollInterval:     interval,
			},
			d,
			sections,
			session.Deps{
				Link:     adapter,
				Gate:     gate,
				Sink:     deps.Sink,
				Observer: deps.Observer,
				Log:      deps.Log,
			},
		)
		if err != nil {
			return nil, fmt.Errorf("poller: device %q: %w", dc.Name(), err)
		}

		deps.Log.Info().
			Str("device", d.Name()).
			Str("address", d.Address()).
			Str("family", string(fam)).
			Uint8("device_id", d.ID()).
			Int("sections", len(sections)).
			Msg("device configured")

		units = append(units, s)
	}

	return New(Config{Interval: interval}, units, deps.Log)
}

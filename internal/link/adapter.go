// internal/link/adapter.go
package link

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/tamzrod/renogy-bt/internal/device"
)

// Config is the per-connection link configuration.
type Config struct {
	NotifyUUID  string
	WriteUUID   string
	SettleDelay time.Duration
}

// DefaultConfig returns the Renogy characteristic layout and pacing.
func DefaultConfig() Config {
	return Config{
		NotifyUUID:  NotifyCharUUID,
		WriteUUID:   WriteCharUUID,
		SettleDelay: DefaultSettleDelay,
	}
}

// Adapter wraps a single wireless connection.
// It assumes one outstanding request at a time. Notifications are handed
// over on a channel of NotificationBuffer slots; beyond that they are dropped.
type Adapter struct {
	radio Radio
	cfg   Config
	log   zerolog.Logger

	mu     sync.Mutex
	desc   *device.Descriptor
	periph Peripheral
	writer Characteristic
	seen   []device.Advertisement
}

// NewAdapter creates an adapter over radio.
func NewAdapter(radio Radio, cfg Config, log zerolog.Logger) *Adapter {
	if cfg.NotifyUUID == "" {
		cfg.NotifyUUID = NotifyCharUUID
	}
	if cfg.WriteUUID == "" {
		cfg.WriteUUID = WriteCharUUID
	}
	cfg.NotifyUUID = strings.ToLower(cfg.NotifyUUID)
	cfg.WriteUUID = strings.ToLower(cfg.WriteUUID)
	if cfg.SettleDelay < 0 {
		cfg.SettleDelay = 0
	}
	return &Adapter{
		radio: radio,
		cfg:   cfg,
		log:   log.With().Str("component", "link").Logger(),
	}
}

// Discover scans once and attaches a transport handle to every candidate
// matched by address or alias.
func (a *Adapter) Discover(ctx context.Context, candidates []*device.Descriptor, timeout time.Duration) error {
	pending := 0
	for _, c := range candidates {
		if c.Handle() == nil {
			pending++
		}
	}
	if pending == 0 {
		return nil
	}
	if timeout <= 0 {
		timeout = DefaultDiscoveryTimeout
	}

	a.log.Info().Dur("timeout", timeout).Msg("starting discovery")
	ads, err := a.radio.Scan(ctx, timeout)
	if err != nil {
		return fmt.Errorf("link: scan: %w", err)
	}
	a.log.Info().Int("found", len(ads)).Msg("discovery finished")

	a.mu.Lock()
	a.seen = ads
	a.mu.Unlock()

	for _, adv := range ads {
		for _, c := range candidates {
			if !c.Matches(adv) {
				continue
			}
			if c.Attach(adv) {
				a.log.Info().
					Str("name", adv.Name).
					Str("address", adv.Address).
					Msg("found matching device")
			}
		}
	}
	return nil
}

// Connect opens the connection to d, subscribes the notify characteristic
// and locates the write characteristic. The returned channel carries every
// inbound notification until Disconnect.
func (a *Adapter) Connect(ctx context.Context, d *device.Descriptor) (<-chan []byte, error) {
	adv := d.Handle()
	if adv == nil {
		a.logPossibleDevices(d)
		return nil, fmt.Errorf("%w: %s (%s)", ErrDeviceNotFound, d.Alias(), d.Address())
	}

	a.log.Info().Str("device", d.Name()).Str("address", adv.Address).Msg("connecting")
	periph, err := a.radio.Dial(ctx, *adv)
	if err != nil {
		return nil, fmt.Errorf("%w: dial %s: %w", ErrConnectFailed, adv.Address, err)
	}
	a.log.Info().Str("device", d.Name()).Msg("connected")

	chars, err := periph.Characteristics()
	if err != nil {
		_ = periph.Disconnect()
		return nil, fmt.Errorf("%w: discover characteristics: %v", ErrConnectFailed, err)
	}

	notes := make(chan []byte, NotificationBuffer)
	var (
		subscribed int
		writer     Characteristic
	)
	for _, c := range chars {
		uuid := strings.ToLower(c.UUID())

		if uuid == a.cfg.NotifyUUID {
			if err := c.Subscribe(a.forward(d, notes)); err != nil {
				a.log.Warn().Err(err).Str("uuid", uuid).Msg("notify subscription failed")
			} else {
				subscribed++
				a.log.Debug().Str("uuid", uuid).Msg("subscribed to notifications")
			}
		}
		if uuid == a.cfg.WriteUUID {
			writer = c
			a.log.Debug().Str("uuid", uuid).Msg("found write characteristic")
		}
	}

	if subscribed == 0 || writer == nil {
		_ = periph.Disconnect()
		return nil, fmt.Errorf("%w: notify subscribed=%d write found=%t", ErrConnectFailed, subscribed, writer != nil)
	}

	a.mu.Lock()
	a.desc = d
	a.periph = periph
	a.writer = writer
	a.mu.Unlock()

	return notes, nil
}

// forward returns the notification callback for one connection.
func (a *Adapter) forward(d *device.Descriptor, notes chan []byte) func([]byte) {
	return func(buf []byte) {
		msg := make([]byte, len(buf))
		copy(msg, buf)

		select {
		case notes <- msg:
		default:
			a.log.Warn().Str("device", d.Name()).Int("len", len(msg)).Msg("notification dropped: reader is behind")
		}
	}
}

// Write sends one frame, then waits the settle delay the hardware needs
// between writes.
func (a *Adapter) Write(ctx context.Context, frame []byte) error {
	a.mu.Lock()
	w := a.writer
	a.mu.Unlock()

	if w == nil {
		return ErrNotConnected
	}

	a.log.Debug().Hex("frame", frame).Msg("write")
	if err := w.Write(frame); err != nil {
		return fmt.Errorf("link: write: %w", err)
	}

	if a.cfg.SettleDelay > 0 {
		t := time.NewTimer(a.cfg.SettleDelay)
		defer t.Stop()
		select {
		case <-t.C:
		case <-ctx.Done():
		}
	}
	return nil
}

// Disconnect releases the connection and clears the transport handle.
// Safe to call when not connected.
func (a *Adapter) Disconnect() error {
	a.mu.Lock()
	periph, d := a.periph, a.desc
	a.periph, a.writer, a.desc = nil, nil, nil
	a.mu.Unlock()

	if d != nil {
		d.Detach()
	}
	if periph == nil {
		return nil
	}

	a.log.Info().Str("device", d.Name()).Msg("disconnecting")
	if err := periph.Disconnect(); err != nil {
		return fmt.Errorf("link: disconnect: %w", err)
	}
	return nil
}

func (a *Adapter) logPossibleDevices(d *device.Descriptor) {
	a.log.Error().
		Str("alias", d.Alias()).
		Str("address", d.Address()).
		Msg("device not found, please check the details provided")

	a.mu.Lock()
	seen := a.seen
	a.mu.Unlock()

	for _, adv := range seen {
		if strings.HasPrefix(adv.Name, AliasPrefix) {
			a.log.Info().Str("name", adv.Name).Str("address", adv.Address).Msg("possible device found")
		}
	}
}

// internal/link/ble/radio.go
package ble

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"tinygo.org/x/bluetooth"

	"github.com/tamzrod/renogy-bt/internal/device"
	"github.com/tamzrod/renogy-bt/internal/link"
)

// Radio is the BLE GATT backend of link.Adapter.
// The host adapter is shared by every device; scans are serialized here,
// connection setup is serialized by the poller's gate.
type Radio struct {
	adapter *bluetooth.Adapter
	log     zerolog.Logger

	scanMu sync.Mutex
}

// New enables the default host adapter.
func New(log zerolog.Logger) (*Radio, error) {
	a := bluetooth.DefaultAdapter
	if err := a.Enable(); err != nil {
		return nil, fmt.Errorf("ble: enable adapter: %w", err)
	}
	return &Radio{
		adapter: a,
		log:     log.With().Str("component", "ble").Logger(),
	}, nil
}

// Scan collects advertisements for timeout or until ctx is done.
func (r *Radio) Scan(ctx context.Context, timeout time.Duration) ([]device.Advertisement, error) {
	r.scanMu.Lock()
	defer r.scanMu.Unlock()

	var (
		mu    sync.Mutex
		order []string
		seen  = make(map[string]device.Advertisement)
	)

	done := make(chan error, 1)
	go func() {
		done <- r.adapter.Scan(func(_ *bluetooth.Adapter, res bluetooth.ScanResult) {
			addr := res.Address.String()

			mu.Lock()
			defer mu.Unlock()
			if _, ok := seen[addr]; !ok {
				order = append(order, addr)
			}
			seen[addr] = device.Advertisement{
				Address: addr,
				Name:    res.LocalName(),
				RSSI:    res.RSSI,
				Ref:     res.Address,
			}
		})
	}()

	t := time.NewTimer(timeout)
	defer t.Stop()

	select {
	case err := <-done:
		// scan ended on its own, usually an adapter error
		if err != nil {
			return nil, fmt.Errorf("ble: scan: %w", err)
		}
	case <-t.C:
		r.stopScan(done)
	case <-ctx.Done():
		r.stopScan(done)
	}

	mu.Lock()
	defer mu.Unlock()

	out := make([]device.Advertisement, 0, len(order))
	for _, addr := range order {
		out = append(out, seen[addr])
	}
	return out, nil
}

func (r *Radio) stopScan(done <-chan error) {
	if err := r.adapter.StopScan(); err != nil {
		r.log.Warn().Err(err).Msg("stop scan")
		return
	}
	if err := <-done; err != nil {
		r.log.Warn().Err(err).Msg("scan finished with error")
	}
}

// Dial connects to the advertised peripheral.
func (r *Radio) Dial(ctx context.Context, adv device.Advertisement) (link.Peripheral, error) {
	addr, ok := adv.Ref.(bluetooth.Address)
	if !ok {
		return nil, errors.New("ble: advertisement has no bluetooth address")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	dev, err := r.adapter.Connect(addr, bluetooth.ConnectionParams{})
	if err != nil {
		return nil, fmt.Errorf("ble: connect %s: %w", adv.Address, err)
	}
	return &peripheral{dev: dev}, nil
}

// ---- peripheral ----

type peripheral struct {
	dev bluetooth.Device
}

func (p *peripheral) Characteristics() ([]link.Characteristic, error) {
	svcs, err := p.dev.DiscoverServices(nil)
	if err != nil {
		return nil, fmt.Errorf("ble: discover services: %w", err)
	}

	var out []link.Characteristic
	for i := range svcs {
		chars, err := svcs[i].DiscoverCharacteristics(nil)
		if err != nil {
			return nil, fmt.Errorf("ble: discover characteristics: %w", err)
		}
		for j := range chars {
			out = append(out, &characteristic{c: chars[j]})
		}
	}
	return out, nil
}

func (p *peripheral) Disconnect() error {
	return p.dev.Disconnect()
}

// ---- characteristic ----

type characteristic struct {
	c bluetooth.DeviceCharacteristic
}

func (c *characteristic) UUID() string {
	return c.c.UUID().String()
}

func (c *characteristic) Subscribe(fn func(buf []byte)) error {
	return c.c.EnableNotifications(fn)
}

func (c *characteristic) Write(p []byte) error {
	_, err := c.c.WriteWithoutResponse(p)
	return err
}

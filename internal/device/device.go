// internal/device/device.go
package device

import (
	"errors"
	"fmt"
	"strings"
	"sync"
)

// Family is the product family tag of a device.
type Family string

const (
	FamilyController        Family = "RNG_CTRL"
	FamilyControllerHistory Family = "RNG_CTRL_HIST"
	FamilyBattery           Family = "RNG_BATT"
	FamilyInverter          Family = "RNG_INVT"
)

// ParseFamily validates a family tag.
func ParseFamily(s string) (Family, error) {
	switch f := Family(strings.ToUpper(strings.TrimSpace(s))); f {
	case FamilyController, FamilyControllerHistory, FamilyBattery, FamilyInverter:
		return f, nil
	default:
		return "", fmt.Errorf("device: unknown family %q", s)
	}
}

// ClientName is the client label injected into every record of this family.
func (f Family) ClientName() string {
	switch f {
	case FamilyController:
		return "RoverClient"
	case FamilyControllerHistory:
		return "RoverHistoryClient"
	case FamilyBattery:
		return "BatteryClient"
	case FamilyInverter:
		return "InverterClient"
	default:
		return string(f)
	}
}

// Advertisement is one device seen during a discovery scan.
// Ref is the radio backend's own address value.
type Advertisement struct {
	Address string
	Name    string
	RSSI    int16
	Ref     any
}

// Descriptor identifies one physical device.
// Address, alias, id and family never change after New.
type Descriptor struct {
	address string
	alias   string
	id      uint8
	family  Family

	mu     sync.Mutex
	handle *Advertisement
}

// New creates a descriptor. Address is normalized to upper case.
func New(address, alias string, id uint8, family Family) (*Descriptor, error) {
	address = strings.ToUpper(strings.TrimSpace(address))
	alias = strings.TrimSpace(alias)

	if address == "" && alias == "" {
		return nil, errors.New("device: address or alias required")
	}
	if id == 0 {
		return nil, errors.New("device: id must be 1..255")
	}
	if _, err := ParseFamily(string(family)); err != nil {
		return nil, err
	}

	return &Descriptor{
		address: address,
		alias:   alias,
		id:      id,
		family:  family,
	}, nil
}

func (d *Descriptor) Address() string { return d.address }
func (d *Descriptor) Alias() string   { return d.alias }
func (d *Descriptor) ID() uint8       { return d.id }
func (d *Descriptor) Family() Family  { return d.family }

// Name is the alias when set, the address otherwise.
func (d *Descriptor) Name() string {
	if d.alias != "" {
		return d.alias
	}
	return d.address
}

// Matches reports whether an advertisement belongs to this device,
// by address (case-insensitive) or by advertised name.
func (d *Descriptor) Matches(adv Advertisement) bool {
	if adv.Address == "" {
		return false
	}
	if d.address != "" && strings.ToUpper(adv.Address) == d.address {
		return true
	}
	name := strings.TrimSpace(adv.Name)
	return d.alias != "" && name != "" && name == d.alias
}

// Attach sets the transport handle. It is a no-op returning false when a
// handle is already attached for the current discovery cycle.
func (d *Descriptor) Attach(adv Advertisement) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.handle != nil {
		return false
	}
	a := adv
	d.handle = &a
	return true
}

// Handle returns the attached advertisement, or nil.
func (d *Descriptor) Handle() *Advertisement {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.handle
}

// Detach clears the transport handle.
func (d *Descriptor) Detach() {
	d.mu.Lock()
	d.handle = nil
	d.mu.Unlock()
}

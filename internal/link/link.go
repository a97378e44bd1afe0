// internal/link/link.go
package link

import (
	"context"
	"errors"
	"time"

	"github.com/tamzrod/renogy-bt/internal/device"
)

// GATT characteristics used by the Renogy BT-1/BT-2 modules.
const (
	NotifyCharUUID = "0000fff1-0000-1000-8000-00805f9b34fb"
	WriteCharUUID  = "0000ffd1-0000-1000-8000-00805f9b34fb"

	// AliasPrefix is the advertised name prefix of Renogy BT modules.
	AliasPrefix = "BT-TH"

	DefaultDiscoveryTimeout = 5 * time.Second
	DefaultSettleDelay      = 500 * time.Millisecond

	// NotificationBuffer is how many notifications may wait for the reader.
	// Notifications keep arriving during the settle delay after a write.
	NotificationBuffer = 4
)

var (
	ErrDeviceNotFound = errors.New("link: device not found")
	ErrConnectFailed  = errors.New("link: connect failed")
	ErrNotConnected   = errors.New("link: not connected")
)

// Radio abstracts the wireless stack: scanning and dialing only.
type Radio interface {
	Scan(ctx context.Context, timeout time.Duration) ([]device.Advertisement, error)
	Dial(ctx context.Context, adv device.Advertisement) (Peripheral, error)
}

// Peripheral is one open connection.
type Peripheral interface {
	Characteristics() ([]Characteristic, error)
	Disconnect() error
}

// Characteristic is one GATT characteristic of a connected peripheral.
type Characteristic interface {
	UUID() string
	Subscribe(fn func(buf []byte)) error
	Write(p []byte) error
}

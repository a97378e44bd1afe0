// internal/poller/types.go
package poller

import (
	"context"

	"github.com/tamzrod/renogy-bt/internal/device"
)

// Unit is one independently scheduled device. session.Session implements it.
// Poll contains every failure of the device: the returned error is for
// logging only and never stops the scheduler.
type Unit interface {
	Descriptor() *device.Descriptor
	Poll(ctx context.Context) error
}

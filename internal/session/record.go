// internal/session/record.go
package session

import (
	"time"

	"github.com/tamzrod/renogy-bt/internal/device"
)

// Metadata keys injected into every record.
const (
	KeyDevice = "__device"
	KeyClient = "__client"
)

// Record is one completed read cycle.
// Fields carries the decoded values plus the KeyDevice and KeyClient metadata.
type Record struct {
	Alias   string
	Family  device.Family
	CycleID string
	At      time.Time
	Fields  device.Values
}

// IsMetadata reports whether key is an injected metadata field.
func IsMetadata(key string) bool {
	return key == KeyDevice || key == KeyClient
}

// Outcome is the result of one cycle, successful or not.
type Outcome struct {
	Device   string
	Family   device.Family
	CycleID  string
	At       time.Time
	Duration time.Duration
	Fields   int
	Err      error
}

// Observer is notified once per finished cycle.
type Observer interface {
	CycleFinished(o Outcome)
}

// Observers fans out to every non-nil observer.
type Observers []Observer

func (os Observers) CycleFinished(o Outcome) {
	for _, ob := range os {
		if ob != nil {
			ob.CycleFinished(o)
		}
	}
}

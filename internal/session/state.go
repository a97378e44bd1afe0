// internal/session/state.go
package session

// State is the lifecycle position of a device session.
type State int32

const (
	StateIdle State = iota
	StateConnecting
	StateReading
	StateCompleted
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateReading:
		return "reading"
	case StateCompleted:
		return "completed"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

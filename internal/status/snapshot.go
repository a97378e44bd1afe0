// internal/status/snapshot.go
package status

// Snapshot represents exactly what a status writer is allowed to deliver.
// It contains no logic and no memory of the past beyond current state.
type Snapshot struct {
	Health         uint16
	LastErrorCode  uint16
	SecondsInError uint16
	Cycles         uint16
	Failures       uint16
}

// HealthName returns the label used by the status API.
func HealthName(h uint16) string {
	switch h {
	case HealthOK:
		return "ok"
	case HealthError:
		return "error"
	case HealthStale:
		return "stale"
	case HealthDisabled:
		return "disabled"
	default:
		return "unknown"
	}
}

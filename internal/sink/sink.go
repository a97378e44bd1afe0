// internal/sink/sink.go
package sink

import (
	"context"
	"sort"

	"github.com/tamzrod/renogy-bt/internal/device"
	"github.com/tamzrod/renogy-bt/internal/session"
)

// Sink is one external consumer of completed records.
// Deliver must treat rec as read-only; the same record is handed to every sink.
type Sink interface {
	Name() string
	Deliver(ctx context.Context, rec session.Record) error
	Close() error
}

// Filter keeps only the allowed fields. Metadata keys are always kept and
// an empty allow-list keeps everything. The input is never modified.
func Filter(rec session.Record, allow map[string]bool) session.Record {
	out := rec
	out.Fields = make(device.Values, len(rec.Fields))

	for k, v := range rec.Fields {
		if len(allow) == 0 || allow[k] || session.IsMetadata(k) {
			out.Fields[k] = v
		}
	}
	return out
}

// Numeric returns the field as float64 when it holds a number.
func Numeric(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	default:
		return 0, false
	}
}

// Keys returns the non-metadata field names in sorted order.
func Keys(rec session.Record) []string {
	keys := make([]string, 0, len(rec.Fields))
	for k := range rec.Fields {
		if !session.IsMetadata(k) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys
}

// internal/device/section.go
package device

// Values is the set of named telemetry values decoded from one section.
type Values map[string]any

// DecodeFunc maps a validated register payload (words*2 bytes, big-endian
// registers) to named values.
type DecodeFunc func(payload []byte) (Values, error)

// Section is one register range read as a single request/response exchange.
// Sections of a family are read in slice order.
type Section struct {
	Register uint16
	Words    uint16
	Decode   DecodeFunc
}

// Catalog resolves the ordered sections for a family.
type Catalog interface {
	Sections(f Family) ([]Section, error)
}

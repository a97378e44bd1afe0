// internal/sink/mqtt/discovery.go
package mqtt

import (
	"strings"

	"github.com/tamzrod/renogy-bt/internal/session"
	"github.com/tamzrod/renogy-bt/internal/sink"
)

// SensorConfig is a Home Assistant MQTT discovery payload.
type SensorConfig struct {
	Name              string       `json:"name"`
	UniqueID          string       `json:"uniq_id"`
	StateTopic        string       `json:"stat_t"`
	ValueTemplate     string       `json:"val_tpl"`
	AvailabilityTopic string       `json:"avty_t"`
	DeviceClass       string       `json:"dev_cla,omitempty"`
	UnitOfMeasurement string       `json:"unit_of_meas,omitempty"`
	StateClass        string       `json:"stat_cla,omitempty"`
	Device            SensorDevice `json:"dev"`
}

type SensorDevice struct {
	IDs          string `json:"ids"`
	Name         string `json:"name"`
	Manufacturer string `json:"mf,omitempty"`
	Model        string `json:"mdl,omitempty"`
}

// unitRule maps a field name substring to a unit and device class.
// First match wins.
type unitRule struct {
	substr string
	unit   string
	class  string
}

var unitRules = []unitRule{
	{"current", "A", "current"},
	{"percent", "%", "battery"},
	{"voltage", "V", "voltage"},
	{"amp_hour", "Ah", ""},
	{"temperature", "°C", "temperature"},
	{"power", "W", "power"},
}

// Classify returns the unit and device class for a field name.
func Classify(field string) (unit, class string) {
	for _, r := range unitRules {
		if strings.Contains(field, r.substr) {
			return r.unit, r.class
		}
	}
	return "", ""
}

// DisplayName turns battery_voltage into "Battery Voltage".
func DisplayName(field string) string {
	parts := strings.Split(field, "_")
	for i, p := range parts {
		if p == "" {
			continue
		}
		parts[i] = strings.ToUpper(p[:1]) + p[1:]
	}
	return strings.Join(parts, " ")
}

func discoveryConfig(rec session.Record, field, state, availability string) SensorConfig {
	id := topicSafe(rec.Alias)
	unit, class := Classify(field)

	cfg := SensorConfig{
		Name:              DisplayName(field),
		UniqueID:          strings.ToLower(id + "_" + field),
		StateTopic:        state,
		ValueTemplate:     "{{ value_json." + field + " }}",
		AvailabilityTopic: availability,
		DeviceClass:       class,
		UnitOfMeasurement: unit,
		Device: SensorDevice{
			IDs:          id,
			Name:         rec.Alias,
			Manufacturer: "Renogy",
		},
	}
	if model, ok := rec.Fields["model"].(string); ok {
		cfg.Device.Model = model
	}
	if _, numeric := sink.Numeric(rec.Fields[field]); numeric && unit != "" {
		cfg.StateClass = "measurement"
	}
	return cfg
}

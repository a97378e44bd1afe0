// internal/config/normalize.go
package config

import (
	"fmt"
	"strings"
)

// Defaults filled by Normalize.
const (
	DefaultDiscoveryTimeoutS = 5
	DefaultLogLevel          = "INFO"
	DefaultMQTTPort          = 1883
	DefaultTopicPrefix       = "renogy-bt"
	DefaultDiscoveryPrefix   = "homeassistant"
	DefaultMQTTClientID      = "renogy-bt"
	DefaultPVOutputURL       = "http://pvoutput.org/service/r2/addstatus.jsp"
	DefaultInfluxMeasurement = "renogy"
	DefaultMetricsListen     = ":9109"
	DefaultMirrorTimeoutMs   = 2000
)

// Normalize applies post-validation normalization.
// It is allowed to mutate configuration.
// It MUST be called only after Validate().
func Normalize(cfg *Config) {
	if cfg == nil {
		return
	}

	for i := range cfg.Devices {
		d := &cfg.Devices[i]
		d.Alias = strings.TrimSpace(d.Alias)
		d.MacAddr = strings.ToUpper(strings.TrimSpace(d.MacAddr))
		d.Type = strings.ToUpper(strings.TrimSpace(d.Type))
	}

	cfg.Data.LogLevel = strings.ToUpper(cfg.Data.LogLevel)
	if cfg.Data.LogLevel == "" {
		cfg.Data.LogLevel = DefaultLogLevel
	}

	if cfg.Link.DiscoveryTimeoutS == 0 {
		cfg.Link.DiscoveryTimeoutS = DefaultDiscoveryTimeoutS
	}

	if cfg.MQTT.Port == 0 {
		cfg.MQTT.Port = DefaultMQTTPort
	}
	if cfg.MQTT.TopicPrefix == "" {
		cfg.MQTT.TopicPrefix = strings.TrimSpace(cfg.MQTT.Topic)
	}
	if cfg.MQTT.TopicPrefix == "" {
		cfg.MQTT.TopicPrefix = DefaultTopicPrefix
	}
	cfg.MQTT.TopicPrefix = strings.TrimSuffix(cfg.MQTT.TopicPrefix, "/")
	if cfg.MQTT.DiscoveryPrefix == "" {
		cfg.MQTT.DiscoveryPrefix = DefaultDiscoveryPrefix
	}
	if cfg.MQTT.ClientID == "" {
		cfg.MQTT.ClientID = DefaultMQTTClientID
	}

	if cfg.PVOutput.URL == "" {
		cfg.PVOutput.URL = DefaultPVOutputURL
	}

	if cfg.InfluxDB.Measurement == "" {
		cfg.InfluxDB.Measurement = DefaultInfluxMeasurement
	}

	if cfg.Metrics.Listen == "" {
		cfg.Metrics.Listen = DefaultMetricsListen
	}

	// ------------------------------------------------------------
	// MODBUS MIRROR
	// ------------------------------------------------------------

	m := &cfg.ModbusMirror
	if m.TimeoutMs == 0 {
		m.TimeoutMs = DefaultMirrorTimeoutMs
	}
	for i := range m.Registers {
		r := &m.Registers[i]
		r.Device = canonicalDevice(cfg.Devices, r.Device)
		r.Type = strings.ToLower(r.Type)
		if r.Type == "" {
			r.Type = "uint16"
		}
		if r.Scale == 0 {
			r.Scale = 1
		}
	}
	for i := range m.Status {
		s := &m.Status[i]
		s.Device = canonicalDevice(cfg.Devices, s.Device)
		if s.Name == "" {
			s.Name = s.Device
		}
		// Truncate to max 16 characters
		if len(s.Name) > 16 {
			s.Name = s.Name[:16]
		}
		if s.UnitID == nil {
			u := m.UnitID
			s.UnitID = &u
		}
	}
}

// canonicalDevice maps an alias or mac_addr reference to the device Name.
func canonicalDevice(devices []DeviceConfig, ref string) string {
	ref = strings.TrimSpace(ref)
	for _, d := range devices {
		if (d.Alias != "" && strings.EqualFold(d.Alias, ref)) ||
			(d.MacAddr != "" && strings.EqualFold(d.MacAddr, ref)) {
			return d.Name()
		}
	}
	return ref
}

// Warnings lists settings that are accepted but behave differently from
// what their name suggests. Call after Normalize.
func Warnings(cfg *Config) []string {
	if cfg == nil {
		return nil
	}
	var out []string
	if topic := strings.TrimSpace(cfg.MQTT.Topic); topic != "" {
		out = append(out, fmt.Sprintf(
			"mqtt.topic=%q is deprecated: records publish to %s/<type>/<alias>, set mqtt.topic_prefix instead",
			topic, cfg.MQTT.TopicPrefix))
	}
	return out
}

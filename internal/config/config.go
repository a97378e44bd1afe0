// internal/config/config.go
package config

// Config mirrors the add-on options file. YAML is a superset of JSON, so
// the same struct reads options.json and options.yaml.
type Config struct {
	Devices       []DeviceConfig      `yaml:"devices"`
	Data          DataConfig          `yaml:"data"`
	Link          LinkConfig          `yaml:"link"`
	RemoteLogging RemoteLoggingConfig `yaml:"remote_logging"`
	MQTT          MQTTConfig          `yaml:"mqtt"`
	PVOutput      PVOutputConfig      `yaml:"pvoutput"`
	InfluxDB      InfluxDBConfig      `yaml:"influxdb"`
	Metrics       MetricsConfig       `yaml:"metrics"`
	ModbusMirror  ModbusMirrorConfig  `yaml:"modbus_mirror"`
}

// ---- DEVICES ----

type DeviceConfig struct {
	Alias    string `yaml:"alias"`
	MacAddr  string `yaml:"mac_addr"`
	Type     string `yaml:"type"` // RNG_CTRL | RNG_CTRL_HIST | RNG_BATT | RNG_INVT
	DeviceID int    `yaml:"device_id"`
}

// Name is how the device is referred to elsewhere in the config.
func (d DeviceConfig) Name() string {
	if d.Alias != "" {
		return d.Alias
	}
	return d.MacAddr
}

// ---- DATA ----

type DataConfig struct {
	PollInterval  int      `yaml:"poll_interval"` // seconds
	EnablePolling bool     `yaml:"enable_polling"`
	Fields        []string `yaml:"fields"` // allow-list; empty keeps everything
	LogLevel      string   `yaml:"log_level"`
}

// ---- LINK ----

type LinkConfig struct {
	DiscoveryTimeoutS int `yaml:"discovery_timeout_s"`
}

// ---- SINKS ----

type RemoteLoggingConfig struct {
	Enabled    bool   `yaml:"enabled"`
	URL        string `yaml:"url"`
	AuthHeader string `yaml:"auth_header"`
}

type MQTTConfig struct {
	Enabled         bool   `yaml:"enabled"`
	Server          string `yaml:"server"`
	Port            int    `yaml:"port"`
	User            string `yaml:"user"`
	Password        string `yaml:"password"`
	TopicPrefix     string `yaml:"topic_prefix"`
	DiscoveryPrefix string `yaml:"discovery_prefix"`
	ClientID        string `yaml:"client_id"`

	// Topic is the older single-topic key. It seeds TopicPrefix when that
	// is unset; records still publish per device under the prefix.
	Topic string `yaml:"topic"`
}

type PVOutputConfig struct {
	Enabled  bool   `yaml:"enabled"`
	APIKey   string `yaml:"api_key"`
	SystemID string `yaml:"system_id"`
	URL      string `yaml:"url"`
}

type InfluxDBConfig struct {
	Enabled     bool   `yaml:"enabled"`
	URL         string `yaml:"url"`
	Token       string `yaml:"token"`
	Org         string `yaml:"org"`
	Bucket      string `yaml:"bucket"`
	Measurement string `yaml:"measurement"`
}

// ---- METRICS / STATUS API ----

type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Listen  string `yaml:"listen"`
}

// ---- MODBUS MIRROR ----

// ModbusMirrorConfig republishes numeric fields into holding registers of a
// Modbus TCP server.
type ModbusMirrorConfig struct {
	Enabled   bool                   `yaml:"enabled"`
	Endpoint  string                 `yaml:"endpoint"`
	UnitID    uint8                  `yaml:"unit_id"`
	TimeoutMs int                    `yaml:"timeout_ms"`
	Registers []MirrorRegisterConfig `yaml:"registers"`
	Status    []MirrorStatusConfig   `yaml:"status"`
}

type MirrorRegisterConfig struct {
	Device  string  `yaml:"device"` // alias or mac_addr
	Field   string  `yaml:"field"`
	Address uint16  `yaml:"address"`
	Type    string  `yaml:"type"`  // uint16 (default) | int16 | uint32
	Scale   float64 `yaml:"scale"` // raw = value * scale; default 1
}

// MirrorStatusConfig places a device status block at slot*SlotsPerDevice.
type MirrorStatusConfig struct {
	Device string `yaml:"device"`
	Slot   uint16 `yaml:"slot"`
	UnitID *uint8 `yaml:"unit_id"` // defaults to the mirror unit_id
	Name   string `yaml:"name"`    // ASCII, defaults to the device name
}

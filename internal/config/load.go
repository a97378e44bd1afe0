// internal/config/load.go
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// DefaultPaths are tried in order when no config path is given.
var DefaultPaths = []string{"/data/options.json", "options.json"}

// Secrets read from the environment override the file.
const (
	EnvRemoteAuth     = "RENOGY_REMOTE_AUTH"
	EnvMQTTPassword   = "RENOGY_MQTT_PASSWORD"
	EnvPVOutputAPIKey = "RENOGY_PVOUTPUT_API_KEY"
	EnvInfluxToken    = "RENOGY_INFLUX_TOKEN"
)

// Load reads the config file and overlays secrets from the environment.
// envFile, when set, must exist; otherwise a ./.env is loaded if present.
func Load(path, envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			return nil, fmt.Errorf("config: load env file %s: %w", envFile, err)
		}
	} else if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("config: load .env: %w", err)
	}

	raw, used, err := readFirst(path)
	if err != nil {
		return nil, err
	}

	cfg, err := Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("config: %s: %w", used, err)
	}

	overlayEnv(cfg)
	return cfg, nil
}

// Parse decodes a config document.
func Parse(raw []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func readFirst(path string) ([]byte, string, error) {
	paths := DefaultPaths
	if path != "" {
		paths = []string{path}
	}

	var lastErr error
	for _, p := range paths {
		raw, err := os.ReadFile(p)
		if err == nil {
			return raw, p, nil
		}
		lastErr = err
	}
	return nil, "", fmt.Errorf("config: read: %w", lastErr)
}

func overlayEnv(cfg *Config) {
	if v, ok := os.LookupEnv(EnvRemoteAuth); ok {
		cfg.RemoteLogging.AuthHeader = v
	}
	if v, ok := os.LookupEnv(EnvMQTTPassword); ok {
		cfg.MQTT.Password = v
	}
	if v, ok := os.LookupEnv(EnvPVOutputAPIKey); ok {
		cfg.PVOutput.APIKey = v
	}
	if v, ok := os.LookupEnv(EnvInfluxToken); ok {
		cfg.InfluxDB.Token = v
	}
}

package daemon

import (
	"errors"
	"fmt"
	"os"
	"time"

	toml "github.com/pelletier/go-toml/v2"
)

// ServiceConfig is the optional per-service TOML file
type ServiceConfig struct {
	// IntervalSeconds overrides the poll interval when positive
	IntervalSeconds int `toml:"interval_seconds"`
	// RequireAuth overrides the auth gate when set
	RequireAuth *bool `toml:"require_auth"`
	// Settings holds service specific values passed to Initialize
	Settings map[string]interface{} `toml:"settings"`
}

// Interval returns the configured interval or fallback
func (c ServiceConfig) Interval(fallback time.Duration) time.Duration {
	if c.IntervalSeconds > 0 {
		return time.Duration(c.IntervalSeconds) * time.Second
	}
	return fallback
}

// String returns a setting as a string, or "" when absent
func (c ServiceConfig) String(key string) string {
	if v, ok := c.Settings[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
		return fmt.Sprint(v)
	}
	return ""
}

// Bool returns a boolean setting, or fallback when absent or not a boolean
func (c ServiceConfig) Bool(key string, fallback bool) bool {
	if b, ok := c.Settings[key].(bool); ok {
		return b
	}
	return fallback
}

// Int returns an integer setting, or fallback when absent or not a number
func (c ServiceConfig) Int(key string, fallback int) int {
	switch v := c.Settings[key].(type) {
	case int64:
		return int(v)
	case int:
		return v
	case float64:
		return int(v)
	}
	return fallback
}

// LoadServiceConfig reads path. found is false when the file does not exist.
func LoadServiceConfig(path string) (cfg ServiceConfig, found bool, err error) {
	if path == "" {
		return ServiceConfig{}, false, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return ServiceConfig{}, false, nil
		}
		return ServiceConfig{}, false, fmt.Errorf("read service config: %w", err)
	}

	if err := toml.Unmarshal(data, &cfg); err != nil {
		return ServiceConfig{}, false, fmt.Errorf("parse service config %s: %w", path, err)
	}
	if cfg.IntervalSeconds < 0 {
		return ServiceConfig{}, false, fmt.Errorf("interval_seconds must be non-negative, got %d", cfg.IntervalSeconds)
	}
	return cfg, true, nil
}

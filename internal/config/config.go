// Package config loads and validates the Handwave YAML configuration.
package config

import (
	"fmt"
	"log"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level application configuration.
type Config struct {
	Devices map[string]DeviceConfig `yaml:"devices"`
	Camera  CameraConfig            `yaml:"camera"`
	Gesture GestureConfig           `yaml:"gesture"`
	Cache   CacheConfig             `yaml:"cache"`
	Server  ServerConfig            `yaml:"server"`
	Storage StorageConfig           `yaml:"storage"`
}

// DeviceConfig describes one controllable device, keyed by display name.
type DeviceConfig struct {
	Type  string `yaml:"type"`
	IP    string `yaml:"ip"`
	Token string `yaml:"token"`
	Model string `yaml:"model"`
}

// CameraConfig holds webcam capture settings.
type CameraConfig struct {
	DeviceID int `yaml:"device_id"`
	Width    int `yaml:"width"`
	Height   int `yaml:"height"`
	FPS      int `yaml:"fps"`
}

// GestureConfig holds gesture recognition settings.
type GestureConfig struct {
	Cooldown            float64 `yaml:"cooldown"`             // seconds between accepted gestures
	ConfidenceThreshold float64 `yaml:"confidence_threshold"` // minimum detection confidence
	BrightnessStep      int     `yaml:"brightness_step"`      // percentage per thumbs up/down
	MotionThreshold     float64 `yaml:"motion_threshold"`     // percent of pixels changed to wake up
}

// CacheConfig holds device status cache settings. Durations are Go
// duration strings such as "30s" or "1m".
type CacheConfig struct {
	Staleness       string `yaml:"staleness"`        // max age of a cached state before a read refreshes
	RefreshInterval string `yaml:"refresh_interval"` // background refresh period
	ProbeTimeout    string `yaml:"probe_timeout"`    // per-device network timeout
}

// ServerConfig holds the embedded HTTP server settings.
type ServerConfig struct {
	Addr string `yaml:"addr"`
}

// StorageConfig holds database settings.
type StorageConfig struct {
	Path string `yaml:"path"` // sqlite file, defaults to ~/.handwave/handwave.db
}

// Load reads the YAML file at path, expands environment variables,
// and applies defaults for any missing values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	expanded := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	cfg.setDefaults()

	return &cfg, nil
}

func (c *Config) setDefaults() {
	if c.Camera.Width == 0 {
		c.Camera.Width = 640
	}
	if c.Camera.Height == 0 {
		c.Camera.Height = 480
	}
	if c.Camera.FPS == 0 {
		c.Camera.FPS = 15
	}
	if c.Gesture.Cooldown == 0 {
		c.Gesture.Cooldown = 2.0
	}
	if c.Gesture.ConfidenceThreshold == 0 {
		c.Gesture.ConfidenceThreshold = 0.7
	}
	if c.Gesture.BrightnessStep == 0 {
		c.Gesture.BrightnessStep = 20
	}
	if c.Gesture.MotionThreshold == 0 {
		c.Gesture.MotionThreshold = 1.0
	}
	if c.Cache.Staleness == "" {
		c.Cache.Staleness = "30s"
	}
	if c.Cache.RefreshInterval == "" {
		c.Cache.RefreshInterval = "1m"
	}
	if c.Cache.ProbeTimeout == "" {
		c.Cache.ProbeTimeout = "3s"
	}
	if c.Server.Addr == "" {
		c.Server.Addr = "127.0.0.1:8420"
	}
}

// CooldownDuration returns the gesture cooldown as a time.Duration.
func (c *Config) CooldownDuration() time.Duration {
	return time.Duration(c.Gesture.Cooldown * float64(time.Second))
}

// StalenessDuration returns the parsed cache staleness threshold.
func (c *CacheConfig) StalenessDuration() time.Duration {
	return parseDuration(c.Staleness, 30*time.Second)
}

// RefreshIntervalDuration returns the parsed background refresh period.
func (c *CacheConfig) RefreshIntervalDuration() time.Duration {
	return parseDuration(c.RefreshInterval, time.Minute)
}

// ProbeTimeoutDuration returns the parsed per-device network timeout.
func (c *CacheConfig) ProbeTimeoutDuration() time.Duration {
	return parseDuration(c.ProbeTimeout, 3*time.Second)
}

func parseDuration(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

// ValidDevices returns the device entries that are usable for control.
// A malformed entry (missing IP or token, token of the wrong length) is
// logged and excluded; the remaining devices are unaffected.
func (c *Config) ValidDevices() map[string]DeviceConfig {
	valid := make(map[string]DeviceConfig, len(c.Devices))
	for name, d := range c.Devices {
		if err := d.validate(); err != nil {
			log.Printf("Skipping device %q: %v", name, err)
			continue
		}
		valid[name] = d
	}
	return valid
}

func (d DeviceConfig) validate() error {
	if d.IP == "" {
		return fmt.Errorf("missing ip")
	}
	if len(d.Token) != 32 {
		return fmt.Errorf("token must be 32 hex characters, got %d", len(d.Token))
	}
	for _, r := range d.Token {
		if !isHex(r) {
			return fmt.Errorf("token contains non-hex character %q", r)
		}
	}
	return nil
}

func isHex(r rune) bool {
	return (r >= '0' && r <= '9') || (r >= 'a' && r <= 'f') || (r >= 'A' && r <= 'F')
}

package main

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config represents the application configuration
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Board      BoardConfig      `yaml:"board"`
	Stream     StreamConfig     `yaml:"stream"`
	Prometheus PrometheusConfig `yaml:"prometheus"`
	MQTT       MQTTConfig       `yaml:"mqtt"`
}

// ServerConfig contains web server settings
type ServerConfig struct {
	Listen               string `yaml:"listen"`
	StaticDir            string `yaml:"static_dir"`
	EnableCORS           bool   `yaml:"enable_cors"`
	VersionCheckEnabled  bool   `yaml:"version_check_enabled"`
	VersionCheckInterval int    `yaml:"version_check_interval"` // minutes, default 60
}

// BoardConfig contains sample source settings
type BoardConfig struct {
	Mode               string `yaml:"mode"`                 // "live" or "synthetic"
	LiveListen         string `yaml:"live_listen"`          // UDP address the hardware bridge sends to
	LiveMulticastIface string `yaml:"live_multicast_iface"` // interface name for multicast group join (optional)
	SampleRate         int    `yaml:"sample_rate"`          // native sample rate in Hz
	SyntheticSeed      int64  `yaml:"synthetic_seed"`       // 0 = time-based seed
	NoFallback         bool   `yaml:"no_fallback"`          // fail instead of falling back to synthetic
}

// StreamConfig contains broadcast pipeline settings
type StreamConfig struct {
	UpdateRateHz  float64 `yaml:"update_rate_hz"` // broadcast tick rate
	WindowSeconds float64 `yaml:"window_seconds"` // analysis window length
	BufferSeconds float64 `yaml:"buffer_seconds"` // ring buffer capacity
	MaxFreqHz     float64 `yaml:"max_freq_hz"`    // PSD display range upper bound
}

// PrometheusConfig contains metrics endpoint settings
type PrometheusConfig struct {
	Enabled bool `yaml:"enabled"`
}

// MQTTConfig contains MQTT publishing settings
type MQTTConfig struct {
	Enabled         bool          `yaml:"enabled"`
	Broker          string        `yaml:"broker"`
	TopicPrefix     string        `yaml:"topic_prefix"`
	IntervalSeconds int           `yaml:"interval_seconds"`
	Username        string        `yaml:"username"`
	Password        string        `yaml:"password"`
	TLS             MQTTTLSConfig `yaml:"tls"`
}

// MQTTTLSConfig contains TLS settings for the MQTT connection
type MQTTTLSConfig struct {
	Enabled    bool   `yaml:"enabled"`
	CACert     string `yaml:"ca_cert"`
	ClientCert string `yaml:"client_cert"`
	ClientKey  string `yaml:"client_key"`
}

// Source modes
const (
	ModeLive      = "live"
	ModeSynthetic = "synthetic"
)

// LoadConfig reads and parses the configuration file
func LoadConfig(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

// Validate checks the configuration and applies defaults for zero values
func (c *Config) Validate() error {
	if c.Server.Listen == "" {
		c.Server.Listen = ":8080"
	}
	if c.Server.StaticDir == "" {
		c.Server.StaticDir = "static"
	}
	if c.Server.VersionCheckInterval <= 0 {
		c.Server.VersionCheckInterval = 60
	}

	if c.Board.Mode == "" {
		c.Board.Mode = ModeSynthetic
	}
	if c.Board.Mode != ModeLive && c.Board.Mode != ModeSynthetic {
		return fmt.Errorf("invalid board mode %q (must be %q or %q)", c.Board.Mode, ModeLive, ModeSynthetic)
	}
	if c.Board.LiveListen == "" {
		c.Board.LiveListen = ":9999"
	}
	if c.Board.SampleRate == 0 {
		c.Board.SampleRate = 256
	}
	if c.Board.SampleRate < 0 {
		return fmt.Errorf("invalid sample rate %d", c.Board.SampleRate)
	}

	if c.Stream.UpdateRateHz == 0 {
		c.Stream.UpdateRateHz = 12
	}
	if c.Stream.UpdateRateHz < 0 {
		return fmt.Errorf("invalid update rate %.1f Hz", c.Stream.UpdateRateHz)
	}
	if c.Stream.WindowSeconds == 0 {
		c.Stream.WindowSeconds = 4
	}
	if c.Stream.WindowSeconds < 1 {
		return fmt.Errorf("window_seconds must be at least 1 (got %.2f)", c.Stream.WindowSeconds)
	}
	if c.Stream.BufferSeconds == 0 {
		c.Stream.BufferSeconds = 4 * c.Stream.WindowSeconds
	}
	if c.Stream.BufferSeconds < c.Stream.WindowSeconds {
		return fmt.Errorf("buffer_seconds (%.2f) must not be smaller than window_seconds (%.2f)",
			c.Stream.BufferSeconds, c.Stream.WindowSeconds)
	}
	if c.Stream.MaxFreqHz == 0 {
		c.Stream.MaxFreqHz = 60
	}

	if c.MQTT.Enabled {
		if c.MQTT.Broker == "" {
			return fmt.Errorf("mqtt enabled but no broker configured")
		}
		if c.MQTT.TopicPrefix == "" {
			c.MQTT.TopicPrefix = "eeg"
		}
		if c.MQTT.IntervalSeconds <= 0 {
			c.MQTT.IntervalSeconds = 1
		}
	}

	return nil
}

// WindowSamples returns the analysis window length in samples
func (c *StreamConfig) WindowSamples(sampleRate int) int {
	return int(c.WindowSeconds * float64(sampleRate))
}

// BufferSamples returns the ring buffer capacity in samples
func (c *StreamConfig) BufferSamples(sampleRate int) int {
	return int(c.BufferSeconds * float64(sampleRate))
}

// RawTailSamples returns how many raw samples each frame carries per channel,
// one tick interval's worth so the frontend can append incrementally
func (c *StreamConfig) RawTailSamples(sampleRate int) int {
	tail := int(float64(sampleRate) / c.UpdateRateHz)
	if tail < 1 {
		tail = 1
	}
	return tail
}

// Package config provides configuration loading and management functionality.
package config

import (
	"fmt"
	"os"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

// Codec names accepted in PreferredCodec and advertised to the server.
const (
	CodecPCM  = "pcm"
	CodecFLAC = "flac"
	CodecOpus = "opus"
)

// Buffer capacity tiers, in bytes, for the renderer's output sink.
const (
	BufferCapacityNormal   = 32 * 1024 * 1024
	BufferCapacityLowMemory = 8 * 1024 * 1024
)

// ServerConfig describes the endpoint the session coordinator connects to.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
	Path string `yaml:"path"`
	TLS  bool   `yaml:"tls"`
}

// PlayerConfig holds the identity and alignment knobs advertised in the
// client/hello handshake and consumed by the Filter and Renderer.
type PlayerConfig struct {
	PlayerID          string `yaml:"player_id"`
	DeviceName        string `yaml:"device_name"`
	PreferredCodec    string `yaml:"preferred_codec"`
	StaticDelayMs     int    `yaml:"static_delay_ms"`
	LowMemory         bool   `yaml:"low_memory"`
	// TimeSyncDimension selects how much of the clock state the Kalman
	// filter tracks: 2 (offset+drift, the default), 3 (+acceleration), or
	// 4 (+RTT baseline, which is what makes network_change detection and
	// the driver's post-handoff re-burst reachable at all).
	TimeSyncDimension int `yaml:"time_sync_dimension"`
}

// Config is the root configuration document for the streaming client.
type Config struct {
	Server   ServerConfig `yaml:"server"`
	Player   PlayerConfig `yaml:"player"`
	LogLevel string       `yaml:"log_level"`
}

// BufferCapacity returns the configured buffer-capacity tier in bytes.
func (c *Config) BufferCapacity() int {
	if c.Player.LowMemory {
		return BufferCapacityLowMemory
	}
	return BufferCapacityNormal
}

// Validate checks the configuration inputs enumerated as the core's
// external configuration surface.
func (c *Config) Validate() error {
	switch c.Player.PreferredCodec {
	case CodecPCM, CodecFLAC, CodecOpus:
	default:
		return fmt.Errorf("config: preferred_codec %q is not one of pcm|flac|opus", c.Player.PreferredCodec)
	}
	if c.Player.StaticDelayMs < -5000 || c.Player.StaticDelayMs > 5000 {
		return fmt.Errorf("config: static_delay_ms %d outside [-5000, 5000]", c.Player.StaticDelayMs)
	}
	if c.Player.PlayerID == "" {
		return fmt.Errorf("config: player_id must not be empty")
	}
	if c.Server.Host == "" {
		return fmt.Errorf("config: server.host must not be empty")
	}
	switch c.Player.TimeSyncDimension {
	case 2, 3, 4:
	default:
		return fmt.Errorf("config: time_sync_dimension %d is not one of 2|3|4", c.Player.TimeSyncDimension)
	}
	return nil
}

// LoadConfig reads and parses a YAML configuration file.
func LoadConfig(filePath string) (*Config, error) {
	// #nosec G304 - filePath is provided by application during startup, not user input
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, err
	}

	cfg := Config{
		Server: ServerConfig{
			Host: "localhost",
			Port: 8927,
			Path: "/sendspin",
		},
		Player: PlayerConfig{
			PreferredCodec:    CodecPCM,
			TimeSyncDimension: 2,
		},
		LogLevel: "info",
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	if cfg.Player.PlayerID == "" {
		cfg.Player.PlayerID = uuid.NewString()
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

package app

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	MixerQuadX    = "quad-x"
	MixerQuadPlus = "quad-plus"
)

// Config is the main simulator configuration.
type Config struct {
	Settings Settings       `yaml:"settings"`
	Vehicle  VehicleConfig  `yaml:"vehicle"`
	PID      PIDConfig      `yaml:"pid"`
	Blackbox BlackboxConfig `yaml:"blackbox"`
	GCS      GCSConfig      `yaml:"gcs"`
	Script   ScriptConfig   `yaml:"script"`
}

// Settings represents global application settings.
type Settings struct {
	LogLevel        string  `yaml:"logLevel"`
	DurationSeconds float64 `yaml:"durationSeconds"`
}

// Level parses the configured log level, defaulting to info.
func (s Settings) Level() slog.Level {
	switch strings.ToLower(s.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// VehicleConfig describes the simulated airframe.
type VehicleConfig struct {
	Name         string `yaml:"name"`
	Mixer        string `yaml:"mixer"`
	CorePeriodUs uint32 `yaml:"corePeriodUs"`
}

// PIDConfig carries the controller gains. Zero-valued gains fall back to the
// controller defaults.
type PIDConfig struct {
	Rate    RateGains   `yaml:"rate"`
	Yaw     YawGains    `yaml:"yaw"`
	Level   LevelConfig `yaml:"level"`
	AltHold HoldConfig  `yaml:"altHold"`
	PosHold HoldConfig  `yaml:"posHold"`
}

type RateGains struct {
	Kp float64 `yaml:"kp"`
	Ki float64 `yaml:"ki"`
	Kd float64 `yaml:"kd"`
	Kf float64 `yaml:"kf"`
}

type YawGains struct {
	Kp float64 `yaml:"kp"`
	Ki float64 `yaml:"ki"`
}

type LevelConfig struct {
	Enabled     bool    `yaml:"enabled"`
	Kp          float64 `yaml:"kp"`
	MaxAngleDeg float64 `yaml:"maxAngleDeg"`
}

type HoldConfig struct {
	Enabled bool `yaml:"enabled"`
}

// BlackboxConfig represents flight-log storage settings.
type BlackboxConfig struct {
	DataDirectory string `yaml:"dataDirectory"`
	MaxBatchSize  int    `yaml:"maxBatchSize"`
}

// GCSConfig represents the ground-control serial link settings.
type GCSConfig struct {
	Enabled    bool   `yaml:"enabled"`
	SerialPort string `yaml:"serialPort"`
	BaudRate   int    `yaml:"baudRate"`
}

// ScriptConfig scripts the simulated pilot: each step sets the stick pulse
// widths that hold from its time on.
type ScriptConfig struct {
	FrameRateHz int          `yaml:"frameRateHz"`
	Steps       []ScriptStep `yaml:"steps"`
}

// ScriptStep is one scripted stick change. Pulse widths are in microseconds;
// omitted fields keep their previous value.
type ScriptStep struct {
	AtMs      uint32  `yaml:"atMs"`
	Throttle  *uint16 `yaml:"throttle"`
	Roll      *uint16 `yaml:"roll"`
	Pitch     *uint16 `yaml:"pitch"`
	Yaw       *uint16 `yaml:"yaw"`
	ArmSwitch *bool   `yaml:"armSwitch"`
}

// LoadConfig reads and validates a YAML configuration file.
func LoadConfig(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening configuration: %w", err)
	}
	defer f.Close()

	var config Config
	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(&config); err != nil {
		return nil, fmt.Errorf("parsing configuration: %w", err)
	}

	if err := config.validate(); err != nil {
		return nil, err
	}
	config.applyDefaults()

	return &config, nil
}

func (c *Config) validate() error {
	switch c.Vehicle.Mixer {
	case "", MixerQuadX, MixerQuadPlus:
	default:
		return fmt.Errorf("unknown mixer geometry '%s'", c.Vehicle.Mixer)
	}

	if c.GCS.Enabled && c.GCS.SerialPort == "" {
		return fmt.Errorf("gcs enabled without a serial port")
	}

	var lastMs uint32
	for i, step := range c.Script.Steps {
		if i > 0 && step.AtMs < lastMs {
			return fmt.Errorf("script step %d at %dms is out of order", i, step.AtMs)
		}
		lastMs = step.AtMs
	}

	return nil
}

func (c *Config) applyDefaults() {
	if c.Vehicle.Name == "" {
		c.Vehicle.Name = "sim-quad-x"
	}
	if c.Vehicle.Mixer == "" {
		c.Vehicle.Mixer = MixerQuadX
	}
	if c.Settings.DurationSeconds <= 0 {
		c.Settings.DurationSeconds = 30
	}
	if c.Script.FrameRateHz <= 0 {
		c.Script.FrameRateHz = 100
	}
	if c.GCS.BaudRate <= 0 {
		c.GCS.BaudRate = 115200
	}
}

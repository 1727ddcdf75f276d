package app

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "fcsim.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadConfig(t *testing.T) {
	path := writeConfig(t, `
settings:
  logLevel: debug
  durationSeconds: 12
vehicle:
  name: bench-quad
  mixer: quad-plus
  corePeriodUs: 1000
pid:
  level:
    enabled: true
    maxAngleDeg: 30
blackbox:
  dataDirectory: flights
  maxBatchSize: 64
script:
  frameRateHz: 50
  steps:
    - atMs: 0
      throttle: 1000
    - atMs: 500
      armSwitch: true
`)

	config, err := LoadConfig(path)
	if err != nil {
		t.Fatal(err)
	}

	if config.Settings.Level() != slog.LevelDebug {
		t.Errorf("level = %v", config.Settings.Level())
	}
	if config.Vehicle.Mixer != MixerQuadPlus || config.Vehicle.CorePeriodUs != 1000 {
		t.Errorf("vehicle = %+v", config.Vehicle)
	}
	if !config.PID.Level.Enabled || config.PID.Level.MaxAngleDeg != 30 {
		t.Errorf("level config = %+v", config.PID.Level)
	}
	if config.Blackbox.MaxBatchSize != 64 {
		t.Errorf("batch size = %d", config.Blackbox.MaxBatchSize)
	}
	if len(config.Script.Steps) != 2 || config.Script.Steps[1].ArmSwitch == nil {
		t.Errorf("script = %+v", config.Script)
	}
}

func TestLoadConfigDefaults(t *testing.T) {
	path := writeConfig(t, "settings: {}\n")

	config, err := LoadConfig(path)
	if err != nil {
		t.Fatal(err)
	}

	if config.Vehicle.Name != "sim-quad-x" || config.Vehicle.Mixer != MixerQuadX {
		t.Errorf("vehicle defaults = %+v", config.Vehicle)
	}
	if config.Settings.DurationSeconds != 30 {
		t.Errorf("duration default = %v", config.Settings.DurationSeconds)
	}
	if config.Script.FrameRateHz != 100 {
		t.Errorf("frame rate default = %d", config.Script.FrameRateHz)
	}
	if config.Settings.Level() != slog.LevelInfo {
		t.Errorf("level default = %v", config.Settings.Level())
	}
}

func TestLoadConfigRejectsUnknownFields(t *testing.T) {
	path := writeConfig(t, "settings:\n  verbosity: high\n")

	if _, err := LoadConfig(path); err == nil {
		t.Fatal("unknown field accepted")
	}
}

func TestLoadConfigRejectsUnknownMixer(t *testing.T) {
	path := writeConfig(t, "vehicle:\n  mixer: octo-x\n")

	if _, err := LoadConfig(path); err == nil {
		t.Fatal("unknown mixer accepted")
	}
}

func TestLoadConfigRejectsUnorderedScript(t *testing.T) {
	path := writeConfig(t, `
script:
  steps:
    - atMs: 500
    - atMs: 100
`)

	if _, err := LoadConfig(path); err == nil {
		t.Fatal("out-of-order script accepted")
	}
}

func TestLoadConfigRequiresSerialPortWhenGCSEnabled(t *testing.T) {
	path := writeConfig(t, "gcs:\n  enabled: true\n")

	if _, err := LoadConfig(path); err == nil {
		t.Fatal("gcs without serial port accepted")
	}
}

package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"
	"gopkg.in/yaml.v3"

	"github.com/flightcore-dev/flightcore/internal/blackbox"
	"github.com/flightcore-dev/flightcore/internal/core"
	"github.com/flightcore-dev/flightcore/internal/device"
	"github.com/flightcore-dev/flightcore/internal/flight"
	"github.com/flightcore-dev/flightcore/internal/mixer"
	"github.com/flightcore-dev/flightcore/internal/pid"
)

const storageDir = "data"

// Simulated clock: 1MHz counter advancing 25 cycles per read, so one
// CycleCounter poll costs 25us of simulated time and busy-waits terminate.
const (
	simClockHz       = 1_000_000
	simCyclesPerRead = 25
	gyroPeriodUs     = 500
)

// Run executes one scripted simulation flight and records it.
func Run(ctx context.Context, config *Config, logger *slog.Logger) error {
	dbPath, err := storagePath(&config.Blackbox)
	if err != nil {
		return fmt.Errorf("resolving storage path: %w", err)
	}

	store := blackbox.New(dbPath)
	defer store.Close()

	configYAML, err := yaml.Marshal(config)
	if err != nil {
		return fmt.Errorf("serializing configuration: %w", err)
	}

	recorderOpts := []blackbox.RecorderOption{}
	if config.Blackbox.MaxBatchSize > 0 {
		recorderOpts = append(recorderOpts, blackbox.WithBatchSize(config.Blackbox.MaxBatchSize))
	}
	recorder, err := blackbox.NewRecorder(ctx, store, config.Vehicle.Name, configYAML, recorderOpts...)
	if err != nil {
		return fmt.Errorf("creating recorder: %w", err)
	}

	clock := device.NewSimClock(simClockHz, simCyclesPerRead)
	imu := device.NewSimIMU(0)
	esc := device.NewSimESC(0)
	rxDev := device.NewSimReceiver(flight.ChannelCount)

	dt := float64(config.Vehicle.CorePeriodUs)
	if dt <= 0 {
		dt = 500
	}
	dt *= 1e-6

	driverOpts := []func(*core.Driver){
		core.WithLogger(logger),
		core.WithMixer(buildMixer(config.Vehicle.Mixer)),
		core.WithControllers(buildControllers(&config.PID, dt)...),
	}
	if config.Vehicle.CorePeriodUs > 0 {
		driverOpts = append(driverOpts, core.WithCorePeriod(config.Vehicle.CorePeriodUs))
	}
	if config.GCS.Enabled {
		link, err := openSerialLink(config.GCS.SerialPort, config.GCS.BaudRate)
		if err != nil {
			return fmt.Errorf("connecting ground control: %w", err)
		}
		defer link.Close()

		driverOpts = append(driverOpts, core.WithGCSLink(link))
		logger.Info("ground control link up",
			slog.String("port", config.GCS.SerialPort),
			slog.Int("baud", config.GCS.BaudRate))
	}

	drv := core.New(clock, imu, esc, rxDev, driverOpts...)
	drv.Begin()

	frames, err := fly(ctx, config, clock, imu, rxDev, drv, recorder)
	if err != nil {
		return err
	}

	if err := recorder.Flush(ctx); err != nil {
		return fmt.Errorf("flushing recorder: %w", err)
	}
	if err := store.Close(); err != nil {
		return fmt.Errorf("closing flight log: %w", err)
	}

	logSummary(logger, dbPath, recorder.SessionID(), frames, config.Settings.DurationSeconds)
	return nil
}

// fly drives the control loop against the scripted radio until the
// simulated duration elapses or the context is cancelled.
func fly(ctx context.Context, config *Config, clock *device.SimClock, imu *device.SimIMU,
	rxDev *device.SimReceiver, drv *core.Driver, recorder *blackbox.Recorder) (frames int64, err error) {

	durationUs := uint32(config.Settings.DurationSeconds * 1e6)
	frameIntervalUs := uint32(1_000_000 / config.Script.FrameRateHz)

	channels := defaultChannels()
	nextStep := 0

	var nextGyroUs, nextFrameUs, lastSnapshotUs uint32

	for clock.Micros() < durationUs {
		select {
		case <-ctx.Done():
			return frames, ctx.Err()
		default:
		}

		now := clock.Micros()

		for nextStep < len(config.Script.Steps) && config.Script.Steps[nextStep].AtMs*1000 <= now {
			applyStep(channels, &config.Script.Steps[nextStep])
			nextStep++
		}

		if int32(now-nextGyroUs) >= 0 {
			imu.Interrupt(clock.CycleCounter(), 0, 0, 0)
			nextGyroUs = now + gyroPeriodUs
		}
		if int32(now-nextFrameUs) >= 0 {
			rxDev.PushFrame(now, device.FrameComplete, channels...)
			nextFrameUs = now + frameIntervalUs
		}

		drv.Step()

		snap := drv.Get()
		if snap.TimestampUs != lastSnapshotUs {
			lastSnapshotUs = snap.TimestampUs
			frames++
		}
		if err := recorder.Observe(ctx, snap); err != nil {
			return frames, fmt.Errorf("recording frame: %w", err)
		}
	}

	return frames, nil
}

func defaultChannels() []uint16 {
	channels := make([]uint16, flight.ChannelCount)
	for i := range channels {
		channels[i] = 1500
	}
	channels[flight.ChannelThrottle] = 1000
	channels[flight.ChannelAux1] = 1000
	return channels
}

func applyStep(channels []uint16, step *ScriptStep) {
	if step.Throttle != nil {
		channels[flight.ChannelThrottle] = *step.Throttle
	}
	if step.Roll != nil {
		channels[flight.ChannelRoll] = *step.Roll
	}
	if step.Pitch != nil {
		channels[flight.ChannelPitch] = *step.Pitch
	}
	if step.Yaw != nil {
		channels[flight.ChannelYaw] = *step.Yaw
	}
	if step.ArmSwitch != nil {
		if *step.ArmSwitch {
			channels[flight.ChannelAux1] = 1800
		} else {
			channels[flight.ChannelAux1] = 1000
		}
	}
}

func buildMixer(geometry string) *mixer.Mixer {
	if geometry == MixerQuadPlus {
		return mixer.NewQuadPlus()
	}
	return mixer.NewQuadX()
}

func buildControllers(config *PIDConfig, dt float64) []pid.Controller {
	var controllers []pid.Controller

	if config.PosHold.Enabled {
		controllers = append(controllers, pid.NewPosHold())
	}

	if config.Level.Enabled {
		var opts []func(*pid.Level)
		if config.Level.Kp > 0 {
			opts = append(opts, pid.WithLevelGain(config.Level.Kp))
		}
		if config.Level.MaxAngleDeg > 0 {
			opts = append(opts, pid.WithMaxAngle(config.Level.MaxAngleDeg))
		}
		controllers = append(controllers, pid.NewLevel(opts...))
	}

	if config.AltHold.Enabled {
		controllers = append(controllers, pid.NewAltHold())
	}

	var rateOpts []func(*pid.Rate)
	if config.Rate != (RateGains{}) {
		rateOpts = append(rateOpts, pid.WithCyclicGains(config.Rate.Kp, config.Rate.Ki, config.Rate.Kd, config.Rate.Kf))
	}
	if config.Yaw != (YawGains{}) {
		rateOpts = append(rateOpts, pid.WithYawGains(config.Yaw.Kp, config.Yaw.Ki))
	}
	controllers = append(controllers, pid.NewRate(dt, rateOpts...))

	return controllers
}

func storagePath(config *BlackboxConfig) (string, error) {
	wd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("failed to get current working directory: %w", err)
	}

	dir := config.DataDirectory
	if dir == "" {
		dir = storageDir
	}
	dbDir := filepath.Join(wd, dir)

	stat, err := os.Stat(dbDir)
	if err != nil {
		return "", fmt.Errorf("storage directory '%s': %w", dbDir, err)
	}
	if !stat.IsDir() {
		return "", fmt.Errorf("invalid storage directory '%s'", dbDir)
	}

	name := fmt.Sprintf("flight_%s.sqlite", time.Now().UTC().Format("20060102_150405"))
	return filepath.Join(dbDir, name), nil
}

func logSummary(logger *slog.Logger, dbPath string, sessionID, frames int64, durationSeconds float64) {
	var size string
	if stat, err := os.Stat(dbPath); err == nil {
		size = humanize.Bytes(uint64(stat.Size()))
	}

	logger.Info("flight complete",
		slog.Int64("session", sessionID),
		slog.String("frames", humanize.Comma(frames)),
		slog.Float64("sim_seconds", durationSeconds),
		slog.String("log", dbPath),
		slog.String("log_size", size))
}

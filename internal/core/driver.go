// Package core wires the control subsystems into the dual-rate loop: the
// hard-real-time core tick (gyro ingest, PID, mixer, motor write) and the
// dynamic tasks (receiver polling, attitude estimation, ground-control
// servicing) that run in the slack before the next core deadline.
package core

import (
	"io"
	"log/slog"
	"math"

	"github.com/flightcore-dev/flightcore/internal/arming"
	"github.com/flightcore-dev/flightcore/internal/device"
	"github.com/flightcore-dev/flightcore/internal/flight"
	"github.com/flightcore-dev/flightcore/internal/mixer"
	"github.com/flightcore-dev/flightcore/internal/msp"
	"github.com/flightcore-dev/flightcore/internal/pid"
	"github.com/flightcore-dev/flightcore/internal/receiver"
	"github.com/flightcore-dev/flightcore/internal/scheduler"
	"github.com/flightcore-dev/flightcore/internal/telemetry"
)

// Gyro interrupt counts over which the loop period and phase are measured.
const (
	coreRateSampleCount = 25000
	gyroLockSampleCount = 400
)

// Dynamic task rates in Hz.
const (
	receiverTaskRateHz = 33
	attitudeTaskRateHz = 100
	gcsTaskRateHz      = 100
)

const defaultCorePeriodUs = 500

// GCSLink is the byte link to the ground-control station. ReadByte must not
// block: it reports false when no byte is pending.
type GCSLink interface {
	ReadByte() (byte, bool)
	Write(p []byte) (int, error)
}

func cmpCycles(a, b uint32) int32 {
	return int32(a - b)
}

// Driver owns the control loop. It is single-threaded: the harness calls
// Step in a tight loop and everything below runs cooperatively.
type Driver struct {
	log *slog.Logger

	clock device.Clock
	imu   device.IMU
	esc   device.ESC
	led   device.LED
	gcs   GCSLink

	sched       *scheduler.Scheduler
	rx          *receiver.Receiver
	arm         *arming.Arming
	controllers []pid.Controller
	mix         *mixer.Mixer

	receiverTask *scheduler.Task
	attitudeTask *scheduler.Task
	gcsTask      *scheduler.Task

	vstate flight.VehicleState

	corePeriodUs uint32
	cyclesPerUs  uint32

	// Gyro rate lock: the measured interrupt cadence re-calibrates the
	// scheduler period, and the accumulated skew nudges its phase.
	terminalGyroRateCount uint32
	sampleRateStartCycles uint32
	terminalGyroLockCount uint32
	gyroSkewAccum         int32

	mspParser msp.Parser

	// motorOverride carries ground-control motor commands; the ESC receives
	// it instead of the mixer output while disarmed.
	motorOverride [mixer.MotorCount]float64

	snapshot telemetry.Snapshot
}

// WithLogger sets the logger used outside the hot loop.
func WithLogger(log *slog.Logger) func(*Driver) {
	return func(d *Driver) {
		d.log = log
	}
}

// WithLED wires the arming/warning indicator.
func WithLED(led device.LED) func(*Driver) {
	return func(d *Driver) {
		d.led = led
	}
}

// WithGCSLink wires the ground-control serial link.
func WithGCSLink(link GCSLink) func(*Driver) {
	return func(d *Driver) {
		d.gcs = link
	}
}

// WithControllers replaces the default PID stack. Order is preserved.
func WithControllers(controllers ...pid.Controller) func(*Driver) {
	return func(d *Driver) {
		d.controllers = controllers
	}
}

// WithMixer replaces the default quad-X mixer.
func WithMixer(m *mixer.Mixer) func(*Driver) {
	return func(d *Driver) {
		d.mix = m
	}
}

// WithCorePeriod overrides the initial core-loop period. The period
// self-calibrates against the gyro cadence afterwards.
func WithCorePeriod(periodUs uint32) func(*Driver) {
	return func(d *Driver) {
		d.corePeriodUs = periodUs
	}
}

// New assembles a control-loop driver around the given devices.
func New(clock device.Clock, imu device.IMU, esc device.ESC,
	rxDev device.ReceiverDevice, options ...func(*Driver)) *Driver {

	d := &Driver{
		log:          slog.New(slog.NewTextHandler(io.Discard, nil)),
		clock:        clock,
		imu:          imu,
		esc:          esc,
		led:          device.NoopLED{},
		corePeriodUs: defaultCorePeriodUs,
	}

	for _, option := range options {
		option(d)
	}

	dt := float64(d.corePeriodUs) * 1e-6

	if d.controllers == nil {
		d.controllers = []pid.Controller{pid.NewRate(dt)}
	}
	if d.mix == nil {
		d.mix = mixer.NewQuadX()
	}

	d.cyclesPerUs = clock.ClockSpeed() / 1_000_000
	d.sched = scheduler.New(clock.ClockSpeed(), d.corePeriodUs)
	d.arm = arming.New(esc, d.led)

	rxOptions := []func(*receiver.Receiver){}
	if rate := findRate(d.controllers); rate != nil {
		rxOptions = append(rxOptions,
			receiver.WithFeedforwardCutoffHook(rate.SetFeedforwardCutoff))
	}
	d.rx = receiver.New(rxDev, dt, rxOptions...)

	d.receiverTask = scheduler.NewTask(
		scheduler.RunnerFunc(d.runReceiver), 1_000_000/receiverTaskRateHz,
		scheduler.WithSignal(d.rx.Check))
	d.attitudeTask = scheduler.NewTask(
		scheduler.RunnerFunc(d.runAttitude), 1_000_000/attitudeTaskRateHz)
	d.gcsTask = scheduler.NewTask(
		scheduler.RunnerFunc(d.runGCS), 1_000_000/gcsTaskRateHz)

	return d
}

// findRate locates the rate controller in the stack so the receiver's
// smoothing trainer can retune its feedforward filters.
func findRate(controllers []pid.Controller) *pid.Rate {
	for _, c := range controllers {
		if rate, ok := c.(*pid.Rate); ok {
			return rate
		}
	}
	return nil
}

// Begin performs the power-up sequence: boot flash on the indicator, then a
// ready log line. The vehicle stays disarmed until the full arming
// preconditions are met.
func (d *Driver) Begin() {
	d.ledFlash(10, 50)

	d.log.Info("control core ready",
		slog.Uint64("core_period_us", uint64(d.corePeriodUs)),
		slog.Uint64("clock_hz", uint64(d.clock.ClockSpeed())))
}

func (d *Driver) ledFlash(reps int, periodMs uint32) {
	on := false
	for i := 0; i < reps; i++ {
		on = !on
		d.led.Set(on)
		deadline := d.clock.Micros() + periodMs*1000
		for int32(d.clock.Micros()-deadline) < 0 {
			d.clock.CycleCounter()
		}
	}
	d.led.Set(false)
}

// Step runs one scheduler iteration: the core tick if its deadline is due,
// then at most one dynamic task if slack remains.
func (d *Driver) Step() {
	nowCycles := d.clock.CycleCounter()

	if d.sched.IsCoreReady(nowCycles) {
		d.coreTick(nowCycles)
	}

	if d.sched.IsDynamicReady(d.clock.CycleCounter()) {
		d.runDynamicTasks()
	}
}

func (d *Driver) coreTick(nowCycles uint32) {
	usec := d.clock.Micros()

	loopRemainingCycles := d.sched.LoopRemainingCycles()
	nextTargetCycles := d.sched.NextTargetCycles()

	d.sched.CorePreUpdate()

	// Busy-wait to the exact deadline: the start window opens early and the
	// spin absorbs the jitter.
	for loopRemainingCycles > 0 {
		nowCycles = d.clock.CycleCounter()
		loopRemainingCycles = cmpCycles(nextTargetCycles, nowCycles)
	}

	if d.imu.GyroIsReady() {
		d.vstate.DPhi, d.vstate.DTheta, d.vstate.DPsi = d.imu.ReadGyroDps()
	}

	demands := d.rx.Demands(usec)
	demands = pid.Run(d.controllers, usec, demands, d.vstate, d.rx.GotPidReset())

	motors := d.mix.Mix(demands)

	if d.arm.IsArmed() {
		d.esc.Write(motors[:])
	} else {
		d.esc.Write(d.motorOverride[:])
	}

	d.sched.CorePostUpdate(nowCycles)

	d.updateGyroLock(nowCycles, nextTargetCycles)

	d.snapshot = telemetry.Snapshot{
		TimestampUs: usec,
		Armed:       d.arm.IsArmed(),
		Failsafe:    d.arm.GotFailsafe() || d.rx.InFailsafe(),
		Throttle:    demands.Throttle,
		Roll:        demands.Roll,
		Pitch:       demands.Pitch,
		Yaw:         demands.Yaw,
		Phi:         d.vstate.Phi,
		Theta:       d.vstate.Theta,
		Psi:         d.vstate.Psi,
		Motors:      motors,
	}
}

// updateGyroLock keeps the scheduler in lock with the gyro: the interrupt
// cadence over coreRateSampleCount samples re-measures the loop period, and
// the skew accumulated over gyroLockSampleCount samples shifts the deadline
// phase.
func (d *Driver) updateGyroLock(nowCycles, nextTargetCycles uint32) {
	interruptCount := d.imu.GyroInterruptCount()

	if d.terminalGyroRateCount == 0 {
		d.terminalGyroRateCount = interruptCount + coreRateSampleCount
		d.sampleRateStartCycles = nowCycles
	}

	if interruptCount >= d.terminalGyroRateCount {
		sampleCycles := nowCycles - d.sampleRateStartCycles
		d.sched.DesiredPeriodCycles = int32(sampleCycles / coreRateSampleCount)
		d.sampleRateStartCycles = nowCycles
		d.terminalGyroRateCount += coreRateSampleCount
	}

	d.gyroSkewAccum += d.imu.GyroSkew(nextTargetCycles, d.sched.DesiredPeriodCycles)

	if d.terminalGyroLockCount == 0 {
		d.terminalGyroLockCount = interruptCount + gyroLockSampleCount
	}

	if interruptCount >= d.terminalGyroLockCount {
		d.terminalGyroLockCount += gyroLockSampleCount
		d.sched.LastTargetCycles -= uint32(d.gyroSkewAccum / gyroLockSampleCount)
		d.gyroSkewAccum = 0
	}
}

func (d *Driver) runDynamicTasks() {
	var p scheduler.Prioritizer

	usec := d.clock.Micros()

	d.receiverTask.Prioritize(usec, &p)
	d.attitudeTask.Prioritize(usec, &p)
	d.gcsTask.Prioritize(usec, &p)

	if p.Task != nil {
		d.runTask(p.Task)
	}
}

func (d *Driver) runTask(task *scheduler.Task) {
	nowCycles := d.clock.CycleCounter()

	required := task.CheckReady(d.sched.NextTargetCycles(), nowCycles,
		d.sched.TaskGuardCycles(), d.cyclesPerUs)
	if required == 0 {
		return
	}
	anticipatedEndCycles := nowCycles + required

	usec := d.clock.Micros()
	task.Execute(usec)
	task.Update(d.clock.Micros() - usec)

	d.sched.UpdateDynamic(d.clock.CycleCounter(), anticipatedEndCycles)
}

func (d *Driver) imuIsLevel() bool {
	maxAngle := d.arm.MaxArmingAngleRad()
	return math.Abs(d.vstate.Phi) < maxAngle && math.Abs(d.vstate.Theta) < maxAngle
}

// runReceiver is the receiver task body: one state-machine step, then the
// arming hook matching the state the machine settled in.
func (d *Driver) runReceiver(usec uint32) {
	d.rx.Poll(usec, d.imuIsLevel(), d.imu.GyroIsCalibrating(), d.arm)

	if d.rx.CurrentState() == receiver.StateCheck {
		d.arm.UpdateFromReceiver(d.clock.Micros(),
			d.rx.ThrottleIsDown(), d.rx.Aux1IsSet(), d.rx.HasSignal())
	}
}

// runAttitude is the attitude task body: Euler angles from the IMU
// quaternion, then the arming angle/calibration hook.
func (d *Driver) runAttitude(usec uint32) {
	qw, qx, qy, qz := d.imu.Quaternion()
	d.vstate.Phi, d.vstate.Theta, d.vstate.Psi = flight.EulerFromQuaternion(qw, qx, qy, qz)

	d.arm.UpdateFromIMU(d.imuIsLevel(),
		d.imu.GyroIsCalibrating(), d.imu.AccIsCalibrating())
}

// runGCS is the ground-control task body: drain pending link bytes through
// the MSP parser and answer complete requests.
func (d *Driver) runGCS(usec uint32) {
	if d.gcs == nil {
		return
	}

	for {
		b, ok := d.gcs.ReadByte()
		if !ok {
			return
		}
		if req, done := d.mspParser.Parse(b); done {
			d.dispatch(req)
		}
	}
}

func (d *Driver) dispatch(req msp.Request) {
	switch req.Type {

	case msp.TypeReceiverSticks:
		s := d.rx.Sticks()
		d.reply(msp.EncodeFloats(req.Type,
			[]float64{s.Throttle, s.Roll, s.Pitch, s.Yaw, s.Aux1, s.Aux2}))

	case msp.TypeAttitude:
		d.reply(msp.EncodeFloats(req.Type,
			[]float64{d.vstate.Phi, d.vstate.Theta, d.vstate.Psi}))

	case msp.TypeSetMotor:
		cmd, err := msp.DecodeSetMotor(req.Payload)
		if err != nil {
			return
		}
		// Motor override is a bench facility: it never reaches the ESC
		// while armed, and bad indexes are dropped.
		if d.arm.IsArmed() {
			return
		}
		if cmd.Index < 1 || int(cmd.Index) > mixer.MotorCount {
			return
		}
		d.motorOverride[cmd.Index-1] = float64(cmd.Percent) / 100
	}
}

func (d *Driver) reply(frame []byte) {
	if _, err := d.gcs.Write(frame); err != nil {
		d.log.Debug("gcs write failed", slog.Any("error", err))
	}
}

// Get returns the most recent core-tick snapshot. It satisfies
// telemetry.Provider.
func (d *Driver) Get() telemetry.Snapshot {
	return d.snapshot
}

// Armed reports whether motor output is currently live.
func (d *Driver) Armed() bool {
	return d.arm.IsArmed()
}

// Package receiver implements the radio-receiver signal-processing
// pipeline: frame acquisition from the link driver, per-channel validation
// with failsafe fallback, arming-mode evaluation, and conversion of stick
// positions into smoothed control demands.
//
// Processing is data-driven (on frame arrival) with a 15 Hz minimum poll
// rate, and runs as a four-step state machine:
//
//	CHECK -> PROCESS -> MODES -> UPDATE -> CHECK
package receiver

import (
	"github.com/flightcore-dev/flightcore/internal/arming"
	"github.com/flightcore-dev/flightcore/internal/device"
	"github.com/flightcore-dev/flightcore/internal/flight"
)

// State is the receiver state-machine position.
type State int

const (
	StateCheck State = iota
	StateProcess
	StateModes
	StateUpdate
)

const (
	// Hard pulse-width validity bounds: anything outside is treated as
	// signal loss for that channel.
	pulseValidMin = 885
	pulseValidMax = 2115

	// Range clamp applied to the four flight axes.
	pulseClampMin = 750
	pulseClampMax = 2250

	// A channel holds its last valid value this long before falling back
	// to its fail value.
	maxInvalidPulseMs = 300

	// Signal is considered lost when no complete frame arrived within this
	// window.
	needSignalMaxDelayUs = 1_000_000 / 10

	// Minimum processing rate when no frames arrive.
	minPollDelayUs = 1_000_000 / 15

	// Rate-scaling parameters for roll/pitch/yaw.
	rcExpo         = 0.0
	rcRate         = 7.0
	rate           = 67.0
	rateLimitDps   = 1998.0
	commandDivider = 500.0

	// Throttle expo parameters.
	throttleMid  = 50.0
	throttleExpo = 0.0

	throttleLookupSize = 12
)

// cmpTimeUs compares wrapping microsecond timestamps: positive when a is
// later than b.
func cmpTimeUs(a, b uint32) int32 {
	return int32(a - b)
}

// Sticks is the raw (validated, unsmoothed) stick state, normalized to
// [-1,+1] around center (throttle included, relative to 1500us). It feeds
// telemetry, not the control loop.
type Sticks struct {
	Throttle float64
	Roll     float64
	Pitch    float64
	Yaw      float64
	Aux1     float64
	Aux2     float64
}

// Receiver is the pipeline state. Single-threaded: Check/Poll run on the
// dynamic receiver task, Demands on the core loop, never concurrently.
type Receiver struct {
	dev device.ReceiverDevice
	dt  float64 // core-loop period in seconds, for smoothing filter gains

	state State

	channelData [flight.ChannelCount]uint16
	raw         [flight.ChannelCount]float64

	// command holds the centered stick commands for roll/pitch/yaw; the
	// throttle command lives in commandThrottle in pulse units.
	command         [3]float64
	commandThrottle float64

	lookupThrottleRC         [throttleLookupSize]int16
	initializedThrottleTable bool

	invalidPulsePeriodMs [flight.ChannelCount]uint32

	signalReceived      bool
	inFailsafeMode      bool
	auxiliaryProcessing bool
	dataProcessing      bool
	gotNewData          bool
	pidReset            bool

	needSignalBefore    uint32
	nextUpdateAtUs      uint32
	lastFrameTimeUs     uint32
	previousFrameTimeUs uint32
	lastRxTimeUs        uint32
	frameTimeDeltaUs    int32
	refreshPeriodUs     uint32
	isRateValid         bool

	smoothing    smoothingFilter
	dataToSmooth flight.Demands
}

// WithFeedforwardCutoffHook registers a callback invoked whenever the
// smoothing auto-trainer derives a new feedforward cutoff frequency; the
// control-loop driver wires it to the rate PID's feedforward filters.
func WithFeedforwardCutoffHook(fn func(cutoffHz, dt float64)) func(*Receiver) {
	return func(r *Receiver) {
		r.smoothing.ffCutoffHook = fn
	}
}

// New returns a receiver pipeline reading frames from dev. dt is the
// core-loop period in seconds; the smoothing filters run at that rate.
func New(dev device.ReceiverDevice, dt float64, options ...func(*Receiver)) *Receiver {
	r := &Receiver{
		dev: dev,
		dt:  dt,
	}
	r.smoothing.init()

	for _, option := range options {
		option(r)
	}

	return r
}

// CurrentState returns the state-machine position, used by the driver to
// decide which arming hook to run after a task step.
func (r *Receiver) CurrentState() State {
	return r.state
}

// HasSignal reports whether receiver signal is currently considered
// present.
func (r *Receiver) HasSignal() bool {
	return r.signalReceived
}

// InFailsafe reports whether the last frame forced failsafe fallback
// values.
func (r *Receiver) InFailsafe() bool {
	return r.inFailsafeMode
}

// ThrottleIsDown reports whether the validated throttle channel is at its
// low position.
func (r *Receiver) ThrottleIsDown() bool {
	return r.raw[flight.ChannelThrottle] < 1050
}

// Aux1IsSet reports whether the arm switch channel is engaged.
func (r *Receiver) Aux1IsSet() bool {
	return r.raw[flight.ChannelAux1] > 1200
}

// GotPidReset reports whether the PID integrators should be held at zero
// (throttle down).
func (r *Receiver) GotPidReset() bool {
	return r.pidReset
}

// Sticks returns the current validated stick positions, normalized around
// center.
func (r *Receiver) Sticks() Sticks {
	norm := func(ch int) float64 {
		return (r.raw[ch] - 1500) / 500
	}
	return Sticks{
		Throttle: norm(flight.ChannelThrottle),
		Roll:     norm(flight.ChannelRoll),
		Pitch:    norm(flight.ChannelPitch),
		Yaw:      norm(flight.ChannelYaw),
		Aux1:     norm(flight.ChannelAux1),
		Aux2:     norm(flight.ChannelAux2),
	}
}

// Check polls the device for a new frame and decides whether the pipeline
// has work to do. It is the receiver task's readiness signal: a true return
// escalates the task to data-driven priority.
func (r *Receiver) Check(usec uint32) bool {
	if r.state != StateCheck {
		return true
	}

	signalReceived := false

	frameStatus := r.dev.DevCheck(r.channelData[:], &r.lastFrameTimeUs)

	if frameStatus&device.FrameComplete != 0 {
		r.inFailsafeMode = frameStatus&device.FrameFailsafe != 0
		frameDropped := frameStatus&device.FrameDropped != 0
		signalReceived = !(r.inFailsafeMode || frameDropped)
		if signalReceived {
			r.needSignalBefore = usec + needSignalMaxDelayUs
		}
	}

	if frameStatus&device.FrameProcessingRequired != 0 {
		r.auxiliaryProcessing = true
	}

	if signalReceived {
		r.signalReceived = true
	} else if cmpTimeUs(usec, r.needSignalBefore) >= 0 {
		r.signalReceived = false
	}

	if signalReceived || cmpTimeUs(usec, r.nextUpdateAtUs) > 0 {
		r.dataProcessing = true
	}

	return r.dataProcessing || r.auxiliaryProcessing
}

// Poll advances the state machine by one step. It is the receiver task
// body, running in the dynamic loop. The MODES and UPDATE steps delegate to
// the arming state machine with the freshly validated channels.
func (r *Receiver) Poll(usec uint32, imuIsLevel, calibrating bool, arm *arming.Arming) {
	r.gotNewData = false

	switch r.state {
	case StateCheck:
		r.state = StateProcess

	case StateProcess:
		if !r.calculateChannels(usec) {
			r.state = StateCheck
			break
		}
		r.pidReset = r.processData(usec)
		r.state = StateModes

	case StateModes:
		arm.UpdateFromChannels(usec, r.raw[:], imuIsLevel, calibrating)
		r.state = StateUpdate

	case StateUpdate:
		r.gotNewData = true
		r.updateCommands()
		r.state = StateCheck
	}
}

// calculateChannels runs the PROCESS step: range clamping and signal-loss
// detection. It returns false when no processing was pending.
func (r *Receiver) calculateChannels(usec uint32) bool {
	if r.auxiliaryProcessing {
		r.auxiliaryProcessing = false
	}

	if !r.dataProcessing {
		return false
	}
	r.dataProcessing = false
	r.nextUpdateAtUs = usec + minPollDelayUs

	r.readChannelsApplyRanges()
	r.detectAndApplySignalLoss(usec)

	return true
}

// processData derives the frame-interval statistics driving the smoothing
// auto-trainer and returns whether the PID integrators should reset.
func (r *Receiver) processData(usec uint32) bool {
	frameAgeUs := cmpTimeUs(usec, r.lastFrameTimeUs)

	deltaUs := cmpTimeUs(r.lastFrameTimeUs, r.previousFrameTimeUs)
	if deltaUs != 0 {
		r.frameTimeDeltaUs = deltaUs
		r.previousFrameTimeUs = r.lastFrameTimeUs
	}
	refreshPeriodUs := r.frameTimeDeltaUs

	if refreshPeriodUs == 0 || cmpTimeUs(usec, r.lastRxTimeUs) <= frameAgeUs {
		// No delta supplied by the protocol: derive one locally.
		refreshPeriodUs = cmpTimeUs(usec, r.lastRxTimeUs)
	}
	r.lastRxTimeUs = usec

	r.isRateValid = refreshPeriodUs >= smoothingRateMinUs && refreshPeriodUs <= smoothingRateMaxUs
	r.refreshPeriodUs = uint32(min(max(refreshPeriodUs, smoothingRateMinUs), smoothingRateMaxUs))

	return r.ThrottleIsDown()
}

// Demands computes the final smoothed demands. It runs on the core loop
// every tick: new frames update the setpoints, and every tick re-applies
// the smoothing filters so the output converges between frames.
func (r *Receiver) Demands(usec uint32) flight.Demands {
	var rawSetpoint [3]float64

	if r.gotNewData {
		rawSetpoint[0] = rawRateSetpoint(r.command[0], commandDivider)
		rawSetpoint[1] = rawRateSetpoint(r.command[1], commandDivider)
		rawSetpoint[2] = rawRateSetpoint(r.command[2], commandDivider)
	}

	smoothed := r.processSmoothingFilter(usec, rawSetpoint)

	demands := flight.Demands{
		Throttle: flight.Constrain(
			(smoothed.Throttle-flight.PulseMin)/(flight.PulseMax-flight.PulseMin), 0, 1),
		Roll:  smoothed.Roll,
		Pitch: smoothed.Pitch,
		Yaw:   smoothed.Yaw,
	}

	r.gotNewData = false

	return demands
}

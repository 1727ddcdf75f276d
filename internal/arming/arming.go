// Package arming implements the safety state machine gating motor output.
// The vehicle arms only while every precondition holds simultaneously;
// any single unsafe flag blocks or immediately reverses arming.
package arming

import (
	"github.com/flightcore-dev/flightcore/internal/device"
	"github.com/flightcore-dev/flightcore/internal/flight"
)

// Throttle at or below this pulse width counts as "stick down".
const throttleDownPulse = 1050

// Aux channel above this pulse width counts as "arm switch engaged".
const auxSetPulse = 1200

// Precondition identifies a single arming precondition, used to key the
// warning blink pattern when arming is blocked.
type Precondition int

const (
	PreconditionNone Precondition = iota
	PreconditionSignal
	PreconditionFailsafe
	PreconditionAngle
	PreconditionGyroCalibration
	PreconditionAccCalibration
	PreconditionSwitch
	PreconditionThrottle
)

// Arming owns the arming flags. It is the only writer; the mixer gate and
// telemetry read it through the accessors.
type Arming struct {
	esc device.ESC
	led device.LED

	warning Warning

	maxArmingAngleRad float64

	armed           bool
	gotFailsafe     bool
	haveSignal      bool
	throttleIsDown  bool
	switchOkay      bool
	angleOkay       bool
	gyroCalibrating bool
	accCalibrating  bool

	// switchWasOffOnce blocks arming until the arm switch has been seen
	// disengaged at least once, so a vehicle powered up with the switch
	// pre-armed cannot spin its motors by surprise. It doubles as the
	// one-shot latch after a failed arm attempt: raising the switch while
	// any precondition fails clears switchOkay until the switch cycles.
	switchWasOffOnce bool
}

// WithMaxArmingAngle overrides the safe-angle bound (degrees, default 25).
func WithMaxArmingAngle(deg float64) func(*Arming) {
	return func(a *Arming) {
		a.maxArmingAngleRad = flight.Deg2Rad(deg)
	}
}

// New returns a disarmed state machine wired to the given ESC and
// indicator.
func New(esc device.ESC, led device.LED, options ...func(*Arming)) *Arming {
	a := &Arming{
		esc:               esc,
		led:               led,
		maxArmingAngleRad: flight.Deg2Rad(25),
		gyroCalibrating:   true,
		accCalibrating:    true,
	}

	for _, option := range options {
		option(a)
	}

	return a
}

// IsArmed reports whether motor output is currently permitted.
func (a *Arming) IsArmed() bool { return a.armed }

// GotFailsafe reports whether a signal-loss failsafe has been latched.
func (a *Arming) GotFailsafe() bool { return a.gotFailsafe }

// HaveSignal reports whether receiver signal is currently present.
func (a *Arming) HaveSignal() bool { return a.haveSignal }

// ThrottleIsDown reports whether the throttle stick is at its low position.
func (a *Arming) ThrottleIsDown() bool { return a.throttleIsDown }

// ReadyToArm reports whether every arming precondition currently holds.
func (a *Arming) ReadyToArm() bool {
	return !a.accCalibrating &&
		a.angleOkay &&
		!a.gotFailsafe &&
		a.haveSignal &&
		!a.gyroCalibrating &&
		a.switchOkay &&
		a.throttleIsDown
}

// BlockedBy returns the first unmet precondition, for the warning
// indicator. Returns PreconditionNone when ready to arm.
func (a *Arming) BlockedBy() Precondition {
	switch {
	case !a.haveSignal:
		return PreconditionSignal
	case a.gotFailsafe:
		return PreconditionFailsafe
	case !a.angleOkay:
		return PreconditionAngle
	case a.gyroCalibrating:
		return PreconditionGyroCalibration
	case a.accCalibrating:
		return PreconditionAccCalibration
	case !a.switchOkay:
		return PreconditionSwitch
	case !a.throttleIsDown:
		return PreconditionThrottle
	}
	return PreconditionNone
}

// Disarm cuts the motors and clears the armed flag, in that order: output
// must be safe before the state claims "disarmed".
func (a *Arming) Disarm() {
	if a.armed {
		a.esc.Stop()
	}
	a.armed = false
}

// AttemptToArm arms when the switch is engaged and every precondition
// holds, and disarms when the switch is released while armed.
func (a *Arming) AttemptToArm(usec uint32, auxIsSet bool) {
	if auxIsSet {
		if a.ReadyToArm() && !a.armed && a.esc.IsReady(usec) {
			a.armed = true
		}
	} else if a.armed {
		a.Disarm()
	}
}

// UpdateFromChannels re-evaluates the switch/throttle preconditions from a
// freshly validated channel frame (the receiver's MODES step) and then
// attempts the arm/disarm transition.
func (a *Arming) UpdateFromChannels(usec uint32, raw []float64, imuIsLevel, calibrating bool) {
	a.throttleIsDown = raw[flight.ChannelThrottle] < throttleDownPulse
	a.angleOkay = imuIsLevel
	a.gyroCalibrating = calibrating

	auxIsSet := raw[flight.ChannelAux1] > auxSetPulse

	if !auxIsSet {
		a.switchWasOffOnce = true
	}

	// Raising the switch while preconditions fail latches switchOkay off;
	// it recovers only when the switch is lowered again.
	if auxIsSet && !a.switchWasOffOnce {
		a.switchOkay = false
	} else if auxIsSet && !a.armed && !a.readyExceptSwitch() {
		a.switchOkay = false
	} else if !auxIsSet {
		a.switchOkay = true
	}

	a.AttemptToArm(usec, auxIsSet)
}

func (a *Arming) readyExceptSwitch() bool {
	return !a.accCalibrating &&
		a.angleOkay &&
		!a.gotFailsafe &&
		a.haveSignal &&
		!a.gyroCalibrating &&
		a.throttleIsDown
}

// UpdateFromReceiver runs on the receiver task's CHECK step: it tracks
// signal presence and disarms immediately when signal is lost while armed.
func (a *Arming) UpdateFromReceiver(usec uint32, throttleIsDown, auxIsSet, haveSignal bool) {
	if a.armed {
		if !haveSignal && a.haveSignal {
			a.gotFailsafe = true
			a.Disarm()
		} else {
			a.led.Set(true)
		}
	} else {
		a.throttleIsDown = throttleIsDown

		if !a.ReadyToArm() {
			a.warning.Blink(a.BlockedBy())
		} else {
			a.warning.Disable()
		}

		a.updateWarning(usec)
	}

	a.haveSignal = haveSignal
}

// UpdateFromIMU refreshes the attitude and calibration preconditions after
// an attitude-task run.
func (a *Arming) UpdateFromIMU(imuIsLevel, gyroCalibrating, accCalibrating bool) {
	a.angleOkay = imuIsLevel
	a.gyroCalibrating = gyroCalibrating
	a.accCalibrating = accCalibrating
}

// MaxArmingAngleRad returns the safe-angle bound used by the attitude task.
func (a *Arming) MaxArmingAngleRad() float64 {
	return a.maxArmingAngleRad
}

// SetHaveSignal force-sets signal presence (used by the failsafe path when
// the receiver marks a frame failsafe without losing frames).
func (a *Arming) SetHaveSignal(have bool) {
	a.haveSignal = have
}

func (a *Arming) updateWarning(usec uint32) {
	on, changed := a.warning.Step(usec)
	if changed {
		a.led.Set(on)
	}
}

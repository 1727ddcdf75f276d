package pid

import (
	"math"

	"github.com/flightcore-dev/flightcore/internal/flight"
)

const (
	defaultAltHoldKp = 0.075
	defaultAltHoldKi = 0.015

	// Throttle band around hover-center within which altitude hold engages.
	altHoldDeadband = 0.2

	altHoldIntegralLimit = 1.0
)

// AltHold holds the altitude captured when the throttle stick enters the
// center deadband, replacing the throttle demand with a hover correction.
// Outside the deadband the pilot's throttle passes through untouched.
type AltHold struct {
	kp, ki float64

	inBand   bool
	targetZ  float64
	integral float64
}

// WithAltHoldGains overrides the altitude-error gains.
func WithAltHoldGains(kp, ki float64) func(*AltHold) {
	return func(c *AltHold) {
		c.kp, c.ki = kp, ki
	}
}

// NewAltHold returns a disengaged altitude-hold controller.
func NewAltHold(options ...func(*AltHold)) *AltHold {
	c := &AltHold{
		kp: defaultAltHoldKp,
		ki: defaultAltHoldKi,
	}
	for _, option := range options {
		option(c)
	}
	return c
}

func (c *AltHold) Step(usec uint32, demands flight.Demands,
	vstate flight.VehicleState, reset bool) flight.Demands {

	if reset {
		c.inBand = false
		c.integral = 0
		return demands
	}

	inBand := math.Abs(demands.Throttle-0.5) < altHoldDeadband

	if inBand && !c.inBand {
		// Capture the hold target on engagement.
		c.targetZ = vstate.Z
		c.integral = 0
	}
	c.inBand = inBand

	if !inBand {
		return demands
	}

	// Z grows downward: sinking below the target raises the error and the
	// throttle with it.
	err := vstate.Z - c.targetZ
	c.integral = flight.Constrain(c.integral+err, -altHoldIntegralLimit, altHoldIntegralLimit)

	demands.Throttle = flight.Constrain(0.5+c.kp*err+c.ki*c.integral, 0, 1)
	return demands
}

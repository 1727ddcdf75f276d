package pid

import "github.com/flightcore-dev/flightcore/internal/flight"

const defaultLevelKp = 0.964090

// Full cyclic stick deflection maps to this attitude target.
const defaultMaxAngleDeg = 45

// Demand magnitude corresponding to full stick deflection, in dps.
const maxDemandDps = 670

// Level rewrites the cyclic demands from rate targets into attitude
// targets: full stick deflection requests the maximum lean angle, and the
// output is the rate demand required to close the angle error. It runs
// before the rate controller.
type Level struct {
	kp          float64
	maxAngleDeg float64
}

// WithLevelGain overrides the angle-error gain.
func WithLevelGain(kp float64) func(*Level) {
	return func(c *Level) {
		c.kp = kp
	}
}

// WithMaxAngle overrides the attitude target at full deflection (degrees).
func WithMaxAngle(deg float64) func(*Level) {
	return func(c *Level) {
		c.maxAngleDeg = deg
	}
}

// NewLevel returns an attitude-angle controller.
func NewLevel(options ...func(*Level)) *Level {
	c := &Level{
		kp:          defaultLevelKp,
		maxAngleDeg: defaultMaxAngleDeg,
	}
	for _, option := range options {
		option(c)
	}
	return c
}

func (c *Level) Step(usec uint32, demands flight.Demands,
	vstate flight.VehicleState, reset bool) flight.Demands {

	demands.Roll = c.stepAxis(demands.Roll, vstate.Phi)
	demands.Pitch = c.stepAxis(demands.Pitch, vstate.Theta)
	return demands
}

func (c *Level) stepAxis(demand, angleRad float64) float64 {
	targetDeg := demand / maxDemandDps * c.maxAngleDeg
	err := targetDeg - flight.Rad2Deg(angleRad)
	return c.kp * err * maxDemandDps / c.maxAngleDeg
}

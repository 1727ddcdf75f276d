package pid

import (
	"math"

	"github.com/flightcore-dev/flightcore/internal/filter"
	"github.com/flightcore-dev/flightcore/internal/flight"
)

// Default cyclic gains.
const (
	defaultRateKp = 1.441305
	defaultRateKi = 48.8762
	defaultRateKd = 0.021160
	defaultRateKf = 0.0165048
)

// Default yaw gains. Yaw runs P+I only: the yaw axis has no meaningful
// derivative signal on a multirotor.
const (
	defaultYawKp = 3.823176
	defaultYawKi = 31.652130
)

const (
	// PID output sum is scaled down into mixer units.
	demandScale = 1000.0

	// Integral accumulator bound (dps*s), applied before Ki.
	defaultIntegralLimit = 5.0

	// Measured rate beyond this bound is treated as a sensor glitch: the
	// axis drops its integral and derivative memory.
	defaultSanityRateDps = 1998.0

	// D-term low-pass cutoff.
	dtermCutoffHz = 100
)

type rateAxis struct {
	integral        float64
	prevMeasurement float64
	prevSetpoint    float64
	dtermFilter     *filter.Pt1
	ffFilter        *filter.Pt1
}

// Rate is the innermost controller: angular-rate error to mixer demand,
// with an integral windup clamp, derivative on measurement through a PT1
// stage, and a low-passed setpoint-derivative feedforward term.
type Rate struct {
	dt float64

	kp, ki, kd, kf float64
	yawKp, yawKi   float64

	integralLimit float64
	sanityRateDps float64

	roll, pitch rateAxis
	yaw         rateAxis
}

// WithCyclicGains overrides the roll/pitch gains.
func WithCyclicGains(kp, ki, kd, kf float64) func(*Rate) {
	return func(c *Rate) {
		c.kp, c.ki, c.kd, c.kf = kp, ki, kd, kf
	}
}

// WithYawGains overrides the yaw gains.
func WithYawGains(kp, ki float64) func(*Rate) {
	return func(c *Rate) {
		c.yawKp, c.yawKi = kp, ki
	}
}

// WithIntegralLimit overrides the windup clamp.
func WithIntegralLimit(limit float64) func(*Rate) {
	return func(c *Rate) {
		c.integralLimit = limit
	}
}

// NewRate returns a rate controller stepping at the core-loop period dt.
func NewRate(dt float64, options ...func(*Rate)) *Rate {
	c := &Rate{
		dt:            dt,
		kp:            defaultRateKp,
		ki:            defaultRateKi,
		kd:            defaultRateKd,
		kf:            defaultRateKf,
		yawKp:         defaultYawKp,
		yawKi:         defaultYawKi,
		integralLimit: defaultIntegralLimit,
		sanityRateDps: defaultSanityRateDps,
	}

	for _, option := range options {
		option(c)
	}

	for _, a := range []*rateAxis{&c.roll, &c.pitch} {
		a.dtermFilter = filter.NewPt1(dtermCutoffHz, dt)
		a.ffFilter = filter.NewPt1(smoothedFeedforwardInitialHz, dt)
	}

	return c
}

// Cutoff applied to the feedforward setpoint derivative until the receiver
// smoothing trainer supplies a measured one.
const smoothedFeedforwardInitialHz = 100

// SetFeedforwardCutoff retunes the feedforward low-pass stages. The
// receiver's smoothing auto-trainer calls this whenever it derives a new
// cutoff from the measured link rate.
func (c *Rate) SetFeedforwardCutoff(cutoffHz, dt float64) {
	c.roll.ffFilter.SetCutoff(cutoffHz, dt)
	c.pitch.ffFilter.SetCutoff(cutoffHz, dt)
}

func (c *Rate) Step(usec uint32, demands flight.Demands,
	vstate flight.VehicleState, reset bool) flight.Demands {

	demands.Roll = c.stepCyclic(&c.roll, demands.Roll, vstate.DPhi, reset)
	demands.Pitch = c.stepCyclic(&c.pitch, demands.Pitch, vstate.DTheta, reset)
	demands.Yaw = c.stepYaw(demands.Yaw, vstate.DPsi, reset)
	return demands
}

func (c *Rate) stepCyclic(a *rateAxis, setpoint, measured float64, reset bool) float64 {
	if reset || math.Abs(measured) > c.sanityRateDps {
		a.integral = 0
		a.prevMeasurement = measured
		a.prevSetpoint = setpoint
		a.dtermFilter.Reset()
	}

	err := setpoint - measured

	a.integral = flight.Constrain(a.integral+err*c.dt, -c.integralLimit, c.integralLimit)

	// Derivative on measurement, not on error: a setpoint step must not
	// spike the D term.
	derivative := a.dtermFilter.Apply((a.prevMeasurement - measured) / c.dt)
	a.prevMeasurement = measured

	feedforward := a.ffFilter.Apply((setpoint - a.prevSetpoint) / c.dt)
	a.prevSetpoint = setpoint

	return (c.kp*err + c.ki*a.integral + c.kd*derivative + c.kf*feedforward) / demandScale
}

func (c *Rate) stepYaw(setpoint, measured float64, reset bool) float64 {
	a := &c.yaw

	if reset || math.Abs(measured) > c.sanityRateDps {
		a.integral = 0
	}

	err := setpoint - measured
	a.integral = flight.Constrain(a.integral+err*c.dt, -c.integralLimit, c.integralLimit)

	return (c.yawKp*err + c.yawKi*a.integral) / demandScale
}

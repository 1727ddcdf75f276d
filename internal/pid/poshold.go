package pid

import (
	"math"

	"github.com/flightcore-dev/flightcore/internal/flight"
)

const (
	defaultPosHoldKp = 25.0

	// Cyclic demand magnitude (dps) below which the sticks count as
	// centered and position hold takes over the axis.
	posHoldStickDeadbandDps = 20.0
)

// PosHold damps horizontal drift while the cyclic sticks are centered by
// turning the body-frame velocity into an opposing rate demand. It must run
// first in the controller list: it needs the receiver's cyclic demands
// before any other stage rewrites them.
type PosHold struct {
	kp float64
}

// WithPosHoldGain overrides the velocity-opposition gain.
func WithPosHoldGain(kp float64) func(*PosHold) {
	return func(c *PosHold) {
		c.kp = kp
	}
}

// NewPosHold returns a position-hold controller.
func NewPosHold(options ...func(*PosHold)) *PosHold {
	c := &PosHold{kp: defaultPosHoldKp}
	for _, option := range options {
		option(c)
	}
	return c
}

func (c *PosHold) Step(usec uint32, demands flight.Demands,
	vstate flight.VehicleState, reset bool) flight.Demands {

	if reset {
		return demands
	}

	// Rightward drift is cancelled by rolling left, forward drift by
	// pitching up.
	if math.Abs(demands.Roll) < posHoldStickDeadbandDps {
		demands.Roll = -c.kp * vstate.DY
	}
	if math.Abs(demands.Pitch) < posHoldStickDeadbandDps {
		demands.Pitch = c.kp * vstate.DX
	}
	return demands
}

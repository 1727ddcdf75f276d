// Package pid implements the controller variants of the demand pipeline.
// Controllers run in a fixed order on every core tick, each transforming
// the demands produced by its predecessor against the current vehicle
// state. Position-hold runs before the rate and level controllers because
// it needs the untouched receiver cyclic demands.
package pid

import "github.com/flightcore-dev/flightcore/internal/flight"

// Controller is one stage of the demand pipeline.
type Controller interface {
	// Step consumes the demands produced by the previous stage and returns
	// the corrected demands. reset requests that integral and derivative
	// memory be dropped (throttle down).
	Step(usec uint32, demands flight.Demands, vstate flight.VehicleState, reset bool) flight.Demands
}

// Run applies the controller list in order.
func Run(controllers []Controller, usec uint32, demands flight.Demands,
	vstate flight.VehicleState, reset bool) flight.Demands {

	for _, c := range controllers {
		demands = c.Step(usec, demands, vstate, reset)
	}
	return demands
}

// Package mixer converts corrected demands into per-motor values in [0,1].
package mixer

import "github.com/flightcore-dev/flightcore/internal/flight"

// MotorCount is fixed: the mix matrices below are quadrotor geometries.
const MotorCount = 4

// axisMix is one motor's contribution signs for roll, pitch and yaw.
type axisMix struct {
	roll, pitch, yaw float64
}

// Mixer applies a signed mix matrix and clips each motor into [0,1].
type Mixer struct {
	mix [MotorCount]axisMix
}

// NewQuadX returns the mixer for an X-frame quad with motors ordered
// right-rear, right-front, left-rear, left-front.
func NewQuadX() *Mixer {
	return &Mixer{mix: [MotorCount]axisMix{
		{roll: -1, pitch: +1, yaw: -1}, // right rear
		{roll: -1, pitch: -1, yaw: +1}, // right front
		{roll: +1, pitch: +1, yaw: +1}, // left rear
		{roll: +1, pitch: -1, yaw: -1}, // left front
	}}
}

// NewQuadPlus returns the mixer for a plus-frame quad with motors ordered
// rear, front, right, left.
func NewQuadPlus() *Mixer {
	return &Mixer{mix: [MotorCount]axisMix{
		{roll: 0, pitch: +1, yaw: -1}, // rear
		{roll: 0, pitch: -1, yaw: -1}, // front
		{roll: -1, pitch: 0, yaw: +1}, // right
		{roll: +1, pitch: 0, yaw: +1}, // left
	}}
}

// Mix produces the motor values for the given demands.
func (m *Mixer) Mix(demands flight.Demands) [MotorCount]float64 {
	var motors [MotorCount]float64
	for i, mix := range m.mix {
		v := demands.Throttle +
			mix.roll*demands.Roll +
			mix.pitch*demands.Pitch +
			mix.yaw*demands.Yaw
		motors[i] = flight.Constrain(v, 0, 1)
	}
	return motors
}

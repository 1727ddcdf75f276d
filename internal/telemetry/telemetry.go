// Package telemetry defines the control-core state snapshot consumed by
// flight recording and ground-control links.
package telemetry

import "github.com/flightcore-dev/flightcore/internal/mixer"

type Provider interface {
	Get() Snapshot
}

// Snapshot is one observation of the control core, taken between core
// ticks so every field is from the same loop iteration.
type Snapshot struct {
	TimestampUs uint32 // core-loop clock at capture

	Armed    bool
	Failsafe bool

	// Post-PID demands as handed to the mixer.
	Throttle float64
	Roll     float64
	Pitch    float64
	Yaw      float64

	// Attitude in radians.
	Phi   float64
	Theta float64
	Psi   float64

	Motors [mixer.MotorCount]float64
}

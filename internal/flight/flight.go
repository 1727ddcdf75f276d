// Package flight holds the shared value types of the control core: stick
// demands, vehicle state and the channel conventions used between the
// receiver, PID stack and mixer.
package flight

import "math"

// Channel indices follow the AETR convention of the receiver frame.
const (
	ChannelRoll = iota
	ChannelPitch
	ChannelYaw
	ChannelThrottle
	ChannelAux1
	ChannelAux2
)

// ChannelCount is the number of channels carried in a receiver frame.
const ChannelCount = 18

// Pulse width limits in microseconds.
const (
	PulseMin = 1000 // nominal low stick
	PulseMid = 1500 // stick center
	PulseMax = 2000 // nominal high stick
)

// Demands is the normalized control intent: throttle in [0,1] once scaled
// for the mixer, roll/pitch/yaw as signed rates. Each PID controller in the
// stack consumes and produces a Demands value.
type Demands struct {
	Throttle float64
	Roll     float64
	Pitch    float64
	Yaw      float64
}

// VehicleState is the estimated state of the vehicle. Attitude angles are in
// radians, angular rates in degrees per second (matching the gyro), position
// axes in meters. It is owned by the control-loop driver: sensor ingestion
// writes the rates once per core tick, the attitude task writes the angles.
type VehicleState struct {
	X, DX         float64 // forward position / velocity
	Y, DY         float64 // rightward position / velocity
	Z, DZ         float64 // downward position / velocity
	Phi, DPhi     float64 // roll angle / rate
	Theta, DTheta float64 // pitch angle / rate
	Psi, DPsi     float64 // yaw angle / rate
}

// EulerFromQuaternion converts a unit quaternion to roll (phi), pitch
// (theta) and yaw (psi) angles in radians. Psi is mapped from [-pi,+pi]
// to [0,2*pi].
func EulerFromQuaternion(qw, qx, qy, qz float64) (phi, theta, psi float64) {
	phi = math.Atan2(2*(qw*qx+qy*qz), qw*qw-qx*qx-qy*qy+qz*qz)
	theta = math.Asin(2 * (qx*qz - qw*qy))
	psi = math.Atan2(2*(qx*qy+qw*qz), qw*qw+qx*qx-qy*qy-qz*qz)

	if psi < 0 {
		psi += 2 * math.Pi
	}
	return phi, theta, psi
}

// Constrain clamps v to [lo,hi].
func Constrain(v, lo, hi float64) float64 {
	return math.Min(hi, math.Max(lo, v))
}

// Deg2Rad converts degrees to radians.
func Deg2Rad(deg float64) float64 {
	return deg * math.Pi / 180
}

// Rad2Deg converts radians to degrees.
func Rad2Deg(rad float64) float64 {
	return rad * 180 / math.Pi
}

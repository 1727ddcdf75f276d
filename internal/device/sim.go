package device

import (
	"math"
	"sync/atomic"
)

// SimClock is a deterministic cycle counter for tests and simulation. Every
// CycleCounter read advances the counter by a fixed step, so busy-wait loops
// polling it always terminate.
type SimClock struct {
	clockSpeedHz  uint32
	cyclesPerRead uint32
	cycles        uint64
}

// NewSimClock returns a clock running at clockSpeedHz whose counter advances
// by cyclesPerRead on every CycleCounter call.
func NewSimClock(clockSpeedHz, cyclesPerRead uint32) *SimClock {
	return &SimClock{clockSpeedHz: clockSpeedHz, cyclesPerRead: cyclesPerRead}
}

func (c *SimClock) CycleCounter() uint32 {
	c.cycles += uint64(c.cyclesPerRead)
	return uint32(c.cycles)
}

func (c *SimClock) Micros() uint32 {
	return uint32(c.cycles / uint64(c.clockSpeedHz/1_000_000))
}

func (c *SimClock) ClockSpeed() uint32 {
	return c.clockSpeedHz
}

// AdvanceMicros moves the clock forward by the given number of
// microseconds.
func (c *SimClock) AdvanceMicros(us uint32) {
	c.cycles += uint64(us) * uint64(c.clockSpeedHz/1_000_000)
}

// SimIMU is a scripted IMU. The simulation harness delivers gyro samples
// through Interrupt, which models the hardware data-ready interrupt and may
// be called from a different goroutine than the control loop; the shared
// counters cross through atomics.
type SimIMU struct {
	interruptCount  atomic.Uint32
	lastInterrupt   atomic.Uint32 // cycle count at last interrupt
	sampleReady     atomic.Bool
	gyroCalibCycles atomic.Int32

	mu struct {
		x, y, z    float64
		qw, qx, qy float64
		qz         float64
	}

	accCalibrating bool
}

// NewSimIMU returns an IMU that starts level with zero rates and finishes
// calibration after calibSamples gyro interrupts.
func NewSimIMU(calibSamples int) *SimIMU {
	imu := &SimIMU{}
	imu.gyroCalibCycles.Store(int32(calibSamples))
	imu.mu.qw = 1
	return imu
}

// Interrupt delivers one gyro sample, as the data-ready ISR would.
func (s *SimIMU) Interrupt(nowCycles uint32, x, y, z float64) {
	s.mu.x, s.mu.y, s.mu.z = x, y, z
	s.lastInterrupt.Store(nowCycles)
	s.interruptCount.Add(1)
	s.sampleReady.Store(true)
	if n := s.gyroCalibCycles.Load(); n > 0 {
		s.gyroCalibCycles.Store(n - 1)
	}
}

// SetQuaternion sets the orientation reported to the attitude task.
func (s *SimIMU) SetQuaternion(w, x, y, z float64) {
	s.mu.qw, s.mu.qx, s.mu.qy, s.mu.qz = w, x, y, z
}

// SetLevelAngles is a convenience that sets the orientation from roll and
// pitch angles in radians, with zero yaw.
func (s *SimIMU) SetLevelAngles(phi, theta float64) {
	cr, sr := math.Cos(phi/2), math.Sin(phi/2)
	cp, sp := math.Cos(theta/2), math.Sin(theta/2)
	s.SetQuaternion(cr*cp, sr*cp, cr*sp, -sr*sp)
}

// SetAccCalibrating overrides the accelerometer calibration flag.
func (s *SimIMU) SetAccCalibrating(v bool) {
	s.accCalibrating = v
}

func (s *SimIMU) GyroIsReady() bool {
	return s.sampleReady.Swap(false)
}

func (s *SimIMU) ReadGyroDps() (x, y, z float64) {
	return s.mu.x, s.mu.y, s.mu.z
}

func (s *SimIMU) GyroInterruptCount() uint32 {
	return s.interruptCount.Load()
}

func (s *SimIMU) GyroSkew(nextTargetCycles uint32, desiredPeriodCycles int32) int32 {
	if desiredPeriodCycles <= 0 {
		return 0
	}
	skew := int32(s.lastInterrupt.Load()-nextTargetCycles) % desiredPeriodCycles
	if skew > desiredPeriodCycles/2 {
		skew -= desiredPeriodCycles
	}
	return skew
}

func (s *SimIMU) Quaternion() (w, x, y, z float64) {
	return s.mu.qw, s.mu.qx, s.mu.qy, s.mu.qz
}

func (s *SimIMU) GyroIsCalibrating() bool {
	return s.gyroCalibCycles.Load() > 0
}

func (s *SimIMU) AccIsCalibrating() bool {
	return s.accCalibrating
}

// SimESC records motor writes for inspection.
type SimESC struct {
	readyAtUs uint32

	// Last holds the most recent write, one value per motor.
	Last []float64

	// Stopped counts Stop calls.
	Stopped int

	// Writes counts Write calls.
	Writes int
}

// NewSimESC returns an ESC that reports ready once nowUs reaches readyAtUs.
func NewSimESC(readyAtUs uint32) *SimESC {
	return &SimESC{readyAtUs: readyAtUs}
}

func (e *SimESC) Write(values []float64) {
	if len(e.Last) != len(values) {
		e.Last = make([]float64, len(values))
	}
	copy(e.Last, values)
	e.Writes++
}

func (e *SimESC) Stop() {
	e.Stopped++
	for i := range e.Last {
		e.Last[i] = 0
	}
}

func (e *SimESC) IsReady(nowUs uint32) bool {
	return nowUs >= e.readyAtUs
}

// SimLED records the indicator state.
type SimLED struct {
	On      bool
	Toggles int
}

func (l *SimLED) Set(on bool) {
	if on != l.On {
		l.Toggles++
	}
	l.On = on
}

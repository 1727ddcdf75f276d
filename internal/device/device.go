// Package device defines the capability interfaces the control core depends
// on: the cycle/microsecond clock, the IMU, the ESC bank and the radio
// receiver device. The core is wired against these interfaces only, so the
// whole control loop runs unmodified against hardware drivers or against the
// simulated implementations in this package.
package device

// FrameStatus is the bit set reported by a receiver device for one frame
// poll.
type FrameStatus uint8

const (
	FramePending  FrameStatus = 0
	FrameComplete FrameStatus = 1 << iota
	FrameFailsafe
	FrameProcessingRequired
	FrameDropped
)

// Clock provides the free-running cycle counter and microsecond timer the
// scheduler runs against. Both counters wrap; consumers compare them with
// signed 32-bit arithmetic.
type Clock interface {
	// CycleCounter returns the current CPU cycle count.
	CycleCounter() uint32

	// Micros returns the current time in microseconds.
	Micros() uint32

	// ClockSpeed returns the counter frequency in Hz.
	ClockSpeed() uint32
}

// IMU is the gyro/attitude source consumed by the core loop and the
// attitude task.
//
// GyroInterruptCount is written from interrupt context and read from the
// main loop; implementations must make it an atomic load.
type IMU interface {
	// GyroIsReady reports whether a fresh gyro sample is available.
	GyroIsReady() bool

	// ReadGyroDps returns the latest angular rates in degrees per second.
	ReadGyroDps() (x, y, z float64)

	// GyroInterruptCount returns the number of gyro data-ready interrupts
	// since startup.
	GyroInterruptCount() uint32

	// GyroSkew returns the signed cycle offset between the most recent gyro
	// interrupt and the scheduler's next target cycle, folded into
	// [-period/2, +period/2].
	GyroSkew(nextTargetCycles uint32, desiredPeriodCycles int32) int32

	// Quaternion returns the current orientation estimate.
	Quaternion() (w, x, y, z float64)

	// GyroIsCalibrating reports whether gyro bias calibration is still
	// running. Arming is blocked while true.
	GyroIsCalibrating() bool

	// AccIsCalibrating reports whether accelerometer calibration is still
	// running. Arming is blocked while true.
	AccIsCalibrating() bool
}

// ESC is the motor output interface. Write receives one normalized [0,1]
// value per motor each core tick.
type ESC interface {
	Write(values []float64)

	// Stop cuts all motors immediately. Called synchronously on disarm,
	// before the armed flag is cleared.
	Stop()

	// IsReady reports whether the ESC protocol is initialized and accepting
	// arming at the given time.
	IsReady(nowUs uint32) bool
}

// ReceiverDevice is the radio-link driver (SBUS, PPM, ...) behind the
// receiver pipeline.
type ReceiverDevice interface {
	// DevCheck polls the device for a new frame. On a complete frame it
	// fills chanData with raw channel values, stores the frame time and
	// returns the frame status bits.
	DevCheck(chanData []uint16, frameTimeUs *uint32) FrameStatus

	// Convert translates one raw channel value to a pulse width in
	// microseconds.
	Convert(chanData []uint16, chanID int) float64
}

// LED is the arming/warning indicator.
type LED interface {
	Set(on bool)
}

// NoopESC is the fallback motor device used when the configured motor
// protocol is unsupported: it accepts writes and drops them. IsReady always
// reports false so the vehicle can never arm against it.
type NoopESC struct{}

func (NoopESC) Write([]float64)     {}
func (NoopESC) Stop()               {}
func (NoopESC) IsReady(uint32) bool { return false }

// NoopLED is an indicator sink for boards without a status LED.
type NoopLED struct{}

func (NoopLED) Set(bool) {}

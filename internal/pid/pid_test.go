package pid

import (
	"math"
	"testing"

	"github.com/flightcore-dev/flightcore/internal/flight"
)

const testDt = 1.0 / 2000

func TestRateZeroErrorZeroOutput(t *testing.T) {
	c := NewRate(testDt)

	out := c.Step(0, flight.Demands{}, flight.VehicleState{}, false)
	if out.Roll != 0 || out.Pitch != 0 || out.Yaw != 0 {
		t.Errorf("nonzero output with zero error: %+v", out)
	}
}

func TestRateProportionalSign(t *testing.T) {
	c := NewRate(testDt)

	// Demanding a positive roll rate while the vehicle is not rotating
	// must command positive roll.
	out := c.Step(0, flight.Demands{Roll: 100}, flight.VehicleState{}, false)
	if out.Roll <= 0 {
		t.Errorf("roll output %v, want positive", out.Roll)
	}

	// A vehicle rotating faster than demanded must be commanded back.
	c = NewRate(testDt)
	out = c.Step(0, flight.Demands{}, flight.VehicleState{DPhi: 100}, false)
	if out.Roll >= 0 {
		t.Errorf("roll output %v, want negative", out.Roll)
	}
}

func TestRateIntegralAccumulatesAndClamps(t *testing.T) {
	c := NewRate(testDt, WithCyclicGains(0, 1, 0, 0), WithIntegralLimit(0.01))

	demands := flight.Demands{Roll: 100}
	var prev float64
	grew := false
	for i := 0; i < 1000; i++ {
		out := c.Step(0, demands, flight.VehicleState{}, false)
		if out.Roll > prev {
			grew = true
		}
		prev = out.Roll
	}
	if !grew {
		t.Fatal("integral term never accumulated")
	}

	// Constant error of 100 dps at 2kHz saturates a 0.01 limit within
	// 1000 ticks; output is Ki * limit / demandScale.
	want := 0.01 / demandScale
	if math.Abs(prev-want) > 1e-12 {
		t.Errorf("integral output %v, want clamped at %v", prev, want)
	}
}

func TestRateDerivativeOnMeasurementNotError(t *testing.T) {
	// Pure D controller: a setpoint step must produce no output.
	c := NewRate(testDt, WithCyclicGains(0, 0, 1, 0))

	c.Step(0, flight.Demands{}, flight.VehicleState{}, false)
	out := c.Step(0, flight.Demands{Roll: 500}, flight.VehicleState{}, false)
	if out.Roll != 0 {
		t.Errorf("setpoint step produced D output %v", out.Roll)
	}

	// A measurement step must.
	c = NewRate(testDt, WithCyclicGains(0, 0, 1, 0))
	c.Step(0, flight.Demands{}, flight.VehicleState{}, false)
	out = c.Step(0, flight.Demands{}, flight.VehicleState{DPhi: 100}, false)
	if out.Roll >= 0 {
		t.Errorf("rising measurement produced D output %v, want negative", out.Roll)
	}
}

func TestRateFeedforwardFollowsSetpointChange(t *testing.T) {
	c := NewRate(testDt, WithCyclicGains(0, 0, 0, 1))

	c.Step(0, flight.Demands{}, flight.VehicleState{}, false)
	out := c.Step(0, flight.Demands{Roll: 100}, flight.VehicleState{}, false)
	if out.Roll <= 0 {
		t.Errorf("feedforward output %v on setpoint rise, want positive", out.Roll)
	}

	// Steady setpoint: feedforward decays back toward zero.
	var last float64
	for i := 0; i < 100; i++ {
		last = c.Step(0, flight.Demands{Roll: 100}, flight.VehicleState{}, false).Roll
	}
	if math.Abs(last) >= math.Abs(out.Roll) {
		t.Errorf("feedforward did not decay: first %v, later %v", out.Roll, last)
	}
}

func TestRateResetDropsIntegral(t *testing.T) {
	c := NewRate(testDt, WithCyclicGains(0, 1, 0, 0))

	for i := 0; i < 100; i++ {
		c.Step(0, flight.Demands{Roll: 100}, flight.VehicleState{}, false)
	}
	out := c.Step(0, flight.Demands{}, flight.VehicleState{}, true)
	if out.Roll != 0 {
		t.Errorf("integral survived reset: %v", out.Roll)
	}
}

func TestRateSanityBoundDropsMemory(t *testing.T) {
	c := NewRate(testDt, WithCyclicGains(0, 1, 0, 0))

	for i := 0; i < 100; i++ {
		c.Step(0, flight.Demands{Roll: 100}, flight.VehicleState{}, false)
	}

	// A glitched gyro sample beyond the sanity bound restarts the axis.
	out := c.Step(0, flight.Demands{}, flight.VehicleState{DPhi: 5000}, false)

	// The glitch tick itself contributes one fresh error sample; the
	// accumulated history must be gone.
	fresh := NewRate(testDt, WithCyclicGains(0, 1, 0, 0))
	want := fresh.Step(0, flight.Demands{}, flight.VehicleState{DPhi: 5000}, false)
	if out.Roll != want.Roll {
		t.Errorf("integral survived sanity reset: %v, want %v", out.Roll, want.Roll)
	}
}

func TestYawIsProportionalIntegral(t *testing.T) {
	c := NewRate(testDt, WithYawGains(1, 0), WithCyclicGains(0, 0, 0, 0))

	out := c.Step(0, flight.Demands{Yaw: 200}, flight.VehicleState{}, false)
	if got, want := out.Yaw, 200.0/demandScale; got != want {
		t.Errorf("yaw P output %v, want %v", got, want)
	}
}

func TestLevelConvertsAngleErrorToRateDemand(t *testing.T) {
	c := NewLevel(WithLevelGain(1))

	// Level vehicle, centered sticks: nothing to correct.
	out := c.Step(0, flight.Demands{}, flight.VehicleState{}, false)
	if out.Roll != 0 {
		t.Errorf("roll demand %v for level vehicle, want 0", out.Roll)
	}

	// Rolled right with centered sticks: demand a leftward rate.
	out = c.Step(0, flight.Demands{}, flight.VehicleState{Phi: flight.Deg2Rad(20)}, false)
	if out.Roll >= 0 {
		t.Errorf("roll demand %v for right lean, want negative", out.Roll)
	}

	// Throttle and yaw pass through.
	out = c.Step(0, flight.Demands{Throttle: 0.7, Yaw: 50}, flight.VehicleState{}, false)
	if out.Throttle != 0.7 || out.Yaw != 50 {
		t.Errorf("throttle/yaw modified by level controller: %+v", out)
	}
}

func TestAltHoldEngagesInsideDeadband(t *testing.T) {
	c := NewAltHold()

	// Climbing demand: passes through.
	out := c.Step(0, flight.Demands{Throttle: 0.9}, flight.VehicleState{Z: -5}, false)
	if out.Throttle != 0.9 {
		t.Errorf("throttle rewritten outside deadband: %v", out.Throttle)
	}

	// Stick to center at 5m: target captured, hover output.
	out = c.Step(0, flight.Demands{Throttle: 0.5}, flight.VehicleState{Z: -5}, false)
	if out.Throttle != 0.5 {
		t.Errorf("hold output %v at the captured target, want 0.5", out.Throttle)
	}

	// Vehicle sinks below the target (Z grows downward): more throttle.
	out = c.Step(0, flight.Demands{Throttle: 0.5}, flight.VehicleState{Z: -4}, false)
	if out.Throttle <= 0.5 {
		t.Errorf("hold output %v while sinking, want above hover", out.Throttle)
	}
}

func TestAltHoldResetDisengages(t *testing.T) {
	c := NewAltHold()
	c.Step(0, flight.Demands{Throttle: 0.5}, flight.VehicleState{Z: -5}, false)

	out := c.Step(0, flight.Demands{Throttle: 0.5}, flight.VehicleState{Z: -4}, true)
	if out.Throttle != 0.5 {
		t.Errorf("reset did not disengage hold: %v", out.Throttle)
	}
	if c.inBand || c.integral != 0 {
		t.Error("hold state survived reset")
	}
}

func TestPosHoldOnlyActsOnCenteredSticks(t *testing.T) {
	c := NewPosHold()
	drifting := flight.VehicleState{DX: 0.5, DY: 0.5}

	// Pilot input wins.
	out := c.Step(0, flight.Demands{Roll: 200, Pitch: -200}, drifting, false)
	if out.Roll != 200 || out.Pitch != -200 {
		t.Errorf("pilot demands rewritten: %+v", out)
	}

	// Centered sticks: oppose the drift.
	out = c.Step(0, flight.Demands{}, drifting, false)
	if out.Roll >= 0 {
		t.Errorf("roll demand %v for rightward drift, want negative", out.Roll)
	}
	if out.Pitch <= 0 {
		t.Errorf("pitch demand %v for forward drift, want positive", out.Pitch)
	}
}

func TestRunAppliesControllersInOrder(t *testing.T) {
	// Position hold first, then level, then rate: with centered sticks and
	// pure rightward drift the pipeline must end in a negative roll motor
	// demand.
	controllers := []Controller{
		NewPosHold(),
		NewLevel(),
		NewRate(testDt),
	}

	out := Run(controllers, 0, flight.Demands{Throttle: 0.5},
		flight.VehicleState{DY: 1}, false)
	if out.Roll >= 0 {
		t.Errorf("pipeline roll output %v for rightward drift, want negative", out.Roll)
	}
	if out.Throttle != 0.5 {
		t.Errorf("throttle %v, want untouched 0.5", out.Throttle)
	}
}

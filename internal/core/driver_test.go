package core

import (
	"bytes"
	"math"
	"testing"

	"github.com/flightcore-dev/flightcore/internal/device"
	"github.com/flightcore-dev/flightcore/internal/flight"
	"github.com/flightcore-dev/flightcore/internal/msp"
)

// fakeLink is an in-memory GCS byte link.
type fakeLink struct {
	in  []byte
	out bytes.Buffer
}

func (l *fakeLink) ReadByte() (byte, bool) {
	if len(l.in) == 0 {
		return 0, false
	}
	b := l.in[0]
	l.in = l.in[1:]
	return b, true
}

func (l *fakeLink) Write(p []byte) (int, error) {
	return l.out.Write(p)
}

func (l *fakeLink) send(msgType byte, payload ...byte) {
	size := byte(len(payload))
	crc := size ^ msgType
	for _, b := range payload {
		crc ^= b
	}
	l.in = append(l.in, '$', 'M', '<', size, msgType)
	l.in = append(l.in, payload...)
	l.in = append(l.in, crc)
}

// rig drives a Driver against the simulated devices: gyro interrupts at
// 2kHz and receiver frames at 100Hz of simulated time.
type rig struct {
	clock *device.SimClock
	imu   *device.SimIMU
	esc   *device.SimESC
	rxDev *device.SimReceiver
	led   *device.SimLED
	link  *fakeLink
	drv   *Driver

	// channels, when set, is pushed as a complete frame every 10ms.
	channels []uint16

	nextGyroUs  uint32
	nextFrameUs uint32
}

func newRig(options ...func(*Driver)) *rig {
	r := &rig{
		clock: device.NewSimClock(1_000_000, 25),
		imu:   device.NewSimIMU(0),
		esc:   device.NewSimESC(0),
		rxDev: device.NewSimReceiver(flight.ChannelCount),
		led:   &device.SimLED{},
		link:  &fakeLink{},
	}

	options = append([]func(*Driver){WithLED(r.led), WithGCSLink(r.link)}, options...)
	r.drv = New(r.clock, r.imu, r.esc, r.rxDev, options...)
	return r
}

// setChannels scripts the radio: sticks centered, given throttle and arm
// switch position.
func (r *rig) setChannels(throttle uint16, armSwitch bool) {
	ch := make([]uint16, flight.ChannelCount)
	for i := range ch {
		ch[i] = 1500
	}
	ch[flight.ChannelThrottle] = throttle
	if armSwitch {
		ch[flight.ChannelAux1] = 1800
	} else {
		ch[flight.ChannelAux1] = 1000
	}
	r.channels = ch
}

func (r *rig) run(durationUs uint32) {
	deadline := r.clock.Micros() + durationUs

	for int32(r.clock.Micros()-deadline) < 0 {
		now := r.clock.Micros()

		if int32(now-r.nextGyroUs) >= 0 {
			r.imu.Interrupt(r.clock.CycleCounter(), 0, 0, 0)
			r.nextGyroUs = now + 500
		}
		if r.channels != nil && int32(now-r.nextFrameUs) >= 0 {
			r.rxDev.PushFrame(now, device.FrameComplete, r.channels...)
			r.nextFrameUs = now + 10_000
		}

		r.drv.Step()
	}
}

func TestBootFlashBlinksIndicator(t *testing.T) {
	r := newRig()
	r.drv.Begin()

	if r.led.Toggles < 10 {
		t.Errorf("boot flash toggled the LED %d times, want at least 10", r.led.Toggles)
	}
	if r.led.On {
		t.Error("LED left on after boot flash")
	}
}

func TestArmDisarmScenario(t *testing.T) {
	r := newRig()

	// Switch low, throttle down: preconditions settle but nothing arms.
	r.setChannels(1000, false)
	r.run(300_000)
	if r.drv.Armed() {
		t.Fatal("armed without the arm switch")
	}

	// Switch up: the vehicle arms within a few receiver frames.
	r.setChannels(1000, true)
	r.run(200_000)
	if !r.drv.Armed() {
		t.Fatal("did not arm with all preconditions met")
	}
	if !r.drv.Get().Armed {
		t.Error("telemetry snapshot does not report armed")
	}

	// Switch back down: disarm, motors stopped.
	r.setChannels(1000, false)
	r.run(200_000)
	if r.drv.Armed() {
		t.Fatal("still armed after the switch dropped")
	}
	if r.esc.Stopped == 0 {
		t.Error("disarm did not stop the motors")
	}
}

func TestThrottleUpBlocksArming(t *testing.T) {
	r := newRig()

	r.setChannels(1600, false)
	r.run(300_000)
	r.setChannels(1600, true)
	r.run(200_000)

	if r.drv.Armed() {
		t.Fatal("armed with the throttle raised")
	}
}

func TestSignalLossDisarmsAndLatchesFailsafe(t *testing.T) {
	r := newRig()

	r.setChannels(1000, false)
	r.run(300_000)
	r.setChannels(1000, true)
	r.run(200_000)
	if !r.drv.Armed() {
		t.Fatal("setup: did not arm")
	}

	// Radio dies: no more frames. Signal times out after 100ms and the
	// vehicle must disarm with the failsafe latched.
	stops := r.esc.Stopped
	r.channels = nil
	r.run(400_000)

	if r.drv.Armed() {
		t.Fatal("still armed after signal loss")
	}
	if r.esc.Stopped <= stops {
		t.Error("signal loss did not stop the motors")
	}
	if !r.drv.Get().Failsafe {
		t.Error("failsafe not reported after signal loss")
	}

	// Radio returns: the latch must keep the vehicle disarmed.
	r.setChannels(1000, false)
	r.run(300_000)
	r.setChannels(1000, true)
	r.run(300_000)
	if r.drv.Armed() {
		t.Fatal("re-armed with failsafe latched")
	}
}

func TestMotorsStayZeroWhileDisarmed(t *testing.T) {
	r := newRig()

	r.setChannels(1600, false) // pilot raises throttle while disarmed
	r.run(300_000)

	if r.esc.Writes == 0 {
		t.Fatal("no motor writes happened")
	}
	for i, v := range r.esc.Last {
		if v != 0 {
			t.Errorf("motor %d = %v while disarmed, want 0", i, v)
		}
	}
}

func TestMotorOverrideWhileDisarmed(t *testing.T) {
	r := newRig()
	r.setChannels(1000, false)
	r.run(300_000)

	r.link.send(msp.TypeSetMotor, 2, 60)
	r.run(100_000)

	if got := r.esc.Last[1]; got != 0.6 {
		t.Errorf("motor 2 = %v after override, want 0.6", got)
	}

	// Out-of-range index is dropped.
	r.link.send(msp.TypeSetMotor, 9, 50)
	r.run(100_000)
	if got := r.esc.Last[1]; got != 0.6 {
		t.Errorf("bad override index disturbed motors: %v", got)
	}
}

func TestMotorOverrideIgnoredWhileArmed(t *testing.T) {
	r := newRig()
	r.setChannels(1000, false)
	r.run(300_000)
	r.setChannels(1000, true)
	r.run(200_000)
	if !r.drv.Armed() {
		t.Fatal("setup: did not arm")
	}

	r.link.send(msp.TypeSetMotor, 1, 80)
	r.run(100_000)

	if r.drv.motorOverride[0] != 0 {
		t.Error("motor override accepted while armed")
	}
}

func TestAttitudeQueryRoundTrip(t *testing.T) {
	r := newRig()
	r.imu.SetLevelAngles(0.1, -0.05)
	r.setChannels(1000, false)
	r.run(300_000) // let the attitude task observe the IMU

	r.link.send(msp.TypeAttitude)
	r.run(100_000)

	var p msp.Parser
	var reply msp.Request
	got := false
	for _, b := range r.link.out.Bytes() {
		if req, ok := p.Parse(b); ok && req.Type == msp.TypeAttitude {
			reply, got = req, true
		}
	}
	if !got {
		t.Fatal("no attitude reply on the link")
	}

	values, err := msp.DecodeFloats(reply.Payload)
	if err != nil {
		t.Fatal(err)
	}
	if len(values) != 3 {
		t.Fatalf("attitude reply carries %d values, want 3", len(values))
	}
	if math.Abs(values[0]-0.1) > 0.002 || math.Abs(values[1]-(-0.05)) > 0.002 {
		t.Errorf("attitude reply %v, want phi 0.1 theta -0.05", values)
	}
}

func TestSticksQueryReportsChannels(t *testing.T) {
	r := newRig()
	r.setChannels(1000, false)
	r.run(300_000)

	r.link.send(msp.TypeReceiverSticks)
	r.run(100_000)

	var p msp.Parser
	var reply msp.Request
	got := false
	for _, b := range r.link.out.Bytes() {
		if req, ok := p.Parse(b); ok && req.Type == msp.TypeReceiverSticks {
			reply, got = req, true
		}
	}
	if !got {
		t.Fatal("no sticks reply on the link")
	}

	values, err := msp.DecodeFloats(reply.Payload)
	if err != nil {
		t.Fatal(err)
	}
	if len(values) != 6 {
		t.Fatalf("sticks reply carries %d values, want 6", len(values))
	}
	// Throttle stick is at its low rail: (1000-1500)/500.
	if math.Abs(values[0]-(-1)) > 0.002 {
		t.Errorf("throttle stick %v, want -1", values[0])
	}
}

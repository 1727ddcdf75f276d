package device

import "sync"

// SimReceiver is a scripted radio-link device. The harness pushes frames
// with PushFrame (modeling the UART ISR completing a frame); the receiver
// pipeline drains them through DevCheck. Access is guarded because the
// harness may push from outside the control-loop goroutine.
type SimReceiver struct {
	mu sync.Mutex

	channels    []uint16
	frameTimeUs uint32
	pending     FrameStatus
	hasFrame    bool
}

// NewSimReceiver returns a receiver with all channels centered and throttle
// low.
func NewSimReceiver(channelCount int) *SimReceiver {
	ch := make([]uint16, channelCount)
	for i := range ch {
		ch[i] = 1500
	}
	ch[3] = 1000 // throttle low
	return &SimReceiver{channels: ch}
}

// PushFrame delivers a complete frame with the given channel values at the
// given time. Values beyond the configured channel count are ignored.
func (r *SimReceiver) PushFrame(frameTimeUs uint32, status FrameStatus, channels ...uint16) {
	r.mu.Lock()
	defer r.mu.Unlock()

	copy(r.channels, channels)
	r.frameTimeUs = frameTimeUs
	r.pending = status
	r.hasFrame = true
}

func (r *SimReceiver) DevCheck(chanData []uint16, frameTimeUs *uint32) FrameStatus {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.hasFrame {
		return FramePending
	}
	r.hasFrame = false

	copy(chanData, r.channels)
	*frameTimeUs = r.frameTimeUs
	return r.pending
}

func (r *SimReceiver) Convert(chanData []uint16, chanID int) float64 {
	return float64(chanData[chanID])
}

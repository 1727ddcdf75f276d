// Package filter implements the PT1/PT2/PT3 low-pass filters used to
// condition receiver setpoints and PID derivative terms. A PTn filter is a
// cascade of n identical first-order stages with the per-stage gain
// corrected so the cascade cutoff matches the requested frequency.
package filter

import "math"

func ptnGain(order, cutoffHz, dt float64) float64 {
	correction := 1 / math.Sqrt(math.Pow(2, 1/order)-1)
	rc := 1 / (2 * correction * math.Pi * cutoffHz)
	return dt / (rc + dt)
}

// Pt1Gain returns the per-sample gain of a first-order low-pass filter with
// the given cutoff frequency and sample period.
func Pt1Gain(cutoffHz, dt float64) float64 {
	rc := 1 / (2 * math.Pi * cutoffHz)
	return dt / (rc + dt)
}

// Pt2Gain returns the per-stage gain of a two-pole cascade.
func Pt2Gain(cutoffHz, dt float64) float64 {
	return ptnGain(2, cutoffHz, dt)
}

// Pt3Gain returns the per-stage gain of a three-pole cascade.
func Pt3Gain(cutoffHz, dt float64) float64 {
	return ptnGain(3, cutoffHz, dt)
}

// Pt1 is a single-pole low-pass filter.
type Pt1 struct {
	state float64
	k     float64
}

// NewPt1 returns a PT1 filter with the given cutoff and sample period.
func NewPt1(cutoffHz, dt float64) *Pt1 {
	return &Pt1{k: Pt1Gain(cutoffHz, dt)}
}

// SetCutoff retunes the filter without resetting its state.
func (f *Pt1) SetCutoff(cutoffHz, dt float64) {
	f.k = Pt1Gain(cutoffHz, dt)
}

// Reset clears the filter memory.
func (f *Pt1) Reset() {
	f.state = 0
}

// Apply feeds one sample through the filter and returns the filtered value.
func (f *Pt1) Apply(input float64) float64 {
	f.state += f.k * (input - f.state)
	return f.state
}

// Pt2 is a two-pole cascaded low-pass filter.
type Pt2 struct {
	state, state1 float64
	k             float64
}

// NewPt2 returns a PT2 filter with the given cutoff and sample period.
func NewPt2(cutoffHz, dt float64) *Pt2 {
	return &Pt2{k: Pt2Gain(cutoffHz, dt)}
}

// SetCutoff retunes the filter without resetting its state.
func (f *Pt2) SetCutoff(cutoffHz, dt float64) {
	f.k = Pt2Gain(cutoffHz, dt)
}

// Apply feeds one sample through the filter and returns the filtered value.
func (f *Pt2) Apply(input float64) float64 {
	f.state1 += f.k * (input - f.state1)
	f.state += f.k * (f.state1 - f.state)
	return f.state
}

// Pt3 is a three-pole cascaded low-pass filter. The receiver smoothing
// pipeline uses one per control axis.
type Pt3 struct {
	state, state1, state2 float64
	k                     float64
}

// NewPt3 returns a PT3 filter with the given cutoff and sample period.
func NewPt3(cutoffHz, dt float64) *Pt3 {
	return &Pt3{k: Pt3Gain(cutoffHz, dt)}
}

// SetCutoff retunes the filter without resetting its state.
func (f *Pt3) SetCutoff(cutoffHz, dt float64) {
	f.k = Pt3Gain(cutoffHz, dt)
}

// Apply feeds one sample through the filter and returns the filtered value.
func (f *Pt3) Apply(input float64) float64 {
	f.state1 += f.k * (input - f.state1)
	f.state2 += f.k * (f.state1 - f.state2)
	f.state += f.k * (f.state2 - f.state)
	return f.state
}

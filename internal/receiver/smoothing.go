package receiver

import (
	"math"

	"github.com/flightcore-dev/flightcore/internal/filter"
	"github.com/flightcore-dev/flightcore/internal/flight"
)

const (
	// Minimum smoothing cutoff frequency.
	smoothingCutoffMinHz = 15

	// Feedforward cutoff used until the link frame rate is known.
	smoothingFeedforwardInitialHz = 100

	// Guard delays around (re)training.
	smoothingStartupDelayMs    = 5000
	smoothingTrainingDelayMs   = 1000
	smoothingRetrainingDelayMs = 2000

	// Inter-frame-time samples to average per training pass.
	smoothingTrainingSamples   = 50
	smoothingRetrainingSamples = 20

	// A contiguous run of samples deviating from the current average by
	// more than this percentage triggers retraining.
	smoothingRateChangePercent = 20

	// Accepted inter-frame interval range.
	smoothingRateMinUs = 950
	smoothingRateMaxUs = 65500
)

// smoothingFilter adapts the setpoint low-pass cutoffs to the measured
// radio-link frame rate. In auto mode it trains on a window of inter-frame
// intervals, rejects the single highest and lowest sample, and derives a
// cutoff proportional to the average link frequency.
type smoothingFilter struct {
	initialized bool

	autoFactorSetpoint float64
	autoFactorThrottle float64

	// Cutoff settings: 0 selects auto-training, any other value is a fixed
	// cutoff in Hz.
	setpointCutoffSetting float64
	throttleCutoffSetting float64
	ffCutoffSetting       float64

	setpointCutoffHz float64
	throttleCutoffHz float64
	ffCutoffHz       float64

	calculatedCutoffs  bool
	averageFrameTimeUs uint32
	validFrameTimeMs   uint32

	trainingSum   float64
	trainingCount int
	trainingMin   uint32
	trainingMax   uint32

	filterThrottle filter.Pt3
	filterRoll     filter.Pt3
	filterPitch    filter.Pt3
	filterYaw      filter.Pt3

	ffCutoffHook func(cutoffHz, dt float64)
}

func (sf *smoothingFilter) init() {
	sf.autoFactorSetpoint = 30
	sf.autoFactorThrottle = 30
	sf.resetAccumulation()

	sf.setpointCutoffHz = sf.setpointCutoffSetting
	sf.throttleCutoffHz = sf.throttleCutoffSetting

	if sf.ffCutoffSetting == 0 {
		// Use a derived cutoff until the link interval is known.
		cutoffFactor := 1.5 / (1 + sf.autoFactorSetpoint/10)
		sf.ffCutoffHz = math.Round(smoothingFeedforwardInitialHz * cutoffFactor)
	} else {
		sf.ffCutoffHz = sf.ffCutoffSetting
	}

	sf.calculatedCutoffs = sf.setpointCutoffSetting == 0 ||
		sf.throttleCutoffSetting == 0 ||
		sf.ffCutoffSetting == 0
}

func (sf *smoothingFilter) resetAccumulation() {
	sf.trainingSum = 0
	sf.trainingCount = 0
	sf.trainingMin = math.MaxUint32
	sf.trainingMax = 0
}

// autoCutoffHz derives a cutoff from the average frame time and a
// smoothness factor: the link frequency scaled down by the factor.
func autoCutoffHz(avgFrameTimeUs uint32, autoFactor float64) float64 {
	if avgFrameTimeUs == 0 {
		return 0
	}
	cutoffFactor := 1.5 / (1 + autoFactor/10)
	linkHz := 1 / (float64(avgFrameTimeUs) * 1e-6)
	return math.Round(linkHz * cutoffFactor)
}

// accumulate adds one inter-frame interval to the training window. When the
// window is full it discards the single min and max sample, stores the
// average and returns true.
func (sf *smoothingFilter) accumulate(frameTimeUs uint32) bool {
	sf.trainingSum += float64(frameTimeUs)
	sf.trainingCount++
	sf.trainingMax = max(sf.trainingMax, frameTimeUs)
	sf.trainingMin = min(sf.trainingMin, frameTimeUs)

	sampleLimit := smoothingTrainingSamples
	if sf.initialized {
		sampleLimit = smoothingRetrainingSamples
	}

	if sf.trainingCount < sampleLimit {
		return false
	}

	sf.trainingSum -= float64(sf.trainingMin) + float64(sf.trainingMax)
	sf.averageFrameTimeUs = uint32(math.Round(sf.trainingSum / float64(sf.trainingCount-2)))
	sf.resetAccumulation()
	return true
}

// setCutoffs recomputes the filter cutoffs from the trained average frame
// time and retunes every filter stage.
func (sf *smoothingFilter) setCutoffs(dt float64) {
	if sf.setpointCutoffSetting == 0 {
		sf.setpointCutoffHz = math.Max(smoothingCutoffMinHz,
			autoCutoffHz(sf.averageFrameTimeUs, sf.autoFactorSetpoint))
	}
	if sf.throttleCutoffSetting == 0 {
		sf.throttleCutoffHz = math.Max(smoothingCutoffMinHz,
			autoCutoffHz(sf.averageFrameTimeUs, sf.autoFactorThrottle))
	}

	sf.filterThrottle.SetCutoff(sf.throttleCutoffHz, dt)
	sf.filterRoll.SetCutoff(sf.setpointCutoffHz, dt)
	sf.filterPitch.SetCutoff(sf.setpointCutoffHz, dt)
	sf.filterYaw.SetCutoff(sf.setpointCutoffHz, dt)

	if sf.ffCutoffSetting == 0 {
		sf.ffCutoffHz = math.Max(smoothingCutoffMinHz,
			autoCutoffHz(sf.averageFrameTimeUs, sf.autoFactorSetpoint))
	}
	if sf.ffCutoffHook != nil {
		sf.ffCutoffHook(sf.ffCutoffHz, dt)
	}
}

func (sf *smoothingFilter) apply(f *filter.Pt3, v float64) float64 {
	if !sf.initialized {
		return v
	}
	return f.Apply(v)
}

// processSmoothingFilter runs once per core tick: on a new frame it feeds
// the auto-trainer and stages the new setpoints, and on every tick it
// applies the smoothing filters to the staged values.
func (r *Receiver) processSmoothingFilter(usec uint32, rawSetpoint [3]float64) flight.Demands {
	sf := &r.smoothing

	if r.gotNewData {
		if sf.calculatedCutoffs {
			r.trainCutoffs(usec)
		}

		r.dataToSmooth = flight.Demands{
			Throttle: r.commandThrottle,
			Roll:     rawSetpoint[0],
			Pitch:    rawSetpoint[1],
			Yaw:      rawSetpoint[2],
		}
	}

	return flight.Demands{
		Throttle: sf.apply(&sf.filterThrottle, r.dataToSmooth.Throttle),
		Roll:     sf.apply(&sf.filterRoll, r.dataToSmooth.Roll),
		Pitch:    sf.apply(&sf.filterPitch, r.dataToSmooth.Pitch),
		Yaw:      sf.apply(&sf.filterYaw, r.dataToSmooth.Yaw),
	}
}

// trainCutoffs examines one rx frame interval for the auto-trainer,
// respecting the startup skip, the training guard delays and the retrain
// deviation threshold.
func (r *Receiver) trainCutoffs(usec uint32) {
	sf := &r.smoothing
	nowMs := usec / 1000

	if nowMs <= smoothingStartupDelayMs {
		return
	}

	if !r.signalReceived || !r.isRateValid {
		sf.resetAccumulation()
		return
	}

	if sf.validFrameTimeMs == 0 {
		delay := uint32(smoothingTrainingDelayMs)
		if sf.initialized {
			delay = smoothingRetrainingDelayMs
		}
		sf.validFrameTimeMs = nowMs + delay
	}

	if nowMs <= sf.validFrameTimeMs {
		return
	}

	if sf.initialized {
		// Retraining needs a contiguous run of samples all deviating
		// significantly from the current average; a conforming sample
		// resets the run.
		percentChange := math.Abs(float64(r.refreshPeriodUs)-float64(sf.averageFrameTimeUs)) /
			float64(sf.averageFrameTimeUs) * 100
		if percentChange < smoothingRateChangePercent {
			sf.resetAccumulation()
			return
		}
	}

	if sf.accumulate(r.refreshPeriodUs) {
		sf.setCutoffs(r.dt)
		sf.initialized = true
		sf.validFrameTimeMs = 0
	}
}

// SmoothingCutoffs returns the current setpoint and throttle cutoff
// frequencies; zero until training completes. Exposed for telemetry and
// tests.
func (r *Receiver) SmoothingCutoffs() (setpointHz, throttleHz float64) {
	return r.smoothing.setpointCutoffHz, r.smoothing.throttleCutoffHz
}

// SmoothingTrained reports whether the auto-trainer has initialized the
// smoothing filters.
func (r *Receiver) SmoothingTrained() bool {
	return r.smoothing.initialized
}

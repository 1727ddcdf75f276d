package receiver

import (
	"math"

	"github.com/flightcore-dev/flightcore/internal/flight"
)

func isPulseValid(pulse float64) bool {
	return pulse >= pulseValidMin && pulse <= pulseValidMax
}

// applyChannelRange clamps a flight-axis sample into the accepted pulse
// range. A zero sample means "no data" and passes through unclamped so
// downstream can tell it apart from a stick at the rail.
func applyChannelRange(sample float64) float64 {
	if sample == 0 {
		return 0
	}
	return flight.Constrain(sample, pulseClampMin, pulseClampMax)
}

// readChannelsApplyRanges converts the raw frame and clamps the four
// primary axes.
func (r *Receiver) readChannelsApplyRanges() {
	for channel := 0; channel < flight.ChannelCount; channel++ {
		sample := r.dev.Convert(r.channelData[:], channel)

		if channel < 4 {
			sample = applyChannelRange(sample)
		}

		r.raw[channel] = sample
	}
}

// failValue is the fallback applied to a channel once its invalid-pulse
// grace period expires: center for the cyclic axes, low throttle, hold for
// auxiliary channels.
func (r *Receiver) failValue(channel int) float64 {
	switch channel {
	case flight.ChannelRoll, flight.ChannelPitch, flight.ChannelYaw:
		return 1500
	case flight.ChannelThrottle:
		return 885
	default:
		return r.raw[channel]
	}
}

// detectAndApplySignalLoss validates every channel: a valid pulse refreshes
// the channel's grace deadline; an invalid one holds the last value until
// the deadline passes, then falls back. Any flight-critical channel falling
// back marks the whole frame failsafe.
func (r *Receiver) detectAndApplySignalLoss(usec uint32) {
	nowMs := usec / 1000

	useValueFromRx := r.signalReceived && !r.inFailsafeMode

	flightChannelsValid := true

	for channel := 0; channel < flight.ChannelCount; channel++ {
		sample := r.raw[channel]

		if useValueFromRx && isPulseValid(sample) {
			r.invalidPulsePeriodMs[channel] = nowMs + maxInvalidPulseMs
			continue
		}

		if int32(nowMs-r.invalidPulsePeriodMs[channel]) < 0 {
			// Still inside the grace period: hold the last valid value.
			continue
		}

		sample = r.failValue(channel)
		if channel < 4 {
			flightChannelsValid = false
		}
		r.raw[channel] = sample
	}

	if !flightChannelsValid {
		r.inFailsafeMode = true
		for channel := 0; channel < flight.ChannelCount; channel++ {
			r.raw[channel] = r.failValue(channel)
		}
	}
}

// initThrottleTable fills the 12-point expo lookup table mapping the
// [0,1000] throttle command onto [PulseMin,PulseMax] with mid/expo shaping.
func (r *Receiver) initThrottleTable() {
	for i := 0; i < throttleLookupSize; i++ {
		tmp := float64(10*i) - throttleMid
		var y float64 = 1
		if tmp > 0 {
			y = 100 - throttleMid
		} else if tmp < 0 {
			y = throttleMid
		}

		v := 10*throttleMid + tmp*(100-throttleExpo+throttleExpo*(tmp*tmp)/(y*y))/10
		r.lookupThrottleRC[i] = int16(flight.PulseMin + (flight.PulseMax-flight.PulseMin)*v/1000)
	}
	r.initializedThrottleTable = true
}

// lookupThrottle interpolates the expo table for a throttle command in
// [0,1000].
func (r *Receiver) lookupThrottle(tmp int32) float64 {
	if !r.initializedThrottleTable {
		r.initThrottleTable()
	}

	idx := tmp / 100
	lo := int32(r.lookupThrottleRC[idx])
	hi := int32(r.lookupThrottleRC[idx+1])
	return float64(lo) + float64((tmp-idx*100)*(hi-lo))/100
}

// centeredCommand folds a raw pulse into a signed command around center,
// bounded to half the stick travel.
func centeredCommand(raw, sign float64) float64 {
	tmp := math.Min(math.Abs(raw-1500), 500)
	cmd := tmp * sign
	if raw < 1500 {
		return -cmd
	}
	return cmd
}

// updateCommands converts the validated channels into stick commands:
// signed centered values for roll/pitch/yaw and an expo-shaped pulse for
// throttle.
func (r *Receiver) updateCommands() {
	for axis := flight.ChannelRoll; axis <= flight.ChannelYaw; axis++ {
		sign := 1.0
		if axis == flight.ChannelYaw {
			sign = -1.0
		}
		r.command[axis] = centeredCommand(r.raw[axis], sign)
	}

	tmp := flight.Constrain(r.raw[flight.ChannelThrottle], 1050, flight.PulseMax)
	tmp2 := (tmp - 1050) * 1000 / (flight.PulseMax - 1050)
	r.commandThrottle = r.lookupThrottle(int32(tmp2))
}

// applyRates scales a normalized stick deflection into an angular-rate
// setpoint in degrees per second, with configurable expo and
// center-sensitivity.
func applyRates(command, commandAbs float64) float64 {
	expo := rcExpo / 100
	expo = commandAbs * (math.Pow(command, 5)*expo + command*(1-expo))

	centerSensitivity := rcRate * 10
	stickMovement := math.Max(0, rate*10-centerSensitivity)

	return command*centerSensitivity + stickMovement*expo
}

// rawRateSetpoint converts a centered stick command into a bounded
// angular-rate setpoint.
func rawRateSetpoint(command, divider float64) float64 {
	commandf := command / divider
	angleRate := applyRates(commandf, math.Abs(commandf))
	return flight.Constrain(angleRate, -rateLimitDps, rateLimitDps)
}

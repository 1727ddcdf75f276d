package arming

// Warning drives the indicator blink pattern while the vehicle is disarmed
// and not ready to arm. The pattern identifies the blocking precondition:
// the LED blinks N times (N = precondition ordinal), pauses, and repeats.
type Warning struct {
	enabled bool
	blocked Precondition

	ledOn      bool
	timerUs    uint32
	blinksLeft int
	timerArmed bool
}

const (
	blinkOnUs = 100_000 // 100 ms on/off per blink
	pauseUs   = 700_000 // gap between blink groups
)

// Blink enables the warning pattern for the given blocking precondition.
func (w *Warning) Blink(blocked Precondition) {
	if w.enabled && w.blocked == blocked {
		return
	}
	w.enabled = true
	w.blocked = blocked
	w.blinksLeft = int(blocked)
	w.ledOn = false
	w.timerArmed = false
}

// Disable turns the warning pattern off.
func (w *Warning) Disable() {
	w.enabled = false
	w.ledOn = false
	w.timerArmed = false
}

// Step advances the pattern to the given time. It returns the desired LED
// state and whether it changed since the previous step.
func (w *Warning) Step(usec uint32) (on, changed bool) {
	if !w.enabled {
		if w.ledOn {
			w.ledOn = false
			return false, true
		}
		return false, false
	}

	if !w.timerArmed {
		w.timerArmed = true
		w.timerUs = usec + blinkOnUs
		w.blinksLeft = int(w.blocked)
		return w.ledOn, false
	}

	if int32(usec-w.timerUs) < 0 {
		return w.ledOn, false
	}

	if w.blinksLeft <= 0 {
		// Pause complete, restart the group.
		w.blinksLeft = int(w.blocked)
		w.timerUs = usec + blinkOnUs
		return w.ledOn, false
	}

	w.ledOn = !w.ledOn
	if !w.ledOn {
		w.blinksLeft--
		if w.blinksLeft == 0 {
			w.timerUs = usec + pauseUs
			return w.ledOn, true
		}
	}
	w.timerUs = usec + blinkOnUs
	return w.ledOn, true
}

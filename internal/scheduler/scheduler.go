// Package scheduler implements the dual-rate task scheduler of the control
// core: a hard-real-time core loop locked to the gyro cadence, and a
// best-effort dynamic loop that fits lower-priority tasks into the slack
// before the next core deadline.
//
// All timing runs on a free-running 32-bit cycle counter. Counter values
// wrap; they are only ever compared through signed 32-bit subtraction.
package scheduler

// Tuning values in microseconds. The core-loop start window and the dynamic
// task guard margin both adapt: they inflate quickly on overruns and decay
// slowly when the loop is keeping up.
const (
	startLoopMinUs   = 1
	startLoopMaxUs   = 12
	startLoopDownDiv = 50 // decay: 1/50 us per iteration
	startLoopUpUs    = 1

	taskGuardMinUs   = 3
	taskGuardMaxUs   = 6
	taskGuardDownDiv = 50
	taskGuardUpUs    = 1

	checkGuardUs = 2
)

// cmpCycles compares two wrapping cycle counts: positive when a is later
// than b.
func cmpCycles(a, b uint32) int32 {
	return int32(a - b)
}

// Scheduler holds the timing state of both loops. It is single-threaded:
// only the control-loop driver touches it.
type Scheduler struct {
	// DesiredPeriodCycles is the core-loop period. The driver continuously
	// re-measures it from the gyro interrupt cadence.
	DesiredPeriodCycles int32

	// LastTargetCycles is the cycle count of the previous core deadline.
	// The driver nudges it to remove phase skew against the gyro clock.
	LastTargetCycles uint32

	nextTargetCycles    uint32
	loopRemainingCycles int32

	loopStartCycles          int32
	loopStartMinCycles       int32
	loopStartMaxCycles       int32
	loopStartDeltaDownCycles int32
	loopStartDeltaUpCycles   int32

	taskGuardCycles          int32
	taskGuardMinCycles       int32
	taskGuardMaxCycles       int32
	taskGuardDeltaDownCycles int32
	taskGuardDeltaUpCycles   int32

	checkGuardCycles int32
}

// New returns a scheduler for a counter running at clockSpeedHz with the
// given initial core-loop period. The period self-calibrates afterwards.
func New(clockSpeedHz uint32, corePeriodUs uint32) *Scheduler {
	cyclesPerUs := int32(clockSpeedHz / 1_000_000)

	return &Scheduler{
		DesiredPeriodCycles: int32(corePeriodUs) * cyclesPerUs,

		loopStartCycles:          startLoopMinUs * cyclesPerUs,
		loopStartMinCycles:       startLoopMinUs * cyclesPerUs,
		loopStartMaxCycles:       startLoopMaxUs * cyclesPerUs,
		loopStartDeltaDownCycles: cyclesPerUs / startLoopDownDiv,
		loopStartDeltaUpCycles:   startLoopUpUs * cyclesPerUs,

		taskGuardCycles:          taskGuardMinUs * cyclesPerUs,
		taskGuardMinCycles:       taskGuardMinUs * cyclesPerUs,
		taskGuardMaxCycles:       taskGuardMaxUs * cyclesPerUs,
		taskGuardDeltaDownCycles: cyclesPerUs / taskGuardDownDiv,
		taskGuardDeltaUpCycles:   taskGuardUpUs * cyclesPerUs,

		checkGuardCycles: checkGuardUs * cyclesPerUs,
	}
}

// IsCoreReady reports whether the core loop should run now. "Now" includes
// the adaptive start window just before the deadline: the caller is expected
// to busy-wait the remaining cycles for jitter-free timing.
func (s *Scheduler) IsCoreReady(nowCycles uint32) bool {
	s.nextTargetCycles = s.LastTargetCycles + uint32(s.DesiredPeriodCycles)
	s.loopRemainingCycles = cmpCycles(s.nextTargetCycles, nowCycles)

	if s.loopRemainingCycles < -s.DesiredPeriodCycles {
		// The loop has fallen more than a full period behind (debugger
		// stop, massive overrun). Resync instead of replaying missed ticks.
		s.nextTargetCycles = nowCycles + uint32(s.DesiredPeriodCycles)
		s.LastTargetCycles = nowCycles
		s.loopRemainingCycles = s.DesiredPeriodCycles
	}

	return s.loopRemainingCycles < s.loopStartCycles
}

// CorePreUpdate brackets the start of a core-loop execution, decaying the
// start window toward its minimum while the loop keeps up.
func (s *Scheduler) CorePreUpdate() {
	if s.loopStartCycles > s.loopStartMinCycles {
		s.loopStartCycles -= s.loopStartDeltaDownCycles
	}
}

// CorePostUpdate brackets the end of a core-loop execution: it widens the
// start window if this tick began late and advances the deadline by one
// period.
func (s *Scheduler) CorePostUpdate(nowCycles uint32) {
	if cmpCycles(nowCycles, s.nextTargetCycles) > 0 &&
		s.loopStartCycles < s.loopStartMaxCycles {
		s.loopStartCycles += s.loopStartDeltaUpCycles
	}

	s.LastTargetCycles = s.nextTargetCycles
}

// NextTargetCycles returns the deadline of the upcoming core tick.
func (s *Scheduler) NextTargetCycles() uint32 {
	return s.nextTargetCycles
}

// LoopRemainingCycles returns the cycles left before the upcoming core
// deadline, as computed by the last IsCoreReady call.
func (s *Scheduler) LoopRemainingCycles() int32 {
	return s.loopRemainingCycles
}

// IsDynamicReady reports whether there is enough slack before the next core
// deadline to even consider running a dynamic task.
func (s *Scheduler) IsDynamicReady(nowCycles uint32) bool {
	return cmpCycles(s.nextTargetCycles, nowCycles) > s.checkGuardCycles
}

// UpdateDynamic records the outcome of a dynamic-task execution. A task that
// ran past its anticipated end inflates the guard margin; clean runs decay
// it back toward the minimum.
func (s *Scheduler) UpdateDynamic(nowCycles, anticipatedEndCycles uint32) {
	cyclesOverdue := cmpCycles(nowCycles, anticipatedEndCycles)

	if cyclesOverdue > 0 {
		if s.taskGuardCycles < s.taskGuardMaxCycles {
			s.taskGuardCycles += s.taskGuardDeltaUpCycles
		}
	} else if s.taskGuardCycles > s.taskGuardMinCycles {
		s.taskGuardCycles -= s.taskGuardDeltaDownCycles
	}
}

// TaskGuardCycles returns the current guard margin added to a dynamic
// task's worst-case duration when deciding whether it fits before the next
// core deadline.
func (s *Scheduler) TaskGuardCycles() int32 {
	return s.taskGuardCycles
}

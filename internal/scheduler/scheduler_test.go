package scheduler

import "testing"

const clockSpeed = 168_000_000 // 168 MHz, cyclesPerUs = 168

func TestCoreReadyAtTargetCycle(t *testing.T) {
	s := New(clockSpeed, 125) // 8 kHz core loop

	period := uint32(s.DesiredPeriodCycles)

	if s.IsCoreReady(0) {
		t.Fatal("core ready a full period before the deadline")
	}
	if !s.IsCoreReady(period) {
		t.Fatal("core not ready at the deadline")
	}
	// Just inside the start window.
	if !s.IsCoreReady(period - 100) {
		t.Fatal("core not ready inside the start window")
	}
}

func TestCorePostUpdateAdvancesDeadline(t *testing.T) {
	s := New(clockSpeed, 125)
	period := uint32(s.DesiredPeriodCycles)

	s.IsCoreReady(period)
	s.CorePreUpdate()
	s.CorePostUpdate(period + 10)

	if s.LastTargetCycles != period {
		t.Errorf("LastTargetCycles = %d, want %d", s.LastTargetCycles, period)
	}
	if s.IsCoreReady(period + 100) {
		t.Error("core ready right after a completed tick")
	}
	if !s.IsCoreReady(2 * period) {
		t.Error("core not ready at the following deadline")
	}
}

func TestCoreResyncsAfterGrossOverrun(t *testing.T) {
	s := New(clockSpeed, 125)
	period := uint32(s.DesiredPeriodCycles)

	// Fall three periods behind: the scheduler must resync to "now" rather
	// than replay the missed ticks.
	now := 4 * period
	s.IsCoreReady(now)
	if s.LastTargetCycles != now {
		t.Errorf("expected resync to now=%d, got LastTargetCycles=%d", now, s.LastTargetCycles)
	}
}

func TestCounterWrapDoesNotBreakComparison(t *testing.T) {
	s := New(clockSpeed, 125)
	period := uint32(s.DesiredPeriodCycles)

	// Place the last target just below the wrap point; the next deadline
	// wraps past zero.
	s.LastTargetCycles = ^uint32(0) - period/2

	if s.IsCoreReady(s.LastTargetCycles + 1) {
		t.Error("ready too early near counter wrap")
	}
	if !s.IsCoreReady(s.LastTargetCycles + period) {
		t.Error("not ready at wrapped deadline")
	}
}

func TestDynamicGuardInflatesOnOverrunAndDecays(t *testing.T) {
	s := New(clockSpeed, 125)

	base := s.TaskGuardCycles()

	// Overrun: finished 100 cycles past the anticipated end.
	s.UpdateDynamic(1100, 1000)
	if s.TaskGuardCycles() <= base {
		t.Fatal("guard margin did not inflate on overrun")
	}

	inflated := s.TaskGuardCycles()
	for i := 0; i < 10_000; i++ {
		s.UpdateDynamic(900, 1000) // clean finishes
	}
	if got := s.TaskGuardCycles(); got >= inflated || got < base {
		t.Errorf("guard margin should decay toward minimum: got %d (base %d, inflated %d)", got, base, inflated)
	}
}

func TestDynamicNotReadyNearDeadline(t *testing.T) {
	s := New(clockSpeed, 125)
	period := uint32(s.DesiredPeriodCycles)

	s.IsCoreReady(0) // computes next target
	if !s.IsDynamicReady(0) {
		t.Error("dynamic window should be open a full period out")
	}
	if s.IsDynamicReady(period - 10) {
		t.Error("dynamic window should be closed just before the deadline")
	}
}

func TestTaskPrioritizationByAge(t *testing.T) {
	ran := ""
	fast := NewTask(RunnerFunc(func(uint32) { ran = "fast" }), 10_000)  // 100 Hz
	slow := NewTask(RunnerFunc(func(uint32) { ran = "slow" }), 100_000) // 10 Hz

	// At t=50ms the fast task has aged 5 periods, the slow one 0.
	var p Prioritizer
	fast.Prioritize(50_000, &p)
	slow.Prioritize(50_000, &p)

	if p.Task != fast {
		t.Fatal("expected the more-aged task to win")
	}
	p.Task.Execute(50_000)
	if ran != "fast" {
		t.Fatalf("executed %q", ran)
	}

	// Once the fast task has just run, a slow task that has aged a full
	// period takes the window.
	fast.Execute(149_000)
	p = Prioritizer{}
	fast.Prioritize(150_000, &p)
	slow.Prioritize(150_000, &p)
	if p.Task != slow {
		t.Fatal("expected the starved slow task to win eventually")
	}
}

func TestSignaledTaskOutranksAgedTask(t *testing.T) {
	aged := NewTask(RunnerFunc(func(uint32) {}), 1000)
	signaled := NewTask(RunnerFunc(func(uint32) {}), 100_000,
		WithSignal(func(uint32) bool { return true }))

	var p Prioritizer
	aged.Prioritize(1_000_000, &p) // aged 1000 periods
	signaled.Prioritize(1_000_000, &p)

	if p.Task != signaled {
		t.Fatal("event-driven task with pending data must win")
	}
}

func TestCheckReadyDefersWhenTaskDoesNotFit(t *testing.T) {
	task := NewTask(RunnerFunc(func(uint32) {}), 10_000)
	task.Update(50) // observed 50us run time

	const cyclesPerUs = 168
	guard := int32(3 * cyclesPerUs)

	// Plenty of room: 1000us until the deadline.
	if got := task.CheckReady(1000*cyclesPerUs, 0, guard, cyclesPerUs); got == 0 {
		t.Error("task should fit with 1000us of slack")
	}
	// 20us until the deadline: 50us task + 3us guard cannot fit.
	if got := task.CheckReady(20*cyclesPerUs, 0, guard, cyclesPerUs); got != 0 {
		t.Errorf("task must defer with 20us of slack, got %d", got)
	}
}

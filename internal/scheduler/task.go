package scheduler

// Runner is the body of a dynamic task.
type Runner interface {
	Run(usec uint32)
}

// RunnerFunc adapts a function to the Runner interface.
type RunnerFunc func(usec uint32)

func (f RunnerFunc) Run(usec uint32) { f(usec) }

// cmpTimeUs compares two wrapping microsecond timestamps.
func cmpTimeUs(a, b uint32) int32 {
	return int32(a - b)
}

// Task is one dynamic (soft-real-time) task: receiver polling, attitude
// estimation, telemetry. Tasks do not run at their nominal rate under load;
// instead their priority grows with the time they have been waiting, and the
// driver picks the highest-priority candidate per dynamic window.
type Task struct {
	runner          Runner
	desiredPeriodUs uint32

	lastExecutedAtUs uint32
	lastSignaledAtUs uint32
	dynamicPriority  uint32

	// anticipatedDurationUs is a decaying peak of observed run times; it is
	// the task's declared cost when checking whether it fits before the
	// next core deadline.
	anticipatedDurationUs uint32

	// signalFn, when set, reports that the task has data pending (e.g. a
	// complete receiver frame) and should be prioritized ahead of aging.
	signalFn func(usec uint32) bool
}

// WithSignal marks the task event-driven: when fn reports pending data the
// task gets maximum priority instead of aging at its nominal rate.
func WithSignal(fn func(usec uint32) bool) func(*Task) {
	return func(t *Task) {
		t.signalFn = fn
	}
}

// NewTask returns a task that wants to run every periodUs microseconds.
func NewTask(runner Runner, periodUs uint32, options ...func(*Task)) *Task {
	t := &Task{
		runner:          runner,
		desiredPeriodUs: periodUs,
		// Small nonzero seed: a never-run task must claim some cost or
		// CheckReady would treat it as free, but the real duration is only
		// known after the first execution.
		anticipatedDurationUs: 10,
	}

	for _, option := range options {
		option(t)
	}

	return t
}

// Prioritizer selects the single dynamic task to run in this window.
type Prioritizer struct {
	Task     *Task
	Priority uint32
}

// Prioritize offers the task to the prioritizer. Priority is 1 + the number
// of nominal periods the task has been waiting; event-driven tasks with
// pending data outrank any aged task.
func (t *Task) Prioritize(usec uint32, p *Prioritizer) {
	const signalPriority = 1 << 16

	if t.signalFn != nil && t.signalFn(usec) {
		t.lastSignaledAtUs = usec
		if signalPriority > p.Priority {
			p.Task = t
			p.Priority = signalPriority
		}
		return
	}

	age := cmpTimeUs(usec, t.lastExecutedAtUs) / int32(t.desiredPeriodUs)
	if age <= 0 {
		return
	}

	t.dynamicPriority = 1 + uint32(age)
	if t.dynamicPriority > p.Priority {
		p.Task = t
		p.Priority = t.dynamicPriority
	}
}

// CheckReady returns the task's required cycles if its anticipated duration
// plus the guard margin fits before the next core deadline, and 0 when the
// task must defer to the next window.
func (t *Task) CheckReady(nextTargetCycles, nowCycles uint32, guardCycles int32, cyclesPerUs uint32) uint32 {
	required := int32(t.anticipatedDurationUs * cyclesPerUs)
	remaining := cmpCycles(nextTargetCycles, nowCycles)

	if required+guardCycles < remaining {
		return uint32(required)
	}
	return 0
}

// Execute runs the task body at the given time.
func (t *Task) Execute(usec uint32) {
	t.lastExecutedAtUs = usec
	t.dynamicPriority = 0
	t.runner.Run(usec)
}

// Update records the observed duration of the last execution. The
// anticipated duration tracks the peak and decays by 1/32 per clean run.
func (t *Task) Update(durationUs uint32) {
	if durationUs > t.anticipatedDurationUs {
		t.anticipatedDurationUs = durationUs
	} else if t.anticipatedDurationUs > 0 {
		t.anticipatedDurationUs -= 1 + t.anticipatedDurationUs/32
	}
}

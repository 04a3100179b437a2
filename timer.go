package uev

import "sync"

// Timer carries timeout-ms, period-ms, and an absolute deadline-ms
// (Invariant 3: deadline is zero iff the timer is dormant). The
// threadsafe variant's triple is additionally guarded by tsMu, which the
// dispatcher takes across the entire per-watcher update block (Invariant
// 5); the non-threadsafe variant takes the same lock purely for
// implementation uniformity, since it is only ever touched by the owning
// loop task.
type Timer struct {
	header

	threadsafe bool
	tsMu       sync.Mutex

	timeoutMS  int64
	periodMS   int64
	deadlineMS int64
}

func newTimer(c *Context, cb Callback, arg interface{}, timeoutMS, periodMS int64, threadsafe bool) (*Timer, error) {
	if c == nil || cb == nil {
		return nil, invalidArg(c)
	}
	if timeoutMS < 0 || periodMS < 0 {
		return nil, outOfRange(c)
	}
	t := &Timer{threadsafe: threadsafe, timeoutMS: timeoutMS, periodMS: periodMS}
	t.ctx = c
	t.cb = cb
	t.arg = arg
	if threadsafe {
		t.kind = KindTimerTS
		// Threadsafe timers are linked into the registry at init time
		// (Lifecycle); they simply stay DORMANT (deadline==0) until
		// Start arms them.
		c.link(t, &t.header)
	} else {
		t.kind = KindTimer
	}
	return t, nil
}

// NewTimer creates a non-threadsafe timer: mutated only by the owning
// loop task.
func NewTimer(c *Context, cb Callback, arg interface{}, timeoutMS, periodMS int64) (*Timer, error) {
	return newTimer(c, cb, arg, timeoutMS, periodMS, false)
}

// NewTimerThreadsafe creates a timer whose timeout/period/deadline triple
// may be mutated from any task or ISR, guarded by its own lock.
func NewTimerThreadsafe(c *Context, cb Callback, arg interface{}, timeoutMS, periodMS int64) (*Timer, error) {
	return newTimer(c, cb, arg, timeoutMS, periodMS, true)
}

// Set reschedules the timer (recomputing its deadline if it is armed) and
// wakes the owning loop via the TIMER bit so a change from another task
// becomes visible on the next iteration (Concurrency §5).
func (t *Timer) Set(timeoutMS, periodMS int64) error {
	if timeoutMS < 0 || periodMS < 0 {
		return outOfRange(t.ctx)
	}
	t.tsMu.Lock()
	t.timeoutMS = timeoutMS
	t.periodMS = periodMS
	if t.active.Load() {
		// Provisional: Run() re-arms every timer's deadline from
		// timeoutMS at loop entry regardless, so this is only "live"
		// while the loop is already running.
		t.deadlineMS = nowMS() + timeoutMS
	}
	t.tsMu.Unlock()

	if t.ctx != nil {
		t.ctx.bits.Set(BitTimer)
	}
	return nil
}

// Start re-arms the timer: a no-op when already active, otherwise links
// it into the registry (unless a threadsafe timer already linked at
// init) and computes its initial deadline when the loop is running.
func (t *Timer) Start() error {
	if t.ctx == nil {
		return invalidArg(nil)
	}
	if t.active.Load() {
		return nil
	}
	t.active.Store(true)
	if t.elem == nil {
		t.ctx.link(t, &t.header)
	}

	t.tsMu.Lock()
	if t.ctx.Running() {
		t.deadlineMS = nowMS() + t.timeoutMS
	}
	t.tsMu.Unlock()

	t.ctx.bits.Set(BitTimer)
	return nil
}

// Schedule returns the timer's current (timeoutMS, periodMS) pair.
func (t *Timer) Schedule() (timeoutMS, periodMS int64) {
	t.tsMu.Lock()
	defer t.tsMu.Unlock()
	return t.timeoutMS, t.periodMS
}

// Stop is a no-op when not active; otherwise it clears active and the
// deadline, and unlinks from the registry unless this is a threadsafe
// timer (which retains linkage until context teardown).
func (t *Timer) Stop() error {
	if !t.active.Load() {
		return nil
	}
	t.active.Store(false)

	t.tsMu.Lock()
	t.deadlineMS = 0
	t.tsMu.Unlock()

	if !t.threadsafe {
		t.ctx.unlink(&t.header)
	}
	return nil
}

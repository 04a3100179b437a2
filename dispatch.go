package uev

import "time"

// noDeadlineMS is the in-loop sentinel for "no timer armed" (FOREVER).
const noDeadlineMS int64 = -1

// Run validates the bit-group, sets running, computes a starting
// deadline, re-arms every active timer in the registry (so a restart
// never fires a stale timer), and then drives the dispatch loop: wait,
// scan, deliver, reschedule.
func (c *Context) Run(flags RunFlags) error {
	if c == nil {
		return ErrInvalidArg
	}
	if c.bits == nil {
		return invalidArg(c)
	}
	c.running.Store(true)

	nextDeadline := c.rearmAllTimers()

	for c.running.Load() {
		wait := c.ticksToWait(nextDeadline, flags)
		got := c.bits.Wait(allBits, wait)

		nextDeadline = noDeadlineMS
		c.sweep(got, &nextDeadline)

		if flags&RunOnce != 0 {
			break
		}
	}
	return nil
}

// ticksToWait converts next_deadline - now_ms into the wait duration for
// the bit-group, clamped to zero when past-due, FOREVER when no timer is
// armed, and zero unconditionally under RunNonBlock.
func (c *Context) ticksToWait(deadlineMS int64, flags RunFlags) time.Duration {
	if flags&RunNonBlock != 0 {
		return 0
	}
	if deadlineMS == noDeadlineMS {
		return Forever
	}
	remain := deadlineMS - nowMS()
	if remain < 0 {
		remain = 0
	}
	return time.Duration(remain) * time.Millisecond
}

// rearmAllTimers recomputes the deadline of every active timer in the
// registry as now_ms + timeout and returns the minimum, or noDeadlineMS
// if none are armed. Dormant timers (inactive, or one-shot already
// fired) are left untouched: recomputing a dormant timer's deadline
// would latch a stale zero-timeout as "immediate", which Invariant 3
// forbids.
func (c *Context) rearmAllTimers() int64 {
	c.regMu.Lock()
	timers := make([]*Timer, 0, c.reg.Len())
	for e := c.reg.Front(); e != nil; e = e.Next() {
		if t, ok := e.Value.(*Timer); ok {
			timers = append(timers, t)
		}
	}
	c.regMu.Unlock()

	now := nowMS()
	next := noDeadlineMS
	for _, t := range timers {
		if !t.Active() {
			continue
		}
		t.tsMu.Lock()
		t.deadlineMS = now + t.timeoutMS
		d := t.deadlineMS
		t.tsMu.Unlock()
		if d > 0 && (next == noDeadlineMS || d < next) {
			next = d
		}
	}
	return next
}

// sweep walks the registry once, in insertion-relative order, and
// delivers to each active watcher whose condition is satisfied. The
// registry is snapshotted into a plain slice under the critical section
// before any callback runs: container/list.List has no notion of a
// heap-owning node that must outlive callback re-entrancy the way an
// intrusive list would, so a one-shot copy is the direct translation of
// "snapshot next pointer before invoking the callback" for this
// representation. A watcher started from inside a callback during this
// sweep is consequently not in the snapshot and is first seen on the next
// iteration. A watcher stopped from inside a callback is still in the
// snapshot but is skipped, since each entry's active flag is checked
// before it is dispatched.
func (c *Context) sweep(got Bits, nextDeadline *int64) {
	c.regMu.Lock()
	snapshot := make([]Watcher, 0, c.reg.Len())
	for e := c.reg.Front(); e != nil; e = e.Next() {
		snapshot = append(snapshot, e.Value.(Watcher))
	}
	c.regMu.Unlock()

	for _, w := range snapshot {
		if !w.Active() {
			continue
		}
		switch t := w.(type) {
		case *Event:
			c.fireEvent(t, got)
		case *Timer:
			c.fireTimer(t, nextDeadline)
		case *IOWatcher:
			c.fireIO(t, got)
		}
	}
}

func (c *Context) fireEvent(e *Event, got Bits) {
	if got&BitEvent == 0 {
		return
	}
	if e.posted.CompareAndSwap(true, false) {
		c.invoke(e, e.cb, e.arg, EvRead)
	}
}

func (c *Context) fireTimer(t *Timer, nextDeadline *int64) {
	t.tsMu.Lock()
	now := nowMS()
	fired := now > 0 && t.deadlineMS > 0 && now > t.deadlineMS
	if fired {
		if t.periodMS == 0 {
			// One-shot: deliver once, then go dormant (Invariant 3: a
			// zero timeout only ever governs the first deadline, never
			// whether the timer repeats).
			t.active.Store(false)
			t.deadlineMS = 0
			if !t.threadsafe {
				t.tsMu.Unlock()
				t.ctx.unlink(&t.header)
				t.tsMu.Lock()
			}
		} else {
			// Periodic: the next deadline always advances from now, not
			// from the original timeout (which only ever seeded the
			// first deadline in rearmAllTimers), so a timeout=0 periodic
			// keeps cycling ARMED -> FIRING -> ARMED instead of stopping
			// after its first fire.
			t.deadlineMS = now + t.periodMS
		}
	}
	deadline := t.deadlineMS
	t.tsMu.Unlock()

	if deadline > 0 && (*nextDeadline == noDeadlineMS || deadline < *nextDeadline) {
		*nextDeadline = deadline
	}

	if fired {
		c.invoke(t, t.cb, t.arg, EvRead)
	}
}

func (c *Context) fireIO(w *IOWatcher, got Bits) {
	if got&BitIO == 0 {
		return
	}
	pending := w.loadPending()
	if pending == 0 {
		return
	}
	deliver := pending & EventMask
	c.invoke(w, w.cb, w.arg, deliver)

	// The selector never clears pending bits itself (Ordering
	// guarantees, §5); only the dispatcher does, after the callback has
	// had a chance to act on them, then re-admits the watcher to the
	// next readiness build.
	w.clearPendingBits(deliver)
	if sel := currentSelector(); sel != nil {
		sel.rearm()
	}
}

// invoke calls cb, recovering and logging any panic so user code can
// never unwind the dispatch loop itself (§7: "No exceptions propagate
// out of callbacks").
func (c *Context) invoke(w Watcher, cb Callback, arg interface{}, events Events) {
	defer func() {
		if r := recover(); r != nil {
			c.log.WithField("kind", w.Kind()).WithField("events", events).Warnf("callback panic recovered: %v", r)
		}
	}()
	cb(w, arg, events)
}

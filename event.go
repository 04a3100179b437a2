package uev

import "sync/atomic"

// Event carries an atomic posted-flag; posted from any context including
// a simulated ISR.
type Event struct {
	header
	posted atomic.Bool
}

// NewEvent registers and starts the watcher immediately (unlike I/O and
// timer watchers, an event has no separate armed-but-not-yet-linked
// state: the external interface table lists event_init as "register and
// start").
func NewEvent(c *Context, cb Callback, arg interface{}) (*Event, error) {
	if c == nil || cb == nil {
		return nil, invalidArg(c)
	}
	e := &Event{}
	e.ctx = c
	e.kind = KindEvent
	e.cb = cb
	e.arg = arg
	e.active.Store(true)
	c.link(e, &e.header)
	return e, nil
}

// Post sets the posted-flag and wakes the owning loop via the EVENT bit.
// Callable from any goroutine, including one standing in for an ISR: it
// performs an atomic store and an ISR-safe bit-group set, which holds
// only the bit-group's own mutex briefly; it does not allocate. A
// repeated post before delivery is
// coalesced onto the same flag (at-most-one bit of posted-flag).
func (e *Event) Post() error {
	if e == nil || e.ctx == nil {
		return ErrInvalidArg
	}
	e.posted.Store(true)
	e.ctx.bits.SetFromISR(BitEvent)
	return nil
}

// Stop deactivates the watcher; a no-op when not active.
func (e *Event) Stop() error {
	if !e.active.Load() {
		return nil
	}
	e.active.Store(false)
	e.ctx.unlink(&e.header)
	return nil
}

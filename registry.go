package uev

import (
	"container/list"
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"

	"github.com/ridephysics/uev/internal/evlog"
)

// RunFlags controls Context.Run.
type RunFlags int

const (
	// RunBlocking is the default: Run loops forever, sleeping on the
	// bit-group between iterations.
	RunBlocking RunFlags = 0
	// RunOnce returns after exactly one iteration regardless of whether
	// any callback fired.
	RunOnce RunFlags = 1 << iota
	// RunNonBlock suppresses blocking for one iteration (a poll).
	RunNonBlock
)

// Context is one per loop: a running flag, a wake bit-group, the watcher
// registry (a doubly-linked list per Invariant 1), and a last-error slot.
type Context struct {
	running atomic.Bool
	bits    *BitGroup

	regMu sync.Mutex
	reg   *list.List // element values are Watcher

	lastErrMu sync.Mutex
	lastErr   error

	log *evlog.Logger
}

// NewContext zero-fills a new context, creates its bit-group, and leaves
// running=0. Equivalent to the original context_init.
func NewContext() (*Context, error) {
	c := &Context{
		bits: NewBitGroup(),
		reg:  list.New(),
		log:  evlog.Default(),
	}
	return c, nil
}

// SetLogger installs the logrus logger this context's dispatch loop and
// I/O watchers log routine transitions and recovered panics to. A nil
// logger installs the no-op logger, which is also the default. The
// process-global selector does not use it.
func (c *Context) SetLogger(l *logrus.Logger) {
	c.log = evlog.New(l)
}

// Running reports whether Run is currently driving the loop.
func (c *Context) Running() bool {
	return c.running.Load()
}

// link appends w to the registry under the critical section and records
// the resulting element on h, so stop can unlink in O(1). Linking twice
// without an intervening unlink would violate Invariant 1; callers guard
// against it (Timer.Start checks h.elem == nil, IOWatcher.Start checks
// the active flag, and NewEvent links a fresh watcher).
func (c *Context) link(w Watcher, h *header) {
	c.regMu.Lock()
	h.elem = c.reg.PushBack(w)
	c.regMu.Unlock()
}

// unlink removes w from the registry if linked. Safe to call when already
// unlinked.
func (c *Context) unlink(h *header) {
	c.regMu.Lock()
	if h.elem != nil {
		c.reg.Remove(h.elem)
		h.elem = nil
	}
	c.regMu.Unlock()
}

// Exit walks the registry, stops every active watcher, clears the head,
// sets running=0, and releases the bit-group.
func (c *Context) Exit() {
	c.regMu.Lock()
	var snapshot []Watcher
	for e := c.reg.Front(); e != nil; e = e.Next() {
		snapshot = append(snapshot, e.Value.(Watcher))
	}
	c.regMu.Unlock()

	for _, w := range snapshot {
		stopWatcher(w)
	}

	c.regMu.Lock()
	c.reg.Init()
	c.regMu.Unlock()

	c.running.Store(false)
	c.bits.Release()
}

// stopWatcher dispatches to the concrete Stop method by variant. A plain
// type switch is used rather than adding Stop to the Watcher interface,
// since Stop's unlink-or-retain-linkage behavior differs only for
// TimerTS and callers outside this package always hold a concrete type.
func stopWatcher(w Watcher) {
	switch t := w.(type) {
	case *IOWatcher:
		_ = t.Stop()
	case *Timer:
		_ = t.Stop()
	case *Event:
		_ = t.Stop()
	}
}

package uev

import (
	"container/list"
	"sync"
	"sync/atomic"
)

// IOWatcher carries a descriptor, a user-requested event mask, and an
// atomic pending-events word written by the selector and cleared after
// dispatch (Invariant 2).
type IOWatcher struct {
	header

	mu sync.Mutex // guards fd/lastMask
	fd int

	pending atomic.Uint32 // Events bits, OR-accumulated by the selector

	selElem *list.Element // linkage in the selector's iolist, guarded by the selector's global critical section
}

// NewIOWatcher fills the common fields; the watcher is not started.
func NewIOWatcher(c *Context, cb Callback, arg interface{}, fd int, mask Events) (*IOWatcher, error) {
	if c == nil || cb == nil {
		return nil, invalidArg(c)
	}
	w := &IOWatcher{fd: fd}
	w.ctx = c
	w.kind = KindIO
	w.cb = cb
	w.arg = arg
	w.lastMask = mask & EventMask
	return w, nil
}

// Set updates the watched descriptor and the last-requested event mask
// (header.lastMask), the common field every watcher variant carries for
// its own notion of "what I last asked to be notified about".
func (w *IOWatcher) Set(fd int, mask Events) error {
	w.mu.Lock()
	w.fd = fd
	w.lastMask = mask & EventMask
	w.mu.Unlock()
	return nil
}

func (w *IOWatcher) snapshot() (fd int, mask Events) {
	w.mu.Lock()
	fd, mask = w.fd, w.lastMask
	w.mu.Unlock()
	return
}

// Start arms the watcher: links it into the context registry (so the
// dispatch loop's walk finds it, per Invariant 6) and registers it with
// the process-global I/O selector. A no-op when already active. Fails
// with ErrInvalidArg when fd < 0.
func (w *IOWatcher) Start() error {
	if w.ctx == nil {
		return invalidArg(nil)
	}
	fd, _ := w.snapshot()
	if fd < 0 {
		return invalidArg(w.ctx)
	}
	if w.active.Load() {
		return nil
	}
	w.active.Store(true)
	w.ctx.link(w, &w.header)

	sel, err := ensureSelector()
	if err != nil {
		w.active.Store(false)
		w.ctx.unlink(&w.header)
		return w.ctx.setLastError(err)
	}
	sel.add(w)
	w.ctx.log.Debugf("io watcher fd=%d armed", fd)
	return nil
}

// Stop disarms the watcher: a no-op when not active, otherwise removes it
// from the selector's iolist and unlinks it from the context registry.
func (w *IOWatcher) Stop() error {
	if !w.active.Load() {
		return nil
	}
	w.active.Store(false)
	if sel := currentSelector(); sel != nil {
		sel.remove(w)
	}
	w.ctx.unlink(&w.header)
	w.ctx.log.Debugf("io watcher stopped")
	return nil
}

func (w *IOWatcher) orPending(bits Events) (added Events) {
	for {
		old := Events(w.pending.Load())
		nw := old | bits
		if w.pending.CompareAndSwap(uint32(old), uint32(nw)) {
			return nw &^ old
		}
	}
}

func (w *IOWatcher) loadPending() Events {
	return Events(w.pending.Load())
}

func (w *IOWatcher) clearPendingBits(bits Events) {
	for {
		old := Events(w.pending.Load())
		nw := old &^ bits
		if w.pending.CompareAndSwap(uint32(old), uint32(nw)) {
			return
		}
	}
}

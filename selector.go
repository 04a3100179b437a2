//go:build linux || darwin || netbsd || freebsd || openbsd || dragonfly
// +build linux darwin netbsd freebsd openbsd dragonfly

package uev

import (
	"container/list"
	"net"
	"sync"
	"time"

	"golang.org/x/sys/unix"

	"github.com/ridephysics/uev/internal/evlog"
)

// ioSelector is the single background cooperative task that builds
// readiness sets over all active I/O watchers (of every context) and
// pushes readiness bits into their atomic pending-events word. It owns a
// UDP loopback socket (the wake socket) and the iolist, both the sole
// subject of the global critical section per Invariant 6.
type ioSelector struct {
	wakeFD   int
	wakeAddr unix.Sockaddr

	mu     sync.Mutex
	iolist *list.List // element Value = *IOWatcher

	fatalMu sync.Mutex
	fatal   error

	log *evlog.Logger
}

var (
	selMu     sync.Mutex
	selOnce   sync.Once
	singleton *ioSelector
	selErr    error
)

// ensureSelector lazily starts the one-per-process selector task. Safe to
// call repeatedly; only the first call does any work.
func ensureSelector() (*ioSelector, error) {
	selOnce.Do(func() {
		s, err := newSelector()
		if err != nil {
			selErr = err
			return
		}
		selMu.Lock()
		singleton = s
		selMu.Unlock()
		go s.run()
	})
	return singleton, selErr
}

// StartIOThread starts the selector task once per process. Equivalent to
// the original iothread_init; idempotent.
func StartIOThread() error {
	_, err := ensureSelector()
	return err
}

func currentSelector() *ioSelector {
	selMu.Lock()
	defer selMu.Unlock()
	return singleton
}

// newSelector opens the wake socket. The underlying fd is duplicated out
// of the Go-managed *net.UDPConn and operated on with raw syscalls from
// then on, the same ownership transfer the teacher performs in
// dupconn()/aio_generic.go before closing the original net.Conn.
func newSelector() (*ioSelector, error) {
	addr, err := net.ResolveUDPAddr("udp", "127.0.0.1:0")
	if err != nil {
		return nil, ErrResourceExhausted
	}
	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return nil, ErrResourceExhausted
	}

	rc, err := conn.SyscallConn()
	if err != nil {
		conn.Close()
		return nil, ErrResourceExhausted
	}

	var dupfd int
	var dupErr error
	cerr := rc.Control(func(p uintptr) {
		dupfd, dupErr = unix.Dup(int(p))
	})

	local := conn.LocalAddr().(*net.UDPAddr)
	// We now own dupfd; the original connection can be closed, exactly
	// as the teacher closes pcb.conn right after duplicating its fd.
	conn.Close()

	if cerr != nil {
		return nil, ErrResourceExhausted
	}
	if dupErr != nil {
		return nil, ErrResourceExhausted
	}

	if err := unix.SetNonblock(dupfd, true); err != nil {
		unix.Close(dupfd)
		return nil, ErrResourceExhausted
	}

	sa := &unix.SockaddrInet4{Port: local.Port}
	copy(sa.Addr[:], local.IP.To4())

	return &ioSelector{
		wakeFD:   dupfd,
		wakeAddr: sa,
		iolist:   list.New(),
		log:      evlog.Default(),
	}, nil
}

// wake writes one byte to the selector's own wake socket address,
// causing its current select() to return. Every iolist mutation and
// every post-dispatch drain emits exactly one wake byte.
func (s *ioSelector) wake() {
	for {
		err := unix.Sendto(s.wakeFD, []byte{0}, 0, s.wakeAddr)
		if err == unix.EINTR {
			continue
		}
		return
	}
}

// add registers w with the selector under the global critical section,
// then wakes the selector to force a readiness-set rebuild.
func (s *ioSelector) add(w *IOWatcher) {
	s.mu.Lock()
	w.selElem = s.iolist.PushBack(w)
	s.mu.Unlock()
	s.wake()
}

// remove unregisters w, if still registered, under the critical section.
func (s *ioSelector) remove(w *IOWatcher) {
	s.mu.Lock()
	if w.selElem != nil {
		s.iolist.Remove(w.selElem)
		w.selElem = nil
	}
	s.mu.Unlock()
	s.wake()
}

// rearm is called by the dispatcher after it clears a watcher's
// delivered pending bits, re-admitting that watcher to the next
// readiness-set build (Contract with the dispatcher).
func (s *ioSelector) rearm() {
	s.wake()
}

func (s *ioSelector) fail(err error) {
	s.fatalMu.Lock()
	s.fatal = err
	s.fatalMu.Unlock()
	s.log.Warnf("io selector task terminating, I/O dispatch stopped: %v", err)
}

// Err reports the condition that terminated the selector task, if any.
// Timer and event watchers in any context continue to function; only
// further I/O watcher registrations silently stop producing events.
func (s *ioSelector) Err() error {
	s.fatalMu.Lock()
	defer s.fatalMu.Unlock()
	return s.fatal
}

// run is the selector loop: build fd-sets, select, drain the wake
// socket, deliver readiness bits. It runs exactly once per process.
func (s *ioSelector) run() {
	drainBuf := make([]byte, 1)

	for {
		var rset, wset, eset unix.FdSet
		fdZero(&rset)
		fdZero(&wset)
		fdZero(&eset)

		fdSet(&rset, s.wakeFD)
		maxFD := s.wakeFD

		s.mu.Lock()
		watchers := make([]*IOWatcher, 0, s.iolist.Len())
		for e := s.iolist.Front(); e != nil; e = e.Next() {
			iow := e.Value.(*IOWatcher)
			if !iow.Active() {
				continue
			}
			fd, mask := iow.snapshot()
			if fd < 0 {
				continue
			}
			// Watchers with undelivered events are excluded to
			// prevent a wakeup storm.
			if iow.loadPending() != 0 {
				continue
			}
			if mask&EvRead != 0 {
				fdSet(&rset, fd)
			}
			if mask&EvWrite != 0 {
				fdSet(&wset, fd)
			}
			if mask&EvError != 0 {
				fdSet(&eset, fd)
			}
			if fd > maxFD {
				maxFD = fd
			}
			watchers = append(watchers, iow)
		}
		s.mu.Unlock()

		n, err := unix.Select(maxFD+1, &rset, &wset, &eset, nil)
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			time.Sleep(time.Second)
			continue
		}
		if n == 0 {
			continue
		}

		if fdIsSet(&rset, s.wakeFD) {
			for {
				_, _, rerr := unix.Recvfrom(s.wakeFD, drainBuf, 0)
				if rerr == nil {
					continue
				}
				if rerr == unix.EAGAIN || rerr == unix.EWOULDBLOCK {
					break
				}
				if rerr == unix.EINTR {
					continue
				}
				// EOF or any other error is fatal to the I/O
				// subsystem only; timers and events elsewhere
				// keep working.
				s.fail(rerr)
				return
			}
		}

		for _, iow := range watchers {
			fd, mask := iow.snapshot()
			var got Events
			if fdIsSet(&rset, fd) && mask&EvRead != 0 {
				got |= EvRead
			}
			if fdIsSet(&wset, fd) && mask&EvWrite != 0 {
				got |= EvWrite
			}
			if fdIsSet(&eset, fd) && mask&EvError != 0 {
				got |= EvError
			}
			if got == 0 {
				continue
			}
			if added := iow.orPending(got); added != 0 {
				iow.ctx.bits.Set(BitIO)
			}
		}
	}
}

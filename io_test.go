//go:build linux || darwin || netbsd || freebsd || openbsd || dragonfly
// +build linux darwin netbsd freebsd openbsd dragonfly

package uev

import (
	"os"
	"sync/atomic"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// Scenario 4: a pipe whose read end is watched for READ; write one byte,
// run ONCE, assert one READ callback whose pending-events was cleared;
// run ONCE again without additional writes; no callback fires.
func TestIOPipeReadAndSelectorDrain(t *testing.T) {
	ctx, err := NewContext()
	require.NoError(t, err)

	r, w, err := os.Pipe()
	require.NoError(t, err)
	defer r.Close()
	defer w.Close()

	var received int32
	var gotBuf []byte
	iow, err := NewIOWatcher(ctx, func(watcher Watcher, arg interface{}, events Events) {
		require.NotZero(t, events&EvRead)
		buf := make([]byte, 16)
		n, _ := syscall.Read(int(r.Fd()), buf)
		gotBuf = append([]byte(nil), buf[:n]...)
		atomic.AddInt32(&received, 1)
	}, nil, int(r.Fd()), EvRead)
	require.NoError(t, err)
	require.NoError(t, iow.Start())

	_, err = w.Write([]byte("hi"))
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		_ = ctx.Run(RunOnce | RunNonBlock)
		return atomic.LoadInt32(&received) == 1
	}, 2*time.Second, 10*time.Millisecond)
	require.Equal(t, "hi", string(gotBuf))

	// No further write: pending was cleared by the dispatcher after
	// delivery, and the descriptor has no new data, so nothing fires.
	time.Sleep(30 * time.Millisecond)
	require.NoError(t, ctx.Run(RunOnce|RunNonBlock))
	require.EqualValues(t, 1, atomic.LoadInt32(&received))
}

func TestIOStartRejectsNegativeFD(t *testing.T) {
	ctx, err := NewContext()
	require.NoError(t, err)

	iow, err := NewIOWatcher(ctx, func(Watcher, interface{}, Events) {}, nil, -1, EvRead)
	require.NoError(t, err)
	require.ErrorIs(t, iow.Start(), ErrInvalidArg)
	require.False(t, iow.Active())
}

// An I/O watcher whose requested mask excludes WRITE never receives
// WRITE bits.
func TestIOWatcherMaskExcludesWrite(t *testing.T) {
	ctx, err := NewContext()
	require.NoError(t, err)

	r, w, err := os.Pipe()
	require.NoError(t, err)
	defer r.Close()
	defer w.Close()

	var gotEvents Events
	var fired int32
	iow, err := NewIOWatcher(ctx, func(watcher Watcher, arg interface{}, events Events) {
		gotEvents = events
		atomic.AddInt32(&fired, 1)
	}, nil, int(r.Fd()), EvRead) // mask excludes EvWrite
	require.NoError(t, err)
	require.NoError(t, iow.Start())

	_, err = w.Write([]byte("x"))
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		_ = ctx.Run(RunOnce | RunNonBlock)
		return atomic.LoadInt32(&fired) == 1
	}, 2*time.Second, 10*time.Millisecond)

	require.Zero(t, gotEvents&EvWrite)
}

func TestIOStopPreventsFurtherCallbacks(t *testing.T) {
	ctx, err := NewContext()
	require.NoError(t, err)

	r, w, err := os.Pipe()
	require.NoError(t, err)
	defer r.Close()
	defer w.Close()

	var fired int32
	iow, err := NewIOWatcher(ctx, func(Watcher, interface{}, Events) {
		atomic.AddInt32(&fired, 1)
	}, nil, int(r.Fd()), EvRead)
	require.NoError(t, err)
	require.NoError(t, iow.Start())
	require.NoError(t, iow.Stop())
	require.False(t, iow.Active())

	_, err = w.Write([]byte("x"))
	require.NoError(t, err)

	for i := 0; i < 20; i++ {
		_ = ctx.Run(RunOnce | RunNonBlock)
		time.Sleep(10 * time.Millisecond)
	}
	require.Zero(t, atomic.LoadInt32(&fired))
}

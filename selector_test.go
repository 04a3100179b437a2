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

// Design note "Open question — I/O rearm race": the selector excludes a
// watcher with a non-zero pending-events word from the next readiness
// build; the dispatcher clears those bits only after the callback
// returns, then rearms. A callback that does not fully drain a
// level-triggered descriptor keeps getting redelivered on subsequent
// iterations rather than being dropped — this is the documented,
// intentional behavior, verified here by deliberately reading fewer
// bytes than were written and checking the data is eventually delivered
// across several iterations rather than in one.
func TestIORearmRaceRedeliversUntilDrained(t *testing.T) {
	ctx, err := NewContext()
	require.NoError(t, err)

	r, w, err := os.Pipe()
	require.NoError(t, err)
	defer r.Close()
	defer w.Close()

	var totalRead int32
	var callbacks int32
	iow, err := NewIOWatcher(ctx, func(watcher Watcher, arg interface{}, events Events) {
		buf := make([]byte, 2) // deliberately small: never drains in one callback
		n, _ := syscall.Read(int(r.Fd()), buf)
		atomic.AddInt32(&totalRead, int32(n))
		atomic.AddInt32(&callbacks, 1)
	}, nil, int(r.Fd()), EvRead)
	require.NoError(t, err)
	require.NoError(t, iow.Start())

	payload := []byte("abcdef") // 6 bytes, needs >= 3 callbacks of 2 bytes each
	_, err = w.Write(payload)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		_ = ctx.Run(RunOnce | RunNonBlock)
		return atomic.LoadInt32(&totalRead) >= int32(len(payload))
	}, 3*time.Second, 10*time.Millisecond)

	require.EqualValues(t, len(payload), atomic.LoadInt32(&totalRead))
	require.GreaterOrEqual(t, atomic.LoadInt32(&callbacks), int32(3))
}

func TestStartIOThreadIdempotent(t *testing.T) {
	require.NoError(t, StartIOThread())
	require.NoError(t, StartIOThread())
	require.NotNil(t, currentSelector())
}

package uev

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestBitGroupSetWaitClearsOnRead(t *testing.T) {
	g := NewBitGroup()
	g.Set(BitIO)
	got := g.Wait(BitIO|BitEvent|BitTimer, time.Second)
	require.Equal(t, BitIO, got)

	// cleared: a second wait with a short timeout sees nothing.
	got = g.Wait(BitIO, 10*time.Millisecond)
	require.Zero(t, got)
}

func TestBitGroupNonBlockingPoll(t *testing.T) {
	g := NewBitGroup()
	start := time.Now()
	got := g.Wait(BitIO, 0)
	require.Zero(t, got)
	require.Less(t, time.Since(start), 50*time.Millisecond)
}

func TestBitGroupForeverWakesOnSet(t *testing.T) {
	g := NewBitGroup()
	done := make(chan Bits, 1)
	go func() {
		done <- g.Wait(BitEvent, Forever)
	}()

	time.Sleep(20 * time.Millisecond)
	g.SetFromISR(BitEvent)

	select {
	case got := <-done:
		require.Equal(t, BitEvent, got)
	case <-time.After(time.Second):
		t.Fatal("Wait(Forever) never woke on Set")
	}
}

func TestBitGroupRelease(t *testing.T) {
	g := NewBitGroup()
	done := make(chan Bits, 1)
	go func() {
		done <- g.Wait(allBits, Forever)
	}()

	time.Sleep(20 * time.Millisecond)
	g.Release()

	select {
	case got := <-done:
		require.Zero(t, got)
	case <-time.After(time.Second):
		t.Fatal("Wait never woke on Release")
	}
}

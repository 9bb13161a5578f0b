package inotify

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"

	"github.com/Samsung/vasum-ipc/poll"
)

func newTestMultiplexer(t *testing.T) (*poll.Poll, *Multiplexer) {
	t.Helper()
	p, err := poll.New()
	require.NoError(t, err)
	t.Cleanup(func() { p.Close() })

	m, err := New(p, Config{FlushInterval: 10 * time.Millisecond})
	require.NoError(t, err)
	t.Cleanup(func() { m.Close() })

	return p, m
}

// pump runs DispatchIteration until cond is true or timeout elapses.
func pump(t *testing.T, p *poll.Poll, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		_, _ = p.DispatchIteration(10)
	}
	t.Fatal("condition never became true")
}

func TestWatchReceivesCreateAndWriteEvents(t *testing.T) {
	p, m := newTestMultiplexer(t)
	dir := t.TempDir()

	got := make(chan []Event, 8)
	require.NoError(t, m.Watch(dir, unix.IN_CREATE|unix.IN_CLOSE_WRITE, func(evs []Event) { got <- evs }))

	f, err := os.Create(filepath.Join(dir, "hello.txt"))
	require.NoError(t, err)
	_, err = f.WriteString("hi")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	var masks uint32
	pump(t, p, time.Second, func() bool {
		select {
		case evs := <-got:
			for _, e := range evs {
				masks |= e.Mask
				require.Equal(t, dir, e.Path)
				require.Equal(t, "hello.txt", e.Name)
			}
		default:
		}
		return masks&unix.IN_CREATE != 0 && masks&unix.IN_CLOSE_WRITE != 0
	})
}

func TestUnwatchStopsFurtherEvents(t *testing.T) {
	p, m := newTestMultiplexer(t)
	dir := t.TempDir()

	got := make(chan []Event, 8)
	require.NoError(t, m.Watch(dir, unix.IN_CREATE, func(evs []Event) { got <- evs }))
	require.NoError(t, m.Unwatch(dir))
	require.NoError(t, m.Unwatch(dir)) // idempotent

	_, err := os.Create(filepath.Join(dir, "ignored.txt"))
	require.NoError(t, err)

	// Drain a few iterations; nothing should ever arrive on got.
	for i := 0; i < 20; i++ {
		_, _ = p.DispatchIteration(5)
		select {
		case evs := <-got:
			t.Fatalf("unexpected event after Unwatch: %+v", evs)
		default:
		}
	}
}

func TestWatchTwiceUpdatesMaskAndCallback(t *testing.T) {
	p, m := newTestMultiplexer(t)
	dir := t.TempDir()

	firstCalled := make(chan struct{}, 1)
	require.NoError(t, m.Watch(dir, unix.IN_CREATE, func([]Event) { firstCalled <- struct{}{} }))

	secondGot := make(chan []Event, 8)
	require.NoError(t, m.Watch(dir, unix.IN_CREATE, func(evs []Event) { secondGot <- evs }))

	_, err := os.Create(filepath.Join(dir, "again.txt"))
	require.NoError(t, err)

	pump(t, p, time.Second, func() bool {
		select {
		case <-secondGot:
			return true
		default:
			return false
		}
	})
	select {
	case <-firstCalled:
		t.Fatal("stale callback from the first Watch call must not fire")
	default:
	}
}

func TestCloseRemovesFromPoll(t *testing.T) {
	p, m := newTestMultiplexer(t)
	require.NoError(t, m.Close())
	// The inotify fd is no longer registered with the poll.
	require.ErrorIs(t, p.Remove(m.fd), poll.ErrNotRegistered)
	// A second Close surfaces unix.Close's own error for an already
	// closed fd rather than panicking.
	require.Error(t, m.Close())
}

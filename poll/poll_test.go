package poll

import (
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func TestAddDispatchRemove(t *testing.T) {
	p, err := New()
	require.NoError(t, err)
	defer p.Close()

	var fds [2]int
	require.NoError(t, unix.Pipe(fds[:]))
	defer unix.Close(fds[0])
	defer unix.Close(fds[1])

	fired := make(chan Events, 1)
	require.NoError(t, p.Add(fds[0], In, func(ev Events) { fired <- ev }))

	_, err = unix.Write(fds[1], []byte{1})
	require.NoError(t, err)

	ok, err := p.DispatchIteration(1000)
	require.NoError(t, err)
	require.True(t, ok)
	ev := <-fired
	require.NotZero(t, ev&In)

	require.NoError(t, p.Remove(fds[0]))
	require.ErrorIs(t, p.Remove(fds[0]), ErrNotRegistered)
}

func TestAddDuplicateRejected(t *testing.T) {
	p, err := New()
	require.NoError(t, err)
	defer p.Close()

	var fds [2]int
	require.NoError(t, unix.Pipe(fds[:]))
	defer unix.Close(fds[0])
	defer unix.Close(fds[1])

	require.NoError(t, p.Add(fds[0], In, func(Events) {}))
	require.ErrorIs(t, p.Add(fds[0], In, func(Events) {}), ErrAlreadyRegistered)
}

func TestModifyUnknownFD(t *testing.T) {
	p, err := New()
	require.NoError(t, err)
	defer p.Close()

	require.ErrorIs(t, p.Modify(999999, Out), ErrNotRegistered)
}

func TestDispatchIterationTimeout(t *testing.T) {
	p, err := New()
	require.NoError(t, err)
	defer p.Close()

	ok, err := p.DispatchIteration(10)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestCloseIdempotentAndRejectsFurtherOps(t *testing.T) {
	p, err := New()
	require.NoError(t, err)
	require.NoError(t, p.Close())
	require.NoError(t, p.Close())

	require.ErrorIs(t, p.Add(0, In, func(Events) {}), ErrClosed)
}

func TestNestedPollFD(t *testing.T) {
	inner, err := New()
	require.NoError(t, err)
	defer inner.Close()

	outer, err := New()
	require.NoError(t, err)
	defer outer.Close()

	// A Poll's own FD can be registered with a parent Poll, since epoll
	// instances are themselves pollable.
	require.NoError(t, outer.Add(inner.FD(), In, func(Events) {}))
}

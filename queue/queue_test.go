package queue

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestPushBackPopFIFOOrder(t *testing.T) {
	q, err := New()
	require.NoError(t, err)
	defer q.Close()

	q.PushBack(Method, 1)
	q.PushBack(Signal, 2)

	e1 := q.Pop()
	require.Equal(t, Method, e1.Tag)
	require.Equal(t, 1, e1.Payload)

	e2 := q.Pop()
	require.Equal(t, Signal, e2.Tag)
	require.Equal(t, 2, e2.Payload)
}

func TestPushFrontPreempts(t *testing.T) {
	q, err := New()
	require.NoError(t, err)
	defer q.Close()

	q.PushBack(Method, "back")
	q.PushFront(Finish, "front")

	e := q.Pop()
	require.Equal(t, Finish, e.Tag)
	require.Equal(t, "front", e.Payload)
}

func TestTryPopEmpty(t *testing.T) {
	q, err := New()
	require.NoError(t, err)
	defer q.Close()

	_, ok := q.TryPop()
	require.False(t, ok)
}

func TestRemoveIf(t *testing.T) {
	q, err := New()
	require.NoError(t, err)
	defer q.Close()

	q.PushBack(Method, 1)
	q.PushBack(Method, 2)
	q.PushBack(Method, 3)

	e, ok := q.RemoveIf(func(e Entry) bool { return e.Payload == 2 })
	require.True(t, ok)
	require.Equal(t, 2, e.Payload)
	require.Equal(t, 2, q.Size())

	_, ok = q.RemoveIf(func(e Entry) bool { return e.Payload == 99 })
	require.False(t, ok)
}

func TestSizeAndIsEmpty(t *testing.T) {
	q, err := New()
	require.NoError(t, err)
	defer q.Close()

	require.True(t, q.IsEmpty())
	q.PushBack(Method, nil)
	require.False(t, q.IsEmpty())
	require.Equal(t, 1, q.Size())
}

func TestEventFDSignaledOnPush(t *testing.T) {
	q, err := New()
	require.NoError(t, err)
	defer q.Close()

	q.PushBack(Method, nil)

	had, err := q.EventFD().Drain()
	require.NoError(t, err)
	require.True(t, had)
}

func TestPopBlocksUntilPush(t *testing.T) {
	q, err := New()
	require.NoError(t, err)
	defer q.Close()

	done := make(chan Entry, 1)
	go func() { done <- q.Pop() }()

	time.Sleep(20 * time.Millisecond)
	q.PushBack(Signal, "late")

	select {
	case e := <-done:
		require.Equal(t, Signal, e.Tag)
	case <-time.After(time.Second):
		t.Fatal("Pop did not unblock after push")
	}
}

func TestTagString(t *testing.T) {
	require.Equal(t, "FINISH", Finish.String())
	require.Equal(t, "METHOD", Method.String())
	require.Equal(t, "SIGNAL", Signal.String())
	require.Equal(t, "ADD_PEER", AddPeer.String())
	require.Equal(t, "REMOVE_PEER", RemovePeer.String())
	require.Equal(t, "SEND_RESULT", SendResult.String())
	require.Equal(t, "REMOVE_METHOD", RemoveMethod.String())
	require.Equal(t, "UNKNOWN", Tag(99).String())
}

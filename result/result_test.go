package result

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSetThenGet(t *testing.T) {
	r := New[int]()
	require.False(t, r.IsSet())

	r.Set(42)
	require.True(t, r.IsSet())
	require.True(t, r.IsValid())

	v, err := r.Get()
	require.NoError(t, err)
	require.Equal(t, 42, v)
}

func TestSetErrorThenGet(t *testing.T) {
	r := New[string]()
	boom := errors.New("boom")
	r.SetError(boom)

	require.True(t, r.IsSet())
	require.False(t, r.IsValid())

	v, err := r.Get()
	require.ErrorIs(t, err, boom)
	require.Equal(t, "", v)
	require.ErrorIs(t, r.Rethrow(), boom)
}

func TestFirstSettleWins(t *testing.T) {
	r := New[int]()
	r.Set(1)
	r.Set(2)
	r.SetError(errors.New("ignored"))

	v, err := r.Get()
	require.NoError(t, err)
	require.Equal(t, 1, v)
}

func TestGetBeforeSetReturnsErrNotSet(t *testing.T) {
	r := New[int]()
	_, err := r.Get()
	require.ErrorIs(t, err, ErrNotSet)
}

func TestWaitUnblocksOnSet(t *testing.T) {
	r := New[int]()
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		time.Sleep(10 * time.Millisecond)
		r.Set(7)
	}()

	require.True(t, r.Wait(time.Second))
	v, err := r.Get()
	require.NoError(t, err)
	require.Equal(t, 7, v)
	wg.Wait()
}

func TestWaitTimesOut(t *testing.T) {
	r := New[int]()
	ok := r.Wait(20 * time.Millisecond)
	require.False(t, ok)
	require.False(t, r.IsSet())
}

func TestWaitZeroTimeoutBlocksIndefinitely(t *testing.T) {
	r := New[int]()
	done := make(chan struct{})
	go func() {
		defer close(done)
		r.Wait(0)
	}()

	select {
	case <-done:
		t.Fatal("Wait(0) returned before Set")
	case <-time.After(50 * time.Millisecond):
	}

	r.Set(1)
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Wait(0) never returned after Set")
	}
}

func TestBuilder(t *testing.T) {
	b, r := NewBuilder[string]()
	b.FromValue("ok")
	v, err := r.Get()
	require.NoError(t, err)
	require.Equal(t, "ok", v)

	b2, r2 := NewBuilder[string]()
	boom := errors.New("boom")
	b2.FromError(boom)
	_, err = r2.Get()
	require.ErrorIs(t, err, boom)
}

// Package result implements the Result[T]/latch abstraction used to turn
// the processor's asynchronous completions into synchronous-looking
// calls: a lazy cell that transitions unset -> set exactly once, carrying
// either a value or an error, plus a condition-variable latch a caller
// can wait on with a timeout.
package result

import (
	"errors"
	"sync"
	"time"
)

// ErrNotSet is returned by Get when the Result has not yet settled.
var ErrNotSet = errors.New("result: not set")

// Result is a lazy cell carrying exactly one of: a value of type T, an
// error, or nothing (unset). It transitions unset -> set exactly once;
// further Set/SetError calls are no-ops.
type Result[T any] struct {
	mu    sync.Mutex
	cond  *sync.Cond
	set   bool
	value T
	err   error
}

// New returns an unset Result.
func New[T any]() *Result[T] {
	r := &Result[T]{}
	r.cond = sync.NewCond(&r.mu)
	return r
}

// IsSet reports whether the Result has settled (value or error).
func (r *Result[T]) IsSet() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.set
}

// IsValid reports whether the Result settled with a value (no error).
func (r *Result[T]) IsValid() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.set && r.err == nil
}

// Set fulfills the Result with a value. The first call wins; subsequent
// calls (Set or SetError) are ignored.
func (r *Result[T]) Set(v T) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.set {
		return
	}
	r.value = v
	r.set = true
	r.cond.Broadcast()
}

// SetError fulfills the Result with an error. The first call wins.
func (r *Result[T]) SetError(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.set {
		return
	}
	r.err = err
	r.set = true
	r.cond.Broadcast()
}

// Get returns the value if valid, or the captured error. If the Result
// is not yet set, it returns the zero value and ErrNotSet.
func (r *Result[T]) Get() (T, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.set {
		var zero T
		return zero, ErrNotSet
	}
	return r.value, r.err
}

// Rethrow returns the captured error, or nil if the Result is unset or
// settled successfully.
func (r *Result[T]) Rethrow() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}

// Wait blocks until the Result is set or timeout elapses, returning
// false on timeout. A non-positive timeout blocks indefinitely.
// Wait releases the internal mutex while parked, so Set/SetError from
// another goroutine may proceed; it is the synchronization point that
// makes the "is it set yet" predicate visible to the waiter.
func (r *Result[T]) Wait(timeout time.Duration) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.set {
		return true
	}
	if timeout <= 0 {
		for !r.set {
			r.cond.Wait()
		}
		return true
	}

	deadline := time.Now().Add(timeout)
	done := make(chan struct{})
	timedOut := false
	timer := time.AfterFunc(timeout, func() {
		r.mu.Lock()
		timedOut = true
		r.cond.Broadcast()
		r.mu.Unlock()
		close(done)
	})
	defer timer.Stop()

	for !r.set && !timedOut && time.Now().Before(deadline) {
		r.cond.Wait()
	}
	return r.set
}

// Builder constructs a Result either from data or from a captured error,
// mirroring the source's ResultBuilder: a single helper that settles
// whichever of the two branches the caller's async operation produced.
type Builder[T any] struct {
	r *Result[T]
}

// NewBuilder allocates a fresh Result and a Builder bound to it.
func NewBuilder[T any]() (*Builder[T], *Result[T]) {
	r := New[T]()
	return &Builder[T]{r: r}, r
}

// FromValue settles the bound Result with v.
func (b *Builder[T]) FromValue(v T) { b.r.Set(v) }

// FromError settles the bound Result with err.
func (b *Builder[T]) FromError(err error) { b.r.SetError(err) }

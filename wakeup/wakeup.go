// Package wakeup implements the EventFD primitive: a one-shot,
// edge-counted wakeup used to nudge a reactor from any thread.
package wakeup

import (
	"fmt"
	"sync/atomic"

	"golang.org/x/sys/unix"
)

// EventFD wraps a Linux eventfd(2) in counting mode. Any number of
// concurrent Signal calls coalesce into a single readiness edge; Drain
// resets the counter to zero and reports whether it was non-zero.
type EventFD struct {
	fd     int
	closed atomic.Bool
}

// New creates a non-blocking eventfd with FD_CLOEXEC set, counter
// initialized to zero.
func New() (*EventFD, error) {
	fd, err := unix.Eventfd(0, unix.EFD_CLOEXEC|unix.EFD_NONBLOCK)
	if err != nil {
		return nil, fmt.Errorf("wakeup: eventfd: %w", err)
	}
	return &EventFD{fd: fd}, nil
}

// FD returns the underlying file descriptor, suitable for registration
// with a poll.Poll.
func (e *EventFD) FD() int {
	return e.fd
}

// Signal increments the eventfd counter by one, making FD() readable.
// Safe to call from any goroutine, any number of times; readers observe
// at most one readiness edge until the next Drain. After Close, Signal
// does nothing and returns nil.
func (e *EventFD) Signal() error {
	if e.closed.Load() {
		return nil
	}
	var buf [8]byte
	buf[7] = 1
	_, err := unix.Write(e.fd, buf[:])
	if err != nil && err != unix.EAGAIN {
		return fmt.Errorf("wakeup: write: %w", err)
	}
	return nil
}

// Drain reads and resets the counter. Returns true if the counter was
// non-zero (i.e. there had been at least one pending Signal).
func (e *EventFD) Drain() (bool, error) {
	var buf [8]byte
	_, err := unix.Read(e.fd, buf[:])
	if err != nil {
		if err == unix.EAGAIN {
			return false, nil
		}
		return false, fmt.Errorf("wakeup: read: %w", err)
	}
	return true, nil
}

// Close closes the underlying file descriptor. Idempotent.
func (e *EventFD) Close() error {
	if e.closed.Swap(true) {
		return nil
	}
	if err := unix.Close(e.fd); err != nil {
		return fmt.Errorf("wakeup: close: %w", err)
	}
	return nil
}

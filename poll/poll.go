// Package poll wraps a Linux epoll instance as a level-triggered FD
// multiplexor: per-FD callback registration with atomic add/modify/remove,
// and one-iteration dispatch with a timeout. A Poll can itself be nested
// inside another Poll via FD().
package poll

import (
	"errors"
	"fmt"
	"sync"

	"golang.org/x/sys/unix"
)

// Events is a bitmask of the I/O conditions a callback is interested in,
// or that fired.
type Events uint32

const (
	In  Events = unix.EPOLLIN
	Out Events = unix.EPOLLOUT
	Err Events = unix.EPOLLERR
	Hup Events = unix.EPOLLHUP
	// RdHup fires when the peer shut down its write half or closed.
	RdHup Events = unix.EPOLLRDHUP
)

// Callback is invoked with the events that fired on a registered FD.
type Callback func(Events)

var (
	// ErrAlreadyRegistered is returned by Add when fd is already known.
	ErrAlreadyRegistered = errors.New("poll: fd already registered")
	// ErrNotRegistered is returned by Modify/Remove for an unknown fd.
	ErrNotRegistered = errors.New("poll: fd not registered")
	// ErrClosed is returned by any operation on a closed Poll.
	ErrClosed = errors.New("poll: poll is closed")
)

type entry struct {
	cb     Callback
	events Events
}

// Poll is a level-triggered multiplexor over a single epoll instance.
// Safe for concurrent use; a callback invoked by DispatchIteration may
// itself call Add/Modify/Remove, including for its own FD.
type Poll struct {
	mu     sync.Mutex
	epfd   int
	fds    map[int]*entry
	closed bool
}

// New creates and initializes a new epoll instance.
func New() (*Poll, error) {
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, fmt.Errorf("poll: epoll_create1: %w", err)
	}
	return &Poll{epfd: epfd, fds: make(map[int]*entry)}, nil
}

// FD exposes the poll object's own file descriptor, so it can be
// registered as a callback inside a parent Poll (nested reactors).
func (p *Poll) FD() int {
	return p.epfd
}

// Add registers fd for eventmask, invoking cb whenever it fires. Fails if
// fd is already registered.
func (p *Poll) Add(fd int, eventmask Events, cb Callback) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrClosed
	}
	if _, ok := p.fds[fd]; ok {
		return ErrAlreadyRegistered
	}
	ev := &unix.EpollEvent{Events: uint32(eventmask), Fd: int32(fd)}
	if err := unix.EpollCtl(p.epfd, unix.EPOLL_CTL_ADD, fd, ev); err != nil {
		return fmt.Errorf("poll: epoll_ctl add: %w", err)
	}
	p.fds[fd] = &entry{cb: cb, events: eventmask}
	return nil
}

// Modify changes the eventmask for an already-registered fd. Fails if fd
// is not registered.
func (p *Poll) Modify(fd int, eventmask Events) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrClosed
	}
	e, ok := p.fds[fd]
	if !ok {
		return ErrNotRegistered
	}
	ev := &unix.EpollEvent{Events: uint32(eventmask), Fd: int32(fd)}
	if err := unix.EpollCtl(p.epfd, unix.EPOLL_CTL_MOD, fd, ev); err != nil {
		return fmt.Errorf("poll: epoll_ctl mod: %w", err)
	}
	e.events = eventmask
	return nil
}

// Remove unregisters fd. Fails if fd is not registered. A
// DispatchIteration that looks fd up after Remove has run never invokes
// fd's callback. A dispatch that had already looked the callback up under
// the lock before Remove ran may still complete that one invocation,
// possibly after Remove has returned; no invocation follows it.
func (p *Poll) Remove(fd int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrClosed
	}
	if _, ok := p.fds[fd]; !ok {
		return ErrNotRegistered
	}
	delete(p.fds, fd)
	// EPOLL_CTL_DEL on a closed fd returns EBADF; callers that close the
	// fd before calling Remove get an idempotent no-op in effect.
	_ = unix.EpollCtl(p.epfd, unix.EPOLL_CTL_DEL, fd, nil)
	return nil
}

// DispatchIteration waits up to timeoutMs for at least one ready FD and
// invokes at most one callback. Returns false on timeout (nothing ready),
// true otherwise. timeoutMs < 0 blocks indefinitely.
func (p *Poll) DispatchIteration(timeoutMs int) (bool, error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return false, ErrClosed
	}
	p.mu.Unlock()

	var buf [1]unix.EpollEvent
	for {
		n, err := unix.EpollWait(p.epfd, buf[:], timeoutMs)
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			return false, fmt.Errorf("poll: epoll_wait: %w", err)
		}
		if n == 0 {
			return false, nil
		}

		fd := int(buf[0].Fd)
		events := Events(buf[0].Events)

		p.mu.Lock()
		e, ok := p.fds[fd]
		p.mu.Unlock()
		if !ok || e.cb == nil {
			// Removed between EpollWait returning and us looking it up:
			// the stale callback must not run.
			return true, nil
		}
		e.cb(events)
		return true, nil
	}
}

// Close releases the epoll fd. Idempotent.
func (p *Poll) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.mu.Unlock()
	if err := unix.Close(p.epfd); err != nil {
		return fmt.Errorf("poll: close: %w", err)
	}
	return nil
}

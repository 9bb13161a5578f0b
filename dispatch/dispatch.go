// Package dispatch provides two interchangeable reactor drivers over a
// poll.Poll: a worker-thread driver that owns a dedicated goroutine, and
// an external-loop driver for hosts that already own a main loop.
package dispatch

import (
	"sync"

	"github.com/Samsung/vasum-ipc/poll"
	"github.com/Samsung/vasum-ipc/wakeup"
)

// Thread drives a poll.Poll from a dedicated goroutine, looping
// DispatchIteration with an infinite timeout until stopped. An internal
// EventFD wakes and terminates the loop on Stop.
type Thread struct {
	p        *poll.Poll
	stopFD   *wakeup.EventFD
	stopped  chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

// NewThread registers an internal wakeup FD with p and starts the worker
// goroutine.
func NewThread(p *poll.Poll) (*Thread, error) {
	efd, err := wakeup.New()
	if err != nil {
		return nil, err
	}
	t := &Thread{
		p:       p,
		stopFD:  efd,
		stopped: make(chan struct{}),
		done:    make(chan struct{}),
	}
	if err := p.Add(efd.FD(), poll.In, t.onStop); err != nil {
		_ = efd.Close()
		return nil, err
	}
	go t.run()
	return t, nil
}

func (t *Thread) onStop(poll.Events) {
	_, _ = t.stopFD.Drain()
}

func (t *Thread) run() {
	defer close(t.done)
	for {
		select {
		case <-t.stopped:
			return
		default:
		}
		if _, err := t.p.DispatchIteration(-1); err != nil {
			return
		}
	}
}

// Stop signals the worker to terminate, waits for it to join, and removes
// the internal wakeup FD from the poll. Handlers in flight complete; no
// new handler starts. Idempotent.
func (t *Thread) Stop() {
	t.stopOnce.Do(func() {
		close(t.stopped)
		_ = t.stopFD.Signal()
		<-t.done
		_ = t.p.Remove(t.stopFD.FD())
		_ = t.stopFD.Close()
	})
}

// External exposes the poll's own FD so a host's main loop can add it and
// call DispatchIteration(0) whenever that FD reports readiness.
type External struct {
	p *poll.Poll
}

// NewExternal wraps p for use by an externally-driven main loop.
func NewExternal(p *poll.Poll) *External {
	return &External{p: p}
}

// FD returns the poll object's FD, suitable for registration with a host
// loop (or nesting inside another poll.Poll via Add).
func (e *External) FD() int {
	return e.p.FD()
}

// DispatchOnce must be called by the host when FD() reports readiness.
// It performs exactly one DispatchIteration with a zero timeout.
func (e *External) DispatchOnce() (bool, error) {
	return e.p.DispatchIteration(0)
}

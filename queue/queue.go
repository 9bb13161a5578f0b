// Package queue implements the processor's thread-safe ordered request
// queue: a FIFO of tagged, heterogeneous entries with push-front/back,
// blocking pop, predicated removal, and an associated wakeup.EventFD
// that every push signals. Popping does not reset the EventFD: it stays
// readable until its reader drains it, even once the queue is empty.
package queue

import (
	"container/list"
	"sync"

	"github.com/Samsung/vasum-ipc/wakeup"
)

// Tag identifies the kind of payload carried by an Entry.
type Tag int

const (
	Finish Tag = iota
	Method
	Signal
	AddPeer
	RemovePeer
	SendResult
	RemoveMethod
	RegisterSignal
)

func (t Tag) String() string {
	switch t {
	case Finish:
		return "FINISH"
	case Method:
		return "METHOD"
	case Signal:
		return "SIGNAL"
	case AddPeer:
		return "ADD_PEER"
	case RemovePeer:
		return "REMOVE_PEER"
	case SendResult:
		return "SEND_RESULT"
	case RemoveMethod:
		return "REMOVE_METHOD"
	case RegisterSignal:
		return "REGISTER_SIGNAL"
	default:
		return "UNKNOWN"
	}
}

// Entry is one tagged, heterogeneous queue item.
type Entry struct {
	Tag     Tag
	Payload any
}

// Queue is a thread-safe FIFO of Entry values. Signaling on push is
// coalesced via the embedded wakeup.EventFD: any number of pushes between
// two drains of the FD collapse into one readiness edge, but the queue
// itself never drops entries; only the wakeup notification coalesces.
type Queue struct {
	mu   sync.Mutex
	cond *sync.Cond
	l    *list.List
	efd  *wakeup.EventFD
}

// New creates an empty queue with its own wakeup EventFD.
func New() (*Queue, error) {
	efd, err := wakeup.New()
	if err != nil {
		return nil, err
	}
	q := &Queue{l: list.New(), efd: efd}
	q.cond = sync.NewCond(&q.mu)
	return q, nil
}

// EventFD returns the queue's wakeup primitive for integration with a
// poll.Poll. Every push signals it; pops do not reset it, so it remains
// readable until drained, also after the queue has been emptied.
func (q *Queue) EventFD() *wakeup.EventFD { return q.efd }

// PushBack enqueues an entry at the tail and signals the EventFD.
func (q *Queue) PushBack(tag Tag, payload any) {
	q.mu.Lock()
	q.l.PushBack(Entry{Tag: tag, Payload: payload})
	q.mu.Unlock()
	q.cond.Signal()
	_ = q.efd.Signal()
}

// PushFront enqueues an entry at the head (used to preserve
// sender-observed ordering for e.g. a SIGNAL relative to an externally
// observable action) and signals the EventFD.
func (q *Queue) PushFront(tag Tag, payload any) {
	q.mu.Lock()
	q.l.PushFront(Entry{Tag: tag, Payload: payload})
	q.mu.Unlock()
	q.cond.Signal()
	_ = q.efd.Signal()
}

// Pop blocks until the queue is non-empty, then removes and returns the
// head entry.
func (q *Queue) Pop() Entry {
	q.mu.Lock()
	defer q.mu.Unlock()
	for q.l.Len() == 0 {
		q.cond.Wait()
	}
	e := q.l.Remove(q.l.Front()).(Entry)
	return e
}

// TryPop removes and returns the head entry without blocking. ok is
// false if the queue was empty.
func (q *Queue) TryPop() (Entry, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.l.Len() == 0 {
		return Entry{}, false
	}
	return q.l.Remove(q.l.Front()).(Entry), true
}

// RemoveIf removes and returns the first entry for which pred returns
// true, scanning head to tail. Used to cancel a pending request on
// timeout before the worker has dequeued it. ok is false if no entry
// matched.
func (q *Queue) RemoveIf(pred func(Entry) bool) (Entry, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for e := q.l.Front(); e != nil; e = e.Next() {
		entry := e.Value.(Entry)
		if pred(entry) {
			q.l.Remove(e)
			return entry, true
		}
	}
	return Entry{}, false
}

// Size returns the current number of queued entries.
func (q *Queue) Size() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.l.Len()
}

// IsEmpty reports whether the queue currently holds no entries.
func (q *Queue) IsEmpty() bool {
	return q.Size() == 0
}

// Close releases the queue's EventFD. It does not drain or unblock
// pending Pop callers; callers should push a Finish entry first.
func (q *Queue) Close() error {
	return q.efd.Close()
}

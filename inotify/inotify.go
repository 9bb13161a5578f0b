// Package inotify multiplexes a single Linux inotify instance across any
// number of watched paths, plugging its file descriptor into a
// poll.Poll reactor the same way sock/wakeup file descriptors are
// registered. Bursts of events are coalesced through go-microbatch
// before being handed to per-watch callbacks, so a directory receiving
// many rapid writes costs one dispatch instead of one per event.
package inotify

import (
	"context"
	"encoding/binary"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sys/unix"

	"github.com/joeycumines/go-microbatch"

	"github.com/Samsung/vasum-ipc/poll"
	"github.com/Samsung/vasum-ipc/xlog"
)

// Event is a single filesystem notification, already resolved back to
// the path it was raised against.
type Event struct {
	Path   string
	Mask   uint32
	Cookie uint32
	Name   string // non-empty only for events inside a watched directory
}

// Callback receives every coalesced batch of events raised against one
// watch. Called on the batcher's processing goroutine; with the default
// Config (one processing worker) it is never invoked concurrently with
// itself.
type Callback func([]Event)

// Config configures the multiplexer's batching behavior; see
// microbatch.BatcherConfig for field semantics. Zero value uses
// microbatch's own defaults.
type Config struct {
	MaxBatchSize   int
	FlushInterval  time.Duration
	MaxConcurrency int
	Logger         *xlog.Logger
}

// Multiplexer owns one inotify instance and fans its events out by
// watch descriptor.
type Multiplexer struct {
	fd    int
	p     *poll.Poll
	log   *xlog.Logger
	cfg   Config
	batch *microbatch.Batcher[watchedEvent]

	mu     sync.Mutex
	byWD   map[int32]*watch
	byPath map[string]int32
}

type watch struct {
	path string
	cb   Callback
}

// New creates an inotify instance and registers it with p under poll.In.
func New(p *poll.Poll, cfg Config) (*Multiplexer, error) {
	fd, err := unix.InotifyInit1(unix.IN_CLOEXEC | unix.IN_NONBLOCK)
	if err != nil {
		return nil, fmt.Errorf("inotify: init1: %w", err)
	}
	m := &Multiplexer{
		fd:     fd,
		p:      p,
		log:    xlog.OrDiscard(cfg.Logger),
		cfg:    cfg,
		byWD:   make(map[int32]*watch),
		byPath: make(map[string]int32),
	}
	m.batch = microbatch.NewBatcher[watchedEvent](&microbatch.BatcherConfig{
		MaxSize:        cfg.MaxBatchSize,
		FlushInterval:  cfg.FlushInterval,
		MaxConcurrency: cfg.MaxConcurrency,
	}, m.processBatch)

	if err := p.Add(fd, poll.In, m.onReadable); err != nil {
		_ = unix.Close(fd)
		m.batch.Close()
		return nil, err
	}
	return m, nil
}

// Watch starts watching path for the events in mask (an IN_* bitmask),
// invoking cb for every coalesced batch of matching events. Watching the
// same path twice updates its mask and callback (inotify_add_watch
// semantics).
func (m *Multiplexer) Watch(path string, mask uint32, cb Callback) error {
	wd, err := unix.InotifyAddWatch(m.fd, path, mask)
	if err != nil {
		return fmt.Errorf("inotify: add_watch %q: %w", path, err)
	}
	m.mu.Lock()
	m.byWD[int32(wd)] = &watch{path: path, cb: cb}
	m.byPath[path] = int32(wd)
	m.mu.Unlock()
	return nil
}

// Unwatch removes the watch on path, if any (idempotent).
func (m *Multiplexer) Unwatch(path string) error {
	m.mu.Lock()
	wd, ok := m.byPath[path]
	if ok {
		delete(m.byPath, path)
		delete(m.byWD, wd)
	}
	m.mu.Unlock()
	if !ok {
		return nil
	}
	if err := unix.InotifyRmWatch(m.fd, uint32(wd)); err != nil {
		return fmt.Errorf("inotify: rm_watch %q: %w", path, err)
	}
	return nil
}

// Close removes the inotify fd from the poll, stops the batcher and
// closes the fd. A second Close does not panic; it returns the close(2)
// error for the already-closed fd, matching unix.Close's own semantics.
func (m *Multiplexer) Close() error {
	_ = m.p.Remove(m.fd)
	m.batch.Close()
	return unix.Close(m.fd)
}

// eventHeaderSize is sizeof(struct inotify_event) on Linux: wd (int32),
// mask (uint32), cookie (uint32), len (uint32).
const eventHeaderSize = 16

func (m *Multiplexer) onReadable(poll.Events) {
	var buf [64 * (eventHeaderSize + unix.PathMax)]byte
	for {
		n, err := unix.Read(m.fd, buf[:])
		if err != nil {
			if err == unix.EAGAIN {
				return
			}
			m.log.Debug().Err(err).Log(`inotify read failed`)
			return
		}
		if n < eventHeaderSize {
			return
		}
		m.parseAndDispatch(buf[:n])
		if n < len(buf) {
			// Short read: the kernel had no more pending events.
			return
		}
	}
}

func (m *Multiplexer) parseAndDispatch(buf []byte) {
	off := 0
	for off+eventHeaderSize <= len(buf) {
		wd := int32(binary.LittleEndian.Uint32(buf[off:]))
		mask := binary.LittleEndian.Uint32(buf[off+4:])
		cookie := binary.LittleEndian.Uint32(buf[off+8:])
		nameLen := binary.LittleEndian.Uint32(buf[off+12:])
		off += eventHeaderSize

		var name string
		if nameLen > 0 {
			raw := buf[off : off+int(nameLen)]
			if i := indexNUL(raw); i >= 0 {
				raw = raw[:i]
			}
			name = string(raw)
		}
		off += int(nameLen)

		m.mu.Lock()
		w, ok := m.byWD[wd]
		m.mu.Unlock()
		if mask&unix.IN_IGNORED != 0 {
			m.mu.Lock()
			if w != nil {
				delete(m.byPath, w.path)
			}
			delete(m.byWD, wd)
			m.mu.Unlock()
		}
		if !ok {
			continue
		}
		ev := Event{Path: w.path, Mask: mask, Cookie: cookie, Name: name}
		if _, err := m.batch.Submit(context.Background(), watchedEvent{w: w, ev: ev}); err != nil {
			m.log.Debug().Err(err).Log(`inotify batch submit failed`)
		}
	}
}

func indexNUL(b []byte) int {
	for i, c := range b {
		if c == 0 {
			return i
		}
	}
	return -1
}

type watchedEvent struct {
	w  *watch
	ev Event
}

func (m *Multiplexer) processBatch(_ context.Context, jobs []watchedEvent) error {
	grouped := make(map[*watch][]Event)
	order := make([]*watch, 0, len(jobs))
	for _, j := range jobs {
		if _, seen := grouped[j.w]; !seen {
			order = append(order, j.w)
		}
		grouped[j.w] = append(grouped[j.w], j.ev)
	}
	for _, w := range order {
		w.cb(grouped[w])
	}
	return nil
}

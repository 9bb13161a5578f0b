// Package sock provides a thin wrapper over a stream socket (Unix or
// INET): bind/listen/accept/connect with retry, FD-inheritance hygiene,
// a per-socket serialization lock, and systemd-activation fallback. A
// Socket implements codec.Stream so the visitor codec can frame directly
// over it, including passing file descriptors via SCM_RIGHTS.
package sock

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sys/unix"

	"github.com/Samsung/vasum-ipc/fdutil"
)

// Default tunables, matching the reserved configuration knobs.
const (
	DefaultBacklog           = 1000
	DefaultConnectRetryStep  = 10 * time.Millisecond
	DefaultConnectTimeout    = 5 * time.Second
	unixSocketPathMaxLen     = 107 // sizeof(sockaddr_un.sun_path) - 1
)

// Error kinds surfaced by this package.
var (
	// ErrPathTooLong is raised before any syscall when a Unix path
	// exceeds sun_path's capacity.
	ErrPathTooLong = errors.New("sock: unix socket path too long")
	// ErrPeerDisconnected is raised when a read/write observes EOF (the
	// peer closed its end) mid-frame. Other errno failures, such as
	// ECONNRESET, are returned as wrapped by fdutil.
	ErrPeerDisconnected = errors.New("sock: peer disconnected")
)

// SocketError carries a specific errno from an accept/connect/bind
// syscall, distinguishing resource exhaustion (EMFILE) from other
// failures so callers can report back-pressure without tearing a
// service down.
type SocketError struct {
	Op   string
	Errno error
}

func (e *SocketError) Error() string {
	return fmt.Sprintf("sock: %s: %v", e.Op, e.Errno)
}

func (e *SocketError) Unwrap() error { return e.Errno }

// IsEMFILE reports whether err represents an EMFILE/ENFILE condition.
func IsEMFILE(err error) bool {
	var se *SocketError
	if errors.As(err, &se) {
		return errors.Is(se.Errno, unix.EMFILE) || errors.Is(se.Errno, unix.ENFILE)
	}
	return false
}

// Socket wraps a single stream socket file descriptor. Reads and writes
// hold mu for their entire duration, so concurrent framed operations on
// the same socket are serialized; a handler that writes a reply while
// still inside the callback for a read on the same socket is the
// expected "nested" use, which is why Socket's lock is only ever held
// across one read or one write call, never across both at once.
type Socket struct {
	fd     int
	mu     sync.Mutex
	closed bool
}

// fromFD wraps an already-configured fd (FD_CLOEXEC set, blocking mode
// as required by the caller).
func fromFD(fd int) *Socket {
	return &Socket{fd: fd}
}

// FD returns the underlying file descriptor, for registration with a
// poll.Poll. Callers must not close it directly; use Close.
func (s *Socket) FD() int { return s.fd }

// ReadFull implements codec.Stream.
func (s *Socket) ReadFull(buf []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := fdutil.ReadFull(s.fd, buf); err != nil {
		if errors.Is(err, fdutil.ErrClosed) {
			return ErrPeerDisconnected
		}
		return err
	}
	return nil
}

// WriteFull implements codec.Stream.
func (s *Socket) WriteFull(buf []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := fdutil.WriteFull(s.fd, buf); err != nil {
		if errors.Is(err, fdutil.ErrClosed) {
			return ErrPeerDisconnected
		}
		return err
	}
	return nil
}

// Close closes the socket. Idempotent.
func (s *Socket) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return fdutil.Close(s.fd)
}

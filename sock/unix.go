package sock

import (
	"fmt"
	"time"

	"golang.org/x/sys/unix"

	"github.com/joeycumines/go-catrate"
)

// Config configures a Unix-domain listener.
type Config struct {
	// Backlog is the accept queue depth. Defaults to DefaultBacklog.
	Backlog int
	// AcceptRateLimit, if non-nil, throttles the acceptor: once the
	// "accept" category exceeds the configured rates within their
	// windows, new connections are rejected immediately (closed before
	// the processor ever sees them) instead of being handed to the
	// caller, giving graceful back-pressure ahead of an eventual EMFILE.
	AcceptRateLimit *catrate.Limiter
}

// Listener wraps a bound, listening Unix-domain stream socket.
type Listener struct {
	fd   int
	path string
	cfg  Config
}

// CreateUNIX binds path (unlinking any stale inode first) and starts
// listening, unless an already-bound systemd-activation socket matches
// path, in which case that FD is reused instead. FD_CLOEXEC is always
// set on the result.
func CreateUNIX(path string, cfg Config) (*Listener, error) {
	if len(path) > unixSocketPathMaxLen {
		return nil, ErrPathTooLong
	}
	if cfg.Backlog <= 0 {
		cfg.Backlog = DefaultBacklog
	}

	if fd, ok := activationSocket(path); ok {
		if err := unix.SetNonblock(fd, true); err != nil {
			return nil, fmt.Errorf("sock: activation socket nonblock: %w", err)
		}
		if err := unixSetFDOptions(fd); err != nil {
			return nil, err
		}
		return &Listener{fd: fd, path: path, cfg: cfg}, nil
	}

	fd, err := unix.Socket(unix.AF_UNIX, unix.SOCK_STREAM, 0)
	if err != nil {
		return nil, &SocketError{Op: "socket", Errno: err}
	}
	if err := unixSetFDOptions(fd); err != nil {
		_ = unix.Close(fd)
		return nil, err
	}

	_ = unix.Unlink(path)

	sa := &unix.SockaddrUnix{Name: path}
	if err := unix.Bind(fd, sa); err != nil {
		_ = unix.Close(fd)
		return nil, &SocketError{Op: "bind", Errno: err}
	}
	if err := unix.Listen(fd, cfg.Backlog); err != nil {
		_ = unix.Close(fd)
		return nil, &SocketError{Op: "listen", Errno: err}
	}
	if err := unix.SetNonblock(fd, true); err != nil {
		_ = unix.Close(fd)
		return nil, fmt.Errorf("sock: listen nonblock: %w", err)
	}
	return &Listener{fd: fd, path: path, cfg: cfg}, nil
}

func unixSetFDOptions(fd int) error {
	if _, err := unix.FcntlInt(uintptr(fd), unix.F_SETFD, unix.FD_CLOEXEC); err != nil {
		return fmt.Errorf("sock: fcntl FD_CLOEXEC: %w", err)
	}
	return nil
}

// FD returns the listener's file descriptor, for registration with a
// poll.Poll under poll.In.
func (l *Listener) FD() int { return l.fd }

// Accept accepts one pending connection. On EMFILE/ENFILE it returns a
// *SocketError so the caller can report back-pressure without tearing
// the listener down. If an AcceptRateLimit is configured and the
// "accept" category is currently throttled, the new connection is
// accepted then immediately closed, and Accept returns a *SocketError
// wrapping unix.EMFILE-shaped back-pressure semantics without consuming
// an extra FD slot for longer than necessary.
func (l *Listener) Accept() (*Socket, error) {
	fd, _, err := unix.Accept(l.fd)
	if err != nil {
		if err == unix.EAGAIN {
			return nil, nil
		}
		return nil, &SocketError{Op: "accept", Errno: err}
	}
	if err := unixSetFDOptions(fd); err != nil {
		_ = unix.Close(fd)
		return nil, err
	}

	if l.cfg.AcceptRateLimit != nil {
		if _, ok := l.cfg.AcceptRateLimit.Allow("accept"); !ok {
			_ = unix.Close(fd)
			return nil, &SocketError{Op: "accept", Errno: fmt.Errorf("accept rate exceeded: %w", unix.EMFILE)}
		}
	}

	if err := unix.SetNonblock(fd, false); err != nil {
		_ = unix.Close(fd)
		return nil, fmt.Errorf("sock: accept set blocking: %w", err)
	}
	return fromFD(fd), nil
}

// Close closes the listening socket.
func (l *Listener) Close() error {
	return unix.Close(l.fd)
}

// DialUNIX connects to path, retrying ECONNREFUSED/EAGAIN/EINTR (no one
// listening yet) every DefaultConnectRetryStep until timeout elapses.
// Any other failure closes the FD and surfaces immediately as a
// *SocketError.
func DialUNIX(path string, timeout time.Duration) (*Socket, error) {
	if len(path) > unixSocketPathMaxLen {
		return nil, ErrPathTooLong
	}
	fd, err := unix.Socket(unix.AF_UNIX, unix.SOCK_STREAM, 0)
	if err != nil {
		return nil, &SocketError{Op: "socket", Errno: err}
	}
	if err := unixSetFDOptions(fd); err != nil {
		_ = unix.Close(fd)
		return nil, err
	}

	sa := &unix.SockaddrUnix{Name: path}
	deadline := time.Now().Add(timeout)
	for {
		err := unix.Connect(fd, sa)
		if err == nil {
			break
		}
		if err == unix.ECONNREFUSED || err == unix.EAGAIN || err == unix.EINTR {
			if time.Now().After(deadline) {
				_ = unix.Close(fd)
				return nil, &SocketError{Op: "connect", Errno: fmt.Errorf("timeout: %w", err)}
			}
			time.Sleep(DefaultConnectRetryStep)
			continue
		}
		_ = unix.Close(fd)
		return nil, &SocketError{Op: "connect", Errno: err}
	}

	if err := unix.SetNonblock(fd, true); err != nil {
		_ = unix.Close(fd)
		return nil, fmt.Errorf("sock: connect nonblock: %w", err)
	}
	return fromFD(fd), nil
}

// Package fdutil provides the low-level file descriptor loops the rest of
// the IPC runtime is built on: blocking read/write that honors EINTR and
// partial transfers, non-blocking mode toggling, and FD-limit queries.
package fdutil

import (
	"errors"
	"fmt"

	"golang.org/x/sys/unix"
)

// ErrClosed is returned by ReadFull/WriteFull when the peer closed the
// connection before the requested number of bytes were transferred.
var ErrClosed = errors.New("fdutil: connection closed mid-transfer")

// ReadFull reads exactly len(buf) bytes from fd, retrying on EINTR and
// short reads. On a non-blocking fd, EAGAIN parks in poll(2) until the
// fd is readable again, preserving blocking semantics for callers
// framing over non-blocking sockets. EOF before buf is full is reported
// as ErrClosed.
func ReadFull(fd int, buf []byte) error {
	total := 0
	for total < len(buf) {
		n, err := unix.Read(fd, buf[total:])
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			if err == unix.EAGAIN {
				if err := waitFD(fd, unix.POLLIN); err != nil {
					return err
				}
				continue
			}
			return fmt.Errorf("fdutil: read: %w", err)
		}
		if n == 0 {
			return ErrClosed
		}
		total += n
	}
	return nil
}

// WriteFull writes exactly len(buf) bytes to fd, retrying on EINTR,
// EAGAIN (see ReadFull) and short writes.
func WriteFull(fd int, buf []byte) error {
	total := 0
	for total < len(buf) {
		n, err := unix.Write(fd, buf[total:])
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			if err == unix.EAGAIN {
				if err := waitFD(fd, unix.POLLOUT); err != nil {
					return err
				}
				continue
			}
			return fmt.Errorf("fdutil: write: %w", err)
		}
		if n == 0 {
			return ErrClosed
		}
		total += n
	}
	return nil
}

// waitFD blocks in poll(2) until fd reports events (or an error/hangup,
// which the caller's next read/write surfaces as its own failure).
func waitFD(fd int, events int16) error {
	fds := []unix.PollFd{{Fd: int32(fd), Events: events}}
	for {
		_, err := unix.Poll(fds, -1)
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return fmt.Errorf("fdutil: poll: %w", err)
		}
		return nil
	}
}

// SetNonBlocking toggles O_NONBLOCK on fd.
func SetNonBlocking(fd int, nonBlocking bool) error {
	return unix.SetNonblock(fd, nonBlocking)
}

// SetCloseOnExec sets FD_CLOEXEC on fd.
func SetCloseOnExec(fd int) error {
	_, err := unix.FcntlInt(uintptr(fd), unix.F_SETFD, unix.FD_CLOEXEC)
	if err != nil {
		return fmt.Errorf("fdutil: fcntl FD_CLOEXEC: %w", err)
	}
	return nil
}

// Close closes fd, swallowing EBADF/EINTR races that can occur when a
// concurrent reactor callback is mid-dispatch on the same FD.
func Close(fd int) error {
	err := unix.Close(fd)
	if err != nil && err != unix.EINTR && err != unix.EBADF {
		return fmt.Errorf("fdutil: close: %w", err)
	}
	return nil
}

// MaxOpenFiles returns the process's current soft RLIMIT_NOFILE, used by
// callers that want to size a poller's direct-indexed FD table or decide
// whether to start shedding new connections proactively.
func MaxOpenFiles() (uint64, error) {
	var rlim unix.Rlimit
	if err := unix.Getrlimit(unix.RLIMIT_NOFILE, &rlim); err != nil {
		return 0, fmt.Errorf("fdutil: getrlimit: %w", err)
	}
	return rlim.Cur, nil
}

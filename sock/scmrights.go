package sock

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// sentinel is the one byte of in-stream payload that accompanies an
// SCM_RIGHTS ancillary message; the codec emits one carrier byte per
// passed descriptor.
const sentinel = 0xFD

// SendFD transmits fd as ancillary data alongside the one-byte sentinel.
// The caller retains ownership of fd and may close it after this
// returns.
func (s *Socket) SendFD(fd int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	oob := unix.UnixRights(fd)
	buf := []byte{sentinel}
	for {
		err := unix.Sendmsg(s.fd, buf, oob, nil, 0)
		if err == nil {
			return nil
		}
		if err == unix.EINTR {
			continue
		}
		return fmt.Errorf("sock: sendmsg SCM_RIGHTS: %w", err)
	}
}

// RecvFD receives the one-byte sentinel carrying an ancillary FD.
// Ownership of the returned FD transfers to the caller.
func (s *Socket) RecvFD() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	buf := make([]byte, 1)
	oob := make([]byte, unix.CmsgSpace(4))
	for {
		n, oobn, _, _, err := unix.Recvmsg(s.fd, buf, oob, 0)
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			return -1, fmt.Errorf("sock: recvmsg SCM_RIGHTS: %w", err)
		}
		if n == 0 {
			return -1, ErrPeerDisconnected
		}
		scms, err := unix.ParseSocketControlMessage(oob[:oobn])
		if err != nil {
			return -1, fmt.Errorf("sock: parse control message: %w", err)
		}
		for _, scm := range scms {
			fds, err := unix.ParseUnixRights(&scm)
			if err != nil {
				continue
			}
			if len(fds) > 0 {
				return fds[0], nil
			}
		}
		return -1, fmt.Errorf("sock: recvmsg: no ancillary FD present")
	}
}

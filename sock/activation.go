package sock

import (
	"os"
	"strconv"
	"strings"

	"golang.org/x/sys/unix"
)

// firstActivationFD is the first FD systemd hands over via socket
// activation, per the sd_listen_fds convention.
const firstActivationFD = 3

// activationSocket consults the systemd socket-activation environment
// (LISTEN_PID, LISTEN_FDS, LISTEN_FDNAMES) for an already-bound socket
// matching path. If LISTEN_FDNAMES is present, the matching name wins;
// otherwise the first activation FD is used positionally. Returns
// ok=false if no activation socket is usable (wrong PID, not set, or
// name given but not found).
func activationSocket(path string) (fd int, ok bool) {
	pidStr := os.Getenv("LISTEN_PID")
	fdsStr := os.Getenv("LISTEN_FDS")
	if pidStr == "" || fdsStr == "" {
		return 0, false
	}
	pid, err := strconv.Atoi(pidStr)
	if err != nil || pid != os.Getpid() {
		return 0, false
	}
	n, err := strconv.Atoi(fdsStr)
	if err != nil || n <= 0 {
		return 0, false
	}

	if namesEnv := os.Getenv("LISTEN_FDNAMES"); namesEnv != "" {
		names := strings.Split(namesEnv, ":")
		target := baseName(path)
		for i := 0; i < n && i < len(names); i++ {
			if names[i] == target {
				candidate := firstActivationFD + i
				_ = unix.SetNonblock(candidate, true)
				return candidate, true
			}
		}
		return 0, false
	}

	// No names given: fall back to the first (and typically only)
	// positional activation FD.
	candidate := firstActivationFD
	_ = unix.SetNonblock(candidate, true)
	return candidate, true
}

func baseName(path string) string {
	if i := strings.LastIndexByte(path, '/'); i >= 0 {
		return path[i+1:]
	}
	return path
}

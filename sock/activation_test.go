package sock

import (
	"os"
	"strconv"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestActivationSocketNoEnv(t *testing.T) {
	t.Setenv("LISTEN_PID", "")
	t.Setenv("LISTEN_FDS", "")
	_, ok := activationSocket("/tmp/whatever.sock")
	require.False(t, ok)
}

func TestActivationSocketWrongPID(t *testing.T) {
	t.Setenv("LISTEN_PID", "1")
	t.Setenv("LISTEN_FDS", "1")
	_, ok := activationSocket("/tmp/whatever.sock")
	require.False(t, ok)
}

func TestActivationSocketNameNotFound(t *testing.T) {
	t.Setenv("LISTEN_PID", strconv.Itoa(os.Getpid()))
	t.Setenv("LISTEN_FDS", "1")
	t.Setenv("LISTEN_FDNAMES", "some-other-name")
	_, ok := activationSocket("/tmp/whatever.sock")
	require.False(t, ok)
}

func TestBaseName(t *testing.T) {
	require.Equal(t, "foo.sock", baseName("/tmp/foo.sock"))
	require.Equal(t, "foo.sock", baseName("foo.sock"))
}

package ipc

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Samsung/vasum-ipc/sock"
)

// socketPair returns two connected *sock.Socket endpoints over a
// throwaway Unix-domain listener, for tests that need a real transport
// without going through Service/Client.
func socketPair(t *testing.T) (a, b *sock.Socket) {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "pair.sock")

	ln, err := sock.CreateUNIX(path, sock.Config{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = ln.Close() })

	clientCh := make(chan *sock.Socket, 1)
	go func() {
		c, err := sock.DialUNIX(path, time.Second)
		require.NoError(t, err)
		clientCh <- c
	}()

	var server *sock.Socket
	require.Eventually(t, func() bool {
		s, err := ln.Accept()
		if err != nil || s == nil {
			return false
		}
		server = s
		return true
	}, 2*time.Second, 10*time.Millisecond)

	client := <-clientCh
	t.Cleanup(func() { _ = server.Close(); _ = client.Close() })
	return server, client
}

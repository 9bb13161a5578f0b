package ipc

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestKindString(t *testing.T) {
	cases := map[Kind]string{
		KindParsing:          "parsing",
		KindSerialization:    "serialization",
		KindPeerDisconnected: "peer_disconnected",
		KindNaughtyPeer:      "naughty_peer",
		KindTimeout:          "timeout",
		KindUserError:        "user_error",
		KindSocketError:      "socket_error",
		KindConfiguration:    "configuration",
		Kind(999):            "unknown",
	}
	for k, want := range cases {
		require.Equal(t, want, k.String())
	}
}

func TestErrorWrapAndIs(t *testing.T) {
	inner := errors.New("boom")
	err := newError(KindTimeout, inner)

	require.ErrorIs(t, err, inner)
	require.True(t, Is(err, KindTimeout))
	require.False(t, Is(err, KindParsing))
	require.False(t, Is(inner, KindTimeout))
}

func TestErrorWithoutInner(t *testing.T) {
	err := newError(KindTimeout, nil)
	require.Equal(t, "ipc: timeout", err.Error())
	require.Nil(t, err.Unwrap())
}

func TestErrorf(t *testing.T) {
	err := newErrorf(KindConfiguration, "max peers (%d) exceeded", 5)
	require.Contains(t, err.Error(), "max peers (5) exceeded")
	require.True(t, Is(err, KindConfiguration))
}

func TestUserErrorMessage(t *testing.T) {
	ue := &UserError{Code: 42, Message: "nope"}
	require.Equal(t, "ipc: user error 42: nope", ue.Error())
}

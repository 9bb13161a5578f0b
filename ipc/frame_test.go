package ipc

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestIsReserved(t *testing.T) {
	require.True(t, ReturnMethodID.IsReserved())
	require.True(t, RegisterSignalMethodID.IsReserved())
	require.True(t, ErrorMethodID.IsReserved())
	require.False(t, MethodID(1).IsReserved())
}

func TestFrameHeaderRoundTrip(t *testing.T) {
	a, b := socketPair(t)

	msgID, err := newMessageID()
	require.NoError(t, err)
	want := frameHeader{Method: MethodID(12345), MessageID: msgID}

	require.NoError(t, writeFrameHeader(a, want))
	got, err := readFrameHeader(b)
	require.NoError(t, err)
	require.Equal(t, want, got)
}

func TestFrameHeaderRoundTripLargeMethodID(t *testing.T) {
	a, b := socketPair(t)

	msgID, err := newMessageID()
	require.NoError(t, err)
	want := frameHeader{Method: MethodID(0xFFFFFFF0), MessageID: msgID}

	require.NoError(t, writeFrameHeader(a, want))
	got, err := readFrameHeader(b)
	require.NoError(t, err)
	require.Equal(t, want, got)
}

func TestFrameHeaderRoundTripZeroMethodID(t *testing.T) {
	a, b := socketPair(t)

	msgID, err := newMessageID()
	require.NoError(t, err)
	want := frameHeader{Method: MethodID(0), MessageID: msgID}

	require.NoError(t, writeFrameHeader(a, want))
	got, err := readFrameHeader(b)
	require.NoError(t, err)
	require.Equal(t, want, got)
}

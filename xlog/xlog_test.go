package xlog

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewLogsToHandler(t *testing.T) {
	var buf bytes.Buffer
	logger := New(slog.NewTextHandler(&buf, nil))

	logger.Info().Str(`peer`, `abc123`).Log(`peer added`)

	require.Contains(t, buf.String(), "peer added")
	require.Contains(t, buf.String(), "abc123")
}

func TestWithLevelEnablesDebug(t *testing.T) {
	var buf bytes.Buffer
	handler := slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})

	New(handler).Debug().Log(`filtered at the default level`)
	require.Empty(t, buf.String())

	New(handler, WithLevel(LevelDebug)).Debug().Log(`debug enabled`)
	require.Contains(t, buf.String(), "debug enabled")
}

func TestOrDiscardPassesThroughNonNil(t *testing.T) {
	var buf bytes.Buffer
	logger := New(slog.NewTextHandler(&buf, nil))

	require.Same(t, logger, OrDiscard(logger))
}

func TestOrDiscardReplacesNil(t *testing.T) {
	l := OrDiscard(nil)
	require.NotNil(t, l)
	// Must not panic even though there is no real handler backing it.
	l.Info().Log(`discarded`)
}

func TestNewDiscardDropsOutput(t *testing.T) {
	l := NewDiscard()
	require.NotNil(t, l)
	l.Info().Str(`x`, `y`).Log(`should not appear anywhere`)
}

package logger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

// TestParseLogLevel covers recognized and unrecognized level strings.
func TestParseLogLevel(t *testing.T) {
	t.Parallel()

	level, ok := ParseLogLevel(" Debug ")
	require.True(t, ok)
	require.Equal(t, zapcore.DebugLevel, level)

	level, ok = ParseLogLevel("ERROR")
	require.True(t, ok)
	require.Equal(t, zapcore.ErrorLevel, level)

	level, ok = ParseLogLevel("loud")
	require.False(t, ok)
	require.Equal(t, zapcore.InfoLevel, level)
}

// TestFromContext_FallsBackToGlobal verifies that a bare context yields the global logger.
func TestFromContext_FallsBackToGlobal(t *testing.T) {
	t.Parallel()

	require.Same(t, Logger(), FromContext(context.Background()))
	require.Same(t, Logger(), FromContext(nil)) //nolint:staticcheck // Nil context fallback is part of the contract.
}

// TestWithName_ScopesLogEntries checks that named loggers attached to the
// context end up on emitted entries.
func TestWithName_ScopesLogEntries(t *testing.T) {
	t.Parallel()

	core, observed := observer.New(zapcore.DebugLevel)
	ctx := ToContext(context.Background(), zap.New(core).Sugar())
	ctx = WithName(ctx, "scheduler")
	ctx = WithKV(ctx, "timer_id", "t-1")

	InfoKV(ctx, "armed", "device_id", "d-1")

	entries := observed.All()
	require.Len(t, entries, 1)
	require.Equal(t, "scheduler", entries[0].LoggerName)
	require.Equal(t, "armed", entries[0].Message)

	fields := entries[0].ContextMap()
	require.Equal(t, "t-1", fields["timer_id"])
	require.Equal(t, "d-1", fields["device_id"])
}

package logger

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

// TestParseLogLevel verifies mapping from strings to zapcore.Level and handling of unknown values.
func TestParseLogLevel(t *testing.T) {
	t.Parallel()

	cases := map[string]zapcore.Level{
		"debug": zapcore.DebugLevel,
		"info":  zapcore.InfoLevel,
		"warn":  zapcore.WarnLevel,
		"error": zapcore.ErrorLevel,
		"panic": zapcore.PanicLevel,
		"fatal": zapcore.FatalLevel,
	}
	for s, lvl := range cases {
		got, ok := ParseLogLevel(s)
		require.True(t, ok)
		require.Equal(t, lvl, got)
	}

	_, ok := ParseLogLevel("unknown")
	require.False(t, ok)
}

// TestFromContext_UsesInjectedLogger ensures helpers write to the logger stored in the context.
func TestFromContext_UsesInjectedLogger(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zapcore.DebugLevel)
	ctx := ToContext(context.Background(), zap.New(core).Sugar())
	ctx = WithKV(WithName(ctx, "unit"), "attempt", 1)

	InfoKV(ctx, "Hello", "key", "value")
	Warnf(ctx, "warn %d", 2)

	entries := logs.All()
	require.Len(t, entries, 2)
	require.Equal(t, "Hello", entries[0].Message)
	require.Equal(t, "unit", entries[0].LoggerName)
	require.Equal(t, "value", entries[0].ContextMap()["key"])
	require.EqualValues(t, 1, entries[0].ContextMap()["attempt"])
	require.Equal(t, "warn 2", entries[1].Message)
}

// TestFromContext_FallsBackToGlobal ensures a bare context still yields a usable logger.
func TestFromContext_FallsBackToGlobal(t *testing.T) {
	t.Parallel()

	require.Same(t, Logger(), FromContext(context.Background()))
}

// TestNewWithFile_AppendsEntries checks that entries land in the file and later sessions append.
func TestNewWithFile_AppendsEntries(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "update.log")

	for _, message := range []string{"first session", "second session"} {
		l, closeFn, err := NewWithFile(path, zapcore.InfoLevel)
		require.NoError(t, err)

		l.Info(message)
		l.Debug("filtered out")
		require.NoError(t, closeFn())
	}

	contents, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(contents), "first session")
	require.Contains(t, string(contents), "second session")
	require.NotContains(t, string(contents), "filtered out")
	require.Contains(t, string(contents), "INFO")
}

// TestNewWithFile_BadPath reports an error when the log directory does not exist.
func TestNewWithFile_BadPath(t *testing.T) {
	t.Parallel()

	_, _, err := NewWithFile(filepath.Join(t.TempDir(), "missing", "update.log"), nil)
	require.Error(t, err)
}

// TestWithLevel keeps a derived logger at its own threshold.
func TestWithLevel(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zapcore.DebugLevel)
	l := zap.New(core, WithLevel(zapcore.WarnLevel)).Sugar()

	l.Info("dropped")
	l.Warn("kept")

	require.Len(t, logs.All(), 1)
	require.Equal(t, "kept", logs.All()[0].Message)
}

// TestLevelHelpers writes warnings and errors at their levels.
func TestLevelHelpers(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zapcore.DebugLevel)
	ctx := ToContext(context.Background(), zap.New(core).Sugar())

	Warn(ctx, "stale marker")
	Error(ctx, "usage")
	Errorf(ctx, "refresh %s", "failed")

	entries := logs.All()
	require.Len(t, entries, 3)
	require.Equal(t, zapcore.WarnLevel, entries[0].Level)
	require.Equal(t, zapcore.ErrorLevel, entries[1].Level)
	require.Equal(t, "refresh failed", entries[2].Message)
}

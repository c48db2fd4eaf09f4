package process

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// TestIsRunning recognises the current process and rejects invalid PIDs.
func TestIsRunning(t *testing.T) {
	t.Parallel()

	running, err := IsRunning(os.Getpid())
	require.NoError(t, err)
	require.True(t, running)

	running, err = IsRunning(0)
	require.NoError(t, err)
	require.False(t, running)
}

// TestWaitForExit_Timeout gives up on a process that never exits.
func TestWaitForExit_Timeout(t *testing.T) {
	t.Parallel()

	err := WaitForExit(context.Background(), os.Getpid(), 300*time.Millisecond)
	require.ErrorIs(t, err, ErrStillRunning)
}

// TestWaitForExit_Cancelled stops polling when the context is done.
func TestWaitForExit_Cancelled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	require.Error(t, WaitForExit(ctx, os.Getpid(), time.Minute))
}

// TestWaitForExit_AlreadyGone returns at once for a reaped child.
func TestWaitForExit_AlreadyGone(t *testing.T) {
	t.Parallel()

	if runtime.GOOS == "windows" {
		t.Skip("uses a POSIX shell")
	}

	cmd := exec.Command("sh", "-c", "exit 0")
	require.NoError(t, cmd.Run())

	require.NoError(t, WaitForExit(context.Background(), cmd.ProcessState.Pid(), time.Second))
}

// TestStartDetached runs a shell that leaves a marker behind.
func TestStartDetached(t *testing.T) {
	t.Parallel()

	shell, err := exec.LookPath("sh")
	if err != nil || runtime.GOOS == "windows" {
		t.Skip("POSIX shell not available")
	}

	dir := t.TempDir()
	marker := filepath.Join(dir, "started")

	pid, err := StartDetached(Spec{
		Path:   shell,
		Args:   []string{"-c", "pwd > started"},
		Dir:    dir,
		Hidden: true,
	})
	require.NoError(t, err)
	require.Positive(t, pid)

	require.Eventually(t, func() bool {
		contents, readErr := os.ReadFile(marker)

		return readErr == nil && len(contents) > 0
	}, 5*time.Second, 20*time.Millisecond)
}

// TestStartDetached_Errors covers an empty and a missing executable.
func TestStartDetached_Errors(t *testing.T) {
	t.Parallel()

	_, err := StartDetached(Spec{})
	require.ErrorIs(t, err, errPathRequired)

	_, err = StartDetached(Spec{Path: filepath.Join(t.TempDir(), "missing-binary")})
	require.Error(t, err)
}

// TestRemoveExecutable deletes files and tolerates missing ones.
func TestRemoveExecutable(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "tool")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"), 0o755))

	require.NoError(t, RemoveExecutable(path))
	require.NoFileExists(t, path)
	require.NoError(t, RemoveExecutable(path))
}

// TestSleep returns early once the context is cancelled.
func TestSleep(t *testing.T) {
	t.Parallel()

	require.NoError(t, Sleep(context.Background(), time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	started := time.Now()
	require.ErrorIs(t, Sleep(ctx, time.Hour), context.Canceled)
	require.Less(t, time.Since(started), time.Second)
}

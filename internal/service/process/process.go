package process

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/mitchellh/go-ps"
)

// Spec describes a process to start.
type Spec struct {
	// Path is the executable to run.
	Path string
	// Args are passed to the executable, argv[0] excluded.
	Args []string
	// Dir is the working directory; empty means the executable's directory.
	Dir string
	// Hidden suppresses the console window where the platform has one.
	Hidden bool
}

const (
	// initialPollInterval is the first delay between process table checks.
	initialPollInterval = 100 * time.Millisecond
	// maxPollInterval caps the delay between process table checks.
	maxPollInterval = 2 * time.Second
)

var (
	// ErrStillRunning is returned when a process did not exit in time.
	ErrStillRunning = errors.New("process is still running")
	// errPathRequired is returned when no executable is given.
	errPathRequired = errors.New("executable path must be provided")
)

// StartDetached starts the process described by spec without waiting for it.
// It returns the PID of the started process.
func StartDetached(spec Spec) (int, error) {
	if spec.Path == "" {
		return 0, errPathRequired
	}

	cmd := exec.Command(spec.Path, spec.Args...) //nolint:gosec // Paths come from the updater's own layout.

	cmd.Dir = spec.Dir
	if cmd.Dir == "" {
		cmd.Dir = filepath.Dir(spec.Path)
	}

	detach(cmd, spec.Hidden)

	if err := cmd.Start(); err != nil {
		return 0, fmt.Errorf("start %s: %w", spec.Path, err)
	}

	pid := cmd.Process.Pid

	if err := cmd.Process.Release(); err != nil {
		return pid, fmt.Errorf("release %s: %w", spec.Path, err)
	}

	return pid, nil
}

// IsRunning reports whether a process with the given PID is present in the process table.
func IsRunning(pid int) (bool, error) {
	if pid <= 0 {
		return false, nil
	}

	process, err := ps.FindProcess(pid)
	if err != nil {
		return false, err
	}

	return process != nil, nil
}

// WaitForExit polls the process table with exponential backoff until pid is gone,
// maxWait elapses or ctx is cancelled.
func WaitForExit(ctx context.Context, pid int, maxWait time.Duration) error {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = initialPollInterval
	policy.MaxInterval = maxPollInterval
	policy.MaxElapsedTime = maxWait

	operation := func() error {
		running, err := IsRunning(pid)
		if err != nil {
			return backoff.Permanent(err)
		}

		if running {
			return fmt.Errorf("pid %d: %w", pid, ErrStillRunning)
		}

		return nil
	}

	return backoff.Retry(operation, backoff.WithContext(policy, ctx))
}

// TerminateByName kills every process whose executable name matches processName,
// except the current one.
func TerminateByName(processName string) error {
	processList, err := ps.Processes()
	if err != nil {
		return err
	}

	thisProcessID := os.Getpid()

	for _, process := range processList {
		if process.Pid() == thisProcessID {
			continue
		}

		if process.Executable() != processName {
			continue
		}

		var runningProcess *os.Process

		runningProcess, err = os.FindProcess(process.Pid())
		if err != nil {
			return err
		}

		if err = runningProcess.Kill(); err != nil {
			return err
		}
	}

	return nil
}

// RemoveExecutable deletes an executable that may still be running.
// A missing file is not an error.
func RemoveExecutable(path string) error {
	err := os.Remove(path)
	if err == nil || errors.Is(err, os.ErrNotExist) {
		return nil
	}

	return removeLater(path, err)
}

// Sleep pauses for d or until ctx is done, whichever comes first.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

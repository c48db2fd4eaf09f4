//go:build !windows

package extractor

import (
	"errors"
	"os"
	"path/filepath"

	"golang.org/x/sys/unix"
)

// IsFileLocked probes path for an exclusive lock held by another process.
// A missing file is never locked, and neither is one we are not allowed to read:
// permissions are left to the delete-then-write path. The probe is advisory and
// only sees locks taken with flock.
func IsFileLocked(path string) bool {
	file, err := os.Open(filepath.Clean(path))
	if err != nil {
		return !errors.Is(err, os.ErrNotExist) && !errors.Is(err, os.ErrPermission)
	}

	defer func() {
		_ = file.Close()
	}()

	fd := int(file.Fd()) //nolint:gosec // File descriptors fit into int.
	if err = unix.Flock(fd, unix.LOCK_EX|unix.LOCK_NB); err != nil {
		return true
	}

	_ = unix.Flock(fd, unix.LOCK_UN)

	return false
}

//go:build windows

package extractor

import (
	"errors"

	"golang.org/x/sys/windows"
)

// IsFileLocked probes path by opening it for read/write with no sharing allowed.
// A missing file is never locked.
func IsFileLocked(path string) bool {
	name, err := windows.UTF16PtrFromString(path)
	if err != nil {
		return false
	}

	handle, err := windows.CreateFile(
		name,
		windows.GENERIC_READ|windows.GENERIC_WRITE,
		0,
		nil,
		windows.OPEN_EXISTING,
		windows.FILE_ATTRIBUTE_NORMAL,
		0,
	)
	if err != nil {
		return !errors.Is(err, windows.ERROR_FILE_NOT_FOUND) && !errors.Is(err, windows.ERROR_PATH_NOT_FOUND)
	}

	_ = windows.CloseHandle(handle)

	return false
}

package extractor

import (
	"fmt"

	"github.com/shirou/gopsutil/v4/disk"
)

// spaceMultiplier is the worst-case ratio between unpacked and packed size assumed for a package.
const spaceMultiplier = 2

// HasEnoughDiskSpace reports whether available bytes strictly exceed twice the archive size.
func HasEnoughDiskSpace(available, archiveSize uint64) bool {
	return available > archiveSize*spaceMultiplier
}

// FreeSpace returns the bytes available to the current user on the volume holding path.
func FreeSpace(path string) (uint64, error) {
	usage, err := disk.Usage(path)
	if err != nil {
		return 0, fmt.Errorf("disk usage of %s: %w", path, err)
	}

	return usage.Free, nil
}

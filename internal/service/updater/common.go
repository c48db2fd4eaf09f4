package updater

import (
	"context"
	"errors"
	"os"
	"time"

	"github.com/oshokin/app-updater/internal/config"
	"github.com/oshokin/app-updater/internal/logger"
	"github.com/oshokin/app-updater/internal/service/process"
)

const (
	// MarkerFilename marks that the updater is running right now to avoid parallel execution.
	MarkerFilename = "app-updater-marker.bin"

	// baseUpdaterExecutable is the updater's name without extension.
	baseUpdaterExecutable = "app-updater"

	// markerLifetime is how long a marker stays fresh once the updater stops touching it.
	markerLifetime = 30 * time.Second

	// bannerLine separates sessions in the shared log file.
	bannerLine = "========================================"
)

// IsUpdaterRunningNow checks presence of a marker file and attempts recovery if it looks stale.
// A marker younger than lifetime belongs to a live updater.
func IsUpdaterRunningNow(ctx context.Context, markerPath string, lifetime time.Duration) bool {
	logger.Debug(ctx, "Checking for the presence of an update marker")

	fileInfo, err := os.Stat(markerPath)
	if err == nil {
		if time.Since(fileInfo.ModTime()) <= lifetime {
			return true
		}

		logger.Warn(ctx, "The update marker is too old, attempting cleanup")

		if err = process.TerminateByName(updaterExecutable()); err != nil {
			logger.WarnKV(ctx, "Unable to stop the previous updater", "error", err)

			return true
		}

		if err = os.Remove(markerPath); err != nil {
			return true
		}

		return false
	}

	if errors.Is(err, os.ErrNotExist) {
		logger.Debug(ctx, "Update marker not found, continuing")

		return false
	}

	logger.Warnf(ctx, "Unable to read update marker: %v", err)

	return false
}

// markerLifetimeFor covers an updater idling for idleDelay after it touched its marker.
func markerLifetimeFor(idleDelay time.Duration) time.Duration {
	if idleDelay <= 0 {
		return markerLifetime
	}

	return markerLifetime + idleDelay
}

// touchMarker restarts the marker's lifetime.
func touchMarker(markerPath string) error {
	now := time.Now()

	return os.Chtimes(markerPath, now, now)
}

// createMarker writes an empty marker file.
func createMarker(markerPath string) error {
	updateMarker, err := os.Create(markerPath)
	if err != nil {
		return err
	}

	return updateMarker.Close()
}

func updaterExecutable() string {
	return baseUpdaterExecutable + config.ExecutableExtension()
}

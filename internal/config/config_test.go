package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// TestValidate checks defaults and format validations for Config.
func TestValidate(t *testing.T) {
	t.Parallel()

	// Empty settings get defaults.
	settings := new(Config)

	require.NoError(t, Validate(settings))
	require.Equal(t, DefaultManifestURL, settings.ManifestURL)
	require.Equal(t, DefaultTimeout, settings.Timeout)
	require.Equal(t, DefaultDownloadTimeout, settings.DownloadTimeout)
	require.Equal(t, MinGracePeriod, settings.GracePeriod)
	require.Equal(t, DefaultIdleDelay, settings.IdleDelay)
	require.Equal(t, CompareExact, settings.CompareMode)
	require.Equal(t, DefaultLogFilename, settings.LogFile)
	require.NotEmpty(t, settings.MainExecutable)

	// Relative manifest URL.
	settings = &Config{ManifestURL: "/update_info.json"}
	require.ErrorIs(t, Validate(settings), errManifestURLNotAbsolute)

	// Broken manifest URL.
	settings = &Config{ManifestURL: "not a url"}
	require.Error(t, Validate(settings))

	// Grace period below the floor.
	settings = &Config{GracePeriod: time.Second}
	require.ErrorIs(t, Validate(settings), errGracePeriodTooShort)

	// Unknown compare mode.
	settings = &Config{CompareMode: "lexical"}
	require.ErrorIs(t, Validate(settings), errUnknownCompareMode)

	// Compare mode is normalised.
	settings = &Config{CompareMode: " SemVer "}
	require.NoError(t, Validate(settings))
	require.Equal(t, CompareSemver, settings.CompareMode)

	require.ErrorIs(t, Validate(nil), errConfigIsNotSet)
}

// TestSaveLoadRoundtrip ensures settings are persisted and loaded back correctly.
func TestSaveLoadRoundtrip(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "settings.yaml")

	settings := &Config{
		ManifestURL:    "https://updates.local/update_info.json",
		MainExecutable: "bin/main-app",
		GracePeriod:    7 * time.Second,
		IdleDelay:      time.Second,
		CompareMode:    CompareSemver,
	}

	require.NoError(t, Save(path, settings))

	loaded, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, settings.ManifestURL, loaded.ManifestURL)
	require.Equal(t, settings.MainExecutable, loaded.MainExecutable)
	require.Equal(t, settings.GracePeriod, loaded.GracePeriod)
	require.Equal(t, settings.IdleDelay, loaded.IdleDelay)
	require.Equal(t, CompareSemver, loaded.CompareMode)

	// File exists with restricted permissions.
	_, err = os.Stat(path)
	require.NoError(t, err)
}

// TestLoadMissingFile falls back to defaults.
func TestLoadMissingFile(t *testing.T) {
	t.Parallel()

	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	require.Equal(t, Default(), cfg)
}

// TestLoadMalformedFile reports YAML errors.
func TestLoadMalformedFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "settings.yaml")
	require.NoError(t, os.WriteFile(path, []byte("timeout: [oops"), DefaultFilePermissions))

	_, err := Load(path)
	require.Error(t, err)
}

// TestResolvePath keeps absolute paths and anchors relative ones.
func TestResolvePath(t *testing.T) {
	t.Parallel()

	base := t.TempDir()
	abs := filepath.Join(base, "abs.log")

	require.Equal(t, abs, ResolvePath("/elsewhere", abs))
	require.Equal(t, filepath.Join(base, "update.log"), ResolvePath(base, "update.log"))
}

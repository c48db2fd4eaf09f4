package checker

import (
	"context"
	"strings"

	"golang.org/x/mod/semver"

	"github.com/oshokin/app-updater/internal/config"
	"github.com/oshokin/app-updater/internal/logger"
	"github.com/oshokin/app-updater/internal/service/common"
)

// Manifest is the remote document describing the latest release.
type Manifest struct {
	// Version is the version of the published release.
	Version string `json:"version"`
	// UpdateURL is where the release package can be downloaded.
	UpdateURL string `json:"updateUrl"`
}

// Decision is the outcome of an update check.
type Decision struct {
	// Available is true when the published release should be installed.
	Available bool
	// Version is the published version, set only when Available.
	Version string
	// DownloadURL is the package address, set only when Available.
	DownloadURL string
}

// Checker fetches the manifest and compares versions.
type Checker struct {
	client      *common.Client
	compareMode string
}

// Option configures a Checker.
type Option func(*Checker)

// WithClient sets the HTTP client used to fetch the manifest.
func WithClient(client *common.Client) Option {
	return func(c *Checker) {
		if client != nil {
			c.client = client
		}
	}
}

// WithCompareMode selects exact or semantic version comparison.
func WithCompareMode(mode string) Option {
	return func(c *Checker) {
		if mode != "" {
			c.compareMode = mode
		}
	}
}

// New creates a Checker using exact comparison and the default HTTP client.
func New(opts ...Option) *Checker {
	c := &Checker{
		client:      common.NewClient(),
		compareMode: config.CompareExact,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// CheckForUpdate fetches the manifest at manifestURL and compares it with currentVersion.
// It never fails: every problem is logged and reported as "no update".
func (c *Checker) CheckForUpdate(ctx context.Context, manifestURL, currentVersion string) Decision {
	logger.InfoKV(ctx, "Checking for updates", "manifest", manifestURL, "current", currentVersion)

	var manifest Manifest
	if err := c.client.GetJSON(ctx, manifestURL, &manifest); err != nil {
		logger.WarnKV(ctx, "Unable to check for updates", "error", err)

		return Decision{}
	}

	manifest.Version = strings.TrimSpace(manifest.Version)
	manifest.UpdateURL = strings.TrimSpace(manifest.UpdateURL)

	if manifest.Version == "" || manifest.UpdateURL == "" {
		logger.WarnKV(ctx, "Update manifest is incomplete",
			"version", manifest.Version, "update_url", manifest.UpdateURL)

		return Decision{}
	}

	if !IsUpdateAvailable(c.compareMode, currentVersion, manifest.Version) {
		logger.InfoKV(ctx, "No update available", "version", currentVersion)

		return Decision{}
	}

	logger.InfoKV(ctx, "New version found", "current", currentVersion, "remote", manifest.Version)

	return Decision{
		Available:   true,
		Version:     manifest.Version,
		DownloadURL: manifest.UpdateURL,
	}
}

// IsUpdateAvailable compares versions according to mode.
// In exact mode any difference is an update, older-looking remote versions included.
// In semver mode only a strictly greater remote version is; invalid semantic
// versions fall back to exact comparison.
func IsUpdateAvailable(mode, currentVersion, remoteVersion string) bool {
	if mode == config.CompareSemver {
		current, remote := canonical(currentVersion), canonical(remoteVersion)
		if semver.IsValid(current) && semver.IsValid(remote) {
			return semver.Compare(remote, current) > 0
		}
	}

	return currentVersion != remoteVersion
}

// canonical prefixes a version with "v" as golang.org/x/mod/semver expects.
func canonical(version string) string {
	version = strings.TrimSpace(version)
	if strings.HasPrefix(version, "v") {
		return version
	}

	return "v" + version
}

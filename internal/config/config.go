package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the settings of the updater binary.
type Config struct {
	// ManifestURL is the address of the JSON document describing the latest release.
	ManifestURL string `yaml:"manifest_url"`
	// MainExecutable is the main application's executable, relative to the application directory.
	MainExecutable string `yaml:"main_executable"`
	// LogFile is the persistent log, relative paths are resolved against the updater directory.
	LogFile string `yaml:"log_file"`
	// LogLevel is the minimum level written to the console and the log file.
	LogLevel string `yaml:"log_level"`
	// Timeout bounds every network request.
	Timeout time.Duration `yaml:"timeout"`
	// DownloadTimeout bounds the package download.
	DownloadTimeout time.Duration `yaml:"download_timeout"`
	// GracePeriod is how long the hand-off process waits for the updater to exit.
	GracePeriod time.Duration `yaml:"grace_period"`
	// IdleDelay keeps the console visible after the main application was started.
	IdleDelay time.Duration `yaml:"idle_delay"`
	// CompareMode selects how the remote and local versions are compared.
	CompareMode string `yaml:"compare_mode"`
}

const (
	// DefaultConfigFilename is the default filename for updater settings.
	DefaultConfigFilename = "app-updater-settings.yaml"

	// DefaultManifestURL is used when no manifest address is configured.
	DefaultManifestURL = "http://example.com/update_info.json"

	// DefaultLogFilename is the default persistent log file.
	DefaultLogFilename = "update.log"

	// DefaultLogLevel is the default minimum log level.
	DefaultLogLevel = "info"

	// DefaultTimeout is the default duration for network operations.
	DefaultTimeout = 30 * time.Second

	// DefaultDownloadTimeout is the default duration for downloading a package.
	DefaultDownloadTimeout = 30 * time.Minute

	// MinGracePeriod is the shortest wait allowed before the hand-off touches any file.
	MinGracePeriod = 5 * time.Second

	// DefaultIdleDelay is how long the updater stays alive after relaunching the main application.
	DefaultIdleDelay = 60 * time.Second

	// CompareExact treats any difference between versions as an update.
	CompareExact = "exact"

	// CompareSemver only updates when the remote semantic version is greater.
	CompareSemver = "semver"

	// DefaultFilePermissions is the default file permission for config files.
	DefaultFilePermissions = 0o600

	// baseMainExecutable is the main application's executable name without extension.
	baseMainExecutable = "Software"
)

var (
	// errConfigIsNotSet is returned when a nil configuration is provided.
	errConfigIsNotSet = errors.New("configuration is not set")
	// errUnknownCompareMode is returned for compare modes other than exact and semver.
	errUnknownCompareMode = errors.New("unknown compare mode")
	// errGracePeriodTooShort is returned when the hand-off would not wait long enough.
	errGracePeriodTooShort = errors.New("grace period is too short")
	// errManifestURLNotAbsolute is returned when the manifest address has no scheme or host.
	errManifestURLNotAbsolute = errors.New("manifest URL must be absolute")
)

// Default returns settings populated with defaults.
func Default() *Config {
	cfg := new(Config)

	//nolint:errcheck // Defaults always validate.
	_ = Validate(cfg)

	return cfg
}

// Load reads configuration from the provided path and validates it.
// A missing file is not an error: the updater works with defaults out of the box.
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultConfigFilename
	}

	contents, err := os.ReadFile(filepath.Clean(path))
	if errors.Is(err, os.ErrNotExist) {
		return Default(), nil
	}

	if err != nil {
		return nil, fmt.Errorf("read settings: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(contents, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal settings: %w", err)
	}

	if err := Validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Save writes Settings to the provided path.
func Save(path string, cfg *Config) error {
	if cfg == nil {
		return errConfigIsNotSet
	}

	if path == "" {
		path = DefaultConfigFilename
	}

	if err := Validate(cfg); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal settings: %w", err)
	}

	// Restrict permissions.
	if err := os.WriteFile(filepath.Clean(path), data, DefaultFilePermissions); err != nil {
		return fmt.Errorf("write settings: %w", err)
	}

	return nil
}

// Validate fills defaults for unset fields and checks the rest.
func Validate(settings *Config) error {
	if settings == nil {
		return errConfigIsNotSet
	}

	if settings.ManifestURL == "" {
		settings.ManifestURL = DefaultManifestURL
	}

	if settings.MainExecutable == "" {
		settings.MainExecutable = baseMainExecutable + ExecutableExtension()
	}

	if settings.LogFile == "" {
		settings.LogFile = DefaultLogFilename
	}

	if settings.LogLevel == "" {
		settings.LogLevel = DefaultLogLevel
	}

	if settings.Timeout <= 0 {
		settings.Timeout = DefaultTimeout
	}

	if settings.DownloadTimeout <= 0 {
		settings.DownloadTimeout = DefaultDownloadTimeout
	}

	if settings.GracePeriod == 0 {
		settings.GracePeriod = MinGracePeriod
	}

	if settings.IdleDelay <= 0 {
		settings.IdleDelay = DefaultIdleDelay
	}

	settings.CompareMode = strings.ToLower(strings.TrimSpace(settings.CompareMode))
	if settings.CompareMode == "" {
		settings.CompareMode = CompareExact
	}

	if settings.CompareMode != CompareExact && settings.CompareMode != CompareSemver {
		return fmt.Errorf("%s: %w", settings.CompareMode, errUnknownCompareMode)
	}

	if settings.GracePeriod < MinGracePeriod {
		return fmt.Errorf("%s is less than %s: %w", settings.GracePeriod, MinGracePeriod, errGracePeriodTooShort)
	}

	manifestURL, err := url.ParseRequestURI(settings.ManifestURL)
	if err != nil {
		return fmt.Errorf("invalid manifest URL: %w", err)
	}

	if manifestURL.Scheme == "" || manifestURL.Host == "" {
		return fmt.Errorf("%s: %w", settings.ManifestURL, errManifestURLNotAbsolute)
	}

	return nil
}

// ResolvePath makes a relative settings path absolute against baseDir.
func ResolvePath(baseDir, path string) string {
	if filepath.IsAbs(path) {
		return filepath.Clean(path)
	}

	return filepath.Join(baseDir, path)
}

// ExecutableExtension returns ".exe" on Windows and "" elsewhere.
func ExecutableExtension() string {
	if strings.Contains(strings.ToLower(runtime.GOOS), "windows") {
		return ".exe"
	}

	return ""
}

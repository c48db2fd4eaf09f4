package stager

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	goupdate "github.com/doitdistributed/go-update"

	"github.com/oshokin/app-updater/internal/config"
	"github.com/oshokin/app-updater/internal/logger"
	"github.com/oshokin/app-updater/internal/service/checker"
	"github.com/oshokin/app-updater/internal/service/common"
	"github.com/oshokin/app-updater/internal/service/handoff"
	"github.com/oshokin/app-updater/internal/service/process"
)

// HandoffCommand is the hidden subcommand the hand-off executable is started with.
const HandoffCommand = "handoff"

// runnerFileMode is the mode of the copied hand-off executable.
const runnerFileMode os.FileMode = 0o755

// partialSuffix marks a package that is still being downloaded.
const partialSuffix = ".part"

var (
	// ErrStage wraps every staging failure.
	ErrStage = errors.New("unable to stage update")
	// errNoUpdate is returned when asked to stage a decision without an update.
	errNoUpdate = errors.New("no update to stage")
)

// Stager downloads a release and hands its installation over to a detached process.
type Stager struct {
	client      *common.Client
	gracePeriod time.Duration
	logFile     string
	logLevel    string
	executable  func() (string, error)
	start       func(spec process.Spec) (int, error)
}

// Option configures a Stager.
type Option func(*Stager)

// WithClient sets the HTTP client used to download the package.
func WithClient(client *common.Client) Option {
	return func(s *Stager) {
		if client != nil {
			s.client = client
		}
	}
}

// WithGracePeriod sets how long the hand-off waits before touching any file.
func WithGracePeriod(gracePeriod time.Duration) Option {
	return func(s *Stager) {
		if gracePeriod > 0 {
			s.gracePeriod = gracePeriod
		}
	}
}

// WithLog sets the log file and level the hand-off process appends to.
func WithLog(logFile, logLevel string) Option {
	return func(s *Stager) {
		s.logFile = logFile
		s.logLevel = logLevel
	}
}

// WithExecutable replaces how the running executable is located.
func WithExecutable(executable func() (string, error)) Option {
	return func(s *Stager) {
		if executable != nil {
			s.executable = executable
		}
	}
}

// WithStarter replaces how the hand-off process is started.
func WithStarter(start func(spec process.Spec) (int, error)) Option {
	return func(s *Stager) {
		if start != nil {
			s.start = start
		}
	}
}

// New creates a Stager for the running executable.
func New(opts ...Option) *Stager {
	s := &Stager{
		client:      common.NewClient(),
		gracePeriod: config.MinGracePeriod,
		executable:  Executable,
		start:       process.StartDetached,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Executable returns the resolved path of the running executable.
func Executable() (string, error) {
	path, err := os.Executable()
	if err != nil {
		return "", err
	}

	return filepath.EvalSymlinks(path)
}

// Stage downloads the release, saves originalArgs, copies the running executable
// as the hand-off runner, writes the descriptor and starts the runner.
// On success the caller must exit so the runner can replace its files.
// Any failure removes only the files this call created, so a local package
// that happens to share the staged package name survives a failed download.
func (s *Stager) Stage(ctx context.Context, decision checker.Decision, originalArgs []string) error {
	if !decision.Available || decision.DownloadURL == "" {
		return fmt.Errorf("%w: %w", ErrStage, errNoUpdate)
	}

	updaterPath, err := s.executable()
	if err != nil {
		return fmt.Errorf("%w: locate executable: %w", ErrStage, err)
	}

	if len(originalArgs) == 0 {
		originalArgs = []string{updaterPath}
	}

	descriptor := handoff.NewDescriptor(os.Getpid(), updaterPath, s.gracePeriod)
	descriptor.LogFile = s.logFile
	descriptor.LogLevel = s.logLevel
	descriptorPath := filepath.Join(descriptor.BaseDir, handoff.DescriptorFilename)

	created, err := s.stage(ctx, decision, originalArgs, descriptor, descriptorPath)
	if err != nil {
		removeArtifacts(ctx, created)

		return fmt.Errorf("%w: %w", ErrStage, err)
	}

	return nil
}

func (s *Stager) stage(
	ctx context.Context,
	decision checker.Decision,
	originalArgs []string,
	descriptor *handoff.Descriptor,
	descriptorPath string,
) ([]string, error) {
	var created []string

	partialPath := descriptor.PackagePath + partialSuffix

	logger.InfoKV(ctx, "Downloading update", "url", decision.DownloadURL, "path", partialPath)

	// Download removes its own partial file on failure.
	size, err := s.client.Download(ctx, decision.DownloadURL, partialPath)
	if err != nil {
		return created, fmt.Errorf("download package: %w", err)
	}

	created = append(created, partialPath)

	logger.InfoKV(ctx, "Update downloaded", "bytes", size)

	if err = handoff.WriteArguments(descriptor.ArgumentsPath, originalArgs); err != nil {
		return created, err
	}

	created = append(created, descriptor.ArgumentsPath)

	logger.InfoKV(ctx, "Creating hand-off executable", "path", descriptor.RunnerPath)

	if err = copyExecutable(descriptor.UpdaterPath, descriptor.RunnerPath); err != nil {
		return append(created, descriptor.RunnerPath), fmt.Errorf("copy hand-off executable: %w", err)
	}

	created = append(created, descriptor.RunnerPath)

	if err = descriptor.Save(descriptorPath); err != nil {
		return append(created, descriptorPath), err
	}

	created = append(created, descriptorPath)

	if err = os.Rename(partialPath, descriptor.PackagePath); err != nil {
		return created, fmt.Errorf("finish package download: %w", err)
	}

	created[0] = descriptor.PackagePath

	pid, err := s.start(process.Spec{
		Path:   descriptor.RunnerPath,
		Args:   []string{HandoffCommand, descriptorPath},
		Dir:    descriptor.BaseDir,
		Hidden: true,
	})
	if err != nil {
		return created, fmt.Errorf("start hand-off: %w", err)
	}

	logger.InfoKV(ctx, "Hand-off started", "pid", pid, "descriptor", descriptorPath)

	return created, nil
}

// copyExecutable writes a checksum-verified copy of source to target.
func copyExecutable(source, target string) error {
	data, err := os.ReadFile(filepath.Clean(source))
	if err != nil {
		return err
	}

	sum, err := checksum(data)
	if err != nil {
		return err
	}

	if _, err = os.Stat(target); errors.Is(err, os.ErrNotExist) {
		var file *os.File

		if file, err = os.Create(filepath.Clean(target)); err != nil {
			return err
		}

		if err = file.Close(); err != nil {
			return err
		}
	}

	options := goupdate.Options{
		TargetPath: target,
		TargetMode: runnerFileMode,
		Checksum:   sum,
		Hash:       DefaultChecksumFunction,
	}

	if err = goupdate.Apply(bytes.NewReader(data), options); err != nil {
		return err
	}

	oldFileName := filepath.Join(filepath.Dir(target), "."+filepath.Base(target)+".old")
	if _, err = os.Stat(oldFileName); err == nil {
		_ = os.Remove(oldFileName)
	}

	return nil
}

// removeArtifacts deletes the files a failed staging created.
func removeArtifacts(ctx context.Context, created []string) {
	for _, path := range created {
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			logger.WarnKV(ctx, "Unable to remove staging artifact", "path", path, "error", err)
		}
	}
}

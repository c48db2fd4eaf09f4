package extractor

import (
	"archive/zip"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/oshokin/app-updater/internal/logger"
)

// Report summarises one extraction run.
type Report struct {
	// TotalEntries is the number of entries in the archive.
	TotalEntries int
	// ProcessedEntries is the number of files actually written.
	ProcessedEntries int
	// DirectoryEntries is the number of directory-only entries.
	DirectoryEntries int
	// LockedEntries is the number of files skipped because another process held them.
	LockedEntries int
	// FailedEntries is the number of entries that could not be written.
	FailedEntries int
}

// ProgressFunc receives the progress of a run as a percentage in [0, 100].
type ProgressFunc func(ctx context.Context, percent float64)

// Extractor applies zip packages onto a directory.
type Extractor struct {
	// progress is called after every extracted file and once at the end.
	progress ProgressFunc
	// isLocked reports whether a destination file is held by another process.
	isLocked func(path string) bool
	// freeSpace returns the bytes available on the volume holding a path.
	freeSpace func(path string) (uint64, error)
}

// Option configures an Extractor.
type Option func(*Extractor)

// entryOutcome is what happened to a single archive entry.
type entryOutcome int

const (
	outcomeExtracted entryOutcome = iota
	outcomeDirectory
	outcomeLocked
)

// defaultFileMode is used for entries that carry no permission bits.
const defaultFileMode os.FileMode = 0o644

// defaultDirectoryMode is used for every directory created during extraction.
const defaultDirectoryMode os.FileMode = 0o755

var (
	// ErrFilePathInvalid is returned when the archive does not exist or cannot be read as a zip.
	ErrFilePathInvalid = errors.New("archive path is invalid")
	// ErrTargetPathInvalid is returned when the destination is missing or not a directory.
	ErrTargetPathInvalid = errors.New("target path is invalid")
	// ErrInsufficientDiskSpace is returned when the destination volume is too small for the archive.
	ErrInsufficientDiskSpace = errors.New("insufficient disk space")
	// errUnsafeEntry is recorded for entries that would land outside the destination.
	errUnsafeEntry = errors.New("entry escapes the destination directory")
)

// WithProgress replaces the default progress reporter, which logs the percentage.
func WithProgress(progress ProgressFunc) Option {
	return func(e *Extractor) {
		if progress != nil {
			e.progress = progress
		}
	}
}

// WithLockProbe replaces the lock probe.
func WithLockProbe(isLocked func(path string) bool) Option {
	return func(e *Extractor) {
		if isLocked != nil {
			e.isLocked = isLocked
		}
	}
}

// WithFreeSpace replaces the free space lookup.
func WithFreeSpace(freeSpace func(path string) (uint64, error)) Option {
	return func(e *Extractor) {
		if freeSpace != nil {
			e.freeSpace = freeSpace
		}
	}
}

// New creates an Extractor.
func New(opts ...Option) *Extractor {
	e := &Extractor{
		progress:  logProgress,
		isLocked:  IsFileLocked,
		freeSpace: FreeSpace,
	}

	for _, opt := range opts {
		opt(e)
	}

	return e
}

// Extract writes every entry of the zip at archivePath into destinationDir.
// It only fails when a precondition does not hold; problems with single entries
// are logged and counted in the report.
func (e *Extractor) Extract(ctx context.Context, archivePath, destinationDir string) (*Report, error) {
	if err := e.CheckPreconditions(ctx, archivePath, destinationDir); err != nil {
		return nil, err
	}

	reader, err := zip.OpenReader(archivePath)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w: %w", archivePath, ErrFilePathInvalid, err)
	}

	defer func() {
		_ = reader.Close()
	}()

	var (
		job    = NewJob(len(reader.File))
		report = &Report{TotalEntries: job.Total()}
	)

	logger.InfoKV(ctx, "Extracting package", "archive", archivePath, "destination", destinationDir,
		"entries", report.TotalEntries)

	for _, entry := range reader.File {
		outcome, entryErr := e.extractEntry(ctx, entry, destinationDir)
		if entryErr != nil {
			report.FailedEntries++

			logger.ErrorKV(ctx, "Unable to extract entry", "entry", entry.Name, "error", entryErr)

			continue
		}

		switch outcome {
		case outcomeDirectory:
			report.DirectoryEntries++
		case outcomeLocked:
			report.LockedEntries++
		case outcomeExtracted:
			report.ProcessedEntries++

			job.Advance()
			e.progress(ctx, job.Percent())
		}
	}

	logger.InfoKV(ctx, "Extraction complete",
		"extracted", report.ProcessedEntries,
		"directories", report.DirectoryEntries,
		"locked", report.LockedEntries,
		"failed", report.FailedEntries)

	// The terminal state is always reported as complete, whatever was skipped.
	e.progress(ctx, percentScale)

	return report, nil
}

// CheckPreconditions verifies the archive, the destination and the free space before anything is written.
func (e *Extractor) CheckPreconditions(ctx context.Context, archivePath, destinationDir string) error {
	archiveInfo, err := os.Stat(archivePath)
	if err != nil || !archiveInfo.Mode().IsRegular() {
		return fmt.Errorf("%s: %w", archivePath, ErrFilePathInvalid)
	}

	destinationInfo, err := os.Stat(destinationDir)
	if err != nil || !destinationInfo.IsDir() {
		return fmt.Errorf("%s: %w", destinationDir, ErrTargetPathInvalid)
	}

	available, err := e.freeSpace(destinationDir)
	if err != nil {
		return fmt.Errorf("check free space: %w", err)
	}

	archiveSize := uint64(archiveInfo.Size()) //nolint:gosec // Sizes of regular files are never negative.
	if !HasEnoughDiskSpace(available, archiveSize) {
		return fmt.Errorf("%d bytes available, more than %d required: %w",
			available, archiveSize*spaceMultiplier, ErrInsufficientDiskSpace)
	}

	logger.DebugKV(ctx, "Preconditions hold", "archive_size", archiveSize, "available", available)

	return nil
}

// extractEntry applies a single archive entry.
func (e *Extractor) extractEntry(ctx context.Context, entry *zip.File, destinationDir string) (entryOutcome, error) {
	destinationPath, err := destinationFor(destinationDir, entry.Name)
	if err != nil {
		return outcomeExtracted, err
	}

	logger.InfoKV(ctx, "Extracting file", "path", destinationPath)

	if isDirectoryEntry(entry) {
		if err = os.MkdirAll(destinationPath, defaultDirectoryMode); err != nil {
			return outcomeDirectory, err
		}

		return outcomeDirectory, nil
	}

	if err = os.MkdirAll(filepath.Dir(destinationPath), defaultDirectoryMode); err != nil {
		return outcomeExtracted, err
	}

	if e.isLocked(destinationPath) {
		logger.WarnKV(ctx, "File is locked, skipping", "path", destinationPath)

		return outcomeLocked, nil
	}

	if err = os.Remove(destinationPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return outcomeExtracted, fmt.Errorf("remove existing file: %w", err)
	}

	return outcomeExtracted, writeEntry(entry, destinationPath)
}

// destinationFor joins the entry name onto destinationDir and rejects names escaping it.
func destinationFor(destinationDir, name string) (string, error) {
	if name == "" || filepath.IsAbs(name) || strings.HasPrefix(name, "/") {
		return "", fmt.Errorf("%q: %w", name, errUnsafeEntry)
	}

	destinationPath := filepath.Join(destinationDir, filepath.FromSlash(name))

	relative, err := filepath.Rel(destinationDir, destinationPath)
	if err != nil || relative == ".." || strings.HasPrefix(relative, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%q: %w", name, errUnsafeEntry)
	}

	return destinationPath, nil
}

// isDirectoryEntry reports whether the entry only describes a directory.
func isDirectoryEntry(entry *zip.File) bool {
	return strings.HasSuffix(entry.Name, "/") || entry.FileInfo().IsDir()
}

// writeEntry copies the entry's bytes into a freshly created file.
func writeEntry(entry *zip.File, destinationPath string) error {
	source, err := entry.Open()
	if err != nil {
		return fmt.Errorf("open entry: %w", err)
	}

	defer func() {
		_ = source.Close()
	}()

	mode := entry.Mode().Perm()
	if mode == 0 {
		mode = defaultFileMode
	}

	target, err := os.OpenFile(destinationPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, mode)
	if err != nil {
		return fmt.Errorf("create file: %w", err)
	}

	//nolint:gosec // Package size is bounded by the free space check.
	_, err = io.Copy(target, source)
	if closeErr := target.Close(); err == nil {
		err = closeErr
	}

	if err != nil {
		return fmt.Errorf("write file: %w", err)
	}

	return nil
}

// logProgress is the default progress reporter.
func logProgress(ctx context.Context, percent float64) {
	logger.Infof(ctx, "Progress: %.2f%%", percent)
}

package packager

import (
	"archive/zip"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/oshokin/app-updater/internal/config"
	"github.com/oshokin/app-updater/internal/logger"
	"github.com/oshokin/app-updater/internal/service/checker"
	"github.com/oshokin/app-updater/internal/service/handoff"
)

const (
	// ManifestFilename is the manifest written next to the package.
	ManifestFilename = "update_info.json"

	// DefaultFileMode is used when producing artifacts for distribution.
	DefaultFileMode os.FileMode = 0o644
)

var (
	errSourceNotDirectory = errors.New("source is not a directory")
	errVersionRequired    = errors.New("version must be provided")
	errUpdateURLInvalid   = errors.New("update URL must be absolute")
)

// Options contains inputs for the packager entry point.
type Options struct {
	// SourceDir is the release directory to package.
	SourceDir string
	// Version is announced in the manifest.
	Version string
	// UpdateURL is where the package will be downloaded from.
	UpdateURL string
	// OutputDir receives the package and the manifest, the current directory when empty.
	OutputDir string
	// ManifestURL, when set, also writes updater settings pointing at the manifest.
	ManifestURL string
}

// Result lists the files the packager produced.
type Result struct {
	PackagePath  string
	ManifestPath string
	SettingsPath string
	Entries      int
}

// packager builds the release artifacts.
type packager struct {
	opts   *Options
	result *Result
}

// Run executes the packaging workflow.
func Run(ctx context.Context, opts *Options) (*Result, error) {
	// Set context with logger name for tracking.
	ctx = logger.WithName(ctx, "app-packager")

	pkg, err := newPackager(opts)
	if err != nil {
		return nil, fmt.Errorf("initialize packager: %w", err)
	}

	if err = pkg.Run(ctx); err != nil {
		return nil, fmt.Errorf("packager failed: %w", err)
	}

	logger.Info(ctx, "Packager completed successfully")

	return pkg.result, nil
}

// newPackager validates the options and resolves output paths.
func newPackager(opts *Options) (*packager, error) {
	info, err := os.Stat(opts.SourceDir)
	if err != nil {
		return nil, fmt.Errorf("source %s: %w", opts.SourceDir, err)
	}

	if !info.IsDir() {
		return nil, fmt.Errorf("%s: %w", opts.SourceDir, errSourceNotDirectory)
	}

	if strings.TrimSpace(opts.Version) == "" {
		return nil, errVersionRequired
	}

	if err = validateURL(opts.UpdateURL); err != nil {
		return nil, err
	}

	outputDir := opts.OutputDir
	if outputDir == "" {
		outputDir = "."
	}

	if err = os.MkdirAll(outputDir, 0o755); err != nil {
		return nil, fmt.Errorf("create output directory: %w", err)
	}

	result := &Result{
		PackagePath:  filepath.Join(outputDir, handoff.PackageFilename),
		ManifestPath: filepath.Join(outputDir, ManifestFilename),
	}

	if opts.ManifestURL != "" {
		result.SettingsPath = filepath.Join(outputDir, config.DefaultConfigFilename)
	}

	return &packager{opts: opts, result: result}, nil
}

// Run writes the package, the manifest and optionally the settings.
func (p *packager) Run(ctx context.Context) error {
	logger.InfoKV(ctx, "Packing release", "source", p.opts.SourceDir, "package", p.result.PackagePath)

	if err := p.writePackage(); err != nil {
		return fmt.Errorf("write package: %w", err)
	}

	logger.InfoKV(ctx, "Saving update manifest", "path", p.result.ManifestPath, "version", p.opts.Version)

	if err := p.writeManifest(); err != nil {
		return fmt.Errorf("write manifest: %w", err)
	}

	if p.result.SettingsPath != "" {
		settings := config.Default()
		settings.ManifestURL = p.opts.ManifestURL

		if err := config.Save(p.result.SettingsPath, settings); err != nil {
			return fmt.Errorf("save settings: %w", err)
		}
	}

	p.printNextSteps(ctx)

	return nil
}

// writePackage zips the source directory in lexical order, directories included.
func (p *packager) writePackage() error {
	skip := make(map[string]struct{}, 3)

	for _, path := range []string{p.result.PackagePath, p.result.ManifestPath, p.result.SettingsPath} {
		if path == "" {
			continue
		}

		if absolute, err := filepath.Abs(path); err == nil {
			skip[absolute] = struct{}{}
		}
	}

	file, err := os.OpenFile(filepath.Clean(p.result.PackagePath), os.O_CREATE|os.O_WRONLY|os.O_TRUNC, DefaultFileMode)
	if err != nil {
		return err
	}

	writer := zip.NewWriter(file)

	walkErr := filepath.WalkDir(p.opts.SourceDir, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		if absolute, absErr := filepath.Abs(path); absErr == nil {
			if _, found := skip[absolute]; found {
				return nil
			}
		}

		relative, err := filepath.Rel(p.opts.SourceDir, path)
		if err != nil || relative == "." {
			return err
		}

		return p.addEntry(writer, path, filepath.ToSlash(relative), entry)
	})

	if err = errors.Join(walkErr, writer.Close(), file.Close()); err != nil {
		_ = os.Remove(p.result.PackagePath)

		return err
	}

	return nil
}

func (p *packager) addEntry(writer *zip.Writer, path, name string, entry fs.DirEntry) error {
	info, err := entry.Info()
	if err != nil {
		return err
	}

	header, err := zip.FileInfoHeader(info)
	if err != nil {
		return err
	}

	header.Name = name

	if entry.IsDir() {
		header.Name += "/"

		_, err = writer.CreateHeader(header)

		return err
	}

	header.Method = zip.Deflate

	w, err := writer.CreateHeader(header)
	if err != nil {
		return err
	}

	source, err := os.Open(filepath.Clean(path))
	if err != nil {
		return err
	}

	defer func() {
		_ = source.Close()
	}()

	if _, err = io.Copy(w, source); err != nil {
		return err
	}

	p.result.Entries++

	return nil
}

// writeManifest writes the JSON document the updater polls.
func (p *packager) writeManifest() error {
	contents, err := json.MarshalIndent(checker.Manifest{
		Version:   strings.TrimSpace(p.opts.Version),
		UpdateURL: p.opts.UpdateURL,
	}, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(p.result.ManifestPath, append(contents, '\n'), DefaultFileMode)
}

// printNextSteps logs human-readable guidance for next actions with the created files.
func (p *packager) printNextSteps(ctx context.Context) {
	var builder strings.Builder

	builder.WriteString("Upload ")
	builder.WriteString(p.result.PackagePath)
	builder.WriteString(" so that it is served at ")
	builder.WriteString(p.opts.UpdateURL)
	builder.WriteString(",\nthen publish ")
	builder.WriteString(p.result.ManifestPath)
	builder.WriteString(" at the manifest address the updaters poll")

	if p.result.SettingsPath != "" {
		builder.WriteString(" (")
		builder.WriteString(p.opts.ManifestURL)
		builder.WriteString(").\nCopy ")
		builder.WriteString(p.result.SettingsPath)
		builder.WriteString(" next to every installed updater")
	}

	builder.WriteString(".\nPublish the manifest last, so no updater sees it before the package is reachable.")

	logger.Info(ctx, builder.String())
}

func validateURL(raw string) error {
	parsed, err := url.ParseRequestURI(raw)
	if err != nil {
		return fmt.Errorf("%s: %w", raw, errUpdateURLInvalid)
	}

	if parsed.Scheme == "" || parsed.Host == "" {
		return fmt.Errorf("%s: %w", raw, errUpdateURLInvalid)
	}

	return nil
}

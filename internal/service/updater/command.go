package updater

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime/debug"
	"strings"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/oshokin/app-updater/internal/config"
	"github.com/oshokin/app-updater/internal/logger"
	"github.com/oshokin/app-updater/internal/service/checker"
	"github.com/oshokin/app-updater/internal/service/common"
	"github.com/oshokin/app-updater/internal/service/extractor"
	"github.com/oshokin/app-updater/internal/service/launcher"
	"github.com/oshokin/app-updater/internal/service/stager"
	"github.com/oshokin/app-updater/internal/version"
)

var (
	errUpdaterAlreadyRunning = errors.New("the updater is already running")
	errUsage                 = errors.New("an archive path and a main application directory are required")
	errPanic                 = errors.New("unexpected panic")
)

// Options are inputs accepted by the updater entry point.
type Options struct {
	// ConfigPath is the optional path to settings YAML file.
	// Empty means the default file beside the executable.
	ConfigPath string
	// Args are the positional arguments: the archive path and the main application directory.
	Args []string
	// CommandLine is the full original command line, argv[0] first.
	// It is saved for the updated updater to be started with.
	CommandLine []string
	// Input is read when waiting for the user to acknowledge an error.
	Input io.Reader
	// NoWait skips waiting for the acknowledgment.
	NoWait bool
	// Verbose logs at debug level regardless of the settings.
	Verbose bool

	// BaseDir overrides the directory of the running executable.
	BaseDir string
	// CurrentVersion overrides the built-in version.
	CurrentVersion string
	// Checker, Stager, Extractor and Launcher override the components built from settings.
	Checker   *checker.Checker
	Stager    *stager.Stager
	Extractor *extractor.Extractor
	Launcher  *launcher.Launcher
}

// runner holds the state of a single updater execution.
type runner struct {
	opts       *Options
	cfg        *config.Config
	baseDir    string
	logPath    string
	markerPath string
	ownsMarker bool
	closeLog   func() error
	input      *bufio.Reader
}

// Run executes the updater lifecycle and is the public entry point for the CLI.
// Every failure is returned as *ExitError.
func Run(ctx context.Context, opts *Options) (err error) {
	u, err := newRunner(opts)
	if err != nil {
		logger.ErrorKV(ctx, "Unable to start the updater", "error", err)
		acknowledgeWith(ctx, opts)

		return &ExitError{Code: ExitUnexpected, Err: err}
	}

	var logOptions []zap.Option
	if u.opts.Verbose {
		logOptions = append(logOptions, logger.WithLevel(zapcore.DebugLevel))
	}

	log, closeLog, err := logger.NewWithFile(u.logPath, logLevel(u.cfg.LogLevel), logOptions...)
	if err != nil {
		logger.ErrorKV(ctx, "Unable to open the log file", "path", u.logPath, "error", err)
		u.acknowledge(ctx)

		return &ExitError{Code: ExitUnexpected, Err: err}
	}

	u.closeLog = closeLog
	ctx = logger.WithName(logger.ToContext(ctx, log), baseUpdaterExecutable)

	defer u.cleanup(ctx)

	defer func() {
		if r := recover(); r != nil {
			logger.ErrorKV(ctx, "Unhandled panic", "panic", r, "stack", string(debug.Stack()))
			u.acknowledge(ctx)

			err = &ExitError{Code: ExitUnexpected, Err: fmt.Errorf("%w: %v", errPanic, r)}
		}
	}()

	if err = u.Run(ctx); err != nil {
		exitErr := newExitError(err)
		logger.ErrorKV(ctx, "Updater run failed", "error", err, "exit_code", exitErr.Code)

		return exitErr
	}

	return nil
}

// newRunner resolves the working directory and loads settings.
func newRunner(opts *Options) (*runner, error) {
	if opts == nil {
		opts = new(Options)
	}

	u := &runner{opts: opts, baseDir: opts.BaseDir}

	if u.baseDir == "" {
		executable, err := stager.Executable()
		if err != nil {
			return nil, fmt.Errorf("locate executable: %w", err)
		}

		u.baseDir = filepath.Dir(executable)
	}

	configPath := opts.ConfigPath
	if configPath == "" {
		configPath = filepath.Join(u.baseDir, config.DefaultConfigFilename)
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	u.cfg = cfg
	u.logPath = config.ResolvePath(u.baseDir, cfg.LogFile)
	u.markerPath = filepath.Join(u.baseDir, MarkerFilename)

	u.input = bufio.NewReader(inputOf(opts))

	return u, nil
}

// Run performs the flow:
// 1) Refuse to run next to another updater.
// 2) Check for a newer release and hand off to it if there is one.
// 3) Expand the package from the command line into the main application directory.
// 4) Start the main application and idle.
func (u *runner) Run(ctx context.Context) error {
	currentVersion := u.currentVersion()

	logger.Info(ctx, bannerLine)
	logger.Infof(ctx, "Log started at: %s", time.Now().Format(time.DateTime))
	logger.Info(ctx, bannerLine)
	logger.InfoKV(ctx, "Current version", "version", currentVersion)

	if IsUpdaterRunningNow(ctx, u.markerPath, markerLifetimeFor(u.cfg.IdleDelay)) {
		return errUpdaterAlreadyRunning
	}

	if err := createMarker(u.markerPath); err != nil {
		return fmt.Errorf("create update marker: %w", err)
	}

	u.ownsMarker = true

	if u.handOffToNewRelease(ctx, currentVersion) {
		return nil
	}

	archivePath, mainAppDirectory, err := u.positionalArgs()
	if err != nil {
		logger.Error(ctx, err)
		logger.Infof(ctx, "Usage: %s <archivePath> <mainAppDirectory>", updaterExecutable())
		u.acknowledge(ctx)

		return err
	}

	if err = u.expand(ctx, archivePath, mainAppDirectory); err != nil {
		u.acknowledge(ctx)

		return err
	}

	mainApp := u.launcher()

	if err = mainApp.RelaunchMain(ctx, mainAppDirectory); err != nil {
		logger.ErrorKV(ctx, "Unable to start the main application", "error", err)
		u.acknowledge(ctx)

		return err
	}

	if err = touchMarker(u.markerPath); err != nil {
		logger.Errorf(ctx, "Unable to refresh the update marker: %v", err)
	}

	mainApp.Idle(ctx)

	return nil
}

// handOffToNewRelease stages a newer release. It returns true when the
// hand-off process was started and this process must exit.
func (u *runner) handOffToNewRelease(ctx context.Context, currentVersion string) bool {
	decision := u.checker().CheckForUpdate(ctx, u.cfg.ManifestURL, currentVersion)
	if !decision.Available {
		return false
	}

	if err := u.stager().Stage(ctx, decision, u.opts.CommandLine); err != nil {
		logger.ErrorKV(ctx, "Unable to stage the update, continuing with the installed version", "error", err)

		return false
	}

	logger.InfoKV(ctx, "Update staged, exiting so it can be installed", "version", decision.Version)

	return true
}

// positionalArgs returns the archive path and the unquoted main application directory.
func (u *runner) positionalArgs() (string, string, error) {
	if len(u.opts.Args) < 2 {
		return "", "", errUsage
	}

	return u.opts.Args[0], strings.Trim(u.opts.Args[1], `"`), nil
}

func (u *runner) expand(ctx context.Context, archivePath, mainAppDirectory string) error {
	logger.InfoKV(ctx, "Expanding package", "archive", archivePath, "destination", mainAppDirectory)

	report, err := u.extractor().Extract(ctx, archivePath, mainAppDirectory)
	if err != nil {
		return err
	}

	if report.FailedEntries > 0 || report.LockedEntries > 0 {
		logger.WarnKV(ctx, "Some entries were not extracted",
			"locked", report.LockedEntries, "failed", report.FailedEntries)
	}

	return nil
}

// acknowledge waits for a line on the input so the console stays readable.
func (u *runner) acknowledge(ctx context.Context) {
	if u.opts.NoWait {
		return
	}

	waitForEnter(ctx, u.input)
}

// acknowledgeWith is acknowledge for failures that happen before a runner exists.
func acknowledgeWith(ctx context.Context, opts *Options) {
	if opts == nil {
		opts = new(Options)
	}

	if opts.NoWait {
		return
	}

	waitForEnter(ctx, bufio.NewReader(inputOf(opts)))
}

func waitForEnter(ctx context.Context, input *bufio.Reader) {
	logger.Info(ctx, "Press Enter to exit...")

	if _, err := input.ReadString('\n'); err != nil && !errors.Is(err, io.EOF) {
		logger.DebugKV(ctx, "Unable to read acknowledgment", "error", err)
	}
}

// inputOf returns the acknowledgment input, stdin unless overridden.
func inputOf(opts *Options) io.Reader {
	if opts.Input != nil {
		return opts.Input
	}

	return os.Stdin
}

// cleanup removes the marker this run created and closes the log.
func (u *runner) cleanup(ctx context.Context) {
	if u.ownsMarker {
		_ = os.Remove(u.markerPath)
	}

	logger.Info(ctx, "The updater has been stopped")

	if u.closeLog != nil {
		_ = u.closeLog()
	}
}

func (u *runner) currentVersion() string {
	if u.opts.CurrentVersion != "" {
		return u.opts.CurrentVersion
	}

	return version.Short()
}

func (u *runner) checker() *checker.Checker {
	if u.opts.Checker != nil {
		return u.opts.Checker
	}

	return checker.New(
		checker.WithClient(common.NewClient(common.WithTimeout(u.cfg.Timeout))),
		checker.WithCompareMode(u.cfg.CompareMode),
	)
}

func (u *runner) stager() *stager.Stager {
	if u.opts.Stager != nil {
		return u.opts.Stager
	}

	level := u.cfg.LogLevel
	if u.opts.Verbose {
		level = zapcore.DebugLevel.String()
	}

	return stager.New(
		stager.WithClient(common.NewClient(
			common.WithTimeout(u.cfg.Timeout),
			common.WithDownloadTimeout(u.cfg.DownloadTimeout),
		)),
		stager.WithGracePeriod(u.cfg.GracePeriod),
		stager.WithLog(u.logPath, level),
	)
}

func (u *runner) extractor() *extractor.Extractor {
	if u.opts.Extractor != nil {
		return u.opts.Extractor
	}

	return extractor.New()
}

func (u *runner) launcher() *launcher.Launcher {
	if u.opts.Launcher != nil {
		return u.opts.Launcher
	}

	return launcher.New(
		launcher.WithMainExecutable(u.cfg.MainExecutable),
		launcher.WithIdleDelay(u.cfg.IdleDelay),
	)
}

// logLevel parses a configured level, falling back to info.
func logLevel(level string) zapcore.Level {
	parsed, ok := logger.ParseLogLevel(level)
	if !ok {
		return zapcore.InfoLevel
	}

	return parsed
}

package launcher

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/oshokin/app-updater/internal/config"
	"github.com/oshokin/app-updater/internal/logger"
	"github.com/oshokin/app-updater/internal/service/process"
)

// ErrLaunch wraps every failure to start the main application.
var ErrLaunch = errors.New("unable to launch the main application")

// Launcher starts the main application.
type Launcher struct {
	mainExecutable string
	idleDelay      time.Duration
	start          func(spec process.Spec) (int, error)
	sleep          func(ctx context.Context, d time.Duration) error
}

// Option configures a Launcher.
type Option func(*Launcher)

// WithMainExecutable sets the executable started inside the application directory.
func WithMainExecutable(name string) Option {
	return func(l *Launcher) {
		if name != "" {
			l.mainExecutable = name
		}
	}
}

// WithIdleDelay sets how long Idle blocks.
func WithIdleDelay(delay time.Duration) Option {
	return func(l *Launcher) {
		if delay >= 0 {
			l.idleDelay = delay
		}
	}
}

// WithStarter replaces how the main application is started.
func WithStarter(start func(spec process.Spec) (int, error)) Option {
	return func(l *Launcher) {
		if start != nil {
			l.start = start
		}
	}
}

// WithSleep replaces how Idle waits.
func WithSleep(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(l *Launcher) {
		if sleep != nil {
			l.sleep = sleep
		}
	}
}

// New creates a Launcher with the configured defaults.
func New(opts ...Option) *Launcher {
	l := &Launcher{
		mainExecutable: config.Default().MainExecutable,
		idleDelay:      config.DefaultIdleDelay,
		start:          process.StartDetached,
		sleep:          process.Sleep,
	}

	for _, opt := range opts {
		opt(l)
	}

	return l
}

// RelaunchMain starts the main application from mainAppDirectory without waiting for it.
func (l *Launcher) RelaunchMain(ctx context.Context, mainAppDirectory string) error {
	executable := l.mainExecutable
	if !filepath.IsAbs(executable) {
		executable = filepath.Join(mainAppDirectory, executable)
	}

	logger.InfoKV(ctx, "Starting the main application", "executable", executable)

	pid, err := l.start(process.Spec{
		Path: executable,
		Dir:  mainAppDirectory,
	})
	if err != nil {
		return fmt.Errorf("%w: %w", ErrLaunch, err)
	}

	logger.InfoKV(ctx, "Main application started", "pid", pid)

	return nil
}

// Idle blocks for the idle delay or until ctx is cancelled.
func (l *Launcher) Idle(ctx context.Context) {
	logger.Debugf(ctx, "Exiting in %s", l.idleDelay)

	if err := l.sleep(ctx, l.idleDelay); err != nil {
		logger.Debugf(ctx, "Idle interrupted: %v", err)
	}
}

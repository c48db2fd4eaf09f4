package handoff

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/oshokin/app-updater/internal/logger"
	"github.com/oshokin/app-updater/internal/service/extractor"
	"github.com/oshokin/app-updater/internal/service/process"
)

var errNoArguments = errors.New("arguments file is empty")

// StepResult is the outcome of one step.
type StepResult struct {
	Step Step
	Err  error
}

// Result lists every executed step in order.
type Result struct {
	Steps []StepResult
}

// Failed returns the steps that returned an error.
func (r *Result) Failed() []StepResult {
	var failed []StepResult

	for _, step := range r.Steps {
		if step.Err != nil {
			failed = append(failed, step)
		}
	}

	return failed
}

// Err joins the errors of all failed steps, nil when every step succeeded.
func (r *Result) Err() error {
	var errs []error

	for _, step := range r.Failed() {
		errs = append(errs, fmt.Errorf("step %s: %w", step.Step, step.Err))
	}

	return errors.Join(errs...)
}

// Runner executes descriptors.
type Runner struct {
	extractor   *extractor.Extractor
	sleep       func(ctx context.Context, d time.Duration) error
	waitForExit func(ctx context.Context, pid int, maxWait time.Duration) error
	start       func(spec process.Spec) (int, error)
	removeSelf  func(path string) error
}

// Option configures a Runner.
type Option func(*Runner)

// WithExtractor sets the extractor used by the expand step.
func WithExtractor(e *extractor.Extractor) Option {
	return func(r *Runner) {
		if e != nil {
			r.extractor = e
		}
	}
}

// WithSleep replaces the grace period sleep.
func WithSleep(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(r *Runner) {
		if sleep != nil {
			r.sleep = sleep
		}
	}
}

// WithWaitForExit replaces polling for the parent process.
func WithWaitForExit(wait func(ctx context.Context, pid int, maxWait time.Duration) error) Option {
	return func(r *Runner) {
		if wait != nil {
			r.waitForExit = wait
		}
	}
}

// WithStarter replaces how the new updater is started.
func WithStarter(start func(spec process.Spec) (int, error)) Option {
	return func(r *Runner) {
		if start != nil {
			r.start = start
		}
	}
}

// WithSelfRemover replaces how the running hand-off executable is deleted.
func WithSelfRemover(remove func(path string) error) Option {
	return func(r *Runner) {
		if remove != nil {
			r.removeSelf = remove
		}
	}
}

// NewRunner creates a Runner working with real processes and files.
func NewRunner(opts ...Option) *Runner {
	r := &Runner{
		extractor:   extractor.New(),
		sleep:       process.Sleep,
		waitForExit: process.WaitForExit,
		start:       process.StartDetached,
		removeSelf:  process.RemoveExecutable,
	}

	for _, opt := range opts {
		opt(r)
	}

	return r
}

// Execute runs the descriptor's steps in order. A failed step is logged and
// recorded, and the next step runs regardless.
func (r *Runner) Execute(ctx context.Context, d *Descriptor) *Result {
	result := &Result{Steps: make([]StepResult, 0, len(d.Steps))}

	for _, step := range d.Steps {
		logger.InfoKV(ctx, "Running hand-off step", "step", step)

		err := r.runStep(ctx, d, step)
		if err != nil {
			logger.ErrorKV(ctx, "Hand-off step failed", "step", step, "error", err)
		}

		result.Steps = append(result.Steps, StepResult{Step: step, Err: err})
	}

	logger.InfoKV(ctx, "Hand-off finished", "steps", len(result.Steps), "failed", len(result.Failed()))

	return result
}

func (r *Runner) runStep(ctx context.Context, d *Descriptor, step Step) error {
	switch step {
	case StepWait:
		return r.waitForParent(ctx, d)
	case StepRemoveUpdater:
		return removeIfExists(d.UpdaterPath)
	case StepExpandPackage:
		_, err := r.extractor.Extract(ctx, d.PackagePath, d.BaseDir)

		return err
	case StepRemovePackage:
		return removeIfExists(d.PackagePath)
	case StepRelaunchUpdater:
		return r.relaunchUpdater(ctx, d)
	case StepRemoveArguments:
		return removeIfExists(d.ArgumentsPath)
	case StepRemoveSelf:
		return r.removeItself(d)
	default:
		return fmt.Errorf("%q: %w", step, errUnknownStep)
	}
}

func (r *Runner) waitForParent(ctx context.Context, d *Descriptor) error {
	logger.InfoKV(ctx, "Waiting for the updater to exit", "pid", d.ParentPID, "grace_period", d.GracePeriod)

	if err := r.sleep(ctx, d.GracePeriod); err != nil {
		return err
	}

	return r.waitForExit(ctx, d.ParentPID, d.MaxWait)
}

func (r *Runner) relaunchUpdater(ctx context.Context, d *Descriptor) error {
	args, err := ReadArguments(d.ArgumentsPath)
	if err != nil {
		return err
	}

	if len(args) == 0 {
		return errNoArguments
	}

	pid, err := r.start(process.Spec{
		Path: d.UpdaterPath,
		Args: args[1:],
		Dir:  d.BaseDir,
	})
	if err != nil {
		return err
	}

	logger.InfoKV(ctx, "Started the new updater", "pid", pid, "args", args[1:])

	return nil
}

func (r *Runner) removeItself(d *Descriptor) error {
	var errs []error

	if d.Path() != "" {
		errs = append(errs, removeIfExists(d.Path()))
	}

	errs = append(errs, r.removeSelf(d.RunnerPath))

	return errors.Join(errs...)
}

// removeIfExists deletes path, a missing file is not an error.
func removeIfExists(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}

	return nil
}

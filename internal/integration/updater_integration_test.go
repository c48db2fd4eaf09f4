package integration

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/oshokin/app-updater/internal/service/handoff"
	"github.com/oshokin/app-updater/internal/service/launcher"
	"github.com/oshokin/app-updater/internal/service/stager"
	"github.com/oshokin/app-updater/internal/service/updater"
)

func (in *installation) options(args ...string) *updater.Options {
	return &updater.Options{
		Args:           args,
		CommandLine:    append([]string{in.updater}, args...),
		NoWait:         true,
		BaseDir:        in.updaterDir,
		CurrentVersion: "1.0.0",
		Stager: stager.New(
			stager.WithExecutable(func() (string, error) { return in.updater, nil }),
			stager.WithStarter(in.start),
		),
		Launcher: launcher.New(launcher.WithIdleDelay(0), launcher.WithStarter(in.start)),
	}
}

// TestUpdateAvailable_StagesAndHandsOff stages the published release, exits with 0 without
// touching the main application, and the hand-off then installs the new updater.
func TestUpdateAvailable_StagesAndHandsOff(t *testing.T) {
	t.Parallel()

	in := newInstallation(t, "2.0.0")
	archive := in.writePackage(t)

	err := updater.Run(context.Background(), in.options(archive, in.appDir))
	require.NoError(t, err)
	require.Equal(t, updater.ExitSuccess, updater.ExitCode(err))

	// Nothing was extracted and the main application was not started.
	entries, err := os.ReadDir(in.appDir)
	require.NoError(t, err)
	require.Empty(t, entries)

	require.Len(t, in.started, 1)
	runner := in.started[0]
	require.Equal(t, filepath.Join(in.updaterDir, "app-updater-handoff"), runner.Path)
	require.Equal(t, stager.HandoffCommand, runner.Args[0])
	require.True(t, runner.Hidden)

	descriptor, err := handoff.Load(runner.Args[1])
	require.NoError(t, err)
	require.Equal(t, []handoff.Step{
		handoff.StepWait,
		handoff.StepRemoveUpdater,
		handoff.StepExpandPackage,
		handoff.StepRemovePackage,
		handoff.StepRelaunchUpdater,
		handoff.StepRemoveArguments,
		handoff.StepRemoveSelf,
	}, descriptor.Steps)
	require.GreaterOrEqual(t, descriptor.GracePeriod, 5*time.Second)
	require.FileExists(t, descriptor.PackagePath)
	require.NoFileExists(t, filepath.Join(in.updaterDir, updater.MarkerFilename))

	// Second phase: the parent is gone, install and start the new updater.
	result := handoff.NewRunner(
		handoff.WithSleep(func(context.Context, time.Duration) error { return nil }),
		handoff.WithWaitForExit(func(context.Context, int, time.Duration) error { return nil }),
		handoff.WithStarter(in.start),
	).Execute(context.Background(), descriptor)
	require.NoError(t, result.Err())

	newUpdater, err := os.ReadFile(in.updater)
	require.NoError(t, err)
	require.Equal(t, "updater 2.0.0", string(newUpdater))

	require.Len(t, in.started, 2)
	require.Equal(t, in.updater, in.started[1].Path)
	require.Equal(t, []string{archive, in.appDir}, in.started[1].Args)

	for _, leftover := range []string{
		descriptor.PackagePath,
		descriptor.ArgumentsPath,
		descriptor.RunnerPath,
		descriptor.Path(),
	} {
		require.NoFileExists(t, leftover)
	}
}

// TestSameVersion_ExtractsAndRelaunches installs the local package and starts the main application.
func TestSameVersion_ExtractsAndRelaunches(t *testing.T) {
	t.Parallel()

	in := newInstallation(t, "1.0.0")
	archive := in.writePackage(t)
	require.NoError(t, os.WriteFile(filepath.Join(in.appDir, "Software"), []byte("main v1"), 0o755))

	err := updater.Run(context.Background(), in.options(archive, `"`+in.appDir+`"`))
	require.NoError(t, err)

	software, err := os.ReadFile(filepath.Join(in.appDir, "Software"))
	require.NoError(t, err)
	require.Equal(t, "main v2", string(software))
	require.FileExists(t, filepath.Join(in.appDir, "data", "db.json"))

	require.Len(t, in.started, 1)
	require.Equal(t, filepath.Join(in.appDir, "Software"), in.started[0].Path)
	require.NoFileExists(t, filepath.Join(in.updaterDir, handoff.PackageFilename))
}

// TestMissingArchive_FailsWithoutSideEffects reports FilePathInvalid and leaves the application alone.
func TestMissingArchive_FailsWithoutSideEffects(t *testing.T) {
	t.Parallel()

	in := newInstallation(t, "1.0.0")

	err := updater.Run(context.Background(), in.options(filepath.Join(in.root, "missing.zip"), in.appDir))
	require.Equal(t, updater.ExitFilePathInvalid, updater.ExitCode(err))

	entries, readErr := os.ReadDir(in.appDir)
	require.NoError(t, readErr)
	require.Empty(t, entries)
	require.Empty(t, in.started)

	log, readErr := os.ReadFile(filepath.Join(in.updaterDir, "update.log"))
	require.NoError(t, readErr)
	require.Contains(t, string(log), "archive path is invalid")
}

package integration

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/oshokin/app-updater/internal/config"
	"github.com/oshokin/app-updater/internal/service/packager"
	"github.com/oshokin/app-updater/internal/service/process"
)

// installation is an updater directory, a main application directory and an update server.
type installation struct {
	root       string
	updaterDir string
	updater    string
	appDir     string
	server     *httptest.Server
	started    []process.Spec
}

// newInstallation publishes a release with remoteVersion and points the updater at it.
func newInstallation(t *testing.T, remoteVersion string) *installation {
	t.Helper()

	root := t.TempDir()
	in := &installation{
		root:       root,
		updaterDir: filepath.Join(root, "updater"),
		appDir:     filepath.Join(root, "app"),
	}
	in.updater = filepath.Join(in.updaterDir, "app-updater")

	require.NoError(t, os.Mkdir(in.updaterDir, 0o755))
	require.NoError(t, os.Mkdir(in.appDir, 0o755))
	require.NoError(t, os.WriteFile(in.updater, []byte("updater "+remoteVersion+" predecessor"), 0o755))

	release := filepath.Join(root, "release")
	require.NoError(t, os.Mkdir(release, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(release, "app-updater"), []byte("updater "+remoteVersion), 0o755))

	dist := filepath.Join(root, "dist")
	in.server = httptest.NewServer(http.FileServer(http.Dir(dist)))
	t.Cleanup(in.server.Close)

	_, err := packager.Run(context.Background(), &packager.Options{
		SourceDir:   release,
		Version:     remoteVersion,
		UpdateURL:   in.server.URL + "/update.zip",
		OutputDir:   dist,
		ManifestURL: in.server.URL + "/" + packager.ManifestFilename,
	})
	require.NoError(t, err)

	settings, err := os.ReadFile(filepath.Join(dist, config.DefaultConfigFilename))
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(in.updaterDir, config.DefaultConfigFilename), settings, 0o600))

	return in
}

// writePackage creates a local package for the main application.
func (in *installation) writePackage(t *testing.T) string {
	t.Helper()

	source := filepath.Join(in.root, "main-release")
	require.NoError(t, os.MkdirAll(filepath.Join(source, "data"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(source, "Software"), []byte("main v2"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(source, "data", "db.json"), []byte("{}"), 0o644))

	output := filepath.Join(in.root, "main-dist")

	result, err := packager.Run(context.Background(), &packager.Options{
		SourceDir: source,
		Version:   "unused",
		UpdateURL: "http://localhost/unused.zip",
		OutputDir: output,
	})
	require.NoError(t, err)

	return result.PackagePath
}

func (in *installation) start(spec process.Spec) (int, error) {
	in.started = append(in.started, spec)

	return 1000 + len(in.started), nil
}

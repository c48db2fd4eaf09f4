// Package version exposes build metadata for the updater and the packager.
//
// Variables Version, Commit, and BuildTime are injected at build time via
// Go ldflags. The updater compares Short against the remote manifest to decide
// whether it has to replace itself.
package version

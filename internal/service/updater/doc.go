// Package updater is the updater's control flow.
//
// It checks for a newer release and, when one exists, stages it and exits so a
// detached hand-off process can replace the updater. Otherwise it expands the
// package given on the command line into the main application's directory and
// starts the main application. Failures are mapped to process exit codes.
package updater

// Package process starts detached successor processes and inspects the
// process table.
//
// Detached processes are never waited for: the updater hands control to them
// and exits. Platform differences (sessions on Unix, hidden windows and
// process groups on Windows) live in build-tagged files.
package process

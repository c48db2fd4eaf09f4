// Package handoff describes and performs the second phase of a self-update.
//
// The running updater cannot replace its own executable, so it writes a
// Descriptor and starts a copy of itself that waits for the original to exit,
// installs the staged package and starts the new updater with the original
// arguments. Every step is idempotent and a failed step never stops the rest.
package handoff

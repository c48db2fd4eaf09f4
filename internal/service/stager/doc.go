// Package stager prepares a downloaded release for installation by a detached hand-off process.
package stager

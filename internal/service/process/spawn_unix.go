//go:build !windows

package process

import (
	"os/exec"
	"syscall"
)

// detach puts the child into its own session so it outlives the parent and its terminal.
func detach(cmd *exec.Cmd, _ bool) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
}

// removeLater returns cause unchanged: a running image can be unlinked on Unix,
// so a failed removal is a real error.
func removeLater(_ string, cause error) error {
	return cause
}

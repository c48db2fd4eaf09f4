//go:build windows

package process

import (
	"fmt"
	"os"
	"os/exec"
	"syscall"

	"golang.org/x/sys/windows"
)

// removeDelayPings is the number of one-second pings cmd.exe waits before deleting.
const removeDelayPings = 3

// detach starts the child in its own process group, without a console when hidden.
func detach(cmd *exec.Cmd, hidden bool) {
	flags := uint32(windows.CREATE_NEW_PROCESS_GROUP)
	if hidden {
		flags |= windows.DETACHED_PROCESS
	}

	cmd.SysProcAttr = &syscall.SysProcAttr{
		HideWindow:    hidden,
		CreationFlags: flags,
	}
}

// removeLater asks a hidden cmd.exe to delete path once the current image has been released.
func removeLater(path string, _ error) error {
	comspec := os.Getenv("ComSpec")
	if comspec == "" {
		comspec = "cmd.exe"
	}

	cmd := exec.Command(comspec)
	cmd.SysProcAttr = &syscall.SysProcAttr{
		HideWindow:    true,
		CreationFlags: windows.CREATE_NEW_PROCESS_GROUP | windows.DETACHED_PROCESS,
		CmdLine: fmt.Sprintf(`"%s" /C ping 127.0.0.1 -n %d > nul & del /f /q "%s"`,
			comspec, removeDelayPings+1, path),
	}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("schedule removal of %s: %w", path, err)
	}

	return cmd.Process.Release()
}

//go:build !windows

package codeexec

import (
	"os/exec"
	"syscall"
)

// setProcessGroup places the child in its own process group so that a
// timeout kills the interpreter together with anything it spawned.
func setProcessGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		if cmd.Process == nil {
			return nil
		}
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	}
}

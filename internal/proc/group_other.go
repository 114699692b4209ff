//go:build !windows

package proc

import (
	"os/exec"
	"syscall"
)

// configure starts the command in its own process group and kills the group
// on cancellation, so helpers such as mktexpk die with the engine.
func configure(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	}
}

//go:build windows

package proc

import (
	"os/exec"
	"syscall"
)

// configure 在 Windows 上隐藏命令行窗口
func configure(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{
		HideWindow:    true,
		CreationFlags: 0x08000000, // CREATE_NO_WINDOW
	}
}

//go:build !windows

package dap

import (
	stderrors "errors"
	"os"
	"os/exec"
	"syscall"
)

// KillProcessGroup kills an adapter process and every process it started.
// The adapter must have been started with SetProcAttr so that it leads its
// own process group. A process that already exited is not an error.
func KillProcessGroup(cmd *exec.Cmd) error {
	if cmd == nil || cmd.Process == nil {
		return nil
	}
	if pid := cmd.Process.Pid; pid > 0 {
		// Negative pid signals the whole group
		if err := syscall.Kill(-pid, syscall.SIGKILL); err != nil && err != syscall.ESRCH {
			return err
		}
		return nil
	}
	if err := cmd.Process.Kill(); err != nil && !stderrors.Is(err, os.ErrProcessDone) {
		return err
	}
	return nil
}

// SetProcAttr starts the adapter in a new session so it becomes a process group leader.
func SetProcAttr(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
}

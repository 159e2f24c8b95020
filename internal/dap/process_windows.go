//go:build windows

package dap

import (
	stderrors "errors"
	"os"
	"os/exec"
	"syscall"
)

// KillProcessGroup kills an adapter process. Windows has no Unix-style process
// groups, so only the adapter itself is killed.
func KillProcessGroup(cmd *exec.Cmd) error {
	if cmd == nil || cmd.Process == nil {
		return nil
	}
	if err := cmd.Process.Kill(); err != nil && !stderrors.Is(err, os.ErrProcessDone) {
		return err
	}
	return nil
}

// SetProcAttr starts the adapter in a new process group.
func SetProcAttr(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{
		CreationFlags: syscall.CREATE_NEW_PROCESS_GROUP,
	}
}

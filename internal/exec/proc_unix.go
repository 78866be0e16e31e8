//go:build unix

package exec

import (
	"os/exec"
	"syscall"
)

func shellCommand() (string, []string) {
	return "sh", []string{"-c"}
}

// setProcessGroup puts the child in its own group so the whole tree can be
// signalled at once.
func setProcessGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}

// killProcess kills the child's process group.
func killProcess(cmd *exec.Cmd) error {
	if cmd.Process == nil {
		return nil
	}
	if err := syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL); err != nil {
		return cmd.Process.Kill()
	}
	return nil
}

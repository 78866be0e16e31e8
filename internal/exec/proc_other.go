//go:build !unix

package exec

import "os/exec"

func shellCommand() (string, []string) {
	return "cmd", []string{"/C"}
}

func setProcessGroup(cmd *exec.Cmd) {}

func killProcess(cmd *exec.Cmd) error {
	if cmd.Process == nil {
		return nil
	}
	return cmd.Process.Kill()
}

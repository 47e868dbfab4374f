//go:build unix

package runner

import (
	"os/exec"
	"syscall"
)

// setProcessGroup starts the shell in its own process group so cancellation
// also reaches the commands it spawned.
func setProcessGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	}
}

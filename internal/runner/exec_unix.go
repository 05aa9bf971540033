//go:build unix

package runner

import (
	"fmt"
	"os/exec"
	"syscall"
)

// setProcessGroup places the child in its own process group so the whole
// tree can be signalled at once.
func setProcessGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}

// terminateTree kills the child's entire process group. The negative pid
// targets the group rather than the single process.
func terminateTree(cmd *exec.Cmd) error {
	pid := cmd.Process.Pid

	if err := syscall.Kill(-pid, syscall.SIGKILL); err != nil {
		return fmt.Errorf("kill process group %d: %w", pid, err)
	}

	return nil
}

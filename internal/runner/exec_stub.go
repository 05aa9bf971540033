//go:build !unix

package runner

import "os/exec"

// setProcessGroup is a no-op where process groups are not available.
func setProcessGroup(_ *exec.Cmd) {}

// terminateTree kills the child process itself. Grandchildren may
// survive; the stray-process report after the unit names them.
func terminateTree(cmd *exec.Cmd) error {
	return cmd.Process.Kill()
}

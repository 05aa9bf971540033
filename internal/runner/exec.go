package runner

import (
	"context"
	"os"
	"os/exec"
	"time"
)

// killWaitDelay bounds how long a finished deadline waits for the child
// to die before the runtime force-kills it and releases Wait.
const killWaitDelay = 10 * time.Second

// runCommand starts the unit's child process and waits for it to finish.
// The child runs in its own process group; when ctx is cancelled the
// whole group is killed so grandchildren do not outlive the unit. The
// returned error is the context's cause when cancellation cut the unit
// short, otherwise the child's own start or exit error.
func runCommand(ctx context.Context, unit Unit) error {
	cmd := exec.CommandContext(ctx, unit.Command[0], unit.Command[1:]...)
	cmd.Dir = unit.Dir
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	cmd.WaitDelay = killWaitDelay

	if len(unit.Env) > 0 {
		cmd.Env = append(os.Environ(), unit.Env...)
	}

	setProcessGroup(cmd)

	cmd.Cancel = func() error {
		return terminateTree(cmd)
	}

	err := cmd.Run()

	if ctx.Err() != nil {
		return context.Cause(ctx)
	}

	return err
}

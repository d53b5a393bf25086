// Package proc configures the subprocesses the engine starts for bash steps
// and agent backends.
package proc

import (
	"os/exec"
	"time"
)

// waitDelay bounds how long Wait keeps reading pipes that background
// grandchildren still hold open after the direct child exited.
const waitDelay = time.Second

// Isolate starts cmd in its own process group. A terminal interrupt then
// reaches only the engine, which cancels the step's context; cancellation
// kills the whole group so grandchildren do not outlive the step. cmd must
// have been created with exec.CommandContext.
func Isolate(cmd *exec.Cmd) {
	isolate(cmd)
	cmd.WaitDelay = waitDelay
}

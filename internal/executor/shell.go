package executor

import (
	"bytes"
	"context"
	"errors"
	"os/exec"

	"github.com/kingrea/amplihack-recipes/internal/proc"
)

// ShellResult is the outcome of one shell command.
type ShellResult struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// ShellRunner runs bash step commands. A non-zero exit is reported through
// ShellResult.ExitCode, not as an error; errors mean the command could not be
// run or was cut short by ctx.
type ShellRunner interface {
	Run(ctx context.Context, command string) (ShellResult, error)
}

// ExecShell runs commands with `bash -c`.
type ExecShell struct {
	// Shell defaults to bash.
	Shell string
	Dir   string
	Env   []string
}

// Run implements ShellRunner.
func (s ExecShell) Run(ctx context.Context, command string) (ShellResult, error) {
	shell := s.Shell
	if shell == "" {
		shell = "bash"
	}
	cmd := exec.CommandContext(ctx, shell, "-c", command)
	cmd.Dir = s.Dir
	if len(s.Env) > 0 {
		cmd.Env = append(cmd.Environ(), s.Env...)
	}
	proc.Isolate(cmd)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	res := ShellResult{Stdout: stdout.String(), Stderr: stderr.String()}
	if ctxErr := ctx.Err(); ctxErr != nil {
		res.ExitCode = -1
		return res, ctxErr
	}
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			res.ExitCode = exitErr.ExitCode()
			return res, nil
		}
		return res, err
	}
	return res, nil
}

// Package executor runs a single recipe step: it resolves the step's template
// against the execution context, dispatches on the step kind and converts the
// result into an Outcome. It never binds outputs; the runner does that.
package executor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/kingrea/amplihack-recipes/internal/adapter"
	"github.com/kingrea/amplihack-recipes/internal/config"
	"github.com/kingrea/amplihack-recipes/internal/execctx"
	"github.com/kingrea/amplihack-recipes/internal/logging"
	"github.com/kingrea/amplihack-recipes/internal/recipe"
	"github.com/kingrea/amplihack-recipes/internal/runlog"
)

// Outcome is the result of executing one step.
type Outcome struct {
	Status   runlog.StepStatus
	Resolved string
	// Raw is trimmed stdout or the agent's text response.
	Raw string
	// Value is what gets bound to the step's output: Raw, or the decoded
	// JSON document when parse_json is set.
	Value any
	Err   *runlog.StepError
}

// Option mutates executor configuration.
type Option func(*Executor)

// WithTimeout sets the timeout for steps that declare none.
func WithTimeout(d time.Duration) Option {
	return func(e *Executor) {
		if d > 0 {
			e.timeout = d
		}
	}
}

// WithLogger attaches a logger.
func WithLogger(l *logging.Logger) Option {
	return func(e *Executor) {
		e.logger = l
	}
}

// Executor dispatches steps to the agent adapter or the shell.
type Executor struct {
	adapter adapter.Adapter
	shell   ShellRunner
	timeout time.Duration
	logger  *logging.Logger
}

// New constructs an executor. A nil adapter makes agent steps fail as
// backend_unavailable; a nil shell uses ExecShell.
func New(a adapter.Adapter, shell ShellRunner, opts ...Option) *Executor {
	if shell == nil {
		shell = ExecShell{}
	}
	e := &Executor{adapter: a, shell: shell, timeout: config.DefaultStepTimeout}
	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}
	return e
}

// Timeout returns the effective timeout for step.
func (e *Executor) Timeout(step recipe.Step) time.Duration {
	if step.Timeout > 0 {
		return step.Timeout
	}
	return e.timeout
}

// Execute runs step against vars.
func (e *Executor) Execute(ctx context.Context, step recipe.Step, vars *execctx.Context) Outcome {
	if err := ctx.Err(); err != nil {
		return aborted("", err)
	}
	switch step.Kind {
	case recipe.KindAgent:
		return e.executeAgent(ctx, step, vars)
	case recipe.KindBash:
		return e.executeBash(ctx, step, vars)
	default:
		return failed("", runlog.ErrUnknownKind, fmt.Sprintf("step %q has unsupported type %q", step.ID, step.RawKind))
	}
}

func (e *Executor) executeBash(ctx context.Context, step recipe.Step, vars *execctx.Context) Outcome {
	command, err := vars.Resolve(step.Command)
	if err != nil {
		return failed("", runlog.ErrTemplate, err.Error())
	}
	timeout := e.Timeout(step)
	stepCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	e.logger.Debug("step %s: bash -c %q (timeout %s)", step.ID, command, timeout)
	res, err := e.shell.Run(stepCtx, command)
	if err != nil {
		if ctx.Err() != nil {
			return aborted(command, ctx.Err())
		}
		if errors.Is(stepCtx.Err(), context.DeadlineExceeded) {
			return failed(command, runlog.ErrTimeout, fmt.Sprintf("command exceeded %s", timeout))
		}
		return failed(command, runlog.ErrExit, err.Error())
	}
	if res.ExitCode != 0 {
		message := strings.TrimSpace(res.Stderr)
		if message == "" {
			message = fmt.Sprintf("exit status %d", res.ExitCode)
		}
		out := failed(command, runlog.ErrExit, message)
		out.Err.ExitCode = res.ExitCode
		out.Raw = strings.TrimSpace(res.Stdout)
		return out
	}
	return e.complete(step, command, strings.TrimSpace(res.Stdout))
}

func (e *Executor) executeAgent(ctx context.Context, step recipe.Step, vars *execctx.Context) Outcome {
	prompt, err := vars.Resolve(step.Prompt)
	if err != nil {
		return failed("", runlog.ErrTemplate, err.Error())
	}
	if e.adapter == nil {
		return failed(prompt, runlog.ErrBackendUnavailable, "no agent backend selected")
	}
	timeout := e.Timeout(step)
	stepCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	e.logger.Debug("step %s: agent %s via %s (timeout %s)", step.ID, step.Agent, e.adapter.Name(), timeout)
	text, err := e.adapter.ExecuteAgentStep(stepCtx, step.Agent, prompt)
	if err != nil {
		if ctx.Err() != nil {
			return aborted(prompt, ctx.Err())
		}
		return failed(prompt, classifyAdapterError(stepCtx, err), err.Error())
	}
	return e.complete(step, prompt, strings.TrimSpace(text))
}

func classifyAdapterError(stepCtx context.Context, err error) runlog.ErrorKind {
	switch {
	case errors.Is(err, adapter.ErrAgentNotFound):
		return runlog.ErrAgentNotFound
	case errors.Is(err, adapter.ErrBackendUnavailable):
		return runlog.ErrBackendUnavailable
	case errors.Is(err, adapter.ErrTimeout), errors.Is(stepCtx.Err(), context.DeadlineExceeded):
		return runlog.ErrTimeout
	}
	return runlog.ErrBackendFailed
}

func (e *Executor) complete(step recipe.Step, resolved, raw string) Outcome {
	out := Outcome{Status: runlog.StepCompleted, Resolved: resolved, Raw: raw, Value: raw}
	if step.ParseJSON && step.Output != "" {
		var decoded any
		if err := json.Unmarshal([]byte(raw), &decoded); err != nil {
			res := failed(resolved, runlog.ErrParse, fmt.Sprintf("output is not valid JSON: %v", err))
			res.Raw = raw
			return res
		}
		out.Value = decoded
	}
	return out
}

func failed(resolved string, kind runlog.ErrorKind, message string) Outcome {
	return Outcome{
		Status:   runlog.StepFailed,
		Resolved: resolved,
		Err:      &runlog.StepError{Kind: kind, Message: message},
	}
}

func aborted(resolved string, cause error) Outcome {
	message := "interrupted"
	if cause != nil {
		message = cause.Error()
	}
	return Outcome{
		Status:   runlog.StepAborted,
		Resolved: resolved,
		Err:      &runlog.StepError{Kind: runlog.ErrInterrupted, Message: message},
	}
}

// Preview resolves the step's template without running it. The runner uses
// it for interactive approval and dry-run output.
func Preview(step recipe.Step, vars *execctx.Context) (string, error) {
	switch step.Kind {
	case recipe.KindAgent:
		return vars.Resolve(step.Prompt)
	case recipe.KindBash:
		return vars.Resolve(step.Command)
	}
	return "", fmt.Errorf("step %q has unsupported type %q", step.ID, step.RawKind)
}

// DryRunOutput is the deterministic mock a dry run records for a step.
func DryRunOutput(step recipe.Step, resolved string) string {
	if step.Kind == recipe.KindAgent {
		return fmt.Sprintf("[dry-run] agent %s: %s", step.Agent, resolved)
	}
	return fmt.Sprintf("[dry-run] bash: %s", resolved)
}

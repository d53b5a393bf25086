package adapter

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"

	"github.com/kingrea/amplihack-recipes/internal/logging"
	"github.com/kingrea/amplihack-recipes/internal/proc"
)

// Invocation is one subprocess call made by a backend.
type Invocation struct {
	Name  string
	Args  []string
	Stdin string
	Env   []string
	Dir   string
}

// CommandRunner runs backend subprocesses. Tests substitute a fake.
type CommandRunner interface {
	Run(ctx context.Context, inv Invocation) (stdout, stderr string, err error)
	LookPath(name string) (string, error)
}

// ExecRunner runs commands with os/exec.
type ExecRunner struct{}

// Run implements CommandRunner.
func (ExecRunner) Run(ctx context.Context, inv Invocation) (string, string, error) {
	cmd := exec.CommandContext(ctx, inv.Name, inv.Args...)
	proc.Isolate(cmd)
	cmd.Dir = inv.Dir
	if len(inv.Env) > 0 {
		cmd.Env = append(cmd.Environ(), inv.Env...)
	}
	if inv.Stdin != "" {
		cmd.Stdin = strings.NewReader(inv.Stdin)
	}
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	return stdout.String(), stderr.String(), err
}

// LookPath implements CommandRunner.
func (ExecRunner) LookPath(name string) (string, error) {
	return exec.LookPath(name)
}

// Options configures a backend.
type Options struct {
	Agents  AgentSet
	Runner  CommandRunner
	Logger  *logging.Logger
	WorkDir string
	// AgentCommand is the command line of the cli backend. Other backends
	// ignore it.
	AgentCommand string
}

func (o Options) runner() CommandRunner {
	if o.Runner == nil {
		return ExecRunner{}
	}
	return o.Runner
}

// commandBackend holds what every subprocess backend shares: agent lookup,
// availability probing and error classification.
type commandBackend struct {
	name    string
	binary  string
	opts    Options
	compose func(agent Agent, prompt string) Invocation
}

func (b *commandBackend) Name() string { return b.name }

func (b *commandBackend) KnownAgents() AgentSet { return b.opts.Agents }

func (b *commandBackend) Available() error {
	if b.binary == "" {
		return &AdapterError{Kind: ErrBackendUnavailable, Backend: b.name, Err: fmt.Errorf("no command configured")}
	}
	if _, err := b.opts.runner().LookPath(b.binary); err != nil {
		return &AdapterError{Kind: ErrBackendUnavailable, Backend: b.name, Err: err}
	}
	return nil
}

func (b *commandBackend) ExecuteAgentStep(ctx context.Context, agentRef, prompt string) (string, error) {
	agent, ok := b.opts.Agents.Lookup(agentRef)
	if !ok {
		err := &AdapterError{Kind: ErrAgentNotFound, Backend: b.name, Agent: agentRef}
		if hints := suggestRefs(agentRef, b.opts.Agents.Refs()); hints != "" {
			err.Err = errors.New(hints)
		}
		return "", err
	}
	if err := b.Available(); err != nil {
		return "", err
	}
	inv := b.compose(agent, prompt)
	inv.Dir = b.opts.WorkDir
	b.opts.Logger.Debug("adapter %s: %s %s (agent %s)", b.name, inv.Name, strings.Join(redactArgs(inv.Args), " "), agentRef)
	stdout, stderr, err := b.opts.runner().Run(ctx, inv)
	if ctxErr := ctx.Err(); ctxErr != nil {
		if errors.Is(ctxErr, context.DeadlineExceeded) {
			return "", &AdapterError{Kind: ErrTimeout, Backend: b.name, Agent: agentRef, Err: ctxErr}
		}
		return "", fmt.Errorf("adapter %s: %w", b.name, ctxErr)
	}
	if err != nil {
		detail := strings.TrimSpace(stderr)
		if detail == "" {
			detail = err.Error()
		}
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) && errors.Is(err, exec.ErrNotFound) {
			return "", &AdapterError{Kind: ErrBackendUnavailable, Backend: b.name, Agent: agentRef, Err: errors.New(detail)}
		}
		return "", &AdapterError{Kind: ErrBackendFailed, Backend: b.name, Agent: agentRef, Err: errors.New(detail)}
	}
	return strings.TrimSpace(stdout), nil
}

// composePrompt prefixes the agent's instructions to the step prompt.
func composePrompt(agent Agent, prompt string) string {
	if agent.Body == "" {
		return prompt
	}
	return agent.Body + "\n\n---\n\n" + prompt
}

// redactArgs shortens long arguments (prompts) for debug logging.
func redactArgs(args []string) []string {
	out := make([]string, len(args))
	for i, arg := range args {
		if len(arg) > 60 {
			arg = arg[:57] + "..."
		}
		out[i] = fmt.Sprintf("%q", arg)
	}
	return out
}

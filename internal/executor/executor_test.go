package executor

import (
	"context"
	"errors"
	"os/exec"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/kingrea/amplihack-recipes/internal/adapter"
	"github.com/kingrea/amplihack-recipes/internal/execctx"
	"github.com/kingrea/amplihack-recipes/internal/recipe"
	"github.com/kingrea/amplihack-recipes/internal/runlog"
)

type fakeShell struct {
	result   ShellResult
	err      error
	commands []string
}

func (f *fakeShell) Run(ctx context.Context, command string) (ShellResult, error) {
	f.commands = append(f.commands, command)
	return f.result, f.err
}

type fakeAdapter struct {
	reply   string
	err     error
	prompts []string
}

func (f *fakeAdapter) Name() string                  { return "fake" }
func (f *fakeAdapter) Available() error              { return nil }
func (f *fakeAdapter) KnownAgents() adapter.AgentSet { return adapter.NewAgentSet() }
func (f *fakeAdapter) ExecuteAgentStep(ctx context.Context, agentRef, prompt string) (string, error) {
	f.prompts = append(f.prompts, prompt)
	return f.reply, f.err
}

func vars(t *testing.T, values map[string]any) *execctx.Context {
	t.Helper()
	c, err := execctx.New(nil, values)
	require.NoError(t, err)
	return c
}

func bashStep(command string) recipe.Step {
	return recipe.Step{ID: "s", Kind: recipe.KindBash, Command: command}
}

func TestBashStepResolvesAndTrimsOutput(t *testing.T) {
	shell := &fakeShell{result: ShellResult{Stdout: "hello\n"}}
	e := New(nil, shell)

	out := e.Execute(context.Background(), bashStep("echo {{who}}"), vars(t, map[string]any{"who": "world"}))
	require.Equal(t, runlog.StepCompleted, out.Status)
	require.Equal(t, "echo world", out.Resolved)
	require.Equal(t, "hello", out.Value)
	require.Equal(t, []string{"echo world"}, shell.commands)
}

func TestBashStepFailures(t *testing.T) {
	shell := &fakeShell{result: ShellResult{Stderr: "no such file\n", ExitCode: 2}}
	out := New(nil, shell).Execute(context.Background(), bashStep("cat x"), vars(t, nil))
	require.Equal(t, runlog.StepFailed, out.Status)
	require.Equal(t, runlog.ErrExit, out.Err.Kind)
	require.Equal(t, 2, out.Err.ExitCode)
	require.Equal(t, "no such file", out.Err.Message)

	shell = &fakeShell{}
	out = New(nil, shell).Execute(context.Background(), bashStep("echo {{missing}}"), vars(t, nil))
	require.Equal(t, runlog.ErrTemplate, out.Err.Kind)
	require.Empty(t, shell.commands, "unresolved commands must not run")
}

func TestParseJSONOutput(t *testing.T) {
	step := bashStep("emit")
	step.Output = "review"
	step.ParseJSON = true

	out := New(nil, &fakeShell{result: ShellResult{Stdout: `{"summary":"ok","score":3}`}}).Execute(context.Background(), step, vars(t, nil))
	require.Equal(t, runlog.StepCompleted, out.Status)
	require.Equal(t, map[string]any{"summary": "ok", "score": float64(3)}, out.Value)

	out = New(nil, &fakeShell{result: ShellResult{Stdout: "not json"}}).Execute(context.Background(), step, vars(t, nil))
	require.Equal(t, runlog.StepFailed, out.Status)
	require.Equal(t, runlog.ErrParse, out.Err.Kind)
	require.Equal(t, "not json", out.Raw)
}

func TestAgentStepMapsAdapterErrors(t *testing.T) {
	step := recipe.Step{ID: "ask", Kind: recipe.KindAgent, Agent: "amplihack:x", Prompt: "do {{task}}"}
	ctx := context.Background()

	fake := &fakeAdapter{reply: " done \n"}
	out := New(fake, nil).Execute(ctx, step, vars(t, map[string]any{"task": "it"}))
	require.Equal(t, runlog.StepCompleted, out.Status)
	require.Equal(t, "done", out.Value)
	require.Equal(t, []string{"do it"}, fake.prompts)

	cases := map[error]runlog.ErrorKind{
		&adapter.AdapterError{Kind: adapter.ErrAgentNotFound, Backend: "fake"}:      runlog.ErrAgentNotFound,
		&adapter.AdapterError{Kind: adapter.ErrBackendUnavailable, Backend: "fake"}: runlog.ErrBackendUnavailable,
		&adapter.AdapterError{Kind: adapter.ErrTimeout, Backend: "fake"}:            runlog.ErrTimeout,
		errors.New("boom"): runlog.ErrBackendFailed,
	}
	for err, want := range cases {
		out := New(&fakeAdapter{err: err}, nil).Execute(ctx, step, vars(t, map[string]any{"task": "it"}))
		require.Equal(t, runlog.StepFailed, out.Status, err.Error())
		require.Equal(t, want, out.Err.Kind, err.Error())
	}

	out = New(nil, nil).Execute(ctx, step, vars(t, map[string]any{"task": "it"}))
	require.Equal(t, runlog.ErrBackendUnavailable, out.Err.Kind)
}

func TestUnknownKindFails(t *testing.T) {
	step := recipe.Step{ID: "odd", RawKind: "python"}
	out := New(nil, &fakeShell{}).Execute(context.Background(), step, vars(t, nil))
	require.Equal(t, runlog.StepFailed, out.Status)
	require.Equal(t, runlog.ErrUnknownKind, out.Err.Kind)
}

func TestCancelledContextAborts(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	shell := &fakeShell{}
	out := New(nil, shell).Execute(ctx, bashStep("echo"), vars(t, nil))
	require.Equal(t, runlog.StepAborted, out.Status)
	require.Equal(t, runlog.ErrInterrupted, out.Err.Kind)
	require.Empty(t, shell.commands)
}

func TestStepTimeoutOverridesDefault(t *testing.T) {
	e := New(nil, nil, WithTimeout(time.Minute))
	require.Equal(t, time.Minute, e.Timeout(bashStep("x")))
	step := bashStep("x")
	step.Timeout = 5 * time.Second
	require.Equal(t, 5*time.Second, e.Timeout(step))
}

func TestExecShell(t *testing.T) {
	if _, err := exec.LookPath("bash"); err != nil {
		t.Skip("bash not available")
	}
	ctx := context.Background()
	e := New(nil, ExecShell{})

	out := e.Execute(ctx, bashStep("printf 'a\\nb\\n'"), vars(t, nil))
	require.Equal(t, runlog.StepCompleted, out.Status)
	require.Equal(t, "a\nb", out.Raw)

	out = e.Execute(ctx, bashStep("echo bad >&2; exit 3"), vars(t, nil))
	require.Equal(t, runlog.StepFailed, out.Status)
	require.Equal(t, 3, out.Err.ExitCode)
	require.Equal(t, "bad", out.Err.Message)

	slow := bashStep("sleep 5")
	slow.Timeout = 100 * time.Millisecond
	start := time.Now()
	out = e.Execute(ctx, slow, vars(t, nil))
	require.Equal(t, runlog.StepFailed, out.Status)
	require.Equal(t, runlog.ErrTimeout, out.Err.Kind)
	require.Less(t, time.Since(start), 4*time.Second)
}

func TestExecShellInterruptedMidStepAborts(t *testing.T) {
	if _, err := exec.LookPath("bash"); err != nil {
		t.Skip("bash not available")
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	time.AfterFunc(100*time.Millisecond, cancel)

	// the shell signals its own process group, which must not include us
	start := time.Now()
	out := New(nil, ExecShell{}).Execute(ctx, bashStep("kill -INT 0 2>/dev/null; sleep 5"), vars(t, nil))
	require.Less(t, time.Since(start), 4*time.Second)
	require.NotEqual(t, runlog.StepCompleted, out.Status)

	out = New(nil, ExecShell{}).Execute(ctx, bashStep("sleep 5"), vars(t, nil))
	require.Equal(t, runlog.StepAborted, out.Status)
	require.Equal(t, runlog.ErrInterrupted, out.Err.Kind)
}

func TestPreviewAndDryRunOutput(t *testing.T) {
	step := recipe.Step{ID: "ask", Kind: recipe.KindAgent, Agent: "amplihack:x", Prompt: "do {{task}}"}
	resolved, err := Preview(step, vars(t, map[string]any{"task": "it"}))
	require.NoError(t, err)
	require.Equal(t, "do it", resolved)
	require.Equal(t, "[dry-run] agent amplihack:x: do it", DryRunOutput(step, resolved))
	require.Equal(t, "[dry-run] bash: ls", DryRunOutput(bashStep("ls"), "ls"))
}

package runner

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/kingrea/amplihack-recipes/internal/execctx"
	"github.com/kingrea/amplihack-recipes/internal/executor"
	"github.com/kingrea/amplihack-recipes/internal/logging"
	"github.com/kingrea/amplihack-recipes/internal/recipe"
	"github.com/kingrea/amplihack-recipes/internal/runlog"
)

// StepRunner executes one step. *executor.Executor satisfies it.
type StepRunner interface {
	Execute(ctx context.Context, step recipe.Step, vars *execctx.Context) executor.Outcome
}

// Preview is what an approver sees before a step runs.
type Preview struct {
	Index       int
	Total       int
	StepID      string
	Kind        recipe.StepKind
	Agent       string
	Description string
	// Resolved is the prompt or command after template resolution.
	Resolved string
}

// Approver decides whether a step may run in interactive mode. It may block
// indefinitely but must return when ctx is cancelled.
type Approver interface {
	Approve(ctx context.Context, p Preview) (bool, error)
}

// Observer is notified as steps start and finish.
type Observer interface {
	StepStarted(index, total int, step recipe.Step)
	StepFinished(index, total int, result runlog.StepResult)
}

// RunOptions controls one run.
type RunOptions struct {
	DryRun      bool
	Interactive bool
	ResumeFrom  string
	StopAt      string
	// Adapter is recorded in the log only.
	Adapter string
}

// OptionsError reports run options that cannot be honoured for the recipe.
type OptionsError struct {
	Field   string
	Message string
}

func (e *OptionsError) Error() string {
	return fmt.Sprintf("runner: %s: %s", e.Field, e.Message)
}

// RunError is returned when a run ends in any state other than completed.
type RunError struct {
	Status  runlog.RunStatus
	StepID  string
	Elapsed time.Duration
	Err     *runlog.StepError
}

func (e *RunError) Error() string {
	verb := "failed"
	if e.Status == runlog.RunAborted {
		verb = "aborted"
	}
	msg := fmt.Sprintf("run %s at step %q after %s", verb, e.StepID, e.Elapsed.Round(time.Millisecond))
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap exposes the step error.
func (e *RunError) Unwrap() error {
	if e.Err == nil {
		return nil
	}
	return e.Err
}

// AsRunError extracts a *RunError from err.
func AsRunError(err error) (*RunError, bool) {
	var rerr *RunError
	if errors.As(err, &rerr) {
		return rerr, true
	}
	return nil, false
}

// Option customizes the controller.
type Option func(*Controller)

// WithClock injects a deterministic clock (primarily for tests).
func WithClock(clock func() time.Time) Option {
	return func(c *Controller) {
		if clock != nil {
			c.clock = clock
		}
	}
}

// WithApprover sets the approver used by interactive runs.
func WithApprover(a Approver) Option {
	return func(c *Controller) {
		c.approver = a
	}
}

// WithLogger attaches a logger.
func WithLogger(l *logging.Logger) Option {
	return func(c *Controller) {
		c.logger = l
	}
}

// WithSink sets where the finished log is written.
func WithSink(s runlog.Sink) Option {
	return func(c *Controller) {
		c.sink = s
	}
}

// WithObserver registers a progress observer.
func WithObserver(o Observer) Option {
	return func(c *Controller) {
		c.observer = o
	}
}

// WithRunID overrides run id generation.
func WithRunID(fn func() string) Option {
	return func(c *Controller) {
		if fn != nil {
			c.runID = fn
		}
	}
}

// Controller sequences a recipe's steps. It holds no per-run state, so one
// controller may run many recipes, one at a time or concurrently.
type Controller struct {
	exec     StepRunner
	approver Approver
	logger   *logging.Logger
	sink     runlog.Sink
	observer Observer
	clock    func() time.Time
	runID    func() string
}

// New wires a controller to a step runner.
func New(exec StepRunner, opts ...Option) (*Controller, error) {
	if exec == nil {
		return nil, fmt.Errorf("runner: step runner is required")
	}
	c := &Controller{
		exec:  exec,
		clock: time.Now,
		runID: uuid.NewString,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Run executes rec with the supplied inputs. It returns the log (nil only if
// the run could not start) and a *RunError unless the run completed.
// Option and context errors are returned before any step runs.
func (c *Controller) Run(ctx context.Context, rec *recipe.Recipe, inputs map[string]any, opts RunOptions) (*runlog.Log, error) {
	if rec == nil || len(rec.Steps) == 0 {
		return nil, fmt.Errorf("runner: recipe has no steps")
	}
	resumeIdx, stopIdx, err := c.bounds(rec, opts)
	if err != nil {
		return nil, err
	}
	vars, err := execctx.New(rec.Context, inputs)
	if err != nil {
		return nil, err
	}

	r := &run{
		Controller: c,
		rec:        rec,
		vars:       vars,
		opts:       opts,
		resumeIdx:  resumeIdx,
		stopIdx:    stopIdx,
	}
	r.log = runlog.New(c.runID(), rec.Name, c.clock(), runlog.RunOptions{
		DryRun:      opts.DryRun,
		Interactive: opts.Interactive,
		ResumeFrom:  opts.ResumeFrom,
		StopAt:      opts.StopAt,
		Adapter:     opts.Adapter,
	})
	r.log.Source = rec.Source
	r.log.Status = runlog.RunRunning
	c.logger.Info("run %s: recipe %s started (%d steps, dry-run=%t)", r.log.RunID, rec.Name, len(rec.Steps), opts.DryRun)

	runErr := r.execute(ctx)
	c.finish(r, runErr)
	if runErr != nil {
		return r.log, runErr
	}
	return r.log, nil
}

func (c *Controller) bounds(rec *recipe.Recipe, opts RunOptions) (int, int, error) {
	resumeIdx, stopIdx := 0, len(rec.Steps)-1
	if opts.ResumeFrom != "" {
		resumeIdx = rec.StepIndex(opts.ResumeFrom)
		if resumeIdx < 0 {
			return 0, 0, &OptionsError{Field: "resume-from", Message: fmt.Sprintf("unknown step %q", opts.ResumeFrom)}
		}
	}
	if opts.StopAt != "" {
		stopIdx = rec.StepIndex(opts.StopAt)
		if stopIdx < 0 {
			return 0, 0, &OptionsError{Field: "stop-at", Message: fmt.Sprintf("unknown step %q", opts.StopAt)}
		}
	}
	if stopIdx < resumeIdx {
		return 0, 0, &OptionsError{Field: "stop-at", Message: fmt.Sprintf("step %q comes before resume point %q", opts.StopAt, opts.ResumeFrom)}
	}
	if opts.Interactive && c.approver == nil {
		return 0, 0, &OptionsError{Field: "interactive", Message: "no approver configured"}
	}
	return resumeIdx, stopIdx, nil
}

func (c *Controller) finish(r *run, runErr *RunError) {
	status := runlog.RunCompleted
	var err error
	if runErr != nil {
		status = runErr.Status
		err = runErr
	}
	r.log.Finish(status, c.clock(), r.vars.Snapshot(), err)
	if runErr != nil {
		runErr.Elapsed = r.log.Elapsed()
		r.log.Error = runErr.Error()
		c.logger.Error("run %s: %v", r.log.RunID, runErr)
	} else {
		c.logger.Info("run %s: completed in %s", r.log.RunID, r.log.Elapsed())
	}
	if c.sink != nil {
		if err := c.sink.Write(r.log); err != nil {
			c.logger.Warn("run %s: write execution log: %v", r.log.RunID, err)
		}
	}
}

package runner

import (
	"context"
	"time"

	"github.com/kingrea/amplihack-recipes/internal/execctx"
	"github.com/kingrea/amplihack-recipes/internal/executor"
	"github.com/kingrea/amplihack-recipes/internal/recipe"
	"github.com/kingrea/amplihack-recipes/internal/runlog"
)

// run carries the state of one Controller.Run call.
type run struct {
	*Controller
	rec       *recipe.Recipe
	vars      *execctx.Context
	opts      RunOptions
	log       *runlog.Log
	resumeIdx int
	stopIdx   int
}

// execute walks the steps in declaration order and returns a *RunError when
// the run does not complete.
func (r *run) execute(ctx context.Context) *RunError {
	total := len(r.rec.Steps)
	for i, step := range r.rec.Steps {
		switch {
		case i < r.resumeIdx:
			r.skip(i, step, runlog.SkipBeforeResume)
			continue
		case i > r.stopIdx:
			r.skip(i, step, runlog.SkipStopBoundary)
			continue
		}

		if r.observer != nil {
			r.observer.StepStarted(i, total, step)
		}
		result := r.step(ctx, i, step)
		r.record(i, result)

		switch result.Status {
		case runlog.StepFailed:
			for j := i + 1; j < total; j++ {
				r.skip(j, r.rec.Steps[j], runlog.SkipAfterFailure)
			}
			return &RunError{Status: runlog.RunFailed, StepID: step.ID, Err: result.Error}
		case runlog.StepAborted:
			return &RunError{Status: runlog.RunAborted, StepID: step.ID, Err: result.Error}
		}
	}
	return nil
}

// step produces the result for one step inside the resume/stop window.
func (r *run) step(ctx context.Context, i int, step recipe.Step) runlog.StepResult {
	start := r.clock()
	result := runlog.StepResult{StepID: step.ID, Kind: step.Kind, StartTime: start}
	done := func(status runlog.StepStatus, stepErr *runlog.StepError) runlog.StepResult {
		result.Status = status
		result.Error = stepErr
		result.Duration = runlog.Duration(r.clock().Sub(start))
		return result
	}

	if err := ctx.Err(); err != nil {
		return done(runlog.StepAborted, &runlog.StepError{Kind: runlog.ErrInterrupted, Message: err.Error()})
	}

	if step.Condition != "" {
		ok, err := r.condition(step.Condition)
		if err != nil {
			return done(runlog.StepFailed, &runlog.StepError{Kind: runlog.ErrCondition, Message: err.Error()})
		}
		if !ok {
			r.logger.Info("step %s: condition %q is false, skipping", step.ID, step.Condition)
			result.SkipReason = runlog.SkipCondition
			return done(runlog.StepSkipped, nil)
		}
	}

	if r.opts.Interactive || r.opts.DryRun {
		resolved, err := executor.Preview(step, r.vars)
		if err != nil {
			kind := runlog.ErrTemplate
			if !step.Kind.Valid() {
				kind = runlog.ErrUnknownKind
			}
			return done(runlog.StepFailed, &runlog.StepError{Kind: kind, Message: err.Error()})
		}
		result.Resolved = resolved

		if r.opts.Interactive {
			if stepErr := r.approve(ctx, i, step, resolved); stepErr != nil {
				return done(runlog.StepAborted, stepErr)
			}
		}
		if r.opts.DryRun {
			mock := executor.DryRunOutput(step, resolved)
			r.bind(step, execctx.MockValue(mock))
			result.OutputSummary = runlog.Summarize(mock)
			return done(runlog.StepCompleted, nil)
		}
	}

	r.logger.Debug("step %s: executing %s step", step.ID, step.Kind)
	out := r.exec.Execute(ctx, step, r.vars)
	if out.Resolved != "" {
		result.Resolved = out.Resolved
	}
	result.OutputSummary = runlog.Summarize(out.Raw)
	if out.Status == runlog.StepCompleted {
		r.bind(step, out.Value)
	}
	return done(out.Status, out.Err)
}

// condition evaluates a step condition. Dry runs only check that it is
// well formed and treat it as true.
func (r *run) condition(condition string) (bool, error) {
	if r.opts.DryRun {
		if err := r.vars.Check(condition); err != nil {
			return false, err
		}
		return true, nil
	}
	return r.vars.Evaluate(condition)
}

func (r *run) approve(ctx context.Context, i int, step recipe.Step, resolved string) *runlog.StepError {
	preview := Preview{
		Index:       i,
		Total:       len(r.rec.Steps),
		StepID:      step.ID,
		Kind:        step.Kind,
		Agent:       step.Agent,
		Description: step.Description,
		Resolved:    resolved,
	}
	ok, err := r.approver.Approve(ctx, preview)
	if err != nil {
		if ctx.Err() != nil {
			return &runlog.StepError{Kind: runlog.ErrInterrupted, Message: ctx.Err().Error()}
		}
		return &runlog.StepError{Kind: runlog.ErrRejected, Message: err.Error()}
	}
	if !ok {
		return &runlog.StepError{Kind: runlog.ErrRejected, Message: "step rejected by operator"}
	}
	return nil
}

func (r *run) bind(step recipe.Step, value any) {
	if step.Output == "" {
		return
	}
	r.vars.Bind(step.Output, value)
}

func (r *run) skip(i int, step recipe.Step, reason runlog.SkipReason) {
	r.record(i, runlog.StepResult{
		StepID:     step.ID,
		Kind:       step.Kind,
		Status:     runlog.StepSkipped,
		SkipReason: reason,
		StartTime:  r.clock(),
	})
}

func (r *run) record(i int, result runlog.StepResult) {
	r.log.Append(result)
	switch result.Status {
	case runlog.StepFailed, runlog.StepAborted:
		r.logger.Warn("step %s: %s (%s)", result.StepID, result.Status, result.Error.Error())
	case runlog.StepSkipped:
		r.logger.Debug("step %s: skipped (%s)", result.StepID, result.SkipReason)
	default:
		r.logger.Info("step %s: %s in %s", result.StepID, result.Status, result.Duration.Std().Round(time.Millisecond))
	}
	if r.observer != nil {
		r.observer.StepFinished(i, len(r.rec.Steps), result)
	}
}

package cli

import (
	"context"
	"errors"

	"github.com/kingrea/amplihack-recipes/internal/adapter"
	"github.com/kingrea/amplihack-recipes/internal/execctx"
	"github.com/kingrea/amplihack-recipes/internal/recipe"
	"github.com/kingrea/amplihack-recipes/internal/runlog"
	"github.com/kingrea/amplihack-recipes/internal/runner"
)

// Process exit codes.
const (
	ExitOK                 = 0
	ExitInvalid            = 1
	ExitMissingContext     = 2
	ExitStepFailed         = 3
	ExitAgentNotFound      = 4
	ExitBackendUnavailable = 5
	ExitAborted            = 130
)

// ExitError carries an exit code to main. A nil Err means the failure was
// already reported.
type ExitError struct {
	Code int
	Err  error
}

func (e *ExitError) Error() string {
	if e.Err == nil {
		return ""
	}
	return e.Err.Error()
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// ExitCode maps an error returned by a command to the process exit code.
func ExitCode(err error) int {
	if err == nil {
		return ExitOK
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	var ctxErr *execctx.ContextError
	if errors.As(err, &ctxErr) {
		return ExitMissingContext
	}
	if rerr, ok := runner.AsRunError(err); ok {
		if rerr.Status == runlog.RunAborted {
			return ExitAborted
		}
		if rerr.Err != nil {
			switch rerr.Err.Kind {
			case runlog.ErrAgentNotFound:
				return ExitAgentNotFound
			case runlog.ErrBackendUnavailable:
				return ExitBackendUnavailable
			}
		}
		return ExitStepFailed
	}
	if verr, ok := recipe.AsValidationError(err); ok {
		if verr.Report.OnlyErrors(recipe.CodeUnknownAgent) {
			return ExitAgentNotFound
		}
		return ExitInvalid
	}
	switch {
	case errors.Is(err, adapter.ErrBackendUnavailable):
		return ExitBackendUnavailable
	case errors.Is(err, adapter.ErrAgentNotFound):
		return ExitAgentNotFound
	case errors.Is(err, context.Canceled):
		return ExitAborted
	}
	return ExitInvalid
}

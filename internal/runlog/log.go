// Package runlog models the execution log a recipe run produces and persists
// it as JSON. A log only grows: results are appended whole and never edited.
package runlog

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/kingrea/amplihack-recipes/internal/execctx"
	"github.com/kingrea/amplihack-recipes/internal/recipe"
)

// RunStatus enumerates the phases of a run.
type RunStatus string

const (
	RunInitializing RunStatus = "initializing"
	RunRunning      RunStatus = "running"
	RunCompleted    RunStatus = "completed"
	RunFailed       RunStatus = "failed"
	RunAborted      RunStatus = "aborted"
)

// Terminal reports whether no further steps will run.
func (s RunStatus) Terminal() bool {
	switch s {
	case RunCompleted, RunFailed, RunAborted:
		return true
	}
	return false
}

// StepStatus is the terminal state of a single step.
type StepStatus string

const (
	StepCompleted StepStatus = "completed"
	StepFailed    StepStatus = "failed"
	StepSkipped   StepStatus = "skipped"
	StepAborted   StepStatus = "aborted"
)

// SkipReason explains why a step was skipped.
type SkipReason string

const (
	SkipCondition    SkipReason = "condition"
	SkipStopBoundary SkipReason = "stop_boundary"
	SkipBeforeResume SkipReason = "before_resume"
	SkipAfterFailure SkipReason = "after_failure"
)

// ErrorKind classifies a step failure.
type ErrorKind string

const (
	ErrTemplate           ErrorKind = "template"
	ErrCondition          ErrorKind = "condition"
	ErrTimeout            ErrorKind = "timeout"
	ErrExit               ErrorKind = "exit"
	ErrParse              ErrorKind = "parse"
	ErrAgentNotFound      ErrorKind = "agent_not_found"
	ErrBackendUnavailable ErrorKind = "backend_unavailable"
	ErrBackendFailed      ErrorKind = "backend_failed"
	ErrInterrupted        ErrorKind = "interrupted"
	ErrRejected           ErrorKind = "rejected"
	ErrUnknownKind        ErrorKind = "unknown_kind"
)

// StepError describes why a step failed or was aborted.
type StepError struct {
	Kind     ErrorKind `json:"kind"`
	Message  string    `json:"message"`
	ExitCode int       `json:"exit_code,omitempty"`
}

func (e *StepError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Duration marshals as a Go duration string ("1.25s").
type Duration time.Duration

// MarshalJSON implements json.Marshaler.
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

// UnmarshalJSON accepts a duration string or integer nanoseconds.
func (d *Duration) UnmarshalJSON(data []byte) error {
	var text string
	if err := json.Unmarshal(data, &text); err == nil {
		parsed, err := time.ParseDuration(text)
		if err != nil {
			return fmt.Errorf("runlog: invalid duration %q", text)
		}
		*d = Duration(parsed)
		return nil
	}
	var nanos int64
	if err := json.Unmarshal(data, &nanos); err != nil {
		return fmt.Errorf("runlog: invalid duration %s", string(data))
	}
	*d = Duration(nanos)
	return nil
}

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// StepResult is the log record for one step.
type StepResult struct {
	StepID        string          `json:"step_id"`
	Kind          recipe.StepKind `json:"kind"`
	Status        StepStatus      `json:"status"`
	SkipReason    SkipReason      `json:"skip_reason,omitempty"`
	StartTime     time.Time       `json:"start_time"`
	Duration      Duration        `json:"duration"`
	Resolved      string          `json:"resolved,omitempty"`
	OutputSummary string          `json:"output_summary,omitempty"`
	Error         *StepError      `json:"error,omitempty"`
}

// RunOptions records the options a run was started with.
type RunOptions struct {
	DryRun      bool   `json:"dry_run,omitempty"`
	Interactive bool   `json:"interactive,omitempty"`
	ResumeFrom  string `json:"resume_from,omitempty"`
	StopAt      string `json:"stop_at,omitempty"`
	Adapter     string `json:"adapter,omitempty"`
}

// Log is the full record of one run.
type Log struct {
	RunID      string           `json:"run_id"`
	Recipe     string           `json:"recipe"`
	Source     string           `json:"source,omitempty"`
	Status     RunStatus        `json:"status"`
	StartedAt  time.Time        `json:"started_at"`
	FinishedAt time.Time        `json:"finished_at,omitempty"`
	Options    RunOptions       `json:"options"`
	Results    []StepResult     `json:"results"`
	Context    execctx.Snapshot `json:"context"`
	Error      string           `json:"error,omitempty"`
}

// New starts an empty log in the initializing state.
func New(runID, recipeName string, startedAt time.Time, opts RunOptions) *Log {
	return &Log{
		RunID:     runID,
		Recipe:    recipeName,
		Status:    RunInitializing,
		StartedAt: startedAt,
		Options:   opts,
		Results:   []StepResult{},
	}
}

// Append adds a result. Results already recorded are never modified.
func (l *Log) Append(result StepResult) {
	l.Results = append(l.Results, result)
}

// Result returns the record for stepID.
func (l *Log) Result(stepID string) (StepResult, bool) {
	for _, r := range l.Results {
		if r.StepID == stepID {
			return r, true
		}
	}
	return StepResult{}, false
}

// Last returns the most recent result.
func (l *Log) Last() (StepResult, bool) {
	if len(l.Results) == 0 {
		return StepResult{}, false
	}
	return l.Results[len(l.Results)-1], true
}

// Failed returns the first failed or aborted result.
func (l *Log) Failed() (StepResult, bool) {
	for _, r := range l.Results {
		if r.Status == StepFailed || r.Status == StepAborted {
			return r, true
		}
	}
	return StepResult{}, false
}

// Counts tallies results by status.
func (l *Log) Counts() map[StepStatus]int {
	counts := map[StepStatus]int{}
	for _, r := range l.Results {
		counts[r.Status]++
	}
	return counts
}

// Elapsed is the wall time between start and finish.
func (l *Log) Elapsed() time.Duration {
	if l.FinishedAt.IsZero() {
		return 0
	}
	return l.FinishedAt.Sub(l.StartedAt)
}

// Finish moves the log into a terminal state.
func (l *Log) Finish(status RunStatus, at time.Time, snapshot execctx.Snapshot, err error) {
	l.Status = status
	l.FinishedAt = at
	l.Context = snapshot
	if err != nil {
		l.Error = err.Error()
	}
}

const summaryLimit = 200

// Summarize collapses output onto one line and keeps the first 200 runes.
func Summarize(output string) string {
	line := strings.Join(strings.Fields(output), " ")
	if utf8.RuneCountInString(line) <= summaryLimit {
		return line
	}
	runes := []rune(line)
	return string(runes[:summaryLimit]) + "..."
}

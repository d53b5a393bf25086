package render

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/kingrea/amplihack-recipes/internal/history"
	"github.com/kingrea/amplihack-recipes/internal/recipe"
	"github.com/kingrea/amplihack-recipes/internal/runlog"
)

const sample = `
name: review
description: Review a change
version: "1.0.0"
context:
  target:
    required: true
  depth: shallow
steps:
  - id: analyze
    agent: amplihack:reviewer
    prompt: Review {{target}}
    output: review
    parse_json: true
  - id: report
    command: echo {{review.summary}}
    condition: depth == "deep"
`

func sampleRecipe(t *testing.T) *recipe.Recipe {
	t.Helper()
	rec, err := recipe.Parse([]byte(sample))
	require.NoError(t, err)
	return rec
}

func TestParseFormat(t *testing.T) {
	f, err := ParseFormat("", FormatText, FormatJSON)
	require.NoError(t, err)
	require.Equal(t, FormatText, f)

	f, err = ParseFormat("JSON", FormatText, FormatJSON)
	require.NoError(t, err)
	require.Equal(t, FormatJSON, f)

	_, err = ParseFormat("yaml", FormatText, FormatJSON)
	require.ErrorContains(t, err, "expected one of text, json")
}

func TestRecipesText(t *testing.T) {
	entries := []recipe.Entry{
		{Name: "review", Source: "project", Path: "/p/review.yaml", Recipe: sampleRecipe(t), Overridden: []string{"embedded:review.yaml"}},
		{Name: "broken", Source: "user", Path: "/u/broken.yaml", Err: errors.New("bad yaml")},
	}
	var buf bytes.Buffer
	require.NoError(t, Recipes(&buf, FormatText, entries, true))
	out := buf.String()
	require.Contains(t, out, "review  Review a change")
	require.Contains(t, out, "project · 2 steps · /p/review.yaml")
	require.Contains(t, out, "overrides embedded:review.yaml")
	require.Contains(t, out, "error: bad yaml")
}

func TestRecipesJSONAndTable(t *testing.T) {
	entries := []recipe.Entry{{Name: "review", Source: "project", Path: "/p/review.yaml", Recipe: sampleRecipe(t)}}

	var buf bytes.Buffer
	require.NoError(t, Recipes(&buf, FormatJSON, entries, false))
	var rows []RecipeSummary
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rows))
	require.Equal(t, 2, rows[0].Steps)
	require.Equal(t, "1.0.0", rows[0].Version)

	buf.Reset()
	require.NoError(t, Recipes(&buf, FormatTable, entries, false))
	require.Contains(t, buf.String(), "NAME")
	require.Contains(t, buf.String(), "review")
}

func TestRecipeShow(t *testing.T) {
	rec := sampleRecipe(t)
	var buf bytes.Buffer
	require.NoError(t, Recipe(&buf, FormatText, rec, false))
	out := buf.String()
	require.Contains(t, out, "target (required)")
	require.Contains(t, out, "depth (default shallow)")
	require.Contains(t, out, "1. analyze [agent] amplihack:reviewer")
	require.Contains(t, out, "output: review (json)")
	require.Contains(t, out, `when: depth == "deep"`)

	buf.Reset()
	require.NoError(t, Recipe(&buf, FormatYAML, rec, true))
	var steps []map[string]any
	require.NoError(t, yaml.Unmarshal(buf.Bytes(), &steps))
	require.Len(t, steps, 2)
	require.Equal(t, "report", steps[1]["id"])
}

func TestReport(t *testing.T) {
	report := recipe.Report{
		Errors:   []recipe.Issue{{Code: recipe.CodeUnknownAgent, Message: `step 1 (analyze): unknown agent "amplihack:x"`}},
		Warnings: []recipe.Issue{{Code: recipe.CodeOptionalVariable, Message: "optional variable"}},
	}
	var buf bytes.Buffer
	require.NoError(t, Report(&buf, FormatText, "review", report))
	require.Contains(t, buf.String(), "review has 1 error(s)")
	require.Contains(t, buf.String(), "warning: optional variable")
}

func failedLog() *runlog.Log {
	start := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	l := runlog.New("run-9", "review", start, runlog.RunOptions{})
	l.Append(runlog.StepResult{StepID: "analyze", Status: runlog.StepCompleted, OutputSummary: "fine", Duration: runlog.Duration(20 * time.Millisecond)})
	l.Append(runlog.StepResult{StepID: "report", Status: runlog.StepFailed, Error: &runlog.StepError{Kind: runlog.ErrExit, Message: "boom", ExitCode: 2}})
	l.Finish(runlog.RunFailed, start.Add(2*time.Second), nil, nil)
	return l
}

func TestProgressAndSummary(t *testing.T) {
	var buf bytes.Buffer
	p := NewProgress(&buf)
	l := failedLog()
	p.StepStarted(0, 2, recipe.Step{ID: "analyze", Kind: recipe.KindAgent})
	for i, r := range l.Results {
		p.StepFinished(i, 2, r)
	}
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2, "start lines only appear on a terminal")
	require.Equal(t, "[1/2] ✓ analyze completed in 20ms: fine", lines[0])
	require.Equal(t, "[2/2] ✗ report failed: exit: boom", lines[1])

	buf.Reset()
	Summary(&buf, l, "/tmp/run-9.json")
	out := buf.String()
	require.Contains(t, out, "Recipe review failed in 2s")
	require.Contains(t, out, "steps: 1 completed, 1 failed")
	require.Contains(t, out, "failing step: report")
	require.Contains(t, out, "error: exit: boom")
	require.Contains(t, out, "log: /tmp/run-9.json")
}

func TestHistory(t *testing.T) {
	now := time.Date(2026, 5, 1, 12, 10, 0, 0, time.UTC)
	entry := history.EntryFromLog(failedLog(), "")
	entry.StartedAt = now.Add(-2 * time.Minute)
	entry.FinishedAt = entry.StartedAt.Add(2 * time.Second)

	var buf bytes.Buffer
	require.NoError(t, History(&buf, FormatText, []history.Entry{entry}, now))
	require.Contains(t, buf.String(), "2 minutes ago, 1/2 steps completed, took 2s")
	require.Contains(t, buf.String(), "at step report")

	buf.Reset()
	require.NoError(t, History(&buf, FormatText, nil, now))
	require.Equal(t, "No runs recorded yet.\n", buf.String())

	buf.Reset()
	require.NoError(t, History(&buf, FormatJSON, nil, now))
	require.Equal(t, "[]\n", buf.String())
}

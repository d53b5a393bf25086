package recipe

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/sahilm/fuzzy"
)

// IssueCode classifies a validation finding.
type IssueCode string

const (
	CodeMissingField       IssueCode = "missing_field"
	CodeInvalidKind        IssueCode = "invalid_kind"
	CodeInvalidOutput      IssueCode = "invalid_output"
	CodeDuplicateID        IssueCode = "duplicate_id"
	CodeUnknownAgent       IssueCode = "unknown_agent"
	CodeAgentsUnchecked    IssueCode = "agents_unchecked"
	CodeMalformedTemplate  IssueCode = "malformed_template"
	CodeInvalidCondition   IssueCode = "invalid_condition"
	CodeUndefinedVariable  IssueCode = "undefined_variable"
	CodeOptionalVariable   IssueCode = "optional_variable"
	CodeConditionalBinding IssueCode = "conditional_binding"
	CodeForwardReference   IssueCode = "forward_reference"
)

// Issue is a single validation error or warning.
type Issue struct {
	Code    IssueCode `json:"code"`
	StepID  string    `json:"step,omitempty"`
	Message string    `json:"message"`

	check int
	step  int
}

func (i Issue) String() string {
	return i.Message
}

// Report aggregates every finding from a validation pass.
type Report struct {
	Valid    bool    `json:"valid"`
	Errors   []Issue `json:"errors"`
	Warnings []Issue `json:"warnings"`
}

// Err returns a *ValidationError when the report is invalid.
func (r Report) Err() error {
	if r.Valid {
		return nil
	}
	return &ValidationError{Report: r}
}

// OnlyErrors reports whether every error carries the given code.
func (r Report) OnlyErrors(code IssueCode) bool {
	if len(r.Errors) == 0 {
		return false
	}
	for _, issue := range r.Errors {
		if issue.Code != code {
			return false
		}
	}
	return true
}

// ValidationError wraps an invalid report so it can travel as an error.
type ValidationError struct {
	Report Report
}

func (e *ValidationError) Error() string {
	msgs := make([]string, 0, len(e.Report.Errors))
	for _, issue := range e.Report.Errors {
		msgs = append(msgs, issue.Message)
	}
	return fmt.Sprintf("recipe validation failed with %d error(s): %s", len(msgs), strings.Join(msgs, "; "))
}

// AsValidationError extracts a *ValidationError from err.
func AsValidationError(err error) (*ValidationError, bool) {
	var verr *ValidationError
	if errors.As(err, &verr) {
		return verr, true
	}
	return nil, false
}

// AgentLookup exposes the set of agent references a backend can resolve.
type AgentLookup interface {
	Has(ref string) bool
	Refs() []string
}

// ValidateOptions tunes a validation pass.
type ValidateOptions struct {
	// Agents resolves agent references; nil skips the agent check.
	Agents AgentLookup
	// Strict promotes warnings to errors.
	Strict bool
}

const (
	checkStructure = iota + 1
	checkDuplicates
	checkAgents
	checkReferences
	checkOrdering
)

type validator struct {
	recipe   *Recipe
	opts     ValidateOptions
	errors   []Issue
	warnings []Issue
}

// Validate runs every structural and referential check against r and
// returns all findings at once. It has no side effects.
func Validate(r *Recipe, opts ValidateOptions) Report {
	if r == nil {
		return Report{Errors: []Issue{{Code: CodeMissingField, Message: "recipe is empty"}}}
	}
	v := &validator{recipe: r, opts: opts}
	v.checkStructure()
	v.checkDuplicates()
	v.checkAgents()
	v.checkReferences()
	return v.report()
}

func (v *validator) errorf(check, step int, code IssueCode, stepID, format string, args ...any) {
	v.errors = append(v.errors, Issue{Code: code, StepID: stepID, Message: fmt.Sprintf(format, args...), check: check, step: step})
}

func (v *validator) warnf(check, step int, code IssueCode, stepID, format string, args ...any) {
	v.warnings = append(v.warnings, Issue{Code: code, StepID: stepID, Message: fmt.Sprintf(format, args...), check: check, step: step})
}

func (v *validator) checkStructure() {
	r := v.recipe
	if strings.TrimSpace(r.Name) == "" {
		v.errorf(checkStructure, -1, CodeMissingField, "", "name is required")
	}
	if len(r.Steps) == 0 {
		v.errorf(checkStructure, -1, CodeMissingField, "", "steps: at least one step is required")
	}
	for _, cv := range r.Context {
		if !IsIdentifier(cv.Name) {
			v.errorf(checkStructure, -1, CodeMissingField, "", "context variable %q is not a valid identifier", cv.Name)
		}
		if cv.Required && cv.HasDefault {
			v.warnf(checkStructure, -1, CodeOptionalVariable, "", "context variable %q is required but also declares a default", cv.Name)
		}
	}
	for idx, step := range r.Steps {
		label := stepLabel(idx, step)
		if step.ID == "" {
			v.errorf(checkStructure, idx, CodeMissingField, "", "%s: id is required", label)
		}
		switch step.Kind {
		case KindAgent:
			if step.Agent == "" {
				v.errorf(checkStructure, idx, CodeMissingField, step.ID, "%s: agent is required for agent steps", label)
			}
			if strings.TrimSpace(step.Prompt) == "" {
				v.errorf(checkStructure, idx, CodeMissingField, step.ID, "%s: prompt is required for agent steps", label)
			}
		case KindBash:
			if strings.TrimSpace(step.Command) == "" {
				v.errorf(checkStructure, idx, CodeMissingField, step.ID, "%s: command is required for bash steps", label)
			}
		default:
			if step.RawKind == "" {
				v.errorf(checkStructure, idx, CodeInvalidKind, step.ID, "%s: type is required (agent or bash)", label)
			} else {
				v.errorf(checkStructure, idx, CodeInvalidKind, step.ID, "%s: unknown type %q (expected agent or bash)", label, step.RawKind)
			}
		}
		if step.Output != "" && !IsIdentifier(step.Output) {
			v.errorf(checkStructure, idx, CodeInvalidOutput, step.ID, "%s: output %q is not a valid identifier", label, step.Output)
		}
		if step.ParseJSON && step.Output == "" {
			v.warnf(checkStructure, idx, CodeInvalidOutput, step.ID, "%s: parse_json has no effect without output", label)
		}
	}
}

func (v *validator) checkDuplicates() {
	counts := map[string]int{}
	first := map[string]int{}
	var order []string
	for idx, step := range v.recipe.Steps {
		if step.ID == "" {
			continue
		}
		if _, seen := counts[step.ID]; !seen {
			order = append(order, step.ID)
			first[step.ID] = idx
		}
		counts[step.ID]++
	}
	for _, id := range order {
		if counts[id] > 1 {
			v.errorf(checkDuplicates, first[id], CodeDuplicateID, id, "duplicate step id %q appears %d times", id, counts[id])
		}
	}
}

func (v *validator) checkAgents() {
	agentSteps := 0
	for _, step := range v.recipe.Steps {
		if step.Kind == KindAgent && step.Agent != "" {
			agentSteps++
		}
	}
	if agentSteps == 0 {
		return
	}
	if v.opts.Agents == nil {
		v.warnf(checkAgents, -1, CodeAgentsUnchecked, "", "agent references were not checked: no agent catalog available")
		return
	}
	known := v.opts.Agents.Refs()
	for idx, step := range v.recipe.Steps {
		if step.Kind != KindAgent || step.Agent == "" {
			continue
		}
		if v.opts.Agents.Has(step.Agent) {
			continue
		}
		msg := fmt.Sprintf("step %q: agent %q not found", step.ID, step.Agent)
		if hints := suggest(step.Agent, known, 3); len(hints) > 0 {
			msg += fmt.Sprintf(" (did you mean %s?)", strings.Join(quoteAll(hints), ", "))
		}
		v.errorf(checkAgents, idx, CodeUnknownAgent, step.ID, "%s", msg)
	}
}

func (v *validator) checkReferences() {
	steps := v.recipe.Steps
	for idx, step := range steps {
		if step.Kind.Valid() {
			if _, err := Placeholders(step.Template()); err != nil {
				v.errorf(checkReferences, idx, CodeMalformedTemplate, step.ID, "step %q: %s template: %v", step.ID, templateLabel(step.Kind), err)
			}
		}
		if step.Condition != "" {
			if _, err := ConditionIdentifiers(step.Condition); err != nil {
				v.errorf(checkReferences, idx, CodeInvalidCondition, step.ID, "step %q: condition %q: %s", step.ID, step.Condition, firstLine(err.Error()))
			}
		}
		for _, name := range step.References() {
			v.checkReference(idx, step, name)
		}
	}
}

func (v *validator) checkReference(idx int, step Step, name string) {
	steps := v.recipe.Steps
	var earlier []Step
	for j := 0; j < idx; j++ {
		if steps[j].Output == name {
			earlier = append(earlier, steps[j])
		}
	}
	decl, declared := v.recipe.Context.Lookup(name)
	if len(earlier) > 0 {
		if declared {
			return
		}
		for _, producer := range earlier {
			if producer.Condition == "" {
				return
			}
		}
		v.warnf(checkReferences, idx, CodeConditionalBinding, step.ID, "step %q: variable %q is only bound by conditional step %q and may be unbound", step.ID, name, earlier[len(earlier)-1].ID)
		return
	}
	if declared {
		if !decl.Required && !decl.HasDefault {
			v.warnf(checkReferences, idx, CodeOptionalVariable, step.ID, "step %q: variable %q is optional with no default and may be unbound", step.ID, name)
		}
		return
	}
	for j := idx; j < len(steps); j++ {
		if steps[j].Output != name {
			continue
		}
		if j == idx {
			v.errorf(checkOrdering, idx, CodeForwardReference, step.ID, "step %q uses %q which it binds itself", step.ID, name)
		} else {
			v.errorf(checkOrdering, idx, CodeForwardReference, step.ID, "step %q uses %q which is bound later by step %q", step.ID, name, steps[j].ID)
		}
		return
	}
	v.errorf(checkReferences, idx, CodeUndefinedVariable, step.ID, "step %q: variable %q is never defined", step.ID, name)
}

func (v *validator) report() Report {
	errs := v.errors
	warnings := v.warnings
	if v.opts.Strict && len(warnings) > 0 {
		errs = append(errs, warnings...)
		warnings = nil
	}
	sortIssues(errs)
	sortIssues(warnings)
	return Report{
		Valid:    len(errs) == 0,
		Errors:   nonNil(errs),
		Warnings: nonNil(warnings),
	}
}

func sortIssues(issues []Issue) {
	sort.SliceStable(issues, func(i, j int) bool {
		a, b := issues[i], issues[j]
		if a.check != b.check {
			return a.check < b.check
		}
		if a.step != b.step {
			return a.step < b.step
		}
		return a.Message < b.Message
	})
}

func nonNil(issues []Issue) []Issue {
	if issues == nil {
		return []Issue{}
	}
	return issues
}

func stepLabel(idx int, step Step) string {
	if step.ID != "" {
		return fmt.Sprintf("step %q", step.ID)
	}
	return fmt.Sprintf("steps[%d]", idx)
}

func templateLabel(kind StepKind) string {
	if kind == KindAgent {
		return "prompt"
	}
	return "command"
}

func firstLine(s string) string {
	if idx := strings.IndexByte(s, '\n'); idx >= 0 {
		return s[:idx]
	}
	return s
}

func suggest(pattern string, candidates []string, limit int) []string {
	if len(candidates) == 0 {
		return nil
	}
	matches := fuzzy.Find(pattern, candidates)
	out := make([]string, 0, limit)
	for _, match := range matches {
		out = append(out, match.Str)
		if len(out) == limit {
			break
		}
	}
	return out
}

// Suggest returns up to limit fuzzy matches for pattern among candidates.
func Suggest(pattern string, candidates []string, limit int) []string {
	return suggest(pattern, candidates, limit)
}

func quoteAll(values []string) []string {
	out := make([]string, len(values))
	for i, v := range values {
		out[i] = fmt.Sprintf("%q", v)
	}
	return out
}

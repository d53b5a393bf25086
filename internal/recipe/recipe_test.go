package recipe

import (
	"encoding/json"
	"reflect"
	"strings"
	"testing"
	"time"
)

type agentSet map[string]struct{}

func newAgentSet(refs ...string) agentSet {
	set := agentSet{}
	for _, ref := range refs {
		set[ref] = struct{}{}
	}
	return set
}

func (s agentSet) Has(ref string) bool {
	_, ok := s[ref]
	return ok
}

func (s agentSet) Refs() []string {
	out := make([]string, 0, len(s))
	for ref := range s {
		out = append(out, ref)
	}
	return out
}

func mustParse(t *testing.T, payload string) *Recipe {
	t.Helper()
	r, err := Parse([]byte(payload))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	return r
}

func TestParseRejectsEmptyPayload(t *testing.T) {
	_, err := Parse([]byte("  \n"))
	if err == nil || !strings.Contains(err.Error(), "payload is empty") {
		t.Fatalf("expected empty payload error, got %v", err)
	}
}

func TestParsePreservesContextOrderAndForms(t *testing.T) {
	r := mustParse(t, `
name: ordered
context:
  zeta:
    required: true
    description: last letter
  alpha: first
  mid:
    default: 3
  bare:
steps:
  - id: one
    command: echo hi
`)
	if got := r.Context.Names(); !reflect.DeepEqual(got, []string{"zeta", "alpha", "mid", "bare"}) {
		t.Fatalf("context order = %v", got)
	}
	zeta, _ := r.Context.Lookup("zeta")
	if !zeta.Required || zeta.HasDefault || zeta.Description != "last letter" {
		t.Fatalf("unexpected zeta declaration: %+v", zeta)
	}
	alpha, _ := r.Context.Lookup("alpha")
	if alpha.Required || !alpha.HasDefault || alpha.Default != "first" {
		t.Fatalf("short form should become optional default, got %+v", alpha)
	}
	mid, _ := r.Context.Lookup("mid")
	if mid.Default != 3 {
		t.Fatalf("mid default = %#v, want 3", mid.Default)
	}
	bare, _ := r.Context.Lookup("bare")
	if bare.HasDefault || bare.Required {
		t.Fatalf("null declaration should be optional without default, got %+v", bare)
	}
}

func TestParseInfersKindAndTimeout(t *testing.T) {
	r := mustParse(t, `
name: kinds
steps:
  - id: ask
    agent: amplihack:architect
    prompt: design it
    timeout: 90
  - id: build
    command: make
    timeout: 2m
  - id: weird
    type: python
    command: print(1)
`)
	if r.Steps[0].Kind != KindAgent || r.Steps[0].Timeout != 90*time.Second {
		t.Fatalf("step ask = %+v", r.Steps[0])
	}
	if r.Steps[1].Kind != KindBash || r.Steps[1].Timeout != 2*time.Minute {
		t.Fatalf("step build = %+v", r.Steps[1])
	}
	if r.Steps[2].Kind != KindUnknown || r.Steps[2].RawKind != "python" {
		t.Fatalf("step weird = %+v", r.Steps[2])
	}
}

func TestValidateReportsDuplicateStepOnce(t *testing.T) {
	r := mustParse(t, `
name: dupes
steps:
  - id: test
    command: echo one
  - id: other
    command: echo two
  - id: test
    command: echo three
`)
	report := Validate(r, ValidateOptions{})
	if report.Valid {
		t.Fatalf("expected invalid report")
	}
	var dupes []Issue
	for _, issue := range report.Errors {
		if issue.Code == CodeDuplicateID {
			dupes = append(dupes, issue)
		}
	}
	if len(dupes) != 1 {
		t.Fatalf("expected exactly one duplicate error, got %+v", report.Errors)
	}
	if !strings.Contains(dupes[0].Message, `"test" appears 2 times`) {
		t.Fatalf("unexpected duplicate message: %q", dupes[0].Message)
	}
}

func TestValidateAccumulatesEveryFailure(t *testing.T) {
	r := mustParse(t, `
steps:
  - id: plan
    type: agent
    agent: amplihack:planer
    prompt: "plan {{task}} using {{design}}"
  - id: design
    type: agent
    agent: amplihack:architect
    prompt: draft
    output: design
  - id: broken
    type: bash
    command: "echo {{ not valid }}"
  - id: gated
    type: bash
    command: echo ok
    condition: "missing_flag =="
`)
	report := Validate(r, ValidateOptions{Agents: newAgentSet("amplihack:architect", "amplihack:planner")})
	codes := map[IssueCode]int{}
	for _, issue := range report.Errors {
		codes[issue.Code]++
	}
	want := []IssueCode{CodeMissingField, CodeUnknownAgent, CodeUndefinedVariable, CodeForwardReference, CodeMalformedTemplate, CodeInvalidCondition}
	for _, code := range want {
		if codes[code] == 0 {
			t.Fatalf("expected %s in errors, got %+v", code, report.Errors)
		}
	}
	for _, issue := range report.Errors {
		if issue.Code == CodeUnknownAgent && !strings.Contains(issue.Message, `did you mean "amplihack:planner"`) {
			t.Fatalf("expected suggestion in %q", issue.Message)
		}
		if issue.Code == CodeForwardReference && !strings.Contains(issue.Message, `bound later by step "design"`) {
			t.Fatalf("unexpected forward reference message %q", issue.Message)
		}
	}
}

func TestValidateIsDeterministic(t *testing.T) {
	payload := `
name: stable
steps:
  - id: b
    command: "echo {{y}} {{x}}"
  - id: a
    command: echo
  - id: a
    command: echo
`
	first := Validate(mustParse(t, payload), ValidateOptions{})
	for i := 0; i < 5; i++ {
		again := Validate(mustParse(t, payload), ValidateOptions{})
		if !reflect.DeepEqual(first, again) {
			t.Fatalf("report changed between runs:\n%+v\n%+v", first, again)
		}
	}
	if len(first.Errors) != 3 {
		t.Fatalf("expected 3 errors (two undefined + one duplicate), got %+v", first.Errors)
	}
}

func TestValidateOptionalVariableWarnsAndStrictPromotes(t *testing.T) {
	r := mustParse(t, `
name: optional
context:
  note:
    description: free text
steps:
  - id: say
    command: "echo {{note}}"
`)
	report := Validate(r, ValidateOptions{})
	if !report.Valid || len(report.Warnings) != 1 || report.Warnings[0].Code != CodeOptionalVariable {
		t.Fatalf("expected a single optional warning, got %+v", report)
	}
	strict := Validate(r, ValidateOptions{Strict: true})
	if strict.Valid || len(strict.Errors) != 1 || len(strict.Warnings) != 0 {
		t.Fatalf("strict mode should promote warnings, got %+v", strict)
	}
}

func TestValidateAcceptsScenarioRecipe(t *testing.T) {
	r := mustParse(t, `
name: scenario-a
steps:
  - id: step1
    type: agent
    agent: amplihack:builder
    prompt: produce a value
    output: x
  - id: step2
    type: bash
    command: "echo {{x}}"
  - id: step3
    type: bash
    command: echo done
    condition: x == "ok"
`)
	report := Validate(r, ValidateOptions{Agents: newAgentSet("amplihack:builder")})
	if !report.Valid {
		t.Fatalf("expected valid report, got %+v", report.Errors)
	}
	if got := r.Steps[2].References(); !reflect.DeepEqual(got, []string{"x"}) {
		t.Fatalf("condition references = %v", got)
	}
}

func TestValidateWarnsWhenAgentsUnchecked(t *testing.T) {
	r := mustParse(t, `
name: unchecked
steps:
  - id: ask
    agent: anything
    prompt: hi
`)
	report := Validate(r, ValidateOptions{})
	if !report.Valid || len(report.Warnings) != 1 || report.Warnings[0].Code != CodeAgentsUnchecked {
		t.Fatalf("expected agents_unchecked warning, got %+v", report)
	}
}

func TestReportOnlyErrors(t *testing.T) {
	r := mustParse(t, `
name: agents
steps:
  - id: ask
    agent: ghost
    prompt: hi
`)
	report := Validate(r, ValidateOptions{Agents: newAgentSet()})
	if !report.OnlyErrors(CodeUnknownAgent) {
		t.Fatalf("expected only unknown agent errors, got %+v", report.Errors)
	}
	if _, ok := AsValidationError(report.Err()); !ok {
		t.Fatalf("expected ValidationError")
	}
}

func TestStepJSONWritesTimeoutAsDuration(t *testing.T) {
	data, err := json.Marshal(Step{ID: "slow", Kind: KindBash, Command: "sleep 1", Timeout: time.Minute})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var got map[string]any
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got["timeout"] != "1m0s" || got["type"] != "bash" || got["id"] != "slow" {
		t.Fatalf("unexpected step JSON %s", data)
	}

	data, err = json.Marshal(Step{ID: "fast", Kind: KindBash, Command: "true"})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if strings.Contains(string(data), "timeout") {
		t.Fatalf("zero timeout should be omitted: %s", data)
	}
}

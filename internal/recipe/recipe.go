package recipe

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// StepKind enumerates the closed set of step variants a recipe may declare.
type StepKind string

const (
	KindUnknown StepKind = ""
	KindAgent   StepKind = "agent"
	KindBash    StepKind = "bash"
)

// Valid reports whether the kind is one the executor can dispatch.
func (k StepKind) Valid() bool {
	switch k {
	case KindAgent, KindBash:
		return true
	}
	return false
}

// Recipe is the in-memory form of a workflow definition. It is never mutated
// after the loader returns it, so a single value can back repeated runs.
type Recipe struct {
	Name        string      `json:"name" yaml:"name"`
	Description string      `json:"description,omitempty" yaml:"description,omitempty"`
	Version     string      `json:"version,omitempty" yaml:"version,omitempty"`
	Author      string      `json:"author,omitempty" yaml:"author,omitempty"`
	Context     ContextSpec `json:"context,omitempty" yaml:"context,omitempty"`
	Steps       []Step      `json:"steps" yaml:"steps"`

	// Source records where the recipe was loaded from (empty for in-memory payloads).
	Source string `json:"-" yaml:"-"`
}

// Clone returns a deep copy of the recipe.
func (r *Recipe) Clone() *Recipe {
	if r == nil {
		return nil
	}
	clone := &Recipe{
		Name:        r.Name,
		Description: r.Description,
		Version:     r.Version,
		Author:      r.Author,
		Context:     r.Context.Clone(),
		Source:      r.Source,
	}
	if len(r.Steps) > 0 {
		clone.Steps = make([]Step, len(r.Steps))
		for i, step := range r.Steps {
			clone.Steps[i] = step.Clone()
		}
	}
	return clone
}

// StepIDs returns step identifiers in declaration order.
func (r *Recipe) StepIDs() []string {
	ids := make([]string, 0, len(r.Steps))
	for _, step := range r.Steps {
		ids = append(ids, step.ID)
	}
	return ids
}

// StepIndex returns the position of the step with the given id, or -1.
func (r *Recipe) StepIndex(id string) int {
	for i, step := range r.Steps {
		if step.ID == id {
			return i
		}
	}
	return -1
}

// Agents returns the distinct agent references used by agent steps, sorted.
func (r *Recipe) Agents() []string {
	set := map[string]struct{}{}
	for _, step := range r.Steps {
		if step.Kind == KindAgent && step.Agent != "" {
			set[step.Agent] = struct{}{}
		}
	}
	out := make([]string, 0, len(set))
	for ref := range set {
		out = append(out, ref)
	}
	sort.Strings(out)
	return out
}

// ContextVar declares one variable a recipe expects in its execution context.
type ContextVar struct {
	Name        string `json:"name"`
	Required    bool   `json:"required,omitempty"`
	Default     any    `json:"default,omitempty"`
	HasDefault  bool   `json:"-"`
	Description string `json:"description,omitempty"`
}

// ContextSpec is the ordered list of declared context variables.
type ContextSpec []ContextVar

// Clone returns a copy of the spec.
func (spec ContextSpec) Clone() ContextSpec {
	if len(spec) == 0 {
		return nil
	}
	clone := make(ContextSpec, len(spec))
	copy(clone, spec)
	return clone
}

// Lookup returns the declaration for name.
func (spec ContextSpec) Lookup(name string) (ContextVar, bool) {
	for _, v := range spec {
		if v.Name == name {
			return v, true
		}
	}
	return ContextVar{}, false
}

// Names returns the declared variable names in declaration order.
func (spec ContextSpec) Names() []string {
	names := make([]string, 0, len(spec))
	for _, v := range spec {
		names = append(names, v.Name)
	}
	return names
}

type contextVarBody struct {
	Required    bool      `yaml:"required"`
	Default     yaml.Node `yaml:"default"`
	Description string    `yaml:"description"`
}

// UnmarshalYAML decodes the context mapping while preserving declaration
// order. A scalar or sequence value is shorthand for an optional variable
// with that default.
func (spec *ContextSpec) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode && node.Tag == "!!null" {
		*spec = nil
		return nil
	}
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("line %d: context must be a mapping", node.Line)
	}
	out := make(ContextSpec, 0, len(node.Content)/2)
	for i := 0; i+1 < len(node.Content); i += 2 {
		keyNode, valueNode := node.Content[i], node.Content[i+1]
		v := ContextVar{Name: strings.TrimSpace(keyNode.Value)}
		if valueNode.Kind == yaml.MappingNode && isContextVarBody(valueNode) {
			var body contextVarBody
			if err := valueNode.Decode(&body); err != nil {
				return fmt.Errorf("context %s: %w", v.Name, err)
			}
			v.Required = body.Required
			v.Description = strings.TrimSpace(body.Description)
			if body.Default.Kind != 0 && body.Default.Tag != "!!null" {
				var def any
				if err := body.Default.Decode(&def); err != nil {
					return fmt.Errorf("context %s default: %w", v.Name, err)
				}
				v.Default = def
				v.HasDefault = true
			}
		} else if !(valueNode.Kind == yaml.ScalarNode && valueNode.Tag == "!!null") {
			var def any
			if err := valueNode.Decode(&def); err != nil {
				return fmt.Errorf("context %s: %w", v.Name, err)
			}
			v.Default = def
			v.HasDefault = true
		}
		out = append(out, v)
	}
	*spec = out
	return nil
}

// MarshalYAML renders the spec back into the long mapping form.
func (spec ContextSpec) MarshalYAML() (any, error) {
	node := &yaml.Node{Kind: yaml.MappingNode}
	for _, v := range spec {
		body := map[string]any{}
		if v.Required {
			body["required"] = true
		}
		if v.HasDefault {
			body["default"] = v.Default
		}
		if v.Description != "" {
			body["description"] = v.Description
		}
		var value yaml.Node
		if err := value.Encode(body); err != nil {
			return nil, err
		}
		node.Content = append(node.Content, &yaml.Node{Kind: yaml.ScalarNode, Value: v.Name}, &value)
	}
	return node, nil
}

func isContextVarBody(node *yaml.Node) bool {
	for i := 0; i < len(node.Content); i += 2 {
		switch node.Content[i].Value {
		case "required", "default", "description":
		default:
			return false
		}
	}
	return len(node.Content) > 0
}

// Step is one unit of work within a recipe.
type Step struct {
	ID          string        `json:"id" yaml:"id"`
	Kind        StepKind      `json:"type" yaml:"type"`
	Description string        `json:"description,omitempty" yaml:"description,omitempty"`
	Agent       string        `json:"agent,omitempty" yaml:"agent,omitempty"`
	Prompt      string        `json:"prompt,omitempty" yaml:"prompt,omitempty"`
	Command     string        `json:"command,omitempty" yaml:"command,omitempty"`
	Output      string        `json:"output,omitempty" yaml:"output,omitempty"`
	ParseJSON   bool          `json:"parse_json,omitempty" yaml:"parse_json,omitempty"`
	Uses        []string      `json:"uses,omitempty" yaml:"uses,omitempty"`
	Condition   string        `json:"condition,omitempty" yaml:"condition,omitempty"`
	Timeout     time.Duration `json:"timeout,omitempty" yaml:"-"`

	// RawKind keeps the declared type string so validation can name it.
	RawKind string `json:"-" yaml:"-"`
}

type stepYAML struct {
	ID          string    `yaml:"id"`
	Type        string    `yaml:"type"`
	Description string    `yaml:"description"`
	Agent       string    `yaml:"agent"`
	Prompt      string    `yaml:"prompt"`
	Command     string    `yaml:"command"`
	Output      string    `yaml:"output"`
	ParseJSON   bool      `yaml:"parse_json"`
	Uses        []string  `yaml:"uses"`
	Condition   string    `yaml:"condition"`
	Timeout     yaml.Node `yaml:"timeout"`
}

// UnmarshalYAML decodes a step, inferring its kind when `type` is omitted.
func (s *Step) UnmarshalYAML(node *yaml.Node) error {
	var raw stepYAML
	if err := node.Decode(&raw); err != nil {
		return err
	}
	step := Step{
		ID:          strings.TrimSpace(raw.ID),
		Description: strings.TrimSpace(raw.Description),
		Agent:       strings.TrimSpace(raw.Agent),
		Prompt:      raw.Prompt,
		Command:     raw.Command,
		Output:      strings.TrimSpace(raw.Output),
		ParseJSON:   raw.ParseJSON,
		Condition:   strings.TrimSpace(raw.Condition),
		RawKind:     strings.TrimSpace(raw.Type),
	}
	for _, use := range raw.Uses {
		if trimmed := strings.TrimSpace(use); trimmed != "" {
			step.Uses = append(step.Uses, trimmed)
		}
	}
	step.Kind = parseKind(step.RawKind, step)
	if raw.Timeout.Kind != 0 && raw.Timeout.Tag != "!!null" {
		timeout, err := ParseTimeout(raw.Timeout.Value)
		if err != nil {
			return fmt.Errorf("line %d: step %s: %w", raw.Timeout.Line, step.ID, err)
		}
		step.Timeout = timeout
	}
	*s = step
	return nil
}

// MarshalYAML emits the step in the same shape it is read from.
func (s Step) MarshalYAML() (any, error) {
	out := map[string]any{"id": s.ID, "type": string(s.Kind)}
	set := func(key, value string) {
		if value != "" {
			out[key] = value
		}
	}
	set("description", s.Description)
	set("agent", s.Agent)
	set("prompt", s.Prompt)
	set("command", s.Command)
	set("output", s.Output)
	set("condition", s.Condition)
	if s.ParseJSON {
		out["parse_json"] = true
	}
	if len(s.Uses) > 0 {
		out["uses"] = s.Uses
	}
	if s.Timeout > 0 {
		out["timeout"] = s.Timeout.String()
	}
	return out, nil
}

func parseKind(declared string, step Step) StepKind {
	switch strings.ToLower(declared) {
	case "agent":
		return KindAgent
	case "bash", "shell":
		return KindBash
	case "":
		if step.Agent != "" || step.Prompt != "" {
			return KindAgent
		}
		if step.Command != "" {
			return KindBash
		}
	}
	return KindUnknown
}

// ParseTimeout accepts whole seconds ("90") or a Go duration ("5m").
func ParseTimeout(value string) (time.Duration, error) {
	value = strings.TrimSpace(value)
	if seconds, err := strconv.Atoi(value); err == nil {
		if seconds < 0 {
			return 0, fmt.Errorf("timeout must be >= 0")
		}
		return time.Duration(seconds) * time.Second, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid timeout %q", value)
	}
	if d < 0 {
		return 0, fmt.Errorf("timeout must be >= 0")
	}
	return d, nil
}

// MarshalJSON writes the timeout as a duration string ("1m0s"), the same
// form MarshalYAML uses.
func (s Step) MarshalJSON() ([]byte, error) {
	type plain Step
	out := struct {
		plain
		Timeout string `json:"timeout,omitempty"`
	}{plain: plain(s)}
	if s.Timeout > 0 {
		out.Timeout = s.Timeout.String()
	}
	return json.Marshal(out)
}

// Clone returns a deep copy of the step.
func (s Step) Clone() Step {
	clone := s
	if len(s.Uses) > 0 {
		clone.Uses = append([]string(nil), s.Uses...)
	}
	return clone
}

// Template returns the prompt for agent steps and the command for bash steps.
func (s Step) Template() string {
	switch s.Kind {
	case KindAgent:
		return s.Prompt
	case KindBash:
		return s.Command
	}
	return ""
}

// References returns every variable the step depends on: declared uses,
// template placeholders and condition identifiers. Malformed templates or
// conditions contribute nothing here; the validator reports them separately.
func (s Step) References() []string {
	set := map[string]struct{}{}
	for _, name := range s.Uses {
		set[name] = struct{}{}
	}
	if refs, err := Placeholders(s.Template()); err == nil {
		for _, ref := range refs {
			set[ref.Root()] = struct{}{}
		}
	}
	if s.Condition != "" {
		if refs, err := Placeholders(s.Condition); err == nil {
			for _, ref := range refs {
				set[ref.Root()] = struct{}{}
			}
		}
		if names, err := ConditionIdentifiers(s.Condition); err == nil {
			for _, name := range names {
				set[name] = struct{}{}
			}
		}
	}
	out := make([]string, 0, len(set))
	for name := range set {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

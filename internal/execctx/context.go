// Package execctx holds the mutable name/value bindings a recipe run threads
// between steps. Bindings keep insertion order so snapshots and logs are
// stable, and a binding is never removed once made.
package execctx

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/expr-lang/expr"

	"github.com/kingrea/amplihack-recipes/internal/recipe"
)

// ContextError reports required variables that were neither supplied nor
// defaulted.
type ContextError struct {
	Missing []string
}

func (e *ContextError) Error() string {
	return fmt.Sprintf("missing required context variable(s): %s", strings.Join(e.Missing, ", "))
}

// TemplateError reports a placeholder that cannot be resolved.
type TemplateError struct {
	Name   string
	Reason string
}

func (e *TemplateError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("template: variable %q is not bound", e.Name)
	}
	return fmt.Sprintf("template: %s: %s", e.Name, e.Reason)
}

// MockValue stands in for a step output during dry-run. Looking up a field on
// a mock yields another mock so dotted placeholders still resolve.
type MockValue string

// Field returns the mock reached by following name.
func (m MockValue) Field(name string) MockValue {
	return MockValue(string(m) + "." + name)
}

// Context is the ordered set of variable bindings for one run.
type Context struct {
	order  []string
	values map[string]any
}

// New seeds a context from the recipe's declared variables and the caller's
// inputs. Declared variables bind first in declaration order, then any extra
// inputs sorted by name. Every missing required variable is reported at once.
func New(spec recipe.ContextSpec, inputs map[string]any) (*Context, error) {
	c := &Context{values: map[string]any{}}
	declared := map[string]struct{}{}
	var missing []string
	for _, decl := range spec {
		declared[decl.Name] = struct{}{}
		if value, ok := inputs[decl.Name]; ok {
			c.Bind(decl.Name, value)
			continue
		}
		if decl.HasDefault {
			c.Bind(decl.Name, decl.Default)
			continue
		}
		if decl.Required {
			missing = append(missing, decl.Name)
		}
	}
	if len(missing) > 0 {
		return nil, &ContextError{Missing: missing}
	}
	extras := make([]string, 0, len(inputs))
	for name := range inputs {
		if _, ok := declared[name]; !ok {
			extras = append(extras, name)
		}
	}
	sort.Strings(extras)
	for _, name := range extras {
		c.Bind(name, inputs[name])
	}
	return c, nil
}

// Bind sets name to value. Rebinding keeps the original position.
func (c *Context) Bind(name string, value any) {
	if _, ok := c.values[name]; !ok {
		c.order = append(c.order, name)
	}
	c.values[name] = value
}

// Lookup returns the value bound to name.
func (c *Context) Lookup(name string) (any, bool) {
	value, ok := c.values[name]
	return value, ok
}

// Keys returns bound names in binding order.
func (c *Context) Keys() []string {
	return append([]string(nil), c.order...)
}

// Len reports how many variables are bound.
func (c *Context) Len() int {
	return len(c.order)
}

// Snapshot returns an ordered copy of the current bindings.
func (c *Context) Snapshot() Snapshot {
	out := make(Snapshot, 0, len(c.order))
	for _, name := range c.order {
		out = append(out, Binding{Name: name, Value: c.values[name]})
	}
	return out
}

// MarshalJSON encodes the bindings as an object in binding order.
func (c *Context) MarshalJSON() ([]byte, error) {
	return c.Snapshot().MarshalJSON()
}

// Resolve substitutes every placeholder in template. It fails rather than
// leave a placeholder unresolved.
func (c *Context) Resolve(template string) (string, error) {
	refs, err := recipe.Placeholders(template)
	if err != nil {
		return "", placeholderError(err)
	}
	if len(refs) == 0 {
		return template, nil
	}
	var b strings.Builder
	last := 0
	for _, ref := range refs {
		value, err := c.lookupPath(ref.Path)
		if err != nil {
			return "", err
		}
		b.WriteString(template[last:ref.Offset])
		b.WriteString(Format(value))
		last = ref.Offset + len(ref.Raw)
	}
	b.WriteString(template[last:])
	return b.String(), nil
}

func (c *Context) lookupPath(path []string) (any, error) {
	value, ok := c.values[path[0]]
	if !ok {
		return nil, &TemplateError{Name: path[0]}
	}
	for i, segment := range path[1:] {
		next, err := field(value, segment)
		if err != nil {
			return nil, &TemplateError{Name: strings.Join(path[:i+2], "."), Reason: err.Error()}
		}
		value = next
	}
	return value, nil
}

func field(value any, segment string) (any, error) {
	switch v := value.(type) {
	case MockValue:
		return v.Field(segment), nil
	case map[string]any:
		next, ok := v[segment]
		if !ok {
			return nil, fmt.Errorf("no field %q", segment)
		}
		return next, nil
	case map[string]string:
		next, ok := v[segment]
		if !ok {
			return nil, fmt.Errorf("no field %q", segment)
		}
		return next, nil
	case []any:
		idx, err := strconv.Atoi(segment)
		if err != nil || idx < 0 || idx >= len(v) {
			return nil, fmt.Errorf("index %q out of range (len %d)", segment, len(v))
		}
		return v[idx], nil
	}
	return nil, fmt.Errorf("cannot read %q from %T", segment, value)
}

// Format renders a bound value for substitution: strings verbatim, scalars
// via fmt, structured values as compact JSON.
func Format(value any) string {
	switch v := value.(type) {
	case string:
		return v
	case MockValue:
		return string(v)
	case nil:
		return ""
	case bool, int, int64, float64, float32, int32, uint, uint64, json.Number:
		return fmt.Sprint(v)
	}
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Sprint(value)
	}
	return string(data)
}

// Evaluate evaluates condition as a boolean expression over the current
// bindings. Placeholders are bound as expression variables, never spliced
// into the source. Unknown identifiers are errors.
func (c *Context) Evaluate(condition string) (bool, error) {
	source, params, err := recipe.RewriteCondition(condition)
	if err != nil {
		return false, placeholderError(err)
	}
	env := c.env()
	for _, param := range params {
		value, err := c.lookupPath(param.Placeholder.Path)
		if err != nil {
			return false, err
		}
		env[param.Name] = conditionValue(value, param.InString)
	}
	program, err := expr.Compile(source, expr.Env(env), expr.AsBool())
	if err != nil {
		return false, fmt.Errorf("condition %q: %w", condition, err)
	}
	out, err := expr.Run(program, env)
	if err != nil {
		return false, fmt.Errorf("condition %q: %w", condition, err)
	}
	result, ok := out.(bool)
	if !ok {
		return false, fmt.Errorf("condition %q: result is %T, not bool", condition, out)
	}
	return result, nil
}

// conditionValue is what a placeholder stands for inside a condition. Inside
// a string literal it is the substituted text. A bare placeholder keeps the
// bound value; string values that read as a number or boolean are converted
// so `{{count}} > 3` works with --context input.
func conditionValue(value any, inString bool) any {
	if inString {
		return Format(value)
	}
	text, ok := value.(string)
	if mock, isMock := value.(MockValue); isMock {
		text, ok = string(mock), true
	}
	if !ok {
		return value
	}
	if b, err := strconv.ParseBool(text); err == nil {
		return b
	}
	if n, err := strconv.ParseInt(text, 10, 64); err == nil {
		return int(n)
	}
	if f, err := strconv.ParseFloat(text, 64); err == nil {
		return f
	}
	return text
}

func placeholderError(err error) error {
	var malformed *recipe.MalformedPlaceholderError
	if errors.As(err, &malformed) {
		return &TemplateError{Name: malformed.Text, Reason: "malformed placeholder"}
	}
	return err
}

// Check verifies that condition resolves, parses and only reads bound
// variables, without evaluating it. Dry-run uses it because mock outputs
// carry no real values to compare.
func (c *Context) Check(condition string) error {
	if _, err := c.Resolve(condition); err != nil {
		return err
	}
	names, err := recipe.ConditionIdentifiers(condition)
	if err != nil {
		return fmt.Errorf("condition %q: %w", condition, err)
	}
	for _, name := range names {
		if _, ok := c.values[name]; !ok {
			return fmt.Errorf("condition %q: unknown name %s", condition, name)
		}
	}
	return nil
}

func (c *Context) env() map[string]any {
	env := make(map[string]any, len(c.values))
	for name, value := range c.values {
		if mock, ok := value.(MockValue); ok {
			env[name] = string(mock)
			continue
		}
		env[name] = value
	}
	return env
}

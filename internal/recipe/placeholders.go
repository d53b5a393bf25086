package recipe

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/expr-lang/expr/ast"
	"github.com/expr-lang/expr/parser"
)

var (
	identifierPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)
	pathPattern       = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z0-9_]+)*$`)
)

// IsIdentifier reports whether name is usable as a context variable name.
func IsIdentifier(name string) bool {
	return identifierPattern.MatchString(name)
}

// Placeholder is one `{{name}}` or `{{name.field}}` occurrence in a template.
type Placeholder struct {
	// Raw is the full placeholder text including braces.
	Raw string
	// Path holds the dotted segments; Path[0] is the variable name.
	Path []string
	// Offset is the byte offset of Raw within the template.
	Offset int
}

// Root returns the variable the placeholder reads.
func (p Placeholder) Root() string {
	if len(p.Path) == 0 {
		return ""
	}
	return p.Path[0]
}

// MalformedPlaceholderError reports template text that opens a placeholder
// but does not follow the `{{identifier}}` grammar.
type MalformedPlaceholderError struct {
	Text   string
	Offset int
}

func (e *MalformedPlaceholderError) Error() string {
	return fmt.Sprintf("malformed placeholder %q at offset %d", e.Text, e.Offset)
}

// Placeholders scans a template and returns every placeholder in order.
func Placeholders(template string) ([]Placeholder, error) {
	var out []Placeholder
	offset := 0
	for {
		start := strings.Index(template[offset:], "{{")
		if start < 0 {
			return out, nil
		}
		start += offset
		end := strings.Index(template[start+2:], "}}")
		if end < 0 {
			return out, &MalformedPlaceholderError{Text: truncate(template[start:], 24), Offset: start}
		}
		end += start + 2
		raw := template[start : end+2]
		inner := strings.TrimSpace(template[start+2 : end])
		if !pathPattern.MatchString(inner) {
			return out, &MalformedPlaceholderError{Text: raw, Offset: start}
		}
		out = append(out, Placeholder{Raw: raw, Path: strings.Split(inner, "."), Offset: start})
		offset = end + 2
	}
}

// PlaceholderNames returns the distinct root variable names in a template.
func PlaceholderNames(template string) ([]string, error) {
	refs, err := Placeholders(template)
	if err != nil {
		return nil, err
	}
	seen := map[string]struct{}{}
	var names []string
	for _, ref := range refs {
		if _, ok := seen[ref.Root()]; ok {
			continue
		}
		seen[ref.Root()] = struct{}{}
		names = append(names, ref.Root())
	}
	return names, nil
}

// ConditionIdentifiers parses a condition expression and returns the
// variable names it reads. Placeholder roots are reported by Placeholders
// instead.
func ConditionIdentifiers(condition string) ([]string, error) {
	source, _, err := RewriteCondition(condition)
	if err != nil {
		return nil, err
	}
	tree, err := parser.Parse(source)
	if err != nil {
		return nil, err
	}
	collector := &identifierCollector{names: map[string]struct{}{}, callees: map[string]struct{}{}}
	ast.Walk(&tree.Node, collector)
	var names []string
	for name := range collector.names {
		if _, isCall := collector.callees[name]; isCall {
			continue
		}
		if strings.HasPrefix(name, conditionParamPrefix) {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

type identifierCollector struct {
	names   map[string]struct{}
	callees map[string]struct{}
}

func (c *identifierCollector) Visit(node *ast.Node) {
	switch n := (*node).(type) {
	case *ast.IdentifierNode:
		c.names[n.Value] = struct{}{}
	case *ast.CallNode:
		if callee, ok := n.Callee.(*ast.IdentifierNode); ok {
			c.callees[callee.Value] = struct{}{}
		}
	}
}

const conditionParamPrefix = "__placeholder"

// ConditionParam is a placeholder lifted out of a condition into an
// expression variable.
type ConditionParam struct {
	// Name is the variable the placeholder became in the rewritten source.
	Name        string
	Placeholder Placeholder
	// InString is set when the placeholder sat inside a string literal; its
	// value must then be bound as text.
	InString bool
}

// RewriteCondition replaces every placeholder in condition with a generated
// variable so bound values never become expression source. A placeholder
// inside a string literal splits the literal into a concatenation, so
// `"v{{x}}" == "v1"` becomes `("v" + __placeholder0 + "") == "v1"`.
func RewriteCondition(condition string) (string, []ConditionParam, error) {
	refs, err := Placeholders(condition)
	if err != nil {
		return "", nil, err
	}
	if len(refs) == 0 {
		return condition, nil, nil
	}
	var out, literal strings.Builder
	var params []ConditionParam
	var quote byte
	literalHasParam := false
	next := 0
	for pos := 0; pos < len(condition); {
		if next < len(refs) && pos == refs[next].Offset {
			name := fmt.Sprintf("%s%d", conditionParamPrefix, next)
			if quote != 0 {
				fmt.Fprintf(&literal, "%c + %s + %c", quote, name, quote)
				literalHasParam = true
			} else {
				out.WriteString(name)
			}
			params = append(params, ConditionParam{Name: name, Placeholder: refs[next], InString: quote != 0})
			pos += len(refs[next].Raw)
			next++
			continue
		}
		ch := condition[pos]
		pos++
		switch {
		case quote == 0 && (ch == '"' || ch == '\'' || ch == '`'):
			quote = ch
			literal.Reset()
			literal.WriteByte(ch)
			literalHasParam = false
		case quote == 0:
			out.WriteByte(ch)
		default:
			literal.WriteByte(ch)
			escaped := ch == '\\' && quote != '`' && pos < len(condition)
			if escaped && (next >= len(refs) || pos != refs[next].Offset) {
				literal.WriteByte(condition[pos])
				pos++
				continue
			}
			if ch == quote {
				if literalHasParam {
					out.WriteString("(" + literal.String() + ")")
				} else {
					out.WriteString(literal.String())
				}
				quote = 0
			}
		}
	}
	if quote != 0 {
		out.WriteString(literal.String())
	}
	return out.String(), params, nil
}

func truncate(value string, limit int) string {
	if len(value) <= limit {
		return value
	}
	return value[:limit] + "..."
}

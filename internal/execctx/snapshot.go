package execctx

import (
	"bytes"
	"encoding/json"
	"fmt"

	"gopkg.in/yaml.v3"
)

// Binding is one name/value pair.
type Binding struct {
	Name  string
	Value any
}

// Snapshot is an ordered copy of a context's bindings. It encodes as a JSON
// or YAML object whose keys keep binding order.
type Snapshot []Binding

// Map returns the bindings as a plain map.
func (s Snapshot) Map() map[string]any {
	out := make(map[string]any, len(s))
	for _, b := range s {
		out[b.Name] = b.Value
	}
	return out
}

// Names returns binding names in order.
func (s Snapshot) Names() []string {
	out := make([]string, 0, len(s))
	for _, b := range s {
		out = append(out, b.Name)
	}
	return out
}

// MarshalJSON implements json.Marshaler.
func (s Snapshot) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, b := range s {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(b.Name)
		if err != nil {
			return nil, err
		}
		value, err := json.Marshal(b.Value)
		if err != nil {
			return nil, fmt.Errorf("execctx: encode %s: %w", b.Name, err)
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(value)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON decodes an object while keeping key order.
func (s *Snapshot) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		*s = nil
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("execctx: snapshot must be a JSON object")
	}
	var out Snapshot
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		name, ok := tok.(string)
		if !ok {
			return fmt.Errorf("execctx: unexpected key %v", tok)
		}
		var value any
		if err := dec.Decode(&value); err != nil {
			return fmt.Errorf("execctx: decode %s: %w", name, err)
		}
		out = append(out, Binding{Name: name, Value: value})
	}
	if _, err := dec.Token(); err != nil {
		return err
	}
	*s = out
	return nil
}

// MarshalYAML renders the snapshot as an ordered mapping.
func (s Snapshot) MarshalYAML() (any, error) {
	node := &yaml.Node{Kind: yaml.MappingNode}
	for _, b := range s {
		value := b.Value
		if mock, ok := value.(MockValue); ok {
			value = string(mock)
		}
		var valueNode yaml.Node
		if err := valueNode.Encode(value); err != nil {
			return nil, fmt.Errorf("execctx: encode %s: %w", b.Name, err)
		}
		node.Content = append(node.Content, &yaml.Node{Kind: yaml.ScalarNode, Value: b.Name}, &valueNode)
	}
	return node, nil
}

package cli

import (
	"bytes"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/kingrea/amplihack-recipes/internal/runlog"
)

// parseContextPairs turns repeated --context key=value flags into inputs.
// Values stay strings.
func parseContextPairs(pairs []string) (map[string]any, error) {
	out := map[string]any{}
	for _, pair := range pairs {
		parts := strings.SplitN(pair, "=", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("--context: expected key=value, got %q", pair)
		}
		key := strings.TrimSpace(parts[0])
		if key == "" {
			return nil, fmt.Errorf("--context: key is empty in %q", pair)
		}
		out[key] = parts[1]
	}
	return out, nil
}

// readContextFile loads inputs from a YAML or JSON mapping. A previous
// execution log is also accepted, in which case its final context is used so
// a failed run can be resumed.
func readContextFile(path string) (map[string]any, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("open context file %s: %w", path, err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%s is a directory, expected a file", path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read context file %s: %w", path, err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, fmt.Errorf("context file %s is empty", path)
	}
	if log, err := runlog.Decode(data); err == nil {
		return log.Context.Map(), nil
	}
	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse context file %s: %w", path, err)
	}
	if raw == nil {
		raw = map[string]any{}
	}
	return raw, nil
}

// buildInputs merges the context file (if any) with --context pairs; pairs
// win.
func buildInputs(contextFile string, pairs []string) (map[string]any, error) {
	inputs := map[string]any{}
	if path := strings.TrimSpace(contextFile); path != "" {
		fromFile, err := readContextFile(path)
		if err != nil {
			return nil, err
		}
		for key, value := range fromFile {
			inputs[key] = value
		}
	}
	overrides, err := parseContextPairs(pairs)
	if err != nil {
		return nil, err
	}
	for key, value := range overrides {
		inputs[key] = value
	}
	return inputs, nil
}

package adapter

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/sahilm/fuzzy"
)

// Factory constructs an adapter with the provided options.
type Factory func(Options) (Adapter, error)

// Registry maintains known adapter factories in registration order.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
	order     []string
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{factories: map[string]Factory{}}
}

// DefaultRegistry returns a registry with the built-in backends in
// auto-selection order: claude, copilot, cli.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.MustRegister("claude", NewClaude)
	r.MustRegister("copilot", NewCopilot)
	r.MustRegister("cli", NewCLI)
	return r
}

// Register installs a factory. Returns an error if the name already exists.
func (r *Registry) Register(name string, factory Factory) error {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return fmt.Errorf("adapter: name is required")
	}
	if factory == nil {
		return fmt.Errorf("adapter: factory is required for %s", name)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.factories[name]; exists {
		return fmt.Errorf("adapter: %s already registered", name)
	}
	r.factories[name] = factory
	r.order = append(r.order, name)
	return nil
}

// MustRegister panics if registration fails.
func (r *Registry) MustRegister(name string, factory Factory) {
	if err := r.Register(name, factory); err != nil {
		panic(err)
	}
}

// Resolve constructs the named adapter without probing availability.
func (r *Registry) Resolve(name string, opts Options) (Adapter, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	r.mu.RLock()
	factory, ok := r.factories[name]
	r.mu.RUnlock()
	if !ok {
		return nil, &AdapterError{
			Kind:    ErrBackendUnavailable,
			Backend: name,
			Err:     fmt.Errorf("unknown backend (available: %s)", strings.Join(r.Names(), ", ")),
		}
	}
	return factory(opts)
}

// Select returns the named adapter, or for "" and "auto" the first registered
// backend that reports itself available. The chosen backend must be
// available.
func (r *Registry) Select(name string, opts Options) (Adapter, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name != "" && name != "auto" {
		a, err := r.Resolve(name, opts)
		if err != nil {
			return nil, err
		}
		if err := a.Available(); err != nil {
			return nil, err
		}
		return a, nil
	}
	var reasons []error
	for _, candidate := range r.Names() {
		a, err := r.Resolve(candidate, opts)
		if err != nil {
			reasons = append(reasons, err)
			continue
		}
		if err := a.Available(); err != nil {
			reasons = append(reasons, err)
			continue
		}
		opts.Logger.Debug("adapter: auto-selected %s", candidate)
		return a, nil
	}
	return nil, &AdapterError{Kind: ErrBackendUnavailable, Backend: "auto", Err: errors.Join(reasons...)}
}

// Names returns registered backends in registration order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.order...)
}

func suggestRefs(ref string, known []string) string {
	matches := fuzzy.Find(ref, known)
	if len(matches) == 0 {
		return ""
	}
	var hints []string
	for _, m := range matches {
		hints = append(hints, fmt.Sprintf("%q", m.Str))
		if len(hints) == 3 {
			break
		}
	}
	return "did you mean " + strings.Join(hints, ", ") + "?"
}

// Package adapter abstracts the agent backends that execute agent steps.
//
// A backend resolves an agent reference against the agent catalog, composes
// the agent's instructions with the step prompt and returns the backend's
// text response. Backends hold no state between calls.
package adapter

import (
	"context"
	"errors"
	"fmt"
	"sort"
)

var (
	// ErrAgentNotFound marks an agent reference the catalog cannot resolve.
	ErrAgentNotFound = errors.New("agent not found")
	// ErrBackendUnavailable marks a backend that cannot be reached or started.
	ErrBackendUnavailable = errors.New("backend unavailable")
	// ErrBackendFailed marks a backend that ran but reported failure.
	ErrBackendFailed = errors.New("backend failed")
	// ErrTimeout marks a call that exceeded its deadline.
	ErrTimeout = errors.New("backend timed out")
)

// Adapter executes agent steps against one backend.
type Adapter interface {
	Name() string
	// Available returns nil when the backend can accept calls.
	Available() error
	KnownAgents() AgentSet
	ExecuteAgentStep(ctx context.Context, agentRef, prompt string) (string, error)
}

// AdapterError carries the failure class (one of the Err* sentinels) along
// with the underlying cause.
type AdapterError struct {
	Kind    error
	Backend string
	Agent   string
	Err     error
}

func (e *AdapterError) Error() string {
	msg := fmt.Sprintf("adapter %s", e.Backend)
	if e.Agent != "" {
		msg += fmt.Sprintf(": agent %q", e.Agent)
	}
	msg += ": " + e.Kind.Error()
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap exposes both the sentinel and the cause to errors.Is/As.
func (e *AdapterError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// Agent is one agent definition from the catalog.
type Agent struct {
	Ref         string
	Name        string
	Description string
	Path        string
	Body        string
}

// AgentSet is an immutable collection of agents keyed by reference.
type AgentSet struct {
	agents map[string]Agent
}

// NewAgentSet builds a set; later agents replace earlier ones with the same ref.
func NewAgentSet(agents ...Agent) AgentSet {
	set := AgentSet{agents: make(map[string]Agent, len(agents))}
	for _, agent := range agents {
		set.agents[agent.Ref] = agent
	}
	return set
}

// Has reports whether ref resolves.
func (s AgentSet) Has(ref string) bool {
	_, ok := s.agents[ref]
	return ok
}

// Lookup returns the agent for ref.
func (s AgentSet) Lookup(ref string) (Agent, bool) {
	agent, ok := s.agents[ref]
	return agent, ok
}

// Refs returns every reference, sorted.
func (s AgentSet) Refs() []string {
	refs := make([]string, 0, len(s.agents))
	for ref := range s.agents {
		refs = append(refs, ref)
	}
	sort.Strings(refs)
	return refs
}

// Agents returns every agent sorted by reference.
func (s AgentSet) Agents() []Agent {
	out := make([]Agent, 0, len(s.agents))
	for _, ref := range s.Refs() {
		out = append(out, s.agents[ref])
	}
	return out
}

// Len reports the number of agents.
func (s AgentSet) Len() int {
	return len(s.agents)
}

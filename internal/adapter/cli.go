package adapter

import (
	"fmt"
	"strings"
)

// DefaultAgentCommand is used by the cli backend when no command is set.
const DefaultAgentCommand = "amplihack agent"

// NewCLI returns a backend that pipes the composed prompt to an arbitrary
// command on stdin. The agent reference is exported as AMPLIHACK_AGENT.
func NewCLI(opts Options) (Adapter, error) {
	command := strings.TrimSpace(opts.AgentCommand)
	if command == "" {
		command = DefaultAgentCommand
	}
	fields := strings.Fields(command)
	if len(fields) == 0 {
		return nil, fmt.Errorf("adapter: cli command is empty")
	}
	return &commandBackend{
		name:   "cli",
		binary: fields[0],
		opts:   opts,
		compose: func(agent Agent, prompt string) Invocation {
			return Invocation{
				Name:  fields[0],
				Args:  append([]string(nil), fields[1:]...),
				Stdin: composePrompt(agent, prompt),
				Env:   []string{"AMPLIHACK_AGENT=" + agent.Ref},
			}
		},
	}, nil
}

package adapter

// NewClaude returns the Claude CLI backend. The agent body is passed as an
// appended system prompt and the step prompt as the print-mode argument.
func NewClaude(opts Options) (Adapter, error) {
	const binary = "claude"
	return &commandBackend{
		name:   "claude",
		binary: binary,
		opts:   opts,
		compose: func(agent Agent, prompt string) Invocation {
			args := []string{"-p", prompt, "--output-format", "text"}
			if agent.Body != "" {
				args = append(args, "--append-system-prompt", agent.Body)
			}
			return Invocation{Name: binary, Args: args}
		},
	}, nil
}

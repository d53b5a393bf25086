package adapter

// NewCopilot returns the GitHub Copilot CLI backend. Copilot has no separate
// system prompt, so the agent body is folded into the prompt.
func NewCopilot(opts Options) (Adapter, error) {
	const binary = "copilot"
	return &commandBackend{
		name:   "copilot",
		binary: binary,
		opts:   opts,
		compose: func(agent Agent, prompt string) Invocation {
			return Invocation{Name: binary, Args: []string{"-p", composePrompt(agent, prompt), "--allow-all-tools"}}
		},
	}, nil
}

package agent

import "strconv"

// BuildArgs deterministically maps a prompt and options onto the agent CLI
// argument vector. It is a pure function: no environment reads, no side
// effects, and every provided option appears verbatim in the output.
//
// The invocation shape is:
//
//	claude --print <prompt> --output-format stream-json [flags...] [extra...]
//
// WorkDir and Env are process attributes, not arguments; the client applies
// them on the exec.Cmd.
func BuildArgs(prompt string, opts Options) []string {
	args := []string{"--print", prompt, "--output-format", "stream-json"}

	if opts.SkipPermissions {
		args = append(args, "--dangerously-skip-permissions")
	}
	if opts.Model != "" {
		args = append(args, "--model", opts.Model)
	}
	if opts.MCPConfigPath != "" {
		args = append(args, "--mcp-config", opts.MCPConfigPath)
	}
	if opts.SystemPrompt != "" {
		args = append(args, "--system-prompt", opts.SystemPrompt)
	}
	if opts.AppendSystemPrompt != "" {
		args = append(args, "--append-system-prompt", opts.AppendSystemPrompt)
	}
	if opts.MaxTurns > 0 {
		args = append(args, "--max-turns", strconv.Itoa(opts.MaxTurns))
	}
	if len(opts.AllowedTools) > 0 {
		args = append(args, "--allowedTools")
		args = append(args, opts.AllowedTools...)
	}
	args = append(args, opts.ExtraArgs...)

	return args
}

package agentloop

import (
	"fmt"
	"strings"

	"github.com/martinemde/codingagent/unifiedllm"
)

// OpenAIProfile drives OpenAI chat models against the coding tool server.
type OpenAIProfile struct {
	BaseProfile
}

// NewOpenAIProfile creates a profile for model offering the tools in
// registry. An empty model selects unifiedllm.DefaultOpenAIModel and a nil
// registry starts empty.
func NewOpenAIProfile(model string, registry *ToolRegistry) *OpenAIProfile {
	if model == "" {
		model = unifiedllm.DefaultOpenAIModel
	}
	if registry == nil {
		registry = NewToolRegistry()
	}
	return &OpenAIProfile{
		BaseProfile: BaseProfile{
			providerID:                "openai",
			model:                     model,
			registry:                  registry,
			supportsParallelToolCalls: true,
			contextWindowSize:         128000,
		},
	}
}

// BuildSystemPrompt assembles the base instructions, environment and git
// context, the tool catalogue and any project instructions.
func (p *OpenAIProfile) BuildSystemPrompt(env Environment, projectDocs string) string {
	var sb strings.Builder

	sb.WriteString(openaiBasePrompt)
	sb.WriteString("\n\n")

	if env != nil {
		sb.WriteString(BuildEnvironmentContext(env, p.model))
		sb.WriteString("\n\n")
		if gitCtx := GetGitContext(env.Root()); gitCtx != "" {
			sb.WriteString(gitCtx)
			sb.WriteString("\n\n")
		}
	}

	defs := p.registry.Definitions()
	if len(defs) > 0 {
		sb.WriteString("# Available Tools\n\n")
		for _, def := range defs {
			fmt.Fprintf(&sb, "## %s\n%s\n\n", def.Name, strings.TrimSpace(def.Description))
		}
	}

	if projectDocs != "" {
		sb.WriteString("# Project Instructions\n\n")
		sb.WriteString(projectDocs)
		sb.WriteString("\n\n")
	}

	return strings.TrimRight(sb.String(), "\n")
}

const openaiBasePrompt = `You are an autonomous Python coding agent. You complete programming tasks by writing files, running Python code, managing packages and inspecting the results, iterating until the task is done.

# Core Principles

- Run code to verify it works before reporting success. Do not guess what a program prints.
- Keep changes minimal and focused on the task.
- Read a file before changing it, and list a directory before assuming what it contains.

# Tool Usage Guidelines

- Use execute_python_code to run Python snippets. Each call runs in a fresh interpreter with a 30 second limit, so state does not carry over between calls.
- Use create_file to write files that should persist, then run them by reading and executing their contents or by importing them from code.
- Use add_package before importing a third-party library, and remove_package to undo it.
- Use read_file and list_files to inspect the working directory.

# Error Handling

- A result starting with ❌ is a failure. Read the error or traceback, fix the cause and try again.
- A timeout means the code ran too long. Look for infinite loops or reduce the work.
- If a package or toolchain is missing, say so instead of retrying the same call.

# Final Answer

When the task is complete, reply without calling any tools. Summarize what you did and include the relevant program output.`

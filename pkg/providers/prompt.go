package providers

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/mattn/go-runewidth"

	"github.com/ormasoftchile/skillrun/pkg/conversation"
	"github.com/ormasoftchile/skillrun/pkg/llm"
	"github.com/ormasoftchile/skillrun/pkg/schema"
	"github.com/ormasoftchile/skillrun/pkg/state"
	"github.com/ormasoftchile/skillrun/pkg/tools"
)

const previewWidth = 500

// NoProviderMessage is the error of a prompt step run without an LLM
// provider.
const NoProviderMessage = "No LLM provider configured. Use --provider option or configure in ~/.config/skillrun/config.yml"

// Prompt runs prompt steps against an LLM provider, with the tool-calling
// loop when a registry is configured.
type Prompt struct {
	Provider     llm.Provider
	Tools        *tools.Registry
	Conversation conversation.Config
	Logger       *slog.Logger
}

var _ Capability = (*Prompt)(nil)

func (p *Prompt) Handles(step schema.Step) bool { return step.Type == schema.StepPrompt }

func (p *Prompt) logger() *slog.Logger {
	if p.Logger != nil {
		return p.Logger
	}
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// Execute implements Capability.
func (p *Prompt) Execute(ctx context.Context, step schema.Step, run *state.Context, skill *schema.Skill, dryRun bool) *state.StepResult {
	r, done := result(step)

	body, ok := skill.PromptBody(step.PromptRef)
	if !ok {
		r.Status = state.StatusFailed
		r.Error = "Prompt not found: " + step.PromptRef
		return done()
	}
	text := run.Interpolate(body)

	if dryRun {
		r.Status = state.StatusCompleted
		r.Output = fmt.Sprintf("[DRY RUN] Would execute prompt: %s\n\nPrompt preview:\n%s...",
			step.Name, runewidth.Truncate(text, previewWidth, ""))
		r.Metadata["prompt_ref"] = step.PromptRef
		r.Metadata["prompt_length"] = len([]rune(text))
		return done()
	}

	if p.Provider == nil {
		r.Status = state.StatusFailed
		r.Error = NoProviderMessage
		r.Metadata["prompt_ref"] = step.PromptRef
		r.Metadata["requires_llm"] = true
		return done()
	}

	var registry conversation.Tools
	if p.Tools != nil && p.Tools.Len() > 0 {
		registry = p.Tools
	}
	runner := conversation.NewRunner(p.Provider, registry, p.Conversation)
	runner.Logger = p.logger()
	r.Metadata["prompt_ref"] = step.PromptRef

	if registry != nil {
		final, st, err := runner.RunWithTools(ctx, text)
		if err != nil {
			r.Status = state.StatusFailed
			r.Error = "LLM execution failed: " + err.Error()
			return done()
		}
		r.Status = state.StatusCompleted
		r.Output = final
		r.Metadata["turns"] = st.Turns
		r.Metadata["tool_calls"] = st.ToolCalls
		r.Metadata["finish_reason"] = st.FinishReason
		return done()
	}

	resp, err := runner.Run(ctx, text)
	if err != nil {
		r.Status = state.StatusFailed
		r.Error = "LLM execution failed: " + err.Error()
		return done()
	}
	r.Status = state.StatusCompleted
	r.Output = resp.Content
	r.Metadata["finish_reason"] = resp.FinishReason
	r.Metadata["usage"] = resp.Usage.Map()
	return done()
}

// Instruction implements Capability.
func (p *Prompt) Instruction(step schema.Step, run *state.Context, skill *schema.Skill) *Instruction {
	body, _ := skill.PromptBody(step.PromptRef)
	return newInstruction(skill, step, "prompt", run.Interpolate(body))
}

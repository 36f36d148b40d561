// Package conversation drives bounded multi-turn exchanges between an LLM
// provider and a set of tools.
package conversation

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/ormasoftchile/skillrun/pkg/llm"
)

// Defaults.
const (
	DefaultMaxTurns            = 10
	DefaultMaxToolCallsPerTurn = 50

	// FinishMaxTurns is the finish reason recorded when the turn budget
	// runs out before the model stops calling tools.
	FinishMaxTurns = "max_turns_reached"
)

// Tools is what the loop needs from a tool registry.
type Tools interface {
	Schemas() []llm.ToolSchema
	Execute(ctx context.Context, name string, args map[string]any) string
}

// Config bounds a conversation.
type Config struct {
	MaxTurns            int
	MaxToolCallsPerTurn int
	SystemPrompt        string
	Model               string
	MaxTokens           int
	Temperature         float64
}

// DefaultConfig returns the default bounds.
func DefaultConfig() Config {
	return Config{
		MaxTurns:            DefaultMaxTurns,
		MaxToolCallsPerTurn: DefaultMaxToolCallsPerTurn,
		MaxTokens:           llm.DefaultMaxTokens,
		Temperature:         llm.DefaultTemperature,
	}
}

// State is the accumulated conversation.
type State struct {
	Messages     []llm.Message
	Turns        int
	ToolCalls    int
	Finished     bool
	FinishReason string
}

// Runner sends prompts to a provider, executing requested tools between
// turns.
type Runner struct {
	Provider llm.Provider
	Tools    Tools
	Config   Config
	Logger   *slog.Logger
}

// NewRunner returns a Runner. tools may be nil. Zero limits in cfg fall
// back to the defaults.
func NewRunner(provider llm.Provider, tools Tools, cfg Config) *Runner {
	if cfg.MaxTurns <= 0 {
		cfg.MaxTurns = DefaultMaxTurns
	}
	if cfg.MaxToolCallsPerTurn <= 0 {
		cfg.MaxToolCallsPerTurn = DefaultMaxToolCallsPerTurn
	}
	return &Runner{Provider: provider, Tools: tools, Config: cfg}
}

func (r *Runner) logger() *slog.Logger {
	if r.Logger != nil {
		return r.Logger
	}
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func (r *Runner) request(messages []llm.Message) llm.Request {
	req := llm.Request{
		Messages:    messages,
		Model:       r.Config.Model,
		MaxTokens:   r.Config.MaxTokens,
		Temperature: r.Config.Temperature,
		System:      r.Config.SystemPrompt,
	}
	if r.Tools != nil {
		req.Tools = r.Tools.Schemas()
	}
	return req
}

// Run sends prompt as a single user message and returns the response
// without executing any tool calls.
func (r *Runner) Run(ctx context.Context, prompt string) (*llm.Response, error) {
	return r.Provider.Complete(ctx, r.request([]llm.Message{llm.UserMessage(prompt)}))
}

// RunWithTools runs the tool-calling loop. Every tool call of a turn gets a
// tool-role reply before the next request. The returned text is the last
// non-empty assistant content. On a provider error the state so far is
// returned with the error.
func (r *Runner) RunWithTools(ctx context.Context, prompt string) (string, *State, error) {
	st := &State{Messages: []llm.Message{llm.UserMessage(prompt)}}
	final := ""

	for !st.Finished && st.Turns < r.Config.MaxTurns {
		st.Turns++

		resp, err := r.Provider.Complete(ctx, r.request(st.Messages))
		if err != nil {
			return final, st, fmt.Errorf("turn %d: %w", st.Turns, err)
		}

		st.Messages = append(st.Messages, llm.Message{
			Role:      llm.RoleAssistant,
			Content:   resp.Content,
			ToolCalls: resp.ToolCalls,
		})
		if resp.Content != "" {
			final = resp.Content
		}

		if len(resp.ToolCalls) == 0 || r.Tools == nil {
			st.Finished = true
			st.FinishReason = resp.FinishReason
			break
		}

		for i, call := range resp.ToolCalls {
			var result string
			if i < r.Config.MaxToolCallsPerTurn {
				r.logger().Debug("tool call", "turn", st.Turns, "tool", call.Name, "id", call.ID)
				result = r.Tools.Execute(ctx, call.Name, call.Arguments)
			} else {
				result = fmt.Sprintf("Error: tool call limit of %d per turn exceeded; '%s' was not executed", r.Config.MaxToolCallsPerTurn, call.Name)
			}
			st.Messages = append(st.Messages, llm.ToolResultMessage(call, result))
		}
		st.ToolCalls += len(resp.ToolCalls)
	}

	if !st.Finished {
		st.Finished = true
		st.FinishReason = FinishMaxTurns
	}
	return final, st, nil
}

package llm

import (
	"context"
	"fmt"

	"github.com/tidwall/gjson"
)

const (
	anthropicDefaultModel   = "claude-sonnet-4-20250514"
	anthropicDefaultBaseURL = "https://api.anthropic.com"
	anthropicVersion        = "2023-06-01"
)

// Anthropic talks to the messages API. The system text goes in the
// top-level system field and system-role history messages are dropped.
type Anthropic struct {
	backend
}

var _ Provider = (*Anthropic)(nil)

// NewAnthropic returns an Anthropic provider.
func NewAnthropic(opts Options) *Anthropic {
	return &Anthropic{backend: newBackend(AnthropicName, anthropicDefaultModel, opts)}
}

func (p *Anthropic) Name() string         { return AnthropicName }
func (p *Anthropic) DefaultModel() string { return p.cfg.Model }
func (p *Anthropic) IsAvailable() bool    { return p.cfg.APIKey != "" }

type anthropicRequest struct {
	Model     string             `json:"model"`
	Messages  []anthropicMessage `json:"messages"`
	MaxTokens int                `json:"max_tokens"`
	System    string             `json:"system,omitempty"`
	Tools     []anthropicTool    `json:"tools,omitempty"`
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

type anthropicBlock struct {
	Type      string         `json:"type"`
	Text      string         `json:"text,omitempty"`
	ID        string         `json:"id,omitempty"`
	Name      string         `json:"name,omitempty"`
	Input     map[string]any `json:"input,omitempty"`
	ToolUseID string         `json:"tool_use_id,omitempty"`
	Content   string         `json:"content,omitempty"`
}

type anthropicTool struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	InputSchema map[string]any `json:"input_schema"`
}

// Complete implements Provider.
func (p *Anthropic) Complete(ctx context.Context, req Request) (*Response, error) {
	body, err := p.post(ctx, p.baseURL(anthropicDefaultBaseURL)+"/v1/messages", map[string]string{
		"x-api-key":         p.cfg.APIKey,
		"anthropic-version": anthropicVersion,
	}, p.buildRequest(req))
	if err != nil {
		return nil, err
	}
	return parseAnthropicResponse(body)
}

func (p *Anthropic) buildRequest(req Request) anthropicRequest {
	out := anthropicRequest{
		Model:     req.model(p.cfg.Model),
		MaxTokens: req.maxTokens(),
		System:    req.System,
	}

	for _, m := range req.Messages {
		switch m.Role {
		case RoleSystem:
			continue
		case RoleTool:
			block := anthropicBlock{Type: "tool_result", ToolUseID: m.ToolCallID, Content: m.Content}
			// Results answering one assistant turn share a single user message.
			if n := len(out.Messages); n > 0 {
				if blocks, ok := out.Messages[n-1].Content.([]anthropicBlock); ok && out.Messages[n-1].Role == string(RoleUser) &&
					len(blocks) > 0 && blocks[0].Type == "tool_result" {
					out.Messages[n-1].Content = append(blocks, block)
					continue
				}
			}
			out.Messages = append(out.Messages, anthropicMessage{Role: string(RoleUser), Content: []anthropicBlock{block}})
		case RoleAssistant:
			if len(m.ToolCalls) == 0 {
				out.Messages = append(out.Messages, anthropicMessage{Role: string(RoleAssistant), Content: m.Content})
				continue
			}
			var blocks []anthropicBlock
			if m.Content != "" {
				blocks = append(blocks, anthropicBlock{Type: "text", Text: m.Content})
			}
			for _, tc := range m.ToolCalls {
				blocks = append(blocks, anthropicBlock{Type: "tool_use", ID: tc.ID, Name: tc.Name, Input: nonNilArgs(tc.Arguments)})
			}
			out.Messages = append(out.Messages, anthropicMessage{Role: string(RoleAssistant), Content: blocks})
		default:
			out.Messages = append(out.Messages, anthropicMessage{Role: string(m.Role), Content: m.Content})
		}
	}

	for _, t := range req.Tools {
		params := t.Parameters
		if params == nil {
			params = map[string]any{"type": "object", "properties": map[string]any{}}
		}
		out.Tools = append(out.Tools, anthropicTool{Name: t.Name, Description: t.Description, InputSchema: params})
	}
	return out
}

func parseAnthropicResponse(body []byte) (*Response, error) {
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("anthropic response decode: invalid JSON")
	}
	doc := gjson.ParseBytes(body)

	resp := &Response{
		FinishReason: doc.Get("stop_reason").String(),
		Usage: Usage{
			PromptTokens:     int(doc.Get("usage.input_tokens").Int()),
			CompletionTokens: int(doc.Get("usage.output_tokens").Int()),
		},
	}
	for _, block := range doc.Get("content").Array() {
		switch block.Get("type").String() {
		case "text":
			resp.Content += block.Get("text").String()
		case "tool_use":
			resp.ToolCalls = append(resp.ToolCalls, ToolCall{
				ID:        block.Get("id").String(),
				Name:      block.Get("name").String(),
				Arguments: objectValue(block.Get("input")),
			})
		}
	}
	return resp, nil
}

// objectValue converts a JSON object result to a map. Anything else yields
// an empty map.
func objectValue(r gjson.Result) map[string]any {
	if m, ok := r.Value().(map[string]any); ok {
		return m
	}
	return map[string]any{}
}

package llm

import (
	"context"
	"encoding/json"
	"fmt"
)

const (
	openAIDefaultModel   = "gpt-4o"
	openAIDefaultBaseURL = "https://api.openai.com/v1"
)

// OpenAI talks to the chat completions API. The system text is sent as a
// leading system-role message.
type OpenAI struct {
	backend
}

var _ Provider = (*OpenAI)(nil)

// NewOpenAI returns an OpenAI provider.
func NewOpenAI(opts Options) *OpenAI {
	return &OpenAI{backend: newBackend(OpenAIName, openAIDefaultModel, opts)}
}

func (p *OpenAI) Name() string         { return OpenAIName }
func (p *OpenAI) DefaultModel() string { return p.cfg.Model }
func (p *OpenAI) IsAvailable() bool    { return p.cfg.APIKey != "" }

type chatCompletionRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Tools       []chatTool    `json:"tools,omitempty"`
	MaxTokens   int           `json:"max_tokens"`
	Temperature float64       `json:"temperature"`
}

type chatCompletionResponse struct {
	Choices []chatChoice `json:"choices"`
	Usage   *struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
}

type chatChoice struct {
	Message      chatMessage `json:"message"`
	FinishReason string      `json:"finish_reason"`
}

type chatMessage struct {
	Role       string         `json:"role"`
	Content    string         `json:"content"`
	Name       string         `json:"name,omitempty"`
	ToolCallID string         `json:"tool_call_id,omitempty"`
	ToolCalls  []chatToolCall `json:"tool_calls,omitempty"`
}

type chatTool struct {
	Type     string           `json:"type"`
	Function chatToolFunction `json:"function"`
}

type chatToolCall struct {
	ID       string               `json:"id"`
	Type     string               `json:"type"`
	Function chatToolCallFunction `json:"function"`
}

type chatToolFunction struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Parameters  map[string]any `json:"parameters,omitempty"`
}

type chatToolCallFunction struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// Complete implements Provider.
func (p *OpenAI) Complete(ctx context.Context, req Request) (*Response, error) {
	payload, err := p.buildRequest(req)
	if err != nil {
		return nil, fmt.Errorf("openai request: %w", err)
	}

	body, err := p.post(ctx, p.baseURL(openAIDefaultBaseURL)+"/chat/completions",
		map[string]string{"Authorization": "Bearer " + p.cfg.APIKey}, payload)
	if err != nil {
		return nil, err
	}

	var parsed chatCompletionResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("openai response decode: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return nil, fmt.Errorf("openai response decode: no choices")
	}

	choice := parsed.Choices[0]
	resp := &Response{
		Content:      choice.Message.Content,
		FinishReason: choice.FinishReason,
	}
	for _, tc := range choice.Message.ToolCalls {
		args := map[string]any{}
		if tc.Function.Arguments != "" {
			if err := json.Unmarshal([]byte(tc.Function.Arguments), &args); err != nil {
				return nil, fmt.Errorf("openai response decode: tool call %q arguments: %w", tc.Function.Name, err)
			}
		}
		resp.ToolCalls = append(resp.ToolCalls, ToolCall{ID: tc.ID, Name: tc.Function.Name, Arguments: args})
	}
	if parsed.Usage != nil {
		resp.Usage = Usage{
			PromptTokens:     parsed.Usage.PromptTokens,
			CompletionTokens: parsed.Usage.CompletionTokens,
		}
	}
	return resp, nil
}

func (p *OpenAI) buildRequest(req Request) (chatCompletionRequest, error) {
	out := chatCompletionRequest{
		Model:       req.model(p.cfg.Model),
		MaxTokens:   req.maxTokens(),
		Temperature: req.Temperature,
	}

	if req.System != "" {
		out.Messages = append(out.Messages, chatMessage{Role: string(RoleSystem), Content: req.System})
	}
	for _, m := range req.Messages {
		msg := chatMessage{
			Role:       string(m.Role),
			Content:    m.Content,
			Name:       m.Name,
			ToolCallID: m.ToolCallID,
		}
		for _, tc := range m.ToolCalls {
			args, err := json.Marshal(nonNilArgs(tc.Arguments))
			if err != nil {
				return chatCompletionRequest{}, fmt.Errorf("encode tool call %q arguments: %w", tc.Name, err)
			}
			msg.ToolCalls = append(msg.ToolCalls, chatToolCall{
				ID:       tc.ID,
				Type:     "function",
				Function: chatToolCallFunction{Name: tc.Name, Arguments: string(args)},
			})
		}
		out.Messages = append(out.Messages, msg)
	}

	for _, t := range req.Tools {
		out.Tools = append(out.Tools, chatTool{
			Type: "function",
			Function: chatToolFunction{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  t.Parameters,
			},
		})
	}
	return out, nil
}

func nonNilArgs(args map[string]any) map[string]any {
	if args == nil {
		return map[string]any{}
	}
	return args
}

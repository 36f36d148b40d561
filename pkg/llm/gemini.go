package llm

import (
	"context"
	"fmt"

	"github.com/tidwall/gjson"
)

const (
	geminiDefaultModel   = "gemini-2.0-flash"
	geminiDefaultBaseURL = "https://generativelanguage.googleapis.com/v1beta"

	geminiSystemPrefix = "[System Instructions]: "
	geminiSystemAck    = "Understood. I will follow these instructions."
)

// Gemini talks to the generateContent API. It has no system role: the
// system text is sent as a user turn followed by a model acknowledgement.
type Gemini struct {
	backend
}

var _ Provider = (*Gemini)(nil)

// NewGemini returns a Gemini provider.
func NewGemini(opts Options) *Gemini {
	return &Gemini{backend: newBackend(GeminiName, geminiDefaultModel, opts)}
}

func (p *Gemini) Name() string         { return GeminiName }
func (p *Gemini) DefaultModel() string { return p.cfg.Model }
func (p *Gemini) IsAvailable() bool    { return p.cfg.APIKey != "" }

type geminiRequest struct {
	Contents         []geminiContent        `json:"contents"`
	Tools            []geminiTool           `json:"tools,omitempty"`
	GenerationConfig geminiGenerationConfig `json:"generationConfig"`
}

type geminiContent struct {
	Role  string       `json:"role"`
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text             *string                 `json:"text,omitempty"`
	FunctionCall     *geminiFunctionCall     `json:"functionCall,omitempty"`
	FunctionResponse *geminiFunctionResponse `json:"functionResponse,omitempty"`
}

type geminiFunctionCall struct {
	Name string         `json:"name"`
	Args map[string]any `json:"args"`
}

type geminiFunctionResponse struct {
	Name     string         `json:"name"`
	Response map[string]any `json:"response"`
}

type geminiTool struct {
	FunctionDeclarations []geminiFunctionDeclaration `json:"functionDeclarations"`
}

type geminiFunctionDeclaration struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters,omitempty"`
}

type geminiGenerationConfig struct {
	MaxOutputTokens int     `json:"maxOutputTokens"`
	Temperature     float64 `json:"temperature"`
}

func textPart(s string) geminiPart { return geminiPart{Text: &s} }

// Complete implements Provider.
func (p *Gemini) Complete(ctx context.Context, req Request) (*Response, error) {
	model := req.model(p.cfg.Model)
	url := fmt.Sprintf("%s/models/%s:generateContent", p.baseURL(geminiDefaultBaseURL), model)
	body, err := p.post(ctx, url, map[string]string{"x-goog-api-key": p.cfg.APIKey}, p.buildRequest(req))
	if err != nil {
		return nil, err
	}
	return parseGeminiResponse(body)
}

func geminiRole(r Role) string {
	switch r {
	case RoleUser, RoleSystem, RoleTool:
		return "user"
	}
	return "model"
}

func (p *Gemini) buildRequest(req Request) geminiRequest {
	out := geminiRequest{
		GenerationConfig: geminiGenerationConfig{
			MaxOutputTokens: req.maxTokens(),
			Temperature:     req.Temperature,
		},
	}

	if req.System != "" {
		out.Contents = append(out.Contents,
			geminiContent{Role: "user", Parts: []geminiPart{textPart(geminiSystemPrefix + req.System)}},
			geminiContent{Role: "model", Parts: []geminiPart{textPart(geminiSystemAck)}},
		)
	}

	for _, m := range req.Messages {
		role := geminiRole(m.Role)
		if m.Role == RoleTool {
			part := geminiPart{FunctionResponse: &geminiFunctionResponse{
				Name:     m.Name,
				Response: map[string]any{"content": m.Content},
			}}
			// Responses to one model turn share a single content entry.
			if n := len(out.Contents); n > 0 && out.Contents[n-1].Role == role && out.Contents[n-1].Parts[0].FunctionResponse != nil {
				out.Contents[n-1].Parts = append(out.Contents[n-1].Parts, part)
				continue
			}
			out.Contents = append(out.Contents, geminiContent{Role: role, Parts: []geminiPart{part}})
			continue
		}

		var parts []geminiPart
		if m.Content != "" || len(m.ToolCalls) == 0 {
			parts = append(parts, textPart(m.Content))
		}
		for _, tc := range m.ToolCalls {
			parts = append(parts, geminiPart{FunctionCall: &geminiFunctionCall{Name: tc.Name, Args: nonNilArgs(tc.Arguments)}})
		}
		out.Contents = append(out.Contents, geminiContent{Role: role, Parts: parts})
	}

	if len(req.Tools) > 0 {
		decls := make([]geminiFunctionDeclaration, 0, len(req.Tools))
		for _, t := range req.Tools {
			decls = append(decls, geminiFunctionDeclaration{Name: t.Name, Description: t.Description, Parameters: t.Parameters})
		}
		out.Tools = []geminiTool{{FunctionDeclarations: decls}}
	}
	return out
}

func parseGeminiResponse(body []byte) (*Response, error) {
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("gemini response decode: invalid JSON")
	}
	doc := gjson.ParseBytes(body)

	resp := &Response{
		Usage: Usage{
			PromptTokens:     int(doc.Get("usageMetadata.promptTokenCount").Int()),
			CompletionTokens: int(doc.Get("usageMetadata.candidatesTokenCount").Int()),
		},
	}
	candidate := doc.Get("candidates.0")
	if !candidate.Exists() {
		return resp, nil
	}
	resp.FinishReason = candidate.Get("finishReason").String()
	for _, part := range candidate.Get("content.parts").Array() {
		if text := part.Get("text"); text.Exists() {
			resp.Content += text.String()
			continue
		}
		if fc := part.Get("functionCall"); fc.Exists() {
			resp.ToolCalls = append(resp.ToolCalls, ToolCall{
				ID:        fmt.Sprintf("call_%d", len(resp.ToolCalls)),
				Name:      fc.Get("name").String(),
				Arguments: objectValue(fc.Get("args")),
			})
		}
	}
	return resp, nil
}

// Package llmtest provides a scripted llm.Provider for tests.
package llmtest

import (
	"context"
	"errors"
	"sync"

	"github.com/ormasoftchile/skillrun/pkg/llm"
)

// ErrExhausted is returned once every scripted response has been consumed.
var ErrExhausted = errors.New("llmtest: no scripted response left")

// Scripted replays a fixed sequence of responses and records every request.
// When Repeat is set, the last response is returned forever.
type Scripted struct {
	Responses []*llm.Response
	Err       error
	Repeat    bool
	Model     string

	mu       sync.Mutex
	requests []llm.Request
	next     int
}

var _ llm.Provider = (*Scripted)(nil)

// New returns a Scripted provider replaying responses.
func New(responses ...*llm.Response) *Scripted {
	return &Scripted{Responses: responses}
}

func (s *Scripted) Name() string { return "scripted" }

func (s *Scripted) DefaultModel() string {
	if s.Model == "" {
		return "scripted-model"
	}
	return s.Model
}

func (s *Scripted) IsAvailable() bool { return true }

// Complete implements llm.Provider. Messages are copied so later mutation
// of the caller's history does not alter the recorded request.
func (s *Scripted) Complete(_ context.Context, req llm.Request) (*llm.Response, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	req.Messages = append([]llm.Message(nil), req.Messages...)
	s.requests = append(s.requests, req)

	if s.Err != nil {
		return nil, s.Err
	}
	if s.next >= len(s.Responses) {
		if s.Repeat && len(s.Responses) > 0 {
			return s.Responses[len(s.Responses)-1], nil
		}
		return nil, ErrExhausted
	}
	resp := s.Responses[s.next]
	s.next++
	return resp, nil
}

// Requests returns the requests received so far.
func (s *Scripted) Requests() []llm.Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]llm.Request(nil), s.requests...)
}

// Text returns a final response carrying only text.
func Text(content string) *llm.Response {
	return &llm.Response{Content: content, FinishReason: "stop"}
}

// Calls returns a response requesting the given tool calls.
func Calls(content string, calls ...llm.ToolCall) *llm.Response {
	return &llm.Response{Content: content, ToolCalls: calls, FinishReason: "tool_calls"}
}

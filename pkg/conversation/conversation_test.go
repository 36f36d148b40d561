package conversation

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ormasoftchile/skillrun/pkg/llm"
	"github.com/ormasoftchile/skillrun/pkg/llm/llmtest"
)

// fakeTools records calls and answers with "<name>:<n>".
type fakeTools struct {
	calls []string
}

func (f *fakeTools) Schemas() []llm.ToolSchema {
	return []llm.ToolSchema{{Name: "lookup", Description: "Look something up"}}
}

func (f *fakeTools) Execute(_ context.Context, name string, _ map[string]any) string {
	f.calls = append(f.calls, name)
	return fmt.Sprintf("%s:%d", name, len(f.calls))
}

func call(id, name string) llm.ToolCall {
	return llm.ToolCall{ID: id, Name: name, Arguments: map[string]any{}}
}

func TestRunSingleCompletion(t *testing.T) {
	p := llmtest.New(llmtest.Text("done"))
	r := NewRunner(p, &fakeTools{}, Config{SystemPrompt: "sys", Model: "m1"})

	resp, err := r.Run(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, "done", resp.Content)

	reqs := p.Requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, []llm.Message{llm.UserMessage("hello")}, reqs[0].Messages)
	assert.Equal(t, "sys", reqs[0].System)
	assert.Equal(t, "m1", reqs[0].Model)
	assert.Len(t, reqs[0].Tools, 1)
}

func TestRunWithToolsAnswersEveryCall(t *testing.T) {
	p := llmtest.New(
		llmtest.Calls("checking", call("c1", "lookup"), call("c2", "lookup")),
		llmtest.Calls("", call("c3", "lookup")),
		llmtest.Text("all good"),
	)
	tools := &fakeTools{}
	text, st, err := NewRunner(p, tools, DefaultConfig()).RunWithTools(context.Background(), "go")
	require.NoError(t, err)

	assert.Equal(t, "all good", text)
	assert.Equal(t, 3, st.Turns)
	assert.Equal(t, 3, st.ToolCalls)
	assert.True(t, st.Finished)
	assert.Equal(t, "stop", st.FinishReason)
	assert.Len(t, tools.calls, 3)

	// user, assistant(2 calls), tool, tool, assistant(1 call), tool, assistant
	require.Len(t, st.Messages, 7)
	assert.Equal(t, llm.RoleTool, st.Messages[2].Role)
	assert.Equal(t, "c1", st.Messages[2].ToolCallID)
	assert.Equal(t, "lookup", st.Messages[2].Name)
	assert.Equal(t, "lookup:1", st.Messages[2].Content)
	assert.Equal(t, "c2", st.Messages[3].ToolCallID)

	// Each request after a tool turn ends with the tool replies.
	reqs := p.Requests()
	require.Len(t, reqs, 3)
	assert.Len(t, reqs[1].Messages, 4)
	assert.Equal(t, "c2", reqs[1].Messages[3].ToolCallID)
}

func TestRunWithToolsKeepsLastNonEmptyContent(t *testing.T) {
	p := llmtest.New(
		llmtest.Calls("interim answer", call("c1", "lookup")),
		&llm.Response{FinishReason: "end_turn"},
	)
	text, st, err := NewRunner(p, &fakeTools{}, DefaultConfig()).RunWithTools(context.Background(), "go")
	require.NoError(t, err)
	assert.Equal(t, "interim answer", text)
	assert.Equal(t, "end_turn", st.FinishReason)
}

func TestRunWithToolsStopsAtMaxTurns(t *testing.T) {
	p := llmtest.New(llmtest.Calls("again", call("c", "lookup")))
	p.Repeat = true
	tools := &fakeTools{}

	text, st, err := NewRunner(p, tools, Config{MaxTurns: 3}).RunWithTools(context.Background(), "loop")
	require.NoError(t, err)
	assert.Equal(t, "again", text)
	assert.Equal(t, 3, st.Turns)
	assert.Equal(t, 3, st.ToolCalls)
	assert.True(t, st.Finished)
	assert.Equal(t, FinishMaxTurns, st.FinishReason)
	assert.Len(t, p.Requests(), 3)
	assert.Equal(t, llm.RoleTool, st.Messages[len(st.Messages)-1].Role, "last turn's calls are answered")
}

func TestRunWithToolsFinishingOnLastTurnKeepsReason(t *testing.T) {
	p := llmtest.New(llmtest.Calls("", call("c", "lookup")), llmtest.Text("ok"))
	_, st, err := NewRunner(p, &fakeTools{}, Config{MaxTurns: 2}).RunWithTools(context.Background(), "x")
	require.NoError(t, err)
	assert.Equal(t, "stop", st.FinishReason)
}

func TestRunWithToolsCapsCallsPerTurn(t *testing.T) {
	p := llmtest.New(
		llmtest.Calls("", call("a", "lookup"), call("b", "lookup"), call("c", "lookup")),
		llmtest.Text("fine"),
	)
	tools := &fakeTools{}
	_, st, err := NewRunner(p, tools, Config{MaxToolCallsPerTurn: 2}).RunWithTools(context.Background(), "x")
	require.NoError(t, err)

	assert.Len(t, tools.calls, 2)
	assert.Equal(t, 3, st.ToolCalls)
	assert.Equal(t, "c", st.Messages[4].ToolCallID)
	assert.Contains(t, st.Messages[4].Content, "limit of 2 per turn exceeded")
}

func TestRunWithToolsWithoutRegistryFinishes(t *testing.T) {
	p := llmtest.New(llmtest.Calls("partial", call("a", "lookup")))
	text, st, err := NewRunner(p, nil, DefaultConfig()).RunWithTools(context.Background(), "x")
	require.NoError(t, err)
	assert.Equal(t, "partial", text)
	assert.Equal(t, 1, st.Turns)
	assert.Equal(t, "tool_calls", st.FinishReason)
	assert.Empty(t, p.Requests()[0].Tools)
}

func TestRunWithToolsProviderError(t *testing.T) {
	p := &llmtest.Scripted{Err: errors.New("rate limited")}
	_, st, err := NewRunner(p, &fakeTools{}, DefaultConfig()).RunWithTools(context.Background(), "x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rate limited")
	assert.Equal(t, 1, st.Turns)
}

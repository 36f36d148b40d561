package providers

import (
	"context"
	"errors"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ormasoftchile/skillrun/pkg/executor"
	"github.com/ormasoftchile/skillrun/pkg/gate"
	"github.com/ormasoftchile/skillrun/pkg/llm"
	"github.com/ormasoftchile/skillrun/pkg/llm/llmtest"
	"github.com/ormasoftchile/skillrun/pkg/schema"
	"github.com/ormasoftchile/skillrun/pkg/state"
	"github.com/ormasoftchile/skillrun/pkg/tools"
)

func testSkill() *schema.Skill {
	return &schema.Skill{
		Name: "release",
		Prompts: map[string]string{
			"summarize": "Summarize ${task}",
			"empty":     "",
		},
	}
}

func fixed(res *executor.Result, err error) executor.Func {
	return func(context.Context, string, time.Duration) (*executor.Result, error) {
		return res, err
	}
}

func TestCommandInterpolatesAndTrims(t *testing.T) {
	var got string
	c := &Command{Exec: executor.Func(func(_ context.Context, cmd string, _ time.Duration) (*executor.Result, error) {
		got = cmd
		return &executor.Result{Stdout: "  built\n"}, nil
	})}
	run := state.New("release", "t")
	run.Set("target", "./cmd")

	r := c.Execute(context.Background(), schema.Step{ID: "b", Type: schema.StepCommand, Command: "go build ${target}"}, run, testSkill(), false)
	assert.Equal(t, "go build ./cmd", got)
	assert.Equal(t, state.StatusCompleted, r.Status)
	assert.Equal(t, "built", r.Output)
	assert.Equal(t, 0, r.Metadata["return_code"])
}

func TestCommandNonZeroExitFails(t *testing.T) {
	c := &Command{Exec: fixed(&executor.Result{Stdout: "partial", Stderr: " boom \n", ExitCode: 2}, nil)}
	r := c.Execute(context.Background(), schema.Step{ID: "b", Type: schema.StepCommand, Command: "x"}, state.New("s", "t"), testSkill(), false)
	assert.Equal(t, state.StatusFailed, r.Status)
	assert.Equal(t, "boom", r.Error)
	assert.Equal(t, "partial", r.Output)
	assert.Equal(t, 2, r.Metadata["return_code"])
}

func TestCommandTimeout(t *testing.T) {
	c := &Command{Exec: fixed(nil, executor.ErrTimeout)}
	r := c.Execute(context.Background(), schema.Step{ID: "b", Type: schema.StepCommand, Command: "sleep 9", Timeout: 7}, state.New("s", "t"), testSkill(), false)
	assert.Equal(t, state.StatusFailed, r.Status)
	assert.Equal(t, "Command timed out after 7s", r.Error)
}

func TestCommandDryRunDoesNotExecute(t *testing.T) {
	c := &Command{Exec: executor.Func(func(context.Context, string, time.Duration) (*executor.Result, error) {
		t.Fatal("executor called in dry run")
		return nil, nil
	})}
	r := c.Execute(context.Background(), schema.Step{ID: "b", Type: schema.StepCommand, Command: "rm -rf build"}, state.New("s", "t"), testSkill(), true)
	assert.Equal(t, state.StatusCompleted, r.Status)
	assert.Equal(t, "[DRY RUN] Would execute: rm -rf build", r.Output)
}

func TestCommandRealShell(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("requires sh")
	}
	c := &Command{Exec: &executor.Shell{}}
	r := c.Execute(context.Background(), schema.Step{ID: "b", Type: schema.StepCommand, Command: "printf 'a\\nb\\n'"}, state.New("s", "t"), testSkill(), false)
	assert.Equal(t, state.StatusCompleted, r.Status)
	assert.Equal(t, "a\nb", r.Output)
	assert.True(t, r.Duration > 0)
}

func gateCap(res *executor.Result, answers ...string) (*GateCheck, *ScriptedCollector) {
	col := NewScriptedCollector(answers...)
	return &GateCheck{Checker: gate.NewChecker(fixed(res, nil), nil, false), Collector: col}, col
}

func TestGateCheckPass(t *testing.T) {
	g, _ := gateCap(&executor.Result{Stdout: "ok\n"})
	step := schema.Step{ID: "v", Name: "Verify", Type: schema.StepGateCheck, Validation: "true"}
	r := g.Execute(context.Background(), step, state.New("s", "t"), testSkill(), false)
	assert.Equal(t, state.StatusCompleted, r.Status)
	assert.Equal(t, "ok", r.Output)
	assert.Equal(t, true, r.Metadata["gate_passed"])
}

func TestGateCheckFailureActions(t *testing.T) {
	failing := &executor.Result{Stdout: "3 tests failed", ExitCode: 1}
	tests := []struct {
		policy     schema.OnFailure
		answers    []string
		wantStatus state.StepStatus
		wantChoice any
	}{
		{schema.OnFailureAbort, nil, state.StatusFailed, nil},
		{schema.OnFailureRetry, nil, state.StatusFailed, nil},
		{schema.OnFailureSkip, nil, state.StatusSkipped, nil},
		{schema.OnFailureAsk, []string{"y"}, state.StatusCompleted, "continue"},
		{schema.OnFailureAsk, []string{"YES"}, state.StatusCompleted, "continue"},
		{schema.OnFailureAsk, []string{"n"}, state.StatusFailed, "abort"},
		{schema.OnFailureAsk, nil, state.StatusFailed, "abort"},
	}
	for _, tt := range tests {
		t.Run(string(tt.policy)+"/"+strings.Join(tt.answers, ","), func(t *testing.T) {
			g, _ := gateCap(failing, tt.answers...)
			step := schema.Step{ID: "v", Name: "Verify", Type: schema.StepGateCheck, Validation: "make test", OnFailure: tt.policy}
			r := g.Execute(context.Background(), step, state.New("s", "t"), testSkill(), false)
			assert.Equal(t, tt.wantStatus, r.Status)
			assert.Equal(t, false, r.Metadata["gate_passed"])
			assert.Equal(t, string(tt.policy), r.Metadata["action"])
			assert.Equal(t, tt.wantChoice, r.Metadata["user_choice"])
		})
	}
}

func TestGateCheckAskShowsContext(t *testing.T) {
	g, col := gateCap(&executor.Result{ExitCode: 1}, "n")
	step := schema.Step{ID: "v", Name: "Verify", Type: schema.StepGateCheck, Validation: "false", OnFailure: schema.OnFailureAsk}
	r := g.Execute(context.Background(), step, state.New("s", "t"), testSkill(), false)

	require.Len(t, col.Shown(), 2)
	assert.True(t, strings.HasPrefix(col.Shown()[0], "⚠️  Gate check failed, asking user: Verify"))
	assert.Equal(t, "Output: none", col.Shown()[1])
	assert.Equal(t, []string{"Continue anyway? [y/N]: "}, col.Prompts())
	assert.True(t, strings.HasPrefix(r.Error, "User aborted: "))
}

func TestGateCheckDryRunPasses(t *testing.T) {
	g := &GateCheck{Checker: gate.NewChecker(executor.Func(func(context.Context, string, time.Duration) (*executor.Result, error) {
		t.Fatal("executor called in dry run")
		return nil, nil
	}), nil, false)}
	step := schema.Step{ID: "v", Name: "Verify", Type: schema.StepGateCheck, Validation: "make test"}
	r := g.Execute(context.Background(), step, state.New("s", "t"), testSkill(), true)
	assert.Equal(t, state.StatusCompleted, r.Status)
	assert.Equal(t, "[DRY RUN] Would execute: make test", r.Output)
	assert.False(t, g.Checker.DryRun, "shared checker must not be mutated")
}

func choiceStep() schema.Step {
	return schema.Step{
		ID:   "env",
		Name: "Pick environment",
		Type: schema.StepUserInput,
		Options: []schema.Option{
			{ID: "stg", Label: "Staging", Description: "pre-prod"},
			{ID: "prod", Label: "Production"},
		},
	}
}

func TestUserInputRecordsChoice(t *testing.T) {
	col := NewScriptedCollector("2")
	u := &UserInput{Collector: col}
	run := state.New("s", "t")

	r := u.Execute(context.Background(), choiceStep(), run, testSkill(), false)
	assert.Equal(t, state.StatusCompleted, r.Status)
	assert.Equal(t, "prod", r.Output)
	assert.Equal(t, "prod", r.Metadata["selected"])
	assert.Equal(t, "Production", r.Metadata["label"])
	assert.Equal(t, "prod", run.Get("user_input_env", nil))
	assert.Equal(t, []string{"\nPick environment", "  1. Staging - pre-prod", "  2. Production"}, col.Shown())
	assert.Equal(t, []string{"Enter choice (number): "}, col.Prompts())
}

func TestUserInputRejectsBadAnswers(t *testing.T) {
	tests := []struct {
		answers []string
		want    string
	}{
		{[]string{"0"}, "Invalid choice"},
		{[]string{"3"}, "Invalid choice"},
		{[]string{"abc"}, "Input cancelled or invalid"},
		{nil, "Input cancelled or invalid"},
	}
	for _, tt := range tests {
		u := &UserInput{Collector: NewScriptedCollector(tt.answers...)}
		run := state.New("s", "t")
		r := u.Execute(context.Background(), choiceStep(), run, testSkill(), false)
		assert.Equal(t, state.StatusFailed, r.Status)
		assert.Equal(t, tt.want, r.Error)
		_, ok := run.Variables["user_input_env"]
		assert.False(t, ok)
	}
}

func TestUserInputDryRun(t *testing.T) {
	u := &UserInput{Collector: NewScriptedCollector()}
	r := u.Execute(context.Background(), choiceStep(), state.New("s", "t"), testSkill(), true)
	assert.Equal(t, state.StatusCompleted, r.Status)
	assert.Equal(t, "[DRY RUN] Would ask user: Pick environment", r.Output)
	assert.Equal(t, []string{"stg", "prod"}, r.Metadata["options"])
}

func promptStep(ref string) schema.Step {
	return schema.Step{ID: "sum", Name: "Summarize", Type: schema.StepPrompt, PromptRef: ref}
}

func promptRun() *state.Context {
	run := state.New("release", "t")
	run.Set("task", "the release")
	return run
}

func TestPromptMissingBody(t *testing.T) {
	p := &Prompt{Provider: llmtest.New()}
	for _, ref := range []string{"#nope", "#empty"} {
		r := p.Execute(context.Background(), promptStep(ref), promptRun(), testSkill(), false)
		assert.Equal(t, state.StatusFailed, r.Status)
		assert.Equal(t, "Prompt not found: "+ref, r.Error)
	}
}

func TestPromptDryRunPreview(t *testing.T) {
	p := &Prompt{}
	r := p.Execute(context.Background(), promptStep("#summarize"), promptRun(), testSkill(), true)
	assert.Equal(t, state.StatusCompleted, r.Status)
	assert.Equal(t, "[DRY RUN] Would execute prompt: Summarize\n\nPrompt preview:\nSummarize the release...", r.Output)
	assert.Equal(t, "#summarize", r.Metadata["prompt_ref"])
	assert.Equal(t, len("Summarize the release"), r.Metadata["prompt_length"])
}

func TestPromptWithoutProvider(t *testing.T) {
	p := &Prompt{}
	r := p.Execute(context.Background(), promptStep("summarize"), promptRun(), testSkill(), false)
	assert.Equal(t, state.StatusFailed, r.Status)
	assert.Equal(t, NoProviderMessage, r.Error)
	assert.Equal(t, true, r.Metadata["requires_llm"])
}

func TestPromptSingleShot(t *testing.T) {
	resp := llmtest.Text("All good")
	resp.Usage = llm.Usage{PromptTokens: 12, CompletionTokens: 3}
	provider := llmtest.New(resp)
	p := &Prompt{Provider: provider}

	r := p.Execute(context.Background(), promptStep("#summarize"), promptRun(), testSkill(), false)
	require.Equal(t, state.StatusCompleted, r.Status, r.Error)
	assert.Equal(t, "All good", r.Output)
	assert.Equal(t, "stop", r.Metadata["finish_reason"])
	assert.Equal(t, map[string]any{"prompt_tokens": 12, "completion_tokens": 3}, r.Metadata["usage"])

	reqs := provider.Requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, "Summarize the release", reqs[0].Messages[0].Content)
	assert.Empty(t, reqs[0].Tools)
}

type shoutArgs struct {
	Text string `json:"text" jsonschema:"required"`
}

func TestPromptWithTools(t *testing.T) {
	reg := tools.NewRegistry()
	def, err := tools.Define("shout", "Upper-case text", func(_ context.Context, args shoutArgs) (string, error) {
		return strings.ToUpper(args.Text), nil
	})
	require.NoError(t, err)
	require.NoError(t, reg.Register(def))

	provider := llmtest.New(
		llmtest.Calls("", llm.ToolCall{ID: "c1", Name: "shout", Arguments: map[string]any{"text": "hi"}}),
		llmtest.Text("done"),
	)
	p := &Prompt{Provider: provider, Tools: reg}

	r := p.Execute(context.Background(), promptStep("summarize"), promptRun(), testSkill(), false)
	require.Equal(t, state.StatusCompleted, r.Status, r.Error)
	assert.Equal(t, "done", r.Output)
	assert.Equal(t, 2, r.Metadata["turns"])
	assert.Equal(t, 1, r.Metadata["tool_calls"])
	assert.Equal(t, "stop", r.Metadata["finish_reason"])

	reqs := provider.Requests()
	require.Len(t, reqs, 2)
	last := reqs[1].Messages[len(reqs[1].Messages)-1]
	assert.Equal(t, llm.RoleTool, last.Role)
	assert.Equal(t, "HI", last.Content)
}

func TestPromptProviderError(t *testing.T) {
	provider := &llmtest.Scripted{Err: errors.New("rate limited")}
	p := &Prompt{Provider: provider}
	r := p.Execute(context.Background(), promptStep("summarize"), promptRun(), testSkill(), false)
	assert.Equal(t, state.StatusFailed, r.Status)
	assert.Contains(t, r.Error, "LLM execution failed: ")
	assert.Contains(t, r.Error, "rate limited")
}

func TestDispatcherRoutesByType(t *testing.T) {
	d := NewDispatcher(Deps{Exec: fixed(&executor.Result{Stdout: "x"}, nil), Collector: NewScriptedCollector()})
	assert.IsType(t, &Command{}, d.For(schema.Step{Type: schema.StepCommand}))
	assert.IsType(t, &GateCheck{}, d.For(schema.Step{Type: schema.StepGateCheck}))
	assert.IsType(t, &UserInput{}, d.For(schema.Step{Type: schema.StepUserInput}))
	assert.IsType(t, &Prompt{}, d.For(schema.Step{Type: schema.StepPrompt}))
	assert.Nil(t, d.For(schema.Step{Type: "teleport"}))
}

func TestDispatcherUnsupportedType(t *testing.T) {
	d := NewDispatcher(Deps{})
	step := schema.Step{ID: "z", Name: "Z", Type: "teleport"}
	r := d.Execute(context.Background(), step, state.New("s", "t"), testSkill(), false)
	assert.Equal(t, state.StatusFailed, r.Status)
	assert.Equal(t, "Unsupported step type: teleport", r.Error)

	in := d.Instruction(step, state.New("s", "t"), testSkill())
	assert.Equal(t, "unknown", in.Instruction.Type)
	assert.Equal(t, "Unknown step type: teleport", in.Instruction.Content)
}

func TestInstructions(t *testing.T) {
	d := NewDispatcher(Deps{})
	run := promptRun()
	run.Set("dir", "/src")
	sk := testSkill()

	in := d.Instruction(schema.Step{ID: "c", Name: "Build", Type: schema.StepCommand, Command: "make -C ${dir}"}, run, sk)
	assert.Equal(t, InstructionVersion, in.Version)
	assert.Equal(t, "release", in.SkillID)
	assert.Equal(t, StepRef{ID: "c", Name: "Build"}, in.CurrentStep)
	assert.Equal(t, InstructionBody{Type: "bash", Content: "make -C /src"}, in.Instruction)
	assert.Empty(t, in.GateCheck)

	in = d.Instruction(schema.Step{ID: "g", Type: schema.StepGateCheck, Validation: "test -d ${dir}"}, run, sk)
	assert.Equal(t, "bash", in.Instruction.Type)
	assert.Equal(t, true, in.GateCheck["enabled"])
	assert.Equal(t, "test -d /src", in.GateCheck["validation_command"])
	assert.Equal(t, "abort", in.GateCheck["on_failure"])

	in = d.Instruction(choiceStep(), run, sk)
	assert.Equal(t, "user_input", in.Instruction.Type)
	assert.Equal(t, "Pick environment", in.Instruction.Content)
	assert.Len(t, in.GateCheck["options"], 2)

	in = d.Instruction(promptStep("#summarize"), run, sk)
	assert.Equal(t, InstructionBody{Type: "prompt", Content: "Summarize the release"}, in.Instruction)
}

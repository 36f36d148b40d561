package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/ormasoftchile/skillrun/pkg/providers"
	"github.com/ormasoftchile/skillrun/pkg/runtime"
	"github.com/ormasoftchile/skillrun/pkg/schema"
	"github.com/ormasoftchile/skillrun/pkg/state"
)

// HandleList implements the skillrun/list MCP tool.
func (h *Handlers) HandleList(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	type entry struct {
		Name        string `json:"name"`
		Version     string `json:"version"`
		Description string `json:"description"`
		Steps       int    `json:"steps"`
	}
	entries := []entry{}
	for _, sk := range schema.Discover(h.SkillsDir, h.logger()) {
		entries = append(entries, entry{sk.Name, sk.Version, sk.Description, len(sk.Steps)})
	}
	return jsonResult(entries, false), nil
}

// HandleValidate implements the skillrun/validate MCP tool.
func (h *Handlers) HandleValidate(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil || path == "" {
		return errorResult("path argument is required"), nil
	}

	sk, errs := schema.ValidateFile(path, h.SkillsDir)
	if len(errs) > 0 {
		return errorResult(formatErrors(errs)), nil
	}
	return textResult(fmt.Sprintf("✓ %s is valid (%d steps)", sk.Name, len(sk.Steps))), nil
}

// HandleSchema implements the skillrun/schema MCP tool.
func (h *Handlers) HandleSchema(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	data, err := schema.GenerateJSONSchema()
	if err != nil {
		return errorResult(err.Error()), nil
	}
	return textResult(string(data)), nil
}

// HandleStatus implements the skillrun/status MCP tool.
func (h *Handlers) HandleStatus(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("state_file")
	if err != nil || path == "" {
		return errorResult("state_file argument is required"), nil
	}
	run, err := state.Load(path)
	if err != nil {
		return errorResult(fmt.Sprintf("State file not found or unreadable: %s", err)), nil
	}
	return jsonResult(run.Summary(), false), nil
}

// HandleInstruction implements the skillrun/instruction MCP tool.
func (h *Handlers) HandleInstruction(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil || path == "" {
		return errorResult("path argument is required"), nil
	}
	stepID, err := req.RequireString("step")
	if err != nil || stepID == "" {
		return errorResult("step argument is required"), nil
	}

	sk, err := schema.Resolve(path, h.SkillsDir)
	if err != nil {
		return errorResult(err.Error()), nil
	}
	step := sk.Step(stepID)
	if step == nil {
		return errorResult(fmt.Sprintf("Step not found: %s", stepID)), nil
	}

	d := providers.NewDispatcher(providers.Deps{Logger: h.logger()})
	eng, err := runtime.NewEngine(sk, d, runtime.Options{Task: req.GetString("task", ""), DryRun: true})
	if err != nil {
		return errorResult(err.Error()), nil
	}
	return jsonResult(d.Instruction(*step, eng.State, sk), false), nil
}

// HandleRun implements the skillrun/run MCP tool. Runs are always dry runs.
func (h *Handlers) HandleRun(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil || path == "" {
		return errorResult("path argument is required"), nil
	}
	sk, err := schema.Resolve(path, h.SkillsDir)
	if err != nil {
		return errorResult(err.Error()), nil
	}

	d := providers.NewDispatcher(providers.Deps{Collector: providers.DryRunCollector{}, Logger: h.logger()})
	eng, err := runtime.NewEngine(sk, d, runtime.Options{Task: req.GetString("task", ""), DryRun: true})
	if err != nil {
		return errorResult(err.Error()), nil
	}
	eng.Logger = h.logger()

	sum, err := eng.Run(ctx)
	if err != nil {
		return errorResult(fmt.Sprintf("run: %s", err)), nil
	}

	type stepOut struct {
		ID     string `json:"id"`
		Status string `json:"status"`
		Output string `json:"output,omitempty"`
		Error  string `json:"error,omitempty"`
	}
	steps := make([]stepOut, 0, len(sk.Steps))
	for _, s := range sk.Steps {
		if r := eng.State.StepResult(s.ID); r != nil {
			steps = append(steps, stepOut{s.ID, string(r.Status), r.Output, r.Error})
		}
	}
	response := map[string]any{
		"mode":    "dry-run",
		"summary": sum,
		"steps":   steps,
	}
	return jsonResult(response, !sum.OK()), nil
}

func formatErrors(errs []*schema.ValidationError) string {
	msgs := make([]string, 0, len(errs))
	for _, e := range errs {
		msgs = append(msgs, e.Error())
	}
	return strings.Join(msgs, "; ")
}

func jsonResult(v any, isErr bool) *mcp.CallToolResult {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return errorResult(fmt.Sprintf("encode result: %s", err))
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{mcp.NewTextContent(string(data))},
		IsError: isErr,
	}
}

func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.NewTextContent(text),
		},
	}
}

func errorResult(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.NewTextContent(msg),
		},
		IsError: true,
	}
}

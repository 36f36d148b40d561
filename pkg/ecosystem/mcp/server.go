// Package mcp exposes skill validation, instruction generation, run status
// and dry runs as MCP tools.
package mcp

import (
	"io"
	"log/slog"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// Handlers carries the settings the MCP tools resolve skills and state
// against.
type Handlers struct {
	SkillsDir string
	Logger    *slog.Logger
}

func (h *Handlers) logger() *slog.Logger {
	if h.Logger != nil {
		return h.Logger
	}
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// NewServer creates a new MCP server with the skillrun tools registered.
func NewServer(version string, h *Handlers) *server.MCPServer {
	s := server.NewMCPServer(
		"skillrun",
		version,
		server.WithToolCapabilities(true),
	)

	s.AddTool(
		mcp.NewTool("skillrun/list",
			mcp.WithDescription("List the skills found in the skills directory"),
		),
		h.HandleList,
	)

	s.AddTool(
		mcp.NewTool("skillrun/validate",
			mcp.WithDescription("Validate a skill document (SKILL.md, skill YAML, or skill name)"),
			mcp.WithString("path", mcp.Required(), mcp.Description("Skill name, directory, SKILL.md or YAML path")),
		),
		h.HandleValidate,
	)

	s.AddTool(
		mcp.NewTool("skillrun/instruction",
			mcp.WithDescription("Describe one step of a skill as an instruction for an external executor"),
			mcp.WithString("path", mcp.Required(), mcp.Description("Skill name, directory, SKILL.md or YAML path")),
			mcp.WithString("step", mcp.Required(), mcp.Description("Step ID")),
			mcp.WithString("task", mcp.Description("Task description used for variable seeding")),
		),
		h.HandleInstruction,
	)

	s.AddTool(
		mcp.NewTool("skillrun/status",
			mcp.WithDescription("Summarize a persisted skill run"),
			mcp.WithString("state_file", mcp.Required(), mcp.Description("Path to the run state JSON file")),
		),
		h.HandleStatus,
	)

	s.AddTool(
		mcp.NewTool("skillrun/schema",
			mcp.WithDescription("Export the skill document JSON Schema"),
		),
		h.HandleSchema,
	)

	s.AddTool(
		mcp.NewTool("skillrun/run",
			mcp.WithDescription("Dry-run a skill: every step is described, nothing is executed"),
			mcp.WithString("path", mcp.Required(), mcp.Description("Skill name, directory, SKILL.md or YAML path")),
			mcp.WithString("task", mcp.Description("Task description")),
		),
		h.HandleRun,
	)

	return s
}

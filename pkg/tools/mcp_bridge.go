package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

const mcpInitTimeout = 15 * time.Second

// MCPServer is a connected MCP server whose tools can be imported into a
// Registry.
type MCPServer struct {
	Name   string
	client *client.Client
	tools  []mcp.Tool
}

// ConnectStdio spawns command as an MCP server over stdio, performs the
// initialization handshake and discovers its tools.
func ConnectStdio(ctx context.Context, name, command string, args, env []string) (*MCPServer, error) {
	c, err := client.NewStdioMCPClient(command, env, args...)
	if err != nil {
		return nil, fmt.Errorf("start MCP server %q: %w", name, err)
	}
	s := &MCPServer{Name: name, client: c}
	if err := s.initialize(ctx); err != nil {
		_ = c.Close()
		return nil, err
	}
	return s, nil
}

// ConnectInProcess connects to an MCP server running in this process.
func ConnectInProcess(ctx context.Context, name string, srv *server.MCPServer) (*MCPServer, error) {
	c, err := client.NewInProcessClient(srv)
	if err != nil {
		return nil, fmt.Errorf("connect MCP server %q: %w", name, err)
	}
	if err := c.Start(ctx); err != nil {
		return nil, fmt.Errorf("start MCP client %q: %w", name, err)
	}
	s := &MCPServer{Name: name, client: c}
	if err := s.initialize(ctx); err != nil {
		_ = c.Close()
		return nil, err
	}
	return s, nil
}

func (s *MCPServer) initialize(ctx context.Context) error {
	initCtx, cancel := context.WithTimeout(ctx, mcpInitTimeout)
	defer cancel()

	req := mcp.InitializeRequest{}
	req.Params.ProtocolVersion = mcp.LATEST_PROTOCOL_VERSION
	req.Params.ClientInfo = mcp.Implementation{Name: "skillrun", Version: "0.1.0"}
	if _, err := s.client.Initialize(initCtx, req); err != nil {
		return fmt.Errorf("MCP initialize %q: %w", s.Name, err)
	}

	list, err := s.client.ListTools(initCtx, mcp.ListToolsRequest{})
	if err != nil {
		return fmt.Errorf("MCP tools/list %q: %w", s.Name, err)
	}
	s.tools = list.Tools
	return nil
}

// ToolNames returns the names of the discovered tools.
func (s *MCPServer) ToolNames() []string {
	names := make([]string, 0, len(s.tools))
	for _, t := range s.tools {
		names = append(names, t.Name)
	}
	return names
}

// Register imports every discovered tool into r. Tool names are prefixed
// with prefix when it is non-empty.
func (s *MCPServer) Register(r *Registry, prefix string) error {
	for _, t := range s.tools {
		props, required := toolParameters(t)
		remote := t.Name
		err := r.Register(Definition{
			Name:        prefix + t.Name,
			Description: t.Description,
			Parameters:  props,
			Required:    required,
			Handler: func(ctx context.Context, args map[string]any) (string, error) {
				return s.Call(ctx, remote, args)
			},
		})
		if err != nil {
			return err
		}
	}
	return nil
}

func toolParameters(t mcp.Tool) (map[string]any, []string) {
	if len(t.RawInputSchema) > 0 {
		var raw struct {
			Properties map[string]any `json:"properties"`
			Required   []string       `json:"required"`
		}
		if err := json.Unmarshal(t.RawInputSchema, &raw); err == nil {
			return raw.Properties, raw.Required
		}
	}
	return t.InputSchema.Properties, t.InputSchema.Required
}

// Call invokes a remote tool and joins its text content.
func (s *MCPServer) Call(ctx context.Context, name string, args map[string]any) (string, error) {
	req := mcp.CallToolRequest{}
	req.Params.Name = name
	req.Params.Arguments = args

	res, err := s.client.CallTool(ctx, req)
	if err != nil {
		return "", fmt.Errorf("MCP tools/call %q: %w", name, err)
	}

	var texts []string
	for _, c := range res.Content {
		if tc, ok := mcp.AsTextContent(c); ok {
			texts = append(texts, tc.Text)
		}
	}
	if res.IsError {
		return "", fmt.Errorf("MCP tool error: %s", strings.Join(texts, "; "))
	}
	return strings.Join(texts, "\n"), nil
}

// Close terminates the connection and, for stdio servers, the process.
func (s *MCPServer) Close() error {
	return s.client.Close()
}

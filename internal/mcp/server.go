// Package mcp exposes the analytics tool registry over the Model Context
// Protocol so that any MCP-capable client can drive Genie conversations
// directly, without going through the chat completion API.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/vladip1/databricks-genie-mcp/internal/tools"
)

// Server wraps the MCP SDK server around a tool registry.
type Server struct {
	mcpServer *mcp.Server
	registry  *tools.Registry
	name      string
	version   string
}

// Config holds MCP server configuration.
type Config struct {
	Name    string
	Version string
}

// NewServer creates an MCP server exposing every tool in the registry.
func NewServer(cfg Config, registry *tools.Registry) (*Server, error) {
	if cfg.Name == "" {
		return nil, fmt.Errorf("server name is required")
	}
	if cfg.Version == "" {
		return nil, fmt.Errorf("server version is required")
	}
	if registry == nil {
		return nil, fmt.Errorf("registry is required")
	}

	mcpServer := mcp.NewServer(&mcp.Implementation{
		Name:    cfg.Name,
		Version: cfg.Version,
	}, nil)

	s := &Server{
		mcpServer: mcpServer,
		registry:  registry,
		name:      cfg.Name,
		version:   cfg.Version,
	}
	s.registerTools()

	return s, nil
}

// Run starts the MCP server on the given transport. This is a blocking
// call that handles all MCP protocol communication.
func (s *Server) Run(ctx context.Context, transport mcp.Transport) error {
	return s.mcpServer.Run(ctx, transport)
}

// registerTools mirrors the registry onto the MCP server. Tool failures
// come back from the registry as error payloads, so handlers translate
// them into error results rather than protocol errors: the client always
// gets content it can show to a model.
func (s *Server) registerTools() {
	for _, def := range s.registry.List() {
		name := def.Name
		mcp.AddTool(s.mcpServer, &mcp.Tool{
			Name:        def.Name,
			Description: def.Description,
			InputSchema: def.InputSchema,
		}, func(ctx context.Context, req *mcp.CallToolRequest, in map[string]any) (*mcp.CallToolResult, any, error) {
			args, err := json.Marshal(in)
			if err != nil {
				return nil, nil, fmt.Errorf("encode arguments for %s: %w", name, err)
			}
			payload := s.registry.Execute(ctx, name, args)
			return &mcp.CallToolResult{
				Content: []mcp.Content{&mcp.TextContent{Text: string(payload)}},
				IsError: tools.IsErrorPayload(payload),
			}, nil, nil
		})
	}
}

// Package mcp implements the Model Context Protocol server for Attest.
//
// The MCP server exposes the same pipelines as the HTTP API through MCP
// tools, allowing MCP-compatible AI agents to generate tests, validate
// business rules, and query quality analytics.
package mcp

import (
	"log/slog"

	mcplib "github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/merchly-ai/attest/internal/service/analytics"
	"github.com/merchly-ai/attest/internal/service/rules"
	"github.com/merchly-ai/attest/internal/service/testgen"
)

// mcpCallerID identifies pipeline work initiated over the MCP transport
// in the call ledger and metric dimensions.
const mcpCallerID = "mcp"

// Server wraps the MCP server with Attest's service layer.
type Server struct {
	mcpServer    *mcpserver.MCPServer
	testGen      *testgen.Pipeline
	ruleSvc      *rules.Analyzer
	analyticsSvc *analytics.Engine
	logger       *slog.Logger
}

// New creates and configures a new MCP server with all tools registered.
func New(testGen *testgen.Pipeline, ruleSvc *rules.Analyzer, analyticsSvc *analytics.Engine, logger *slog.Logger, version string) *Server {
	s := &Server{
		testGen:      testGen,
		ruleSvc:      ruleSvc,
		analyticsSvc: analyticsSvc,
		logger:       logger,
	}

	s.mcpServer = mcpserver.NewMCPServer(
		"attest",
		version,
		mcpserver.WithToolCapabilities(true),
	)

	s.registerTools()

	return s
}

// MCPServer returns the underlying mcp-go server for transport setup.
func (s *Server) MCPServer() *mcpserver.MCPServer {
	return s.mcpServer
}

func errorResult(msg string) *mcplib.CallToolResult {
	return &mcplib.CallToolResult{
		Content: []mcplib.Content{
			mcplib.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}

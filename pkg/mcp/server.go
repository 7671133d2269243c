// Package mcp exposes the agent over the Model Context Protocol on stdio.
package mcp

import (
	"context"
	"log/slog"
	"os"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/opsgate/triago/internal/agent"
)

// TriagoServerDeps holds the dependencies for creating a TriagoServer.
type TriagoServerDeps struct {
	Service *agent.Service
	Logger  *slog.Logger
}

// TriagoServer wraps an MCP server with the agent's tool handlers.
type TriagoServer struct {
	service   *agent.Service
	logger    *slog.Logger
	mcpServer *server.MCPServer
}

// NewTriagoServer creates a TriagoServer with both tools registered.
func NewTriagoServer(deps TriagoServerDeps) *TriagoServer {
	logger := deps.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}

	s := &TriagoServer{
		service: deps.Service,
		logger:  logger,
	}

	mcpSrv := server.NewMCPServer(
		"triago",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithRecovery(),
		server.WithInstructions("Triago turns cloud security findings into assigned GitHub issues. Use triago.create_issue to process a finding and triago.stats to read the agent's issue statistics."),
	)

	mcpSrv.AddTools(s.tools()...)
	s.mcpServer = mcpSrv
	return s
}

// Serve starts the stdio transport and blocks until ctx is cancelled or stdin closes.
func (s *TriagoServer) Serve(ctx context.Context) error {
	stdio := server.NewStdioServer(s.mcpServer)
	return stdio.Listen(ctx, os.Stdin, os.Stdout)
}

// MCPServer returns the underlying MCPServer for testing or custom transports.
func (s *TriagoServer) MCPServer() *server.MCPServer {
	return s.mcpServer
}

func (s *TriagoServer) tools() []server.ServerTool {
	return []server.ServerTool{
		{Tool: createIssueTool(), Handler: s.handleCreateIssue},
		{Tool: statsTool(), Handler: s.handleStats},
	}
}

func createIssueTool() mcp.Tool {
	return mcp.NewTool("triago.create_issue",
		mcp.WithDescription("Process a security finding and create an assigned GitHub issue"),
		mcp.WithObject("securityIssue", mcp.Required(), mcp.Description("The security finding (id, source, severity, title, description, resourceId, resourceType)")),
		mcp.WithString("resourceId", mcp.Required(), mcp.Description("Identifier of the affected cloud resource")),
		mcp.WithArray("remediationSteps", mcp.Description("Existing remediation steps, reviewed instead of generated when provided")),
		mcp.WithString("assignee", mcp.Description("Preferred assignee username")),
	)
}

func statsTool() mcp.Tool {
	return mcp.NewTool("triago.stats",
		mcp.WithDescription("Report issue statistics: today's counters, all-time totals and recent activity"),
	)
}

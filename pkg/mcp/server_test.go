package mcp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewTriagoServer(t *testing.T) {
	s := NewTriagoServer(TriagoServerDeps{})
	require.NotNil(t, s)
	assert.NotNil(t, s.mcpServer)
	assert.NotNil(t, s.logger)
}

func TestToolRegistration(t *testing.T) {
	s := NewTriagoServer(TriagoServerDeps{})

	tools := s.mcpServer.ListTools()
	require.Len(t, tools, 2)

	for _, name := range []string{"triago.create_issue", "triago.stats"} {
		tool := s.mcpServer.GetTool(name)
		assert.NotNil(t, tool, "tool %s should be registered", name)
	}
}

func TestToolDefinitions(t *testing.T) {
	tests := []struct {
		name        string
		toolName    string
		description string
	}{
		{"create_issue", "triago.create_issue", "Process a security finding and create an assigned GitHub issue"},
		{"stats", "triago.stats", "Report issue statistics: today's counters, all-time totals and recent activity"},
	}

	s := NewTriagoServer(TriagoServerDeps{})

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			tool := s.mcpServer.GetTool(tc.toolName)
			require.NotNil(t, tool)
			assert.Equal(t, tc.description, tool.Tool.Description)
		})
	}
}

package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/opsgate/triago/pkg/schema"
)

// handleCreateIssue runs the issue-creation pipeline on a finding payload.
// A failed run is not a tool error: the caller receives the pipeline's
// failure output, which names the step that broke.
func (s *TriagoServer) handleCreateIssue(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	raw, err := json.Marshal(req.GetArguments())
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("unreadable arguments: %v", err)), nil
	}

	var payload schema.FindingPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("malformed finding payload: %v", err)), nil
	}
	if payload.ResourceID == "" {
		return mcp.NewToolResultError("resourceId is required"), nil
	}
	if payload.SecurityIssue.ID == "" {
		return mcp.NewToolResultError("securityIssue is required"), nil
	}

	// Round-trip through the typed payload to drop unknown fields before the
	// pipeline's own shape validation.
	normalized, err := json.Marshal(payload)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("encode finding payload: %v", err)), nil
	}
	input := map[string]any{}
	if err := json.Unmarshal(normalized, &input); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("decode finding payload: %v", err)), nil
	}

	outcome, runErr := s.service.ProcessFinding(ctx, input)
	if runErr != nil {
		if outcome == nil {
			return mcp.NewToolResultError(fmt.Sprintf("finding rejected: %v", runErr)), nil
		}
		// The issue was created but the stats write failed; report both.
		s.logger.WarnContext(ctx, "issue created, stats write failed", slog.String("error", runErr.Error()))
	}

	return marshalResult(map[string]any{
		"runId":  outcome.RunID,
		"status": outcome.Status,
		"result": outcome.Output,
	})
}

// handleStats runs the reporting pipeline and returns the report.
func (s *TriagoServer) handleStats(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	outcome, err := s.service.StatsReport(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("stats report failed: %v", err)), nil
	}
	if !outcome.Succeeded() {
		return mcp.NewToolResultError(fmt.Sprintf("stats report failed at %s: %v", outcome.FailedStep, outcome.Error)), nil
	}
	return marshalResult(outcome.Output)
}

func marshalResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal result: %v", err)), nil
	}
	return mcp.NewToolResultJSON(json.RawMessage(data))
}

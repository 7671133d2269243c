package workflows

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opsgate/triago/internal/pipeline"
	"github.com/opsgate/triago/internal/tools"
	"github.com/opsgate/triago/internal/validation"
)

// scriptedInferencer serves a fixed object for structured calls and a FIFO
// queue of texts for plain calls.
type scriptedInferencer struct {
	object  map[string]any
	texts   []string
	prompts []string
}

func (s *scriptedInferencer) InferText(_ context.Context, _, prompt string) (string, error) {
	s.prompts = append(s.prompts, prompt)
	if len(s.texts) == 0 {
		return "", nil
	}
	next := s.texts[0]
	s.texts = s.texts[1:]
	return next, nil
}

func (s *scriptedInferencer) InferObject(_ context.Context, _, prompt string, _ json.RawMessage) (map[string]any, error) {
	s.prompts = append(s.prompts, prompt)
	return s.object, nil
}

// recordingTracker captures the issue request and returns canned data.
type recordingTracker struct {
	collaborators []string
	ref           *tools.IssueRef
	createErr     error
	lastRequest   *tools.IssueRequest
}

func (r *recordingTracker) CreateIssue(_ context.Context, req tools.IssueRequest) (*tools.IssueRef, error) {
	r.lastRequest = &req
	if r.createErr != nil {
		return nil, r.createErr
	}
	return r.ref, nil
}

func (r *recordingTracker) ListCollaborators(context.Context) ([]string, error) {
	return r.collaborators, nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newIssueEngine(t *testing.T, tracker *recordingTracker, inf *scriptedInferencer) *pipeline.Engine {
	t.Helper()

	rules, err := tools.NewRuleSet(tools.DefaultOwnershipRules())
	require.NoError(t, err)

	registry := tools.NewRegistry()
	require.NoError(t, registry.Register(tools.NewCreateIssueTool(tracker, discardLogger())))
	require.NoError(t, registry.Register(tools.NewListCollaboratorsTool(tracker)))
	require.NoError(t, registry.Register(tools.NewLookupOwnerTool(discardLogger(), rules)))

	return pipeline.NewEngine(registry, inf, validation.NewShapeValidator(), discardLogger())
}

func findingInput(resourceID string) map[string]any {
	return map[string]any{
		"securityIssue": map[string]any{
			"id":          "finding-001",
			"source":      "GuardDuty",
			"title":       "Security group allows unrestricted access",
			"description": "Port 22 open to 0.0.0.0/0",
			"severity":    "HIGH",
			"resourceId":  resourceID,
		},
		"resourceId": resourceID,
	}
}

func TestCreateIssue_ProdFindingAssignedToSecurityTeam(t *testing.T) {
	tracker := &recordingTracker{
		collaborators: []string{"securityTeam", "alice", "bob"},
		ref:           &tools.IssueRef{Number: 101, HTMLURL: "https://github.com/acme/infra/issues/101"},
	}
	inf := &scriptedInferencer{
		object: map[string]any{
			"title":           "Restrict SSH access on sg-prod-db",
			"description":     "The security group exposes port 22 to the internet.",
			"severity":        "HIGH",
			"estimatedEffort": "SMALL",
			"tags":            []any{"network", "ssh"},
		},
		// One text per inference step: determine_assignee, validate_assignee,
		// generate_remediation_steps, format_issue_body.
		texts: []string{
			"securityTeam",
			"securityTeam",
			"1. Remove the 0.0.0.0/0 ingress rule",
			"## Summary\nSSH is world-reachable.",
		},
	}

	engine := newIssueEngine(t, tracker, inf)
	outcome, err := engine.Run(context.Background(), NewCreateIssueDefinition(), findingInput("sg-prod-db"))
	require.NoError(t, err)
	require.True(t, outcome.Succeeded(), "outcome: %+v", outcome.Error)

	out, ok := outcome.Output.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, true, out["success"])
	assert.Equal(t, true, out["assigned"])
	assert.Equal(t, "securityTeam", out["assignee"])
	assert.Equal(t, "HIGH", out["severity"])
	assert.Equal(t, "SMALL", out["estimatedEffort"])
	assert.Equal(t, 101, out["issueNumber"])
	assert.Equal(t, "https://github.com/acme/infra/issues/101", out["issueUrl"])

	require.NotNil(t, tracker.lastRequest)
	assert.Equal(t, "Restrict SSH access on sg-prod-db", tracker.lastRequest.Title)
	assert.Equal(t, "## Summary\nSSH is world-reachable.", tracker.lastRequest.Body)
	assert.Equal(t, []string{"high", "guardduty", "network", "ssh"}, tracker.lastRequest.Labels)
	assert.Equal(t, "securityTeam", tracker.lastRequest.Assignee)
}

func TestCreateIssue_ResolvedOwnerReachesAssigneePrompt(t *testing.T) {
	tracker := &recordingTracker{
		collaborators: []string{"alice", "bob"},
		ref:           &tools.IssueRef{Number: 7, HTMLURL: "https://example.com/7"},
	}
	inf := &scriptedInferencer{
		object: map[string]any{
			"title":           "t",
			"description":     "d",
			"severity":        "LOW",
			"estimatedEffort": "SMALL",
			"tags":            []any{},
		},
		texts: []string{"alice", "alice", "steps", "body"},
	}

	engine := newIssueEngine(t, tracker, inf)
	outcome, err := engine.Run(context.Background(), NewCreateIssueDefinition(), findingInput("sg-dev-sandbox"))
	require.NoError(t, err)
	require.True(t, outcome.Succeeded())

	// prompts[1] is determine_assignee; the dev environment owner must be in it.
	require.GreaterOrEqual(t, len(inf.prompts), 2)
	assert.Contains(t, inf.prompts[1], `{"owner": "alice"}`)
	assert.Contains(t, inf.prompts[1], "alice, bob")
}

func TestCreateIssue_ExistingRemediationStepsReviewed(t *testing.T) {
	tracker := &recordingTracker{
		collaborators: []string{"alice"},
		ref:           &tools.IssueRef{Number: 1, HTMLURL: "https://example.com/1"},
	}
	inf := &scriptedInferencer{
		object: map[string]any{
			"title":           "t",
			"description":     "d",
			"severity":        "MEDIUM",
			"estimatedEffort": "MEDIUM",
			"tags":            []any{},
		},
		texts: []string{"alice", "alice", "reviewed steps", "body"},
	}

	input := findingInput("sg-test-runner")
	input["remediationSteps"] = []any{"Rotate the key", "Enable MFA"}

	engine := newIssueEngine(t, tracker, inf)
	outcome, err := engine.Run(context.Background(), NewCreateIssueDefinition(), input)
	require.NoError(t, err)
	require.True(t, outcome.Succeeded())

	// prompts[3] is generate_remediation_steps; it must take the review branch.
	require.GreaterOrEqual(t, len(inf.prompts), 4)
	assert.Contains(t, inf.prompts[3], "Review these existing remediation steps")
	assert.Contains(t, inf.prompts[3], "Rotate the key\nEnable MFA")
}

func TestCreateIssue_ToolFailureProducesFallback(t *testing.T) {
	tracker := &recordingTracker{
		collaborators: []string{"alice"},
		createErr:     assert.AnError,
	}
	inf := &scriptedInferencer{
		object: map[string]any{
			"title":           "t",
			"description":     "d",
			"severity":        "CRITICAL",
			"estimatedEffort": "LARGE",
			"tags":            []any{},
		},
		texts: []string{"alice", "alice", "steps", "body"},
	}

	engine := newIssueEngine(t, tracker, inf)
	outcome, err := engine.Run(context.Background(), NewCreateIssueDefinition(), findingInput("sg-prod-api"))
	require.NoError(t, err)

	assert.Equal(t, pipeline.RunFailed, outcome.Status)
	assert.Equal(t, "create_github_issue", outcome.FailedStep)

	out, ok := outcome.Output.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, false, out["success"])
	assert.Equal(t, false, out["assigned"])
	assert.Nil(t, out["assignee"])
	assert.Equal(t, "CRITICAL", out["severity"])
	assert.Contains(t, out["error"], "create_github_issue")

	// The failure variant conforms to the declared output shape too.
	v := validation.NewShapeValidator()
	require.NoError(t, v.Validate(outcome.Output, json.RawMessage(createIssueOutputShape)))
}

func TestCreateIssue_InputRejectedBeforeSteps(t *testing.T) {
	inf := &scriptedInferencer{}
	engine := newIssueEngine(t, &recordingTracker{}, inf)

	_, err := engine.Run(context.Background(), NewCreateIssueDefinition(), map[string]any{
		"resourceId": "sg-prod-db",
	})
	require.Error(t, err)
	assert.Empty(t, inf.prompts)
}

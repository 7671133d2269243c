// Package workflows holds the pipeline definitions shipped with the agent.
package workflows

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/opsgate/triago/internal/pipeline"
)

// CreateIssuePipeline is the name of the finding-to-issue pipeline.
const CreateIssuePipeline = "create_github_issue"

const createIssueInputShape = `{
  "type": "object",
  "required": ["securityIssue", "resourceId"],
  "properties": {
    "securityIssue": {
      "type": "object",
      "required": ["id", "source", "severity"],
      "properties": {
        "id": {"type": "string"},
        "source": {"type": "string", "enum": ["GuardDuty", "Lacework"]},
        "title": {"type": "string"},
        "description": {"type": "string"},
        "severity": {"type": "string", "enum": ["LOW", "MEDIUM", "HIGH", "CRITICAL"]},
        "detectedAt": {"type": "string"},
        "resourceId": {"type": "string"},
        "resourceType": {"type": "string"}
      }
    },
    "resourceId": {"type": "string"},
    "remediationSteps": {"type": "array", "items": {"type": "string"}},
    "assignee": {"type": "string"}
  }
}`

const createIssueOutputShape = `{
  "type": "object",
  "required": ["success", "assigned", "assignee", "severity"],
  "properties": {
    "success": {"type": "boolean"},
    "issueUrl": {"type": "string"},
    "issueNumber": {"type": "integer"},
    "assigned": {"type": "boolean"},
    "assignee": {"type": ["string", "null"]},
    "severity": {"type": "string", "enum": ["LOW", "MEDIUM", "HIGH", "CRITICAL"]},
    "estimatedEffort": {"type": "string", "enum": ["SMALL", "MEDIUM", "LARGE"]},
    "error": {"type": "string"}
  }
}`

const findingAnalysisShape = `{
  "type": "object",
  "required": ["title", "description", "severity", "estimatedEffort", "tags"],
  "properties": {
    "title": {"type": "string"},
    "description": {"type": "string"},
    "severity": {"type": "string", "enum": ["LOW", "MEDIUM", "HIGH", "CRITICAL"]},
    "suggestedAssignee": {"type": "string"},
    "estimatedEffort": {"type": "string", "enum": ["SMALL", "MEDIUM", "LARGE"]},
    "tags": {"type": "array", "items": {"type": "string"}}
  }
}`

const repoUsersShape = `{
  "type": "object",
  "required": ["users"],
  "properties": {
    "users": {"type": "array", "items": {"type": "string"}}
  }
}`

const resourceOwnerShape = `{
  "type": "object",
  "required": ["owner"],
  "properties": {
    "owner": {"type": "string"}
  }
}`

const usernameShape = `{"type": "string", "minLength": 1}`

const markdownShape = `{"type": "string", "minLength": 1}`

const createdIssueShape = `{
  "type": "object",
  "required": ["issueNumber", "issueUrl"],
  "properties": {
    "issueNumber": {"type": "integer"},
    "issueUrl": {"type": "string"},
    "assigned": {"type": "boolean"}
  }
}`

// NewCreateIssueDefinition builds the pipeline that turns a security finding
// into an assigned GitHub issue. The step chain analyzes the finding, resolves
// repository users and the resource owner, picks and validates an assignee,
// generates remediation steps and opens the issue.
func NewCreateIssueDefinition() *pipeline.Definition {
	return &pipeline.Definition{
		Name:        CreateIssuePipeline,
		InputShape:  json.RawMessage(createIssueInputShape),
		OutputShape: json.RawMessage(createIssueOutputShape),
		Steps: []pipeline.Step{
			{
				Name:        "analyze_security_finding",
				Kind:        pipeline.KindInference,
				OutputShape: json.RawMessage(findingAnalysisShape),
				Inference: &pipeline.InferenceCall{
					System: "You are a security expert analyzing cloud security findings. " +
						"Extract the key information from the finding, keeping the title concise but descriptive. " +
						"Determine severity based on potential impact. Suggest tags that would be helpful for categorization.",
					Prompt: analyzeFindingPrompt,
				},
			},
			{
				Name:        "get_github_users",
				Kind:        pipeline.KindTool,
				OutputShape: json.RawMessage(repoUsersShape),
				Tool:        &pipeline.ToolCall{Tool: "github.list_collaborators"},
			},
			{
				Name:        "get_resource_owner",
				Kind:        pipeline.KindTool,
				OutputShape: json.RawMessage(resourceOwnerShape),
				Tool: &pipeline.ToolCall{
					Tool: "aws.lookup_owner",
					Args: func(rc *pipeline.RunContext) (map[string]any, error) {
						return map[string]any{"resourceId": inputString(rc, "resourceId")}, nil
					},
				},
			},
			{
				Name:        "determine_assignee",
				Kind:        pipeline.KindInference,
				OutputShape: json.RawMessage(usernameShape),
				Inference: &pipeline.InferenceCall{
					System: "You are an expert at assigning security issues to the right team members.",
					Prompt: determineAssigneePrompt,
				},
			},
			{
				Name:        "validate_assignee",
				Kind:        pipeline.KindInference,
				OutputShape: json.RawMessage(usernameShape),
				Inference: &pipeline.InferenceCall{
					System: "You're validating GitHub usernames.",
					Prompt: validateAssigneePrompt,
				},
			},
			{
				Name:        "generate_remediation_steps",
				Kind:        pipeline.KindInference,
				OutputShape: json.RawMessage(markdownShape),
				Inference: &pipeline.InferenceCall{
					System: "You are a cloud security remediation expert. Provide clear, actionable steps to resolve security issues.",
					Prompt: remediationPrompt,
				},
			},
			{
				Name:        "format_issue_body",
				Kind:        pipeline.KindInference,
				OutputShape: json.RawMessage(markdownShape),
				Inference: &pipeline.InferenceCall{
					System: "You are a security documentation expert who creates clear, informative GitHub issues.",
					Prompt: issueBodyPrompt,
				},
			},
			{
				Name:        "create_github_issue",
				Kind:        pipeline.KindTool,
				OutputShape: json.RawMessage(createdIssueShape),
				Tool: &pipeline.ToolCall{
					Tool: "github.create_issue",
					Args: createIssueArgs,
				},
			},
		},
		Finalize:  finalizeCreateIssue,
		OnFailure: createIssueFallback,
	}
}

func analyzeFindingPrompt(rc *pipeline.RunContext) (string, error) {
	finding, err := json.MarshalIndent(rc.Input()["securityIssue"], "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode security finding: %w", err)
	}

	return fmt.Sprintf(`Analyze this security finding and structure it for a GitHub issue:
%s

Consider:
1. What is the specific vulnerability or risk?
2. What resource is affected? (%s)
3. How severe is this issue?
4. What tags would be appropriate for this issue?`,
		finding, inputString(rc, "resourceId")), nil
}

func determineAssigneePrompt(rc *pipeline.RunContext) (string, error) {
	analysis := rc.ObjectResult("analyze_security_finding")
	owner := rc.ObjectResult("get_resource_owner")

	ownerInfo := "No resource owner found"
	if name, _ := owner["owner"].(string); name != "" {
		ownerInfo = fmt.Sprintf(`{"owner": %q}`, name)
	}

	return fmt.Sprintf(`Based on this security issue, who would be the best person to assign from this list:
%s

Issue: %s
Severity: %s
Description: %s

Resource owner information: %s

If the resource owner has a GitHub account in the list, prefer assigning to them.
Otherwise, consider the nature of the issue and the appropriate expertise.

Reply with just the username of the best assignee, no explanation.`,
		strings.Join(repoUsers(rc), ", "),
		stringField(analysis, "title"),
		stringField(analysis, "severity"),
		stringField(analysis, "description"),
		ownerInfo), nil
}

func validateAssigneePrompt(rc *pipeline.RunContext) (string, error) {
	return fmt.Sprintf(`Does the username %q exist in this list of GitHub users?
%s

If yes, return the exact username as it appears in the list.
If no, return the username that looks most similar or appropriate from the list.
Reply with only the username, no explanation.`,
		rc.TextResult("determine_assignee"),
		strings.Join(repoUsers(rc), ", ")), nil
}

func remediationPrompt(rc *pipeline.RunContext) (string, error) {
	analysis := rc.ObjectResult("analyze_security_finding")
	title := stringField(analysis, "title")
	description := stringField(analysis, "description")
	severity := stringField(analysis, "severity")

	if existing := inputStrings(rc, "remediationSteps"); len(existing) > 0 {
		return fmt.Sprintf(`Review these existing remediation steps and ensure they are clear, actionable, and complete:
%s

For the security issue:
Title: %s
Description: %s
Severity: %s

If the steps are already good, return them as is.
If they need improvement, provide an improved version.
Format as a numbered list of steps.`,
			strings.Join(existing, "\n"), title, description, severity), nil
	}

	finding, _ := rc.Input()["securityIssue"].(map[string]any)
	return fmt.Sprintf(`Generate step-by-step remediation instructions for this security issue:
Title: %s
Description: %s
Severity: %s

Specifically for resource: %s
The issue was detected by: %s

Provide 3-5 clear steps that would resolve this security issue.
Format as a numbered list.`,
		title, description, severity,
		inputString(rc, "resourceId"),
		stringField(finding, "source")), nil
}

func issueBodyPrompt(rc *pipeline.RunContext) (string, error) {
	analysis := rc.ObjectResult("analyze_security_finding")
	finding, _ := rc.Input()["securityIssue"].(map[string]any)

	return fmt.Sprintf(`Create a detailed GitHub issue description for this security finding:

Title: %s
Severity: %s
Description: %s
Resource ID: %s
Source: %s

Include:
1. A brief summary of the issue
2. The potential impact of this vulnerability
3. Technical context about this type of vulnerability
4. How this issue was detected

Then add a section for remediation steps:
%s

Format using markdown with appropriate headers and sections.
End with a footer that indicates this issue was automatically created by the triago agent.`,
		stringField(analysis, "title"),
		stringField(analysis, "severity"),
		stringField(analysis, "description"),
		inputString(rc, "resourceId"),
		stringField(finding, "source"),
		rc.TextResult("generate_remediation_steps")), nil
}

func createIssueArgs(rc *pipeline.RunContext) (map[string]any, error) {
	analysis := rc.ObjectResult("analyze_security_finding")
	finding, _ := rc.Input()["securityIssue"].(map[string]any)

	labels := []string{
		strings.ToLower(stringField(analysis, "severity")),
		strings.ToLower(stringField(finding, "source")),
	}
	if tags, ok := analysis["tags"].([]any); ok {
		for _, tag := range tags {
			if s, ok := tag.(string); ok {
				labels = append(labels, s)
			}
		}
	}

	return map[string]any{
		"title":    stringField(analysis, "title"),
		"body":     rc.TextResult("format_issue_body"),
		"labels":   labels,
		"assignee": rc.TextResult("validate_assignee"),
	}, nil
}

func finalizeCreateIssue(rc *pipeline.RunContext) (any, error) {
	analysis := rc.ObjectResult("analyze_security_finding")
	created := rc.ObjectResult("create_github_issue")
	assignee := rc.TextResult("validate_assignee")

	out := map[string]any{
		"success":     true,
		"issueUrl":    created["issueUrl"],
		"issueNumber": created["issueNumber"],
		"assigned":    assignee != "",
		"severity":    stringField(analysis, "severity"),
	}
	if assignee != "" {
		out["assignee"] = assignee
	} else {
		out["assignee"] = nil
	}
	if effort := stringField(analysis, "estimatedEffort"); effort != "" {
		out["estimatedEffort"] = effort
	}
	return out, nil
}

// createIssueFallback shapes the output of a failed run, falling back to the
// input's own severity when the analysis step never completed.
func createIssueFallback(rc *pipeline.RunContext, failedStep string, cause error) any {
	severity := ""
	if analysis := rc.ObjectResult("analyze_security_finding"); analysis != nil {
		severity = stringField(analysis, "severity")
	}
	if severity == "" {
		if finding, ok := rc.Input()["securityIssue"].(map[string]any); ok {
			severity = stringField(finding, "severity")
		}
	}

	return map[string]any{
		"success":  false,
		"assigned": false,
		"assignee": nil,
		"severity": severity,
		"error":    fmt.Sprintf("step %s failed: %s", failedStep, cause.Error()),
	}
}

// repoUsers returns the collaborator logins fetched by get_github_users.
func repoUsers(rc *pipeline.RunContext) []string {
	result := rc.ObjectResult("get_github_users")
	switch users := result["users"].(type) {
	case []string:
		return users
	case []any:
		out := make([]string, 0, len(users))
		for _, u := range users {
			if s, ok := u.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

func inputString(rc *pipeline.RunContext, key string) string {
	s, _ := rc.Input()[key].(string)
	return s
}

func inputStrings(rc *pipeline.RunContext, key string) []string {
	switch v := rc.Input()[key].(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

func stringField(m map[string]any, key string) string {
	s, _ := m[key].(string)
	return s
}

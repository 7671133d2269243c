package tools

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/go-github/v66/github"

	"github.com/opsgate/triago/pkg/schema"
)

// IssueTracker is the slice of the GitHub API the tools depend on.
type IssueTracker interface {
	CreateIssue(ctx context.Context, req IssueRequest) (*IssueRef, error)
	ListCollaborators(ctx context.Context) ([]string, error)
}

// IssueRequest describes an issue to open.
type IssueRequest struct {
	Title    string
	Body     string
	Labels   []string
	Assignee string
}

// IssueRef identifies a created issue.
type IssueRef struct {
	Number  int    `json:"issueNumber"`
	HTMLURL string `json:"issueUrl"`
}

// GitHubTracker implements IssueTracker against a single repository.
type GitHubTracker struct {
	client *github.Client
	owner  string
	repo   string
}

// NewGitHubTracker creates a tracker for owner/repo. An empty token yields an
// unauthenticated client, enough for public read paths.
func NewGitHubTracker(owner, repo, token string) *GitHubTracker {
	client := github.NewClient(nil)
	if token != "" {
		client = client.WithAuthToken(token)
	}
	return &GitHubTracker{client: client, owner: owner, repo: repo}
}

// CreateIssue implements IssueTracker.
func (g *GitHubTracker) CreateIssue(ctx context.Context, req IssueRequest) (*IssueRef, error) {
	issueReq := &github.IssueRequest{
		Title: github.String(req.Title),
		Body:  github.String(req.Body),
	}
	if len(req.Labels) > 0 {
		issueReq.Labels = &req.Labels
	}
	if req.Assignee != "" {
		issueReq.Assignees = &[]string{req.Assignee}
	}

	issue, _, err := g.client.Issues.Create(ctx, g.owner, g.repo, issueReq)
	if err != nil {
		return nil, fmt.Errorf("create issue in %s/%s: %w", g.owner, g.repo, err)
	}

	return &IssueRef{
		Number:  issue.GetNumber(),
		HTMLURL: issue.GetHTMLURL(),
	}, nil
}

// ListCollaborators implements IssueTracker, returning collaborator logins.
func (g *GitHubTracker) ListCollaborators(ctx context.Context) ([]string, error) {
	opts := &github.ListCollaboratorsOptions{
		ListOptions: github.ListOptions{PerPage: 100},
	}

	var logins []string
	for {
		users, resp, err := g.client.Repositories.ListCollaborators(ctx, g.owner, g.repo, opts)
		if err != nil {
			return nil, fmt.Errorf("list collaborators of %s/%s: %w", g.owner, g.repo, err)
		}
		for _, u := range users {
			logins = append(logins, u.GetLogin())
		}
		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}
	return logins, nil
}

// CreateIssueTool opens a GitHub issue from pipeline step arguments.
type CreateIssueTool struct {
	tracker IssueTracker
	logger  *slog.Logger
}

func NewCreateIssueTool(tracker IssueTracker, logger *slog.Logger) *CreateIssueTool {
	return &CreateIssueTool{tracker: tracker, logger: logger}
}

func (t *CreateIssueTool) Name() string { return "github.create_issue" }

func (t *CreateIssueTool) Description() string {
	return "Creates a GitHub issue with title, body, labels and an optional assignee"
}

func (t *CreateIssueTool) Invoke(ctx context.Context, args map[string]any) (any, error) {
	title := stringParam(args, "title", "")
	if title == "" {
		return nil, schema.NewError(schema.ErrCodeValidation, "title is required").
			WithDetails(map[string]any{"tool": t.Name()})
	}

	req := IssueRequest{
		Title:    title,
		Body:     stringParam(args, "body", ""),
		Labels:   stringSliceParam(args, "labels"),
		Assignee: stringParam(args, "assignee", ""),
	}

	ref, err := t.tracker.CreateIssue(ctx, req)
	if err != nil {
		return nil, schema.NewError(schema.ErrCodeTool, "issue creation failed").WithCause(err)
	}

	t.logger.InfoContext(ctx, "issue created",
		slog.Int("issue_number", ref.Number),
		slog.String("assignee", req.Assignee),
	)

	return map[string]any{
		"issueNumber": ref.Number,
		"issueUrl":    ref.HTMLURL,
		"assigned":    req.Assignee != "",
	}, nil
}

// ListCollaboratorsTool returns the repository's collaborator logins.
type ListCollaboratorsTool struct {
	tracker IssueTracker
}

func NewListCollaboratorsTool(tracker IssueTracker) *ListCollaboratorsTool {
	return &ListCollaboratorsTool{tracker: tracker}
}

func (t *ListCollaboratorsTool) Name() string { return "github.list_collaborators" }

func (t *ListCollaboratorsTool) Description() string {
	return "Lists the usernames with access to the configured repository"
}

func (t *ListCollaboratorsTool) Invoke(ctx context.Context, _ map[string]any) (any, error) {
	logins, err := t.tracker.ListCollaborators(ctx)
	if err != nil {
		return nil, schema.NewError(schema.ErrCodeTool, "collaborator listing failed").WithCause(err)
	}
	if logins == nil {
		logins = []string{}
	}
	return map[string]any{"users": logins}, nil
}

package workflows

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/opsgate/triago/internal/pipeline"
	"github.com/opsgate/triago/internal/stats"
)

// IssueStatsPipeline is the name of the statistics reporting pipeline.
const IssueStatsPipeline = "get_issue_stats"

// recentActivityDays is the window of the per-day activity series.
const recentActivityDays = 7

// statsReportShape is the shape of the computed report, before the optional
// trend analysis is merged in by finalize.
const statsReportShape = `{
  "type": "object",
  "required": ["issuesToday", "issuesCreatedToday", "issuesAssignedToday", "severityBreakdown", "totalIssues", "totalCreated", "totalAssigned", "recentActivity"],
  "properties": {
    "issuesToday": {"type": "integer"},
    "issuesCreatedToday": {"type": "integer"},
    "issuesAssignedToday": {"type": "integer"},
    "severityBreakdown": {
      "type": "object",
      "required": ["low", "medium", "high", "critical"],
      "properties": {
        "low": {"type": "integer"},
        "medium": {"type": "integer"},
        "high": {"type": "integer"},
        "critical": {"type": "integer"}
      }
    },
    "totalIssues": {"type": "integer"},
    "totalCreated": {"type": "integer"},
    "totalAssigned": {"type": "integer"},
    "recentActivity": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["date", "issuesCreated", "issuesAssigned"],
        "properties": {
          "date": {"type": "string"},
          "issuesCreated": {"type": "integer"},
          "issuesAssigned": {"type": "integer"}
        }
      }
    }
  }
}`

const issueStatsOutputShape = `{
  "type": "object",
  "required": ["issuesToday", "issuesCreatedToday", "issuesAssignedToday", "severityBreakdown", "totalIssues", "totalCreated", "totalAssigned"],
  "properties": {
    "issuesToday": {"type": "integer"},
    "issuesCreatedToday": {"type": "integer"},
    "issuesAssignedToday": {"type": "integer"},
    "severityBreakdown": {
      "type": "object",
      "required": ["low", "medium", "high", "critical"],
      "properties": {
        "low": {"type": "integer"},
        "medium": {"type": "integer"},
        "high": {"type": "integer"},
        "critical": {"type": "integer"}
      }
    },
    "totalIssues": {"type": "integer"},
    "totalCreated": {"type": "integer"},
    "totalAssigned": {"type": "integer"},
    "recentActivity": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["date", "issuesCreated", "issuesAssigned"],
        "properties": {
          "date": {"type": "string"},
          "issuesCreated": {"type": "integer"},
          "issuesAssigned": {"type": "integer"}
        }
      }
    },
    "analysis": {
      "type": "object",
      "required": ["summary", "keyMetrics"],
      "properties": {
        "summary": {"type": "string"},
        "keyMetrics": {"type": "object", "additionalProperties": {"type": "string"}},
        "recommendations": {"type": "array", "items": {"type": "string"}}
      }
    }
  }
}`

const trendAnalysisShape = `{
  "type": "object",
  "required": ["summary", "keyMetrics"],
  "properties": {
    "summary": {"type": "string"},
    "keyMetrics": {"type": "object", "additionalProperties": {"type": "string"}},
    "recommendations": {"type": "array", "items": {"type": "string"}}
  }
}`

// NewIssueStatsDefinition builds the reporting pipeline over the given stats
// store. With analyzeTrends the raw numbers are followed by a model-written
// trend analysis; without it the pipeline is purely computational.
func NewIssueStatsDefinition(store *stats.Store, now func() time.Time, analyzeTrends bool) *pipeline.Definition {
	steps := []pipeline.Step{
		{
			Name:        "calculate_statistics",
			Kind:        pipeline.KindCompute,
			OutputShape: json.RawMessage(statsReportShape),
			Compute:     calculateStatistics(store, now),
		},
	}
	if analyzeTrends {
		steps = append(steps, pipeline.Step{
			Name:        "analyze_trends",
			Kind:        pipeline.KindInference,
			OutputShape: json.RawMessage(trendAnalysisShape),
			Inference: &pipeline.InferenceCall{
				System: "You are a data analyst examining security issue trends.",
				Prompt: trendPrompt,
			},
		})
	}

	return &pipeline.Definition{
		Name:        IssueStatsPipeline,
		OutputShape: json.RawMessage(issueStatsOutputShape),
		Steps:       steps,
		Finalize:    finalizeIssueStats,
	}
}

// calculateStatistics reads today's bucket, the all-time totals and the
// recent activity series in one step. Totals are recomputed from the daily
// buckets on every report.
func calculateStatistics(store *stats.Store, now func() time.Time) pipeline.ComputeFunc {
	return func(ctx context.Context, _ *pipeline.RunContext) (any, error) {
		current := now()

		today, err := store.Today(ctx, current)
		if err != nil {
			return nil, err
		}
		totals, err := store.AllTime(ctx)
		if err != nil {
			return nil, err
		}
		activity, err := store.LastNDays(ctx, current, recentActivityDays)
		if err != nil {
			return nil, err
		}

		recent := make([]any, 0, len(activity))
		for _, day := range activity {
			recent = append(recent, map[string]any{
				"date":           day.Date,
				"issuesCreated":  day.IssuesCreated,
				"issuesAssigned": day.IssuesAssigned,
			})
		}

		return map[string]any{
			"issuesToday":         today.IssuesSeen,
			"issuesCreatedToday":  today.IssuesCreated,
			"issuesAssignedToday": today.IssuesAssigned,
			"severityBreakdown": map[string]any{
				"low":      today.SeverityBreakdown.Low,
				"medium":   today.SeverityBreakdown.Medium,
				"high":     today.SeverityBreakdown.High,
				"critical": today.SeverityBreakdown.Critical,
			},
			"totalIssues":    totals.Issues,
			"totalCreated":   totals.Created,
			"totalAssigned":  totals.Assigned,
			"recentActivity": recent,
		}, nil
	}
}

func trendPrompt(rc *pipeline.RunContext) (string, error) {
	raw, err := json.MarshalIndent(rc.ObjectResult("calculate_statistics"), "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode statistics: %w", err)
	}

	return fmt.Sprintf(`Analyze these security issue statistics and identify key trends:
%s

Consider:
1. How today's issues compare to recent averages
2. The distribution of severity levels
3. The assignment rate

Provide a brief analysis of the patterns you see.`, raw), nil
}

// finalizeIssueStats merges the trend analysis into the report when present.
func finalizeIssueStats(rc *pipeline.RunContext) (any, error) {
	report := rc.ObjectResult("calculate_statistics")

	out := make(map[string]any, len(report)+1)
	for k, v := range report {
		out[k] = v
	}
	if analysis := rc.ObjectResult("analyze_trends"); analysis != nil {
		out["analysis"] = analysis
	}
	return out, nil
}

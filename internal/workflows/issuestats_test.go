package workflows

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opsgate/triago/internal/kv"
	"github.com/opsgate/triago/internal/pipeline"
	"github.com/opsgate/triago/internal/stats"
	"github.com/opsgate/triago/internal/tools"
	"github.com/opsgate/triago/internal/validation"
	"github.com/opsgate/triago/pkg/schema"
)

var statsDay = time.Date(2026, 8, 29, 10, 0, 0, 0, time.UTC)

func newStatsEngine(t *testing.T, inf *scriptedInferencer) (*pipeline.Engine, *stats.Store) {
	t.Helper()
	store := stats.NewStore(kv.NewMemoryKV(), discardLogger())
	engine := pipeline.NewEngine(tools.NewRegistry(), inf, validation.NewShapeValidator(), discardLogger())
	return engine, store
}

func seedStats(t *testing.T, store *stats.Store) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, store.RecordEvent(ctx, statsDay.AddDate(0, 0, -3), stats.Event{Created: true, Severity: schema.SeverityLow}))
	require.NoError(t, store.RecordEvent(ctx, statsDay, stats.Event{Created: true, Assigned: true, Severity: schema.SeverityHigh}))
	require.NoError(t, store.RecordEvent(ctx, statsDay, stats.Event{Created: true, Severity: schema.SeverityCritical}))
}

func TestIssueStats_WithoutTrendAnalysis(t *testing.T) {
	engine, store := newStatsEngine(t, &scriptedInferencer{})
	seedStats(t, store)

	def := NewIssueStatsDefinition(store, func() time.Time { return statsDay }, false)
	outcome, err := engine.Run(context.Background(), def, map[string]any{})
	require.NoError(t, err)
	require.True(t, outcome.Succeeded(), "outcome: %+v", outcome.Error)

	out, ok := outcome.Output.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, 2, out["issuesToday"])
	assert.Equal(t, 2, out["issuesCreatedToday"])
	assert.Equal(t, 1, out["issuesAssignedToday"])
	assert.Equal(t, 3, out["totalIssues"])
	assert.Equal(t, 3, out["totalCreated"])
	assert.Equal(t, 1, out["totalAssigned"])

	breakdown, ok := out["severityBreakdown"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, 1, breakdown["high"])
	assert.Equal(t, 1, breakdown["critical"])
	assert.Equal(t, 0, breakdown["low"])

	recent, ok := out["recentActivity"].([]any)
	require.True(t, ok)
	require.Len(t, recent, recentActivityDays)

	oldest := recent[0].(map[string]any)
	newest := recent[len(recent)-1].(map[string]any)
	assert.Equal(t, "2026-08-23", oldest["date"])
	assert.Equal(t, "2026-08-29", newest["date"])
	assert.Equal(t, 2, newest["issuesCreated"])

	// No trend step was declared, so no analysis key appears.
	_, hasAnalysis := out["analysis"]
	assert.False(t, hasAnalysis)
}

func TestIssueStats_WithTrendAnalysis(t *testing.T) {
	inf := &scriptedInferencer{
		object: map[string]any{
			"summary": "Creation is trending up, assignment rate is 50%.",
			"keyMetrics": map[string]any{
				"assignmentRate": "50%",
			},
			"recommendations": []any{"Assign the unowned critical issue."},
		},
	}
	engine, store := newStatsEngine(t, inf)
	seedStats(t, store)

	def := NewIssueStatsDefinition(store, func() time.Time { return statsDay }, true)
	outcome, err := engine.Run(context.Background(), def, map[string]any{})
	require.NoError(t, err)
	require.True(t, outcome.Succeeded(), "outcome: %+v", outcome.Error)

	out := outcome.Output.(map[string]any)
	analysis, ok := out["analysis"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "Creation is trending up, assignment rate is 50%.", analysis["summary"])

	// The trend prompt carries the computed numbers.
	require.Len(t, inf.prompts, 1)
	assert.Contains(t, inf.prompts[0], `"totalIssues": 3`)
}

func TestIssueStats_EmptyStore(t *testing.T) {
	engine, store := newStatsEngine(t, &scriptedInferencer{})

	def := NewIssueStatsDefinition(store, func() time.Time { return statsDay }, false)
	outcome, err := engine.Run(context.Background(), def, map[string]any{})
	require.NoError(t, err)
	require.True(t, outcome.Succeeded())

	out := outcome.Output.(map[string]any)
	assert.Equal(t, 0, out["issuesToday"])
	assert.Equal(t, 0, out["totalIssues"])

	recent := out["recentActivity"].([]any)
	assert.Len(t, recent, recentActivityDays)
}

func TestIssueStats_EveryStepDeclaresOutputShape(t *testing.T) {
	store := stats.NewStore(kv.NewMemoryKV(), discardLogger())

	def := NewIssueStatsDefinition(store, func() time.Time { return statsDay }, true)
	require.Len(t, def.Steps, 2)
	for _, step := range def.Steps {
		assert.NotEmpty(t, step.OutputShape, "step %q", step.Name)
	}
}

func TestIssueStats_ReportConformsToStepShape(t *testing.T) {
	_, store := newStatsEngine(t, &scriptedInferencer{})
	seedStats(t, store)

	report, err := calculateStatistics(store, func() time.Time { return statsDay })(context.Background(), nil)
	require.NoError(t, err)

	v := validation.NewShapeValidator()
	require.NoError(t, v.Validate(report, json.RawMessage(statsReportShape)))
}

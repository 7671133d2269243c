// Package agent wires the pipelines to the stats store behind one service
// surface used by every inbound channel.
package agent

import (
	"context"
	"log/slog"
	"time"

	"github.com/opsgate/triago/internal/pipeline"
	"github.com/opsgate/triago/internal/stats"
	"github.com/opsgate/triago/pkg/schema"
)

// Service runs the shipped pipelines and owns the recording discipline: only
// a successful issue-creation run produces a stats event, so a failed run can
// never skew the counters.
type Service struct {
	engine   *pipeline.Engine
	stats    *stats.Store
	issueDef *pipeline.Definition
	statsDef *pipeline.Definition
	now      func() time.Time
	logger   *slog.Logger
}

// NewService creates the service. The definitions are built once and shared
// across runs.
func NewService(engine *pipeline.Engine, statsStore *stats.Store, issueDef, statsDef *pipeline.Definition, logger *slog.Logger) *Service {
	return &Service{
		engine:   engine,
		stats:    statsStore,
		issueDef: issueDef,
		statsDef: statsDef,
		now:      time.Now,
		logger:   logger,
	}
}

// ProcessFinding runs the issue-creation pipeline on a finding payload and,
// when the run succeeds, records the result into the stats store. A failed
// run returns its outcome untouched by the store.
func (s *Service) ProcessFinding(ctx context.Context, input map[string]any) (*pipeline.Outcome, error) {
	outcome, err := s.engine.Run(ctx, s.issueDef, input)
	if err != nil {
		return nil, err
	}
	if !outcome.Succeeded() {
		return outcome, nil
	}

	ev := stats.Event{Created: true}
	if out, ok := outcome.Output.(map[string]any); ok {
		ev.Assigned, _ = out["assigned"].(bool)
		ev.Severity, _ = out["severity"].(string)
	}
	if ev.Severity != "" && !schema.KnownSeverity(ev.Severity) {
		s.logger.WarnContext(ctx, "unrecognized severity, excluded from breakdown",
			slog.String("severity", ev.Severity))
	}

	if err := s.stats.RecordEvent(ctx, s.now(), ev); err != nil {
		// The issue exists even if the counter write failed; surface the
		// store error without discarding the outcome.
		s.logger.ErrorContext(ctx, "stats recording failed", slog.String("error", err.Error()))
		return outcome, err
	}
	return outcome, nil
}

// StatsReport runs the reporting pipeline and returns its output.
func (s *Service) StatsReport(ctx context.Context) (*pipeline.Outcome, error) {
	return s.engine.Run(ctx, s.statsDef, map[string]any{})
}

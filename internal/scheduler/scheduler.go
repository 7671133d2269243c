// Package scheduler runs recurring jobs, such as the daily stats report, on
// cron expressions.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// JobFunc is the body of a scheduled job.
type JobFunc func(ctx context.Context) error

// tickInterval is how often due jobs are checked.
const tickInterval = 60 * time.Second

type job struct {
	name     string
	schedule cron.Schedule
	fn       JobFunc

	mu      sync.Mutex
	nextRun time.Time
}

// Scheduler runs registered jobs when their cron schedule is due. A job that
// is still running when its next slot arrives is skipped, not stacked.
type Scheduler struct {
	parser cron.Parser
	logger *slog.Logger
	now    func() time.Time

	mu     sync.Mutex
	jobs   []*job
	cancel context.CancelFunc
	done   chan struct{}

	inflightMu sync.Mutex
	inflight   map[string]struct{}
}

// NewScheduler creates an empty Scheduler.
func NewScheduler(logger *slog.Logger) *Scheduler {
	return &Scheduler{
		parser:   cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow),
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
		inflight: make(map[string]struct{}),
	}
}

// AddJob registers a job under a standard five-field cron expression.
func (s *Scheduler) AddJob(name, cronExpr string, fn JobFunc) error {
	schedule, err := s.parser.Parse(cronExpr)
	if err != nil {
		return fmt.Errorf("parse cron expression %q: %w", cronExpr, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs = append(s.jobs, &job{
		name:     name,
		schedule: schedule,
		fn:       fn,
		nextRun:  schedule.Next(s.now()),
	})
	return nil
}

// Start launches the background scheduling loop.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.done != nil {
		s.mu.Unlock()
		return fmt.Errorf("scheduler already started")
	}

	schedCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	s.mu.Unlock()

	go s.loop(schedCtx)
	s.logger.Info("scheduler started", slog.Int("jobs", len(s.jobs)))
	return nil
}

func (s *Scheduler) loop(ctx context.Context) {
	defer close(s.done)

	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

// tick runs every job whose schedule is due.
func (s *Scheduler) tick(ctx context.Context) {
	now := s.now()

	s.mu.Lock()
	due := make([]*job, 0, len(s.jobs))
	for _, j := range s.jobs {
		j.mu.Lock()
		if !j.nextRun.After(now) {
			j.nextRun = j.schedule.Next(now)
			due = append(due, j)
		}
		j.mu.Unlock()
	}
	s.mu.Unlock()

	for _, j := range due {
		if !s.tryAcquire(j.name) {
			s.logger.Warn("scheduled job still running, skipping", slog.String("job", j.name))
			continue
		}
		s.runJob(ctx, j)
		s.release(j.name)
	}
}

func (s *Scheduler) runJob(ctx context.Context, j *job) {
	started := s.now()
	s.logger.Info("running scheduled job", slog.String("job", j.name))

	if err := j.fn(ctx); err != nil {
		s.logger.Error("scheduled job failed",
			slog.String("job", j.name),
			slog.String("error", err.Error()),
		)
		return
	}

	s.logger.Info("scheduled job completed",
		slog.String("job", j.name),
		slog.Int64("duration_ms", s.now().Sub(started).Milliseconds()),
	)
}

// tryAcquire marks a job as in-flight unless it already is.
func (s *Scheduler) tryAcquire(name string) bool {
	s.inflightMu.Lock()
	defer s.inflightMu.Unlock()
	if _, ok := s.inflight[name]; ok {
		return false
	}
	s.inflight[name] = struct{}{}
	return true
}

func (s *Scheduler) release(name string) {
	s.inflightMu.Lock()
	defer s.inflightMu.Unlock()
	delete(s.inflight, name)
}

// NextRun returns the next scheduled time of a named job.
func (s *Scheduler) NextRun(name string) (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, j := range s.jobs {
		if j.name == name {
			j.mu.Lock()
			next := j.nextRun
			j.mu.Unlock()
			return next, true
		}
	}
	return time.Time{}, false
}

// Stop gracefully shuts down the scheduler.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel == nil {
		return nil
	}

	s.cancel()
	<-s.done
	s.cancel = nil
	s.done = nil

	s.logger.Info("scheduler stopped")
	return nil
}

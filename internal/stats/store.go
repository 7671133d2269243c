package stats

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/opsgate/triago/internal/kv"
	"github.com/opsgate/triago/pkg/schema"
)

// Event describes one completed pipeline run for recording.
type Event struct {
	Created  bool
	Assigned bool
	Severity string
}

// Store records per-run events into daily buckets and answers aggregate
// queries. The KV substrate offers no atomic increment and no multi-key
// transaction, so every read-modify-write for a given day is serialized
// through that day's owner lock: concurrent recorders for the same day queue
// behind each other instead of racing, which makes the classic lost update
// impossible. Distinct days never contend.
type Store struct {
	kv     kv.KV
	logger *slog.Logger

	mu    sync.Mutex
	byDay map[string]*sync.Mutex
}

// NewStore creates a Store over the given substrate.
func NewStore(store kv.KV, logger *slog.Logger) *Store {
	return &Store{
		kv:     store,
		logger: logger,
		byDay:  make(map[string]*sync.Mutex),
	}
}

// dayLock returns the owner lock for a day key, creating it on first use.
func (s *Store) dayLock(key string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.byDay[key]
	if !ok {
		l = &sync.Mutex{}
		s.byDay[key] = l
	}
	return l
}

// RecordEvent records one event into the bucket for the calendar day of `day`.
// IssuesSeen is bumped always, IssuesCreated/IssuesAssigned per the event
// flags, and the severity breakdown only for recognized levels. An
// unrecognized severity therefore counts in seen/created but not in the
// breakdown. Substrate errors propagate unchanged; a silently dropped write
// would itself be a lost update.
func (s *Store) RecordEvent(ctx context.Context, day time.Time, ev Event) error {
	key := dayKey(day)

	l := s.dayLock(key)
	l.Lock()
	defer l.Unlock()

	bucket, err := s.loadBucket(ctx, key, day.Format(dateLayout))
	if err != nil {
		return err
	}

	bucket.IssuesSeen++
	if ev.Created {
		bucket.IssuesCreated++
		bucket.SeverityBreakdown.bump(strings.ToUpper(ev.Severity))
	}
	if ev.Assigned {
		bucket.IssuesAssigned++
	}

	raw, err := json.Marshal(bucket)
	if err != nil {
		return schema.NewError(schema.ErrCodeStore, "marshal daily bucket").WithCause(err)
	}
	if err := s.kv.Put(ctx, key, string(raw)); err != nil {
		return schema.NewErrorf(schema.ErrCodeStore, "store daily bucket %s", bucket.Date).WithCause(err)
	}

	s.logger.DebugContext(ctx, "stats event recorded",
		slog.String("date", bucket.Date),
		slog.Bool("created", ev.Created),
		slog.Bool("assigned", ev.Assigned),
		slog.String("severity", ev.Severity),
	)
	return nil
}

// Today returns the bucket for the calendar day of now, zero-valued when no
// event has been recorded yet.
func (s *Store) Today(ctx context.Context, now time.Time) (*DailyBucket, error) {
	return s.loadBucket(ctx, dayKey(now), now.Format(dateLayout))
}

// AllTime folds over every stored bucket, summing each numeric field.
// Recomputation on read keeps the daily buckets the single source of truth;
// there is no separately stored running total to drift.
func (s *Store) AllTime(ctx context.Context) (*Totals, error) {
	keys, err := s.kv.Keys(ctx, dayKeyPrefix)
	if err != nil {
		return nil, schema.NewError(schema.ErrCodeStore, "list daily buckets").WithCause(err)
	}

	totals := &Totals{}
	for _, key := range keys {
		bucket, err := s.loadBucket(ctx, key, strings.TrimPrefix(key, dayKeyPrefix))
		if err != nil {
			return nil, err
		}
		totals.Issues += bucket.IssuesSeen
		totals.Created += bucket.IssuesCreated
		totals.Assigned += bucket.IssuesAssigned
		totals.SeverityBreakdown.add(bucket.SeverityBreakdown)
	}
	return totals, nil
}

// LastNDays returns exactly n entries, one per calendar day ending with the
// day of now, zero-filled for days without events, ordered oldest to newest.
func (s *Store) LastNDays(ctx context.Context, now time.Time, n int) ([]DayActivity, error) {
	activity := make([]DayActivity, 0, n)
	for i := n - 1; i >= 0; i-- {
		day := now.AddDate(0, 0, -i)
		bucket, err := s.loadBucket(ctx, dayKey(day), day.Format(dateLayout))
		if err != nil {
			return nil, err
		}
		activity = append(activity, DayActivity{
			Date:           bucket.Date,
			IssuesCreated:  bucket.IssuesCreated,
			IssuesAssigned: bucket.IssuesAssigned,
		})
	}
	return activity, nil
}

// loadBucket reads and decodes one bucket, returning a zero bucket for the
// given date when the key is absent.
func (s *Store) loadBucket(ctx context.Context, key, date string) (*DailyBucket, error) {
	raw, ok, err := s.kv.Get(ctx, key)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeStore, "load daily bucket %s", date).WithCause(err)
	}
	if !ok {
		return &DailyBucket{Date: date}, nil
	}

	bucket := &DailyBucket{}
	if err := json.Unmarshal([]byte(raw), bucket); err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeStore, "decode daily bucket %s", date).WithCause(err)
	}
	if bucket.Date == "" {
		bucket.Date = date
	}
	return bucket, nil
}

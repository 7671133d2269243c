package stats

import (
	"time"

	"github.com/opsgate/triago/pkg/schema"
)

// dayKeyPrefix namespaces daily bucket keys in the KV substrate.
const dayKeyPrefix = "stats:day:"

// dateLayout is the calendar-day key format (process-local clock).
const dateLayout = "2006-01-02"

// Breakdown counts created issues per recognized severity level.
type Breakdown struct {
	Low      int `json:"low"`
	Medium   int `json:"medium"`
	High     int `json:"high"`
	Critical int `json:"critical"`
}

func (b *Breakdown) add(other Breakdown) {
	b.Low += other.Low
	b.Medium += other.Medium
	b.High += other.High
	b.Critical += other.Critical
}

// bump increments the bucket matching severity. Unrecognized severities are
// deliberately left out of the breakdown; they still count in the bucket
// totals. Callers relying on the breakdown-sum property must feed recognized
// levels only.
func (b *Breakdown) bump(severity string) {
	switch severity {
	case schema.SeverityLow:
		b.Low++
	case schema.SeverityMedium:
		b.Medium++
	case schema.SeverityHigh:
		b.High++
	case schema.SeverityCritical:
		b.Critical++
	}
}

// DailyBucket is the per-calendar-day aggregate record. It is the single
// source of truth: all-time totals are recomputed from buckets on read, never
// stored separately.
type DailyBucket struct {
	Date              string    `json:"date"`
	IssuesSeen        int       `json:"issuesSeen"`
	IssuesCreated     int       `json:"issuesCreated"`
	IssuesAssigned    int       `json:"issuesAssigned"`
	SeverityBreakdown Breakdown `json:"severityBreakdown"`
}

// Totals is the reduction of every stored bucket.
type Totals struct {
	Issues            int       `json:"totalIssues"`
	Created           int       `json:"totalCreated"`
	Assigned          int       `json:"totalAssigned"`
	SeverityBreakdown Breakdown `json:"severityBreakdown"`
}

// DayActivity is one entry of a last-N-days query.
type DayActivity struct {
	Date           string `json:"date"`
	IssuesCreated  int    `json:"issuesCreated"`
	IssuesAssigned int    `json:"issuesAssigned"`
}

// dayKey returns the KV key for the calendar day of t.
func dayKey(t time.Time) string {
	return dayKeyPrefix + t.Format(dateLayout)
}

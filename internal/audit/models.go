package audit

import (
	"time"
)

// Entry is an immutable, append-only audit log record.
//
// Invariants:
// - Entries are never updated. The only delete path is the retention sweep.
// - RecordID is a weak reference; the record may no longer exist.
// - UserID 0 means the action was taken by the system (scheduled jobs).
type Entry struct {
	ID          int64          `json:"id"`
	RecordID    int64          `json:"record_id"`
	UserID      int64          `json:"user_id"`
	Action      string         `json:"action"`
	Description string         `json:"description"`
	Severity    Severity       `json:"severity"`
	IP          string         `json:"ip,omitempty"`
	UserAgent   string         `json:"user_agent,omitempty"`
	Before      Snapshot       `json:"before,omitempty"`
	After       Snapshot       `json:"after,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
}

// Snapshot is the tracked attribute set of a record at one point in time.
type Snapshot map[string]string

// Change is one field difference between two snapshots.
type Change struct {
	Old string `json:"old"`
	New string `json:"new"`
}

type Severity int

const (
	SeverityDebug    Severity = 1
	SeverityInfo     Severity = 2
	SeverityNotice   Severity = 3
	SeverityWarning  Severity = 4
	SeverityError    Severity = 5
	SeverityCritical Severity = 6
)

// severityRetained is the lowest severity kept forever by the retention sweep.
const severityRetained = SeverityError

var severityNames = map[Severity]string{
	SeverityDebug:    "debug",
	SeverityInfo:     "info",
	SeverityNotice:   "notice",
	SeverityWarning:  "warning",
	SeverityError:    "error",
	SeverityCritical: "critical",
}

func (s Severity) String() string {
	if n, ok := severityNames[s]; ok {
		return n
	}
	return "unknown"
}

func (s Severity) Valid() bool { return s >= SeverityDebug && s <= SeverityCritical }

func ParseSeverity(name string) (Severity, bool) {
	for s, n := range severityNames {
		if n == name {
			return s, true
		}
	}
	return 0, false
}

// ReportFilter narrows Report. Zero values match everything.
type ReportFilter struct {
	UserID int64
	Action string
	From   time.Time
	To     time.Time
}

// ReportRow aggregates entries of one action.
type ReportRow struct {
	Action          string `json:"action"`
	Label           string `json:"label"`
	Total           int    `json:"total"`
	UniqueUsers     int    `json:"unique_users"`
	RecordsAffected int    `json:"records_affected"`
}

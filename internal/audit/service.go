package audit

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"protocolo-municipal/internal/identity"
)

// Repository is the persistence contract for audit entries.
//
// It is append-only. DeleteBefore exists solely for the retention sweep.
type Repository interface {
	Append(ctx context.Context, e *Entry) error
	ByRecord(ctx context.Context, recordID int64, limit int) ([]Entry, error)
	ByUser(ctx context.Context, userID int64, limit int) ([]Entry, error)
	Report(ctx context.Context, f ReportFilter) ([]ReportRow, error)
	// DeleteBefore removes entries created before cutoff whose severity is below keepFrom.
	DeleteBefore(ctx context.Context, cutoff time.Time, keepFrom Severity) (int64, error)
}

// Service writes and queries the audit trail.
//
// Callers should treat Log as best-effort: a failed write is logged and
// returned, never a reason to abort the operation being audited.
type Service struct {
	repo      Repository
	ids       *identity.Provider
	log       *slog.Logger
	clock     func() time.Time
	retention time.Duration
}

const (
	// DefaultRetentionYears applies when no fixed window is set. Calendar
	// years, so leap days never shorten the window.
	DefaultRetentionYears = 2
	defaultLimit          = 50
	maxLimit              = 1000
)

var ErrInvalidEntry = errors.New("audit: invalid entry")

func NewService(repo Repository, ids *identity.Provider, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{repo: repo, ids: ids, log: log, clock: time.Now}
}

// SetRetention replaces the calendar default with a fixed window.
// Zero or negative restores the default.
func (s *Service) SetRetention(d time.Duration) {
	s.retention = max(d, 0)
}

func (s *Service) retentionCutoff() time.Time {
	now := s.clock().UTC()
	if s.retention > 0 {
		return now.Add(-s.retention)
	}
	return now.AddDate(-DefaultRetentionYears, 0, 0)
}

// Options carries the optional fields of Log.
type Options struct {
	Description string
	// Severity defaults to SeverityInfo.
	Severity Severity
	Before   Snapshot
	After    Snapshot
	Metadata map[string]any
}

// Log appends one entry for recordID and returns its id.
// The acting user, IP and user agent are taken from ctx.
func (s *Service) Log(ctx context.Context, recordID int64, action string, opts Options) (int64, error) {
	if s.repo == nil {
		return 0, errors.New("audit: repository not configured")
	}
	action = strings.TrimSpace(action)
	if action == "" {
		return 0, ErrInvalidEntry
	}

	sev := opts.Severity
	if sev == 0 {
		sev = SeverityInfo
	}
	if !sev.Valid() {
		return 0, ErrInvalidEntry
	}
	desc := opts.Description
	if desc == "" {
		desc = Label(action)
	}

	ip, ua := RequestInfoFromContext(ctx)
	e := Entry{
		RecordID:    recordID,
		Action:      action,
		Description: desc,
		Severity:    sev,
		IP:          ip,
		UserAgent:   ua,
		Before:      opts.Before,
		After:       opts.After,
		Metadata:    opts.Metadata,
		CreatedAt:   s.clock().UTC(),
	}
	if s.ids != nil {
		e.UserID = s.ids.CurrentUserID(ctx)
	}

	if err := s.repo.Append(ctx, &e); err != nil {
		s.log.Warn("audit append failed", "record_id", recordID, "action", action, "err", err)
		return 0, err
	}
	return e.ID, nil
}

// RecordLog returns the trail of one record, newest first.
func (s *Service) RecordLog(ctx context.Context, recordID int64, limit int) ([]Entry, error) {
	return s.repo.ByRecord(ctx, recordID, clampLimit(limit))
}

// UserLog returns the actions of one user, newest first.
func (s *Service) UserLog(ctx context.Context, userID int64, limit int) ([]Entry, error) {
	return s.repo.ByUser(ctx, userID, clampLimit(limit))
}

// Report groups entries by action, ordered by total descending.
func (s *Service) Report(ctx context.Context, f ReportFilter) ([]ReportRow, error) {
	rows, err := s.repo.Report(ctx, f)
	if err != nil {
		return nil, err
	}
	for i := range rows {
		rows[i].Label = Label(rows[i].Action)
	}
	return rows, nil
}

// CleanupOldLogs deletes entries older than the retention window unless
// their severity is error or critical. Safe to run repeatedly.
func (s *Service) CleanupOldLogs(ctx context.Context) (int64, error) {
	cutoff := s.retentionCutoff()
	n, err := s.repo.DeleteBefore(ctx, cutoff, severityRetained)
	if err != nil {
		return 0, err
	}
	s.log.Info("audit retention sweep", "deleted", n, "cutoff", cutoff)
	return n, nil
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return defaultLimit
	}
	if limit > maxLimit {
		return maxLimit
	}
	return limit
}

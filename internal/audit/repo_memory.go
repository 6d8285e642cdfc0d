package audit

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"
)

// MemoryRepo is a simple in-memory append-only repository useful for tests.
// It is not intended for production use.
type MemoryRepo struct {
	mu      sync.Mutex
	nextID  int64
	entries []Entry

	// Fail makes Append return an error, simulating an unavailable store.
	Fail bool
}

func NewMemoryRepo() *MemoryRepo { return &MemoryRepo{} }

var errStoreUnavailable = errors.New("audit: store unavailable")

func (r *MemoryRepo) Append(ctx context.Context, e *Entry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Fail {
		return errStoreUnavailable
	}
	r.nextID++
	e.ID = r.nextID
	r.entries = append(r.entries, *e)
	return nil
}

// Entries returns a copy of all entries in insertion order.
func (r *MemoryRepo) Entries() []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Entry, len(r.entries))
	copy(out, r.entries)
	return out
}

func (r *MemoryRepo) ByRecord(ctx context.Context, recordID int64, limit int) ([]Entry, error) {
	return r.newest(func(e Entry) bool { return e.RecordID == recordID }, limit), nil
}

func (r *MemoryRepo) ByUser(ctx context.Context, userID int64, limit int) ([]Entry, error) {
	return r.newest(func(e Entry) bool { return e.UserID == userID }, limit), nil
}

func (r *MemoryRepo) newest(match func(Entry) bool, limit int) []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Entry
	for i := len(r.entries) - 1; i >= 0; i-- {
		if match(r.entries[i]) {
			out = append(out, r.entries[i])
			if limit > 0 && len(out) == limit {
				break
			}
		}
	}
	return out
}

func (r *MemoryRepo) Report(ctx context.Context, f ReportFilter) ([]ReportRow, error) {
	type agg struct {
		total   int
		users   map[int64]struct{}
		records map[int64]struct{}
	}
	r.mu.Lock()
	byAction := make(map[string]*agg)
	for _, e := range r.entries {
		if !f.match(e) {
			continue
		}
		a, ok := byAction[e.Action]
		if !ok {
			a = &agg{users: map[int64]struct{}{}, records: map[int64]struct{}{}}
			byAction[e.Action] = a
		}
		a.total++
		a.users[e.UserID] = struct{}{}
		a.records[e.RecordID] = struct{}{}
	}
	r.mu.Unlock()

	out := make([]ReportRow, 0, len(byAction))
	for action, a := range byAction {
		out = append(out, ReportRow{
			Action:          action,
			Total:           a.total,
			UniqueUsers:     len(a.users),
			RecordsAffected: len(a.records),
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Total != out[j].Total {
			return out[i].Total > out[j].Total
		}
		return out[i].Action < out[j].Action
	})
	return out, nil
}

func (r *MemoryRepo) DeleteBefore(ctx context.Context, cutoff time.Time, keepFrom Severity) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	kept := r.entries[:0]
	var n int64
	for _, e := range r.entries {
		if e.CreatedAt.Before(cutoff) && e.Severity < keepFrom {
			n++
			continue
		}
		kept = append(kept, e)
	}
	r.entries = kept
	return n, nil
}

func (f ReportFilter) match(e Entry) bool {
	if f.UserID != 0 && e.UserID != f.UserID {
		return false
	}
	if f.Action != "" && e.Action != f.Action {
		return false
	}
	if !f.From.IsZero() && e.CreatedAt.Before(f.From) {
		return false
	}
	if !f.To.IsZero() && e.CreatedAt.After(f.To) {
		return false
	}
	return true
}

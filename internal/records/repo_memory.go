package records

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore is an in-memory Store used by tests and the local profile.
type MemoryStore struct {
	Hooks

	mu     sync.Mutex
	nextID int64
	rows   map[int64]Record
	clock  func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{rows: make(map[int64]Record), clock: time.Now}
}

func (s *MemoryStore) Get(ctx context.Context, id int64) (Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rows[id]
	if !ok {
		return Record{}, ErrNotFound
	}
	return r, nil
}

func (s *MemoryStore) Query(ctx context.Context, f Filter) ([]Record, error) {
	s.mu.Lock()
	out := make([]Record, 0, len(s.rows))
	for _, r := range s.rows {
		if f.match(r) {
			out = append(out, r)
		}
	}
	s.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (s *MemoryStore) Create(ctx context.Context, r *Record) error {
	now := s.clock().UTC()

	s.mu.Lock()
	s.nextID++
	r.ID = s.nextID
	defaults(r)
	r.CreatedAt = now
	r.UpdatedAt = now
	s.rows[r.ID] = *r
	after := *r
	s.mu.Unlock()

	s.fireSaved(ctx, SaveEvent{After: after, Created: true})
	return nil
}

func (s *MemoryStore) Update(ctx context.Context, r Record) error {
	s.mu.Lock()
	before, ok := s.rows[r.ID]
	if !ok {
		s.mu.Unlock()
		return ErrNotFound
	}
	r.CreatedAt = before.CreatedAt
	r.CreatedBy = before.CreatedBy
	r.UpdatedAt = s.clock().UTC()
	s.rows[r.ID] = r
	s.mu.Unlock()

	s.fireSaved(ctx, SaveEvent{Before: &before, After: r})
	return nil
}

func (s *MemoryStore) Delete(ctx context.Context, id int64) error {
	s.mu.Lock()
	before, ok := s.rows[id]
	if !ok {
		s.mu.Unlock()
		return ErrNotFound
	}
	delete(s.rows, id)
	s.mu.Unlock()

	s.fireDeleted(ctx, before)
	return nil
}

func (s *MemoryStore) SetAttributes(ctx context.Context, id int64, p Patch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rows[id]
	if !ok {
		return ErrNotFound
	}
	if p.IsEmpty() {
		return nil
	}
	p.Apply(&r)
	r.UpdatedAt = s.clock().UTC()
	s.rows[id] = r
	return nil
}

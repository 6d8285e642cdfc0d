package notify

import (
	"context"
	"sync"
)

// MemoryInbox is an in-memory InboxRepository useful for tests.
type MemoryInbox struct {
	mu     sync.Mutex
	nextID int64
	items  []InboxItem
}

func NewMemoryInbox() *MemoryInbox { return &MemoryInbox{} }

func (m *MemoryInbox) Insert(ctx context.Context, item *InboxItem) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	item.ID = m.nextID
	m.items = append(m.items, *item)
	return nil
}

func (m *MemoryInbox) ListForUser(ctx context.Context, userID int64, unreadOnly bool, limit int) ([]InboxItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []InboxItem
	for i := len(m.items) - 1; i >= 0; i-- {
		it := m.items[i]
		if it.UserID != userID || (unreadOnly && it.Read) {
			continue
		}
		out = append(out, it)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (m *MemoryInbox) MarkRead(ctx context.Context, userID, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.items {
		if m.items[i].ID == id && m.items[i].UserID == userID {
			m.items[i].Read = true
			return nil
		}
	}
	return ErrNotFound
}

func (m *MemoryInbox) CountUnread(ctx context.Context, userID int64) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, it := range m.items {
		if it.UserID == userID && !it.Read {
			n++
		}
	}
	return n, nil
}

func (m *MemoryInbox) MarkAllRead(ctx context.Context, userID int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for i := range m.items {
		if m.items[i].UserID == userID && !m.items[i].Read {
			m.items[i].Read = true
			n++
		}
	}
	return n, nil
}

// MemoryPreferences is an in-memory PreferenceRepository.
type MemoryPreferences struct {
	mu    sync.Mutex
	prefs map[int64]Preferences
}

func NewMemoryPreferences() *MemoryPreferences {
	return &MemoryPreferences{prefs: make(map[int64]Preferences)}
}

func (m *MemoryPreferences) GetPreferences(ctx context.Context, userID int64) (Preferences, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.prefs[userID]
	if !ok {
		return Preferences{}, ErrNotFound
	}
	return p, nil
}

func (m *MemoryPreferences) SavePreferences(ctx context.Context, p Preferences) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.prefs[p.UserID] = p
	return nil
}

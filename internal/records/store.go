package records

import (
	"context"
	"sync"
)

// Store is the persistence contract for protocol records.
//
// Create, Update and Delete notify the registered lifecycle hooks after the
// write is durable. SetAttributes is the narrow write path used by the SLA and
// workflow engines; it never fires hooks, so a hook may call it freely.
type Store interface {
	Get(ctx context.Context, id int64) (Record, error)
	Query(ctx context.Context, f Filter) ([]Record, error)

	Create(ctx context.Context, r *Record) error
	Update(ctx context.Context, r Record) error
	Delete(ctx context.Context, id int64) error

	SetAttributes(ctx context.Context, id int64, p Patch) error

	OnSaved(fn SavedFunc)
	OnDeleted(fn DeletedFunc)
}

// SaveEvent describes one durable Create or Update.
type SaveEvent struct {
	// Before is nil on create.
	Before  *Record
	After   Record
	Created bool
}

type (
	SavedFunc   func(ctx context.Context, ev SaveEvent)
	DeletedFunc func(ctx context.Context, before Record)
)

// Hooks is an observer registry embedded by Store implementations.
// Callbacks run synchronously in registration order.
type Hooks struct {
	mu      sync.RWMutex
	saved   []SavedFunc
	deleted []DeletedFunc
}

func (h *Hooks) OnSaved(fn SavedFunc) {
	if fn == nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.saved = append(h.saved, fn)
}

func (h *Hooks) OnDeleted(fn DeletedFunc) {
	if fn == nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.deleted = append(h.deleted, fn)
}

func (h *Hooks) fireSaved(ctx context.Context, ev SaveEvent) {
	h.mu.RLock()
	fns := append([]SavedFunc(nil), h.saved...)
	h.mu.RUnlock()
	for _, fn := range fns {
		fn(ctx, ev)
	}
}

func (h *Hooks) fireDeleted(ctx context.Context, before Record) {
	h.mu.RLock()
	fns := append([]DeletedFunc(nil), h.deleted...)
	h.mu.RUnlock()
	for _, fn := range fns {
		fn(ctx, before)
	}
}

func defaults(r *Record) {
	if r.Status == "" {
		r.Status = StatusEmTramitacao
	}
	if r.Prioridade == "" {
		r.Prioridade = PriorityMedia
	}
}

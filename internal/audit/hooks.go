package audit

import (
	"context"

	"protocolo-municipal/internal/records"
)

// Subscribe registers the automatic capture hooks on store.
func (s *Service) Subscribe(store records.Store) {
	store.OnSaved(s.onSaved)
	store.OnDeleted(s.onDeleted)
}

func (s *Service) onSaved(ctx context.Context, ev records.SaveEvent) {
	after := TakeSnapshot(ev.After)
	if ev.Created || ev.Before == nil {
		_, _ = s.Log(ctx, ev.After.ID, ActionCreated, Options{After: after})
		return
	}

	before := TakeSnapshot(*ev.Before)
	changes := Diff(before, after)
	if len(changes) == 0 {
		return
	}
	_, _ = s.Log(ctx, ev.After.ID, ActionEdited, Options{
		Before:   before,
		After:    after,
		Metadata: map[string]any{"changes": changes},
	})
}

func (s *Service) onDeleted(ctx context.Context, before records.Record) {
	_, _ = s.Log(ctx, before.ID, ActionDeleted, Options{
		Severity: SeverityWarning,
		Before:   TakeSnapshot(before),
	})
}

package workflow

import (
	"context"
	"errors"

	"protocolo-municipal/internal/records"
)

// Subscribe opens a workflow for newly created records whose document type
// has an approval rule.
func (s *Service) Subscribe(store records.Store) {
	store.OnSaved(func(ctx context.Context, ev records.SaveEvent) {
		if !ev.Created {
			return
		}
		s.trigger(ctx, ev.After)
	})
}

func (s *Service) trigger(ctx context.Context, r records.Record) {
	if s.rules == nil {
		return
	}
	rule, ok := s.rules.RuleFor(r.TipoDocumento)
	if !ok || !rule.RequerAprovacao {
		return
	}
	if rule.ValorMinimo > 0 && r.Valor < rule.ValorMinimo {
		return
	}
	if len(rule.Aprovadores) == 0 {
		s.log.Warn("workflow: rule requires approval but lists no approvers", "tipo_documento", r.TipoDocumento)
		return
	}

	_, err := s.Create(ctx, r.ID, CreateInput{
		TipoFluxo:   Policy(rule.TipoFluxo),
		ApproverIDs: rule.Aprovadores,
	})
	if err != nil && !errors.Is(err, ErrConflict) {
		s.log.Warn("workflow: trigger failed", "record_id", r.ID, "tipo_documento", r.TipoDocumento, "err", err)
	}
}

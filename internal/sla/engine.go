package sla

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"protocolo-municipal/internal/audit"
	"protocolo-municipal/internal/calendar"
	"protocolo-municipal/internal/notify"
	"protocolo-municipal/internal/records"
)

// PrazoSource supplies per-document-type default deadlines.
type PrazoSource interface {
	PrazoFor(tipoDocumento string) (int, bool)
	DefaultPrazo() int
}

type Notifier interface {
	Dispatch(ctx context.Context, n notify.Notification) error
}

type Auditor interface {
	Log(ctx context.Context, recordID int64, action string, opts audit.Options) (int64, error)
}

// Deduper atomically claims the right to fire one alert level for one
// record on one calendar day. Claim returns false when already claimed.
type Deduper interface {
	Claim(ctx context.Context, recordID int64, level Level, day time.Time) (bool, error)
}

type Deps struct {
	Store    records.Store
	Calendar *calendar.Calendar
	Prazos   PrazoSource
	Notifier Notifier
	Audit    Auditor
	Dedup    Deduper
	Log      *slog.Logger
}

// Engine computes deadlines and drives alerting and escalation.
//
// Alert state lives on the record (NivelAlerta); the engine holds no
// per-record memory, so any number of engines may run side by side.
type Engine struct {
	store    records.Store
	cal      *calendar.Calendar
	prazos   PrazoSource
	notifier Notifier
	audit    Auditor
	dedup    Deduper
	log      *slog.Logger
}

func NewEngine(d Deps) *Engine {
	if d.Log == nil {
		d.Log = slog.Default()
	}
	if d.Calendar == nil {
		d.Calendar = calendar.New(calendar.Config{})
	}
	if d.Dedup == nil {
		d.Dedup = NewMemoryDeduper()
	}
	return &Engine{
		store:    d.Store,
		cal:      d.Calendar,
		prazos:   d.Prazos,
		notifier: d.Notifier,
		audit:    d.Audit,
		dedup:    d.Dedup,
		log:      d.Log,
	}
}

// EffectivePrazo resolves manual prazo, then the document-type default,
// then the policy default, then FallbackPrazoDias.
func (e *Engine) EffectivePrazo(r records.Record) int {
	if r.PrazoDias > 0 {
		return r.PrazoDias
	}
	if e.prazos != nil {
		if v, ok := e.prazos.PrazoFor(r.TipoDocumento); ok && v > 0 {
			return v
		}
		if v := e.prazos.DefaultPrazo(); v > 0 {
			return v
		}
	}
	return FallbackPrazoDias
}

// ComputeDeadline derives the deadline state of r as of today.
// A malformed opening date is not an error: the result is sem_prazo and the
// problem is logged.
func (e *Engine) ComputeDeadline(ctx context.Context, r records.Record) DeadlineInfo {
	info := DeadlineInfo{PrazoDias: e.EffectivePrazo(r)}

	var abertura time.Time
	if r.DataAbertura != "" {
		d, err := calendar.ParseDate(r.DataAbertura)
		if err != nil {
			e.log.Warn("sla: malformed data_abertura", "record_id", r.ID, "value", r.DataAbertura, "err", err)
		} else {
			abertura = d
			info.DataLimite = e.cal.AddBusinessDays(abertura, info.PrazoDias)
		}
	}

	today := e.cal.Today()
	info.PercentualPrazo, info.NivelAlerta = Evaluate(abertura, info.DataLimite, r.Status, today)
	if info.NivelAlerta != LevelConcluido {
		info.DiasAtraso = daysOverdue(info.DataLimite, today)
	}
	return info
}

// DaysOverdue returns max(0, today - dataLimite); 0 without a deadline.
func (e *Engine) DaysOverdue(ctx context.Context, r records.Record) int {
	info := e.ComputeDeadline(ctx, r)
	return daysOverdue(info.DataLimite, e.cal.Today())
}

// UpdateAlertLevel recomputes and persists the deadline of one record and
// fires the alert for a level change at most once per level per day.
func (e *Engine) UpdateAlertLevel(ctx context.Context, recordID int64) (Evaluation, error) {
	r, err := e.store.Get(ctx, recordID)
	if err != nil {
		return Evaluation{}, err
	}

	info := e.ComputeDeadline(ctx, r)
	ev := Evaluation{
		RecordID: r.ID,
		Info:     info,
		Previous: Level(r.NivelAlerta),
	}
	ev.Changed = info.NivelAlerta != ev.Previous

	patch := records.Patch{
		DataLimite:      records.Ptr(calendar.Format(info.DataLimite)),
		PercentualPrazo: records.Ptr(info.PercentualPrazo),
		NivelAlerta:     records.Ptr(string(info.NivelAlerta)),
		DiasAtraso:      records.Ptr(info.DiasAtraso),
	}

	// A concluded record gets its pre-escalation priority back.
	if info.NivelAlerta == LevelConcluido && r.PrioridadeAnterior != "" {
		patch.Prioridade = records.Ptr(r.PrioridadeAnterior)
		patch.PrioridadeAnterior = records.Ptr(records.Priority(""))
		ev.Restored = true
	}

	if err := e.store.SetAttributes(ctx, r.ID, patch); err != nil {
		return ev, fmt.Errorf("persist deadline: %w", err)
	}

	if ev.Restored {
		e.auditSoft(ctx, r.ID, audit.ActionPriorityChanged, audit.Options{
			Description: fmt.Sprintf("Prioridade restaurada para %s após conclusão", r.PrioridadeAnterior),
			Before:      audit.Snapshot{"prioridade": string(r.Prioridade)},
			After:       audit.Snapshot{"prioridade": string(r.PrioridadeAnterior)},
		})
	}

	if !ev.Changed {
		return ev, nil
	}
	e.log.Info("sla: alert level changed", "record_id", r.ID, "from", ev.Previous, "to", info.NivelAlerta, "percentual", info.PercentualPrazo)

	if !info.NivelAlerta.alerting() {
		return ev, nil
	}

	claimed, err := e.dedup.Claim(ctx, r.ID, info.NivelAlerta, e.cal.Today())
	if err != nil {
		// Prefer a rare duplicate over a lost alert.
		e.log.Warn("sla: alert dedup unavailable", "record_id", r.ID, "level", info.NivelAlerta, "err", err)
		claimed = true
	}
	if !claimed {
		return ev, nil
	}

	e.notifySoft(ctx, r, info)
	ev.Notified = true
	e.auditSoft(ctx, r.ID, audit.ActionDeadlineAlert, audit.Options{
		Description: fmt.Sprintf("Nível de alerta alterado de %s para %s", levelOrNone(ev.Previous), info.NivelAlerta),
		Metadata: map[string]any{
			"nivel_anterior":   string(ev.Previous),
			"nivel_alerta":     string(info.NivelAlerta),
			"percentual_prazo": info.PercentualPrazo,
			"data_limite":      calendar.Format(info.DataLimite),
		},
	})

	if info.NivelAlerta == LevelVermelho {
		escalated, err := e.escalate(ctx, r, info)
		if err != nil {
			return ev, err
		}
		ev.Escalated = escalated
	}
	return ev, nil
}

// escalate forces the highest priority, keeping the previous one for reversal.
// A record that was already escalated keeps its original PrioridadeAnterior.
func (e *Engine) escalate(ctx context.Context, r records.Record, info DeadlineInfo) (bool, error) {
	if r.PrioridadeAnterior != "" {
		return false, nil
	}
	prev := r.Prioridade
	if prev == "" {
		prev = records.PriorityMedia
	}
	patch := records.Patch{
		Prioridade:         records.Ptr(records.PriorityUrgente),
		PrioridadeAnterior: records.Ptr(prev),
	}
	if err := e.store.SetAttributes(ctx, r.ID, patch); err != nil {
		return false, fmt.Errorf("escalate: %w", err)
	}

	e.auditSoft(ctx, r.ID, audit.ActionAutoEscalation, audit.Options{
		Description: fmt.Sprintf("Protocolo escalado automaticamente: %d dia(s) de atraso", info.DiasAtraso),
		Severity:    audit.SeverityWarning,
		Before:      audit.Snapshot{"prioridade": string(prev)},
		After:       audit.Snapshot{"prioridade": string(records.PriorityUrgente)},
		Metadata: map[string]any{
			"prioridade_anterior": string(prev),
			"dias_atraso":         info.DiasAtraso,
		},
	})
	e.log.Info("sla: record escalated", "record_id", r.ID, "prioridade_anterior", prev, "dias_atraso", info.DiasAtraso)
	return true, nil
}

// CheckAllDeadlines re-evaluates every non-concluded record. Safe to re-run:
// unchanged records produce no side effects and alerts are deduplicated per day.
func (e *Engine) CheckAllDeadlines(ctx context.Context) (SweepResult, error) {
	rows, err := e.store.Query(ctx, records.Filter{ExcludeStatuses: []records.Status{records.StatusConcluido}})
	if err != nil {
		return SweepResult{}, err
	}

	var res SweepResult
	for _, r := range rows {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		res.Checked++
		ev, err := e.UpdateAlertLevel(ctx, r.ID)
		if err != nil {
			if errors.Is(err, records.ErrNotFound) {
				continue
			}
			res.Failed++
			e.log.Error("sla: update alert level failed", "record_id", r.ID, "err", err)
			continue
		}
		if ev.Changed {
			res.Changed++
		}
		if ev.Notified {
			res.Notified++
		}
		if ev.Escalated {
			res.Escalated++
		}
	}
	e.log.Info("sla: sweep finished",
		"checked", res.Checked,
		"changed", res.Changed,
		"notified", res.Notified,
		"escalated", res.Escalated,
		"failed", res.Failed,
	)
	return res, nil
}

// Report summarizes deadline health for the matching records, computed as of today.
func (e *Engine) Report(ctx context.Context, f ReportFilter) (Report, error) {
	rows, err := e.store.Query(ctx, records.Filter{
		TipoDocumento: f.TipoDocumento,
		Responsavel:   f.Responsavel,
		OpenedFrom:    f.From,
		OpenedTo:      f.To,
	})
	if err != nil {
		return Report{}, err
	}

	rep := Report{ByLevel: make(map[Level]int)}
	var sum float64
	var withDeadline int
	for _, r := range rows {
		info := e.ComputeDeadline(ctx, r)
		rep.Total++
		rep.ByLevel[info.NivelAlerta]++
		if info.NivelAlerta != LevelConcluido && info.HasDeadline() {
			sum += info.PercentualPrazo
			withDeadline++
		}
		if info.NivelAlerta == LevelVermelho {
			rep.Overdue++
			rep.OverdueItems = append(rep.OverdueItems, OverdueItem{
				ID:          r.ID,
				Numero:      r.Numero,
				Assunto:     r.Assunto,
				Responsavel: r.Responsavel,
				DataLimite:  calendar.Format(info.DataLimite),
				DiasAtraso:  info.DiasAtraso,
			})
		}
	}
	if withDeadline > 0 {
		rep.AveragePercent = roundTo2(sum / float64(withDeadline))
	}
	sort.SliceStable(rep.OverdueItems, func(i, j int) bool {
		return rep.OverdueItems[i].DiasAtraso > rep.OverdueItems[j].DiasAtraso
	})
	return rep, nil
}

// Subscribe recomputes the deadline after every record save.
func (e *Engine) Subscribe(store records.Store) {
	store.OnSaved(func(ctx context.Context, ev records.SaveEvent) {
		if _, err := e.UpdateAlertLevel(ctx, ev.After.ID); err != nil {
			e.log.Warn("sla: recompute on save failed", "record_id", ev.After.ID, "err", err)
		}
	})
}

func (e *Engine) notifySoft(ctx context.Context, r records.Record, info DeadlineInfo) {
	if e.notifier == nil {
		return
	}
	if err := e.notifier.Dispatch(ctx, alertNotification(r, info)); err != nil {
		e.log.Warn("sla: alert dispatch failed", "record_id", r.ID, "level", info.NivelAlerta, "err", err)
	}
}

func (e *Engine) auditSoft(ctx context.Context, recordID int64, action string, opts audit.Options) {
	if e.audit == nil {
		return
	}
	if _, err := e.audit.Log(ctx, recordID, action, opts); err != nil {
		e.log.Warn("sla: audit failed", "record_id", recordID, "action", action, "err", err)
	}
}

func levelOrNone(l Level) string {
	if l == "" {
		return "nenhum"
	}
	return string(l)
}

package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"protocolo-municipal/internal/audit"
	"protocolo-municipal/internal/identity"
	"protocolo-municipal/internal/notify"
	"protocolo-municipal/internal/policy"
	"protocolo-municipal/internal/records"
)

type Notifier interface {
	Dispatch(ctx context.Context, n notify.Notification) error
}

type Auditor interface {
	Log(ctx context.Context, recordID int64, action string, opts audit.Options) (int64, error)
}

// RuleSource returns the approval rule configured for a document type.
type RuleSource interface {
	RuleFor(tipoDocumento string) (policy.WorkflowRule, bool)
}

type Deps struct {
	Repo     Repository
	Store    records.Store
	Identity *identity.Provider
	Notifier Notifier
	Audit    Auditor
	Rules    RuleSource
	Log      *slog.Logger
}

// Service runs approval workflows.
//
// Completion is always re-derived from a fresh Tally after each response,
// never from counters kept between calls.
type Service struct {
	repo     Repository
	store    records.Store
	ids      *identity.Provider
	notifier Notifier
	audit    Auditor
	rules    RuleSource
	log      *slog.Logger
	clock    func() time.Time
}

func NewService(d Deps) *Service {
	if d.Log == nil {
		d.Log = slog.Default()
	}
	if d.Identity == nil {
		d.Identity = identity.NewProvider(nil)
	}
	return &Service{
		repo:     d.Repo,
		store:    d.Store,
		ids:      d.Identity,
		notifier: d.Notifier,
		audit:    d.Audit,
		rules:    d.Rules,
		log:      d.Log,
		clock:    time.Now,
	}
}

// Create opens a workflow for recordID and returns its id.
func (s *Service) Create(ctx context.Context, recordID int64, in CreateInput) (int64, error) {
	if len(in.ApproverIDs) == 0 {
		return 0, fmt.Errorf("%w: at least one approver is required", ErrValidation)
	}
	if in.TipoFluxo == "" {
		in.TipoFluxo = PolicySequencial
	}
	if !in.TipoFluxo.Valid() {
		return 0, fmt.Errorf("%w: unknown tipo_fluxo %q", ErrValidation, in.TipoFluxo)
	}
	seen := make(map[int64]struct{}, len(in.ApproverIDs))
	for _, id := range in.ApproverIDs {
		if id <= 0 {
			return 0, fmt.Errorf("%w: invalid approver id %d", ErrValidation, id)
		}
		if _, dup := seen[id]; dup {
			return 0, fmt.Errorf("%w: approver %d listed twice", ErrValidation, id)
		}
		seen[id] = struct{}{}
	}

	r, err := s.store.Get(ctx, recordID)
	if err != nil {
		if errors.Is(err, records.ErrNotFound) {
			return 0, fmt.Errorf("%w: record %d", ErrNotFound, recordID)
		}
		return 0, err
	}
	if _, err := s.repo.ActiveForRecord(ctx, recordID); err == nil {
		return 0, fmt.Errorf("%w: record %d already has an open workflow", ErrConflict, recordID)
	} else if !errors.Is(err, ErrNotFound) {
		return 0, err
	}

	w := Workflow{
		RecordID:    recordID,
		TipoFluxo:   in.TipoFluxo,
		Status:      StatusPendente,
		IniciadoPor: s.ids.CurrentUserID(ctx),
		IniciadoEm:  s.clock().UTC(),
		Observacoes: strings.TrimSpace(in.Observacoes),
	}
	for i, id := range in.ApproverIDs {
		w.Approvers = append(w.Approvers, Approver{AprovadorID: id, Ordem: i + 1, Status: StatusPendente})
	}
	if err := s.repo.Create(ctx, &w); err != nil {
		return 0, fmt.Errorf("create workflow: %w", err)
	}

	if err := s.store.SetAttributes(ctx, recordID, records.Patch{
		Status:     records.Ptr(records.StatusAguardandoAprovacao),
		WorkflowID: records.Ptr(w.ID),
	}); err != nil {
		// The workflow row stays pendente without a record link; callers get
		// its id so it can be canceled.
		s.log.Warn("workflow: opened but record link failed", "workflow_id", w.ID, "record_id", recordID, "err", err)
		return w.ID, fmt.Errorf("link record: %w", err)
	}

	if w.TipoFluxo == PolicySequencial {
		if next, ok := nextPending(w.Approvers); ok {
			s.notifyApprover(ctx, r, w.ID, next.AprovadorID)
		}
	} else {
		for _, a := range w.Approvers {
			s.notifyApprover(ctx, r, w.ID, a.AprovadorID)
		}
	}

	s.auditSoft(ctx, recordID, audit.ActionApprovalRequested, audit.Options{
		Description: "Aprovação solicitada",
		Metadata: map[string]any{
			"workflow_id": w.ID,
			"tipo_fluxo":  string(w.TipoFluxo),
			"aprovadores": in.ApproverIDs,
		},
	})
	s.log.Info("workflow: opened", "workflow_id", w.ID, "record_id", recordID, "tipo_fluxo", w.TipoFluxo, "approvers", len(w.Approvers))
	return w.ID, nil
}

func (s *Service) Get(ctx context.Context, id int64) (Workflow, error) {
	return s.repo.Get(ctx, id)
}

// Approve records aprovadorID's approval and closes the workflow when its
// policy is satisfied. A second approval by the same approver is ErrConflict.
// Under sequencial the order decides notifications, not who may answer.
func (s *Service) Approve(ctx context.Context, workflowID, aprovadorID int64, observacoes string) (Workflow, error) {
	w, answered, err := s.openForResponse(ctx, workflowID, aprovadorID)
	if err != nil {
		return Workflow{}, err
	}

	if err := s.repo.Respond(ctx, workflowID, aprovadorID, StatusAprovado, strings.TrimSpace(observacoes), s.clock().UTC()); err != nil {
		return Workflow{}, err
	}

	s.auditSoft(ctx, w.RecordID, audit.ActionApproved, audit.Options{
		Description: "Aprovação concedida",
		Metadata: map[string]any{
			"workflow_id":  workflowID,
			"aprovador_id": aprovadorID,
			"observacoes":  observacoes,
		},
	})

	if err := s.checkCompletion(ctx, w, answered); err != nil {
		return Workflow{}, err
	}
	return s.repo.Get(ctx, workflowID)
}

// Reject finalizes the workflow as rejeitado on the first rejection,
// whatever the aggregation policy.
func (s *Service) Reject(ctx context.Context, workflowID, aprovadorID int64, motivo string) (Workflow, error) {
	motivo = strings.TrimSpace(motivo)
	if motivo == "" {
		return Workflow{}, fmt.Errorf("%w: motivo is required", ErrValidation)
	}
	w, _, err := s.openForResponse(ctx, workflowID, aprovadorID)
	if err != nil {
		return Workflow{}, err
	}

	if err := s.repo.Reject(ctx, workflowID, aprovadorID, motivo, s.clock().UTC()); err != nil {
		return Workflow{}, err
	}

	if err := s.store.SetAttributes(ctx, w.RecordID, records.Patch{
		Status:         records.Ptr(records.StatusRejeitado),
		MotivoRejeicao: records.Ptr(motivo),
	}); err != nil {
		// The workflow is already rejeitado; only the record status lags.
		s.log.Warn("workflow: rejected but record update failed", "workflow_id", workflowID, "record_id", w.RecordID, "err", err)
		return Workflow{}, fmt.Errorf("update record: %w", err)
	}

	r, _ := s.store.Get(ctx, w.RecordID)
	s.notifyRequester(ctx, r, w, notify.TypeRejeitado, "Motivo: "+motivo)
	s.auditSoft(ctx, w.RecordID, audit.ActionRejected, audit.Options{
		Description: "Protocolo rejeitado",
		Severity:    audit.SeverityWarning,
		Metadata: map[string]any{
			"workflow_id":  workflowID,
			"aprovador_id": aprovadorID,
			"motivo":       motivo,
		},
	})
	s.log.Info("workflow: rejected", "workflow_id", workflowID, "record_id", w.RecordID, "aprovador_id", aprovadorID)
	return s.repo.Get(ctx, workflowID)
}

// Cancel withdraws a pending workflow and puts the record back in tramitação.
func (s *Service) Cancel(ctx context.Context, workflowID int64, motivo string) (Workflow, error) {
	w, err := s.repo.Get(ctx, workflowID)
	if err != nil {
		return Workflow{}, err
	}
	motivo = strings.TrimSpace(motivo)
	if err := s.repo.Finalize(ctx, workflowID, StatusCancelado, motivo, s.clock().UTC()); err != nil {
		return Workflow{}, err
	}
	if err := s.store.SetAttributes(ctx, w.RecordID, records.Patch{
		Status: records.Ptr(records.StatusEmTramitacao),
	}); err != nil {
		return Workflow{}, fmt.Errorf("update record: %w", err)
	}
	s.auditSoft(ctx, w.RecordID, audit.ActionApprovalCanceled, audit.Options{
		Description: "Aprovação cancelada",
		Severity:    audit.SeverityNotice,
		Metadata: map[string]any{
			"workflow_id": workflowID,
			"motivo":      motivo,
		},
	})
	return s.repo.Get(ctx, workflowID)
}

// PendingApprovals lists what userID still has to answer, newest workflow first.
func (s *Service) PendingApprovals(ctx context.Context, userID int64) ([]PendingApproval, error) {
	out, err := s.repo.PendingForUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	for i := range out {
		if r, err := s.store.Get(ctx, out[i].RecordID); err == nil {
			out[i].Numero = r.Numero
		}
	}
	return out, nil
}

// openForResponse loads a workflow and checks aprovadorID may answer it.
// Ordering only drives who is notified; any pending approver may respond.
func (s *Service) openForResponse(ctx context.Context, workflowID, aprovadorID int64) (Workflow, Approver, error) {
	w, err := s.repo.Get(ctx, workflowID)
	if err != nil {
		return Workflow{}, Approver{}, err
	}
	var row *Approver
	for i := range w.Approvers {
		if w.Approvers[i].AprovadorID == aprovadorID {
			row = &w.Approvers[i]
			break
		}
	}
	if row == nil {
		return Workflow{}, Approver{}, fmt.Errorf("%w: user %d is not an approver of workflow %d", ErrNotFound, aprovadorID, workflowID)
	}
	if w.Status != StatusPendente {
		return Workflow{}, Approver{}, fmt.Errorf("%w: workflow %d is %s", ErrConflict, workflowID, w.Status)
	}
	if row.Status != StatusPendente {
		return Workflow{}, Approver{}, fmt.Errorf("%w: approver %d already answered", ErrConflict, aprovadorID)
	}
	return w, *row, nil
}

// checkCompletion decides w from a fresh tally. Under sequencial, the next
// approver is notified only when the answer moved the turn forward; an
// out-of-order answer leaves the current holder already notified.
func (s *Service) checkCompletion(ctx context.Context, w Workflow, answered Approver) error {
	t, err := s.repo.Tally(ctx, w.ID)
	if err != nil {
		return err
	}
	if final := decide(w.TipoFluxo, t); final != "" {
		return s.finalize(ctx, w, final)
	}
	if w.TipoFluxo != PolicySequencial {
		return nil
	}

	fresh, err := s.repo.Get(ctx, w.ID)
	if err != nil {
		return err
	}
	if next, ok := nextPending(fresh.Approvers); ok && next.Ordem > answered.Ordem {
		r, _ := s.store.Get(ctx, w.RecordID)
		s.notifyApprover(ctx, r, w.ID, next.AprovadorID)
	}
	return nil
}

func (s *Service) finalize(ctx context.Context, w Workflow, status Status) error {
	if err := s.repo.Finalize(ctx, w.ID, status, "", s.clock().UTC()); err != nil {
		if errors.Is(err, ErrConflict) {
			// A concurrent response closed it first.
			s.log.Debug("workflow: already finalized", "workflow_id", w.ID)
			return nil
		}
		return err
	}

	recStatus := records.StatusEmTramitacao
	typ := notify.TypeAprovado
	if status == StatusRejeitado {
		recStatus = records.StatusRejeitado
		typ = notify.TypeRejeitado
	}
	if err := s.store.SetAttributes(ctx, w.RecordID, records.Patch{Status: records.Ptr(recStatus)}); err != nil {
		return fmt.Errorf("update record: %w", err)
	}

	r, _ := s.store.Get(ctx, w.RecordID)
	s.notifyRequester(ctx, r, w, typ, fmt.Sprintf("O workflow de aprovação foi concluído com status: %s", status))
	s.auditSoft(ctx, w.RecordID, audit.ActionWorkflowCompleted, audit.Options{
		Description: fmt.Sprintf("Workflow concluído: %s", status),
		Metadata: map[string]any{
			"workflow_id": w.ID,
			"status":      string(status),
		},
	})
	s.log.Info("workflow: finalized", "workflow_id", w.ID, "record_id", w.RecordID, "status", status)
	return nil
}

func (s *Service) notifyApprover(ctx context.Context, r records.Record, workflowID, aprovadorID int64) {
	email := s.ids.UserEmail(ctx, aprovadorID)
	if email == "" {
		s.log.Warn("workflow: approver has no e-mail", "workflow_id", workflowID, "aprovador_id", aprovadorID)
		return
	}
	s.dispatchSoft(ctx, notify.Notification{
		RecordID:   r.ID,
		Numero:     r.Numero,
		Type:       notify.TypeAprovacaoPendente,
		Message:    fmt.Sprintf("Você precisa aprovar o protocolo: %s", r.Numero),
		Priority:   records.PriorityAlta,
		Recipients: []string{email},
		Extra:      map[string]any{"workflow_id": workflowID},
	})
}

// notifyRequester tells whoever opened the workflow, and the record's
// responsible party, about the outcome.
func (s *Service) notifyRequester(ctx context.Context, r records.Record, w Workflow, typ notify.Type, msg string) {
	var to []string
	if e := s.ids.UserEmail(ctx, w.IniciadoPor); e != "" {
		to = append(to, e)
	}
	if r.ResponsavelEmail != "" {
		to = append(to, r.ResponsavelEmail)
	}
	if len(to) == 0 {
		return
	}
	s.dispatchSoft(ctx, notify.Notification{
		RecordID:   w.RecordID,
		Numero:     r.Numero,
		Type:       typ,
		Message:    msg,
		Priority:   records.PriorityAlta,
		Recipients: to,
		Extra:      map[string]any{"workflow_id": w.ID},
	})
}

func (s *Service) dispatchSoft(ctx context.Context, n notify.Notification) {
	if s.notifier == nil {
		return
	}
	if n.Title == "" {
		n.Title = n.Type.Label()
	}
	if err := s.notifier.Dispatch(ctx, n); err != nil {
		s.log.Warn("workflow: notification failed", "record_id", n.RecordID, "type", n.Type, "err", err)
	}
}

func (s *Service) auditSoft(ctx context.Context, recordID int64, action string, opts audit.Options) {
	if s.audit == nil {
		return
	}
	if _, err := s.audit.Log(ctx, recordID, action, opts); err != nil {
		s.log.Warn("workflow: audit failed", "record_id", recordID, "action", action, "err", err)
	}
}

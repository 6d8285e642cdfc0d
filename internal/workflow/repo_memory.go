package workflow

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryRepo is an in-memory Repository. One mutex serializes every
// operation, which gives Respond the same check-and-set guarantee as the
// conditional UPDATE of the Postgres implementation.
type MemoryRepo struct {
	mu         sync.Mutex
	nextWF     int64
	nextRow    int64
	workflows  map[int64]Workflow
	approverBy map[int64][]Approver
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{
		workflows:  make(map[int64]Workflow),
		approverBy: make(map[int64][]Approver),
	}
}

func (m *MemoryRepo) Create(ctx context.Context, w *Workflow) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.nextWF++
	w.ID = m.nextWF
	rows := make([]Approver, len(w.Approvers))
	for i, a := range w.Approvers {
		m.nextRow++
		a.ID = m.nextRow
		a.WorkflowID = w.ID
		rows[i] = a
	}
	w.Approvers = rows

	stored := *w
	stored.Approvers = nil
	m.workflows[w.ID] = stored
	m.approverBy[w.ID] = append([]Approver(nil), rows...)
	return nil
}

func (m *MemoryRepo) Get(ctx context.Context, id int64) (Workflow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.getLocked(id)
}

func (m *MemoryRepo) getLocked(id int64) (Workflow, error) {
	w, ok := m.workflows[id]
	if !ok {
		return Workflow{}, ErrNotFound
	}
	w.Approvers = append([]Approver(nil), m.approverBy[id]...)
	sort.Slice(w.Approvers, func(i, j int) bool { return w.Approvers[i].Ordem < w.Approvers[j].Ordem })
	return w, nil
}

func (m *MemoryRepo) ActiveForRecord(ctx context.Context, recordID int64) (Workflow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var found int64
	for id, w := range m.workflows {
		if w.RecordID == recordID && w.Status == StatusPendente && id > found {
			found = id
		}
	}
	if found == 0 {
		return Workflow{}, ErrNotFound
	}
	return m.getLocked(found)
}

func (m *MemoryRepo) Respond(ctx context.Context, workflowID, aprovadorID int64, status Status, obs string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.respondLocked(workflowID, aprovadorID, status, obs, at)
}

func (m *MemoryRepo) respondLocked(workflowID, aprovadorID int64, status Status, obs string, at time.Time) error {
	w, ok := m.workflows[workflowID]
	if !ok {
		return ErrNotFound
	}
	rows := m.approverBy[workflowID]
	for i := range rows {
		if rows[i].AprovadorID != aprovadorID {
			continue
		}
		if rows[i].Status != StatusPendente || w.Status != StatusPendente {
			return ErrConflict
		}
		t := at
		rows[i].Status = status
		rows[i].RespondidoEm = &t
		rows[i].Observacoes = obs
		return nil
	}
	return ErrNotFound
}

func (m *MemoryRepo) Reject(ctx context.Context, workflowID, aprovadorID int64, motivo string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.respondLocked(workflowID, aprovadorID, StatusRejeitado, motivo, at); err != nil {
		return err
	}
	return m.finalizeLocked(workflowID, StatusRejeitado, motivo, at)
}

func (m *MemoryRepo) Finalize(ctx context.Context, id int64, status Status, obs string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.finalizeLocked(id, status, obs, at)
}

func (m *MemoryRepo) finalizeLocked(id int64, status Status, obs string, at time.Time) error {
	w, ok := m.workflows[id]
	if !ok {
		return ErrNotFound
	}
	if w.Status != StatusPendente {
		return ErrConflict
	}
	t := at
	w.Status = status
	w.FinalizadoEm = &t
	if obs != "" {
		w.Observacoes = obs
	}
	m.workflows[id] = w
	return nil
}

func (m *MemoryRepo) Tally(ctx context.Context, id int64) (Tally, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.workflows[id]; !ok {
		return Tally{}, ErrNotFound
	}
	var t Tally
	for _, a := range m.approverBy[id] {
		t.Total++
		switch a.Status {
		case StatusAprovado:
			t.Aprovados++
		case StatusRejeitado:
			t.Rejeitados++
		}
	}
	return t, nil
}

func (m *MemoryRepo) PendingForUser(ctx context.Context, userID int64) ([]PendingApproval, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []PendingApproval
	for wfID, rows := range m.approverBy {
		w := m.workflows[wfID]
		if w.Status != StatusPendente {
			continue
		}
		for _, a := range rows {
			if a.AprovadorID != userID || a.Status != StatusPendente {
				continue
			}
			out = append(out, PendingApproval{
				ApproverRowID: a.ID,
				WorkflowID:    wfID,
				RecordID:      w.RecordID,
				TipoFluxo:     w.TipoFluxo,
				Ordem:         a.Ordem,
				IniciadoEm:    w.IniciadoEm,
			})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].WorkflowID != out[j].WorkflowID {
			return out[i].WorkflowID > out[j].WorkflowID
		}
		return out[i].ApproverRowID > out[j].ApproverRowID
	})
	return out, nil
}

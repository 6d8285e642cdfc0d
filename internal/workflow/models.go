package workflow

import (
	"errors"
	"time"
)

var (
	ErrValidation = errors.New("workflow: validation failed")
	ErrNotFound   = errors.New("workflow: not found")
	// ErrConflict covers double responses and responses to a finalized workflow.
	ErrConflict = errors.New("workflow: conflict")
)

// Policy is the aggregation rule that decides a workflow.
type Policy string

const (
	PolicySequencial Policy = "sequencial"
	PolicyParalelo   Policy = "paralelo"
	PolicyMaioria    Policy = "maioria"
	PolicyUnanime    Policy = "unanime"
)

func (p Policy) Valid() bool {
	switch p {
	case PolicySequencial, PolicyParalelo, PolicyMaioria, PolicyUnanime:
		return true
	default:
		return false
	}
}

type Status string

const (
	StatusPendente  Status = "pendente"
	StatusAprovado  Status = "aprovado"
	StatusRejeitado Status = "rejeitado"
	StatusCancelado Status = "cancelado"
)

// Workflow is one approval process attached to a record.
// At most one workflow per record is pendente at a time.
type Workflow struct {
	ID           int64      `json:"id"`
	RecordID     int64      `json:"record_id"`
	TipoFluxo    Policy     `json:"tipo_fluxo"`
	Status       Status     `json:"status"`
	IniciadoPor  int64      `json:"iniciado_por"`
	IniciadoEm   time.Time  `json:"iniciado_em"`
	FinalizadoEm *time.Time `json:"finalizado_em,omitempty"`
	Observacoes  string     `json:"observacoes,omitempty"`

	Approvers []Approver `json:"approvers"`
}

// Approver is one designated respondent. Its status moves from pendente
// exactly once and never reverts.
type Approver struct {
	ID           int64      `json:"id"`
	WorkflowID   int64      `json:"workflow_id"`
	AprovadorID  int64      `json:"aprovador_id"`
	Ordem        int        `json:"ordem"`
	Status       Status     `json:"status"`
	RespondidoEm *time.Time `json:"respondido_em,omitempty"`
	Observacoes  string     `json:"observacoes,omitempty"`
}

// CreateInput is the request to open a workflow.
type CreateInput struct {
	TipoFluxo   Policy  `json:"tipo_fluxo"`
	ApproverIDs []int64 `json:"aprovadores"`
	Observacoes string  `json:"observacoes"`
}

// Tally counts approver responses from one consistent read.
type Tally struct {
	Total      int
	Aprovados  int
	Rejeitados int
}

// PendingApproval is an approver row awaiting a response, joined with the
// workflow and record it belongs to.
type PendingApproval struct {
	ApproverRowID int64     `json:"approver_row_id"`
	WorkflowID    int64     `json:"workflow_id"`
	RecordID      int64     `json:"record_id"`
	Numero        string    `json:"numero"`
	TipoFluxo     Policy    `json:"tipo_fluxo"`
	Ordem         int       `json:"ordem"`
	IniciadoEm    time.Time `json:"iniciado_em"`
}

// decide applies the aggregation policy to a tally. The zero Status means
// the workflow is still open.
func decide(p Policy, t Tally) Status {
	switch p {
	case PolicySequencial, PolicyUnanime:
		if t.Aprovados == t.Total {
			return StatusAprovado
		}
	case PolicyMaioria:
		if t.Aprovados >= (t.Total+1)/2 {
			return StatusAprovado
		}
	case PolicyParalelo:
		if t.Aprovados+t.Rejeitados == t.Total {
			if t.Aprovados > t.Rejeitados {
				return StatusAprovado
			}
			return StatusRejeitado
		}
	}
	return ""
}

// nextPending returns the lowest-ordered pending approver.
func nextPending(approvers []Approver) (Approver, bool) {
	var (
		next  Approver
		found bool
	)
	for _, a := range approvers {
		if a.Status != StatusPendente {
			continue
		}
		if !found || a.Ordem < next.Ordem {
			next = a
			found = true
		}
	}
	return next, found
}

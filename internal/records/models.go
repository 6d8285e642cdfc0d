package records

import (
	"errors"
	"time"
)

// Status is the tramitação state of a protocol.
type Status string

const (
	StatusEmTramitacao        Status = "Em tramitação"
	StatusConcluido           Status = "Concluído"
	StatusArquivado           Status = "Arquivado"
	StatusPendente            Status = "Pendente"
	StatusAguardandoAprovacao Status = "Aguardando Aprovação"
	StatusRejeitado           Status = "Rejeitado"
)

func (s Status) Valid() bool {
	switch s {
	case StatusEmTramitacao, StatusConcluido, StatusArquivado, StatusPendente, StatusAguardandoAprovacao, StatusRejeitado:
		return true
	default:
		return false
	}
}

type Priority string

const (
	PriorityBaixa   Priority = "baixa"
	PriorityMedia   Priority = "media"
	PriorityAlta    Priority = "alta"
	PriorityUrgente Priority = "urgente"
)

// Rank orders priorities for notifications and sorting (baixa=1 .. urgente=4).
func (p Priority) Rank() int {
	switch p {
	case PriorityBaixa:
		return 1
	case PriorityMedia:
		return 2
	case PriorityAlta:
		return 3
	case PriorityUrgente:
		return 4
	default:
		return 0
	}
}

func (p Priority) Valid() bool { return p.Rank() > 0 }

var ErrNotFound = errors.New("records: not found")

// Record is a protocol document.
//
// DataAbertura is kept as written by the user (YYYY-MM-DD or dd/mm/yyyy);
// consumers parse it and must tolerate malformed values.
type Record struct {
	ID            int64  `json:"id"`
	Numero        string `json:"numero"`
	Tipo          string `json:"tipo,omitempty"`
	TipoDocumento string `json:"tipo_documento,omitempty"`
	DataAbertura  string `json:"data_abertura"`
	Origem        string `json:"origem,omitempty"`
	Destino       string `json:"destino,omitempty"`
	Assunto       string `json:"assunto,omitempty"`
	Descricao     string `json:"descricao,omitempty"`

	Status             Status   `json:"status"`
	Prioridade         Priority `json:"prioridade"`
	PrioridadeAnterior Priority `json:"prioridade_anterior,omitempty"`

	// PrazoDias is the manual deadline in business days; 0 means "use the policy default".
	PrazoDias int `json:"prazo_dias,omitempty"`

	Responsavel      string  `json:"responsavel,omitempty"`
	ResponsavelEmail string  `json:"responsavel_email,omitempty"`
	DriveLink        string  `json:"drive_link,omitempty"`
	Valor            float64 `json:"valor,omitempty"`

	WorkflowID     int64  `json:"workflow_id,omitempty"`
	MotivoRejeicao string `json:"motivo_rejeicao,omitempty"`

	// Derived deadline fields, owned by the SLA engine.
	DataLimite      string  `json:"data_limite,omitempty"`
	PercentualPrazo float64 `json:"percentual_prazo"`
	NivelAlerta     string  `json:"nivel_alerta,omitempty"`
	DiasAtraso      int     `json:"dias_atraso,omitempty"`

	CreatedBy int64     `json:"created_by,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Patch is a partial attribute write. Nil fields are left untouched.
type Patch struct {
	Status             *Status
	Prioridade         *Priority
	PrioridadeAnterior *Priority
	WorkflowID         *int64
	MotivoRejeicao     *string

	DataLimite      *string
	PercentualPrazo *float64
	NivelAlerta     *string
	DiasAtraso      *int
}

func (p Patch) IsEmpty() bool {
	return p.Status == nil && p.Prioridade == nil && p.PrioridadeAnterior == nil &&
		p.WorkflowID == nil && p.MotivoRejeicao == nil && p.DataLimite == nil &&
		p.PercentualPrazo == nil && p.NivelAlerta == nil && p.DiasAtraso == nil
}

// Apply copies the set fields of p onto r.
func (p Patch) Apply(r *Record) {
	if p.Status != nil {
		r.Status = *p.Status
	}
	if p.Prioridade != nil {
		r.Prioridade = *p.Prioridade
	}
	if p.PrioridadeAnterior != nil {
		r.PrioridadeAnterior = *p.PrioridadeAnterior
	}
	if p.WorkflowID != nil {
		r.WorkflowID = *p.WorkflowID
	}
	if p.MotivoRejeicao != nil {
		r.MotivoRejeicao = *p.MotivoRejeicao
	}
	if p.DataLimite != nil {
		r.DataLimite = *p.DataLimite
	}
	if p.PercentualPrazo != nil {
		r.PercentualPrazo = *p.PercentualPrazo
	}
	if p.NivelAlerta != nil {
		r.NivelAlerta = *p.NivelAlerta
	}
	if p.DiasAtraso != nil {
		r.DiasAtraso = *p.DiasAtraso
	}
}

// Ptr is a small helper for building patches.
func Ptr[T any](v T) *T { return &v }

// Filter selects records for sweeps and reports. Zero values match everything.
type Filter struct {
	Statuses        []Status
	ExcludeStatuses []Status
	TipoDocumento   string
	Responsavel     string
	// OpenedFrom/OpenedTo bound DataAbertura (inclusive, YYYY-MM-DD).
	OpenedFrom string
	OpenedTo   string
	Limit      int
}

func (f Filter) match(r Record) bool {
	if len(f.Statuses) > 0 && !containsStatus(f.Statuses, r.Status) {
		return false
	}
	if containsStatus(f.ExcludeStatuses, r.Status) {
		return false
	}
	if f.TipoDocumento != "" && r.TipoDocumento != f.TipoDocumento {
		return false
	}
	if f.Responsavel != "" && r.Responsavel != f.Responsavel {
		return false
	}
	if f.OpenedFrom != "" && r.DataAbertura < f.OpenedFrom {
		return false
	}
	if f.OpenedTo != "" && r.DataAbertura > f.OpenedTo {
		return false
	}
	return true
}

func containsStatus(list []Status, s Status) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

package sla

import (
	"time"
)

// Level is the discretized proximity-to-deadline of a record.
type Level string

const (
	LevelConcluido Level = "concluido"
	LevelSemPrazo  Level = "sem_prazo"
	LevelVerde     Level = "verde"
	LevelAmarelo   Level = "amarelo"
	LevelLaranja   Level = "laranja"
	LevelVermelho  Level = "vermelho"
)

// Thresholds in percent of elapsed deadline, evaluated high to low.
const (
	thresholdVermelho = 100.0
	thresholdLaranja  = 80.0
	thresholdAmarelo  = 50.0
)

// FallbackPrazoDias applies when neither the record nor the policy names a deadline.
const FallbackPrazoDias = 7

// alerting reports whether entering l notifies the responsible party.
func (l Level) alerting() bool {
	return l == LevelAmarelo || l == LevelLaranja || l == LevelVermelho
}

// DeadlineInfo is the derived deadline state of one record.
type DeadlineInfo struct {
	PrazoDias       int       `json:"prazo_dias"`
	DataLimite      time.Time `json:"data_limite"`
	PercentualPrazo float64   `json:"percentual_prazo"`
	NivelAlerta     Level     `json:"nivel_alerta"`
	DiasAtraso      int       `json:"dias_atraso"`
}

func (d DeadlineInfo) HasDeadline() bool { return !d.DataLimite.IsZero() }

// Evaluation is the outcome of UpdateAlertLevel.
type Evaluation struct {
	RecordID  int64        `json:"record_id"`
	Info      DeadlineInfo `json:"info"`
	Previous  Level        `json:"previous"`
	Changed   bool         `json:"changed"`
	Notified  bool         `json:"notified"`
	Escalated bool         `json:"escalated"`
	Restored  bool         `json:"restored"`
}

// SweepResult summarizes one CheckAllDeadlines run.
type SweepResult struct {
	Checked   int `json:"checked"`
	Changed   int `json:"changed"`
	Notified  int `json:"notified"`
	Escalated int `json:"escalated"`
	Failed    int `json:"failed"`
}

// ReportFilter narrows Report. Dates are YYYY-MM-DD bounds on data_abertura.
type ReportFilter struct {
	TipoDocumento string
	Responsavel   string
	From          string
	To            string
}

type OverdueItem struct {
	ID          int64  `json:"id"`
	Numero      string `json:"numero"`
	Assunto     string `json:"assunto"`
	Responsavel string `json:"responsavel"`
	DataLimite  string `json:"data_limite"`
	DiasAtraso  int    `json:"dias_atraso"`
}

type Report struct {
	Total          int           `json:"total"`
	ByLevel        map[Level]int `json:"by_level"`
	Overdue        int           `json:"overdue"`
	AveragePercent float64       `json:"average_percent"`
	OverdueItems   []OverdueItem `json:"overdue_items"`
}

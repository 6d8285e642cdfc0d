package records

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"protocolo-municipal/pkg/utils"
)

// PostgresStore persists records in the protocolos table.
type PostgresStore struct {
	Hooks

	db    *sql.DB
	clock func() time.Time
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db, clock: time.Now}
}

const recordColumns = `
id, numero, tipo, tipo_documento, data_abertura, origem, destino, assunto, descricao,
status, prioridade, prioridade_anterior, prazo_dias, responsavel, responsavel_email,
drive_link, valor, workflow_id, motivo_rejeicao,
data_limite, percentual_prazo, nivel_alerta, dias_atraso,
created_by, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (Record, error) {
	var r Record
	err := row.Scan(
		&r.ID,
		&r.Numero,
		&r.Tipo,
		&r.TipoDocumento,
		&r.DataAbertura,
		&r.Origem,
		&r.Destino,
		&r.Assunto,
		&r.Descricao,
		&r.Status,
		&r.Prioridade,
		&r.PrioridadeAnterior,
		&r.PrazoDias,
		&r.Responsavel,
		&r.ResponsavelEmail,
		&r.DriveLink,
		&r.Valor,
		&r.WorkflowID,
		&r.MotivoRejeicao,
		&r.DataLimite,
		&r.PercentualPrazo,
		&r.NivelAlerta,
		&r.DiasAtraso,
		&r.CreatedBy,
		&r.CreatedAt,
		&r.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Record{}, ErrNotFound
		}
		return Record{}, err
	}
	return r, nil
}

func (s *PostgresStore) Get(ctx context.Context, id int64) (Record, error) {
	q := `SELECT ` + recordColumns + ` FROM protocolos WHERE id = $1`
	return scanRecord(s.db.QueryRowContext(ctx, q, id))
}

func (s *PostgresStore) Query(ctx context.Context, f Filter) ([]Record, error) {
	var (
		where []string
		args  []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if len(f.Statuses) > 0 {
		where = append(where, "status = ANY("+arg(statusStrings(f.Statuses))+")")
	}
	if len(f.ExcludeStatuses) > 0 {
		where = append(where, "NOT (status = ANY("+arg(statusStrings(f.ExcludeStatuses))+"))")
	}
	if f.TipoDocumento != "" {
		where = append(where, "tipo_documento = "+arg(f.TipoDocumento))
	}
	if f.Responsavel != "" {
		where = append(where, "responsavel = "+arg(f.Responsavel))
	}
	if f.OpenedFrom != "" {
		where = append(where, "data_abertura >= "+arg(f.OpenedFrom))
	}
	if f.OpenedTo != "" {
		where = append(where, "data_abertura <= "+arg(f.OpenedTo))
	}

	q := `SELECT ` + recordColumns + ` FROM protocolos`
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += " ORDER BY id"
	if f.Limit > 0 {
		q += " LIMIT " + arg(f.Limit)
	}

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *PostgresStore) Create(ctx context.Context, r *Record) error {
	defaults(r)
	now := s.clock().UTC()
	r.CreatedAt = now
	r.UpdatedAt = now

	const q = `
INSERT INTO protocolos (
  numero, tipo, tipo_documento, data_abertura, origem, destino, assunto, descricao,
  status, prioridade, prioridade_anterior, prazo_dias, responsavel, responsavel_email,
  drive_link, valor, workflow_id, motivo_rejeicao,
  data_limite, percentual_prazo, nivel_alerta, dias_atraso,
  created_by, created_at, updated_at
) VALUES (
  $1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22,$23,$24,$25
)
RETURNING id
`
	if err := s.db.QueryRowContext(ctx, q,
		r.Numero,
		r.Tipo,
		r.TipoDocumento,
		r.DataAbertura,
		r.Origem,
		r.Destino,
		r.Assunto,
		r.Descricao,
		r.Status,
		r.Prioridade,
		r.PrioridadeAnterior,
		r.PrazoDias,
		r.Responsavel,
		r.ResponsavelEmail,
		r.DriveLink,
		r.Valor,
		r.WorkflowID,
		r.MotivoRejeicao,
		r.DataLimite,
		r.PercentualPrazo,
		r.NivelAlerta,
		r.DiasAtraso,
		r.CreatedBy,
		r.CreatedAt,
		r.UpdatedAt,
	).Scan(&r.ID); err != nil {
		return err
	}

	s.fireSaved(ctx, SaveEvent{After: *r, Created: true})
	return nil
}

func (s *PostgresStore) Update(ctx context.Context, r Record) error {
	var before Record
	err := utils.WithTx(ctx, s.db, &sql.TxOptions{}, func(ctx context.Context, tx *sql.Tx) error {
		q := `SELECT ` + recordColumns + ` FROM protocolos WHERE id = $1 FOR UPDATE`
		b, err := scanRecord(tx.QueryRowContext(ctx, q, r.ID))
		if err != nil {
			return err
		}
		before = b
		r.CreatedAt = b.CreatedAt
		r.CreatedBy = b.CreatedBy
		r.UpdatedAt = s.clock().UTC()

		const upd = `
UPDATE protocolos SET
  numero = $2, tipo = $3, tipo_documento = $4, data_abertura = $5, origem = $6, destino = $7,
  assunto = $8, descricao = $9, status = $10, prioridade = $11, prioridade_anterior = $12,
  prazo_dias = $13, responsavel = $14, responsavel_email = $15, drive_link = $16, valor = $17,
  workflow_id = $18, motivo_rejeicao = $19, updated_at = $20
WHERE id = $1
`
		_, err = tx.ExecContext(ctx, upd,
			r.ID,
			r.Numero,
			r.Tipo,
			r.TipoDocumento,
			r.DataAbertura,
			r.Origem,
			r.Destino,
			r.Assunto,
			r.Descricao,
			r.Status,
			r.Prioridade,
			r.PrioridadeAnterior,
			r.PrazoDias,
			r.Responsavel,
			r.ResponsavelEmail,
			r.DriveLink,
			r.Valor,
			r.WorkflowID,
			r.MotivoRejeicao,
			r.UpdatedAt,
		)
		return err
	})
	if err != nil {
		return err
	}

	// Derived deadline columns are written by SetAttributes only.
	r.DataLimite = before.DataLimite
	r.PercentualPrazo = before.PercentualPrazo
	r.NivelAlerta = before.NivelAlerta
	r.DiasAtraso = before.DiasAtraso

	s.fireSaved(ctx, SaveEvent{Before: &before, After: r})
	return nil
}

func (s *PostgresStore) Delete(ctx context.Context, id int64) error {
	q := `DELETE FROM protocolos WHERE id = $1 RETURNING ` + recordColumns
	before, err := scanRecord(s.db.QueryRowContext(ctx, q, id))
	if err != nil {
		return err
	}
	s.fireDeleted(ctx, before)
	return nil
}

func (s *PostgresStore) SetAttributes(ctx context.Context, id int64, p Patch) error {
	var (
		sets []string
		args = []any{id}
	)
	set := func(col string, v any) {
		args = append(args, v)
		sets = append(sets, fmt.Sprintf("%s = $%d", col, len(args)))
	}
	if p.Status != nil {
		set("status", *p.Status)
	}
	if p.Prioridade != nil {
		set("prioridade", *p.Prioridade)
	}
	if p.PrioridadeAnterior != nil {
		set("prioridade_anterior", *p.PrioridadeAnterior)
	}
	if p.WorkflowID != nil {
		set("workflow_id", *p.WorkflowID)
	}
	if p.MotivoRejeicao != nil {
		set("motivo_rejeicao", *p.MotivoRejeicao)
	}
	if p.DataLimite != nil {
		set("data_limite", *p.DataLimite)
	}
	if p.PercentualPrazo != nil {
		set("percentual_prazo", *p.PercentualPrazo)
	}
	if p.NivelAlerta != nil {
		set("nivel_alerta", *p.NivelAlerta)
	}
	if p.DiasAtraso != nil {
		set("dias_atraso", *p.DiasAtraso)
	}
	if len(sets) == 0 {
		return nil
	}
	set("updated_at", s.clock().UTC())

	q := "UPDATE protocolos SET " + strings.Join(sets, ", ") + " WHERE id = $1"
	res, err := s.db.ExecContext(ctx, q, args...)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func statusStrings(ss []Status) []string {
	out := make([]string, len(ss))
	for i, s := range ss {
		out[i] = string(s)
	}
	return out
}

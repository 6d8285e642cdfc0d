package workflow

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"protocolo-municipal/pkg/utils"
)

// PostgresRepo assumes the following tables exist:
// - workflows
// - workflow_approvers (FK workflow_id, UNIQUE (workflow_id, aprovador_id))
type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo {
	return &PostgresRepo{db: db}
}

type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (r *PostgresRepo) Create(ctx context.Context, w *Workflow) error {
	return utils.WithTx(ctx, r.db, &sql.TxOptions{}, func(ctx context.Context, tx *sql.Tx) error {
		const q = `
INSERT INTO workflows (record_id, tipo_fluxo, status, iniciado_por, iniciado_em, observacoes)
VALUES ($1,$2,$3,$4,$5,$6)
RETURNING id
`
		if err := tx.QueryRowContext(ctx, q,
			w.RecordID,
			w.TipoFluxo,
			w.Status,
			w.IniciadoPor,
			w.IniciadoEm,
			w.Observacoes,
		).Scan(&w.ID); err != nil {
			return err
		}

		const qa = `
INSERT INTO workflow_approvers (workflow_id, aprovador_id, ordem, status)
VALUES ($1,$2,$3,$4)
RETURNING id
`
		for i := range w.Approvers {
			a := &w.Approvers[i]
			a.WorkflowID = w.ID
			if err := tx.QueryRowContext(ctx, qa, a.WorkflowID, a.AprovadorID, a.Ordem, a.Status).Scan(&a.ID); err != nil {
				return err
			}
		}
		return nil
	})
}

func (r *PostgresRepo) Get(ctx context.Context, id int64) (Workflow, error) {
	const q = `
SELECT id, record_id, tipo_fluxo, status, iniciado_por, iniciado_em, finalizado_em, observacoes
FROM workflows
WHERE id = $1
`
	w, err := scanWorkflow(r.db.QueryRowContext(ctx, q, id))
	if err != nil {
		return Workflow{}, err
	}
	w.Approvers, err = listApprovers(ctx, r.db, id)
	if err != nil {
		return Workflow{}, err
	}
	return w, nil
}

func (r *PostgresRepo) ActiveForRecord(ctx context.Context, recordID int64) (Workflow, error) {
	const q = `
SELECT id, record_id, tipo_fluxo, status, iniciado_por, iniciado_em, finalizado_em, observacoes
FROM workflows
WHERE record_id = $1 AND status = 'pendente'
ORDER BY id DESC
LIMIT 1
`
	w, err := scanWorkflow(r.db.QueryRowContext(ctx, q, recordID))
	if err != nil {
		return Workflow{}, err
	}
	w.Approvers, err = listApprovers(ctx, r.db, w.ID)
	if err != nil {
		return Workflow{}, err
	}
	return w, nil
}

func (r *PostgresRepo) Respond(ctx context.Context, workflowID, aprovadorID int64, status Status, obs string, at time.Time) error {
	return respond(ctx, r.db, workflowID, aprovadorID, status, obs, at)
}

func (r *PostgresRepo) Reject(ctx context.Context, workflowID, aprovadorID int64, motivo string, at time.Time) error {
	return utils.WithTx(ctx, r.db, &sql.TxOptions{}, func(ctx context.Context, tx *sql.Tx) error {
		if err := respond(ctx, tx, workflowID, aprovadorID, StatusRejeitado, motivo, at); err != nil {
			return err
		}
		return finalize(ctx, tx, workflowID, StatusRejeitado, motivo, at)
	})
}

func (r *PostgresRepo) Finalize(ctx context.Context, id int64, status Status, obs string, at time.Time) error {
	return finalize(ctx, r.db, id, status, obs, at)
}

func (r *PostgresRepo) Tally(ctx context.Context, id int64) (Tally, error) {
	const q = `
SELECT
  COUNT(*),
  COUNT(*) FILTER (WHERE status = 'aprovado'),
  COUNT(*) FILTER (WHERE status = 'rejeitado')
FROM workflow_approvers
WHERE workflow_id = $1
`
	var t Tally
	if err := r.db.QueryRowContext(ctx, q, id).Scan(&t.Total, &t.Aprovados, &t.Rejeitados); err != nil {
		return Tally{}, err
	}
	if t.Total == 0 {
		return Tally{}, ErrNotFound
	}
	return t, nil
}

func (r *PostgresRepo) PendingForUser(ctx context.Context, userID int64) ([]PendingApproval, error) {
	const q = `
SELECT a.id, w.id, w.record_id, w.tipo_fluxo, a.ordem, w.iniciado_em
FROM workflow_approvers a
JOIN workflows w ON w.id = a.workflow_id
WHERE a.aprovador_id = $1 AND a.status = 'pendente' AND w.status = 'pendente'
ORDER BY w.id DESC, a.id DESC
`
	rows, err := r.db.QueryContext(ctx, q, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []PendingApproval
	for rows.Next() {
		var p PendingApproval
		if err := rows.Scan(&p.ApproverRowID, &p.WorkflowID, &p.RecordID, &p.TipoFluxo, &p.Ordem, &p.IniciadoEm); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func respond(ctx context.Context, q queryer, workflowID, aprovadorID int64, status Status, obs string, at time.Time) error {
	const upd = `
UPDATE workflow_approvers a
SET status = $3, respondido_em = $4, observacoes = $5
FROM workflows w
WHERE a.workflow_id = w.id
  AND a.workflow_id = $1
  AND a.aprovador_id = $2
  AND a.status = 'pendente'
  AND w.status = 'pendente'
RETURNING a.id
`
	var rowID int64
	err := q.QueryRowContext(ctx, upd, workflowID, aprovadorID, status, at, obs).Scan(&rowID)
	if err == nil {
		return nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return err
	}

	// Nothing transitioned: tell a missing pair from an already-answered one.
	const approverExists = `SELECT 1 FROM workflow_approvers WHERE workflow_id = $1 AND aprovador_id = $2`
	var one int
	if err := q.QueryRowContext(ctx, approverExists, workflowID, aprovadorID).Scan(&one); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		return err
	}
	return ErrConflict
}

func finalize(ctx context.Context, q queryer, id int64, status Status, obs string, at time.Time) error {
	const upd = `
UPDATE workflows
SET status = $2, finalizado_em = $3, observacoes = CASE WHEN $4 = '' THEN observacoes ELSE $4 END
WHERE id = $1 AND status = 'pendente'
`
	res, err := q.ExecContext(ctx, upd, id, status, at, obs)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 1 {
		return nil
	}

	var one int
	if err := q.QueryRowContext(ctx, `SELECT 1 FROM workflows WHERE id = $1`, id).Scan(&one); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		return err
	}
	return ErrConflict
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanWorkflow(row rowScanner) (Workflow, error) {
	var (
		w   Workflow
		fin sql.NullTime
	)
	err := row.Scan(
		&w.ID,
		&w.RecordID,
		&w.TipoFluxo,
		&w.Status,
		&w.IniciadoPor,
		&w.IniciadoEm,
		&fin,
		&w.Observacoes,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Workflow{}, ErrNotFound
		}
		return Workflow{}, err
	}
	if fin.Valid {
		t := fin.Time
		w.FinalizadoEm = &t
	}
	return w, nil
}

func listApprovers(ctx context.Context, q queryer, workflowID int64) ([]Approver, error) {
	const sel = `
SELECT id, workflow_id, aprovador_id, ordem, status, respondido_em, observacoes
FROM workflow_approvers
WHERE workflow_id = $1
ORDER BY ordem, id
`
	rows, err := q.QueryContext(ctx, sel, workflowID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Approver
	for rows.Next() {
		var (
			a    Approver
			resp sql.NullTime
		)
		if err := rows.Scan(&a.ID, &a.WorkflowID, &a.AprovadorID, &a.Ordem, &a.Status, &resp, &a.Observacoes); err != nil {
			return nil, err
		}
		if resp.Valid {
			t := resp.Time
			a.RespondidoEm = &t
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

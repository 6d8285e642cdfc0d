package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// PostgresRepo stores entries in audit_log. Rows are INSERT-only apart from
// the retention DELETE.
type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo {
	return &PostgresRepo{db: db}
}

func (r *PostgresRepo) Append(ctx context.Context, e *Entry) error {
	before, err := jsonOrNil(e.Before)
	if err != nil {
		return err
	}
	after, err := jsonOrNil(e.After)
	if err != nil {
		return err
	}
	meta, err := jsonOrNil(e.Metadata)
	if err != nil {
		return err
	}

	const q = `
INSERT INTO audit_log (
  record_id, user_id, action, description, severity, ip, user_agent, before, after, metadata, created_at
) VALUES (
  $1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11
)
RETURNING id
`
	return r.db.QueryRowContext(ctx, q,
		e.RecordID,
		e.UserID,
		e.Action,
		e.Description,
		int(e.Severity),
		e.IP,
		e.UserAgent,
		before,
		after,
		meta,
		e.CreatedAt,
	).Scan(&e.ID)
}

const entryColumns = `id, record_id, user_id, action, description, severity, ip, user_agent, before, after, metadata, created_at`

func (r *PostgresRepo) ByRecord(ctx context.Context, recordID int64, limit int) ([]Entry, error) {
	q := `SELECT ` + entryColumns + ` FROM audit_log WHERE record_id = $1 ORDER BY created_at DESC, id DESC LIMIT $2`
	return r.list(ctx, q, recordID, limit)
}

func (r *PostgresRepo) ByUser(ctx context.Context, userID int64, limit int) ([]Entry, error) {
	q := `SELECT ` + entryColumns + ` FROM audit_log WHERE user_id = $1 ORDER BY created_at DESC, id DESC LIMIT $2`
	return r.list(ctx, q, userID, limit)
}

func (r *PostgresRepo) list(ctx context.Context, q string, args ...any) ([]Entry, error) {
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var (
			e                   Entry
			sev                 int
			before, after, meta sql.NullString
		)
		if err := rows.Scan(
			&e.ID,
			&e.RecordID,
			&e.UserID,
			&e.Action,
			&e.Description,
			&sev,
			&e.IP,
			&e.UserAgent,
			&before,
			&after,
			&meta,
			&e.CreatedAt,
		); err != nil {
			return nil, err
		}
		e.Severity = Severity(sev)
		if err := unmarshalIfSet(before, &e.Before); err != nil {
			return nil, err
		}
		if err := unmarshalIfSet(after, &e.After); err != nil {
			return nil, err
		}
		if err := unmarshalIfSet(meta, &e.Metadata); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (r *PostgresRepo) Report(ctx context.Context, f ReportFilter) ([]ReportRow, error) {
	var (
		where []string
		args  []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}
	if f.UserID != 0 {
		where = append(where, "user_id = "+arg(f.UserID))
	}
	if f.Action != "" {
		where = append(where, "action = "+arg(f.Action))
	}
	if !f.From.IsZero() {
		where = append(where, "created_at >= "+arg(f.From))
	}
	if !f.To.IsZero() {
		where = append(where, "created_at <= "+arg(f.To))
	}

	q := `
SELECT action, COUNT(*) AS total, COUNT(DISTINCT user_id), COUNT(DISTINCT record_id)
FROM audit_log`
	if len(where) > 0 {
		q += "\nWHERE " + strings.Join(where, " AND ")
	}
	q += "\nGROUP BY action\nORDER BY total DESC, action"

	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ReportRow
	for rows.Next() {
		var row ReportRow
		if err := rows.Scan(&row.Action, &row.Total, &row.UniqueUsers, &row.RecordsAffected); err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

func (r *PostgresRepo) DeleteBefore(ctx context.Context, cutoff time.Time, keepFrom Severity) (int64, error) {
	const q = `DELETE FROM audit_log WHERE created_at < $1 AND severity < $2`
	res, err := r.db.ExecContext(ctx, q, cutoff, int(keepFrom))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func jsonOrNil[T ~map[string]V, V any](m T) (any, error) {
	if len(m) == 0 {
		return nil, nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func unmarshalIfSet(s sql.NullString, dst any) error {
	if !s.Valid || s.String == "" {
		return nil
	}
	return json.Unmarshal([]byte(s.String), dst)
}

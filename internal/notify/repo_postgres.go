package notify

import (
	"context"
	"database/sql"
	"errors"
)

type PostgresInbox struct {
	db *sql.DB
}

func NewPostgresInbox(db *sql.DB) *PostgresInbox {
	return &PostgresInbox{db: db}
}

func (p *PostgresInbox) Insert(ctx context.Context, item *InboxItem) error {
	const q = `
INSERT INTO notificacoes (user_id, record_id, type, title, message, priority, lida, created_at)
VALUES ($1,$2,$3,$4,$5,$6,false,$7)
RETURNING id
`
	return p.db.QueryRowContext(ctx, q,
		item.UserID,
		item.RecordID,
		item.Type,
		item.Title,
		item.Message,
		item.Priority,
		item.CreatedAt,
	).Scan(&item.ID)
}

func (p *PostgresInbox) ListForUser(ctx context.Context, userID int64, unreadOnly bool, limit int) ([]InboxItem, error) {
	const q = `
SELECT id, user_id, record_id, type, title, message, priority, lida, created_at
FROM notificacoes
WHERE user_id = $1 AND ($2 = false OR lida = false)
ORDER BY created_at DESC, id DESC
LIMIT $3
`
	rows, err := p.db.QueryContext(ctx, q, userID, unreadOnly, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []InboxItem
	for rows.Next() {
		var it InboxItem
		if err := rows.Scan(
			&it.ID,
			&it.UserID,
			&it.RecordID,
			&it.Type,
			&it.Title,
			&it.Message,
			&it.Priority,
			&it.Read,
			&it.CreatedAt,
		); err != nil {
			return nil, err
		}
		out = append(out, it)
	}
	return out, rows.Err()
}

func (p *PostgresInbox) MarkRead(ctx context.Context, userID, id int64) error {
	const q = `UPDATE notificacoes SET lida = true, lida_em = now() WHERE id = $1 AND user_id = $2`
	res, err := p.db.ExecContext(ctx, q, id, userID)
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

func (p *PostgresInbox) CountUnread(ctx context.Context, userID int64) (int, error) {
	const q = `SELECT COUNT(*) FROM notificacoes WHERE user_id = $1 AND lida = false`
	var n int
	if err := p.db.QueryRowContext(ctx, q, userID).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

func (p *PostgresInbox) MarkAllRead(ctx context.Context, userID int64) (int64, error) {
	const q = `UPDATE notificacoes SET lida = true, lida_em = now() WHERE user_id = $1 AND lida = false`
	res, err := p.db.ExecContext(ctx, q, userID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

type PostgresPreferences struct {
	db *sql.DB
}

func NewPostgresPreferences(db *sql.DB) *PostgresPreferences {
	return &PostgresPreferences{db: db}
}

func (p *PostgresPreferences) GetPreferences(ctx context.Context, userID int64) (Preferences, error) {
	const q = `
SELECT user_id, inapp, email, webhook
FROM notificacao_preferencias
WHERE user_id = $1
`
	var out Preferences
	err := p.db.QueryRowContext(ctx, q, userID).Scan(&out.UserID, &out.InApp, &out.Email, &out.Webhook)
	if errors.Is(err, sql.ErrNoRows) {
		return Preferences{}, ErrNotFound
	}
	if err != nil {
		return Preferences{}, err
	}
	return out, nil
}

func (p *PostgresPreferences) SavePreferences(ctx context.Context, prefs Preferences) error {
	const q = `
INSERT INTO notificacao_preferencias (user_id, inapp, email, webhook, updated_at)
VALUES ($1,$2,$3,$4,now())
ON CONFLICT (user_id) DO UPDATE
SET inapp = EXCLUDED.inapp, email = EXCLUDED.email, webhook = EXCLUDED.webhook, updated_at = now()
`
	_, err := p.db.ExecContext(ctx, q, prefs.UserID, prefs.InApp, prefs.Email, prefs.Webhook)
	return err
}

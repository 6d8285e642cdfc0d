package identity

import (
	"context"
	"database/sql"
	"errors"
	"strings"
)

type PostgresDirectory struct {
	db *sql.DB
}

func NewPostgresDirectory(db *sql.DB) *PostgresDirectory {
	return &PostgresDirectory{db: db}
}

func (d *PostgresDirectory) ByID(ctx context.Context, id int64) (User, error) {
	const q = `
SELECT id, nome, email, role, ativo
FROM usuarios
WHERE id = $1
`
	return scanUser(d.db.QueryRowContext(ctx, q, id))
}

func (d *PostgresDirectory) ByEmail(ctx context.Context, email string) (User, error) {
	const q = `
SELECT id, nome, email, role, ativo
FROM usuarios
WHERE lower(email) = lower($1)
LIMIT 1
`
	return scanUser(d.db.QueryRowContext(ctx, q, strings.TrimSpace(email)))
}

func scanUser(row *sql.Row) (User, error) {
	var u User
	if err := row.Scan(&u.ID, &u.Name, &u.Email, &u.Role, &u.Active); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return User{}, ErrNotFound
		}
		return User{}, err
	}
	return u, nil
}

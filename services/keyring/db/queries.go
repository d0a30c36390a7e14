package db

import (
	"context"
	"database/sql"
)

type Queries struct {
	db *sql.DB
}

func New(database *sql.DB) *Queries {
	return &Queries{db: database}
}

type Session struct {
	Namespace   string
	BearerToken string
	Cookies     string
	UpdatedAt   int64
}

const upsertSession = `
INSERT INTO session (namespace, bearer_token, cookies, updated_at)
VALUES (?, ?, ?, ?)
ON CONFLICT (namespace) DO UPDATE SET
    bearer_token = excluded.bearer_token,
    cookies = excluded.cookies,
    updated_at = excluded.updated_at
`

func (q *Queries) UpsertSession(ctx context.Context, arg Session) error {
	_, err := q.db.ExecContext(ctx, upsertSession,
		arg.Namespace, arg.BearerToken, arg.Cookies, arg.UpdatedAt)
	return err
}

const getSession = `
SELECT namespace, bearer_token, cookies, updated_at
FROM session WHERE namespace = ?
`

func (q *Queries) GetSession(ctx context.Context, namespace string) (Session, error) {
	row := q.db.QueryRowContext(ctx, getSession, namespace)
	var out Session
	err := row.Scan(&out.Namespace, &out.BearerToken, &out.Cookies, &out.UpdatedAt)
	return out, err
}

const deleteSession = `DELETE FROM session WHERE namespace = ?`

func (q *Queries) DeleteSession(ctx context.Context, namespace string) error {
	_, err := q.db.ExecContext(ctx, deleteSession, namespace)
	return err
}

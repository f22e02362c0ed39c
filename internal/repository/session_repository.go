package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// SessionRepository stores the OAuth token of each browser session.
type SessionRepository struct {
	db      *sql.DB
	dialect Dialect
}

func NewSessionRepository(db *sql.DB, dialect Dialect) *SessionRepository {
	return &SessionRepository{db: db, dialect: dialect}
}

func (r *SessionRepository) Get(ctx context.Context, sessionID string) (string, error) {
	query := r.dialect.Rebind(`SELECT token FROM session_tokens WHERE session_id = $1`)

	var token string
	err := r.db.QueryRowContext(ctx, query, sessionID).Scan(&token)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	return token, err
}

func (r *SessionRepository) Set(ctx context.Context, sessionID, token string) error {
	query := r.dialect.Rebind(`
		INSERT INTO session_tokens (session_id, token, updated_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (session_id) DO UPDATE
		SET token = excluded.token, updated_at = excluded.updated_at
	`)
	_, err := r.db.ExecContext(ctx, query, sessionID, token, time.Now().UTC())
	return err
}

func (r *SessionRepository) Clear(ctx context.Context, sessionID string) error {
	query := r.dialect.Rebind(`DELETE FROM session_tokens WHERE session_id = $1`)
	_, err := r.db.ExecContext(ctx, query, sessionID)
	return err
}

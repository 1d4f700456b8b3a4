package store

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// PostgresStore keeps one row per session in wa_sessions:
//
//	CREATE TABLE wa_sessions (
//	    session_id TEXT PRIMARY KEY,
//	    payload    BYTEA NOT NULL,
//	    updated_at TIMESTAMPTZ NOT NULL
//	);
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Exists(ctx context.Context, sessionID string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `
		SELECT count(*) FROM wa_sessions WHERE session_id = $1
	`, sessionID).Scan(&n)
	if err != nil {
		return false, &PersistenceError{Op: "exists", SessionID: sessionID, Err: err}
	}
	return n > 0, nil
}

func (s *PostgresStore) Load(ctx context.Context, sessionID string) (Record, error) {
	var rec Record
	err := s.db.QueryRowContext(ctx, `
		SELECT session_id, payload, updated_at
		FROM wa_sessions
		WHERE session_id = $1
	`, sessionID).Scan(&rec.SessionID, &rec.Payload, &rec.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, ErrNotFound
	}
	if err != nil {
		return Record{}, &PersistenceError{Op: "load", SessionID: sessionID, Err: err}
	}
	return rec, nil
}

func (s *PostgresStore) Save(ctx context.Context, sessionID string, payload []byte) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO wa_sessions (session_id, payload, updated_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (session_id)
		DO UPDATE SET payload = EXCLUDED.payload, updated_at = EXCLUDED.updated_at
	`, sessionID, payload, time.Now().UTC())
	if err != nil {
		return &PersistenceError{Op: "save", SessionID: sessionID, Err: err}
	}
	return nil
}

func (s *PostgresStore) Delete(ctx context.Context, sessionID string) error {
	_, err := s.db.ExecContext(ctx, `
		DELETE FROM wa_sessions WHERE session_id = $1
	`, sessionID)
	if err != nil {
		return &PersistenceError{Op: "delete", SessionID: sessionID, Err: err}
	}
	return nil
}

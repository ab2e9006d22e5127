package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"nda-clarity/internal/domain"
)

// sqliteTime is fixed width so text ordering matches time ordering.
const sqliteTime = "2006-01-02T15:04:05.000000000Z"

// SQLiteStore keeps a local transition history for the CLI.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens (creating if needed) the database at path and applies
// migrations.
func OpenSQLite(ctx context.Context, path string) (*SQLiteStore, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	dsn := fmt.Sprintf("file:%s?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	if err := migrate(ctx, db, "sqlite", "?"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate %s: %w", path, err)
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) RecordTransition(ctx context.Context, t domain.Transition) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO session_transitions (session_id, seq, from_state, to_state, stage, intent_id, confirmation_id, note, message, at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (session_id, seq) DO NOTHING
	`, t.SessionID, t.Seq, string(t.From), string(t.To), string(t.Stage), t.IntentID, t.ConfirmationID, t.Note, t.Message, t.At.UTC().Format(sqliteTime))
	return err
}

func (s *SQLiteStore) ListTransitions(ctx context.Context, sessionID string) ([]domain.Transition, error) {
	return s.query(ctx, `
		SELECT session_id, seq, from_state, to_state, stage, intent_id, confirmation_id, note, message, at
		FROM session_transitions
		WHERE session_id = ?
		ORDER BY seq ASC
	`, sessionID)
}

// RecentTransitions returns the newest limit transitions across sessions,
// newest first.
func (s *SQLiteStore) RecentTransitions(ctx context.Context, limit int) ([]domain.Transition, error) {
	if limit <= 0 {
		limit = 20
	}
	return s.query(ctx, `
		SELECT session_id, seq, from_state, to_state, stage, intent_id, confirmation_id, note, message, at
		FROM session_transitions
		ORDER BY at DESC, seq DESC
		LIMIT ?
	`, limit)
}

func (s *SQLiteStore) query(ctx context.Context, q string, args ...any) ([]domain.Transition, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]domain.Transition, 0)
	for rows.Next() {
		var t domain.Transition
		var from, to, stage, at string
		if err := rows.Scan(&t.SessionID, &t.Seq, &from, &to, &stage, &t.IntentID, &t.ConfirmationID, &t.Note, &t.Message, &at); err != nil {
			return nil, err
		}
		t.From, t.To, t.Stage = domain.StateKind(from), domain.StateKind(to), domain.Stage(stage)
		parsed, err := time.Parse(sqliteTime, at)
		if err != nil {
			return nil, fmt.Errorf("parse transition time %q: %w", at, err)
		}
		t.At = parsed
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

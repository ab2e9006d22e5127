package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"nda-clarity/internal/domain"
)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(dsn string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	return &PostgresStore{db: db}, nil
}

func (s *PostgresStore) Close() error {
	return s.db.Close()
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	return migrate(ctx, s.db, "postgres", "$1")
}

func (s *PostgresStore) CreateSession(ctx context.Context, sessionID, workflowID string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sessions (id, workflow_id, state)
		VALUES ($1, $2, $3)
		ON CONFLICT (id) DO NOTHING
	`, sessionID, workflowID, domain.StateIdle)
	return err
}

// RecordTransition appends t and advances the session snapshot. Replays of
// the same (session, seq) are no-ops so activity retries stay idempotent.
func (s *PostgresStore) RecordTransition(ctx context.Context, t domain.Transition) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `
		INSERT INTO session_transitions (session_id, seq, from_state, to_state, stage, intent_id, confirmation_id, note, message, at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (session_id, seq) DO NOTHING
	`, t.SessionID, t.Seq, t.From, t.To, t.Stage, t.IntentID, t.ConfirmationID, t.Note, t.Message, t.At)
	if err != nil {
		return fmt.Errorf("insert transition: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return tx.Commit()
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO sessions (id, state, failed_stage, intent_id, confirmation_id, message, last_seq, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE SET
			state = EXCLUDED.state,
			failed_stage = EXCLUDED.failed_stage,
			intent_id = EXCLUDED.intent_id,
			confirmation_id = EXCLUDED.confirmation_id,
			message = EXCLUDED.message,
			last_seq = EXCLUDED.last_seq,
			updated_at = EXCLUDED.updated_at
		WHERE sessions.last_seq < EXCLUDED.last_seq
	`, t.SessionID, t.To, t.Stage, t.IntentID, t.ConfirmationID, t.Message, t.Seq, t.At)
	if err != nil {
		return fmt.Errorf("upsert session: %w", err)
	}
	return tx.Commit()
}

func (s *PostgresStore) GetSession(ctx context.Context, sessionID string) (domain.SessionRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, workflow_id, state, failed_stage, intent_id, confirmation_id, message, last_seq, created_at, updated_at
		FROM sessions
		WHERE id = $1
	`, sessionID)
	rec, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.SessionRecord{}, domain.ErrSessionNotFound
	}
	return rec, err
}

func (s *PostgresStore) ListTransitions(ctx context.Context, sessionID string) ([]domain.Transition, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT session_id, seq, from_state, to_state, stage, intent_id, confirmation_id, note, message, at
		FROM session_transitions
		WHERE session_id = $1
		ORDER BY seq ASC
	`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]domain.Transition, 0)
	for rows.Next() {
		var t domain.Transition
		if err := rows.Scan(&t.SessionID, &t.Seq, &t.From, &t.To, &t.Stage, &t.IntentID, &t.ConfirmationID, &t.Note, &t.Message, &t.At); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// ListSessionsInStates returns sessions whose latest state is one of states,
// optionally narrowed to a failed stage, oldest update first.
func (s *PostgresStore) ListSessionsInStates(ctx context.Context, states []domain.StateKind, stage domain.Stage, limit int) ([]domain.SessionRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	names := make([]string, 0, len(states))
	for _, st := range states {
		names = append(names, string(st))
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, workflow_id, state, failed_stage, intent_id, confirmation_id, message, last_seq, created_at, updated_at
		FROM sessions
		WHERE state = ANY($1) AND ($2 = '' OR failed_stage = $2)
		ORDER BY updated_at ASC
		LIMIT $3
	`, pq.Array(names), stage, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]domain.SessionRecord, 0)
	for rows.Next() {
		rec, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *PostgresStore) ListFailedAnalyses(ctx context.Context, limit int) ([]domain.SessionRecord, error) {
	return s.ListSessionsInStates(ctx, []domain.StateKind{domain.StateFailed}, domain.StageAnalysis, limit)
}

func (s *PostgresStore) CountSessions(ctx context.Context) (int64, error) {
	row := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM sessions`)
	var count int64
	if err := row.Scan(&count); err != nil {
		return 0, fmt.Errorf("count sessions: %w", err)
	}
	return count, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (domain.SessionRecord, error) {
	var rec domain.SessionRecord
	err := row.Scan(&rec.ID, &rec.WorkflowID, &rec.State, &rec.FailedStage, &rec.IntentID, &rec.ConfirmationID, &rec.Message, &rec.LastSeq, &rec.CreatedAt, &rec.UpdatedAt)
	return rec, err
}

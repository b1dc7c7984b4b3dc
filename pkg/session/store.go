// Copyright 2026 Teradata
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
// Package session persists completed coordination runs to SQLite so they can
// be listed and inspected after the fact. The store is written once at run
// completion (best-effort on failure) and read by the CLI; the live run never
// depends on it.
package session

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"

	_ "github.com/teradata-labs/warp/internal/sqlitedriver"
	"github.com/teradata-labs/warp/pkg/types"
)

// Record is one persisted coordination run.
type Record struct {
	ID           string
	Task         string
	CreatedAt    time.Time
	Phase        types.Phase
	Winner       string
	InputTokens  int
	OutputTokens int
	CostUSD      float64
}

// Store provides persistent run history backed by a single SQLite file.
type Store struct {
	db     *sql.DB
	logger *zap.Logger

	mu sync.Mutex
}

// Open opens (creating if needed) the run-history database at path.
func Open(path string, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create session directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open session database: %w", err)
	}

	// WAL mode for concurrent list/show while a run is being written.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	s := &Store{db: db, logger: logger}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return s, nil
}

// initSchema creates the tables if they do not exist.
func (s *Store) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS sessions (
		id TEXT PRIMARY KEY,
		task TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		phase TEXT NOT NULL,
		winner TEXT,
		total_input_tokens INTEGER DEFAULT 0,
		total_output_tokens INTEGER DEFAULT 0,
		cost_usd REAL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS answers (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id TEXT NOT NULL,
		label TEXT NOT NULL,
		agent_id TEXT NOT NULL,
		content TEXT,
		submitted_at INTEGER NOT NULL,
		FOREIGN KEY (session_id) REFERENCES sessions(id) ON DELETE CASCADE
	);

	CREATE TABLE IF NOT EXISTS votes (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id TEXT NOT NULL,
		voter_id TEXT NOT NULL,
		target TEXT NOT NULL,
		reason TEXT,
		round INTEGER NOT NULL,
		invalidated INTEGER DEFAULT 0,
		submitted_at INTEGER NOT NULL,
		FOREIGN KEY (session_id) REFERENCES sessions(id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_answers_session ON answers(session_id);
	CREATE INDEX IF NOT EXISTS idx_votes_session ON votes(session_id);
	CREATE INDEX IF NOT EXISTS idx_sessions_created ON sessions(created_at);
	`
	_, err := s.db.Exec(schema)
	return err
}

// SaveRun persists one completed run with its full answer and vote history.
// All rows go in a single transaction.
func (s *Store) SaveRun(ctx context.Context, rec Record, answers []types.Answer, votes []types.Vote) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO sessions (id, task, created_at, phase, winner, total_input_tokens, total_output_tokens, cost_usd)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			phase = excluded.phase,
			winner = excluded.winner,
			total_input_tokens = excluded.total_input_tokens,
			total_output_tokens = excluded.total_output_tokens,
			cost_usd = excluded.cost_usd`,
		rec.ID, rec.Task, rec.CreatedAt.Unix(), string(rec.Phase), rec.Winner,
		rec.InputTokens, rec.OutputTokens, rec.CostUSD)
	if err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}

	// Re-saving replaces the history wholesale.
	if _, err := tx.ExecContext(ctx, "DELETE FROM answers WHERE session_id = ?", rec.ID); err != nil {
		return fmt.Errorf("failed to clear answers: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM votes WHERE session_id = ?", rec.ID); err != nil {
		return fmt.Errorf("failed to clear votes: %w", err)
	}

	for _, a := range answers {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO answers (session_id, label, agent_id, content, submitted_at)
			VALUES (?, ?, ?, ?, ?)`,
			rec.ID, a.Label, a.AgentID, a.Content, a.SubmittedAt.Unix())
		if err != nil {
			return fmt.Errorf("failed to save answer %s: %w", a.Label, err)
		}
	}
	for _, v := range votes {
		invalidated := 0
		if v.Invalidated {
			invalidated = 1
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO votes (session_id, voter_id, target, reason, round, invalidated, submitted_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			rec.ID, v.VoterID, v.Target, v.Reason, v.Round, invalidated, v.SubmittedAt.Unix())
		if err != nil {
			return fmt.Errorf("failed to save vote by %s: %w", v.VoterID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit session: %w", err)
	}
	s.logger.Debug("Session persisted",
		zap.String("session_id", rec.ID),
		zap.Int("answers", len(answers)),
		zap.Int("votes", len(votes)))
	return nil
}

// List returns all persisted runs, newest first.
func (s *Store) List(ctx context.Context) ([]Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, task, created_at, phase, winner, total_input_tokens, total_output_tokens, cost_usd
		FROM sessions
		ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query sessions: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		rec, err := scanRecord(rows.Scan)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating sessions: %w", err)
	}
	return records, nil
}

// Get loads one run with its answers and votes. Returns sql.ErrNoRows when
// the id is unknown.
func (s *Store) Get(ctx context.Context, id string) (Record, []types.Answer, []types.Vote, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	row := s.db.QueryRowContext(ctx, `
		SELECT id, task, created_at, phase, winner, total_input_tokens, total_output_tokens, cost_usd
		FROM sessions
		WHERE id = ?`, id)
	rec, err := scanRecord(row.Scan)
	if err != nil {
		if err == sql.ErrNoRows {
			return Record{}, nil, nil, err
		}
		return Record{}, nil, nil, fmt.Errorf("failed to load session: %w", err)
	}

	answers, err := s.loadAnswers(ctx, id)
	if err != nil {
		return Record{}, nil, nil, err
	}
	votes, err := s.loadVotes(ctx, id)
	if err != nil {
		return Record{}, nil, nil, err
	}
	return rec, answers, votes, nil
}

func (s *Store) loadAnswers(ctx context.Context, sessionID string) ([]types.Answer, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT label, agent_id, content, submitted_at
		FROM answers
		WHERE session_id = ?
		ORDER BY submitted_at ASC, id ASC`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query answers: %w", err)
	}
	defer rows.Close()

	var answers []types.Answer
	for rows.Next() {
		var a types.Answer
		var submittedAt int64
		if err := rows.Scan(&a.Label, &a.AgentID, &a.Content, &submittedAt); err != nil {
			return nil, fmt.Errorf("failed to scan answer: %w", err)
		}
		a.SubmittedAt = time.Unix(submittedAt, 0)
		answers = append(answers, a)
	}
	return answers, rows.Err()
}

func (s *Store) loadVotes(ctx context.Context, sessionID string) ([]types.Vote, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT voter_id, target, reason, round, invalidated, submitted_at
		FROM votes
		WHERE session_id = ?
		ORDER BY submitted_at ASC, id ASC`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query votes: %w", err)
	}
	defer rows.Close()

	var votes []types.Vote
	for rows.Next() {
		var v types.Vote
		var invalidated int
		var submittedAt int64
		if err := rows.Scan(&v.VoterID, &v.Target, &v.Reason, &v.Round, &invalidated, &submittedAt); err != nil {
			return nil, fmt.Errorf("failed to scan vote: %w", err)
		}
		v.Invalidated = invalidated != 0
		v.SubmittedAt = time.Unix(submittedAt, 0)
		votes = append(votes, v)
	}
	return votes, rows.Err()
}

// scanRecord reads one sessions row through any Scan-shaped function.
func scanRecord(scan func(...any) error) (Record, error) {
	var rec Record
	var createdAt int64
	var phase string
	var winner sql.NullString
	err := scan(&rec.ID, &rec.Task, &createdAt, &phase, &winner,
		&rec.InputTokens, &rec.OutputTokens, &rec.CostUSD)
	if err != nil {
		return Record{}, err
	}
	rec.CreatedAt = time.Unix(createdAt, 0)
	rec.Phase = types.Phase(phase)
	if winner.Valid {
		rec.Winner = winner.String
	}
	return rec, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Package store persists the history of form runs in SQLite.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"formpilot/internal/form"
	"formpilot/internal/logging"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// ErrRunNotFound is returned for run IDs that were never begun.
var ErrRunNotFound = errors.New("run not found")

// Run statuses.
const (
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusCancelled = "cancelled"
	StatusFailed    = "failed"
)

// Run summarizes one invocation of the repetition driver.
type Run struct {
	ID              string
	FormURL         string
	PlannedPasses   int
	CompletedPasses int
	SubmittedPasses int
	Status          string
	StartedAt       time.Time
	FinishedAt      time.Time // zero while running
}

// Pass is one fill-and-submit cycle of a run.
type Pass struct {
	RunID       string
	Pass        int
	Questions   int
	Answered    int
	Errors      int
	TextFields  int
	Submitted   bool
	SubmitError string
	RecordedAt  time.Time
}

// Answer is the recorded outcome of one question in one pass.
type Answer struct {
	Question    int
	Title       string
	Type        string
	Required    bool
	Constraint  string
	OptionCount int
	Selected    []string
	Activated   int
	Errors      []string
}

// HistoryStore records runs, passes and answers.
type HistoryStore struct {
	db     *sql.DB
	mu     sync.RWMutex
	dbPath string
}

// Open opens (creating if needed) the history database at path.
// ":memory:" gives a private in-memory database.
func Open(path string) (*HistoryStore, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("failed to create directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One connection: an in-memory database exists per connection, and
	// SQLite serializes writers anyway.
	db.SetMaxOpenConns(1)

	s := &HistoryStore{db: db, dbPath: path}
	if err := s.initialize(); err != nil {
		db.Close()
		return nil, err
	}
	logging.Store("History store opened at %s", path)
	return s, nil
}

func (s *HistoryStore) initialize() error {
	schema := `
	PRAGMA foreign_keys = ON;

	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		form_url TEXT NOT NULL,
		planned_passes INTEGER NOT NULL,
		status TEXT NOT NULL,
		started_at INTEGER NOT NULL,
		finished_at INTEGER
	);
	CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at);

	CREATE TABLE IF NOT EXISTS passes (
		run_id TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
		pass INTEGER NOT NULL,
		questions INTEGER NOT NULL,
		answered INTEGER NOT NULL,
		errors INTEGER NOT NULL,
		text_fields INTEGER NOT NULL,
		submitted INTEGER NOT NULL,
		submit_error TEXT,
		recorded_at INTEGER NOT NULL,
		PRIMARY KEY (run_id, pass)
	);

	CREATE TABLE IF NOT EXISTS answers (
		run_id TEXT NOT NULL,
		pass INTEGER NOT NULL,
		question INTEGER NOT NULL,
		title TEXT,
		type TEXT NOT NULL,
		required INTEGER NOT NULL,
		constraint_desc TEXT,
		option_count INTEGER NOT NULL,
		selected TEXT,
		activated INTEGER NOT NULL,
		errors TEXT,
		PRIMARY KEY (run_id, pass, question),
		FOREIGN KEY (run_id, pass) REFERENCES passes(run_id, pass) ON DELETE CASCADE
	);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create history schema: %w", err)
	}
	return nil
}

// Close closes the database.
func (s *HistoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Close()
}

// BeginRun registers a new run and returns its ID.
func (s *HistoryStore) BeginRun(ctx context.Context, formURL string, passes int) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := uuid.NewString()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (id, form_url, planned_passes, status, started_at) VALUES (?, ?, ?, ?, ?)`,
		id, formURL, passes, StatusRunning, time.Now().UnixMilli())
	if err != nil {
		return "", fmt.Errorf("failed to begin run: %w", err)
	}
	logging.StoreDebug("Run %s begun: %d passes of %s", id, passes, formURL)
	return id, nil
}

// RecordPass stores the report of one pass. Recording the same pass twice
// replaces the earlier record.
func (s *HistoryStore) RecordPass(ctx context.Context, runID string, pass int, report form.PageReport) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var exists int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM runs WHERE id = ?`, runID).Scan(&exists); err != nil {
		return fmt.Errorf("failed to look up run: %w", err)
	}
	if exists == 0 {
		return fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}

	var submitErr sql.NullString
	if report.SubmitErr != nil {
		submitErr = sql.NullString{String: report.SubmitErr.Error(), Valid: true}
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM passes WHERE run_id = ? AND pass = ?`, runID, pass); err != nil {
		return fmt.Errorf("failed to clear pass: %w", err)
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO passes (run_id, pass, questions, answered, errors, text_fields, submitted, submit_error, recorded_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		runID, pass, len(report.Questions), report.Answered(), report.ErrorCount(),
		report.TextFields, report.Submitted, submitErr, time.Now().UnixMilli())
	if err != nil {
		return fmt.Errorf("failed to insert pass: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO answers (run_id, pass, question, title, type, required, constraint_desc, option_count, selected, activated, errors)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare answer insert: %w", err)
	}
	defer stmt.Close()

	for _, q := range report.Questions {
		selected, err := json.Marshal(q.Selected)
		if err != nil {
			return err
		}
		msgs := make([]string, 0, len(q.Errors))
		for _, e := range q.Errors {
			msgs = append(msgs, e.Error())
		}
		errs, err := json.Marshal(msgs)
		if err != nil {
			return err
		}
		if _, err := stmt.ExecContext(ctx, runID, pass, q.Index, q.Title, q.Type.String(), q.Required,
			q.Constraint.String(), q.OptionCount, string(selected), q.Activated, string(errs)); err != nil {
			return fmt.Errorf("failed to insert answer for question %d: %w", q.Index, err)
		}
	}

	if err := tx.Commit(); err != nil {
		logging.StoreError("Commit of pass %d for run %s failed: %v", pass, runID, err)
		return fmt.Errorf("failed to commit pass: %w", err)
	}
	logging.StoreDebug("Recorded pass %d of run %s (%d questions)", pass, runID, len(report.Questions))
	return nil
}

// FinishRun marks a run as ended with the given status.
func (s *HistoryStore) FinishRun(ctx context.Context, runID, status string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET status = ?, finished_at = ? WHERE id = ?`,
		status, time.Now().UnixMilli(), runID)
	if err != nil {
		return fmt.Errorf("failed to finish run: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	return nil
}

// GetRun returns a single run with its pass counts.
func (s *HistoryStore) GetRun(ctx context.Context, runID string) (Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var (
		r        Run
		started  int64
		finished sql.NullInt64
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT r.id, r.form_url, r.planned_passes, r.status, r.started_at, r.finished_at,
		       COUNT(p.pass), COALESCE(SUM(p.submitted), 0)
		FROM runs r
		LEFT JOIN passes p ON p.run_id = r.id
		WHERE r.id = ?
		GROUP BY r.id`, runID).Scan(&r.ID, &r.FormURL, &r.PlannedPasses, &r.Status, &started, &finished,
		&r.CompletedPasses, &r.SubmittedPasses)
	if err == sql.ErrNoRows {
		return Run{}, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	if err != nil {
		return Run{}, fmt.Errorf("failed to query run: %w", err)
	}
	r.StartedAt = time.UnixMilli(started)
	if finished.Valid {
		r.FinishedAt = time.UnixMilli(finished.Int64)
	}
	return r, nil
}

// RecentRuns returns up to limit runs, newest first.
func (s *HistoryStore) RecentRuns(ctx context.Context, limit int) ([]Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = 10
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT r.id, r.form_url, r.planned_passes, r.status, r.started_at, r.finished_at,
		       COUNT(p.pass), COALESCE(SUM(p.submitted), 0)
		FROM runs r
		LEFT JOIN passes p ON p.run_id = r.id
		GROUP BY r.id
		ORDER BY r.started_at DESC, r.rowid DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var (
			r        Run
			started  int64
			finished sql.NullInt64
		)
		if err := rows.Scan(&r.ID, &r.FormURL, &r.PlannedPasses, &r.Status, &started, &finished,
			&r.CompletedPasses, &r.SubmittedPasses); err != nil {
			return nil, err
		}
		r.StartedAt = time.UnixMilli(started)
		if finished.Valid {
			r.FinishedAt = time.UnixMilli(finished.Int64)
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// Passes returns the recorded passes of a run in order.
func (s *HistoryStore) Passes(ctx context.Context, runID string) ([]Pass, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT pass, questions, answered, errors, text_fields, submitted, submit_error, recorded_at
		FROM passes WHERE run_id = ? ORDER BY pass`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query passes: %w", err)
	}
	defer rows.Close()

	var passes []Pass
	for rows.Next() {
		p := Pass{RunID: runID}
		var (
			submitErr sql.NullString
			recorded  int64
		)
		if err := rows.Scan(&p.Pass, &p.Questions, &p.Answered, &p.Errors, &p.TextFields,
			&p.Submitted, &submitErr, &recorded); err != nil {
			return nil, err
		}
		p.SubmitError = submitErr.String
		p.RecordedAt = time.UnixMilli(recorded)
		passes = append(passes, p)
	}
	return passes, rows.Err()
}

// PassAnswers returns the per-question outcomes of one pass in question order.
func (s *HistoryStore) PassAnswers(ctx context.Context, runID string, pass int) ([]Answer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT question, title, type, required, constraint_desc, option_count, selected, activated, errors
		FROM answers WHERE run_id = ? AND pass = ? ORDER BY question`, runID, pass)
	if err != nil {
		return nil, fmt.Errorf("failed to query answers: %w", err)
	}
	defer rows.Close()

	var answers []Answer
	for rows.Next() {
		var (
			a                  Answer
			title, constraint  sql.NullString
			selected, errsJSON sql.NullString
		)
		if err := rows.Scan(&a.Question, &title, &a.Type, &a.Required, &constraint, &a.OptionCount,
			&selected, &a.Activated, &errsJSON); err != nil {
			return nil, err
		}
		a.Title = title.String
		a.Constraint = constraint.String
		if selected.Valid {
			if err := json.Unmarshal([]byte(selected.String), &a.Selected); err != nil {
				return nil, fmt.Errorf("decode selected options: %w", err)
			}
		}
		if errsJSON.Valid {
			if err := json.Unmarshal([]byte(errsJSON.String), &a.Errors); err != nil {
				return nil, fmt.Errorf("decode answer errors: %w", err)
			}
		}
		answers = append(answers, a)
	}
	return answers, rows.Err()
}

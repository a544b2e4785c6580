// Package sqlite provides a SQLite-backed outcome ledger.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	sqlitemigrate "github.com/louisbranch/workprint/internal/platform/storage/sqlitemigrate"
	"github.com/louisbranch/workprint/internal/services/quiz/storage"
	"github.com/louisbranch/workprint/internal/services/quiz/storage/sqlite/migrations"
	msqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"
)

const maxListLimit = 200

// Store persists assessment outcomes in SQLite.
type Store struct {
	sqlDB *sql.DB
}

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

// Open opens a SQLite outcome store, creating its directory, and applies
// embedded migrations.
func Open(ctx context.Context, path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	cleanPath := filepath.Clean(path)
	if dir := filepath.Dir(cleanPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create storage dir: %w", err)
		}
	}
	dsn := cleanPath + "?_journal_mode=WAL&_foreign_keys=ON&_busy_timeout=5000&_synchronous=NORMAL"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if err := sqlitemigrate.Apply(ctx, sqlDB, migrations.FS, ""); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &Store{sqlDB: sqlDB}, nil
}

// Close closes the SQLite handle.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

// RecordOutcome inserts one outcome. A second outcome for the same session
// returns storage.ErrAlreadyExists.
func (s *Store) RecordOutcome(ctx context.Context, outcome storage.Outcome) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	sessionID := strings.TrimSpace(outcome.SessionID)
	profile := strings.TrimSpace(outcome.Profile)
	if sessionID == "" {
		return fmt.Errorf("session id is required")
	}
	if profile == "" {
		return fmt.Errorf("profile is required")
	}
	completedAt := outcome.CompletedAt
	if completedAt.IsZero() {
		completedAt = time.Now()
	}

	scores := outcome.Scores
	if scores == nil {
		scores = map[string]int{}
	}
	scoresJSON, err := json.Marshal(scores)
	if err != nil {
		return fmt.Errorf("marshal scores: %w", err)
	}
	answers := make(map[string]string, len(outcome.Answers))
	for question, letter := range outcome.Answers {
		answers[strconv.Itoa(question)] = letter
	}
	answersJSON, err := json.Marshal(answers)
	if err != nil {
		return fmt.Errorf("marshal answers: %w", err)
	}

	_, err = s.sqlDB.ExecContext(
		ctx,
		`INSERT INTO assessment_outcomes (
		   session_id,
		   profile,
		   scores_json,
		   answers_json,
		   answered,
		   completed_at
		 ) VALUES (?, ?, ?, ?, ?, ?)`,
		sessionID,
		profile,
		string(scoresJSON),
		string(answersJSON),
		len(outcome.Answers),
		toMillis(completedAt),
	)
	if err != nil {
		if isOutcomeUniqueViolation(err) {
			return storage.ErrAlreadyExists
		}
		return fmt.Errorf("record outcome: %w", err)
	}
	return nil
}

// GetOutcome returns the outcome recorded for a session.
func (s *Store) GetOutcome(ctx context.Context, sessionID string) (storage.Outcome, error) {
	if err := ctx.Err(); err != nil {
		return storage.Outcome{}, err
	}
	if s == nil || s.sqlDB == nil {
		return storage.Outcome{}, fmt.Errorf("storage is not configured")
	}
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return storage.Outcome{}, fmt.Errorf("session id is required")
	}

	row := s.sqlDB.QueryRowContext(
		ctx,
		`SELECT session_id, profile, scores_json, answers_json, completed_at
		 FROM assessment_outcomes
		 WHERE session_id = ?`,
		sessionID,
	)
	outcome, err := scanOutcome(row)
	if errors.Is(err, sql.ErrNoRows) {
		return storage.Outcome{}, storage.ErrNotFound
	}
	if err != nil {
		return storage.Outcome{}, fmt.Errorf("get outcome: %w", err)
	}
	return outcome, nil
}

// ListOutcomes returns the most recent outcomes first.
func (s *Store) ListOutcomes(ctx context.Context, limit int) ([]storage.Outcome, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}
	if limit <= 0 || limit > maxListLimit {
		limit = maxListLimit
	}

	rows, err := s.sqlDB.QueryContext(
		ctx,
		`SELECT session_id, profile, scores_json, answers_json, completed_at
		 FROM assessment_outcomes
		 ORDER BY completed_at DESC, session_id ASC
		 LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list outcomes: %w", err)
	}
	defer rows.Close()

	var outcomes []storage.Outcome
	for rows.Next() {
		outcome, err := scanOutcome(rows)
		if err != nil {
			return nil, fmt.Errorf("scan outcome: %w", err)
		}
		outcomes = append(outcomes, outcome)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate outcomes: %w", err)
	}
	return outcomes, nil
}

// CountByProfile returns how many outcomes landed on each profile.
func (s *Store) CountByProfile(ctx context.Context) (map[string]int, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}
	rows, err := s.sqlDB.QueryContext(ctx,
		`SELECT profile, COUNT(*) FROM assessment_outcomes GROUP BY profile`)
	if err != nil {
		return nil, fmt.Errorf("count outcomes: %w", err)
	}
	defer rows.Close()

	counts := map[string]int{}
	for rows.Next() {
		var profile string
		var count int
		if err := rows.Scan(&profile, &count); err != nil {
			return nil, fmt.Errorf("scan profile count: %w", err)
		}
		counts[profile] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate profile counts: %w", err)
	}
	return counts, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOutcome(row rowScanner) (storage.Outcome, error) {
	var (
		outcome     storage.Outcome
		scoresJSON  string
		answersJSON string
		completedAt int64
	)
	if err := row.Scan(&outcome.SessionID, &outcome.Profile, &scoresJSON, &answersJSON, &completedAt); err != nil {
		return storage.Outcome{}, err
	}
	if err := json.Unmarshal([]byte(scoresJSON), &outcome.Scores); err != nil {
		return storage.Outcome{}, fmt.Errorf("decode scores: %w", err)
	}
	var answers map[string]string
	if err := json.Unmarshal([]byte(answersJSON), &answers); err != nil {
		return storage.Outcome{}, fmt.Errorf("decode answers: %w", err)
	}
	outcome.Answers = make(map[int]string, len(answers))
	for key, letter := range answers {
		question, err := strconv.Atoi(key)
		if err != nil {
			return storage.Outcome{}, fmt.Errorf("decode answer question %q: %w", key, err)
		}
		outcome.Answers[question] = letter
	}
	outcome.CompletedAt = fromMillis(completedAt)
	return outcome, nil
}

func isOutcomeUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	var sqliteErr *msqlite.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() {
		case sqlite3lib.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3lib.SQLITE_CONSTRAINT_UNIQUE:
			return true
		}
	}
	message := strings.ToLower(err.Error())
	return strings.Contains(message, "unique constraint failed") &&
		strings.Contains(message, "assessment_outcomes.session_id")
}

var _ storage.OutcomeStore = (*Store)(nil)

// Package storage defines persistence contracts for completed assessments.
package storage

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound indicates a requested outcome is missing.
	ErrNotFound = errors.New("record not found")
	// ErrAlreadyExists indicates the session already has a recorded outcome.
	ErrAlreadyExists = errors.New("record already exists")
)

// Outcome is the audit record of one completed assessment.
type Outcome struct {
	SessionID string
	Profile   string
	Scores    map[string]int
	// Answers holds the recorded letter for each answered question.
	Answers     map[int]string
	CompletedAt time.Time
}

// OutcomeStore appends and reads completed assessment outcomes. Outcomes are
// write-once per session.
type OutcomeStore interface {
	RecordOutcome(ctx context.Context, outcome Outcome) error
	GetOutcome(ctx context.Context, sessionID string) (Outcome, error)
	ListOutcomes(ctx context.Context, limit int) ([]Outcome, error)
	CountByProfile(ctx context.Context) (map[string]int, error)
}

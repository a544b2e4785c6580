package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/louisbranch/workprint/internal/services/quiz/storage"
)

func TestOpenRequiresPath(t *testing.T) {
	t.Parallel()

	if _, err := Open(context.Background(), ""); err == nil {
		t.Fatal("expected empty path error")
	}
}

func TestOpenCreatesParentDirectory(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "nested", "data", "workprint.db")
	store, err := Open(context.Background(), path)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	_ = store.Close()
}

func TestRecordGetOutcomeRoundTrip(t *testing.T) {
	t.Parallel()

	store := openTempStore(t)
	completedAt := time.Date(2026, time.March, 3, 10, 30, 0, 0, time.UTC)
	input := storage.Outcome{
		SessionID:   "thread_abc",
		Profile:     "Catalyst",
		Scores:      map[string]int{"drive": 2, "craft": 0, "people": 0, "structure": 1},
		Answers:     map[int]string{1: "A", 2: "D", 3: "B"},
		CompletedAt: completedAt,
	}
	if err := store.RecordOutcome(context.Background(), input); err != nil {
		t.Fatalf("record outcome: %v", err)
	}

	got, err := store.GetOutcome(context.Background(), "thread_abc")
	if err != nil {
		t.Fatalf("get outcome: %v", err)
	}
	if diff := cmp.Diff(input, got); diff != "" {
		t.Fatalf("outcome mismatch (-want +got):\n%s", diff)
	}
}

func TestRecordOutcomeReturnsAlreadyExistsOnDuplicate(t *testing.T) {
	t.Parallel()

	store := openTempStore(t)
	outcome := storage.Outcome{SessionID: "s1", Profile: "Organizer"}
	if err := store.RecordOutcome(context.Background(), outcome); err != nil {
		t.Fatalf("first record: %v", err)
	}
	err := store.RecordOutcome(context.Background(), outcome)
	if !errors.Is(err, storage.ErrAlreadyExists) {
		t.Fatalf("second record error = %v, want %v", err, storage.ErrAlreadyExists)
	}
}

func TestRecordOutcomeValidation(t *testing.T) {
	t.Parallel()

	store := openTempStore(t)
	tests := []storage.Outcome{
		{Profile: "Organizer"},
		{SessionID: "s1", Profile: "  "},
	}
	for _, outcome := range tests {
		if err := store.RecordOutcome(context.Background(), outcome); err == nil {
			t.Fatalf("expected validation error for %+v", outcome)
		}
	}
}

func TestGetOutcomeNotFound(t *testing.T) {
	t.Parallel()

	store := openTempStore(t)
	_, err := store.GetOutcome(context.Background(), "missing")
	if !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("error = %v, want %v", err, storage.ErrNotFound)
	}
}

func TestListOutcomesNewestFirstAndCounts(t *testing.T) {
	t.Parallel()

	store := openTempStore(t)
	base := time.Date(2026, time.March, 1, 0, 0, 0, 0, time.UTC)
	inputs := []storage.Outcome{
		{SessionID: "a", Profile: "Catalyst", CompletedAt: base},
		{SessionID: "b", Profile: "Organizer", CompletedAt: base.Add(time.Hour)},
		{SessionID: "c", Profile: "Catalyst", CompletedAt: base.Add(2 * time.Hour)},
	}
	for _, input := range inputs {
		if err := store.RecordOutcome(context.Background(), input); err != nil {
			t.Fatalf("record %s: %v", input.SessionID, err)
		}
	}

	listed, err := store.ListOutcomes(context.Background(), 2)
	if err != nil {
		t.Fatalf("list outcomes: %v", err)
	}
	if len(listed) != 2 || listed[0].SessionID != "c" || listed[1].SessionID != "b" {
		t.Fatalf("listed = %+v", listed)
	}

	counts, err := store.CountByProfile(context.Background())
	if err != nil {
		t.Fatalf("count by profile: %v", err)
	}
	if diff := cmp.Diff(map[string]int{"Catalyst": 2, "Organizer": 1}, counts); diff != "" {
		t.Fatalf("counts mismatch (-want +got):\n%s", diff)
	}
}

func TestCanceledContext(t *testing.T) {
	t.Parallel()

	store := openTempStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := store.RecordOutcome(ctx, storage.Outcome{SessionID: "s", Profile: "p"}); !errors.Is(err, context.Canceled) {
		t.Fatalf("error = %v, want context.Canceled", err)
	}
}

func openTempStore(t *testing.T) *Store {
	t.Helper()

	store, err := Open(context.Background(), filepath.Join(t.TempDir(), "outcomes.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() {
		if err := store.Close(); err != nil {
			t.Fatalf("close store: %v", err)
		}
	})
	return store
}

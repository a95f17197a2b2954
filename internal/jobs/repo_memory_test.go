package jobs

import (
	"context"
	"errors"
	"testing"
	"time"
)

func seedJob(id, owner, unit, status string, created time.Time) Job {
	return Job{
		AnalysisID: id,
		OwnerID:    owner,
		UnitID:     unit,
		SessionTag: SessionAutoBatch,
		Status:     status,
		CreatedAt:  created,
	}
}

func TestMemoryRepoUpsertIsIdempotent(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepo()
	base := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	job := seedJob("a-1", "u1", "Q1", StatusCompleted, base)
	job.Progress = 100
	if err := repo.Upsert(ctx, job); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	job.Stage = StageCompleted
	if err := repo.Upsert(ctx, job); err != nil {
		t.Fatalf("Upsert again: %v", err)
	}

	all, err := repo.ListRecent(ctx, ListFilter{})
	if err != nil {
		t.Fatalf("ListRecent: %v", err)
	}
	if len(all) != 1 {
		t.Fatalf("expected exactly one record, got %d", len(all))
	}
	if all[0].Stage != StageCompleted || !all[0].CreatedAt.Equal(base) {
		t.Fatalf("expected latest content with original createdAt, got %+v", all[0])
	}
}

func TestMemoryRepoUpsertKeepsCancelled(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepo()
	if err := repo.Insert(ctx, seedJob("a-1", "u1", "Q1", StatusProcessing, time.Now())); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if _, err := repo.Cancel(ctx, "a-1"); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	err := repo.Upsert(ctx, seedJob("a-1", "u1", "Q1", StatusCompleted, time.Now()))
	if !errors.Is(err, ErrCancelled) {
		t.Fatalf("expected ErrCancelled, got %v", err)
	}
	got, _ := repo.GetByID(ctx, "a-1")
	if got.Status != StatusCancelled || got.CancelledAt == nil {
		t.Fatalf("expected cancelled record preserved, got %+v", got)
	}
}

func TestMemoryRepoCancelRequiresProcessing(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepo()
	_ = repo.Insert(ctx, seedJob("done", "u1", "Q1", StatusCompleted, time.Now()))

	if _, err := repo.Cancel(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := repo.Cancel(ctx, "done"); !errors.Is(err, ErrNotProcessing) {
		t.Fatalf("expected ErrNotProcessing, got %v", err)
	}
}

func TestMemoryRepoHandledUnits(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepo()
	now := time.Now()
	_ = repo.Insert(ctx, seedJob("1", "u1", "Q1", StatusCompleted, now))
	_ = repo.Insert(ctx, seedJob("2", "u1", "Q2", StatusError, now))
	_ = repo.Insert(ctx, seedJob("3", "u2", "Q1", StatusError, now))
	_ = repo.Insert(ctx, seedJob("4", "u2", "Q1", StatusError, now))
	_ = repo.Insert(ctx, seedJob("5", "u3", "Q1", StatusError, now))
	_ = repo.Insert(ctx, seedJob("6", "u3", "Q1", StatusProcessing, now))

	tests := []struct {
		name        string
		maxAttempts int
		want        []UnitRef
	}{
		{
			name:        "any record blocks",
			maxAttempts: 1,
			want:        []UnitRef{{"u1", "Q1"}, {"u1", "Q2"}, {"u2", "Q1"}, {"u3", "Q1"}},
		},
		{
			name:        "two errors block",
			maxAttempts: 2,
			want:        []UnitRef{{"u1", "Q1"}, {"u2", "Q1"}, {"u3", "Q1"}},
		},
		{
			name:        "errors retried",
			maxAttempts: 3,
			want:        []UnitRef{{"u1", "Q1"}, {"u3", "Q1"}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := repo.HandledUnits(ctx, tt.maxAttempts)
			if err != nil {
				t.Fatalf("HandledUnits: %v", err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("got %v, want %v", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Fatalf("got %v, want %v", got, tt.want)
				}
			}
		})
	}
}

func TestMemoryRepoUpdateProgressGuardsTerminal(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepo()
	_ = repo.Insert(ctx, seedJob("a-1", "u1", "Q1", StatusProcessing, time.Now()))

	if err := repo.UpdateProgress(ctx, Update{AnalysisID: "a-1", Status: StatusProcessing, Stage: "download", Progress: 10}); err != nil {
		t.Fatalf("UpdateProgress: %v", err)
	}
	got, _ := repo.GetByID(ctx, "a-1")
	if got.Progress != 10 || got.StartedAt == nil {
		t.Fatalf("expected progress 10 with startedAt, got %+v", got)
	}

	if err := repo.UpdateProgress(ctx, Update{AnalysisID: "a-1", Status: StatusError, Stage: StageFailed}); err != nil {
		t.Fatalf("UpdateProgress error: %v", err)
	}
	err := repo.UpdateProgress(ctx, Update{AnalysisID: "a-1", Status: StatusProcessing, Stage: "download", Progress: 30})
	if !errors.Is(err, ErrNotProcessing) {
		t.Fatalf("expected ErrNotProcessing after terminal, got %v", err)
	}
	if err := repo.UpdateProgress(ctx, Update{AnalysisID: "missing", Status: StatusProcessing}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestMemoryRepoStats(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepo()
	now := time.Now()
	_ = repo.Insert(ctx, seedJob("1", "u1", "Q1", StatusCompleted, now))
	_ = repo.Insert(ctx, seedJob("2", "u1", "Q2", StatusError, now))
	manual := seedJob("3", "u2", "Q1", StatusCompleted, now)
	manual.SessionTag = SessionManual
	_ = repo.Insert(ctx, manual)

	stats, err := repo.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats.Total != 3 || stats.ByStatus[StatusCompleted] != 2 || stats.ByStatus[StatusError] != 1 {
		t.Fatalf("unexpected stats %+v", stats)
	}
	if stats.AutoBatchTotal != 2 || stats.AutoBatchComplete != 1 {
		t.Fatalf("unexpected auto batch stats %+v", stats)
	}
	if rate := stats.CompletionRate(); rate < 66 || rate > 67 {
		t.Fatalf("unexpected completion rate %v", rate)
	}
}

func TestNewAnalysisIDIsUniquePerAttempt(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	a := NewAnalysisID(SessionAutoBatch, "u1", "Q1", now)
	b := NewAnalysisID(SessionAutoBatch, "u1", "Q1", now)
	if a == b {
		t.Fatalf("expected distinct ids, got %q twice", a)
	}
	want := "auto_analysis_u1_Q1_20260301_100000_"
	if len(a) != len(want)+8 || a[:len(want)] != want {
		t.Fatalf("unexpected id shape %q", a)
	}
}

func TestSanitizeError(t *testing.T) {
	long := make([]byte, 600)
	for i := range long {
		long[i] = 'x'
	}
	if got := SanitizeError(errors.New("line1\nline2")); got != "line1 line2" {
		t.Fatalf("unexpected %q", got)
	}
	if got := SanitizeError(errors.New(string(long))); len(got) != 500 {
		t.Fatalf("expected 500 chars, got %d", len(got))
	}
}

package jobs

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
)

var jobColumnNames = []string{
	"analysis_id", "owner_id", "unit_id", "session_tag", "status", "stage", "progress",
	"source", "primary_result", "gaze_result", "cheat_signals", "stage_timings", "error_message",
	"created_at", "started_at", "completed_at", "failed_at", "cancelled_at", "updated_at",
}

func newMockRepo(t *testing.T) (*PGRepo, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return &PGRepo{DB: db}, mock
}

func TestPGRepoUpsertReportsCancelled(t *testing.T) {
	repo, mock := newMockRepo(t)
	job := seedJob("a-1", "u1", "Q1", StatusCompleted, time.Now().UTC())

	mock.ExpectExec("INSERT INTO analysis_jobs .* ON CONFLICT \\(analysis_id\\) DO UPDATE SET .* WHERE analysis_jobs.status <> 'cancelled'").
		WillReturnResult(sqlmock.NewResult(0, 0))

	if err := repo.Upsert(context.Background(), job); !errors.Is(err, ErrCancelled) {
		t.Fatalf("expected ErrCancelled, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("ExpectationsWereMet: %v", err)
	}
}

func TestPGRepoInsertDuplicate(t *testing.T) {
	repo, mock := newMockRepo(t)
	job := seedJob("a-1", "u1", "Q1", StatusProcessing, time.Now().UTC())

	mock.ExpectExec("INSERT INTO analysis_jobs .* DO NOTHING").
		WithArgs(
			"a-1", "u1", "Q1", SessionAutoBatch, StatusProcessing, "", 0,
			nil, nil, nil, nil, nil, nil,
			sqlmock.AnyArg(), nil, nil, nil, nil, sqlmock.AnyArg(),
		).
		WillReturnResult(sqlmock.NewResult(0, 0))

	if err := repo.Insert(context.Background(), job); !errors.Is(err, ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("ExpectationsWereMet: %v", err)
	}
}

func TestPGRepoGetByIDDecodesJSON(t *testing.T) {
	repo, mock := newMockRepo(t)
	now := time.Now().UTC()

	rows := sqlmock.NewRows(jobColumnNames).AddRow(
		"a-1", "u1", "Q1", SessionAutoBatch, StatusCompleted, StageCompleted, 100,
		`{"bucket":"skala25a","key":"u1/Q1/a.mp4","size":42}`,
		`{"interviewScore":50,"dominantEmotion":"happy","improvementSuggestions":[]}`,
		`{"totalScore":30,"violationCount":5}`,
		`{"suspectedCopying":true,"violationCount":5}`,
		`{"download":1.5}`,
		nil,
		now, now, now, nil, nil, now,
	)
	mock.ExpectQuery("SELECT .* FROM analysis_jobs WHERE analysis_id = \\$1").
		WithArgs("a-1").
		WillReturnRows(rows)

	job, err := repo.GetByID(context.Background(), "a-1")
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if job.Source == nil || job.Source.Key != "u1/Q1/a.mp4" || job.Source.Size != 42 {
		t.Fatalf("unexpected source %+v", job.Source)
	}
	if job.Primary == nil || job.Primary.InterviewScore != 50 {
		t.Fatalf("unexpected primary %+v", job.Primary)
	}
	if job.Gaze == nil || job.Gaze.ViolationCount != 5 {
		t.Fatalf("unexpected gaze %+v", job.Gaze)
	}
	if job.CheatSignals == nil || !job.CheatSignals.SuspectedCopying {
		t.Fatalf("unexpected signals %+v", job.CheatSignals)
	}
	if job.StageTimings["download"] != 1.5 {
		t.Fatalf("unexpected timings %v", job.StageTimings)
	}
	if job.ErrorMessage != nil || job.FailedAt != nil || job.StartedAt == nil {
		t.Fatalf("unexpected nullable fields %+v", job)
	}
}

func TestPGRepoGetByIDNotFound(t *testing.T) {
	repo, mock := newMockRepo(t)
	mock.ExpectQuery("SELECT .* FROM analysis_jobs").
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows(jobColumnNames))

	if _, err := repo.GetByID(context.Background(), "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestPGRepoHandledUnits(t *testing.T) {
	repo, mock := newMockRepo(t)
	mock.ExpectQuery("HAVING bool_or\\(status <> 'error'\\) OR count\\(\\*\\) >= \\$1").
		WithArgs(3).
		WillReturnRows(sqlmock.NewRows([]string{"owner_id", "unit_id"}).
			AddRow("u1", "Q1").
			AddRow("u2", "Q4"))

	refs, err := repo.HandledUnits(context.Background(), 3)
	if err != nil {
		t.Fatalf("HandledUnits: %v", err)
	}
	if len(refs) != 2 || refs[1] != (UnitRef{OwnerID: "u2", UnitID: "Q4"}) {
		t.Fatalf("unexpected refs %v", refs)
	}
}

func TestPGRepoListRecentBuildsFilters(t *testing.T) {
	repo, mock := newMockRepo(t)
	mock.ExpectQuery("FROM analysis_jobs WHERE status = \\$1 AND owner_id = \\$2 ORDER BY created_at DESC, analysis_id DESC LIMIT 5").
		WithArgs(StatusError, "u1").
		WillReturnRows(sqlmock.NewRows(jobColumnNames))

	jobs, err := repo.ListRecent(context.Background(), ListFilter{Limit: 5, Status: StatusError, OwnerID: "u1"})
	if err != nil {
		t.Fatalf("ListRecent: %v", err)
	}
	if len(jobs) != 0 {
		t.Fatalf("expected empty list, got %d", len(jobs))
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("ExpectationsWereMet: %v", err)
	}
}

func TestPGRepoCancelNotProcessing(t *testing.T) {
	repo, mock := newMockRepo(t)
	mock.ExpectQuery("UPDATE analysis_jobs SET status = 'cancelled'").
		WithArgs("a-1", sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows(jobColumnNames))
	mock.ExpectQuery("SELECT 1 FROM analysis_jobs WHERE analysis_id = \\$1").
		WithArgs("a-1").
		WillReturnRows(sqlmock.NewRows([]string{"?column?"}).AddRow(1))

	if _, err := repo.Cancel(context.Background(), "a-1"); !errors.Is(err, ErrNotProcessing) {
		t.Fatalf("expected ErrNotProcessing, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("ExpectationsWereMet: %v", err)
	}
}

func TestPGRepoStats(t *testing.T) {
	repo, mock := newMockRepo(t)
	mock.ExpectQuery("SELECT status, session_tag, count\\(\\*\\) FROM analysis_jobs GROUP BY status, session_tag").
		WillReturnRows(sqlmock.NewRows([]string{"status", "session_tag", "count"}).
			AddRow(StatusCompleted, SessionAutoBatch, 4).
			AddRow(StatusError, SessionAutoBatch, 1).
			AddRow(StatusCompleted, SessionManual, 2))

	stats, err := repo.Stats(context.Background())
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats.Total != 7 || stats.ByStatus[StatusCompleted] != 6 || stats.AutoBatchTotal != 5 || stats.AutoBatchComplete != 4 {
		t.Fatalf("unexpected stats %+v", stats)
	}
}

package jobs

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
)

// PGRepo implements Repo using Postgres.
type PGRepo struct {
	DB *sql.DB
}

const jobColumns = `analysis_id, owner_id, unit_id, session_tag, status, stage, progress,
       source, primary_result, gaze_result, cheat_signals, stage_timings, error_message,
       created_at, started_at, completed_at, failed_at, cancelled_at, updated_at`

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// Insert creates a new job record.
func (r *PGRepo) Insert(ctx context.Context, job Job) error {
	const query = `
INSERT INTO analysis_jobs (
	analysis_id, owner_id, unit_id, session_tag, status, stage, progress,
	source, primary_result, gaze_result, cheat_signals, stage_timings, error_message,
	created_at, started_at, completed_at, failed_at, cancelled_at, updated_at
)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)
ON CONFLICT (analysis_id) DO NOTHING`
	args, err := jobArgs(job)
	if err != nil {
		return err
	}
	res, err := r.DB.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("insert job %s: %w", job.AnalysisID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrDuplicate
	}
	return nil
}

// Upsert writes the full record unless the stored one is cancelled.
func (r *PGRepo) Upsert(ctx context.Context, job Job) error {
	const query = `
INSERT INTO analysis_jobs (
	analysis_id, owner_id, unit_id, session_tag, status, stage, progress,
	source, primary_result, gaze_result, cheat_signals, stage_timings, error_message,
	created_at, started_at, completed_at, failed_at, cancelled_at, updated_at
)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)
ON CONFLICT (analysis_id) DO UPDATE SET
	owner_id = EXCLUDED.owner_id,
	unit_id = EXCLUDED.unit_id,
	session_tag = EXCLUDED.session_tag,
	status = EXCLUDED.status,
	stage = EXCLUDED.stage,
	progress = EXCLUDED.progress,
	source = EXCLUDED.source,
	primary_result = EXCLUDED.primary_result,
	gaze_result = EXCLUDED.gaze_result,
	cheat_signals = EXCLUDED.cheat_signals,
	stage_timings = EXCLUDED.stage_timings,
	error_message = EXCLUDED.error_message,
	started_at = COALESCE(EXCLUDED.started_at, analysis_jobs.started_at),
	completed_at = EXCLUDED.completed_at,
	failed_at = EXCLUDED.failed_at,
	updated_at = EXCLUDED.updated_at
WHERE analysis_jobs.status <> 'cancelled'`
	if job.UpdatedAt.IsZero() {
		job.UpdatedAt = time.Now().UTC()
	}
	args, err := jobArgs(job)
	if err != nil {
		return err
	}
	res, err := r.DB.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("upsert job %s: %w", job.AnalysisID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrCancelled
	}
	return nil
}

// GetByID returns a job by id.
func (r *PGRepo) GetByID(ctx context.Context, analysisID string) (Job, error) {
	query := `SELECT ` + jobColumns + ` FROM analysis_jobs WHERE analysis_id = $1 LIMIT 1`
	job, err := scanJob(r.DB.QueryRowContext(ctx, query, analysisID))
	if errors.Is(err, sql.ErrNoRows) {
		return Job{}, ErrNotFound
	}
	return job, err
}

// Exists reports whether any record exists for the unit.
func (r *PGRepo) Exists(ctx context.Context, ownerID, unitID string) (bool, error) {
	const query = `SELECT EXISTS (SELECT 1 FROM analysis_jobs WHERE owner_id = $1 AND unit_id = $2)`
	var exists bool
	if err := r.DB.QueryRowContext(ctx, query, ownerID, unitID).Scan(&exists); err != nil {
		return false, err
	}
	return exists, nil
}

// HandledUnits implements Repo.
func (r *PGRepo) HandledUnits(ctx context.Context, maxAttempts int) ([]UnitRef, error) {
	const query = `
SELECT owner_id, unit_id
FROM analysis_jobs
GROUP BY owner_id, unit_id
HAVING bool_or(status <> 'error') OR count(*) >= $1
ORDER BY owner_id, unit_id`
	rows, err := r.DB.QueryContext(ctx, query, maxAttempts)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []UnitRef{}
	for rows.Next() {
		var ref UnitRef
		if err := rows.Scan(&ref.OwnerID, &ref.UnitID); err != nil {
			return nil, err
		}
		out = append(out, ref)
	}
	return out, rows.Err()
}

// ListRecent returns jobs newest first.
func (r *PGRepo) ListRecent(ctx context.Context, filter ListFilter) ([]Job, error) {
	builder := psql.Select(jobColumns).From("analysis_jobs").OrderBy("created_at DESC", "analysis_id DESC")
	if filter.Status != "" {
		builder = builder.Where(sq.Eq{"status": filter.Status})
	}
	if filter.OwnerID != "" {
		builder = builder.Where(sq.Eq{"owner_id": filter.OwnerID})
	}
	if filter.SessionTag != "" {
		builder = builder.Where(sq.Eq{"session_tag": filter.SessionTag})
	}
	if filter.Limit > 0 {
		builder = builder.Limit(uint64(filter.Limit))
	}
	query, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list query: %w", err)
	}

	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []Job{}
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, job)
	}
	return out, rows.Err()
}

// UpdateProgress implements Repo.
func (r *PGRepo) UpdateProgress(ctx context.Context, u Update) error {
	const query = `
UPDATE analysis_jobs
SET status = $2,
    stage = $3,
    progress = $4,
    updated_at = $5,
    started_at = CASE WHEN $2 = 'processing' THEN COALESCE(started_at, $5) ELSE started_at END,
    completed_at = CASE WHEN $2 = 'completed' THEN COALESCE(completed_at, $5) ELSE completed_at END,
    failed_at = CASE WHEN $2 = 'error' THEN COALESCE(failed_at, $5) ELSE failed_at END
WHERE analysis_id = $1
  AND (status IN ('pending', 'processing') OR status = $2)`
	at := u.At
	if at.IsZero() {
		at = time.Now().UTC()
	}
	res, err := r.DB.ExecContext(ctx, query, u.AnalysisID, u.Status, u.Stage, u.Progress, at)
	if err != nil {
		return fmt.Errorf("update progress %s: %w", u.AnalysisID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return r.missingOrSettled(ctx, u.AnalysisID)
	}
	return nil
}

// Cancel implements Repo.
func (r *PGRepo) Cancel(ctx context.Context, analysisID string) (Job, error) {
	query := `
UPDATE analysis_jobs
SET status = 'cancelled', cancelled_at = $2, updated_at = $2
WHERE analysis_id = $1 AND status = 'processing'
RETURNING ` + jobColumns
	job, err := scanJob(r.DB.QueryRowContext(ctx, query, analysisID, time.Now().UTC()))
	if errors.Is(err, sql.ErrNoRows) {
		return Job{}, r.missingOrSettled(ctx, analysisID)
	}
	return job, err
}

// Stats implements Repo.
func (r *PGRepo) Stats(ctx context.Context) (Stats, error) {
	const query = `SELECT status, session_tag, count(*) FROM analysis_jobs GROUP BY status, session_tag`
	rows, err := r.DB.QueryContext(ctx, query)
	if err != nil {
		return Stats{}, err
	}
	defer rows.Close()

	stats := Stats{ByStatus: map[string]int{}}
	for rows.Next() {
		var status, tag string
		var count int
		if err := rows.Scan(&status, &tag, &count); err != nil {
			return Stats{}, err
		}
		stats.Total += count
		stats.ByStatus[status] += count
		if tag == SessionAutoBatch {
			stats.AutoBatchTotal += count
			if status == StatusCompleted {
				stats.AutoBatchComplete += count
			}
		}
	}
	return stats, rows.Err()
}

func (r *PGRepo) missingOrSettled(ctx context.Context, analysisID string) error {
	var one int
	err := r.DB.QueryRowContext(ctx, `SELECT 1 FROM analysis_jobs WHERE analysis_id = $1`, analysisID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	return ErrNotProcessing
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (Job, error) {
	var job Job
	var source, primary, gaze, signals, timings sql.NullString
	var errorMessage sql.NullString
	var startedAt, completedAt, failedAt, cancelledAt sql.NullTime
	err := row.Scan(
		&job.AnalysisID,
		&job.OwnerID,
		&job.UnitID,
		&job.SessionTag,
		&job.Status,
		&job.Stage,
		&job.Progress,
		&source,
		&primary,
		&gaze,
		&signals,
		&timings,
		&errorMessage,
		&job.CreatedAt,
		&startedAt,
		&completedAt,
		&failedAt,
		&cancelledAt,
		&job.UpdatedAt,
	)
	if err != nil {
		return Job{}, err
	}
	if err := unmarshalNullable(source, &job.Source); err != nil {
		return Job{}, fmt.Errorf("decode source: %w", err)
	}
	if err := unmarshalNullable(primary, &job.Primary); err != nil {
		return Job{}, fmt.Errorf("decode primary result: %w", err)
	}
	if err := unmarshalNullable(gaze, &job.Gaze); err != nil {
		return Job{}, fmt.Errorf("decode gaze result: %w", err)
	}
	if err := unmarshalNullable(signals, &job.CheatSignals); err != nil {
		return Job{}, fmt.Errorf("decode cheat signals: %w", err)
	}
	if err := unmarshalNullable(timings, &job.StageTimings); err != nil {
		return Job{}, fmt.Errorf("decode stage timings: %w", err)
	}
	if errorMessage.Valid {
		job.ErrorMessage = &errorMessage.String
	}
	job.StartedAt = nullTime(startedAt)
	job.CompletedAt = nullTime(completedAt)
	job.FailedAt = nullTime(failedAt)
	job.CancelledAt = nullTime(cancelledAt)
	return job, nil
}

func jobArgs(job Job) ([]any, error) {
	source, err := marshalNullable(job.Source)
	if err != nil {
		return nil, err
	}
	primary, err := marshalNullable(job.Primary)
	if err != nil {
		return nil, err
	}
	gaze, err := marshalNullable(job.Gaze)
	if err != nil {
		return nil, err
	}
	signals, err := marshalNullable(job.CheatSignals)
	if err != nil {
		return nil, err
	}
	var timings any
	if job.StageTimings != nil {
		b, err := json.Marshal(job.StageTimings)
		if err != nil {
			return nil, err
		}
		timings = b
	}
	var errorMessage any
	if job.ErrorMessage != nil {
		errorMessage = *job.ErrorMessage
	}
	createdAt := job.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	updatedAt := job.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = createdAt
	}
	return []any{
		job.AnalysisID,
		job.OwnerID,
		job.UnitID,
		job.SessionTag,
		job.Status,
		job.Stage,
		job.Progress,
		source,
		primary,
		gaze,
		signals,
		timings,
		errorMessage,
		createdAt,
		timeArg(job.StartedAt),
		timeArg(job.CompletedAt),
		timeArg(job.FailedAt),
		timeArg(job.CancelledAt),
		updatedAt,
	}, nil
}

func marshalNullable[T any](v *T) (any, error) {
	if v == nil {
		return nil, nil
	}
	return json.Marshal(v)
}

func unmarshalNullable[T any](raw sql.NullString, dst *T) error {
	if !raw.Valid || raw.String == "" || raw.String == "null" {
		return nil
	}
	return json.Unmarshal([]byte(raw.String), dst)
}

func timeArg(t *time.Time) any {
	if t == nil {
		return nil
	}
	return *t
}

func nullTime(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}

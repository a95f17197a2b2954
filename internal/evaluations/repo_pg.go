package evaluations

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
)

// PGRepo implements Repo using Postgres.
type PGRepo struct {
	DB *sql.DB
}

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

var evaluationColumns = []string{
	"owner_id", "unit_id", "analysis_id", "primary_score", "gaze_score",
	"suspected_copying", "suspected_impersonation", "strength_keywords", "weakness_keywords",
	"comment_text", "created_at", "updated_at",
}

// Upsert implements Repo.
func (r *PGRepo) Upsert(ctx context.Context, e Evaluation) error {
	now := time.Now().UTC()
	query, args, err := psql.Insert("evaluations").
		Columns(evaluationColumns...).
		Values(
			e.OwnerID, e.UnitID, e.AnalysisID, e.PrimaryScore, e.GazeScore,
			e.SuspectedCopying, e.SuspectedImpersonation, e.StrengthKeywords, e.WeaknessKeywords,
			e.CommentText, now, now,
		).
		Suffix(`ON CONFLICT (owner_id, unit_id) DO UPDATE SET
	analysis_id = EXCLUDED.analysis_id,
	primary_score = EXCLUDED.primary_score,
	gaze_score = EXCLUDED.gaze_score,
	suspected_copying = EXCLUDED.suspected_copying,
	suspected_impersonation = EXCLUDED.suspected_impersonation,
	strength_keywords = EXCLUDED.strength_keywords,
	weakness_keywords = EXCLUDED.weakness_keywords,
	comment_text = EXCLUDED.comment_text,
	updated_at = EXCLUDED.updated_at`).
		ToSql()
	if err != nil {
		return fmt.Errorf("build upsert: %w", err)
	}
	if _, err := r.DB.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("upsert evaluation %s/%s: %w", e.OwnerID, e.UnitID, err)
	}
	return nil
}

// Get implements Repo.
func (r *PGRepo) Get(ctx context.Context, ownerID, unitID string) (Evaluation, error) {
	items, err := r.query(ctx, sq.Eq{"owner_id": ownerID, "unit_id": unitID}, 1)
	if err != nil {
		return Evaluation{}, err
	}
	if len(items) == 0 {
		return Evaluation{}, ErrNotFound
	}
	return items[0], nil
}

// ListByOwner implements Repo.
func (r *PGRepo) ListByOwner(ctx context.Context, ownerID string) ([]Evaluation, error) {
	return r.query(ctx, sq.Eq{"owner_id": ownerID}, 0)
}

func (r *PGRepo) query(ctx context.Context, where sq.Eq, limit uint64) ([]Evaluation, error) {
	builder := psql.Select(evaluationColumns...).From("evaluations").Where(where).OrderBy("unit_id")
	if limit > 0 {
		builder = builder.Limit(limit)
	}
	query, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select: %w", err)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []Evaluation{}
	for rows.Next() {
		var e Evaluation
		if err := rows.Scan(
			&e.OwnerID,
			&e.UnitID,
			&e.AnalysisID,
			&e.PrimaryScore,
			&e.GazeScore,
			&e.SuspectedCopying,
			&e.SuspectedImpersonation,
			&e.StrengthKeywords,
			&e.WeaknessKeywords,
			&e.CommentText,
			&e.CreatedAt,
			&e.UpdatedAt,
		); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

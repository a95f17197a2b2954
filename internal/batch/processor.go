package batch

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"interview-analyzer/internal/evaluations"
	"interview-analyzer/internal/jobs"
	"interview-analyzer/internal/llm"
	"interview-analyzer/internal/scoring"
)

const keywordSeparator = ", "

// CommentaryProcessor turns a completed job into an evaluation record.
type CommentaryProcessor struct {
	Jobs        jobs.Repo
	Generator   llm.CommentaryGenerator
	Keywords    llm.KeywordAnalyzer
	Evaluations evaluations.Repo
	Now         func() time.Time
}

// Process implements Processor.
func (p *CommentaryProcessor) Process(ctx context.Context, e Entry) error {
	job, err := p.Jobs.GetByID(ctx, e.AnalysisID)
	if err != nil {
		if errors.Is(err, jobs.ErrNotFound) {
			return fmt.Errorf("%w: job not found", ErrSkipped)
		}
		return fmt.Errorf("load job: %w", err)
	}
	if job.Status != jobs.StatusCompleted {
		return fmt.Errorf("%w: job status %s", ErrSkipped, job.Status)
	}
	if job.Primary == nil || job.Gaze == nil {
		return fmt.Errorf("%w: stage results incomplete", ErrSkipped)
	}

	commentary, err := p.Generator.GenerateCommentary(ctx, *job.Primary, *job.Gaze)
	if err != nil {
		return llm.GenerationError("commentary", err)
	}

	signals := scoring.DeriveCheatSignals(*job.Gaze)
	strengths, weaknesses := commentary.StrengthKeywords, commentary.WeaknessKeywords
	if p.Keywords != nil && (len(strengths) == 0 || len(weaknesses) == 0) {
		kw := p.Keywords.AnalyzeKeywords(*job.Primary, *job.Gaze, signals)
		if len(strengths) == 0 {
			strengths = kw.Strengths
		}
		if len(weaknesses) == 0 {
			weaknesses = kw.Weaknesses
		}
	}

	now := time.Now
	if p.Now != nil {
		now = p.Now
	}
	eval := evaluations.Evaluation{
		OwnerID:                job.OwnerID,
		UnitID:                 job.UnitID,
		AnalysisID:             job.AnalysisID,
		PrimaryScore:           job.Primary.InterviewScore,
		GazeScore:              job.Gaze.TotalScore,
		SuspectedCopying:       signals.SuspectedCopying,
		SuspectedImpersonation: signals.SuspectedImpersonation,
		StrengthKeywords:       strings.Join(strengths, keywordSeparator),
		WeaknessKeywords:       strings.Join(weaknesses, keywordSeparator),
		CommentText:            commentary.Comment,
		UpdatedAt:              now().UTC(),
	}
	if err := p.Evaluations.Upsert(ctx, eval); err != nil {
		return fmt.Errorf("save evaluation: %w", err)
	}
	return nil
}

var _ Processor = (*CommentaryProcessor)(nil)

package analysis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"interview-analyzer/internal/batch"
	"interview-analyzer/internal/jobs"
	"interview-analyzer/internal/scoring"
	"interview-analyzer/internal/shared/metrics"
	"interview-analyzer/internal/shared/telemetry"
)

// Progress checkpoints published while a job runs.
const (
	ProgressDownload   = 10
	ProgressPrimary    = 30
	ProgressGaze       = 60
	ProgressPersisting = 80
	ProgressMerged     = 95
	ProgressCompleted  = 100
)

const timingTotal = "total"

// process runs one unit through download, primary scoring, gaze scoring and
// persistence. It never returns an error: failures end as an error record.
func (o *Orchestrator) process(ctx context.Context, item workItem) jobs.Job {
	job := item.job
	if !item.recorded {
		if err := o.jobs.Insert(ctx, job); err != nil {
			telemetry.Error("job.record_failed", withFields(job, map[string]any{"error": err}))
			metrics.IncJobsFailed()
			msg := jobs.SanitizeError(err)
			job.Status = jobs.StatusError
			job.Stage = jobs.StageFailed
			job.ErrorMessage = &msg
			return job
		}
	}

	started := o.now()
	metrics.IncJobsStarted()
	telemetry.Info("job.status", withFields(job, map[string]any{
		"session_tag":       job.SessionTag,
		"status":            jobs.StatusProcessing,
		"status_transition": "created->processing",
	}))

	timings := map[string]float64{}
	if item.locateErr != nil {
		return o.fail(ctx, job, &scoring.StageError{Stage: scoring.StageDownload, Err: item.locateErr}, timings, started)
	}

	o.publish(ctx, job, jobs.StatusProcessing, scoring.StageDownload, ProgressDownload)
	stageStart := o.now()
	media, err := o.pipeline.Download(ctx, item.obj)
	timings[scoring.StageDownload] = o.since(stageStart)
	if err != nil {
		return o.fail(ctx, job, err, timings, started)
	}
	defer func() {
		if err := media.Cleanup(); err != nil {
			telemetry.Warn("job.cleanup_failed", withFields(job, map[string]any{"error": err}))
		}
	}()

	o.publish(ctx, job, jobs.StatusProcessing, scoring.StagePrimary, ProgressPrimary)
	stageStart = o.now()
	primary, err := o.pipeline.ScorePrimary(ctx, media)
	timings[scoring.StagePrimary] = o.since(stageStart)
	if err != nil {
		return o.fail(ctx, job, err, timings, started)
	}

	o.publish(ctx, job, jobs.StatusProcessing, scoring.StageGaze, ProgressGaze)
	stageStart = o.now()
	gaze, err := o.pipeline.ScoreGaze(ctx, media)
	timings[scoring.StageGaze] = o.since(stageStart)
	if err != nil {
		return o.fail(ctx, job, err, timings, started)
	}

	o.publish(ctx, job, jobs.StatusProcessing, jobs.StagePersisting, ProgressPersisting)
	signals := scoring.DeriveCheatSignals(gaze)
	job.Primary = &primary
	job.Gaze = &gaze
	job.CheatSignals = &signals
	if job.Source != nil {
		src := *job.Source
		src.Size = media.Size
		job.Source = &src
	}
	o.publish(ctx, job, jobs.StatusProcessing, jobs.StagePersisting, ProgressMerged)

	return o.complete(ctx, job, timings, started)
}

func (o *Orchestrator) complete(ctx context.Context, job jobs.Job, timings map[string]float64, started time.Time) jobs.Job {
	persistCtx := context.WithoutCancel(ctx)
	finished := o.now().UTC()
	timings[timingTotal] = finished.Sub(started).Seconds()
	job.Status = jobs.StatusCompleted
	job.Stage = jobs.StageCompleted
	job.Progress = ProgressCompleted
	job.CompletedAt = &finished
	job.UpdatedAt = finished
	job.StageTimings = timings

	if err := o.jobs.Upsert(persistCtx, job); err != nil {
		if errors.Is(err, jobs.ErrCancelled) {
			return o.keepCancelled(persistCtx, job)
		}
		return o.fail(ctx, job, &scoring.StageError{Stage: jobs.StagePersisting, Err: fmt.Errorf("persist result: %w", err)}, timings, started)
	}

	queued := false
	if o.batch != nil {
		queued = o.batch.Enqueue(batch.Entry{
			AnalysisID: job.AnalysisID,
			OwnerID:    job.OwnerID,
			UnitID:     job.UnitID,
			EnqueuedAt: finished,
		})
	}
	o.publish(persistCtx, job, jobs.StatusCompleted, jobs.StageCompleted, ProgressCompleted)

	durationMs := float64(finished.Sub(started).Microseconds()) / 1000.0
	metrics.IncJobsCompleted()
	metrics.ObserveJobDurationMs(durationMs)
	telemetry.Info("job.status", withFields(job, map[string]any{
		"status":                  jobs.StatusCompleted,
		"status_transition":       "processing->completed",
		"duration_ms":             durationMs,
		"primary_score":           job.Primary.InterviewScore,
		"gaze_score":              job.Gaze.TotalScore,
		"suspected_copying":       job.CheatSignals.SuspectedCopying,
		"suspected_impersonation": job.CheatSignals.SuspectedImpersonation,
		"commentary_queued":       queued,
	}))
	return job
}

// fail publishes the failure and upserts an error record. Write failures are
// logged and swallowed.
func (o *Orchestrator) fail(ctx context.Context, job jobs.Job, cause error, timings map[string]float64, started time.Time) jobs.Job {
	persistCtx := context.WithoutCancel(ctx)
	o.publish(persistCtx, job, jobs.StatusError, jobs.StageFailed, 0)

	failedAt := o.now().UTC()
	msg := jobs.SanitizeError(cause)
	job.Status = jobs.StatusError
	job.Stage = jobs.StageFailed
	job.Progress = 0
	job.FailedAt = &failedAt
	job.UpdatedAt = failedAt
	job.ErrorMessage = &msg
	if len(timings) > 0 {
		job.StageTimings = timings
	}

	if err := o.jobs.Upsert(persistCtx, job); err != nil {
		if errors.Is(err, jobs.ErrCancelled) {
			return o.keepCancelled(persistCtx, job)
		}
		telemetry.Error("job.error_record_failed", withFields(job, map[string]any{
			"error": err,
			"cause": cause,
		}))
	}

	durationMs := float64(failedAt.Sub(started).Microseconds()) / 1000.0
	metrics.IncJobsFailed()
	metrics.ObserveJobDurationMs(durationMs)
	telemetry.Error("job.failed", withFields(job, map[string]any{
		"status":            jobs.StatusError,
		"status_transition": "processing->error",
		"stage":             scoring.FailedStage(cause),
		"error":             cause,
		"duration_ms":       durationMs,
	}))
	return job
}

// keepCancelled returns the stored cancelled record after a result write was refused.
func (o *Orchestrator) keepCancelled(ctx context.Context, job jobs.Job) jobs.Job {
	telemetry.Info("job.result_discarded", withFields(job, map[string]any{
		"status":            jobs.StatusCancelled,
		"status_transition": "processing->cancelled",
	}))
	stored, err := o.jobs.GetByID(ctx, job.AnalysisID)
	if err != nil {
		job.Status = jobs.StatusCancelled
		return job
	}
	return stored
}

func (o *Orchestrator) publish(ctx context.Context, job jobs.Job, status, stage string, progress int) {
	jobs.PublishBestEffort(ctx, o.sink, jobs.Update{
		AnalysisID: job.AnalysisID,
		Status:     status,
		Stage:      stage,
		Progress:   progress,
		At:         o.now().UTC(),
	})
}

func (o *Orchestrator) since(t time.Time) float64 {
	return o.now().Sub(t).Seconds()
}

package jobs

import (
	"context"
	"errors"

	"interview-analyzer/internal/shared/telemetry"
)

// StatusSink receives live status updates. Publication is best-effort:
// callers ignore the returned error after logging it.
type StatusSink interface {
	Publish(ctx context.Context, u Update) error
}

// RepoSink writes updates onto the job row.
type RepoSink struct {
	Repo Repo
}

// Publish implements StatusSink.
func (s RepoSink) Publish(ctx context.Context, u Update) error {
	return s.Repo.UpdateProgress(ctx, u)
}

// PublishBestEffort publishes u and logs any failure. It never returns an error.
func PublishBestEffort(ctx context.Context, sink StatusSink, u Update) {
	if sink == nil {
		return
	}
	if err := sink.Publish(ctx, u); err != nil {
		level := telemetry.Warn
		if !errors.Is(err, ErrNotProcessing) && !errors.Is(err, ErrNotFound) {
			level = telemetry.Error
		}
		level("job.status_publish_failed", map[string]any{
			"analysis_id": u.AnalysisID,
			"status":      u.Status,
			"stage":       u.Stage,
			"progress":    u.Progress,
			"error":       err,
		})
	}
}

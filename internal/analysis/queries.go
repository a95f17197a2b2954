package analysis

import (
	"context"
	"time"

	"interview-analyzer/internal/batch"
	"interview-analyzer/internal/evaluations"
	"interview-analyzer/internal/jobs"
	"interview-analyzer/internal/shared/storage/object"
	"interview-analyzer/internal/shared/telemetry"
)

const (
	DefaultListLimit = 10
	MaxListLimit     = 100
)

// StatusView is the lightweight status of one job.
type StatusView struct {
	AnalysisID   string    `json:"analysisId"`
	OwnerID      string    `json:"ownerId"`
	UnitID       string    `json:"unitId"`
	Status       string    `json:"status"`
	Stage        string    `json:"stage"`
	Progress     int       `json:"progress"`
	ErrorMessage *string   `json:"errorMessage,omitempty"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// ScanStatus aggregates job history for the status endpoint.
type ScanStatus struct {
	ScanActive              bool        `json:"scanActive"`
	Stats                   jobs.Stats  `json:"stats"`
	CompletionRate          float64     `json:"completionRate"`
	AutoBatchCompletionRate float64     `json:"autoBatchCompletionRate"`
	Recent                  []jobs.Job  `json:"recent"`
	LastScan                *ScanReport `json:"lastScan,omitempty"`
}

// BatchStatus describes the commentary queue.
type BatchStatus struct {
	Active       bool          `json:"active"`
	PendingCount int           `json:"pendingCount"`
	Queue        []batch.Entry `json:"queue"`
	LastDrain    *batch.Report `json:"lastDrain,omitempty"`
}

// GetJob returns the full job record.
func (o *Orchestrator) GetJob(ctx context.Context, analysisID string) (jobs.Job, error) {
	return o.jobs.GetByID(ctx, analysisID)
}

// GetEvaluation returns the commentary written for a job. Evaluations are
// kept per unit, so one replaced by a later run of the same unit is reported
// as evaluations.ErrNotFound.
func (o *Orchestrator) GetEvaluation(ctx context.Context, analysisID string) (evaluations.Evaluation, error) {
	job, err := o.jobs.GetByID(ctx, analysisID)
	if err != nil {
		return evaluations.Evaluation{}, err
	}
	if o.evals == nil {
		return evaluations.Evaluation{}, evaluations.ErrNotFound
	}
	eval, err := o.evals.Get(ctx, job.OwnerID, job.UnitID)
	if err != nil {
		return evaluations.Evaluation{}, err
	}
	if eval.AnalysisID != "" && eval.AnalysisID != job.AnalysisID {
		return evaluations.Evaluation{}, evaluations.ErrNotFound
	}
	return eval, nil
}

// GetStatus returns the job's live status.
func (o *Orchestrator) GetStatus(ctx context.Context, analysisID string) (StatusView, error) {
	job, err := o.jobs.GetByID(ctx, analysisID)
	if err != nil {
		return StatusView{}, err
	}
	return StatusView{
		AnalysisID:   job.AnalysisID,
		OwnerID:      job.OwnerID,
		UnitID:       job.UnitID,
		Status:       job.Status,
		Stage:        job.Stage,
		Progress:     job.Progress,
		ErrorMessage: job.ErrorMessage,
		UpdatedAt:    job.UpdatedAt,
	}, nil
}

// ListRecent returns jobs newest first. The limit defaults to 10 and is capped at 100.
func (o *Orchestrator) ListRecent(ctx context.Context, filter jobs.ListFilter) ([]jobs.Job, error) {
	filter.Limit = ClampLimit(filter.Limit)
	return o.jobs.ListRecent(ctx, filter)
}

// ClampLimit applies the list defaults.
func ClampLimit(limit int) int {
	if limit <= 0 {
		return DefaultListLimit
	}
	if limit > MaxListLimit {
		return MaxListLimit
	}
	return limit
}

// CancelJob marks a processing job cancelled. The pipeline keeps running but
// its result is discarded.
func (o *Orchestrator) CancelJob(ctx context.Context, analysisID string) (jobs.Job, error) {
	job, err := o.jobs.Cancel(ctx, analysisID)
	if err != nil {
		return jobs.Job{}, err
	}
	telemetry.Info("job.status", withFields(job, map[string]any{
		"status":            jobs.StatusCancelled,
		"status_transition": "processing->cancelled",
	}))
	return job, nil
}

// ScanStatus reports statistics and the most recent jobs.
func (o *Orchestrator) ScanStatus(ctx context.Context) (ScanStatus, error) {
	stats, err := o.jobs.Stats(ctx)
	if err != nil {
		return ScanStatus{}, err
	}
	recent, err := o.jobs.ListRecent(ctx, jobs.ListFilter{Limit: DefaultListLimit})
	if err != nil {
		return ScanStatus{}, err
	}
	status := ScanStatus{
		ScanActive:     o.ScanActive(),
		Stats:          stats,
		CompletionRate: round1(stats.CompletionRate()),
		Recent:         recent,
	}
	if stats.AutoBatchTotal > 0 {
		status.AutoBatchCompletionRate = round1(float64(stats.AutoBatchComplete) / float64(stats.AutoBatchTotal) * 100)
	}
	if last, ok := o.LastScan(); ok {
		status.LastScan = &last
	}
	return status, nil
}

// TriggerBatch starts a drain in the background regardless of inventory state.
// It returns the number of queued entries and whether a drain was started.
func (o *Orchestrator) TriggerBatch() (int, bool) {
	if o.batch == nil {
		return 0, false
	}
	pending := o.batch.Len()
	if pending == 0 {
		return 0, false
	}
	return pending, o.batch.Start(o.baseContext())
}

// DrainBatch runs a drain synchronously.
func (o *Orchestrator) DrainBatch(ctx context.Context) batch.Report {
	if o.batch == nil {
		return batch.Report{Reason: batch.ReasonEmpty}
	}
	return o.batch.Drain(ctx)
}

// BatchStatus reports the commentary queue state.
func (o *Orchestrator) BatchStatus() BatchStatus {
	if o.batch == nil {
		return BatchStatus{Queue: []batch.Entry{}}
	}
	queue := o.batch.Pending()
	if queue == nil {
		queue = []batch.Entry{}
	}
	status := BatchStatus{
		Active:       o.batch.Active(),
		PendingCount: len(queue),
		Queue:        queue,
	}
	if last, ok := o.batch.LastReport(); ok {
		status.LastDrain = &last
	}
	return status
}

// ListInventory returns owner id -> unit ids present in the content store.
func (o *Orchestrator) ListInventory(ctx context.Context) (map[string][]string, error) {
	return o.scanner.ListUnits(ctx, o.bucket)
}

// LocateUnit returns the media object backing one unit.
func (o *Orchestrator) LocateUnit(ctx context.Context, ownerID, unitID string) (object.Object, error) {
	return o.scanner.Locate(ctx, o.bucket, ownerID, unitID)
}

func round1(v float64) float64 {
	return float64(int64(v*10+0.5)) / 10
}

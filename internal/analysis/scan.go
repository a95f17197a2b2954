package analysis

import (
	"context"
	"errors"
	"time"

	"interview-analyzer/internal/inventory"
	"interview-analyzer/internal/jobs"
	"interview-analyzer/internal/shared/telemetry"
)

// ScanReport summarises one inventory pass.
type ScanReport struct {
	StartedAt      time.Time `json:"startedAt"`
	FinishedAt     time.Time `json:"finishedAt"`
	Discovered     int       `json:"discovered"`
	Completed      int       `json:"completed"`
	Failed         int       `json:"failed"`
	Cancelled      int       `json:"cancelled"`
	Interrupted    bool      `json:"interrupted,omitempty"`
	BatchTriggered bool      `json:"batchTriggered"`
	Error          string    `json:"error,omitempty"`
}

// ScanActive reports whether an inventory pass is running.
func (o *Orchestrator) ScanActive() bool {
	return o.scanActive.Load()
}

// LastScan returns the most recent finished pass.
func (o *Orchestrator) LastScan() (ScanReport, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.lastScan == nil {
		return ScanReport{}, false
	}
	return *o.lastScan, true
}

// RestartScan starts a background pass. It returns false when one is already running.
func (o *Orchestrator) RestartScan() bool {
	if !o.scanActive.CompareAndSwap(false, true) {
		return false
	}
	ctx := o.baseContext()
	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		_, _ = o.runScanLocked(ctx)
	}()
	return true
}

// RunScan performs a pass synchronously: every new unit goes through the
// worker in owner/unit order with the inter-job delay between units.
func (o *Orchestrator) RunScan(ctx context.Context) (ScanReport, error) {
	if !o.scanActive.CompareAndSwap(false, true) {
		return ScanReport{}, ErrScanActive
	}
	return o.runScanLocked(ctx)
}

// runScanLocked requires scanActive to be held and releases it.
func (o *Orchestrator) runScanLocked(ctx context.Context) (ScanReport, error) {
	report, err := o.scan(ctx)
	o.scanActive.Store(false)
	if err != nil {
		report.Error = err.Error()
	} else {
		triggered, checkErr := o.CheckAndTriggerBatch(ctx)
		if checkErr != nil {
			telemetry.Warn("batch.check_failed", map[string]any{"error": checkErr})
		}
		report.BatchTriggered = triggered
	}

	o.mu.Lock()
	saved := report
	o.lastScan = &saved
	o.mu.Unlock()
	return report, err
}

func (o *Orchestrator) scan(ctx context.Context) (ScanReport, error) {
	report := ScanReport{StartedAt: o.now().UTC()}
	telemetry.Info("scan.started", map[string]any{"bucket": o.bucket})

	units, err := o.scanner.Scan(ctx, o.bucket)
	if err != nil {
		report.FinishedAt = o.now().UTC()
		telemetry.Error("scan.aborted", map[string]any{"bucket": o.bucket, "error": err})
		return report, err
	}
	report.Discovered = len(units)

	for i, unit := range units {
		item := o.scanItem(ctx, unit)
		job, _, err := o.submit(ctx, item)
		if err != nil {
			report.Interrupted = true
			break
		}
		switch job.Status {
		case jobs.StatusCompleted:
			report.Completed++
		case jobs.StatusCancelled:
			report.Cancelled++
		default:
			report.Failed++
		}
		telemetry.Info("scan.progress", withFields(job, map[string]any{
			"index":  i + 1,
			"total":  len(units),
			"status": job.Status,
		}))

		if i == len(units)-1 {
			break
		}
		if err := o.sleep(ctx, o.interJobDelay); err != nil {
			report.Interrupted = true
			break
		}
	}

	report.FinishedAt = o.now().UTC()
	telemetry.Info("scan.finished", map[string]any{
		"bucket":      o.bucket,
		"discovered":  report.Discovered,
		"completed":   report.Completed,
		"failed":      report.Failed,
		"cancelled":   report.Cancelled,
		"interrupted": report.Interrupted,
		"duration_ms": report.FinishedAt.Sub(report.StartedAt).Milliseconds(),
	})
	if report.Interrupted {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		return report, ErrStopped
	}
	return report, nil
}

// scanItem builds an unrecorded work item; the worker inserts the record when
// it picks the unit.
func (o *Orchestrator) scanItem(ctx context.Context, unit inventory.UnitKey) workItem {
	obj, err := o.scanner.Locate(ctx, o.bucket, unit.OwnerID, unit.UnitID)
	if err != nil {
		job := o.newJob(unit.OwnerID, unit.UnitID, jobs.SessionAutoBatch, nil)
		return workItem{job: job, locateErr: err, done: make(chan jobs.Job, 1)}
	}
	job := o.newJob(unit.OwnerID, unit.UnitID, jobs.SessionAutoBatch, &obj)
	return workItem{job: job, obj: obj, done: make(chan jobs.Job, 1)}
}

// CheckAndTriggerBatch starts a commentary drain when every unit in the
// inventory has been attempted at least once and the queue is non-empty.
// Units that failed and await a retry do not hold the drain back.
func (o *Orchestrator) CheckAndTriggerBatch(ctx context.Context) (bool, error) {
	if o.batch == nil {
		return false, nil
	}
	queued := o.batch.Len()
	if queued == 0 {
		return false, nil
	}
	pending, err := o.scanner.Unattempted(ctx, o.bucket)
	if err != nil {
		return false, err
	}
	telemetry.Info("batch.check", map[string]any{
		"pending_units": len(pending),
		"queued":        queued,
	})
	if len(pending) > 0 {
		return false, nil
	}
	return o.batch.Start(o.baseContext()), nil
}

// ScheduleBatchCheck runs CheckAndTriggerBatch in the background.
func (o *Orchestrator) ScheduleBatchCheck() {
	ctx := o.baseContext()
	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		if _, err := o.CheckAndTriggerBatch(ctx); err != nil && !errors.Is(err, context.Canceled) {
			telemetry.Warn("batch.check_failed", map[string]any{"error": err})
		}
	}()
}

package batch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"interview-analyzer/internal/shared/metrics"
	"interview-analyzer/internal/shared/telemetry"
)

// Outcome statuses.
const (
	OutcomeProcessed = "processed"
	OutcomeSkipped   = "skipped"
	OutcomeFailed    = "failed"
)

// Reasons a drain did not run.
const (
	ReasonEmpty         = "empty"
	ReasonAlreadyActive = "already_active"
)

// ErrSkipped marks an entry that was intentionally not processed. Processors
// wrap it; the drain records a skipped outcome instead of a failure.
var ErrSkipped = errors.New("batch entry skipped")

// Entry is one completed analysis awaiting commentary.
type Entry struct {
	AnalysisID string    `json:"analysisId"`
	OwnerID    string    `json:"ownerId"`
	UnitID     string    `json:"unitId"`
	EnqueuedAt time.Time `json:"enqueuedAt"`
}

// Outcome is the result of processing one entry.
type Outcome struct {
	Entry  Entry  `json:"entry"`
	Status string `json:"status"`
	Err    error  `json:"-"`
}

// Report summarises one drain attempt.
type Report struct {
	Ran        bool      `json:"ran"`
	Reason     string    `json:"reason,omitempty"`
	Outcomes   []Outcome `json:"outcomes,omitempty"`
	Requeued   int       `json:"requeued,omitempty"`
	StartedAt  time.Time `json:"startedAt"`
	FinishedAt time.Time `json:"finishedAt"`
}

// Count returns the number of outcomes with status.
func (r Report) Count(status string) int {
	n := 0
	for _, o := range r.Outcomes {
		if o.Status == status {
			n++
		}
	}
	return n
}

// Processor handles one entry. Returning an error wrapping ErrSkipped records
// a skip.
type Processor interface {
	Process(ctx context.Context, e Entry) error
}

// ProcessorFunc adapts a function to Processor.
type ProcessorFunc func(ctx context.Context, e Entry) error

// Process implements Processor.
func (f ProcessorFunc) Process(ctx context.Context, e Entry) error { return f(ctx, e) }

// Queue holds entries in memory until a drain takes them. Only one drain runs
// at a time; a trigger arriving while a drain is active is a no-op.
type Queue struct {
	processor Processor
	itemDelay time.Duration
	sleep     func(ctx context.Context, d time.Duration) error
	now       func() time.Time

	mu      sync.Mutex
	entries []Entry
	index   map[string]struct{}
	last    *Report

	active atomic.Bool
	wg     sync.WaitGroup
}

// Option configures a Queue.
type Option func(*Queue)

// WithSleep replaces the inter-item sleep (tests).
func WithSleep(fn func(ctx context.Context, d time.Duration) error) Option {
	return func(q *Queue) { q.sleep = fn }
}

// WithClock replaces time.Now (tests).
func WithClock(fn func() time.Time) Option {
	return func(q *Queue) { q.now = fn }
}

// New creates a queue. itemDelay is applied between items, never after the last.
func New(p Processor, itemDelay time.Duration, opts ...Option) *Queue {
	q := &Queue{
		processor: p,
		itemDelay: itemDelay,
		sleep:     sleepCtx,
		now:       time.Now,
		index:     make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Enqueue appends e. It returns false for an empty id or one already queued.
func (q *Queue) Enqueue(e Entry) bool {
	if e.AnalysisID == "" {
		return false
	}
	if e.EnqueuedAt.IsZero() {
		e.EnqueuedAt = q.now().UTC()
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	if _, ok := q.index[e.AnalysisID]; ok {
		return false
	}
	q.index[e.AnalysisID] = struct{}{}
	q.entries = append(q.entries, e)
	return true
}

// Len returns the number of queued entries.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries)
}

// Pending returns a copy of the queued entries in order.
func (q *Queue) Pending() []Entry {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]Entry(nil), q.entries...)
}

// Active reports whether a drain is running.
func (q *Queue) Active() bool {
	return q.active.Load()
}

// LastReport returns the most recent drain that ran.
func (q *Queue) LastReport() (Report, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.last == nil {
		return Report{}, false
	}
	return *q.last, true
}

// Drain processes a snapshot of the queue synchronously.
func (q *Queue) Drain(ctx context.Context) Report {
	if !q.active.CompareAndSwap(false, true) {
		return Report{Reason: ReasonAlreadyActive, StartedAt: q.now().UTC(), FinishedAt: q.now().UTC()}
	}
	defer q.active.Store(false)
	return q.run(ctx)
}

// Start launches a drain in the background. It returns false when the queue
// is empty or a drain is already running.
func (q *Queue) Start(ctx context.Context) bool {
	if !q.active.CompareAndSwap(false, true) {
		return false
	}
	if q.Len() == 0 {
		q.active.Store(false)
		return false
	}
	q.wg.Add(1)
	go func() {
		defer q.wg.Done()
		defer q.active.Store(false)
		q.run(ctx)
	}()
	return true
}

// Wait blocks until background drains return.
func (q *Queue) Wait() {
	q.wg.Wait()
}

// run requires the active guard to be held by the caller.
func (q *Queue) run(ctx context.Context) Report {
	report := Report{StartedAt: q.now().UTC()}
	snapshot := q.takeAll()
	if len(snapshot) == 0 {
		report.Reason = ReasonEmpty
		report.FinishedAt = q.now().UTC()
		return report
	}
	report.Ran = true
	metrics.IncBatchDrains()
	telemetry.Info("batch.drain_started", map[string]any{"count": len(snapshot)})

	for i, entry := range snapshot {
		if err := ctx.Err(); err != nil {
			report.Requeued = q.requeue(snapshot[i:])
			break
		}
		report.Outcomes = append(report.Outcomes, q.processOne(ctx, entry))
		if i == len(snapshot)-1 {
			break
		}
		if err := q.sleep(ctx, q.itemDelay); err != nil {
			report.Requeued = q.requeue(snapshot[i+1:])
			break
		}
	}

	report.FinishedAt = q.now().UTC()
	processed := report.Count(OutcomeProcessed)
	skipped := report.Count(OutcomeSkipped)
	failed := report.Count(OutcomeFailed)
	metrics.AddBatchOutcomes(processed, skipped, failed)
	telemetry.Info("batch.drain_finished", map[string]any{
		"processed":   processed,
		"skipped":     skipped,
		"failed":      failed,
		"requeued":    report.Requeued,
		"duration_ms": report.FinishedAt.Sub(report.StartedAt).Milliseconds(),
	})

	q.mu.Lock()
	saved := report
	q.last = &saved
	q.mu.Unlock()
	return report
}

func (q *Queue) processOne(ctx context.Context, e Entry) (out Outcome) {
	out = Outcome{Entry: e, Status: OutcomeProcessed}
	fields := telemetry.JobFields(e.AnalysisID, e.OwnerID, e.UnitID)
	defer func() {
		if r := recover(); r != nil {
			out.Status = OutcomeFailed
			out.Err = fmt.Errorf("panic: %v", r)
			fields["error"] = out.Err
			telemetry.Error("batch.item_panic", fields)
		}
	}()

	err := q.processor.Process(ctx, e)
	switch {
	case err == nil:
		telemetry.Info("batch.item_processed", fields)
	case errors.Is(err, ErrSkipped):
		out.Status = OutcomeSkipped
		out.Err = err
		fields["reason"] = err
		telemetry.Warn("batch.item_skipped", fields)
	default:
		out.Status = OutcomeFailed
		out.Err = err
		fields["error"] = err
		telemetry.Error("batch.item_failed", fields)
	}
	return out
}

func (q *Queue) takeAll() []Entry {
	q.mu.Lock()
	defer q.mu.Unlock()
	snapshot := q.entries
	q.entries = nil
	q.index = make(map[string]struct{})
	return snapshot
}

// requeue puts unprocessed entries back ahead of anything enqueued meanwhile.
func (q *Queue) requeue(rest []Entry) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	merged := make([]Entry, 0, len(rest)+len(q.entries))
	n := 0
	for _, e := range rest {
		if _, ok := q.index[e.AnalysisID]; ok {
			continue
		}
		q.index[e.AnalysisID] = struct{}{}
		merged = append(merged, e)
		n++
	}
	q.entries = append(merged, q.entries...)
	if n > 0 {
		telemetry.Warn("batch.drain_interrupted", map[string]any{"requeued": n})
	}
	return n
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

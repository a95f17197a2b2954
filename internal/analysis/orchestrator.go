package analysis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"interview-analyzer/internal/batch"
	"interview-analyzer/internal/evaluations"
	"interview-analyzer/internal/inventory"
	"interview-analyzer/internal/jobs"
	"interview-analyzer/internal/scoring"
	"interview-analyzer/internal/shared/storage/object"
	"interview-analyzer/internal/shared/telemetry"
)

const defaultQueueDepth = 64

// Deps are the collaborators the orchestrator drives.
type Deps struct {
	Jobs     jobs.Repo
	Sink     jobs.StatusSink
	Scanner  *inventory.Scanner
	Pipeline *scoring.Pipeline
	Batch    *batch.Queue
	// Evaluations backs evaluation lookups by analysis id. Optional.
	Evaluations evaluations.Repo
}

// Config tunes scheduling.
type Config struct {
	Bucket string
	// Workers is the number of pipelines allowed to run at once. Only 1 is
	// supported; the analyzers are not safe to share.
	Workers       int
	QueueDepth    int
	InterJobDelay time.Duration

	Sleep func(ctx context.Context, d time.Duration) error
	Now   func() time.Time
}

// Orchestrator schedules units through the stage pipeline one at a time and
// hands completed jobs to the commentary batch queue.
type Orchestrator struct {
	jobs     jobs.Repo
	sink     jobs.StatusSink
	scanner  *inventory.Scanner
	pipeline *scoring.Pipeline
	batch    *batch.Queue
	evals    evaluations.Repo

	bucket        string
	interJobDelay time.Duration
	sleep         func(ctx context.Context, d time.Duration) error
	now           func() time.Time

	work       chan workItem
	stopped    chan struct{}
	inFlight   atomic.Int32
	scanActive atomic.Bool

	startOnce sync.Once
	wg        sync.WaitGroup

	mu       sync.Mutex
	runCtx   context.Context
	lastScan *ScanReport
}

type workItem struct {
	job       jobs.Job
	obj       object.Object
	locateErr error
	recorded  bool
	done      chan jobs.Job
}

// New validates deps and builds an Orchestrator. Call Start before submitting work.
func New(deps Deps, cfg Config) (*Orchestrator, error) {
	if deps.Jobs == nil || deps.Scanner == nil || deps.Pipeline == nil {
		return nil, errors.New("analysis: jobs repo, scanner and pipeline are required")
	}
	if cfg.Workers == 0 {
		cfg.Workers = 1
	}
	if cfg.Workers != 1 {
		return nil, fmt.Errorf("analysis: %d workers requested, only 1 is supported", cfg.Workers)
	}
	if cfg.QueueDepth <= 0 {
		cfg.QueueDepth = defaultQueueDepth
	}
	if strings.TrimSpace(cfg.Bucket) == "" {
		return nil, errors.New("analysis: bucket is required")
	}
	sink := deps.Sink
	if sink == nil {
		sink = jobs.RepoSink{Repo: deps.Jobs}
	}
	o := &Orchestrator{
		jobs:          deps.Jobs,
		sink:          sink,
		scanner:       deps.Scanner,
		pipeline:      deps.Pipeline,
		batch:         deps.Batch,
		evals:         deps.Evaluations,
		bucket:        cfg.Bucket,
		interJobDelay: cfg.InterJobDelay,
		sleep:         cfg.Sleep,
		now:           cfg.Now,
		work:          make(chan workItem, cfg.QueueDepth),
		stopped:       make(chan struct{}),
		runCtx:        context.Background(),
	}
	if o.sleep == nil {
		o.sleep = sleepCtx
	}
	if o.now == nil {
		o.now = time.Now
	}
	return o, nil
}

// Bucket returns the content store bucket being scanned.
func (o *Orchestrator) Bucket() string { return o.bucket }

// Start launches the worker. Background scans and drains inherit ctx.
func (o *Orchestrator) Start(ctx context.Context) {
	o.startOnce.Do(func() {
		o.mu.Lock()
		o.runCtx = ctx
		o.mu.Unlock()
		o.wg.Add(1)
		go o.loop(ctx)
	})
}

// Wait blocks until the worker, background scans and batch drains return.
// Cancel the Start context first.
func (o *Orchestrator) Wait() {
	o.wg.Wait()
	if o.batch != nil {
		o.batch.Wait()
	}
}

func (o *Orchestrator) loop(ctx context.Context) {
	defer o.wg.Done()
	telemetry.Info("orchestrator.started", map[string]any{"bucket": o.bucket})
	for {
		select {
		case <-ctx.Done():
			// close before draining: a sender that still sees stopped open
			// has already landed its item in the buffer.
			close(o.stopped)
			o.abandonQueued(ctx)
			telemetry.Info("orchestrator.stopped", nil)
			return
		case item := <-o.work:
			job := o.process(ctx, item)
			o.inFlight.Add(-1)
			if item.done != nil {
				item.done <- job
			}
		}
	}
}

// abandonQueued fails units that were accepted but never picked. Safe to
// call from submitters as well as the exiting worker.
func (o *Orchestrator) abandonQueued(ctx context.Context) {
	for {
		select {
		case item := <-o.work:
			job := item.job
			if item.recorded {
				job = o.fail(ctx, job, ErrStopped, nil, o.now())
			}
			o.inFlight.Add(-1)
			if item.done != nil {
				item.done <- job
			}
		default:
			return
		}
	}
}

func (o *Orchestrator) baseContext() context.Context {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.runCtx
}

// StartUnit records a processing job for one unit and queues it. It returns
// as soon as the job is accepted.
func (o *Orchestrator) StartUnit(ctx context.Context, ownerID, unitID, sessionTag string) (jobs.Job, error) {
	return o.trigger(ctx, ownerID, unitID, sessionTag, false)
}

// AnalyzeUnit is StartUnit that waits for the job to reach a terminal state.
func (o *Orchestrator) AnalyzeUnit(ctx context.Context, ownerID, unitID, sessionTag string) (jobs.Job, error) {
	return o.trigger(ctx, ownerID, unitID, sessionTag, true)
}

func (o *Orchestrator) trigger(ctx context.Context, ownerID, unitID, sessionTag string, wait bool) (jobs.Job, error) {
	ownerID, unitID = strings.TrimSpace(ownerID), strings.TrimSpace(unitID)
	if ownerID == "" || unitID == "" {
		return jobs.Job{}, fmt.Errorf("%w: ownerId and unitId are required", ErrInvalidRequest)
	}
	tag, err := normalizeSessionTag(sessionTag)
	if err != nil {
		return jobs.Job{}, err
	}

	obj, err := o.scanner.Locate(ctx, o.bucket, ownerID, unitID)
	if err != nil {
		return jobs.Job{}, err
	}
	job := o.newJob(ownerID, unitID, tag, &obj)
	if err := o.jobs.Insert(ctx, job); err != nil {
		return jobs.Job{}, fmt.Errorf("record job: %w", err)
	}
	telemetry.Info("job.accepted", withFields(job, map[string]any{
		"session_tag": tag,
		"source_key":  obj.Key,
	}))

	item := workItem{job: job, obj: obj, recorded: true}
	if wait {
		item.done = make(chan jobs.Job, 1)
	}
	final, accepted, err := o.submit(ctx, item)
	if err != nil && !accepted {
		final = o.fail(ctx, job, err, nil, o.now())
	}
	return final, err
}

// submit hands item to the worker. Without a done channel it never blocks.
// The bool reports whether the worker owns the item.
func (o *Orchestrator) submit(ctx context.Context, item workItem) (jobs.Job, bool, error) {
	o.inFlight.Add(1)
	wait := item.done != nil
	if !wait {
		item.done = make(chan jobs.Job, 1)
		select {
		case <-o.stopped:
			o.inFlight.Add(-1)
			return item.job, false, ErrStopped
		case <-ctx.Done():
			o.inFlight.Add(-1)
			return item.job, false, ctx.Err()
		case o.work <- item:
		default:
			o.inFlight.Add(-1)
			return item.job, false, ErrBusy
		}
		if o.reclaimIfStopped(ctx) {
			job, _, _ := stoppedResult(item)
			return job, true, ErrStopped
		}
		return item.job, true, nil
	}

	select {
	case o.work <- item:
	case <-ctx.Done():
		o.inFlight.Add(-1)
		return item.job, false, ctx.Err()
	case <-o.stopped:
		o.inFlight.Add(-1)
		return item.job, false, ErrStopped
	}
	if o.reclaimIfStopped(ctx) {
		return stoppedResult(item)
	}
	select {
	case job := <-item.done:
		return job, true, nil
	case <-ctx.Done():
		return item.job, true, ctx.Err()
	case <-o.stopped:
		// the worker answers queued items on its way out
		return stoppedResult(item)
	}
}

// reclaimIfStopped drains the work buffer when the worker exited around a
// send, so no recorded job is left processing.
func (o *Orchestrator) reclaimIfStopped(ctx context.Context) bool {
	select {
	case <-o.stopped:
		o.abandonQueued(ctx)
		return true
	default:
		return false
	}
}

func stoppedResult(item workItem) (jobs.Job, bool, error) {
	select {
	case job := <-item.done:
		return job, true, nil
	default:
		return item.job, true, ErrStopped
	}
}

func (o *Orchestrator) newJob(ownerID, unitID, sessionTag string, obj *object.Object) jobs.Job {
	now := o.now().UTC()
	job := jobs.Job{
		AnalysisID: jobs.NewAnalysisID(sessionTag, ownerID, unitID, now),
		OwnerID:    ownerID,
		UnitID:     unitID,
		SessionTag: sessionTag,
		Status:     jobs.StatusProcessing,
		Stage:      jobs.StageCreated,
		Progress:   0,
		CreatedAt:  now,
		StartedAt:  &now,
		UpdatedAt:  now,
	}
	if obj != nil {
		job.Source = &jobs.Source{Bucket: obj.Bucket, Key: obj.Key, Size: obj.Size}
	}
	return job
}

func normalizeSessionTag(tag string) (string, error) {
	switch strings.TrimSpace(tag) {
	case "":
		return jobs.SessionManual, nil
	case jobs.SessionManual:
		return jobs.SessionManual, nil
	case jobs.SessionAutoBatch:
		return jobs.SessionAutoBatch, nil
	}
	return "", fmt.Errorf("%w: unknown sessionTag %q", ErrInvalidRequest, tag)
}

func withFields(job jobs.Job, extra map[string]any) map[string]any {
	fields := telemetry.JobFields(job.AnalysisID, job.OwnerID, job.UnitID)
	for k, v := range extra {
		fields[k] = v
	}
	return fields
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

package jobs

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryRepo stores jobs in memory and is safe for concurrent use.
type MemoryRepo struct {
	mu   sync.RWMutex
	byID map[string]Job
}

// NewMemoryRepo constructs a MemoryRepo.
func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{byID: make(map[string]Job)}
}

// Insert stores a new job.
func (r *MemoryRepo) Insert(ctx context.Context, job Job) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byID[job.AnalysisID]; ok {
		return ErrDuplicate
	}
	if job.UpdatedAt.IsZero() {
		job.UpdatedAt = time.Now().UTC()
	}
	r.byID[job.AnalysisID] = cloneJob(job)
	return nil
}

// Upsert replaces the record unless it was cancelled.
func (r *MemoryRepo) Upsert(ctx context.Context, job Job) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.byID[job.AnalysisID]; ok {
		if existing.Status == StatusCancelled {
			return ErrCancelled
		}
		if job.CreatedAt.IsZero() {
			job.CreatedAt = existing.CreatedAt
		}
	}
	job.UpdatedAt = time.Now().UTC()
	r.byID[job.AnalysisID] = cloneJob(job)
	return nil
}

// GetByID returns a job by id.
func (r *MemoryRepo) GetByID(ctx context.Context, analysisID string) (Job, error) {
	if err := ctx.Err(); err != nil {
		return Job{}, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	job, ok := r.byID[analysisID]
	if !ok {
		return Job{}, ErrNotFound
	}
	return cloneJob(job), nil
}

// Exists reports whether any record exists for the unit.
func (r *MemoryRepo) Exists(ctx context.Context, ownerID, unitID string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, job := range r.byID {
		if job.OwnerID == ownerID && job.UnitID == unitID {
			return true, nil
		}
	}
	return false, nil
}

// HandledUnits implements Repo.
func (r *MemoryRepo) HandledUnits(ctx context.Context, maxAttempts int) ([]UnitRef, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	type tally struct {
		errors  int
		settled bool
	}
	r.mu.RLock()
	counts := make(map[UnitRef]*tally)
	for _, job := range r.byID {
		key := UnitRef{OwnerID: job.OwnerID, UnitID: job.UnitID}
		t, ok := counts[key]
		if !ok {
			t = &tally{}
			counts[key] = t
		}
		if job.Status == StatusError {
			t.errors++
		} else {
			t.settled = true
		}
	}
	r.mu.RUnlock()

	out := make([]UnitRef, 0, len(counts))
	for key, t := range counts {
		if t.settled || t.errors >= maxAttempts {
			out = append(out, key)
		}
	}
	sortRefs(out)
	return out, nil
}

// ListRecent returns jobs newest first.
func (r *MemoryRepo) ListRecent(ctx context.Context, filter ListFilter) ([]Job, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	out := make([]Job, 0, len(r.byID))
	for _, job := range r.byID {
		if filter.Status != "" && job.Status != filter.Status {
			continue
		}
		if filter.OwnerID != "" && job.OwnerID != filter.OwnerID {
			continue
		}
		if filter.SessionTag != "" && job.SessionTag != filter.SessionTag {
			continue
		}
		out = append(out, cloneJob(job))
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].AnalysisID > out[j].AnalysisID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

// UpdateProgress implements Repo.
func (r *MemoryRepo) UpdateProgress(ctx context.Context, u Update) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.byID[u.AnalysisID]
	if !ok {
		return ErrNotFound
	}
	if IsTerminal(job.Status) && job.Status != u.Status {
		return ErrNotProcessing
	}
	applyUpdate(&job, u)
	r.byID[u.AnalysisID] = job
	return nil
}

// Cancel implements Repo.
func (r *MemoryRepo) Cancel(ctx context.Context, analysisID string) (Job, error) {
	if err := ctx.Err(); err != nil {
		return Job{}, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.byID[analysisID]
	if !ok {
		return Job{}, ErrNotFound
	}
	if job.Status != StatusProcessing {
		return Job{}, ErrNotProcessing
	}
	now := time.Now().UTC()
	job.Status = StatusCancelled
	job.CancelledAt = &now
	job.UpdatedAt = now
	r.byID[analysisID] = job
	return cloneJob(job), nil
}

// Stats implements Repo.
func (r *MemoryRepo) Stats(ctx context.Context) (Stats, error) {
	if err := ctx.Err(); err != nil {
		return Stats{}, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	stats := Stats{ByStatus: map[string]int{}}
	for _, job := range r.byID {
		stats.Total++
		stats.ByStatus[job.Status]++
		if job.SessionTag == SessionAutoBatch {
			stats.AutoBatchTotal++
			if job.Status == StatusCompleted {
				stats.AutoBatchComplete++
			}
		}
	}
	return stats, nil
}

func applyUpdate(job *Job, u Update) {
	at := u.At
	if at.IsZero() {
		at = time.Now().UTC()
	}
	job.Status = u.Status
	job.Stage = u.Stage
	job.Progress = u.Progress
	job.UpdatedAt = at
	switch u.Status {
	case StatusProcessing:
		if job.StartedAt == nil {
			job.StartedAt = &at
		}
	case StatusCompleted:
		if job.CompletedAt == nil {
			job.CompletedAt = &at
		}
	case StatusError:
		if job.FailedAt == nil {
			job.FailedAt = &at
		}
	}
}

func cloneJob(job Job) Job {
	if job.StageTimings != nil {
		timings := make(map[string]float64, len(job.StageTimings))
		for k, v := range job.StageTimings {
			timings[k] = v
		}
		job.StageTimings = timings
	}
	return job
}

func sortRefs(refs []UnitRef) {
	sort.Slice(refs, func(i, j int) bool {
		if refs[i].OwnerID == refs[j].OwnerID {
			return refs[i].UnitID < refs[j].UnitID
		}
		return refs[i].OwnerID < refs[j].OwnerID
	})
}

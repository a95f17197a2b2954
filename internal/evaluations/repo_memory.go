package evaluations

import (
	"context"
	"sort"
	"sync"
	"time"
)

type key struct {
	owner string
	unit  string
}

// MemoryRepo stores evaluations in memory and is safe for concurrent use.
type MemoryRepo struct {
	mu    sync.RWMutex
	byKey map[key]Evaluation
}

// NewMemoryRepo constructs a MemoryRepo.
func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{byKey: make(map[key]Evaluation)}
}

// Upsert implements Repo.
func (r *MemoryRepo) Upsert(ctx context.Context, e Evaluation) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	k := key{owner: e.OwnerID, unit: e.UnitID}
	now := time.Now().UTC()
	if existing, ok := r.byKey[k]; ok {
		e.CreatedAt = existing.CreatedAt
	} else if e.CreatedAt.IsZero() {
		e.CreatedAt = now
	}
	e.UpdatedAt = now
	r.byKey[k] = e
	return nil
}

// Get implements Repo.
func (r *MemoryRepo) Get(ctx context.Context, ownerID, unitID string) (Evaluation, error) {
	if err := ctx.Err(); err != nil {
		return Evaluation{}, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.byKey[key{owner: ownerID, unit: unitID}]
	if !ok {
		return Evaluation{}, ErrNotFound
	}
	return e, nil
}

// ListByOwner implements Repo.
func (r *MemoryRepo) ListByOwner(ctx context.Context, ownerID string) ([]Evaluation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	out := []Evaluation{}
	for k, e := range r.byKey {
		if k.owner == ownerID {
			out = append(out, e)
		}
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].UnitID < out[j].UnitID })
	return out, nil
}

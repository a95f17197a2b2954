package evaluations

import "context"

// Repo persists evaluations keyed by (owner, unit).
type Repo interface {
	Upsert(ctx context.Context, e Evaluation) error
	Get(ctx context.Context, ownerID, unitID string) (Evaluation, error)
	// ListByOwner returns an owner's evaluations ordered by unit id.
	ListByOwner(ctx context.Context, ownerID string) ([]Evaluation, error)
}

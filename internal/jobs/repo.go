package jobs

import "context"

// Repo persists job records keyed by analysis id.
type Repo interface {
	// Insert creates a new record; ErrDuplicate if the id exists.
	Insert(ctx context.Context, job Job) error
	// Upsert writes the full record. A cancelled record is left untouched and
	// ErrCancelled is returned.
	Upsert(ctx context.Context, job Job) error
	GetByID(ctx context.Context, analysisID string) (Job, error)
	Exists(ctx context.Context, ownerID, unitID string) (bool, error)
	// HandledUnits returns units a scan must skip: any non-error record, or at
	// least maxAttempts error records.
	HandledUnits(ctx context.Context, maxAttempts int) ([]UnitRef, error)
	ListRecent(ctx context.Context, filter ListFilter) ([]Job, error)
	// UpdateProgress applies a live status update to a pending or processing
	// record. Terminal records only accept an update repeating their status.
	UpdateProgress(ctx context.Context, u Update) error
	// Cancel marks a processing record cancelled.
	Cancel(ctx context.Context, analysisID string) (Job, error)
	Stats(ctx context.Context) (Stats, error)
}

package jobs

import "errors"

var (
	ErrNotFound      = errors.New("job not found")
	ErrNotProcessing = errors.New("job is not processing")
	// ErrCancelled is returned by Upsert when the stored record was cancelled
	// and therefore was left unchanged.
	ErrCancelled = errors.New("job was cancelled")
	ErrDuplicate = errors.New("job already exists")
)

package analysis

import "errors"

var (
	// ErrInvalidRequest is returned for missing owner/unit ids or unknown session tags.
	ErrInvalidRequest = errors.New("invalid analysis request")
	// ErrScanActive is returned by RunScan while another pass is running.
	ErrScanActive = errors.New("scan already running")
	// ErrBusy is returned when the work queue cannot accept another unit.
	ErrBusy = errors.New("analysis queue is full")
	// ErrStopped is returned once the orchestrator's worker has exited.
	ErrStopped = errors.New("orchestrator stopped")
)

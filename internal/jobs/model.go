package jobs

import (
	"time"

	"interview-analyzer/internal/scoring"
)

const (
	StatusPending    = "pending"
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusError      = "error"
	StatusCancelled  = "cancelled"
)

// Stages recorded on the job alongside the scoring stage names.
const (
	StageCreated    = "created"
	StagePersisting = "persisting"
	StageCompleted  = "completed"
	StageFailed     = "failed"
)

// Session tags.
const (
	SessionAutoBatch = "auto_batch"
	SessionManual    = "manual"
)

// Job is one attempt to run a unit through the stage pipeline.
type Job struct {
	AnalysisID   string                 `json:"analysisId"`
	OwnerID      string                 `json:"ownerId"`
	UnitID       string                 `json:"unitId"`
	SessionTag   string                 `json:"sessionTag"`
	Status       string                 `json:"status"`
	Stage        string                 `json:"stage"`
	Progress     int                    `json:"progress"`
	Source       *Source                `json:"source,omitempty"`
	Primary      *scoring.PrimaryResult `json:"primaryResult,omitempty"`
	Gaze         *scoring.GazeResult    `json:"gazeResult,omitempty"`
	CheatSignals *scoring.CheatSignals  `json:"cheatSignals,omitempty"`
	StageTimings map[string]float64     `json:"stageTimings,omitempty"`
	ErrorMessage *string                `json:"errorMessage,omitempty"`
	CreatedAt    time.Time              `json:"createdAt"`
	StartedAt    *time.Time             `json:"startedAt,omitempty"`
	CompletedAt  *time.Time             `json:"completedAt,omitempty"`
	FailedAt     *time.Time             `json:"failedAt,omitempty"`
	CancelledAt  *time.Time             `json:"cancelledAt,omitempty"`
	UpdatedAt    time.Time              `json:"updatedAt"`
}

// Source records where the media came from.
type Source struct {
	Bucket string `json:"bucket"`
	Key    string `json:"key"`
	Size   int64  `json:"size"`
}

// IsTerminal reports whether status admits no further transitions.
func IsTerminal(status string) bool {
	switch status {
	case StatusCompleted, StatusError, StatusCancelled:
		return true
	}
	return false
}

// UnitRef identifies a unit.
type UnitRef struct {
	OwnerID string `json:"ownerId"`
	UnitID  string `json:"unitId"`
}

// Update is one live status event for a running job.
type Update struct {
	AnalysisID string
	Status     string
	Stage      string
	Progress   int
	At         time.Time
}

// ListFilter narrows ListRecent. Zero values mean no filter.
type ListFilter struct {
	Limit      int
	Status     string
	OwnerID    string
	SessionTag string
}

// Stats summarizes job history.
type Stats struct {
	Total             int            `json:"total"`
	ByStatus          map[string]int `json:"byStatus"`
	AutoBatchTotal    int            `json:"autoBatchTotal"`
	AutoBatchComplete int            `json:"autoBatchCompleted"`
}

// CompletionRate returns completed/total as a percentage, or 0 when empty.
func (s Stats) CompletionRate() float64 {
	if s.Total == 0 {
		return 0
	}
	return float64(s.ByStatus[StatusCompleted]) / float64(s.Total) * 100
}

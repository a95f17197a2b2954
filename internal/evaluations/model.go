package evaluations

import (
	"errors"
	"time"
)

// ErrNotFound is returned when no evaluation exists for the lookup.
var ErrNotFound = errors.New("evaluation not found")

// Evaluation is the commentary-enriched verdict for one (owner, unit).
// Later drains overwrite earlier ones.
type Evaluation struct {
	OwnerID                string    `json:"ownerId"`
	UnitID                 string    `json:"unitId"`
	AnalysisID             string    `json:"analysisId"`
	PrimaryScore           float64   `json:"primaryScore"`
	GazeScore              float64   `json:"gazeScore"`
	SuspectedCopying       bool      `json:"suspectedCopying"`
	SuspectedImpersonation bool      `json:"suspectedImpersonation"`
	StrengthKeywords       string    `json:"strengthKeywords"`
	WeaknessKeywords       string    `json:"weaknessKeywords"`
	CommentText            string    `json:"commentText"`
	CreatedAt              time.Time `json:"createdAt"`
	UpdatedAt              time.Time `json:"updatedAt"`
}

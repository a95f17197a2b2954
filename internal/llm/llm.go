package llm

import (
	"context"
	"errors"
	"fmt"

	"interview-analyzer/internal/scoring"
)

// ErrGeneration wraps every commentary provider failure so batch callers can
// classify it without knowing the provider.
var ErrGeneration = errors.New("commentary generation failed")

// CommentaryGenerator produces an overall comment for one analysed answer.
type CommentaryGenerator interface {
	GenerateCommentary(ctx context.Context, primary scoring.PrimaryResult, gaze scoring.GazeResult) (Commentary, error)
}

// Commentary is the generator output persisted on the evaluation record.
type Commentary struct {
	Comment          string   `json:"comment"`
	Score            float64  `json:"score"`
	StrengthKeywords []string `json:"strengthKeywords,omitempty"`
	WeaknessKeywords []string `json:"weaknessKeywords,omitempty"`
}

// Keywords groups strength and weakness labels for an answer.
type Keywords struct {
	Strengths  []string
	Weaknesses []string
}

// KeywordAnalyzer derives keyword labels from stage results.
type KeywordAnalyzer interface {
	AnalyzeKeywords(primary scoring.PrimaryResult, gaze scoring.GazeResult, signals scoring.CheatSignals) Keywords
}

// GenerationError returns err wrapped with ErrGeneration unless it already is.
func GenerationError(provider string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrGeneration) {
		return err
	}
	return fmt.Errorf("%w: %s: %w", ErrGeneration, provider, err)
}

// TotalScore is the combined 0-100 score used when a provider omits one.
func TotalScore(primary scoring.PrimaryResult, gaze scoring.GazeResult) float64 {
	return primary.InterviewScore + gaze.TotalScore
}

package scoring

import (
	"context"
	"errors"
	"fmt"

	"interview-analyzer/internal/shared/storage/object"
)

// Stage names as they appear in job records and status updates.
const (
	StageDownload = "download"
	StagePrimary  = "primary_scoring"
	StageGaze     = "gaze_scoring"
)

// StageError reports which stage failed.
type StageError struct {
	Stage string
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s stage: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// FailedStage returns the stage name carried by err, or "" if none.
func FailedStage(err error) string {
	var se *StageError
	if errors.As(err, &se) {
		return se.Stage
	}
	return ""
}

// Scorer runs one analyzer over a downloaded media file and returns its raw output.
type Scorer interface {
	Score(ctx context.Context, media Handle) (map[string]any, error)
}

// Downloader fetches a media object to local disk.
type Downloader interface {
	Download(ctx context.Context, obj object.Object) (Handle, error)
}

// Pipeline runs the fixed stage sequence. It has no retry logic; the caller
// decides what a stage failure means for the job.
type Pipeline struct {
	Downloader Downloader
	Primary    Scorer
	Gaze       Scorer
}

// Download runs the download stage.
func (p *Pipeline) Download(ctx context.Context, obj object.Object) (Handle, error) {
	h, err := p.Downloader.Download(ctx, obj)
	if err != nil {
		return Handle{}, &StageError{Stage: StageDownload, Err: err}
	}
	return h, nil
}

// ScorePrimary runs the facial/emotion stage and decodes its output.
func (p *Pipeline) ScorePrimary(ctx context.Context, media Handle) (PrimaryResult, error) {
	raw, err := p.Primary.Score(ctx, media)
	if err != nil {
		return PrimaryResult{}, &StageError{Stage: StagePrimary, Err: err}
	}
	return DecodePrimary(raw), nil
}

// ScoreGaze runs the gaze/attention stage and decodes its output.
func (p *Pipeline) ScoreGaze(ctx context.Context, media Handle) (GazeResult, error) {
	raw, err := p.Gaze.Score(ctx, media)
	if err != nil {
		return GazeResult{}, &StageError{Stage: StageGaze, Err: err}
	}
	return DecodeGaze(raw), nil
}

// DefaultsScorer returns an empty payload so every field takes its default.
// Used when no analyzer endpoint is configured.
type DefaultsScorer struct{}

// Score implements Scorer.
func (DefaultsScorer) Score(ctx context.Context, media Handle) (map[string]any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return map[string]any{}, nil
}

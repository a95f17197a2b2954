package scoring

import (
	"encoding/json"
	"math"
	"strconv"
)

// Fallback values substituted when a scorer omits a field.
const (
	DefaultInterviewScore     = 48.0
	DefaultDominantEmotion    = "neutral"
	DefaultGazeTotalScore     = 32.0
	DefaultConcentrationScore = 12.0
	DefaultStabilityScore     = 12.0
	DefaultBlinkScore         = 8.0

	MaxPrimaryScore = 60.0
	MaxGazeScore    = 40.0

	// CopyingViolationThreshold is the violation count at which copying is suspected.
	CopyingViolationThreshold = 5
)

// PrimaryResult is the decoded output of the facial/emotion scorer.
type PrimaryResult struct {
	InterviewScore         float64        `json:"interviewScore"`
	DominantEmotion        string         `json:"dominantEmotion"`
	ImprovementSuggestions []string       `json:"improvementSuggestions"`
	Raw                    map[string]any `json:"raw,omitempty"`
}

// GazeResult is the decoded output of the gaze/attention scorer.
type GazeResult struct {
	TotalScore             float64        `json:"totalScore"`
	ConcentrationScore     float64        `json:"concentrationScore"`
	StabilityScore         float64        `json:"stabilityScore"`
	BlinkScore             float64        `json:"blinkScore"`
	ViolationCount         int            `json:"violationCount"`
	MultiFaceDetected      bool           `json:"multiFaceDetected"`
	ImprovementSuggestions []string       `json:"improvementSuggestions"`
	Raw                    map[string]any `json:"raw,omitempty"`
}

// CheatSignals are derived misconduct flags. Always recompute with DeriveCheatSignals.
type CheatSignals struct {
	SuspectedCopying       bool `json:"suspectedCopying"`
	SuspectedImpersonation bool `json:"suspectedImpersonation"`
	ViolationCount         int  `json:"violationCount"`
	MultiFace              bool `json:"multiFace"`
}

// DeriveCheatSignals computes cheat signals from the gaze result.
func DeriveCheatSignals(g GazeResult) CheatSignals {
	return CheatSignals{
		SuspectedCopying:       g.ViolationCount >= CopyingViolationThreshold,
		SuspectedImpersonation: g.MultiFaceDetected,
		ViolationCount:         g.ViolationCount,
		MultiFace:              g.MultiFaceDetected,
	}
}

// DecodePrimary maps a raw scorer payload onto PrimaryResult. Missing or
// malformed fields fall back to defaults; it never fails.
func DecodePrimary(raw map[string]any) PrimaryResult {
	res := PrimaryResult{
		InterviewScore:         clamp(floatField(raw, DefaultInterviewScore, "interview_score"), MaxPrimaryScore),
		DominantEmotion:        stringField(raw, DefaultDominantEmotion, "dominant_emotion"),
		ImprovementSuggestions: stringsField(raw, "detailed_analysis", "improvement_suggestions"),
		Raw:                    raw,
	}
	return res
}

// DecodeGaze maps a raw scorer payload onto GazeResult with the same
// fallback policy as DecodePrimary.
func DecodeGaze(raw map[string]any) GazeResult {
	violations := int(floatField(raw, 0, "analysis_summary", "total_violations"))
	if violations < 0 {
		violations = 0
	}
	return GazeResult{
		TotalScore:             clamp(floatField(raw, DefaultGazeTotalScore, "basic_scores", "total_eye_score"), MaxGazeScore),
		ConcentrationScore:     floatField(raw, DefaultConcentrationScore, "basic_scores", "concentration_score"),
		StabilityScore:         floatField(raw, DefaultStabilityScore, "basic_scores", "stability_score"),
		BlinkScore:             floatField(raw, DefaultBlinkScore, "basic_scores", "blink_score"),
		ViolationCount:         violations,
		MultiFaceDetected:      boolField(raw, false, "analysis_summary", "face_multiple_detected"),
		ImprovementSuggestions: stringsField(raw, "improvement_suggestions"),
		Raw:                    raw,
	}
}

func lookup(raw map[string]any, path ...string) (any, bool) {
	var cur any = raw
	for _, key := range path {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = m[key]
		if !ok || cur == nil {
			return nil, false
		}
	}
	return cur, true
}

func floatField(raw map[string]any, def float64, path ...string) float64 {
	v, ok := lookup(raw, path...)
	if !ok {
		return def
	}
	switch n := v.(type) {
	case float64:
		if math.IsNaN(n) || math.IsInf(n, 0) {
			return def
		}
		return n
	case float32:
		return float64(n)
	case int:
		return float64(n)
	case int64:
		return float64(n)
	case json.Number:
		if f, err := n.Float64(); err == nil {
			return f
		}
	case string:
		if f, err := strconv.ParseFloat(n, 64); err == nil {
			return f
		}
	}
	return def
}

func boolField(raw map[string]any, def bool, path ...string) bool {
	v, ok := lookup(raw, path...)
	if !ok {
		return def
	}
	switch b := v.(type) {
	case bool:
		return b
	case string:
		if parsed, err := strconv.ParseBool(b); err == nil {
			return parsed
		}
	}
	return def
}

func stringField(raw map[string]any, def string, path ...string) string {
	v, ok := lookup(raw, path...)
	if !ok {
		return def
	}
	if s, ok := v.(string); ok && s != "" {
		return s
	}
	return def
}

func stringsField(raw map[string]any, path ...string) []string {
	v, ok := lookup(raw, path...)
	if !ok {
		return []string{}
	}
	switch items := v.(type) {
	case []string:
		return append([]string{}, items...)
	case []any:
		out := make([]string, 0, len(items))
		for _, item := range items {
			if s, ok := item.(string); ok && s != "" {
				out = append(out, s)
			}
		}
		return out
	}
	return []string{}
}

func clamp(v, max float64) float64 {
	if v < 0 {
		return 0
	}
	if v > max {
		return max
	}
	return v
}

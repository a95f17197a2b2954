package keywords

import (
	"context"
	"strconv"
	"strings"

	"interview-analyzer/internal/llm"
	"interview-analyzer/internal/scoring"
)

const (
	maxSuggestionsPerStage = 2
	fallbackComment        = "전반적으로 우수한 면접 태도를 보여주었습니다."
)

// Analyzer labels answers with keywords and writes template commentary. It is
// the commentary generator when no LLM provider is configured.
type Analyzer struct {
	rules Rules
}

// New returns an Analyzer over rules.
func New(rules Rules) *Analyzer {
	return &Analyzer{rules: rules}
}

// AnalyzeKeywords evaluates every rule against the stage results.
func (a *Analyzer) AnalyzeKeywords(primary scoring.PrimaryResult, gaze scoring.GazeResult, signals scoring.CheatSignals) llm.Keywords {
	metrics := metricValues(primary, gaze)

	strengths := matchRules(a.rules.Strengths, metrics)
	if len(strengths) == 0 {
		strengths = copyStrings(a.rules.Defaults.Strengths)
	}

	weaknesses := matchRules(a.rules.Weaknesses, metrics)
	if signals.SuspectedCopying {
		weaknesses = appendUnique(weaknesses, a.rules.Defaults.CopyingWeaknesses...)
	}
	if len(weaknesses) == 0 {
		weaknesses = copyStrings(a.rules.Defaults.Weaknesses)
	}
	return llm.Keywords{Strengths: strengths, Weaknesses: weaknesses}
}

// GenerateCommentary builds a score summary followed by up to two suggestions
// per stage.
func (a *Analyzer) GenerateCommentary(ctx context.Context, primary scoring.PrimaryResult, gaze scoring.GazeResult) (llm.Commentary, error) {
	if err := ctx.Err(); err != nil {
		return llm.Commentary{}, llm.GenerationError("keywords", err)
	}

	var b strings.Builder
	b.WriteString("표정 평가: ")
	b.WriteString(formatScore(primary.InterviewScore))
	b.WriteString("/60점, 시선 평가: ")
	b.WriteString(formatScore(gaze.TotalScore))
	b.WriteString("/40점. ")

	suggestions := append(firstN(primary.ImprovementSuggestions, maxSuggestionsPerStage), firstN(gaze.ImprovementSuggestions, maxSuggestionsPerStage)...)
	if len(suggestions) > 0 {
		b.WriteString(strings.Join(suggestions, " "))
	} else {
		b.WriteString(fallbackComment)
	}

	kw := a.AnalyzeKeywords(primary, gaze, scoring.DeriveCheatSignals(gaze))
	return llm.Commentary{
		Comment:          b.String(),
		Score:            llm.TotalScore(primary, gaze),
		StrengthKeywords: kw.Strengths,
		WeaknessKeywords: kw.Weaknesses,
	}, nil
}

func metricValues(primary scoring.PrimaryResult, gaze scoring.GazeResult) map[string]float64 {
	multiFace := 0.0
	if gaze.MultiFaceDetected {
		multiFace = 1
	}
	return map[string]float64{
		MetricPrimaryScore:  primary.InterviewScore,
		MetricGazeScore:     gaze.TotalScore,
		MetricTotalScore:    primary.InterviewScore + gaze.TotalScore,
		MetricConcentration: gaze.ConcentrationScore,
		MetricStability:     gaze.StabilityScore,
		MetricBlink:         gaze.BlinkScore,
		MetricViolations:    float64(gaze.ViolationCount),
		MetricMultiFace:     multiFace,
	}
}

func matchRules(rules []Rule, metrics map[string]float64) []string {
	var out []string
	for _, rule := range rules {
		if rule.matches(metrics[rule.Metric]) {
			out = appendUnique(out, strings.TrimSpace(rule.Keyword))
		}
	}
	return out
}

func appendUnique(dst []string, values ...string) []string {
	for _, v := range values {
		dup := false
		for _, existing := range dst {
			if existing == v {
				dup = true
				break
			}
		}
		if !dup {
			dst = append(dst, v)
		}
	}
	return dst
}

func firstN(values []string, n int) []string {
	if len(values) > n {
		values = values[:n]
	}
	return copyStrings(values)
}

func copyStrings(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	return append([]string(nil), values...)
}

func formatScore(v float64) string {
	return strconv.FormatFloat(v, 'f', 1, 64)
}

var (
	_ llm.CommentaryGenerator = (*Analyzer)(nil)
	_ llm.KeywordAnalyzer     = (*Analyzer)(nil)
)

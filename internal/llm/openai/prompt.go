package openai

import (
	"fmt"
	"strings"

	"interview-analyzer/internal/scoring"
)

// Message represents an OpenAI chat message.
type Message struct {
	Role    string
	Content string
}

const systemPrompt = "You are an interview coach reviewing automated video analysis of one interview answer. " +
	"Respond with JSON only. No markdown. Keys: comment (string, 2-4 sentences, Korean), " +
	"score (number 0-100), strength_keywords (array of short strings), weakness_keywords (array of short strings)."

// BuildPrompt creates the chat messages for a commentary request.
func BuildPrompt(primary scoring.PrimaryResult, gaze scoring.GazeResult) []Message {
	return []Message{
		{Role: "system", Content: systemPrompt},
		{Role: "user", Content: buildUserPrompt(primary, gaze)},
	}
}

func buildUserPrompt(primary scoring.PrimaryResult, gaze scoring.GazeResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Expression score: %.1f/%.0f\n", primary.InterviewScore, scoring.MaxPrimaryScore)
	fmt.Fprintf(&b, "Dominant emotion: %s\n", primary.DominantEmotion)
	fmt.Fprintf(&b, "Gaze score: %.1f/%.0f (concentration %.1f, stability %.1f, blink %.1f)\n",
		gaze.TotalScore, scoring.MaxGazeScore, gaze.ConcentrationScore, gaze.StabilityScore, gaze.BlinkScore)
	fmt.Fprintf(&b, "Gaze violations: %d\n", gaze.ViolationCount)
	fmt.Fprintf(&b, "Multiple faces detected: %t\n", gaze.MultiFaceDetected)
	writeList(&b, "Expression suggestions", primary.ImprovementSuggestions)
	writeList(&b, "Gaze suggestions", gaze.ImprovementSuggestions)
	return b.String()
}

func writeList(b *strings.Builder, title string, items []string) {
	if len(items) == 0 {
		fmt.Fprintf(b, "%s: none\n", title)
		return
	}
	fmt.Fprintf(b, "%s:\n", title)
	for _, item := range items {
		fmt.Fprintf(b, "- %s\n", item)
	}
}

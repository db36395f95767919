package llm

import (
	"regexp"
	"strings"
)

var sentenceEnd = regexp.MustCompile(`[.!?]\s+`)

// Summarize produces a short extractive summary: short texts pass through,
// longer ones are cut to the first sentence or 100 characters.
func Summarize(text string) string {
	text = strings.Join(strings.Fields(text), " ")
	runes := []rune(text)
	if len(runes) <= 100 {
		return text
	}
	if loc := sentenceEnd.FindStringIndex(text); loc != nil {
		first := text[:loc[0]]
		if len([]rune(first)) <= 100 {
			if !strings.HasSuffix(first, ".") && !strings.HasSuffix(first, "!") && !strings.HasSuffix(first, "?") {
				first += "."
			}
			return first
		}
	}
	return string(runes[:97]) + "..."
}

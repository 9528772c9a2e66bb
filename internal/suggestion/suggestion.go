// Package suggestion turns raw completions into suggestions a writer can be
// shown: it trims each completion to the span worth inserting, scores it,
// and filters out empty, repeated, or blocked candidates.
package suggestion

import (
	"math"
	"slices"
	"strings"

	"github.com/rivo/uniseg"
)

// SentenceStop is the stop rule that limits a suggestion to its first
// sentence. It is applied locally and never sent to the provider.
const SentenceStop = "."

// Candidate is a post-processed completion.
type Candidate struct {
	Text        string
	Probability float64
	Source      string
}

// Shown is a suggestion the client already displayed in this session.
type Shown struct {
	Original string `json:"original"`
}

// Trim post-processes one completion. A leading copy of after (the
// whitespace cut from the end of the prompt) is removed. When stopRules
// contains SentenceStop, the result is cut after the first sentence, and
// that sentence is itself cut at its first newline. Whitespace in front of
// the sentence is kept.
func Trim(text, after string, stopRules []string) string {
	text = strings.TrimPrefix(text, after)
	if !slices.Contains(stopRules, SentenceStop) {
		return text
	}

	sentence, ok := firstSentence(text)
	if !ok {
		return ""
	}
	sentence = strings.TrimSpace(sentence)
	sentence, _, _ = strings.Cut(sentence, "\n")

	start := strings.Index(text, sentence)
	if start < 0 {
		return text
	}
	return text[:start+len(sentence)]
}

// firstSentence returns the first sentence of text that is not only
// whitespace.
func firstSentence(text string) (string, bool) {
	state := -1
	for len(text) > 0 {
		var sentence string
		sentence, text, state = uniseg.FirstSentenceInString(text, state)
		if strings.TrimSpace(sentence) != "" {
			return sentence, true
		}
	}
	return "", false
}

// Probability converts per-token log-probabilities into the joint
// probability of the completion, as a percentage.
func Probability(logprobs []float64) float64 {
	var sum float64
	for _, lp := range logprobs {
		sum += lp
	}
	return math.Exp(sum) * 100
}
